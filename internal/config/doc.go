// Package config defines configuration structures for the drivesync CLI.
//
// Configuration can be provided via:
//   - Command-line flags
//   - Environment variables (DRIVESYNC_ prefix)
//   - YAML configuration file
//
// Flags override the environment, which overrides the file.
//
// # Example
//
//	root: 1VWELDrSkd1wAbR-L8sho4-eVQmNpxRx8
//	destination: file:///srv/mirror
//	download_workers: 15
//	chunk_size: 10MiB
//	exclude: [folderId1, folderId2]
//	log:
//	  level: debug
//	  format: json
//	retry:
//	  attempts: 5
//	  backoff: 1s
package config
