// Package driveapi implements drive.Client over the Drive v3 REST API.
//
// This package handles:
//   - Paged listings with shared drive support
//   - Export of native documents and direct media downloads
//   - Retry with exponential backoff for listings
//   - Typed errors, including the export size limit
//   - OAuth token sources for service accounts and saved user tokens
//
// # Usage
//
//	ts, err := driveapi.TokenSource(ctx, "credentials.json", "token.json")
//	factory := driveapi.NewFactory(driveapi.DefaultOptions(), ts, nil)
//
//	client, err := factory(ctx)
//	page, err := client.ListChildren(ctx, rootID, drive.FolderQuery(), "")
//
// Content requests are issued once. A refused export matches
// drive.ErrExportTooLarge through errors.Is.
package driveapi
