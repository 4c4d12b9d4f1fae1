// Package downloader transfers listed files into a destination bucket.
//
// # Usage
//
// The main entry point is the DownloadAll function:
//
//	outcomes, err := downloader.DownloadAll(ctx, factory, records, bucket, downloader.Options{
//	    Workers:   15,
//	    ChunkSize: 10 * 1024 * 1024,
//	    Progress:  progressReporter,
//	})
//
// # Worker Pool
//
// Workers receive record indices from a channel. Each worker creates one
// client on its first record and keeps it for the rest of the run; clients
// are never shared between workers. Native documents go through an export
// call, everything else is fetched directly.
//
// # Outcomes
//
// Every record yields exactly one Outcome:
//   - Success: the object was written under Key
//   - Skipped: the export was refused as too large, or Key already existed
//   - Failed: any other error; Err carries the cause
//
// There is no automatic retry. Resubmit failed records to try again.
//
// # Object Keys
//
// Keys are Sanitize(name) + "." + id + extension, so records with the same
// name never collide. Writers replace existing objects, and an aborted copy
// never publishes a partial object.
package downloader
