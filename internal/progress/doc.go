// Package progress provides progress reporting for mirror runs.
//
// This package outputs human-readable progress information, including the
// number of files written, skipped and failed and the transfer speed.
//
// # Usage
//
//	reporter := progress.NewReporter(progress.Options{
//	    TotalFiles: len(records),
//	    Workers:    15,
//	    Output:     os.Stderr,
//	})
//
//	reporter.Start()
//	defer reporter.Stop()
//
//	reporter.FileStarted()
//	reporter.BytesWritten(n)
//	reporter.FileCompleted()
//
// # Output Format
//
//	[drivesync] Downloading to: file:///srv/mirror
//	[drivesync] Files: 812 | Workers: 15
//	[drivesync] Progress: 45.2% | 367 / 812 files | 1.2 GiB | Speed: 14 MiB/s
//	[drivesync] Files: 360 done | 5 skipped | 2 failed | 15 in-progress | 430 pending
package progress
