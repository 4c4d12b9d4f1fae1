package main

import (
	"errors"
	"fmt"
	"io"
	"time"

	"gocloud.dev/blob"

	"github.com/ligustah/drivesync/internal/config"
	"github.com/ligustah/drivesync/internal/downloader"
	"github.com/ligustah/drivesync/internal/progress"
	"github.com/ligustah/drivesync/internal/syncer"
)

// SyncCmd mirrors the tree below a root folder.
type SyncCmd struct {
	WalkFlags `embed:""`
	ListFlags `embed:""`

	Destination     string `short:"d" help:"Destination directory or bucket URL (file://, mem://, s3://, gs://)."`
	DownloadWorkers int    `short:"w" help:"Number of download workers."`
	ChunkSize       string `help:"Copy chunk size, e.g. 10MiB."`
	NestByFolder    bool   `help:"Store files under their folder name."`
	SkipExisting    bool   `help:"Skip files whose object already exists."`
	Manifest        string `help:"Write a manifest of kept files to this key in the destination."`
	DryRun          bool   `help:"Walk, list and filter without downloading."`
	Progress        bool   `help:"Show progress output."`
}

// Run executes the sync command.
func (c *SyncCmd) Run(rc *runContext) error {
	override := config.Config{
		Destination:     c.Destination,
		DownloadWorkers: c.DownloadWorkers,
		NestByFolder:    c.NestByFolder,
		SkipExisting:    c.SkipExisting,
		Manifest:        c.Manifest,
		DryRun:          c.DryRun,
		Progress:        c.Progress,
	}
	c.WalkFlags.apply(&override)
	c.ListFlags.apply(&override)
	if c.ChunkSize != "" {
		size, err := progress.ParseBytes(c.ChunkSize)
		if err != nil {
			return fail(ExitInvalidArgs, fmt.Errorf("invalid chunk size: %w", err))
		}
		override.ChunkSize = size
	}

	cfg, err := rc.loadConfig(override)
	if err != nil {
		return err
	}
	if c.NoRoot {
		cfg.IncludeRoot = false
	}
	if err := cfg.ValidateSync(); err != nil {
		return fail(ExitInvalidArgs, err)
	}

	ctx, cancel := rc.signalContext()
	defer cancel()

	factory, cleanup, err := rc.setup(ctx, cfg)
	defer cleanup()
	if err != nil {
		return err
	}

	var bucket *blob.Bucket
	if cfg.Destination != "" {
		bucket, err = openBucket(ctx, cfg.Destination)
		if err != nil {
			return fail(ExitStorageError, fmt.Errorf("open destination: %w", err))
		}
		defer bucket.Close()
	}

	var reporter *progress.Reporter
	if cfg.Progress && !cfg.DryRun {
		reporter = progress.NewReporter(progress.Options{
			Workers:        cfg.DownloadWorkers,
			Output:         rc.stderr,
			UpdateInterval: 5 * time.Second,
			Destination:    cfg.Destination,
		})
	}

	summary, err := syncer.SyncTree(ctx, factory, bucket, syncer.Options{
		RootID:              cfg.Root,
		MimeTypes:           cfg.MimeTypes,
		FolderConcurrency:   cfg.FolderWorkers,
		ListConcurrency:     cfg.ListWorkers,
		DownloadConcurrency: cfg.DownloadWorkers,
		MaxGroup:            cfg.MaxGroup,
		ChunkSize:           cfg.ChunkSize,
		Exclude:             cfg.Exclude,
		IncludeRoot:         cfg.IncludeRoot,
		NestByFolder:        cfg.NestByFolder,
		SkipExisting:        cfg.SkipExisting,
		ManifestKey:         cfg.Manifest,
		DryRun:              cfg.DryRun,
		Reporter:            reporter,
	})
	if summary != nil {
		printSummary(rc.stderr, summary, cfg.DryRun)
	}

	switch {
	case err == nil:
	case ctx.Err() != nil:
		fmt.Fprintln(rc.stderr, "[drivesync] Sync interrupted")
		return fail(ExitGeneralError, err)
	case errors.Is(err, syncer.ErrManifest), errors.Is(err, syncer.ErrNoBucket):
		return fail(ExitStorageError, err)
	default:
		return fail(ExitSourceError, err)
	}

	if n := summary.Counts.Failed; n > 0 {
		return fail(ExitTransfersFailed, fmt.Errorf("%d of %d transfers failed", n, len(summary.Kept)))
	}
	return nil
}

func printSummary(w io.Writer, s *syncer.Summary, dryRun bool) {
	fmt.Fprintf(w, "[drivesync] Run %s: %d folders, %d files listed, %d kept, %d dropped\n",
		s.RunID, len(s.Folders), s.Listed, len(s.Kept), s.DroppedFiles())
	for _, g := range s.Dropped {
		fmt.Fprintf(w, "[drivesync] Dropped %d files named like %q\n", len(g.Records), g.BaseName)
	}
	if dryRun {
		fmt.Fprintln(w, "[drivesync] Dry run, nothing downloaded")
		return
	}

	fmt.Fprintf(w, "[drivesync] Downloaded %d, skipped %d, failed %d in %s\n",
		s.Counts.Succeeded, s.Counts.Skipped, s.Counts.Failed, s.Duration().Round(time.Millisecond))
	for _, o := range s.Outcomes {
		switch o.Status {
		case downloader.StatusSkipped:
			if o.Reason == downloader.ReasonExportTooLarge {
				fmt.Fprintf(w, "[drivesync] Skipped %s (%s): too large to export\n", o.Record.Name, o.Record.ID)
			}
		case downloader.StatusFailed:
			fmt.Fprintf(w, "[drivesync] Failed %s (%s): %v\n", o.Record.Name, o.Record.ID, o.Err)
		}
	}
}
