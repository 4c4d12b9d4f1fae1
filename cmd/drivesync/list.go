package main

import (
	"fmt"
	"io"
	"os"

	"github.com/ligustah/drivesync/internal/config"
	"github.com/ligustah/drivesync/internal/lister"
	"github.com/ligustah/drivesync/internal/syncer"
)

// ListCmd writes the manifest of files a sync would download.
type ListCmd struct {
	WalkFlags `embed:""`
	ListFlags `embed:""`

	Output string `short:"o" type:"path" help:"Write the manifest to this file instead of stdout."`
}

// Run executes the list command.
func (c *ListCmd) Run(rc *runContext) error {
	var override config.Config
	c.WalkFlags.apply(&override)
	c.ListFlags.apply(&override)

	cfg, err := rc.loadConfig(override)
	if err != nil {
		return err
	}
	if c.NoRoot {
		cfg.IncludeRoot = false
	}
	if err := cfg.Validate(); err != nil {
		return fail(ExitInvalidArgs, err)
	}

	ctx, cancel := rc.signalContext()
	defer cancel()

	factory, cleanup, err := rc.setup(ctx, cfg)
	defer cleanup()
	if err != nil {
		return err
	}

	summary, err := syncer.SyncTree(ctx, factory, nil, syncer.Options{
		RootID:            cfg.Root,
		MimeTypes:         cfg.MimeTypes,
		FolderConcurrency: cfg.FolderWorkers,
		ListConcurrency:   cfg.ListWorkers,
		MaxGroup:          cfg.MaxGroup,
		Exclude:           cfg.Exclude,
		IncludeRoot:       cfg.IncludeRoot,
		DryRun:            true,
	})
	if err != nil {
		return sourceError(ctx, err)
	}

	if err := c.writeManifest(rc.stdout, summary); err != nil {
		return fail(ExitStorageError, err)
	}

	printSummary(rc.stderr, summary, true)
	return nil
}

func (c *ListCmd) writeManifest(stdout io.Writer, s *syncer.Summary) error {
	if c.Output == "" {
		return lister.WriteManifest(stdout, s.Kept)
	}

	f, err := os.Create(c.Output)
	if err != nil {
		return fmt.Errorf("create manifest: %w", err)
	}
	if err := lister.WriteManifest(f, s.Kept); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
