package main

import (
	"fmt"

	"github.com/ligustah/drivesync/internal/config"
	"github.com/ligustah/drivesync/internal/walker"
)

// FoldersCmd prints every folder below a root.
type FoldersCmd struct {
	WalkFlags `embed:""`
}

// Run executes the folders command.
func (c *FoldersCmd) Run(rc *runContext) error {
	var override config.Config
	c.WalkFlags.apply(&override)

	cfg, err := rc.loadConfig(override)
	if err != nil {
		return err
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

	folders, err := walker.Walk(ctx, factory, cfg.Root, walker.Options{
		Concurrency: cfg.FolderWorkers,
		Exclude:     cfg.Exclude,
	})
	if err != nil {
		return sourceError(ctx, err)
	}

	for _, f := range folders {
		fmt.Fprintf(rc.stdout, "%s\t%s\n", f.ID, f.Name)
	}
	fmt.Fprintf(rc.stderr, "[drivesync] %d folders below %s\n", len(folders), cfg.Root)
	return nil
}
