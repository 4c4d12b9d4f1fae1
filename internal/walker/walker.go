// Package walker discovers every folder under a root, one breadth-first wave
// at a time.
//
// Each wave lists the sub-folders of every frontier folder concurrently,
// bounded by an admission gate, and joins before the next frontier is built.
// A folder at depth k+1 is therefore never discovered before every listing at
// depth k has finished.
package walker

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ligustah/drivesync/internal/logging"
	"github.com/ligustah/drivesync/internal/metrics"
	"github.com/ligustah/drivesync/pkg/drive"
)

// DefaultConcurrency is the default number of folder listings in flight.
const DefaultConcurrency = 20

// Options configures a walk.
type Options struct {
	// Concurrency caps concurrent listings within a wave.
	// Default: 20
	Concurrency int

	// Exclude lists folder ids that are neither returned nor traversed.
	Exclude []string

	// Logger receives per-folder failures. Default: logging.L()
	Logger *zap.Logger
}

// visitedSet holds folder ids already discovered or enqueued. It is owned by
// the goroutine merging wave results and is never touched by listing tasks.
type visitedSet map[string]struct{}

// add marks id as visited and reports whether it was new.
func (v visitedSet) add(id string) bool {
	if _, ok := v[id]; ok {
		return false
	}
	v[id] = struct{}{}
	return true
}

// Walk returns every folder reachable from rootID, each exactly once, in wave
// order. The root itself is not included.
//
// A listing failure for a single folder is logged and treated as an empty
// folder. A factory error aborts the walk, cancels in-flight listings of the
// current wave and is returned together with the folders found so far.
func Walk(ctx context.Context, factory drive.Factory, rootID string, opts Options) ([]drive.FolderRef, error) {
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	log := logging.Or(opts.Logger).With(zap.String("root_id", rootID))

	excluded := make(map[string]bool, len(opts.Exclude))
	for _, id := range opts.Exclude {
		excluded[id] = true
	}

	visited := visitedSet{rootID: {}}
	frontier := []drive.FolderRef{{ID: rootID, Name: drive.RootName}}
	var result []drive.FolderRef

	for depth := 0; len(frontier) > 0; depth++ {
		children, err := wave(ctx, factory, frontier, opts.Concurrency, log)
		if err != nil {
			return result, err
		}

		var next []drive.FolderRef
		for _, batch := range children {
			for _, child := range batch {
				if excluded[child.ID] {
					log.Debug("skipping excluded folder",
						zap.String("folder_id", child.ID),
						zap.String("folder_name", child.Name))
					continue
				}
				if !visited.add(child.ID) {
					continue
				}
				result = append(result, child)
				next = append(next, child)
			}
		}

		metrics.FoldersDiscovered(len(next))
		log.Debug("wave complete",
			zap.Int("depth", depth),
			zap.Int("listed", len(frontier)),
			zap.Int("discovered", len(next)))

		frontier = next
	}

	return result, nil
}

// wave lists the sub-folders of every folder in frontier and returns them
// indexed like frontier.
func wave(ctx context.Context, factory drive.Factory, frontier []drive.FolderRef, limit int, log *zap.Logger) ([][]drive.FolderRef, error) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	results := make([][]drive.FolderRef, len(frontier))
	for i, folder := range frontier {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			client, err := factory(gctx)
			if err != nil {
				return fmt.Errorf("walker: new client: %w", err)
			}

			entries, err := drive.ListAll(gctx, client, folder.ID, drive.FolderQuery())
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				metrics.ListFailed("walk")
				log.Warn("list subfolders failed",
					zap.String("folder_id", folder.ID),
					zap.String("folder_name", folder.Name),
					zap.Error(err))
				return nil
			}

			refs := make([]drive.FolderRef, 0, len(entries))
			for _, e := range entries {
				refs = append(refs, drive.FolderRef{ID: e.ID, Name: e.Name})
			}
			results[i] = refs
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
