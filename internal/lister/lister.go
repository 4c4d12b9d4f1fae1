// Package lister collects the files held by a set of folders and removes
// likely-duplicate groups before download.
package lister

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

// Options configures ListAll.
type Options struct {
	// Concurrency caps concurrent folder listings.
	// Default: 20
	Concurrency int

	// MimeTypes restricts listed files. Default: drive.DefaultMimeTypes
	MimeTypes []string

	// Logger receives per-folder failures. Default: logging.L()
	Logger *zap.Logger
}

// ListFiles returns every non-trashed file in folder whose mime type is in
// mimeTypes. Records carry folder.Name.
func ListFiles(ctx context.Context, client drive.Client, folder drive.FolderRef, mimeTypes []string) ([]drive.FileRecord, error) {
	entries, err := drive.ListAll(ctx, client, folder.ID, drive.FileQuery(mimeTypes))
	if err != nil {
		return nil, err
	}

	records := make([]drive.FileRecord, 0, len(entries))
	for _, e := range entries {
		records = append(records, drive.FileRecord{
			Name:       e.Name,
			ID:         e.ID,
			MimeType:   e.MimeType,
			FolderName: folder.Name,
		})
	}
	return records, nil
}

// ListAll lists every folder concurrently and returns the merged records in
// folder order.
//
// A folder whose listing fails is logged and contributes nothing. A factory
// error cancels the remaining listings and is returned.
func ListAll(ctx context.Context, factory drive.Factory, folders []drive.FolderRef, opts Options) ([]drive.FileRecord, error) {
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	if len(opts.MimeTypes) == 0 {
		opts.MimeTypes = drive.DefaultMimeTypes
	}
	log := logging.Or(opts.Logger)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Concurrency)

	results := make([][]drive.FileRecord, len(folders))
	for i, folder := range folders {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			client, err := factory(gctx)
			if err != nil {
				return fmt.Errorf("lister: new client: %w", err)
			}

			records, err := ListFiles(gctx, client, folder, opts.MimeTypes)
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				metrics.ListFailed("list")
				log.Warn("list files failed",
					zap.String("folder_id", folder.ID),
					zap.String("folder_name", folder.Name),
					zap.Error(err))
				return nil
			}

			results[i] = records
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	var all []drive.FileRecord
	for _, r := range results {
		all = append(all, r...)
	}
	metrics.FilesListed(len(all))
	log.Debug("listing complete",
		zap.Int("folders", len(folders)),
		zap.Int("files", len(all)))

	return all, nil
}
