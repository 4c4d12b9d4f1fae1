// Package syncer runs a complete mirror: walk the folder tree, list and filter
// files, then download the survivors into a bucket.
package syncer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gocloud.dev/blob"

	"github.com/ligustah/drivesync/internal/downloader"
	"github.com/ligustah/drivesync/internal/lister"
	"github.com/ligustah/drivesync/internal/logging"
	"github.com/ligustah/drivesync/internal/metrics"
	"github.com/ligustah/drivesync/internal/progress"
	"github.com/ligustah/drivesync/internal/walker"
	"github.com/ligustah/drivesync/pkg/drive"
)

var (
	// ErrNoBucket is returned when a transferring run has no destination.
	ErrNoBucket = errors.New("syncer: destination bucket is required")

	// ErrManifest wraps failures to store the manifest.
	ErrManifest = errors.New("syncer: write manifest")
)

// Options configures a run.
type Options struct {
	// RootID is the folder to mirror.
	RootID string

	// MimeTypes restricts listed files. Default: drive.DefaultMimeTypes
	MimeTypes []string

	// FolderConcurrency caps concurrent listings during the walk.
	FolderConcurrency int

	// ListConcurrency caps concurrent file listings.
	ListConcurrency int

	// DownloadConcurrency is the number of download workers.
	DownloadConcurrency int

	// MaxGroup is the duplicate group size that is dropped.
	// Default: lister.DefaultMaxGroup
	MaxGroup int

	// ChunkSize is the download copy chunk size.
	ChunkSize int64

	// Exclude lists folder ids skipped with their subtrees.
	Exclude []string

	// IncludeRoot also lists files held directly by the root folder.
	IncludeRoot bool

	NestByFolder bool
	SkipExisting bool

	// ManifestKey, when set, writes a manifest of kept files to the bucket.
	ManifestKey string

	// DryRun stops after filtering; nothing but the manifest is written.
	DryRun bool

	// Reporter, if set, is started for the download stage and stopped
	// before SyncTree returns.
	Reporter *progress.Reporter

	Logger *zap.Logger
}

// Summary describes a run. It is returned even when a stage fails.
type Summary struct {
	RunID string
	Root  string

	// Folders holds every folder discovered below the root.
	Folders []drive.FolderRef

	// Listed is the number of files listed before filtering.
	Listed int

	Kept     []drive.FileRecord
	Dropped  []lister.Group
	Outcomes []downloader.Outcome
	Counts   downloader.Counts

	StartedAt  time.Time
	FinishedAt time.Time
}

// Finalize computes counts from the outcomes and stamps the finish time.
func (s *Summary) Finalize() {
	s.Counts = downloader.Summarize(s.Outcomes)
	if s.FinishedAt.IsZero() {
		s.FinishedAt = time.Now()
	}
}

// Duration returns the run's wall time.
func (s *Summary) Duration() time.Duration {
	return s.FinishedAt.Sub(s.StartedAt)
}

// Failures returns the failed outcomes.
func (s *Summary) Failures() []downloader.Outcome {
	var out []downloader.Outcome
	for _, o := range s.Outcomes {
		if o.Status == downloader.StatusFailed {
			out = append(out, o)
		}
	}
	return out
}

// DroppedFiles returns the number of files removed by the duplicate filter.
func (s *Summary) DroppedFiles() int {
	n := 0
	for _, g := range s.Dropped {
		n += len(g.Records)
	}
	return n
}

// SyncTree mirrors the tree below opts.RootID into bucket. bucket may be nil
// for a dry run without a manifest.
func SyncTree(ctx context.Context, factory drive.Factory, bucket *blob.Bucket, opts Options) (*Summary, error) {
	s := &Summary{
		RunID:     uuid.NewString(),
		Root:      opts.RootID,
		StartedAt: time.Now(),
	}
	defer s.Finalize()

	if opts.MaxGroup <= 0 {
		opts.MaxGroup = lister.DefaultMaxGroup
	}
	log := logging.Or(opts.Logger).With(zap.String("run_id", s.RunID))

	log.Info("walking folder tree", zap.String("root_id", opts.RootID))
	folders, err := walker.Walk(ctx, factory, opts.RootID, walker.Options{
		Concurrency: opts.FolderConcurrency,
		Exclude:     opts.Exclude,
		Logger:      log,
	})
	s.Folders = folders
	if err != nil {
		return s, fmt.Errorf("walk: %w", err)
	}
	log.Info("walk complete", zap.Int("folders", len(folders)))

	targets := folders
	if opts.IncludeRoot {
		targets = append([]drive.FolderRef{{ID: opts.RootID, Name: drive.RootName}}, folders...)
	}

	records, err := lister.ListAll(ctx, factory, targets, lister.Options{
		Concurrency: opts.ListConcurrency,
		MimeTypes:   opts.MimeTypes,
		Logger:      log,
	})
	if err != nil {
		return s, fmt.Errorf("list: %w", err)
	}
	s.Listed = len(records)

	s.Kept, s.Dropped = lister.FilterReport(records, opts.MaxGroup)
	metrics.FilesDropped(s.DroppedFiles())
	for _, g := range s.Dropped {
		log.Info("dropping duplicate group",
			zap.String("base_name", g.BaseName),
			zap.Int("files", len(g.Records)))
	}
	log.Info("listing complete",
		zap.Int("listed", s.Listed),
		zap.Int("kept", len(s.Kept)),
		zap.Int("dropped", s.DroppedFiles()))

	if opts.ManifestKey != "" && bucket != nil {
		if err := writeManifest(ctx, bucket, opts.ManifestKey, s.Kept); err != nil {
			return s, err
		}
	}

	if opts.DryRun {
		return s, nil
	}
	if bucket == nil {
		return s, ErrNoBucket
	}

	if opts.Reporter != nil {
		opts.Reporter.SetTotal(len(s.Kept))
		opts.Reporter.Start()
		defer opts.Reporter.Stop()
	}

	outcomes, err := downloader.DownloadAll(ctx, factory, s.Kept, bucket, downloader.Options{
		Workers:      opts.DownloadConcurrency,
		ChunkSize:    opts.ChunkSize,
		NestByFolder: opts.NestByFolder,
		SkipExisting: opts.SkipExisting,
		Progress:     opts.Reporter,
		Logger:       log,
	})
	s.Outcomes = outcomes
	if err != nil {
		return s, fmt.Errorf("download: %w", err)
	}

	c := downloader.Summarize(outcomes)
	log.Info("download complete",
		zap.Int("succeeded", c.Succeeded),
		zap.Int("skipped", c.Skipped),
		zap.Int("failed", c.Failed))

	return s, nil
}

func writeManifest(ctx context.Context, bucket *blob.Bucket, key string, records []drive.FileRecord) error {
	var buf bytes.Buffer
	if err := lister.WriteManifest(&buf, records); err != nil {
		return err
	}
	if err := bucket.WriteAll(ctx, key, buf.Bytes(), &blob.WriterOptions{ContentType: "text/plain; charset=utf-8"}); err != nil {
		return fmt.Errorf("%w: %w", ErrManifest, err)
	}
	return nil
}
