package downloader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"gocloud.dev/blob"
	"gocloud.dev/gcerrors"

	"github.com/ligustah/drivesync/internal/logging"
	"github.com/ligustah/drivesync/internal/metrics"
	"github.com/ligustah/drivesync/internal/progress"
	"github.com/ligustah/drivesync/pkg/drive"
)

const (
	// DefaultWorkers is the default number of parallel downloads.
	DefaultWorkers = 15

	// DefaultChunkSize is the default copy chunk size.
	DefaultChunkSize = 10 * 1024 * 1024
)

// fallbackStem names objects whose file name has no usable characters.
const fallbackStem = "file"

// Skip reasons.
const (
	ReasonExportTooLarge = "export_too_large"
	ReasonAlreadyExists  = "already_exists"
)

// Options configures the downloader.
type Options struct {
	// Workers is the number of parallel download workers.
	// Default: 15
	Workers int

	// ChunkSize is the size of each sequential copy step.
	// Default: 10 MiB
	ChunkSize int64

	// NestByFolder prefixes object keys with the sanitized folder name.
	NestByFolder bool

	// SkipExisting skips records whose object key already exists in the
	// bucket without contacting the remote.
	SkipExisting bool

	// Progress is an optional progress reporter.
	Progress *progress.Reporter

	// Logger receives per-file results. Default: logging.L()
	Logger *zap.Logger
}

// Status is the result class of a single transfer.
type Status int

const (
	StatusSuccess Status = iota
	StatusSkipped
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusSkipped:
		return "skipped"
	case StatusFailed:
		return "failed"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Outcome records what happened to one record.
type Outcome struct {
	Record drive.FileRecord
	Status Status

	// Key is the destination object key. Empty for records never started.
	Key string

	// Reason is set for skipped outcomes.
	Reason string

	// Err is set for failed outcomes.
	Err error

	Bytes    int64
	Duration time.Duration
}

// Counts summarises a set of outcomes.
type Counts struct {
	Succeeded int
	Skipped   int
	Failed    int
}

// Summarize counts outcomes by status.
func Summarize(outcomes []Outcome) Counts {
	var c Counts
	for _, o := range outcomes {
		switch o.Status {
		case StatusSuccess:
			c.Succeeded++
		case StatusSkipped:
			c.Skipped++
		case StatusFailed:
			c.Failed++
		}
	}
	return c
}

// Sanitize keeps ASCII letters, digits, spaces, dots and underscores and
// strips trailing spaces.
func Sanitize(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ', r == '.', r == '_':
			b.WriteRune(r)
		}
	}
	return strings.TrimRight(b.String(), " ")
}

// ObjectKey returns the destination key for r: the sanitized name, the file
// id and the format extension. A name that sanitizes to nothing uses the stem
// "file". With nest set, the key is placed under the sanitized folder name.
func ObjectKey(r drive.FileRecord, nest bool) string {
	stem := Sanitize(r.Name)
	if stem == "" {
		stem = fallbackStem
	}
	key := stem + "." + r.ID + drive.ResolveFormat(r.MimeType).Extension
	if nest {
		if dir := Sanitize(r.FolderName); dir != "" {
			key = dir + "/" + key
		}
	}
	return key
}

// DownloadAll transfers every record into bucket and returns exactly one
// outcome per record, in input order.
//
// Each worker obtains one client from factory and reuses it for every record
// it handles. A factory error stops the run: records not yet started are
// marked failed and the error is returned with the outcomes. If ctx is
// cancelled, records not yet started are marked failed with the context error.
func DownloadAll(ctx context.Context, factory drive.Factory, records []drive.FileRecord, bucket *blob.Bucket, opts Options) ([]Outcome, error) {
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = DefaultChunkSize
	}
	log := logging.Or(opts.Logger)

	outcomes := make([]Outcome, len(records))
	started := make([]bool, len(records))

	runCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	var (
		fatalOnce sync.Once
		fatalErr  error
	)
	abort := func(err error) {
		fatalOnce.Do(func() {
			fatalErr = err
			cancel(err)
		})
	}

	workers := poolSize(opts.Workers, len(records))
	jobs := make(chan int, workers)
	var wg sync.WaitGroup

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var (
				client drive.Client
				buf    []byte
			)
			for idx := range jobs {
				if runCtx.Err() != nil {
					continue
				}
				if buf == nil {
					buf = make([]byte, opts.ChunkSize)
				}
				if client == nil {
					c, err := factory(runCtx)
					if err != nil {
						abort(fmt.Errorf("downloader: new client: %w", err))
						continue
					}
					client = c
				}
				started[idx] = true
				outcomes[idx] = transfer(runCtx, client, bucket, records[idx], buf, opts, log)
			}
		}()
	}

	go func() {
		defer close(jobs)
		for i := range records {
			select {
			case jobs <- i:
			case <-runCtx.Done():
				return
			}
		}
	}()

	wg.Wait()

	for i := range records {
		if started[i] {
			continue
		}
		err := context.Cause(runCtx)
		if err == nil {
			err = context.Canceled
		}
		outcomes[i] = Outcome{Record: records[i], Status: StatusFailed, Err: err}
	}

	if fatalErr != nil {
		return outcomes, fatalErr
	}
	if err := ctx.Err(); err != nil {
		return outcomes, err
	}
	return outcomes, nil
}

// poolSize caps the worker count at the number of records.
func poolSize(workers, records int) int {
	if records < workers {
		return records
	}
	return workers
}

// transfer handles one record with a worker-owned client.
func transfer(ctx context.Context, client drive.Client, bucket *blob.Bucket, r drive.FileRecord, buf []byte, opts Options, log *zap.Logger) Outcome {
	start := time.Now()
	format := drive.ResolveFormat(r.MimeType)
	out := Outcome{Record: r, Key: ObjectKey(r, opts.NestByFolder)}
	log = log.With(zap.String("file_id", r.ID), zap.String("key", out.Key))

	if opts.Progress != nil {
		opts.Progress.FileStarted()
	}

	if opts.SkipExisting {
		exists, err := objectExists(ctx, bucket, out.Key)
		if err != nil {
			return finish(out, StatusFailed, "", err, "none", start, opts, log)
		}
		if exists {
			return finish(out, StatusSkipped, ReasonAlreadyExists, nil, "none", start, opts, log)
		}
	}

	method := "get"
	contentType := r.MimeType
	var (
		body io.ReadCloser
		err  error
	)
	if format.Export {
		method = "export"
		contentType = format.ExportMimeType
		body, err = client.ExportContent(ctx, r.ID, format.ExportMimeType)
	} else {
		body, err = client.GetContent(ctx, r.ID)
	}
	if err != nil {
		if errors.Is(err, drive.ErrExportTooLarge) {
			return finish(out, StatusSkipped, ReasonExportTooLarge, nil, method, start, opts, log)
		}
		return finish(out, StatusFailed, "", fmt.Errorf("open content: %w", err), method, start, opts, log)
	}
	defer body.Close()

	n, err := writeObject(ctx, bucket, out.Key, contentType, r, body, buf, opts.Progress)
	out.Bytes = n
	if err != nil {
		if errors.Is(err, drive.ErrExportTooLarge) {
			return finish(out, StatusSkipped, ReasonExportTooLarge, nil, method, start, opts, log)
		}
		return finish(out, StatusFailed, "", err, method, start, opts, log)
	}
	return finish(out, StatusSuccess, "", nil, method, start, opts, log)
}

func finish(out Outcome, status Status, reason string, err error, method string, start time.Time, opts Options, log *zap.Logger) Outcome {
	out.Status = status
	out.Reason = reason
	out.Err = err
	out.Duration = time.Since(start)

	metrics.RecordDownload(status.String(), method, out.Bytes, out.Duration)

	switch status {
	case StatusSuccess:
		if opts.Progress != nil {
			opts.Progress.FileCompleted()
		}
		log.Debug("downloaded", zap.Int64("bytes", out.Bytes), zap.Duration("duration", out.Duration))
	case StatusSkipped:
		if opts.Progress != nil {
			opts.Progress.FileSkipped()
		}
		log.Info("skipped", zap.String("reason", reason))
	case StatusFailed:
		if opts.Progress != nil {
			opts.Progress.FileFailed()
		}
		log.Warn("download failed", zap.Error(err))
	}
	return out
}

// writeObject streams body into key in sequential chunks of len(buf). A
// failed copy cancels the writer so no partial object is published.
func writeObject(ctx context.Context, bucket *blob.Bucket, key, contentType string, r drive.FileRecord, body io.Reader, buf []byte, reporter *progress.Reporter) (int64, error) {
	wctx, cancel := context.WithCancel(ctx)
	defer cancel()

	w, err := bucket.NewWriter(wctx, key, &blob.WriterOptions{
		ContentType: contentType,
		Metadata: map[string]string{
			"drive_id":        r.ID,
			"drive_mime_type": r.MimeType,
		},
	})
	if err != nil {
		return 0, fmt.Errorf("create writer: %w", err)
	}

	var written int64
	for {
		nr, rerr := io.ReadFull(body, buf)
		if nr > 0 {
			nw, werr := w.Write(buf[:nr])
			written += int64(nw)
			if reporter != nil {
				reporter.BytesWritten(int64(nw))
			}
			if werr != nil {
				cancel()
				w.Close()
				return written, fmt.Errorf("write object: %w", werr)
			}
		}
		if rerr == io.EOF || rerr == io.ErrUnexpectedEOF {
			break
		}
		if rerr != nil {
			cancel()
			w.Close()
			return written, fmt.Errorf("read content: %w", rerr)
		}
	}

	if err := w.Close(); err != nil {
		return written, fmt.Errorf("close writer: %w", err)
	}
	return written, nil
}

// objectExists reports whether key is present in bucket.
func objectExists(ctx context.Context, bucket *blob.Bucket, key string) (bool, error) {
	_, err := bucket.Attributes(ctx, key)
	if err == nil {
		return true, nil
	}
	if gcerrors.Code(err) == gcerrors.NotFound {
		return false, nil
	}
	return false, fmt.Errorf("check existing object: %w", err)
}
