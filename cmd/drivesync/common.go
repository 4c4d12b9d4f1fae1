package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
	"gocloud.dev/blob"
	"gocloud.dev/blob/fileblob"

	"github.com/ligustah/drivesync/internal/config"
	"github.com/ligustah/drivesync/internal/driveapi"
	"github.com/ligustah/drivesync/internal/logging"
	"github.com/ligustah/drivesync/internal/metrics"
	"github.com/ligustah/drivesync/pkg/drive"
)

// runContext is bound to every command's Run method.
type runContext struct {
	cli    *CLI
	stdout io.Writer
	stderr io.Writer
}

// WalkFlags are shared by every command.
type WalkFlags struct {
	Root          string   `arg:"" optional:"" help:"Root folder id."`
	Exclude       []string `help:"Folder ids skipped together with their subtrees."`
	FolderWorkers int      `help:"Concurrent folder listings during the walk."`
}

// ListFlags are shared by commands that list files.
type ListFlags struct {
	MimeTypes   []string `name:"mime-type" help:"Mime types to list. Repeatable."`
	ListWorkers int      `help:"Concurrent file listings."`
	MaxGroup    int      `help:"Drop base-name groups of at least this many files."`
	NoRoot      bool     `help:"Do not list files held directly by the root folder."`
}

// loadConfig layers defaults, the configuration file, the environment and
// finally override.
func (rc *runContext) loadConfig(override config.Config) (config.Config, error) {
	cfg := config.Default()
	if rc.cli.Config != "" {
		var err error
		cfg, err = config.LoadFromFile(rc.cli.Config)
		if err != nil {
			return cfg, fail(ExitInvalidArgs, err)
		}
	}
	if err := cfg.LoadFromEnv(); err != nil {
		return cfg, fail(ExitInvalidArgs, err)
	}

	override.Credentials = rc.cli.Credentials
	override.Token = rc.cli.Token
	override.APIEndpoint = rc.cli.APIEndpoint
	override.MetricsAddr = rc.cli.MetricsAddr
	override.Log = config.LogConfig{Level: rc.cli.LogLevel, Format: rc.cli.LogFormat}
	return cfg.Merge(override), nil
}

func (f WalkFlags) apply(cfg *config.Config) {
	cfg.Root = f.Root
	cfg.Exclude = f.Exclude
	cfg.FolderWorkers = f.FolderWorkers
}

func (f ListFlags) apply(cfg *config.Config) {
	cfg.MimeTypes = f.MimeTypes
	cfg.ListWorkers = f.ListWorkers
	cfg.MaxGroup = f.MaxGroup
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func (rc *runContext) signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
			fmt.Fprintln(rc.stderr, "\n[drivesync] Received interrupt, shutting down...")
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, func() {
		signal.Stop(sigCh)
		cancel()
	}
}

// setup initializes logging and metrics and builds the Drive client factory.
// The returned cleanup func is never nil.
func (rc *runContext) setup(ctx context.Context, cfg config.Config) (drive.Factory, func(), error) {
	cleanup := func() { logging.Sync() }

	if err := logging.Init(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format}); err != nil {
		return nil, cleanup, fail(ExitInvalidArgs, fmt.Errorf("init logging: %w", err))
	}

	if cfg.MetricsAddr != "" {
		stop := serveMetrics(cfg.MetricsAddr)
		cleanup = func() {
			stop()
			logging.Sync()
		}
	}

	ts, err := driveapi.TokenSource(ctx, cfg.Credentials, cfg.Token)
	if err != nil {
		return nil, cleanup, fail(ExitSourceError, err)
	}

	opts := driveapi.DefaultOptions()
	if cfg.APIEndpoint != "" {
		opts.Endpoint = cfg.APIEndpoint
	}
	opts.RetryAttempts = cfg.Retry.Attempts
	opts.RetryBackoff = cfg.Retry.Backoff
	opts.RetryMaxBackoff = cfg.Retry.MaxBackoff

	return driveapi.NewFactory(opts, ts, nil), cleanup, nil
}

func serveMetrics(addr string) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.L().Warn("metrics server stopped", zap.String("addr", addr), zap.Error(err))
		}
	}()
	logging.L().Info("serving metrics", zap.String("addr", addr))

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	}
}

// localBucketOptions keep a local mirror free of .attrs sidecars and stage
// writes next to their target, so renames never cross a mount point.
var localBucketOptions = fileblob.Options{
	CreateDir:   true,
	DirFileMode: 0o755,
	NoTempDir:   true,
	Metadata:    fileblob.MetadataDontWrite,
}

// openBucket opens dest as a gocloud bucket URL. A plain path is opened as a
// local directory, created if needed.
func openBucket(ctx context.Context, dest string) (*blob.Bucket, error) {
	if strings.Contains(dest, "://") {
		return blob.OpenBucket(ctx, dest)
	}
	opts := localBucketOptions
	return fileblob.OpenBucket(dest, &opts)
}

// sourceError classifies a walk or listing failure.
func sourceError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return fail(ExitGeneralError, fmt.Errorf("interrupted: %w", err))
	}
	return fail(ExitSourceError, err)
}
