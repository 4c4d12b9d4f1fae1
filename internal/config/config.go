package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ligustah/drivesync/internal/progress"
)

// Config defines configuration for the drivesync CLI.
type Config struct {
	Root            string      `yaml:"root"`
	Destination     string      `yaml:"destination"`
	MimeTypes       []string    `yaml:"mime_types"`
	Exclude         []string    `yaml:"exclude"`
	FolderWorkers   int         `yaml:"folder_workers"`
	ListWorkers     int         `yaml:"list_workers"`
	DownloadWorkers int         `yaml:"download_workers"`
	MaxGroup        int         `yaml:"max_group"`
	ChunkSize       int64       `yaml:"chunk_size"`
	IncludeRoot     bool        `yaml:"include_root"`
	NestByFolder    bool        `yaml:"nest_by_folder"`
	SkipExisting    bool        `yaml:"skip_existing"`
	Manifest        string      `yaml:"manifest"`
	DryRun          bool        `yaml:"dry_run"`
	Progress        bool        `yaml:"progress"`
	Credentials     string      `yaml:"credentials"`
	Token           string      `yaml:"token"`
	APIEndpoint     string      `yaml:"api_endpoint"`
	MetricsAddr     string      `yaml:"metrics_addr"`
	Log             LogConfig   `yaml:"log"`
	Retry           RetryConfig `yaml:"retry"`
}

// LogConfig defines logger settings.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// RetryConfig defines retry behavior for listing requests.
type RetryConfig struct {
	Attempts   int           `yaml:"attempts"`
	Backoff    time.Duration `yaml:"backoff"`
	MaxBackoff time.Duration `yaml:"max_backoff"`
}

// Default returns a Config with sensible defaults.
func Default() Config {
	return Config{
		FolderWorkers:   20,
		ListWorkers:     20,
		DownloadWorkers: 15,
		MaxGroup:        5,
		ChunkSize:       10 * 1024 * 1024, // 10MiB
		IncludeRoot:     true,
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
		Retry: RetryConfig{
			Attempts:   5,
			Backoff:    time.Second,
			MaxBackoff: 30 * time.Second,
		},
	}
}

// yamlConfig is used for YAML unmarshaling with string sizes and durations.
type yamlConfig struct {
	Root            string          `yaml:"root"`
	Destination     string          `yaml:"destination"`
	MimeTypes       []string        `yaml:"mime_types"`
	Exclude         []string        `yaml:"exclude"`
	FolderWorkers   int             `yaml:"folder_workers"`
	ListWorkers     int             `yaml:"list_workers"`
	DownloadWorkers int             `yaml:"download_workers"`
	MaxGroup        int             `yaml:"max_group"`
	ChunkSize       string          `yaml:"chunk_size"`
	IncludeRoot     *bool           `yaml:"include_root"`
	NestByFolder    bool            `yaml:"nest_by_folder"`
	SkipExisting    bool            `yaml:"skip_existing"`
	Manifest        string          `yaml:"manifest"`
	DryRun          bool            `yaml:"dry_run"`
	Progress        bool            `yaml:"progress"`
	Credentials     string          `yaml:"credentials"`
	Token           string          `yaml:"token"`
	APIEndpoint     string          `yaml:"api_endpoint"`
	MetricsAddr     string          `yaml:"metrics_addr"`
	Log             LogConfig       `yaml:"log"`
	Retry           yamlRetryConfig `yaml:"retry"`
}

type yamlRetryConfig struct {
	Attempts   int    `yaml:"attempts"`
	Backoff    string `yaml:"backoff"`
	MaxBackoff string `yaml:"max_backoff"`
}

// LoadFromFile loads configuration from a YAML file.
func LoadFromFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	var yc yamlConfig
	if err := yaml.Unmarshal(data, &yc); err != nil {
		return Config{}, fmt.Errorf("parse config file: %w", err)
	}

	cfg := Default().Merge(Config{
		Root:            yc.Root,
		Destination:     yc.Destination,
		MimeTypes:       yc.MimeTypes,
		Exclude:         yc.Exclude,
		FolderWorkers:   yc.FolderWorkers,
		ListWorkers:     yc.ListWorkers,
		DownloadWorkers: yc.DownloadWorkers,
		MaxGroup:        yc.MaxGroup,
		NestByFolder:    yc.NestByFolder,
		SkipExisting:    yc.SkipExisting,
		Manifest:        yc.Manifest,
		DryRun:          yc.DryRun,
		Progress:        yc.Progress,
		Credentials:     yc.Credentials,
		Token:           yc.Token,
		APIEndpoint:     yc.APIEndpoint,
		MetricsAddr:     yc.MetricsAddr,
		Log:             yc.Log,
		Retry:           RetryConfig{Attempts: yc.Retry.Attempts},
	})

	if yc.IncludeRoot != nil {
		cfg.IncludeRoot = *yc.IncludeRoot
	}
	if yc.ChunkSize != "" {
		size, err := progress.ParseBytes(yc.ChunkSize)
		if err != nil {
			return Config{}, fmt.Errorf("parse chunk_size: %w", err)
		}
		cfg.ChunkSize = size
	}
	if yc.Retry.Backoff != "" {
		d, err := time.ParseDuration(yc.Retry.Backoff)
		if err != nil {
			return Config{}, fmt.Errorf("parse retry.backoff: %w", err)
		}
		cfg.Retry.Backoff = d
	}
	if yc.Retry.MaxBackoff != "" {
		d, err := time.ParseDuration(yc.Retry.MaxBackoff)
		if err != nil {
			return Config{}, fmt.Errorf("parse retry.max_backoff: %w", err)
		}
		cfg.Retry.MaxBackoff = d
	}

	return cfg, nil
}

// LoadFromEnv loads configuration from environment variables.
// Environment variables use the DRIVESYNC_ prefix. List values are comma
// separated.
func (c *Config) LoadFromEnv() error {
	envString("DRIVESYNC_ROOT", &c.Root)
	envString("DRIVESYNC_DESTINATION", &c.Destination)
	envList("DRIVESYNC_MIME_TYPES", &c.MimeTypes)
	envList("DRIVESYNC_EXCLUDE", &c.Exclude)
	envString("DRIVESYNC_MANIFEST", &c.Manifest)
	envString("DRIVESYNC_CREDENTIALS", &c.Credentials)
	envString("DRIVESYNC_TOKEN", &c.Token)
	envString("DRIVESYNC_API_ENDPOINT", &c.APIEndpoint)
	envString("DRIVESYNC_METRICS_ADDR", &c.MetricsAddr)
	envString("DRIVESYNC_LOG_LEVEL", &c.Log.Level)
	envString("DRIVESYNC_LOG_FORMAT", &c.Log.Format)
	envBool("DRIVESYNC_INCLUDE_ROOT", &c.IncludeRoot)
	envBool("DRIVESYNC_NEST_BY_FOLDER", &c.NestByFolder)
	envBool("DRIVESYNC_SKIP_EXISTING", &c.SkipExisting)
	envBool("DRIVESYNC_DRY_RUN", &c.DryRun)
	envBool("DRIVESYNC_PROGRESS", &c.Progress)

	ints := []struct {
		name string
		dst  *int
	}{
		{"DRIVESYNC_FOLDER_WORKERS", &c.FolderWorkers},
		{"DRIVESYNC_LIST_WORKERS", &c.ListWorkers},
		{"DRIVESYNC_DOWNLOAD_WORKERS", &c.DownloadWorkers},
		{"DRIVESYNC_MAX_GROUP", &c.MaxGroup},
		{"DRIVESYNC_RETRY_ATTEMPTS", &c.Retry.Attempts},
	}
	for _, e := range ints {
		if v := os.Getenv(e.name); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("parse %s: %w", e.name, err)
			}
			*e.dst = n
		}
	}

	if v := os.Getenv("DRIVESYNC_CHUNK_SIZE"); v != "" {
		size, err := progress.ParseBytes(v)
		if err != nil {
			return fmt.Errorf("parse DRIVESYNC_CHUNK_SIZE: %w", err)
		}
		c.ChunkSize = size
	}
	if v := os.Getenv("DRIVESYNC_RETRY_BACKOFF"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("parse DRIVESYNC_RETRY_BACKOFF: %w", err)
		}
		c.Retry.Backoff = d
	}
	if v := os.Getenv("DRIVESYNC_RETRY_MAX_BACKOFF"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("parse DRIVESYNC_RETRY_MAX_BACKOFF: %w", err)
		}
		c.Retry.MaxBackoff = d
	}

	return nil
}

func envString(name string, dst *string) {
	if v := os.Getenv(name); v != "" {
		*dst = v
	}
}

func envBool(name string, dst *bool) {
	if v := os.Getenv(name); v != "" {
		*dst = v == "true" || v == "1"
	}
}

func envList(name string, dst *[]string) {
	v := os.Getenv(name)
	if v == "" {
		return
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	*dst = out
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Root == "" {
		return errors.New("config: root is required")
	}
	if c.FolderWorkers <= 0 {
		return errors.New("config: folder_workers must be positive")
	}
	if c.ListWorkers <= 0 {
		return errors.New("config: list_workers must be positive")
	}
	if c.DownloadWorkers <= 0 {
		return errors.New("config: download_workers must be positive")
	}
	if c.MaxGroup <= 0 {
		return errors.New("config: max_group must be positive")
	}
	if c.ChunkSize <= 0 {
		return errors.New("config: chunk_size must be positive")
	}
	if c.Retry.Attempts < 0 {
		return errors.New("config: retry.attempts must not be negative")
	}
	switch c.Log.Format {
	case "", "console", "json":
	default:
		return fmt.Errorf("config: unknown log format %q", c.Log.Format)
	}
	return nil
}

// ValidateSync validates the configuration for a transferring run.
func (c *Config) ValidateSync() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.Destination == "" && !c.DryRun {
		return errors.New("config: destination is required")
	}
	return nil
}

// Merge merges override values into c, returning a new Config.
// Zero values in override are ignored, so Merge cannot clear IncludeRoot.
func (c Config) Merge(override Config) Config {
	if override.Root != "" {
		c.Root = override.Root
	}
	if override.Destination != "" {
		c.Destination = override.Destination
	}
	if len(override.MimeTypes) > 0 {
		c.MimeTypes = override.MimeTypes
	}
	if len(override.Exclude) > 0 {
		c.Exclude = override.Exclude
	}
	if override.FolderWorkers != 0 {
		c.FolderWorkers = override.FolderWorkers
	}
	if override.ListWorkers != 0 {
		c.ListWorkers = override.ListWorkers
	}
	if override.DownloadWorkers != 0 {
		c.DownloadWorkers = override.DownloadWorkers
	}
	if override.MaxGroup != 0 {
		c.MaxGroup = override.MaxGroup
	}
	if override.ChunkSize != 0 {
		c.ChunkSize = override.ChunkSize
	}
	if override.IncludeRoot {
		c.IncludeRoot = true
	}
	if override.NestByFolder {
		c.NestByFolder = true
	}
	if override.SkipExisting {
		c.SkipExisting = true
	}
	if override.Manifest != "" {
		c.Manifest = override.Manifest
	}
	if override.DryRun {
		c.DryRun = true
	}
	if override.Progress {
		c.Progress = true
	}
	if override.Credentials != "" {
		c.Credentials = override.Credentials
	}
	if override.Token != "" {
		c.Token = override.Token
	}
	if override.APIEndpoint != "" {
		c.APIEndpoint = override.APIEndpoint
	}
	if override.MetricsAddr != "" {
		c.MetricsAddr = override.MetricsAddr
	}
	if override.Log.Level != "" {
		c.Log.Level = override.Log.Level
	}
	if override.Log.Format != "" {
		c.Log.Format = override.Log.Format
	}
	if override.Retry.Attempts != 0 {
		c.Retry.Attempts = override.Retry.Attempts
	}
	if override.Retry.Backoff != 0 {
		c.Retry.Backoff = override.Retry.Backoff
	}
	if override.Retry.MaxBackoff != 0 {
		c.Retry.MaxBackoff = override.Retry.MaxBackoff
	}
	return c
}
