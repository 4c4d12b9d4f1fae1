package progress

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Options configures the progress reporter.
type Options struct {
	// TotalFiles is the number of files to transfer.
	TotalFiles int

	// Workers is the number of parallel download workers.
	Workers int

	// Output is where to write progress output.
	// Default: os.Stdout
	Output io.Writer

	// UpdateInterval is how often to update the progress display.
	// Default: 500ms
	UpdateInterval time.Duration

	// Destination is the bucket or directory being written (for display).
	Destination string
}

// Reporter outputs human-readable progress information.
type Reporter struct {
	opts Options

	mu             sync.Mutex
	completedBytes atomic.Int64
	completed      atomic.Int32
	skipped        atomic.Int32
	failed         atomic.Int32
	inProgress     atomic.Int32
	startTime      time.Time
	lastUpdate     time.Time
	lastBytes      int64
	stopCh         chan struct{}
	doneCh         chan struct{}
	started        bool
	stopped        bool
}

// NewReporter creates a new progress reporter.
func NewReporter(opts Options) *Reporter {
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.UpdateInterval == 0 {
		opts.UpdateInterval = 500 * time.Millisecond
	}

	return &Reporter{
		opts:   opts,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
}

// Start begins outputting progress information.
func (r *Reporter) Start() {
	r.mu.Lock()
	r.startTime = time.Now()
	r.lastUpdate = r.startTime
	r.started = true
	r.mu.Unlock()

	fmt.Fprintf(r.opts.Output, "[drivesync] Downloading to: %s\n", r.opts.Destination)
	fmt.Fprintf(r.opts.Output, "[drivesync] Files: %d | Workers: %d\n", r.opts.TotalFiles, r.opts.Workers)

	go r.updateLoop()
}

// Stop stops the reporter and waits for the final status line.
func (r *Reporter) Stop() {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return
	}
	r.stopped = true
	started := r.started
	r.mu.Unlock()

	close(r.stopCh)
	if started {
		<-r.doneCh
	}
}

// SetTotal updates the number of files to transfer.
func (r *Reporter) SetTotal(n int) {
	r.mu.Lock()
	r.opts.TotalFiles = n
	r.mu.Unlock()
}

// FileStarted marks a file as in progress.
func (r *Reporter) FileStarted() {
	r.inProgress.Add(1)
}

// BytesWritten records n bytes written to the destination.
func (r *Reporter) BytesWritten(n int64) {
	r.completedBytes.Add(n)
}

// FileCompleted marks an in-progress file as written.
func (r *Reporter) FileCompleted() {
	r.completed.Add(1)
	r.inProgress.Add(-1)
}

// FileSkipped marks an in-progress file as skipped.
func (r *Reporter) FileSkipped() {
	r.skipped.Add(1)
	r.inProgress.Add(-1)
}

// FileFailed marks an in-progress file as failed.
func (r *Reporter) FileFailed() {
	r.failed.Add(1)
	r.inProgress.Add(-1)
}

// Counts returns the completed, skipped and failed totals.
func (r *Reporter) Counts() (completed, skipped, failed int) {
	return int(r.completed.Load()), int(r.skipped.Load()), int(r.failed.Load())
}

func (r *Reporter) updateLoop() {
	defer close(r.doneCh)

	ticker := time.NewTicker(r.opts.UpdateInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopCh:
			r.printFinalStatus()
			return
		case <-ticker.C:
			r.printProgress()
		}
	}
}

func (r *Reporter) printProgress() {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	written := r.completedBytes.Load()

	elapsed := now.Sub(r.lastUpdate).Seconds()
	if elapsed < 0.1 {
		elapsed = 0.1
	}
	speed := float64(written-r.lastBytes) / elapsed
	r.lastUpdate = now
	r.lastBytes = written

	done := int(r.completed.Load() + r.skipped.Load() + r.failed.Load())
	inProgress := int(r.inProgress.Load())
	pending := r.opts.TotalFiles - done - inProgress
	if pending < 0 {
		pending = 0
	}

	var percent float64
	if r.opts.TotalFiles > 0 {
		percent = float64(done) / float64(r.opts.TotalFiles) * 100
	}

	fmt.Fprintf(r.opts.Output, "\r[drivesync] Progress: %.1f%% | %d / %d files | %s | Speed: %s/s    ",
		percent,
		done,
		r.opts.TotalFiles,
		formatBytes(written),
		formatBytes(int64(speed)),
	)
	fmt.Fprintf(r.opts.Output, "\n[drivesync] Files: %d done | %d skipped | %d failed | %d in-progress | %d pending    \033[A",
		r.completed.Load(),
		r.skipped.Load(),
		r.failed.Load(),
		inProgress,
		pending,
	)
}

func (r *Reporter) printFinalStatus() {
	r.mu.Lock()
	defer r.mu.Unlock()

	written := r.completedBytes.Load()
	duration := time.Since(r.startTime)
	avgSpeed := float64(written) / max(duration.Seconds(), 0.001)

	fmt.Fprintf(r.opts.Output, "\r[drivesync] Files: %d done | %d skipped | %d failed    \n",
		r.completed.Load(),
		r.skipped.Load(),
		r.failed.Load(),
	)
	fmt.Fprintf(r.opts.Output, "[drivesync] Total: %s in %s | Average speed: %s/s\n",
		formatBytes(written),
		formatDuration(duration),
		formatBytes(int64(avgSpeed)),
	)
}

// formatBytes formats b with binary units. Values below ten keep one decimal.
func formatBytes(b int64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}

	units := []string{"KiB", "MiB", "GiB", "TiB", "PiB"}
	v := float64(b) / unit
	i := 0
	for v >= unit && i < len(units)-1 {
		v /= unit
		i++
	}
	if v < 10 {
		return fmt.Sprintf("%.1f %s", v, units[i])
	}
	return fmt.Sprintf("%.0f %s", v, units[i])
}

func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%.0fs", d.Seconds())
	}
	if d < time.Hour {
		m := int(d.Minutes())
		s := int(d.Seconds()) % 60
		return fmt.Sprintf("%dm %ds", m, s)
	}
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%dh %dm %ds", h, m, s)
}

// FormatBytes formats a byte count for display.
func FormatBytes(b int64) string {
	return formatBytes(b)
}

var byteUnits = []struct {
	suffix     string
	multiplier int64
}{
	{"KiB", 1 << 10},
	{"MiB", 1 << 20},
	{"GiB", 1 << 30},
	{"TiB", 1 << 40},
	{"KB", 1000},
	{"MB", 1000 * 1000},
	{"GB", 1000 * 1000 * 1000},
	{"TB", 1000 * 1000 * 1000 * 1000},
	{"B", 1},
}

// ParseBytes parses a human-readable byte string such as "10MiB" or "10MB".
// Binary suffixes are powers of 1024, SI suffixes powers of 1000.
func ParseBytes(s string) (int64, error) {
	s = strings.TrimSpace(s)
	var multiplier int64 = 1
	for _, u := range byteUnits {
		if strings.HasSuffix(s, u.suffix) {
			multiplier = u.multiplier
			s = strings.TrimSpace(strings.TrimSuffix(s, u.suffix))
			break
		}
	}

	var value float64
	if _, err := fmt.Sscanf(s, "%f", &value); err != nil {
		return 0, fmt.Errorf("invalid byte string: %s", s)
	}
	if value < 0 {
		return 0, fmt.Errorf("negative byte string: %s", s)
	}

	return int64(value * float64(multiplier)), nil
}
