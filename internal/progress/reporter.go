package progress

import (
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Options describes the transfer a Reporter tracks.
type Options struct {
	// TotalSize is the object length in bytes.
	TotalSize int64

	// TotalBlocks is the number of part files the download will produce.
	TotalBlocks int

	// Output receives the status lines.
	// Default: os.Stdout
	Output io.Writer

	// UpdateInterval is the time between status lines.
	// Default: 500ms
	UpdateInterval time.Duration

	// Source is the object being downloaded (for display).
	Source string

	// BlockSize is the size of each part (for display).
	BlockSize int64
}

// Reporter outputs human-readable progress information. Its counters are
// safe to update from any goroutine while the display loop runs.
type Reporter struct {
	opts Options

	mu              sync.Mutex
	completedBytes  atomic.Int64
	completedBlocks atomic.Int32
	failedBlocks    atomic.Int32
	inProgress      atomic.Int32
	startTime       time.Time
	lastUpdate      time.Time
	lastBytes       int64
	stopCh          chan struct{}
	doneCh          chan struct{}
	started         bool
	stopped         bool
}

// NewReporter returns a Reporter; nothing is printed until Start.
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

// Start prints the header and begins updating the display.
func (r *Reporter) Start() {
	r.mu.Lock()
	if r.started {
		r.mu.Unlock()
		return
	}
	r.started = true
	r.mu.Unlock()

	r.startTime = time.Now()
	r.lastUpdate = r.startTime

	fmt.Fprintf(r.opts.Output, "[partfetch] Downloading: %s\n", r.opts.Source)
	fmt.Fprintf(r.opts.Output, "[partfetch] Total size: %s | Blocks: %d x %s\n",
		formatBytes(r.opts.TotalSize),
		r.opts.TotalBlocks,
		formatBytes(r.opts.BlockSize),
	)

	go r.updateLoop()
}

// Stop prints the final status and waits for the display loop to exit.
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

// BlockStarted marks a block as in progress.
func (r *Reporter) BlockStarted() {
	r.inProgress.Add(1)
}

// BytesWritten adds n bytes to the completed total.
func (r *Reporter) BytesWritten(n int64) {
	r.completedBytes.Add(n)
}

// BlockCompleted marks a block as completed.
func (r *Reporter) BlockCompleted() {
	r.completedBlocks.Add(1)
	r.inProgress.Add(-1)
}

// BlockFailed marks a block as failed.
func (r *Reporter) BlockFailed() {
	r.failedBlocks.Add(1)
	r.inProgress.Add(-1)
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
	now := time.Now()
	completed := r.completedBytes.Load()
	completedBlocks := int(r.completedBlocks.Load())
	inProgress := int(r.inProgress.Load())

	elapsed := now.Sub(r.lastUpdate).Seconds()
	if elapsed < 0.1 {
		elapsed = 0.1
	}
	speed := float64(completed-r.lastBytes) / elapsed

	r.lastUpdate = now
	r.lastBytes = completed

	var percent float64
	eta := "calculating..."
	if r.opts.TotalSize > 0 {
		percent = float64(completed) / float64(r.opts.TotalSize) * 100
		if speed > 0 {
			remaining := float64(r.opts.TotalSize - completed)
			eta = formatDuration(time.Duration(remaining / speed * float64(time.Second)))
		}
	}

	pending := max(r.opts.TotalBlocks-completedBlocks-inProgress, 0)

	fmt.Fprintf(r.opts.Output, "\r[partfetch] Progress: %.1f%% | %s / %s | Speed: %s/s | ETA: %s    ",
		percent,
		formatBytes(completed),
		formatBytes(r.opts.TotalSize),
		formatBytes(int64(speed)),
		eta,
	)
	fmt.Fprintf(r.opts.Output, "\n[partfetch] Blocks: %d completed | %d in-progress | %d pending    \033[A",
		completedBlocks,
		inProgress,
		pending,
	)
}

func (r *Reporter) printFinalStatus() {
	completed := r.completedBytes.Load()
	completedBlocks := int(r.completedBlocks.Load())
	failed := int(r.failedBlocks.Load())
	duration := time.Since(r.startTime)
	avgSpeed := float64(completed) / max(duration.Seconds(), 0.001)

	if failed > 0 {
		fmt.Fprintf(r.opts.Output, "\r[partfetch] Failed after %s / %s    \n",
			formatBytes(completed),
			formatBytes(r.opts.TotalSize),
		)
	} else {
		fmt.Fprintf(r.opts.Output, "\r[partfetch] Progress: 100.0%% | %s / %s | Speed: %s/s | Complete!    \n",
			formatBytes(completed),
			formatBytes(r.opts.TotalSize),
			formatBytes(int64(avgSpeed)),
		)
	}
	fmt.Fprintf(r.opts.Output, "[partfetch] Blocks: %d completed | %d failed    \n",
		completedBlocks,
		failed,
	)
	fmt.Fprintf(r.opts.Output, "[partfetch] Total time: %s | Average speed: %s/s\n",
		formatDuration(duration),
		formatBytes(int64(avgSpeed)),
	)
}

// formatBytes formats b with binary units: "100 B", "1.5 KiB", "256 MiB".
func formatBytes(b int64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}

	value := float64(b)
	suffixes := []string{"KiB", "MiB", "GiB", "TiB", "PiB"}
	i := -1
	for value >= unit && i < len(suffixes)-1 {
		value /= unit
		i++
	}

	if value >= 10 {
		return fmt.Sprintf("%.0f %s", value, suffixes[i])
	}
	return fmt.Sprintf("%.1f %s", value, suffixes[i])
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

// FormatBytes renders b in binary units, e.g. "1.5 MiB".
func FormatBytes(b int64) string {
	return formatBytes(b)
}

var byteUnits = []struct {
	suffix     string
	multiplier float64
}{
	// Longest suffixes first so "KiB" is not matched as "B".
	{"KiB", 1 << 10},
	{"MiB", 1 << 20},
	{"GiB", 1 << 30},
	{"TiB", 1 << 40},
	{"KB", 1e3},
	{"MB", 1e6},
	{"GB", 1e9},
	{"TB", 1e12},
	{"B", 1},
}

// ParseBytes parses a human-readable byte string such as "128MiB" or
// "1.5 GB". IEC suffixes (KiB, MiB, ...) are powers of 1024, SI suffixes
// (KB, MB, ...) powers of 1000. A bare number is a byte count.
func ParseBytes(s string) (int64, error) {
	orig := s
	s = strings.TrimSpace(s)

	multiplier := 1.0
	for _, u := range byteUnits {
		if strings.HasSuffix(s, u.suffix) {
			multiplier = u.multiplier
			s = strings.TrimSpace(strings.TrimSuffix(s, u.suffix))
			break
		}
	}

	value, err := strconv.ParseFloat(s, 64)
	if err != nil || value < 0 || math.IsNaN(value) || math.IsInf(value, 0) {
		return 0, fmt.Errorf("invalid byte string: %q", orig)
	}
	return int64(value * multiplier), nil
}
