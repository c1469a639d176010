package progress

import (
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
)

// Options configures the progress reporter.
type Options struct {
	// TotalSegments is the number of segments in the run.
	TotalSegments int

	// Workers is the number of parallel workers (for display).
	Workers int

	// Strategy is the download strategy name (for display).
	Strategy string

	// Output is where to write progress output.
	// Default: os.Stderr
	Output io.Writer

	// UpdateInterval is how often to update the progress display.
	// Default: 500ms
	UpdateInterval time.Duration

	// Source is the playlist or manifest being downloaded (for display).
	Source string
}

// Reporter outputs human-readable progress information.
type Reporter struct {
	opts Options

	mu            sync.Mutex
	completed     atomic.Int64
	total         atomic.Int64
	bytes         atomic.Int64
	failed        atomic.Bool
	startTime     time.Time
	lastUpdate    time.Time
	lastCompleted int64
	stopCh        chan struct{}
	doneCh        chan struct{}
	started       bool
	stopped       bool
}

// NewReporter creates a new progress reporter.
func NewReporter(opts Options) *Reporter {
	if opts.Output == nil {
		opts.Output = os.Stderr
	}
	if opts.UpdateInterval == 0 {
		opts.UpdateInterval = 500 * time.Millisecond
	}

	r := &Reporter{
		opts:   opts,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
	r.total.Store(int64(opts.TotalSegments))

	return r
}

// Start prints the header and begins periodic progress output.
func (r *Reporter) Start() {
	r.mu.Lock()
	r.started = true
	r.startTime = time.Now()
	r.lastUpdate = r.startTime
	r.mu.Unlock()

	fmt.Fprintf(r.opts.Output, "[segslurp] Downloading: %s\n", r.opts.Source)
	fmt.Fprintf(r.opts.Output, "[segslurp] Segments: %d | Workers: %d | Strategy: %s\n",
		r.opts.TotalSegments,
		r.opts.Workers,
		r.opts.Strategy,
	)

	go r.updateLoop()
}

// Stop stops the reporter and prints the final status. It is safe to call
// more than once.
func (r *Reporter) Stop() {
	r.mu.Lock()
	if r.stopped || !r.started {
		r.stopped = true
		r.mu.Unlock()
		return
	}
	r.stopped = true
	r.mu.Unlock()

	close(r.stopCh)
	<-r.doneCh
}

// Fail stops the reporter with a failure line instead of the completion
// summary.
func (r *Reporter) Fail() {
	r.failed.Store(true)
	r.Stop()
}

// Update records progress. It has the Callback signature.
func (r *Reporter) Update(completed, total int) {
	r.completed.Store(int64(completed))
	r.total.Store(int64(total))
}

// BytesWritten records the size of the final output.
func (r *Reporter) BytesWritten(n int64) {
	r.bytes.Add(n)
}

// updateLoop periodically updates the progress display.
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

// printProgress outputs the current progress.
func (r *Reporter) printProgress() {
	now := time.Now()
	completed := r.completed.Load()
	total := r.total.Load()

	elapsed := now.Sub(r.lastUpdate).Seconds()
	if elapsed < 0.1 {
		elapsed = 0.1
	}
	rate := float64(completed-r.lastCompleted) / elapsed

	r.lastUpdate = now
	r.lastCompleted = completed

	var percent float64
	eta := "calculating..."
	if total > 0 {
		percent = float64(completed) / float64(total) * 100
		if rate > 0 {
			remaining := float64(total - completed)
			eta = formatDuration(time.Duration(remaining / rate * float64(time.Second)))
		}
	}

	fmt.Fprintf(r.opts.Output, "\r[segslurp] Progress: %.1f%% | %d/%d segments | Rate: %.1f seg/s | ETA: %s    ",
		percent,
		completed,
		total,
		rate,
		eta,
	)
}

// printFinalStatus outputs the final status.
func (r *Reporter) printFinalStatus() {
	completed := r.completed.Load()
	total := r.total.Load()
	size := r.bytes.Load()
	duration := time.Since(r.startTime)

	if r.failed.Load() {
		fmt.Fprintf(r.opts.Output, "\r[segslurp] Progress: %d/%d segments | Failed after %s    \n",
			completed,
			total,
			formatDuration(duration),
		)
		return
	}

	avgSpeed := float64(size) / max(duration.Seconds(), 0.001)

	fmt.Fprintf(r.opts.Output, "\r[segslurp] Progress: %d/%d segments | %s | Complete!    \n",
		completed,
		total,
		FormatBytes(size),
	)
	fmt.Fprintf(r.opts.Output, "[segslurp] Total time: %s | Average speed: %s/s\n",
		formatDuration(duration),
		FormatBytes(int64(avgSpeed)),
	)
}

// FormatBytes formats bytes as a human-readable IEC string, e.g. "1.5 MiB".
func FormatBytes(b int64) string {
	if b < 0 {
		b = 0
	}
	return humanize.IBytes(uint64(b))
}

// formatDuration formats a duration as a human-readable string.
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
