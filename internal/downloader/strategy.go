package downloader

import (
	"context"
	"errors"
	"fmt"
	"time"

	slurphttp "github.com/ligustah/segslurp/internal/http"
	"github.com/ligustah/segslurp/internal/logctx"
	"github.com/ligustah/segslurp/internal/output"
	"github.com/ligustah/segslurp/internal/progress"
	"github.com/ligustah/segslurp/internal/source"
)

// Strategy names accepted by New.
const (
	StrategyThreaded   = "threaded"
	StrategySequential = "sequential"
	StrategyFFmpeg     = "ffmpeg"
)

// ErrUnknownStrategy is returned by New for an unrecognised strategy name.
var ErrUnknownStrategy = errors.New("downloader: unknown strategy")

// Request describes one download.
type Request struct {
	// Quality selects the rendition from the provider.
	Quality string

	// Dest is the output path or bucket key.
	Dest string

	// Start is the playlist index to begin at. Ignored by the ffmpeg strategy.
	Start int

	// Progress receives (completed, total) updates. Optional.
	Progress progress.Callback
}

// Summary reports what a download produced.
type Summary struct {
	// Segments is the number of segments attempted.
	Segments int

	// Empty is the number of segments that resolved without data.
	Empty int

	// Bytes is the size of the written output.
	Bytes int64

	// Elapsed is the wall time of the download.
	Elapsed time.Duration
}

// Strategy downloads a stream from a provider into a destination.
type Strategy interface {
	Download(ctx context.Context, src source.Provider, req Request) (*Summary, error)
}

// Options configures New.
type Options struct {
	// Workers is the pool size for the threaded strategy. Default: 10
	Workers int

	// Attempts is the per-segment attempt budget. Default: 5
	Attempts int

	// HTTP configures the segment client. Zero values take the client defaults.
	HTTP slurphttp.Options

	// Fetcher overrides the HTTP client. Optional.
	Fetcher Fetcher

	// Writer receives the assembled output. Default: output.File{}
	Writer output.Writer

	// FFmpegPath is the ffmpeg binary. Default: "ffmpeg"
	FFmpegPath string
}

// New returns the strategy registered under name.
func New(name string, opts Options) (Strategy, error) {
	fetcher := opts.Fetcher
	if fetcher == nil && name != StrategyFFmpeg {
		fetcher = slurphttp.NewClient(opts.HTTP)
	}

	writer := opts.Writer
	if writer == nil {
		writer = output.File{}
	}

	switch name {
	case StrategyThreaded, "":
		return &Threaded{
			Fetcher:  fetcher,
			Writer:   writer,
			Workers:  opts.Workers,
			Attempts: opts.Attempts,
		}, nil
	case StrategySequential:
		return &Sequential{
			Fetcher:  fetcher,
			Writer:   writer,
			Attempts: opts.Attempts,
		}, nil
	case StrategyFFmpeg:
		return &FFmpeg{Path: opts.FFmpegPath}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, name)
	}
}

// Threaded downloads segments with a Coordinator and writes the assembled
// buffer once every segment has resolved.
type Threaded struct {
	Fetcher  Fetcher
	Writer   output.Writer
	Workers  int
	Attempts int
}

// Download implements Strategy.
func (s *Threaded) Download(ctx context.Context, src source.Provider, req Request) (*Summary, error) {
	started := time.Now()

	urls, err := src.Segments(ctx, req.Quality)
	if err != nil {
		return nil, fmt.Errorf("list segments: %w", err)
	}

	c := &Coordinator{
		Fetcher:  s.Fetcher,
		Workers:  s.Workers,
		Attempts: s.Attempts,
		Progress: req.Progress,
	}

	results, err := c.collect(ctx, urls, req.Start)
	if err != nil {
		return nil, err
	}

	return persist(ctx, s.Writer, req.Dest, results, started)
}

// Sequential downloads one segment at a time.
type Sequential struct {
	Fetcher  Fetcher
	Writer   output.Writer
	Attempts int
}

// Download implements Strategy.
func (s *Sequential) Download(ctx context.Context, src source.Provider, req Request) (*Summary, error) {
	started := time.Now()

	urls, err := src.Segments(ctx, req.Quality)
	if err != nil {
		return nil, fmt.Errorf("list segments: %w", err)
	}

	tasks, err := splitTasks(urls, req.Start)
	if err != nil {
		return nil, err
	}

	attempts := s.Attempts
	if attempts <= 0 {
		attempts = DefaultAttempts
	}

	tracker := progress.NewTracker(len(tasks), req.Progress)
	results := make([]Result, len(tasks))
	for i, task := range tasks {
		results[i] = Result{
			Index: task.Index,
			Data:  fetchSegment(ctx, s.Fetcher, task, attempts),
		}
		advance(ctx, tracker, task)
	}

	return persist(ctx, s.Writer, req.Dest, results, started)
}

// persist assembles results and writes them to dest.
func persist(ctx context.Context, w output.Writer, dest string, results []Result, started time.Time) (*Summary, error) {
	buf := assemble(results)

	summary := &Summary{
		Segments: len(results),
		Bytes:    int64(len(buf)),
	}
	for _, r := range results {
		if len(r.Data) == 0 {
			summary.Empty++
		}
	}

	if err := w.Write(ctx, dest, buf); err != nil {
		return nil, err
	}
	summary.Elapsed = time.Since(started)

	logger := logctx.LoggerFromContext(ctx)
	if summary.Empty > 0 {
		logger.Warn("download written with gaps",
			"dest", dest,
			"segments", summary.Segments,
			"empty", summary.Empty,
			"bytes", summary.Bytes)
	} else {
		logger.Info("download written",
			"dest", dest,
			"segments", summary.Segments,
			"bytes", summary.Bytes,
			"elapsed", summary.Elapsed)
	}

	return summary, nil
}
