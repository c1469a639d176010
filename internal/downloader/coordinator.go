package downloader

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/ligustah/segslurp/internal/logctx"
	"github.com/ligustah/segslurp/internal/progress"
)

const (
	// DefaultWorkers is the size of the worker pool when none is configured.
	DefaultWorkers = 10

	// DefaultAttempts is the per-segment attempt budget.
	DefaultAttempts = 5
)

// ErrInvalidStart is returned when the start index lies outside the playlist.
var ErrInvalidStart = errors.New("downloader: start index out of range")

var tracer = otel.Tracer("github.com/ligustah/segslurp/internal/downloader")

// Fetcher resolves one segment URL to its bytes. An empty result means the
// segment is unrecoverable; Fetch reports no other failure.
type Fetcher interface {
	Fetch(ctx context.Context, url string, maxAttempts int) []byte
}

// FetcherFunc adapts a function to the Fetcher interface.
type FetcherFunc func(ctx context.Context, url string, maxAttempts int) []byte

// Fetch calls f.
func (f FetcherFunc) Fetch(ctx context.Context, url string, maxAttempts int) []byte {
	return f(ctx, url, maxAttempts)
}

// Task is one segment to fetch. Index is the position in the full playlist.
type Task struct {
	Index int
	URL   string
}

// Result is the outcome of a Task. Data is empty if the segment was lost.
type Result struct {
	Index int
	Data  []byte
}

// Coordinator downloads segments with a bounded worker pool.
type Coordinator struct {
	// Fetcher resolves segment URLs. Required.
	Fetcher Fetcher

	// Workers is the size of the pool. Default: 10
	Workers int

	// Attempts is passed to Fetcher for every segment. Default: 5
	Attempts int

	// Progress is called once per resolved segment. Optional.
	Progress progress.Callback
}

// Run downloads urls[start:] and returns their bodies concatenated in
// playlist order. It returns only after every segment has resolved.
func (c *Coordinator) Run(ctx context.Context, urls []string, start int) ([]byte, error) {
	results, err := c.collect(ctx, urls, start)
	if err != nil {
		return nil, err
	}

	return assemble(results), nil
}

// collect runs the worker pool and returns one Result per task, ordered by
// Index.
func (c *Coordinator) collect(ctx context.Context, urls []string, start int) ([]Result, error) {
	tasks, err := splitTasks(urls, start)
	if err != nil {
		return nil, err
	}

	results := make([]Result, len(tasks))
	if len(tasks) == 0 {
		return results, nil
	}

	workers := c.Workers
	if workers <= 0 {
		workers = DefaultWorkers
	}
	if workers > len(tasks) {
		workers = len(tasks)
	}

	attempts := c.Attempts
	if attempts <= 0 {
		attempts = DefaultAttempts
	}

	logger := logctx.LoggerFromContext(ctx)
	logger.Debug("starting worker pool", "segments", len(tasks), "workers", workers, "start", start)

	tracker := progress.NewTracker(len(tasks), c.Progress)

	// Slot i belongs to tasks[i]; each worker writes only the slots it was
	// handed, and nothing reads results until Wait returns.
	jobs := make(chan int)

	var g errgroup.Group
	for w := 0; w < workers; w++ {
		g.Go(func() error {
			for slot := range jobs {
				task := tasks[slot]
				results[slot] = Result{
					Index: task.Index,
					Data:  fetchSegment(ctx, c.Fetcher, task, attempts),
				}
				advance(ctx, tracker, task)
			}
			return nil
		})
	}

	for slot := range tasks {
		jobs <- slot
	}
	close(jobs)

	// Workers never return an error; Wait is the join point.
	_ = g.Wait()

	return results, nil
}

// splitTasks turns urls[start:] into tasks that keep their playlist index.
func splitTasks(urls []string, start int) ([]Task, error) {
	if start < 0 || start > len(urls) {
		return nil, fmt.Errorf("%w: %d not in [0, %d]", ErrInvalidStart, start, len(urls))
	}

	tasks := make([]Task, 0, len(urls)-start)
	for i := start; i < len(urls); i++ {
		tasks = append(tasks, Task{Index: i, URL: urls[i]})
	}

	return tasks, nil
}

// fetchSegment runs one task. A panic anywhere in the fetch is logged and
// turns the segment into an empty one.
func fetchSegment(ctx context.Context, f Fetcher, task Task, attempts int) (data []byte) {
	logger := logctx.LoggerFromContext(ctx).With("segment", task.Index)
	ctx = logctx.WithLogger(ctx, logger)

	ctx, span := tracer.Start(ctx, "segment.fetch", trace.WithAttributes(
		attribute.Int("segment.index", task.Index),
		attribute.String("segment.url", task.URL),
	))
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			logger.ErrorContext(ctx, "segment task failed, leaving gap", "panic", r)
			span.SetStatus(codes.Error, fmt.Sprint(r))
			data = nil
		}
	}()

	data = f.Fetch(ctx, task.URL, attempts)

	span.SetAttributes(attribute.Int("segment.bytes", len(data)))
	if len(data) == 0 {
		span.SetStatus(codes.Error, "segment unrecoverable")
	}

	return data
}

// advance counts a resolved task. A panicking progress callback is logged
// and does not take the worker down.
func advance(ctx context.Context, tracker *progress.Tracker, task Task) {
	defer func() {
		if r := recover(); r != nil {
			logctx.LoggerFromContext(ctx).Error("progress callback failed", "segment", task.Index, "panic", r)
		}
	}()

	tracker.Increment()
}

// assemble concatenates result data in ascending Index order.
func assemble(results []Result) []byte {
	size := 0
	for _, r := range results {
		size += len(r.Data)
	}

	buf := make([]byte, 0, size)
	for _, r := range results {
		buf = append(buf, r.Data...)
	}

	return buf
}
