package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"gocloud.dev/blob"
	_ "gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/gcsblob"
	_ "gocloud.dev/blob/memblob"
	_ "gocloud.dev/blob/s3blob"

	"github.com/ligustah/segslurp/internal/config"
	"github.com/ligustah/segslurp/internal/downloader"
	slurphttp "github.com/ligustah/segslurp/internal/http"
	"github.com/ligustah/segslurp/internal/logctx"
	"github.com/ligustah/segslurp/internal/output"
	"github.com/ligustah/segslurp/internal/progress"
	"github.com/ligustah/segslurp/internal/source"
)

// runFetch downloads every segment of a stream and writes the reassembled
// result to a local file or a bucket object.
func runFetch(args []string) int {
	fs := flag.NewFlagSet("fetch", flag.ExitOnError)

	configPath := fs.String("config", "", "YAML configuration file")

	// Zero values mean "not set" so file and environment settings survive.
	var flags config.Config
	fs.StringVar(&flags.List, "list", "", "File of segment URLs, one per line ('-' for stdin)")
	fs.StringVar(&flags.ManifestURL, "manifest-url", "", "Master playlist URL (ffmpeg strategy)")
	fs.StringVar(&flags.MediaPlaylist, "media-playlist", "", "Media playlist relative to -manifest-url (ffmpeg strategy)")
	fs.StringVar(&flags.Quality, "quality", "", "Quality to download")
	fs.StringVar(&flags.Output, "output", "", "Output file path, or object key with -bucket (required)")
	fs.StringVar(&flags.Bucket, "bucket", "", "Destination bucket URL (file://, mem://, s3://, gs://)")
	fs.StringVar(&flags.Strategy, "strategy", "", "Download strategy: threaded, sequential or ffmpeg (default threaded)")
	fs.IntVar(&flags.Workers, "workers", 0, "Number of parallel workers (default 10)")
	fs.IntVar(&flags.Start, "start", 0, "Playlist index to start at")
	fs.BoolVar(&flags.Progress, "progress", false, "Show progress output")
	fs.StringVar(&flags.LogLevel, "log-level", "", "Log level: debug, info, warn, error (default info)")
	fs.StringVar(&flags.LogFormat, "log-format", "", "Log format: text or json (default text)")
	fs.StringVar(&flags.FFmpegPath, "ffmpeg-path", "", "ffmpeg binary (default ffmpeg)")
	fs.DurationVar(&flags.Timeout, "timeout", 0, "Per-attempt segment timeout (default 10s)")
	fs.IntVar(&flags.Retry.Attempts, "retry-attempts", 0, "Max attempts per segment (default 5)")
	fs.DurationVar(&flags.Retry.Backoff, "retry-backoff", 0, "Initial retry backoff (default 250ms)")
	fs.DurationVar(&flags.Retry.MaxBackoff, "retry-max-backoff", 0, "Max retry backoff (default 5s)")

	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, `Usage: segslurp fetch [options]

Download the segments of a stream and write them, in order, as one file.
Segments that cannot be fetched are left out; the run still completes.

Options:`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return ExitInvalidArgs
	}

	cfg := config.Default()
	if *configPath != "" {
		var err error
		cfg, err = config.LoadFromFile(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return ExitInvalidArgs
		}
	}
	if err := cfg.LoadFromEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return ExitInvalidArgs
	}
	cfg = cfg.Merge(flags)

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		fs.Usage()
		return ExitInvalidArgs
	}

	// Setup context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger := logctx.New(os.Stderr, logctx.ParseLevel(cfg.LogLevel), cfg.LogFormat).
		With("run_id", uuid.NewString())
	ctx = logctx.WithLogger(ctx, logger)

	// Handle signals for graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			fmt.Fprintln(os.Stderr, "\n[segslurp] Received interrupt, finishing with what has been fetched...")
			cancel()
		case <-ctx.Done():
		}
	}()

	return fetch(ctx, cfg)
}

// fetch runs one download with a validated configuration.
func fetch(ctx context.Context, cfg config.Config) int {
	logger := logctx.LoggerFromContext(ctx)

	src, total, err := buildSource(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return ExitSourceError
	}

	writer := output.Writer(output.File{})
	if cfg.Bucket != "" {
		bkt, err := blob.OpenBucket(ctx, cfg.Bucket)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error opening bucket: %v\n", err)
			return ExitStorageError
		}
		defer bkt.Close()
		writer = output.Blob{Bucket: bkt}
	}

	strategy, err := downloader.New(cfg.Strategy, downloader.Options{
		Workers:  cfg.Workers,
		Attempts: cfg.Retry.Attempts,
		HTTP: slurphttp.Options{
			MaxIdleConnsPerHost: cfg.Workers * 2,
			Timeout:             cfg.Timeout,
			RetryBackoff:        cfg.Retry.Backoff,
			RetryMaxBackoff:     cfg.Retry.MaxBackoff,
		},
		Writer:     writer,
		FFmpegPath: cfg.FFmpegPath,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return ExitInvalidArgs
	}

	req := downloader.Request{
		Quality: cfg.Quality,
		Dest:    cfg.Output,
		Start:   cfg.Start,
	}

	// Setup progress reporter
	var reporter *progress.Reporter
	if cfg.Progress {
		if cfg.Strategy != config.StrategyFFmpeg {
			total -= cfg.Start
		}
		reporter = progress.NewReporter(progress.Options{
			TotalSegments:  total,
			Workers:        cfg.Workers,
			Strategy:       cfg.Strategy,
			UpdateInterval: 2 * time.Second,
			Source:         sourceName(cfg),
		})
		req.Progress = reporter.Update
		reporter.Start()
		defer reporter.Stop()
	}

	logger.Info("starting download",
		"strategy", cfg.Strategy,
		"output", cfg.Output,
		"bucket", cfg.Bucket,
		"workers", cfg.Workers,
		"start", cfg.Start)

	summary, err := strategy.Download(ctx, src, req)
	if err != nil {
		if reporter != nil {
			reporter.Fail()
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return exitCode(err)
	}

	if reporter != nil {
		reporter.BytesWritten(summary.Bytes)
		reporter.Stop()
	}

	if summary.Empty > 0 {
		fmt.Fprintf(os.Stderr, "[segslurp] Warning: %d of %d segments could not be fetched\n", summary.Empty, summary.Segments)
	}
	fmt.Fprintf(os.Stderr, "[segslurp] Wrote %s to %s\n", progress.FormatBytes(summary.Bytes), cfg.Output)
	return ExitSuccess
}

// buildSource returns the provider for cfg and the number of progress units
// the strategy will report.
func buildSource(cfg config.Config) (source.Provider, int, error) {
	if cfg.Strategy == config.StrategyFFmpeg {
		playlist := cfg.MediaPlaylist
		if playlist == "" {
			playlist = cfg.ManifestURL
		}
		return &source.Static{
			Base:      cfg.ManifestURL,
			Manifests: map[string]string{cfg.Quality: playlist},
		}, 100, nil
	}

	urls, err := source.LoadListFile(cfg.List)
	if err != nil {
		return nil, 0, err
	}

	return &source.Static{Base: cfg.ManifestURL, URLs: urls}, len(urls), nil
}

func sourceName(cfg config.Config) string {
	if cfg.Strategy == config.StrategyFFmpeg {
		return cfg.ManifestURL
	}
	return cfg.List
}

// exitCode maps a download error to a process exit code.
func exitCode(err error) int {
	var destErr *output.DestinationError
	switch {
	case errors.As(err, &destErr):
		return ExitStorageError
	case errors.Is(err, downloader.ErrInvalidStart):
		return ExitInvalidArgs
	case errors.Is(err, source.ErrUnknownQuality):
		return ExitSourceError
	default:
		return ExitDownloadFailed
	}
}
