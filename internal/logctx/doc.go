// Package logctx carries a structured logger through context.Context.
//
// Downloads run many goroutines that each need to log per-segment
// diagnostics. Rather than a package-level logger, the logger travels with
// the context handed to every blocking call:
//
//	logger := logctx.New(os.Stderr, slog.LevelInfo, "text")
//	ctx = logctx.WithLogger(ctx, logger.With("run_id", id))
//
//	// deep inside a worker
//	logctx.LoggerFromContext(ctx).Warn("segment fetch failed", "index", i)
//
// Loggers built with [New] are wrapped in a [TraceHandler] so that records
// emitted inside an OpenTelemetry span carry trace_id and span_id.
package logctx
