// Package downloader fetches the segments of a stream and reassembles them
// into a single output.
//
// The centre of the package is the [Coordinator]: a fixed pool of workers
// reading tasks from a channel that is fed in playlist order. Each worker
// fetches one segment at a time, records the bytes in that task's own
// result slot, and bumps the shared progress tracker. Once every task has
// resolved, the slots are concatenated in index order, so the output never
// depends on which segment finished first.
//
// # Usage
//
//	strategy, err := downloader.New(downloader.StrategyThreaded, downloader.Options{
//	    Workers: 10,
//	    Writer:  output.File{},
//	})
//
//	summary, err := strategy.Download(ctx, provider, downloader.Request{
//	    Quality:  "720p",
//	    Dest:     "video.ts",
//	    Progress: func(completed, total int) { ... },
//	})
//
// # Strategies
//
//   - threaded: the Coordinator with a bounded worker pool (default 10 workers)
//   - sequential: one segment at a time, same retry and progress semantics
//   - ffmpeg: hands the media playlist to an external ffmpeg process and maps
//     its progress onto (percent, 100)
//
// # Failure Handling
//
// A segment that cannot be fetched, or whose task panics, resolves as an
// empty slot and still counts towards progress; siblings keep running. The
// only error that aborts a threaded or sequential run is a destination that
// cannot be written.
package downloader
