// Package progress provides progress accounting and reporting for downloads.
//
// A [Tracker] is the single piece of state shared by all download workers: a
// mutex-guarded count of resolved segments. Every increment invokes the
// caller's [Callback] while the lock is held, so the counts a callback
// observes are strictly increasing by one.
//
// A [Reporter] is a Callback consumer that prints human-readable progress
// to a terminal, including completion percentage, segment rate and ETA.
//
// # Usage
//
//	reporter := progress.NewReporter(progress.Options{
//	    TotalSegments: len(urls),
//	    Workers:       10,
//	    Output:        os.Stderr,
//	})
//
//	reporter.Start()
//	defer reporter.Stop()
//
//	tracker := progress.NewTracker(len(urls), reporter.Update)
//	tracker.Increment() // once per resolved segment
//
// # Output Format
//
//	[segslurp] Downloading: https://cdn.example.com/video/720p.m3u8
//	[segslurp] Segments: 250 | Workers: 10 | Strategy: threaded
//	[segslurp] Progress: 45.2% | 113/250 segments | Rate: 21.4 seg/s | ETA: 6s
package progress
