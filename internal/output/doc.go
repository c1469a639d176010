// Package output persists a fully reassembled download.
//
// A [Writer] receives the whole buffer exactly once, opens its destination,
// writes the buffer in one operation and releases the handle on every exit
// path. Destinations are always overwritten; there is no append or resume.
//
// Two writers are provided:
//   - [File] writes to a local filesystem path. Parent directories must exist.
//   - [Blob] writes to a key in any gocloud.dev bucket (file://, mem://, s3://, gs://).
//
// A destination that cannot be opened is reported as a [*DestinationError];
// it is the only failure that aborts a download.
package output
