package output

import (
	"context"
	"fmt"
	"os"

	"gocloud.dev/blob"
)

// Writer persists a complete buffer to a destination.
type Writer interface {
	Write(ctx context.Context, dest string, data []byte) error
}

// DestinationError reports a destination that could not be opened or written.
type DestinationError struct {
	Dest string // Path or bucket key
	Op   string // "open", "write" or "close"
	Err  error  // Underlying error
}

func (e *DestinationError) Error() string {
	return fmt.Sprintf("output %s %s: %v", e.Op, e.Dest, e.Err)
}

func (e *DestinationError) Unwrap() error {
	return e.Err
}

// File writes to the local filesystem.
type File struct {
	// Perm is the mode used when creating the file.
	// Default: 0644
	Perm os.FileMode
}

// Write truncates or creates dest and writes data to it.
func (f File) Write(_ context.Context, dest string, data []byte) (err error) {
	perm := f.Perm
	if perm == 0 {
		perm = 0644
	}

	out, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return &DestinationError{Dest: dest, Op: "open", Err: err}
	}
	defer func() {
		if cerr := out.Close(); cerr != nil && err == nil {
			err = &DestinationError{Dest: dest, Op: "close", Err: cerr}
		}
	}()

	if _, err := out.Write(data); err != nil {
		return &DestinationError{Dest: dest, Op: "write", Err: err}
	}

	return nil
}

// Blob writes to a key in a gocloud.dev bucket.
type Blob struct {
	Bucket *blob.Bucket

	// ContentType is stored with the object. Empty lets the driver detect it.
	ContentType string
}

// Write replaces the object at key dest with data.
func (b Blob) Write(ctx context.Context, dest string, data []byte) (err error) {
	var opts *blob.WriterOptions
	if b.ContentType != "" {
		opts = &blob.WriterOptions{ContentType: b.ContentType}
	}

	w, err := b.Bucket.NewWriter(ctx, dest, opts)
	if err != nil {
		return &DestinationError{Dest: dest, Op: "open", Err: err}
	}
	defer func() {
		if cerr := w.Close(); cerr != nil && err == nil {
			err = &DestinationError{Dest: dest, Op: "close", Err: cerr}
		}
	}()

	if _, err := w.Write(data); err != nil {
		return &DestinationError{Dest: dest, Op: "write", Err: err}
	}

	return nil
}
