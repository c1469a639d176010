//go:build integration

package downloader

import (
	"context"
	"testing"
	"time"

	_ "gocloud.dev/blob/s3blob"

	"github.com/ligustah/segslurp/internal/output"
	"github.com/ligustah/segslurp/internal/source"
	"github.com/ligustah/segslurp/internal/testutils"
)

func TestThreadedDownloadToMinio(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	segments := testutils.GenerateSegments(t, 120, 32*1024)
	server, urls := testutils.StartSegmentServer(t, segments, 0, 77)
	defer server.Close()

	minio := testutils.StartMinioContainer(t, ctx, "downloader-test")
	defer func() {
		if err := minio.Close(ctx); err != nil {
			t.Logf("failed to terminate minio container: %v", err)
		}
	}()

	bkt, err := minio.OpenBucket(ctx)
	if err != nil {
		t.Fatalf("open bucket: %v", err)
	}
	defer bkt.Close()

	s, err := New(StrategyThreaded, Options{
		Workers: 16,
		Writer:  output.Blob{Bucket: bkt, ContentType: "video/mp2t"},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	rec := &recorder{}
	summary, err := s.Download(ctx, &source.Static{URLs: urls}, Request{
		Dest:     "streams/test.ts",
		Progress: rec.callback,
	})
	if err != nil {
		t.Fatalf("Download: %v", err)
	}

	if summary.Empty != 2 {
		t.Errorf("Empty = %d, want 2", summary.Empty)
	}
	rec.check(t, 120)

	r, err := bkt.NewReader(ctx, "streams/test.ts", nil)
	if err != nil {
		t.Fatalf("open object: %v", err)
	}
	defer r.Close()

	if ct := r.ContentType(); ct != "video/mp2t" {
		t.Errorf("content type = %q", ct)
	}
	testutils.CompareReaderToData(t, r, testutils.Concat(segments, 0, 77))
}
