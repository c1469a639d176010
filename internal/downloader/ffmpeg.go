package downloader

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net/url"
	"os"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ligustah/segslurp/internal/logctx"
	"github.com/ligustah/segslurp/internal/progress"
	"github.com/ligustah/segslurp/internal/source"
)

// stderrTail is the number of trailing ffmpeg stderr lines kept for errors.
const stderrTail = 20

var durationPattern = regexp.MustCompile(`Duration: (\d{2}):(\d{2}):(\d{2})\.(\d{2})`)

// FFmpeg hands the media playlist to an external ffmpeg process, which
// fetches and remuxes the segments itself.
type FFmpeg struct {
	// Path is the ffmpeg binary. Default: "ffmpeg"
	Path string
}

// Download implements Strategy. Progress is reported as (percent, 100).
func (f *FFmpeg) Download(ctx context.Context, src source.Provider, req Request) (*Summary, error) {
	started := time.Now()
	logger := logctx.LoggerFromContext(ctx)

	manifest, err := src.ManifestForQuality(req.Quality)
	if err != nil {
		return nil, fmt.Errorf("manifest for quality: %w", err)
	}

	input, err := manifestURL(src.BaseURL(), manifest)
	if err != nil {
		return nil, err
	}

	if req.Start > 0 {
		logger.Warn("start index is ignored by the ffmpeg strategy", "start", req.Start)
	}

	path := f.Path
	if path == "" {
		path = "ffmpeg"
	}

	cmd := exec.CommandContext(ctx, path, ffmpegArgs(input, req.Dest)...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg stdout: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg stderr: %w", err)
	}

	logger.Debug("starting ffmpeg", "path", path, "input", input, "dest", req.Dest)
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start ffmpeg: %w", err)
	}

	p := &ffmpegProgress{cb: req.Progress}

	var (
		wg   sync.WaitGroup
		tail []string
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		tail = p.scanStderr(stderr)
	}()

	p.scanProgress(stdout)
	wg.Wait()

	if err := cmd.Wait(); err != nil {
		return nil, fmt.Errorf("ffmpeg: %w: %s", err, strings.Join(tail, "\n"))
	}

	summary := &Summary{Elapsed: time.Since(started)}
	if fi, err := os.Stat(req.Dest); err == nil {
		summary.Bytes = fi.Size()
	}

	logger.Info("ffmpeg download finished", "dest", req.Dest, "bytes", summary.Bytes, "elapsed", summary.Elapsed)

	return summary, nil
}

// ffmpegArgs builds the remux command line for input into dest.
func ffmpegArgs(input, dest string) []string {
	return []string{
		"-progress", "pipe:1",
		"-nostats",
		"-i", input,
		"-bsf:a", "aac_adtstoasc",
		"-y",
		"-c", "copy",
		dest,
	}
}

// manifestURL replaces the last path component of base with manifest.
func manifestURL(base, manifest string) (string, error) {
	if base == "" {
		return "", errors.New("ffmpeg: provider has no base URL")
	}

	b, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse base URL: %w", err)
	}

	ref, err := url.Parse(manifest)
	if err != nil {
		return "", fmt.Errorf("parse manifest %q: %w", manifest, err)
	}

	return b.ResolveReference(ref).String(), nil
}

// ffmpegProgress turns ffmpeg's key=value progress stream into percentages.
type ffmpegProgress struct {
	cb progress.Callback

	// duration is the input duration in microseconds, set from stderr.
	duration atomic.Int64

	last int
}

// scanStderr records the input duration and returns the last lines written.
func (p *ffmpegProgress) scanStderr(r io.Reader) []string {
	var tail []string

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()

		if p.duration.Load() == 0 {
			if d, ok := parseDuration(line); ok {
				p.duration.Store(d.Microseconds())
			}
		}

		tail = append(tail, line)
		if len(tail) > stderrTail {
			tail = tail[1:]
		}
	}
	_, _ = io.Copy(io.Discard, r)

	return tail
}

// scanProgress reads -progress output until EOF.
func (p *ffmpegProgress) scanProgress(r io.Reader) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		key, value, ok := strings.Cut(strings.TrimSpace(scanner.Text()), "=")
		if !ok {
			continue
		}

		switch key {
		// out_time_ms is microseconds too, despite the name.
		case "out_time_us", "out_time_ms":
			us, err := strconv.ParseInt(value, 10, 64)
			if err != nil || us < 0 {
				continue
			}
			total := p.duration.Load()
			if total <= 0 {
				continue
			}
			pct := math.Min(float64(us)/float64(total)*100, 99)
			p.emit(int(math.Round(pct)))
		case "progress":
			if value == "end" {
				p.emit(100)
			}
		}
	}

	// A scan error leaves ffmpeg writing into a full pipe; keep draining.
	_, _ = io.Copy(io.Discard, r)
}

// emit forwards pct if it moved forward.
func (p *ffmpegProgress) emit(pct int) {
	if pct <= p.last {
		return
	}
	p.last = pct

	if p.cb != nil {
		p.cb(pct, 100)
	}
}

// parseDuration extracts the input duration from an ffmpeg stderr line.
func parseDuration(line string) (time.Duration, bool) {
	m := durationPattern.FindStringSubmatch(line)
	if m == nil {
		return 0, false
	}

	h, _ := strconv.Atoi(m[1])
	mins, _ := strconv.Atoi(m[2])
	sec, _ := strconv.Atoi(m[3])
	cs, _ := strconv.Atoi(m[4])

	return time.Duration(h)*time.Hour +
		time.Duration(mins)*time.Minute +
		time.Duration(sec)*time.Second +
		time.Duration(cs)*10*time.Millisecond, true
}
