// Package source supplies the ordered segment URLs a download consumes.
//
// Playlist parsing and quality selection live outside this module; a
// [Provider] is the narrow interface through which their results arrive.
package source

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"
)

// ErrUnknownQuality is returned when a provider has nothing for a quality.
var ErrUnknownQuality = errors.New("source: unknown quality")

// Provider lists the segments of a stream.
type Provider interface {
	// Segments returns the segment URLs for quality, in stream order.
	Segments(ctx context.Context, quality string) ([]string, error)

	// BaseURL returns the URL of the master playlist.
	BaseURL() string

	// ManifestForQuality returns the media playlist name for quality,
	// relative to BaseURL.
	ManifestForQuality(quality string) (string, error)
}

// Static is a Provider backed by in-memory data.
type Static struct {
	// Base is the master playlist URL.
	Base string

	// URLs are returned for any quality not present in ByQuality. A nil
	// slice means there is no default list; an empty one is a valid stream.
	URLs []string

	// ByQuality maps a quality to its segment URLs.
	ByQuality map[string][]string

	// Manifests maps a quality to its media playlist name.
	Manifests map[string]string
}

// Segments implements Provider. The returned slice is a copy.
func (s *Static) Segments(_ context.Context, quality string) ([]string, error) {
	urls, ok := s.ByQuality[quality]
	if !ok {
		if s.URLs == nil {
			return nil, fmt.Errorf("%w: %q", ErrUnknownQuality, quality)
		}
		urls = s.URLs
	}

	out := make([]string, len(urls))
	copy(out, urls)
	return out, nil
}

// BaseURL implements Provider.
func (s *Static) BaseURL() string {
	return s.Base
}

// ManifestForQuality implements Provider.
func (s *Static) ManifestForQuality(quality string) (string, error) {
	m, ok := s.Manifests[quality]
	if !ok || m == "" {
		return "", fmt.Errorf("%w: %q", ErrUnknownQuality, quality)
	}
	return m, nil
}

// LoadList reads newline-separated absolute segment URLs. Blank lines and
// lines starting with '#' are skipped.
func LoadList(r io.Reader) ([]string, error) {
	urls := []string{}

	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		u, err := url.Parse(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return nil, fmt.Errorf("line %d: not an http(s) url: %q", lineNo, line)
		}

		urls = append(urls, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read segment list: %w", err)
	}

	return urls, nil
}

// LoadListFile reads a segment list from path. "-" reads standard input.
func LoadListFile(path string) ([]string, error) {
	if path == "-" {
		return LoadList(os.Stdin)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open segment list: %w", err)
	}
	defer f.Close()

	return LoadList(f)
}
