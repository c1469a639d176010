// Package config defines configuration structures for the segslurp CLI.
//
// Configuration can be provided via, in increasing precedence:
//   - YAML configuration file
//   - Environment variables (SEGSLURP_ prefix)
//   - Command-line flags
//
// # Structure
//
//	type Config struct {
//	    List          string
//	    ManifestURL   string
//	    MediaPlaylist string
//	    Quality       string
//	    Output        string
//	    Bucket        string
//	    Strategy      string // threaded, sequential or ffmpeg
//	    Workers       int
//	    Start         int
//	    Progress      bool
//	    LogLevel      string
//	    LogFormat     string
//	    FFmpegPath    string
//	    Timeout       time.Duration
//	    Retry         RetryConfig
//	}
//
//	type RetryConfig struct {
//	    Attempts   int
//	    Backoff    time.Duration
//	    MaxBackoff time.Duration
//	}
package config
