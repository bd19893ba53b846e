package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	OutputDir string `toml:"output_dir"`
	TempDir   string `toml:"temp_dir"`
	LogDir    string `toml:"log_dir"`
	StateDir  string `toml:"state_dir"`
	APIBind   string `toml:"api_bind"`
}

// Runner contains concurrency, pacing, retry, and timeout settings.
type Runner struct {
	Concurrency            int     `toml:"concurrency"`
	RequestIntervalSeconds float64 `toml:"request_interval_seconds"`
	RetryAttempts          int     `toml:"retry_attempts"`
	BackoffInitialMS       int     `toml:"backoff_initial_ms"`
	BackoffMaxSeconds      int     `toml:"backoff_max_seconds"`
	ItemTimeoutSeconds     int     `toml:"item_timeout_seconds"`
	RequestTimeoutSeconds  int     `toml:"request_timeout_seconds"`
}

// Subtitles contains output and synthesis settings.
type Subtitles struct {
	Formats    []string `toml:"formats"`
	Languages  []string `toml:"languages"`
	MergeGapMS int      `toml:"merge_gap_ms"`
	Denylist   []string `toml:"denylist"`
}

// Recognition contains speech-recognition fallback settings.
type Recognition struct {
	Enabled           bool    `toml:"enabled"`
	Model             string  `toml:"model"`
	Language          string  `toml:"language"`
	NoSpeechThreshold float64 `toml:"no_speech_threshold"`
	Binary            string  `toml:"binary"`
	SaveAudio         bool    `toml:"save_audio"`
}

// Platform contains settings for the video platform client.
type Platform struct {
	BaseURL      string `toml:"base_url"`
	PageURL      string `toml:"page_url"`
	UserAgent    string `toml:"user_agent"`
	Proxy        string `toml:"proxy"`
	AudioFetcher string `toml:"audio_fetcher"`
	YtdlpBinary  string `toml:"ytdlp_binary"`
}

// Client is one API consumer of the service daemon.
type Client struct {
	ID        string `toml:"id"`
	KeyHash   string `toml:"key_hash"`
	RateLimit int    `toml:"rate_limit"`
	Admin     bool   `toml:"admin"`
}

// Service contains HTTP service settings.
type Service struct {
	RateLimitWindowSeconds  int      `toml:"rate_limit_window_seconds"`
	RateLimitRequests       int      `toml:"rate_limit_requests"`
	DownloadTokenSecret     string   `toml:"download_token_secret"`
	DownloadTokenTTLSeconds int      `toml:"download_token_ttl_seconds"`
	CORSOrigins             []string `toml:"cors_origins"`
	Clients                 []Client `toml:"clients"`
}

// Notifications contains completion callback settings.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	WebhookTimeout int    `toml:"webhook_timeout"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for bilisub.
//
// Configuration sections by subsystem:
//   - Paths: output, temp, log, and state directories plus the API bind address
//   - Runner: concurrency, pacing, retry, and timeout budget
//   - Subtitles: output formats, languages, merge gap, cleaning denylist
//   - Recognition: speech-recognition fallback
//   - Platform: video platform endpoints and transport
//   - Service: HTTP API quotas, download tokens, clients
//   - Notifications: webhook and ntfy callbacks
//   - Logging: log format and level
type Config struct {
	Paths         Paths         `toml:"paths"`
	Runner        Runner        `toml:"runner"`
	Subtitles     Subtitles     `toml:"subtitles"`
	Recognition   Recognition   `toml:"recognition"`
	Platform      Platform      `toml:"platform"`
	Service       Service       `toml:"service"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config %s: %w", resolvedPath, err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}
	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		if _, err := os.Stat(expanded); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}
	projectPath, err := filepath.Abs(projectConfigName)
	if err != nil {
		return "", false, err
	}
	for _, candidate := range []string{defaultPath, projectPath} {
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, true, nil
		}
	}
	return defaultPath, false, nil
}

// EnsureDirectories creates the directories the CLI and daemon write into.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.OutputDir, c.Paths.TempDir, c.Paths.LogDir, c.Paths.StateDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// DatabasePath returns the SQLite task database location.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Paths.StateDir, "tasks.db")
}

// LockPath returns the daemon single-instance lock file.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.StateDir, "bilisub.lock")
}

// RequestInterval is the minimum spacing between calls to one remote endpoint.
func (c *Config) RequestInterval() time.Duration {
	return time.Duration(c.Runner.RequestIntervalSeconds * float64(time.Second))
}

// BackoffInitial is the first retry delay before jitter.
func (c *Config) BackoffInitial() time.Duration {
	return time.Duration(c.Runner.BackoffInitialMS) * time.Millisecond
}

// BackoffMax caps the exponential retry delay.
func (c *Config) BackoffMax() time.Duration {
	return time.Duration(c.Runner.BackoffMaxSeconds) * time.Second
}

// ItemTimeout is the wall-clock budget for one task across all retries.
func (c *Config) ItemTimeout() time.Duration {
	return time.Duration(c.Runner.ItemTimeoutSeconds) * time.Second
}

// RequestTimeout bounds a single HTTP exchange with the platform.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.Runner.RequestTimeoutSeconds) * time.Second
}

// MergeGap is the maximum gap between two segments that still merges them.
func (c *Config) MergeGap() time.Duration {
	return time.Duration(c.Subtitles.MergeGapMS) * time.Millisecond
}

// RateLimitWindow is the per-client admission window of the service.
func (c *Config) RateLimitWindow() time.Duration {
	return time.Duration(c.Service.RateLimitWindowSeconds) * time.Second
}

// DownloadTokenTTL is the lifetime of signed download links.
func (c *Config) DownloadTokenTTL() time.Duration {
	return time.Duration(c.Service.DownloadTokenTTLSeconds) * time.Second
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	absolute, err := filepath.Abs(filepath.Clean(pathValue))
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", pathValue, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// Encode renders the effective configuration as TOML. Client key hashes and
// the token secret are redacted.
func (c *Config) Encode() ([]byte, error) {
	redacted := *c
	redacted.Service.Clients = make([]Client, len(c.Service.Clients))
	for i, client := range c.Service.Clients {
		client.KeyHash = redactedValue
		redacted.Service.Clients[i] = client
	}
	if redacted.Service.DownloadTokenSecret != "" {
		redacted.Service.DownloadTokenSecret = redactedValue
	}
	return toml.Marshal(redacted)
}
