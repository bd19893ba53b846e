package config

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

var knownFormats = map[string]struct{}{
	"srt": {}, "ass": {}, "vtt": {}, "json": {}, "txt": {}, "lrc": {},
}

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if c.Runner.Concurrency < 1 {
		add("runner.concurrency must be at least 1")
	}
	if c.Runner.RequestIntervalSeconds < 0 {
		add("runner.request_interval_seconds must be non-negative")
	}
	if c.Runner.RetryAttempts < 1 {
		add("runner.retry_attempts must be at least 1")
	}
	if c.Runner.BackoffInitialMS < 0 || c.Runner.BackoffMaxSeconds < 0 {
		add("runner backoff values must be non-negative")
	}
	if c.Runner.ItemTimeoutSeconds <= 0 {
		add("runner.item_timeout_seconds must be positive")
	}
	if c.Runner.RequestTimeoutSeconds <= 0 {
		add("runner.request_timeout_seconds must be positive")
	}

	for _, format := range c.Subtitles.Formats {
		if _, ok := knownFormats[format]; !ok {
			add("subtitles.formats: unsupported format %q", format)
		}
	}
	if c.Subtitles.MergeGapMS < 0 {
		add("subtitles.merge_gap_ms must be non-negative")
	}
	for _, pattern := range c.Subtitles.Denylist {
		if _, err := regexp.Compile(pattern); err != nil {
			add("subtitles.denylist: invalid pattern %q: %v", pattern, err)
		}
	}

	if c.Recognition.NoSpeechThreshold < 0 || c.Recognition.NoSpeechThreshold > 1 {
		add("recognition.no_speech_threshold must be between 0 and 1")
	}

	for name, raw := range map[string]string{"platform.base_url": c.Platform.BaseURL, "platform.page_url": c.Platform.PageURL} {
		if u, err := url.Parse(raw); err != nil || u.Scheme == "" || u.Host == "" {
			add("%s must be an absolute URL", name)
		}
	}
	if c.Platform.Proxy != "" {
		if _, err := url.Parse(c.Platform.Proxy); err != nil {
			add("platform.proxy: %v", err)
		}
	}
	switch c.Platform.AudioFetcher {
	case AudioFetcherHTTP, AudioFetcherYtdlp:
	default:
		add("platform.audio_fetcher must be %q or %q", AudioFetcherHTTP, AudioFetcherYtdlp)
	}

	if c.Service.RateLimitWindowSeconds <= 0 {
		add("service.rate_limit_window_seconds must be positive")
	}
	if c.Service.RateLimitRequests < 0 {
		add("service.rate_limit_requests must be non-negative")
	}
	if c.Service.DownloadTokenTTLSeconds <= 0 {
		add("service.download_token_ttl_seconds must be positive")
	}
	seen := make(map[string]struct{}, len(c.Service.Clients))
	for i, client := range c.Service.Clients {
		if client.ID == "" {
			add("service.clients[%d].id is required", i)
			continue
		}
		if _, dup := seen[client.ID]; dup {
			add("service.clients: duplicate id %q", client.ID)
		}
		seen[client.ID] = struct{}{}
		if !strings.HasPrefix(client.KeyHash, "$2") {
			add("service.clients[%s].key_hash must be a bcrypt hash", client.ID)
		}
		if client.RateLimit < 0 {
			add("service.clients[%s].rate_limit must be non-negative", client.ID)
		}
	}

	switch c.Logging.Format {
	case "console", "json":
	default:
		add("logging.format must be console or json")
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "warning", "error":
	default:
		add("logging.level %q is not recognized", c.Logging.Level)
	}

	if len(errs) == 0 {
		return nil
	}
	return errors.Join(errs...)
}

// Client returns the configured client with the given id.
func (c *Config) Client(id string) (Client, bool) {
	for _, client := range c.Service.Clients {
		if client.ID == id {
			return client, true
		}
	}
	return Client{}, false
}
