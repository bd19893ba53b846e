package config

import (
	"fmt"
	"strings"

	"bilisub/internal/language"
)

func (c *Config) normalize() error {
	var err error
	if c.Paths.OutputDir, err = expandPath(c.Paths.OutputDir); err != nil {
		return fmt.Errorf("output_dir: %w", err)
	}
	if c.Paths.TempDir, err = expandPath(c.Paths.TempDir); err != nil {
		return fmt.Errorf("temp_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("log_dir: %w", err)
	}
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("state_dir: %w", err)
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	if c.Paths.APIBind == "" {
		c.Paths.APIBind = defaultAPIBind
	}

	c.normalizeSubtitles()
	c.normalizeRecognition()
	c.normalizePlatform()
	c.normalizeService()

	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	return nil
}

func (c *Config) normalizeSubtitles() {
	formats := make([]string, 0, len(c.Subtitles.Formats))
	seen := make(map[string]struct{}, len(c.Subtitles.Formats))
	for _, format := range c.Subtitles.Formats {
		format = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(format)), ".")
		if format == "" {
			continue
		}
		if _, ok := seen[format]; ok {
			continue
		}
		seen[format] = struct{}{}
		formats = append(formats, format)
	}
	if len(formats) == 0 {
		formats = []string{"srt"}
	}
	c.Subtitles.Formats = formats

	c.Subtitles.Languages = language.NormalizeList(c.Subtitles.Languages)
	if len(c.Subtitles.Languages) == 0 {
		c.Subtitles.Languages = []string{"zh-CN"}
	}

	patterns := c.Subtitles.Denylist[:0]
	for _, pattern := range c.Subtitles.Denylist {
		if strings.TrimSpace(pattern) != "" {
			patterns = append(patterns, pattern)
		}
	}
	c.Subtitles.Denylist = patterns
}

func (c *Config) normalizeRecognition() {
	c.Recognition.Model = strings.TrimSpace(c.Recognition.Model)
	if c.Recognition.Model == "" {
		c.Recognition.Model = defaultRecognitionModel
	}
	c.Recognition.Language = strings.TrimSpace(c.Recognition.Language)
	if c.Recognition.Language == "" {
		c.Recognition.Language = defaultRecognitionLang
	}
	c.Recognition.Binary = strings.TrimSpace(c.Recognition.Binary)
	if c.Recognition.Binary == "" {
		c.Recognition.Binary = defaultWhisperBinary
	}
}

func (c *Config) normalizePlatform() {
	c.Platform.BaseURL = strings.TrimRight(strings.TrimSpace(c.Platform.BaseURL), "/")
	if c.Platform.BaseURL == "" {
		c.Platform.BaseURL = defaultBaseURL
	}
	c.Platform.PageURL = strings.TrimRight(strings.TrimSpace(c.Platform.PageURL), "/")
	if c.Platform.PageURL == "" {
		c.Platform.PageURL = defaultPageURL
	}
	c.Platform.Proxy = strings.TrimSpace(c.Platform.Proxy)
	c.Platform.AudioFetcher = strings.ToLower(strings.TrimSpace(c.Platform.AudioFetcher))
	if c.Platform.AudioFetcher == "" {
		c.Platform.AudioFetcher = AudioFetcherHTTP
	}
	c.Platform.YtdlpBinary = strings.TrimSpace(c.Platform.YtdlpBinary)
	if c.Platform.YtdlpBinary == "" {
		c.Platform.YtdlpBinary = defaultYtdlpBinary
	}
}

func (c *Config) normalizeService() {
	c.Service.DownloadTokenSecret = strings.TrimSpace(c.Service.DownloadTokenSecret)
	origins := c.Service.CORSOrigins[:0]
	for _, origin := range c.Service.CORSOrigins {
		if origin = strings.TrimSpace(origin); origin != "" {
			origins = append(origins, origin)
		}
	}
	c.Service.CORSOrigins = origins
	for i := range c.Service.Clients {
		c.Service.Clients[i].ID = strings.TrimSpace(c.Service.Clients[i].ID)
		c.Service.Clients[i].KeyHash = strings.TrimSpace(c.Service.Clients[i].KeyHash)
	}
}
