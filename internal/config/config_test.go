package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"bilisub/internal/config"
)

func TestLoadDefaultConfigExpandsPaths(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantState := filepath.Join(tempHome, ".local", "share", "bilisub")
	if cfg.Paths.StateDir != wantState {
		t.Fatalf("unexpected state dir: got %q want %q", cfg.Paths.StateDir, wantState)
	}
	if cfg.DatabasePath() != filepath.Join(wantState, "tasks.db") {
		t.Fatalf("unexpected database path: %q", cfg.DatabasePath())
	}
	if !filepath.IsAbs(cfg.Paths.OutputDir) {
		t.Fatalf("expected absolute output dir, got %q", cfg.Paths.OutputDir)
	}
	if cfg.Paths.APIBind != "127.0.0.1:8000" {
		t.Fatalf("unexpected api bind: %q", cfg.Paths.APIBind)
	}
	if cfg.Runner.Concurrency != 3 {
		t.Fatalf("unexpected concurrency: %d", cfg.Runner.Concurrency)
	}
	if cfg.RequestInterval() != 1500*time.Millisecond {
		t.Fatalf("unexpected request interval: %s", cfg.RequestInterval())
	}
	if cfg.Runner.RetryAttempts != 5 {
		t.Fatalf("unexpected retry attempts: %d", cfg.Runner.RetryAttempts)
	}
	if cfg.ItemTimeout() != 30*time.Minute {
		t.Fatalf("unexpected item timeout: %s", cfg.ItemTimeout())
	}
	if got := strings.Join(cfg.Subtitles.Formats, ","); got != "srt" {
		t.Fatalf("unexpected formats: %q", got)
	}
	if got := strings.Join(cfg.Subtitles.Languages, ","); got != "zh-CN" {
		t.Fatalf("unexpected languages: %q", got)
	}
	if !cfg.Recognition.Enabled || cfg.Recognition.Model != "small" {
		t.Fatalf("unexpected recognition defaults: %+v", cfg.Recognition)
	}
	if cfg.Platform.AudioFetcher != config.AudioFetcherHTTP {
		t.Fatalf("unexpected audio fetcher: %q", cfg.Platform.AudioFetcher)
	}
}

func TestLoadCustomConfigNormalizes(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)

	configPath := filepath.Join(t.TempDir(), "config.toml")
	content := `
[paths]
output_dir = "~/subs"

[runner]
concurrency = 5

[subtitles]
formats = [" SRT", ".vtt", "srt", "json"]
languages = ["zh_cn", "english", "zh-CN"]
denylist = ["", "广告"]

[platform]
base_url = "https://api.example.com/"
audio_fetcher = "YTDLP"

[logging]
format = "JSON"
level = "DEBUG"
`
	if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists || resolved != configPath {
		t.Fatalf("expected custom config to be used, got %q exists=%v", resolved, exists)
	}
	if cfg.Paths.OutputDir != filepath.Join(tempHome, "subs") {
		t.Fatalf("unexpected output dir: %q", cfg.Paths.OutputDir)
	}
	if cfg.Runner.Concurrency != 5 {
		t.Fatalf("unexpected concurrency: %d", cfg.Runner.Concurrency)
	}
	if got := strings.Join(cfg.Subtitles.Formats, ","); got != "srt,vtt,json" {
		t.Fatalf("unexpected formats: %q", got)
	}
	if got := strings.Join(cfg.Subtitles.Languages, ","); got != "zh-CN,en" {
		t.Fatalf("unexpected languages: %q", got)
	}
	if len(cfg.Subtitles.Denylist) != 1 || cfg.Subtitles.Denylist[0] != "广告" {
		t.Fatalf("unexpected denylist: %v", cfg.Subtitles.Denylist)
	}
	if cfg.Platform.BaseURL != "https://api.example.com" {
		t.Fatalf("expected trailing slash trimmed, got %q", cfg.Platform.BaseURL)
	}
	if cfg.Platform.AudioFetcher != config.AudioFetcherYtdlp {
		t.Fatalf("unexpected audio fetcher: %q", cfg.Platform.AudioFetcher)
	}
	if cfg.Logging.Format != "json" || cfg.Logging.Level != "debug" {
		t.Fatalf("unexpected logging: %+v", cfg.Logging)
	}
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	configPath := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(configPath, []byte("[runner]\nworkers = 2\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, _, _, err := config.Load(configPath); err == nil {
		t.Fatal("expected unknown field to be rejected")
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := map[string]func(*config.Config){
		"concurrency":   func(c *config.Config) { c.Runner.Concurrency = 0 },
		"format":        func(c *config.Config) { c.Subtitles.Formats = []string{"sub"} },
		"denylist":      func(c *config.Config) { c.Subtitles.Denylist = []string{"(unclosed"} },
		"threshold":     func(c *config.Config) { c.Recognition.NoSpeechThreshold = 1.5 },
		"fetcher":       func(c *config.Config) { c.Platform.AudioFetcher = "ftp" },
		"client hash":   func(c *config.Config) { c.Service.Clients = []config.Client{{ID: "a", KeyHash: "plain"}} },
		"duplicate id":  func(c *config.Config) { c.Service.Clients = []config.Client{{ID: "a", KeyHash: "$2a$x"}, {ID: "a", KeyHash: "$2a$y"}} },
		"log format":    func(c *config.Config) { c.Logging.Format = "xml" },
		"item timeout":  func(c *config.Config) { c.Runner.ItemTimeoutSeconds = 0 },
		"platform base": func(c *config.Config) { c.Platform.BaseURL = "not a url" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := config.Default()
			mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatalf("expected validation error for %s", name)
			}
		})
	}

	cfg := config.Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}

func TestCreateSampleRoundTrips(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample: %v", err)
	}
	cfg, _, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("sample config should load: %v", err)
	}
	if !exists {
		t.Fatal("expected sample to exist")
	}
	if len(cfg.Subtitles.Denylist) != len(config.DefaultDenylist) {
		t.Fatalf("sample denylist drifted from defaults: %v", cfg.Subtitles.Denylist)
	}
}

func TestEncodeRedactsSecrets(t *testing.T) {
	cfg := config.Default()
	cfg.Service.DownloadTokenSecret = "s3cret"
	cfg.Service.Clients = []config.Client{{ID: "web", KeyHash: "$2a$10$abc"}}
	data, err := cfg.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	text := string(data)
	if strings.Contains(text, "s3cret") || strings.Contains(text, "$2a$10$abc") {
		t.Fatalf("expected secrets redacted:\n%s", text)
	}
	if cfg.Service.Clients[0].KeyHash != "$2a$10$abc" {
		t.Fatal("Encode must not mutate the receiver")
	}
}

func TestEnsureDirectories(t *testing.T) {
	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.OutputDir = filepath.Join(base, "out")
	cfg.Paths.TempDir = filepath.Join(base, "tmp")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Paths.StateDir = filepath.Join(base, "state")
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	for _, dir := range []string{cfg.Paths.OutputDir, cfg.Paths.TempDir, cfg.Paths.LogDir, cfg.Paths.StateDir} {
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			t.Fatalf("expected directory %s", dir)
		}
	}
}
