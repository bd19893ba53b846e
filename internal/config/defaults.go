package config

const (
	defaultConfigPath       = "~/.config/bilisub/config.toml"
	projectConfigName       = "bilisub.toml"
	defaultOutputDir        = "./output"
	defaultTempDir          = "~/.cache/bilisub/tmp"
	defaultLogDir           = "~/.local/share/bilisub/logs"
	defaultStateDir         = "~/.local/share/bilisub"
	defaultAPIBind          = "127.0.0.1:8000"
	defaultConcurrency      = 3
	defaultRequestInterval  = 1.5
	defaultRetryAttempts    = 5
	defaultBackoffInitialMS = 500
	defaultBackoffMaxSec    = 30
	defaultItemTimeoutSec   = 1800
	defaultRequestTimeout   = 30
	defaultMergeGapMS       = 500
	defaultRecognitionModel = "small"
	defaultRecognitionLang  = "zh"
	defaultNoSpeech         = 0.5
	defaultWhisperBinary    = "whisper"
	defaultYtdlpBinary      = "yt-dlp"
	defaultBaseURL          = "https://api.bilibili.com"
	defaultPageURL          = "https://www.bilibili.com"
	defaultRateWindowSec    = 60
	defaultRateRequests     = 10
	defaultTokenTTLSec      = 3600
	defaultNotifyTimeout    = 10
	defaultLogFormat        = "console"
	defaultLogLevel         = "info"

	AudioFetcherHTTP  = "http"
	AudioFetcherYtdlp = "ytdlp"

	redactedValue = "<redacted>"
)

// DefaultDenylist holds the promotional and boilerplate patterns stripped from
// subtitle text before merging.
var DefaultDenylist = []string{
	`关注.*?获取更多精彩内容`,
	`#.*?#`,
	`\s*—{2,}\s*`,
	`(?i)https?://\S+`,
	`(?i)\bwww\.\S+`,
}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			OutputDir: defaultOutputDir,
			TempDir:   defaultTempDir,
			LogDir:    defaultLogDir,
			StateDir:  defaultStateDir,
			APIBind:   defaultAPIBind,
		},
		Runner: Runner{
			Concurrency:            defaultConcurrency,
			RequestIntervalSeconds: defaultRequestInterval,
			RetryAttempts:          defaultRetryAttempts,
			BackoffInitialMS:       defaultBackoffInitialMS,
			BackoffMaxSeconds:      defaultBackoffMaxSec,
			ItemTimeoutSeconds:     defaultItemTimeoutSec,
			RequestTimeoutSeconds:  defaultRequestTimeout,
		},
		Subtitles: Subtitles{
			Formats:    []string{"srt"},
			Languages:  []string{"zh-CN"},
			MergeGapMS: defaultMergeGapMS,
			Denylist:   append([]string(nil), DefaultDenylist...),
		},
		Recognition: Recognition{
			Enabled:           true,
			Model:             defaultRecognitionModel,
			Language:          defaultRecognitionLang,
			NoSpeechThreshold: defaultNoSpeech,
			Binary:            defaultWhisperBinary,
		},
		Platform: Platform{
			BaseURL:      defaultBaseURL,
			PageURL:      defaultPageURL,
			AudioFetcher: AudioFetcherHTTP,
			YtdlpBinary:  defaultYtdlpBinary,
		},
		Service: Service{
			RateLimitWindowSeconds:  defaultRateWindowSec,
			RateLimitRequests:       defaultRateRequests,
			DownloadTokenTTLSeconds: defaultTokenTTLSec,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyTimeout,
			WebhookTimeout: defaultNotifyTimeout,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
