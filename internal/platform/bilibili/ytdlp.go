package bilibili

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/lrstanley/go-ytdlp"

	"bilisub/internal/acquire"
	"bilisub/internal/logging"
	"bilisub/internal/services"
	"bilisub/internal/subtitle"
)

// YtdlpOptions configures the yt-dlp audio fetcher.
type YtdlpOptions struct {
	Binary  string
	Proxy   string
	TempDir string
	PageURL string
}

// YtdlpFetcher downloads audio through the yt-dlp binary. It copes with
// streams the DASH endpoint refuses (region locks, bangumi) at the cost of
// an external dependency.
type YtdlpFetcher struct {
	opts   YtdlpOptions
	logger *slog.Logger
}

// NewYtdlpFetcher builds the fetcher.
func NewYtdlpFetcher(opts YtdlpOptions, logger *slog.Logger) *YtdlpFetcher {
	if strings.TrimSpace(opts.Binary) == "" {
		opts.Binary = "yt-dlp"
	}
	if strings.TrimSpace(opts.PageURL) == "" {
		opts.PageURL = defaultPageURL
	}
	return &YtdlpFetcher{opts: opts, logger: logging.NewComponentLogger(logger, "ytdlp")}
}

// FetchAudio downloads the best audio-only format into a private temp
// directory. The returned reader removes the directory on Close.
func (f *YtdlpFetcher) FetchAudio(ctx context.Context, ref subtitle.VideoRef, cred *acquire.Credential) (io.ReadCloser, error) {
	if err := os.MkdirAll(f.opts.TempDir, 0o755); err != nil {
		return nil, services.Classify(services.KindInternal, "ytdlp", err)
	}
	dir, err := os.MkdirTemp(f.opts.TempDir, "ytdlp-*")
	if err != nil {
		return nil, services.Classify(services.KindInternal, "ytdlp", err)
	}
	cleanup := func() { _ = os.RemoveAll(dir) }

	target := ref.URL
	if target == "" {
		bvid, part := ParseInput(ref.ID)
		target = strings.TrimRight(f.opts.PageURL, "/") + "/video/" + bvid
		if part > 1 {
			target += fmt.Sprintf("?p=%d", part)
		}
	}

	cmd := ytdlp.New().
		SetExecutable(f.opts.Binary).
		NoPlaylist().
		NoProgress().
		Format("bestaudio[ext=m4a]/bestaudio").
		Output(filepath.Join(dir, "audio.%(ext)s")).
		AddHeaders("Referer:" + strings.TrimRight(f.opts.PageURL, "/") + "/")
	if proxy := strings.TrimSpace(f.opts.Proxy); proxy != "" {
		cmd = cmd.Proxy(proxy)
	}
	if !cred.Empty() {
		jar := filepath.Join(dir, "cookies.txt")
		if err := writeCookieJar(jar, cred, time.Now()); err != nil {
			cleanup()
			return nil, services.Classify(services.KindInternal, "ytdlp", err)
		}
		cmd = cmd.Cookies(jar)
	}

	started := time.Now()
	if _, err := cmd.Run(ctx, target); err != nil {
		cleanup()
		if ctx.Err() != nil {
			return nil, context.Cause(ctx)
		}
		return nil, services.Classify(services.KindTransientNetwork, "ytdlp", err)
	}
	matches, _ := filepath.Glob(filepath.Join(dir, "audio.*"))
	if len(matches) == 0 {
		cleanup()
		return nil, services.Classify(services.KindNotFound, "ytdlp", errors.New("yt-dlp produced no audio file"))
	}
	file, err := os.Open(matches[0])
	if err != nil {
		cleanup()
		return nil, services.Classify(services.KindInternal, "ytdlp", err)
	}
	logging.WithContext(ctx, f.logger).Debug("audio downloaded via yt-dlp",
		logging.String("video", ref.ID),
		logging.Duration("elapsed", time.Since(started)),
	)
	return &cleanupFile{File: file, cleanup: cleanup}, nil
}

type cleanupFile struct {
	*os.File
	cleanup func()
}

func (c *cleanupFile) Close() error {
	err := c.File.Close()
	c.cleanup()
	return err
}

// writeCookieJar writes cred in the Netscape format yt-dlp reads.
func writeCookieJar(path string, cred *acquire.Credential, now time.Time) error {
	expires := now.Add(24 * time.Hour).Unix()
	var b strings.Builder
	b.WriteString("# Netscape HTTP Cookie File\n")
	for _, kv := range [][2]string{
		{"SESSDATA", cred.SESSDATA},
		{"bili_jct", cred.BiliJCT},
		{"buvid3", cred.BuVID3},
	} {
		if kv[1] == "" {
			continue
		}
		fmt.Fprintf(&b, ".bilibili.com\tTRUE\t/\tTRUE\t%d\t%s\t%s\n", expires, kv[0], kv[1])
	}
	return os.WriteFile(path, []byte(b.String()), 0o600)
}
