package bilibili

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"bilisub/internal/acquire"
	"bilisub/internal/config"
	"bilisub/internal/logging"
	"bilisub/internal/platform/httpx"
	"bilisub/internal/services"
	"bilisub/internal/subtitle"
	"bilisub/internal/synth"
	"bilisub/internal/workflow"
)

const (
	defaultBaseURL = "https://api.bilibili.com"
	defaultPageURL = "https://www.bilibili.com"
)

// AudioFetcher downloads the audio stream of a resolved video.
type AudioFetcher interface {
	FetchAudio(ctx context.Context, ref subtitle.VideoRef, cred *acquire.Credential) (io.ReadCloser, error)
}

// Client talks to the bilibili web API.
type Client struct {
	http    *http.Client
	baseURL string
	pageURL string
	audio   AudioFetcher
	logger  *slog.Logger

	mu   sync.Mutex
	cids map[string]int64
}

// Option customizes a Client.
type Option func(*Client)

// WithAudioFetcher replaces the built-in DASH audio download.
func WithAudioFetcher(f AudioFetcher) Option {
	return func(c *Client) { c.audio = f }
}

// WithEndpoints points the client at other API and page hosts.
func WithEndpoints(baseURL, pageURL string) Option {
	return func(c *Client) {
		if baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/"); baseURL != "" {
			c.baseURL = baseURL
		}
		if pageURL = strings.TrimRight(strings.TrimSpace(pageURL), "/"); pageURL != "" {
			c.pageURL = pageURL
		}
	}
}

// New builds a client over httpClient.
func New(httpClient *http.Client, logger *slog.Logger, opts ...Option) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	c := &Client{
		http:    httpClient,
		baseURL: defaultBaseURL,
		pageURL: defaultPageURL,
		logger:  logging.NewComponentLogger(logger, "bilibili"),
		cids:    make(map[string]int64),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewFromConfig builds the shared paced HTTP client and the configured audio
// fetcher.
func NewFromConfig(cfg *config.Config, logger *slog.Logger) (*Client, error) {
	httpClient, err := httpx.NewClient(httpx.OptionsFromConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("bilibili: http client: %w", err)
	}
	opts := []Option{WithEndpoints(cfg.Platform.BaseURL, cfg.Platform.PageURL)}
	if cfg.Platform.AudioFetcher == config.AudioFetcherYtdlp {
		opts = append(opts, WithAudioFetcher(NewYtdlpFetcher(YtdlpOptions{
			Binary:  cfg.Platform.YtdlpBinary,
			Proxy:   cfg.Platform.Proxy,
			TempDir: cfg.Paths.TempDir,
			PageURL: cfg.Platform.PageURL,
		}, logger)))
	}
	return New(httpClient, logger, opts...), nil
}

// Resolve turns an input into a video reference.
func (c *Client) Resolve(ctx context.Context, input string) (subtitle.VideoRef, error) {
	input = strings.TrimSpace(input)
	bvid, part := ParseInput(input)
	if bvid == "" && IsLink(input) {
		var err error
		if bvid, part, err = c.followLink(ctx, input); err != nil {
			return subtitle.VideoRef{}, err
		}
	}
	if bvid == "" {
		return subtitle.VideoRef{}, services.Classify(services.KindInvalidInput, "resolve",
			fmt.Errorf("no BV id in %q", input))
	}

	ref, err := c.view(ctx, bvid, part)
	if err == nil {
		return ref, nil
	}
	switch services.KindOf(err) {
	case services.KindRateLimited, services.KindTransientNetwork:
	default:
		return subtitle.VideoRef{}, err
	}
	logging.WarnWithContext(logging.WithContext(ctx, c.logger), "view api unavailable; scraping video page", "resolve_fallback",
		logging.String("bvid", bvid),
		logging.Error(err),
		logging.String(logging.FieldErrorHint, "raise runner.request_interval_seconds if throttling persists"),
	)
	scraped, scrapeErr := c.scrapePage(ctx, bvid, part)
	if scrapeErr != nil {
		return subtitle.VideoRef{}, errors.Join(err, scrapeErr)
	}
	return scraped, nil
}

func (c *Client) view(ctx context.Context, bvid string, part int) (subtitle.VideoRef, error) {
	var data viewData
	endpoint := c.baseURL + "/x/web-interface/view?bvid=" + url.QueryEscape(bvid)
	if err := c.getAPI(ctx, "view", endpoint, nil, &data); err != nil {
		return subtitle.VideoRef{}, err
	}
	title := strings.TrimSpace(data.Title)
	cid := data.CID
	duration := data.Duration
	if idx := slices.IndexFunc(data.Pages, func(p viewPage) bool { return p.Page == part }); idx >= 0 {
		page := data.Pages[idx]
		cid = page.CID
		if page.Duration > 0 {
			duration = page.Duration
		}
		if len(data.Pages) > 1 && strings.TrimSpace(page.Part) != "" {
			title = title + "_" + strings.TrimSpace(page.Part)
		}
	} else if part > 1 {
		return subtitle.VideoRef{}, services.Classify(services.KindNotFound, "view",
			fmt.Errorf("%s has no part %d", bvid, part))
	}
	if cid == 0 {
		return subtitle.VideoRef{}, services.Classify(services.KindNotFound, "view",
			fmt.Errorf("%s has no playable part", bvid))
	}

	width, height := data.Dimension.Width, data.Dimension.Height
	if data.Dimension.Rotate == 1 {
		width, height = height, width
	}
	ref := subtitle.VideoRef{
		ID:       VideoID(bvid, part),
		Title:    title,
		URL:      c.videoURL(bvid, part),
		Duration: time.Duration(duration * float64(time.Second)),
		Width:    width,
		Height:   height,
	}
	c.rememberCID(ref.ID, cid)
	return ref, nil
}

// ListSubtitles lists every subtitle track of the part and downloads each
// body. A track whose body fails to download is skipped; the listing call
// itself failing is an error.
func (c *Client) ListSubtitles(ctx context.Context, ref subtitle.VideoRef, cred *acquire.Credential) ([]acquire.Track, error) {
	bvid, cid, err := c.partOf(ctx, ref)
	if err != nil {
		return nil, err
	}
	var data playerData
	endpoint := fmt.Sprintf("%s/x/player/v2?bvid=%s&cid=%d", c.baseURL, url.QueryEscape(bvid), cid)
	if err := c.getAPI(ctx, "subtitles", endpoint, cred, &data); err != nil {
		return nil, err
	}
	logger := logging.WithContext(ctx, c.logger)
	entries := data.Subtitle.Subtitles
	if len(entries) == 0 && data.NeedLoginSubtitle && cred.Empty() {
		logger.Info("subtitles require login; none listed anonymously",
			logging.String("bvid", bvid),
			logging.String(logging.FieldEventType, "subtitles_need_login"),
		)
	}

	tracks := make([]acquire.Track, 0, len(entries))
	for _, entry := range entries {
		if ctx.Err() != nil {
			return nil, context.Cause(ctx)
		}
		cues, err := c.fetchBody(ctx, entry.SubtitleURL, cred)
		if err != nil {
			if ctx.Err() != nil {
				return nil, context.Cause(ctx)
			}
			logging.WarnWithContext(logger, "subtitle body download failed", "subtitle_body_failed",
				logging.String("language", entry.Lan),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "the track is skipped"),
			)
			continue
		}
		tracks = append(tracks, acquire.Track{
			Language:      entry.Lan,
			AutoGenerated: entry.AIType > 0 || strings.HasPrefix(entry.Lan, "ai-"),
			Cues:          cues,
		})
	}
	return tracks, nil
}

func (c *Client) fetchBody(ctx context.Context, rawURL string, cred *acquire.Credential) ([]synth.Cue, error) {
	rawURL = absoluteURL(rawURL)
	if rawURL == "" {
		return nil, services.Classify(services.KindNotFound, "subtitle body", errors.New("track has no url"))
	}
	resp, err := c.get(ctx, "subtitle body", rawURL, cred)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	var body subtitleBody
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxJSONBody)).Decode(&body); err != nil {
		return nil, httpx.ClassifyError(ctx, "subtitle body", fmt.Errorf("decode: %w", err))
	}
	cues := make([]synth.Cue, 0, len(body.Body))
	for _, line := range body.Body {
		cues = append(cues, synth.Cue{Start: line.From, End: line.To, Text: line.Content})
	}
	return cues, nil
}

// FetchAudio returns the highest-bandwidth DASH audio stream, falling back
// to the progressive stream for videos without DASH.
func (c *Client) FetchAudio(ctx context.Context, ref subtitle.VideoRef, cred *acquire.Credential) (io.ReadCloser, error) {
	if c.audio != nil {
		return c.audio.FetchAudio(ctx, ref, cred)
	}
	bvid, cid, err := c.partOf(ctx, ref)
	if err != nil {
		return nil, err
	}
	var data playURLData
	endpoint := fmt.Sprintf("%s/x/player/playurl?bvid=%s&cid=%d&fnval=16&fnver=0&fourk=1", c.baseURL, url.QueryEscape(bvid), cid)
	if err := c.getAPI(ctx, "playurl", endpoint, cred, &data); err != nil {
		return nil, err
	}
	streamURL := ""
	if data.Dash != nil && len(data.Dash.Audio) > 0 {
		best := slices.MaxFunc(data.Dash.Audio, func(a, b dashStream) int {
			switch {
			case a.Bandwidth < b.Bandwidth:
				return -1
			case a.Bandwidth > b.Bandwidth:
				return 1
			}
			return 0
		})
		streamURL = best.url()
	} else if len(data.Durl) > 0 {
		streamURL = data.Durl[0].URL
	}
	if streamURL == "" {
		return nil, services.Classify(services.KindNotFound, "playurl", fmt.Errorf("no audio stream for %s", ref.ID))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, absoluteURL(streamURL), nil)
	if err != nil {
		return nil, services.Classify(services.KindInternal, "audio", err)
	}
	req.Header.Set("Range", "bytes=0-")
	req.Header.Set("Referer", c.videoURL(bvid, 1))
	if cookie := cred.Cookie(); cookie != "" {
		req.Header.Set("Cookie", cookie)
	}
	// Streams can run past the per-request budget; the item timeout bounds them.
	streamClient := *c.http
	streamClient.Timeout = 0
	resp, err := streamClient.Do(req)
	if err != nil {
		return nil, httpx.ClassifyError(ctx, "audio", err)
	}
	if err := httpx.Check("audio", resp); err != nil {
		return nil, err
	}
	return resp.Body, nil
}

// HealthCheck reports whether the API host answers.
func (c *Client) HealthCheck(ctx context.Context) workflow.Health {
	const name = "bilibili"
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	err := c.getAPI(ctx, "health", c.baseURL+"/x/web-interface/nav", nil, nil)
	// Anonymous nav answers -101; reaching the envelope is enough.
	if err == nil || services.KindOf(err) == services.KindAuthRejected {
		return workflow.Healthy(name)
	}
	return workflow.Unhealthy(name, err.Error())
}

// partOf returns the BV id and cid backing ref, resolving again when the
// cid is not cached.
func (c *Client) partOf(ctx context.Context, ref subtitle.VideoRef) (string, int64, error) {
	bvid, part := ParseInput(ref.ID)
	if bvid == "" {
		return "", 0, services.Classify(services.KindInvalidInput, "part", fmt.Errorf("bad video id %q", ref.ID))
	}
	if cid, ok := c.cachedCID(ref.ID); ok {
		return bvid, cid, nil
	}
	resolved, err := c.view(ctx, bvid, part)
	if err != nil {
		return "", 0, err
	}
	cid, _ := c.cachedCID(resolved.ID)
	return bvid, cid, nil
}

func (c *Client) rememberCID(id string, cid int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cids[id] = cid
}

func (c *Client) cachedCID(id string) (int64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cid, ok := c.cids[id]
	return cid, ok
}

func (c *Client) videoURL(bvid string, part int) string {
	u := c.pageURL + "/video/" + bvid
	if part > 1 {
		u += "?p=" + strconv.Itoa(part)
	}
	return u
}

// absoluteURL fixes the protocol-relative urls the API returns.
func absoluteURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "//") {
		return "https:" + raw
	}
	return raw
}
