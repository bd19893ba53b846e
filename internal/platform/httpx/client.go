package httpx

import (
	"errors"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"bilisub/internal/config"
	"bilisub/internal/runner"
)

const defaultTimeout = 30 * time.Second

// Options configures NewClient.
type Options struct {
	// Proxy is an http(s) or socks5 URL. Empty means direct.
	Proxy string
	// UserAgent pins one agent string; empty rotates through the pool.
	UserAgent string
	// Referer is set on requests that carry none.
	Referer string
	Timeout time.Duration
	// RetryMax is the number of replays after the first attempt.
	RetryMax int
	Pacer    *runner.Pacer
}

// OptionsFromConfig maps the platform and runner sections onto Options.
// Transport replays stay off: platform calls already run under the runner's
// retry policy and its attempt ceiling.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Proxy:     cfg.Platform.Proxy,
		UserAgent: cfg.Platform.UserAgent,
		Referer:   strings.TrimRight(cfg.Platform.PageURL, "/") + "/",
		Timeout:   cfg.RequestTimeout(),
		Pacer:     runner.NewPacer(cfg.RequestInterval()),
	}
}

// Transport applies user agent, referer, and bounded replay on top of Base.
type Transport struct {
	Base      http.RoundTripper
	UserAgent string
	Referer   string
	RetryMax  int
	// DisableKeepAlives marks each request Close so proxied calls never reuse
	// a connection even when Base is swapped.
	DisableKeepAlives bool

	ua *uaPool
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req == nil {
		return nil, errors.New("nil request")
	}
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}

	// Only bodiless GET/HEAD requests are safe to replay.
	replayable := (req.Method == http.MethodGet || req.Method == http.MethodHead) && req.Body == nil
	limit := max(t.RetryMax, 0)
	if !replayable {
		limit = 0
	}

	var lastErr error
	for attempt := 0; attempt <= limit; attempt++ {
		r := req.Clone(req.Context())
		if r.Header.Get("User-Agent") == "" {
			r.Header.Set("User-Agent", t.userAgent())
		}
		if r.Header.Get("Referer") == "" && t.Referer != "" {
			r.Header.Set("Referer", t.Referer)
		}
		if t.DisableKeepAlives {
			r.Close = true
		}
		resp, err := base.RoundTrip(r)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if req.Context().Err() != nil {
			return nil, lastErr
		}
	}
	return nil, lastErr
}

func (t *Transport) userAgent() string {
	if t.UserAgent != "" {
		return t.UserAgent
	}
	if t.ua == nil {
		return defaultPool.random()
	}
	return t.ua.random()
}

// NewClient builds the shared client. The returned transport chain is
// Transport -> runner.PacedTransport -> *http.Transport.
func NewClient(opts Options) (*http.Client, error) {
	base := &http.Transport{
		Proxy:                 nil,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 15 * time.Second,
		IdleConnTimeout:       90 * time.Second,
		MaxIdleConnsPerHost:   4,
	}
	disableKeepAlives := false
	if proxy := strings.TrimSpace(opts.Proxy); proxy != "" {
		u, err := url.Parse(proxy)
		if err != nil {
			return nil, err
		}
		if u.Scheme == "" || u.Host == "" {
			return nil, errors.New("proxy must be an absolute URL")
		}
		base.Proxy = http.ProxyURL(u)
		base.DisableKeepAlives = true
		disableKeepAlives = true
	}

	var next http.RoundTripper = base
	if opts.Pacer != nil {
		next = &runner.PacedTransport{Base: base, Pacer: opts.Pacer}
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &http.Client{
		Transport: &Transport{
			Base:              next,
			UserAgent:         strings.TrimSpace(opts.UserAgent),
			Referer:           opts.Referer,
			RetryMax:          opts.RetryMax,
			DisableKeepAlives: disableKeepAlives,
			ua:                defaultPool,
		},
		Timeout: timeout,
	}, nil
}

type uaPool struct {
	mu  sync.Mutex
	rnd *rand.Rand
	uas []string
}

func (p *uaPool) random() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.uas[p.rnd.IntN(len(p.uas))]
}

var defaultPool = newUAPool()

func newUAPool() *uaPool {
	return &uaPool{
		rnd: rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0x62696c69)),
		uas: []string{
			"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/128.0.0.0 Safari/537.36",
			"Mozilla/5.0 (Macintosh; Intel Mac OS X 14_5) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.5 Safari/605.1.15",
			"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/128.0.0.0 Safari/537.36",
			"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:129.0) Gecko/20100101 Firefox/129.0",
		},
	}
}
