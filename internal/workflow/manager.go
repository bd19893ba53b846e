package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"bilisub/internal/acquire"
	"bilisub/internal/artifacts"
	"bilisub/internal/config"
	"bilisub/internal/logging"
	"bilisub/internal/notifications"
	"bilisub/internal/queue"
	"bilisub/internal/runner"
	"bilisub/internal/synth"
)

// ErrTaskActive is returned by Delete for tasks that are pending or
// processing; they must be cancelled first.
var ErrTaskActive = errors.New("task is still active")

// Deps are the collaborators a Manager drives.
type Deps struct {
	Platform   acquire.Platform
	Recognizer acquire.Recognizer
	Notifier   notifications.Service
	// Gate overrides the retrying caller built from the runner settings.
	Gate acquire.Gate
	// Layout overrides the artifact layout rooted at paths.output_dir.
	Layout *artifacts.Layout
}

// Manager coordinates task processing on a bounded runner.
type Manager struct {
	cfg      *config.Config
	store    *queue.Store
	layout   *artifacts.Layout
	strategy *acquire.Strategy
	synth    *synth.Synthesizer
	notifier notifications.Service
	runner   *runner.Runner
	logger   *slog.Logger
	health   []HealthChecker

	// renderSlots bounds CPU-bound rendering separately from the I/O slots.
	renderSlots chan struct{}

	credMu      sync.Mutex
	credentials map[string]*acquire.Credential

	mu          sync.RWMutex
	running     bool
	lastErr     error
	lastItem    *queue.Item
	queueActive bool
	queueStart  time.Time
}

// ManagerOption configures optional Manager behavior.
type ManagerOption func(*managerOptions)

type managerOptions struct {
	onAdmit     func(id string, before runner.Snapshot)
	renderSlots int
}

// WithAdmissionHook observes each admission with the runner state just
// before it.
func WithAdmissionHook(fn func(id string, before runner.Snapshot)) ManagerOption {
	return func(o *managerOptions) { o.onAdmit = fn }
}

// WithRenderSlots caps concurrent renders. The default is GOMAXPROCS.
func WithRenderSlots(n int) ManagerOption {
	return func(o *managerOptions) { o.renderSlots = n }
}

// NewManager wires a manager. The store's releaser is pointed at the
// artifact layout so deleting a task removes its files.
func NewManager(cfg *config.Config, store *queue.Store, deps Deps, logger *slog.Logger, opts ...ManagerOption) (*Manager, error) {
	if cfg == nil || store == nil {
		return nil, errors.New("workflow: config and store are required")
	}
	options := &managerOptions{renderSlots: runtime.GOMAXPROCS(0)}
	for _, opt := range opts {
		opt(options)
	}
	if options.renderSlots < 1 {
		options.renderSlots = 1
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	base := logger
	logger = logging.NewComponentLogger(base, "workflow")

	synthesizer, err := synth.New(cfg.Subtitles.Denylist, cfg.MergeGap())
	if err != nil {
		return nil, fmt.Errorf("workflow: %w", err)
	}
	layout := deps.Layout
	if layout == nil {
		layout = artifacts.NewLayout(cfg.Paths.OutputDir, base)
	}
	gate := deps.Gate
	if gate == nil {
		gate = runner.NewCaller(runner.PolicyFromConfig(cfg), base)
	}
	notifier := deps.Notifier
	if notifier == nil {
		notifier = notifications.NewNoop()
	}

	m := &Manager{
		cfg:         cfg,
		store:       store,
		layout:      layout,
		strategy:    acquire.NewStrategy(deps.Platform, deps.Recognizer, gate, base),
		synth:       synthesizer,
		notifier:    notifier,
		logger:      logger,
		renderSlots: make(chan struct{}, options.renderSlots),
		credentials: make(map[string]*acquire.Credential),
	}
	m.runner = runner.New(runner.Options{
		Concurrency: cfg.Runner.Concurrency,
		ItemTimeout: cfg.ItemTimeout(),
		Logger:      base,
		OnAdmit:     options.onAdmit,
	})
	for _, dep := range []any{deps.Platform, deps.Recognizer} {
		if checker, ok := dep.(HealthChecker); ok {
			m.health = append(m.health, checker)
		}
	}
	store.SetReleaser(func(_ context.Context, item *queue.Item) error {
		return layout.Remove(item.ID)
	})
	return m, nil
}

// Layout returns the artifact layout the manager writes to.
func (m *Manager) Layout() *artifacts.Layout { return m.layout }

// Store returns the lifecycle store.
func (m *Manager) Store() *queue.Store { return m.store }

// Runner exposes the runner for status reporting.
func (m *Manager) Runner() *runner.Runner { return m.runner }

func (m *Manager) stashCredential(id string, cred *acquire.Credential) {
	if cred.Empty() {
		return
	}
	m.credMu.Lock()
	m.credentials[id] = cred
	m.credMu.Unlock()
}

// takeCredential hands the credential to one run. Credentials live only in
// memory and are dropped once used.
func (m *Manager) takeCredential(id string) *acquire.Credential {
	m.credMu.Lock()
	defer m.credMu.Unlock()
	cred := m.credentials[id]
	delete(m.credentials, id)
	return cred
}
