package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"bilisub/internal/logging"
	"bilisub/internal/services"
)

var (
	// ErrCancelled is the context cause when a running item is cancelled.
	ErrCancelled = services.Classify(services.KindCancelled, "runner", errors.New("cancelled by request"))
	// ErrItemTimeout is the context cause when an item exceeds its budget.
	ErrItemTimeout = services.Classify(services.KindTimeout, "runner", errors.New("item timeout exceeded"))
	// ErrShutdown is the context cause for items interrupted by Stop.
	ErrShutdown = errors.New("runner shutting down")
	// ErrStopped is returned by Submit after Stop.
	ErrStopped = errors.New("runner stopped")
	// ErrDuplicate is returned when an id is already queued or running.
	ErrDuplicate = errors.New("item already scheduled")
)

// State is an item's position in the runner.
type State string

const (
	StateQueued  State = "queued"
	StateRunning State = "running"
	StateIdle    State = "idle"
)

// Job is one unit of work. Run receives a context that is cancelled with
// ErrCancelled, ErrItemTimeout, or ErrShutdown as its cause.
type Job struct {
	ID  string
	Run func(ctx context.Context) error
}

// Options configures a Runner.
type Options struct {
	Concurrency int
	// ItemTimeout bounds each item from admission to completion, across all
	// of its retries. Zero disables the limit.
	ItemTimeout time.Duration
	Logger      *slog.Logger
	// OnAdmit, when set, is called with the snapshot taken just before an
	// item moves from queued to running.
	OnAdmit func(id string, before Snapshot)
}

// Snapshot lists item ids by state. Queued ids are in admission order.
type Snapshot struct {
	Queued  []string
	Running []string
}

type entry struct {
	job    Job
	cancel context.CancelCauseFunc
}

// Runner drains a FIFO queue with a fixed pool of workers.
type Runner struct {
	limit   int
	timeout time.Duration
	logger  *slog.Logger
	onAdmit func(string, Snapshot)

	mu      sync.Mutex
	cond    *sync.Cond
	queue   []*entry
	running map[string]*entry
	started bool
	stopped bool
	base    context.Context
	stop    context.CancelCauseFunc
	wg      sync.WaitGroup
}

// New constructs a runner. Workers start with Start.
func New(opts Options) *Runner {
	limit := opts.Concurrency
	if limit < 1 {
		limit = 1
	}
	r := &Runner{
		limit:   limit,
		timeout: opts.ItemTimeout,
		logger:  logging.NewComponentLogger(opts.Logger, "runner"),
		onAdmit: opts.OnAdmit,
		running: make(map[string]*entry),
	}
	r.cond = sync.NewCond(&r.mu)
	return r
}

// Limit returns the concurrency limit.
func (r *Runner) Limit() int { return r.limit }

// Start launches the worker pool. Cancelling ctx behaves like Stop.
func (r *Runner) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started || r.stopped {
		return
	}
	r.started = true
	r.base, r.stop = context.WithCancelCause(ctx)
	for i := 0; i < r.limit; i++ {
		r.wg.Add(1)
		go r.worker()
	}
	go func() {
		<-r.base.Done()
		r.mu.Lock()
		r.stopped = true
		r.cond.Broadcast()
		r.mu.Unlock()
	}()
}

// Submit appends a job to the queue.
func (r *Runner) Submit(job Job) error {
	if job.ID == "" || job.Run == nil {
		return fmt.Errorf("submit: job requires an id and a run function")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return ErrStopped
	}
	if _, ok := r.running[job.ID]; ok {
		return ErrDuplicate
	}
	for _, e := range r.queue {
		if e.job.ID == job.ID {
			return ErrDuplicate
		}
	}
	r.queue = append(r.queue, &entry{job: job})
	r.cond.Signal()
	return nil
}

// Cancel removes a queued job without running it, or signals a running job
// to abort with ErrCancelled. It reports the state the job was in.
func (r *Runner) Cancel(id string) State {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, e := range r.queue {
		if e.job.ID == id {
			r.queue = append(r.queue[:i:i], r.queue[i+1:]...)
			r.cond.Broadcast()
			return StateQueued
		}
	}
	if e, ok := r.running[id]; ok {
		e.cancel(ErrCancelled)
		return StateRunning
	}
	return StateIdle
}

// State reports where id currently is.
func (r *Runner) State(id string) State {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.running[id]; ok {
		return StateRunning
	}
	for _, e := range r.queue {
		if e.job.ID == id {
			return StateQueued
		}
	}
	return StateIdle
}

// Snapshot returns the current queue and running set.
func (r *Runner) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked()
}

func (r *Runner) snapshotLocked() Snapshot {
	snap := Snapshot{Queued: make([]string, 0, len(r.queue)), Running: make([]string, 0, len(r.running))}
	for _, e := range r.queue {
		snap.Queued = append(snap.Queued, e.job.ID)
	}
	for id := range r.running {
		snap.Running = append(snap.Running, id)
	}
	return snap
}

// Wait blocks until the queue is empty and no job is running, or ctx ends.
func (r *Runner) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.mu.Lock()
		for ctx.Err() == nil && ((len(r.queue) > 0 && !r.stopped) || len(r.running) > 0) {
			r.cond.Wait()
		}
		r.mu.Unlock()
		close(done)
	}()
	select {
	case <-done:
		return ctx.Err()
	case <-ctx.Done():
		// Wake the waiter so it sees ctx and exits.
		r.mu.Lock()
		r.cond.Broadcast()
		r.mu.Unlock()
		<-done
		return ctx.Err()
	}
}

// Stop cancels running jobs with ErrShutdown, drops queued ones, and waits
// for workers to exit. It returns the ids that were still queued.
func (r *Runner) Stop() []string {
	r.mu.Lock()
	r.stopped = true
	dropped := make([]string, 0, len(r.queue))
	for _, e := range r.queue {
		dropped = append(dropped, e.job.ID)
	}
	r.queue = nil
	for _, e := range r.running {
		e.cancel(ErrShutdown)
	}
	stop := r.stop
	r.cond.Broadcast()
	r.mu.Unlock()
	if stop != nil {
		stop(ErrShutdown)
	}
	r.wg.Wait()
	return dropped
}

func (r *Runner) worker() {
	defer r.wg.Done()
	for {
		r.mu.Lock()
		for len(r.queue) == 0 && !r.stopped {
			r.cond.Wait()
		}
		if r.stopped {
			r.mu.Unlock()
			return
		}
		e := r.queue[0]
		if r.onAdmit != nil {
			r.onAdmit(e.job.ID, r.snapshotLocked())
		}
		r.queue = r.queue[1:]
		ctx, cancel := context.WithCancelCause(r.base)
		e.cancel = cancel
		r.running[e.job.ID] = e
		r.mu.Unlock()

		r.execute(ctx, e)
		cancel(nil)

		r.mu.Lock()
		delete(r.running, e.job.ID)
		r.cond.Broadcast()
		r.mu.Unlock()
	}
}

func (r *Runner) execute(ctx context.Context, e *entry) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeoutCause(ctx, r.timeout, ErrItemTimeout)
		defer cancel()
	}
	ctx = services.WithItemID(ctx, e.job.ID)
	logger := logging.WithContext(ctx, r.logger)
	start := time.Now()

	err := r.safeRun(ctx, e.job)
	switch {
	case err == nil:
		logger.Debug("item finished", logging.Duration("elapsed", time.Since(start)))
	case errors.Is(context.Cause(ctx), ErrShutdown):
		logger.Info("item interrupted by shutdown")
	default:
		logger.Debug("item ended with error",
			logging.Duration("elapsed", time.Since(start)),
			logging.String("kind", string(services.KindOf(err))),
			logging.Error(err),
		)
	}
}

// safeRun keeps a panicking job from taking down its worker.
func (r *Runner) safeRun(ctx context.Context, job Job) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			logging.ErrorWithContext(logging.WithContext(ctx, r.logger), "item panicked", "item_panic",
				logging.Any("panic", rec),
				logging.String("stack", string(debug.Stack())),
			)
			err = services.Classify(services.KindInternal, "runner", fmt.Errorf("panic: %v", rec))
		}
	}()
	return job.Run(ctx)
}
