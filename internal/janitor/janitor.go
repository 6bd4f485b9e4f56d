// Package janitor runs a periodic background purge of expired documents.
package janitor

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// DefaultInterval is the time between passes when none is configured.
const DefaultInterval = 60 * time.Second

// stopTimeout bounds how long Stop waits for the loop to exit.
const stopTimeout = 5 * time.Second

// ErrPassInProgress is returned by RunOnce when another pass is running.
var ErrPassInProgress = errors.New("janitor: pass already in progress")

// PurgeFunc deletes expired rows and reports how many went.
type PurgeFunc func(ctx context.Context) (int64, error)

// Pass describes one completed purge pass.
type Pass struct {
	Purged  int64
	Elapsed time.Duration
	Err     error
}

// Option configures a Janitor.
type Option func(*Janitor)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(j *Janitor) { j.logger = l }
}

// WithOnPass registers a callback invoked after every pass, failed or not.
func WithOnPass(fn func(Pass)) Option {
	return func(j *Janitor) { j.onPass = fn }
}

// Janitor owns a ticker and calls its PurgeFunc on every tick. At most one
// pass runs at a time.
type Janitor struct {
	interval time.Duration
	purge    PurgeFunc
	logger   *slog.Logger
	onPass   func(Pass)

	inFlight sync.Mutex

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a stopped Janitor. A non-positive interval means DefaultInterval.
func New(interval time.Duration, purge PurgeFunc, opts ...Option) *Janitor {
	if interval <= 0 {
		interval = DefaultInterval
	}
	j := &Janitor{
		interval: interval,
		purge:    purge,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// Interval returns the time between passes.
func (j *Janitor) Interval() time.Duration {
	return j.interval
}

// Running reports whether the background loop is active.
func (j *Janitor) Running() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.cancel != nil
}

// Start launches the background loop. Calling Start on a running janitor
// is a no-op. The loop ends when ctx is done or Stop is called.
func (j *Janitor) Start(ctx context.Context) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	j.cancel = cancel
	j.done = make(chan struct{})
	go j.loop(ctx, j.done)

	j.logger.Debug("janitor started", "interval", j.interval)
}

// Stop cancels future passes and any pass in flight, then waits for the
// loop to exit. Stopping a stopped janitor is a no-op.
func (j *Janitor) Stop() {
	j.mu.Lock()
	cancel, done := j.cancel, j.done
	j.cancel, j.done = nil, nil
	j.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()

	select {
	case <-done:
		j.logger.Debug("janitor stopped")
	case <-time.After(stopTimeout):
		j.logger.Warn("janitor did not stop in time", "timeout", stopTimeout)
	}
}

func (j *Janitor) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := j.RunOnce(ctx); errors.Is(err, ErrPassInProgress) {
				j.logger.Debug("janitor tick skipped, pass in progress")
			}
		}
	}
}

// RunOnce performs a single pass now. It returns ErrPassInProgress without
// purging when another pass is running. A failed pass is logged and
// reported; the next tick simply tries again.
func (j *Janitor) RunOnce(ctx context.Context) (int64, error) {
	if !j.inFlight.TryLock() {
		return 0, ErrPassInProgress
	}
	defer j.inFlight.Unlock()

	start := time.Now()
	purged, err := j.purge(ctx)
	pass := Pass{Purged: purged, Elapsed: time.Since(start), Err: err}

	switch {
	case err != nil && ctx.Err() != nil:
		j.logger.Debug("janitor pass aborted", "error", err)
	case err != nil:
		j.logger.Warn("janitor pass failed", "error", err)
	case purged > 0:
		j.logger.Info("janitor purged expired documents", "count", purged, "elapsed", pass.Elapsed)
	}

	if j.onPass != nil {
		j.onPass(pass)
	}
	return purged, err
}
