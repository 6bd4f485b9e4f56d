package retry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	goretry "github.com/sethvargo/go-retry"
)

// Backend is the subset of *sql.DB the executor drives.
type Backend interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Observer is told about every retry the executor schedules.
type Observer func(op string, attempt int, err error)

// Option configures an Executor.
type Option func(*Executor)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(e *Executor) { e.logger = l }
}

// WithClassifier adds a transient-error classifier, typically one that
// understands a driver's typed errors.
func WithClassifier(c Classifier) Option {
	return func(e *Executor) { e.classifiers = append(e.classifiers, c) }
}

// WithObserver registers a callback invoked before each retry.
func WithObserver(o Observer) Option {
	return func(e *Executor) { e.observer = o }
}

// Executor runs statements under a Policy. Safe for concurrent use.
type Executor struct {
	policy      Policy
	logger      *slog.Logger
	classifiers []Classifier
	observer    Observer
}

// NewExecutor validates policy and builds an Executor.
func NewExecutor(policy Policy, opts ...Option) (*Executor, error) {
	if err := policy.Validate(); err != nil {
		return nil, fmt.Errorf("retry policy: %w", err)
	}
	e := &Executor{policy: policy, logger: slog.Default()}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Policy returns the executor's policy.
func (e *Executor) Policy() Policy {
	return e.policy
}

// Transient reports whether err would be retried by e.
func (e *Executor) Transient(err error) bool {
	if IsTransient(err) {
		return true
	}
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	for _, c := range e.classifiers {
		if c(err) {
			return true
		}
	}
	return false
}

// Exec runs a statement that returns no rows.
func (e *Executor) Exec(ctx context.Context, b Backend, op, query string, args ...any) (sql.Result, error) {
	var res sql.Result
	err := e.Do(ctx, op, func(ctx context.Context) error {
		r, err := b.ExecContext(ctx, query, args...)
		if err != nil {
			return err
		}
		res = r
		return nil
	})
	return res, err
}

// Query runs a statement and hands the rows to scan. The rows are closed
// when scan returns. A transient failure while reading rows retries the
// whole statement, so scan must reset any state it accumulates.
func (e *Executor) Query(ctx context.Context, b Backend, op, query string, args []any, scan func(*sql.Rows) error) error {
	return e.Do(ctx, op, func(ctx context.Context) error {
		rows, err := b.QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		if err := scan(rows); err != nil {
			return err
		}
		return rows.Err()
	})
}

// Do runs fn under the policy. Failures are returned as *ExecError.
func (e *Executor) Do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	attempts := 0
	var last error

	err := goretry.Do(ctx, e.policy.backoff(), func(ctx context.Context) error {
		attempts++
		err := fn(ctx)
		if err == nil {
			return nil
		}
		last = err

		if !e.Transient(err) {
			return err
		}
		if attempts < e.policy.MaxAttempts {
			e.logger.Debug("retrying statement",
				"op", op,
				"attempt", attempts,
				"error", err)
			if e.observer != nil {
				e.observer(op, attempts, err)
			}
		}
		return goretry.RetryableError(err)
	})
	if err == nil {
		return nil
	}

	// go-retry reports ctx.Err() when cancelled mid-backoff.
	if last == nil || (ctx.Err() != nil && errors.Is(err, ctx.Err())) {
		return &ExecError{Op: op, Attempts: attempts, Err: err}
	}

	transient := e.Transient(last)
	if transient {
		e.logger.Error("statement failed after retries",
			"op", op,
			"attempts", attempts,
			"error", last)
	}
	return &ExecError{Op: op, Attempts: attempts, Transient: transient, Err: last}
}
