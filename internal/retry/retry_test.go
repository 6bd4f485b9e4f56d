package retry

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errReset = errors.New("read tcp 10.0.0.1:5432: connection reset by peer")

// scriptedBackend fails the first `failures` calls with err.
type scriptedBackend struct {
	inner    Backend
	err      error
	failures int
	calls    int
}

func (b *scriptedBackend) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	b.calls++
	if b.calls <= b.failures {
		return nil, b.err
	}
	if b.inner == nil {
		return driver.RowsAffected(1), nil
	}
	return b.inner.ExecContext(ctx, query, args...)
}

func (b *scriptedBackend) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	b.calls++
	if b.calls <= b.failures {
		return nil, b.err
	}
	return b.inner.QueryContext(ctx, query, args...)
}

func fastPolicy(attempts int) Policy {
	return Policy{
		MaxAttempts:  attempts,
		BaseDelay:    time.Millisecond,
		MaxDelay:     4 * time.Millisecond,
		JitterFactor: 0,
	}
}

func newExecutor(t *testing.T, p Policy, opts ...Option) *Executor {
	t.Helper()
	opts = append([]Option{WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))}, opts...)
	e, err := NewExecutor(p, opts...)
	require.NoError(t, err)
	return e
}

func TestDefaultPolicy(t *testing.T) {
	p := DefaultPolicy()
	require.NoError(t, p.Validate())
	assert.Equal(t, 5, p.MaxAttempts)
	assert.Equal(t, 50*time.Millisecond, p.BaseDelay)
	assert.Equal(t, 2*time.Second, p.MaxDelay)
	assert.Equal(t, 0.2, p.JitterFactor)
}

func TestPolicy_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Policy)
	}{
		{"zero attempts", func(p *Policy) { p.MaxAttempts = 0 }},
		{"zero base", func(p *Policy) { p.BaseDelay = 0 }},
		{"max below base", func(p *Policy) { p.MaxDelay = p.BaseDelay / 2 }},
		{"negative jitter", func(p *Policy) { p.JitterFactor = -0.1 }},
		{"jitter above one", func(p *Policy) { p.JitterFactor = 1.5 }},
		{"jitter below one percent", func(p *Policy) { p.JitterFactor = 0.004 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := DefaultPolicy()
			tt.mutate(&p)
			assert.Error(t, p.Validate())
		})
	}
}

func TestPolicy_Delay(t *testing.T) {
	p := Policy{MaxAttempts: 10, BaseDelay: 50 * time.Millisecond, MaxDelay: 2 * time.Second}

	assert.Equal(t, 50*time.Millisecond, p.Delay(0))
	assert.Equal(t, 100*time.Millisecond, p.Delay(1))
	assert.Equal(t, 200*time.Millisecond, p.Delay(2))
	assert.Equal(t, 1600*time.Millisecond, p.Delay(5))
	assert.Equal(t, 2*time.Second, p.Delay(6))
	assert.Equal(t, 2*time.Second, p.Delay(60))
}

func TestPolicy_JitterPercentRounds(t *testing.T) {
	assert.Equal(t, uint64(29), Policy{JitterFactor: 0.29}.jitterPercent())
	assert.Equal(t, uint64(1), Policy{JitterFactor: 0.005}.jitterPercent())
	assert.Equal(t, uint64(0), Policy{JitterFactor: 0}.jitterPercent())
	assert.NoError(t, Policy{MaxAttempts: 1, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond, JitterFactor: 0.29}.Validate())
}

func TestPolicy_BackoffFollowsDelay(t *testing.T) {
	p := Policy{MaxAttempts: 5, BaseDelay: 10 * time.Millisecond, MaxDelay: 40 * time.Millisecond}
	b := p.backoff()

	var got []time.Duration
	for {
		d, stop := b.Next()
		if stop {
			break
		}
		got = append(got, d)
	}
	assert.Equal(t, []time.Duration{p.Delay(0), p.Delay(1), p.Delay(2), p.Delay(3)}, got)
	assert.Equal(t, []time.Duration{10 * time.Millisecond, 20 * time.Millisecond, 40 * time.Millisecond, 40 * time.Millisecond}, got)
}

func TestPolicy_BackoffJitterBounds(t *testing.T) {
	p := Policy{MaxAttempts: 4, BaseDelay: 10 * time.Millisecond, MaxDelay: 40 * time.Millisecond, JitterFactor: 0.5}

	for i := 0; i < 50; i++ {
		b := p.backoff()
		for attempt := 0; attempt < p.MaxAttempts-1; attempt++ {
			d, stop := b.Next()
			require.False(t, stop)
			base := p.Delay(attempt)
			assert.GreaterOrEqual(t, d, base/2, "attempt %d", attempt)
			assert.LessOrEqual(t, d, base+base/2, "attempt %d", attempt)
		}
		_, stop := b.Next()
		assert.True(t, stop)
	}
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{errReset, true},
		{errors.New("dial tcp: connection refused"), true},
		{errors.New("sql: connection closed"), true},
		{driver.ErrBadConn, true},
		{fmt.Errorf("write: %w", driver.ErrBadConn), true},
		{errors.New("write: broken pipe"), true},
		{errors.New("i/o timeout"), true},
		{errors.New("pq: sorry, too many connections for role"), true},
		{errors.New("Deadlock found when trying to get lock"), true},
		{errors.New("ERROR: could not serialize access (SQLSTATE 40001)"), true},
		{errors.New("database is locked"), true},
		{errors.New("FATAL: terminating connection (SQLSTATE 08006)"), true},
		{context.Canceled, false},
		{context.DeadlineExceeded, false},
		{fmt.Errorf("query: %w", context.Canceled), false},
		{errors.New("UNIQUE constraint failed: data.id"), false},
		{errors.New(`near "SELEC": syntax error`), false},
		{sql.ErrNoRows, false},
	}
	for _, tt := range tests {
		name := "nil"
		if tt.err != nil {
			name = tt.err.Error()
		}
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTransient(tt.err))
		})
	}
}

func TestExecutor_RetriesThenSucceeds(t *testing.T) {
	var observed []int
	e := newExecutor(t, fastPolicy(5), WithObserver(func(op string, attempt int, err error) {
		assert.Equal(t, "put", op)
		observed = append(observed, attempt)
	}))
	b := &scriptedBackend{err: errReset, failures: 2}

	res, err := e.Exec(context.Background(), b, "put", "UPDATE x SET y = 1")
	require.NoError(t, err)
	n, _ := res.RowsAffected()
	assert.Equal(t, int64(1), n)
	assert.Equal(t, 3, b.calls)
	assert.Equal(t, []int{1, 2}, observed)
}

func TestExecutor_ExhaustsAttempts(t *testing.T) {
	p := Policy{MaxAttempts: 3, BaseDelay: 10 * time.Millisecond, MaxDelay: 20 * time.Millisecond}
	e := newExecutor(t, p)
	b := &scriptedBackend{err: errReset, failures: 100}

	start := time.Now()
	_, err := e.Exec(context.Background(), b, "put", "UPDATE x SET y = 1")
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.Equal(t, 3, b.calls)

	var execErr *ExecError
	require.True(t, errors.As(err, &execErr))
	assert.Equal(t, 3, execErr.Attempts)
	assert.True(t, execErr.Transient)
	assert.ErrorIs(t, err, errReset)

	// Two waits: 10ms then 20ms.
	assert.GreaterOrEqual(t, elapsed, 30*time.Millisecond)
	assert.Less(t, elapsed, 2*time.Second)
}

func TestExecutor_ExhaustsAttemptsWithJitter(t *testing.T) {
	p := Policy{MaxAttempts: 4, BaseDelay: 10 * time.Millisecond, MaxDelay: 40 * time.Millisecond, JitterFactor: 0.5}
	e := newExecutor(t, p)
	b := &scriptedBackend{err: errReset, failures: 100}

	start := time.Now()
	_, err := e.Exec(context.Background(), b, "put", "UPDATE x SET y = 1")
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.Equal(t, p.MaxAttempts, b.calls)

	var total time.Duration
	for attempt := 0; attempt < p.MaxAttempts-1; attempt++ {
		total += p.Delay(attempt)
	}
	// Waits of 10, 20 and 40ms, each within 50% either way.
	lower := time.Duration(float64(total) * (1 - p.JitterFactor))
	upper := time.Duration(float64(total) * (1 + p.JitterFactor))
	const slack = 250 * time.Millisecond
	assert.GreaterOrEqual(t, elapsed, lower)
	assert.Less(t, elapsed, upper+slack)
}

func TestExecutor_NonTransientFailsImmediately(t *testing.T) {
	e := newExecutor(t, fastPolicy(5))
	perm := errors.New("UNIQUE constraint failed: data.id")
	b := &scriptedBackend{err: perm, failures: 100}

	_, err := e.Exec(context.Background(), b, "put", "INSERT")
	require.Error(t, err)
	assert.Equal(t, 1, b.calls)

	var execErr *ExecError
	require.True(t, errors.As(err, &execErr))
	assert.Equal(t, 1, execErr.Attempts)
	assert.False(t, execErr.Transient)
	assert.ErrorIs(t, err, perm)
}

func TestExecutor_SingleAttemptPolicy(t *testing.T) {
	e := newExecutor(t, fastPolicy(1))
	b := &scriptedBackend{err: errReset, failures: 100}

	_, err := e.Exec(context.Background(), b, "put", "INSERT")
	require.Error(t, err)
	assert.Equal(t, 1, b.calls)
}

func TestExecutor_ContextCancelled(t *testing.T) {
	p := Policy{MaxAttempts: 5, BaseDelay: time.Second, MaxDelay: time.Second}
	e := newExecutor(t, p)
	b := &scriptedBackend{err: errReset, failures: 100}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := e.Exec(ctx, b, "put", "INSERT")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, b.calls)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestExecutor_CustomClassifier(t *testing.T) {
	busy := errors.New("engine busy")
	e := newExecutor(t, fastPolicy(3), WithClassifier(func(err error) bool {
		return errors.Is(err, busy)
	}))
	b := &scriptedBackend{err: busy, failures: 1}

	_, err := e.Exec(context.Background(), b, "put", "INSERT")
	require.NoError(t, err)
	assert.Equal(t, 2, b.calls)

	assert.False(t, e.Transient(fmt.Errorf("%w: %w", busy, context.Canceled)))
}

func TestExecutor_QueryRetriesWholeStatement(t *testing.T) {
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	defer db.Close()
	db.SetMaxOpenConns(1)

	_, err = db.Exec(`CREATE TABLE t (v INTEGER); INSERT INTO t VALUES (1), (2), (3);`)
	require.NoError(t, err)

	e := newExecutor(t, fastPolicy(4))
	b := &scriptedBackend{inner: db, err: errReset, failures: 2}

	var got []int
	err = e.Query(context.Background(), b, "all", "SELECT v FROM t ORDER BY v", nil, func(rows *sql.Rows) error {
		got = got[:0]
		for rows.Next() {
			var v int
			if err := rows.Scan(&v); err != nil {
				return err
			}
			got = append(got, v)
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, got)
	assert.Equal(t, 3, b.calls)
}

func TestExecutor_QueryScanErrorNotRetried(t *testing.T) {
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	defer db.Close()

	e := newExecutor(t, fastPolicy(4))
	b := &scriptedBackend{inner: db}

	calls := 0
	scanErr := errors.New("bad row")
	err = e.Query(context.Background(), b, "all", "SELECT 1", nil, func(rows *sql.Rows) error {
		calls++
		return scanErr
	})
	assert.ErrorIs(t, err, scanErr)
	assert.Equal(t, 1, calls)
}
