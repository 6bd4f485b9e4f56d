package testutil

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"sync"
)

// ErrConnectionReset is the transient failure FlakyBackend injects.
var ErrConnectionReset = errors.New("read tcp 127.0.0.1:5432: connection reset by peer")

// Backend is the statement surface FlakyBackend wraps. *sql.DB satisfies it.
type Backend interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// FlakyBackend fails the first Failures matching statements with Err, then
// passes everything through to Inner.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type FlakyBackend struct {
	Inner Backend

	// Failures is how many matching calls fail before calls pass through.
	Failures int

	// Match selects the statements eligible to fail. Nil matches all.
	Match func(query string) bool

	// Err is returned for injected failures. Nil means ErrConnectionReset.
	Err error

	mu       sync.Mutex
	calls    int
	injected int
}

// FailStatements matches statements containing any of the given keywords,
// compared case-insensitively.
func FailStatements(keywords ...string) func(string) bool {
	return func(query string) bool {
		q := strings.ToUpper(query)
		for _, k := range keywords {
			if strings.Contains(q, strings.ToUpper(k)) {
				return true
			}
		}
		return false
	}
}

// ExecContext implements Backend.
func (f *FlakyBackend) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	if err := f.next(query); err != nil {
		return nil, err
	}
	return f.Inner.ExecContext(ctx, query, args...)
}

// QueryContext implements Backend.
func (f *FlakyBackend) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	if err := f.next(query); err != nil {
		return nil, err
	}
	return f.Inner.QueryContext(ctx, query, args...)
}

// Calls returns the number of statements seen, failed ones included.
func (f *FlakyBackend) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// Injected returns the number of failures injected so far.
func (f *FlakyBackend) Injected() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.injected
}

func (f *FlakyBackend) next(query string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.injected >= f.Failures {
		return nil
	}
	if f.Match != nil && !f.Match(query) {
		return nil
	}
	f.injected++
	if f.Err != nil {
		return f.Err
	}
	return ErrConnectionReset
}
