package store

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	sqlite3 "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/docstore/internal/config"
	"github.com/roach88/docstore/internal/retry"
)

func TestConnectionDSN(t *testing.T) {
	tests := []struct {
		driver, dsn, want string
	}{
		{config.DriverMattn, "docs.db",
			"docs.db?_busy_timeout=5000&_journal_mode=WAL&_synchronous=NORMAL"},
		{config.DriverMattn, "file:docs.db?cache=shared",
			"file:docs.db?cache=shared&_busy_timeout=5000&_journal_mode=WAL&_synchronous=NORMAL"},
		{config.DriverMattn, "docs.db?_busy_timeout=100",
			"docs.db?_busy_timeout=100&_journal_mode=WAL&_synchronous=NORMAL"},
		{config.DriverModernc, "docs.db",
			"docs.db?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"},
		{config.DriverModernc, "docs.db?_pragma=journal_mode(DELETE)",
			"docs.db?_pragma=journal_mode(DELETE)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, connectionDSN(tt.driver, tt.dsn), tt.dsn)
	}
}

// Every pooled connection carries the busy timeout, not just the first.
func TestOpen_PragmasOnEveryConnection(t *testing.T) {
	for _, drv := range []string{config.DriverMattn, config.DriverModernc} {
		t.Run(drv, func(t *testing.T) {
			cfg := testConfig(t)
			cfg.Driver = drv
			cfg.MaxOpenConns = 3
			s, _ := createTestStore(t, cfg)
			ctx := context.Background()

			// Holding all three at once forces three distinct connections.
			conns := make([]*sql.Conn, 0, 3)
			for i := 0; i < 3; i++ {
				c, err := s.db.Conn(ctx)
				require.NoError(t, err)
				conns = append(conns, c)
			}
			for i, c := range conns {
				var timeout int
				require.NoError(t, c.QueryRowContext(ctx, "PRAGMA busy_timeout").Scan(&timeout))
				assert.Equal(t, 5000, timeout, "connection %d", i)

				var mode string
				require.NoError(t, c.QueryRowContext(ctx, "PRAGMA journal_mode").Scan(&mode))
				assert.Equal(t, "wal", mode, "connection %d", i)
			}
			for _, c := range conns {
				require.NoError(t, c.Close())
			}
		})
	}
}

// refusingDriver fails the first `refusals` connection attempts the way a
// network database does while it is still starting.
type refusingDriver struct {
	refusals atomic.Int32
	attempts atomic.Int32
}

func (d *refusingDriver) Open(name string) (driver.Conn, error) {
	d.attempts.Add(1)
	if d.refusals.Add(-1) >= 0 {
		return nil, errors.New("dial tcp 127.0.0.1:5432: connect: connection refused")
	}
	return (&sqlite3.SQLiteDriver{}).Open(name)
}

var (
	refusing     = &refusingDriver{}
	registerOnce sync.Once
)

func openRefusing(t *testing.T, refusals int32) *Store {
	t.Helper()
	registerOnce.Do(func() { sql.Register("sqlite3-refusing", refusing) })
	refusing.refusals.Store(refusals)
	refusing.attempts.Store(0)

	s, err := New(testConfig(t), WithLogger(quietLogger()))
	require.NoError(t, err)
	s.openDB = func(_, dsn string) (*sql.DB, error) {
		return sql.Open("sqlite3-refusing", dsn)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpen_RetriesConnect(t *testing.T) {
	s := openRefusing(t, 2)

	require.NoError(t, s.Open(context.Background()))
	assert.GreaterOrEqual(t, int(refusing.attempts.Load()), 3)

	ctx := context.Background()
	require.True(t, s.Put(ctx, "p", "k", "1", Forever, nil, person{Name: "Adrian"}))
}

func TestOpen_ConnectExhaustion(t *testing.T) {
	s := openRefusing(t, 1000)

	err := s.Open(context.Background())
	require.Error(t, err)

	var execErr *retry.ExecError
	require.ErrorAs(t, err, &execErr)
	assert.Equal(t, 3, execErr.Attempts)
	assert.True(t, execErr.Transient)
	assert.Equal(t, int32(3), refusing.attempts.Load())

	_, err = s.conn()
	assert.ErrorIs(t, err, ErrNotOpen)
}
