package store

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roach88/docstore/internal/config"
	"github.com/roach88/docstore/internal/filter"
	"github.com/roach88/docstore/internal/param"
	"github.com/roach88/docstore/internal/testutil"
)

type person struct {
	Name string `json:"name"`
	Age  int    `json:"age"`
}

// personV1 and personV2 are two tagged shapes of the same model.
type personV1 struct {
	Name string `json:"name"`
	Age  int    `json:"age"`
}

func (personV1) SchemaVersion() SchemaVersion {
	return SchemaVersion{Model: "person", Version: 1}
}

type personV2 struct {
	Forename string `json:"forename"`
	Surname  string `json:"surname"`
	Age      int    `json:"age"`
}

func (personV2) SchemaVersion() SchemaVersion {
	return SchemaVersion{Model: "person", Version: 2}
}

func (p personV2) Filters() filter.Filter {
	return filter.Filter{"surname": param.String(p.Surname)}
}

// pointerFiltered declares Filters on the pointer receiver.
type pointerFiltered struct {
	City string `json:"city"`
}

func (p *pointerFiltered) Filters() filter.Filter {
	return filter.Filter{"city": param.String(p.City)}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// testConfig returns a config for a fresh database in a temp dir, with a
// fast retry policy and a janitor that never ticks during a test.
func testConfig(t *testing.T) config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.DSN = filepath.Join(t.TempDir(), "test.db")
	cfg.JanitorInterval = time.Hour
	cfg.Retry = config.RetryConfig{
		MaxAttempts: 3,
		BaseDelay:   time.Millisecond,
		MaxDelay:    5 * time.Millisecond,
	}
	return cfg
}

// createTestStore opens a store on cfg with a fake clock.
func createTestStore(t *testing.T, cfg config.Config, opts ...Option) (*Store, *testutil.FakeClock) {
	t.Helper()
	clock := testutil.NewFakeClock(time.Time{})
	opts = append([]Option{WithLogger(quietLogger()), WithClock(clock.Now)}, opts...)

	s, err := New(cfg, opts...)
	require.NoError(t, err)
	require.NoError(t, s.Open(context.Background()))
	t.Cleanup(func() { s.Close() })
	return s, clock
}

// countRows counts physical rows, expired or not.
func countRows(t *testing.T, s *Store, partition, keyspace string) int {
	t.Helper()
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM "`+s.cfg.Table+`" WHERE "partition" = ? AND "keyspace" = ?`,
		partition, keyspace).Scan(&n)
	require.NoError(t, err)
	return n
}
