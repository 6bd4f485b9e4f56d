package store

import (
	"context"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/docstore/internal/config"
	"github.com/roach88/docstore/internal/filter"
	"github.com/roach88/docstore/internal/param"
	"github.com/roach88/docstore/internal/retry"
	"github.com/roach88/docstore/internal/testutil"
)

func TestNew_InvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Table = "data; DROP TABLE x"
	_, err := New(cfg)
	assert.Error(t, err)
}

func TestOpen_CreatesNewDatabase(t *testing.T) {
	cfg := testConfig(t)
	createTestStore(t, cfg)

	_, err := os.Stat(cfg.DSN)
	assert.NoError(t, err, "database file was not created")
}

func TestOpen_CloseIdempotent(t *testing.T) {
	s, err := New(testConfig(t), WithLogger(quietLogger()))
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, s.Close(), "close before open")
	require.NoError(t, s.Open(ctx))
	require.NoError(t, s.Open(ctx))
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	// Reopen the same database.
	require.NoError(t, s.Open(ctx))
	require.NoError(t, s.Close())
}

func TestOpen_AppliesPragmasAndSchema(t *testing.T) {
	s, _ := createTestStore(t, testConfig(t))

	var mode string
	require.NoError(t, s.db.QueryRow("PRAGMA journal_mode").Scan(&mode))
	assert.Equal(t, "wal", mode)

	var version int
	require.NoError(t, s.db.QueryRow("PRAGMA user_version").Scan(&version))
	assert.Equal(t, currentSchemaVersion, version)

	var indexes int
	require.NoError(t, s.db.QueryRow(
		`SELECT COUNT(*) FROM sqlite_master WHERE type = 'index' AND name IN ('idx_data_ttl', 'idx_data_model')`).Scan(&indexes))
	assert.Equal(t, 2, indexes)
}

func TestOpen_MigratesLegacyTable(t *testing.T) {
	cfg := testConfig(t)

	// A table from before the filter column existed.
	legacy, err := New(cfg, WithLogger(quietLogger()))
	require.NoError(t, err)
	require.NoError(t, legacy.Open(context.Background()))
	_, err = legacy.db.Exec(`DROP TABLE "data"`)
	require.NoError(t, err)
	_, err = legacy.db.Exec(`CREATE TABLE "data" ("partition" TEXT NOT NULL, "keyspace" TEXT NOT NULL, "id" TEXT NOT NULL,
		"value" BLOB NOT NULL, "ttl" INTEGER, "timestamp" INTEGER NOT NULL, "model" TEXT, "version" INTEGER,
		PRIMARY KEY ("partition", "keyspace", "id"))`)
	require.NoError(t, err)
	_, err = legacy.db.Exec(`PRAGMA user_version = 0`)
	require.NoError(t, err)
	require.NoError(t, legacy.Close())

	s, _ := createTestStore(t, cfg)
	ctx := context.Background()
	require.True(t, s.Put(ctx, "p", "people", "1", Forever, filter.Filter{"a": param.Bool(true)}, person{Name: "Adrian"}))

	ids := s.IDs(ctx, "p", "people", filter.Filter{"a": param.Bool(true)})
	assert.Equal(t, []string{"1"}, ids)
}

func TestOperations_RequireOpen(t *testing.T) {
	s, err := New(testConfig(t), WithLogger(quietLogger()))
	require.NoError(t, err)
	ctx := context.Background()

	assert.False(t, s.Put(ctx, "p", "k", "1", Forever, nil, person{}))
	assert.False(t, s.Delete(ctx, "p", "k", "1"))
	assert.ErrorIs(t, s.Load(ctx, "p", "k", "1", &person{}), ErrNotOpen)
	assert.Empty(t, s.IDs(ctx, "p", "k", nil))
	assert.ErrorIs(t, s.Scan(ctx, "p", "k", nil, func(Doc) bool { return true }).Err, ErrNotOpen)

	_, err = s.Purge(ctx)
	assert.ErrorIs(t, err, ErrNotOpen)
}

func TestSchema_Golden(t *testing.T) {
	g := goldie.New(t, goldie.WithFixtureDir("testdata/golden"), goldie.WithNameSuffix(".golden"))

	stmts, err := schemaStatements("data")
	require.NoError(t, err)

	var out string
	for _, stmt := range stmts {
		out += stmt + ";\n\n"
	}
	g.Assert(t, "schema", []byte(out))

	q := newQueries("data")
	frag, err := filter.NewEngine(nil).Predicate(filter.Filter{"a": param.Bool(true)})
	require.NoError(t, err)
	g.Assert(t, "keyspace_page", []byte(q.keyspacePage(docColumns, frag.SQL)+"\n"))
}

func TestStore_ModerncDriver(t *testing.T) {
	cfg := testConfig(t)
	cfg.Driver = config.DriverModernc
	s, _ := createTestStore(t, cfg)
	ctx := context.Background()

	require.True(t, s.Put(ctx, "p", "people", "1", Forever, filter.Filter{"a": param.Bool(true)}, person{Name: "Neil", Age: 38}))

	got, ok := Get[person](ctx, s, "p", "people", "1")
	require.True(t, ok)
	assert.Equal(t, person{Name: "Neil", Age: 38}, got)

	all, report := All[person](ctx, s, "p", "people", filter.Filter{"a": param.Bool(true)})
	require.NoError(t, report.Err)
	assert.Len(t, all, 1)
}

func TestStore_InMemory(t *testing.T) {
	cfg := testConfig(t)
	cfg.DSN = ":memory:"
	cfg.MaxOpenConns = 8
	s, _ := createTestStore(t, cfg)
	ctx := context.Background()

	require.True(t, s.Put(ctx, "p", "people", "1", Forever, nil, person{Name: "Adrian"}))
	_, ok := Get[person](ctx, s, "p", "people", "1")
	assert.True(t, ok)
}

func TestStore_RetryThenSuccess(t *testing.T) {
	var flaky *testutil.FlakyBackend
	s, _ := createTestStore(t, testConfig(t), WithBackend(func(b retry.Backend) retry.Backend {
		flaky = &testutil.FlakyBackend{Inner: b, Match: testutil.FailStatements("INSERT INTO", "SELECT rowid")}
		return flaky
	}))
	ctx := context.Background()

	flaky.Failures = 2
	require.True(t, s.Put(ctx, "p", "people", "1", Forever, nil, person{Name: "Adrian"}))
	assert.Equal(t, 2, flaky.Injected())

	flaky.Failures = 4
	got, ok := Get[person](ctx, s, "p", "people", "1")
	require.True(t, ok)
	assert.Equal(t, "Adrian", got.Name)
	assert.Equal(t, 4, flaky.Injected())
}

func TestStore_RetryExhaustion(t *testing.T) {
	var flaky *testutil.FlakyBackend
	s, _ := createTestStore(t, testConfig(t), WithBackend(func(b retry.Backend) retry.Backend {
		flaky = &testutil.FlakyBackend{Inner: b, Match: testutil.FailStatements("INSERT INTO")}
		return flaky
	}))
	ctx := context.Background()

	flaky.Failures = 1000
	before := flaky.Calls()
	assert.False(t, s.Put(ctx, "p", "people", "1", Forever, nil, person{Name: "Adrian"}))
	assert.Equal(t, 3, flaky.Calls()-before, "exactly MaxAttempts attempts")

	_, err := Lookup[person](ctx, s, "p", "people", "1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_NonTransientNotRetried(t *testing.T) {
	var flaky *testutil.FlakyBackend
	s, _ := createTestStore(t, testConfig(t), WithBackend(func(b retry.Backend) retry.Backend {
		flaky = &testutil.FlakyBackend{Inner: b, Match: testutil.FailStatements("DELETE FROM")}
		return flaky
	}))

	flaky.Err = fmt.Errorf("constraint failed")
	flaky.Failures = 1000
	before := flaky.Calls()
	assert.False(t, s.Delete(context.Background(), "p", "people", "1"))
	assert.Equal(t, 1, flaky.Calls()-before)
}

func TestStore_ConcurrentPuts(t *testing.T) {
	cfg := testConfig(t)
	cfg.MaxOpenConns = 4
	cfg.Retry.MaxAttempts = 10
	s, _ := createTestStore(t, cfg)
	ctx := context.Background()

	var g errgroup.Group
	for i := 0; i < 40; i++ {
		i := i
		g.Go(func() error {
			id := fmt.Sprintf("%02d", i%10)
			if !s.Put(ctx, "p", "people", id, Forever, nil, person{Name: id, Age: i}) {
				return fmt.Errorf("put %s failed", id)
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	assert.Equal(t, 10, countRows(t, s, "p", "people"))
	ids := s.IDs(ctx, "p", "people", nil)
	assert.Len(t, ids, 10)
}

func TestStore_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	s, _ := createTestStore(t, testConfig(t), WithRegisterer(reg))
	ctx := context.Background()

	require.True(t, s.Put(ctx, "p", "people", "1", Forever, nil, person{Name: "Adrian"}))
	_, ok := Get[person](ctx, s, "p", "people", "2")
	require.False(t, ok)

	expected := `
# HELP docstore_store_operations_total Total store operations by outcome
# TYPE docstore_store_operations_total counter
docstore_store_operations_total{op="get",status="miss"} 1
docstore_store_operations_total{op="put",status="ok"} 1
`
	assert.NoError(t, promtest.GatherAndCompare(reg, strings.NewReader(expected), "docstore_store_operations_total"))
}

func TestStore_PurgeAfterClose(t *testing.T) {
	s, _ := createTestStore(t, testConfig(t))
	require.NoError(t, s.Close())

	_, err := s.Purge(context.Background())
	assert.ErrorIs(t, err, ErrNotOpen)
}

func TestStore_JanitorRunsInBackground(t *testing.T) {
	cfg := testConfig(t)
	cfg.JanitorInterval = 5 * time.Millisecond
	s, clock := createTestStore(t, cfg)
	ctx := context.Background()

	require.True(t, s.Put(ctx, "p", "sessions", "1", time.Second, nil, person{}))
	clock.Advance(time.Minute)

	require.Eventually(t, func() bool {
		return countRows(t, s, "p", "sessions") == 0
	}, 2*time.Second, 5*time.Millisecond)
}
