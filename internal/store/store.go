package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/roach88/docstore/internal/codec"
	"github.com/roach88/docstore/internal/config"
	"github.com/roach88/docstore/internal/filter"
	"github.com/roach88/docstore/internal/janitor"
	"github.com/roach88/docstore/internal/metrics"
	"github.com/roach88/docstore/internal/param"
	"github.com/roach88/docstore/internal/retry"
)

// Forever is the TTL of a document that never expires. Any negative TTL
// means the same.
const Forever time.Duration = -1

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithClock replaces time.Now for TTL and timestamp computation.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithRegisterer enables Prometheus metrics.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(s *Store) { s.registerer = reg }
}

// WithBackend wraps the connection pool before the executor sees it.
// Tests use it to inject failures.
func WithBackend(wrap func(retry.Backend) retry.Backend) Option {
	return func(s *Store) { s.wrap = wrap }
}

// Store is a document store on a single SQLite table.
//
// Every statement runs through a retry.Executor. Scans page through the
// table with a (timestamp, rowid) cursor, so no connection is held while
// caller callbacks run.
//
// Thread-safety: All methods are safe for concurrent use.
type Store struct {
	cfg        config.Config
	logger     *slog.Logger
	now        func() time.Time
	registerer prometheus.Registerer
	wrap       func(retry.Backend) retry.Backend
	openDB     func(driverName, dsn string) (*sql.DB, error)

	codec   *codec.Codec
	filters *filter.Engine
	exec    *retry.Executor
	metrics *metrics.Metrics
	janitor *janitor.Janitor
	q       queries

	lifecycle sync.Mutex // serializes Open and Close

	mu      sync.RWMutex
	db      *sql.DB
	backend retry.Backend
}

// New builds a closed Store. Codec keys are derived here, once.
func New(cfg config.Config, opts ...Option) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	s := &Store{
		cfg:    cfg,
		logger: slog.Default(),
		now:    time.Now,
		openDB: sql.Open,
		q:      newQueries(cfg.Table),
	}
	for _, opt := range opts {
		opt(s)
	}

	c, err := codec.New(codec.Options{
		Secret: []byte(cfg.EncryptionKey),
		Strict: cfg.StrictDecode,
	})
	if err != nil {
		return nil, fmt.Errorf("create codec: %w", err)
	}
	s.codec = c

	if cfg.HashFilters {
		s.filters = filter.NewEngine(c)
	} else {
		s.filters = filter.NewEngine(nil)
	}

	m, err := metrics.New(s.registerer)
	if err != nil {
		return nil, fmt.Errorf("register metrics: %w", err)
	}
	s.metrics = m

	exec, err := retry.NewExecutor(cfg.Retry.Policy(),
		retry.WithLogger(s.logger),
		retry.WithClassifier(sqliteContention),
		retry.WithObserver(func(op string, attempt int, err error) {
			s.metrics.Retry(op)
		}),
	)
	if err != nil {
		return nil, err
	}
	s.exec = exec

	s.janitor = janitor.New(cfg.JanitorInterval, s.purgeExpired,
		janitor.WithLogger(s.logger),
		janitor.WithOnPass(func(p janitor.Pass) {
			s.metrics.JanitorPass(p.Purged, p.Err)
		}),
	)

	return s, nil
}

// Open connects, applies the schema, and starts the janitor. Connection
// pragmas travel in the DSN so every pooled connection gets them.
// Opening an open store is a no-op.
func (s *Store) Open(ctx context.Context) error {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()
	if _, err := s.conn(); err == nil {
		return nil
	}

	db, err := s.openDB(s.cfg.Driver, connectionDSN(s.cfg.Driver, s.cfg.DSN))
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	// Every connection to an in-memory database is a separate database.
	conns := s.cfg.MaxOpenConns
	if isMemoryDSN(s.cfg.DSN) {
		conns = 1
	}
	db.SetMaxOpenConns(conns)
	db.SetMaxIdleConns(conns)

	if err := s.exec.Do(ctx, "open", db.PingContext); err != nil {
		db.Close()
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	var backend retry.Backend = db
	if s.wrap != nil {
		backend = s.wrap(db)
	}

	if err := s.applySchema(ctx, backend); err != nil {
		db.Close()
		return fmt.Errorf("failed to apply schema: %w", err)
	}

	s.mu.Lock()
	s.db, s.backend = db, backend
	s.mu.Unlock()
	s.janitor.Start(context.WithoutCancel(ctx))

	s.logger.Debug("store opened",
		"driver", s.cfg.Driver,
		"table", s.cfg.Table,
		"encrypted", s.codec.Encrypted(),
		"hashed_filters", s.filters.Hashed())
	return nil
}

// Close stops the janitor and closes the pool. Closing a closed store is
// a no-op.
func (s *Store) Close() error {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	s.mu.Lock()
	db := s.db
	s.db, s.backend = nil, nil
	s.mu.Unlock()
	if db == nil {
		return nil
	}

	// A pass in flight sees ErrNotOpen or a cancelled context.
	s.janitor.Stop()
	if err := db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

// Logger returns the store's logger.
func (s *Store) Logger() *slog.Logger {
	return s.logger
}

// Now returns the store's current time.
func (s *Store) Now() time.Time {
	return s.now()
}

// Purge runs one janitor pass now and returns the number of expired
// documents removed.
func (s *Store) Purge(ctx context.Context) (int64, error) {
	if _, err := s.conn(); err != nil {
		return 0, err
	}
	return s.janitor.RunOnce(ctx)
}

// conn returns the backend, or ErrNotOpen.
func (s *Store) conn() (retry.Backend, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.backend == nil {
		return nil, ErrNotOpen
	}
	return s.backend, nil
}

// observe records an operation's outcome.
func (s *Store) observe(op, status string, start time.Time) {
	s.metrics.Observe(op, status, time.Since(start))
}

// applySchema creates the table and indexes if missing, then runs
// migrations. Idempotent.
func (s *Store) applySchema(ctx context.Context, b retry.Backend) error {
	stmts, err := schemaStatements(s.cfg.Table)
	if err != nil {
		return err
	}
	for _, stmt := range stmts {
		if _, err := s.exec.Exec(ctx, b, "open", stmt); err != nil {
			return fmt.Errorf("failed to execute schema: %w", err)
		}
	}

	if err := s.runMigrations(ctx, b); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// runMigrations applies incremental schema migrations based on user_version.
func (s *Store) runMigrations(ctx context.Context, b retry.Backend) error {
	var version int
	err := s.exec.Query(ctx, b, "open", "PRAGMA user_version", nil, func(rows *sql.Rows) error {
		if rows.Next() {
			return rows.Scan(&version)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}

	if version < 1 {
		if err := s.migrateToV1(ctx, b); err != nil {
			return err
		}
	}

	if version < currentSchemaVersion {
		pragma := fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)
		if _, err := s.exec.Exec(ctx, b, "open", pragma); err != nil {
			return fmt.Errorf("set user_version: %w", err)
		}
	}
	return nil
}

// migrateToV1 adds the filter column to tables created before it existed.
// Tables created from the current schema already have it.
func (s *Store) migrateToV1(ctx context.Context, b retry.Backend) error {
	var count int
	err := s.exec.Query(ctx, b, "open", s.q.hasFilter, param.Args(param.String(s.cfg.Table)), func(rows *sql.Rows) error {
		if rows.Next() {
			return rows.Scan(&count)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("migrate to v1: %w", err)
	}
	if count > 0 {
		return nil
	}
	if _, err := s.exec.Exec(ctx, b, "open", s.q.addFilter); err != nil {
		return fmt.Errorf("migrate to v1: %w", err)
	}
	return nil
}

func isMemoryDSN(dsn string) bool {
	return dsn == ":memory:" || strings.Contains(dsn, "mode=memory")
}
