package store

import (
	"context"
	"fmt"
	"reflect"
	"time"

	"github.com/roach88/docstore/internal/filter"
	"github.com/roach88/docstore/internal/metrics"
	"github.com/roach88/docstore/internal/param"
)

// Put writes obj under (partition, keyspace, id), replacing any existing
// document in full with a single upsert.
//
// A negative ttl (Forever) stores a document that never expires; otherwise
// it expires at now + ttl. A nil f falls back to obj's Filters when obj is
// Filterable. The model/version tag comes from obj's SchemaVersion when obj
// is Versioned.
//
// Put reports whether the write was confirmed. Failures are logged, not
// returned.
func (s *Store) Put(ctx context.Context, partition, keyspace, id string, ttl time.Duration, f filter.Filter, obj any) bool {
	const op = "put"
	start := time.Now()

	if err := s.put(ctx, partition, keyspace, id, ttl, f, obj); err != nil {
		s.logger.Error("put failed",
			"partition", partition,
			"keyspace", keyspace,
			"id", id,
			"error", err)
		s.observe(op, metrics.StatusError, start)
		return false
	}
	s.observe(op, metrics.StatusOK, start)
	return true
}

func (s *Store) put(ctx context.Context, partition, keyspace, id string, ttl time.Duration, f filter.Filter, obj any) error {
	b, err := s.conn()
	if err != nil {
		return err
	}

	caps := capabilitiesOf(reflect.TypeOf(obj))

	value, err := s.codec.Encode(obj)
	if err != nil {
		return fmt.Errorf("write document: %w", err)
	}

	if f == nil && caps.filterable {
		f = filtersOf(obj)
	}
	blob, err := s.filters.Encode(f)
	if err != nil {
		return fmt.Errorf("write document: %w", err)
	}

	now := s.now()

	var expiry param.Value = param.Null{}
	if ttl >= 0 {
		expiry = param.Int(now.Add(ttl).Unix())
	}

	var model, version param.Value = param.Null{}, param.Null{}
	if caps.versioned {
		model = param.String(caps.schema.Model)
		version = param.Int(caps.schema.Version)
	}

	_, err = s.exec.Exec(ctx, b, "put", s.q.put, param.Args(
		param.String(partition),
		param.String(keyspace),
		param.String(id),
		param.Bytes(value),
		expiry,
		param.Timestamp(now),
		model,
		version,
		param.String(blob),
	)...)
	if err != nil {
		return fmt.Errorf("write document: %w", err)
	}
	return nil
}

// Delete removes the document under (partition, keyspace, id). Deleting
// an absent document succeeds. Failures are logged and reported as false.
func (s *Store) Delete(ctx context.Context, partition, keyspace, id string) bool {
	const op = "delete"
	start := time.Now()

	err := func() error {
		b, err := s.conn()
		if err != nil {
			return err
		}
		_, err = s.exec.Exec(ctx, b, op, s.q.delete, param.Args(
			param.String(partition),
			param.String(keyspace),
			param.String(id),
		)...)
		return err
	}()
	if err != nil {
		s.logger.Error("delete failed",
			"partition", partition,
			"keyspace", keyspace,
			"id", id,
			"error", err)
		s.observe(op, metrics.StatusError, start)
		return false
	}
	s.observe(op, metrics.StatusOK, start)
	return true
}

// purgeExpired deletes every document whose expiry has passed. It is the
// janitor's PurgeFunc.
func (s *Store) purgeExpired(ctx context.Context) (int64, error) {
	const op = "purge"
	start := time.Now()

	b, err := s.conn()
	if err != nil {
		return 0, err
	}

	res, err := s.exec.Exec(ctx, b, op, s.q.purge, param.Args(param.Timestamp(s.now()))...)
	if err != nil {
		s.observe(op, metrics.StatusError, start)
		return 0, fmt.Errorf("purge expired: %w", err)
	}
	s.observe(op, metrics.StatusOK, start)

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("purge expired: %w", err)
	}
	return n, nil
}
