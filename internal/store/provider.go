package store

import (
	"context"
	"time"

	"github.com/roach88/docstore/internal/filter"
)

// Provider is the storage contract the typed helpers are written against.
// *Store implements it.
type Provider interface {
	Open(ctx context.Context) error
	Close() error

	Put(ctx context.Context, partition, keyspace, id string, ttl time.Duration, f filter.Filter, obj any) bool
	Load(ctx context.Context, partition, keyspace, id string, dst any) error
	Delete(ctx context.Context, partition, keyspace, id string) bool

	IDs(ctx context.Context, partition, keyspace string, f filter.Filter) []string
	Scan(ctx context.Context, partition, keyspace string, f filter.Filter, fn func(Doc) bool) ScanReport
	ScanModel(ctx context.Context, tag SchemaVersion, fn func(Doc) bool) ScanReport
}

var _ Provider = (*Store)(nil)

// Get returns the visible document under (partition, keyspace, id) as a T.
// Not found and undecodable documents both yield false; the latter is
// logged.
func Get[T any](ctx context.Context, p Provider, partition, keyspace, id string) (T, bool) {
	v, err := Lookup[T](ctx, p, partition, keyspace, id)
	return v, err == nil
}

// Lookup is Get with the reason: ErrNotFound, a *DecodeError, or the
// statement failure.
func Lookup[T any](ctx context.Context, p Provider, partition, keyspace, id string) (T, error) {
	var v T
	if err := p.Load(ctx, partition, keyspace, id, &v); err != nil {
		var zero T
		return zero, err
	}
	return v, nil
}

// Iterate decodes each visible document in (partition, keyspace) matching
// f and hands it to fn, oldest write first, until fn returns false.
// Documents that fail to decode are skipped and counted.
func Iterate[T any](ctx context.Context, p Provider, partition, keyspace string, f filter.Filter, fn func(T) bool) ScanReport {
	var decoded, failed int
	report := p.Scan(ctx, partition, keyspace, f, func(d Doc) bool {
		var v T
		if err := d.Decode(&v); err != nil {
			failed++
			return true
		}
		decoded++
		return fn(v)
	})
	report.Decoded, report.Failed = decoded, failed
	return report
}

// All returns every visible document in (partition, keyspace) matching f,
// oldest write first. The slice is never nil.
func All[T any](ctx context.Context, p Provider, partition, keyspace string, f filter.Filter) ([]T, ScanReport) {
	out := []T{}
	report := Iterate(ctx, p, partition, keyspace, f, func(v T) bool {
		out = append(out, v)
		return true
	})
	return out, report
}

// Query is All narrowed in memory by pred.
func Query[T any](ctx context.Context, p Provider, partition, keyspace string, f filter.Filter, pred func(T) bool) ([]T, ScanReport) {
	out := []T{}
	report := Iterate(ctx, p, partition, keyspace, f, func(v T) bool {
		if pred(v) {
			out = append(out, v)
		}
		return true
	})
	return out, report
}
