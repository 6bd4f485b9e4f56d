package store

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"time"
)

// MigrationReport summarizes a Migrate run. Every fetched document ends in
// exactly one of Migrated, Skipped, DecodeFailed or PersistFailed.
type MigrationReport struct {
	From, To SchemaVersion

	Fetched       int
	Migrated      int
	Skipped       int
	DecodeFailed  int
	PersistFailed int

	// Err is a failure that stopped the run early.
	Err error
}

// Migrate rewrites every visible document tagged with From's schema
// version. Each is decoded as From and passed to transform; when transform
// returns true the result is put under the same key with To's tag and
// filters and the document's remaining TTL. When it returns false the
// document is left as it is.
func Migrate[From, To Versioned](ctx context.Context, p Provider, transform func(From) (To, bool)) MigrationReport {
	report := MigrationReport{
		From: capabilitiesOf(reflect.TypeOf((*From)(nil)).Elem()).schema,
		To:   capabilitiesOf(reflect.TypeOf((*To)(nil)).Elem()).schema,
	}
	logger := loggerOf(p)

	now := time.Now
	if clk, ok := p.(interface{ Now() time.Time }); ok {
		now = clk.Now
	}

	if report.From == report.To {
		report.Err = fmt.Errorf("%w: %s v%d", ErrSameModel, report.From.Model, report.From.Version)
		return report
	}

	scan := p.ScanModel(ctx, report.From, func(d Doc) bool {
		report.Fetched++

		var old From
		if err := d.Decode(&old); err != nil {
			report.DecodeFailed++
			return true
		}

		next, ok := transform(old)
		if !ok {
			report.Skipped++
			return true
		}

		ttl := d.RemainingTTL(now())
		if !p.Put(ctx, d.Partition, d.Keyspace, d.ID, ttl, nil, next) {
			report.PersistFailed++
			return true
		}
		report.Migrated++
		return true
	})
	report.Err = scan.Err

	logger.Info("migration finished",
		"from_model", report.From.Model,
		"from_version", report.From.Version,
		"to_model", report.To.Model,
		"to_version", report.To.Version,
		"fetched", report.Fetched,
		"migrated", report.Migrated,
		"skipped", report.Skipped,
		"decode_failed", report.DecodeFailed,
		"persist_failed", report.PersistFailed)
	return report
}

func loggerOf(p Provider) *slog.Logger {
	if l, ok := p.(interface{ Logger() *slog.Logger }); ok && l.Logger() != nil {
		return l.Logger()
	}
	return slog.Default()
}
