package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/roach88/docstore/internal/filter"
	"github.com/roach88/docstore/internal/metrics"
	"github.com/roach88/docstore/internal/param"
)

// ScanReport summarizes a multi-row read.
type ScanReport struct {
	// Rows is the number of visible documents fetched.
	Rows int

	// Decoded and Failed count documents handed to typed callers and
	// documents skipped because they would not decode.
	Decoded int
	Failed  int

	// Err is the failure that ended the scan early, if any. Documents
	// delivered before it remain valid.
	Err error
}

// Load decodes the visible document under (partition, keyspace, id) into
// dst. It returns ErrNotFound when there is none, a *DecodeError when the
// payload does not fit dst, or the statement failure.
func (s *Store) Load(ctx context.Context, partition, keyspace, id string, dst any) error {
	const op = "get"
	start := time.Now()

	doc, err := s.loadDoc(ctx, partition, keyspace, id)
	switch {
	case errors.Is(err, ErrNotFound):
		s.observe(op, metrics.StatusMiss, start)
		return err
	case err != nil:
		s.logger.Error("get failed",
			"partition", partition,
			"keyspace", keyspace,
			"id", id,
			"error", err)
		s.observe(op, metrics.StatusError, start)
		return err
	}

	if err := doc.Decode(dst); err != nil {
		s.observe(op, metrics.StatusError, start)
		return err
	}
	s.observe(op, metrics.StatusOK, start)
	return nil
}

func (s *Store) loadDoc(ctx context.Context, partition, keyspace, id string) (Doc, error) {
	b, err := s.conn()
	if err != nil {
		return Doc{}, err
	}

	var row docRow
	var found bool
	args := param.Args(
		param.String(partition),
		param.String(keyspace),
		param.String(id),
		param.Timestamp(s.now()),
	)
	err = s.exec.Query(ctx, b, "get", s.q.get, args, func(rows *sql.Rows) error {
		found = false
		if !rows.Next() {
			return nil
		}
		r, err := scanDocRow(rows)
		if err != nil {
			return err
		}
		row, found = r, true
		return nil
	})
	if err != nil {
		return Doc{}, fmt.Errorf("read document: %w", err)
	}
	if !found {
		return Doc{}, ErrNotFound
	}
	return s.newDoc(row, "get"), nil
}

// IDs returns the identifiers of the visible documents in (partition,
// keyspace) matching f, oldest write first. Failures are logged and yield
// the identifiers read so far.
func (s *Store) IDs(ctx context.Context, partition, keyspace string, f filter.Filter) []string {
	ids := []string{}
	s.scanKeyspace(ctx, "ids", idColumns, partition, keyspace, f, func(d Doc) bool {
		ids = append(ids, d.ID)
		return true
	})
	return ids
}

// Scan delivers the visible documents in (partition, keyspace) matching f
// to fn, oldest write first, until fn returns false. Rows are fetched in
// pages; no connection is held while fn runs.
func (s *Store) Scan(ctx context.Context, partition, keyspace string, f filter.Filter, fn func(Doc) bool) ScanReport {
	return s.scanKeyspace(ctx, "scan", docColumns, partition, keyspace, f, fn)
}

// ScanModel delivers the visible documents tagged with tag, across all
// partitions and keyspaces, until fn returns false.
func (s *Store) ScanModel(ctx context.Context, tag SchemaVersion, fn func(Doc) bool) ScanReport {
	const op = "scan_model"
	start := time.Now()

	base := param.Args(param.String(tag.Model), param.Int(tag.Version))
	report := s.scanPages(ctx, op, s.q.modelPage(), base, fn)
	s.finishScan(op, start, report, "model", tag.Model, "version", tag.Version)
	return report
}

func (s *Store) scanKeyspace(ctx context.Context, op, columns, partition, keyspace string, f filter.Filter, fn func(Doc) bool) ScanReport {
	start := time.Now()

	frag, err := s.filters.Predicate(f)
	if err != nil {
		report := ScanReport{Err: fmt.Errorf("build filter: %w", err)}
		s.finishScan(op, start, report, "partition", partition, "keyspace", keyspace)
		return report
	}

	base := param.Args(param.String(partition), param.String(keyspace))
	report := s.scanPages(ctx, op, s.q.keyspacePage(columns, frag.SQL), base, fn, frag.Args...)
	s.finishScan(op, start, report, "partition", partition, "keyspace", keyspace)
	return report
}

// scanPages runs query page by page. Its placeholders are, in order: the
// base arguments, the visibility timestamp, the filter arguments, the
// cursor (timestamp, timestamp, rowid) and the page size. Each page is one
// retried statement; fn runs between pages.
func (s *Store) scanPages(ctx context.Context, op, query string, base []any, fn func(Doc) bool, filterArgs ...param.Value) ScanReport {
	var report ScanReport

	b, err := s.conn()
	if err != nil {
		report.Err = err
		return report
	}

	// One visibility instant for the whole scan.
	now := param.Timestamp(s.now())

	var lastTS, lastRowID int64 = math.MinInt64, math.MinInt64
	pageSize := s.cfg.PageSize

	for {
		args := append([]any{}, base...)
		args = append(args, now)
		args = append(args, param.Args(filterArgs...)...)
		args = append(args, param.Int(lastTS), param.Int(lastTS), param.Int(lastRowID), param.Int(pageSize))

		var page []docRow
		err := s.exec.Query(ctx, b, op, query, args, func(rows *sql.Rows) error {
			page = page[:0]
			for rows.Next() {
				r, err := scanDocRow(rows)
				if err != nil {
					return err
				}
				page = append(page, r)
			}
			return nil
		})
		if err != nil {
			report.Err = fmt.Errorf("read page: %w", err)
			return report
		}

		for _, r := range page {
			report.Rows++
			lastTS, lastRowID = r.timestamp, r.rowid
			if !fn(s.newDoc(r, op)) {
				return report
			}
		}

		if len(page) < pageSize {
			return report
		}
	}
}

func (s *Store) finishScan(op string, start time.Time, report ScanReport, attrs ...any) {
	if report.Err != nil {
		s.logger.Error(op+" failed", append(attrs, "rows", report.Rows, "error", report.Err)...)
		s.observe(op, metrics.StatusError, start)
		return
	}
	s.observe(op, metrics.StatusOK, start)
}
