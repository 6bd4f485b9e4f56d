package store

import (
	"database/sql"
	"errors"
	"fmt"
	"reflect"
	"time"

	"github.com/roach88/docstore/internal/codec"
)

// payloadLogLimit caps the payload excerpt in decode failure logs.
const payloadLogLimit = 2048

// Doc is one stored document as seen by a scan. Its payload is decoded on
// demand with Decode.
type Doc struct {
	Partition string
	Keyspace  string
	ID        string
	Timestamp time.Time

	// ExpiresAt is zero when the document never expires.
	ExpiresAt time.Time

	// Schema is the stored model/version tag; meaningful when Tagged.
	Schema SchemaVersion
	Tagged bool

	value []byte
	op    string
	store *Store
}

// Decode unmarshals the payload into dst, which must be a pointer.
// Failures are logged with the document's key and returned as *DecodeError.
func (d Doc) Decode(dst any) error {
	return d.store.decode(d, dst)
}

// RemainingTTL returns the TTL that reproduces this document's expiry when
// written at now: Forever for documents that never expire.
func (d Doc) RemainingTTL(now time.Time) time.Duration {
	if d.ExpiresAt.IsZero() {
		return Forever
	}
	secs := d.ExpiresAt.Unix() - now.Unix()
	if secs < 0 {
		secs = 0
	}
	return time.Duration(secs) * time.Second
}

// docRow is the scan target for docColumns and idColumns.
type docRow struct {
	rowid     int64
	partition string
	keyspace  string
	id        string
	value     []byte
	ttl       sql.NullInt64
	timestamp int64
	model     sql.NullString
	version   sql.NullInt64
}

func scanDocRow(rows *sql.Rows) (docRow, error) {
	var r docRow
	err := rows.Scan(&r.rowid, &r.partition, &r.keyspace, &r.id, &r.value, &r.ttl, &r.timestamp, &r.model, &r.version)
	if err != nil {
		return docRow{}, fmt.Errorf("scan document: %w", err)
	}
	return r, nil
}

func (s *Store) newDoc(r docRow, op string) Doc {
	d := Doc{
		Partition: r.partition,
		Keyspace:  r.keyspace,
		ID:        r.id,
		Timestamp: time.Unix(r.timestamp, 0).UTC(),
		value:     r.value,
		op:        op,
		store:     s,
	}
	if r.ttl.Valid {
		d.ExpiresAt = time.Unix(r.ttl.Int64, 0).UTC()
	}
	if r.model.Valid {
		d.Tagged = true
		d.Schema = SchemaVersion{Model: r.model.String, Version: int(r.version.Int64)}
	}
	return d
}

func (s *Store) decode(d Doc, dst any) error {
	typ := reflect.TypeOf(dst)
	if typ == nil || typ.Kind() != reflect.Pointer {
		return fmt.Errorf("decode: destination must be a pointer, got %T", dst)
	}
	typ = typ.Elem()

	derr := &DecodeError{
		Type:      typ.String(),
		Partition: d.Partition,
		Keyspace:  d.Keyspace,
		ID:        d.ID,
	}

	caps := capabilitiesOf(typ)
	if caps.versioned && d.Tagged && d.Schema != caps.schema {
		derr.Err = fmt.Errorf("stored as %s v%d, want %s v%d",
			d.Schema.Model, d.Schema.Version, caps.schema.Model, caps.schema.Version)
		s.logDecodeFailure(d, derr, "")
		return derr
	}

	err := s.codec.Decode(d.value, dst)
	if err == nil {
		return nil
	}
	derr.Err = err

	var cerr *codec.Error
	if errors.As(err, &cerr) {
		derr.Path = cerr.Path
	}

	// Re-open the payload for the log; sealed payloads that will not open
	// are logged raw.
	payload := d.value
	if plain, openErr := s.codec.Open(d.value); openErr == nil {
		payload = plain
	}
	s.logDecodeFailure(d, derr, codec.Pretty(payload, payloadLogLimit))
	return derr
}

func (s *Store) logDecodeFailure(d Doc, derr *DecodeError, payload string) {
	s.metrics.DecodeFailure(d.op)
	s.logger.Warn("document decode failed",
		"op", d.op,
		"type", derr.Type,
		"partition", d.Partition,
		"keyspace", d.Keyspace,
		"id", d.ID,
		"path", derr.Path,
		"payload", payload,
		"error", derr.Err)
}
