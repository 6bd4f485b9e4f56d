package store

import (
	"errors"
	"fmt"

	"github.com/roach88/docstore/internal/codec"
)

var (
	// ErrNotOpen is returned by operations on a store that is not open.
	ErrNotOpen = errors.New("store: not open")

	// ErrNotFound means no visible document exists for the key.
	ErrNotFound = errors.New("store: document not found")

	// ErrSameModel is returned when a migration's source and target share
	// a model and version.
	ErrSameModel = errors.New("store: migration source and target have the same schema version")
)

// DecodeError reports a stored document that could not be turned into the
// requested type. It is logged and the document skipped; it never aborts a
// batch.
type DecodeError struct {
	Type      string
	Partition string
	Keyspace  string
	ID        string

	// Path is the JSON coding path of a shape mismatch, when known.
	Path string

	Err error
}

// Error implements the error interface.
func (e *DecodeError) Error() string {
	key := ComposeKey(e.Partition, e.Keyspace, e.ID)
	if e.Path != "" {
		return fmt.Sprintf("decode %s %s at %q: %v", e.Type, key, e.Path, e.Err)
	}
	return fmt.Sprintf("decode %s %s: %v", e.Type, key, e.Err)
}

// Unwrap returns the underlying error.
func (e *DecodeError) Unwrap() error {
	return e.Err
}

// IsDecodeError reports whether err is a DecodeError.
func IsDecodeError(err error) bool {
	var de *DecodeError
	return errors.As(err, &de)
}

// IsEncryptionError reports whether err came from opening a sealed payload:
// wrong key or corrupted ciphertext.
func IsEncryptionError(err error) bool {
	var ce *codec.Error
	return errors.As(err, &ce) && ce.Kind == codec.KindEncryption
}
