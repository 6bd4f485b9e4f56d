package codec

import "fmt"

// Kind categorizes a codec failure.
type Kind int

const (
	// KindShape means the payload did not match the requested Go type.
	KindShape Kind = iota + 1

	// KindEncryption means the envelope could not be opened: wrong key,
	// corrupted ciphertext, or a missing envelope.
	KindEncryption
)

// String implements fmt.Stringer.
func (k Kind) String() string {
	switch k {
	case KindShape:
		return "shape"
	case KindEncryption:
		return "encryption"
	default:
		return "unknown"
	}
}

// Error is returned by Decode and Open.
type Error struct {
	Kind Kind

	// Path is the JSON coding path of a shape mismatch, when known.
	Path string

	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("codec %s error at %q: %v", e.Kind, e.Path, e.Err)
	}
	return fmt.Sprintf("codec %s error: %v", e.Kind, e.Err)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}
