package codec

import (
	"bytes"
	"crypto/cipher"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"unicode/utf8"
)

// defaultSalt is the HKDF salt used when Options.Salt is empty.
var defaultSalt = []byte("docstore/hkdf/v1")

// Options configures a Codec.
type Options struct {
	// Secret enables envelope encryption when non-empty.
	Secret []byte

	// Salt overrides the HKDF salt. Changing it makes existing payloads
	// and filter digests unreadable.
	Salt []byte

	// Strict rejects payloads carrying fields the target type does not declare.
	Strict bool
}

// Codec encodes and decodes document payloads. Safe for concurrent use.
type Codec struct {
	aead    cipher.AEAD // nil when encryption is disabled
	hashKey []byte
	strict  bool
}

// New builds a Codec. Keys are derived here, once.
func New(opts Options) (*Codec, error) {
	salt := opts.Salt
	if len(salt) == 0 {
		salt = defaultSalt
	}

	c := &Codec{strict: opts.Strict}

	hashKey, err := deriveKey(opts.Secret, salt, infoFilterHash)
	if err != nil {
		return nil, fmt.Errorf("derive filter hash key: %w", err)
	}
	c.hashKey = hashKey

	if len(opts.Secret) > 0 {
		aead, err := newAEAD(opts.Secret, salt)
		if err != nil {
			return nil, err
		}
		c.aead = aead
	}

	return c, nil
}

// Encrypted reports whether payloads are sealed.
func (c *Codec) Encrypted() bool {
	return c.aead != nil
}

// Encode serializes v, sealing the result when encryption is enabled.
func (c *Codec) Encode(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode: %w", err)
	}
	if c.aead == nil {
		return data, nil
	}
	return c.seal(data)
}

// Decode opens data (when encryption is enabled) and unmarshals it into dst.
// Failures are always *Error.
func (c *Codec) Decode(data []byte, dst any) error {
	plain, err := c.Open(data)
	if err != nil {
		return err
	}

	dec := json.NewDecoder(bytes.NewReader(plain))
	if c.strict {
		dec.DisallowUnknownFields()
	}
	if err := dec.Decode(dst); err != nil {
		return shapeError(err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return &Error{Kind: KindShape, Err: fmt.Errorf("trailing data after document")}
	}
	return nil
}

// Open returns the plaintext JSON for data. Without encryption it returns
// data unchanged.
func (c *Codec) Open(data []byte) ([]byte, error) {
	if c.aead == nil {
		return data, nil
	}
	return c.open(data)
}

// shapeError converts a JSON decoding failure into a KindShape *Error,
// keeping the coding path when encoding/json reports one.
func shapeError(err error) *Error {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		return &Error{Kind: KindShape, Path: typeErr.Field, Err: err}
	}
	return &Error{Kind: KindShape, Err: err}
}

// Pretty renders a payload for diagnostics: indented when it is JSON,
// otherwise quoted. Output is capped at limit bytes, cut on a rune boundary.
func Pretty(payload []byte, limit int) string {
	var out string
	var buf bytes.Buffer
	if json.Valid(payload) && json.Indent(&buf, payload, "", "  ") == nil {
		out = buf.String()
	} else {
		out = fmt.Sprintf("%q", payload)
	}
	if limit > 0 && len(out) > limit {
		for limit > 0 && !utf8.RuneStart(out[limit]) {
			limit--
		}
		return out[:limit] + "…"
	}
	return out
}
