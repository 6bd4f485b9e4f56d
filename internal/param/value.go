package param

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// Value is a sealed interface over the parameter variants in this package.
type Value interface {
	driver.Valuer
	paramValue() // Sealed - only types in this package implement it
}

// Null binds SQL NULL.
type Null struct{}

func (Null) paramValue() {}

// Value implements driver.Valuer.
func (Null) Value() (driver.Value, error) { return nil, nil }

// MarshalJSON implements json.Marshaler for Null.
func (Null) MarshalJSON() ([]byte, error) {
	return []byte("null"), nil
}

// String binds TEXT.
type String string

func (String) paramValue() {}

// Value implements driver.Valuer.
func (s String) Value() (driver.Value, error) { return string(s), nil }

// Int binds INTEGER. Always int64.
type Int int64

func (Int) paramValue() {}

// Value implements driver.Valuer.
func (n Int) Value() (driver.Value, error) { return int64(n), nil }

// Bool binds a boolean. SQLite drivers store it as 0/1.
type Bool bool

func (Bool) paramValue() {}

// Value implements driver.Valuer.
func (b Bool) Value() (driver.Value, error) { return bool(b), nil }

// Bytes binds BLOB.
type Bytes []byte

func (Bytes) paramValue() {}

// Value implements driver.Valuer.
func (b Bytes) Value() (driver.Value, error) { return []byte(b), nil }

// Identifier binds a UUID as its 36-character string form.
type Identifier uuid.UUID

func (Identifier) paramValue() {}

// Value implements driver.Valuer.
func (id Identifier) Value() (driver.Value, error) { return uuid.UUID(id).String(), nil }

// MarshalJSON implements json.Marshaler for Identifier.
func (id Identifier) MarshalJSON() ([]byte, error) {
	return json.Marshal(uuid.UUID(id).String())
}

// Timestamp binds a wall-clock instant as epoch seconds.
// Epoch seconds is the only time convention the store writes.
type Timestamp time.Time

func (Timestamp) paramValue() {}

// Value implements driver.Valuer.
func (t Timestamp) Value() (driver.Value, error) { return time.Time(t).Unix(), nil }

// JSON binds a structured payload as TEXT. The bytes must already be valid JSON.
type JSON []byte

func (JSON) paramValue() {}

// Value implements driver.Valuer.
func (j JSON) Value() (driver.Value, error) {
	if !json.Valid(j) {
		return nil, fmt.Errorf("param: invalid JSON payload")
	}
	return string(j), nil
}

// NullableInt returns Int(*n), or Null when n is nil.
func NullableInt(n *int64) Value {
	if n == nil {
		return Null{}
	}
	return Int(*n)
}

// NullableString returns String(*s), or Null when s is nil.
func NullableString(s *string) Value {
	if s == nil {
		return Null{}
	}
	return String(*s)
}

// Args converts values into the []any form accepted by database/sql.
func Args(values ...Value) []any {
	args := make([]any, len(values))
	for i, v := range values {
		if v == nil {
			v = Null{}
		}
		args[i] = v
	}
	return args
}

// Text renders a scalar value as the text used for filter hashing and CLI output.
// Null renders as the empty string.
func Text(v Value) (string, error) {
	switch val := v.(type) {
	case nil, Null:
		return "", nil
	case String:
		return string(val), nil
	case Int:
		return strconv.FormatInt(int64(val), 10), nil
	case Bool:
		return strconv.FormatBool(bool(val)), nil
	case Identifier:
		return uuid.UUID(val).String(), nil
	case Timestamp:
		return strconv.FormatInt(time.Time(val).Unix(), 10), nil
	default:
		return "", fmt.Errorf("param: %T has no text form", v)
	}
}

// Parse infers a scalar variant from command-line text: "true"/"false" become
// Bool, base-10 integers become Int, everything else is a String.
func Parse(s string) Value {
	if s == "true" || s == "false" {
		return Bool(s == "true")
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return Int(n)
	}
	return String(s)
}
