package filter

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/roach88/docstore/internal/param"
)

// column is the quoted name of the filter column. "filter" is a keyword.
const column = `"filter"`

// Hasher computes the keyed digest of one attribute pair.
type Hasher interface {
	HashAttribute(key, value string) string
}

// Fragment is a predicate to append after an existing WHERE clause.
// SQL is empty or starts with " AND ".
type Fragment struct {
	SQL  string
	Args []param.Value
}

// Empty reports whether the fragment adds no condition.
func (f Fragment) Empty() bool {
	return f.SQL == ""
}

// Engine encodes stored filter blobs and renders predicates against them.
type Engine struct {
	hasher Hasher
}

// NewEngine returns an engine in hashed mode when h is non-nil, cleartext
// mode otherwise.
func NewEngine(h Hasher) *Engine {
	return &Engine{hasher: h}
}

// Hashed reports whether attribute values are digested before storage.
func (e *Engine) Hashed() bool {
	return e.hasher != nil
}

// Encode renders the value stored in the filter column.
// Cleartext: a JSON object of text values ("{}" when empty). Hashed:
// "|h1|...|" with digests sorted, or "" when empty. Both modes compare the
// text form of a value, so Int(1) and String("1") match alike.
func (e *Engine) Encode(f Filter) (string, error) {
	if err := f.Validate(); err != nil {
		return "", err
	}

	if !e.Hashed() {
		obj := make(map[string]string, len(f))
		for k, v := range f {
			text, err := param.Text(v)
			if err != nil {
				return "", fmt.Errorf("filter key %q: %w", k, err)
			}
			obj[k] = text
		}
		data, err := json.Marshal(obj)
		if err != nil {
			return "", fmt.Errorf("encode filter: %w", err)
		}
		return string(data), nil
	}

	if len(f) == 0 {
		return "", nil
	}
	digests, err := e.digests(f)
	if err != nil {
		return "", err
	}
	sort.Strings(digests)
	return "|" + strings.Join(digests, "|") + "|", nil
}

// Predicate renders the AND-combined conditions for f. Keys are visited in
// sorted order so the SQL text is stable.
func (e *Engine) Predicate(f Filter) (Fragment, error) {
	if err := f.Validate(); err != nil {
		return Fragment{}, err
	}
	if len(f) == 0 {
		return Fragment{}, nil
	}

	var sb strings.Builder
	var args []param.Value

	if e.Hashed() {
		digests, err := e.digests(f)
		if err != nil {
			return Fragment{}, err
		}
		for _, d := range digests {
			sb.WriteString(" AND instr(" + column + ", ?) > 0")
			args = append(args, param.String("|"+d+"|"))
		}
		return Fragment{SQL: sb.String(), Args: args}, nil
	}

	// Rows written in hashed mode hold no JSON; the CASE keeps json_extract
	// from failing on them.
	for _, k := range f.Keys() {
		text, err := param.Text(f[k])
		if err != nil {
			return Fragment{}, fmt.Errorf("filter key %q: %w", k, err)
		}
		sb.WriteString(" AND json_extract(CASE WHEN json_valid(" + column + ") THEN " + column + " END, ?) = ?")
		args = append(args, param.String(`$."`+k+`"`), param.String(text))
	}
	return Fragment{SQL: sb.String(), Args: args}, nil
}

// digests returns one digest per pair, in sorted key order.
func (e *Engine) digests(f Filter) ([]string, error) {
	out := make([]string, 0, len(f))
	for _, k := range f.Keys() {
		text, err := param.Text(f[k])
		if err != nil {
			return nil, fmt.Errorf("filter key %q: %w", k, err)
		}
		out = append(out, e.hasher.HashAttribute(k, text))
	}
	return out, nil
}
