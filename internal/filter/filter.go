package filter

import (
	"fmt"
	"regexp"
	"sort"

	"github.com/roach88/docstore/internal/param"
)

var keyPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// Filter maps attribute names to scalar values (param.String, param.Int or
// param.Bool).
type Filter map[string]param.Value

// FromStrings builds a Filter of string values.
func FromStrings(m map[string]string) Filter {
	if m == nil {
		return nil
	}
	f := make(Filter, len(m))
	for k, v := range m {
		f[k] = param.String(v)
	}
	return f
}

// Parse builds a Filter from command-line text, inferring each value's
// variant with param.Parse: "active=true" filters on a Bool.
func Parse(m map[string]string) Filter {
	if m == nil {
		return nil
	}
	f := make(Filter, len(m))
	for k, v := range m {
		f[k] = param.Parse(v)
	}
	return f
}

// Keys returns the attribute names in sorted order.
func (f Filter) Keys() []string {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Validate checks attribute names and value kinds.
func (f Filter) Validate() error {
	for _, k := range f.Keys() {
		if !keyPattern.MatchString(k) {
			return fmt.Errorf("filter key %q: must match %s", k, keyPattern)
		}
		switch f[k].(type) {
		case param.String, param.Int, param.Bool:
		default:
			return fmt.Errorf("filter key %q: unsupported value type %T", k, f[k])
		}
	}
	return nil
}
