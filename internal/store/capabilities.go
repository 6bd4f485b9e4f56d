package store

import (
	"reflect"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/roach88/docstore/internal/filter"
)

// SchemaVersion tags a stored document with the shape it was written in.
type SchemaVersion struct {
	Model   string
	Version int
}

// Versioned is implemented by document types that carry a schema tag.
// SchemaVersion must not depend on field values: it is read once per type
// from the zero value.
type Versioned interface {
	SchemaVersion() SchemaVersion
}

// Filterable is implemented by document types that derive their own
// filter attributes. An explicit filter passed to Put takes precedence.
type Filterable interface {
	Filters() filter.Filter
}

// capabilities records which optional interfaces a document type implements.
type capabilities struct {
	versioned  bool
	schema     SchemaVersion
	filterable bool
}

var capabilityCache = xsync.NewMapOf[reflect.Type, capabilities]()

// capabilitiesOf resolves the capabilities of t once and caches them.
func capabilitiesOf(t reflect.Type) capabilities {
	if t == nil {
		return capabilities{}
	}
	caps, _ := capabilityCache.LoadOrCompute(t, func() capabilities {
		return resolveCapabilities(t)
	})
	return caps
}

// resolveCapabilities inspects a *T, whose method set covers both value and
// pointer receivers.
func resolveCapabilities(t reflect.Type) capabilities {
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	ptr := reflect.New(t).Interface()

	var caps capabilities
	if v, ok := ptr.(Versioned); ok {
		caps.versioned = true
		caps.schema = v.SchemaVersion()
	}
	_, caps.filterable = ptr.(Filterable)
	return caps
}

// filtersOf calls Filters on obj, taking its address when the method has a
// pointer receiver.
func filtersOf(obj any) filter.Filter {
	if f, ok := obj.(Filterable); ok {
		return f.Filters()
	}
	v := reflect.ValueOf(obj)
	ptr := reflect.New(v.Type())
	ptr.Elem().Set(v)
	if f, ok := ptr.Interface().(Filterable); ok {
		return f.Filters()
	}
	return nil
}
