// Package param provides the closed set of SQL parameter values used by docstore.
//
// Every statement argument the store sends to the backend is a param.Value.
// The set is sealed: only the variants declared here implement the interface,
// so callers build the right variant up front and nothing downstream has to
// inspect a value's dynamic type before binding it.
//
// Variants:
//   - Null: SQL NULL
//   - String, Int, Bool: scalars
//   - Bytes: opaque payloads (document values)
//   - Identifier: a UUID, bound as its canonical string form
//   - Timestamp: a wall-clock instant, bound as epoch seconds
//   - JSON: a structured payload, bound as TEXT
//
// All variants implement driver.Valuer, so a []Value can be handed to
// database/sql unchanged via Args.
package param
