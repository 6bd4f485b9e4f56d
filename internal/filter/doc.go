// Package filter turns attribute maps into SQL predicate fragments.
//
// Every document carries an auxiliary set of attributes stored in the
// "filter" column. In cleartext mode the column holds a JSON object and
// each pair becomes a json_extract equality. In hashed mode the column
// holds "|h1|h2|...|", one keyed digest per key=value pair, and each pair
// becomes a containment test on its delimited digest. Pairs are always
// ANDed, and an empty filter produces no predicate.
//
// Values are bound as parameters; only the fixed column name is ever
// written into SQL text.
package filter
