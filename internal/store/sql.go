package store

import (
	"bytes"
	_ "embed"
	"fmt"
	"strings"
	"text/template"
)

//go:embed schema.sql
var schemaSQL string

var schemaTemplate = template.Must(template.New("schema").Parse(schemaSQL))

// Schema version tracking:
// 0 - Initial schema, no filter column
// 1 - Added "filter" column
const currentSchemaVersion = 1

// docColumns is the column list every document scan selects.
const docColumns = `rowid, "partition", "keyspace", "id", "value", "ttl", "timestamp", "model", "version"`

// idColumns matches docColumns but skips the payload.
const idColumns = `rowid, "partition", "keyspace", "id", NULL, "ttl", "timestamp", "model", "version"`

// visible is the TTL predicate. Its parameter is the current epoch second.
const visible = `("ttl" IS NULL OR "ttl" >= ?)`

// after is the keyset cursor predicate for (timestamp, rowid) paging.
const after = `("timestamp" > ? OR ("timestamp" = ? AND rowid > ?))`

// order is the only ordering any multi-row query uses.
const order = `ORDER BY "timestamp" ASC, rowid ASC`

// queries holds the statements for one table. Only the validated table
// name is ever written into SQL text; everything else is bound.
type queries struct {
	table string

	put       string
	get       string
	delete    string
	purge     string
	hasFilter string
	addFilter string
}

func newQueries(table string) queries {
	t := quoteIdent(table)
	return queries{
		table: table,
		put: `INSERT INTO ` + t + ` ("partition", "keyspace", "id", "value", "ttl", "timestamp", "model", "version", "filter")
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT ("partition", "keyspace", "id") DO UPDATE SET
    "value" = excluded."value",
    "ttl" = excluded."ttl",
    "timestamp" = excluded."timestamp",
    "model" = excluded."model",
    "version" = excluded."version",
    "filter" = excluded."filter"`,
		get:       `SELECT ` + docColumns + ` FROM ` + t + ` WHERE "partition" = ? AND "keyspace" = ? AND "id" = ? AND ` + visible,
		delete:    `DELETE FROM ` + t + ` WHERE "partition" = ? AND "keyspace" = ? AND "id" = ?`,
		purge:     `DELETE FROM ` + t + ` WHERE "ttl" IS NOT NULL AND "ttl" < ?`,
		hasFilter: `SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = 'filter'`,
		addFilter: `ALTER TABLE ` + t + ` ADD COLUMN "filter" TEXT NOT NULL DEFAULT ''`,
	}
}

// keyspacePage selects one page of a partition/keyspace scan. fragment is
// a filter.Fragment SQL string, empty or starting with " AND ".
func (q queries) keyspacePage(columns, fragment string) string {
	return `SELECT ` + columns + ` FROM ` + quoteIdent(q.table) +
		` WHERE "partition" = ? AND "keyspace" = ? AND ` + visible + fragment +
		` AND ` + after + ` ` + order + ` LIMIT ?`
}

// modelPage selects one page of documents carrying a model/version tag.
func (q queries) modelPage() string {
	return `SELECT ` + docColumns + ` FROM ` + quoteIdent(q.table) +
		` WHERE "model" = ? AND "version" = ? AND ` + visible +
		` AND ` + after + ` ` + order + ` LIMIT ?`
}

// schemaStatements renders schema.sql for table and splits it into
// statements, since not every driver executes several per call.
func schemaStatements(table string) ([]string, error) {
	var buf bytes.Buffer
	if err := schemaTemplate.Execute(&buf, struct{ Table string }{table}); err != nil {
		return nil, fmt.Errorf("render schema: %w", err)
	}

	var stmts []string
	for _, stmt := range strings.Split(buf.String(), ";") {
		if stmt = strings.TrimSpace(stmt); stmt != "" {
			stmts = append(stmts, stmt)
		}
	}
	return stmts, nil
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
