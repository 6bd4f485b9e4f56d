package store

import (
	"errors"
	"strings"

	sqlite3 "github.com/mattn/go-sqlite3"
	"modernc.org/sqlite"
	sqlitelib "modernc.org/sqlite/lib"

	"github.com/roach88/docstore/internal/config"
)

// connectionPragmas are applied to every connection the pool opens.
var connectionPragmas = []struct{ name, value string }{
	{"busy_timeout", "5000"},
	{"journal_mode", "WAL"},
	{"synchronous", "NORMAL"},
}

// connectionDSN appends connectionPragmas to dsn in the driver's parameter
// syntax: _busy_timeout=5000 for mattn, _pragma=busy_timeout(5000) for
// modernc. Pragmas the DSN already sets are left as they are.
func connectionDSN(driverName, dsn string) string {
	var params []string
	for _, p := range connectionPragmas {
		var key, param string
		if driverName == config.DriverModernc {
			key = "_pragma=" + p.name + "("
			param = key + p.value + ")"
		} else {
			key = "_" + p.name + "="
			param = key + p.value
		}
		if !strings.Contains(dsn, key) {
			params = append(params, param)
		}
	}
	if len(params) == 0 {
		return dsn
	}

	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + strings.Join(params, "&")
}

// sqliteContention classifies SQLITE_BUSY and SQLITE_LOCKED from either
// driver as transient.
func sqliteContention(err error) bool {
	var mattnErr sqlite3.Error
	if errors.As(err, &mattnErr) {
		return mattnErr.Code == sqlite3.ErrBusy || mattnErr.Code == sqlite3.ErrLocked
	}

	var moderncErr *sqlite.Error
	if errors.As(err, &moderncErr) {
		switch moderncErr.Code() & 0xff {
		case sqlitelib.SQLITE_BUSY, sqlitelib.SQLITE_LOCKED:
			return true
		}
	}
	return false
}
