package retry

import (
	"context"
	"database/sql/driver"
	"errors"
	"net"
	"strings"
)

// Classifier reports whether err is worth another attempt. Executors
// consult registered classifiers after the built-in patterns.
type Classifier func(err error) bool

// transientPatterns are matched case-insensitively against the error text.
// Drivers rarely expose typed errors for these, so text is what we have.
var transientPatterns = []string{
	"connection reset",
	"connection refused",
	"connection closed",
	"bad connection",
	"broken pipe",
	"timeout",
	"timed out",
	"too many connections",
	"deadlock",
	"serialization failure",
	"could not serialize",
	"database is locked",
	"database table is locked",
	"database is busy",
	"sqlstate 08",
	"sqlstate 40001",
	"sqlstate 40p01",
	"sqlstate 53300",
}

// IsTransient applies the built-in classification. Context cancellation
// and deadline expiry are never transient: the caller has given up.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, driver.ErrBadConn) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, pattern := range transientPatterns {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}
