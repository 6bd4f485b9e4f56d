package retry

import "fmt"

// ExecError is returned when a statement fails for good, either because the
// failure was not transient or because attempts ran out.
type ExecError struct {
	Op        string
	Attempts  int
	Transient bool
	Err       error
}

// Error implements the error interface.
func (e *ExecError) Error() string {
	if e.Transient {
		return fmt.Sprintf("%s: gave up after %d attempts: %v", e.Op, e.Attempts, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

// Unwrap returns the last underlying error.
func (e *ExecError) Unwrap() error {
	return e.Err
}
