package txnlog

import (
	"errors"
	"fmt"
)

// ErrDatadirInUse is returned when another process holds the data directory
// lock. Two servers sharing a data directory would corrupt each other's
// snapshots and log.
var ErrDatadirInUse = errors.New("data directory already in use by another process")

// ErrClosed is returned by operations on a closed log.
var ErrClosed = errors.New("transaction log is closed")

// DatadirError reports that the data or log directory could not be used:
// creation failed, the directory lock is held, or the log store would not
// open. It maps to the datadir-unavailable exit code.
type DatadirError struct {
	// Dir is the directory that could not be used
	Dir string

	// Err is the underlying failure
	Err error
}

func (e *DatadirError) Error() string {
	return fmt.Sprintf("unable to access data directory %s: %v", e.Dir, e.Err)
}

// Unwrap returns the underlying error, enabling errors.Is and errors.As.
func (e *DatadirError) Unwrap() error {
	return e.Err
}
