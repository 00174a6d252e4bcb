// Package exitcode maps the outcome of a server run to its process exit
// code. The codes are an operational contract: supervisors key restart
// decisions off them, so the mapping stays narrow and stable.
package exitcode

import (
	"errors"

	"github.com/windlass-io/windlass/pkg/admin"
	"github.com/windlass-io/windlass/pkg/config"
	"github.com/windlass-io/windlass/pkg/txnlog"
)

// Code is a process exit code.
type Code int

const (
	// Success means the server ran and shut down cleanly.
	Success Code = 0

	// UnexpectedError covers every failure without a more specific code.
	UnexpectedError Code = 1

	// InvalidInvocation means bad arguments or an unusable configuration.
	InvalidInvocation Code = 2

	// DatadirUnavailable means the data directory could not be opened,
	// created, or locked.
	DatadirUnavailable Code = 3

	// AdminServerError means the admin server could not start.
	AdminServerError Code = 4
)

// FromError classifies the outcome of a server run. A nil error is a clean
// shutdown. Checks run from most to least specific; anything unclassified
// falls through to UnexpectedError.
func FromError(err error) Code {
	if err == nil {
		return Success
	}

	var usageErr *config.UsageError
	if errors.As(err, &usageErr) {
		return InvalidInvocation
	}

	var parseErr *config.ParseError
	if errors.As(err, &parseErr) {
		return InvalidInvocation
	}

	var dirErr *txnlog.DatadirError
	if errors.As(err, &dirErr) {
		return DatadirUnavailable
	}

	var adminErr *admin.StartError
	if errors.As(err, &adminErr) {
		return AdminServerError
	}

	return UnexpectedError
}

// Int returns the numeric code for os.Exit.
func (c Code) Int() int {
	return int(c)
}

func (c Code) String() string {
	switch c {
	case Success:
		return "success"
	case UnexpectedError:
		return "unexpected error"
	case InvalidInvocation:
		return "invalid invocation"
	case DatadirUnavailable:
		return "data directory unavailable"
	case AdminServerError:
		return "admin server error"
	default:
		return "unknown"
	}
}
