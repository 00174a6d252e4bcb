// Package audit records server start and stop events for security review.
// Entries go through the structured logger under component=audit so they can
// be routed separately from operational logs. Every outcome of a server run
// produces exactly one entry: a successful start, a failed start, or a stop.
package audit

import (
	"os"
	"os/user"
	"sync/atomic"

	"github.com/windlass-io/windlass/internal/logger"
)

// Result values recorded with each entry.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
	ResultInvoked = "invoked"
)

var enabled atomic.Bool

func init() {
	enabled.Store(true)
}

// SetEnabled turns audit logging on or off. Entries are dropped while
// disabled.
func SetEnabled(on bool) {
	enabled.Store(on)
}

// Enabled reports whether audit logging is active.
func Enabled() bool {
	return enabled.Load()
}

// processUser returns the effective user name, falling back to the USER
// environment variable when the lookup fails (static binaries without cgo
// cannot always resolve the passwd database).
func processUser() string {
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	return os.Getenv("USER")
}

func record(operation, result string, args ...any) {
	if !enabled.Load() {
		return
	}
	fields := []any{
		logger.KeyComponent, "audit",
		"user", processUser(),
		"pid", os.Getpid(),
		"operation", operation,
		"result", result,
	}
	fields = append(fields, args...)
	logger.Info("audit", fields...)
}

// ServerStart records a successful server start.
func ServerStart() {
	record("serverStart", ResultSuccess)
}

// ServerStartFailure records a failed server start with the failure reason.
func ServerStartFailure(reason string) {
	record("serverStart", ResultFailure, logger.KeyReason, reason)
}

// ServerStop records a server stop.
func ServerStop() {
	record("serverStop", ResultInvoked)
}
