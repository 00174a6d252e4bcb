// Package lifecycle owns ordered startup and shutdown of the server's
// subsystems: metrics provider, transaction log, engine, admin interface,
// client listeners, and the container reclaimer.
package lifecycle

import "sync"

// ShutdownSignal is a one-shot gate the main control flow blocks on. Any
// party can fire it: an operator signal, the engine's internal failure path,
// or an external close request. The first call wakes every waiter; later
// calls are no-ops.
type ShutdownSignal struct {
	once sync.Once
	ch   chan struct{}
}

// NewShutdownSignal returns an open gate.
func NewShutdownSignal() *ShutdownSignal {
	return &ShutdownSignal{ch: make(chan struct{})}
}

// Signal fires the gate. Safe from concurrent callers; only the first call
// has effect.
func (s *ShutdownSignal) Signal() {
	s.once.Do(func() {
		close(s.ch)
	})
}

// Await blocks until the gate fires. There is no timeout; waiting
// indefinitely is the intended behavior.
func (s *ShutdownSignal) Await() {
	<-s.ch
}

// Signaled reports whether the gate has fired.
func (s *ShutdownSignal) Signaled() bool {
	select {
	case <-s.ch:
		return true
	default:
		return false
	}
}

// Done exposes the gate for select loops.
func (s *ShutdownSignal) Done() <-chan struct{} {
	return s.ch
}
