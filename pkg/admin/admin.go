// Package admin exposes the operator HTTP interface: health probes and the
// diagnostic command endpoints under /commands.
package admin

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/windlass-io/windlass/internal/logger"
	"github.com/windlass-io/windlass/pkg/server"
)

// StartError marks a failure to bring up the admin interface. The bootstrap
// maps it to its own exit code so supervisors can tell it apart from general
// startup failures.
type StartError struct {
	Err error
}

func (e *StartError) Error() string {
	return fmt.Sprintf("unable to start admin server: %v", e.Err)
}

func (e *StartError) Unwrap() error {
	return e.Err
}

// Options configures the admin server.
type Options struct {
	// Addr is the listen address
	Addr string

	// ReadTimeout, WriteTimeout and IdleTimeout are applied to the
	// underlying HTTP server
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// Server is the admin HTTP server. It binds synchronously in Start so a
// failure surfaces before anything else is brought up, then serves in the
// background until Stop.
type Server struct {
	httpServer *http.Server
	opts       Options

	mu       sync.Mutex
	listener net.Listener

	stopOnce sync.Once
}

// NewServer builds the admin server around the engine. Call Start to bind
// and begin serving.
func NewServer(opts Options, engine *server.Engine) *Server {
	return &Server{
		httpServer: &http.Server{
			Handler:      newRouter(engine),
			ReadTimeout:  opts.ReadTimeout,
			WriteTimeout: opts.WriteTimeout,
			IdleTimeout:  opts.IdleTimeout,
		},
		opts: opts,
	}
}

// Start binds the listen address and launches the serve loop. A bind failure
// is returned as *StartError; nothing serves after an error.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.opts.Addr)
	if err != nil {
		return &StartError{Err: err}
	}

	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	go func() {
		logger.Info("admin server listening",
			logger.KeyComponent, "admin",
			logger.KeyListenAddr, ln.Addr().String())
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("admin server failed",
				logger.KeyComponent, "admin",
				logger.KeyError, err.Error())
		}
	}()
	return nil
}

// Stop drains in-flight requests and closes the listener. Safe to call
// repeatedly; calls after the first return nil.
func (s *Server) Stop(ctx context.Context) error {
	var stopErr error
	s.stopOnce.Do(func() {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			stopErr = fmt.Errorf("admin server shutdown: %w", err)
			return
		}
		logger.Info("admin server stopped", logger.KeyComponent, "admin")
	})
	return stopErr
}

// Addr returns the bound address, or empty before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}
