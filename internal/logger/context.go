package logger

import (
	"context"
	"time"
)

// contextKey is a private type for context keys to avoid collisions
type contextKey struct{}

// connContextKey is the key for ConnContext in context.Context
var connContextKey = contextKey{}

// ConnContext holds connection-scoped logging context
type ConnContext struct {
	ConnID    string    // Connection identifier
	ClientIP  string    // Client IP address (without port)
	Command   string    // Command verb being served
	Path      string    // Node path the command targets
	StartTime time.Time // For duration calculation
}

// WithContext returns a new context with the given ConnContext
func WithContext(ctx context.Context, cc *ConnContext) context.Context {
	return context.WithValue(ctx, connContextKey, cc)
}

// FromContext retrieves the ConnContext from context, or nil if not present
func FromContext(ctx context.Context) *ConnContext {
	if ctx == nil {
		return nil
	}
	cc, _ := ctx.Value(connContextKey).(*ConnContext)
	return cc
}

// NewConnContext creates a new ConnContext for a client connection
func NewConnContext(connID, clientIP string) *ConnContext {
	return &ConnContext{
		ConnID:    connID,
		ClientIP:  clientIP,
		StartTime: time.Now(),
	}
}

// Clone creates a copy of the ConnContext
func (cc *ConnContext) Clone() *ConnContext {
	if cc == nil {
		return nil
	}
	return &ConnContext{
		ConnID:    cc.ConnID,
		ClientIP:  cc.ClientIP,
		Command:   cc.Command,
		Path:      cc.Path,
		StartTime: cc.StartTime,
	}
}

// WithCommand returns a copy with the command verb set
func (cc *ConnContext) WithCommand(cmd string) *ConnContext {
	clone := cc.Clone()
	if clone != nil {
		clone.Command = cmd
	}
	return clone
}

// WithPath returns a copy with the target path set
func (cc *ConnContext) WithPath(path string) *ConnContext {
	clone := cc.Clone()
	if clone != nil {
		clone.Path = path
	}
	return clone
}

// DurationMs returns the duration since StartTime in milliseconds
func (cc *ConnContext) DurationMs() float64 {
	if cc == nil || cc.StartTime.IsZero() {
		return 0
	}
	return float64(time.Since(cc.StartTime).Microseconds()) / 1000.0
}
