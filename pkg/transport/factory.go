// Package transport accepts client connections and speaks the line protocol
// against the engine. A Factory owns one listening socket, plain or TLS, and
// the goroutines serving its connections.
package transport

import (
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/windlass-io/windlass/internal/logger"
	"github.com/windlass-io/windlass/pkg/server"
)

// drainTimeout bounds Join's wait for in-flight connections before they are
// force-closed.
const drainTimeout = 30 * time.Second

// Factory manages one listener's full lifecycle: Configure binds the socket,
// Startup attaches the engine and begins accepting, Shutdown stops intake and
// nudges readers, Join waits for the drain.
type Factory struct {
	name     string
	maxPerIP int

	listener net.Listener

	mu       sync.Mutex
	engine   *server.Engine
	conns    map[uint64]net.Conn
	ipCounts map[string]int
	connSeq  uint64

	started      atomic.Bool
	shutdownOnce sync.Once
	shutdownCh   chan struct{}

	acceptWg sync.WaitGroup
	connWg   sync.WaitGroup
}

// NewFactory names the factory for logs; "plain" and "secure" are the two the
// server runs.
func NewFactory(name string) *Factory {
	return &Factory{
		name:       name,
		conns:      make(map[uint64]net.Conn),
		ipCounts:   make(map[string]int),
		shutdownCh: make(chan struct{}),
	}
}

// LoadTLSConfig builds a listener TLS config from PEM-encoded certificate and
// key files.
func LoadTLSConfig(certFile, keyFile string) (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load TLS key pair: %w", err)
	}
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}, nil
}

// Configure binds the listening socket. With a TLS config the socket accepts
// encrypted connections only. maxPerIP caps concurrent connections from one
// client address; zero means unlimited.
func (f *Factory) Configure(addr string, maxPerIP int, tlsConf *tls.Config) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to bind %s listener on %s: %w", f.name, addr, err)
	}
	if tlsConf != nil {
		ln = tls.NewListener(ln, tlsConf)
	}

	f.listener = ln
	f.maxPerIP = maxPerIP
	logger.Info("listener bound",
		logger.KeyComponent, "transport",
		logger.KeySubsystem, f.name,
		logger.KeyListenAddr, ln.Addr().String())
	return nil
}

// Startup attaches the engine and starts the accept loop. When activate is
// set this call also performs the engine's one-time activation; with two
// listeners configured exactly one passes activate.
func (f *Factory) Startup(engine *server.Engine, activate bool) error {
	if f.listener == nil {
		return fmt.Errorf("%s listener is not configured", f.name)
	}
	if !f.started.CompareAndSwap(false, true) {
		return fmt.Errorf("%s listener already started", f.name)
	}

	if activate {
		if err := engine.Start(); err != nil {
			return err
		}
	}

	f.mu.Lock()
	f.engine = engine
	f.mu.Unlock()

	f.acceptWg.Add(1)
	go f.acceptLoop()
	return nil
}

// Server returns the engine this factory serves, or nil before Startup.
func (f *Factory) Server() *server.Engine {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.engine
}

// Addr returns the bound address, or empty before Configure.
func (f *Factory) Addr() string {
	if f.listener == nil {
		return ""
	}
	return f.listener.Addr().String()
}

// ActiveConns returns the number of connections currently being served.
func (f *Factory) ActiveConns() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.conns)
}

func (f *Factory) acceptLoop() {
	defer f.acceptWg.Done()

	logger.Info("accepting connections",
		logger.KeyComponent, "transport",
		logger.KeySubsystem, f.name,
		logger.KeyListenAddr, f.listener.Addr().String())

	for {
		conn, err := f.listener.Accept()
		if err != nil {
			select {
			case <-f.shutdownCh:
				return
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			logger.Debug("accept failed",
				logger.KeySubsystem, f.name,
				logger.KeyError, err.Error())
			continue
		}

		if tcp, ok := conn.(*net.TCPConn); ok {
			_ = tcp.SetNoDelay(true)
		}

		ip := remoteIP(conn)
		id, ok := f.track(ip, conn)
		if !ok {
			logger.Warn("connection limit reached for client",
				logger.KeySubsystem, f.name,
				logger.KeyClientIP, ip)
			_ = conn.Close()
			continue
		}

		go f.serve(id, ip, conn)
	}
}

// track registers the connection, enforcing the per-IP cap. Returns false
// when the client is over its limit.
func (f *Factory) track(ip string, conn net.Conn) (uint64, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.maxPerIP > 0 && f.ipCounts[ip] >= f.maxPerIP {
		return 0, false
	}

	f.connSeq++
	id := f.connSeq
	f.conns[id] = conn
	f.ipCounts[ip]++
	f.connWg.Add(1)
	return id, true
}

// release undoes track and closes the socket.
func (f *Factory) release(id uint64, ip string, conn net.Conn) {
	f.mu.Lock()
	delete(f.conns, id)
	f.ipCounts[ip]--
	if f.ipCounts[ip] <= 0 {
		delete(f.ipCounts, ip)
	}
	f.mu.Unlock()

	_ = conn.Close()
	f.connWg.Done()
}

// Shutdown stops accepting and interrupts blocked readers so serve loops can
// wind down. In-flight commands finish; Join waits for them. Safe to call
// repeatedly.
func (f *Factory) Shutdown() {
	f.shutdownOnce.Do(func() {
		close(f.shutdownCh)

		if f.listener != nil {
			if err := f.listener.Close(); err != nil {
				logger.Debug("failed to close listener",
					logger.KeySubsystem, f.name,
					logger.KeyError, err.Error())
			}
		}

		// A short deadline unblocks reads without cutting off responses
		deadline := time.Now().Add(100 * time.Millisecond)
		f.mu.Lock()
		for _, conn := range f.conns {
			_ = conn.SetReadDeadline(deadline)
		}
		active := len(f.conns)
		f.mu.Unlock()

		logger.Info("listener shutting down",
			logger.KeyComponent, "transport",
			logger.KeySubsystem, f.name,
			logger.KeyEntries, active)
	})
}

// Join blocks until the accept loop and every connection goroutine have
// finished. Connections still open after the drain window are force-closed.
func (f *Factory) Join() {
	if !f.started.Load() {
		return
	}

	f.acceptWg.Wait()

	done := make(chan struct{})
	go func() {
		f.connWg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(drainTimeout):
		f.mu.Lock()
		remaining := len(f.conns)
		for _, conn := range f.conns {
			_ = conn.Close()
		}
		f.mu.Unlock()
		logger.Warn("drain timeout exceeded, connections force-closed",
			logger.KeySubsystem, f.name,
			logger.KeyEntries, remaining)
		<-done
	}

	logger.Info("listener drained",
		logger.KeyComponent, "transport",
		logger.KeySubsystem, f.name)
}

// remoteIP strips the port from the peer address.
func remoteIP(conn net.Conn) string {
	host, _, err := net.SplitHostPort(conn.RemoteAddr().String())
	if err != nil {
		return conn.RemoteAddr().String()
	}
	return host
}
