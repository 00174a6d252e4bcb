package lifecycle

import (
	"context"
	"crypto/tls"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/windlass-io/windlass/internal/audit"
	"github.com/windlass-io/windlass/internal/logger"
	"github.com/windlass-io/windlass/pkg/admin"
	"github.com/windlass-io/windlass/pkg/config"
	"github.com/windlass-io/windlass/pkg/metrics"
	"github.com/windlass-io/windlass/pkg/server"
	"github.com/windlass-io/windlass/pkg/transport"
	"github.com/windlass-io/windlass/pkg/txnlog"
)

// adminStopTimeout bounds how long in-flight admin requests may delay
// shutdown.
const adminStopTimeout = 5 * time.Second

// subsystem is one started component and how to take it back down. Stop
// requests the halt; drain, when set, blocks until in-flight work has
// finished. Teardown stops every subsystem in reverse start order first,
// then drains in the same reverse order, so nothing waits on a component
// that is still accepting work.
type subsystem struct {
	name  string
	stop  func() error
	drain func()
}

// Coordinator drives one server run: it starts the subsystems in dependency
// order, parks on the shutdown signal, and tears everything down in reverse.
// A Coordinator is single-use; Run can only be called once.
//
// Startup order (teardown is the exact reverse of whatever succeeded):
//
//  1. metrics provider
//  2. transaction log
//  3. engine (constructed with the shutdown signal injected)
//  4. admin server
//  5. client listeners, plain then secure; the first one activates the engine
//  6. container reclaimer
//
// The transaction log close and metrics provider stop run unconditionally,
// even when startup fails partway: whatever was opened gets closed.
type Coordinator struct {
	cfg    *config.Config
	signal *ShutdownSignal

	started atomic.Bool
	handles []subsystem

	teardownOnce sync.Once

	mu       sync.Mutex
	provider metrics.Provider
	log      *txnlog.Log
	engine   *server.Engine
	adminSrv *admin.Server
	plain    *transport.Factory
	secure   *transport.Factory
}

// New builds a Coordinator for the given configuration. Nothing is started
// until Run.
func New(cfg *config.Config) *Coordinator {
	return &Coordinator{
		cfg:    cfg,
		signal: NewShutdownSignal(),
	}
}

// Signal requests shutdown. Safe from any goroutine, any number of times;
// typically wired to SIGINT/SIGTERM by the caller. The engine holds the same
// signal and fires it on unrecoverable internal errors.
func (c *Coordinator) Signal() {
	c.signal.Signal()
}

// Done exposes the shutdown gate for select loops.
func (c *Coordinator) Done() <-chan struct{} {
	return c.signal.Done()
}

// Run starts every configured subsystem, blocks until shutdown is signaled,
// and tears everything down. It returns nil on a clean run; a non-nil error
// means startup failed and reports which step could not come up. Subsystems
// started before the failure are stopped before Run returns.
func (c *Coordinator) Run() error {
	if !c.started.CompareAndSwap(false, true) {
		return fmt.Errorf("coordinator already run")
	}

	logger.Info("starting server",
		logger.KeyComponent, "lifecycle",
		logger.KeyDataDir, c.cfg.DataDir)

	// 1. Metrics provider. It comes up first so later subsystems can
	// register collectors, and goes down last.
	provider, err := metrics.New(c.cfg.Metrics.Provider, c.cfg.Metrics.Addr)
	if err != nil {
		return err
	}
	if err := provider.Start(); err != nil {
		return err
	}
	c.setProvider(provider)
	defer func() {
		if err := provider.Stop(); err != nil {
			logger.Warn("failed to stop metrics provider",
				logger.KeyComponent, "lifecycle",
				logger.KeyError, err)
		}
	}()
	logger.Info("metrics provider started",
		logger.KeyComponent, "lifecycle",
		logger.KeySubsystem, provider.Name())

	// 2. Transaction log. Open failures carry their own type so callers
	// can distinguish an unusable data directory from everything else.
	log, err := txnlog.Open(txnlog.Options{
		DataDir:      c.cfg.DataDir,
		LogDir:       c.cfg.LogDir,
		SnapCount:    c.cfg.Storage.SnapCount,
		MemTableSize: c.cfg.Storage.MemTableSize.Int64(),
		SyncWrites:   c.cfg.Storage.SyncWrites,
	})
	if err != nil {
		return err
	}
	c.setLog(log)
	defer func() {
		if err := log.Close(); err != nil {
			logger.Warn("failed to close transaction log",
				logger.KeyComponent, "lifecycle",
				logger.KeyError, err)
		}
	}()
	if collector, ok := provider.(metrics.LogCollector); ok {
		collector.ObserveLog(log.Stats)
	}

	// Teardown covers both the normal exit and startup failures below this
	// point. Deferred after the log and metrics cleanups so it runs first.
	defer c.teardown()

	// 3. Engine. The shutdown signal is injected here: an internal engine
	// failure fires the same gate an operator signal does, and the run
	// unwinds through the one teardown path.
	engine := server.New(server.Options{
		Log:            log,
		TickTime:       c.cfg.TickTime,
		MaxClientConns: c.cfg.MaxClientConns,
		Notifier:       c.signal,
	})
	c.setEngine(engine)
	if collector, ok := provider.(metrics.EngineCollector); ok {
		collector.ObserveEngine(engine.Stats)
	}

	// 4. Admin server. It attaches before the engine activates; health
	// reports the engine as initializing until a listener starts it.
	if !c.cfg.Admin.Disabled {
		adminSrv := admin.NewServer(admin.Options{
			Addr:         c.cfg.Admin.Addr,
			ReadTimeout:  c.cfg.Admin.ReadTimeout,
			WriteTimeout: c.cfg.Admin.WriteTimeout,
			IdleTimeout:  c.cfg.Admin.IdleTimeout,
		}, engine)
		if err := adminSrv.Start(); err != nil {
			return err
		}
		c.setAdmin(adminSrv)
		c.handles = append(c.handles, subsystem{
			name: "admin",
			stop: func() error {
				ctx, cancel := context.WithTimeout(context.Background(), adminStopTimeout)
				defer cancel()
				return adminSrv.Stop(ctx)
			},
		})
		logger.Info("admin server started",
			logger.KeyComponent, "lifecycle",
			logger.KeyListenAddr, adminSrv.Addr())
	}

	// 5. Client listeners. Exactly one activates the engine: the plain
	// listener when configured, otherwise the secure one.
	activate := true
	if c.cfg.ClientAddr != "" {
		plain, err := c.startListener("plain", c.cfg.ClientAddr, nil, engine, activate)
		if err != nil {
			return err
		}
		c.setPlain(plain)
		activate = false
	}
	if c.cfg.SecureClientAddr != "" {
		tlsConf, err := transport.LoadTLSConfig(c.cfg.TLS.CertFile, c.cfg.TLS.KeyFile)
		if err != nil {
			return err
		}
		secure, err := c.startListener("secure", c.cfg.SecureClientAddr, tlsConf, engine, activate)
		if err != nil {
			return err
		}
		c.setSecure(secure)
	}

	// 6. Container reclaimer.
	reclaimer := server.NewReclaimer(engine, server.ReclaimerOptions{
		CheckInterval: c.cfg.Reclaim.CheckInterval,
		MaxPerMinute:  c.cfg.Reclaim.MaxPerMinute,
		MinIdle:       c.cfg.Reclaim.MinIdle,
	})
	reclaimer.Start()
	c.handles = append(c.handles, subsystem{
		name: "reclaimer",
		stop: func() error {
			reclaimer.Stop()
			return nil
		},
	})

	audit.ServerStart()
	logger.Info("server started",
		logger.KeyComponent, "lifecycle",
		logger.KeyState, engine.State().String())

	c.signal.Await()
	return nil
}

// startListener configures and starts one client listener factory and
// registers its teardown. Bind and activation failures surface to the
// caller; already-started subsystems are cleaned up by Run's teardown.
func (c *Coordinator) startListener(name, addr string, tlsConf *tls.Config, engine *server.Engine, activate bool) (*transport.Factory, error) {
	f := transport.NewFactory(name)
	if err := f.Configure(addr, c.cfg.MaxClientConns, tlsConf); err != nil {
		return nil, err
	}
	if err := f.Startup(engine, activate); err != nil {
		f.Shutdown()
		return nil, err
	}
	c.handles = append(c.handles, subsystem{
		name: name + " listener",
		stop: func() error {
			f.Shutdown()
			return nil
		},
		drain: f.Join,
	})
	logger.Info("client listener started",
		logger.KeyComponent, "lifecycle",
		logger.KeySubsystem, name,
		logger.KeyListenAddr, f.Addr())
	return f, nil
}

// teardown stops every started subsystem in reverse start order, drains the
// listeners, and shuts the engine down. Secondary failures are logged, never
// escalated: shutdown always completes. Runs at most once.
func (c *Coordinator) teardown() {
	c.teardownOnce.Do(func() {
		logger.Info("shutting down",
			logger.KeyComponent, "lifecycle")

		for i := len(c.handles) - 1; i >= 0; i-- {
			h := c.handles[i]
			if err := h.stop(); err != nil {
				logger.Warn("failed to stop subsystem",
					logger.KeyComponent, "lifecycle",
					logger.KeySubsystem, h.name,
					logger.KeyError, err)
			} else {
				logger.Debug("subsystem stopped",
					logger.KeyComponent, "lifecycle",
					logger.KeySubsystem, h.name)
			}
		}
		for i := len(c.handles) - 1; i >= 0; i-- {
			if c.handles[i].drain != nil {
				c.handles[i].drain()
			}
		}

		if engine := c.Engine(); engine != nil && engine.CanShutdown() {
			if err := engine.Shutdown(true); err != nil {
				logger.Warn("failed to shut down engine",
					logger.KeyComponent, "lifecycle",
					logger.KeyError, err)
			}
		}
	})
}

// Close requests shutdown and waits for the primary client listener to
// drain. It is a no-op when no listener ever started, so it is safe to call
// during failed startups and more than once.
func (c *Coordinator) Close() {
	primary := c.Plain()
	if primary == nil {
		primary = c.Secure()
	}
	if primary == nil || primary.Server() == nil {
		return
	}
	c.signal.Signal()
	primary.Join()
}

// Engine returns the engine, or nil before Run constructs it.
func (c *Coordinator) Engine() *server.Engine {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.engine
}

// Admin returns the admin server, or nil when disabled or not yet started.
func (c *Coordinator) Admin() *admin.Server {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.adminSrv
}

// Plain returns the plain client listener factory, or nil when not started.
func (c *Coordinator) Plain() *transport.Factory {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.plain
}

// Secure returns the TLS client listener factory, or nil when not started.
func (c *Coordinator) Secure() *transport.Factory {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.secure
}

// Provider returns the metrics provider, or nil before Run constructs it.
func (c *Coordinator) Provider() metrics.Provider {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.provider
}

// Log returns the transaction log, or nil before Run opens it.
func (c *Coordinator) Log() *txnlog.Log {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.log
}

func (c *Coordinator) setProvider(p metrics.Provider) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.provider = p
}

func (c *Coordinator) setLog(l *txnlog.Log) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.log = l
}

func (c *Coordinator) setEngine(e *server.Engine) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.engine = e
}

func (c *Coordinator) setAdmin(s *admin.Server) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.adminSrv = s
}

func (c *Coordinator) setPlain(f *transport.Factory) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.plain = f
}

func (c *Coordinator) setSecure(f *transport.Factory) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.secure = f
}
