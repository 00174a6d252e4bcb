package metrics

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/windlass-io/windlass/internal/logger"
	"github.com/windlass-io/windlass/pkg/server"
	"github.com/windlass-io/windlass/pkg/txnlog"
)

// engineStateValues maps engine states to the values exported by the
// windlass_engine_state gauge.
var engineStateValues = map[string]float64{
	"initializing": 0,
	"running":      1,
	"error":        2,
	"shutdown":     3,
}

// prometheusProvider serves a dedicated registry over /metrics. The registry
// is private so repeated start cycles in one process never collide with the
// default global registry.
type prometheusProvider struct {
	addr     string
	registry *prometheus.Registry

	httpServer *http.Server

	mu       sync.Mutex
	listener net.Listener
	startAt  time.Time

	stopOnce sync.Once
}

func newPrometheusProvider(addr string) *prometheusProvider {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	p := &prometheusProvider{
		addr:     addr,
		registry: reg,
	}

	promauto.With(reg).NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "windlass_uptime_seconds",
			Help: "Seconds since the metrics provider started",
		},
		func() float64 {
			p.mu.Lock()
			defer p.mu.Unlock()
			if p.startAt.IsZero() {
				return 0
			}
			return time.Since(p.startAt).Seconds()
		},
	)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	p.httpServer = &http.Server{
		Handler:     mux,
		ReadTimeout: 10 * time.Second,
		IdleTimeout: 60 * time.Second,
	}
	return p
}

func (p *prometheusProvider) Name() string { return "prometheus" }

// Start binds the scrape endpoint. A bind failure aborts the whole bootstrap,
// so it is reported synchronously.
func (p *prometheusProvider) Start() error {
	ln, err := net.Listen("tcp", p.addr)
	if err != nil {
		return fmt.Errorf("cannot boot metrics provider %q: %w", p.Name(), err)
	}

	p.mu.Lock()
	p.listener = ln
	p.startAt = time.Now()
	p.mu.Unlock()

	go func() {
		logger.Info("metrics provider listening",
			logger.KeyComponent, "metrics",
			logger.KeyListenAddr, ln.Addr().String())
		if err := p.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed",
				logger.KeyComponent, "metrics",
				logger.KeyError, err.Error())
		}
	}()
	return nil
}

// Stop drains the scrape endpoint. Safe to call repeatedly.
func (p *prometheusProvider) Stop() error {
	var stopErr error
	p.stopOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := p.httpServer.Shutdown(ctx); err != nil {
			stopErr = fmt.Errorf("metrics server shutdown: %w", err)
			return
		}
		logger.Info("metrics provider stopped", logger.KeyComponent, "metrics")
	})
	return stopErr
}

// Addr returns the bound scrape address, or empty before Start.
func (p *prometheusProvider) Addr() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.listener == nil {
		return ""
	}
	return p.listener.Addr().String()
}

// ObserveEngine exports engine gauges from the stats source. Attach it once,
// after the engine exists.
func (p *prometheusProvider) ObserveEngine(stats func() server.Stats) {
	promauto.With(p.registry).NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "windlass_node_count",
			Help: "Nodes in the tree including the root",
		},
		func() float64 { return float64(stats().NodeCount) },
	)
	promauto.With(p.registry).NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "windlass_last_txid",
			Help: "Highest transaction id recorded in the log",
		},
		func() float64 { return float64(stats().LastTxid) },
	)
	promauto.With(p.registry).NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "windlass_engine_state",
			Help: "Engine lifecycle state (0 initializing, 1 running, 2 error, 3 shutdown)",
		},
		func() float64 { return engineStateValues[stats().State] },
	)
}

// ObserveLog exports transaction log gauges from the stats source. The size
// gauge is split by store section the way the log reports it.
func (p *prometheusProvider) ObserveLog(stats func() txnlog.Stats) {
	promauto.With(p.registry).NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "windlass_log_appends_since_snapshot",
			Help: "Appends recorded since the last snapshot",
		},
		func() float64 { return float64(stats().AppendsSinceSnapshot) },
	)
	promauto.With(p.registry).NewGaugeFunc(
		prometheus.GaugeOpts{
			Name:        "windlass_log_size_bytes",
			Help:        "On-disk size of the transaction log store by section",
			ConstLabels: prometheus.Labels{"section": "index"},
		},
		func() float64 {
			return float64(stats().SizeIndexBytes)
		},
	)
	promauto.With(p.registry).NewGaugeFunc(
		prometheus.GaugeOpts{
			Name:        "windlass_log_size_bytes",
			Help:        "On-disk size of the transaction log store by section",
			ConstLabels: prometheus.Labels{"section": "values"},
		},
		func() float64 {
			return float64(stats().SizeValueBytes)
		},
	)
}
