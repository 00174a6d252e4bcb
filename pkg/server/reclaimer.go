package server

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/windlass-io/windlass/internal/logger"
)

// ReclaimerOptions tunes the background container reclaimer.
type ReclaimerOptions struct {
	// CheckInterval is the pause between reclaim sweeps
	CheckInterval time.Duration

	// MaxPerMinute paces deletions within a sweep
	MaxPerMinute int

	// MinIdle makes never-used containers eligible once they have been
	// idle this long; zero keeps them forever
	MinIdle time.Duration
}

// Reclaimer periodically removes container nodes that have been emptied.
// A container becomes a candidate when it has no children and either has
// held children before, or has sat unused past the configured idle window.
type Reclaimer struct {
	engine       *Engine
	interval     time.Duration
	maxPerMinute int
	minIdle      time.Duration

	deleted atomic.Uint64

	startOnce sync.Once
	stopOnce  sync.Once
	stopCh    chan struct{}
	doneWg    sync.WaitGroup
}

// NewReclaimer builds a reclaimer for the engine's tree.
func NewReclaimer(engine *Engine, opts ReclaimerOptions) *Reclaimer {
	if opts.MaxPerMinute < 1 {
		opts.MaxPerMinute = 1
	}
	return &Reclaimer{
		engine:       engine,
		interval:     opts.CheckInterval,
		maxPerMinute: opts.MaxPerMinute,
		minIdle:      opts.MinIdle,
		stopCh:       make(chan struct{}),
	}
}

// Start launches the sweep loop. Subsequent calls are no-ops.
func (r *Reclaimer) Start() {
	r.startOnce.Do(func() {
		r.doneWg.Add(1)
		go r.run()
		logger.Info("reclaimer started",
			logger.KeyComponent, "reclaimer",
			logger.KeyDurationMs, float64(r.interval.Milliseconds()))
	})
}

// Stop halts the loop and waits for an in-flight sweep to finish. Safe to
// call repeatedly and before Start.
func (r *Reclaimer) Stop() {
	r.stopOnce.Do(func() {
		close(r.stopCh)
	})
	r.doneWg.Wait()
	logger.Info("reclaimer stopped", logger.KeyComponent, "reclaimer")
}

// Deleted returns the number of containers reclaimed since start.
func (r *Reclaimer) Deleted() uint64 {
	return r.deleted.Load()
}

func (r *Reclaimer) run() {
	defer r.doneWg.Done()

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopCh:
			return
		case <-ticker.C:
			r.sweep()
		}
	}
}

// sweep deletes every candidate, pacing deletions so a huge backlog cannot
// monopolize the write path.
func (r *Reclaimer) sweep() {
	minInterval := time.Minute / time.Duration(r.maxPerMinute)

	for _, path := range r.candidates() {
		select {
		case <-r.stopCh:
			return
		default:
		}

		start := time.Now()
		err := r.engine.Delete(path)
		switch {
		case err == nil:
			r.deleted.Add(1)
			logger.Info("reclaimed container",
				logger.KeyComponent, "reclaimer",
				logger.KeyPath, path)
		case errors.Is(err, ErrNoNode), errors.Is(err, ErrNotEmpty):
			// Lost the race with a client; the next sweep re-evaluates
		default:
			logger.Warn("failed to reclaim container",
				logger.KeyComponent, "reclaimer",
				logger.KeyPath, path,
				logger.KeyError, err.Error())
		}

		if wait := minInterval - time.Since(start); wait > 0 {
			select {
			case <-r.stopCh:
				return
			case <-time.After(wait):
			}
		}
	}
}

// candidates returns the container paths currently eligible for removal.
func (r *Reclaimer) candidates() []string {
	var eligible []string
	nowMs := time.Now().UnixMilli()

	for _, path := range r.engine.Tree().Containers() {
		stat, err := r.engine.Tree().Stat(path)
		if err != nil || stat.NumChildren > 0 {
			continue
		}
		if stat.CVersion > 0 {
			// Has held children before and is empty again
			eligible = append(eligible, path)
		} else if r.minIdle > 0 && nowMs-stat.MtimeMs > r.minIdle.Milliseconds() {
			// Never used and past the idle window
			eligible = append(eligible, path)
		}
	}
	return eligible
}
