// Package server implements the single-node coordination engine: a
// hierarchical in-memory tree backed by the transaction log, a lifecycle
// state machine, and the background container reclaimer.
package server

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/windlass-io/windlass/internal/logger"
	"github.com/windlass-io/windlass/pkg/txnlog"
)

// State is the engine lifecycle state.
type State int32

const (
	StateInitializing State = iota
	StateRunning
	StateError
	StateShutdown
)

func (s State) String() string {
	switch s {
	case StateInitializing:
		return "initializing"
	case StateRunning:
		return "running"
	case StateError:
		return "error"
	case StateShutdown:
		return "shutdown"
	default:
		return "unknown"
	}
}

// ShutdownNotifier is the cancellation handle injected at construction.
// The engine fires it when an internal failure makes continued operation
// impossible, so the owning process can begin an orderly teardown.
type ShutdownNotifier interface {
	Signal()
}

// Options configures a new Engine.
type Options struct {
	// Log is the opened transaction log (required)
	Log *txnlog.Log

	// TickTime is the basic time unit for timeouts
	TickTime time.Duration

	// MaxClientConns caps concurrent connections per client IP; zero
	// means unlimited
	MaxClientConns int

	// Notifier receives the shutdown request on fatal internal errors;
	// may be nil
	Notifier ShutdownNotifier
}

// Engine processes client requests against the in-memory tree and records
// every mutation in the transaction log before applying it.
type Engine struct {
	log      *txnlog.Log
	tree     *Tree
	tickTime time.Duration
	maxConns int
	notifier ShutdownNotifier
	runID    string

	state     atomic.Int32
	startedAt time.Time

	// writeMu serializes mutations so validate-append-apply is atomic
	writeMu sync.Mutex
}

// New constructs an engine in the Initializing state. It does not touch the
// log until Start.
func New(opts Options) *Engine {
	return &Engine{
		log:      opts.Log,
		tree:     NewTree(),
		tickTime: opts.TickTime,
		maxConns: opts.MaxClientConns,
		notifier: opts.Notifier,
		runID:    uuid.New().String(),
	}
}

// Start restores the tree from the latest snapshot plus the log tail and
// moves the engine to Running. It is the one-time activation step; callers
// must invoke it at most once.
func (e *Engine) Start() error {
	if e.State() != StateInitializing {
		return fmt.Errorf("engine already started (state %s)", e.State())
	}

	if err := e.restore(); err != nil {
		return err
	}

	e.startedAt = time.Now()
	e.state.Store(int32(StateRunning))
	logger.Info("engine running",
		logger.KeyComponent, "engine",
		logger.KeyRunID, e.runID,
		logger.KeyTxid, e.log.LastTxid(),
		logger.KeyEntries, e.tree.Count())
	return nil
}

// restore loads the snapshot and replays the log tail.
func (e *Engine) restore() error {
	snap, err := e.log.LoadSnapshot()
	if err != nil {
		return fmt.Errorf("failed to load snapshot: %w", err)
	}

	var afterTxid uint64
	if snap != nil {
		if err := e.tree.Load(snap.Tree); err != nil {
			return fmt.Errorf("failed to load snapshot: %w", err)
		}
		afterTxid = snap.Txid
	}

	var replayed int
	err = e.log.Replay(afterTxid, func(rec *txnlog.Record) error {
		replayed++
		return e.apply(rec)
	})
	if err != nil {
		return fmt.Errorf("failed to replay transaction log: %w", err)
	}

	if snap != nil || replayed > 0 {
		logger.Info("state restored",
			logger.KeyComponent, "engine",
			logger.KeyEntries, replayed,
			logger.KeyTxid, afterTxid)
	}
	return nil
}

// apply performs a logged mutation against the tree.
func (e *Engine) apply(rec *txnlog.Record) error {
	switch rec.Op {
	case txnlog.OpCreate:
		_, err := e.tree.Create(rec.Path, rec.Data, rec.Container, rec.TimeMs)
		return err
	case txnlog.OpSet:
		_, err := e.tree.Set(rec.Path, rec.Data, rec.TimeMs)
		return err
	case txnlog.OpDelete:
		return e.tree.Delete(rec.Path)
	default:
		return fmt.Errorf("unknown operation %d at txid %d", rec.Op, rec.Txid)
	}
}

// State returns the current lifecycle state.
func (e *Engine) State() State {
	return State(e.state.Load())
}

// CanShutdown reports whether a shutdown request is meaningful: the engine
// is Running or has failed, but has not already shut down.
func (e *Engine) CanShutdown() bool {
	s := e.State()
	return s == StateRunning || s == StateError
}

// Shutdown moves the engine to Shutdown. When clearState is set the
// in-memory tree is dropped as well. The transaction log stays open; its
// owner closes it after every writer has stopped.
func (e *Engine) Shutdown(clearState bool) error {
	if !e.CanShutdown() {
		return fmt.Errorf("engine cannot shut down from state %s", e.State())
	}

	e.state.Store(int32(StateShutdown))
	if clearState {
		e.tree.Clear()
	}
	logger.Info("engine shut down", logger.KeyComponent, "engine")
	return nil
}

// fatal records an unrecoverable failure and requests process shutdown.
func (e *Engine) fatal(err error) {
	if !e.state.CompareAndSwap(int32(StateRunning), int32(StateError)) {
		return
	}
	logger.Error("fatal engine error",
		logger.KeyComponent, "engine",
		logger.KeyError, err.Error())
	if e.notifier != nil {
		e.notifier.Signal()
	}
}

// checkRunning gates request processing on the Running state.
func (e *Engine) checkRunning() error {
	if e.State() != StateRunning {
		return fmt.Errorf("%w: state %s", ErrNotRunning, e.State())
	}
	return nil
}

// Create adds a node. Container nodes are parents the reclaimer may remove
// once emptied.
func (e *Engine) Create(path string, data []byte, container bool) (NodeStat, error) {
	if err := e.checkRunning(); err != nil {
		return NodeStat{}, err
	}

	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	// Validate against the current tree before the record hits the log
	if err := ValidatePath(path); err != nil {
		return NodeStat{}, err
	}
	if path == "/" {
		return NodeStat{}, fmt.Errorf("%w: /", ErrNodeExists)
	}
	parentPath, _ := splitPath(path)
	if _, err := e.tree.Stat(parentPath); err != nil {
		return NodeStat{}, err
	}
	if _, err := e.tree.Stat(path); err == nil {
		return NodeStat{}, fmt.Errorf("%w: %s", ErrNodeExists, path)
	}

	rec := &txnlog.Record{Op: txnlog.OpCreate, Path: path, Data: data, Container: container}
	return e.commit(rec)
}

// Set replaces a node's data.
func (e *Engine) Set(path string, data []byte) (NodeStat, error) {
	if err := e.checkRunning(); err != nil {
		return NodeStat{}, err
	}

	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	if _, err := e.tree.Stat(path); err != nil {
		return NodeStat{}, err
	}

	rec := &txnlog.Record{Op: txnlog.OpSet, Path: path, Data: data}
	return e.commit(rec)
}

// Delete removes a childless node.
func (e *Engine) Delete(path string) error {
	if err := e.checkRunning(); err != nil {
		return err
	}

	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	stat, err := e.tree.Stat(path)
	if err != nil {
		return err
	}
	if stat.NumChildren > 0 {
		return fmt.Errorf("%w: %s", ErrNotEmpty, path)
	}
	if path == "/" {
		return fmt.Errorf("%w: cannot delete the root", ErrBadPath)
	}

	rec := &txnlog.Record{Op: txnlog.OpDelete, Path: path}
	_, err = e.commit(rec)
	return err
}

// commit logs the record, applies it, and snapshots when due. Caller holds
// writeMu and has validated the mutation.
func (e *Engine) commit(rec *txnlog.Record) (NodeStat, error) {
	rec.TimeMs = time.Now().UnixMilli()

	if err := e.log.Append(rec); err != nil {
		// A mutation the log cannot record is unrecoverable
		e.fatal(err)
		return NodeStat{}, err
	}

	var (
		stat NodeStat
		err  error
	)
	switch rec.Op {
	case txnlog.OpCreate:
		stat, err = e.tree.Create(rec.Path, rec.Data, rec.Container, rec.TimeMs)
	case txnlog.OpSet:
		stat, err = e.tree.Set(rec.Path, rec.Data, rec.TimeMs)
	case txnlog.OpDelete:
		err = e.tree.Delete(rec.Path)
	}
	if err != nil {
		// Logged but not applied: state and log have diverged
		e.fatal(fmt.Errorf("failed to apply txid %d: %w", rec.Txid, err))
		return NodeStat{}, err
	}

	if e.log.SnapshotDue() {
		e.snapshot()
	}
	return stat, nil
}

// snapshot persists the current tree. Failure is logged, not fatal: the log
// still holds every record.
func (e *Engine) snapshot() {
	image, err := e.tree.Serialize()
	if err != nil {
		logger.Warn("failed to serialize tree for snapshot", logger.KeyError, err.Error())
		return
	}
	if err := e.log.SaveSnapshot(e.log.LastTxid(), image); err != nil {
		logger.Warn("failed to save snapshot", logger.KeyError, err.Error())
	}
}

// Get reads a node's data and stat.
func (e *Engine) Get(path string) ([]byte, NodeStat, error) {
	if err := e.checkRunning(); err != nil {
		return nil, NodeStat{}, err
	}
	return e.tree.Get(path)
}

// Children lists a node's children.
func (e *Engine) Children(path string) ([]string, error) {
	if err := e.checkRunning(); err != nil {
		return nil, err
	}
	return e.tree.Children(path)
}

// Stat reads a node's metadata.
func (e *Engine) Stat(path string) (NodeStat, error) {
	if err := e.checkRunning(); err != nil {
		return NodeStat{}, err
	}
	return e.tree.Stat(path)
}

// Tree exposes the node store to trusted in-process collaborators such as
// the reclaimer.
func (e *Engine) Tree() *Tree {
	return e.tree
}

// TickTime is the engine's basic time unit.
func (e *Engine) TickTime() time.Duration {
	return e.tickTime
}

// LogStats reports the transaction log counters and directories.
func (e *Engine) LogStats() txnlog.Stats {
	return e.log.Stats()
}

// MaxClientConns is the per-IP connection cap; zero means unlimited.
func (e *Engine) MaxClientConns() int {
	return e.maxConns
}

// RunID identifies this server run. It is regenerated on every boot so log
// streams and diagnostics from different runs can be told apart.
func (e *Engine) RunID() string {
	return e.runID
}

// Stats is a point-in-time summary for the admin surface.
type Stats struct {
	State      string    `json:"state"`
	NodeCount  int       `json:"node_count"`
	LastTxid   uint64    `json:"last_txid"`
	StartedAt  time.Time `json:"started_at,omitempty"`
	UptimeSecs int64     `json:"uptime_secs"`
	TickTimeMs int64     `json:"tick_time_ms"`
}

// Stats returns the engine summary.
func (e *Engine) Stats() Stats {
	s := Stats{
		State:      e.State().String(),
		NodeCount:  e.tree.Count(),
		LastTxid:   e.log.LastTxid(),
		TickTimeMs: e.tickTime.Milliseconds(),
	}
	if !e.startedAt.IsZero() {
		s.StartedAt = e.startedAt
		s.UptimeSecs = int64(time.Since(e.startedAt).Seconds())
	}
	return s
}
