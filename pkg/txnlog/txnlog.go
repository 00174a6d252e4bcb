// Package txnlog provides the persistent transaction log and snapshot store
// backing the in-memory tree. Appends go to an embedded key-value log under
// the log directory; snapshots are JSON files in the data directory. A lock
// file guards the data directory against concurrent server processes.
package txnlog

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/gofrs/flock"

	"github.com/windlass-io/windlass/internal/logger"
)

const (
	// lockFileName guards the data directory against a second process
	lockFileName = "LOCK"

	// logSubdir holds the key-value log store inside the log directory
	logSubdir = "log"

	// snapshotFileName is the current tree snapshot in the data directory
	snapshotFileName = "snapshot.json"
)

// Options configures Open.
type Options struct {
	// DataDir holds snapshots and the directory lock (required)
	DataDir string

	// LogDir holds the transaction log store; defaults to DataDir
	LogDir string

	// SnapCount is the number of appends between snapshot prompts
	SnapCount int

	// MemTableSize is the log store's in-memory table size in bytes;
	// zero keeps the store default
	MemTableSize int64

	// SyncWrites forces an fsync per append
	SyncWrites bool
}

// Snapshot is a serialized tree image tagged with the last transaction id it
// contains. Replay resumes from Txid+1.
type Snapshot struct {
	Txid uint64          `json:"txid"`
	Tree json.RawMessage `json:"tree"`
}

// Log is the durable mutation log. All methods are safe for concurrent use.
type Log struct {
	dataDir   string
	logDir    string
	snapCount int

	dirLock *flock.Flock
	db      *badgerdb.DB

	mu        sync.Mutex
	lastTxid  uint64
	sinceSnap int
	closed    bool
}

// Open prepares the data and log directories, takes the directory lock, and
// opens the log store. Every failure surfaces as a *DatadirError so callers
// can map it to the datadir-unavailable exit code.
func Open(opts Options) (*Log, error) {
	if opts.DataDir == "" {
		return nil, &DatadirError{Dir: opts.DataDir, Err: errors.New("data directory not configured")}
	}
	if opts.LogDir == "" {
		opts.LogDir = opts.DataDir
	}

	if err := os.MkdirAll(opts.DataDir, 0700); err != nil {
		return nil, &DatadirError{Dir: opts.DataDir, Err: err}
	}
	if err := os.MkdirAll(opts.LogDir, 0700); err != nil {
		return nil, &DatadirError{Dir: opts.LogDir, Err: err}
	}

	// Lock the data directory to prevent concurrent use by another server
	// process. The lock lives as long as the returned Log.
	dirLock := flock.New(filepath.Join(opts.DataDir, lockFileName))
	if locked, err := dirLock.TryLock(); err != nil {
		return nil, &DatadirError{Dir: opts.DataDir, Err: err}
	} else if !locked {
		return nil, &DatadirError{Dir: opts.DataDir, Err: ErrDatadirInUse}
	}

	storeDir := filepath.Join(opts.LogDir, logSubdir)
	badgerOpts := badgerdb.DefaultOptions(storeDir).
		WithLogger(nil).
		WithSyncWrites(opts.SyncWrites)
	if opts.MemTableSize > 0 {
		badgerOpts = badgerOpts.WithMemTableSize(opts.MemTableSize)
	}

	db, err := badgerdb.Open(badgerOpts)
	if err != nil {
		_ = dirLock.Unlock()
		return nil, &DatadirError{Dir: opts.LogDir, Err: fmt.Errorf("failed to open log store: %w", err)}
	}

	l := &Log{
		dataDir:   opts.DataDir,
		logDir:    opts.LogDir,
		snapCount: opts.SnapCount,
		dirLock:   dirLock,
		db:        db,
	}

	if err := l.loadLastTxid(); err != nil {
		_ = db.Close()
		_ = dirLock.Unlock()
		return nil, &DatadirError{Dir: opts.LogDir, Err: err}
	}

	logger.Info("transaction log opened",
		logger.KeyDataDir, opts.DataDir,
		logger.KeyLogDir, opts.LogDir,
		logger.KeyTxid, l.lastTxid)

	return l, nil
}

// loadLastTxid seeks the highest record key.
func (l *Log) loadLastTxid() error {
	return l.db.View(func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.Prefix = []byte(prefixTxn)
		opts.PrefetchValues = false
		opts.Reverse = true

		it := txn.NewIterator(opts)
		defer it.Close()

		// Reverse iteration starts past the highest key in the prefix
		seek := append([]byte(prefixTxn), 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff)
		it.Seek(seek)
		if !it.Valid() {
			return nil
		}

		txid, err := txidFromKey(it.Item().KeyCopy(nil))
		if err != nil {
			return err
		}
		l.lastTxid = txid
		return nil
	})
}

// Append assigns the next transaction id to rec, stamps it, and stores it
// durably. The assigned id is written back into rec.
func (l *Log) Append(rec *Record) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return ErrClosed
	}

	rec.Txid = l.lastTxid + 1
	if rec.TimeMs == 0 {
		rec.TimeMs = time.Now().UnixMilli()
	}

	data, err := encodeRecord(rec)
	if err != nil {
		return err
	}

	err = l.db.Update(func(txn *badgerdb.Txn) error {
		return txn.Set(keyTxn(rec.Txid), data)
	})
	if err != nil {
		return fmt.Errorf("failed to append record %d: %w", rec.Txid, err)
	}

	l.lastTxid = rec.Txid
	l.sinceSnap++
	return nil
}

// Replay invokes fn for every record with txid greater than afterTxid, in
// ascending order. Replay stops at the first error from fn.
func (l *Log) Replay(afterTxid uint64, fn func(*Record) error) error {
	return l.db.View(func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.Prefix = []byte(prefixTxn)
		opts.PrefetchValues = true

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(keyTxn(afterTxid + 1)); it.Valid(); it.Next() {
			item := it.Item()
			err := item.Value(func(val []byte) error {
				rec, err := decodeRecord(val)
				if err != nil {
					return err
				}
				return fn(rec)
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
}

// DataDir returns the snapshot and lock directory.
func (l *Log) DataDir() string {
	return l.dataDir
}

// LastTxid returns the highest assigned transaction id.
func (l *Log) LastTxid() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastTxid
}

// SnapshotDue reports whether enough appends have accumulated since the last
// snapshot to warrant a new one.
func (l *Log) SnapshotDue() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.snapCount > 0 && l.sinceSnap >= l.snapCount
}

// SaveSnapshot atomically writes a tree image tagged with txid, then compacts
// the log by dropping records the snapshot already contains.
func (l *Log) SaveSnapshot(txid uint64, tree json.RawMessage) error {
	snap := Snapshot{Txid: txid, Tree: tree}
	data, err := json.Marshal(&snap)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}

	// Write-then-rename so a crash mid-write never clobbers the
	// previous snapshot.
	path := filepath.Join(l.dataDir, snapshotFileName)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to publish snapshot: %w", err)
	}

	if err := l.compact(txid); err != nil {
		// The snapshot itself is durable; stale records only cost disk
		logger.Warn("log compaction failed", logger.KeyTxid, txid, logger.KeyError, err.Error())
	}

	l.mu.Lock()
	l.sinceSnap = 0
	l.mu.Unlock()

	logger.Info("snapshot saved", logger.KeyTxid, txid, logger.KeyDataDir, l.dataDir)
	return nil
}

// LoadSnapshot returns the current snapshot, or nil when none exists.
func (l *Log) LoadSnapshot() (*Snapshot, error) {
	path := filepath.Join(l.dataDir, snapshotFileName)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	return &snap, nil
}

// compact deletes records with txid at or below upTo.
func (l *Log) compact(upTo uint64) error {
	return l.db.Update(func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.Prefix = []byte(prefixTxn)
		opts.PrefetchValues = false

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			key := it.Item().KeyCopy(nil)
			txid, err := txidFromKey(key)
			if err != nil {
				return err
			}
			if txid > upTo {
				break
			}
			if err := txn.Delete(key); err != nil {
				return err
			}
		}
		return nil
	})
}

// Stats is a point-in-time view of the log for the admin surface.
type Stats struct {
	LastTxid             uint64 `json:"last_txid"`
	AppendsSinceSnapshot int    `json:"appends_since_snapshot"`
	DataDir              string `json:"data_dir"`
	LogDir               string `json:"log_dir"`

	// On-disk footprint of the log store, split into the key index and
	// the value segments. Both are zero after Close.
	SizeIndexBytes int64 `json:"size_index_bytes"`
	SizeValueBytes int64 `json:"size_value_bytes"`
}

// Stats returns a snapshot of log counters.
func (l *Log) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	s := Stats{
		LastTxid:             l.lastTxid,
		AppendsSinceSnapshot: l.sinceSnap,
		DataDir:              l.dataDir,
		LogDir:               l.logDir,
	}
	if !l.closed {
		s.SizeIndexBytes, s.SizeValueBytes = l.db.Size()
	}
	return s
}

// Close releases the log store and the directory lock. Close is idempotent;
// the first error encountered is retained and later calls return nil.
func (l *Log) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	l.mu.Unlock()

	var errs []error
	if err := l.db.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close log store: %w", err))
	}
	if err := l.dirLock.Unlock(); err != nil {
		errs = append(errs, fmt.Errorf("failed to release directory lock: %w", err))
	}

	logger.Info("transaction log closed", logger.KeyDataDir, l.dataDir)
	return errors.Join(errs...)
}
