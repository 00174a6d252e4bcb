package logger

import "log/slog"

// Standard field keys for structured logging.
// Use these keys consistently across all log statements so entries from the
// lifecycle, transport, admin, and storage layers can be aggregated and
// queried together.
const (
	// Subsystems and lifecycle
	KeyComponent = "component" // Emitting subsystem: lifecycle, transport, admin, txnlog, reclaim
	KeyState     = "state"     // Server state: initializing, running, error, shutdown
	KeySubsystem = "subsystem" // Subsystem name in start/stop sequences
	KeyExitCode  = "exit_code" // Process exit code
	KeyReason    = "reason"    // Shutdown or failure reason
	KeyRunID     = "run_id"    // Identifier of this server run, fresh on every boot

	// Tree operations
	KeyPath     = "path"     // Node path, slash separated from the root
	KeyVersion  = "version"  // Node data version
	KeyCVersion = "cversion" // Node child-list version
	KeyEntries  = "entries"  // Number of nodes affected or listed
	KeyTxid     = "txid"     // Transaction id in the persistent log

	// Client connections
	KeyConnID     = "conn_id"   // Connection identifier
	KeyClientIP   = "client_ip" // Client IP address
	KeyCommand    = "command"   // Client command verb
	KeyListenAddr = "addr"      // Listener bind address

	// Storage
	KeyDataDir = "datadir" // Snapshot directory
	KeyLogDir  = "logdir"  // Transaction log directory

	// Operation metadata
	KeyDurationMs = "duration_ms" // Operation duration in milliseconds
	KeyError      = "error"       // Error message
)

// ============================================================================
// Field constructors for type safety
// ============================================================================

// Component returns a slog.Attr naming the emitting subsystem
func Component(name string) slog.Attr {
	return slog.String(KeyComponent, name)
}

// State returns a slog.Attr for the server state
func State(s string) slog.Attr {
	return slog.String(KeyState, s)
}

// Subsystem returns a slog.Attr for a start/stop sequence entry
func Subsystem(name string) slog.Attr {
	return slog.String(KeySubsystem, name)
}

// ExitCode returns a slog.Attr for a process exit code
func ExitCode(code int) slog.Attr {
	return slog.Int(KeyExitCode, code)
}

// Reason returns a slog.Attr for a shutdown or failure reason
func Reason(r string) slog.Attr {
	return slog.String(KeyReason, r)
}

// RunID returns a slog.Attr for the server run identifier
func RunID(id string) slog.Attr {
	return slog.String(KeyRunID, id)
}

// Path returns a slog.Attr for a node path
func Path(p string) slog.Attr {
	return slog.String(KeyPath, p)
}

// Version returns a slog.Attr for a node data version
func Version(v int32) slog.Attr {
	return slog.Int(KeyVersion, int(v))
}

// CVersion returns a slog.Attr for a node child-list version
func CVersion(v int32) slog.Attr {
	return slog.Int(KeyCVersion, int(v))
}

// Entries returns a slog.Attr for a node count
func Entries(n int) slog.Attr {
	return slog.Int(KeyEntries, n)
}

// Txid returns a slog.Attr for a transaction id
func Txid(id uint64) slog.Attr {
	return slog.Uint64(KeyTxid, id)
}

// ConnID returns a slog.Attr for a connection identifier
func ConnID(id string) slog.Attr {
	return slog.String(KeyConnID, id)
}

// ClientIP returns a slog.Attr for a client IP address
func ClientIP(addr string) slog.Attr {
	return slog.String(KeyClientIP, addr)
}

// Command returns a slog.Attr for a client command verb
func Command(cmd string) slog.Attr {
	return slog.String(KeyCommand, cmd)
}

// ListenAddr returns a slog.Attr for a listener bind address
func ListenAddr(addr string) slog.Attr {
	return slog.String(KeyListenAddr, addr)
}

// DataDir returns a slog.Attr for the snapshot directory
func DataDir(dir string) slog.Attr {
	return slog.String(KeyDataDir, dir)
}

// LogDir returns a slog.Attr for the transaction log directory
func LogDir(dir string) slog.Attr {
	return slog.String(KeyLogDir, dir)
}

// DurationMs returns a slog.Attr for duration in milliseconds
func DurationMs(ms float64) slog.Attr {
	return slog.Float64(KeyDurationMs, ms)
}

// Err returns a slog.Attr for an error
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}
