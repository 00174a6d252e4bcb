package txnlog

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
)

// Op identifies the kind of mutation a record carries.
type Op uint8

const (
	// OpCreate adds a node at a path
	OpCreate Op = iota + 1

	// OpSet replaces the data of an existing node
	OpSet

	// OpDelete removes a node
	OpDelete
)

func (o Op) String() string {
	switch o {
	case OpCreate:
		return "create"
	case OpSet:
		return "set"
	case OpDelete:
		return "delete"
	default:
		return fmt.Sprintf("op(%d)", uint8(o))
	}
}

// Record is one durable mutation of the tree. Records are appended with
// monotonically increasing transaction ids and replayed in order on startup.
type Record struct {
	// Txid is assigned by Append; zero until then
	Txid uint64 `json:"txid"`

	// Op is the mutation kind
	Op Op `json:"op"`

	// Path is the node path the mutation targets
	Path string `json:"path"`

	// Data is the node payload for create and set
	Data []byte `json:"data,omitempty"`

	// Container marks container nodes on create
	Container bool `json:"container,omitempty"`

	// TimeMs is the mutation wall-clock time in Unix milliseconds
	TimeMs int64 `json:"time_ms"`
}

// ============================================================================
// Database Key Namespace Design
// ============================================================================
//
// The log store is a key-value store, so records live under a dedicated
// prefix with a fixed-width big-endian transaction id. Big-endian keys make
// lexicographic iteration equal replay order and keep range deletes (log
// compaction after a snapshot) a simple prefix scan.
//
// Data Type    Prefix   Key Format          Value Type
// =========================================================
// Record       "t:"     t:<8-byte BE txid>  Record (JSON)

const prefixTxn = "t:"

// keyTxn generates a key for a transaction record: "t:<8-byte BE txid>"
func keyTxn(txid uint64) []byte {
	key := make([]byte, len(prefixTxn)+8)
	copy(key, prefixTxn)
	binary.BigEndian.PutUint64(key[len(prefixTxn):], txid)
	return key
}

// txidFromKey extracts the transaction id from a record key.
func txidFromKey(key []byte) (uint64, error) {
	if len(key) != len(prefixTxn)+8 {
		return 0, fmt.Errorf("malformed record key of length %d", len(key))
	}
	return binary.BigEndian.Uint64(key[len(prefixTxn):]), nil
}

// encodeRecord serializes a record for storage.
func encodeRecord(rec *Record) ([]byte, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("failed to encode record: %w", err)
	}
	return data, nil
}

// decodeRecord deserializes a stored record.
func decodeRecord(data []byte) (*Record, error) {
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to decode record: %w", err)
	}
	return &rec, nil
}
