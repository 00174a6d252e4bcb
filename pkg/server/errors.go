package server

import "errors"

var (
	// ErrNoNode is returned when the target path does not exist
	ErrNoNode = errors.New("node does not exist")

	// ErrNodeExists is returned when creating a path that is already present
	ErrNodeExists = errors.New("node already exists")

	// ErrNotEmpty is returned when deleting a node that still has children
	ErrNotEmpty = errors.New("node has children")

	// ErrBadPath is returned for malformed paths
	ErrBadPath = errors.New("invalid path")

	// ErrNotRunning is returned for state-changing requests outside the
	// Running state
	ErrNotRunning = errors.New("server is not running")
)
