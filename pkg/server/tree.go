package server

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// NodeStat is the metadata carried by every node.
type NodeStat struct {
	// Version counts data writes to the node
	Version int32 `json:"version"`

	// CVersion counts child creations and deletions under the node
	CVersion int32 `json:"cversion"`

	// CtimeMs is the creation time in unix milliseconds
	CtimeMs int64 `json:"ctime_ms"`

	// MtimeMs is the last data write time in unix milliseconds
	MtimeMs int64 `json:"mtime_ms"`

	// NumChildren is the current child count
	NumChildren int `json:"num_children"`

	// DataLength is the size of the node payload in bytes
	DataLength int `json:"data_length"`

	// Container marks reclaimable parent nodes
	Container bool `json:"container"`
}

type node struct {
	data      []byte
	container bool
	version   int32
	cversion  int32
	ctimeMs   int64
	mtimeMs   int64
	children  map[string]*node
}

func newNode(data []byte, container bool, timeMs int64) *node {
	return &node{
		data:      data,
		container: container,
		ctimeMs:   timeMs,
		mtimeMs:   timeMs,
		children:  make(map[string]*node),
	}
}

func (n *node) stat() NodeStat {
	return NodeStat{
		Version:     n.version,
		CVersion:    n.cversion,
		CtimeMs:     n.ctimeMs,
		MtimeMs:     n.mtimeMs,
		NumChildren: len(n.children),
		DataLength:  len(n.data),
		Container:   n.container,
	}
}

// Tree is the in-memory hierarchical node store. The root node "/" always
// exists and cannot be deleted. All methods are safe for concurrent use.
type Tree struct {
	mu         sync.RWMutex
	root       *node
	count      int
	containers map[string]struct{}
}

// NewTree returns a tree holding only the root node.
func NewTree() *Tree {
	return &Tree{
		root:       newNode(nil, false, 0),
		count:      1,
		containers: make(map[string]struct{}),
	}
}

// ValidatePath checks the path grammar: absolute, no trailing slash except
// for the root itself, no empty or relative segments.
func ValidatePath(path string) error {
	if path == "" {
		return fmt.Errorf("%w: empty path", ErrBadPath)
	}
	if !strings.HasPrefix(path, "/") {
		return fmt.Errorf("%w: %q must start with /", ErrBadPath, path)
	}
	if path == "/" {
		return nil
	}
	if strings.HasSuffix(path, "/") {
		return fmt.Errorf("%w: %q must not end with /", ErrBadPath, path)
	}
	for _, seg := range strings.Split(path[1:], "/") {
		switch seg {
		case "":
			return fmt.Errorf("%w: %q contains an empty segment", ErrBadPath, path)
		case ".", "..":
			return fmt.Errorf("%w: %q contains a relative segment", ErrBadPath, path)
		}
	}
	return nil
}

// splitPath returns the parent path and final segment of a validated,
// non-root path.
func splitPath(path string) (string, string) {
	idx := strings.LastIndex(path, "/")
	if idx == 0 {
		return "/", path[1:]
	}
	return path[:idx], path[idx+1:]
}

// lookup walks to the node at path. Caller holds the lock.
func (t *Tree) lookup(path string) *node {
	if path == "/" {
		return t.root
	}
	cur := t.root
	for _, seg := range strings.Split(path[1:], "/") {
		next, ok := cur.children[seg]
		if !ok {
			return nil
		}
		cur = next
	}
	return cur
}

// Create inserts a node at path. The parent must already exist and the path
// must be free. The parent's cversion is bumped.
func (t *Tree) Create(path string, data []byte, container bool, timeMs int64) (NodeStat, error) {
	if err := ValidatePath(path); err != nil {
		return NodeStat{}, err
	}
	if path == "/" {
		return NodeStat{}, fmt.Errorf("%w: %s", ErrNodeExists, path)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	parentPath, name := splitPath(path)
	parent := t.lookup(parentPath)
	if parent == nil {
		return NodeStat{}, fmt.Errorf("%w: %s", ErrNoNode, parentPath)
	}
	if _, ok := parent.children[name]; ok {
		return NodeStat{}, fmt.Errorf("%w: %s", ErrNodeExists, path)
	}

	n := newNode(data, container, timeMs)
	parent.children[name] = n
	parent.cversion++
	t.count++
	if container {
		t.containers[path] = struct{}{}
	}
	return n.stat(), nil
}

// Set replaces the node's data and bumps its version.
func (t *Tree) Set(path string, data []byte, timeMs int64) (NodeStat, error) {
	if err := ValidatePath(path); err != nil {
		return NodeStat{}, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	n := t.lookup(path)
	if n == nil {
		return NodeStat{}, fmt.Errorf("%w: %s", ErrNoNode, path)
	}
	n.data = data
	n.version++
	n.mtimeMs = timeMs
	return n.stat(), nil
}

// Delete removes a childless non-root node and bumps the parent's cversion.
func (t *Tree) Delete(path string) error {
	if err := ValidatePath(path); err != nil {
		return err
	}
	if path == "/" {
		return fmt.Errorf("%w: cannot delete the root", ErrBadPath)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	parentPath, name := splitPath(path)
	parent := t.lookup(parentPath)
	if parent == nil {
		return fmt.Errorf("%w: %s", ErrNoNode, path)
	}
	n, ok := parent.children[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoNode, path)
	}
	if len(n.children) > 0 {
		return fmt.Errorf("%w: %s", ErrNotEmpty, path)
	}

	delete(parent.children, name)
	parent.cversion++
	t.count--
	delete(t.containers, path)
	return nil
}

// Get returns the node's data and stat.
func (t *Tree) Get(path string) ([]byte, NodeStat, error) {
	if err := ValidatePath(path); err != nil {
		return nil, NodeStat{}, err
	}

	t.mu.RLock()
	defer t.mu.RUnlock()

	n := t.lookup(path)
	if n == nil {
		return nil, NodeStat{}, fmt.Errorf("%w: %s", ErrNoNode, path)
	}
	return n.data, n.stat(), nil
}

// Children returns the sorted child names of the node at path.
func (t *Tree) Children(path string) ([]string, error) {
	if err := ValidatePath(path); err != nil {
		return nil, err
	}

	t.mu.RLock()
	defer t.mu.RUnlock()

	n := t.lookup(path)
	if n == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoNode, path)
	}
	names := make([]string, 0, len(n.children))
	for name := range n.children {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Stat returns the node's metadata.
func (t *Tree) Stat(path string) (NodeStat, error) {
	if err := ValidatePath(path); err != nil {
		return NodeStat{}, err
	}

	t.mu.RLock()
	defer t.mu.RUnlock()

	n := t.lookup(path)
	if n == nil {
		return NodeStat{}, fmt.Errorf("%w: %s", ErrNoNode, path)
	}
	return n.stat(), nil
}

// Containers returns the paths of all container nodes, sorted.
func (t *Tree) Containers() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	paths := make([]string, 0, len(t.containers))
	for p := range t.containers {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// Count returns the number of nodes including the root.
func (t *Tree) Count() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.count
}

// Clear resets the tree to a lone root node.
func (t *Tree) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.root = newNode(nil, false, 0)
	t.count = 1
	t.containers = make(map[string]struct{})
}

// nodeImage is the snapshot form of a node.
type nodeImage struct {
	Data      []byte `json:"data,omitempty"`
	Container bool   `json:"container,omitempty"`
	Version   int32  `json:"version"`
	CVersion  int32  `json:"cversion"`
	CtimeMs   int64  `json:"ctime_ms"`
	MtimeMs   int64  `json:"mtime_ms"`
}

// Serialize flattens the tree into a path-keyed JSON image.
func (t *Tree) Serialize() (json.RawMessage, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	images := make(map[string]nodeImage, t.count)
	var walk func(path string, n *node)
	walk = func(path string, n *node) {
		images[path] = nodeImage{
			Data:      n.data,
			Container: n.container,
			Version:   n.version,
			CVersion:  n.cversion,
			CtimeMs:   n.ctimeMs,
			MtimeMs:   n.mtimeMs,
		}
		for name, child := range n.children {
			childPath := path + "/" + name
			if path == "/" {
				childPath = "/" + name
			}
			walk(childPath, child)
		}
	}
	walk("/", t.root)

	data, err := json.Marshal(images)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize tree: %w", err)
	}
	return data, nil
}

// Load replaces the tree contents with a serialized image. Node stats are
// restored exactly as recorded.
func (t *Tree) Load(data json.RawMessage) error {
	var images map[string]nodeImage
	if err := json.Unmarshal(data, &images); err != nil {
		return fmt.Errorf("failed to deserialize tree: %w", err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.root = newNode(nil, false, 0)
	t.count = 1
	t.containers = make(map[string]struct{})

	// Lexicographic order guarantees parents restore before children
	paths := make([]string, 0, len(images))
	for p := range images {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	for _, p := range paths {
		img := images[p]
		var n *node
		if p == "/" {
			n = t.root
		} else {
			parentPath, name := splitPath(p)
			parent := t.lookup(parentPath)
			if parent == nil {
				return fmt.Errorf("snapshot image is missing parent of %s", p)
			}
			n = newNode(nil, false, 0)
			parent.children[name] = n
			t.count++
		}
		n.data = img.Data
		n.container = img.Container
		n.version = img.Version
		n.cversion = img.CVersion
		n.ctimeMs = img.CtimeMs
		n.mtimeMs = img.MtimeMs
		if img.Container {
			t.containers[p] = struct{}{}
		}
	}
	return nil
}
