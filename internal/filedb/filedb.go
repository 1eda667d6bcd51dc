// Package filedb implements a small path-addressed JSON document store
// persisted to a single file. Collections live under slash-separated paths
// ("/mergeTransactions", "/mergeTransactionsById/tx-1") and every mutation is
// flushed to disk before it returns.
//
// The store itself is safe for concurrent use, but it gives no atomicity
// across calls; callers that need a check-then-write sequence must hold their
// own lock around it.
package filedb

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/goccy/go-json"
)

var (
	// ErrPathNotFound is returned by Get when no value exists at the path.
	ErrPathNotFound = errors.New("filedb: path not found")
	// ErrNotArray is returned by Push when the path holds a non-array value.
	ErrNotArray = errors.New("filedb: value at path is not an array")
)

// DB is a file-backed JSON document store.
type DB struct {
	mu   sync.RWMutex
	file string
	root map[string]any
}

// Open loads the document at file, starting from an empty document when the
// file does not exist yet.
func Open(file string) (*DB, error) {
	db := &DB{file: file, root: map[string]any{}}

	data, err := os.ReadFile(file)
	if errors.Is(err, os.ErrNotExist) {
		return db, nil
	}
	if err != nil {
		return nil, fmt.Errorf("filedb: read %s: %w", file, err)
	}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &db.root); err != nil {
			return nil, fmt.Errorf("filedb: decode %s: %w", file, err)
		}
	}
	return db, nil
}

// Get decodes the value at path into out.
func (db *DB) Get(path string, out any) error {
	db.mu.RLock()
	defer db.mu.RUnlock()

	node, ok := db.lookup(path)
	if !ok {
		return fmt.Errorf("%w: %s", ErrPathNotFound, path)
	}
	raw, err := json.Marshal(node)
	if err != nil {
		return fmt.Errorf("filedb: encode value at %s: %w", path, err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("filedb: decode value at %s: %w", path, err)
	}
	return nil
}

// Set stores v at path, replacing any existing value and creating
// intermediate objects as needed.
func (db *DB) Set(path string, v any) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	node, err := toTree(v)
	if err != nil {
		return err
	}
	parent, key, err := db.parent(path, true)
	if err != nil {
		return err
	}
	parent[key] = node
	return db.flush()
}

// Push appends v to the array at path, creating the array when absent.
func (db *DB) Push(path string, v any) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	node, err := toTree(v)
	if err != nil {
		return err
	}
	parent, key, err := db.parent(path, true)
	if err != nil {
		return err
	}
	switch cur := parent[key].(type) {
	case nil:
		parent[key] = []any{node}
	case []any:
		parent[key] = append(cur, node)
	default:
		return fmt.Errorf("%w: %s", ErrNotArray, path)
	}
	return db.flush()
}

// Exists reports whether any value is stored at path.
func (db *DB) Exists(path string) (bool, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	_, ok := db.lookup(path)
	return ok, nil
}

// EnsureArray seeds an empty array at path when nothing is stored there yet.
func (db *DB) EnsureArray(path string) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if _, ok := db.lookup(path); ok {
		return nil
	}
	parent, key, err := db.parent(path, true)
	if err != nil {
		return err
	}
	parent[key] = []any{}
	return db.flush()
}

// lookup walks the document tree. Callers must hold at least the read lock.
func (db *DB) lookup(path string) (any, bool) {
	keys := splitPath(path)
	if len(keys) == 0 {
		return db.root, true
	}
	var node any = db.root
	for _, k := range keys {
		obj, ok := node.(map[string]any)
		if !ok {
			return nil, false
		}
		node, ok = obj[k]
		if !ok {
			return nil, false
		}
	}
	return node, true
}

// parent resolves the object holding the final path segment, optionally
// creating intermediate objects. Callers must hold the write lock.
func (db *DB) parent(path string, create bool) (map[string]any, string, error) {
	keys := splitPath(path)
	if len(keys) == 0 {
		return nil, "", fmt.Errorf("filedb: empty path")
	}
	obj := db.root
	for _, k := range keys[:len(keys)-1] {
		next, ok := obj[k]
		if !ok {
			if !create {
				return nil, "", fmt.Errorf("%w: %s", ErrPathNotFound, path)
			}
			child := map[string]any{}
			obj[k] = child
			obj = child
			continue
		}
		child, ok := next.(map[string]any)
		if !ok {
			return nil, "", fmt.Errorf("filedb: %s crosses a non-object value", path)
		}
		obj = child
	}
	return obj, keys[len(keys)-1], nil
}

// flush writes the document to disk via a temp file and rename so a crash
// mid-write never truncates the store. Callers must hold the write lock.
func (db *DB) flush() error {
	data, err := json.MarshalIndent(db.root, "", "  ")
	if err != nil {
		return fmt.Errorf("filedb: encode document: %w", err)
	}
	dir := filepath.Dir(db.file)
	tmp, err := os.CreateTemp(dir, ".filedb-*")
	if err != nil {
		return fmt.Errorf("filedb: create temp file: %w", err)
	}
	name := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(name)
		return fmt.Errorf("filedb: write %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(name)
		return fmt.Errorf("filedb: close %s: %w", name, err)
	}
	if err := os.Rename(name, db.file); err != nil {
		os.Remove(name)
		return fmt.Errorf("filedb: rename %s: %w", name, err)
	}
	return nil
}

// toTree converts v into the generic map/slice representation used by the
// in-memory document.
func toTree(v any) (any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("filedb: encode value: %w", err)
	}
	var node any
	if err := json.Unmarshal(raw, &node); err != nil {
		return nil, fmt.Errorf("filedb: normalize value: %w", err)
	}
	return node, nil
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}
