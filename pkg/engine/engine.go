// Package engine defines the storage-engine interface both the
// log-structured engine (pkg/engine/kv) and the bbolt-backed engine
// (pkg/engine/bolt) satisfy, plus the shared directory-marker convention
// that records which engine last opened a data directory.
package engine

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/cuemby/kvs/pkg/kverr"
)

// Engine is the interface every storage backend satisfies. Handles are
// cheaply cloneable and clones may be used concurrently from different
// goroutines; clones share one logical store.
type Engine interface {
	// Set asserts key ↦ value.
	Set(key, value string) error
	// Get returns the value for key, or ok=false if key is absent.
	Get(key string) (value string, ok bool, err error)
	// Remove asserts key is absent. Fails KeyNotFound if key was already absent.
	Remove(key string) error
	// Close releases resources held by this handle.
	Close() error
}

// Cloner is satisfied by engine handles that can hand out cheap,
// independently-usable clones of themselves. The server clones the root
// engine handle once per connection so that concurrent connections never
// share reader state.
type Cloner interface {
	Engine
	Clone() Engine
}

// Name identifies which engine implementation a data directory was opened with.
type Name string

const (
	KVS  Name = "kvs"
	Sled Name = "sled"
)

const markerFileName = "engine"

// CheckMarker reads the "engine" marker file in dir (if any) and verifies
// it agrees with want. If the marker file is absent, it is created
// recording want. If present and it disagrees, startup must fail.
func CheckMarker(dir string, want Name) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return kverr.Wrap(kverr.Io, "create data directory", err)
	}

	path := filepath.Join(dir, markerFileName)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		if werr := os.WriteFile(path, []byte(string(want)), 0o644); werr != nil {
			return kverr.Wrap(kverr.Io, "write engine marker", werr)
		}
		return nil
	}
	if err != nil {
		return kverr.Wrap(kverr.Io, "read engine marker", err)
	}

	got := Name(strings.TrimSpace(string(data)))
	if got != want {
		return kverr.New(kverr.Other, fmt.Sprintf("data directory was last opened with engine %q, not %q", got, want))
	}
	return nil
}
