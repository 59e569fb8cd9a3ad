// Package bolt implements the external embedded-btree storage engine on
// top of go.etcd.io/bbolt, following the teacher's pkg/storage.BoltStore
// shape (one bucket per domain, db.Update/db.View transactions) collapsed
// to the single "kv" bucket this engine needs.
package bolt

import (
	"fmt"
	"path/filepath"
	"unicode/utf8"

	bolt "go.etcd.io/bbolt"

	"github.com/cuemby/kvs/pkg/engine"
	"github.com/cuemby/kvs/pkg/kverr"
)

var bucketKV = []byte("kv")

const dbFileName = "kvs.db"

// Engine is the bbolt-backed engine. Unlike the log-structured engine it
// has no separate reader/writer split: bbolt's own MVCC transactions give
// every Engine value safe concurrent access to one *bolt.DB. isRoot marks
// the handle Open returned, the only one allowed to actually close the
// shared *bolt.DB; clones' Close is a no-op, mirroring how the kv engine's
// per-clone Close only tears down that clone's reader while Shutdown takes
// the shared writer down.
type Engine struct {
	db     *bolt.DB
	isRoot bool
}

var _ engine.Cloner = (*Engine)(nil)

// Open opens (creating if absent) the bbolt database rooted at dir.
func Open(dir string) (*Engine, error) {
	if err := engine.CheckMarker(dir, engine.Sled); err != nil {
		return nil, err
	}

	db, err := bolt.Open(filepath.Join(dir, dbFileName), 0o600, nil)
	if err != nil {
		return nil, kverr.Wrap(kverr.Io, "open bolt database", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketKV)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, kverr.Wrap(kverr.Io, "create kv bucket", err)
	}

	return &Engine{db: db, isRoot: true}, nil
}

// Clone returns a non-root handle sharing e's *bolt.DB: bbolt's own MVCC
// transactions give every handle safe concurrent access to it, so no
// per-clone state is needed beyond not being the one that closes it.
func (e *Engine) Clone() engine.Engine {
	return &Engine{db: e.db}
}

// Set asserts key ↦ value.
func (e *Engine) Set(key, value string) error {
	if !utf8.ValidString(key) || !utf8.ValidString(value) {
		return kverr.New(kverr.Utf8, "key and value must be valid UTF-8")
	}

	err := e.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketKV).Put([]byte(key), []byte(value))
	})
	if err != nil {
		return kverr.Wrap(kverr.Io, "bolt put", err)
	}
	return nil
}

// Get returns the value for key, or ok=false if key is absent.
func (e *Engine) Get(key string) (string, bool, error) {
	var value string
	var found bool

	err := e.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketKV).Get([]byte(key))
		if v == nil {
			return nil
		}
		if !utf8.Valid(v) {
			return kverr.New(kverr.Utf8, fmt.Sprintf("value for key %q is not valid UTF-8", key))
		}
		found = true
		value = string(v)
		return nil
	})
	if err != nil {
		if kverr.KindOf(err) == kverr.Utf8 {
			return "", false, err
		}
		return "", false, kverr.Wrap(kverr.Io, "bolt get", err)
	}
	return value, found, nil
}

// Remove asserts key is absent, failing KeyNotFound if it was already
// absent, matching the log-structured engine's Remove semantics.
func (e *Engine) Remove(key string) error {
	err := e.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketKV)
		if b.Get([]byte(key)) == nil {
			return kverr.New(kverr.KeyNotFound, fmt.Sprintf("key %q not found", key))
		}
		return b.Delete([]byte(key))
	})
	if err != nil {
		if kverr.KindOf(err) == kverr.KeyNotFound {
			return err
		}
		return kverr.Wrap(kverr.Io, "bolt delete", err)
	}
	return nil
}

// Close releases this handle. Clones share the root handle's *bolt.DB and
// must not close it out from under sibling clones, so Close is a no-op for
// them; only the root handle's Close (or Shutdown) actually closes it.
func (e *Engine) Close() error {
	if !e.isRoot {
		return nil
	}
	return e.closeDB()
}

// Shutdown closes the shared *bolt.DB. Call it once, on the root handle
// returned by Open, during process shutdown; clones created via Clone only
// need the plain (no-op) Close.
func (e *Engine) Shutdown() error {
	return e.closeDB()
}

func (e *Engine) closeDB() error {
	if err := e.db.Close(); err != nil {
		return kverr.Wrap(kverr.Io, "close bolt database", err)
	}
	return nil
}
