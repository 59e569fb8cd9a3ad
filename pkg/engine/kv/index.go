package kv

import (
	"hash/fnv"
	"sync"
)

// location identifies the bytes of one Set record: which log file, at what
// offset, and how many bytes long.
type location struct {
	fileID uint64
	offset int64
	length int64
}

const indexShardCount = 32

// index is the authoritative key→location map. It is sharded so that
// lookups for unrelated keys never contend on the same lock, generalizing
// the teacher's single guarded-map shape (pkg/worker.Worker's
// `containersMu sync.RWMutex` over `map[string]*types.Container`) to the
// read-heavy, high-cardinality access pattern this engine's index sees.
type index struct {
	shards [indexShardCount]indexShard
}

type indexShard struct {
	mu      sync.RWMutex
	entries map[string]location
}

func newIndex() *index {
	idx := &index{}
	for i := range idx.shards {
		idx.shards[i].entries = make(map[string]location)
	}
	return idx
}

func (idx *index) shardFor(key string) *indexShard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return &idx.shards[h.Sum32()%indexShardCount]
}

// get returns the location for key, and whether it was present.
func (idx *index) get(key string) (location, bool) {
	shard := idx.shardFor(key)
	shard.mu.RLock()
	defer shard.mu.RUnlock()
	loc, ok := shard.entries[key]
	return loc, ok
}

// set installs loc for key and returns the previous location, if any.
// Callers (the writer, under its own lock) use the previous location's
// length to update the uncompacted-bytes counter.
func (idx *index) set(key string, loc location) (prev location, hadPrev bool) {
	shard := idx.shardFor(key)
	shard.mu.Lock()
	defer shard.mu.Unlock()
	prev, hadPrev = shard.entries[key]
	shard.entries[key] = loc
	return prev, hadPrev
}

// delete removes key and returns its previous location, if any.
func (idx *index) delete(key string) (prev location, hadPrev bool) {
	shard := idx.shardFor(key)
	shard.mu.Lock()
	defer shard.mu.Unlock()
	prev, hadPrev = shard.entries[key]
	delete(shard.entries, key)
	return prev, hadPrev
}

// snapshot returns every live (key, location) pair. Used by compaction,
// which holds the writer lock for the duration so no concurrent mutation
// of the index can occur while it iterates.
func (idx *index) snapshot() map[string]location {
	out := make(map[string]location)
	for i := range idx.shards {
		shard := &idx.shards[i]
		shard.mu.RLock()
		for k, v := range shard.entries {
			out[k] = v
		}
		shard.mu.RUnlock()
	}
	return out
}

// replace installs loc for key unconditionally, used by compaction to
// repoint surviving entries at the new compaction file.
func (idx *index) replace(key string, loc location) {
	shard := idx.shardFor(key)
	shard.mu.Lock()
	shard.entries[key] = loc
	shard.mu.Unlock()
}
