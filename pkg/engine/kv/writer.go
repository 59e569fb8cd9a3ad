package kv

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/cuemby/kvs/pkg/kverr"
	"github.com/cuemby/kvs/pkg/log"
	"github.com/cuemby/kvs/pkg/metrics"
)

// DefaultCompactionThreshold is the uncompacted-bytes level that triggers
// compaction, per spec.
const DefaultCompactionThreshold = 1 << 20 // 1 MiB

// writer is the engine's single mutating actor: it owns the active log
// file, the current file id, and the uncompacted-bytes counter. All of
// set, remove, and compaction run under writer.mu, so writes are totally
// ordered; readers never take this lock.
type writer struct {
	mu sync.Mutex

	dir       string
	idx       *index
	safePoint *uint64 // shared atomic, written only here

	compactionThreshold uint64

	activeID     uint64
	activeFile   *os.File
	activeOffset int64
	uncompacted  uint64
}

func newWriter(dir string, idx *index, safePoint *uint64, activeID uint64, activeFile *os.File, activeOffset int64, uncompacted uint64, threshold uint64) *writer {
	if threshold == 0 {
		threshold = DefaultCompactionThreshold
	}
	return &writer{
		dir:                 dir,
		idx:                 idx,
		safePoint:           safePoint,
		compactionThreshold: threshold,
		activeID:            activeID,
		activeFile:          activeFile,
		activeOffset:        activeOffset,
		uncompacted:         uncompacted,
	}
}

// set appends a Set record for key/value, updates the index, and triggers
// compaction if the uncompacted-bytes counter has crossed the threshold.
func (w *writer) set(key, value string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	loc, err := w.append(setRecordOf(key, value))
	if err != nil {
		return err
	}

	if prev, had := w.idx.set(key, loc); had {
		w.uncompacted += uint64(prev.length)
	}

	err = w.maybeCompactLocked()
	metrics.EngineUncompactedBytes.Set(float64(w.uncompacted))
	return err
}

// remove appends a Remove record for key after checking it is present,
// updates the index, and triggers compaction if the threshold is crossed.
func (w *writer) remove(key string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	prev, had := w.idx.delete(key)
	if !had {
		return kverr.New(kverr.KeyNotFound, fmt.Sprintf("key %q not found", key))
	}

	loc, err := w.append(removeRecordOf(key))
	if err != nil {
		return err
	}

	w.uncompacted += uint64(prev.length) + uint64(loc.length)
	err = w.maybeCompactLocked()
	metrics.EngineUncompactedBytes.Set(float64(w.uncompacted))
	return err
}

// append serializes rec, writes it to the active file, syncs the file to
// disk, and returns its location.
func (w *writer) append(rec record) (location, error) {
	payload, err := json.Marshal(rec)
	if err != nil {
		return location{}, kverr.Wrap(kverr.Codec, "marshal record", err)
	}

	begin := w.activeOffset
	n, err := w.activeFile.Write(payload)
	if err != nil {
		return location{}, kverr.Wrap(kverr.Io, "append record", err)
	}
	if err := w.activeFile.Sync(); err != nil {
		return location{}, kverr.Wrap(kverr.Io, "flush log file", err)
	}
	w.activeOffset += int64(n)

	return location{fileID: w.activeID, offset: begin, length: int64(n)}, nil
}

func (w *writer) maybeCompactLocked() error {
	if w.uncompacted < w.compactionThreshold {
		return nil
	}
	return w.compactLocked()
}

// compactLocked rewrites every live record into a fresh file C = active+1,
// repoints the index at it, publishes the new safe point, deletes every
// older file, and advances the active id to C+1. Readers proceed
// unaffected throughout: old files are not deleted until every index entry
// has already moved to C.
func (w *writer) compactLocked() error {
	compactionID := w.activeID + 1
	compactionPath := filepath.Join(w.dir, logFileName(compactionID))

	compactionFile, err := os.OpenFile(compactionPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return kverr.Wrap(kverr.Io, "create compaction file", err)
	}

	readHandles := make(map[uint64]*os.File)
	defer func() {
		for _, f := range readHandles {
			_ = f.Close()
		}
	}()

	var writeOffset int64
	snapshot := w.idx.snapshot()

	for key, loc := range snapshot {
		src, ok := readHandles[loc.fileID]
		if !ok {
			src, err = os.Open(filepath.Join(w.dir, logFileName(loc.fileID)))
			if err != nil {
				_ = compactionFile.Close()
				_ = os.Remove(compactionPath)
				return kverr.Wrap(kverr.Io, fmt.Sprintf("open source file %d for compaction", loc.fileID), err)
			}
			readHandles[loc.fileID] = src
		}

		buf := make([]byte, loc.length)
		if _, err := src.ReadAt(buf, loc.offset); err != nil {
			_ = compactionFile.Close()
			_ = os.Remove(compactionPath)
			return kverr.Wrap(kverr.Io, "read record during compaction", err)
		}
		if _, err := compactionFile.Write(buf); err != nil {
			_ = compactionFile.Close()
			_ = os.Remove(compactionPath)
			return kverr.Wrap(kverr.Io, "write compacted record", err)
		}

		w.idx.replace(key, location{fileID: compactionID, offset: writeOffset, length: loc.length})
		writeOffset += loc.length
	}

	if err := compactionFile.Sync(); err != nil {
		_ = compactionFile.Close()
		return kverr.Wrap(kverr.Io, "flush compaction file", err)
	}
	if err := compactionFile.Close(); err != nil {
		return kverr.Wrap(kverr.Io, "close compaction file", err)
	}

	// Publish the new safe point before deleting old files: readers that
	// still hold handles below it will lazily evict on next access.
	atomic.StoreUint64(w.safePoint, compactionID)

	if err := w.deleteFilesBelow(compactionID); err != nil {
		log.WithComponent("engine").Warn().Err(err).Msg("failed to remove obsolete log file after compaction")
	}

	if err := w.activeFile.Close(); err != nil {
		return kverr.Wrap(kverr.Io, "close previous active file", err)
	}

	newActiveID := compactionID + 1
	newActivePath := filepath.Join(w.dir, logFileName(newActiveID))
	newActiveFile, err := os.OpenFile(newActivePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return kverr.Wrap(kverr.Io, "open new active file", err)
	}

	w.activeID = newActiveID
	w.activeFile = newActiveFile
	w.activeOffset = 0
	w.uncompacted = 0

	metrics.EngineCompactionsTotal.Inc()
	metrics.EngineUncompactedBytes.Set(0)
	return nil
}

func (w *writer) deleteFilesBelow(limit uint64) error {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return err
	}

	var firstErr error
	for _, e := range entries {
		id, ok := parseLogFileName(e.Name())
		if !ok || id >= limit {
			continue
		}
		if err := os.Remove(filepath.Join(w.dir, e.Name())); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (w *writer) close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.activeFile == nil {
		return nil
	}
	err := w.activeFile.Close()
	w.activeFile = nil
	return err
}

var _ io.Closer = (*writer)(nil)
