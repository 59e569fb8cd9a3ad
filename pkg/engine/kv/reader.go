package kv

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/cuemby/kvs/pkg/kverr"
)

// reader holds one clone's local cache of open file handles, keyed by
// file id. Never mutates the index or creates files. Per spec, readers
// must not share handles: each engine clone owns its own reader so seeks
// never contend across goroutines.
type reader struct {
	dir       string
	safePoint *uint64 // shared with the writer; read-only here
	handles   map[uint64]*os.File
}

func newReader(dir string, safePoint *uint64) *reader {
	return &reader{dir: dir, safePoint: safePoint, handles: make(map[uint64]*os.File)}
}

// evictStale drops cached handles for file ids below the current safe
// point. It is a hint, not a correctness gate: after compaction no index
// entry points below the safe point, so a stale handle is never asked for
// again. A Get that looked up a location just before compaction and then
// has to open the deleted file fails with an Io error; it is not retried.
func (rd *reader) evictStale() {
	sp := atomic.LoadUint64(rd.safePoint)
	for id, f := range rd.handles {
		if id < sp {
			_ = f.Close()
			delete(rd.handles, id)
		}
	}
}

func (rd *reader) handleFor(fileID uint64) (*os.File, error) {
	rd.evictStale()

	if f, ok := rd.handles[fileID]; ok {
		return f, nil
	}

	path := filepath.Join(rd.dir, logFileName(fileID))
	f, err := os.Open(path)
	if err != nil {
		return nil, kverr.Wrap(kverr.Io, fmt.Sprintf("open log file %d", fileID), err)
	}
	rd.handles[fileID] = f
	return f, nil
}

// readRecordAt seeks to loc and decodes exactly one record from it.
func (rd *reader) readRecordAt(loc location) (record, error) {
	f, err := rd.handleFor(loc.fileID)
	if err != nil {
		return record{}, err
	}

	buf := make([]byte, loc.length)
	if _, err := f.ReadAt(buf, loc.offset); err != nil {
		return record{}, kverr.Wrap(kverr.Io, "read record bytes", err)
	}

	var rec record
	if err := json.Unmarshal(buf, &rec); err != nil {
		return record{}, kverr.Wrap(kverr.Codec, "decode record", err)
	}
	return rec, nil
}

// close releases every cached handle. Safe to call once per reader.
func (rd *reader) close() error {
	var firstErr error
	for id, f := range rd.handles {
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(rd.handles, id)
	}
	return firstErr
}

func logFileName(id uint64) string {
	return fmt.Sprintf("%d.log", id)
}

// parseLogFileName parses the file id out of a "<N>.log" name. Any other
// name in the data directory (the engine marker, an unrelated file) is
// reported as not-ok so callers skip it.
func parseLogFileName(name string) (id uint64, ok bool) {
	const suffix = ".log"
	if !strings.HasSuffix(name, suffix) {
		return 0, false
	}
	n, err := strconv.ParseUint(strings.TrimSuffix(name, suffix), 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}
