// Package kv implements the log-structured storage engine: an append-only
// sequence of "<id>.log" files plus an in-memory index, following the
// teacher's habit (pkg/storage/boltdb.go) of keeping one package per
// storage backend behind a small interface.
package kv

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/cuemby/kvs/pkg/engine"
	"github.com/cuemby/kvs/pkg/kverr"
	"github.com/cuemby/kvs/pkg/log"
	"github.com/cuemby/kvs/pkg/metrics"
)

// store is the logical, directory-wide state shared by every clone of an
// open engine: the index, the singleton writer, and the safe point readers
// consult before trusting a cached file handle.
type store struct {
	dir       string
	idx       *index
	safePoint uint64
	w         *writer
}

// Engine is a handle onto an open data directory. Clones share one store
// but each own a private reader, so concurrent Get calls never contend on
// file-handle bookkeeping.
type Engine struct {
	st *store
	rd *reader
}

var _ engine.Cloner = (*Engine)(nil)

// Open opens (creating if absent) the log-structured engine rooted at dir,
// replaying every log file to rebuild the index before returning. It uses
// the default 1 MiB compaction threshold; call OpenWithThreshold to
// override it.
func Open(dir string) (*Engine, error) {
	return OpenWithThreshold(dir, DefaultCompactionThreshold)
}

// OpenWithThreshold is Open with an explicit uncompacted-bytes threshold at
// which compaction runs, wiring the config package's
// compaction_threshold_bytes setting through to the writer.
func OpenWithThreshold(dir string, threshold uint64) (*Engine, error) {
	if err := engine.CheckMarker(dir, engine.KVS); err != nil {
		return nil, err
	}

	ids, err := existingFileIDs(dir)
	if err != nil {
		return nil, err
	}

	idx := newIndex()
	var uncompacted uint64

	for _, id := range ids {
		log.WithFile(id).Debug().Msg("replaying log file")
		n, err := replayFile(dir, id, idx)
		if err != nil {
			return nil, err
		}
		uncompacted += n
	}

	activeID := uint64(0)
	if len(ids) > 0 {
		activeID = ids[len(ids)-1]
	}

	activePath := filepath.Join(dir, logFileName(activeID))
	activeFile, err := os.OpenFile(activePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, kverr.Wrap(kverr.Io, "open active log file", err)
	}
	info, err := activeFile.Stat()
	if err != nil {
		return nil, kverr.Wrap(kverr.Io, "stat active log file", err)
	}

	st := &store{dir: dir, idx: idx}
	safePoint := activeID
	if len(ids) > 0 {
		safePoint = ids[0]
	}
	st.safePoint = safePoint

	st.w = newWriter(dir, idx, &st.safePoint, activeID, activeFile, info.Size(), uncompacted, threshold)

	return &Engine{st: st, rd: newReader(dir, &st.safePoint)}, nil
}

// Clone returns a new handle sharing this engine's store but owning an
// independent reader, suitable for handing to another goroutine.
func (e *Engine) Clone() engine.Engine {
	return &Engine{st: e.st, rd: newReader(e.st.dir, &e.st.safePoint)}
}

// Set asserts key ↦ value.
func (e *Engine) Set(key, value string) error {
	timer := metrics.NewTimer()
	err := e.st.w.set(key, value)
	timer.ObserveDurationVec(metrics.EngineOpDuration, "set")
	metrics.EngineOpsTotal.WithLabelValues("set", resultLabel(err)).Inc()
	return err
}

// Get returns the value for key, or ok=false if key is absent.
func (e *Engine) Get(key string) (string, bool, error) {
	timer := metrics.NewTimer()
	loc, ok := e.st.idx.get(key)
	if !ok {
		timer.ObserveDurationVec(metrics.EngineOpDuration, "get")
		metrics.EngineOpsTotal.WithLabelValues("get", "miss").Inc()
		return "", false, nil
	}

	rec, err := e.rd.readRecordAt(loc)
	timer.ObserveDurationVec(metrics.EngineOpDuration, "get")
	if err != nil {
		metrics.EngineOpsTotal.WithLabelValues("get", "error").Inc()
		return "", false, err
	}
	if rec.Set == nil {
		metrics.EngineOpsTotal.WithLabelValues("get", "error").Inc()
		return "", false, kverr.New(kverr.UnexpectedRecord, fmt.Sprintf("index points at non-Set record for key %q", key))
	}
	metrics.EngineOpsTotal.WithLabelValues("get", "hit").Inc()
	return rec.Set.Value, true, nil
}

// Remove asserts key is absent.
func (e *Engine) Remove(key string) error {
	timer := metrics.NewTimer()
	err := e.st.w.remove(key)
	timer.ObserveDurationVec(metrics.EngineOpDuration, "remove")
	metrics.EngineOpsTotal.WithLabelValues("remove", resultLabel(err)).Inc()
	return err
}

// Close releases this handle's reader. The writer and its active file are
// only closed once, by whichever handle was returned from Open.
func (e *Engine) Close() error {
	return e.rd.close()
}

// Shutdown closes this handle's reader and the shared writer's active
// file. Call it once, on the root handle returned by Open, during process
// shutdown; clones created via Clone only need the plain Close.
func (e *Engine) Shutdown() error {
	rerr := e.rd.close()
	werr := e.st.w.close()
	if werr != nil {
		return werr
	}
	return rerr
}

func resultLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func existingFileIDs(dir string) ([]uint64, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, kverr.Wrap(kverr.Io, "list data directory", err)
	}

	var ids []uint64
	for _, e := range entries {
		if id, ok := parseLogFileName(e.Name()); ok {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// replayFile streams the records in file id's log, applying each to idx in
// order, and returns the number of dead bytes it found: Set records
// overwritten or removed by later records, plus every Remove record itself
// (used to seed the uncompacted-bytes counter).
//
// A truncated trailing record (the decoder runs out of input mid-object,
// e.g. a crash during append) silently ends replay for this file; earlier
// records stand. Any other decode failure is genuine corruption and is
// reported as kverr.Codec; kverr.UnexpectedRecord is reserved for a Get
// landing on a record of the wrong variant, not file-level corruption.
func replayFile(dir string, id uint64, idx *index) (uint64, error) {
	path := filepath.Join(dir, logFileName(id))
	f, err := os.Open(path)
	if err != nil {
		return 0, kverr.Wrap(kverr.Io, fmt.Sprintf("open log file %d for replay", id), err)
	}
	defer f.Close()

	dec := json.NewDecoder(f)
	var stale uint64

	for {
		start := dec.InputOffset()
		var rec record
		err := dec.Decode(&rec)
		if err == io.EOF {
			break
		}
		if err != nil {
			if errors.Is(err, io.ErrUnexpectedEOF) {
				break
			}
			return stale, kverr.Wrap(kverr.Codec, fmt.Sprintf("corrupt record in log file %d", id), err)
		}
		end := dec.InputOffset()
		length := end - start

		switch {
		case rec.Set != nil:
			loc := location{fileID: id, offset: start, length: length}
			if prev, had := idx.set(rec.Set.Key, loc); had {
				stale += uint64(prev.length)
			}
		case rec.Remove != nil:
			if prev, had := idx.delete(*rec.Remove); had {
				stale += uint64(prev.length)
			}
			stale += uint64(length)
		default:
			return stale, kverr.New(kverr.Codec, fmt.Sprintf("empty record variant in log file %d", id))
		}
	}

	return stale, nil
}
