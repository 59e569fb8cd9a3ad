// Package pool provides interchangeable worker-pool implementations for
// dispatching fire-and-forget jobs: a naive one-goroutine-per-job pool, a
// shared-queue pool, and a work-stealing pool. All three satisfy Pool and
// isolate panicking jobs so a bad job never kills a worker or the pool.
//
// The lifecycle shape (stopped once, workers drained on shutdown) follows
// the teacher's pkg/worker.Worker and pkg/events.Broker. Here the
// shared-queue and work-stealing pools stop through a closed flag guarded
// by the pool's mutex, with a condition-variable broadcast waking every
// worker so it drains the remaining jobs and exits.
package pool

import (
	"fmt"
	"runtime/debug"
	"sync/atomic"

	"github.com/cuemby/kvs/pkg/kverr"
	"github.com/cuemby/kvs/pkg/log"
)

// Job is a zero-argument unit of work submitted to a Pool.
type Job func()

// Pool dispatches jobs onto a fixed set of worker goroutines. Pools are
// cheaply cloneable: every clone shares the one underlying pool, and the
// underlying workers only stop once every clone (the original included)
// has called Shutdown.
type Pool interface {
	// Spawn submits job for execution. It never blocks the caller and never
	// fails visibly; if the pool is shutting down the job may be dropped.
	Spawn(job Job)
	// Clone returns a new handle sharing this pool's workers.
	Clone() Pool
	// Shutdown releases this handle's share of the pool. Once every clone
	// has called Shutdown, the underlying workers stop and the call that
	// dropped the count to zero blocks until they finish; earlier callers
	// return immediately.
	Shutdown()
}

// refCounted adapts a constructor's freshly built pool into a cheaply
// cloneable handle, so each of the three constructors below only has to
// implement Spawn/shutdownNow once and gets Clone's share-counting for
// free. A clone count reaching zero is what actually stops the workers;
// earlier Shutdown calls just drop the caller's share.
type refCounted struct {
	spawn       func(Job)
	shutdownNow func()
	refs        *int64
}

func newRefCounted(spawn func(Job), shutdownNow func()) *refCounted {
	refs := int64(1)
	return &refCounted{spawn: spawn, shutdownNow: shutdownNow, refs: &refs}
}

func (r *refCounted) Spawn(job Job) { r.spawn(job) }

func (r *refCounted) Clone() Pool {
	atomic.AddInt64(r.refs, 1)
	return &refCounted{spawn: r.spawn, shutdownNow: r.shutdownNow, refs: r.refs}
}

func (r *refCounted) Shutdown() {
	if atomic.AddInt64(r.refs, -1) <= 0 {
		r.shutdownNow()
	}
}

// runSafely executes job with a panic boundary: a panicking job is caught,
// logged, and does not propagate. Grounded on the teacher's pattern of
// logging failures through a component logger rather than letting them
// crash a long-lived goroutine (pkg/health's checker loops recover from
// panics in user-supplied check functions the same way).
func runSafely(job Job) {
	defer func() {
		if r := recover(); r != nil {
			log.WithComponent("pool").Error().
				Interface("panic", r).
				Str("stack", string(debug.Stack())).
				Msg("worker job panicked")
		}
	}()
	job()
}

// errPoolBuild wraps a construction failure as kverr.PoolBuild.
func errPoolBuild(message string, cause error) error {
	return kverr.Wrap(kverr.PoolBuild, message, cause)
}

// errInvalidSize reports a pool size below the minimum of 1 worker.
func errInvalidSize(n int) error {
	return fmt.Errorf("pool size must be >= 1, got %d", n)
}
