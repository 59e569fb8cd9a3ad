/*
Package pool provides the worker-pool abstraction dispatch rides on: a
Pool interface plus three implementations.

  - NaivePool: one goroutine per job, a baseline for tests/benchmarks.
  - SharedQueuePool: one mutex/condvar-guarded FIFO queue, n workers pulling
    from it.
  - WorkStealingPool: per-worker local deques, idle workers steal.

Every implementation isolates panics: a job that panics is caught, logged,
and the worker moves on to its next job rather than dying.

Every constructor returns a cheaply cloneable handle: Clone shares the one
underlying pool and bumps a reference count, and the workers only stop once
every clone's Shutdown has been called.
*/
package pool
