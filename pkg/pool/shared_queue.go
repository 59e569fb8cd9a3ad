package pool

import (
	"container/list"
	"sync"

	"github.com/cuemby/kvs/pkg/metrics"
)

// SharedQueuePool is a single FIFO job queue, guarded by a mutex and
// condition variable, drained by n long-lived worker goroutines. Dispatch
// order is FIFO among workers currently waiting on the condition variable.
type SharedQueuePool struct {
	mu      sync.Mutex
	cond    *sync.Cond
	queue   *list.List
	closed  bool
	workers sync.WaitGroup
}

// NewSharedQueuePool constructs a pool with exactly n worker goroutines.
func NewSharedQueuePool(n int) (Pool, error) {
	if n < 1 {
		return nil, errPoolBuild("shared-queue pool size", errInvalidSize(n))
	}

	p := &SharedQueuePool{queue: list.New()}
	p.cond = sync.NewCond(&p.mu)

	for i := 0; i < n; i++ {
		p.workers.Add(1)
		go p.worker()
	}
	return newRefCounted(p.Spawn, p.shutdownNow), nil
}

func (p *SharedQueuePool) worker() {
	defer p.workers.Done()
	for {
		job, ok := p.dequeue()
		if !ok {
			return
		}
		runSafely(job)
	}
}

// dequeue blocks until a job is available or the pool is closed and the
// queue has drained, matching the teacher's condition-variable-free but
// equivalent stopCh pattern generalized to a blocking queue.
func (p *SharedQueuePool) dequeue() (Job, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for p.queue.Len() == 0 && !p.closed {
		p.cond.Wait()
	}
	if p.queue.Len() == 0 {
		return nil, false
	}

	front := p.queue.Front()
	p.queue.Remove(front)
	metrics.PoolQueueDepth.WithLabelValues("shared-queue").Set(float64(p.queue.Len()))
	return front.Value.(Job), true
}

// Spawn enqueues job. Jobs submitted after Shutdown has begun are dropped.
func (p *SharedQueuePool) Spawn(job Job) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.queue.PushBack(job)
	metrics.PoolQueueDepth.WithLabelValues("shared-queue").Set(float64(p.queue.Len()))
	p.cond.Signal()
}

// shutdownNow closes the queue, wakes every waiting worker, and joins them
// once the remaining queued jobs have run.
func (p *SharedQueuePool) shutdownNow() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	p.cond.Broadcast()
	p.workers.Wait()
}
