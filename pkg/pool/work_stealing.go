package pool

import (
	"math/rand"
	"sync"
)

// WorkStealingPool backs every worker with its own local job deque; an idle
// worker steals from a random peer before parking. No example in this
// module's reference corpus imports a third-party work-stealing scheduler
// (ants, gopool, and similar were searched for and are absent from every
// go.mod in the corpus), so this is built directly on sync primitives, the
// same way the corpus hand-rolls its other concurrency (see DESIGN.md).
type WorkStealingPool struct {
	workers []*wsWorker
	wg      sync.WaitGroup

	mu     sync.Mutex
	cond   *sync.Cond
	closed bool
	next   int // round-robin push target
}

type wsWorker struct {
	mu    sync.Mutex
	deque []Job
}

func (w *wsWorker) pushLocal(job Job) {
	w.mu.Lock()
	w.deque = append(w.deque, job)
	w.mu.Unlock()
}

// popLocal takes from the tail (LIFO for the owner, cheap locality).
func (w *wsWorker) popLocal() (Job, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	n := len(w.deque)
	if n == 0 {
		return nil, false
	}
	job := w.deque[n-1]
	w.deque = w.deque[:n-1]
	return job, true
}

// steal takes from the head (FIFO for thieves, leaves the owner's hot end alone).
func (w *wsWorker) steal() (Job, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.deque) == 0 {
		return nil, false
	}
	job := w.deque[0]
	w.deque = w.deque[1:]
	return job, true
}

// NewWorkStealingPool constructs a pool with exactly n workers, each with
// its own local deque.
func NewWorkStealingPool(n int) (Pool, error) {
	if n < 1 {
		return nil, errPoolBuild("work-stealing pool size", errInvalidSize(n))
	}

	p := &WorkStealingPool{workers: make([]*wsWorker, n)}
	p.cond = sync.NewCond(&p.mu)
	for i := range p.workers {
		p.workers[i] = &wsWorker{}
	}

	for i := 0; i < n; i++ {
		p.wg.Add(1)
		go p.run(i)
	}
	return newRefCounted(p.Spawn, p.shutdownNow), nil
}

// Spawn pushes job onto the next worker's local deque round-robin and wakes
// any idle worker so it can pick it up directly or steal it.
func (p *WorkStealingPool) Spawn(job Job) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	target := p.next
	p.next = (p.next + 1) % len(p.workers)
	p.mu.Unlock()

	p.workers[target].pushLocal(job)

	p.mu.Lock()
	p.cond.Broadcast()
	p.mu.Unlock()
}

func (p *WorkStealingPool) run(id int) {
	defer p.wg.Done()
	me := p.workers[id]

	for {
		if job, ok := me.popLocal(); ok {
			runSafely(job)
			continue
		}
		if job, ok := p.stealFrom(id); ok {
			runSafely(job)
			continue
		}
		if p.parkUntilWorkOrClosed() {
			return
		}
	}
}

// stealFrom tries every other worker in random order, returning the first
// job found.
func (p *WorkStealingPool) stealFrom(id int) (Job, bool) {
	n := len(p.workers)
	if n <= 1 {
		return nil, false
	}
	start := rand.Intn(n)
	for i := 0; i < n; i++ {
		victim := (start + i) % n
		if victim == id {
			continue
		}
		if job, ok := p.workers[victim].steal(); ok {
			return job, true
		}
	}
	return nil, false
}

// parkUntilWorkOrClosed blocks until Spawn broadcasts or Shutdown closes
// the pool, then re-checks; it returns true only once the pool is closed
// and every local deque has been drained.
func (p *WorkStealingPool) parkUntilWorkOrClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for !p.closed && !p.anyWorkLocked() {
		p.cond.Wait()
	}
	return p.closed && !p.anyWorkLocked()
}

func (p *WorkStealingPool) anyWorkLocked() bool {
	for _, w := range p.workers {
		w.mu.Lock()
		has := len(w.deque) > 0
		w.mu.Unlock()
		if has {
			return true
		}
	}
	return false
}

// shutdownNow stops accepting new jobs, wakes every parked worker, and
// waits for the local deques to drain before returning.
func (p *WorkStealingPool) shutdownNow() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	p.cond.Broadcast()
	p.wg.Wait()
}
