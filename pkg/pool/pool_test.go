package pool

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func allPools(t *testing.T, n int) map[string]Pool {
	t.Helper()

	naive, err := NewNaivePool(n)
	if err != nil {
		t.Fatalf("NewNaivePool: %v", err)
	}
	shared, err := NewSharedQueuePool(n)
	if err != nil {
		t.Fatalf("NewSharedQueuePool: %v", err)
	}
	stealing, err := NewWorkStealingPool(n)
	if err != nil {
		t.Fatalf("NewWorkStealingPool: %v", err)
	}

	return map[string]Pool{
		"naive":         naive,
		"shared-queue":  shared,
		"work-stealing": stealing,
	}
}

func TestPoolRunsAllJobs(t *testing.T) {
	for name, p := range allPools(t, 4) {
		p := p
		t.Run(name, func(t *testing.T) {
			const jobs = 200
			var ran int64
			var wg sync.WaitGroup
			wg.Add(jobs)

			for i := 0; i < jobs; i++ {
				p.Spawn(func() {
					atomic.AddInt64(&ran, 1)
					wg.Done()
				})
			}

			done := make(chan struct{})
			go func() {
				wg.Wait()
				close(done)
			}()

			select {
			case <-done:
			case <-time.After(5 * time.Second):
				t.Fatalf("timed out waiting for jobs, ran %d/%d", atomic.LoadInt64(&ran), jobs)
			}

			p.Shutdown()
			if got := atomic.LoadInt64(&ran); got != jobs {
				t.Fatalf("ran %d jobs, want %d", got, jobs)
			}
		})
	}
}

func TestPoolPanicIsolation(t *testing.T) {
	for name, p := range allPools(t, 2) {
		p := p
		t.Run(name, func(t *testing.T) {
			var ranAfterPanic int64
			var wg sync.WaitGroup
			wg.Add(1)

			p.Spawn(func() { panic("boom") })
			p.Spawn(func() {
				atomic.AddInt64(&ranAfterPanic, 1)
				wg.Done()
			})

			done := make(chan struct{})
			go func() {
				wg.Wait()
				close(done)
			}()

			select {
			case <-done:
			case <-time.After(5 * time.Second):
				t.Fatalf("pool died after a panicking job")
			}
			p.Shutdown()

			if atomic.LoadInt64(&ranAfterPanic) != 1 {
				t.Fatalf("job after panic did not run")
			}
		})
	}
}

func TestPoolCloneSharesWorkersAndDefersShutdown(t *testing.T) {
	for name, p := range allPools(t, 2) {
		p := p
		t.Run(name, func(t *testing.T) {
			clone := p.Clone()

			var ran int64
			var wg sync.WaitGroup
			wg.Add(2)
			p.Spawn(func() { atomic.AddInt64(&ran, 1); wg.Done() })
			clone.Spawn(func() { atomic.AddInt64(&ran, 1); wg.Done() })
			wg.Wait()

			// Dropping the original's share must not stop workers the
			// clone still holds a reference to.
			p.Shutdown()

			var ranAfter int64
			done := make(chan struct{})
			clone.Spawn(func() { atomic.AddInt64(&ranAfter, 1); close(done) })

			select {
			case <-done:
			case <-time.After(5 * time.Second):
				t.Fatalf("job submitted via surviving clone never ran after other handle's Shutdown")
			}
			if atomic.LoadInt64(&ranAfter) != 1 {
				t.Fatalf("job did not run on surviving clone")
			}

			clone.Shutdown()
		})
	}
}

func TestNewPoolRejectsZeroSize(t *testing.T) {
	if _, err := NewNaivePool(0); err == nil {
		t.Fatalf("expected error for size 0")
	}
	if _, err := NewSharedQueuePool(0); err == nil {
		t.Fatalf("expected error for size 0")
	}
	if _, err := NewWorkStealingPool(0); err == nil {
		t.Fatalf("expected error for size 0")
	}
}
