package pools

import (
	"sync/atomic"
	"testing"
	"time"
)

func waitForCompleted(t *testing.T, pool *WorkerPool, want uint64) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if pool.Stats().TasksCompleted >= want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("expected %d completed tasks, got %d", want, pool.Stats().TasksCompleted)
}

func TestWorkerPool_Basic(t *testing.T) {
	pool := NewWorkerPool(4, nil)
	defer pool.Close()

	var counter atomic.Int64
	for i := 0; i < 100; i++ {
		if !pool.Submit(func() { counter.Add(1) }) {
			t.Fatal("Submit returned false on open pool")
		}
	}

	waitForCompleted(t, pool, 100)
	if counter.Load() != 100 {
		t.Errorf("expected 100 tasks executed, got %d", counter.Load())
	}
}

func TestWorkerPool_PanicContainment(t *testing.T) {
	var panics atomic.Int64
	pool := NewWorkerPool(2, func(v any) { panics.Add(1) })
	defer pool.Close()

	for i := 0; i < 10; i++ {
		pool.Submit(func() { panic("boom") })
	}
	pool.Submit(func() {})

	waitForCompleted(t, pool, 11)

	if panics.Load() != 10 {
		t.Errorf("expected 10 recovered panics, got %d", panics.Load())
	}
	if got := pool.Stats().TasksPanicked; got != 10 {
		t.Errorf("expected TasksPanicked=10, got %d", got)
	}
}

func TestWorkerPool_SubmitAfterClose(t *testing.T) {
	pool := NewWorkerPool(2, nil)
	pool.Close()

	if pool.Submit(func() {}) {
		t.Error("Submit should fail after Close")
	}
}

func TestWorkerPool_CloseIdempotent(t *testing.T) {
	pool := NewWorkerPool(2, nil)
	pool.Close()
	pool.Close()
}

func TestWorkerPool_HardwareFallback(t *testing.T) {
	pool := NewWorkerPool(0, nil)
	defer pool.Close()

	if pool.Stats().NumWorkers < 1 {
		t.Errorf("expected at least one worker, got %d", pool.Stats().NumWorkers)
	}
}

func BenchmarkWorkerPool_Submit(b *testing.B) {
	pool := NewWorkerPool(8, nil)
	defer pool.Close()

	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			pool.Submit(func() {})
		}
	})
}
