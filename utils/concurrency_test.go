package utils

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestKeySetNoDuplicates(t *testing.T) {
	s := NewKeySet()

	if !s.Add("경기도 수원시 영통구 영통동 996-3") {
		t.Error("first Add should return true")
	}
	if s.Add("경기도 수원시 영통구 영통동 996-3") {
		t.Error("second Add of same key should return false")
	}
	if !s.Contains("경기도 수원시 영통구 영통동 996-3") {
		t.Error("Contains should report an added key")
	}
	if s.Size() != 1 {
		t.Errorf("size: got %d, want 1", s.Size())
	}
}

func TestKeySetConcurrency(t *testing.T) {
	s := NewKeySet()
	var added int64

	pool := NewWorkerPool(10, 0)
	for i := 0; i < 100; i++ {
		pool.Submit(context.Background(), func(context.Context) {
			if s.Add("same") {
				atomic.AddInt64(&added, 1)
			}
		})
	}
	pool.Wait()

	if added != 1 {
		t.Errorf("expected exactly 1 successful add, got %d", added)
	}
}

func TestWorkerPoolRateLimit(t *testing.T) {
	rateLimitMs := 100
	pool := NewWorkerPool(1, rateLimitMs)

	var (
		mu         sync.Mutex
		timestamps []time.Time
	)
	for i := 0; i < 3; i++ {
		pool.Submit(context.Background(), func(context.Context) {
			mu.Lock()
			timestamps = append(timestamps, time.Now())
			mu.Unlock()
		})
	}
	pool.Wait()

	if len(timestamps) != 3 {
		t.Fatalf("ran %d jobs, want 3", len(timestamps))
	}
	min := time.Duration(rateLimitMs) * time.Millisecond
	for i := 1; i < len(timestamps); i++ {
		gap := timestamps[i].Sub(timestamps[i-1])
		if gap < min {
			t.Errorf("gap between job %d and %d: %v < minimum %v", i-1, i, gap, min)
		}
	}
}

func TestWorkerPoolStopsOnCancel(t *testing.T) {
	pool := NewWorkerPool(1, 10_000)
	ctx, cancel := context.WithCancel(context.Background())

	var ran int64
	pool.Submit(ctx, func(context.Context) { atomic.AddInt64(&ran, 1) })
	pool.Wait()

	// The second job would wait ten seconds for its slot.
	done := make(chan struct{})
	go func() {
		pool.Submit(ctx, func(context.Context) { atomic.AddInt64(&ran, 1) })
		pool.Wait()
		close(done)
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("pool did not give up after cancellation")
	}
	if ran != 1 {
		t.Errorf("ran %d jobs, want 1", ran)
	}

	pool.Submit(ctx, func(context.Context) { atomic.AddInt64(&ran, 1) })
	pool.Wait()
	if ran != 1 {
		t.Error("job submitted after cancellation should be dropped")
	}
}
