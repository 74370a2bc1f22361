package regulator

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestAcquireRelease(t *testing.T) {
	r := New(2, time.Second)

	tok1, err := r.Acquire(context.Background())
	if err != nil {
		t.Fatalf("first Acquire failed: %v", err)
	}
	tok2, err := r.Acquire(context.Background())
	if err != nil {
		t.Fatalf("second Acquire failed: %v", err)
	}

	if got := r.InUse(); got != 2 {
		t.Errorf("InUse() = %d, want 2", got)
	}

	tok1.Release()
	tok2.Release()

	if got := r.InUse(); got != 0 {
		t.Errorf("InUse() after release = %d, want 0", got)
	}
}

func TestAcquireTimeout(t *testing.T) {
	r := New(1, 20*time.Millisecond)

	tok, err := r.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	defer tok.Release()

	_, err = r.Acquire(context.Background())
	if !errors.Is(err, ErrExhausted) {
		t.Errorf("Acquire at capacity = %v, want ErrExhausted", err)
	}
}

func TestAcquireContextCanceled(t *testing.T) {
	r := New(1, time.Minute)

	tok, err := r.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	defer tok.Release()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err = r.Acquire(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Acquire = %v, want context.Canceled", err)
	}
}

func TestReleaseUnblocksWaiter(t *testing.T) {
	r := New(1, time.Second)

	tok, err := r.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}

	done := make(chan struct{})
	go func() {
		tok2, err := r.Acquire(context.Background())
		if err != nil {
			t.Errorf("waiter Acquire failed: %v", err)
		} else {
			tok2.Release()
		}
		close(done)
	}()

	time.Sleep(10 * time.Millisecond)
	tok.Release()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("waiter never unblocked after release")
	}
}

func TestDoubleReleaseIsNoop(t *testing.T) {
	r := New(1, 20*time.Millisecond)

	tok, err := r.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	tok.Release()
	tok.Release()

	if got := r.InUse(); got != 0 {
		t.Errorf("InUse() = %d, want 0", got)
	}

	// Capacity must still be exactly one.
	tok, err = r.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire after double release failed: %v", err)
	}
	defer tok.Release()
	if _, err := r.Acquire(context.Background()); !errors.Is(err, ErrExhausted) {
		t.Errorf("Acquire = %v, want ErrExhausted", err)
	}
}

func TestNeverExceedsCapacity(t *testing.T) {
	const capacity = 4
	const workers = 32

	r := New(capacity, time.Second)

	var inFlight atomic.Int32
	var peak atomic.Int32
	var wg sync.WaitGroup

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tok, err := r.Acquire(context.Background())
			if err != nil {
				t.Errorf("Acquire failed: %v", err)
				return
			}
			defer tok.Release()

			n := inFlight.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			inFlight.Add(-1)
		}()
	}
	wg.Wait()

	if got := peak.Load(); got > capacity {
		t.Errorf("observed %d concurrent holders, capacity is %d", got, capacity)
	}
}

func TestCapacityClamped(t *testing.T) {
	r := New(0, time.Second)
	if got := r.Capacity(); got != 1 {
		t.Errorf("Capacity() = %d, want 1", got)
	}
}
