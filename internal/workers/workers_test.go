package workers

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestCount(t *testing.T) {
	t.Setenv("THUMBNAIL_WORKERS", "")

	available := runtime.GOMAXPROCS(0)

	tests := []struct {
		name       string
		multiplier float64
		limit      int
		want       int
	}{
		{"CPU bound", 1.0, 0, available},
		{"IO bound", 2.0, 0, available * 2},
		{"limited", 2.0, 1, 1},
		{"minimum one", 0.0, 0, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Count(tt.multiplier, tt.limit); got != tt.want {
				t.Errorf("Count(%v, %d) = %d, want %d", tt.multiplier, tt.limit, got, tt.want)
			}
		})
	}
}

func TestCountOverride(t *testing.T) {
	t.Setenv("THUMBNAIL_WORKERS", "3")

	if got := Count(1.0, 0); got != 3 {
		t.Errorf("Count with override = %d, want 3", got)
	}
	if got := Count(1.0, 2); got != 2 {
		t.Errorf("Count with override above limit = %d, want 2", got)
	}
}

func TestCountOverrideInvalid(t *testing.T) {
	t.Setenv("THUMBNAIL_WORKERS", "not-a-number")

	want := runtime.GOMAXPROCS(0)
	if got := Count(1.0, 0); got != want {
		t.Errorf("Count with invalid override = %d, want %d", got, want)
	}
}

func TestPoolLimitsConcurrency(t *testing.T) {
	pool := NewPool(2)

	var running, peak atomic.Int32
	var wg sync.WaitGroup

	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = pool.Do(context.Background(), func() error {
				n := running.Add(1)
				for {
					p := peak.Load()
					if n <= p || peak.CompareAndSwap(p, n) {
						break
					}
				}
				time.Sleep(10 * time.Millisecond)
				running.Add(-1)
				return nil
			})
		}()
	}
	wg.Wait()

	if got := peak.Load(); got > 2 {
		t.Errorf("peak concurrency = %d, want <= 2", got)
	}
}

func TestPoolDoError(t *testing.T) {
	pool := NewPool(1)
	want := errors.New("boom")

	if err := pool.Do(context.Background(), func() error { return want }); !errors.Is(err, want) {
		t.Errorf("Do() error = %v, want %v", err, want)
	}
}

func TestPoolContextCancelled(t *testing.T) {
	pool := NewPool(1)

	release := make(chan struct{})
	go func() {
		_ = pool.Do(context.Background(), func() error {
			<-release
			return nil
		})
	}()

	// Wait for the slot to be taken.
	deadline := time.Now().Add(time.Second)
	for len(pool.slots) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("first task never acquired the slot")
		}
		time.Sleep(time.Millisecond)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ran := false
	err := pool.Do(ctx, func() error { ran = true; return nil })
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Do() with cancelled context = %v, want context.Canceled", err)
	}
	if ran {
		t.Error("fn ran despite cancelled context")
	}
	close(release)
}

func TestNewPoolMinimumCapacity(t *testing.T) {
	if got := NewPool(0).Capacity(); got != 1 {
		t.Errorf("NewPool(0).Capacity() = %d, want 1", got)
	}
	if got := NewPool(-5).Capacity(); got != 1 {
		t.Errorf("NewPool(-5).Capacity() = %d, want 1", got)
	}
}
