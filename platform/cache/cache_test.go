package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestGetReturnsMissForUnknownKey(t *testing.T) {
	c := New[string](0)

	if _, ok := c.Get("absent"); ok {
		t.Fatal("expected miss for unknown key")
	}
}

func TestSetThenGet(t *testing.T) {
	c := New[string](0)
	c.Set("k", "v", time.Minute)

	got, ok := c.Get("k")
	if !ok || got != "v" {
		t.Fatalf("expected hit with v, got %q ok=%v", got, ok)
	}
}

func TestExpiredEntryIsAMiss(t *testing.T) {
	c := New[int](0)
	c.Set("k", 42, -time.Second)

	if _, ok := c.Get("k"); ok {
		t.Fatal("expected expired entry to miss")
	}
}

func TestGetOrLoadSingleFlight(t *testing.T) {
	c := New[string](0)

	var loads atomic.Int32
	release := make(chan struct{})

	loader := func(ctx context.Context) (string, error) {
		loads.Add(1)
		<-release
		return "loaded", nil
	}

	const callers = 16
	var wg sync.WaitGroup
	results := make([]string, callers)
	errs := make([]error, callers)

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = c.GetOrLoad(context.Background(), "k", time.Minute, loader)
		}(i)
	}

	// Give every caller a chance to reach the in-flight load before releasing it.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	if got := loads.Load(); got != 1 {
		t.Fatalf("expected exactly 1 loader invocation, got %d", got)
	}
	for i := 0; i < callers; i++ {
		if errs[i] != nil {
			t.Fatalf("caller %d got error: %v", i, errs[i])
		}
		if results[i] != "loaded" {
			t.Fatalf("caller %d got %q", i, results[i])
		}
	}
}

func TestGetOrLoadDoesNotCacheErrors(t *testing.T) {
	c := New[string](0)

	boom := errors.New("backing store down")
	if _, err := c.GetOrLoad(context.Background(), "k", time.Minute, func(ctx context.Context) (string, error) {
		return "", boom
	}); !errors.Is(err, boom) {
		t.Fatalf("expected loader error, got %v", err)
	}

	got, err := c.GetOrLoad(context.Background(), "k", time.Minute, func(ctx context.Context) (string, error) {
		return "recovered", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "recovered" {
		t.Fatalf("expected second load to run, got %q", got)
	}
}

func TestInvalidateExactIsImmediate(t *testing.T) {
	c := New[string](0)
	c.Set("lead:1", "a", time.Minute)
	c.Set("lead:2", "b", time.Minute)

	c.Invalidate("lead:1")

	if _, ok := c.Get("lead:1"); ok {
		t.Fatal("expected lead:1 to be invalidated")
	}
	if _, ok := c.Get("lead:2"); !ok {
		t.Fatal("expected lead:2 to survive")
	}
}

func TestInvalidatePatternAppliesOnSweep(t *testing.T) {
	c := New[string](0)
	c.Set("leads:list:p1", "a", time.Minute)
	c.Set("leads:list:p2", "b", time.Minute)
	c.Set("lead:1", "c", time.Minute)

	c.InvalidatePattern("leads:list:*")

	// Queued, not yet applied.
	if _, ok := c.Get("leads:list:p1"); !ok {
		t.Fatal("pattern invalidation must not be synchronous")
	}

	c.Sweep()

	if _, ok := c.Get("leads:list:p1"); ok {
		t.Fatal("expected leads:list:p1 gone after sweep")
	}
	if _, ok := c.Get("leads:list:p2"); ok {
		t.Fatal("expected leads:list:p2 gone after sweep")
	}
	if _, ok := c.Get("lead:1"); !ok {
		t.Fatal("expected lead:1 to survive the pattern sweep")
	}
}

func TestSweepEvictsExpiredEntries(t *testing.T) {
	c := New[string](0)
	c.Set("stale", "v", -time.Second)
	c.Set("fresh", "v", time.Minute)

	c.Sweep()

	if c.Len() != 1 {
		t.Fatalf("expected 1 entry after sweep, got %d", c.Len())
	}
}
