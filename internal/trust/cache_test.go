package trust

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func countingLoader(loads *atomic.Int64, fail *atomic.Bool) LoaderFunc {
	return func(ctx context.Context, issuer string) (*Validator, error) {
		loads.Add(1)
		if fail != nil && fail.Load() {
			return nil, errors.New("upstream down")
		}
		return NewValidator(issuer, nil), nil
	}
}

func TestGet_SingleLoadUnderConcurrency(t *testing.T) {
	var loads atomic.Int64
	slow := func(ctx context.Context, issuer string) (*Validator, error) {
		loads.Add(1)
		time.Sleep(20 * time.Millisecond) // keep companions in flight
		return NewValidator(issuer, nil), nil
	}
	c, err := NewCache(slow, CacheConfig{MaxEntries: 10, ExpireAfter: time.Minute, RefreshAfter: 30 * time.Second}, nil)
	if err != nil {
		t.Fatalf("NewCache: %v", err)
	}

	const n = 50
	validators := make([]*Validator, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := c.Get(context.Background(), "https://issuer.example.com")
			if err != nil {
				t.Errorf("Get: %v", err)
				return
			}
			validators[i] = v
		}(i)
	}
	wg.Wait()

	if got := loads.Load(); got != 1 {
		t.Fatalf("expected exactly 1 load, got %d", got)
	}
	for i := 1; i < n; i++ {
		if validators[i] != validators[0] {
			t.Fatal("concurrent callers received different validator instances")
		}
	}
}

func TestGet_SameInstanceWithinRefreshWindow(t *testing.T) {
	var loads atomic.Int64
	c, err := NewCache(countingLoader(&loads, nil), CacheConfig{MaxEntries: 10, ExpireAfter: time.Minute, RefreshAfter: 30 * time.Second}, nil)
	if err != nil {
		t.Fatalf("NewCache: %v", err)
	}

	first, err := c.Get(context.Background(), "https://a.example.com")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	for i := 0; i < 5; i++ {
		v, err := c.Get(context.Background(), "https://a.example.com")
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if v != first {
			t.Fatal("expected the same validator instance within the refresh window")
		}
	}
	if got := loads.Load(); got != 1 {
		t.Fatalf("expected 1 load, got %d", got)
	}
}

func TestGet_HardExpiryTriggersSynchronousLoad(t *testing.T) {
	var loads atomic.Int64
	c, err := NewCache(countingLoader(&loads, nil), CacheConfig{MaxEntries: 10, ExpireAfter: 60 * time.Millisecond, RefreshAfter: 40 * time.Millisecond}, nil)
	if err != nil {
		t.Fatalf("NewCache: %v", err)
	}

	if _, err := c.Get(context.Background(), "https://a.example.com"); err != nil {
		t.Fatalf("Get: %v", err)
	}
	time.Sleep(80 * time.Millisecond) // past ExpireAfter

	if _, err := c.Get(context.Background(), "https://a.example.com"); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got := loads.Load(); got != 2 {
		t.Fatalf("expected a second synchronous load after expiry, got %d", got)
	}
}

func TestGet_StaleServedWhileRefreshing(t *testing.T) {
	var loads atomic.Int64
	c, err := NewCache(countingLoader(&loads, nil), CacheConfig{MaxEntries: 10, ExpireAfter: time.Minute, RefreshAfter: 20 * time.Millisecond}, nil)
	if err != nil {
		t.Fatalf("NewCache: %v", err)
	}

	first, err := c.Get(context.Background(), "https://a.example.com")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	time.Sleep(30 * time.Millisecond) // stale, not expired

	// Served immediately from the stale entry; no synchronous reload.
	v, err := c.Get(context.Background(), "https://a.example.com")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if v != first {
		t.Fatal("stale entry should still be served")
	}

	// The background refresh replaces the entry eventually.
	deadline := time.Now().Add(time.Second)
	for loads.Load() < 2 {
		if time.Now().After(deadline) {
			t.Fatal("background refresh never ran")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestGet_FailuresAreNotCached(t *testing.T) {
	var loads atomic.Int64
	var fail atomic.Bool
	fail.Store(true)
	c, err := NewCache(countingLoader(&loads, &fail), CacheConfig{MaxEntries: 10, ExpireAfter: time.Minute, RefreshAfter: 30 * time.Second}, nil)
	if err != nil {
		t.Fatalf("NewCache: %v", err)
	}

	if _, err := c.Get(context.Background(), "https://a.example.com"); err == nil {
		t.Fatal("expected load failure")
	}
	if c.Len() != 0 {
		t.Fatal("failed load must not be stored")
	}

	// Next call retries instead of replaying the cached error.
	fail.Store(false)
	if _, err := c.Get(context.Background(), "https://a.example.com"); err != nil {
		t.Fatalf("retry after failure: %v", err)
	}
	if got := loads.Load(); got != 2 {
		t.Fatalf("expected retry load, got %d loads", got)
	}
}

func TestStore_EnforcesSizeBound(t *testing.T) {
	var loads atomic.Int64
	c, err := NewCache(countingLoader(&loads, nil), CacheConfig{MaxEntries: 2, ExpireAfter: time.Minute, RefreshAfter: 30 * time.Second}, nil)
	if err != nil {
		t.Fatalf("NewCache: %v", err)
	}

	for i := 0; i < 5; i++ {
		issuer := fmt.Sprintf("https://issuer-%d.example.com", i)
		if _, err := c.Get(context.Background(), issuer); err != nil {
			t.Fatalf("Get: %v", err)
		}
	}
	if got := c.Len(); got > 2 {
		t.Fatalf("expected at most 2 entries, got %d", got)
	}
	// The most recently inserted issuer survives eviction.
	pre := loads.Load()
	if _, err := c.Get(context.Background(), "https://issuer-4.example.com"); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if loads.Load() != pre {
		t.Fatal("newest entry should not have been evicted")
	}
}

func TestNewCache_RejectsBadWindows(t *testing.T) {
	loader := countingLoader(&atomic.Int64{}, nil)
	if _, err := NewCache(loader, CacheConfig{MaxEntries: 1, ExpireAfter: time.Second, RefreshAfter: time.Second}, nil); err == nil {
		t.Fatal("expected config error when refresh_after >= expire_after")
	}
}
