package cache

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"faultline/internal/schema"
)

func TestDoCachesResult(t *testing.T) {
	c, err := New(8)
	if err != nil {
		t.Fatalf("new cache: %v", err)
	}
	key := Key("triage", "conv-1", "Error: boom")

	var calls int32
	compute := func() (*schema.CanonicalResponse, error) {
		atomic.AddInt32(&calls, 1)
		return &schema.CanonicalResponse{RequestID: "r1"}, nil
	}

	resp, cached, err := c.Do(key, compute)
	if err != nil || cached {
		t.Fatalf("first call: cached=%v err=%v", cached, err)
	}
	if resp.RequestID != "r1" {
		t.Fatalf("unexpected response %q", resp.RequestID)
	}
	if _, cached, _ = c.Do(key, compute); !cached {
		t.Fatalf("second call must hit the cache")
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("compute ran %d times, want 1", got)
	}
}

func TestDoCollapsesConcurrentCallers(t *testing.T) {
	c, err := New(8)
	if err != nil {
		t.Fatalf("new cache: %v", err)
	}
	key := Key("triage", "conv-1", "same input")

	release := make(chan struct{})
	var calls int32
	compute := func() (*schema.CanonicalResponse, error) {
		atomic.AddInt32(&calls, 1)
		<-release
		return &schema.CanonicalResponse{RequestID: "shared"}, nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, _, err := c.Do(key, compute)
			if err != nil || resp.RequestID != "shared" {
				t.Errorf("collapsed call: resp=%v err=%v", resp, err)
			}
		}()
	}
	close(release)
	wg.Wait()
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("compute ran %d times, want 1", got)
	}
}

func TestDoDoesNotCacheErrors(t *testing.T) {
	c, err := New(8)
	if err != nil {
		t.Fatalf("new cache: %v", err)
	}
	key := Key("explain", "conv-1", "why")

	boom := errors.New("model down")
	if _, _, err := c.Do(key, func() (*schema.CanonicalResponse, error) { return nil, boom }); !errors.Is(err, boom) {
		t.Fatalf("expected compute error, got %v", err)
	}
	resp, cached, err := c.Do(key, func() (*schema.CanonicalResponse, error) {
		return &schema.CanonicalResponse{RequestID: "ok"}, nil
	})
	if err != nil || cached || resp.RequestID != "ok" {
		t.Fatalf("failed turn must not poison the cache: cached=%v err=%v", cached, err)
	}
}

func TestKeyIsStablePerInput(t *testing.T) {
	a := Key("triage", "conv-1", "Error: boom")
	b := Key("triage", "conv-1", "Error: boom")
	if a != b {
		t.Fatalf("identical inputs must share a key")
	}
	if a == Key("triage", "conv-2", "Error: boom") {
		t.Fatalf("different conversations must not share a key")
	}
	if a == Key("explain", "conv-1", "Error: boom") {
		t.Fatalf("different endpoints must not share a key")
	}
}
