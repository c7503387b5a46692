package xact_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/roylkng/genai-vectors/store"
	"github.com/roylkng/genai-vectors/xact"
)

func TestSweepGroupsStagedKeysByIndex(t *testing.T) {
	ctx := context.Background()
	adapter := store.NewMemory()
	_ = adapter.Put(ctx, "staged/demo/slice-1.jsonl", []byte("x"))
	_ = adapter.Put(ctx, "staged/demo/slice-2.jsonl", []byte("x"))
	_ = adapter.Put(ctx, "staged/other/slice-1.jsonl", []byte("x"))

	var mu sync.Mutex
	calls := make(map[string][]string)
	coord := xact.NewCoordinator(adapter, func(_ context.Context, index string, sliceKeys []string) error {
		mu.Lock()
		defer mu.Unlock()
		calls[index] = sliceKeys
		return nil
	})

	if err := coord.Sweep(ctx); err != nil {
		t.Fatalf("Sweep: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(calls["demo"]) != 2 {
		t.Errorf("calls[demo] = %v, want 2 slice keys", calls["demo"])
	}
	if len(calls["other"]) != 1 {
		t.Errorf("calls[other] = %v, want 1 slice key", calls["other"])
	}
}

func TestSweepIsANoOpWithNoStagedSlices(t *testing.T) {
	adapter := store.NewMemory()
	called := false
	coord := xact.NewCoordinator(adapter, func(context.Context, string, []string) error {
		called = true
		return nil
	})
	if err := coord.Sweep(context.Background()); err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if called {
		t.Errorf("build should not be invoked when no slices are staged")
	}
}

func TestTriggerSliceSerializesOverlappingRunsOnSameIndex(t *testing.T) {
	adapter := store.NewMemory()
	var mu sync.Mutex
	active := 0
	maxConcurrent := 0
	done := make(chan struct{}, 2)

	coord := xact.NewCoordinator(adapter, func(context.Context, string, []string) error {
		mu.Lock()
		active++
		if active > maxConcurrent {
			maxConcurrent = active
		}
		mu.Unlock()

		time.Sleep(20 * time.Millisecond)

		mu.Lock()
		active--
		mu.Unlock()
		done <- struct{}{}
		return nil
	})

	ctx := context.Background()
	coord.TriggerSlice(ctx, "demo", "staged/demo/slice-1.jsonl")
	coord.TriggerSlice(ctx, "demo", "staged/demo/slice-2.jsonl")

	<-done
	<-done

	if maxConcurrent != 1 {
		t.Errorf("maxConcurrent = %d, want 1 (same-index runs must be serialized)", maxConcurrent)
	}
}
