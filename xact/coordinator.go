// Package xact serializes shard-builder runs per index and drives the
// periodic sweep that backstops the best-effort post-flush trigger: a sweep
// that lists staged slices and triggers the builder for any index with
// unabsorbed slices, safe to run concurrently with per-slice triggers for
// *other* indexes.
//
// Grounded on AIStore's ext/dsort.Manager pattern: a registry of
// per-job state protected by one short-held top-level lock, with the
// actual work done outside that lock.
package xact

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/roylkng/genai-vectors/cmn/nlog"
	"github.com/roylkng/genai-vectors/stats"
	"github.com/roylkng/genai-vectors/store"
)

// BuildFunc runs the shard builder for one index against its currently
// staged slices.
type BuildFunc func(ctx context.Context, index string, sliceKeys []string) error

// Coordinator serializes builder runs per index and owns the periodic sweep.
type Coordinator struct {
	adapter store.Adapter
	build   BuildFunc

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewCoordinator(adapter store.Adapter, build BuildFunc) *Coordinator {
	return &Coordinator{adapter: adapter, build: build, locks: make(map[string]*sync.Mutex)}
}

func (c *Coordinator) lockFor(index string) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.locks[index]
	if !ok {
		l = &sync.Mutex{}
		c.locks[index] = l
	}
	return l
}

// TriggerSlice is the best-effort, per-slice callback fired right after a
// slice write, targeting just that slice. It is safe to call concurrently
// for different indexes; same-index overlap is serialized via the
// per-index lock.
func (c *Coordinator) TriggerSlice(ctx context.Context, index, sliceKey string) {
	go func() {
		l := c.lockFor(index)
		l.Lock()
		defer l.Unlock()
		if err := c.build(ctx, index, []string{sliceKey}); err != nil {
			nlog.Errorf("xact: builder run failed for index %s slice %s: %v", index, sliceKey, err)
		}
	}()
}

// Sweep lists every staged slice across all indexes and runs the builder
// for each index that has any, serialized per index. This is the backstop:
// even if a slice's post-write trigger is dropped or races with a crash,
// the next sweep absorbs it.
func (c *Coordinator) Sweep(ctx context.Context) error {
	timer := stats.NewTimer()
	defer timer.ObserveSeconds(stats.SweepDuration)

	keys, err := c.adapter.List(ctx, "staged/")
	if err != nil {
		return err
	}

	byIndex := make(map[string][]string)
	for _, key := range keys {
		if idx, ok := indexFromStagedKey(key); ok {
			byIndex[idx] = append(byIndex[idx], key)
		}
	}

	for index, sliceKeys := range byIndex {
		index, sliceKeys := index, sliceKeys
		l := c.lockFor(index)
		l.Lock()
		err := c.build(ctx, index, sliceKeys)
		l.Unlock()
		if err != nil {
			nlog.Errorf("xact: sweep build failed for index %s: %v", index, err)
		}
	}
	return nil
}

// Run periodically invokes Sweep until ctx is cancelled.
func (c *Coordinator) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.Sweep(ctx); err != nil {
				nlog.Errorf("xact: sweep failed: %v", err)
			}
		}
	}
}

// indexFromStagedKey extracts "demo" from "staged/demo/slice-....jsonl".
func indexFromStagedKey(key string) (string, bool) {
	rest := strings.TrimPrefix(key, "staged/")
	if rest == key {
		return "", false
	}
	i := strings.IndexByte(rest, '/')
	if i < 0 {
		return "", false
	}
	return rest[:i], true
}
