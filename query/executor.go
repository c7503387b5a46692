// Package query is the query executor: manifest-driven fan-out across
// shards, per-shard candidate search with optional metadata pre-filtering,
// and a global top-k merge with a deterministic tie rule.
//
// Grounded on original_source/src/query.rs's search/search_shard shape
// (manifest load, per-shard metadata+id_map+index load, pre-filter
// expansion factor, score sign flip for euclidean) with the per-shard
// fan-out upgraded to golang.org/x/sync/errgroup.WithContext so one
// shard's failure cancels the rest, matching the design's "failure of any
// single shard load aborts the query" rule.
package query

import (
	"bytes"
	"context"
	"encoding/json"
	"math"
	"sort"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/roylkng/genai-vectors/ann"
	"github.com/roylkng/genai-vectors/cmn/cos"
	"github.com/roylkng/genai-vectors/core"
	"github.com/roylkng/genai-vectors/core/meta"
	"github.com/roylkng/genai-vectors/filter"
	"github.com/roylkng/genai-vectors/stats"
	"github.com/roylkng/genai-vectors/store"
)

// Result is one ranked hit.
type Result struct {
	Key      string
	Score    float32
	Metadata map[string]any
}

// Request is the search(index, embedding, k, nprobe?, filter?).
type Request struct {
	Index     string
	Embedding []float32
	K         int
	NProbe    int // 0 = unset
	Filter    json.RawMessage
}

type Executor struct {
	adapter   store.Adapter
	manifests *meta.ManifestStore
}

func NewExecutor(adapter store.Adapter, manifests *meta.ManifestStore) *Executor {
	return &Executor{adapter: adapter, manifests: manifests}
}

// Search implements the design end to end.
func (e *Executor) Search(ctx context.Context, req Request) ([]Result, error) {
	timer := stats.NewTimer()
	defer func() { timer.ObserveSeconds(stats.QueryDuration.WithLabelValues(req.Index)) }()

	manifest, err := e.manifests.Load(ctx, req.Index)
	if err != nil {
		if cos.IsErrNotFound(err) {
			return nil, nil // absent manifest: empty result, latency 0
		}
		return nil, err
	}

	var compiled *filter.Filter
	if len(req.Filter) > 0 {
		compiled, err = filter.Compile(req.Filter)
		if err != nil {
			return nil, err
		}
	}

	stats.QueryShardsScanned.WithLabelValues(req.Index).Observe(float64(len(manifest.Shards)))

	group, gctx := errgroup.WithContext(ctx)
	perShard := make([][]Result, len(manifest.Shards))
	for i := range manifest.Shards {
		i := i
		shard := manifest.Shards[i]
		group.Go(func() error {
			results, err := e.searchShard(gctx, &shard, &req, compiled)
			if err != nil {
				return errors.Wrapf(err, "search shard %s", shard.ShardID)
			}
			perShard[i] = results
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}

	return merge(perShard, req.K), nil
}

func (e *Executor) searchShard(ctx context.Context, shard *meta.ShardInfo, req *Request, compiled *filter.Filter) ([]Result, error) {
	metaBytes, err := e.adapter.Get(ctx, shard.MetadataPath)
	if err != nil {
		return nil, errors.Wrap(err, "load shard metadata")
	}
	var metaMap map[string]map[string]any
	if err := json.Unmarshal(metaBytes, &metaMap); err != nil {
		return nil, cos.NewErrCorruption(err, "shard metadata %s", shard.MetadataPath)
	}

	var allowed map[string]bool
	if compiled != nil {
		allowed = filter.PreFilter(metaMap, compiled)
		if len(allowed) == 0 {
			return nil, nil
		}
	}

	idMapBytes, err := e.adapter.Get(ctx, shard.IDMapPath())
	if err != nil {
		return nil, errors.Wrap(err, "load id_map")
	}
	var idMap meta.IDMap
	if err := json.Unmarshal(idMapBytes, &idMap); err != nil {
		return nil, cos.NewErrCorruption(err, "id_map %s", shard.IDMapPath())
	}
	idLookup := make(map[int64]string, len(idMap))
	for _, entry := range idMap {
		idLookup[entry.InternalID] = entry.ExternalKey
	}

	indexBytes, err := e.adapter.Get(ctx, shard.IndexPath)
	if err != nil {
		return nil, errors.Wrap(err, "load index.ann")
	}
	backend, err := ann.ReadFrom(bytes.NewReader(indexBytes), shard.Algorithm)
	if err != nil {
		return nil, err
	}

	kShard := req.K
	if allowed != nil {
		ratio := math.Ceil(float64(len(metaMap)) / float64(len(allowed)))
		if ratio > 2 {
			ratio = 2
		}
		if ratio < 1 {
			ratio = 1
		}
		kShard = int(float64(req.K) * ratio)
		if kShard > shard.VectorCount {
			kShard = shard.VectorCount
		}
	}
	if kShard < 1 {
		kShard = 1
	}

	ids, dists, honored := backend.Search(req.Embedding, kShard, req.NProbe)
	if req.NProbe > 0 && !honored {
		stats.NProbeIgnoredTotal.WithLabelValues(req.Index).Inc()
	}

	results := make([]Result, 0, len(ids))
	for i, internalID := range ids {
		if internalID < 0 {
			continue
		}
		extKey, ok := idLookup[internalID]
		if !ok {
			continue
		}
		if allowed != nil && !allowed[extKey] {
			continue
		}
		results = append(results, Result{
			Key:      extKey,
			Score:    score(shard.Metric, dists[i]),
			Metadata: metaMap[extKey],
		})
		if len(results) >= req.K {
			break
		}
	}
	return results, nil
}

// score converts a backend distance into "higher is better": cosine's
// ann.distance already stores it ascending-equivalent (negated
// similarity), so cosine just negates back; euclidean negates the raw
// squared distance, per the design
func score(metric core.Metric, dist float32) float32 {
	return -dist
}

// merge concatenates per-shard results, sorts by score descending with
// key-ascending tie-break, drops duplicate keys keeping the
// highest-scoring occurrence, and truncates to k.
func merge(perShard [][]Result, k int) []Result {
	best := make(map[string]Result)
	for _, shardResults := range perShard {
		for _, r := range shardResults {
			if cur, ok := best[r.Key]; !ok || r.Score > cur.Score {
				best[r.Key] = r
			}
		}
	}
	all := make([]Result, 0, len(best))
	for _, r := range best {
		all = append(all, r)
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].Score != all[j].Score {
			return all[i].Score > all[j].Score
		}
		return all[i].Key < all[j].Key
	})
	if len(all) > k {
		all = all[:k]
	}
	return all
}
