// Package shard is the Shard Builder: loads staged slices,
// partitions into bounded shards, picks an ANN algorithm per shard,
// builds and publishes each shard, then updates the manifest.
//
// Grounded on original_source/src/indexer.rs's process_index_slices (load
// phase, per-shard loop, manifest update per shard) generalized per
// the design to: algorithm selection (ivfpq/hnsw_flat/hybrid), bounded
// parallel builds via golang.org/x/sync/errgroup + a semaphore (the same
// shape as AIStore's ext/dsort/dsort.go), and a single manifest write
// covering all of a run's new shards rather than one write per shard.
package shard

import (
	"bytes"
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	jsoniter "github.com/json-iterator/go"
	"github.com/roylkng/genai-vectors/ann"
	"github.com/roylkng/genai-vectors/cmn/cos"
	"github.com/roylkng/genai-vectors/cmn/nlog"
	"github.com/roylkng/genai-vectors/core"
	"github.com/roylkng/genai-vectors/core/meta"
	"github.com/roylkng/genai-vectors/slice"
	"github.com/roylkng/genai-vectors/stats"
	"github.com/roylkng/genai-vectors/store"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Builder runs the shard-build pipeline for one process call. Overlapping
// runs on the same index must be serialized by the caller (xact.Coordinator);
// Builder itself does not arbitrate.
type Builder struct {
	adapter   store.Adapter
	catalog   *meta.Catalog
	manifests *meta.ManifestStore
	reader    *slice.Reader
	shardMax  int
}

func NewBuilder(adapter store.Adapter, catalog *meta.Catalog, manifests *meta.ManifestStore, shardMax int) *Builder {
	if shardMax <= 0 {
		shardMax = core.DefaultShardMax
	}
	return &Builder{
		adapter:   adapter,
		catalog:   catalog,
		manifests: manifests,
		reader:    slice.NewReader(adapter),
		shardMax:  shardMax,
	}
}

// Process is the process(index, slice_keys) entry point.
func (b *Builder) Process(ctx context.Context, index string, sliceKeys []string) error {
	if len(sliceKeys) == 0 {
		return nil // idempotent no-op: manifest bytes are unchanged (testable property #6)
	}

	records, err := b.load(ctx, sliceKeys)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		nlog.Infof("shard: no records in %d slices for index %s", len(sliceKeys), index)
		return nil
	}

	cfg, err := b.catalog.GetOrCreate(ctx, index, len(records[0].Embedding))
	if err != nil {
		return err
	}

	groups := partition(records, b.shardMax)

	manifest, err := b.manifests.Load(ctx, index)
	var totalBefore int
	if err == nil {
		totalBefore = manifest.TotalVectors
	} else if !cos.IsErrNotFound(err) {
		return err
	}

	infos, err := b.buildAll(ctx, index, cfg, groups, totalBefore)
	if err != nil {
		return err
	}

	var shardsAfter, vectorsAfter int
	if err := b.manifests.Update(ctx, index, cfg, func(m *meta.Manifest) error {
		m.Shards = append(m.Shards, infos...)
		var n int
		for _, s := range infos {
			n += s.VectorCount
		}
		m.TotalVectors += n
		shardsAfter = len(m.Shards)
		vectorsAfter = m.TotalVectors
		return nil
	}); err != nil {
		return errors.Wrap(err, "publish manifest")
	}
	stats.ShardsTotal.WithLabelValues(index).Set(float64(shardsAfter))
	stats.VectorsTotal.WithLabelValues(index).Set(float64(vectorsAfter))

	// Only after the manifest write succeeds may staged slices be deleted.
	for _, key := range sliceKeys {
		if err := b.adapter.Delete(ctx, key); err != nil {
			nlog.Warningf("shard: failed to delete absorbed slice %s: %v (will be re-absorbed next run)", key, err)
		}
	}
	return nil
}

func (b *Builder) load(ctx context.Context, sliceKeys []string) ([]core.VectorRecord, error) {
	const perSliceHeuristic = 1000
	records := make([]core.VectorRecord, 0, len(sliceKeys)*perSliceHeuristic)
	for _, key := range sliceKeys {
		rows, err := b.reader.Read(ctx, key)
		if err != nil {
			return nil, errors.Wrapf(err, "load slice %s", key)
		}
		records = append(records, rows...)
	}
	return records, nil
}

// partition splits records into groups of at most shardMax, per the design
func partition(records []core.VectorRecord, shardMax int) [][]core.VectorRecord {
	n := len(records)
	numShards := (n + shardMax - 1) / shardMax
	groups := make([][]core.VectorRecord, 0, numShards)
	for start := 0; start < n; start += shardMax {
		end := start + shardMax
		if end > n {
			end = n
		}
		groups = append(groups, records[start:end])
	}
	return groups
}

// buildAll builds every shard group concurrently, bounded to
// min(len(groups), cpu_count) workers via an errgroup-backed semaphore —
// the same shape AIStore uses in ext/dsort/dsort.go.
func (b *Builder) buildAll(ctx context.Context, index string, cfg *meta.Config, groups [][]core.VectorRecord, totalBefore int) ([]meta.ShardInfo, error) {
	workers := len(groups)
	if cpu := runtime.NumCPU(); workers > cpu {
		workers = cpu
	}
	if workers < 1 {
		workers = 1
	}
	sem := make(chan struct{}, workers)

	infos := make([]meta.ShardInfo, len(groups))
	group, gctx := errgroup.WithContext(ctx)

	projected := totalBefore
	for gi := range groups {
		gi := gi
		n := len(groups[gi])
		sem <- struct{}{}
		group.Go(func() error {
			defer func() { <-sem }()
			algo := chooseAlgorithm(cfg, projected+n)
			info, err := b.buildOne(gctx, index, cfg, groups[gi], algo)
			if err != nil {
				return err
			}
			infos[gi] = *info
			return nil
		})
		projected += n
	}
	if err := group.Wait(); err != nil {
		return nil, errors.Wrap(err, "build shards")
	}
	return infos, nil
}

// chooseAlgorithm implements the per-shard selection rule.
func chooseAlgorithm(cfg *meta.Config, projected int) core.Algorithm {
	switch cfg.Algorithm {
	case core.AlgoIVFPQ:
		return core.AlgoIVFPQ
	case core.AlgoHNSWFlat:
		return core.AlgoHNSWFlat
	default: // hybrid
		threshold := cfg.HNSWThreshold
		if threshold <= 0 {
			threshold = core.DefaultHNSWThreshold
		}
		if projected < threshold {
			return core.AlgoHNSWFlat
		}
		return core.AlgoIVFPQ
	}
}

func (b *Builder) buildOne(ctx context.Context, index string, cfg *meta.Config, records []core.VectorRecord, algo core.Algorithm) (*meta.ShardInfo, error) {
	timer := stats.NewTimer()
	defer func() { timer.ObserveSeconds(stats.ShardBuildDuration.WithLabelValues(index, string(algo))) }()

	shardID := uuid.New().String()
	n := len(records)

	vectors := make([][]float32, n)
	ids := make([]string, n)
	metaMap := make(map[string]any, n)
	for i := range records {
		vectors[i] = records[i].Embedding
		ids[i] = records[i].ID
		m, err := records[i].MetaMap()
		if err != nil {
			return nil, cos.NewErrBadRequest("record %s: %v", records[i].ID, err)
		}
		metaMap[records[i].ID] = m
	}

	var idx ann.Index
	var err error
	switch algo {
	case core.AlgoIVFPQ:
		shardNList := clampedSqrt(n)
		m, nbits := cfg.M, cfg.NBits
		idx, err = ann.BuildIVFPQ(cfg.Dim, shardNList, m, nbits, cfg.Metric, vectors)
	default:
		idx, err = ann.BuildHNSWFlat(cfg.Dim, cfg.Metric, vectors, core.DefaultHNSWM)
	}
	if err != nil {
		return nil, cos.NewErrBackend(err, "build shard %s", shardID)
	}

	indexKey := fmt.Sprintf("indexes/%s/shards/%s/index.ann", index, shardID)
	var buf bytes.Buffer
	if err := idx.WriteTo(&buf); err != nil {
		return nil, cos.NewErrBackend(err, "serialize shard %s", shardID)
	}
	if err := b.adapter.Put(ctx, indexKey, buf.Bytes()); err != nil {
		return nil, errors.Wrapf(err, "put index.ann for shard %s", shardID)
	}

	idMap := make(meta.IDMap, n)
	for i, extKey := range ids {
		idMap[i] = meta.IDMapEntry{InternalID: int64(i), ExternalKey: extKey}
	}
	idMapBytes, err := json.Marshal(idMap)
	if err != nil {
		return nil, errors.Wrap(err, "marshal id_map")
	}
	idMapKey := fmt.Sprintf("indexes/%s/shards/%s/id_map.json", index, shardID)
	if err := b.adapter.Put(ctx, idMapKey, idMapBytes); err != nil {
		return nil, errors.Wrapf(err, "put id_map for shard %s", shardID)
	}

	metaBytes, err := json.Marshal(metaMap)
	if err != nil {
		return nil, errors.Wrap(err, "marshal shard metadata")
	}
	metaKey := fmt.Sprintf("indexes/%s/shards/%s/metadata.json", index, shardID)
	if err := b.adapter.Put(ctx, metaKey, metaBytes); err != nil {
		return nil, errors.Wrapf(err, "put metadata for shard %s", shardID)
	}

	return &meta.ShardInfo{
		ShardID:      shardID,
		IndexPath:    indexKey,
		MetadataPath: metaKey,
		VectorCount:  n,
		Metric:       cfg.Metric,
		CreatedAt:    time.Now().UTC().Format("20060102T150405"),
		Algorithm:    algo,
	}, nil
}

// clampedSqrt is the nlist derivation applied per-shard.
func clampedSqrt(n int) int {
	v := int(isqrt(n))
	if v < 4 {
		v = 4
	}
	if v > 65536 {
		v = 65536
	}
	return v
}

func isqrt(n int) int {
	if n <= 0 {
		return 0
	}
	x := n
	y := (x + 1) / 2
	for y < x {
		x = y
		y = (x + n/x) / 2
	}
	return x
}
