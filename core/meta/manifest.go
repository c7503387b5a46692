package meta

import (
	"context"
	"sync"

	"github.com/pkg/errors"

	"github.com/roylkng/genai-vectors/cmn/cos"
	"github.com/roylkng/genai-vectors/cmn/debug"
	"github.com/roylkng/genai-vectors/core"
	"github.com/roylkng/genai-vectors/store"
)

// ShardInfo describes one published shard's three artifacts.
type ShardInfo struct {
	ShardID      string         `json:"shard_id"`
	IndexPath    string         `json:"index_path"`
	MetadataPath string         `json:"metadata_path"`
	VectorCount  int            `json:"vector_count"`
	Metric       core.Metric    `json:"metric"`
	CreatedAt    string         `json:"created_at"` // YYYYMMDDThhmmss
	Algorithm    core.Algorithm `json:"algorithm"`
}

// IDMapPath derives id_map.json's key from a shard's index_path, which is
// always indexes/{index}/shards/{shard_id}/index.ann.
func (s *ShardInfo) IDMapPath() string {
	return indexDir(s.IndexPath) + "/id_map.json"
}

func indexDir(indexPath string) string {
	i := len(indexPath) - len("/index.ann")
	if i < 0 {
		return indexPath
	}
	return indexPath[:i]
}

// Manifest is indexes/{index}/manifest.json, the single source of truth
// for which shards are live.
type Manifest struct {
	IndexName     string         `json:"index_name"`
	Dim           int            `json:"dim"`
	Metric        core.Metric    `json:"metric"`
	Algorithm     core.Algorithm `json:"algorithm,omitempty"`
	HNSWThreshold int            `json:"hnsw_threshold,omitempty"`
	Shards        []ShardInfo    `json:"shards"`
	TotalVectors  int            `json:"total_vectors"`
}

func manifestKey(index string) string { return "indexes/" + index + "/manifest.json" }

// ManifestStore is the Manifest Manager: read-modify-write,
// no compare-and-swap. Concurrent builder runs on the same index must be
// serialized by the caller (xact.Coordinator) — this type does not
// arbitrate concurrent writers itself, matching the design's explicit "weaker
// guarantee (caller-serialized)" design note.
type ManifestStore struct {
	adapter store.Adapter
	mu      sync.Mutex // guards marshal/unmarshal only; not cross-process
}

func NewManifestStore(adapter store.Adapter) *ManifestStore {
	return &ManifestStore{adapter: adapter}
}

func (m *ManifestStore) Load(ctx context.Context, index string) (*Manifest, error) {
	data, err := m.adapter.Get(ctx, manifestKey(index))
	if err != nil {
		if cos.IsErrNotFound(err) {
			return nil, cos.NewErrNotFound("manifest for index %s", index)
		}
		return nil, errors.Wrapf(err, "load manifest for %s", index)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var manifest Manifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, cos.NewErrCorruption(err, "manifest for %s", index)
	}
	return &manifest, nil
}

// Update performs a load-mutate-store cycle. If the manifest does not yet
// exist, f receives a fresh zero-value Manifest seeded from cfg.
func (m *ManifestStore) Update(ctx context.Context, index string, cfg *Config, f func(*Manifest) error) error {
	manifest, err := m.Load(ctx, index)
	if err != nil {
		if !cos.IsErrNotFound(err) {
			return err
		}
		manifest = &Manifest{
			IndexName:     index,
			Dim:           cfg.Dim,
			Metric:        cfg.Metric,
			Algorithm:     cfg.Algorithm,
			HNSWThreshold: cfg.HNSWThreshold,
		}
	}
	if err := f(manifest); err != nil {
		return err
	}
	return m.store(ctx, index, manifest)
}

func (m *ManifestStore) store(ctx context.Context, index string, manifest *Manifest) error {
	assertManifestSound(manifest)

	m.mu.Lock()
	buf, err := json.Marshal(manifest)
	m.mu.Unlock()
	if err != nil {
		return errors.Wrap(err, "marshal manifest")
	}
	if err := m.adapter.Put(ctx, manifestKey(index), buf); err != nil {
		return errors.Wrapf(err, "persist manifest for %s", index)
	}
	return nil
}

// assertManifestSound checks the invariant every write of this manifest
// must hold: total_vectors is the sum of every published shard's
// vector_count, and every shard has its three artifact paths populated.
// A violation here means a caller built a Manifest by hand instead of
// through Update's f callback contract.
func assertManifestSound(manifest *Manifest) {
	sum := 0
	for _, s := range manifest.Shards {
		debug.Assert(s.ShardID != "", "manifest: shard with empty shard_id")
		debug.Assertf(s.IndexPath != "", "manifest: shard %s missing index_path", s.ShardID)
		debug.Assertf(s.MetadataPath != "", "manifest: shard %s missing metadata_path", s.ShardID)
		sum += s.VectorCount
	}
	debug.Assertf(sum == manifest.TotalVectors,
		"manifest %s: total_vectors %d != sum of shard vector_count %d", manifest.IndexName, manifest.TotalVectors, sum)
}
