// Package core holds the wire types shared by every package in the
// ingest/shard/query pipeline: the vector record, the metric, algorithm
// and key-type enums, and the size limits and default tunables. The
// index configuration and manifest shapes live in core/meta.
package core

import (
	"encoding/json"
	"time"
)

// Metric is the distance metric an index is configured with.
type Metric string

const (
	MetricCosine    Metric = "cosine"
	MetricEuclidean Metric = "euclidean"
)

// Algorithm is the ANN algorithm preference for an index (or a shard, once
// the shard builder has resolved "hybrid" to a concrete choice).
type Algorithm string

const (
	AlgoIVFPQ    Algorithm = "ivfpq"
	AlgoHNSWFlat Algorithm = "hnsw_flat"
	AlgoHybrid   Algorithm = "hybrid"
)

// KeyType is the declared type of a filterable metadata key.
type KeyType string

const (
	KeyTypeString KeyType = "string"
	KeyTypeNumber KeyType = "number"
	KeyTypeBool   KeyType = "bool"
	KeyTypeArray  KeyType = "array"
)

// FilterableKey is one entry of config.json's filterable_keys list.
type FilterableKey struct {
	Name    string  `json:"name"`
	KeyType KeyType `json:"key_type"`
}

// Size limits from the design
const (
	MaxFilterableMetaBytes    = 2 * 1024
	MaxNonFilterableMetaBytes = 40 * 1024
	MaxCombinedMetaBytes      = 40 * 1024
	MaxBatchRecords           = 500
)

// Default tunables from the design
const (
	DefaultRowLimit      = 1000
	DefaultAgeLimit      = 30 * time.Second
	DefaultShardMax      = 50_000
	DefaultHNSWM         = 32
	DefaultHNSWThreshold = 100_000
)

// VectorRecord is a single record as it flows through WAL, slice, and shard.
type VectorRecord struct {
	ID        string          `json:"id"`
	Embedding []float32       `json:"embedding"`
	Meta      json.RawMessage `json:"meta"`
	CreatedAt time.Time       `json:"created_at"`
}

// MetaMap decodes Meta into a generic JSON tree for filter evaluation.
// Kept lazy per the design ("keep JSON at the boundary; only parse when
// the filter evaluator needs it").
func (r *VectorRecord) MetaMap() (map[string]any, error) {
	if len(r.Meta) == 0 {
		return map[string]any{}, nil
	}
	var m map[string]any
	if err := json.Unmarshal(r.Meta, &m); err != nil {
		return nil, err
	}
	return m, nil
}
