// Package meta implements the Index Catalog and the
// Manifest Manager, grounded on AIStore's `core/meta`
// package role (per-bucket/per-index configuration and metadata) and on
// `original_source/src/api/indices.rs` + `src/indexer.rs` for the default
// nlist/m/nbits derivation this predecessor used.
package meta

import (
	"context"
	"math"
	"math/bits"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"

	"github.com/roylkng/genai-vectors/cmn/cos"
	"github.com/roylkng/genai-vectors/core"
	"github.com/roylkng/genai-vectors/store"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Config is the immutable-after-creation per-index configuration
// persisted at indexes/{name}/config.json.
type Config struct {
	Name              string               `json:"name"`
	Dim               int                  `json:"dim"`
	Metric            core.Metric          `json:"metric"`
	NList             int                  `json:"nlist"`
	M                 int                  `json:"m"`
	NBits             int                  `json:"nbits"`
	Algorithm         core.Algorithm       `json:"algorithm,omitempty"`
	HNSWThreshold     int                  `json:"hnsw_threshold,omitempty"`
	FilterableKeys    []core.FilterableKey `json:"filterable_keys,omitempty"`
	NonFilterableKeys []string             `json:"non_filterable_keys,omitempty"`
}

func configKey(index string) string { return "indexes/" + index + "/config.json" }

// Catalog loads and creates per-index Config objects.
type Catalog struct {
	adapter store.Adapter
}

func NewCatalog(adapter store.Adapter) *Catalog { return &Catalog{adapter: adapter} }

// GetOrCreate loads indexes/{index}/config.json if present; otherwise it
// derives default nlist/m/nbits from the dimension and an estimated
// dataset size, persists the new config, and returns it.
func (c *Catalog) GetOrCreate(ctx context.Context, index string, dim int) (*Config, error) {
	data, err := c.adapter.Get(ctx, configKey(index))
	if err == nil {
		var cfg Config
		if uerr := json.Unmarshal(data, &cfg); uerr != nil {
			return nil, cos.NewErrCorruption(uerr, "config %s", index)
		}
		return &cfg, nil
	}
	if !cos.IsErrNotFound(err) {
		return nil, errors.Wrapf(err, "load config for %s", index)
	}

	estimatedN, err := c.estimateN(ctx, index, dim)
	if err != nil {
		return nil, err
	}
	nlist := clampPow2(int(math.Sqrt(float64(estimatedN))), 4, 65536)
	m, nbits := derivePQParams(dim)

	cfg := &Config{
		Name:          index,
		Dim:           dim,
		Metric:        core.MetricCosine,
		NList:         nlist,
		M:             m,
		NBits:         nbits,
		Algorithm:     core.AlgoHybrid,
		HNSWThreshold: core.DefaultHNSWThreshold,
	}
	buf, err := json.Marshal(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "marshal default config")
	}
	if err := c.adapter.Put(ctx, configKey(index), buf); err != nil {
		return nil, errors.Wrapf(err, "persist default config for %s", index)
	}
	return cfg, nil
}

// estimateN follows the design: current manifest total × 1.5, else
// staged slice count × 1000, else dim × 100.
func (c *Catalog) estimateN(ctx context.Context, index string, dim int) (int, error) {
	ms := NewManifestStore(c.adapter)
	if manifest, err := ms.Load(ctx, index); err == nil {
		return int(float64(manifest.TotalVectors) * 1.5), nil
	} else if !cos.IsErrNotFound(err) {
		return 0, errors.Wrap(err, "probe manifest for estimate")
	}

	slices, err := c.adapter.List(ctx, "staged/"+index+"/")
	if err != nil {
		return 0, errors.Wrap(err, "list staged slices for estimate")
	}
	if n := len(slices); n > 0 {
		return n * 1000, nil
	}
	return dim * 100, nil
}

// clampPow2 rounds n to the nearest power of two and clamps to [lo, hi].
func clampPow2(n, lo, hi int) int {
	if n < lo {
		n = lo
	}
	if n > hi {
		n = hi
	}
	lower := 1 << (bits.Len(uint(n)) - 1)
	if lower == 0 {
		lower = 1
	}
	upper := lower << 1
	if n-lower <= upper-n {
		n = lower
	} else {
		n = upper
	}
	if n < lo {
		n = lo
	}
	if n > hi {
		n = hi
	}
	return n
}

// derivePQParams picks (m, nbits) from the dimension per the design:
// m is the largest divisor of dim from {64,32,16,8,4}; nbits defaults to
// 8 (a middling compression target — higher compression would lower it
// toward 4).
func derivePQParams(dim int) (m, nbits int) {
	for _, cand := range []int{64, 32, 16, 8, 4} {
		if dim%cand == 0 {
			return cand, 8
		}
	}
	return 1, 8
}
