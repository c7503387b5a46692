package query_test

import (
	"context"
	"encoding/json"
	"fmt"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/roylkng/genai-vectors/core"
	"github.com/roylkng/genai-vectors/core/meta"
	"github.com/roylkng/genai-vectors/query"
	"github.com/roylkng/genai-vectors/shard"
	"github.com/roylkng/genai-vectors/slice"
	"github.com/roylkng/genai-vectors/store"
)

// seedConfig preseeds indexes/{index}/config.json directly, bypassing the
// catalog's cosine default, so tests can exercise a euclidean index.
func seedConfig(ctx context.Context, adapter store.Adapter, cfg *meta.Config) {
	data, err := json.Marshal(cfg)
	Expect(err).NotTo(HaveOccurred())
	Expect(adapter.Put(ctx, "indexes/"+cfg.Name+"/config.json", data)).To(Succeed())
}

func buildFixture(ctx context.Context, adapter store.Adapter, index string, records []core.VectorRecord) {
	catalog := meta.NewCatalog(adapter)
	manifests := meta.NewManifestStore(adapter)
	writer := slice.NewWriter(adapter, slice.FormatJSONLines, "")
	builder := shard.NewBuilder(adapter, catalog, manifests, 10000)

	key, err := writer.Write(ctx, index, records)
	Expect(err).NotTo(HaveOccurred())
	Expect(builder.Process(ctx, index, []string{key})).To(Succeed())
}

var _ = Describe("Executor", func() {
	var (
		ctx     context.Context
		adapter *store.Memory
	)

	BeforeEach(func() {
		ctx = context.Background()
		adapter = store.NewMemory()
	})

	// S1 — tiny index, exact match.
	It("returns the exact match first for a tiny cosine index", func() {
		records := []core.VectorRecord{
			{ID: "a", Embedding: []float32{1, 0, 0, 0}, Meta: json.RawMessage(`{}`)},
			{ID: "b", Embedding: []float32{0, 1, 0, 0}, Meta: json.RawMessage(`{}`)},
			{ID: "c", Embedding: []float32{0, 0, 1, 0}, Meta: json.RawMessage(`{}`)},
		}
		buildFixture(ctx, adapter, "demo", records)

		executor := query.NewExecutor(adapter, meta.NewManifestStore(adapter))
		results, err := executor.Search(ctx, query.Request{
			Index:     "demo",
			Embedding: []float32{1, 0, 0, 0},
			K:         2,
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(results).To(HaveLen(2))
		Expect(results[0].Key).To(Equal("a"))
	})

	// S6 — euclidean ordering.
	It("orders euclidean results by ascending distance with score negated", func() {
		seedConfig(ctx, adapter, &meta.Config{
			Name:   "eucl",
			Dim:    2,
			Metric: core.MetricEuclidean,
			NList:  4,
			M:      1,
			NBits:  8,
		})
		records := []core.VectorRecord{
			{ID: "p", Embedding: []float32{0, 0}, Meta: json.RawMessage(`{}`)},
			{ID: "q", Embedding: []float32{3, 4}, Meta: json.RawMessage(`{}`)},
		}
		buildFixture(ctx, adapter, "eucl", records)

		executor := query.NewExecutor(adapter, meta.NewManifestStore(adapter))
		results, err := executor.Search(ctx, query.Request{
			Index:     "eucl",
			Embedding: []float32{0, 0},
			K:         2,
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(results).To(HaveLen(2))
		Expect(results[0].Key).To(Equal("p"))
		Expect(results[1].Key).To(Equal("q"))
		Expect(results[0].Score).To(BeNumerically(">", results[1].Score))
	})

	// S4 — filter with expansion.
	It("returns only records matching the metadata filter", func() {
		seedConfig(ctx, adapter, &meta.Config{
			Name:   "filtered",
			Dim:    4,
			Metric: core.MetricEuclidean,
			NList:  32,
			M:      1,
			NBits:  8,
		})

		records := make([]core.VectorRecord, 1000)
		for i := range records {
			group := "B"
			if i < 50 {
				group = "A"
			}
			metaBytes, _ := json.Marshal(map[string]any{"group": group})
			records[i] = core.VectorRecord{
				// Ascending distance from the query below: the nearest 50
				// records are exactly the group "A" records.
				ID:        fmt.Sprintf("rec-%04d", i),
				Embedding: []float32{float32(i), 0, 0, 0},
				Meta:      metaBytes,
			}
		}
		buildFixture(ctx, adapter, "filtered", records)

		executor := query.NewExecutor(adapter, meta.NewManifestStore(adapter))
		results, err := executor.Search(ctx, query.Request{
			Index:     "filtered",
			Embedding: []float32{0, 0, 0, 0},
			K:         10,
			Filter:    json.RawMessage(`{"group": "A"}`),
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(results).To(HaveLen(10))
		for _, r := range results {
			Expect(r.Metadata["group"]).To(Equal("A"))
		}
	})

	// Invariant #7: tie-break determinism.
	It("returns identical result sequences for repeated identical queries", func() {
		records := []core.VectorRecord{
			{ID: "a", Embedding: []float32{1, 0, 0, 0}, Meta: json.RawMessage(`{}`)},
			{ID: "b", Embedding: []float32{0, 1, 0, 0}, Meta: json.RawMessage(`{}`)},
			{ID: "c", Embedding: []float32{0, 0, 1, 0}, Meta: json.RawMessage(`{}`)},
		}
		buildFixture(ctx, adapter, "demo", records)

		executor := query.NewExecutor(adapter, meta.NewManifestStore(adapter))
		req := query.Request{Index: "demo", Embedding: []float32{1, 0, 0, 0}, K: 3}

		first, err := executor.Search(ctx, req)
		Expect(err).NotTo(HaveOccurred())
		second, err := executor.Search(ctx, req)
		Expect(err).NotTo(HaveOccurred())
		Expect(second).To(Equal(first))
	})

	It("returns an empty result set for a query against a non-existent index", func() {
		executor := query.NewExecutor(adapter, meta.NewManifestStore(adapter))
		results, err := executor.Search(ctx, query.Request{Index: "missing", Embedding: []float32{1}, K: 5})
		Expect(err).NotTo(HaveOccurred())
		Expect(results).To(BeEmpty())
	})
})
