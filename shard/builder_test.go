package shard_test

import (
	"context"
	"encoding/json"
	"fmt"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/roylkng/genai-vectors/core"
	"github.com/roylkng/genai-vectors/core/meta"
	"github.com/roylkng/genai-vectors/shard"
	"github.com/roylkng/genai-vectors/slice"
	"github.com/roylkng/genai-vectors/store"
)

func axisVector(dim, axis int) []float32 {
	v := make([]float32, dim)
	v[axis] = 1
	return v
}

var _ = Describe("Builder", func() {
	var (
		ctx       context.Context
		adapter   *store.Memory
		catalog   *meta.Catalog
		manifests *meta.ManifestStore
		writer    *slice.Writer
		builder   *shard.Builder
	)

	BeforeEach(func() {
		ctx = context.Background()
		adapter = store.NewMemory()
		catalog = meta.NewCatalog(adapter)
		manifests = meta.NewManifestStore(adapter)
		writer = slice.NewWriter(adapter, slice.FormatJSONLines, "")
	})

	// Invariant #6: idempotence of build.
	It("is a no-op when given no staged slices", func() {
		builder = shard.NewBuilder(adapter, catalog, manifests, 10)
		Expect(builder.Process(ctx, "demo", nil)).To(Succeed())

		_, err := manifests.Load(ctx, "demo")
		Expect(err).To(HaveOccurred()) // still no manifest at all
	})

	// S3 — multi-shard merge.
	It("splits 25 records across 4 axes into exactly 3 shards summing to 25, with manifest soundness", func() {
		builder = shard.NewBuilder(adapter, catalog, manifests, 10)

		records := make([]core.VectorRecord, 25)
		for i := range records {
			axis := i % 4
			metaBytes, _ := json.Marshal(map[string]any{"axis": axis})
			records[i] = core.VectorRecord{
				ID:        fmt.Sprintf("rec-%02d", i),
				Embedding: axisVector(4, axis),
				Meta:      metaBytes,
			}
		}
		key, err := writer.Write(ctx, "demo", records)
		Expect(err).NotTo(HaveOccurred())

		Expect(builder.Process(ctx, "demo", []string{key})).To(Succeed())

		manifest, err := manifests.Load(ctx, "demo")
		Expect(err).NotTo(HaveOccurred())
		Expect(manifest.Shards).To(HaveLen(3))
		Expect(manifest.TotalVectors).To(Equal(25))

		var summed int
		for _, s := range manifest.Shards {
			summed += s.VectorCount

			// Invariant #2: manifest soundness — every artifact retrievable,
			// id_map/metadata/vector_count all agree, dims match config.
			idMapBytes, err := adapter.Get(ctx, s.IDMapPath())
			Expect(err).NotTo(HaveOccurred())
			var idMap meta.IDMap
			Expect(json.Unmarshal(idMapBytes, &idMap)).To(Succeed())
			Expect(idMap).To(HaveLen(s.VectorCount))

			metaBytes, err := adapter.Get(ctx, s.MetadataPath)
			Expect(err).NotTo(HaveOccurred())
			var metaMap map[string]map[string]any
			Expect(json.Unmarshal(metaBytes, &metaMap)).To(Succeed())
			Expect(metaMap).To(HaveLen(s.VectorCount))

			_, err = adapter.Get(ctx, s.IndexPath)
			Expect(err).NotTo(HaveOccurred())
		}
		Expect(summed).To(Equal(25))

		// The absorbed slice is deleted after a successful publish.
		_, err = adapter.Get(ctx, key)
		Expect(err).To(HaveOccurred())
	})

	// Invariant #3: total count after a completed builder run.
	It("accumulates total_vectors across multiple builder runs on the same index", func() {
		builder = shard.NewBuilder(adapter, catalog, manifests, 50)

		first := []core.VectorRecord{
			{ID: "a", Embedding: axisVector(4, 0), Meta: json.RawMessage(`{}`)},
		}
		key1, err := writer.Write(ctx, "demo", first)
		Expect(err).NotTo(HaveOccurred())
		Expect(builder.Process(ctx, "demo", []string{key1})).To(Succeed())

		second := []core.VectorRecord{
			{ID: "b", Embedding: axisVector(4, 1), Meta: json.RawMessage(`{}`)},
			{ID: "c", Embedding: axisVector(4, 2), Meta: json.RawMessage(`{}`)},
		}
		key2, err := writer.Write(ctx, "demo", second)
		Expect(err).NotTo(HaveOccurred())
		Expect(builder.Process(ctx, "demo", []string{key2})).To(Succeed())

		manifest, err := manifests.Load(ctx, "demo")
		Expect(err).NotTo(HaveOccurred())
		Expect(manifest.TotalVectors).To(Equal(3))

		var summed int
		for _, s := range manifest.Shards {
			summed += s.VectorCount
		}
		Expect(summed).To(Equal(manifest.TotalVectors))
	})
})
