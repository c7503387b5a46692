// Package ann is the narrow ANN backend abstraction from the design:
// build_ivfpq, build_hnsw_flat, search, write, read. Query and shard-build
// code never branch on which concrete backend a shard uses — only on the
// Algorithm tag carried in the manifest/shard-info, which also selects the
// concrete type on read, in place of a self-describing envelope.
//
// No pack example or ecosystem-standard Go binding for FAISS/HNSW is
// grounded in the retrieval pack (see DESIGN.md); the two implementations
// here are pure Go, shaped like the brute-force/partition search the
// other_examples/ vector-store files use (coarse k-means-lite quantizer
// for IVF, greedy small-world graph for HNSW) rather than a borrowed
// library. The on-disk shard envelope, however, is encoded with
// github.com/tinylib/msgp/msgp — the same binary-encoding library
// AIStore's ext/dsort/dsort.go uses for its own shard-scoped artifacts
// (CreationPhaseMetadata, extract.Shard) via msgp.NewWriterBuf/EncodeMsg.
package ann

import (
	"io"
	"math"
	"sort"

	"github.com/tinylib/msgp/msgp"

	"github.com/roylkng/genai-vectors/cmn/cos"
	"github.com/roylkng/genai-vectors/core"
)

// Index is a built, searchable ANN structure for one shard.
type Index interface {
	// Search returns the top-k internal ids and their distances for query.
	// nprobe is advisory; backends that don't expose it (Flat, HNSW) ignore
	// it and the caller must treat that as "backend default used", per
	// the nprobe open question.
	Search(query []float32, k int, nprobe int) (ids []int64, distances []float32, nprobeHonored bool)
	WriteTo(w io.Writer) error
	VectorCount() int
	EncodeMsg(mw *msgp.Writer) error
}

// ReadFrom reconstructs the concrete Index type named by algo. algo comes
// from the shard's manifest entry (ShardInfo.Algorithm), which is already
// required at every other call site, so the envelope itself carries no
// type discriminator.
func ReadFrom(r io.Reader, algo core.Algorithm) (Index, error) {
	mr := msgp.NewReader(r)
	var idx Index
	switch algo {
	case core.AlgoIVFPQ:
		ivfpq := &IVFPQIndex{}
		if err := ivfpq.DecodeMsg(mr); err != nil {
			return nil, cos.NewErrBackend(err, "decode ivfpq index")
		}
		idx = ivfpq
	default:
		hnsw := &HNSWFlatIndex{}
		if err := hnsw.DecodeMsg(mr); err != nil {
			return nil, cos.NewErrBackend(err, "decode hnsw index")
		}
		idx = hnsw
	}
	return idx, nil
}

func writeEnvelope(w io.Writer, idx Index) error {
	mw := msgp.NewWriter(w)
	if err := idx.EncodeMsg(mw); err != nil {
		return err
	}
	return mw.Flush()
}

// The helpers below hand-encode the aggregate shapes (matrices, id->vector
// maps) the two backends store; msgp's code generator has no target here
// since Index is a hand-written polymorphic interface rather than a single
// generated struct, but the wire format is the same Writer/Reader,
// map-of-named-fields convention its generated code produces.

func encodeFloat32Slice(mw *msgp.Writer, v []float32) error {
	if err := mw.WriteArrayHeader(uint32(len(v))); err != nil {
		return err
	}
	for _, f := range v {
		if err := mw.WriteFloat32(f); err != nil {
			return err
		}
	}
	return nil
}

func decodeFloat32Slice(mr *msgp.Reader) ([]float32, error) {
	n, err := mr.ReadArrayHeader()
	if err != nil {
		return nil, err
	}
	out := make([]float32, n)
	for i := range out {
		if out[i], err = mr.ReadFloat32(); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func encodeFloat32Matrix(mw *msgp.Writer, rows [][]float32) error {
	if err := mw.WriteArrayHeader(uint32(len(rows))); err != nil {
		return err
	}
	for _, row := range rows {
		if err := encodeFloat32Slice(mw, row); err != nil {
			return err
		}
	}
	return nil
}

func decodeFloat32Matrix(mr *msgp.Reader) ([][]float32, error) {
	n, err := mr.ReadArrayHeader()
	if err != nil {
		return nil, err
	}
	out := make([][]float32, n)
	for i := range out {
		if out[i], err = decodeFloat32Slice(mr); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func encodeInt64Slice(mw *msgp.Writer, v []int64) error {
	if err := mw.WriteArrayHeader(uint32(len(v))); err != nil {
		return err
	}
	for _, id := range v {
		if err := mw.WriteInt64(id); err != nil {
			return err
		}
	}
	return nil
}

func decodeInt64Slice(mr *msgp.Reader) ([]int64, error) {
	n, err := mr.ReadArrayHeader()
	if err != nil {
		return nil, err
	}
	out := make([]int64, n)
	for i := range out {
		if out[i], err = mr.ReadInt64(); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func encodeInt64Matrix(mw *msgp.Writer, rows [][]int64) error {
	if err := mw.WriteArrayHeader(uint32(len(rows))); err != nil {
		return err
	}
	for _, row := range rows {
		if err := encodeInt64Slice(mw, row); err != nil {
			return err
		}
	}
	return nil
}

func decodeInt64Matrix(mr *msgp.Reader) ([][]int64, error) {
	n, err := mr.ReadArrayHeader()
	if err != nil {
		return nil, err
	}
	out := make([][]int64, n)
	for i := range out {
		if out[i], err = decodeInt64Slice(mr); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// encodeVectorMap and encodeInt64SliceMap walk keys in ascending order so
// identical input always serializes to identical bytes (no dependence on
// Go's randomized map iteration order).

func encodeVectorMap(mw *msgp.Writer, vectors map[int64][]float32) error {
	if err := mw.WriteMapHeader(uint32(len(vectors))); err != nil {
		return err
	}
	ids := make([]int64, 0, len(vectors))
	for id := range vectors {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		if err := mw.WriteInt64(id); err != nil {
			return err
		}
		if err := encodeFloat32Slice(mw, vectors[id]); err != nil {
			return err
		}
	}
	return nil
}

func decodeVectorMap(mr *msgp.Reader) (map[int64][]float32, error) {
	n, err := mr.ReadMapHeader()
	if err != nil {
		return nil, err
	}
	out := make(map[int64][]float32, n)
	for i := uint32(0); i < n; i++ {
		id, err := mr.ReadInt64()
		if err != nil {
			return nil, err
		}
		v, err := decodeFloat32Slice(mr)
		if err != nil {
			return nil, err
		}
		out[id] = v
	}
	return out, nil
}

func encodeInt64SliceMap(mw *msgp.Writer, m map[int64][]int64) error {
	if err := mw.WriteMapHeader(uint32(len(m))); err != nil {
		return err
	}
	ids := make([]int64, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		if err := mw.WriteInt64(id); err != nil {
			return err
		}
		if err := encodeInt64Slice(mw, m[id]); err != nil {
			return err
		}
	}
	return nil
}

func decodeInt64SliceMap(mr *msgp.Reader) (map[int64][]int64, error) {
	n, err := mr.ReadMapHeader()
	if err != nil {
		return nil, err
	}
	out := make(map[int64][]int64, n)
	for i := uint32(0); i < n; i++ {
		id, err := mr.ReadInt64()
		if err != nil {
			return nil, err
		}
		v, err := decodeInt64Slice(mr)
		if err != nil {
			return nil, err
		}
		out[id] = v
	}
	return out, nil
}

// distance returns the backend distance for metric m between a and b on
// an ascending-is-better scale for both metrics: for cosine it is the
// negated cosine similarity, for euclidean it is squared L2 distance
// (smaller is closer in both cases).
func distance(m core.Metric, a, b []float32) float32 {
	switch m {
	case core.MetricCosine:
		return -cosineSim(a, b) // store ascending-is-better like L2 so heap code is uniform
	default:
		return l2sq(a, b)
	}
}

func cosineSim(a, b []float32) float32 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}

func l2sq(a, b []float32) float32 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return float32(sum)
}
