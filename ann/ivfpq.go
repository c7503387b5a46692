package ann

import (
	"io"
	"math/rand"

	"github.com/tinylib/msgp/msgp"

	"github.com/roylkng/genai-vectors/cmn/cos"
	"github.com/roylkng/genai-vectors/core"
)

// IVFPQIndex is an inverted-file index with a trained coarse quantizer.
// Vectors within a probed cell are scored exactly against the query
// (no product-quantization byte compression is implemented — see
// DESIGN.md — so M/NBits are carried for fidelity to the design's config
// shape but do not change the stored representation).
type IVFPQIndex struct {
	Dim       int
	Metric    core.Metric
	NList     int
	M         int
	NBits     int
	Centroids [][]float32
	Cells     [][]int64 // internal ids per centroid
	Vectors   map[int64][]float32
}

// BuildIVFPQ trains a coarse quantizer on up to
// min(39*nlist, 30%*N, N) vectors and assigns every vector
// to its nearest centroid.
func BuildIVFPQ(dim, nlist, m, nbits int, metric core.Metric, vectors [][]float32) (*IVFPQIndex, error) {
	n := len(vectors)
	if n == 0 {
		return nil, cos.NewErrBackend(nil, "ivfpq: empty vector set")
	}
	if nlist > n {
		nlist = n
	}

	ts := trainingSize(n, nlist)
	centroids := kmeansLite(vectors[:ts], nlist, metric)

	idx := &IVFPQIndex{
		Dim:       dim,
		Metric:    metric,
		NList:     nlist,
		M:         m,
		NBits:     nbits,
		Centroids: centroids,
		Cells:     make([][]int64, nlist),
		Vectors:   make(map[int64][]float32, n),
	}
	for i, v := range vectors {
		id := int64(i)
		idx.Vectors[id] = v
		cell := idx.nearestCentroid(v)
		idx.Cells[cell] = append(idx.Cells[cell], id)
	}
	return idx, nil
}

// trainingSize implements the min(39·nlist, 30% of shard_N, shard_N).
func trainingSize(n, nlist int) int {
	cand := []int{39 * nlist, (n*30 + 99) / 100, n}
	ts := cand[0]
	for _, c := range cand[1:] {
		if c < ts {
			ts = c
		}
	}
	if ts < 1 {
		ts = 1
	}
	if ts > n {
		ts = n
	}
	return ts
}

func (idx *IVFPQIndex) nearestCentroid(v []float32) int {
	best, bestDist := 0, float32(0)
	for i, c := range idx.Centroids {
		d := distance(idx.Metric, v, c)
		if i == 0 || d < bestDist {
			best, bestDist = i, d
		}
	}
	return best
}

func (idx *IVFPQIndex) VectorCount() int { return len(idx.Vectors) }

// Search probes the nprobe nearest centroids (default 1 if unset/invalid)
// and scores every vector in those cells exactly against query.
func (idx *IVFPQIndex) Search(query []float32, k, nprobe int) ([]int64, []float32, bool) {
	honored := nprobe > 0
	if nprobe <= 0 {
		nprobe = 1
	}
	if nprobe > idx.NList {
		nprobe = idx.NList
	}

	type cd struct {
		cell int
		dist float32
	}
	cells := make([]cd, len(idx.Centroids))
	for i, c := range idx.Centroids {
		cells[i] = cd{i, distance(idx.Metric, query, c)}
	}
	sortBy(cells, func(a, b cd) bool { return a.dist < b.dist })

	h := newTopKHeap(k)
	for i := 0; i < nprobe && i < len(cells); i++ {
		for _, id := range idx.Cells[cells[i].cell] {
			v := idx.Vectors[id]
			h.push(id, distance(idx.Metric, query, v))
		}
	}
	ids, dists := h.sorted()
	return ids, dists, honored
}

func (idx *IVFPQIndex) WriteTo(w io.Writer) error { return writeEnvelope(w, idx) }

// EncodeMsg writes idx as a msgp map keyed by field name, the same
// convention msgp's code generator produces for a tagless struct.
func (idx *IVFPQIndex) EncodeMsg(mw *msgp.Writer) error {
	if err := mw.WriteMapHeader(8); err != nil {
		return err
	}
	fields := []struct {
		name string
		enc  func() error
	}{
		{"dim", func() error { return mw.WriteInt(idx.Dim) }},
		{"metric", func() error { return mw.WriteString(string(idx.Metric)) }},
		{"nlist", func() error { return mw.WriteInt(idx.NList) }},
		{"m", func() error { return mw.WriteInt(idx.M) }},
		{"nbits", func() error { return mw.WriteInt(idx.NBits) }},
		{"centroids", func() error { return encodeFloat32Matrix(mw, idx.Centroids) }},
		{"cells", func() error { return encodeInt64Matrix(mw, idx.Cells) }},
		{"vectors", func() error { return encodeVectorMap(mw, idx.Vectors) }},
	}
	for _, f := range fields {
		if err := mw.WriteString(f.name); err != nil {
			return err
		}
		if err := f.enc(); err != nil {
			return err
		}
	}
	return nil
}

// DecodeMsg reconstructs idx from the map EncodeMsg wrote. Unknown field
// names are skipped so a newer writer can add fields without breaking an
// older reader.
func (idx *IVFPQIndex) DecodeMsg(mr *msgp.Reader) error {
	n, err := mr.ReadMapHeader()
	if err != nil {
		return err
	}
	for i := uint32(0); i < n; i++ {
		name, err := mr.ReadString()
		if err != nil {
			return err
		}
		switch name {
		case "dim":
			if idx.Dim, err = mr.ReadInt(); err != nil {
				return err
			}
		case "metric":
			var metric string
			if metric, err = mr.ReadString(); err != nil {
				return err
			}
			idx.Metric = core.Metric(metric)
		case "nlist":
			if idx.NList, err = mr.ReadInt(); err != nil {
				return err
			}
		case "m":
			if idx.M, err = mr.ReadInt(); err != nil {
				return err
			}
		case "nbits":
			if idx.NBits, err = mr.ReadInt(); err != nil {
				return err
			}
		case "centroids":
			if idx.Centroids, err = decodeFloat32Matrix(mr); err != nil {
				return err
			}
		case "cells":
			if idx.Cells, err = decodeInt64Matrix(mr); err != nil {
				return err
			}
		case "vectors":
			if idx.Vectors, err = decodeVectorMap(mr); err != nil {
				return err
			}
		default:
			if err := mr.Skip(); err != nil {
				return err
			}
		}
	}
	return nil
}

// kmeansLite runs a small, fixed number of Lloyd iterations seeded with
// random samples — adequate for shard-local coarse partitioning; exact
// convergence is not required by any the design invariant.
func kmeansLite(samples [][]float32, k int, metric core.Metric) [][]float32 {
	if k > len(samples) {
		k = len(samples)
	}
	if k < 1 {
		k = 1
	}
	dim := len(samples[0])
	centroids := make([][]float32, k)
	perm := rand.New(rand.NewSource(1)).Perm(len(samples))
	for i := 0; i < k; i++ {
		centroids[i] = append([]float32(nil), samples[perm[i]]...)
	}

	const iterations = 4
	for iter := 0; iter < iterations; iter++ {
		sums := make([][]float64, k)
		counts := make([]int, k)
		for i := range sums {
			sums[i] = make([]float64, dim)
		}
		for _, s := range samples {
			best, bestDist := 0, float32(0)
			for ci, c := range centroids {
				d := distance(metric, s, c)
				if ci == 0 || d < bestDist {
					best, bestDist = ci, d
				}
			}
			counts[best]++
			for j, val := range s {
				sums[best][j] += float64(val)
			}
		}
		for i := 0; i < k; i++ {
			if counts[i] == 0 {
				continue
			}
			for j := 0; j < dim; j++ {
				centroids[i][j] = float32(sums[i][j] / float64(counts[i]))
			}
		}
	}
	return centroids
}
