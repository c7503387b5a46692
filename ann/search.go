package ann

import "sort"

// topKHeap keeps the k smallest (id, distance) pairs seen so far; "smallest
// distance" is the backend-internal convention (distance() in ann.go already
// flips cosine similarity to this ascending scale).
type topKHeap struct {
	k     int
	ids   []int64
	dists []float32
}

func newTopKHeap(k int) *topKHeap {
	if k < 1 {
		k = 1
	}
	return &topKHeap{k: k}
}

func (h *topKHeap) push(id int64, dist float32) {
	h.ids = append(h.ids, id)
	h.dists = append(h.dists, dist)
}

// sorted returns up to k entries ascending by distance, ties broken by id
// ascending for determinism within a single shard's candidate set (the
// cross-shard tie rule lives in package query, per the design).
func (h *topKHeap) sorted() ([]int64, []float32) {
	idx := make([]int, len(h.ids))
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(i, j int) bool {
		a, b := idx[i], idx[j]
		if h.dists[a] != h.dists[b] {
			return h.dists[a] < h.dists[b]
		}
		return h.ids[a] < h.ids[b]
	})
	n := h.k
	if n > len(idx) {
		n = len(idx)
	}
	ids := make([]int64, n)
	dists := make([]float32, n)
	for i := 0; i < n; i++ {
		ids[i] = h.ids[idx[i]]
		dists[i] = h.dists[idx[i]]
	}
	return ids, dists
}

func sortBy[T any](s []T, less func(a, b T) bool) {
	sort.Slice(s, func(i, j int) bool { return less(s[i], s[j]) })
}
