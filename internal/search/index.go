package search

import (
	"container/heap"
	"context"
	"fmt"
	"math"
	"sync"
	"sync/atomic"

	"github.com/averch/bookdex/internal/storage"
)

// Candidate is one semantic scoring result: a book id with its cosine
// similarity against the query. Candidates are ephemeral and never persisted.
type Candidate struct {
	BookID int64
	Score  float32
}

// snapshot is one complete, immutable build of the index: one vector per
// book id, positionally aligned. Readers always see a whole snapshot; a
// rebuild publishes a new one with a single pointer swap.
type snapshot struct {
	ids  []int64
	vecs [][]float32
}

// Index holds in-memory embeddings of every book description and answers
// brute-force cosine similarity queries. The corpus is assumed small enough
// that a full scan per query is fine; anything bigger belongs behind the
// same Score contract with an ANN structure inside.
type Index struct {
	embedder *Embedder

	// rebuildMu serializes rebuilds; readers never take it.
	rebuildMu sync.Mutex
	snap      atomic.Pointer[snapshot]
}

// NewIndex creates an empty, unbuilt Index. Score fails with
// ErrIndexNotBuilt until the first successful Rebuild.
func NewIndex(e *Embedder) *Index {
	return &Index{embedder: e}
}

// Rebuild embeds every description in corpus (empty descriptions included;
// every book gets a vector) and atomically replaces the current index. On
// failure the previous index stays active; there is no partial replace.
func (ix *Index) Rebuild(ctx context.Context, corpus []storage.BookText) error {
	ix.rebuildMu.Lock()
	defer ix.rebuildMu.Unlock()

	texts := make([]string, len(corpus))
	ids := make([]int64, len(corpus))
	for i, bt := range corpus {
		texts[i] = bt.Description
		ids[i] = bt.ID
	}

	vecs, err := ix.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrEmbeddingBackend, err)
	}
	if len(vecs) != len(corpus) {
		return fmt.Errorf("%w: got %d vectors for %d books", ErrEmbeddingBackend, len(vecs), len(corpus))
	}

	ix.snap.Store(&snapshot{ids: ids, vecs: vecs})
	return nil
}

// Ready reports whether at least one rebuild has succeeded.
func (ix *Index) Ready() bool {
	return ix.snap.Load() != nil
}

// Len returns the number of indexed books.
func (ix *Index) Len() int {
	snap := ix.snap.Load()
	if snap == nil {
		return 0
	}
	return len(snap.ids)
}

// Score embeds the query text and returns up to topK candidates ordered by
// descending cosine similarity, ties broken by ascending book id. The
// returned prefix always equals the same prefix of a full sort.
func (ix *Index) Score(ctx context.Context, query string, topK int) ([]Candidate, error) {
	snap := ix.snap.Load()
	if snap == nil {
		return nil, ErrIndexNotBuilt
	}
	if topK <= 0 || len(snap.ids) == 0 {
		return nil, nil
	}

	vec, err := ix.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingBackend, err)
	}
	queryNorm := norm(vec)
	if queryNorm == 0 {
		return nil, nil
	}

	h := &candidateHeap{}
	heap.Init(h)

	for i, id := range snap.ids {
		c := Candidate{BookID: id, Score: cosine(vec, snap.vecs[i], queryNorm)}
		if h.Len() < topK {
			heap.Push(h, c)
		} else if better(c, (*h)[0]) {
			(*h)[0] = c
			heap.Fix(h, 0)
		}
	}

	// Pop yields worst-to-best; fill the result back-to-front.
	results := make([]Candidate, h.Len())
	for i := len(results) - 1; i >= 0; i-- {
		results[i] = heap.Pop(h).(Candidate)
	}
	return results, nil
}

// better reports whether a ranks strictly ahead of b: higher score wins,
// equal scores fall back to the lower book id.
func better(a, b Candidate) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	return a.BookID < b.BookID
}

// norm returns the L2 norm of a vector.
func norm(v []float32) float32 {
	var sum float64
	for _, f := range v {
		sum += float64(f) * float64(f)
	}
	return float32(math.Sqrt(sum))
}

// cosine computes dot(a,b) / (aNorm * |b|). aNorm is the precomputed L2
// norm of a. A zero vector (an embedded empty description) scores 0.
func cosine(a, b []float32, aNorm float32) float32 {
	if len(a) != len(b) {
		return 0
	}
	var dot float64
	var bNormSq float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		bNormSq += float64(b[i]) * float64(b[i])
	}
	bNorm := math.Sqrt(bNormSq)
	if bNorm == 0 {
		return 0
	}
	return float32(dot / (float64(aNorm) * bNorm))
}

// candidateHeap is a min-heap keeping the current top-K: the root is the
// worst retained candidate under the (score desc, id asc) total order.
type candidateHeap []Candidate

func (h candidateHeap) Len() int            { return len(h) }
func (h candidateHeap) Less(i, j int) bool  { return better(h[j], h[i]) }
func (h candidateHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *candidateHeap) Push(x interface{}) { *h = append(*h, x.(Candidate)) }
func (h *candidateHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
