package search

import (
	"context"
	"fmt"

	"github.com/averch/bookdex/internal/storage"
)

// DefaultTopK is the number of candidates a semantic query returns when the
// caller doesn't configure one.
const DefaultTopK = 20

// BookStore is the catalog projection contract the retriever needs.
// Satisfied by storage.Store.
type BookStore interface {
	FetchBooksByIDs(ctx context.Context, ids []int64) ([]storage.BookRecord, error)
	FetchBooksByFilter(ctx context.Context, f storage.BookFilter) ([]storage.BookRecord, error)
}

// Result is one retrieved book. Score is the cosine similarity for semantic
// results and 0 for structured ones.
type Result struct {
	storage.BookRecord
	Score float32
}

// Retriever answers normalized queries by combining the embedding index
// with the relational catalog. It is a pure read path: no side effects, and
// any store or backend error aborts the whole request.
type Retriever struct {
	index *Index
	store BookStore
	topK  int
}

// NewRetriever creates a Retriever. topK <= 0 falls back to DefaultTopK.
func NewRetriever(index *Index, store BookStore, topK int) *Retriever {
	if topK <= 0 {
		topK = DefaultTopK
	}
	return &Retriever{index: index, store: store, topK: topK}
}

// Retrieve executes a normalized query and returns ordered results.
//
// Semantic queries are ranked by the index and re-hydrated from the store;
// the store's own row order is overridden by the similarity rank. Structured
// queries delegate predicate and sort to the store. A query with no
// predicate at all returns nothing without touching the store.
func (r *Retriever) Retrieve(ctx context.Context, q Query) ([]Result, error) {
	switch q.Mode {
	case ModeSemantic:
		return r.retrieveSemantic(ctx, q.Text)
	case ModeStructured:
		return r.retrieveStructured(ctx, q.Filter)
	default:
		return nil, nil
	}
}

func (r *Retriever) retrieveSemantic(ctx context.Context, text string) ([]Result, error) {
	candidates, err := r.index.Score(ctx, text, r.topK)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	ids := make([]int64, len(candidates))
	for i, c := range candidates {
		ids[i] = c.BookID
	}

	rows, err := r.store.FetchBooksByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreQuery, err)
	}

	byID := make(map[int64]storage.BookRecord, len(rows))
	for _, row := range rows {
		byID[row.ID] = row
	}

	// Reorder fetched rows to the similarity rank in memory; the rank never
	// gets encoded into SQL.
	results := make([]Result, 0, len(candidates))
	for _, c := range candidates {
		row, ok := byID[c.BookID]
		if !ok {
			// Indexed id missing from the store: the index is stale against
			// a concurrent write. Skip; the next rebuild reconciles.
			continue
		}
		results = append(results, Result{BookRecord: row, Score: c.Score})
	}
	return results, nil
}

func (r *Retriever) retrieveStructured(ctx context.Context, f storage.BookFilter) ([]Result, error) {
	rows, err := r.store.FetchBooksByFilter(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreQuery, err)
	}
	results := make([]Result, len(rows))
	for i, row := range rows {
		results[i] = Result{BookRecord: row}
	}
	return results, nil
}
