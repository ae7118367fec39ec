package search

import "errors"

var (
	// ErrEmbeddingBackend is returned when the embedding backend is
	// unreachable or returns a malformed response. A failed rebuild keeps
	// the previous index active.
	ErrEmbeddingBackend = errors.New("embedding backend error")

	// ErrStoreQuery is returned when a catalog fetch fails. The request is
	// aborted; there are no partial results.
	ErrStoreQuery = errors.New("store query error")

	// ErrIndexNotBuilt is returned when a semantic query arrives before the
	// first successful index rebuild.
	ErrIndexNotBuilt = errors.New("embedding index not built")
)
