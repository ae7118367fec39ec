package search

import (
	"context"
	"errors"
	"testing"

	"github.com/averch/bookdex/internal/storage"
)

// mockStore implements BookStore for testing.
type mockStore struct {
	fetchByIDsFn    func(ctx context.Context, ids []int64) ([]storage.BookRecord, error)
	fetchByFilterFn func(ctx context.Context, f storage.BookFilter) ([]storage.BookRecord, error)

	byIDsCalls    int
	byFilterCalls int
}

func (m *mockStore) FetchBooksByIDs(ctx context.Context, ids []int64) ([]storage.BookRecord, error) {
	m.byIDsCalls++
	if m.fetchByIDsFn != nil {
		return m.fetchByIDsFn(ctx, ids)
	}
	return nil, nil
}

func (m *mockStore) FetchBooksByFilter(ctx context.Context, f storage.BookFilter) ([]storage.BookRecord, error) {
	m.byFilterCalls++
	if m.fetchByFilterFn != nil {
		return m.fetchByFilterFn(ctx, f)
	}
	return nil, nil
}

func record(id int64, title string) storage.BookRecord {
	return storage.BookRecord{Book: storage.Book{ID: id, Title: title}}
}

func TestRetrieve_NoPredicateSkipsStore(t *testing.T) {
	ix, _ := newTestIndex()
	store := &mockStore{}
	r := NewRetriever(ix, store, 20)

	results, err := r.Retrieve(context.Background(), Normalize(RawParams{SortBy: "title"}))
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("got %d results, want 0", len(results))
	}
	if store.byIDsCalls+store.byFilterCalls != 0 {
		t.Error("store was queried for an empty structured query")
	}
}

func TestRetrieve_StructuredPath(t *testing.T) {
	ix, _ := newTestIndex()
	store := &mockStore{
		fetchByFilterFn: func(_ context.Context, f storage.BookFilter) ([]storage.BookRecord, error) {
			if f.TitleSubstr != "Dune" {
				t.Errorf("TitleSubstr = %q", f.TitleSubstr)
			}
			if f.HasAuthor {
				t.Error("non-numeric author id reached the store")
			}
			return []storage.BookRecord{record(1, "Dune")}, nil
		},
	}
	r := NewRetriever(ix, store, 20)

	// Non-numeric author_id drops the author predicate but the title
	// predicate still executes.
	results, err := r.Retrieve(context.Background(), Normalize(RawParams{Title: "Dune", AuthorID: "abc"}))
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(results) != 1 || results[0].Title != "Dune" {
		t.Fatalf("results = %+v", results)
	}
	if results[0].Score != 0 {
		t.Errorf("structured result has score %f, want 0", results[0].Score)
	}
}

func TestRetrieve_SemanticReordersStoreRows(t *testing.T) {
	ix, _ := newTestIndex()
	err := ix.Rebuild(context.Background(), corpus(
		storage.BookText{ID: 1, Description: "a quiet rainy day"},
		storage.BookText{ID: 2, Description: "explosive action thriller"},
		storage.BookText{ID: 3, Description: ""},
	))
	if err != nil {
		t.Fatalf("Rebuild: %v", err)
	}

	store := &mockStore{
		fetchByIDsFn: func(_ context.Context, ids []int64) ([]storage.BookRecord, error) {
			// Return rows in reverse id order to prove the retriever
			// overrides the store's ordering.
			return []storage.BookRecord{record(3, "Empty"), record(2, "Thriller"), record(1, "Rainy")}, nil
		},
	}
	r := NewRetriever(ix, store, 20)

	results, err := r.Retrieve(context.Background(), Normalize(RawParams{Query: "rainy afternoon"}))
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("got %d results, want 3", len(results))
	}
	if results[0].ID != 1 {
		t.Errorf("top result = %d (%q), want book 1", results[0].ID, results[0].Title)
	}
	if results[0].Score <= results[len(results)-1].Score {
		t.Errorf("scores not descending: %+v", results)
	}
}

func TestRetrieve_SemanticIgnoresStructuredFilters(t *testing.T) {
	ix, _ := newTestIndex()
	err := ix.Rebuild(context.Background(), corpus(
		storage.BookText{ID: 1, Description: "wistful seaside poetry"},
		storage.BookText{ID: 2, Description: "hardboiled detective noir"},
	))
	if err != nil {
		t.Fatalf("Rebuild: %v", err)
	}

	var seenIDs [][]int64
	store := &mockStore{
		fetchByIDsFn: func(_ context.Context, ids []int64) ([]storage.BookRecord, error) {
			seenIDs = append(seenIDs, append([]int64(nil), ids...))
			var rows []storage.BookRecord
			for _, id := range ids {
				rows = append(rows, record(id, "x"))
			}
			return rows, nil
		},
	}
	r := NewRetriever(ix, store, 20)

	for _, raw := range []RawParams{
		{Query: "seaside poems"},
		{Query: "seaside poems", Title: "noir", AuthorID: "2", SortBy: "publisher", SortDir: "desc"},
	} {
		if _, err := r.Retrieve(context.Background(), Normalize(raw)); err != nil {
			t.Fatalf("Retrieve(%+v): %v", raw, err)
		}
	}

	if store.byFilterCalls != 0 {
		t.Error("semantic query touched the structured fetch path")
	}
	if len(seenIDs) != 2 {
		t.Fatalf("got %d id fetches, want 2", len(seenIDs))
	}
	if len(seenIDs[0]) != len(seenIDs[1]) {
		t.Fatalf("ranked sets differ in size: %v vs %v", seenIDs[0], seenIDs[1])
	}
	for i := range seenIDs[0] {
		if seenIDs[0][i] != seenIDs[1][i] {
			t.Errorf("structured filters changed the ranked set: %v vs %v", seenIDs[0], seenIDs[1])
		}
	}
}

func TestRetrieve_SelfSimilarityTopsRanking(t *testing.T) {
	ix, _ := newTestIndex()
	books := corpus(
		storage.BookText{ID: 1, Description: "ancient maps and forgotten roads"},
		storage.BookText{ID: 2, Description: "a cookbook of regional stews"},
		storage.BookText{ID: 3, Description: "orbital mechanics for beginners"},
	)
	if err := ix.Rebuild(context.Background(), books); err != nil {
		t.Fatalf("Rebuild: %v", err)
	}

	store := &mockStore{
		fetchByIDsFn: func(_ context.Context, ids []int64) ([]storage.BookRecord, error) {
			var rows []storage.BookRecord
			for _, id := range ids {
				rows = append(rows, record(id, "x"))
			}
			return rows, nil
		},
	}
	r := NewRetriever(ix, store, 20)

	// Querying a book's exact description must put it on top.
	results, err := r.Retrieve(context.Background(), Normalize(RawParams{Query: "a cookbook of regional stews"}))
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(results) == 0 || results[0].ID != 2 {
		t.Fatalf("results = %+v, want book 2 first", results)
	}
}

func TestRetrieve_StoreErrorAborts(t *testing.T) {
	ix, _ := newTestIndex()
	if err := ix.Rebuild(context.Background(), corpus(storage.BookText{ID: 1, Description: "text"})); err != nil {
		t.Fatalf("Rebuild: %v", err)
	}

	store := &mockStore{
		fetchByIDsFn: func(_ context.Context, _ []int64) ([]storage.BookRecord, error) {
			return nil, errors.New("connection refused")
		},
	}
	r := NewRetriever(ix, store, 20)

	_, err := r.Retrieve(context.Background(), Normalize(RawParams{Query: "text"}))
	if !errors.Is(err, ErrStoreQuery) {
		t.Errorf("err = %v, want ErrStoreQuery", err)
	}

	store2 := &mockStore{
		fetchByFilterFn: func(_ context.Context, _ storage.BookFilter) ([]storage.BookRecord, error) {
			return nil, errors.New("malformed query")
		},
	}
	r2 := NewRetriever(ix, store2, 20)
	_, err = r2.Retrieve(context.Background(), Normalize(RawParams{Title: "x"}))
	if !errors.Is(err, ErrStoreQuery) {
		t.Errorf("err = %v, want ErrStoreQuery", err)
	}
}

func TestRetrieve_SkipsRowsMissingFromStore(t *testing.T) {
	ix, _ := newTestIndex()
	err := ix.Rebuild(context.Background(), corpus(
		storage.BookText{ID: 1, Description: "shared words here"},
		storage.BookText{ID: 2, Description: "shared words there"},
	))
	if err != nil {
		t.Fatalf("Rebuild: %v", err)
	}

	store := &mockStore{
		fetchByIDsFn: func(_ context.Context, ids []int64) ([]storage.BookRecord, error) {
			// Book 2 vanished from the store after the last rebuild.
			return []storage.BookRecord{record(1, "Survivor")}, nil
		},
	}
	r := NewRetriever(ix, store, 20)

	results, err := r.Retrieve(context.Background(), Normalize(RawParams{Query: "shared words"}))
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(results) != 1 || results[0].ID != 1 {
		t.Fatalf("results = %+v, want only book 1", results)
	}
}
