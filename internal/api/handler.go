package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/averch/bookdex/internal/search"
	"github.com/averch/bookdex/internal/storage"
)

const maxRequestBodySize = 1 << 20 // 1MB

// SearchRetriever abstracts query execution for the API layer.
type SearchRetriever interface {
	Retrieve(ctx context.Context, q search.Query) ([]search.Result, error)
}

// IndexKicker asks the background worker to reconcile the index with the
// catalog. Never blocks.
type IndexKicker interface {
	Kick()
}

type AppDeps struct {
	Store     *storage.Store
	Retriever SearchRetriever
	Index     *search.Index
	Worker    IndexKicker // optional; if nil, writes don't trigger a rebuild
}

func NewAppHandler(deps AppDeps) http.Handler {
	r := chi.NewRouter()
	r.Use(RequestLogger)

	r.Get("/health", handleHealth(deps))
	r.Get("/search", handleSearch(deps))
	r.Get("/authors", handleListAuthors(deps))
	r.Post("/authors", handleAddAuthor(deps))
	r.Get("/categories", handleListCategories(deps))
	r.Post("/categories", handleAddCategory(deps))
	r.Post("/books", handleAddBook(deps))
	r.Post("/reindex", handleReindex(deps))

	return r
}

func handleHealth(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		books, err := deps.Store.CountBooks()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to count books: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"status":      "ok",
			"books":       books,
			"index_ready": deps.Index.Ready(),
			"indexed":     deps.Index.Len(),
		})
	}
}

// searchResult is one book row in a search response. Score carries the
// cosine similarity for semantic hits and is omitted for structured ones.
type searchResult struct {
	ID          int64   `json:"id"`
	Title       string  `json:"title"`
	EANISBN13   string  `json:"ean_isbn13"`
	UPCISBN10   string  `json:"upc_isbn10"`
	Description string  `json:"description"`
	Publisher   string  `json:"publisher"`
	PublishDate string  `json:"publish_date"`
	PageLength  int     `json:"page_length"`
	Authors     string  `json:"authors"`
	Categories  string  `json:"categories"`
	Score       float32 `json:"score,omitempty"`
}

func handleSearch(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		params := r.URL.Query()
		q := search.Normalize(search.RawParams{
			Title:      params.Get("title"),
			AuthorID:   params.Get("author_id"),
			CategoryID: params.Get("category_id"),
			Query:      params.Get("nlp"),
			SortBy:     params.Get("sort_by"),
			SortDir:    params.Get("sort_dir"),
		})

		results, err := deps.Retriever.Retrieve(r.Context(), q)
		switch {
		case errors.Is(err, search.ErrIndexNotBuilt):
			httpError(w, http.StatusServiceUnavailable, "index_not_ready", "semantic index is not built yet")
			return
		case errors.Is(err, search.ErrEmbeddingBackend):
			httpError(w, http.StatusBadGateway, "embedding_error", "embedding backend failed: %v", err)
			return
		case err != nil:
			httpError(w, http.StatusInternalServerError, "api_error", "search failed: %v", err)
			return
		}

		out := make([]searchResult, len(results))
		for i, res := range results {
			out[i] = searchResult{
				ID:          res.ID,
				Title:       res.Title,
				EANISBN13:   res.EANISBN13,
				UPCISBN10:   res.UPCISBN10,
				Description: res.Description,
				Publisher:   res.Publisher,
				PublishDate: res.PublishDate,
				PageLength:  res.PageLength,
				Authors:     res.Authors,
				Categories:  res.Categories,
				Score:       res.Score,
			}
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"mode":    modeString(q.Mode),
			"results": out,
			// Echo the trimmed inputs so a client can restore its form state.
			"query": map[string]string{
				"title":       q.Raw.Title,
				"author_id":   q.Raw.AuthorID,
				"category_id": q.Raw.CategoryID,
				"nlp":         q.Raw.Query,
				"sort_by":     q.Raw.SortBy,
				"sort_dir":    q.Raw.SortDir,
			},
		})
	}
}

func modeString(m search.Mode) string {
	switch m {
	case search.ModeSemantic:
		return "semantic"
	case search.ModeStructured:
		return "structured"
	default:
		return "none"
	}
}

// AddBookRequest is the JSON body for POST /books. AuthorID and CategoryID
// must reference existing rows.
type AddBookRequest struct {
	Title       string `json:"title"`
	AuthorID    int64  `json:"author_id"`
	CategoryID  int64  `json:"category_id"`
	EANISBN13   string `json:"ean_isbn13"`
	UPCISBN10   string `json:"upc_isbn10"`
	Description string `json:"description"`
	Publisher   string `json:"publisher"`
	PublishDate string `json:"publish_date"`
	PageLength  int    `json:"page_length"`
}

func handleAddBook(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

		var req AddBookRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		if req.Title == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "title is required")
			return
		}
		if req.AuthorID <= 0 || req.CategoryID <= 0 {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "author_id and category_id are required")
			return
		}

		id, err := deps.Store.InsertBook(storage.Book{
			Title:       req.Title,
			EANISBN13:   req.EANISBN13,
			UPCISBN10:   req.UPCISBN10,
			Description: req.Description,
			Publisher:   req.Publisher,
			PublishDate: req.PublishDate,
			PageLength:  req.PageLength,
		}, req.AuthorID, req.CategoryID)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to save book: %v", err)
			return
		}

		if deps.Worker != nil {
			deps.Worker.Kick()
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]int64{"id": id})
	}
}

func handleListAuthors(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authors, err := deps.Store.ListAuthors()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list authors: %v", err)
			return
		}
		if authors == nil {
			authors = []storage.Author{}
		}

		type authorOut struct {
			ID       int64  `json:"id"`
			FullName string `json:"full_name"`
		}
		out := make([]authorOut, len(authors))
		for i, a := range authors {
			out[i] = authorOut{ID: a.ID, FullName: a.FullName}
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(out)
	}
}

func handleAddAuthor(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

		var req struct {
			FullName string `json:"full_name"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.FullName == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "full_name is required")
			return
		}

		id, err := deps.Store.AddAuthor(req.FullName)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to save author: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]int64{"id": id})
	}
}

func handleListCategories(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		categories, err := deps.Store.ListCategories()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list categories: %v", err)
			return
		}
		if categories == nil {
			categories = []storage.Category{}
		}

		type categoryOut struct {
			ID   int64  `json:"id"`
			Name string `json:"name"`
		}
		out := make([]categoryOut, len(categories))
		for i, c := range categories {
			out[i] = categoryOut{ID: c.ID, Name: c.Name}
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(out)
	}
}

func handleAddCategory(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

		var req struct {
			Name string `json:"name"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.Name == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "name is required")
			return
		}

		id, err := deps.Store.AddCategory(req.Name)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to save category: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]int64{"id": id})
	}
}

func handleReindex(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.Worker == nil {
			httpError(w, http.StatusServiceUnavailable, "api_error", "no reindex worker running")
			return
		}
		deps.Worker.Kick()

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		json.NewEncoder(w).Encode(map[string]string{"status": "scheduled"})
	}
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}
