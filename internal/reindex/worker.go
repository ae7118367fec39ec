package reindex

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/averch/bookdex/internal/storage"
)

// Catalog provides the corpus and its write-revision counter.
type Catalog interface {
	CatalogRevision() (int64, error)
	AllDescriptions() ([]storage.BookText, error)
}

// IndexRebuilder replaces the embedding index with a fresh build of the
// given corpus.
type IndexRebuilder interface {
	Rebuild(ctx context.Context, corpus []storage.BookText) error
}

// Worker keeps the embedding index consistent with the catalog: it polls
// the catalog revision and rebuilds the index wholesale whenever a write
// has happened. Rebuild failures leave the previous index serving (stale)
// and are retried on the next tick.
type Worker struct {
	store  Catalog
	index  IndexRebuilder
	poll   time.Duration
	kick   chan struct{}
	logger *slog.Logger

	// built is the catalog revision of the last successful rebuild.
	// Only the worker goroutine (and the blocking startup call) touch it.
	built int64
}

// NewWorker creates a Worker. If pollInterval is <= 0, it defaults to 2s.
func NewWorker(store Catalog, index IndexRebuilder, pollInterval time.Duration) *Worker {
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}
	return &Worker{
		store:  store,
		index:  index,
		poll:   pollInterval,
		kick:   make(chan struct{}, 1),
		logger: slog.Default(),
		built:  -1,
	}
}

// Kick asks the worker to check the catalog revision now instead of waiting
// for the next poll tick. Never blocks.
func (w *Worker) Kick() {
	select {
	case w.kick <- struct{}{}:
	default:
	}
}

// Run polls until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		if _, err := w.RunOnce(ctx); err != nil {
			w.logger.Error("index rebuild failed, serving stale index", "error", err)
		}

		select {
		case <-ctx.Done():
			return
		case <-w.kick:
		case <-time.After(w.poll):
		}
	}
}

// RunOnce rebuilds the index if the catalog revision moved since the last
// successful rebuild. Returns true if a rebuild ran.
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	rev, err := w.store.CatalogRevision()
	if err != nil {
		return false, fmt.Errorf("reading catalog revision: %w", err)
	}
	if rev == w.built {
		return false, nil
	}

	corpus, err := w.store.AllDescriptions()
	if err != nil {
		return false, fmt.Errorf("loading corpus: %w", err)
	}

	if err := w.index.Rebuild(ctx, corpus); err != nil {
		return false, err
	}

	w.built = rev
	w.logger.Info("embedding index rebuilt", "books", len(corpus), "revision", rev)
	return true, nil
}
