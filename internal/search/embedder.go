package search

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// Client is the embedding backend contract. Satisfied by ollama.Client.
type Client interface {
	Embed(ctx context.Context, model string, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, model string, texts []string) ([][]float32, error)
}

// embedChunkSize is how many texts go into one backend batch call during a
// corpus rebuild.
const embedChunkSize = 64

// Embedder wraps an embedding Client with a fixed model name.
type Embedder struct {
	client Client
	model  string
}

// NewEmbedder creates an Embedder using the given Client and model name.
func NewEmbedder(c Client, model string) *Embedder {
	return &Embedder{client: c, model: model}
}

// Embed returns the embedding vector for a single text.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vec, err := e.client.Embed(ctx, e.model, text)
	if err != nil {
		return nil, fmt.Errorf("embedding text: %w", err)
	}
	return vec, nil
}

// EmbedBatch returns embedding vectors for multiple texts, in input order.
// Texts are split into chunks embedded concurrently with bounded
// parallelism. Returns nil (not error) for empty/nil input. The result
// count always equals the input count on success; a chunk whose response
// cardinality does not match its request is an error.
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	results := make([][]float32, len(texts))
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(4) // Bound concurrency to avoid overwhelming the backend.

	for start := 0; start < len(texts); start += embedChunkSize {
		start := start
		end := min(start+embedChunkSize, len(texts))
		g.Go(func() error {
			chunk := texts[start:end]
			vecs, err := e.client.EmbedBatch(gCtx, e.model, chunk)
			if err != nil {
				return fmt.Errorf("embedding texts %d-%d: %w", start, end-1, err)
			}
			if len(vecs) != len(chunk) {
				return fmt.Errorf("embedding texts %d-%d: got %d vectors for %d inputs", start, end-1, len(vecs), len(chunk))
			}
			copy(results[start:end], vecs)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
