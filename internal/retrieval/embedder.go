package retrieval

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/aegisguard/aegis/internal/ollama"
)

// embedConcurrency bounds parallel embedding calls during index builds.
// The Ollama server serializes heavy requests anyway; four in flight
// keeps the queue fed without stampeding it.
const embedConcurrency = 4

// Embedder produces passage and query embeddings through a single
// model, enforcing one consistent dimension across all calls.
type Embedder struct {
	client *ollama.Client
	model  string

	// dimension is learned from the first successful embedding and
	// enforced on every subsequent one. One Embedder is shared
	// between the pipeline and the concurrent search handlers, so
	// access goes through mu.
	mu        sync.Mutex
	dimension int
}

// NewEmbedder creates an Embedder bound to a single model. Index
// builds and queries must share one Embedder (or the same model) so
// vectors stay comparable.
func NewEmbedder(client *ollama.Client, model string) *Embedder {
	return &Embedder{client: client, model: model}
}

// Model returns the embedding model name.
func (e *Embedder) Model() string { return e.model }

// Embed produces an embedding for a single text.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vec, err := e.client.Embed(ctx, e.model, text)
	if err != nil {
		return nil, fmt.Errorf("embedding text: %w", err)
	}
	if err := e.checkDimension(len(vec)); err != nil {
		return nil, err
	}
	return vec, nil
}

// EmbedBatch embeds texts concurrently, preserving input order. Any
// single failure aborts the batch.
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(embedConcurrency)

	for i, text := range texts {
		g.Go(func() error {
			vec, err := e.client.Embed(gctx, e.model, text)
			if err != nil {
				return fmt.Errorf("embedding text %d: %w", i, err)
			}
			vectors[i] = vec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for i, vec := range vectors {
		if err := e.checkDimension(len(vec)); err != nil {
			return nil, fmt.Errorf("text %d: %w", i, err)
		}
	}
	return vectors, nil
}

func (e *Embedder) checkDimension(got int) error {
	if got == 0 {
		return fmt.Errorf("model %s returned an empty embedding", e.model)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.dimension == 0 {
		e.dimension = got
		return nil
	}
	if got != e.dimension {
		return fmt.Errorf("model %s returned dimension %d, expected %d", e.model, got, e.dimension)
	}
	return nil
}
