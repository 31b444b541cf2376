package retrieval

import (
	"context"
	"fmt"
	"strings"
)

// queryEmbedder is the slice of Embedder the retriever needs.
type queryEmbedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// searcher is the slice of SQLiteStore the retriever needs.
type searcher interface {
	Search(vector []float32, topK int) ([]ScoredPassage, error)
	Count() (int, error)
}

// Retriever answers free-text queries with the most relevant rule
// passages from the index.
type Retriever struct {
	embedder queryEmbedder
	store    searcher
	topK     int
}

// NewRetriever creates a Retriever returning at most topK passages per query.
func NewRetriever(embedder queryEmbedder, store searcher, topK int) *Retriever {
	return &Retriever{embedder: embedder, store: store, topK: topK}
}

// Retrieve embeds the query and returns up to topK ranked results. An
// empty index yields an empty slice and no error; downstream callers
// degrade to analysis without rule grounding.
func (r *Retriever) Retrieve(ctx context.Context, query string) ([]Result, error) {
	if strings.TrimSpace(query) == "" {
		return nil, nil
	}

	vec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	scored, err := r.store.Search(vec, r.topK)
	if err != nil {
		return nil, fmt.Errorf("searching index: %w", err)
	}

	results := make([]Result, 0, len(scored))
	for i, sp := range scored {
		results = append(results, Result{
			PassageID: sp.ID,
			SourceDoc: sp.SourceDoc,
			Text:      sp.Text,
			Score:     sp.Score,
			Rank:      i + 1,
		})
	}
	return results, nil
}

// Count reports how many passages the index holds.
func (r *Retriever) Count() (int, error) {
	return r.store.Count()
}

// indexDimension is the slice of SQLiteStore the startup check needs.
type indexDimension interface {
	Dimension() (int, error)
}

// CheckIndexCompatibility embeds one short text and compares the
// vector size against the stored index. Run it at startup: a model
// swap between indexing and monitoring would otherwise fail every
// search at query time, leaving analysis without rule grounding. An
// empty index passes; the caller decides whether that is acceptable.
func CheckIndexCompatibility(ctx context.Context, embedder queryEmbedder, index indexDimension) error {
	stored, err := index.Dimension()
	if err != nil {
		return fmt.Errorf("reading index dimension: %w", err)
	}
	if stored == 0 {
		return nil
	}
	vec, err := embedder.Embed(ctx, "compliance")
	if err != nil {
		return fmt.Errorf("checking embed model: %w", err)
	}
	if len(vec) != stored {
		return fmt.Errorf("embed model produces %d-dimensional vectors but the rule index stores %d; rebuild the index with the current model", len(vec), stored)
	}
	return nil
}

// FormatContext renders retrieval results as a numbered rule block for
// injection into an analysis prompt.
func FormatContext(results []Result) string {
	if len(results) == 0 {
		return "No relevant compliance rules found."
	}

	var b strings.Builder
	for i, res := range results {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "[Rule %d from %s]:\n%s", res.Rank, res.SourceDoc, res.Text)
	}
	return b.String()
}
