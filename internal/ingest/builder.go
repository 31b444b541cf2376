package ingest

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/aegisguard/aegis/internal/retrieval"
)

// BatchEmbedder generates embeddings for a batch of passages.
type BatchEmbedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// PassageStore inserts passages into the rule index.
type PassageStore interface {
	Insert(passages []retrieval.Passage) error
	MaxOrdinal() (int, error)
}

// Builder turns loaded documents into embedded, ordinal-stamped
// passages in the rule index.
type Builder struct {
	embedder BatchEmbedder
	store    PassageStore
	logger   *slog.Logger
}

// NewBuilder creates a Builder. A nil logger falls back to slog.Default.
func NewBuilder(embedder BatchEmbedder, store PassageStore, logger *slog.Logger) *Builder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{embedder: embedder, store: store, logger: logger}
}

// Build splits, embeds and inserts the documents, assigning insertion
// ordinals that continue from the current index tail. It returns the
// number of passages added.
func (b *Builder) Build(ctx context.Context, docs []Document) (int, error) {
	var texts []string
	var sources []string
	for _, doc := range docs {
		passages := SplitPassages(doc.Text)
		b.logger.Info("split document", "doc", doc.Name, "passages", len(passages))
		for _, p := range passages {
			texts = append(texts, p)
			sources = append(sources, doc.Name)
		}
	}
	if len(texts) == 0 {
		return 0, fmt.Errorf("no passages extracted from %d documents", len(docs))
	}

	vectors, err := b.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return 0, fmt.Errorf("embedding %d passages: %w", len(texts), err)
	}

	next, err := b.store.MaxOrdinal()
	if err != nil {
		return 0, fmt.Errorf("reading index tail: %w", err)
	}
	next++

	passages := make([]retrieval.Passage, len(texts))
	for i := range texts {
		passages[i] = retrieval.Passage{
			ID:        uuid.NewString(),
			Ordinal:   next + i,
			SourceDoc: sources[i],
			Text:      texts[i],
			Embedding: vectors[i],
		}
	}
	if err := b.store.Insert(passages); err != nil {
		return 0, fmt.Errorf("inserting passages: %w", err)
	}

	b.logger.Info("index build complete", "passages", len(passages), "documents", len(docs))
	return len(passages), nil
}
