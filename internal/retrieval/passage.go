// Package retrieval embeds utterances and finds the compliance rule
// passages most similar to them. The passage index is built offline and
// is read-only while a session runs.
package retrieval

import "time"

// Passage is one compliance rule fragment stored in the index.
// Immutable once inserted; Ordinal records insertion order and breaks
// ties between equally distant passages so queries are reproducible.
type Passage struct {
	ID        string
	Ordinal   int
	SourceDoc string
	Text      string
	Embedding []float32
	CreatedAt time.Time
}

// Result is one ranked passage returned by a query. Score is derived
// monotonically from L2 distance as 1/(1+d), so it lies in (0, 1] and
// an exact embedding match scores 1.0. Rank is 1-based.
type Result struct {
	PassageID string
	SourceDoc string
	Text      string
	Score     float64
	Rank      int
}
