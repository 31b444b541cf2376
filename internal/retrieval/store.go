package retrieval

import (
	"container/heap"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"
)

// SQLiteStore provides passage storage and brute-force nearest-neighbor
// search over L2 distance, backed by the rule_passages table.
//
// The corpus is a few hundred rule passages at most, so a full scan per
// query is well under a millisecond and needs no ANN index.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore wraps an existing *sql.DB for passage operations.
// The rule_passages table must already exist (created via migrations).
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// Insert adds passages to the index inside one transaction.
func (s *SQLiteStore) Insert(passages []Passage) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning insert transaction: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO rule_passages (id, ordinal, source_doc, text, embedding, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("preparing insert statement: %w", err)
	}
	defer stmt.Close()

	for _, p := range passages {
		blob := encodeFloat32s(p.Embedding)
		createdAt := p.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now().UTC()
		}
		if _, err := stmt.Exec(p.ID, p.Ordinal, p.SourceDoc, p.Text, blob, createdAt.Format(time.RFC3339)); err != nil {
			tx.Rollback()
			return fmt.Errorf("inserting passage %s: %w", p.ID, err)
		}
	}

	return tx.Commit()
}

// scoredID holds enough state for the scan phase: full passage rows are
// fetched only for the top-K winners.
type scoredID struct {
	ID      string
	Ordinal int
	Score   float64
}

// Search returns the topK passages nearest to vector by L2 distance,
// scored as 1/(1+d) and ordered by descending score. Equal distances
// are broken by ascending insertion ordinal so repeated queries return
// identical rankings. An empty index yields an empty result, not an error.
func (s *SQLiteStore) Search(vector []float32, topK int) ([]ScoredPassage, error) {
	if topK <= 0 || len(vector) == 0 {
		return nil, nil
	}

	rows, err := s.db.Query(`SELECT id, ordinal, embedding FROM rule_passages`)
	if err != nil {
		return nil, fmt.Errorf("querying passages: %w", err)
	}
	defer rows.Close()

	h := &worstFirstHeap{}
	heap.Init(h)

	// Reusable buffer avoids per-row allocations during the scan.
	var buf []float32

	for rows.Next() {
		var id string
		var ordinal int
		var blob []byte
		if err := rows.Scan(&id, &ordinal, &blob); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}

		buf, err = decodeFloat32sInto(buf, blob)
		if err != nil {
			return nil, fmt.Errorf("decoding embedding for %s: %w", id, err)
		}
		if len(buf) != len(vector) {
			return nil, fmt.Errorf("dimension mismatch: query %d, passage %s has %d", len(vector), id, len(buf))
		}

		cand := scoredID{ID: id, Ordinal: ordinal, Score: similarity(l2Distance(vector, buf))}
		if h.Len() < topK {
			heap.Push(h, cand)
		} else if better(cand, (*h)[0]) {
			(*h)[0] = cand
			heap.Fix(h, 0)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating rows: %w", err)
	}

	if h.Len() == 0 {
		return nil, nil
	}

	winners := make([]scoredID, h.Len())
	for i := len(winners) - 1; i >= 0; i-- {
		winners[i] = heap.Pop(h).(scoredID)
	}

	return s.fetchPassages(winners)
}

// ScoredPassage pairs a full passage row with its query score.
type ScoredPassage struct {
	Passage
	Score float64
}

// fetchPassages loads the full rows for the scan winners, preserving
// the score order computed during the scan.
func (s *SQLiteStore) fetchPassages(winners []scoredID) ([]ScoredPassage, error) {
	ids := make([]any, len(winners))
	scores := make(map[string]float64, len(winners))
	for i, w := range winners {
		ids[i] = w.ID
		scores[w.ID] = w.Score
	}

	query := `SELECT id, ordinal, source_doc, text, embedding, created_at
		FROM rule_passages WHERE id IN (?` + strings.Repeat(",?", len(ids)-1) + `)`

	rows, err := s.db.Query(query, ids...)
	if err != nil {
		return nil, fmt.Errorf("fetching top-K passages: %w", err)
	}
	defer rows.Close()

	var results []ScoredPassage
	for rows.Next() {
		var p Passage
		var blob []byte
		var createdAt string
		if err := rows.Scan(&p.ID, &p.Ordinal, &p.SourceDoc, &p.Text, &blob, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning passage: %w", err)
		}
		embedding, err := decodeFloat32s(blob)
		if err != nil {
			return nil, fmt.Errorf("decoding embedding for %s: %w", p.ID, err)
		}
		p.Embedding = embedding
		t, err := time.Parse(time.RFC3339, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at for %s: %w", p.ID, err)
		}
		p.CreatedAt = t
		results = append(results, ScoredPassage{Passage: p, Score: scores[p.ID]})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating passages: %w", err)
	}

	// The IN query doesn't preserve order; re-sort by score descending,
	// ties by ascending ordinal.
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Ordinal < results[j].Ordinal
	})
	return results, nil
}

// Count returns the number of passages in the index.
func (s *SQLiteStore) Count() (int, error) {
	var count int
	err := s.db.QueryRow("SELECT COUNT(*) FROM rule_passages").Scan(&count)
	return count, err
}

// Dimension returns the embedding width of the stored passages, or 0
// for an empty index. The index build and the query path must use the
// same embedding model; a differing width at query time is a fatal
// integration error surfaced at startup.
func (s *SQLiteStore) Dimension() (int, error) {
	var blob []byte
	err := s.db.QueryRow("SELECT embedding FROM rule_passages ORDER BY ordinal LIMIT 1").Scan(&blob)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("reading first embedding: %w", err)
	}
	return len(blob) / 4, nil
}

// MaxOrdinal returns the highest insertion ordinal, or -1 for an empty index.
func (s *SQLiteStore) MaxOrdinal() (int, error) {
	var ord sql.NullInt64
	if err := s.db.QueryRow("SELECT MAX(ordinal) FROM rule_passages").Scan(&ord); err != nil {
		return -1, fmt.Errorf("reading max ordinal: %w", err)
	}
	if !ord.Valid {
		return -1, nil
	}
	return int(ord.Int64), nil
}

// better reports whether a outranks b: higher score wins, equal scores
// fall back to earlier insertion.
func better(a, b scoredID) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	return a.Ordinal < b.Ordinal
}

// worstFirstHeap keeps the current worst candidate at the root so it
// can be evicted in O(log k) when a better passage appears.
type worstFirstHeap []scoredID

func (h worstFirstHeap) Len() int           { return len(h) }
func (h worstFirstHeap) Less(i, j int) bool { return better(h[j], h[i]) }
func (h worstFirstHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *worstFirstHeap) Push(x any)        { *h = append(*h, x.(scoredID)) }
func (h *worstFirstHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// l2Distance computes the Euclidean distance between two equal-length vectors.
func l2Distance(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}

// similarity maps a distance into (0, 1]: identical vectors score 1.0
// and the score decays monotonically as distance grows.
func similarity(distance float64) float64 {
	return 1 / (1 + distance)
}

// encodeFloat32s serializes a float32 slice to little-endian bytes.
func encodeFloat32s(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// decodeFloat32s deserializes little-endian bytes into a new float32 slice.
func decodeFloat32s(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("byte slice length %d is not a multiple of 4", len(b))
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v, nil
}

// decodeFloat32sInto decodes into the provided buffer, reusing it to
// avoid per-row allocations during search scans.
func decodeFloat32sInto(buf []float32, b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("byte slice length %d is not a multiple of 4", len(b))
	}
	n := len(b) / 4
	if cap(buf) < n {
		buf = make([]float32, n)
	} else {
		buf = buf[:n]
	}
	for i := range buf {
		buf[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return buf, nil
}
