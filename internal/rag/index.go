package rag

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"sort"
	"time"

	_ "modernc.org/sqlite"

	"github.com/user/synapse/internal/types"
)

// Index is the persisted passage store backing the document index cache.
// Each indexed document owns a set of passages with their embeddings. A
// document row is written last, inside the same transaction as its
// passages, so a document either exists completely or not at all.
type Index struct {
	db *sql.DB
}

// OpenIndex creates (or opens) the index database at dbPath.
func OpenIndex(dbPath string) (*Index, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open index db: %w", err)
	}

	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("pragma: %w", err)
		}
	}

	schema := `
	CREATE TABLE IF NOT EXISTS documents (
		id         TEXT PRIMARY KEY,
		path       TEXT NOT NULL,
		passages   INTEGER NOT NULL,
		created_at TEXT NOT NULL
	);
	CREATE TABLE IF NOT EXISTS passages (
		document_id TEXT NOT NULL,
		ordinal     INTEGER NOT NULL,
		content     TEXT NOT NULL,
		embedding   BLOB NOT NULL,
		PRIMARY KEY (document_id, ordinal)
	);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create index schema: %w", err)
	}

	return &Index{db: db}, nil
}

// Close closes the underlying database connection.
func (ix *Index) Close() error {
	return ix.db.Close()
}

// Has reports whether a completed index exists for the document identifier.
func (ix *Index) Has(ctx context.Context, id types.DocumentID) (bool, error) {
	var one int
	err := ix.db.QueryRowContext(ctx,
		`SELECT 1 FROM documents WHERE id = ?`, string(id),
	).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query document: %w", err)
	}
	return true, nil
}

// Insert persists a freshly built index in one transaction. Passages go in
// first; the documents row last, so a partially written build is invisible.
func (ix *Index) Insert(ctx context.Context, id types.DocumentID, path string, passages []Passage, vectors [][]float32) error {
	if len(passages) != len(vectors) {
		return fmt.Errorf("passage/vector count mismatch: %d vs %d", len(passages), len(vectors))
	}

	tx, err := ix.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin insert: %w", err)
	}
	defer tx.Rollback()

	for i, p := range passages {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO passages (document_id, ordinal, content, embedding) VALUES (?, ?, ?, ?)`,
			string(id), p.Ordinal, p.Text, float32ToBytes(vectors[i]),
		); err != nil {
			return fmt.Errorf("insert passage %d: %w", p.Ordinal, err)
		}
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO documents (id, path, passages, created_at) VALUES (?, ?, ?, ?)`,
		string(id), path, len(passages), time.Now().UTC().Format(time.RFC3339Nano),
	); err != nil {
		return fmt.Errorf("insert document: %w", err)
	}

	return tx.Commit()
}

// ScoredPassage pairs a passage with its similarity to the query.
type ScoredPassage struct {
	Passage
	Score     float64
	embedding []float32
}

// Search returns the top-k passages of the document by cosine similarity to
// the query vector.
func (ix *Index) Search(ctx context.Context, id types.DocumentID, query []float32, k int) ([]ScoredPassage, error) {
	candidates, err := ix.loadPassages(ctx, id)
	if err != nil {
		return nil, err
	}

	for i := range candidates {
		candidates[i].Score = cosineSimilarity(query, candidates[i].embedding)
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].Score > candidates[j].Score })

	if len(candidates) > k {
		candidates = candidates[:k]
	}
	return candidates, nil
}

// SearchDiverse returns k passages chosen from the top-pool similarity
// candidates by Maximal Marginal Relevance, trading raw similarity for
// topical spread so overview answers do not collapse onto one repeated
// topic.
func (ix *Index) SearchDiverse(ctx context.Context, id types.DocumentID, query []float32, pool, k int, diversity float64) ([]ScoredPassage, error) {
	candidates, err := ix.Search(ctx, id, query, pool)
	if err != nil {
		return nil, err
	}
	return maximalMarginalRelevance(candidates, k, diversity), nil
}

// loadPassages reads all passages of a document with their embeddings.
// Documents are bounded in size, so an in-memory scan is fine.
func (ix *Index) loadPassages(ctx context.Context, id types.DocumentID) ([]ScoredPassage, error) {
	rows, err := ix.db.QueryContext(ctx,
		`SELECT ordinal, content, embedding FROM passages WHERE document_id = ? ORDER BY ordinal`,
		string(id),
	)
	if err != nil {
		return nil, fmt.Errorf("query passages: %w", err)
	}
	defer rows.Close()

	var passages []ScoredPassage
	for rows.Next() {
		var (
			p    ScoredPassage
			blob []byte
		)
		if err := rows.Scan(&p.Ordinal, &p.Text, &blob); err != nil {
			return nil, fmt.Errorf("scan passage: %w", err)
		}
		p.embedding = bytesToFloat32(blob)
		passages = append(passages, p)
	}
	return passages, rows.Err()
}

// Stats returns the number of indexed documents and passages.
func (ix *Index) Stats(ctx context.Context) (docs, passages int64, err error) {
	if err = ix.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents`).Scan(&docs); err != nil {
		return 0, 0, fmt.Errorf("count documents: %w", err)
	}
	if err = ix.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM passages`).Scan(&passages); err != nil {
		return 0, 0, fmt.Errorf("count passages: %w", err)
	}
	return docs, passages, nil
}

// maximalMarginalRelevance greedily selects up to k candidates, each step
// balancing similarity to the query against similarity to what is already
// selected. lambda = 1 - diversity.
func maximalMarginalRelevance(candidates []ScoredPassage, k int, diversity float64) []ScoredPassage {
	if len(candidates) <= 1 || diversity == 0 {
		if len(candidates) > k {
			return candidates[:k]
		}
		return candidates
	}

	lambda := 1.0 - diversity
	selected := make([]ScoredPassage, 0, k)
	remaining := make([]int, len(candidates))
	for i := range remaining {
		remaining[i] = i
	}

	for len(selected) < k && len(remaining) > 0 {
		bestAt := -1
		bestScore := math.Inf(-1)

		for ri, ci := range remaining {
			relevance := candidates[ci].Score
			redundancy := 0.0
			for _, sel := range selected {
				sim := cosineSimilarity(candidates[ci].embedding, sel.embedding)
				if sim > redundancy {
					redundancy = sim
				}
			}
			score := lambda*relevance - (1-lambda)*redundancy
			if score > bestScore {
				bestScore = score
				bestAt = ri
			}
		}

		selected = append(selected, candidates[remaining[bestAt]])
		remaining = append(remaining[:bestAt], remaining[bestAt+1:]...)
	}
	return selected
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

func float32ToBytes(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func bytesToFloat32(b []byte) []float32 {
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v
}
