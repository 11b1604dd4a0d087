// Package index stores embedded manual chunks in a SQLite file and answers
// family-scoped similarity searches over them.
package index

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
	log "github.com/sirupsen/logrus"

	"fissler.com/cooker-assistant/internal/family"
	"fissler.com/cooker-assistant/internal/utils"
)

var ErrNotFound = errors.New("manual index not found")

type Chunk struct {
	ID        int64
	Content   string
	Source    string
	Family    family.Family
	Embedding []float32
}

type ScoredChunk struct {
	Chunk
	Similarity float32
}

type Index struct {
	db   *sql.DB
	path string
}

// Create initialises an empty index at path. An existing file at path is
// removed first.
func Create(path string) (*Index, error) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to remove previous index %s: %w", path, err)
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open index: %w", err)
	}
	schema := `
    CREATE TABLE chunks (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        content TEXT NOT NULL,
        source TEXT NOT NULL,
        family TEXT NOT NULL,
        embedding_json TEXT NOT NULL
    );
    CREATE INDEX idx_chunks_family ON chunks (family);
    `
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize index schema: %w", err)
	}
	return &Index{db: db, path: path}, nil
}

// Open opens a previously built index read-only. It returns ErrNotFound when
// nothing exists at path.
func Open(path string) (*Index, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("failed to stat index %s: %w", path, err)
	}
	db, err := sql.Open("sqlite3", "file:"+path+"?mode=ro")
	if err != nil {
		return nil, fmt.Errorf("failed to open index: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping index: %w", err)
	}
	return &Index{db: db, path: path}, nil
}

func (ix *Index) Path() string { return ix.path }

func (ix *Index) Close() error {
	return ix.db.Close()
}

// Add stores chunks in a single transaction, filling in their IDs.
func (ix *Index) Add(ctx context.Context, chunks []Chunk) error {
	tx, err := ix.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin index transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, "INSERT INTO chunks (content, source, family, embedding_json) VALUES (?, ?, ?, ?)")
	if err != nil {
		return fmt.Errorf("failed to prepare chunk insert: %w", err)
	}
	defer stmt.Close()

	for i := range chunks {
		embeddingBytes, err := json.Marshal(chunks[i].Embedding)
		if err != nil {
			return fmt.Errorf("failed to marshal embedding: %w", err)
		}
		res, err := stmt.ExecContext(ctx, chunks[i].Content, chunks[i].Source, string(chunks[i].Family), string(embeddingBytes))
		if err != nil {
			return fmt.Errorf("failed to insert chunk from %s: %w", chunks[i].Source, err)
		}
		chunks[i].ID, _ = res.LastInsertId()
	}
	return tx.Commit()
}

// Search returns up to k chunks tagged with fam, most similar to vector first.
func (ix *Index) Search(ctx context.Context, vector []float32, k int, fam family.Family) ([]ScoredChunk, error) {
	if k <= 0 {
		return nil, nil
	}
	rows, err := ix.db.QueryContext(ctx, "SELECT id, content, source, family, embedding_json FROM chunks WHERE family = ? ORDER BY id", string(fam))
	if err != nil {
		return nil, fmt.Errorf("failed to query chunks: %w", err)
	}
	defer rows.Close()

	var scored []ScoredChunk
	for rows.Next() {
		var c Chunk
		var label, embeddingJSON string
		if err := rows.Scan(&c.ID, &c.Content, &c.Source, &label, &embeddingJSON); err != nil {
			return nil, fmt.Errorf("failed to scan chunk row: %w", err)
		}
		c.Family = family.Family(label)
		if err := json.Unmarshal([]byte(embeddingJSON), &c.Embedding); err != nil || len(c.Embedding) == 0 {
			log.WithField("chunk", c.ID).WithError(err).Warn("skipping chunk without a usable embedding")
			continue
		}
		sim, err := utils.CosineSimilarity(vector, c.Embedding)
		if err != nil {
			return nil, fmt.Errorf("chunk %d: %w", c.ID, err)
		}
		scored = append(scored, ScoredChunk{Chunk: c, Similarity: sim})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate chunks: %w", err)
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Similarity > scored[j].Similarity
	})
	if len(scored) > k {
		scored = scored[:k]
	}
	return scored, nil
}

// CountByFamily reports how many chunks each family holds.
func (ix *Index) CountByFamily(ctx context.Context) (map[family.Family]int, error) {
	rows, err := ix.db.QueryContext(ctx, "SELECT family, COUNT(*) FROM chunks GROUP BY family")
	if err != nil {
		return nil, fmt.Errorf("failed to count chunks: %w", err)
	}
	defer rows.Close()

	counts := make(map[family.Family]int)
	for rows.Next() {
		var fam string
		var n int
		if err := rows.Scan(&fam, &n); err != nil {
			return nil, fmt.Errorf("failed to scan chunk count: %w", err)
		}
		counts[family.Family(fam)] = n
	}
	return counts, rows.Err()
}
