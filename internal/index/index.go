// Package index is the local document index behind the sqlite retriever and
// the `index` CLI command: an FTS5 table of (doc_id, content, metadata).
package index

import (
	"bufio"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"ragtune/internal/core"
)

const schema = `
CREATE VIRTUAL TABLE IF NOT EXISTS documents USING fts5(
	doc_id,
	content,
	metadata UNINDEXED
);
`

// Store wraps the FTS5 database.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the index at path. Use ":memory:" for an
// ephemeral index.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open index %s: %w", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create index schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Add inserts documents in one transaction.
func (s *Store) Add(docs []core.ScoredDocument) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	stmt, err := tx.Prepare(`INSERT INTO documents (doc_id, content, metadata) VALUES (?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, doc := range docs {
		meta := "{}"
		if len(doc.Metadata) > 0 {
			raw, err := json.Marshal(doc.Metadata)
			if err != nil {
				tx.Rollback()
				return fmt.Errorf("failed to encode metadata for %s: %w", doc.ID, err)
			}
			meta = string(raw)
		}
		if _, err := stmt.Exec(doc.ID, doc.Content, meta); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to insert %s: %w", doc.ID, err)
		}
	}
	return tx.Commit()
}

// Search runs a BM25-ranked full-text query. Scores are negated rank so
// higher is better, matching the engine's score convention.
func (s *Store) Search(query string, topK int) ([]core.ScoredDocument, error) {
	match := ftsQuery(query)
	if match == "" {
		return nil, nil
	}
	rows, err := s.db.Query(
		`SELECT doc_id, content, metadata, rank FROM documents WHERE documents MATCH ? ORDER BY rank LIMIT ?`,
		match, topK,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to search index: %w", err)
	}
	defer rows.Close()

	var out []core.ScoredDocument
	for rows.Next() {
		var doc core.ScoredDocument
		var meta string
		var rank float64
		if err := rows.Scan(&doc.ID, &doc.Content, &meta, &rank); err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		if meta != "" && meta != "{}" {
			if err := json.Unmarshal([]byte(meta), &doc.Metadata); err != nil {
				return nil, fmt.Errorf("failed to decode metadata for %s: %w", doc.ID, err)
			}
		}
		doc.Score = -rank
		out = append(out, doc)
	}
	return out, rows.Err()
}

// Count returns the number of indexed documents.
func (s *Store) Count() (int, error) {
	var n int
	if err := s.db.QueryRow(`SELECT count(*) FROM documents`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count documents: %w", err)
	}
	return n, nil
}

// ftsQuery quotes each term so user input cannot break FTS5 syntax.
func ftsQuery(query string) string {
	fields := strings.Fields(query)
	quoted := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.ReplaceAll(f, `"`, "")
		if f != "" {
			quoted = append(quoted, `"`+f+`"`)
		}
	}
	return strings.Join(quoted, " ")
}

// ReadJSONL loads documents from a JSON-lines file. Each line needs an "id";
// "content", "metadata" and "score" are optional.
func ReadJSONL(path string) ([]core.ScoredDocument, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	var docs []core.ScoredDocument
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 1024*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		var doc core.ScoredDocument
		if err := json.Unmarshal([]byte(text), &doc); err != nil {
			return nil, fmt.Errorf("%s line %d: %w", path, line, err)
		}
		if doc.ID == "" {
			return nil, fmt.Errorf("%s line %d: missing id", path, line)
		}
		docs = append(docs, doc)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return docs, nil
}
