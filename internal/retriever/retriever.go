// Package retriever holds the adapter boundary to search backends: an
// in-process corpus, the local FTS5 index, and an embedded vector store.
package retriever

import (
	"context"
	"sort"
	"strings"

	"ragtune/internal/core"
	"ragtune/internal/index"
)

// Memory serves a fixed in-process corpus. Matching is case-insensitive
// substring containment; when nothing matches, the whole corpus is returned
// so downstream stages still have candidates to work with.
type Memory struct {
	docs []core.ScoredDocument
}

// NewMemory seeds the retriever with a corpus.
func NewMemory(docs []core.ScoredDocument) *Memory {
	return &Memory{docs: docs}
}

// Retrieve implements core.Retriever.
func (r *Memory) Retrieve(_ context.Context, rctx core.Context, topK int) ([]core.ScoredDocument, error) {
	q := strings.ToLower(rctx.Query)
	var hits []core.ScoredDocument
	for _, d := range r.docs {
		if strings.Contains(strings.ToLower(d.Content), q) {
			hits = append(hits, d)
		}
	}
	if len(hits) == 0 {
		hits = append(hits, r.docs...)
	}
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ID < hits[j].ID
	})
	if topK > 0 && len(hits) > topK {
		hits = hits[:topK]
	}
	return hits, nil
}

// SQLite retrieves from the local FTS5 index with BM25 ranking.
type SQLite struct {
	store *index.Store
}

// NewSQLite wraps an open index.
func NewSQLite(store *index.Store) *SQLite {
	return &SQLite{store: store}
}

// Retrieve implements core.Retriever.
func (r *SQLite) Retrieve(_ context.Context, rctx core.Context, topK int) ([]core.ScoredDocument, error) {
	return r.store.Search(rctx.Query, topK)
}
