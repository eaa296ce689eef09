package retriever

import (
	"context"
	"fmt"
	"strings"

	chromem "github.com/philippgille/chromem-go"

	"ragtune/internal/core"
)

// Chromem retrieves by embedding similarity from an embedded chromem-go
// vector store.
type Chromem struct {
	collection *chromem.Collection
}

// ChromemConfig locates the store and its embedding endpoint.
type ChromemConfig struct {
	PersistPath string // empty = in-memory
	Collection  string
	BaseURL     string // OpenAI-compatible embeddings endpoint
	APIKey      string
	Model       string
}

// NewChromem opens (or creates) the configured collection.
func NewChromem(cfg ChromemConfig) (*Chromem, error) {
	if cfg.Collection == "" {
		cfg.Collection = "default"
	}

	var db *chromem.DB
	var err error
	if cfg.PersistPath != "" {
		db, err = chromem.NewPersistentDB(cfg.PersistPath, false)
		if err != nil {
			return nil, fmt.Errorf("failed to open vector store: %w", err)
		}
	} else {
		db = chromem.NewDB()
	}

	var embed chromem.EmbeddingFunc
	if cfg.BaseURL != "" {
		embed = chromem.NewEmbeddingFuncOpenAICompat(cfg.BaseURL, cfg.APIKey, cfg.Model, nil)
	}
	collection, err := db.GetOrCreateCollection(cfg.Collection, nil, embed)
	if err != nil {
		return nil, fmt.Errorf("failed to open collection %s: %w", cfg.Collection, err)
	}
	return &Chromem{collection: collection}, nil
}

// NewChromemFromCollection wraps an already-open collection.
func NewChromemFromCollection(collection *chromem.Collection) *Chromem {
	return &Chromem{collection: collection}
}

// Add indexes documents into the collection.
func (r *Chromem) Add(ctx context.Context, docs []core.ScoredDocument) error {
	for _, doc := range docs {
		meta := make(map[string]string, len(doc.Metadata))
		for k, v := range doc.Metadata {
			meta[k] = fmt.Sprint(v)
		}
		err := r.collection.AddDocument(ctx, chromem.Document{
			ID:       doc.ID,
			Content:  doc.Content,
			Metadata: meta,
		})
		if err != nil {
			return fmt.Errorf("failed to add document %s: %w", doc.ID, err)
		}
	}
	return nil
}

// Retrieve implements core.Retriever.
func (r *Chromem) Retrieve(ctx context.Context, rctx core.Context, topK int) ([]core.ScoredDocument, error) {
	if n := r.collection.Count(); topK > n {
		topK = n
	}
	if topK == 0 || strings.TrimSpace(rctx.Query) == "" {
		return nil, nil
	}
	results, err := r.collection.Query(ctx, rctx.Query, topK, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to query vector store: %w", err)
	}

	out := make([]core.ScoredDocument, 0, len(results))
	for _, res := range results {
		doc := core.ScoredDocument{
			ID:      res.ID,
			Content: res.Content,
			Score:   float64(res.Similarity),
		}
		if len(res.Metadata) > 0 {
			doc.Metadata = make(map[string]any, len(res.Metadata))
			for k, v := range res.Metadata {
				doc.Metadata[k] = v
			}
		}
		out = append(out, doc)
	}
	return out, nil
}
