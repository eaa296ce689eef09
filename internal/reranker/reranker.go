// Package reranker holds the fallible scorers the Controller pays for:
// deterministic local tiers and a listwise LLM tier.
package reranker

import (
	"context"
	"strings"

	"ragtune/internal/core"
	"ragtune/internal/textsim"
)

// Noop scores every item with its current best retrieval score. Useful as a
// pipeline placeholder.
type Noop struct{}

// NewNoop returns the identity reranker.
func NewNoop() *Noop {
	return &Noop{}
}

// Rerank implements core.Reranker.
func (r *Noop) Rerank(_ context.Context, items []*core.PoolItem, _ string, _ core.Context) (map[string]float64, error) {
	out := make(map[string]float64, len(items))
	for _, it := range items {
		best := 0.0
		for _, s := range it.Sources {
			if s > best {
				best = s
			}
		}
		out[it.DocID] = best
	}
	return out, nil
}

// Simulated scores by query containment: documents containing the query text
// score high, everything else low. A test double for exercising the feedback
// loop without a model.
type Simulated struct {
	MatchScore float64
	MissScore  float64
}

// NewSimulated returns the containment-based scorer with the stock 0.95/0.3
// split.
func NewSimulated() *Simulated {
	return &Simulated{MatchScore: 0.95, MissScore: 0.3}
}

// Rerank implements core.Reranker.
func (r *Simulated) Rerank(_ context.Context, items []*core.PoolItem, _ string, rctx core.Context) (map[string]float64, error) {
	q := strings.ToLower(rctx.Query)
	out := make(map[string]float64, len(items))
	for _, it := range items {
		if strings.Contains(strings.ToLower(it.Content), q) {
			out[it.DocID] = r.MatchScore
		} else {
			out[it.DocID] = r.MissScore
		}
	}
	return out, nil
}

// Lexical is the cheap deterministic tier: token-overlap similarity between
// query and content, in [0, 1].
type Lexical struct{}

// NewLexical returns the overlap scorer.
func NewLexical() *Lexical {
	return &Lexical{}
}

// Rerank implements core.Reranker.
func (r *Lexical) Rerank(_ context.Context, items []*core.PoolItem, _ string, rctx core.Context) (map[string]float64, error) {
	out := make(map[string]float64, len(items))
	for _, it := range items {
		out[it.DocID] = textsim.TokenJaccard(rctx.Query, it.Content)
	}
	return out, nil
}
