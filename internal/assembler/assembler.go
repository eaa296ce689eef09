// Package assembler selects the final token-bounded subsequence handed back
// to the caller.
package assembler

import (
	"ragtune/internal/core"
	"ragtune/internal/tokens"
)

// Greedy walks the active items in final-score order and admits each
// document whose token count still fits the remaining token allowance.
// Documents that do not fit are skipped, not truncated.
type Greedy struct {
	counter *tokens.Counter
}

// NewGreedy builds the assembler around a token counter.
func NewGreedy(counter *tokens.Counter) *Greedy {
	return &Greedy{counter: counter}
}

// Assemble implements core.Assembler. Items arrive already ordered by final
// score desc, initial rank asc, doc id asc; that order is preserved in the
// output.
func (a *Greedy) Assemble(items []*core.PoolItem, view core.RemainingView, _ core.Context) ([]core.ScoredDocument, float64) {
	allowance := view.Remaining(core.ResourceTokens)
	used := 0.0
	var out []core.ScoredDocument
	for _, it := range items {
		cost := float64(a.counter.Count(it.Content))
		if used+cost > allowance {
			continue
		}
		used += cost
		out = append(out, core.ScoredDocument{
			ID:       it.DocID,
			Content:  it.Content,
			Metadata: it.Metadata,
			Score:    it.FinalScore(),
		})
	}
	return out, used
}
