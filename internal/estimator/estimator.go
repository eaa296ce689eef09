// Package estimator holds the pure valuation components that decide how
// promising each eligible candidate looks before any reranker is paid.
package estimator

import (
	"ragtune/internal/core"
	"ragtune/internal/textsim"
)

// Baseline values every eligible candidate at its best retrieval score.
type Baseline struct{}

// NewBaseline returns the identity estimator.
func NewBaseline() *Baseline {
	return &Baseline{}
}

// Value implements core.Estimator.
func (e *Baseline) Value(pool *core.CandidatePool, _ core.Context) map[string]float64 {
	out := make(map[string]float64)
	for _, it := range pool.Eligible() {
		out[it.DocID] = maxSource(it)
	}
	return out
}

// Similarity boosts candidates that look like the reranker's winners so far.
// The boost is lexical overlap against winning content, bounded in [0, 1]
// and scaled by Weight, added on top of the retrieval baseline. With no
// winners yet it degenerates to the baseline.
type Similarity struct {
	WinnerThreshold float64 // reranker score that makes an item a winner
	Weight          float64 // scale of the boost, in (0, 1]
}

// NewSimilarity returns a similarity estimator with the given thresholds;
// non-positive arguments fall back to 0.8 and 1.0.
func NewSimilarity(winnerThreshold, weight float64) *Similarity {
	if winnerThreshold <= 0 {
		winnerThreshold = 0.8
	}
	if weight <= 0 {
		weight = 1.0
	}
	return &Similarity{WinnerThreshold: winnerThreshold, Weight: weight}
}

// Value implements core.Estimator.
func (e *Similarity) Value(pool *core.CandidatePool, _ core.Context) map[string]float64 {
	var winners []*core.PoolItem
	for _, it := range pool.All() {
		if it.State == core.StateReranked && it.RerankerScore != nil && *it.RerankerScore >= e.WinnerThreshold {
			winners = append(winners, it)
		}
	}

	out := make(map[string]float64)
	for _, it := range pool.Eligible() {
		v := maxSource(it)
		if len(winners) > 0 {
			best := 0.0
			for _, w := range winners {
				if s := textsim.TokenJaccard(it.Content, w.Content); s > best {
					best = s
				}
			}
			v += e.Weight * best
		}
		out[it.DocID] = v
	}
	return out
}

// MergeRule selects how a Composite combines sub-estimator outputs.
type MergeRule string

const (
	MergeMean        MergeRule = "mean"
	MergeMax         MergeRule = "max"
	MergePessimistic MergeRule = "pessimistic" // min wins; a low vote gates
)

// Composite runs sub-estimators in declaration order and merges their
// outputs per the rule. Ids missing from a sub-estimator's output simply do
// not vote for that id.
type Composite struct {
	subs []core.Estimator
	rule MergeRule
}

// NewComposite builds a composite; an unknown rule falls back to mean.
func NewComposite(subs []core.Estimator, rule MergeRule) *Composite {
	switch rule {
	case MergeMean, MergeMax, MergePessimistic:
	default:
		rule = MergeMean
	}
	return &Composite{subs: subs, rule: rule}
}

// Value implements core.Estimator.
func (e *Composite) Value(pool *core.CandidatePool, rctx core.Context) map[string]float64 {
	sums := make(map[string]float64)
	counts := make(map[string]int)
	merged := make(map[string]float64)

	for _, sub := range e.subs {
		for id, v := range sub.Value(pool, rctx) {
			switch e.rule {
			case MergeMax:
				if cur, ok := merged[id]; !ok || v > cur {
					merged[id] = v
				}
			case MergePessimistic:
				if cur, ok := merged[id]; !ok || v < cur {
					merged[id] = v
				}
			default:
				sums[id] += v
				counts[id]++
			}
		}
	}
	if e.rule == MergeMean {
		for id, s := range sums {
			merged[id] = s / float64(counts[id])
		}
	}
	return merged
}

func maxSource(it *core.PoolItem) float64 {
	max := 0.0
	first := true
	for _, s := range it.Sources {
		if first || s > max {
			max = s
			first = false
		}
	}
	return max
}
