// Package scheduler holds the pure policy components that decide which
// candidates are worth paying to rerank next, and with which tier.
package scheduler

import (
	"math"
	"sort"

	"ragtune/internal/core"
)

// Strategy tags the schedulers emit. The Controller passes them through to
// the Reranker without interpretation.
const (
	StrategyCrossEncoder = "cross_encoder"
	StrategyLLM          = "llm"
)

// Batch proposes fixed-size batches of the highest-priority candidates,
// escalating from the cheap tier to the expensive one when the pool thins
// out or the top candidates become too close to call.
type Batch struct {
	BatchSize         int     // target batch size
	CheapStrategy     string  // tier used by default
	ExpensiveStrategy string  // tier used after escalation
	EscalateBelow     int     // escalate when fewer eligible remain; 0 disables
	ConfidenceGap     float64 // escalate when top-2 priority gap is below this; 0 disables
	CheapTokensPerDoc float64 // expected token cost per doc on the cheap tier
	LLMTokensPerDoc   float64 // expected token cost per doc on the expensive tier
}

// NewBatch returns a scheduler with the defaults the engine ships with.
func NewBatch(batchSize int) *Batch {
	if batchSize <= 0 {
		batchSize = 5
	}
	return &Batch{
		BatchSize:         batchSize,
		CheapStrategy:     StrategyCrossEncoder,
		ExpensiveStrategy: StrategyLLM,
		ConfidenceGap:     0.05,
		LLMTokensPerDoc:   256,
	}
}

// SelectBatch implements core.Scheduler. Candidates are ranked by priority
// desc, initial rank asc, doc id asc; this ordering is what makes two runs
// with identical inputs identical.
func (s *Batch) SelectBatch(pool *core.CandidatePool, view core.RemainingView) *core.BatchProposal {
	eligible := pool.Eligible()
	if len(eligible) == 0 {
		return nil
	}
	if view.Remaining(core.ResourceRerankCalls) < 1 {
		return nil
	}

	ranked := make([]*core.PoolItem, len(eligible))
	copy(ranked, eligible)
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].PriorityValue != ranked[j].PriorityValue {
			return ranked[i].PriorityValue > ranked[j].PriorityValue
		}
		if ranked[i].InitialRank != ranked[j].InitialRank {
			return ranked[i].InitialRank < ranked[j].InitialRank
		}
		return ranked[i].DocID < ranked[j].DocID
	})

	size := s.BatchSize
	if size > len(ranked) {
		size = len(ranked)
	}
	if docs := view.Remaining(core.ResourceRerankDocs); !math.IsInf(docs, 1) && float64(size) > docs {
		size = int(docs)
	}
	if size <= 0 {
		return nil
	}

	strategy := s.CheapStrategy
	if s.escalate(ranked) {
		strategy = s.ExpensiveStrategy
	}
	tokensPerDoc := s.CheapTokensPerDoc
	if strategy == s.ExpensiveStrategy {
		tokensPerDoc = s.LLMTokensPerDoc
	}

	ids := make([]string, size)
	utility := 0.0
	for i := 0; i < size; i++ {
		ids[i] = ranked[i].DocID
		utility += ranked[i].PriorityValue
	}

	return &core.BatchProposal{
		DocIDs:   ids,
		Strategy: strategy,
		ExpectedCost: core.Cost{
			core.ResourceRerankDocs:  float64(size),
			core.ResourceRerankCalls: 1,
			core.ResourceTokens:      float64(size) * tokensPerDoc,
		},
		EstimatedUtility: utility / float64(size),
	}
}

// escalate decides whether the expensive tier is warranted: the eligible
// pool has thinned below the threshold, or the top two candidates are within
// the confidence gap and a cheap scorer cannot separate them.
func (s *Batch) escalate(ranked []*core.PoolItem) bool {
	if s.EscalateBelow > 0 && len(ranked) < s.EscalateBelow {
		return true
	}
	if s.ConfidenceGap > 0 && len(ranked) >= 2 {
		gap := ranked[0].PriorityValue - ranked[1].PriorityValue
		if gap >= 0 && gap < s.ConfidenceGap && ranked[0].PriorityValue > 0 {
			return true
		}
	}
	return false
}

// Composite polls sub-schedulers in declaration order. With the pessimistic
// gate, any sub-scheduler voting to stop (nil) stops the composite;
// otherwise the first non-nil proposal wins.
type Composite struct {
	subs        []core.Scheduler
	pessimistic bool
}

// NewComposite builds a composite scheduler.
func NewComposite(subs []core.Scheduler, pessimistic bool) *Composite {
	return &Composite{subs: subs, pessimistic: pessimistic}
}

// SelectBatch implements core.Scheduler.
func (s *Composite) SelectBatch(pool *core.CandidatePool, view core.RemainingView) *core.BatchProposal {
	var first *core.BatchProposal
	for _, sub := range s.subs {
		p := sub.SelectBatch(pool, view)
		if p == nil {
			if s.pessimistic {
				return nil
			}
			continue
		}
		if first == nil {
			first = p
		}
		if !s.pessimistic {
			return p
		}
	}
	return first
}
