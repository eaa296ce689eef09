package core

import "context"

// Retriever is the adapter boundary to a search backend. Implementations
// return candidates in backend rank order, best first.
type Retriever interface {
	Retrieve(ctx context.Context, rctx Context, topK int) ([]ScoredDocument, error)
}

// Reranker maps a batch of pool items and a strategy tag to new scores.
// Result keys must be a subset of the input ids; an absent id means the
// reranker had nothing for it and the Controller drops it.
type Reranker interface {
	Rerank(ctx context.Context, items []*PoolItem, strategy string, rctx Context) (map[string]float64, error)
}

// Reformulator produces query variants, excluding the original query.
type Reformulator interface {
	Generate(ctx context.Context, rctx Context) ([]string, error)
}

// Estimator assigns priority values to eligible candidates. Implementations
// must be pure: no mutation of the pool, tracker or context, and
// deterministic for identical inputs. The returned domain must be a subset
// of the currently eligible ids; absent ids keep their previous priority.
type Estimator interface {
	Value(pool *CandidatePool, rctx Context) map[string]float64
}

// Scheduler proposes the next batch to rerank, or nil to stop the loop.
// Implementations are pure: they consume a budget snapshot, never the live
// tracker.
type Scheduler interface {
	SelectBatch(pool *CandidatePool, view RemainingView) *BatchProposal
}

// Assembler selects the final token-bounded subsequence from the active
// items (already ordered by final score). It reports the token count of the
// selection so the Controller can charge it.
type Assembler interface {
	Assemble(items []*PoolItem, view RemainingView, rctx Context) (docs []ScoredDocument, tokens float64)
}

// Feedback is an optional stop-condition plugin polled at the head of every
// loop iteration. A true result breaks the loop with the reason recorded in
// the trace.
type Feedback interface {
	ShouldStop(stats PoolStats, view RemainingView, estimates map[string]float64) (bool, string)
}
