package core

// ScoredDocument is the atomic unit of content returned by a retriever and
// handed back to the caller after assembly.
type ScoredDocument struct {
	ID       string         `json:"id"`
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata,omitempty"`
	Score    float64        `json:"score"`
}

// ItemState tracks where a pool item is in its lifecycle.
type ItemState string

const (
	StateCandidate ItemState = "candidate" // eligible for scheduling
	StateInFlight  ItemState = "in_flight" // currently moving through a reranker
	StateReranked  ItemState = "reranked"  // final reranker score available
	StateDropped   ItemState = "dropped"   // excluded from final results
)

// Cost describes the expected or actual consumption of a single operation,
// keyed by resource name. Resource names the engine hard-stops on are
// ResourceTokens, ResourceRerankDocs, ResourceRerankCalls and
// ResourceLatencyMS; any other key is accounted but advisory.
type Cost map[string]float64

// Reserved resource names.
const (
	ResourceTokens         = "tokens"
	ResourceRerankDocs     = "rerank_docs"
	ResourceRerankCalls    = "rerank_calls"
	ResourceReformulations = "reformulations"
	ResourceLatencyMS      = "latency_ms"
)

// BatchProposal is the Scheduler's command for the next loop iteration.
type BatchProposal struct {
	DocIDs           []string
	Strategy         string
	ExpectedCost     Cost
	EstimatedUtility float64
}

// ControllerOutput is the final artifact returned to the caller.
type ControllerOutput struct {
	Query            string             `json:"query"`
	Documents        []ScoredDocument   `json:"documents"`
	Trace            *Trace             `json:"trace"`
	FinalBudgetState map[string]float64 `json:"final_budget_state"`
}

// Context carries the per-request values every component receives: the query
// under execution, the live tracker (held only by the Controller; pure
// components see snapshots) and free-form metadata.
type Context struct {
	Query    string
	Tracker  *CostTracker
	Metadata map[string]any
}

// WithQuery returns a copy of the context with the query replaced. The
// receiver is never mutated; reformulated queries get their own context.
func (c Context) WithQuery(q string) Context {
	c.Query = q
	return c
}
