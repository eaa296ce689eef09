package core

import (
	"time"

	"github.com/google/uuid"
)

// TraceEvent is a single structured log entry for decision debugging.
type TraceEvent struct {
	Timestamp time.Time      `json:"timestamp"`
	Component string         `json:"component"`
	Action    string         `json:"action"`
	Details   map[string]any `json:"details,omitempty"`
}

// Trace actions the Controller emits. The event stream is sufficient to
// reconstruct every state transition of a run.
const (
	ActionRetrieve          = "retrieve"
	ActionReformulate       = "reformulate"
	ActionReformulateFailed = "reformulate_failed"
	ActionEstimate          = "estimate"
	ActionProposeBatch      = "propose_batch"
	ActionNoProposal        = "no_proposal"
	ActionRerankBatch       = "rerank_batch"
	ActionRerankError       = "rerank_error"
	ActionBudgetConsume     = "budget_consume"
	ActionBudgetDeny        = "budget_deny"
	ActionAssembly          = "assembly"
	ActionLoopExit          = "loop_exit"
	ActionPoolInit          = "pool_init"
	ActionPoolWarning       = "pool_warning"
	ActionFeedbackStop      = "feedback_stop"
	ActionCancelled         = "cancelled"
	ActionRetrieveError     = "retrieve_error"
)

// Trace is the append-only execution history of one run. It is written only
// by the Controller (the tracker writes through the one it was given at
// construction) and read after the run completes.
type Trace struct {
	QueryID string       `json:"query_id"`
	Events  []TraceEvent `json:"events"`
}

// NewTrace creates an empty trace with a fresh run identifier.
func NewTrace() *Trace {
	return &Trace{QueryID: uuid.NewString()}
}

// Add appends an event. Details may be nil.
func (t *Trace) Add(component, action string, details map[string]any) {
	t.Events = append(t.Events, TraceEvent{
		Timestamp: time.Now(),
		Component: component,
		Action:    action,
		Details:   details,
	})
}

// Find returns all events with the given action, in append order.
func (t *Trace) Find(action string) []TraceEvent {
	var out []TraceEvent
	for _, e := range t.Events {
		if e.Action == action {
			out = append(out, e)
		}
	}
	return out
}
