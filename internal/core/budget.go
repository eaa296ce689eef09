package core

import (
	"math"
	"time"
)

// CostBudget declares per-resource limits for one request. Resources without
// an entry are unbounded.
type CostBudget struct {
	Limits map[string]float64
}

// hardStopResources are the resources whose exhaustion terminates the loop.
// User-defined keys are accounted but advisory.
var hardStopResources = []string{
	ResourceTokens,
	ResourceRerankDocs,
	ResourceRerankCalls,
	ResourceLatencyMS,
}

// RemainingView is an immutable snapshot of what is left of each budgeted
// resource. Mutating the returned map never affects the live tracker.
type RemainingView map[string]float64

// Remaining reports what is left of a resource; unbudgeted resources are
// unbounded.
func (v RemainingView) Remaining(resource string) float64 {
	if r, ok := v[resource]; ok {
		return r
	}
	return math.Inf(1)
}

// CostTracker is the request-scoped ledger of resource consumption. Only the
// Controller holds the live tracker; pure components receive RemainingView
// snapshots. Usage per resource is non-decreasing for the request lifetime.
type CostTracker struct {
	budget CostBudget
	used   map[string]float64
	trace  *Trace
	start  time.Time
	now    func() time.Time
}

// NewCostTracker starts the ledger. The wall clock starts immediately: the
// latency_ms resource measures elapsed time since this call.
func NewCostTracker(budget CostBudget, trace *Trace) *CostTracker {
	t := &CostTracker{
		budget: budget,
		used:   make(map[string]float64),
		trace:  trace,
		now:    time.Now,
	}
	t.start = t.now()
	return t
}

func (t *CostTracker) elapsedMS() float64 {
	return float64(t.now().Sub(t.start)) / float64(time.Millisecond)
}

// chargeLatency folds the current elapsed time into the ledger. Called on
// every check so latency behaves like a live resource.
func (t *CostTracker) chargeLatency() {
	if e := t.elapsedMS(); e > t.used[ResourceLatencyMS] {
		t.used[ResourceLatencyMS] = e
	}
}

// TryConsume adds amount to the resource if it fits within the limit and
// returns true; otherwise it records a budget_deny event and returns false.
// It never panics or errors on exhaustion. Consuming latency_ms with amount 0
// is the idiom for "has the deadline passed?". Negative amounts are ignored.
func (t *CostTracker) TryConsume(resource string, amount float64) bool {
	t.chargeLatency()
	if amount < 0 {
		amount = 0
	}
	if resource == ResourceLatencyMS {
		limit, bounded := t.budget.Limits[ResourceLatencyMS]
		if bounded && t.used[ResourceLatencyMS] >= limit {
			t.deny(resource, amount, "latency_exceeded")
			return false
		}
		return true
	}
	if limit, bounded := t.budget.Limits[resource]; bounded {
		if t.used[resource]+amount > limit {
			t.deny(resource, amount, "limit_reached")
			return false
		}
	}
	t.used[resource] += amount
	if amount > 0 {
		t.trace.Add("budget", ActionBudgetConsume, map[string]any{
			"resource": resource,
			"amount":   amount,
		})
	}
	return true
}

// Charge applies a cost unconditionally, after the work has already been
// done. The ledger may exceed a limit here; IsExhausted turns true on the
// next check and the Controller exits the loop. This is the single admitted
// over-charge per round.
func (t *CostTracker) Charge(cost Cost) {
	t.chargeLatency()
	for resource, amount := range cost {
		if amount <= 0 {
			continue
		}
		t.used[resource] += amount
		t.trace.Add("budget", ActionBudgetConsume, map[string]any{
			"resource": resource,
			"amount":   amount,
		})
	}
}

func (t *CostTracker) deny(resource string, amount float64, reason string) {
	t.trace.Add("budget", ActionBudgetDeny, map[string]any{
		"resource":  resource,
		"requested": amount,
		"reason":    reason,
	})
}

// RemainingView snapshots max(0, limit-used) for every budgeted resource.
func (t *CostTracker) RemainingView() RemainingView {
	t.chargeLatency()
	view := make(RemainingView, len(t.budget.Limits))
	for resource, limit := range t.budget.Limits {
		view[resource] = math.Max(0, limit-t.used[resource])
	}
	return view
}

// IsExhausted reports whether any hard-stop resource has nothing left.
func (t *CostTracker) IsExhausted() bool {
	t.chargeLatency()
	for _, resource := range hardStopResources {
		limit, bounded := t.budget.Limits[resource]
		if bounded && t.used[resource] >= limit {
			return true
		}
	}
	return false
}

// Snapshot returns the full final usage for inclusion in the output.
func (t *CostTracker) Snapshot() map[string]float64 {
	t.chargeLatency()
	out := make(map[string]float64, len(t.used))
	for resource, amount := range t.used {
		out[resource] = amount
	}
	return out
}
