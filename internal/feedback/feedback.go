// Package feedback holds stop-condition plugins polled by the Controller at
// the head of each loop iteration.
package feedback

import (
	"fmt"
	"math"

	"ragtune/internal/core"
)

// BudgetStop ends the loop when the remaining token budget falls below a
// floor, leaving room for assembly.
type BudgetStop struct {
	MinTokens float64
}

// NewBudgetStop builds the plugin; a non-positive floor defaults to 100.
func NewBudgetStop(minTokens float64) *BudgetStop {
	if minTokens <= 0 {
		minTokens = 100
	}
	return &BudgetStop{MinTokens: minTokens}
}

// ShouldStop implements core.Feedback.
func (f *BudgetStop) ShouldStop(_ core.PoolStats, view core.RemainingView, _ map[string]float64) (bool, string) {
	remaining := view.Remaining(core.ResourceTokens)
	if math.IsInf(remaining, 1) {
		return false, ""
	}
	if remaining < f.MinTokens {
		return true, fmt.Sprintf("token budget below floor (%.0f < %.0f)", remaining, f.MinTokens)
	}
	return false, ""
}

// Convergence ends the loop once the estimate landscape stops moving: the
// largest per-id change between consecutive polls falls below the
// threshold. Stateful by design; use one instance per run.
type Convergence struct {
	Threshold float64
	prev      map[string]float64
}

// NewConvergence builds the plugin; a non-positive threshold defaults to
// 0.01.
func NewConvergence(threshold float64) *Convergence {
	if threshold <= 0 {
		threshold = 0.01
	}
	return &Convergence{Threshold: threshold}
}

// ShouldStop implements core.Feedback.
func (f *Convergence) ShouldStop(_ core.PoolStats, _ core.RemainingView, estimates map[string]float64) (bool, string) {
	prev := f.prev
	f.prev = make(map[string]float64, len(estimates))
	for id, v := range estimates {
		f.prev[id] = v
	}
	if prev == nil || len(estimates) == 0 {
		return false, ""
	}

	delta := 0.0
	for id, v := range estimates {
		if d := math.Abs(v - prev[id]); d > delta {
			delta = d
		}
	}
	for id, v := range prev {
		if _, ok := estimates[id]; !ok && math.Abs(v) > delta {
			delta = math.Abs(v)
		}
	}
	if delta < f.Threshold {
		return true, fmt.Sprintf("estimates converged (max delta %.4f)", delta)
	}
	return false, ""
}
