package feedback

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"ragtune/internal/core"
)

func TestBudgetStopBelowFloor(t *testing.T) {
	f := NewBudgetStop(100)

	stop, reason := f.ShouldStop(core.PoolStats{}, core.RemainingView{core.ResourceTokens: 50}, nil)
	assert.True(t, stop)
	assert.NotEmpty(t, reason)

	stop, _ = f.ShouldStop(core.PoolStats{}, core.RemainingView{core.ResourceTokens: 500}, nil)
	assert.False(t, stop)
}

func TestBudgetStopUnboundedTokensNeverStops(t *testing.T) {
	f := NewBudgetStop(100)
	stop, _ := f.ShouldStop(core.PoolStats{}, core.RemainingView{}, nil)
	assert.False(t, stop)
}

func TestConvergenceNeedsTwoPolls(t *testing.T) {
	f := NewConvergence(0.01)
	estimates := map[string]float64{"a": 0.5, "b": 0.3}

	stop, _ := f.ShouldStop(core.PoolStats{}, core.RemainingView{}, estimates)
	assert.False(t, stop) // first poll only records

	stop, reason := f.ShouldStop(core.PoolStats{}, core.RemainingView{}, estimates)
	assert.True(t, stop)
	assert.NotEmpty(t, reason)
}

func TestConvergenceDetectsMovement(t *testing.T) {
	f := NewConvergence(0.01)

	stop, _ := f.ShouldStop(core.PoolStats{}, core.RemainingView{}, map[string]float64{"a": 0.5})
	assert.False(t, stop)

	stop, _ = f.ShouldStop(core.PoolStats{}, core.RemainingView{}, map[string]float64{"a": 0.9})
	assert.False(t, stop) // still moving

	stop, _ = f.ShouldStop(core.PoolStats{}, core.RemainingView{}, map[string]float64{"a": 0.9})
	assert.True(t, stop)
}

func TestConvergenceCountsDisappearedIDs(t *testing.T) {
	f := NewConvergence(0.01)

	stop, _ := f.ShouldStop(core.PoolStats{}, core.RemainingView{}, map[string]float64{"a": 0.5, "b": 0.9})
	assert.False(t, stop)

	// b left the eligible set with a large value: not converged yet
	stop, _ = f.ShouldStop(core.PoolStats{}, core.RemainingView{}, map[string]float64{"a": 0.5})
	assert.False(t, stop)
}
