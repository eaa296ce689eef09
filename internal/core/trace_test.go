package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTraceAppendsInOrder(t *testing.T) {
	trace := NewTrace()
	require.NotEmpty(t, trace.QueryID)

	trace.Add("controller", ActionPoolInit, map[string]any{"count": 3})
	trace.Add("scheduler", ActionNoProposal, nil)

	require.Len(t, trace.Events, 2)
	assert.Equal(t, ActionPoolInit, trace.Events[0].Action)
	assert.Equal(t, ActionNoProposal, trace.Events[1].Action)
	assert.Equal(t, 3, trace.Events[0].Details["count"])
}

func TestTraceFind(t *testing.T) {
	trace := NewTrace()
	trace.Add("budget", ActionBudgetConsume, map[string]any{"resource": "tokens"})
	trace.Add("budget", ActionBudgetDeny, nil)
	trace.Add("budget", ActionBudgetConsume, map[string]any{"resource": "rerank_docs"})

	consumes := trace.Find(ActionBudgetConsume)
	require.Len(t, consumes, 2)
	assert.Equal(t, "tokens", consumes[0].Details["resource"])
	assert.Empty(t, trace.Find(ActionRerankError))
}
