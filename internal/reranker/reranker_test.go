package reranker

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragtune/internal/core"
)

func items(ids ...string) []*core.PoolItem {
	out := make([]*core.PoolItem, len(ids))
	for i, id := range ids {
		out[i] = &core.PoolItem{
			DocID:   id,
			Content: "content of " + id,
			Sources: map[string]float64{"original": 0.5},
		}
	}
	return out
}

func TestNoopReturnsBestSource(t *testing.T) {
	batch := items("a", "b")
	batch[1].Sources["rewrite_0"] = 0.8

	scores, err := NewNoop().Rerank(context.Background(), batch, "x", core.Context{Query: "q"})
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"a": 0.5, "b": 0.8}, scores)
}

func TestSimulatedScoresByContainment(t *testing.T) {
	batch := items("hit", "miss")
	batch[0].Content = "this mentions the magic word"

	scores, err := NewSimulated().Rerank(context.Background(), batch, "x", core.Context{Query: "Magic Word"})
	require.NoError(t, err)
	assert.Equal(t, 0.95, scores["hit"])
	assert.Equal(t, 0.3, scores["miss"])
}

func TestLexicalScoresOverlap(t *testing.T) {
	batch := items("near", "far")
	batch[0].Content = "budget aware retrieval loop"
	batch[1].Content = "unrelated cooking recipe"

	scores, err := NewLexical().Rerank(context.Background(), batch, "x", core.Context{Query: "budget aware retrieval"})
	require.NoError(t, err)
	assert.Greater(t, scores["near"], scores["far"])
	assert.GreaterOrEqual(t, scores["far"], 0.0)
	assert.LessOrEqual(t, scores["near"], 1.0)
}

type fakeChat struct {
	response string
	err      error
	calls    int
	lastUser string
}

func (f *fakeChat) Chat(_ context.Context, _, user string) (string, error) {
	f.calls++
	f.lastUser = user
	return f.response, f.err
}

func TestLLMParsesScores(t *testing.T) {
	chat := &fakeChat{response: `{"a": 0.9, "b": 0.2}`}
	scores, err := NewLLM(chat).Rerank(context.Background(), items("a", "b"), "llm", core.Context{Query: "q"})
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"a": 0.9, "b": 0.2}, scores)
	assert.Contains(t, chat.lastUser, "[a]")
	assert.Contains(t, chat.lastUser, "Query: q")
}

func TestLLMToleratesCodeFences(t *testing.T) {
	chat := &fakeChat{response: "```json\n{\"a\": 0.7}\n```"}
	scores, err := NewLLM(chat).Rerank(context.Background(), items("a", "b"), "llm", core.Context{Query: "q"})
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"a": 0.7}, scores)
}

func TestLLMDiscardsForeignIDs(t *testing.T) {
	chat := &fakeChat{response: `{"a": 0.9, "ghost": 1.0}`}
	scores, err := NewLLM(chat).Rerank(context.Background(), items("a"), "llm", core.Context{Query: "q"})
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"a": 0.9}, scores)
}

func TestLLMTransportErrorSurfaces(t *testing.T) {
	chat := &fakeChat{err: errors.New("connection refused")}
	_, err := NewLLM(chat).Rerank(context.Background(), items("a"), "llm", core.Context{Query: "q"})
	assert.Error(t, err)
}

func TestLLMGarbageResponseSurfaces(t *testing.T) {
	chat := &fakeChat{response: "I cannot rate these documents."}
	_, err := NewLLM(chat).Rerank(context.Background(), items("a"), "llm", core.Context{Query: "q"})
	assert.Error(t, err)
}

func TestLLMEmptyBatchSkipsModelCall(t *testing.T) {
	chat := &fakeChat{response: `{}`}
	scores, err := NewLLM(chat).Rerank(context.Background(), nil, "llm", core.Context{Query: "q"})
	require.NoError(t, err)
	assert.Empty(t, scores)
	assert.Equal(t, 0, chat.calls)
}
