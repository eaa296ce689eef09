package reranker

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"ragtune/internal/core"
	"ragtune/internal/llm"
)

const llmSystemPrompt = `You are a relevance judge. Given a query and a numbered list of documents, score each document's relevance to the query from 0.0 (irrelevant) to 1.0 (perfectly relevant). Respond with ONLY a JSON object mapping document id to score, e.g. {"doc1": 0.9, "doc2": 0.2}.`

// maxSnippetLen bounds how much of each document goes into the prompt.
const maxSnippetLen = 1200

// ChatClient is the model call the LLM reranker depends on.
type ChatClient interface {
	Chat(ctx context.Context, system, user string) (string, error)
}

// LLM is the expensive listwise tier: one chat call scores the whole batch.
// Ids the model omits are treated as dropped by the Controller; ids the
// model invents are discarded here.
type LLM struct {
	client ChatClient
}

// NewLLM builds the listwise reranker on top of a chat client.
func NewLLM(client ChatClient) *LLM {
	return &LLM{client: client}
}

// Rerank implements core.Reranker.
func (r *LLM) Rerank(ctx context.Context, items []*core.PoolItem, strategy string, rctx core.Context) (map[string]float64, error) {
	if len(items) == 0 {
		return map[string]float64{}, nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Query: %s\n\nDocuments:\n", rctx.Query)
	for _, it := range items {
		content := it.Content
		if len(content) > maxSnippetLen {
			content = content[:maxSnippetLen]
		}
		fmt.Fprintf(&b, "[%s] %s\n\n", it.DocID, content)
	}

	raw, err := r.client.Chat(ctx, llmSystemPrompt, b.String())
	if err != nil {
		return nil, fmt.Errorf("llm rerank (%s): %w", strategy, err)
	}

	payload, ok := llm.ExtractJSONObject(raw)
	if !ok {
		return nil, fmt.Errorf("llm rerank (%s): no JSON object in response", strategy)
	}
	var scores map[string]float64
	if err := json.Unmarshal([]byte(payload), &scores); err != nil {
		return nil, fmt.Errorf("llm rerank (%s): parse response: %w", strategy, err)
	}

	valid := make(map[string]bool, len(items))
	for _, it := range items {
		valid[it.DocID] = true
	}
	out := make(map[string]float64, len(scores))
	for id, s := range scores {
		if valid[id] {
			out[id] = s
		}
	}
	return out, nil
}
