// Package reformulator produces query variants for the supplemental
// retrieval fan-out.
package reformulator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"ragtune/internal/core"
	"ragtune/internal/llm"
	"ragtune/internal/textsim"
)

// nearDupThreshold is the case-folded similarity above which two variants
// count as the same query.
const nearDupThreshold = 0.8

// Identity produces no variants; the engine runs on the original query only.
type Identity struct{}

// NewIdentity returns the no-op reformulator.
func NewIdentity() *Identity {
	return &Identity{}
}

// Generate implements core.Reformulator.
func (r *Identity) Generate(_ context.Context, _ core.Context) ([]string, error) {
	return nil, nil
}

// ChatClient is the model call the LLM reformulator depends on.
type ChatClient interface {
	Chat(ctx context.Context, system, user string) (string, error)
}

const systemPrompt = `You rewrite search queries. Given a query, produce %d alternative phrasings that could retrieve complementary documents. Respond with ONLY a JSON array of strings, e.g. ["variant one", "variant two"].`

// LLM asks a model for variants and post-processes them: code fences and
// conversational wrapping tolerated, the original query removed, blanks
// dropped, near-duplicates filtered keeping first occurrence. An optional
// LRU memo serves repeated queries without a second model call; the memo is
// shared across requests and never participates in budget accounting.
type LLM struct {
	client ChatClient
	n      int
	memo   *lru.Cache[string, []string]
	logger *zap.Logger
}

// NewLLM builds the reformulator. memoSize <= 0 disables memoization.
// Logger may be nil.
func NewLLM(client ChatClient, n, memoSize int, logger *zap.Logger) *LLM {
	if n <= 0 {
		n = 2
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	var memo *lru.Cache[string, []string]
	if memoSize > 0 {
		// lru.New only fails on a non-positive size.
		memo, _ = lru.New[string, []string](memoSize)
	}
	return &LLM{client: client, n: n, memo: memo, logger: logger}
}

// Generate implements core.Reformulator.
func (r *LLM) Generate(ctx context.Context, rctx core.Context) ([]string, error) {
	key := textsim.NormalizeSpace(rctx.Query)
	if r.memo != nil {
		if cached, ok := r.memo.Get(key); ok {
			out := make([]string, len(cached))
			copy(out, cached)
			return out, nil
		}
	}

	raw, err := r.client.Chat(ctx, fmt.Sprintf(systemPrompt, r.n), rctx.Query)
	if err != nil {
		return nil, fmt.Errorf("reformulate: %w", err)
	}
	variants, err := ParseVariants(raw, rctx.Query, r.n)
	if err != nil {
		return nil, err
	}

	if r.memo != nil && len(variants) > 0 {
		stored := make([]string, len(variants))
		copy(stored, variants)
		r.memo.Add(key, stored)
	}
	r.logger.Debug("reformulated query", zap.Int("variants", len(variants)))
	return variants, nil
}

// ParseVariants extracts and filters query variants from raw model output.
// Returns an error when no JSON array can be parsed at all; filtering that
// leaves zero variants is not an error.
func ParseVariants(raw, original string, max int) ([]string, error) {
	payload, ok := llm.ExtractJSONArray(raw)
	if !ok {
		return nil, fmt.Errorf("reformulate: no JSON array in response")
	}
	var parsed []string
	if err := json.Unmarshal([]byte(payload), &parsed); err != nil {
		return nil, fmt.Errorf("reformulate: parse response: %w", err)
	}

	origNorm := textsim.NormalizeSpace(original)
	var kept []string
	for _, v := range parsed {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if textsim.NormalizeSpace(v) == origNorm {
			continue
		}
		dup := false
		for _, prev := range kept {
			if textsim.Dice(strings.ToLower(v), strings.ToLower(prev)) > nearDupThreshold {
				dup = true
				break
			}
		}
		if dup {
			continue
		}
		kept = append(kept, v)
		if max > 0 && len(kept) >= max {
			break
		}
	}
	return kept, nil
}
