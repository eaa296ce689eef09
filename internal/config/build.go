package config

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"ragtune/internal/assembler"
	"ragtune/internal/core"
	"ragtune/internal/estimator"
	"ragtune/internal/feedback"
	"ragtune/internal/index"
	"ragtune/internal/llm"
	"ragtune/internal/reformulator"
	"ragtune/internal/registry"
	"ragtune/internal/reranker"
	"ragtune/internal/retriever"
	"ragtune/internal/scheduler"
	"ragtune/internal/tokens"
)

var registerOnce sync.Once

// RegisterBuiltins populates the registry with every component the engine
// ships. Safe to call more than once.
func RegisterBuiltins(r *registry.Registry, logger *zap.Logger) {
	if logger == nil {
		logger = zap.NewNop()
	}

	r.Register(registry.CategoryRetriever, "memory", func(p registry.Params) (any, error) {
		var docs []core.ScoredDocument
		if path := p.String("path", ""); path != "" {
			var err error
			docs, err = index.ReadJSONL(path)
			if err != nil {
				return nil, err
			}
		}
		return retriever.NewMemory(docs), nil
	})
	r.Register(registry.CategoryRetriever, "sqlite", func(p registry.Params) (any, error) {
		path := p.String("path", "")
		if path == "" {
			return nil, fmt.Errorf("sqlite retriever requires a path param")
		}
		store, err := index.Open(path)
		if err != nil {
			return nil, err
		}
		return retriever.NewSQLite(store), nil
	})
	r.Register(registry.CategoryRetriever, "chromem", func(p registry.Params) (any, error) {
		return retriever.NewChromem(retriever.ChromemConfig{
			PersistPath: p.String("path", ""),
			Collection:  p.String("collection", "default"),
			BaseURL:     p.String("base_url", ""),
			APIKey:      p.String("api_key", ""),
			Model:       p.String("model", ""),
		})
	})

	r.Register(registry.CategoryReranker, "noop", func(registry.Params) (any, error) {
		return reranker.NewNoop(), nil
	})
	r.Register(registry.CategoryReranker, "simulated", func(registry.Params) (any, error) {
		return reranker.NewSimulated(), nil
	})
	r.Register(registry.CategoryReranker, "lexical", func(registry.Params) (any, error) {
		return reranker.NewLexical(), nil
	})
	r.Register(registry.CategoryReranker, "llm", func(p registry.Params) (any, error) {
		client := llm.NewClient(llm.Config{
			BaseURL:     p.String("base_url", ""),
			APIKey:      p.String("api_key", ""),
			Model:       p.String("model", ""),
			MaxTokens:   p.Int("max_tokens", 512),
			Temperature: float32(p.Float("temperature", 0)),
		}, logger)
		return reranker.NewLLM(client), nil
	})

	r.Register(registry.CategoryReformulator, "identity", func(registry.Params) (any, error) {
		return reformulator.NewIdentity(), nil
	})
	r.Register(registry.CategoryReformulator, "llm", func(p registry.Params) (any, error) {
		client := llm.NewClient(llm.Config{
			BaseURL:     p.String("base_url", ""),
			APIKey:      p.String("api_key", ""),
			Model:       p.String("model", ""),
			MaxTokens:   p.Int("max_tokens", 1000),
			Temperature: float32(p.Float("temperature", 0.7)),
		}, logger)
		return reformulator.NewLLM(client, p.Int("n", 2), p.Int("memo_size", 128), logger), nil
	})

	r.Register(registry.CategoryEstimator, "baseline", func(registry.Params) (any, error) {
		return estimator.NewBaseline(), nil
	})
	r.Register(registry.CategoryEstimator, "similarity", func(p registry.Params) (any, error) {
		return estimator.NewSimilarity(p.Float("winner_threshold", 0.8), p.Float("weight", 1.0)), nil
	})

	r.Register(registry.CategoryScheduler, "batch", func(p registry.Params) (any, error) {
		s := scheduler.NewBatch(p.Int("batch_size", 5))
		s.CheapStrategy = p.String("cheap_strategy", s.CheapStrategy)
		s.ExpensiveStrategy = p.String("expensive_strategy", s.ExpensiveStrategy)
		s.EscalateBelow = p.Int("escalate_below", s.EscalateBelow)
		s.ConfidenceGap = p.Float("confidence_gap", s.ConfidenceGap)
		s.CheapTokensPerDoc = p.Float("cheap_tokens_per_doc", s.CheapTokensPerDoc)
		s.LLMTokensPerDoc = p.Float("llm_tokens_per_doc", s.LLMTokensPerDoc)
		return s, nil
	})

	r.Register(registry.CategoryAssembler, "greedy", func(p registry.Params) (any, error) {
		return assembler.NewGreedy(tokens.NewCounter(p.String("encoding", ""))), nil
	})

	r.Register(registry.CategoryFeedback, "budget-stop", func(p registry.Params) (any, error) {
		return feedback.NewBudgetStop(p.Float("min_tokens", 100)), nil
	})
	r.Register(registry.CategoryFeedback, "convergence", func(p registry.Params) (any, error) {
		return feedback.NewConvergence(p.Float("threshold", 0.01)), nil
	})
}

// Default component records used when a role is omitted from the config.
var defaults = map[string]ComponentConfig{
	registry.CategoryRetriever:    {Type: "memory"},
	registry.CategoryReranker:     {Type: "lexical"},
	registry.CategoryReformulator: {Type: "identity"},
	registry.CategoryAssembler:    {Type: "greedy"},
	registry.CategoryEstimator:    {Type: "baseline"},
	registry.CategoryScheduler:    {Type: "batch"},
}

// Build instantiates every configured component against the process
// registry and wires a Controller.
func Build(cfg *Config, logger *zap.Logger) (*core.Controller, error) {
	registerOnce.Do(func() { RegisterBuiltins(registry.Default, logger) })
	reg := registry.Default

	build := func(category string, rec *ComponentConfig) (any, error) {
		chosen := defaults[category]
		if rec != nil {
			chosen = *rec
		}
		factory, err := reg.Get(category, chosen.Type)
		if err != nil {
			return nil, err
		}
		comp, err := factory(chosen.Params)
		if err != nil {
			return nil, fmt.Errorf("failed to build %s %q: %w", category, chosen.Type, err)
		}
		return comp, nil
	}

	comps := cfg.Pipeline.Components

	ret, err := build(registry.CategoryRetriever, comps.Retriever)
	if err != nil {
		return nil, err
	}
	rer, err := build(registry.CategoryReranker, comps.Reranker)
	if err != nil {
		return nil, err
	}
	ref, err := build(registry.CategoryReformulator, comps.Reformulator)
	if err != nil {
		return nil, err
	}
	asm, err := build(registry.CategoryAssembler, comps.Assembler)
	if err != nil {
		return nil, err
	}

	est, err := buildEstimator(reg, componentSpec(comps.Estimator))
	if err != nil {
		return nil, err
	}
	sch, err := buildScheduler(reg, componentSpec(comps.Scheduler))
	if err != nil {
		return nil, err
	}

	var fb core.Feedback
	if comps.Feedback != nil {
		v, err := build(registry.CategoryFeedback, comps.Feedback)
		if err != nil {
			return nil, err
		}
		fb = v.(core.Feedback)
	}

	return core.NewController(core.ControllerConfig{
		Retriever:    ret.(core.Retriever),
		Reranker:     rer.(core.Reranker),
		Reformulator: ref.(core.Reformulator),
		Assembler:    asm.(core.Assembler),
		Estimator:    est,
		Scheduler:    sch,
		Feedback:     fb,
		Budget:       core.CostBudget{Limits: cfg.Pipeline.Budget.Limits},
		Options: core.Options{
			OriginalDepth:         cfg.Pipeline.Retrieval.OriginalQueryDepth,
			NumReformulations:     cfg.Pipeline.Retrieval.NumReformulations,
			DepthPerReformulation: cfg.Pipeline.Retrieval.DepthPerReformulation,
			MaxPoolSize:           cfg.Pipeline.Retrieval.MaxPoolSize,
			ParallelFanout:        cfg.Pipeline.Retrieval.ParallelFanout,
		},
		Logger: logger,
	}), nil
}

// buildEstimator turns zero, one or many estimator records into a single
// component; a list becomes a Composite with the merge rule taken from the
// list entries' shared "merge" param (first one wins, default mean).
func buildEstimator(reg *registry.Registry, records []ComponentConfig) (core.Estimator, error) {
	if len(records) == 0 {
		records = []ComponentConfig{defaults[registry.CategoryEstimator]}
	}
	subs := make([]core.Estimator, 0, len(records))
	merge := ""
	for _, rec := range records {
		factory, err := reg.Get(registry.CategoryEstimator, rec.Type)
		if err != nil {
			return nil, err
		}
		comp, err := factory(rec.Params)
		if err != nil {
			return nil, fmt.Errorf("failed to build estimator %q: %w", rec.Type, err)
		}
		subs = append(subs, comp.(core.Estimator))
		if merge == "" {
			merge = rec.Params.String("merge", "")
		}
	}
	if len(subs) == 1 {
		return subs[0], nil
	}
	return estimator.NewComposite(subs, estimator.MergeRule(merge)), nil
}

// buildScheduler mirrors buildEstimator; a scheduler list composes with the
// pessimistic gate so any sub-scheduler can stop the loop.
func buildScheduler(reg *registry.Registry, records []ComponentConfig) (core.Scheduler, error) {
	if len(records) == 0 {
		records = []ComponentConfig{defaults[registry.CategoryScheduler]}
	}
	subs := make([]core.Scheduler, 0, len(records))
	for _, rec := range records {
		factory, err := reg.Get(registry.CategoryScheduler, rec.Type)
		if err != nil {
			return nil, err
		}
		comp, err := factory(rec.Params)
		if err != nil {
			return nil, fmt.Errorf("failed to build scheduler %q: %w", rec.Type, err)
		}
		subs = append(subs, comp.(core.Scheduler))
	}
	if len(subs) == 1 {
		return subs[0], nil
	}
	return scheduler.NewComposite(subs, true), nil
}
