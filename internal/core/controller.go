package core

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Round tag for the first retrieval pass; supplemental passes use
// "rewrite_0", "rewrite_1", ...
const originalRound = "original"

func rewriteRound(i int) string {
	return fmt.Sprintf("rewrite_%d", i)
}

// Options tunes the retrieval fan-out and pool size of a Controller.
type Options struct {
	OriginalDepth         int  // top-k of the original retrieval
	NumReformulations     int  // max query variants to retrieve for
	DepthPerReformulation int  // top-k per variant
	MaxPoolSize           int  // 0 = uncapped
	ParallelFanout        bool // run variant retrievals concurrently
}

func (o Options) withDefaults() Options {
	if o.OriginalDepth <= 0 {
		o.OriginalDepth = 10
	}
	if o.DepthPerReformulation <= 0 {
		o.DepthPerReformulation = 5
	}
	return o
}

// ControllerConfig wires a Controller. Reformulator and Feedback are
// optional; everything else is required.
type ControllerConfig struct {
	Retriever    Retriever
	Reformulator Reformulator
	Reranker     Reranker
	Assembler    Assembler
	Scheduler    Scheduler
	Estimator    Estimator
	Feedback     Feedback
	Budget       CostBudget
	Options      Options
	Logger       *zap.Logger
}

// Controller owns the decision loop of a single request. It is the sole
// mutator of pool and budget state; every other component either performs
// I/O on its behalf or reads snapshots.
type Controller struct {
	retriever    Retriever
	reformulator Reformulator
	reranker     Reranker
	assembler    Assembler
	scheduler    Scheduler
	estimator    Estimator
	feedback     Feedback
	budget       CostBudget
	opts         Options
	logger       *zap.Logger
}

// NewController builds a Controller from its wiring.
func NewController(cfg ControllerConfig) *Controller {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Controller{
		retriever:    cfg.Retriever,
		reformulator: cfg.Reformulator,
		reranker:     cfg.Reranker,
		assembler:    cfg.Assembler,
		scheduler:    cfg.Scheduler,
		estimator:    cfg.Estimator,
		feedback:     cfg.Feedback,
		budget:       cfg.Budget,
		opts:         cfg.Options.withDefaults(),
		logger:       logger,
	}
}

// Run executes one request: retrieval fan-out, the iterative
// estimate/schedule/rerank loop, and assembly. The context cancels
// cooperatively at suspension points; a cancelled run still returns a
// partial, well-formed output. The only errors Run surfaces are a failed
// original retrieval and an illegal pool transition, both wrapped in
// *RunError with the trace so far attached.
func (c *Controller) Run(ctx context.Context, query string) (*ControllerOutput, error) {
	trace := NewTrace()
	tracker := NewCostTracker(c.budget, trace)
	rctx := Context{Query: query, Tracker: tracker, Metadata: map[string]any{}}
	pool := NewCandidatePool()

	// Original retrieval. A failure here is the request's failure.
	docs, err := c.retriever.Retrieve(ctx, rctx, c.opts.OriginalDepth)
	if err != nil {
		trace.Add("retriever", ActionRetrieveError, map[string]any{
			"round": originalRound, "error": err.Error(),
		})
		return nil, &RunError{Err: fmt.Errorf("original retrieval: %w", err), Trace: trace}
	}
	pool.Admit(docs, originalRound, 0)
	trace.Add("retriever", ActionRetrieve, map[string]any{
		"round": originalRound, "count": len(docs),
	})
	c.capPool(pool, trace)

	variants := c.reformulate(ctx, rctx, trace)
	c.fanOut(ctx, rctx, pool, trace, variants)
	c.capPool(pool, trace)

	trace.Add("controller", ActionPoolInit, map[string]any{
		"count":          pool.Len(),
		"reformulations": variants,
	})
	c.logger.Debug("pool initialized",
		zap.Int("count", pool.Len()),
		zap.Int("reformulations", len(variants)))

	exitReason, runErr := c.loop(ctx, rctx, pool, tracker, trace)
	if runErr != nil {
		return nil, &RunError{Err: runErr, Trace: trace}
	}
	trace.Add("controller", ActionLoopExit, map[string]any{"reason": exitReason})

	final, tokens := c.assembler.Assemble(pool.ActiveItems(), tracker.RemainingView(), rctx)
	tracker.Charge(Cost{ResourceTokens: tokens})
	trace.Add("assembler", ActionAssembly, map[string]any{
		"count": len(final), "tokens": tokens,
	})

	return &ControllerOutput{
		Query:            query,
		Documents:        final,
		Trace:            trace,
		FinalBudgetState: tracker.Snapshot(),
	}, nil
}

// reformulate asks for query variants inside the reformulation budget.
// Failure and emptiness both degrade to the original-only fan-out.
func (c *Controller) reformulate(ctx context.Context, rctx Context, trace *Trace) []string {
	if c.reformulator == nil || c.opts.NumReformulations <= 0 {
		return nil
	}
	if !rctx.Tracker.TryConsume(ResourceReformulations, 1) {
		return nil
	}
	variants, err := c.reformulator.Generate(ctx, rctx)
	if err != nil {
		trace.Add("reformulator", ActionReformulateFailed, map[string]any{"error": err.Error()})
		c.logger.Warn("reformulation failed", zap.Error(err))
		return nil
	}
	if len(variants) > c.opts.NumReformulations {
		variants = variants[:c.opts.NumReformulations]
	}
	trace.Add("reformulator", ActionReformulate, map[string]any{"variants": variants})
	return variants
}

// fanOut retrieves for each variant and admits the results. Retrievals may
// run concurrently, but admission is serialized in variant order so round
// tags and initial ranks never depend on completion order. A failed variant
// retrieval is skipped; a denied latency check stops the fan-out.
func (c *Controller) fanOut(ctx context.Context, rctx Context, pool *CandidatePool, trace *Trace, variants []string) {
	if len(variants) == 0 {
		return
	}
	depth := c.opts.DepthPerReformulation

	type roundResult struct {
		docs []ScoredDocument
		err  error
	}
	results := make([]roundResult, len(variants))

	if c.opts.ParallelFanout {
		g, gctx := errgroup.WithContext(ctx)
		launched := len(variants)
		for i, q := range variants {
			if !rctx.Tracker.TryConsume(ResourceLatencyMS, 0) {
				launched = i
				break
			}
			i, q := i, q
			g.Go(func() error {
				docs, err := c.retriever.Retrieve(gctx, rctx.WithQuery(q), depth)
				results[i] = roundResult{docs: docs, err: err}
				return nil
			})
		}
		_ = g.Wait()
		results = results[:launched]
	} else {
		for i, q := range variants {
			if !rctx.Tracker.TryConsume(ResourceLatencyMS, 0) {
				results = results[:i]
				break
			}
			docs, err := c.retriever.Retrieve(ctx, rctx.WithQuery(q), depth)
			results[i] = roundResult{docs: docs, err: err}
		}
	}

	for i, res := range results {
		tag := rewriteRound(i)
		if res.err != nil {
			trace.Add("retriever", ActionRetrieveError, map[string]any{
				"round": tag, "error": res.err.Error(),
			})
			c.logger.Warn("rewrite retrieval failed", zap.String("round", tag), zap.Error(res.err))
			continue
		}
		pool.Admit(res.docs, tag, 0)
		trace.Add("retriever", ActionRetrieve, map[string]any{
			"round": tag, "count": len(res.docs),
		})
	}
}

func (c *Controller) capPool(pool *CandidatePool, trace *Trace) {
	if c.opts.MaxPoolSize <= 0 {
		return
	}
	if removed := pool.EnforceCap(c.opts.MaxPoolSize); len(removed) > 0 {
		trace.Add("pool", ActionPoolWarning, map[string]any{
			"reason": "cap_enforced", "removed": removed,
		})
	}
}

// loop runs estimate -> propose -> rerank until the scheduler, the budget,
// feedback or cancellation stops it. Returns the exit reason, or an error
// only for illegal pool transitions.
func (c *Controller) loop(ctx context.Context, rctx Context, pool *CandidatePool, tracker *CostTracker, trace *Trace) (string, error) {
	for {
		if ctx.Err() != nil {
			trace.Add("controller", ActionCancelled, map[string]any{"error": ctx.Err().Error()})
			return "cancelled", nil
		}
		if tracker.IsExhausted() {
			return "budget_exhausted", nil
		}

		priorities := c.estimator.Value(pool, rctx)
		pool.ApplyPriorities(priorities)
		trace.Add("estimator", ActionEstimate, map[string]any{"count": len(priorities)})

		if c.feedback != nil {
			if stop, reason := c.feedback.ShouldStop(pool.Stats(), tracker.RemainingView(), priorities); stop {
				trace.Add("feedback", ActionFeedbackStop, map[string]any{"reason": reason})
				return "feedback_stop", nil
			}
		}

		proposal := c.scheduler.SelectBatch(pool, tracker.RemainingView())
		if proposal == nil {
			trace.Add("scheduler", ActionNoProposal, nil)
			return "no_proposal", nil
		}
		trace.Add("scheduler", ActionProposeBatch, map[string]any{
			"doc_ids":  proposal.DocIDs,
			"strategy": proposal.Strategy,
			"cost":     proposal.ExpectedCost,
		})

		unknown, err := pool.Transition(proposal.DocIDs, StateInFlight)
		if err != nil {
			return "", err
		}
		c.warnUnknown(trace, unknown)

		items := pool.Items(proposal.DocIDs)
		scores, rerr := c.reranker.Rerank(ctx, items, proposal.Strategy, rctx)
		if rerr != nil {
			// Per-batch recovery: the batch is lost, the loop is not.
			// The failed call consumed nothing, so no charge.
			if _, terr := pool.Transition(proposal.DocIDs, StateDropped); terr != nil {
				return "", terr
			}
			trace.Add("reranker", ActionRerankError, map[string]any{
				"strategy": proposal.Strategy, "error": rerr.Error(),
			})
			c.logger.Warn("rerank batch failed", zap.String("strategy", proposal.Strategy), zap.Error(rerr))
			continue
		}

		scores = restrictToBatch(scores, proposal.DocIDs, trace)
		unknown, err = pool.UpdateScores(scores, proposal.Strategy)
		if err != nil {
			return "", err
		}
		c.warnUnknown(trace, unknown)
		trace.Add("reranker", ActionRerankBatch, map[string]any{
			"count": len(scores), "strategy": proposal.Strategy,
		})

		// Charged after the work: one over-consume is tolerated, then the
		// exhaustion check below ends the loop.
		tracker.Charge(proposal.ExpectedCost)
		if tracker.IsExhausted() {
			return "budget_exhausted", nil
		}
	}
}

func (c *Controller) warnUnknown(trace *Trace, unknown []string) {
	if len(unknown) == 0 {
		return
	}
	trace.Add("pool", ActionPoolWarning, map[string]any{
		"reason": "unknown_ids", "doc_ids": unknown,
	})
}

// restrictToBatch keeps only scores for ids that were actually in the batch;
// a reranker returning foreign ids is a contract violation worth a warning,
// not a crash.
func restrictToBatch(scores map[string]float64, batch []string, trace *Trace) map[string]float64 {
	inBatch := make(map[string]bool, len(batch))
	for _, id := range batch {
		inBatch[id] = true
	}
	var foreign []string
	for id := range scores {
		if !inBatch[id] {
			foreign = append(foreign, id)
		}
	}
	if len(foreign) == 0 {
		return scores
	}
	sort.Strings(foreign)
	filtered := make(map[string]float64, len(scores))
	for id, s := range scores {
		if inBatch[id] {
			filtered[id] = s
		}
	}
	trace.Add("pool", ActionPoolWarning, map[string]any{
		"reason": "foreign_ids_in_rerank_result", "doc_ids": foreign,
	})
	return filtered
}
