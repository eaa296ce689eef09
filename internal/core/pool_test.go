package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func doc(id string, score float64) ScoredDocument {
	return ScoredDocument{ID: id, Content: "content of " + id, Score: score}
}

func TestAdmitDedupAndProvenance(t *testing.T) {
	pool := NewCandidatePool()

	pool.Admit([]ScoredDocument{doc("doc1", 0.9), doc("doc2", 0.8)}, "original", 0)
	require.Equal(t, 2, pool.Len())
	it := pool.Get("doc1")
	assert.Equal(t, map[string]float64{"original": 0.9}, it.Sources)
	assert.Equal(t, 0, it.InitialRank)
	assert.Equal(t, 1, it.Appearances)

	pool.Admit([]ScoredDocument{doc("doc2", 0.85), doc("doc3", 0.7)}, "rewrite_0", 0)
	require.Equal(t, 3, pool.Len())

	// doc2 appeared in both rounds
	it = pool.Get("doc2")
	assert.Equal(t, map[string]float64{"original": 0.8, "rewrite_0": 0.85}, it.Sources)
	assert.Equal(t, 0, it.InitialRank) // min(1 from original, 0 from rewrite)
	assert.Equal(t, 2, it.Appearances)
	assert.Equal(t, 0.85, it.FinalScore()) // max of sources
	assert.Equal(t, StateCandidate, it.State)
}

func TestAdmitInitialRankTracking(t *testing.T) {
	pool := NewCandidatePool()
	docs := []ScoredDocument{doc("a", 0.5), doc("b", 0.5), doc("c", 0.5), doc("d", 0.5)}
	pool.Admit(docs, "original", 0)
	assert.Equal(t, 3, pool.Get("d").InitialRank)

	// d leads the rewrite round
	pool.Admit([]ScoredDocument{doc("d", 0.6)}, "rewrite_0", 0)
	assert.Equal(t, 0, pool.Get("d").InitialRank)
	assert.Equal(t, 2, pool.Get("d").Appearances)
}

func TestAdmitInRoundDuplicateKeepsMaxScore(t *testing.T) {
	pool := NewCandidatePool()
	pool.Admit([]ScoredDocument{doc("a", 0.3), doc("a", 0.7)}, "original", 0)
	it := pool.Get("a")
	assert.Equal(t, 0.7, it.Sources["original"])
	assert.Equal(t, 1, it.Appearances) // one round, one appearance
}

func TestAdmitTwiceIdempotentButForProvenance(t *testing.T) {
	pool := NewCandidatePool()
	pool.Admit([]ScoredDocument{doc("a", 0.5)}, "r0", 0)
	pool.Admit([]ScoredDocument{doc("a", 0.5)}, "r1", 0)
	require.Equal(t, 1, pool.Len())
	it := pool.Get("a")
	assert.Equal(t, 2, it.Appearances)
	assert.Len(t, it.Sources, 2)
}

func TestTransitionHappyPath(t *testing.T) {
	pool := NewCandidatePool()
	pool.Admit([]ScoredDocument{doc("a", 0.5), doc("b", 0.4)}, "original", 0)

	unknown, err := pool.Transition([]string{"a", "b"}, StateInFlight)
	require.NoError(t, err)
	assert.Empty(t, unknown)
	assert.Equal(t, StateInFlight, pool.Get("a").State)

	_, err = pool.Transition([]string{"a"}, StateReranked)
	require.NoError(t, err)
	_, err = pool.Transition([]string{"b"}, StateDropped)
	require.NoError(t, err)
}

func TestTransitionIllegalIsAtomic(t *testing.T) {
	pool := NewCandidatePool()
	pool.Admit([]ScoredDocument{doc("a", 0.5), doc("b", 0.4)}, "original", 0)
	_, err := pool.Transition([]string{"a"}, StateInFlight)
	require.NoError(t, err)
	_, err = pool.Transition([]string{"a"}, StateReranked)
	require.NoError(t, err)

	// b is legal, a is not: nothing may change
	_, err = pool.Transition([]string{"b", "a"}, StateInFlight)
	var illegal *IllegalTransitionError
	require.ErrorAs(t, err, &illegal)
	assert.Equal(t, "a", illegal.DocID)
	assert.Equal(t, StateReranked, illegal.From)
	assert.Equal(t, StateInFlight, illegal.To)

	assert.Equal(t, StateCandidate, pool.Get("b").State)
	assert.Equal(t, StateReranked, pool.Get("a").State)
}

func TestTransitionUnknownIdsSkipped(t *testing.T) {
	pool := NewCandidatePool()
	pool.Admit([]ScoredDocument{doc("a", 0.5)}, "original", 0)
	unknown, err := pool.Transition([]string{"a", "ghost"}, StateInFlight)
	require.NoError(t, err)
	assert.Equal(t, []string{"ghost"}, unknown)
	assert.Equal(t, StateInFlight, pool.Get("a").State)
}

func TestTransitionTotalCountInvariant(t *testing.T) {
	pool := NewCandidatePool()
	pool.Admit([]ScoredDocument{doc("a", 0.5), doc("b", 0.4), doc("c", 0.3)}, "original", 0)
	_, err := pool.Transition([]string{"a", "b"}, StateInFlight)
	require.NoError(t, err)
	_, err = pool.Transition([]string{"a"}, StateReranked)
	require.NoError(t, err)
	_, err = pool.Transition([]string{"b"}, StateDropped)
	require.NoError(t, err)
	assert.Equal(t, 3, pool.Len())
	stats := pool.Stats()
	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, 1, stats.Candidate)
	assert.Equal(t, 1, stats.Reranked)
	assert.Equal(t, 1, stats.Dropped)
}

func TestUpdateScores(t *testing.T) {
	pool := NewCandidatePool()
	pool.Admit([]ScoredDocument{doc("a", 0.5), doc("b", 0.4), doc("c", 0.3)}, "original", 0)
	_, err := pool.Transition([]string{"a", "b"}, StateInFlight)
	require.NoError(t, err)

	unknown, err := pool.UpdateScores(map[string]float64{"a": 0.9}, "cross_encoder")
	require.NoError(t, err)
	assert.Empty(t, unknown)

	a := pool.Get("a")
	require.NotNil(t, a.RerankerScore)
	assert.Equal(t, 0.9, *a.RerankerScore)
	assert.Equal(t, "cross_encoder", a.RerankerStrategy)
	assert.Equal(t, StateReranked, a.State)

	// b was in flight but not returned: dropped
	assert.Equal(t, StateDropped, pool.Get("b").State)
	// c never entered the batch
	assert.Equal(t, StateCandidate, pool.Get("c").State)
}

func TestUpdateScoresRejectsNonInFlight(t *testing.T) {
	pool := NewCandidatePool()
	pool.Admit([]ScoredDocument{doc("a", 0.5)}, "original", 0)

	_, err := pool.UpdateScores(map[string]float64{"a": 0.9}, "x")
	var illegal *IllegalTransitionError
	require.ErrorAs(t, err, &illegal)
	assert.Equal(t, StateCandidate, pool.Get("a").State)
	assert.Nil(t, pool.Get("a").RerankerScore)
}

func TestUpdateScoresEmptyIsNoOp(t *testing.T) {
	pool := NewCandidatePool()
	pool.Admit([]ScoredDocument{doc("a", 0.5)}, "original", 0)
	unknown, err := pool.UpdateScores(map[string]float64{}, "x")
	require.NoError(t, err)
	assert.Empty(t, unknown)
	assert.Equal(t, StateCandidate, pool.Get("a").State)
}

func TestUpdateScoresUnknownIdsSkipped(t *testing.T) {
	pool := NewCandidatePool()
	pool.Admit([]ScoredDocument{doc("a", 0.5)}, "original", 0)
	_, err := pool.Transition([]string{"a"}, StateInFlight)
	require.NoError(t, err)

	unknown, err := pool.UpdateScores(map[string]float64{"a": 0.8, "ghost": 0.1}, "x")
	require.NoError(t, err)
	assert.Equal(t, []string{"ghost"}, unknown)
	assert.Equal(t, StateReranked, pool.Get("a").State)
}

func TestApplyPrioritiesEligibleOnlyAndIdempotent(t *testing.T) {
	pool := NewCandidatePool()
	pool.Admit([]ScoredDocument{doc("a", 0.5), doc("b", 0.4), doc("c", 0.3)}, "original", 0)
	_, err := pool.Transition([]string{"b"}, StateInFlight)
	require.NoError(t, err)
	_, err = pool.Transition([]string{"c"}, StateDropped)
	require.NoError(t, err)

	p := map[string]float64{"a": 0.7, "b": 0.6, "c": 0.5, "ghost": 1.0}
	pool.ApplyPriorities(p)
	pool.ApplyPriorities(p)

	assert.Equal(t, 0.7, pool.Get("a").PriorityValue)
	assert.Equal(t, 0.0, pool.Get("b").PriorityValue) // untouched
	assert.Equal(t, 0.0, pool.Get("c").PriorityValue) // untouched
}

func TestFinalScorePrecedence(t *testing.T) {
	it := &PoolItem{Sources: map[string]float64{"original": 0.4}}
	assert.Equal(t, 0.4, it.FinalScore())

	it.PriorityValue = 0.6
	assert.Equal(t, 0.6, it.FinalScore())

	score := 0.2
	it.RerankerScore = &score
	assert.Equal(t, 0.2, it.FinalScore()) // reranker wins even when lower

	empty := &PoolItem{}
	assert.Equal(t, 0.0, empty.FinalScore())
}

func TestActiveItemsOrdering(t *testing.T) {
	pool := NewCandidatePool()
	pool.Admit([]ScoredDocument{
		doc("a", 0.5), doc("b", 0.5), doc("c", 0.9), doc("d", 0.2),
	}, "original", 0)
	_, err := pool.Transition([]string{"d"}, StateInFlight)
	require.NoError(t, err)
	_, err = pool.UpdateScores(map[string]float64{"d": 0.95}, "x")
	require.NoError(t, err)

	got := pool.ActiveItems()
	ids := make([]string, len(got))
	for i, it := range got {
		ids[i] = it.DocID
	}
	// d by reranker score, then c, then the 0.5 tie broken by initial rank
	assert.Equal(t, []string{"d", "c", "a", "b"}, ids)
}

func TestEveryItemInExactlyOneState(t *testing.T) {
	pool := NewCandidatePool()
	pool.Admit([]ScoredDocument{doc("a", 0.5), doc("b", 0.4), doc("c", 0.3), doc("d", 0.2)}, "original", 0)
	_, err := pool.Transition([]string{"a", "b"}, StateInFlight)
	require.NoError(t, err)
	_, err = pool.UpdateScores(map[string]float64{"a": 0.9}, "x")
	require.NoError(t, err)

	stats := pool.Stats()
	assert.Equal(t, stats.Total, stats.Candidate+stats.InFlight+stats.Reranked+stats.Dropped)
}

func TestEnforceCapDeterministic(t *testing.T) {
	pool := NewCandidatePool()
	pool.Admit([]ScoredDocument{
		doc("doc1", 0.1), doc("doc2", 0.9), doc("doc3", 0.5), doc("doc4", 0.5),
	}, "original", 0)

	// Keep doc2 (0.9) and, on the 0.5 tie, doc3 by id order.
	removed := pool.EnforceCap(2)
	assert.ElementsMatch(t, []string{"doc1", "doc4"}, removed)
	assert.Equal(t, 2, pool.Len())
	assert.NotNil(t, pool.Get("doc2"))
	assert.NotNil(t, pool.Get("doc3"))
}

func TestEnforceCapExemptsNonCandidates(t *testing.T) {
	pool := NewCandidatePool()
	pool.Admit([]ScoredDocument{doc("a", 0.1), doc("b", 0.9), doc("c", 0.5)}, "original", 0)
	_, err := pool.Transition([]string{"a"}, StateInFlight)
	require.NoError(t, err)

	removed := pool.EnforceCap(2)
	// a ranks last but is in flight, so only c's inferior... a exempt, c kept, nothing else removable
	assert.Empty(t, removed)
	assert.Equal(t, 3, pool.Len())
}
