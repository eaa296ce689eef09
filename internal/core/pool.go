package core

import "sort"

// PoolItem is the unit of work inside the engine; exactly one exists per
// distinct document id for the request lifetime.
type PoolItem struct {
	DocID    string
	Content  string
	Metadata map[string]any

	State ItemState

	// Provenance across retrieval rounds.
	Sources     map[string]float64 // round tag -> retrieval score
	InitialRank int                // rank in the first round that saw this doc
	Appearances int                // number of rounds that retrieved this doc

	// Iterative state. Written only by the Controller.
	PriorityValue    float64
	RerankerScore    *float64
	RerankerStrategy string
}

// FinalScore derives the score used for assembly ordering.
// Precedence: reranker > estimator priority (if positive) > retrieval baseline.
func (it *PoolItem) FinalScore() float64 {
	if it.RerankerScore != nil {
		return *it.RerankerScore
	}
	if it.PriorityValue > 0 {
		return it.PriorityValue
	}
	return it.maxSource()
}

func (it *PoolItem) maxSource() float64 {
	max := 0.0
	first := true
	for _, s := range it.Sources {
		if first || s > max {
			max = s
			first = false
		}
	}
	return max
}

var legalTransitions = map[ItemState]map[ItemState]bool{
	StateCandidate: {StateInFlight: true, StateDropped: true},
	StateInFlight:  {StateReranked: true, StateDropped: true},
	StateReranked:  {StateDropped: true},
	StateDropped:   {},
}

// CandidatePool is the exclusive owner of all pool items for one request.
// Lookup is O(1) by doc id and insertion order is preserved so identical
// inputs always produce identical iteration order.
type CandidatePool struct {
	items map[string]*PoolItem
	order []string
}

// NewCandidatePool returns an empty pool.
func NewCandidatePool() *CandidatePool {
	return &CandidatePool{items: make(map[string]*PoolItem)}
}

// Admit merges one retrieval round into the pool. New documents enter as
// CANDIDATE with initial rank baseRank+offset; documents seen in an earlier
// round keep their identity and state, gain a provenance entry for this
// round (max score wins on in-round duplicates), bump their appearance count
// once per round, and lower their initial rank if this round saw them
// earlier.
func (p *CandidatePool) Admit(docs []ScoredDocument, roundTag string, baseRank int) {
	seenThisRound := make(map[string]bool, len(docs))
	for offset, doc := range docs {
		rank := baseRank + offset
		if it, ok := p.items[doc.ID]; ok {
			if prev, dup := it.Sources[roundTag]; !dup || doc.Score > prev {
				it.Sources[roundTag] = doc.Score
			}
			if !seenThisRound[doc.ID] {
				it.Appearances++
			}
			if rank < it.InitialRank {
				it.InitialRank = rank
			}
		} else {
			p.items[doc.ID] = &PoolItem{
				DocID:       doc.ID,
				Content:     doc.Content,
				Metadata:    doc.Metadata,
				State:       StateCandidate,
				Sources:     map[string]float64{roundTag: doc.Score},
				InitialRank: rank,
				Appearances: 1,
			}
			p.order = append(p.order, doc.ID)
		}
		seenThisRound[doc.ID] = true
	}
}

// Transition moves every id to the target state. The whole set is validated
// before anything changes: one illegal transition fails the call with
// *IllegalTransitionError and mutates nothing. Ids that were never admitted
// are skipped and returned so the caller can record a warning.
func (p *CandidatePool) Transition(ids []string, target ItemState) (unknown []string, err error) {
	known := make([]*PoolItem, 0, len(ids))
	for _, id := range ids {
		it, ok := p.items[id]
		if !ok {
			unknown = append(unknown, id)
			continue
		}
		if !legalTransitions[it.State][target] {
			return nil, &IllegalTransitionError{DocID: id, From: it.State, To: target}
		}
		known = append(known, it)
	}
	for _, it := range known {
		it.State = target
	}
	return unknown, nil
}

// UpdateScores writes reranker results. Every scored id must currently be
// IN_FLIGHT; a known id in any other state is an *IllegalTransitionError and
// nothing is mutated. Ids never admitted are skipped and returned. After the
// set is applied, in-flight items the reranker did not return are DROPPED.
func (p *CandidatePool) UpdateScores(scores map[string]float64, strategy string) (unknown []string, err error) {
	ids := make([]string, 0, len(scores))
	for id := range scores {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	known := make([]*PoolItem, 0, len(ids))
	for _, id := range ids {
		it, ok := p.items[id]
		if !ok {
			unknown = append(unknown, id)
			continue
		}
		if it.State != StateInFlight {
			return nil, &IllegalTransitionError{DocID: id, From: it.State, To: StateReranked}
		}
		known = append(known, it)
	}
	for _, it := range known {
		score := scores[it.DocID]
		it.RerankerScore = &score
		it.RerankerStrategy = strategy
		it.State = StateReranked
	}
	for _, id := range p.order {
		if it := p.items[id]; it.State == StateInFlight {
			it.State = StateDropped
		}
	}
	return unknown, nil
}

// ApplyPriorities writes estimator output onto CANDIDATE items. Ids in any
// other state, or never admitted, are silently ignored; estimators only
// influence what is still schedulable.
func (p *CandidatePool) ApplyPriorities(priorities map[string]float64) {
	for id, v := range priorities {
		if it, ok := p.items[id]; ok && it.State == StateCandidate {
			it.PriorityValue = v
		}
	}
}

// Eligible returns the CANDIDATE items in insertion order.
func (p *CandidatePool) Eligible() []*PoolItem {
	var out []*PoolItem
	for _, id := range p.order {
		if it := p.items[id]; it.State == StateCandidate {
			out = append(out, it)
		}
	}
	return out
}

// ActiveItems returns the CANDIDATE and RERANKED items ordered by final
// score desc, then initial rank asc, then doc id asc.
func (p *CandidatePool) ActiveItems() []*PoolItem {
	var out []*PoolItem
	for _, id := range p.order {
		it := p.items[id]
		if it.State == StateCandidate || it.State == StateReranked {
			out = append(out, it)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		si, sj := out[i].FinalScore(), out[j].FinalScore()
		if si != sj {
			return si > sj
		}
		if out[i].InitialRank != out[j].InitialRank {
			return out[i].InitialRank < out[j].InitialRank
		}
		return out[i].DocID < out[j].DocID
	})
	return out
}

// Items returns the items for the given ids, skipping unknown ones, in the
// order requested.
func (p *CandidatePool) Items(ids []string) []*PoolItem {
	out := make([]*PoolItem, 0, len(ids))
	for _, id := range ids {
		if it, ok := p.items[id]; ok {
			out = append(out, it)
		}
	}
	return out
}

// Get returns a single item, or nil when the id was never admitted.
func (p *CandidatePool) Get(id string) *PoolItem {
	return p.items[id]
}

// All returns every item in insertion order.
func (p *CandidatePool) All() []*PoolItem {
	out := make([]*PoolItem, 0, len(p.order))
	for _, id := range p.order {
		out = append(out, p.items[id])
	}
	return out
}

// Len returns the number of items ever admitted and still held.
func (p *CandidatePool) Len() int {
	return len(p.order)
}

// EnforceCap trims the pool down to max items after an admit. Items are
// ranked by descending best retrieval score, ties broken by ascending doc
// id; items beyond the cap are removed unless they already left the
// CANDIDATE state. Returns the removed ids.
func (p *CandidatePool) EnforceCap(max int) []string {
	if max <= 0 || len(p.order) <= max {
		return nil
	}
	ranked := make([]string, len(p.order))
	copy(ranked, p.order)
	sort.SliceStable(ranked, func(i, j int) bool {
		si, sj := p.items[ranked[i]].maxSource(), p.items[ranked[j]].maxSource()
		if si != sj {
			return si > sj
		}
		return ranked[i] < ranked[j]
	})

	var removed []string
	for _, id := range ranked[max:] {
		if p.items[id].State != StateCandidate {
			continue
		}
		delete(p.items, id)
		removed = append(removed, id)
	}
	if len(removed) == 0 {
		return nil
	}
	kept := p.order[:0]
	for _, id := range p.order {
		if _, ok := p.items[id]; ok {
			kept = append(kept, id)
		}
	}
	p.order = kept
	return removed
}

// PoolStats summarizes state bucket occupancy for feedback plugins.
type PoolStats struct {
	Total     int
	Candidate int
	InFlight  int
	Reranked  int
	Dropped   int
}

// Stats counts items per state.
func (p *CandidatePool) Stats() PoolStats {
	s := PoolStats{Total: len(p.order)}
	for _, id := range p.order {
		switch p.items[id].State {
		case StateCandidate:
			s.Candidate++
		case StateInFlight:
			s.InFlight++
		case StateReranked:
			s.Reranked++
		case StateDropped:
			s.Dropped++
		}
	}
	return s
}
