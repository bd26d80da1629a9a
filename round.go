package ringhost

import (
	"sort"
	"time"
)

// collectionRound accumulates the stats gathered during one election
// round. It is mutated only by the owning coordinator's event loop.
type collectionRound struct {
	session   SessionID
	round     uint64
	startedAt time.Time
	deadline  time.Time

	expected map[MemberID]struct{}
	received map[MemberID]NodeStats
}

func newCollectionRound(session SessionID, round uint64, ring *Ring, exclude map[MemberID]struct{}, startedAt time.Time, deadline time.Time) *collectionRound {
	expected := make(map[MemberID]struct{})
	for _, id := range ring.IDs() {
		if _, skip := exclude[id]; skip {
			continue
		}
		expected[id] = struct{}{}
	}
	return &collectionRound{
		session:   session,
		round:     round,
		startedAt: startedAt,
		deadline:  deadline,
		expected:  expected,
		received:  make(map[MemberID]NodeStats),
	}
}

// add records one member's sample. A round accepts at most one sample per
// member: later duplicates are discarded, not merged. Samples from members
// outside the expected set are also discarded.
func (r *collectionRound) add(s NodeStats) bool {
	if _, ok := r.expected[s.MemberID]; !ok {
		return false
	}
	if _, dup := r.received[s.MemberID]; dup {
		return false
	}
	r.received[s.MemberID] = s
	return true
}

func (r *collectionRound) has(id MemberID) bool {
	_, ok := r.received[id]
	return ok
}

// contributions returns the received samples in ascending member id order.
func (r *collectionRound) contributions() []NodeStats {
	ret := make([]NodeStats, 0, len(r.received))
	for _, s := range r.received {
		ret = append(ret, s)
	}
	sort.Slice(ret, func(i, j int) bool {
		return ret[i].MemberID.Less(ret[j].MemberID)
	})
	return ret
}

// quorumMet reports whether strictly more than fraction of the expected
// members contributed. The default fraction of 0.5 requires a majority.
func (r *collectionRound) quorumMet(fraction float64) bool {
	return float64(len(r.received)) > fraction*float64(len(r.expected))
}

// missing returns the expected members that have not contributed, in
// ascending id order.
func (r *collectionRound) missing() []MemberID {
	ids := Difference(r.expected, r.received)
	sortIDs(ids)
	return ids
}
