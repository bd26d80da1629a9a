package ringhost

import (
	"math"
	"sort"
	"time"
)

// ScoreConfig parameterises the composite host score. The zero value is
// not usable; start from DefaultScoreConfig.
type ScoreConfig struct {
	// MinMemMB gates candidates on available memory: a member at or below
	// the threshold scores zero.
	MinMemMB float64
	// Epsilon is the score distance within which two candidates are
	// considered tied, guarding the tie-break against floating-point noise.
	Epsilon float64
	// BandwidthExp and CPUExp are the exponents applied to the bandwidth
	// and cpu headroom terms. 1.0 keeps the plain product formula.
	BandwidthExp float64
	CPUExp       float64
}

// DefaultScoreConfig returns the default scoring parameters:
//
//	score = uplink_mbps / (1 + rtt_ms) * cpu_headroom, gated on memory.
func DefaultScoreConfig() ScoreConfig {
	return ScoreConfig{
		MinMemMB:     256,
		Epsilon:      1e-9,
		BandwidthExp: 1,
		CPUExp:       1,
	}
}

// Score computes the composite score for one candidate.
func (c ScoreConfig) Score(s NodeStats) float64 {
	if s.MemHeadroomMB <= c.MinMemMB {
		return 0
	}
	rtt := s.RTTMillis
	if rtt < 0 {
		rtt = 0
	}
	bw := math.Pow(s.UplinkMbps, c.BandwidthExp)
	cpu := math.Pow(s.CPUHeadroomPct, c.CPUExp)
	score := bw / (1 + rtt) * cpu
	if math.IsNaN(score) || math.IsInf(score, 0) {
		return 0
	}
	return score
}

// ElectionResult is the outcome of one election round. It is immutable
// once created.
type ElectionResult struct {
	Session SessionID
	Round   uint64
	Winner  MemberID
	// Scores holds the full score vector in ascending member id order.
	Scores     []MemberScore
	ComputedAt time.Time
}

// Elect maps a stats vector to a winner. It is a pure function: the same
// stats always produce the same result, and candidates whose scores are
// within Epsilon of the maximum are tie-broken by lowest member id.
// It returns ErrNoCandidates for an empty stats vector.
func Elect(session SessionID, round uint64, stats []NodeStats, cfg ScoreConfig, now time.Time) (ElectionResult, error) {
	if len(stats) == 0 {
		return ElectionResult{}, ErrNoCandidates
	}

	scores := make([]MemberScore, 0, len(stats))
	for _, s := range stats {
		scores = append(scores, MemberScore{
			MemberID: s.MemberID,
			Score:    cfg.Score(s),
		})
	}
	sort.Slice(scores, func(i, j int) bool {
		return scores[i].MemberID.Less(scores[j].MemberID)
	})

	// Iterating in ascending id order means a strictly-better score is
	// required to displace the current winner, so ties keep the lowest id.
	winner := scores[0]
	for _, sc := range scores[1:] {
		if sc.Score > winner.Score+cfg.Epsilon {
			winner = sc
		}
	}

	return ElectionResult{
		Session:    session,
		Round:      round,
		Winner:     winner.MemberID,
		Scores:     scores,
		ComputedAt: now,
	}, nil
}
