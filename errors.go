package ringhost

import (
	"github.com/luno/jettison/errors"
	"github.com/luno/jettison/j"
)

var (
	// ErrEmptyRing is returned when a ring is computed over zero members.
	ErrEmptyRing = errors.New("empty ring", j.C("ERR_8a1f30c2be4d5e01"))

	// ErrNoCandidates is returned when an election is run with no stats.
	ErrNoCandidates = errors.New("no election candidates", j.C("ERR_2c77ab90d14ef302"))

	// ErrMalformedPacket is returned when a packet is shorter than the
	// minimum size for its type, or carries an unknown type code.
	ErrMalformedPacket = errors.New("malformed consensus packet", j.C("ERR_5be4019ac83d7f03"))

	// ErrTimeout is returned when a round phase deadline expires.
	ErrTimeout = errors.New("election phase deadline exceeded", j.C("ERR_93d04e6f12ab8c04"))

	// ErrQuorum is returned when too few members contributed stats.
	ErrQuorum = errors.New("insufficient election quorum", j.C("ERR_c25f8d301e9ba605"))

	// ErrChurn is logged when membership changes abort an in-flight
	// round. It is an expected condition and triggers an immediate
	// restart, not backoff.
	ErrChurn = errors.New("membership changed mid round", j.C("ERR_47e0b12fd98ca306"))

	// ErrTransport is logged when sending to a peer still fails after
	// its per-peer retry budget.
	ErrTransport = errors.New("peer send failed", j.C("ERR_e61c94a0b37df507"))

	// ErrMemberAlreadyExists is returned by the registry when a member key
	// for the session already exists under another lease.
	ErrMemberAlreadyExists = errors.New("member key already exists", j.C("ERR_b80d274ce5f1a908"))

	// ErrStopped is returned by blocking queries after coordinator shutdown.
	ErrStopped = errors.New("coordinator stopped", j.C("ERR_1fa6c83b07d2e409"))
)
