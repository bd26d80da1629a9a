package ringhost

import (
	"bytes"
	"sort"

	"github.com/google/uuid"
)

// MemberID is the 128-bit identifier of a session member. Ids are unique
// within a session and define the total order used to build the ring.
type MemberID uuid.UUID

// SessionID identifies a session.
type SessionID uuid.UUID

func (id MemberID) String() string {
	return uuid.UUID(id).String()
}

// Less orders member ids by their big-endian byte value.
func (id MemberID) Less(other MemberID) bool {
	return bytes.Compare(id[:], other[:]) < 0
}

func (id SessionID) String() string {
	return uuid.UUID(id).String()
}

// ParseMemberID parses the canonical uuid form of a member id.
func ParseMemberID(s string) (MemberID, error) {
	u, err := uuid.Parse(s)
	return MemberID(u), err
}

// ParseSessionID parses the canonical uuid form of a session id.
func ParseSessionID(s string) (SessionID, error) {
	u, err := uuid.Parse(s)
	return SessionID(u), err
}

// RingMember is one member of a session ring. Position is the ordinal in
// the ring and is assigned by NewRing; any value set by the caller is
// ignored.
type RingMember struct {
	ID       MemberID
	Addr     string
	Position int
}

// Ring is an immutable snapshot of the session membership in ring order.
// Members are sorted by id, so every member that sees the same id set
// computes the same ring regardless of input order. Snapshots are replaced
// wholesale on membership changes, never mutated.
type Ring struct {
	members []RingMember
	pos     map[MemberID]int
}

// NewRing builds a ring snapshot from the given members. Duplicate ids
// collapse to a single entry. It returns ErrEmptyRing for zero members.
func NewRing(members []RingMember) (*Ring, error) {
	if len(members) == 0 {
		return nil, ErrEmptyRing
	}

	byID := make(map[MemberID]RingMember, len(members))
	for _, m := range members {
		byID[m.ID] = m
	}

	sorted := make([]RingMember, 0, len(byID))
	for _, m := range byID {
		sorted = append(sorted, m)
	}
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].ID.Less(sorted[j].ID)
	})

	pos := make(map[MemberID]int, len(sorted))
	for i := range sorted {
		sorted[i].Position = i
		pos[sorted[i].ID] = i
	}

	return &Ring{members: sorted, pos: pos}, nil
}

// Size returns the number of members in the ring.
func (r *Ring) Size() int {
	return len(r.members)
}

// Members returns a copy of the members in ring order.
func (r *Ring) Members() []RingMember {
	ret := make([]RingMember, len(r.members))
	copy(ret, r.members)
	return ret
}

// IDs returns the member ids in ring order.
func (r *Ring) IDs() []MemberID {
	ret := make([]MemberID, 0, len(r.members))
	for _, m := range r.members {
		ret = append(ret, m.ID)
	}
	return ret
}

// Contains reports whether id is a member of the ring.
func (r *Ring) Contains(id MemberID) bool {
	_, ok := r.pos[id]
	return ok
}

// Position returns the ring ordinal of id.
func (r *Ring) Position(id MemberID) (int, bool) {
	p, ok := r.pos[id]
	return p, ok
}

// Owner returns the member at ring position 0, the default session owner.
func (r *Ring) Owner() RingMember {
	return r.members[0]
}

// Member returns the ring member with the given id.
func (r *Ring) Member(id MemberID) (RingMember, bool) {
	p, ok := r.pos[id]
	if !ok {
		return RingMember{}, false
	}
	return r.members[p], true
}

// At returns the member at the given position modulo the ring size.
func (r *Ring) At(position int) RingMember {
	n := len(r.members)
	return r.members[((position%n)+n)%n]
}

// Successor returns the next member after id, wrapping at the end.
func (r *Ring) Successor(id MemberID) (RingMember, bool) {
	p, ok := r.pos[id]
	if !ok {
		return RingMember{}, false
	}
	return r.At(p + 1), true
}

// Predecessor returns the member before id, wrapping at the start.
func (r *Ring) Predecessor(id MemberID) (RingMember, bool) {
	p, ok := r.pos[id]
	if !ok {
		return RingMember{}, false
	}
	return r.At(p - 1), true
}

// Equal reports whether two snapshots contain the same members at the same
// addresses. Used to detect churn against an in-flight round.
func (r *Ring) Equal(other *Ring) bool {
	if r == nil || other == nil {
		return r == other
	}
	if len(r.members) != len(other.members) {
		return false
	}
	for i, m := range r.members {
		o := other.members[i]
		if m.ID != o.ID || m.Addr != o.Addr {
			return false
		}
	}
	return true
}
