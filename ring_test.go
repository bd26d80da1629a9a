package ringhost

import (
	"testing"

	"github.com/luno/jettison/jtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRingOrderIndependence(t *testing.T) {
	orders := [][]RingMember{
		{mem(1), mem(2), mem(3)},
		{mem(3), mem(1), mem(2)},
		{mem(2), mem(3), mem(1)},
	}

	for _, members := range orders {
		r, err := NewRing(members)
		require.NoError(t, err)

		assert.Equal(t, []MemberID{mid(1), mid(2), mid(3)}, r.IDs())
		for i, m := range r.Members() {
			assert.Equal(t, i, m.Position)
		}
	}
}

func TestNewRingEmpty(t *testing.T) {
	_, err := NewRing(nil)
	jtest.Require(t, ErrEmptyRing, err)
}

func TestNewRingDuplicatesCollapse(t *testing.T) {
	r, err := NewRing([]RingMember{mem(1), mem(2), mem(1)})
	require.NoError(t, err)
	assert.Equal(t, 2, r.Size())
}

func TestSuccessorWraps(t *testing.T) {
	r, err := NewRing([]RingMember{mem(1), mem(2), mem(3)})
	require.NoError(t, err)

	succ, ok := r.Successor(mid(3))
	require.True(t, ok)
	assert.Equal(t, mid(1), succ.ID)

	succ, ok = r.Successor(mid(1))
	require.True(t, ok)
	assert.Equal(t, mid(2), succ.ID)

	_, ok = r.Successor(mid(9))
	assert.False(t, ok)
}

func TestPredecessorWraps(t *testing.T) {
	r, err := NewRing([]RingMember{mem(1), mem(2), mem(3)})
	require.NoError(t, err)

	pred, ok := r.Predecessor(mid(1))
	require.True(t, ok)
	assert.Equal(t, mid(3), pred.ID)
}

func TestSingleMemberSuccessor(t *testing.T) {
	r, err := NewRing([]RingMember{mem(7)})
	require.NoError(t, err)

	succ, ok := r.Successor(mid(7))
	require.True(t, ok)
	assert.Equal(t, mid(7), succ.ID)
}

func TestOwnerIsLowestID(t *testing.T) {
	r, err := NewRing([]RingMember{mem(9), mem(4), mem(6)})
	require.NoError(t, err)
	assert.Equal(t, mid(4), r.Owner().ID)
}

func TestRingEqual(t *testing.T) {
	a, err := NewRing([]RingMember{mem(1), mem(2)})
	require.NoError(t, err)
	b, err := NewRing([]RingMember{mem(2), mem(1)})
	require.NoError(t, err)
	assert.True(t, a.Equal(b))

	c, err := NewRing([]RingMember{mem(1), mem(2), mem(3)})
	require.NoError(t, err)
	assert.False(t, a.Equal(c))

	moved := []RingMember{mem(1), {ID: mid(2), Addr: "elsewhere:9000"}}
	d, err := NewRing(moved)
	require.NoError(t, err)
	assert.False(t, a.Equal(d))
}
