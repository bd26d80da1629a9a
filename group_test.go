package ringhost

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/luno/jettison/errors"
	"github.com/luno/jettison/j"
	"github.com/luno/jettison/jtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memRegistry is an in-memory SessionRegistry for tests.
type memRegistry struct {
	mu       sync.Mutex
	sessions map[SessionID]map[MemberID]RingMember
	signal   *Signal
}

func newMemRegistry() *memRegistry {
	return &memRegistry{
		sessions: make(map[SessionID]map[MemberID]RingMember),
		signal:   NewSignal(),
	}
}

func (r *memRegistry) Join(_ context.Context, session SessionID, member RingMember) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	members, ok := r.sessions[session]
	if !ok {
		members = make(map[MemberID]RingMember)
		r.sessions[session] = members
	}
	if _, ok := members[member.ID]; ok {
		return errors.Wrap(ErrMemberAlreadyExists, "", j.KV("member", member.ID.String()))
	}
	members[member.ID] = member
	r.signal.Broadcast()
	return nil
}

func (r *memRegistry) Leave(_ context.Context, session SessionID, member MemberID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions[session], member)
	r.signal.Broadcast()
	return nil
}

func (r *memRegistry) CurrentMembers(_ context.Context, session SessionID) ([]RingMember, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ret []RingMember
	for _, m := range r.sessions[session] {
		ret = append(ret, m)
	}
	return ret, nil
}

func (r *memRegistry) Watch(ctx context.Context, session SessionID, fn func([]RingMember)) error {
	for {
		wait := r.signal.Wait()
		members, _ := r.CurrentMembers(ctx, session)
		fn(members)

		select {
		case <-wait:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func TestGroupJoinWaitLeave(t *testing.T) {
	reg := newMemRegistry()
	g := NewGroup(reg, newTestTransport(), mem(1))
	defer g.Shutdown()

	ctx := context.Background()
	require.NoError(t, g.Join(ctx, sid(1)))

	waitCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	host, err := g.WaitForHost(waitCtx, sid(1))
	require.NoError(t, err)
	assert.Equal(t, mid(1), host)

	// Packets for unjoined sessions are dropped without panicking.
	g.Deliver(sid(9), []byte{1, 2, 3})

	_, ok := g.Coordinator(sid(9))
	assert.False(t, ok)

	require.NoError(t, g.Leave(ctx, sid(1)))
	members, err := reg.CurrentMembers(ctx, sid(1))
	require.NoError(t, err)
	assert.Empty(t, members)
}

func TestGroupDuplicateJoin(t *testing.T) {
	reg := newMemRegistry()
	g := NewGroup(reg, newTestTransport(), mem(1))
	defer g.Shutdown()

	ctx := context.Background()
	require.NoError(t, g.Join(ctx, sid(1)))

	err := g.Join(ctx, sid(1))
	jtest.Require(t, ErrMemberAlreadyExists, err)
}

func TestGroupTwoNodeElection(t *testing.T) {
	reg := newMemRegistry()

	// Route packets between the two in-process nodes by member id.
	var mu sync.Mutex
	nodes := make(map[MemberID]*Group)
	route := TransportFunc(func(_ context.Context, to MemberID, data []byte) error {
		pkt, err := Decode(data)
		if err != nil {
			return err
		}
		mu.Lock()
		g, ok := nodes[to]
		mu.Unlock()
		if !ok {
			return errors.New("unknown node")
		}
		g.Deliver(pkt.Session, data)
		return nil
	})

	g1 := NewGroup(reg, route, mem(1),
		WithSampler(fixedSampler(statsFor(mid(1), 50, 30, 0.5, 2048))))
	defer g1.Shutdown()
	g2 := NewGroup(reg, route, mem(2),
		WithSampler(fixedSampler(statsFor(mid(2), 200, 5, 0.8, 4096))))
	defer g2.Shutdown()

	mu.Lock()
	nodes[mid(1)] = g1
	nodes[mid(2)] = g2
	mu.Unlock()

	ctx := context.Background()
	require.NoError(t, g1.Join(ctx, sid(1)))
	require.NoError(t, g2.Join(ctx, sid(1)))

	// Both nodes converge on the better-provisioned host.
	for _, g := range []*Group{g1, g2} {
		g := g
		require.Eventually(t, func() bool {
			coord, ok := g.Coordinator(sid(1))
			if !ok {
				return false
			}
			host, ok := coord.CurrentHost()
			return ok && host == mid(2) && coord.State() == StateConfirmed
		}, 5*time.Second, 10*time.Millisecond)
	}
}
