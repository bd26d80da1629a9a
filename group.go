package ringhost

import (
	"context"
	"sync"
	"time"

	"github.com/luno/jettison/errors"
	"github.com/luno/jettison/j"
	"golang.org/x/sync/errgroup"
)

const groupShardCount = 16

// Group runs a host election coordinator for every session this node is a
// member of. It keeps each coordinator fed with membership snapshots from
// the registry and restarts it should the registry watch fail.
//
// Sessions are spread over a fixed set of shards by consistent hashing so
// that inbound packet routing does not contend on a single lock.
type Group struct {
	registry  SessionRegistry
	transport Transport
	self      RingMember
	opts      []Option
	log       Logger

	ctx    context.Context
	cancel context.CancelFunc

	shards [groupShardCount]*groupShard
}

type groupShard struct {
	mu       sync.Mutex
	sessions map[SessionID]*groupSession
}

type groupSession struct {
	coord    *Coordinator
	cancel   context.CancelFunc
	finished chan struct{}
}

// NewGroup returns a group for the given node. Call Shutdown to stop all
// session coordinators and clean up.
func NewGroup(registry SessionRegistry, transport Transport, self RingMember, opts ...Option) *Group {
	ctx, cancel := context.WithCancel(context.Background())
	g := &Group{
		registry:  registry,
		transport: transport,
		self:      self,
		opts:      opts,
		log:       buildOptions(opts).log,
		ctx:       ctx,
		cancel:    cancel,
	}
	for i := range g.shards {
		g.shards[i] = &groupShard{sessions: make(map[SessionID]*groupSession)}
	}
	return g
}

func (g *Group) shard(session SessionID) *groupShard {
	return g.shards[SessionShard(session, groupShardCount)]
}

// Join registers this node in the session and starts its coordinator.
func (g *Group) Join(ctx context.Context, session SessionID) error {
	err := g.registry.Join(ctx, session, g.self)
	if err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(g.ctx)
	gs := &groupSession{
		coord:    NewCoordinator(session, g.self.ID, g.transport, g.opts...),
		cancel:   cancel,
		finished: make(chan struct{}),
	}

	sh := g.shard(session)
	sh.mu.Lock()
	if _, ok := sh.sessions[session]; ok {
		sh.mu.Unlock()
		cancel()
		return errors.New("already joined session", j.KV("session", session.String()))
	}
	sh.sessions[session] = gs
	sh.mu.Unlock()

	go g.runSession(runCtx, session, sh, gs)
	return nil
}

// Leave stops the session's coordinator and deregisters this node.
func (g *Group) Leave(ctx context.Context, session SessionID) error {
	sh := g.shard(session)
	sh.mu.Lock()
	gs, ok := sh.sessions[session]
	delete(sh.sessions, session)
	sh.mu.Unlock()
	if !ok {
		return errors.New("not a session member", j.KV("session", session.String()))
	}

	gs.cancel()
	<-gs.finished
	return g.registry.Leave(ctx, session, g.self.ID)
}

func (g *Group) runSession(ctx context.Context, session SessionID, sh *groupShard, gs *groupSession) {
	g.log.Debug(ctx, "running session coordinator", j.KV("session", session.String()))
	defer g.log.Debug(ctx, "stopped session coordinator", j.KV("session", session.String()))

	defer close(gs.finished)

	sh.mu.Lock()
	coord := gs.coord
	sh.mu.Unlock()

	for ctx.Err() == nil {
		err := g.runSessionOnce(ctx, coord)
		if err != nil && !errors.IsAny(err, context.Canceled) {
			// NoReturnErr: Log and restart the coordinator.
			g.log.Error(ctx, errors.Wrap(err, "session coordinator", j.KV("session", session.String())))
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(10 * time.Second):
		}

		// A coordinator's event loop only runs once, so restarts get a
		// fresh one.
		coord = NewCoordinator(session, g.self.ID, g.transport, g.opts...)
		sh.mu.Lock()
		gs.coord = coord
		sh.mu.Unlock()
	}
}

// runSessionOnce runs the coordinator alongside a registry watch that
// feeds it membership snapshots, until either fails or ctx is cancelled.
func (g *Group) runSessionOnce(ctx context.Context, coord *Coordinator) error {
	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		return coord.Run(ctx)
	})
	eg.Go(func() error {
		return g.registry.Watch(ctx, coord.session, coord.OnMembershipChanged)
	})
	return eg.Wait()
}

// Deliver routes a raw inbound packet to the session's coordinator.
// Packets for sessions this node has not joined are dropped.
func (g *Group) Deliver(session SessionID, raw []byte) {
	coord, ok := g.Coordinator(session)
	if !ok {
		g.log.Debug(g.ctx, "dropping packet for unjoined session", j.KV("session", session.String()))
		return
	}
	coord.OnPacketReceived(raw)
}

// Coordinator returns the running coordinator for a joined session.
func (g *Group) Coordinator(session SessionID) (*Coordinator, bool) {
	sh := g.shard(session)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	gs, ok := sh.sessions[session]
	if !ok || gs.coord == nil {
		return nil, false
	}
	return gs.coord, true
}

// WaitForHost blocks until the session has a confirmed host.
func (g *Group) WaitForHost(ctx context.Context, session SessionID) (MemberID, error) {
	coord, ok := g.Coordinator(session)
	if !ok {
		return MemberID{}, errors.New("not a session member", j.KV("session", session.String()))
	}
	return coord.WaitForHost(ctx)
}

// Shutdown synchronously stops all session coordinators.
func (g *Group) Shutdown() {
	g.log.Debug(g.ctx, "shutting down session group")
	g.cancel()
	for _, sh := range g.shards {
		sh.mu.Lock()
		sessions := make([]*groupSession, 0, len(sh.sessions))
		for _, gs := range sh.sessions {
			sessions = append(sessions, gs)
		}
		sh.sessions = make(map[SessionID]*groupSession)
		sh.mu.Unlock()

		for _, gs := range sessions {
			<-gs.finished
		}
	}
}
