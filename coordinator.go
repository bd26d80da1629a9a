package ringhost

import (
	"context"
	"sync"
	"time"

	"github.com/luno/jettison/errors"
	"github.com/luno/jettison/j"
)

// State is the coordinator round state.
type State int

const (
	StateIdle State = iota
	StateMembersAnnounced
	StateCollecting
	StateAggregating
	StateResultPropagated
	StateConfirmed
	StateFailed
)

// String converts a State to a string.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateMembersAnnounced:
		return "MEMBERS_ANNOUNCED"
	case StateCollecting:
		return "COLLECTING"
	case StateAggregating:
		return "AGGREGATING"
	case StateResultPropagated:
		return "RESULT_PROPAGATED"
	case StateConfirmed:
		return "CONFIRMED"
	case StateFailed:
		return "FAILED"
	default:
		return "UNKNOWN_STATE"
	}
}

type timerKind int

const (
	timerCollect timerKind = iota
	timerAck
	timerRetry
	timerFailedReset
)

type event interface{}

type rawPacketEvent struct {
	raw []byte
}

type membershipEvent struct {
	members []RingMember
}

type timerEvent struct {
	round uint64
	kind  timerKind
}

// Coordinator runs the host election protocol for a single session.
//
// All protocol state is owned by the Run event loop, which consumes
// packets, timer expiries and membership changes from one ordered queue.
// That serialises every state transition, so no locking is needed within a
// session; the small mutex below only guards the published host/state
// snapshot read by other goroutines.
type Coordinator struct {
	session   SessionID
	self      MemberID
	transport Transport
	o         options

	events  chan event
	stopped chan struct{}

	// Owned by the Run loop.
	state          State
	ring           *Ring
	round          uint64
	cur            *collectionRound
	cancelTimer    func()
	result         *ElectionResult
	pendingAcks    map[MemberID]struct{}
	ackResends     int
	roundFailures  int
	unresponsive   map[MemberID]struct{}
	forwardedRound uint64
	ackedRound     uint64
	prevHost       MemberID
	hasPrevHost    bool

	// Published snapshot, guarded by mu.
	mu            sync.Mutex
	pubState      State
	host          MemberID
	hostOK        bool
	hostConfirmed bool
	failErr       error

	hostSignal *Signal
}

// NewCoordinator returns a coordinator for the given session. Call Run to
// start processing events.
func NewCoordinator(session SessionID, self MemberID, t Transport, opts ...Option) *Coordinator {
	return &Coordinator{
		session:      session,
		self:         self,
		transport:    t,
		o:            buildOptions(opts),
		events:       make(chan event, 1024),
		stopped:      make(chan struct{}),
		unresponsive: make(map[MemberID]struct{}),
		hostSignal:   NewSignal(),
	}
}

// Run processes events until ctx is cancelled. Teardown cancels any
// pending timer and discards in-flight round state, so a result computed
// after cancellation is never applied.
func (c *Coordinator) Run(ctx context.Context) error {
	c.o.log.Debug(ctx, "coordinator running", j.KV("session", c.session.String()))
	defer c.o.log.Debug(ctx, "coordinator stopped", j.KV("session", c.session.String()))

	defer close(c.stopped)
	defer c.teardown()

	for {
		select {
		case ev := <-c.events:
			c.handle(ctx, ev)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (c *Coordinator) teardown() {
	c.cancelTimerIf()
	c.cur = nil
	c.pendingAcks = nil
}

// OnPacketReceived hands a raw inbound packet to the coordinator. Decoding
// happens on the event loop; malformed packets are dropped and logged
// without any protocol state change.
func (c *Coordinator) OnPacketReceived(raw []byte) {
	c.enqueue(rawPacketEvent{raw: raw})
}

// OnMembershipChanged hands a new membership snapshot to the coordinator.
// A change mid-round aborts the round and restarts against the new ring.
func (c *Coordinator) OnMembershipChanged(members []RingMember) {
	c.enqueue(membershipEvent{members: members})
}

func (c *Coordinator) enqueue(ev event) {
	select {
	case c.events <- ev:
	case <-c.stopped:
	}
}

// CurrentHost returns the current session host, if any. The host may be a
// degraded fallback; see Err.
func (c *Coordinator) CurrentHost() (MemberID, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.host, c.hostOK
}

// State returns the current coordinator state.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pubState
}

// Err returns the persistent election failure, if host selection has
// degraded to a fallback. It resets on the next confirmed round.
func (c *Coordinator) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.failErr
}

// WaitForHost blocks until a confirmed host is elected, ctx is cancelled,
// or the coordinator stops.
func (c *Coordinator) WaitForHost(ctx context.Context) (MemberID, error) {
	for {
		wait := c.hostSignal.Wait()

		c.mu.Lock()
		host, ok := c.host, c.hostOK && c.hostConfirmed
		c.mu.Unlock()
		if ok {
			return host, nil
		}

		select {
		case <-wait:
		case <-ctx.Done():
			return MemberID{}, ctx.Err()
		case <-c.stopped:
			return MemberID{}, ErrStopped
		}
	}
}

func (c *Coordinator) handle(ctx context.Context, ev event) {
	switch ev := ev.(type) {
	case rawPacketEvent:
		pkt, err := Decode(ev.raw)
		if err != nil {
			// NoReturnErr: Malformed packets are dropped and logged.
			malformedCounter.WithLabelValues(c.session.String()).Inc()
			c.o.log.Info(ctx, "dropping malformed packet", j.MKV{
				"session": c.session.String(), "size": len(ev.raw),
			})
			return
		}
		c.handlePacket(ctx, pkt)
	case membershipEvent:
		c.handleMembership(ctx, ev.members)
	case timerEvent:
		c.handleTimer(ctx, ev)
	}
}

func (c *Coordinator) handlePacket(ctx context.Context, pkt Packet) {
	if pkt.Session != c.session {
		c.o.log.Debug(ctx, "dropping packet for other session", j.MKV{
			"session": c.session.String(), "packet_session": pkt.Session.String(),
		})
		return
	}

	switch pkt.Type {
	case PacketRingMembers:
		c.handleRingMembers(ctx, pkt)
	case PacketStatsCollectionStart:
		c.handleCollectionStart(ctx, pkt)
	case PacketStatsUpdate:
		c.handleStatsUpdate(ctx, pkt)
	case PacketElectionResult:
		c.handleElectionResult(ctx, pkt)
	case PacketStatsAck:
		c.handleAck(ctx, pkt)
	}
}

// handleMembership swaps in a new immutable ring snapshot. Any in-flight
// round is invalidated: hop counts and the ring order itself no longer
// hold under the new membership.
func (c *Coordinator) handleMembership(ctx context.Context, members []RingMember) {
	if len(members) == 0 {
		c.discardRound()
		c.ring = nil
		c.setState(ctx, StateIdle)
		return
	}

	ring, err := NewRing(members)
	if err != nil {
		// NoReturnErr: Unreachable with non-empty members, log and drop.
		c.o.log.Error(ctx, err)
		return
	}
	if c.ring.Equal(ring) && c.state != StateIdle {
		return
	}

	if c.cur != nil || c.state == StateResultPropagated {
		roundsCounter.WithLabelValues(c.session.String(), outcomeChurn).Inc()
		// NoReturnErr: Churn is expected; the round restarts immediately
		// against the new ring, no backoff.
		c.o.log.Error(ctx, errors.Wrap(ErrChurn, "", j.MKV{
			"session": c.session.String(), "round": c.round,
		}))
	}
	c.discardRound()

	changes := diffMembers(c.ring, members)
	// A member that left or re-joined gets a clean slate.
	for _, id := range changes.Left {
		delete(c.unresponsive, id)
	}
	for _, id := range changes.Joined {
		delete(c.unresponsive, id)
	}

	c.ring = ring
	c.setState(ctx, StateMembersAnnounced)

	if !c.isInitiator() {
		return
	}

	snapshot := Packet{
		Header:  c.header(PacketRingMembers),
		Members: c.ring.Members(),
	}
	c.fanOut(ctx, snapshot)
	c.startRound(ctx)
}

// handleRingMembers adopts the ring snapshot broadcast by the session
// owner. Passive members derive the same ring order from the same ids.
func (c *Coordinator) handleRingMembers(ctx context.Context, pkt Packet) {
	ring, err := NewRing(pkt.Members)
	if err != nil {
		// NoReturnErr: Empty snapshot packet, log and drop.
		c.o.log.Error(ctx, errors.Wrap(err, "ring snapshot packet"))
		return
	}
	if c.ring.Equal(ring) {
		return
	}
	c.discardRound()
	c.ring = ring
	if pkt.Round > c.round {
		c.round = pkt.Round
	}
	c.setState(ctx, StateMembersAnnounced)
}

func (c *Coordinator) handleCollectionStart(ctx context.Context, pkt Packet) {
	if c.ring == nil || pkt.Round < c.round {
		return
	}
	if pkt.Round == c.round && c.state == StateCollecting {
		return // duplicate
	}
	c.round = pkt.Round
	c.setState(ctx, StateCollecting)
	c.armTimer(timerCollect, time.Duration(pkt.DeadlineMS)*time.Millisecond)
}

// handleStatsUpdate implements the ring relay. A passive member appends
// its own sample, increments the hop count and forwards to its successor;
// the initiator receiving the token back completes the collection phase.
func (c *Coordinator) handleStatsUpdate(ctx context.Context, pkt Packet) {
	if c.ring == nil || !c.ring.Contains(c.self) {
		return
	}

	if c.isInitiator() {
		if c.state != StateCollecting || c.cur == nil || pkt.Round != c.cur.round {
			c.o.log.Debug(ctx, "dropping stale stats token", j.MKV{
				"session": c.session.String(), "round": pkt.Round, "current": c.round,
			})
			return
		}
		for _, s := range pkt.Stats {
			c.cur.add(s)
		}
		c.cur.add(c.sampleSelf())
		if int(pkt.HopCount)+1 < c.ring.Size() {
			c.o.log.Debug(ctx, "stats token returned early", j.MKV{
				"session": c.session.String(), "hops": pkt.HopCount, "ring_size": c.ring.Size(),
			})
		}
		c.finishCollecting(ctx)
		return
	}

	// Passive relay.
	if pkt.Round < c.round || pkt.Round <= c.forwardedRound {
		return // stale round or duplicate token, no-op
	}
	if pkt.Round > c.round {
		c.round = pkt.Round
		c.setState(ctx, StateCollecting)
	}

	out := pkt
	out.Sender = c.self
	out.HopCount = pkt.HopCount + 1
	out.Stats = make([]NodeStats, 0, len(pkt.Stats)+1)
	var present bool
	for _, s := range pkt.Stats {
		if s.MemberID == c.self {
			present = true
		}
		out.Stats = append(out.Stats, s)
	}
	if !present {
		out.Stats = append(out.Stats, c.sampleSelf())
	}
	c.forwardedRound = pkt.Round

	succ, ok := c.ring.Successor(c.self)
	if !ok || succ.ID == c.self {
		return
	}
	c.send(ctx, succ.ID, out, 0)
}

func (c *Coordinator) handleElectionResult(ctx context.Context, pkt Packet) {
	if c.ring == nil || pkt.Round < c.ackedRound {
		return
	}

	if pkt.Round > c.ackedRound {
		c.ackedRound = pkt.Round
		if pkt.Round > c.round {
			c.round = pkt.Round
		}
		c.cancelTimerIf()
		c.cur = nil
		res := ElectionResult{
			Session:    c.session,
			Round:      pkt.Round,
			Winner:     pkt.Winner,
			Scores:     pkt.Scores,
			ComputedAt: c.o.clock.Now(),
		}
		c.result = &res
		// Every member records the confirmed winner, so all agree on
		// who initiates the next round after churn.
		c.prevHost = pkt.Winner
		c.hasPrevHost = true
		c.setHost(ctx, pkt.Winner, true, nil)
		c.setState(ctx, StateConfirmed)
	}

	// Always (re-)ack: our previous ack may have been lost.
	ack := Packet{
		Header: Header{
			Type:    PacketStatsAck,
			Session: c.session,
			Round:   pkt.Round,
			Sender:  c.self,
		},
		Member: c.self,
	}
	c.send(ctx, pkt.Sender, ack, 0)
}

func (c *Coordinator) handleAck(ctx context.Context, pkt Packet) {
	if c.state != StateResultPropagated || pkt.Round != c.round {
		return // stale or duplicate ack, no-op
	}
	delete(c.pendingAcks, pkt.Member)
	c.maybeConfirm(ctx)
}

func (c *Coordinator) handleTimer(ctx context.Context, ev timerEvent) {
	if ev.round != c.round {
		return // timer from a superseded round
	}

	switch ev.kind {
	case timerCollect:
		if c.state != StateCollecting {
			return
		}
		if !c.isInitiator() {
			// Collection deadline passed without a result; await the
			// next round announcement.
			c.cur = nil
			c.setState(ctx, StateMembersAnnounced)
			return
		}
		if c.cur != nil && c.cur.quorumMet(c.o.quorumFraction) {
			// Token lost on its final hops but enough members contributed.
			c.finishCollecting(ctx)
			return
		}
		c.roundFailed(ctx, errors.Wrap(ErrTimeout, "collection deadline", j.MKV{
			"session": c.session.String(), "round": c.round,
		}), outcomeTimeout)

	case timerAck:
		if c.state != StateResultPropagated {
			return
		}
		if c.ackResends < c.o.ackRetries {
			c.ackResends++
			pkt := c.resultPacket()
			for id := range c.pendingAcks {
				c.send(ctx, id, pkt, 0)
			}
			c.armTimer(timerAck, c.o.ackTimeout)
			return
		}
		// Stragglers are marked unresponsive and excluded from future
		// rounds' candidate pools, but the confirmed result stands.
		for id := range c.pendingAcks {
			c.markUnresponsive(ctx, id)
		}
		c.pendingAcks = nil
		c.confirm(ctx)

	case timerRetry:
		if c.state == StateMembersAnnounced && c.isInitiator() {
			c.startRound(ctx)
		}

	case timerFailedReset:
		if c.state == StateFailed {
			c.setState(ctx, StateIdle)
		}
	}
}

// startRound opens a new collection round. Round ids strictly increase
// within a session and are never reused.
func (c *Coordinator) startRound(ctx context.Context) {
	c.round++
	now := c.o.clock.Now()
	c.cur = newCollectionRound(c.session, c.round, c.ring, c.unresponsive, now, now.Add(c.o.collectTimeout))
	c.ackResends = 0
	c.setState(ctx, StateCollecting)

	c.o.log.Debug(ctx, "starting collection round", j.MKV{
		"session": c.session.String(), "round": c.round, "ring_size": c.ring.Size(),
	})

	if c.ring.Size() == 1 {
		c.cur.add(c.sampleSelf())
		c.finishCollecting(ctx)
		return
	}

	start := Packet{
		Header:     c.header(PacketStatsCollectionStart),
		DeadlineMS: uint64(c.o.collectTimeout.Milliseconds()),
	}
	c.fanOut(ctx, start)

	// Seed the empty accumulator token at our successor.
	succ, _ := c.ring.Successor(c.self)
	token := Packet{Header: c.header(PacketStatsUpdate)}
	c.send(ctx, succ.ID, token, 0)

	c.armTimer(timerCollect, c.o.collectTimeout)
}

func (c *Coordinator) finishCollecting(ctx context.Context) {
	c.cancelTimerIf()
	c.setState(ctx, StateAggregating)

	if !c.cur.quorumMet(c.o.quorumFraction) {
		c.roundFailed(ctx, errors.Wrap(ErrQuorum, "", j.MKV{
			"session":  c.session.String(),
			"round":    c.round,
			"received": len(c.cur.received),
			"expected": len(c.cur.expected),
		}), outcomeQuorum)
		return
	}
	if missing := c.cur.missing(); len(missing) > 0 {
		// Non-contributors are out of this round's candidate pool only.
		c.o.log.Info(ctx, "electing without some members", j.MKV{
			"session": c.session.String(), "round": c.round, "missing": len(missing),
		})
	}

	res, err := Elect(c.session, c.round, c.cur.contributions(), c.o.score, c.o.clock.Now())
	if err != nil {
		// NoReturnErr: No candidates means no usable quorum.
		c.roundFailed(ctx, err, outcomeQuorum)
		return
	}
	c.result = &res
	c.setState(ctx, StateResultPropagated)

	c.pendingAcks = make(map[MemberID]struct{})
	for _, id := range c.ring.IDs() {
		if id == c.self {
			continue
		}
		c.pendingAcks[id] = struct{}{}
	}
	c.fanOut(ctx, c.resultPacket())

	if len(c.pendingAcks) == 0 {
		c.confirm(ctx)
		return
	}
	c.armTimer(timerAck, c.o.ackTimeout)
}

func (c *Coordinator) maybeConfirm(ctx context.Context) {
	if c.state == StateResultPropagated && len(c.pendingAcks) == 0 {
		c.confirm(ctx)
	}
}

func (c *Coordinator) confirm(ctx context.Context) {
	c.cancelTimerIf()

	roundsCounter.WithLabelValues(c.session.String(), outcomeConfirmed).Inc()
	if c.cur != nil {
		roundDurationHist.WithLabelValues(c.session.String()).
			Observe(c.o.clock.Now().Sub(c.cur.startedAt).Seconds())
	}
	c.cur = nil
	c.roundFailures = 0

	c.prevHost = c.result.Winner
	c.hasPrevHost = true
	c.setHost(ctx, c.result.Winner, true, nil)
	c.setState(ctx, StateConfirmed)

	c.o.log.Info(ctx, "session host confirmed", j.MKV{
		"session": c.session.String(), "round": c.round, "host": c.result.Winner.String(),
	})
}

func (c *Coordinator) roundFailed(ctx context.Context, err error, outcome string) {
	roundsCounter.WithLabelValues(c.session.String(), outcome).Inc()
	c.cancelTimerIf()
	c.cur = nil

	if c.roundFailures < c.o.roundRetries {
		c.roundFailures++
		backoff := c.o.retryBackoff << (c.roundFailures - 1)
		c.o.log.Info(ctx, "election round failed, retrying", j.MKV{
			"session": c.session.String(), "round": c.round,
			"attempt": c.roundFailures, "backoff": backoff.String(),
		})
		c.setState(ctx, StateMembersAnnounced)
		c.armTimer(timerRetry, backoff)
		return
	}

	fallback := c.fallbackHost()
	perr := errors.Wrap(err, "election degraded to fallback host", j.MKV{
		"session": c.session.String(), "fallback": fallback.String(),
	})
	c.o.log.Error(ctx, perr)
	roundsCounter.WithLabelValues(c.session.String(), outcomeFallback).Inc()

	c.roundFailures = 0
	c.setHost(ctx, fallback, false, perr)
	c.o.notifyFailure(c.session, perr)
	c.setState(ctx, StateFailed)
	c.armTimer(timerFailedReset, c.o.retryBackoff)
}

// fallbackHost returns the deterministic degraded host: the previous
// confirmed host if still a member, else the lowest-id member.
func (c *Coordinator) fallbackHost() MemberID {
	if c.hasPrevHost && c.ring.Contains(c.prevHost) {
		return c.prevHost
	}
	return c.ring.Owner().ID
}

// isInitiator reports whether this member initiates rounds: the previous
// confirmed host if still a member, else ring position 0.
func (c *Coordinator) isInitiator() bool {
	if c.ring == nil || !c.ring.Contains(c.self) {
		return false
	}
	if c.hasPrevHost && c.ring.Contains(c.prevHost) {
		return c.prevHost == c.self
	}
	return c.ring.Owner().ID == c.self
}

func (c *Coordinator) discardRound() {
	c.cancelTimerIf()
	c.cur = nil
	c.pendingAcks = nil
	c.ackResends = 0
	c.roundFailures = 0
}

func (c *Coordinator) header(t PacketType) Header {
	return Header{
		Type:    t,
		Session: c.session,
		Round:   c.round,
		Sender:  c.self,
	}
}

func (c *Coordinator) resultPacket() Packet {
	return Packet{
		Header: Header{
			Type:    PacketElectionResult,
			Session: c.session,
			Round:   c.result.Round,
			Sender:  c.self,
		},
		Winner: c.result.Winner,
		Scores: c.result.Scores,
	}
}

func (c *Coordinator) sampleSelf() NodeStats {
	s := c.o.sampler.SampleLocalStats()
	s.MemberID = c.self
	if s.SampledAt.IsZero() {
		s.SampledAt = c.o.clock.Now()
	}
	return s
}

// fanOut sends a packet directly to every other ring member.
func (c *Coordinator) fanOut(ctx context.Context, pkt Packet) {
	for _, m := range c.ring.Members() {
		if m.ID == c.self {
			continue
		}
		c.send(ctx, m.ID, pkt, 0)
	}
}

// send encodes and sends a packet, retrying a bounded number of times for
// this peer only. Failures are handled inline on the event loop so all
// reactions stay serialized.
func (c *Coordinator) send(ctx context.Context, to MemberID, pkt Packet, attempt int) {
	raw, err := Encode(pkt)
	if err != nil {
		// NoReturnErr: Encoding our own packets cannot fail; log and drop.
		c.o.log.Error(ctx, err)
		return
	}
	err = c.transport.Send(ctx, to, raw)
	if err == nil {
		return
	}
	if attempt < c.o.peerSendRetries {
		c.o.log.Debug(ctx, "retrying peer send", j.MKV{
			"session": c.session.String(), "peer": to.String(),
			"type": pkt.Type.String(), "attempt": attempt + 1,
		})
		c.send(ctx, to, pkt, attempt+1)
		return
	}
	c.peerUnreachable(ctx, to, pkt, err)
}

// peerUnreachable handles a peer whose send retries are exhausted. The
// peer is marked unresponsive for the current round; the round itself only
// fails if contributions drop below quorum.
func (c *Coordinator) peerUnreachable(ctx context.Context, to MemberID, pkt Packet, err error) {
	c.o.log.Error(ctx, errors.Wrap(ErrTransport, "", j.MKV{
		"session": c.session.String(), "peer": to.String(),
		"type": pkt.Type.String(), "cause": err.Error(),
	}))
	c.markUnresponsive(ctx, to)

	switch pkt.Type {
	case PacketStatsUpdate:
		// Route the token around the dead peer.
		next, ok := c.ring.Successor(to)
		for ok && next.ID != c.self {
			if _, skip := c.unresponsive[next.ID]; !skip {
				break
			}
			next, ok = c.ring.Successor(next.ID)
		}
		if !ok {
			return
		}
		if next.ID != c.self {
			c.send(ctx, next.ID, pkt, 0)
			return
		}
		if c.isInitiator() && c.state == StateCollecting {
			// Every remaining hop was unreachable: the token is back.
			c.handleStatsUpdate(ctx, pkt)
		}
	case PacketElectionResult:
		if c.state == StateResultPropagated {
			delete(c.pendingAcks, to)
			c.maybeConfirm(ctx)
		}
	}
}

func (c *Coordinator) markUnresponsive(ctx context.Context, id MemberID) {
	if _, ok := c.unresponsive[id]; ok {
		return
	}
	c.unresponsive[id] = struct{}{}
	unresponsiveCounter.WithLabelValues(c.session.String()).Inc()
	c.o.log.Info(ctx, "peer marked unresponsive", j.MKV{
		"session": c.session.String(), "peer": id.String(),
	})
}

// armTimer starts the single active deadline timer for the current round,
// cancelling the previous one.
func (c *Coordinator) armTimer(kind timerKind, d time.Duration) {
	c.cancelTimerIf()
	round := c.round
	c.cancelTimer = c.o.clock.Schedule(d, func() {
		c.enqueue(timerEvent{round: round, kind: kind})
	})
}

func (c *Coordinator) cancelTimerIf() {
	if c.cancelTimer != nil {
		c.cancelTimer()
		c.cancelTimer = nil
	}
}

func (c *Coordinator) setState(ctx context.Context, s State) {
	if c.state == s {
		return
	}
	c.state = s

	c.mu.Lock()
	c.pubState = s
	c.mu.Unlock()

	stateGauge.WithLabelValues(c.session.String()).Set(float64(s))
	c.o.log.Debug(ctx, "state transition", j.MKV{
		"session": c.session.String(), "state": s.String(), "round": c.round,
	})
	c.o.notifyState(c.session, s)
}

func (c *Coordinator) setHost(ctx context.Context, host MemberID, confirmed bool, failErr error) {
	c.mu.Lock()
	changed := !c.hostOK || c.host != host || c.hostConfirmed != confirmed
	c.host = host
	c.hostOK = true
	c.hostConfirmed = confirmed
	c.failErr = failErr
	c.mu.Unlock()

	if confirmed {
		hostConfirmedGauge.WithLabelValues(c.session.String()).Set(1)
	} else {
		hostConfirmedGauge.WithLabelValues(c.session.String()).Set(0)
	}

	if changed {
		c.o.notifyHost(c.session, host, confirmed)
		c.hostSignal.Broadcast()
	}
}
