package ringhost

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/luno/jettison"
	"github.com/luno/jettison/errors"
	"github.com/stretchr/testify/require"
)

// mid returns a member id whose ordering follows b.
func mid(b byte) MemberID {
	var id MemberID
	id[15] = b
	return id
}

func sid(b byte) SessionID {
	var id SessionID
	id[15] = b
	return id
}

func mem(b byte) RingMember {
	return RingMember{ID: mid(b), Addr: "host" + string('a'+rune(b)) + ":9000"}
}

// fakeClock is a manual clock. Scheduled functions fire synchronously from
// Advance once their deadline is reached.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

type fakeTimer struct {
	at      time.Time
	fn      func()
	stopped bool
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Schedule(d time.Duration, fn func()) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	ti := &fakeTimer{at: c.now.Add(d), fn: fn}
	c.timers = append(c.timers, ti)
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		ti.stopped = true
	}
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	var due []*fakeTimer
	var rest []*fakeTimer
	for _, ti := range c.timers {
		if !ti.stopped && !ti.at.After(c.now) {
			due = append(due, ti)
		} else if !ti.stopped {
			rest = append(rest, ti)
		}
	}
	c.timers = rest
	c.mu.Unlock()

	for _, ti := range due {
		ti.fn()
	}
}

// testTransport records decoded outbound packets and can be told to fail
// sends to specific peers.
type testTransport struct {
	mu   sync.Mutex
	sent []sentPacket
	fail map[MemberID]bool
}

type sentPacket struct {
	To  MemberID
	Pkt Packet
}

func newTestTransport() *testTransport {
	return &testTransport{fail: make(map[MemberID]bool)}
}

func (t *testTransport) Send(_ context.Context, to MemberID, data []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.fail[to] {
		return errors.New("peer unreachable")
	}
	pkt, err := Decode(data)
	if err != nil {
		return err
	}
	t.sent = append(t.sent, sentPacket{To: to, Pkt: pkt})
	return nil
}

func (t *testTransport) failPeer(id MemberID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.fail[id] = true
}

// take returns and clears the recorded packets.
func (t *testTransport) take() []sentPacket {
	t.mu.Lock()
	defer t.mu.Unlock()
	ret := t.sent
	t.sent = nil
	return ret
}

func (t *testTransport) ofType(typ PacketType) []sentPacket {
	t.mu.Lock()
	defer t.mu.Unlock()
	var ret []sentPacket
	for _, sp := range t.sent {
		if sp.Pkt.Type == typ {
			ret = append(ret, sp)
		}
	}
	return ret
}

// drain processes all queued coordinator events synchronously so tests can
// drive the event loop without running it on a goroutine.
func drain(t *testing.T, c *Coordinator) {
	t.Helper()
	ctx := context.Background()
	for {
		select {
		case ev := <-c.events:
			c.handle(ctx, ev)
		default:
			return
		}
	}
}

// recordingLogger captures logged errors for assertions.
type recordingLogger struct {
	mu   sync.Mutex
	errs []error
}

func (l *recordingLogger) Debug(context.Context, string, ...jettison.Option) {}
func (l *recordingLogger) Info(context.Context, string, ...jettison.Option)  {}

func (l *recordingLogger) Error(_ context.Context, err error, _ ...jettison.Option) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errs = append(l.errs, err)
}

func (l *recordingLogger) hasError(target error) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, err := range l.errs {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func fixedSampler(s NodeStats) SamplerFunc {
	return func() NodeStats {
		return s
	}
}

func requireState(t *testing.T, c *Coordinator, want State) {
	t.Helper()
	require.Equal(t, want.String(), c.State().String())
}
