package ringhost

import (
	"context"
	"time"

	"github.com/luno/jettison"
	"github.com/luno/jettison/log"
)

const (
	defaultCollectTimeout  = 2 * time.Second
	defaultAckTimeout      = time.Second
	defaultRetryBackoff    = 500 * time.Millisecond
	defaultRoundRetries    = 3
	defaultPeerSendRetries = 2
	defaultAckRetries      = 2
	defaultQuorumFraction  = 0.5
)

type Option func(*options)

// WithLogger returns an option to override the default noop logger.
func WithLogger(l Logger) Option {
	return func(o *options) {
		o.log = l
	}
}

// WithClock returns an option to override the wall clock, used by tests
// to drive deadlines deterministically.
func WithClock(c Clock) Option {
	return func(o *options) {
		o.clock = c
	}
}

// WithSampler returns an option to override the default best-effort local
// stats sampler.
func WithSampler(s StatsSampler) Option {
	return func(o *options) {
		o.sampler = s
	}
}

// WithScoreConfig returns an option to override the election scoring
// parameters.
func WithScoreConfig(c ScoreConfig) Option {
	return func(o *options) {
		o.score = c
	}
}

// WithQuorumFraction returns an option to override the quorum fraction.
// A round needs strictly more than fraction*expected contributions.
func WithQuorumFraction(f float64) Option {
	return func(o *options) {
		o.quorumFraction = f
	}
}

// WithCollectTimeout returns an option to override the collection phase
// deadline.
func WithCollectTimeout(d time.Duration) Option {
	return func(o *options) {
		o.collectTimeout = d
	}
}

// WithAckTimeout returns an option to override the result-ack deadline.
func WithAckTimeout(d time.Duration) Option {
	return func(o *options) {
		o.ackTimeout = d
	}
}

// WithRetryBudget returns an option to override the bounded retry counts:
// round-level retries, per-peer send retries and result re-broadcasts.
func WithRetryBudget(roundRetries, peerSendRetries, ackRetries int) Option {
	return func(o *options) {
		o.roundRetries = roundRetries
		o.peerSendRetries = peerSendRetries
		o.ackRetries = ackRetries
	}
}

// WithRetryBackoff returns an option to override the base backoff between
// failed rounds. Backoff doubles per consecutive failure.
func WithRetryBackoff(d time.Duration) Option {
	return func(o *options) {
		o.retryBackoff = d
	}
}

// WithNotifyHost registers a callback fired when the session host changes.
// Confirmed is false for fallback hosts chosen after a failed election.
func WithNotifyHost(f func(session SessionID, host MemberID, confirmed bool)) Option {
	return func(o *options) {
		o.notifyHost = f
	}
}

// WithNotifyState registers a callback fired on state transitions.
func WithNotifyState(f func(session SessionID, s State)) Option {
	return func(o *options) {
		o.notifyState = f
	}
}

// WithNotifyFailure registers a callback fired when a session degrades to
// a fallback host after exhausting the retry budget.
func WithNotifyFailure(f func(session SessionID, err error)) Option {
	return func(o *options) {
		o.notifyFailure = f
	}
}

type options struct {
	log     Logger
	clock   Clock
	sampler StatsSampler
	score   ScoreConfig

	quorumFraction float64
	collectTimeout time.Duration
	ackTimeout     time.Duration
	retryBackoff   time.Duration

	roundRetries    int
	peerSendRetries int
	ackRetries      int

	notifyHost    func(session SessionID, host MemberID, confirmed bool)
	notifyState   func(session SessionID, s State)
	notifyFailure func(session SessionID, err error)
}

func buildOptions(opts []Option) options {
	o := options{
		clock:           realClock{},
		score:           DefaultScoreConfig(),
		quorumFraction:  defaultQuorumFraction,
		collectTimeout:  defaultCollectTimeout,
		ackTimeout:      defaultAckTimeout,
		retryBackoff:    defaultRetryBackoff,
		roundRetries:    defaultRoundRetries,
		peerSendRetries: defaultPeerSendRetries,
		ackRetries:      defaultAckRetries,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.log == nil {
		o.log = noopLogger{}
	}
	if o.sampler == nil {
		o.sampler = localSampler{clock: o.clock}
	}
	if o.notifyHost == nil {
		o.notifyHost = func(SessionID, MemberID, bool) {}
	}
	if o.notifyState == nil {
		o.notifyState = func(SessionID, State) {}
	}
	if o.notifyFailure == nil {
		o.notifyFailure = func(SessionID, error) {}
	}
	return o
}

// Logger is the logging interface consumed by this package.
type Logger interface {
	Debug(ctx context.Context, msg string, opts ...jettison.Option)
	Info(ctx context.Context, msg string, opts ...jettison.Option)
	Error(ctx context.Context, err error, opts ...jettison.Option)
}

type noopLogger struct{}

func (noopLogger) Debug(context.Context, string, ...jettison.Option) {}
func (noopLogger) Info(context.Context, string, ...jettison.Option)  {}
func (noopLogger) Error(context.Context, error, ...jettison.Option)  {}

// JettisonLogger logs via jettison/log.
type JettisonLogger struct{}

func (JettisonLogger) Debug(ctx context.Context, msg string, opts ...jettison.Option) {
	opts = append(opts, log.WithLevel(log.LevelDebug))
	log.Info(ctx, msg, opts...)
}

func (JettisonLogger) Info(ctx context.Context, msg string, opts ...jettison.Option) {
	log.Info(ctx, msg, opts...)
}

func (JettisonLogger) Error(ctx context.Context, err error, opts ...jettison.Option) {
	log.Error(ctx, err, opts...)
}
