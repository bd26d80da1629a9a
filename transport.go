package ringhost

import "context"

// Transport delivers encoded packets to peers. Sends are fire-and-forget
// from the coordinator's perspective: Send must queue and return promptly,
// and the returned error is the (possibly asynchronous) completion status
// of handing the packet to the network, not of remote processing.
//
// A send failure is retried a bounded number of times for that peer only;
// after exhaustion the peer is marked unresponsive for the current round.
type Transport interface {
	Send(ctx context.Context, to MemberID, data []byte) error
}

// TransportFunc adapts a function to the Transport interface.
type TransportFunc func(ctx context.Context, to MemberID, data []byte) error

func (f TransportFunc) Send(ctx context.Context, to MemberID, data []byte) error {
	return f(ctx, to, data)
}
