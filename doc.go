// Package ringhost elects the session host for real-time peer sessions.
//
// Every member of a session derives the same ring: a deterministic total
// order over the current member set, sorted by member id. The session owner
// (ring position 0, or the previously confirmed host) runs election rounds:
// a stats token circulates the ring hop by hop, each member appending its
// local performance sample, and the owner elects the member with the best
// composite score once the token returns.
//
// The elected result is fanned out to every member and confirmed with
// explicit acknowledgements. Membership churn aborts the round in flight
// and restarts it against the new ring. Rounds that cannot reach quorum are
// retried with exponential backoff; after the retry budget is exhausted a
// deterministic fallback host is chosen and a persistent error is surfaced.
//
// Each session is driven by a single Coordinator goroutine consuming an
// ordered event queue, so no locking is needed within a session. A Group
// runs many independent session coordinators, and an etcd backed
// SessionRegistry provides membership snapshots and change notifications.
package ringhost
