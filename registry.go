package ringhost

import (
	"context"
	"path"
	"strings"
	"time"

	"github.com/luno/jettison/errors"
	"github.com/luno/jettison/j"
	clientv3 "go.etcd.io/etcd/client/v3"
	"go.etcd.io/etcd/client/v3/concurrency"
)

const registryRefresh = time.Minute

// SessionRegistry tracks which members belong to which session. The
// coordinator consumes its snapshots via OnMembershipChanged; it never
// interprets registry state itself.
type SessionRegistry interface {
	// Join registers a member of a session. It returns
	// ErrMemberAlreadyExists if another live instance holds the member key.
	Join(ctx context.Context, session SessionID, member RingMember) error

	// Leave removes a member from a session.
	Leave(ctx context.Context, session SessionID, member MemberID) error

	// CurrentMembers returns the session's current members.
	CurrentMembers(ctx context.Context, session SessionID) ([]RingMember, error)

	// Watch blocks, invoking fn with a fresh membership snapshot after
	// every join or leave, until ctx is cancelled or the watch fails.
	// fn is also invoked once with the initial snapshot.
	Watch(ctx context.Context, session SessionID, fn func(members []RingMember)) error
}

// EtcdRegistry is a SessionRegistry backed by etcd. Member keys are
// created under <prefix>/<session>/<member> with the session's lease, so a
// crashed member disappears from the registry when its lease expires.
type EtcdRegistry struct {
	sess   *concurrency.Session
	prefix string
	log    Logger
}

// NewEtcdRegistry returns a registry rooted at the given key prefix.
func NewEtcdRegistry(sess *concurrency.Session, prefix string, log Logger) *EtcdRegistry {
	if log == nil {
		log = noopLogger{}
	}
	return &EtcdRegistry{
		sess:   sess,
		prefix: prefix,
		log:    log,
	}
}

func (r *EtcdRegistry) memberKey(session SessionID, member MemberID) string {
	return path.Join(r.prefix, session.String(), member.String())
}

func (r *EtcdRegistry) sessionPrefix(session SessionID) string {
	return path.Join(r.prefix, session.String()) + "/"
}

func (r *EtcdRegistry) Join(ctx context.Context, session SessionID, member RingMember) error {
	key := r.memberKey(session, member.ID)

	cmp := clientv3.Compare(clientv3.CreateRevision(key), "=", 0)
	// If the key doesn't exist, put it with our lease.
	put := clientv3.OpPut(key, member.Addr, clientv3.WithLease(r.sess.Lease()))
	// If it does exist, get it, so we can see who owns it.
	get := clientv3.OpGet(key)
	resp, err := r.sess.Client().Txn(ctx).If(cmp).Then(put).Else(get).Commit()
	if err != nil {
		return errors.Wrap(err, "put member key")
	}
	if !resp.Succeeded {
		owner := resp.Responses[0].GetResponseRange().Kvs[0].Lease
		return errors.Wrap(ErrMemberAlreadyExists, "", j.MKV{
			"owner_lease": owner,
			"member_key":  key,
			"my_lease":    r.sess.Lease(),
		})
	}
	r.log.Debug(ctx, "joined session", j.MKV{
		"session": session.String(), "member": member.ID.String(),
	})
	return nil
}

func (r *EtcdRegistry) Leave(ctx context.Context, session SessionID, member MemberID) error {
	_, err := r.sess.Client().Delete(ctx, r.memberKey(session, member))
	if err != nil {
		return errors.Wrap(err, "delete member key")
	}
	return nil
}

func (r *EtcdRegistry) CurrentMembers(ctx context.Context, session SessionID) ([]RingMember, error) {
	prefix := r.sessionPrefix(session)
	resp, err := r.sess.Client().Get(ctx, prefix, clientv3.WithPrefix())
	if err != nil {
		return nil, errors.Wrap(err, "etcd get members")
	}

	ret := make([]RingMember, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		name := strings.TrimPrefix(string(kv.Key), prefix)
		id, err := ParseMemberID(name)
		if err != nil {
			return nil, errors.Wrap(err, "invalid member key", j.MKV{
				"key": string(kv.Key),
			})
		}
		ret = append(ret, RingMember{ID: id, Addr: string(kv.Value)})
	}
	return ret, nil
}

// Watch re-lists the session members whenever a key under the session
// prefix is created or deleted. Modifications (lease keep-alives) are
// ignored. A periodic refresh heals any missed events.
func (r *EtcdRegistry) Watch(ctx context.Context, session SessionID, fn func(members []RingMember)) error {
	prefix := r.sessionPrefix(session)

	watchChan := r.sess.Client().Watch(ctx, prefix, clientv3.WithPrefix())
	refresh := time.NewTimer(0)
	defer refresh.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-r.sess.Done():
			return errors.New("etcd session expired", j.KV("session", session.String()))
		case resp := <-watchChan:
			if resp.Err() != nil {
				return errors.Wrap(resp.Err(), "watch members")
			}
			if !anyCreateOrDelete(resp.Events) {
				continue
			}
			r.log.Debug(ctx, "received session member changes", j.KV("session", session.String()))
		case <-refresh.C:
			refresh.Reset(registryRefresh)
		}

		members, err := r.CurrentMembers(ctx, session)
		if err != nil {
			return err
		}
		fn(members)
	}
}

func anyCreateOrDelete(events []*clientv3.Event) bool {
	for _, ev := range events {
		if !ev.IsModify() {
			return true
		}
	}
	return false
}
