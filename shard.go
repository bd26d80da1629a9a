package ringhost

import (
	"encoding/binary"
	"hash/fnv"

	"github.com/dgryski/go-jump"
)

// SessionShard allocates sessions to shards (somewhat) evenly.
// We ensure that if shardCount is increased, sessions only move onto new
// shards, never between existing ones.
func SessionShard(session SessionID, shardCount int) int {
	// Convert session id to uint64 hash key
	h := fnv.New64a()
	_, _ = h.Write(session[:])
	b := h.Sum(nil)
	key := binary.BigEndian.Uint64(b[len(b)-8:])

	// Get the session shard (hash the key to a bucket)
	return int(jump.Hash(key, shardCount))
}
