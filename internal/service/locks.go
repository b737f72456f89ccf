package service

import (
	"fmt"
	"hash/fnv"
	"sync"

	"github.com/opsdesk/helpdesk/internal/domain"
)

const lockShards = 64

// entityLocks serializes read-modify-write sequences per entity so two
// concurrent updates to the same row cannot compute diffs against a
// stale snapshot. Striped to bound memory; a shard collision only
// costs contention, never correctness.
type entityLocks struct {
	shards [lockShards]sync.Mutex
}

func newEntityLocks() *entityLocks {
	return &entityLocks{}
}

// lock acquires the shard for the entity and returns its release func.
func (l *entityLocks) lock(target domain.TargetType, id int64) func() {
	shard := &l.shards[shardIndex(target, id)]
	shard.Lock()
	return shard.Unlock
}

func shardIndex(target domain.TargetType, id int64) uint32 {
	h := fnv.New32a()
	fmt.Fprintf(h, "%s:%d", target, id)
	return h.Sum32() % lockShards
}
