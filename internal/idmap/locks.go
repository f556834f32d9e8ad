package idmap

import (
	"hash/fnv"
	"sync"
)

const numShards = 64

// keyLocks stripes per-key mutual exclusion over a fixed set of mutexes.
// Two keys may share a stripe; a key never maps to two stripes.
type keyLocks struct {
	shards [numShards]sync.Mutex
}

func (l *keyLocks) lock(key string) func() {
	h := fnv.New32a()
	h.Write([]byte(key))
	m := &l.shards[h.Sum32()%numShards]
	m.Lock()
	return m.Unlock
}
