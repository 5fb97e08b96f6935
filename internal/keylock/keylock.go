// Package keylock serializes work per key inside one process using a fixed
// set of mutex shards. Two keys may share a shard; the same key always maps
// to the same shard.
package keylock

import (
	"hash/fnv"
	"sync"
)

const defaultShards = 64

type Locker struct {
	shards []sync.Mutex
}

// New returns a Locker with n shards; n <= 0 selects the default.
func New(n int) *Locker {
	if n <= 0 {
		n = defaultShards
	}
	return &Locker{shards: make([]sync.Mutex, n)}
}

// Lock acquires the shard for key and returns its unlock func.
func (l *Locker) Lock(key string) func() {
	m := &l.shards[l.index(key)]
	m.Lock()
	return m.Unlock
}

func (l *Locker) index(key string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % uint32(len(l.shards)))
}
