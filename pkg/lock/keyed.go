// Package lock provides keyed mutual exclusion with bounded waits.
package lock

import (
	"errors"
	"hash/fnv"
	"sync"
	"time"
)

const numShards = 16

// ErrBusy is returned when a lock cannot be acquired within the wait bound.
var ErrBusy = errors.New("resource busy: lock acquisition timed out")

// KeyedMutex serializes operations per key (wallet ID, allocation key).
// Acquisition waits at most the configured timeout, so a contended caller
// gets ErrBusy instead of blocking indefinitely. Slots are refcounted and
// reclaimed once the last holder or waiter lets go, so the table stays
// proportional to live contention rather than to every key ever locked.
type KeyedMutex struct {
	shards  [numShards]*lockShard
	timeout time.Duration
}

// slot holds the lock channel plus a count of holders and waiters keeping
// the map entry alive.
type slot struct {
	ch   chan struct{}
	refs int
}

type lockShard struct {
	mu    sync.Mutex
	items map[string]*slot
}

// NewKeyedMutex creates a lock table with the given acquisition timeout.
func NewKeyedMutex(timeout time.Duration) *KeyedMutex {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	k := &KeyedMutex{timeout: timeout}
	for i := 0; i < numShards; i++ {
		k.shards[i] = &lockShard{items: make(map[string]*slot)}
	}
	return k
}

func (k *KeyedMutex) getShard(key string) *lockShard {
	h := fnv.New32a()
	h.Write([]byte(key))
	return k.shards[h.Sum32()%numShards]
}

// ref returns the slot for key with one reference taken.
func (k *KeyedMutex) ref(key string) *slot {
	shard := k.getShard(key)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	s, ok := shard.items[key]
	if !ok {
		s = &slot{ch: make(chan struct{}, 1)}
		shard.items[key] = s
	}
	s.refs++
	return s
}

// unref drops one reference and deletes the slot when nobody holds or waits.
func (k *KeyedMutex) unref(key string) {
	shard := k.getShard(key)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	s, ok := shard.items[key]
	if !ok {
		return
	}
	s.refs--
	if s.refs <= 0 {
		delete(shard.items, key)
	}
}

// Acquire takes the lock for key, waiting at most the configured timeout.
// Callers must release on every exit path, including failure.
func (k *KeyedMutex) Acquire(key string) error {
	s := k.ref(key)
	select {
	case s.ch <- struct{}{}:
		return nil
	default:
	}

	timer := time.NewTimer(k.timeout)
	defer timer.Stop()
	select {
	case s.ch <- struct{}{}:
		return nil
	case <-timer.C:
		k.unref(key)
		return ErrBusy
	}
}

// Release frees the lock for key.
func (k *KeyedMutex) Release(key string) {
	shard := k.getShard(key)
	shard.mu.Lock()
	s, ok := shard.items[key]
	shard.mu.Unlock()
	if !ok {
		// releasing an unheld lock is a programming error; keep it non-fatal
		return
	}

	select {
	case <-s.ch:
	default:
	}
	k.unref(key)
}

// size reports how many keys currently have live slots. Test hook.
func (k *KeyedMutex) size() int {
	total := 0
	for _, shard := range k.shards {
		shard.mu.Lock()
		total += len(shard.items)
		shard.mu.Unlock()
	}
	return total
}
