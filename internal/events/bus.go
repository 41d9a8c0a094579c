package events

import (
	"sync"
)

// lossless topics never lose their newest payload: when a subscriber lags,
// the oldest buffered item is evicted so the latest alert still lands. A
// ledger alert that silently vanishes would defeat the halt-and-reconcile
// contract, so it gets this treatment; high-volume topics like profit ticks
// simply drop when a consumer cannot keep up.
var lossless = map[Event]bool{
	EventLedgerAlert: true,
}

type subscriber struct {
	ch chan any
}

// Bus is the in-process broker connecting the ledger, lifecycle, and profit
// layers to their listeners (websocket clients, notifier sinks).
type Bus struct {
	mu      sync.RWMutex
	subs    map[Event][]*subscriber
	dropped map[Event]uint64
}

// NewBus creates an event bus.
func NewBus() *Bus {
	return &Bus{
		subs:    make(map[Event][]*subscriber),
		dropped: make(map[Event]uint64),
	}
}

// Subscribe registers a listener for an event and returns the delivery
// channel and an unsubscribe function. The buffer bounds how far the
// listener may lag before the topic's overflow policy kicks in.
func (b *Bus) Subscribe(e Event, buffer int) (<-chan any, func()) {
	if buffer < 1 {
		buffer = 1
	}
	sub := &subscriber{ch: make(chan any, buffer)}

	b.mu.Lock()
	b.subs[e] = append(b.subs[e], sub)
	b.mu.Unlock()

	unsub := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		subs := b.subs[e]
		for i, s := range subs {
			if s == sub {
				close(s.ch)
				b.subs[e] = append(subs[:i], subs[i+1:]...)
				break
			}
		}
	}

	return sub.ch, unsub
}

// Publish fans the payload out to every subscriber without blocking the
// caller. Slow subscribers on a lossless topic have their oldest buffered
// item evicted; on any other topic the payload is counted and dropped.
func (b *Bus) Publish(e Event, payload any) {
	b.mu.RLock()
	subs := b.subs[e]
	evict := lossless[e]
	b.mu.RUnlock()

	var droppedNow uint64
	for _, sub := range subs {
		select {
		case sub.ch <- payload:
			continue
		default:
		}

		if evict {
			select {
			case <-sub.ch:
			default:
			}
			select {
			case sub.ch <- payload:
				continue
			default:
			}
		}
		droppedNow++
	}

	if droppedNow > 0 {
		b.mu.Lock()
		b.dropped[e] += droppedNow
		b.mu.Unlock()
	}
}

// Dropped reports how many payloads on the topic were discarded because a
// subscriber could not keep up.
func (b *Bus) Dropped(e Event) uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.dropped[e]
}
