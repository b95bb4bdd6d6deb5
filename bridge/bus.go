package bridge

import (
	"sync"
	"sync/atomic"

	"keybridge/midi"

	"github.com/charmbracelet/log"
)

// Subscription is a handle returned by Subscribe. Unsubscribe it when the
// owner goes away.
type Subscription struct {
	bus    *bus
	id     uint64
	active atomic.Bool
}

// Unsubscribe stops delivery. A broadcast already in flight skips this
// subscriber from the moment it returns. Safe to call more than once.
func (s *Subscription) Unsubscribe() {
	if s == nil || !s.active.Swap(false) {
		return
	}
	s.bus.remove(s.id)
}

type subscriber struct {
	sub *Subscription
	fn  func(midi.NoteEvent)
}

// bus fans events out to subscribers, isolating each one's panics
type bus struct {
	mu     sync.RWMutex
	next   uint64
	subs   []subscriber
	logger *log.Logger
}

func (b *bus) subscribe(fn func(midi.NoteEvent)) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.next++
	sub := &Subscription{bus: b, id: b.next}
	sub.active.Store(true)
	b.subs = append(b.subs, subscriber{sub: sub, fn: fn})
	return sub
}

func (b *bus) remove(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, s := range b.subs {
		if s.sub.id == id {
			b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
			return
		}
	}
}

func (b *bus) count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

func (b *bus) broadcast(ev midi.NoteEvent) {
	b.mu.RLock()
	subs := b.subs
	b.mu.RUnlock()

	for _, s := range subs {
		if !s.sub.active.Load() {
			continue
		}
		b.deliver(s, ev)
	}
}

func (b *bus) deliver(s subscriber, ev midi.NoteEvent) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Warn("subscriber failed", "subscriber", s.sub.id, "panic", r)
		}
	}()
	s.fn(ev)
}
