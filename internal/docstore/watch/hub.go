// Package watch fans document snapshots out to per-path subscribers.
//
// Every subscriber owns a goroutine and a single-slot mailbox: a slow callback
// only ever receives the most recent pending snapshot, and publishers never
// block on subscribers.
package watch

import (
	"context"
	"sync"

	"homebudget/internal/docstore"
)

// Hub routes snapshots to the subscribers of a path.
type Hub struct {
	mu     sync.Mutex
	subs   map[docstore.Path]map[*subscriber]struct{}
	closed bool
}

type subscriber struct {
	fn   func(docstore.Snapshot)
	wake chan struct{}
	done chan struct{}
	once sync.Once

	mu      sync.Mutex
	pending *docstore.Snapshot
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[docstore.Path]map[*subscriber]struct{})}
}

// Subscribe registers fn for p and queues initial as its first snapshot.
// The subscription ends when the returned function is called, ctx is done or
// the hub is closed.
func (h *Hub) Subscribe(ctx context.Context, p docstore.Path, initial docstore.Snapshot, fn func(docstore.Snapshot)) docstore.Unsubscribe {
	s := &subscriber{
		fn:   fn,
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		s.stop()
		return func() {}
	}
	set, ok := h.subs[p]
	if !ok {
		set = make(map[*subscriber]struct{})
		h.subs[p] = set
	}
	set[s] = struct{}{}
	h.mu.Unlock()

	s.offer(initial)
	go s.run()

	unsubscribe := func() {
		h.mu.Lock()
		if set, ok := h.subs[p]; ok {
			delete(set, s)
			if len(set) == 0 {
				delete(h.subs, p)
			}
		}
		h.mu.Unlock()
		s.stop()
	}
	if ctx != nil && ctx.Done() != nil {
		go func() {
			select {
			case <-ctx.Done():
				unsubscribe()
			case <-s.done:
			}
		}()
	}
	return unsubscribe
}

// Publish queues snap for every subscriber of snap.Path.
func (h *Hub) Publish(snap docstore.Snapshot) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for s := range h.subs[snap.Path] {
		s.offer(snap)
	}
}

// Broadcast queues an error snapshot for every subscriber of every path.
func (h *Hub) Broadcast(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for p, set := range h.subs {
		for s := range set {
			s.offer(docstore.Snapshot{Path: p, Err: err})
		}
	}
}

// Subscribers returns the number of live subscriptions on p.
func (h *Hub) Subscribers(p docstore.Path) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[p])
}

// Close stops every subscriber. Later subscriptions are inert.
func (h *Hub) Close() {
	h.mu.Lock()
	all := h.subs
	h.subs = make(map[docstore.Path]map[*subscriber]struct{})
	h.closed = true
	h.mu.Unlock()
	for _, set := range all {
		for s := range set {
			s.stop()
		}
	}
}

func (s *subscriber) offer(snap docstore.Snapshot) {
	s.mu.Lock()
	s.pending = &snap
	s.mu.Unlock()
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *subscriber) stop() {
	s.once.Do(func() { close(s.done) })
}

func (s *subscriber) run() {
	for {
		select {
		case <-s.done:
			return
		case <-s.wake:
		}
		s.mu.Lock()
		snap := s.pending
		s.pending = nil
		s.mu.Unlock()
		if snap == nil {
			continue
		}
		select {
		case <-s.done:
			return
		default:
		}
		s.fn(*snap)
	}
}
