// Package store implements the authoritative shared-state registry.
// Every engine's view of the application state is reconciled against
// this one structure; it is the single source of truth in the process.
package store

import (
	"sync"

	"go.uber.org/zap"
)

// Payload is the JSON-compatible body of one named state. A nil
// Payload means "absent": the state has never been set, was set
// without a value, or was cleared.
type Payload map[string]any

// Clone returns a deep copy of the payload. Mutating the copy never
// affects the store's entry.
func (p Payload) Clone() Payload {
	if p == nil {
		return nil
	}
	out := make(Payload, len(p))
	for k, v := range p {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = cloneValue(e)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	default:
		return v
	}
}

// Event is one committed change: the state type and the payload it
// now carries (nil after a clear).
type Event struct {
	Type    string
	Payload Payload
}

// Listener receives payloads for a single state type.
type Listener func(Payload)

// Watcher receives every committed change regardless of type.
// Transports use watchers to fan changes out to their engines.
type Watcher func(Event)

// Store is the thread-safe registry of named states and their
// listeners. One mutex guards the entry map and the listener set
// together so a clear-of-missing-type can decide "no change, no
// notification" atomically. Callbacks run on a single dispatch
// goroutine, outside the lock, so a callback may safely re-enter the
// store.
type Store struct {
	mu        sync.Mutex
	entries   map[string]Payload
	listeners map[string]map[uint64]Listener
	watchers  map[uint64]Watcher
	nextID    uint64

	queue *dispatchQueue

	log     *zap.Logger
	metrics *Metrics
}

// Option configures a Store.
type Option func(*Store)

// WithLogger attaches a logger for delivery failures.
func WithLogger(l *zap.Logger) Option {
	return func(s *Store) { s.log = l }
}

// WithMetrics attaches a metrics set updated on every mutation and
// delivery.
func WithMetrics(m *Metrics) Option {
	return func(s *Store) { s.metrics = m }
}

// New creates an empty store and starts its dispatch goroutine.
// The store's intended lifetime is the process lifetime; tests create
// a fresh one per test and Close it.
func New(opts ...Option) *Store {
	s := &Store{
		entries:   make(map[string]Payload),
		listeners: make(map[string]map[uint64]Listener),
		watchers:  make(map[uint64]Watcher),
		log:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.queue = newDispatchQueue(s)
	go s.queue.run()
	return s
}

// Close stops the dispatch goroutine after draining queued
// notifications. Mutations after Close still commit but no longer
// notify.
func (s *Store) Close() {
	s.queue.close()
}

// SetState replaces the entry for typ with a deep copy of payload and
// notifies listeners. A nil payload registers the type with no value,
// which readers observe as absent; this is distinct from ClearState,
// which removes the registration.
func (s *Store) SetState(typ string, payload Payload) {
	s.mu.Lock()
	s.entries[typ] = payload.Clone()
	// Enqueue under the same lock: delivery order must match commit
	// order.
	s.queue.push(delivery{
		event:   Event{Type: typ, Payload: payload.Clone()},
		targets: s.snapshotTargets(typ),
	})
	entries := len(s.entries)
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.Sets.Inc()
		s.metrics.Entries.Set(float64(entries))
	}
}

// GetState returns a point-in-time copy of the payload for typ, or
// nil when the type is unknown or holds no value.
func (s *Store) GetState(typ string) Payload {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.entries[typ].Clone()
}

// GetAllState returns a deep-copied snapshot of every state that
// currently holds a value.
func (s *Store) GetAllState() map[string]Payload {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]Payload, len(s.entries))
	for typ, p := range s.entries {
		if p == nil {
			continue
		}
		out[typ] = p.Clone()
	}
	return out
}

// ClearState removes the entry for typ entirely and notifies with an
// absent payload. Clearing a type that is not registered is a no-op
// and produces no notification; the check and the removal happen
// under the same lock.
func (s *Store) ClearState(typ string) {
	s.mu.Lock()
	if _, ok := s.entries[typ]; !ok {
		s.mu.Unlock()
		return
	}
	delete(s.entries, typ)
	s.queue.push(delivery{
		event:   Event{Type: typ, Payload: nil},
		targets: s.snapshotTargets(typ),
	})
	entries := len(s.entries)
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.Clears.Inc()
		s.metrics.Entries.Set(float64(entries))
	}
}

// AddListener registers fn for changes to typ. The returned
// Subscription cancels the registration; Cancel is idempotent and
// cancelling twice is a no-op.
func (s *Store) AddListener(typ string, fn Listener) *Subscription {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	s.nextID++
	set, ok := s.listeners[typ]
	if !ok {
		set = make(map[uint64]Listener)
		s.listeners[typ] = set
	}
	set[id] = fn
	s.trackListeners()
	return s.subscription(func() { s.removeListener(typ, id) })
}

// Watch registers fn for changes to every type.
func (s *Store) Watch(fn Watcher) *Subscription {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	s.nextID++
	s.watchers[id] = fn
	s.trackListeners()
	return s.subscription(func() { s.removeWatcher(id) })
}

// Types returns the registered state types, including those set with
// an absent payload.
func (s *Store) Types() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]string, 0, len(s.entries))
	for typ := range s.entries {
		out = append(out, typ)
	}
	return out
}

func (s *Store) removeListener(typ string, id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if set, ok := s.listeners[typ]; ok {
		delete(set, id)
		if len(set) == 0 {
			delete(s.listeners, typ)
		}
	}
	s.trackListeners()
}

func (s *Store) removeWatcher(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.watchers, id)
	s.trackListeners()
}

// snapshotTargets copies the callbacks that must see an event for typ.
// Must be called with s.mu held; the dispatcher iterates the snapshot
// while the live set stays free to mutate.
func (s *Store) snapshotTargets(typ string) []target {
	targets := make([]target, 0, len(s.listeners[typ])+len(s.watchers))
	for id, fn := range s.listeners[typ] {
		targets = append(targets, target{id: id, typ: typ, listener: fn})
	}
	for id, fn := range s.watchers {
		targets = append(targets, target{id: id, watcher: fn})
	}
	return targets
}

// trackListeners updates the listener gauge. Must be called with s.mu
// held.
func (s *Store) trackListeners() {
	if s.metrics == nil {
		return
	}
	n := len(s.watchers)
	for _, set := range s.listeners {
		n += len(set)
	}
	s.metrics.Listeners.Set(float64(n))
}

func (s *Store) subscription(cancel func()) *Subscription {
	return &Subscription{cancel: cancel}
}

// Subscription is a handle to a registered listener or watcher.
type Subscription struct {
	once   sync.Once
	cancel func()
}

// Cancel deregisters the callback. Safe to call more than once.
func (s *Subscription) Cancel() {
	s.once.Do(s.cancel)
}
