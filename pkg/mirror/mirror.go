package mirror

import (
	"encoding/json"
	"reflect"
	"sync"

	"go.uber.org/zap"

	"github.com/polyview-dev/polyview/internal/transport"
)

// SyncState describes how far a mirror has come in its first
// reconciliation with the store.
type SyncState int

const (
	// Unsynced: no cache and no fetch in flight yet.
	Unsynced SyncState = iota
	// Syncing: the initial full-state fetch is in flight; reads
	// return absent unless a newer local or remote change already
	// landed.
	Syncing
	// Synced: the mirror tracks the store. Never reverts while the
	// engine lives.
	Synced
)

func (s SyncState) String() string {
	switch s {
	case Syncing:
		return "SYNCING"
	case Synced:
		return "SYNCED"
	default:
		return "UNSYNCED"
	}
}

// Conduit is the mirror's view of its engine's transport channel.
// *transport.Channel implements it.
type Conduit interface {
	Send(env transport.Envelope) error
	GetAllState() (map[string]json.RawMessage, error)
	Subscribe(h transport.Handler) *transport.Subscription
}

// Observer is called with the mirror's value after every observable
// change. present is false when the state is absent.
type Observer[T any] func(value T, present bool)

// Mirror is the engine-local cache of one state type. It is owned by
// its engine; only serialized payloads cross the store boundary.
//
// Writes are idempotent, not echo-suppressed: a Sync advances the
// local value optimistically and the writer's own change notification
// comes back over the channel, where the equality check drops it.
// Rapid distinct writes from the same engine can still observe their
// own round-trip.
type Mirror[T any] struct {
	typ     string
	conduit Conduit
	codec   Codec[T]
	log     *zap.Logger

	mu        sync.Mutex
	cached    T
	present   bool
	state     SyncState
	touched   bool
	observers map[uint64]Observer[T]
	nextID    uint64

	// outbox holds pushes in the order the cache advanced; one sender
	// goroutine drains it so the store commits writes in that order.
	outbox   []transport.Envelope
	sendCond *sync.Cond
	disposed bool
	sendDone chan struct{}

	readyOnce sync.Once
	ready     chan struct{}

	sub *transport.Subscription
}

// Option configures a mirror.
type Option[T any] func(*Mirror[T])

// WithLogger attaches a logger for decode and push failures.
func WithLogger[T any](l *zap.Logger) Option[T] {
	return func(m *Mirror[T]) { m.log = l }
}

// WithInherited seeds the cache from a full-state snapshot the engine
// received at launch. A mirror seeded this way is Synced immediately
// and skips the initial fetch.
func WithInherited[T any](snapshot map[string]json.RawMessage) Option[T] {
	return func(m *Mirror[T]) {
		data, ok := snapshot[m.typ]
		if !ok {
			return
		}
		v, err := m.codec.Decode(data)
		if err != nil {
			m.log.Warn("ignoring undecodable inherited state",
				zap.String("type", m.typ), zap.Error(err))
			return
		}
		m.cached = v
		m.present = true
	}
}

// New creates a mirror for one state type over the engine's conduit.
// Unless seeded with WithInherited, it starts the asynchronous
// full-state fetch and stays Syncing until that resolves; Ready
// closes on the transition to Synced.
func New[T any](typ string, conduit Conduit, codec Codec[T], opts ...Option[T]) *Mirror[T] {
	m := &Mirror[T]{
		typ:       typ,
		conduit:   conduit,
		codec:     codec,
		log:       zap.NewNop(),
		observers: make(map[uint64]Observer[T]),
		sendDone:  make(chan struct{}),
		ready:     make(chan struct{}),
	}
	m.sendCond = sync.NewCond(&m.mu)
	for _, opt := range opts {
		opt(m)
	}

	m.sub = conduit.Subscribe(m.onRemote)
	go m.sender()

	if m.present {
		m.state = Synced
		m.readyOnce.Do(func() { close(m.ready) })
		return m
	}

	m.state = Syncing
	go m.fetchInitial()
	return m
}

// fetchInitial resolves the first full-state read. A local write or a
// remote change that lands first wins over the fetched value: the
// snapshot is at least as old as either, and is already
// observer-visible if it was applied.
func (m *Mirror[T]) fetchInitial() {
	all, err := m.conduit.GetAllState()
	if err != nil {
		m.log.Warn("initial state fetch failed; mirror starts empty",
			zap.String("type", m.typ), zap.Error(err))
	}

	var notify []Observer[T]
	var value T
	var present bool

	m.mu.Lock()
	if !m.touched {
		if data, ok := all[m.typ]; ok {
			v, decErr := m.codec.Decode(data)
			if decErr != nil {
				m.log.Warn("dropping undecodable state payload",
					zap.String("type", m.typ), zap.Error(decErr))
			} else {
				m.cached = v
				m.present = true
				notify = m.snapshotObservers()
			}
		}
	}
	m.state = Synced
	value, present = m.cached, m.present
	m.mu.Unlock()

	m.readyOnce.Do(func() { close(m.ready) })
	for _, fn := range notify {
		fn(value, present)
	}
}

// Value returns the cached value and whether one is present. While
// the mirror is Syncing the snapshot has not resolved, so this is
// absent unless a local write or remote push already landed; it never
// blocks.
func (m *Mirror[T]) Value() (T, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cached, m.present
}

// State reports the mirror's sync state. Callers that need a "ready"
// signal should use this (or Ready) instead of guessing from value
// presence.
func (m *Mirror[T]) State() SyncState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Ready closes when the mirror first becomes Synced.
func (m *Mirror[T]) Ready() <-chan struct{} {
	return m.ready
}

// Observe registers fn for value changes. It is not called with the
// current value on registration.
func (m *Mirror[T]) Observe(fn Observer[T]) *Subscription {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextID
	m.nextID++
	m.observers[id] = fn
	return &Subscription{cancel: func() { m.unobserve(id) }}
}

func (m *Mirror[T]) unobserve(id uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.observers, id)
}

// Sync writes v. Equal values (value equality) are a no-op with no
// observer notification and no store write. Otherwise the cache and
// observers advance immediately and the serialized payload is queued
// for the store; queued pushes reach the store in write order.
func (m *Mirror[T]) Sync(v T) error {
	data, err := m.codec.Encode(v)
	if err != nil {
		return err
	}

	m.mu.Lock()
	if m.present && reflect.DeepEqual(v, m.cached) {
		m.mu.Unlock()
		return nil
	}
	m.cached = v
	m.present = true
	m.touched = true
	m.outbox = append(m.outbox, transport.Envelope{Method: transport.MethodUpdateState, Type: m.typ, Data: data})
	m.sendCond.Signal()
	notify := m.snapshotObservers()
	m.mu.Unlock()

	for _, fn := range notify {
		fn(v, true)
	}
	return nil
}

// Clear drops the local value, notifies observers, and queues a clear
// for the store behind any earlier writes.
func (m *Mirror[T]) Clear() {
	m.mu.Lock()
	if !m.present {
		m.mu.Unlock()
		return
	}
	var zero T
	m.cached = zero
	m.present = false
	m.touched = true
	m.outbox = append(m.outbox, transport.Envelope{Method: transport.MethodClearState, Type: m.typ})
	m.sendCond.Signal()
	notify := m.snapshotObservers()
	m.mu.Unlock()

	for _, fn := range notify {
		fn(zero, false)
	}
}

// sender drains the outbox on one goroutine so queued pushes reach
// the store in the order the cache advanced.
func (m *Mirror[T]) sender() {
	defer close(m.sendDone)
	for {
		m.mu.Lock()
		for len(m.outbox) == 0 && !m.disposed {
			m.sendCond.Wait()
		}
		if len(m.outbox) == 0 && m.disposed {
			m.mu.Unlock()
			return
		}
		batch := m.outbox
		m.outbox = nil
		m.mu.Unlock()

		for _, env := range batch {
			m.push(env)
		}
	}
}

// push is best-effort: a failed send is logged, never retried here.
// Retry policy, if any, belongs to the transport.
func (m *Mirror[T]) push(env transport.Envelope) {
	if err := m.conduit.Send(env); err != nil {
		m.log.Warn("state push failed",
			zap.String("type", m.typ),
			zap.String("method", env.Method),
			zap.Error(err))
	}
}

// onRemote applies a change pushed from the store. Malformed payloads
// are dropped with the previous value intact; values equal to the
// cache are dropped silently.
func (m *Mirror[T]) onRemote(typ string, data json.RawMessage) {
	if typ != m.typ {
		return
	}

	if data == nil {
		m.mu.Lock()
		// Any remote event postdates the initial snapshot; the fetch
		// must not overwrite what happened here.
		m.touched = true
		if !m.present {
			m.mu.Unlock()
			return
		}
		var zero T
		m.cached = zero
		m.present = false
		notify := m.snapshotObservers()
		m.mu.Unlock()
		for _, fn := range notify {
			fn(zero, false)
		}
		return
	}

	v, err := m.codec.Decode(data)
	if err != nil {
		m.log.Warn("dropping undecodable state payload",
			zap.String("type", m.typ), zap.Error(err))
		return
	}

	m.mu.Lock()
	m.touched = true
	if m.present && reflect.DeepEqual(v, m.cached) {
		m.mu.Unlock()
		return
	}
	m.cached = v
	m.present = true
	notify := m.snapshotObservers()
	m.mu.Unlock()

	for _, fn := range notify {
		fn(v, true)
	}
}

// Dispose deregisters the mirror from its channel and stops the
// sender after the outbox drains. A mirror discarded without Dispose
// leaks its transport subscription.
func (m *Mirror[T]) Dispose() {
	m.sub.Cancel()
	m.mu.Lock()
	m.disposed = true
	m.sendCond.Signal()
	m.mu.Unlock()
	<-m.sendDone
}

// snapshotObservers must be called with m.mu held.
func (m *Mirror[T]) snapshotObservers() []Observer[T] {
	out := make([]Observer[T], 0, len(m.observers))
	for _, fn := range m.observers {
		out = append(out, fn)
	}
	return out
}

// Subscription is a handle to a registered observer.
type Subscription struct {
	once   sync.Once
	cancel func()
}

// Cancel removes the observer. Safe to call more than once.
func (s *Subscription) Cancel() {
	s.once.Do(s.cancel)
}
