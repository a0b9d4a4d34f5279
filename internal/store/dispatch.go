package store

import (
	"sync"

	"go.uber.org/zap"
)

// target is one callback captured in a listener-set snapshot. Either
// listener or watcher is set, never both.
type target struct {
	id       uint64
	typ      string
	listener Listener
	watcher  Watcher
}

// delivery is one committed change plus the snapshot of callbacks
// taken under the store lock at commit time.
type delivery struct {
	event   Event
	targets []target
}

// dispatchQueue serializes all callback invocation onto one
// goroutine. Deliveries are queued in commit order, so any single
// listener observes changes to its type in the order they were
// applied, and no callback ever runs concurrently with itself.
type dispatchQueue struct {
	store *Store

	mu      sync.Mutex
	cond    *sync.Cond
	pending []delivery
	closed  bool
	done    chan struct{}
}

func newDispatchQueue(s *Store) *dispatchQueue {
	q := &dispatchQueue{store: s, done: make(chan struct{})}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// push enqueues a delivery. Never blocks the mutating caller; the
// queue is unbounded so SetState/ClearState stay fire-and-forget.
func (q *dispatchQueue) push(d delivery) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.pending = append(q.pending, d)
	q.cond.Signal()
	q.mu.Unlock()
}

// close drains remaining deliveries, then stops the run loop. Blocks
// until the loop exits.
func (q *dispatchQueue) close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		<-q.done
		return
	}
	q.closed = true
	q.cond.Signal()
	q.mu.Unlock()
	<-q.done
}

func (q *dispatchQueue) run() {
	defer close(q.done)
	for {
		q.mu.Lock()
		for len(q.pending) == 0 && !q.closed {
			q.cond.Wait()
		}
		if len(q.pending) == 0 && q.closed {
			q.mu.Unlock()
			return
		}
		batch := q.pending
		q.pending = nil
		q.mu.Unlock()

		for _, d := range batch {
			q.deliver(d)
		}
	}
}

func (q *dispatchQueue) deliver(d delivery) {
	for _, t := range d.targets {
		q.invoke(d.event, t)
	}
	if q.store.metrics != nil {
		q.store.metrics.Notifications.Add(float64(len(d.targets)))
	}
}

// invoke runs a single callback, recovering a panic. A panicking
// callback is permanently deregistered so one broken listener cannot
// poison delivery for the rest.
func (q *dispatchQueue) invoke(ev Event, t target) {
	defer func() {
		if r := recover(); r != nil {
			q.store.log.Error("state listener panicked; deregistering",
				zap.String("type", ev.Type),
				zap.Any("panic", r),
			)
			if q.store.metrics != nil {
				q.store.metrics.ListenerFailures.Inc()
			}
			if t.listener != nil {
				q.store.removeListener(t.typ, t.id)
			} else {
				q.store.removeWatcher(t.id)
			}
		}
	}()

	if t.listener != nil {
		t.listener(ev.Payload)
	} else {
		t.watcher(ev)
	}
}
