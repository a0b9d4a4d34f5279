package transport

import (
	"encoding/json"
	"sync"

	"go.uber.org/zap"

	"github.com/polyview-dev/polyview/internal/store"
)

// Handler receives pushed state changes on the engine side of a
// channel.
type Handler func(typ string, data json.RawMessage)

// Channel is the duplex link between one engine and the store. The
// store side fans committed changes in; the engine side applies
// writes and serves reads. All pushes to the engine are delivered on
// one goroutine per channel, in the order the store committed them.
type Channel struct {
	store *store.Store
	log   *zap.Logger

	mu       sync.Mutex
	cond     *sync.Cond
	inbox    []Envelope
	handlers map[uint64]Handler
	nextID   uint64
	closed   bool
	done     chan struct{}

	watch *store.Subscription
}

// Open wires a new channel to s and starts its delivery goroutine.
func Open(s *store.Store, log *zap.Logger) *Channel {
	if log == nil {
		log = zap.NewNop()
	}
	c := &Channel{
		store:    s,
		log:      log,
		handlers: make(map[uint64]Handler),
		done:     make(chan struct{}),
	}
	c.cond = sync.NewCond(&c.mu)
	c.watch = s.Watch(c.onStoreChange)
	go c.deliver()
	return c
}

// onStoreChange runs on the store's dispatch goroutine. The payload
// is serialized here, before it crosses into the engine's side.
func (c *Channel) onStoreChange(ev store.Event) {
	var data json.RawMessage
	if ev.Payload != nil {
		bytes, err := json.Marshal(ev.Payload)
		if err != nil {
			c.log.Error("dropping unserializable state change",
				zap.String("type", ev.Type), zap.Error(err))
			return
		}
		data = bytes
	}

	c.mu.Lock()
	if !c.closed {
		c.inbox = append(c.inbox, Envelope{Method: MethodOnStateChanged, Type: ev.Type, Data: data})
		c.cond.Signal()
	}
	c.mu.Unlock()
}

func (c *Channel) deliver() {
	defer close(c.done)
	for {
		c.mu.Lock()
		for len(c.inbox) == 0 && !c.closed {
			c.cond.Wait()
		}
		if len(c.inbox) == 0 && c.closed {
			c.mu.Unlock()
			return
		}
		batch := c.inbox
		c.inbox = nil
		handlers := make([]Handler, 0, len(c.handlers))
		for _, h := range c.handlers {
			handlers = append(handlers, h)
		}
		c.mu.Unlock()

		for _, env := range batch {
			for _, h := range handlers {
				h(env.Type, env.Data)
			}
		}
	}
}

// Subscribe registers a handler for pushed state changes. The
// returned subscription must be cancelled before the subscriber is
// discarded.
func (c *Channel) Subscribe(h Handler) *Subscription {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextID
	c.nextID++
	c.handlers[id] = h
	return &Subscription{cancel: func() { c.unsubscribe(id) }}
}

func (c *Channel) unsubscribe(id uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.handlers, id)
}

// Send applies an engine-originated envelope to the store. Only
// updateState and clearState travel this direction; reads use
// GetState/GetAllState.
func (c *Channel) Send(env Envelope) error {
	if c.isClosed() {
		return ErrClosed
	}
	switch env.Method {
	case MethodUpdateState:
		var payload store.Payload
		if env.Data != nil {
			if err := json.Unmarshal(env.Data, &payload); err != nil {
				return err
			}
		}
		c.store.SetState(env.Type, payload)
		return nil
	case MethodClearState:
		c.store.ClearState(env.Type)
		return nil
	default:
		return errUnknownMethod(env.Method)
	}
}

// GetState reads one state through the channel, serialized. A nil
// result means absent.
func (c *Channel) GetState(typ string) (json.RawMessage, error) {
	if c.isClosed() {
		return nil, ErrClosed
	}
	payload := c.store.GetState(typ)
	if payload == nil {
		return nil, nil
	}
	return json.Marshal(payload)
}

// GetAllState reads the full state snapshot through the channel,
// serialized per type.
func (c *Channel) GetAllState() (map[string]json.RawMessage, error) {
	if c.isClosed() {
		return nil, ErrClosed
	}
	all := c.store.GetAllState()
	out := make(map[string]json.RawMessage, len(all))
	for typ, payload := range all {
		bytes, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		out[typ] = bytes
	}
	return out, nil
}

// Close detaches the channel from the store and stops delivery after
// the inbox drains. Idempotent.
func (c *Channel) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		<-c.done
		return
	}
	c.closed = true
	c.cond.Signal()
	c.mu.Unlock()

	c.watch.Cancel()
	<-c.done
}

func (c *Channel) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Subscription is a handle to a registered channel handler.
type Subscription struct {
	once   sync.Once
	cancel func()
}

// NewSubscription wraps a cancel func in a Subscription. Alternative
// Conduit implementations (and test fakes) build their handles with
// it.
func NewSubscription(cancel func()) *Subscription {
	return &Subscription{cancel: cancel}
}

// Cancel removes the handler. Safe to call more than once.
func (s *Subscription) Cancel() {
	s.once.Do(s.cancel)
}

type errUnknownMethod string

func (e errUnknownMethod) Error() string {
	return "unknown transport method: " + string(e)
}
