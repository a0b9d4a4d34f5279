// Package lifecycle owns the set of running engines and translates
// host lifecycle events into per-engine signals.
package lifecycle

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/polyview-dev/polyview/internal/display"
	"github.com/polyview-dev/polyview/internal/store"
	"github.com/polyview-dev/polyview/internal/transport"
)

// Engine is one isolated execution context created by the host's
// runtime. The controller only signals it; rendering is the engine's
// own business.
type Engine interface {
	Resume() error
	Pause() error
	Shutdown() error
}

// Runtime creates engines. The host embeds its platform-specific
// engine factory behind this interface; tests use fakes.
type Runtime interface {
	// Launch starts entrypoint on the given display, with ch as its
	// link back to the store.
	Launch(entrypoint string, d display.Descriptor, ch *transport.Channel) (Engine, error)
}

// Handle is a point-in-time snapshot of one attached engine, safe to
// hold and read from any goroutine. The primary display's engine is
// the host application itself and never gets a handle.
type Handle struct {
	ID         string
	Entrypoint string
	DisplayID  int
	Alive      bool
}

// engineHandle is the controller's live record of one engine. The
// active set is the source of aliveness: a record is removed on
// teardown, never flagged.
type engineHandle struct {
	id         string
	entrypoint string
	displayID  int
	engine     Engine
	channel    *transport.Channel
}

func (h *engineHandle) snapshot() Handle {
	return Handle{ID: h.id, Entrypoint: h.entrypoint, DisplayID: h.displayID, Alive: true}
}

// Controller wires engines to the store and fans lifecycle signals
// out to them.
type Controller struct {
	store   *store.Store
	runtime Runtime
	log     *zap.Logger

	mu      sync.Mutex
	handles []*engineHandle
}

// NewController creates a controller with no attached engines.
func NewController(s *store.Store, r Runtime, log *zap.Logger) *Controller {
	if log == nil {
		log = zap.NewNop()
	}
	return &Controller{store: s, runtime: r, log: log}
}

// Attach opens a transport channel, launches entrypoint on d, and
// registers the resulting engine. On launch failure the channel is
// closed again before the error is returned; engines attached earlier
// are unaffected.
func (c *Controller) Attach(d display.Descriptor, entrypoint string) (Handle, error) {
	ch := transport.Open(c.store, c.log)

	eng, err := c.runtime.Launch(entrypoint, d, ch)
	if err != nil {
		ch.Close()
		return Handle{}, fmt.Errorf("launch %q on display %d: %w", entrypoint, d.ID, err)
	}

	h := &engineHandle{
		id:         uuid.NewString(),
		entrypoint: entrypoint,
		displayID:  d.ID,
		engine:     eng,
		channel:    ch,
	}

	c.mu.Lock()
	c.handles = append(c.handles, h)
	c.mu.Unlock()

	c.log.Info("engine attached",
		zap.String("engine", h.id),
		zap.String("entrypoint", entrypoint),
		zap.Int("display", d.ID),
	)
	return h.snapshot(), nil
}

// ResumeAll forwards a resume signal to every live engine. A failure
// on one engine is logged and does not block the others.
func (c *Controller) ResumeAll() {
	for _, h := range c.active() {
		if err := h.engine.Resume(); err != nil {
			c.log.Warn("engine resume failed", zap.String("engine", h.id), zap.Error(err))
		}
	}
}

// PauseAll forwards a pause signal to every live engine, independent
// per engine like ResumeAll.
func (c *Controller) PauseAll() {
	for _, h := range c.active() {
		if err := h.engine.Pause(); err != nil {
			c.log.Warn("engine pause failed", zap.String("engine", h.id), zap.Error(err))
		}
	}
}

// TeardownAll shuts every engine down, closes its channel, and clears
// the active set. Safe to call when already empty, and safe to call
// twice.
func (c *Controller) TeardownAll() {
	c.mu.Lock()
	handles := c.handles
	c.handles = nil
	c.mu.Unlock()

	for _, h := range handles {
		if err := h.engine.Shutdown(); err != nil {
			c.log.Warn("engine shutdown failed", zap.String("engine", h.id), zap.Error(err))
		}
		h.channel.Close()
	}
}

// Handles returns a snapshot of the active engine set.
func (c *Controller) Handles() []Handle {
	out := make([]Handle, 0)
	for _, h := range c.active() {
		out = append(out, h.snapshot())
	}
	return out
}

func (c *Controller) active() []*engineHandle {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*engineHandle, len(c.handles))
	copy(out, c.handles)
	return out
}

// Host lifecycle hooks, exposed verbatim to the embedder.

// OnHostStart resumes every engine.
func (c *Controller) OnHostStart() { c.ResumeAll() }

// OnHostStop pauses every engine.
func (c *Controller) OnHostStop() { c.PauseAll() }

// OnHostDetach tears every engine down.
func (c *Controller) OnHostDetach() { c.TeardownAll() }
