// Package host is the public entry point: it brings up one engine per
// secondary display and exposes the shared-state operations to the
// host application and its engines.
package host

import (
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/polyview-dev/polyview/internal/display"
	"github.com/polyview-dev/polyview/internal/lifecycle"
	"github.com/polyview-dev/polyview/internal/store"
)

// Host owns the store, the display pairing, and the engine set. Its
// lifetime is the process lifetime; construct one explicitly and pass
// it where it is needed rather than reaching for a global.
type Host struct {
	store      *store.Store
	provider   display.Provider
	controller *lifecycle.Controller
	log        *zap.Logger

	mu          sync.Mutex
	setupDone   bool
	assignments []display.Assignment
}

// Option configures a Host.
type Option func(*Host)

// WithLogger attaches a logger, shared with the store and controller.
func WithLogger(l *zap.Logger) Option {
	return func(h *Host) { h.log = l }
}

// WithStore substitutes a caller-built store, e.g. one carrying
// metrics or pre-restored state.
func WithStore(s *store.Store) Option {
	return func(h *Host) { h.store = s }
}

// New builds a host around the platform's engine runtime and display
// provider.
func New(runtime lifecycle.Runtime, provider display.Provider, opts ...Option) *Host {
	h := &Host{provider: provider, log: zap.NewNop()}
	for _, opt := range opts {
		opt(h)
	}
	if h.store == nil {
		h.store = store.New(store.WithLogger(h.log))
	}
	h.controller = lifecycle.NewController(h.store, runtime, h.log)
	return h
}

// SetupMultiDisplay enumerates displays, pairs them with entrypoints
// (VGA-first when portBased), and attaches one engine per pairing.
// Must be called exactly once, before any display-targeted UI starts;
// a second call returns ErrSetupDone.
//
// A failed attachment is rolled back and reported without disturbing
// displays attached earlier; the combined error is returned after
// every pairing has been tried. Zero secondary displays is success.
func (h *Host) SetupMultiDisplay(entrypoints []string, portBased bool) error {
	h.mu.Lock()
	if h.setupDone {
		h.mu.Unlock()
		return ErrSetupDone
	}
	h.setupDone = true
	h.mu.Unlock()

	displays, err := h.provider.Displays()
	if err != nil {
		return fmt.Errorf("enumerate displays: %w", err)
	}

	assignments := display.Assign(displays, entrypoints, portBased)

	var errs []error
	attached := assignments[:0:0]
	for _, a := range assignments {
		if _, err := h.controller.Attach(a.Display, a.Entrypoint); err != nil {
			errs = append(errs, err)
			continue
		}
		attached = append(attached, a)
	}

	h.mu.Lock()
	h.assignments = attached
	h.mu.Unlock()

	h.log.Info("multi-display setup complete",
		zap.Int("displays", len(displays)),
		zap.Int("attached", len(attached)),
		zap.Int("failed", len(errs)),
		zap.Bool("portBased", portBased),
	)
	return errors.Join(errs...)
}

// Assignments returns the pairings that attached successfully.
func (h *Host) Assignments() []display.Assignment {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]display.Assignment, len(h.assignments))
	copy(out, h.assignments)
	return out
}

// UpdateState replaces the payload for typ. A nil payload registers
// the type with no value, which readers see as absent.
func (h *Host) UpdateState(typ string, payload store.Payload) error {
	if typ == "" {
		return ErrEmptyType
	}
	h.store.SetState(typ, payload)
	return nil
}

// GetState reads the current payload for typ; nil means absent.
func (h *Host) GetState(typ string) (store.Payload, error) {
	if typ == "" {
		return nil, ErrEmptyType
	}
	return h.store.GetState(typ), nil
}

// GetAllState returns a snapshot copy of every state holding a value.
func (h *Host) GetAllState() (map[string]store.Payload, error) {
	return h.store.GetAllState(), nil
}

// ClearState removes typ entirely.
func (h *Host) ClearState(typ string) error {
	if typ == "" {
		return ErrEmptyType
	}
	h.store.ClearState(typ)
	return nil
}

// AddListener registers a host-side callback for changes to typ.
func (h *Host) AddListener(typ string, fn store.Listener) (*store.Subscription, error) {
	if typ == "" {
		return nil, ErrEmptyType
	}
	return h.store.AddListener(typ, fn), nil
}

// Store exposes the authoritative store for wiring inspection
// surfaces.
func (h *Host) Store() *store.Store { return h.store }

// Engines returns a snapshot of the attached engine handles.
func (h *Host) Engines() []lifecycle.Handle { return h.controller.Handles() }

// OnHostStart resumes every engine.
func (h *Host) OnHostStart() { h.controller.OnHostStart() }

// OnHostStop pauses every engine.
func (h *Host) OnHostStop() { h.controller.OnHostStop() }

// OnHostDetach tears every engine down and closes its channels.
// Idempotent.
func (h *Host) OnHostDetach() { h.controller.OnHostDetach() }

// Close tears the engines down and stops the store's dispatcher.
func (h *Host) Close() {
	h.controller.TeardownAll()
	h.store.Close()
}
