package main

import (
	"encoding/json"

	"go.uber.org/zap"

	"github.com/polyview-dev/polyview/internal/display"
	"github.com/polyview-dev/polyview/internal/lifecycle"
	"github.com/polyview-dev/polyview/internal/transport"
)

// simRuntime stands in for a platform engine factory: each "engine"
// just logs the state changes it receives over its channel. It lets
// the daemon exercise the full attach/fan-out/teardown path without a
// display subsystem.
type simRuntime struct {
	log *zap.Logger
}

func newSimRuntime(log *zap.Logger) *simRuntime {
	return &simRuntime{log: log}
}

func (r *simRuntime) Launch(entrypoint string, d display.Descriptor, ch *transport.Channel) (lifecycle.Engine, error) {
	e := &simEngine{
		log: r.log.With(
			zap.String("entrypoint", entrypoint),
			zap.Int("display", d.ID),
		),
	}
	e.sub = ch.Subscribe(func(typ string, data json.RawMessage) {
		e.log.Info("engine received state change",
			zap.String("type", typ),
			zap.Int("bytes", len(data)),
		)
	})
	e.log.Info("simulated engine launched", zap.String("displayName", d.Name))
	return e, nil
}

type simEngine struct {
	log *zap.Logger
	sub *transport.Subscription
}

func (e *simEngine) Resume() error {
	e.log.Info("engine resumed")
	return nil
}

func (e *simEngine) Pause() error {
	e.log.Info("engine paused")
	return nil
}

func (e *simEngine) Shutdown() error {
	e.sub.Cancel()
	e.log.Info("engine shut down")
	return nil
}
