package host

import (
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/polyview-dev/polyview/internal/store"
	"github.com/polyview-dev/polyview/internal/transport"
)

// EngineClient is the engine-side face of the shared state: the same
// four operations the host has, running over the engine's transport
// channel. An engine entrypoint receives its channel at launch and
// wraps it in a client.
type EngineClient struct {
	channel *transport.Channel
	log     *zap.Logger
}

// NewEngineClient wraps the channel handed to an engine at launch.
func NewEngineClient(ch *transport.Channel, log *zap.Logger) *EngineClient {
	if log == nil {
		log = zap.NewNop()
	}
	return &EngineClient{channel: ch, log: log}
}

// Channel exposes the underlying conduit for building mirrors.
func (c *EngineClient) Channel() *transport.Channel { return c.channel }

// UpdateState pushes a payload for typ to the store.
func (c *EngineClient) UpdateState(typ string, payload store.Payload) error {
	if typ == "" {
		return ErrEmptyType
	}
	var data json.RawMessage
	if payload != nil {
		bytes, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode state %q: %w", typ, err)
		}
		data = bytes
	}
	return c.channel.Send(transport.Envelope{
		Method: transport.MethodUpdateState,
		Type:   typ,
		Data:   data,
	})
}

// GetState reads the current payload for typ through the channel;
// nil means absent.
func (c *EngineClient) GetState(typ string) (store.Payload, error) {
	if typ == "" {
		return nil, ErrEmptyType
	}
	data, err := c.channel.GetState(typ)
	if err != nil || data == nil {
		return nil, err
	}
	var payload store.Payload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("decode state %q: %w", typ, err)
	}
	return payload, nil
}

// GetAllState reads a snapshot of every state holding a value.
func (c *EngineClient) GetAllState() (map[string]store.Payload, error) {
	raw, err := c.channel.GetAllState()
	if err != nil {
		return nil, err
	}
	out := make(map[string]store.Payload, len(raw))
	for typ, data := range raw {
		var payload store.Payload
		if err := json.Unmarshal(data, &payload); err != nil {
			return nil, fmt.Errorf("decode state %q: %w", typ, err)
		}
		out[typ] = payload
	}
	return out, nil
}

// ClearState removes typ entirely.
func (c *EngineClient) ClearState(typ string) error {
	if typ == "" {
		return ErrEmptyType
	}
	return c.channel.Send(transport.Envelope{
		Method: transport.MethodClearState,
		Type:   typ,
	})
}
