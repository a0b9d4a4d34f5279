// Package transport carries state traffic between the host's store
// and one engine. Both ends live in the same process; payloads still
// cross the boundary serialized so no engine ever shares a map with
// the store.
package transport

import (
	"encoding/json"
	"errors"
)

// Methods understood on a channel. These are the wire-level message
// shapes; the mirror and engine client hide them from callers.
const (
	MethodUpdateState    = "updateState"
	MethodGetState       = "getState"
	MethodGetAllState    = "getAllState"
	MethodClearState     = "clearState"
	MethodOnStateChanged = "onStateChanged"
)

// ErrClosed is returned by operations on a channel whose engine has
// been detached.
var ErrClosed = errors.New("transport channel closed")

// Envelope is one message on a channel.
type Envelope struct {
	Method string          `json:"method"`
	Type   string          `json:"type,omitempty"`
	Data   json.RawMessage `json:"data,omitempty"`
}
