package host

import (
	"errors"

	"github.com/polyview-dev/polyview/internal/store"
)

var (
	// ErrEmptyType is returned when a state operation names no type.
	// The check happens here, at the API boundary; an empty type
	// never reaches the store.
	ErrEmptyType = errors.New("state type must not be empty")
	// ErrSetupDone is returned when SetupMultiDisplay is called more
	// than once.
	ErrSetupDone = errors.New("multi-display setup already performed")
)

// --- Functional interfaces (interface segregation) ---

// StateReader defines the read operations shared by the host facade
// and the engine client.
type StateReader interface {
	GetState(typ string) (store.Payload, error)
	GetAllState() (map[string]store.Payload, error)
}

// StateWriter defines the write operations shared by the host facade
// and the engine client.
type StateWriter interface {
	UpdateState(typ string, payload store.Payload) error
	ClearState(typ string) error
}

// Lifecycle is what the embedder forwards its own lifecycle into.
type Lifecycle interface {
	OnHostStart()
	OnHostStop()
	OnHostDetach()
}

// --- Composite ---

// StateAccess combines the per-type operations every party sees.
type StateAccess interface {
	StateReader
	StateWriter
}
