// Package display models physical displays and decides which engine
// entrypoint is attached to which display.
package display

import "strings"

// PortClass is the connector classification derived from a display's
// descriptive name.
type PortClass string

const (
	PortVGA     PortClass = "VGA"
	PortHDMI    PortClass = "HDMI"
	PortBuiltin PortClass = "BUILTIN"
	PortOther   PortClass = "OTHER"
)

// Descriptor describes one physical display as reported by the host's
// display subsystem. Descriptors are discovered at setup time; this
// package never creates or destroys displays.
type Descriptor struct {
	ID      int       `json:"id" yaml:"id"`
	Name    string    `json:"name" yaml:"name"`
	Primary bool      `json:"primary" yaml:"primary"`
	Port    PortClass `json:"port" yaml:"port,omitempty"`
}

// Classify derives a port class from a display name. Matching is a
// case-insensitive substring check; the primary display is always
// BUILTIN.
func Classify(name string, primary bool) PortClass {
	if primary {
		return PortBuiltin
	}
	lower := strings.ToLower(name)
	switch {
	case strings.Contains(lower, "vga"):
		return PortVGA
	case strings.Contains(lower, "hdmi"):
		return PortHDMI
	default:
		return PortOther
	}
}

// Provider enumerates the displays currently known to the host.
type Provider interface {
	Displays() ([]Descriptor, error)
}

// StaticProvider serves a fixed display list, classified once at
// construction. Hosts without a live display subsystem (and tests)
// use it.
type StaticProvider struct {
	displays []Descriptor
}

// NewStaticProvider copies the given descriptors and fills in any
// missing port class from the display name.
func NewStaticProvider(displays []Descriptor) *StaticProvider {
	out := make([]Descriptor, len(displays))
	copy(out, displays)
	for i := range out {
		if out[i].Port == "" {
			out[i].Port = Classify(out[i].Name, out[i].Primary)
		}
	}
	return &StaticProvider{displays: out}
}

// Displays returns a copy of the provider's list in detection order.
func (p *StaticProvider) Displays() ([]Descriptor, error) {
	out := make([]Descriptor, len(p.displays))
	copy(out, p.displays)
	return out, nil
}
