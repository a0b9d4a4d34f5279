package display

// Assignment pairs one secondary display with the entrypoint that
// will run on it.
type Assignment struct {
	Display    Descriptor `json:"display"`
	Entrypoint string     `json:"entrypoint"`
}

// Assign produces the deterministic (display, entrypoint) pairing.
//
// The primary display always runs the host itself and is never
// paired. In port-based mode, VGA-named displays are promoted ahead
// of everything else, each group keeping its original detection
// order; ties inside a group are resolved by that stable order alone.
// With portBased false the raw detection order is used.
//
// Pairing is positional: excess displays stay unassigned, excess
// entrypoints are never launched.
func Assign(displays []Descriptor, entrypoints []string, portBased bool) []Assignment {
	ordered := order(displays, portBased)

	n := len(ordered)
	if len(entrypoints) < n {
		n = len(entrypoints)
	}

	out := make([]Assignment, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, Assignment{Display: ordered[i], Entrypoint: entrypoints[i]})
	}
	return out
}

// Secondary returns the non-primary displays in the order the policy
// would pair them.
func Secondary(displays []Descriptor, portBased bool) []Descriptor {
	return order(displays, portBased)
}

func order(displays []Descriptor, portBased bool) []Descriptor {
	var secondary []Descriptor
	for _, d := range displays {
		if d.Primary {
			continue
		}
		secondary = append(secondary, d)
	}
	if !portBased {
		return secondary
	}

	ordered := make([]Descriptor, 0, len(secondary))
	for _, d := range secondary {
		if port(d) == PortVGA {
			ordered = append(ordered, d)
		}
	}
	for _, d := range secondary {
		if port(d) != PortVGA {
			ordered = append(ordered, d)
		}
	}
	return ordered
}

// port falls back to name classification for providers that do not
// fill in the class themselves.
func port(d Descriptor) PortClass {
	if d.Port != "" {
		return d.Port
	}
	return Classify(d.Name, d.Primary)
}
