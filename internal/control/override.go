// internal/control/override.go
package control

import "fmt"

// Override replaces a computed decision. It never touches BMS flags.
type Override uint8

const (
	OverrideAuto Override = iota
	OverrideOn
	OverrideOff
)

// Apply returns the effective decision.
func (o Override) Apply(computed bool) bool {
	switch o {
	case OverrideOn:
		return true
	case OverrideOff:
		return false
	default:
		return computed
	}
}

func (o Override) String() string {
	switch o {
	case OverrideOn:
		return "on"
	case OverrideOff:
		return "off"
	default:
		return "auto"
	}
}

// ParseOverride accepts "auto", "on", "off" and the empty string (auto).
func ParseOverride(s string) (Override, error) {
	switch s {
	case "", "auto":
		return OverrideAuto, nil
	case "on":
		return OverrideOn, nil
	case "off":
		return OverrideOff, nil
	default:
		return OverrideAuto, fmt.Errorf("control: unknown override %q", s)
	}
}
