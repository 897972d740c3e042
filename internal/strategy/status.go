// Package strategy drives a target through its bootstrap state graph.
//
// A strategy owns the ordering of hardware actions: power switching,
// console activation, image loading or writing, autoboot interruption.
// Transitions are composable (reaching a distant state first drives
// through its prerequisites), idempotent (transitioning to the current
// state does nothing) and never retried — a failed hardware action
// surfaces immediately rather than risking a double execution of a
// physical side effect.
package strategy

import "fmt"

// Status is a bootstrap state, totally ordered by distance from power-off.
type Status int

const (
	// Unknown is the initial state before the first transition. It is
	// never a valid transition target.
	Unknown Status = iota
	// Off: target powered off.
	Off
	// On: target powered and bootstrapped, bootloader running.
	On
	// Barebox: barebox shell active.
	Barebox
)

func (s Status) String() string {
	switch s {
	case Unknown:
		return "unknown"
	case Off:
		return "off"
	case On:
		return "on"
	case Barebox:
		return "barebox"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// ParseStatus converts a state name from configuration or the command
// line into a Status.
func ParseStatus(name string) (Status, error) {
	switch name {
	case "unknown":
		return Unknown, nil
	case "off":
		return Off, nil
	case "on":
		return On, nil
	case "barebox":
		return Barebox, nil
	default:
		return Unknown, fmt.Errorf("unknown bootstrap state %q", name)
	}
}
