package selection

import "fmt"

// Mode is what the next ride map click will pick.
type Mode string

const (
	ModeNone    Mode = "none"
	ModePickup  Mode = "pickup"
	ModeDropoff Mode = "dropoff"
)

// validTransitions is the whole state machine. Every mode can reach every
// other one and none is terminal.
var validTransitions = map[Mode][]Mode{
	ModeNone:    {ModePickup, ModeDropoff, ModeNone},
	ModePickup:  {ModeDropoff, ModePickup, ModeNone},
	ModeDropoff: {ModePickup, ModeDropoff, ModeNone},
}

// IsValid returns true if m is a recognized mode.
func (m Mode) IsValid() bool {
	_, exists := validTransitions[m]
	return exists
}

// CanTransitionTo returns true if moving from m to target is allowed.
func (m Mode) CanTransitionTo(target Mode) bool {
	for _, t := range validTransitions[m] {
		if t == target {
			return true
		}
	}
	return false
}

// Awaiting reports whether a click is expected.
func (m Mode) Awaiting() bool {
	return m == ModePickup || m == ModeDropoff
}

func (m Mode) String() string {
	return string(m)
}

// ParseMode converts a string to a Mode. The empty string means none.
func ParseMode(s string) (Mode, error) {
	if s == "" {
		return ModeNone, nil
	}
	m := Mode(s)
	if !m.IsValid() {
		return "", fmt.Errorf("invalid selection mode: %s", s)
	}
	return m, nil
}
