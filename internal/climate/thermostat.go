package climate

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"
)

// State is the thermostat's control state.
type State int

// Thermostat states. The zero value is StateIdle.
const (
	StateIdle State = iota
	StateActive
)

// String returns "idle" or "active".
func (s State) String() string {
	if s == StateActive {
		return "active"
	}
	return "idle"
}

// Action is the state as reported on the action topic.
func (s State) Action() string {
	if s == StateActive {
		return "heating"
	}
	return "idle"
}

// Settings configure a Thermostat. They do not change after construction.
type Settings struct {
	Setpoint   float64
	Hysteresis float64

	// Offset is added to every raw reading before it is evaluated.
	Offset float64

	// MinValid and MaxValid bound accepted readings (after the offset).
	MinValid float64
	MaxValid float64
}

// Transition describes the outcome of one accepted reading.
type Transition struct {
	From        State
	To          State
	Temperature float64
}

// Changed reports whether the reading switched the state.
func (t Transition) Changed() bool {
	return t.From != t.To
}

// Thermostat is a two-state hysteresis controller. It switches to Active
// below Setpoint-Hysteresis/2 and back to Idle above Setpoint+Hysteresis/2;
// inside the band the current state holds.
//
// Thread Safety: All methods are safe for concurrent use.
type Thermostat struct {
	settings Settings
	low      float64
	high     float64

	mu      sync.Mutex
	state   State
	temp    float64
	hasTemp bool
}

// NewThermostat creates a thermostat in StateIdle.
func NewThermostat(s Settings) (*Thermostat, error) {
	if math.IsNaN(s.Setpoint) || math.IsInf(s.Setpoint, 0) {
		return nil, fmt.Errorf("%w: setpoint must be finite", ErrInvalidSettings)
	}
	if !(s.Hysteresis > 0) || math.IsInf(s.Hysteresis, 0) {
		return nil, fmt.Errorf("%w: hysteresis must be positive", ErrInvalidSettings)
	}
	if !(s.MinValid < s.MaxValid) {
		return nil, fmt.Errorf("%w: valid range is empty", ErrInvalidSettings)
	}
	half := s.Hysteresis / 2
	return &Thermostat{
		settings: s,
		low:      s.Setpoint - half,
		high:     s.Setpoint + half,
	}, nil
}

// Band returns the lower and upper switching thresholds.
func (t *Thermostat) Band() (low, high float64) {
	return t.low, t.high
}

// State returns the current state.
func (t *Thermostat) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Temperature returns the last accepted temperature, offset included.
func (t *Thermostat) Temperature() (float64, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.temp, t.hasTemp
}

// Observe evaluates a raw sensor reading. Readings outside the valid range
// return ErrOutOfRange and leave the thermostat untouched.
func (t *Thermostat) Observe(raw float64) (Transition, error) {
	v := raw + t.settings.Offset
	if math.IsNaN(v) || v < t.settings.MinValid || v > t.settings.MaxValid {
		return Transition{}, fmt.Errorf("%w: %g", ErrOutOfRange, v)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.temp = v
	t.hasTemp = true

	tr := Transition{From: t.state, To: t.state, Temperature: v}
	switch {
	case t.state == StateIdle && v < t.low:
		tr.To = StateActive
	case t.state == StateActive && v > t.high:
		tr.To = StateIdle
	}
	t.state = tr.To
	return tr, nil
}

// ParseReading decodes a sensor payload as a decimal number.
func ParseReading(payload []byte) (float64, error) {
	s := strings.TrimSpace(string(payload))
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%w: %q", ErrInvalidReading, s)
	}
	return v, nil
}

// FormatTemperature renders a temperature with at most two decimals.
func FormatTemperature(v float64) string {
	return strconv.FormatFloat(math.Round(v*100)/100, 'f', -1, 64)
}
