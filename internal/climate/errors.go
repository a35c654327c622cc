package climate

import "errors"

// Domain errors for the thermostat.
var (
	// ErrInvalidReading is returned for sensor payloads that are not a number.
	ErrInvalidReading = errors.New("climate: invalid reading")

	// ErrOutOfRange is returned for readings outside the valid range.
	ErrOutOfRange = errors.New("climate: reading out of range")

	// ErrInvalidSettings is returned by NewThermostat for unusable settings.
	ErrInvalidSettings = errors.New("climate: invalid settings")

	// ErrQueueFull is returned when the reading queue cannot accept a message.
	ErrQueueFull = errors.New("climate: reading queue full")
)
