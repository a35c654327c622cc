package device

import "errors"

// Domain errors for the device package.
//
// These errors can be checked using errors.Is():
//
//	if errors.Is(err, device.ErrUnknownTopic) {
//	    // not one of ours
//	}
var (
	// ErrUnknownDevice is returned when a device id has not been registered.
	ErrUnknownDevice = errors.New("device: unknown device")

	// ErrUnknownChannel is returned when a channel key is not part of the
	// device's schema.
	ErrUnknownChannel = errors.New("device: unknown channel")

	// ErrUnknownRegister is returned when a status record addresses a
	// register the device kind does not define.
	ErrUnknownRegister = errors.New("device: unknown register")

	// ErrUnknownTopic is returned when no device channel maps to a topic.
	ErrUnknownTopic = errors.New("device: unknown topic")

	// ErrUnknownKind is returned when a kind name or article number is not recognised.
	ErrUnknownKind = errors.New("device: unknown kind")

	// ErrKindConflict is returned when a device is registered again with a
	// different kind.
	ErrKindConflict = errors.New("device: kind conflict")

	// ErrNameCollision is returned when a name would make two live devices
	// resolve to the same topic segment.
	ErrNameCollision = errors.New("device: name collision")

	// ErrInvalidName is returned when a name or id cannot be used as a
	// topic segment.
	ErrInvalidName = errors.New("device: invalid name")

	// ErrInvalidValue is returned when a value is outside a channel's domain.
	ErrInvalidValue = errors.New("device: invalid value")

	// ErrNotWritable is returned when encoding a command for a read-only channel.
	ErrNotWritable = errors.New("device: channel not writable")
)
