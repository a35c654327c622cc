package esera

import "errors"

// Domain errors for the ESERA bridge package.
var (
	// ErrNotConnected is returned when a command is sent while the
	// controller link is down.
	ErrNotConnected = errors.New("esera: not connected to controller")

	// ErrConnectionFailed is returned when dialling the controller fails.
	ErrConnectionFailed = errors.New("esera: connection to controller failed")

	// ErrInvalidAddress is returned for controller addresses that cannot
	// be dialled.
	ErrInvalidAddress = errors.New("esera: invalid controller address")

	// ErrQueueFull is returned when a bounded queue has no room left.
	ErrQueueFull = errors.New("esera: queue full")

	// ErrClosed is returned by operations on a closed client.
	ErrClosed = errors.New("esera: client closed")

	// ErrCommandFailed is returned when writing a command frame fails.
	ErrCommandFailed = errors.New("esera: command write failed")
)
