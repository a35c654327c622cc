package esera

import (
	"context"
	"errors"
	"fmt"

	"github.com/ckauhaus/esera-mqtt/internal/device"
)

// Rejection reasons used as metrics labels.
const (
	reasonUnknownTopic = "unknown_topic"
	reasonNotWritable  = "not_writable"
	reasonInvalidValue = "invalid_value"
	reasonSendFailed   = "send_failed"
)

// Dispatcher turns inbound set messages into controller commands.
//
// The controller protocol has no acknowledgements: a successful HandleSet
// means one command frame was queued for the link. Whether the hardware
// followed is only visible through the next status reading of the
// channel.
type Dispatcher struct {
	registry *device.Registry
	link     Connector
	metrics  Metrics
}

// NewDispatcher creates a dispatcher writing to link.
func NewDispatcher(registry *device.Registry, link Connector, m Metrics) *Dispatcher {
	if m == nil {
		m = noopMetrics{}
	}
	return &Dispatcher{registry: registry, link: link, metrics: m}
}

// HandleSet validates a set message and sends the resulting command.
//
// Errors (no command is sent in any of these cases):
//   - device.ErrUnknownTopic: no channel maps to topic
//   - device.ErrNotWritable: the channel cannot be written
//   - device.ErrInvalidValue: payload is outside the channel's domain
//   - errors from the link (ErrNotConnected, ErrQueueFull)
func (d *Dispatcher) HandleSet(ctx context.Context, topic string, payload []byte) error {
	id, key, err := d.registry.Reverse(topic)
	if err != nil {
		d.metrics.IncCommandsRejected(reasonUnknownTopic)
		return err
	}

	dev, ok := d.registry.Device(id)
	if !ok {
		d.metrics.IncCommandsRejected(reasonUnknownTopic)
		return fmt.Errorf("%w: %s", device.ErrUnknownTopic, topic)
	}

	ch, ok := dev.Kind.Schema().Channel(key)
	if !ok || !ch.Access.CanWrite() {
		d.metrics.IncCommandsRejected(reasonNotWritable)
		return fmt.Errorf("%w: %s", device.ErrNotWritable, topic)
	}

	v, err := ch.Domain.Parse(string(payload))
	if err != nil {
		d.metrics.IncCommandsRejected(reasonInvalidValue)
		return fmt.Errorf("%s: %w", topic, err)
	}

	cmd, err := dev.Kind.Encode(id, key, v)
	if err != nil {
		d.metrics.IncCommandsRejected(rejectReason(err))
		return fmt.Errorf("%s: %w", topic, err)
	}

	if err := d.link.Send(ctx, cmd); err != nil {
		d.metrics.IncCommandsRejected(reasonSendFailed)
		return fmt.Errorf("%s: %w", topic, err)
	}
	return nil
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, device.ErrNotWritable):
		return reasonNotWritable
	case errors.Is(err, device.ErrInvalidValue):
		return reasonInvalidValue
	default:
		return reasonUnknownTopic
	}
}
