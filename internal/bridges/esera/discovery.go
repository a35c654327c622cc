package esera

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/goccy/go-json"

	"github.com/ckauhaus/esera-mqtt/internal/device"
)

// Home Assistant discovery settings.
const (
	// discoveryExpireAfter marks sensors unavailable when no reading
	// arrived for this many seconds.
	discoveryExpireAfter = 600

	manufacturer = "ESERA"
)

// Announcement is one retained discovery message.
type Announcement struct {
	Topic   string
	Payload []byte
}

// DiscoveryDevice groups entities of one physical device in Home Assistant.
type DiscoveryDevice struct {
	Identifiers  []string `json:"identifiers"`
	Name         string   `json:"name"`
	Manufacturer string   `json:"manufacturer"`
	Model        string   `json:"model"`
	ViaDevice    string   `json:"via_device,omitempty"`
}

// discoveryEntity is the config payload of sensor, binary_sensor, switch
// and number components.
type discoveryEntity struct {
	Name              string          `json:"name"`
	UniqueID          string          `json:"unique_id"`
	AvailabilityTopic string          `json:"availability_topic"`
	StateTopic        string          `json:"state_topic"`
	CommandTopic      string          `json:"command_topic,omitempty"`
	DeviceClass       string          `json:"device_class,omitempty"`
	Unit              string          `json:"unit_of_measurement,omitempty"`
	ExpireAfter       int             `json:"expire_after,omitempty"`
	PayloadOn         string          `json:"payload_on,omitempty"`
	PayloadOff        string          `json:"payload_off,omitempty"`
	Min               *float64        `json:"min,omitempty"`
	Max               *float64        `json:"max,omitempty"`
	Step              float64         `json:"step,omitempty"`
	QoS               byte            `json:"qos"`
	Device            DiscoveryDevice `json:"device"`
}

// discoveryTrigger is the config payload of a device_automation trigger.
type discoveryTrigger struct {
	AutomationType string          `json:"automation_type"`
	Topic          string          `json:"topic"`
	Type           string          `json:"type"`
	Subtype        string          `json:"subtype"`
	Payload        string          `json:"payload"`
	QoS            byte            `json:"qos"`
	Device         DiscoveryDevice `json:"device"`
}

// sensorInfo describes a scalar measurement channel.
type sensorInfo struct {
	label string
	class string
	unit  string
}

var sensors = map[string]sensorInfo{
	"temp":   {"Temperature", "temperature", "°C"},
	"hum":    {"Humidity", "humidity", "%"},
	"dew":    {"Dewpoint", "temperature", "°C"},
	"vdd":    {"Vdd", "voltage", "V"},
	"co2":    {"CO2", "carbon_dioxide", "ppm"},
	"cur_12": {"Current 12V", "current", "mA"},
	"vdd_12": {"Voltage 12V", "voltage", "V"},
	"cur_5":  {"Current 5V", "current", "mA"},
	"vdd_5":  {"Voltage 5V", "voltage", "V"},
}

// Discovery builds Home Assistant discovery messages for the devices of
// one controller.
type Discovery struct {
	prefix string
	contno int
	qos    byte
}

// NewDiscovery creates a builder publishing below prefix.
func NewDiscovery(prefix string, contno int, qos byte) *Discovery {
	return &Discovery{prefix: strings.TrimSuffix(prefix, "/"), contno: contno, qos: qos}
}

// nodeID is the discovery node of the controller.
func (d *Discovery) nodeID() string {
	return "esera_" + strconv.Itoa(d.contno)
}

func (d *Discovery) configTopic(component, objectID string) string {
	return d.prefix + "/" + component + "/" + d.nodeID() + "/" + objectID + "/config"
}

func (d *Discovery) device(dev device.Device) DiscoveryDevice {
	out := DiscoveryDevice{
		Identifiers:  []string{d.nodeID() + "_" + dev.ID},
		Name:         dev.Segment(),
		Manufacturer: manufacturer,
		Model:        dev.Kind.String(),
	}
	if dev.Kind != device.KindSystemController {
		out.ViaDevice = d.nodeID() + "_SYS"
	}
	return out
}

// Announce returns the discovery messages of every channel of dev. Topics
// and unique ids derive from the device id, so announcing again after a
// rename replaces the previous entities.
func (d *Discovery) Announce(dev device.Device) ([]Announcement, error) {
	schema := dev.Kind.Schema()
	if schema == nil {
		return nil, fmt.Errorf("%w: %s", device.ErrUnknownKind, dev.ID)
	}

	seg := dev.Segment()
	info := d.device(dev)
	status := device.StatusTopic(d.contno)

	var out []Announcement
	add := func(component, objectID string, payload any) error {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("discovery %s: %w", objectID, err)
		}
		out = append(out, Announcement{Topic: d.configTopic(component, objectID), Payload: data})
		return nil
	}

	for _, ch := range schema.Channels() {
		objectID := dev.ID + "_" + strings.ReplaceAll(ch.Key, "/", "_")
		entity := discoveryEntity{
			UniqueID:          d.nodeID() + "_" + objectID,
			AvailabilityTopic: status,
			StateTopic:        device.Topic(d.contno, seg, ch.Key),
			QoS:               d.qos,
			Device:            info,
		}

		prefix, n := splitChannelKey(ch.Key)
		switch {
		case ch.Event:
			for _, edge := range []struct{ kind, payload string }{
				{"button_short_press", "1"},
				{"button_short_release", "0"},
			} {
				err := add("device_automation", objectID+"_"+edge.payload, discoveryTrigger{
					AutomationType: "trigger",
					Topic:          entity.StateTopic,
					Type:           edge.kind,
					Subtype:        "button_" + n,
					Payload:        edge.payload,
					QoS:            d.qos,
					Device:         info,
				})
				if err != nil {
					return nil, err
				}
			}
			continue

		case ch.Access.CanWrite():
			// Announced together with the output it sets.
			continue

		case prefix == "in":
			entity.Name = seg + " Input " + n
			entity.PayloadOn, entity.PayloadOff = "1", "0"
			if err := add("binary_sensor", objectID, entity); err != nil {
				return nil, err
			}

		case prefix == "out":
			entity.Name = seg + " Output " + n
			set, writable := schema.Channel("set/ch" + n)
			if !writable || !set.Access.CanWrite() {
				entity.PayloadOn, entity.PayloadOff = "1", "0"
				if err := add("binary_sensor", objectID, entity); err != nil {
					return nil, err
				}
				continue
			}
			entity.CommandTopic = device.Topic(d.contno, seg, set.Key)
			if set.Domain.Type == device.TypeBool {
				entity.PayloadOn, entity.PayloadOff = "1", "0"
				if err := add("switch", objectID, entity); err != nil {
					return nil, err
				}
				continue
			}
			entity.Unit = "V"
			entity.Step = 0.01
			if set.Domain.Bounded {
				minVal, maxVal := set.Domain.Min, set.Domain.Max
				entity.Min, entity.Max = &minVal, &maxVal
			}
			if err := add("number", objectID, entity); err != nil {
				return nil, err
			}

		default:
			s, ok := sensors[ch.Key]
			if !ok {
				s = sensorInfo{label: ch.Key}
			}
			entity.Name = seg + " " + s.label
			entity.DeviceClass = s.class
			entity.Unit = s.unit
			entity.ExpireAfter = discoveryExpireAfter
			if err := add("sensor", objectID, entity); err != nil {
				return nil, err
			}
		}
	}
	return out, nil
}

// splitChannelKey splits "out/ch3" into "out" and "3". Scalar keys
// return themselves and an empty number.
func splitChannelKey(key string) (prefix, n string) {
	prefix, rest, ok := strings.Cut(key, "/ch")
	if !ok {
		return key, ""
	}
	return prefix, rest
}
