package device

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ckauhaus/esera-mqtt/internal/protocol"
)

// Kind identifies a device family. The set of kinds is closed; each kind
// carries a fixed channel schema.
type Kind int

// Known device kinds.
const (
	KindUnknown Kind = iota
	KindDigitalSwitch
	KindHubPowerMonitor
	KindTempHumSensor
	KindAirQualitySensor
	KindSystemController
)

var kindNames = map[Kind]string{
	KindUnknown:          "unknown",
	KindDigitalSwitch:    "digital-switch",
	KindHubPowerMonitor:  "hub-power-monitor",
	KindTempHumSensor:    "temperature-humidity-sensor",
	KindAirQualitySensor: "air-quality-sensor",
	KindSystemController: "system-controller",
}

// String returns the kind's configuration name.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// ParseKind looks up a kind by its configuration name.
func ParseKind(name string) (Kind, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for k, n := range kindNames {
		if k != KindUnknown && n == name {
			return k, nil
		}
	}
	return KindUnknown, fmt.Errorf("%w: %q", ErrUnknownKind, name)
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Kind) UnmarshalText(text []byte) error {
	parsed, err := ParseKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// Articles maps ESERA article numbers to device kinds.
type Articles map[string]Kind

// DefaultArticles returns the article numbers of the supported hardware.
func DefaultArticles() Articles {
	return Articles{
		"11228": KindDigitalSwitch,
		"11322": KindHubPowerMonitor,
		"11150": KindTempHumSensor,
		"11151": KindAirQualitySensor,
		"11340": KindSystemController,
	}
}

// WithOverrides returns a copy of a with the given article numbers mapped
// to kind names. Unknown kind names are rejected with ErrUnknownKind.
func (a Articles) WithOverrides(overrides map[string]string) (Articles, error) {
	out := make(Articles, len(a)+len(overrides))
	for artno, kind := range a {
		out[artno] = kind
	}
	for artno, name := range overrides {
		kind, err := ParseKind(name)
		if err != nil {
			return nil, fmt.Errorf("article %s: %w", artno, err)
		}
		out[strings.TrimSpace(artno)] = kind
	}
	return out, nil
}

// Kind returns the kind for an article number, or KindUnknown.
func (a Articles) Kind(artno string) Kind {
	return a[strings.TrimSpace(artno)]
}

// Access describes the direction(s) a channel supports.
type Access uint8

// Channel access flags.
const (
	Readable Access = 1 << iota
	Writable
)

// CanRead reports whether the channel is published from controller readings.
func (a Access) CanRead() bool { return a&Readable != 0 }

// CanWrite reports whether the channel accepts commands.
func (a Access) CanWrite() bool { return a&Writable != 0 }

// Channel is one entry of a kind's schema.
type Channel struct {
	Key    string
	Domain Domain
	Access Access

	// Event channels carry transitions of another channel. Their values
	// are published once and never retained.
	Event bool
}

// register maps one controller register onto channels. Either bits lists
// the channel keys of a bitmask register (bit 0 first), or key names the
// single scalar channel the register holds.
type register struct {
	bits []string
	key  string
}

// Schema is the fixed channel layout of a kind.
type Schema struct {
	channels  []Channel
	index     map[string]int
	registers map[string]register
	edges     map[string]string // level channel -> event channel
}

// Channels returns the schema's channels in declaration order.
func (s *Schema) Channels() []Channel {
	out := make([]Channel, len(s.channels))
	copy(out, s.channels)
	return out
}

// Channel looks up a channel by key.
func (s *Schema) Channel(key string) (Channel, bool) {
	i, ok := s.index[key]
	if !ok {
		return Channel{}, false
	}
	return s.channels[i], true
}

// EdgeChannel returns the event channel fed by transitions of key.
func (s *Schema) EdgeChannel(key string) (string, bool) {
	ev, ok := s.edges[key]
	return ev, ok
}

// ChannelValue is a decoded channel value.
type ChannelValue struct {
	Key   string
	Value Value
}

// Decode turns a raw register value into channel values.
func (s *Schema) Decode(reg string, raw int64) ([]ChannelValue, error) {
	r, ok := s.registers[reg]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownRegister, reg)
	}
	if r.bits != nil {
		out := make([]ChannelValue, len(r.bits))
		for i, key := range r.bits {
			out[i] = ChannelValue{Key: key, Value: BoolValue(raw&(1<<i) != 0)}
		}
		return out, nil
	}

	ch := s.channels[s.index[r.key]]
	var v Value
	switch ch.Domain.Type {
	case TypeBool:
		v = BoolValue(raw != 0)
	case TypeInt:
		v = IntValue(raw)
	default:
		v = CentiValue(raw)
	}
	return []ChannelValue{{Key: r.key, Value: v}}, nil
}

// schemaBuilder assembles a Schema.
type schemaBuilder struct {
	s *Schema
}

func newSchema() *schemaBuilder {
	return &schemaBuilder{s: &Schema{
		index:     make(map[string]int),
		registers: make(map[string]register),
		edges:     make(map[string]string),
	}}
}

func (b *schemaBuilder) channel(key string, d Domain, a Access) {
	b.s.index[key] = len(b.s.channels)
	b.s.channels = append(b.s.channels, Channel{Key: key, Domain: d, Access: a})
}

func (b *schemaBuilder) scalar(reg, key string, d Domain) *schemaBuilder {
	b.channel(key, d, Readable)
	b.s.registers[reg] = register{key: key}
	return b
}

func (b *schemaBuilder) bitmask(reg, prefix string, n int) *schemaBuilder {
	keys := make([]string, n)
	for i := range keys {
		keys[i] = channelKey(prefix, i+1)
		b.channel(keys[i], Boolean(), Readable)
	}
	b.s.registers[reg] = register{bits: keys}
	return b
}

// edges adds one event channel per bit of a bitmask register.
func (b *schemaBuilder) edges(reg, prefix string) *schemaBuilder {
	for i, key := range b.s.registers[reg].bits {
		ev := channelKey(prefix, i+1)
		b.s.index[ev] = len(b.s.channels)
		b.s.channels = append(b.s.channels, Channel{Key: ev, Domain: Boolean(), Access: Readable, Event: true})
		b.s.edges[key] = ev
	}
	return b
}

func (b *schemaBuilder) writable(key string, d Domain) *schemaBuilder {
	b.channel(key, d, Writable)
	return b
}

func channelKey(prefix string, n int) string {
	return prefix + "/ch" + strconv.Itoa(n)
}

// Channel key prefixes.
const (
	dirIn     = "in"
	dirOut    = "out"
	dirSet    = "set"
	dirButton = "button"
)

var schemas = buildSchemas()

func buildSchemas() map[Kind]*Schema {
	sw := newSchema().bitmask("1", dirIn, 8).edges("1", dirButton).bitmask("3", dirOut, 8)
	for i := 1; i <= 8; i++ {
		sw.writable(channelKey(dirSet, i), Boolean())
	}

	sys := newSchema().
		bitmask("1_1", dirIn, 4).
		bitmask("2_1", dirOut, 5).
		scalar("3", channelKey(dirOut, 6), FloatRange(0, 10))
	for i := 1; i <= 5; i++ {
		sys.writable(channelKey(dirSet, i), Boolean())
	}
	sys.writable(channelKey(dirSet, 6), FloatRange(0, 10))

	return map[Kind]*Schema{
		KindDigitalSwitch: sw.s,
		KindHubPowerMonitor: newSchema().
			scalar("1", "cur_12", Float()).
			scalar("2", "vdd_12", Float()).
			scalar("3", "cur_5", Float()).
			scalar("4", "vdd_5", Float()).s,
		KindTempHumSensor: newSchema().
			scalar("1", "temp", Float()).
			scalar("2", "vdd", Float()).
			scalar("3", "hum", Float()).
			scalar("4", "dew", Float()).s,
		KindAirQualitySensor: newSchema().
			scalar("1", "temp", Float()).
			scalar("2", "vdd", Float()).
			scalar("3", "hum", Float()).
			scalar("4", "dew", Float()).
			scalar("5", "co2", Float()).s,
		KindSystemController: sys.s,
	}
}

// Schema returns the kind's channel schema, or nil for KindUnknown.
func (k Kind) Schema() *Schema {
	return schemas[k]
}

// Encode builds the controller command that writes v to a channel of a
// device of this kind. The value must already belong to the channel's
// domain.
func (k Kind) Encode(deviceID, key string, v Value) (protocol.Command, error) {
	s := k.Schema()
	if s == nil {
		return "", fmt.Errorf("%w: %s", ErrUnknownKind, k)
	}
	ch, ok := s.Channel(key)
	if !ok {
		return "", fmt.Errorf("%w: %s has no channel %q", ErrUnknownChannel, k, key)
	}
	if !ch.Access.CanWrite() {
		return "", fmt.Errorf("%w: %s", ErrNotWritable, key)
	}
	if err := ch.Domain.Check(v); err != nil {
		return "", err
	}

	n, err := strconv.Atoi(strings.TrimPrefix(key, dirSet+"/ch"))
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrUnknownChannel, key)
	}

	switch k {
	case KindDigitalSwitch:
		devno, err := owdNumber(deviceID)
		if err != nil {
			return "", err
		}
		return protocol.SetOWDOutput(devno, n-1, v.Bool()), nil
	case KindSystemController:
		if ch.Domain.Type == TypeFloat {
			return protocol.SetSysAnalog(v.Centi()), nil
		}
		return protocol.SetSysOutput(n, v.Bool()), nil
	}
	return "", fmt.Errorf("%w: %s", ErrNotWritable, key)
}

func owdNumber(deviceID string) (int, error) {
	n, err := strconv.Atoi(strings.TrimPrefix(deviceID, string(protocol.BusOWD)))
	if err != nil || !strings.HasPrefix(deviceID, string(protocol.BusOWD)) {
		return 0, fmt.Errorf("%w: %q is not a 1-Wire device id", ErrUnknownDevice, deviceID)
	}
	return n, nil
}
