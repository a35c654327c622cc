package device

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ckauhaus/esera-mqtt/internal/protocol"
)

// Logger defines the logging interface used by the Registry.
// This allows different logging implementations to be used.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Device is a snapshot of one registered device.
type Device struct {
	ID   string
	Kind Kind
	Name string
}

// Segment returns the topic level identifying the device: its name if
// assigned, else its id.
func (d Device) Segment() string {
	if d.Name != "" {
		return d.Name
	}
	return d.ID
}

// Reading is one observed channel value together with the topic it
// resolved to at observation time.
type Reading struct {
	DeviceID   string
	Channel    string
	Value      Value
	Topic      string
	ObservedAt time.Time

	// Event marks a transition of an input rather than its level.
	Event bool
}

type route struct {
	id  string
	key string
}

// Registry tracks the devices of one controller and maps their channels
// to and from MQTT topics.
//
// All public methods are thread-safe.
type Registry struct {
	contno int

	mu       sync.RWMutex
	devices  map[string]*Device          // by device id
	segments map[string]string           // topic segment -> device id
	routes   map[string]route            // topic -> device channel
	last     map[string]map[string]Value // device id -> channel key -> value

	logger Logger
	now    func() time.Time
}

// NewRegistry creates an empty registry for controller number contno.
func NewRegistry(contno int) *Registry {
	return &Registry{
		contno:   contno,
		devices:  make(map[string]*Device),
		segments: make(map[string]string),
		routes:   make(map[string]route),
		last:     make(map[string]map[string]Value),
		logger:   noopLogger{},
		now:      time.Now,
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	r.logger = logger
}

// Register adds a device of the given kind. Registering a known device
// again with the same kind is a no-op; a different kind is rejected with
// ErrKindConflict since a device's channel set never changes.
func (r *Registry) Register(id string, kind Kind) error {
	if kind.Schema() == nil {
		return fmt.Errorf("%w: %s for %s", ErrUnknownKind, kind, id)
	}
	if err := ValidSegment(id); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	return r.registerLocked(id, kind)
}

func (r *Registry) registerLocked(id string, kind Kind) error {
	if d, ok := r.devices[id]; ok {
		if d.Kind != kind {
			return fmt.Errorf("%w: %s is %s, not %s", ErrKindConflict, id, d.Kind, kind)
		}
		return nil
	}
	if owner, taken := r.segments[id]; taken {
		return fmt.Errorf("%w: %s is the name of %s", ErrNameCollision, id, owner)
	}

	d := &Device{ID: id, Kind: kind}
	r.devices[id] = d
	r.segments[id] = id
	r.addRoutesLocked(d)
	r.logger.Debug("device registered", "device_id", id, "kind", kind.String())
	return nil
}

// ApplyRename sets the display name used in the device's topics. An empty
// name reverts to the device id. On ErrNameCollision the registry is left
// unchanged.
func (r *Registry) ApplyRename(id, name string) error {
	if name != "" {
		if err := ValidSegment(name); err != nil {
			return err
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	d, ok := r.devices[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownDevice, id)
	}
	if d.Name == name {
		return nil
	}

	next := name
	if next == "" {
		next = id
	}
	if owner, taken := r.segments[next]; taken && owner != id {
		return fmt.Errorf("%w: %q already identifies %s", ErrNameCollision, next, owner)
	}

	r.removeRoutesLocked(d)
	delete(r.segments, d.Segment())
	if name == id {
		d.Name = ""
	} else {
		d.Name = name
	}
	r.segments[d.Segment()] = id
	r.addRoutesLocked(d)

	r.logger.Info("device renamed", "device_id", id, "name", d.Segment())
	return nil
}

func (r *Registry) addRoutesLocked(d *Device) {
	seg := d.Segment()
	for _, ch := range d.Kind.Schema().channels {
		r.routes[Topic(r.contno, seg, ch.Key)] = route{id: d.ID, key: ch.Key}
	}
}

func (r *Registry) removeRoutesLocked(d *Device) {
	seg := d.Segment()
	for _, ch := range d.Kind.Schema().channels {
		delete(r.routes, Topic(r.contno, seg, ch.Key))
	}
}

// Resolve returns the current topic of a device channel.
func (r *Registry) Resolve(id, key string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.resolveLocked(id, key)
}

func (r *Registry) resolveLocked(id, key string) (string, error) {
	d, ok := r.devices[id]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownDevice, id)
	}
	if _, ok := d.Kind.Schema().Channel(key); !ok {
		return "", fmt.Errorf("%w: %s has no channel %q", ErrUnknownChannel, id, key)
	}
	return Topic(r.contno, d.Segment(), key), nil
}

// Reverse maps a topic back to its device id and channel key.
func (r *Registry) Reverse(topic string) (id, key string, err error) {
	r.mu.RLock()
	rt, ok := r.routes[topic]
	r.mu.RUnlock()

	if !ok {
		return "", "", fmt.Errorf("%w: %s", ErrUnknownTopic, topic)
	}
	return rt.id, rt.key, nil
}

// Observe decodes a status record into readings, updating the last-value
// cache. SYS registers register the controller itself on first sight;
// 1-Wire devices must have been registered from the device list or
// configuration (ErrUnknownDevice otherwise).
func (r *Registry) Observe(rec protocol.Devstatus) ([]Reading, error) {
	id := rec.Addr.DeviceID()

	r.mu.Lock()
	defer r.mu.Unlock()

	d, ok := r.devices[id]
	if !ok {
		if rec.Addr.Bus != protocol.BusSYS {
			return nil, fmt.Errorf("%w: %s", ErrUnknownDevice, id)
		}
		if err := r.registerLocked(id, KindSystemController); err != nil {
			return nil, err
		}
		d = r.devices[id]
	}

	values, err := d.Kind.Schema().Decode(rec.Addr.Register(), rec.Value)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", rec.Addr, err)
	}

	cache := r.last[id]
	if cache == nil {
		cache = make(map[string]Value)
		r.last[id] = cache
	}

	now := r.now()
	seg := d.Segment()
	schema := d.Kind.Schema()
	readings := make([]Reading, 0, len(values))
	for _, cv := range values {
		prev, seen := cache[cv.Key]
		cache[cv.Key] = cv.Value
		readings = append(readings, Reading{
			DeviceID:   id,
			Channel:    cv.Key,
			Value:      cv.Value,
			Topic:      Topic(r.contno, seg, cv.Key),
			ObservedAt: now,
		})

		// Edges need a known previous level; the first report after
		// startup only sets it.
		ev, ok := schema.EdgeChannel(cv.Key)
		if !ok || !seen || prev == cv.Value {
			continue
		}
		readings = append(readings, Reading{
			DeviceID:   id,
			Channel:    ev,
			Value:      cv.Value,
			Topic:      Topic(r.contno, seg, ev),
			ObservedAt: now,
			Event:      true,
		})
	}
	return readings, nil
}

// Device returns a snapshot of a registered device.
func (r *Registry) Device(id string) (Device, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.devices[id]
	if !ok {
		return Device{}, false
	}
	return *d, true
}

// Devices returns snapshots of all devices sorted by id.
func (r *Registry) Devices() []Device {
	r.mu.RLock()
	out := make([]Device, 0, len(r.devices))
	for _, d := range r.devices {
		out = append(out, *d)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Last returns the most recent value observed on a channel.
func (r *Registry) Last(id, key string) (Value, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	v, ok := r.last[id][key]
	return v, ok
}

// Len returns the number of registered devices.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.devices)
}
