package esera

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/ckauhaus/esera-mqtt/internal/device"
	"github.com/ckauhaus/esera-mqtt/internal/infrastructure/config"
	"github.com/ckauhaus/esera-mqtt/internal/infrastructure/mqtt"
	"github.com/ckauhaus/esera-mqtt/internal/protocol"
)

// Bridge operation constants.
const (
	// commandTimeout bounds the hand-over of one set message to the link.
	commandTimeout = 5 * time.Second

	// defaultQueueSize is used for queues without a configured size.
	defaultQueueSize = 64

	// announceQueueSize bounds devices waiting for a discovery
	// announcement. A controller lists at most 30 devices.
	announceQueueSize = 64
)

// Bridge orchestrates bidirectional translation between an ESERA
// controller and MQTT. It handles:
//   - Decoding controller records into readings and publishing them
//     retained under ESERA/<contno>/...
//   - Learning devices and names from the controller's device list
//   - Forwarding set messages to the controller through the Dispatcher
//   - Announcing devices for Home Assistant discovery (optional)
//   - Health reporting
//
// Readings flow from the controller's record worker into a bounded publish
// queue; set messages flow from the MQTT client into a bounded set queue.
// Each queue is drained by its own goroutine, so a stalled controller
// never delays MQTT delivery and vice versa.
//
// Thread Safety: All methods are safe for concurrent use.
type Bridge struct {
	cfg        *config.Config
	qos        byte
	mqtt       MQTTClient
	controller Connector
	registry   *device.Registry
	dispatcher *Dispatcher
	health     *HealthReporter
	discovery  *Discovery
	articles   device.Articles
	metrics    Metrics

	// configNames holds device ids whose name comes from configuration;
	// the controller's stored names do not override them.
	configNames map[string]bool

	publishQueue  chan device.Reading
	setQueue      chan setMessage
	announceQueue chan string

	// announced maps device ids to the segment last announced. Owned by
	// announceLoop.
	announced map[string]string

	// Shutdown coordination
	done      chan struct{}
	wg        sync.WaitGroup
	stopOnce  sync.Once
	startOnce sync.Once
	ctx       context.Context
	ctxCancel context.CancelFunc

	logger Logger
}

// setMessage is one inbound set request.
type setMessage struct {
	topic   string
	payload []byte
}

// MQTTClient is the interface for MQTT operations.
// *mqtt.Client satisfies it; tests use a mock.
type MQTTClient interface {
	// Publish sends a message to a topic.
	Publish(topic string, payload []byte, qos byte, retained bool) error

	// Subscribe registers a handler for a topic pattern.
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error

	// IsConnected returns true if connected to the broker.
	IsConnected() bool
}

// BridgeOptions holds configuration for creating a bridge.
type BridgeOptions struct {
	// Config is the loaded and validated configuration.
	Config *config.Config

	// MQTTClient is the MQTT client implementation.
	MQTTClient MQTTClient

	// Controller is the controller link.
	Controller Connector

	// Registry is the device registry. If nil, one is created for
	// Config.Bridge.Contno.
	Registry *device.Registry

	// Logger is an optional structured logger.
	Logger Logger

	// Metrics is an optional metrics sink.
	Metrics Metrics

	// Version is reported in health messages.
	Version string

	// ControllerAddress is reported in health messages.
	ControllerAddress string
}

// NewBridge creates a new bridge instance and pre-registers the devices
// listed in the configuration. Call Start() to begin operation.
func NewBridge(opts BridgeOptions) (*Bridge, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if opts.MQTTClient == nil {
		return nil, fmt.Errorf("MQTT client is required")
	}
	if opts.Controller == nil {
		return nil, fmt.Errorf("controller link is required")
	}

	cfg := opts.Config
	registry := opts.Registry
	if registry == nil {
		registry = device.NewRegistry(cfg.Bridge.Contno)
	}
	if opts.Logger != nil {
		registry.SetLogger(opts.Logger)
	}
	m := opts.Metrics
	if m == nil {
		m = noopMetrics{}
	}

	articles, err := device.DefaultArticles().WithOverrides(cfg.Articles)
	if err != nil {
		return nil, fmt.Errorf("articles: %w", err)
	}

	ctx, ctxCancel := context.WithCancel(context.Background())

	b := &Bridge{
		cfg:          cfg,
		qos:          byte(cfg.MQTT.QoS),
		mqtt:         opts.MQTTClient,
		controller:   opts.Controller,
		registry:     registry,
		dispatcher:   NewDispatcher(registry, opts.Controller, m),
		articles:     articles,
		metrics:      m,
		configNames:  make(map[string]bool),
		publishQueue: make(chan device.Reading, queueSize(cfg.Bridge.PublishQueueSize)),
		setQueue:     make(chan setMessage, queueSize(cfg.Bridge.SetQueueSize)),
		done:         make(chan struct{}),
		ctx:          ctx,
		ctxCancel:    ctxCancel,
		logger:       opts.Logger,
	}
	if cfg.Discovery.Enabled {
		b.discovery = NewDiscovery(cfg.Discovery.Prefix, cfg.Bridge.Contno, b.qos)
		b.announceQueue = make(chan string, announceQueueSize)
		b.announced = make(map[string]string)
	}

	if err := b.registerConfiguredDevices(); err != nil {
		ctxCancel()
		return nil, err
	}

	b.health = NewHealthReporter(HealthReporterConfig{
		Contno:     cfg.Bridge.Contno,
		Version:    opts.Version,
		Address:    opts.ControllerAddress,
		Interval:   cfg.Bridge.HealthInterval,
		Publisher:  opts.MQTTClient,
		Controller: opts.Controller,
	})
	if opts.Logger != nil {
		b.health.SetLogger(opts.Logger)
	}
	b.updateDeviceCount()

	return b, nil
}

func queueSize(n int) int {
	if n < 1 {
		return defaultQueueSize
	}
	return n
}

// registerConfiguredDevices applies the static device list.
func (b *Bridge) registerConfiguredDevices() error {
	for _, d := range b.cfg.Devices {
		kind, err := device.ParseKind(d.Kind)
		if err != nil {
			return fmt.Errorf("device %s: %w", d.ID, err)
		}
		if err := b.registry.Register(d.ID, kind); err != nil {
			return fmt.Errorf("device %s: %w", d.ID, err)
		}
		if d.Name == "" {
			continue
		}
		if err := b.registry.ApplyRename(d.ID, d.Name); err != nil {
			return fmt.Errorf("device %s: %w", d.ID, err)
		}
		b.configNames[d.ID] = true
	}
	return nil
}

// Registry returns the bridge's device registry.
func (b *Bridge) Registry() *device.Registry {
	return b.registry
}

// Start begins bridge operation: it installs the record handler,
// subscribes to set topics, and starts the queue workers and health
// reporting.
func (b *Bridge) Start(ctx context.Context) error {
	var err error
	b.startOnce.Do(func() {
		b.controller.SetOnRecord(b.handleRecord)

		filter := device.SetTopicFilter(b.cfg.Bridge.Contno)
		if serr := b.mqtt.Subscribe(filter, b.qos, b.enqueueSet); serr != nil {
			err = fmt.Errorf("subscribe to set topics: %w", serr)
			return
		}
		b.logInfo("subscribed to set topics", "topic", filter)

		if perr := b.health.PublishStarting(); perr != nil {
			b.logError("failed to publish starting status", perr)
		}

		b.wg.Add(2)
		go b.publishLoop()
		go b.setLoop()

		if b.discovery != nil {
			b.wg.Add(1)
			go b.announceLoop()
			for _, d := range b.registry.Devices() {
				b.requestAnnounce(d.ID)
			}
		}

		b.health.Start(ctx)

		b.logInfo("bridge started",
			"contno", b.cfg.Bridge.Contno,
			"devices", b.registry.Len())
	})
	return err
}

// Stop gracefully shuts down the bridge. Queued readings and set messages
// are discarded.
func (b *Bridge) Stop() {
	b.stopOnce.Do(func() {
		close(b.done)
		b.ctxCancel()
		b.controller.SetOnRecord(nil)
		b.health.Stop()
		b.wg.Wait()
		b.logInfo("bridge stopped")
	})
}

// handleRecord processes one controller record. It runs on the
// controller's record worker.
func (b *Bridge) handleRecord(rec protocol.Record) {
	switch r := rec.(type) {
	case protocol.Devstatus:
		b.metrics.IncRecords("devstatus")
		b.handleDevstatus(r)
	case protocol.Info:
		b.metrics.IncRecords("info")
		b.handleInfo(r)
	case protocol.ListHeader:
		b.metrics.IncRecords("list_header")
		b.logDebug("device list", "index", r.Index, "time", r.Time)
	case protocol.ListEntry:
		b.metrics.IncRecords("list_entry")
		b.handleListEntry(r)
	}
}

func (b *Bridge) handleDevstatus(rec protocol.Devstatus) {
	_, known := b.registry.Device(rec.Addr.DeviceID())
	readings, err := b.registry.Observe(rec)
	if err != nil {
		if errors.Is(err, device.ErrUnknownDevice) {
			b.logDebug("status for unregistered device", "address", rec.Addr.String())
			return
		}
		b.logWarn("cannot decode status", "record", rec.Format(), "error", err)
		return
	}
	if !known {
		// The controller registers itself on its first SYS record.
		b.updateDeviceCount()
		b.requestAnnounce(rec.Addr.DeviceID())
	}

	for _, r := range readings {
		select {
		case b.publishQueue <- r:
		default:
			// A later reading of the same channel supersedes this one.
			b.metrics.IncQueueDrops("publish")
			b.logWarn("publish queue full, dropping reading", "topic", r.Topic)
		}
	}
}

func (b *Bridge) handleInfo(rec protocol.Info) {
	switch rec.Key {
	case protocol.KeyError:
		b.metrics.IncControllerErrors()
		b.logWarn("controller reported error", "code", rec.Value)
	case protocol.KeyContno:
		n, err := strconv.Atoi(rec.Value)
		if err != nil || n != b.cfg.Bridge.Contno {
			b.logWarn("controller number mismatch",
				"reported", rec.Value,
				"configured", b.cfg.Bridge.Contno)
		}
	default:
		b.logDebug("controller info", "key", rec.Key, "value", rec.Value)
	}
}

// handleListEntry registers a listed device and applies its stored name.
func (b *Bridge) handleListEntry(e protocol.ListEntry) {
	if e.Empty() {
		return
	}
	id := e.Addr.DeviceID()

	kind := b.articles.Kind(e.Artno)
	if kind == device.KindUnknown {
		b.logDebug("unsupported article", "device", id, "artno", e.Artno)
		return
	}

	if err := b.registry.Register(id, kind); err != nil {
		b.logWarn("cannot register device", "device", id, "kind", kind.String(), "error", err)
		return
	}
	b.updateDeviceCount()
	defer b.requestAnnounce(id)

	if !e.Status.Online() {
		b.logInfo("device not online", "device", id, "status", e.Status.String())
	}

	if b.configNames[id] {
		return
	}
	want := e.Name
	if want == "" {
		want = id
	}
	if current, _ := b.registry.Device(id); current.Segment() == want {
		return
	}
	if err := b.registry.ApplyRename(id, e.Name); err != nil {
		b.logWarn("cannot apply device name", "device", id, "name", e.Name, "error", err)
		return
	}
	b.logInfo("device renamed", "device", id, "name", e.Name)
}

func (b *Bridge) updateDeviceCount() {
	n := b.registry.Len()
	b.metrics.SetDevices(n)
	b.health.SetDeviceCount(n)
}

// publishLoop publishes queued readings. Levels are retained, input
// events are not. Failed publishes are not retried.
func (b *Bridge) publishLoop() {
	defer b.wg.Done()

	for {
		select {
		case <-b.done:
			return
		case r := <-b.publishQueue:
			if err := b.mqtt.Publish(r.Topic, []byte(r.Value.String()), b.qos, !r.Event); err != nil {
				b.metrics.IncPublishFailures()
				b.logDebug("publish failed", "topic", r.Topic, "error", err)
				continue
			}
			b.metrics.IncReadingsPublished()
		}
	}
}

// requestAnnounce queues a discovery announcement for a device.
func (b *Bridge) requestAnnounce(id string) {
	if b.discovery == nil {
		return
	}
	select {
	case b.announceQueue <- id:
	default:
		b.metrics.IncQueueDrops("discovery")
		b.logWarn("discovery queue full, dropping announcement", "device", id)
	}
}

// announceLoop publishes discovery messages for queued devices. A device
// is announced again only when its topic segment changed or its previous
// announcement failed.
func (b *Bridge) announceLoop() {
	defer b.wg.Done()

	for {
		select {
		case <-b.done:
			return
		case id := <-b.announceQueue:
			d, ok := b.registry.Device(id)
			if !ok || b.announced[id] == d.Segment() {
				continue
			}
			if err := b.announce(d); err != nil {
				b.metrics.IncPublishFailures()
				b.logWarn("discovery announcement failed", "device", id, "error", err)
				continue
			}
			b.announced[id] = d.Segment()
			b.logDebug("device announced", "device", id, "name", d.Segment())
		}
	}
}

func (b *Bridge) announce(d device.Device) error {
	msgs, err := b.discovery.Announce(d)
	if err != nil {
		return err
	}
	for _, m := range msgs {
		if err := b.mqtt.Publish(m.Topic, m.Payload, b.qos, true); err != nil {
			return err
		}
	}
	return nil
}

// enqueueSet is the MQTT handler for set topics.
func (b *Bridge) enqueueSet(topic string, payload []byte) error {
	msg := setMessage{topic: topic, payload: append([]byte(nil), payload...)}
	select {
	case b.setQueue <- msg:
		return nil
	default:
		b.metrics.IncQueueDrops("set")
		return fmt.Errorf("%w: dropping set message for %s", ErrQueueFull, topic)
	}
}

// setLoop hands queued set messages to the dispatcher in arrival order.
func (b *Bridge) setLoop() {
	defer b.wg.Done()

	for {
		select {
		case <-b.done:
			return
		case msg := <-b.setQueue:
			ctx, cancel := context.WithTimeout(b.ctx, commandTimeout)
			err := b.dispatcher.HandleSet(ctx, msg.topic, msg.payload)
			cancel()
			if err != nil {
				b.logWarn("set rejected", "topic", msg.topic, "payload", string(msg.payload), "error", err)
				continue
			}
			b.logDebug("set forwarded", "topic", msg.topic, "payload", string(msg.payload))
		}
	}
}

func (b *Bridge) logDebug(msg string, keysAndValues ...any) {
	if b.logger != nil {
		b.logger.Debug(msg, keysAndValues...)
	}
}

func (b *Bridge) logInfo(msg string, keysAndValues ...any) {
	if b.logger != nil {
		b.logger.Info(msg, keysAndValues...)
	}
}

func (b *Bridge) logWarn(msg string, keysAndValues ...any) {
	if b.logger != nil {
		b.logger.Warn(msg, keysAndValues...)
	}
}

func (b *Bridge) logError(msg string, err error) {
	if b.logger != nil {
		b.logger.Error(msg, "error", err)
	}
}
