package esera

import (
	"context"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/ckauhaus/esera-mqtt/internal/device"
)

// defaultHealthInterval is used when no interval is configured.
const defaultHealthInterval = 30 * time.Second

// HealthStatus represents the operational status of the bridge.
type HealthStatus string

const (
	// HealthHealthy indicates both links are up.
	HealthHealthy HealthStatus = "healthy"

	// HealthDegraded indicates the controller link is down.
	HealthDegraded HealthStatus = "degraded"

	// HealthStarting indicates the bridge is starting up.
	HealthStarting HealthStatus = "starting"
)

// HealthMessage is published retained to ESERA/<contno>/health.
type HealthMessage struct {
	Contno        int              `json:"contno"`
	Version       string           `json:"version,omitempty"`
	Status        HealthStatus     `json:"status"`
	Reason        string           `json:"reason,omitempty"`
	Timestamp     time.Time        `json:"timestamp"`
	UptimeSeconds int64            `json:"uptime_seconds"`
	Devices       int              `json:"devices"`
	Controller    ControllerHealth `json:"controller"`
}

// ControllerHealth is the controller link section of a HealthMessage.
type ControllerHealth struct {
	Address        string    `json:"address,omitempty"`
	Connected      bool      `json:"connected"`
	State          string    `json:"state"`
	Breaker        string    `json:"breaker,omitempty"`
	LastActivity   time.Time `json:"last_activity"`
	RecordsRx      uint64    `json:"records_rx"`
	RecordsDropped uint64    `json:"records_dropped"`
	ParseErrors    uint64    `json:"parse_errors"`
	CommandsTx     uint64    `json:"commands_tx"`
	CommandsFailed uint64    `json:"commands_failed"`
	Reconnects     uint64    `json:"reconnects"`
}

// HealthPublisher is the interface for publishing health messages.
type HealthPublisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	IsConnected() bool
}

// HealthReporterConfig holds configuration for the health reporter.
type HealthReporterConfig struct {
	Contno  int
	Version string

	// Address is the controller address reported in health messages.
	Address string

	// Interval is how often to publish health status.
	// Default: 30 seconds.
	Interval time.Duration

	Publisher  HealthPublisher
	Controller Connector
}

// HealthReporter publishes the bridge health at a fixed interval.
type HealthReporter struct {
	cfg       HealthReporterConfig
	topic     string
	startTime time.Time
	now       func() time.Time

	deviceCount   int
	deviceCountMu sync.RWMutex

	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once

	logger   Logger
	loggerMu sync.RWMutex
}

// NewHealthReporter creates a new health reporter. Call Start to begin
// reporting.
func NewHealthReporter(cfg HealthReporterConfig) *HealthReporter {
	if cfg.Interval <= 0 {
		cfg.Interval = defaultHealthInterval
	}
	return &HealthReporter{
		cfg:       cfg,
		topic:     device.HealthTopic(cfg.Contno),
		startTime: time.Now(),
		now:       time.Now,
		done:      make(chan struct{}),
	}
}

// Start begins periodic health reporting until ctx is cancelled or Stop
// is called.
func (h *HealthReporter) Start(ctx context.Context) {
	h.wg.Add(1)
	go h.reportLoop(ctx)
}

// Stop stops reporting. It publishes nothing: the status topic's last
// will is the shutdown signal. Safe to call multiple times.
func (h *HealthReporter) Stop() {
	h.stopOnce.Do(func() {
		close(h.done)
		h.wg.Wait()
	})
}

// SetDeviceCount updates the reported device count.
func (h *HealthReporter) SetDeviceCount(count int) {
	h.deviceCountMu.Lock()
	h.deviceCount = count
	h.deviceCountMu.Unlock()
}

// SetLogger sets the logger for this reporter.
func (h *HealthReporter) SetLogger(logger Logger) {
	h.loggerMu.Lock()
	h.logger = logger
	h.loggerMu.Unlock()
}

// PublishStarting publishes a "starting" status.
func (h *HealthReporter) PublishStarting() error {
	return h.publish(h.Message(HealthStarting, "bridge starting"))
}

// PublishNow publishes the current health status immediately.
func (h *HealthReporter) PublishNow() error {
	status, reason := h.determineStatus()
	return h.publish(h.Message(status, reason))
}

func (h *HealthReporter) reportLoop(ctx context.Context) {
	defer h.wg.Done()

	ticker := time.NewTicker(h.cfg.Interval)
	defer ticker.Stop()

	if err := h.PublishNow(); err != nil {
		h.logError("failed to publish initial health", err)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-h.done:
			return
		case <-ticker.C:
			if err := h.PublishNow(); err != nil {
				h.logError("failed to publish health", err)
			}
		}
	}
}

// determineStatus evaluates the current bridge status.
func (h *HealthReporter) determineStatus() (HealthStatus, string) {
	if h.cfg.Controller == nil || !h.cfg.Controller.IsConnected() {
		return HealthDegraded, "controller disconnected"
	}
	return HealthHealthy, ""
}

// Message builds a health message with the given status.
func (h *HealthReporter) Message(status HealthStatus, reason string) HealthMessage {
	h.deviceCountMu.RLock()
	devices := h.deviceCount
	h.deviceCountMu.RUnlock()

	now := h.now()
	msg := HealthMessage{
		Contno:        h.cfg.Contno,
		Version:       h.cfg.Version,
		Status:        status,
		Reason:        reason,
		Timestamp:     now.UTC(),
		UptimeSeconds: int64(now.Sub(h.startTime).Seconds()),
		Devices:       devices,
		Controller:    ControllerHealth{Address: h.cfg.Address, State: StateDisconnected.String()},
	}

	if h.cfg.Controller != nil {
		stats := h.cfg.Controller.Stats()
		msg.Controller = ControllerHealth{
			Address:        h.cfg.Address,
			Connected:      stats.Connected,
			State:          stats.State,
			Breaker:        stats.Breaker,
			LastActivity:   stats.LastActivity.UTC(),
			RecordsRx:      stats.RecordsRx,
			RecordsDropped: stats.RecordsDropped,
			ParseErrors:    stats.ParseErrors,
			CommandsTx:     stats.CommandsTx,
			CommandsFailed: stats.CommandsFailed,
			Reconnects:     stats.ReconnectsTotal,
		}
	}
	return msg
}

// publish sends msg retained at QoS 1. Nothing is published while the
// MQTT session is down.
func (h *HealthReporter) publish(msg HealthMessage) error {
	if h.cfg.Publisher == nil || !h.cfg.Publisher.IsConnected() {
		return nil
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return h.cfg.Publisher.Publish(h.topic, payload, 1, true)
}

func (h *HealthReporter) logError(msg string, err error) {
	h.loggerMu.RLock()
	logger := h.logger
	h.loggerMu.RUnlock()

	if logger != nil {
		logger.Error(msg, "error", err)
	}
}
