package climate

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ckauhaus/esera-mqtt/internal/infrastructure/config"
	"github.com/ckauhaus/esera-mqtt/internal/infrastructure/mqtt"
)

// readingQueueSize bounds sensor messages waiting for evaluation.
const readingQueueSize = 16

// MQTTClient is the subset of *mqtt.Client the service needs.
type MQTTClient interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
}

// Logger is the logging interface used by the service.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Metrics receives thermostat events. *metrics.Registry satisfies it.
type Metrics interface {
	IncThermostatTransitions(action string)
	SetThermostatTemperature(celsius float64)
	IncQueueDrops(queue string)
}

type noopMetrics struct{}

func (noopMetrics) IncThermostatTransitions(string)  {}
func (noopMetrics) SetThermostatTemperature(float64) {}
func (noopMetrics) IncQueueDrops(string)             {}

// Topic suffixes below the base topic.
const (
	suffixStatus      = "status"
	suffixAction      = "action"
	suffixTemperature = "current_temperature"
)

// StatusTopic returns the availability topic for a climate base topic.
func StatusTopic(base string) string {
	return base + "/" + suffixStatus
}

// ServiceOptions holds configuration for creating a Service.
type ServiceOptions struct {
	Config  config.ClimateConfig
	QoS     byte
	MQTT    MQTTClient
	Logger  Logger
	Metrics Metrics

	// Discovery announces the thermostat as a Home Assistant climate
	// entity on Start.
	Discovery bool
	Version   string
}

// Service connects a Thermostat to MQTT: it subscribes to the sensor
// topic, evaluates every reading and drives the actuator topic on state
// transitions. Sensor messages pass through a bounded queue so the MQTT
// client's delivery goroutine never waits on a publish.
//
// Thread Safety: All methods are safe for concurrent use.
type Service struct {
	cfg        config.ClimateConfig
	base       string
	qos        byte
	mqtt       MQTTClient
	thermostat *Thermostat
	logger     Logger
	metrics    Metrics
	discovery  bool
	version    string

	queue chan []byte

	done      chan struct{}
	wg        sync.WaitGroup
	startOnce sync.Once
	stopOnce  sync.Once
}

// NewService validates the climate configuration and builds a service in
// StateIdle. Call Start to subscribe.
func NewService(opts ServiceOptions) (*Service, error) {
	if opts.MQTT == nil {
		return nil, fmt.Errorf("MQTT client is required")
	}
	cfg := opts.Config
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	t, err := NewThermostat(Settings{
		Setpoint:   *cfg.Setpoint,
		Hysteresis: cfg.Hysteresis,
		Offset:     cfg.Offset,
		MinValid:   cfg.MinValid,
		MaxValid:   cfg.MaxValid,
	})
	if err != nil {
		return nil, err
	}

	s := &Service{
		cfg:        cfg,
		base:       cfg.Base(),
		qos:        opts.QoS,
		mqtt:       opts.MQTT,
		thermostat: t,
		logger:     opts.Logger,
		metrics:    opts.Metrics,
		discovery:  opts.Discovery,
		version:    opts.Version,
		queue:      make(chan []byte, readingQueueSize),
		done:       make(chan struct{}),
	}
	if s.logger == nil {
		s.logger = noopLogger{}
	}
	if s.metrics == nil {
		s.metrics = noopMetrics{}
	}
	return s, nil
}

// Thermostat returns the service's state machine.
func (s *Service) Thermostat() *Thermostat {
	return s.thermostat
}

// Base returns the base topic for status, action and temperature.
func (s *Service) Base() string {
	return s.base
}

// Start publishes the initial action and subscribes to the sensor topic.
// With discovery enabled the climate entity is announced first.
func (s *Service) Start(ctx context.Context) error {
	var err error
	s.startOnce.Do(func() {
		s.wg.Add(1)
		go s.loop(ctx)

		if s.discovery {
			if aerr := s.announce(); aerr != nil {
				s.logger.Warn("cannot announce thermostat", "error", aerr)
			}
		}

		if perr := s.publishAction(StateIdle); perr != nil {
			s.logger.Warn("cannot publish initial action", "error", perr)
		}

		if serr := s.mqtt.Subscribe(s.cfg.SensorTopic, s.qos, s.enqueue); serr != nil {
			err = fmt.Errorf("subscribe to sensor topic: %w", serr)
			return
		}

		low, high := s.thermostat.Band()
		s.logger.Info("thermostat started",
			"name", s.cfg.Name,
			"sensor", s.cfg.SensorTopic,
			"actuator", s.cfg.ActuatorTopic,
			"low", low,
			"high", high)
	})
	return err
}

// Stop ends evaluation. Queued readings are discarded and nothing is
// published; the status topic's last will reports the shutdown.
func (s *Service) Stop() {
	s.stopOnce.Do(func() {
		close(s.done)
		s.wg.Wait()
	})
}

// enqueue is the MQTT handler for the sensor topic.
func (s *Service) enqueue(topic string, payload []byte) error {
	select {
	case s.queue <- append([]byte(nil), payload...):
		return nil
	default:
		s.metrics.IncQueueDrops("climate")
		return fmt.Errorf("%w: dropping reading from %s", ErrQueueFull, topic)
	}
}

func (s *Service) loop(ctx context.Context) {
	defer s.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		case payload := <-s.queue:
			s.HandleReading(payload)
		}
	}
}

// HandleReading evaluates one sensor payload. Payloads that are not a
// number or fall outside the valid range are logged and ignored.
func (s *Service) HandleReading(payload []byte) {
	raw, err := ParseReading(payload)
	if err != nil {
		s.logger.Warn("ignoring sensor reading", "error", err)
		return
	}
	tr, err := s.thermostat.Observe(raw)
	if err != nil {
		s.logger.Warn("ignoring sensor reading", "error", err)
		return
	}

	s.metrics.SetThermostatTemperature(tr.Temperature)
	if err := s.publish(s.base+"/"+suffixTemperature, FormatTemperature(tr.Temperature), true); err != nil {
		s.logger.Debug("cannot publish temperature", "error", err)
	}

	if !tr.Changed() {
		return
	}

	s.metrics.IncThermostatTransitions(tr.To.Action())
	s.logger.Info("thermostat transition",
		"from", tr.From.String(),
		"to", tr.To.String(),
		"temperature", tr.Temperature)

	payloadOut := s.cfg.PayloadOff
	if tr.To == StateActive {
		payloadOut = s.cfg.PayloadOn
	}
	var errs []error
	if err := s.publish(s.cfg.ActuatorTopic, payloadOut, false); err != nil {
		errs = append(errs, fmt.Errorf("actuator: %w", err))
	}
	if err := s.publishAction(tr.To); err != nil {
		errs = append(errs, fmt.Errorf("action: %w", err))
	}
	if err := errors.Join(errs...); err != nil {
		s.logger.Error("cannot publish transition", "error", err)
	}
}

func (s *Service) publishAction(st State) error {
	return s.publish(s.base+"/"+suffixAction, st.Action(), true)
}

func (s *Service) publish(topic, payload string, retained bool) error {
	return s.mqtt.Publish(topic, []byte(payload), s.qos, retained)
}
