package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Link names used as the "link" label.
const (
	LinkController = "controller"
	LinkMQTT       = "mqtt"
)

// Registry holds all Prometheus metrics of one process.
//
// Each Registry owns its prometheus.Registry, so tests can create as many
// as they like without duplicate registration panics.
type Registry struct {
	reg *prometheus.Registry

	records           *prometheus.CounterVec
	parseErrors       prometheus.Counter
	controllerErrors  prometheus.Counter
	readingsPublished prometheus.Counter
	publishFailures   prometheus.Counter
	commandsSent      prometheus.Counter
	commandsRejected  *prometheus.CounterVec
	queueDrops        *prometheus.CounterVec
	reconnects        *prometheus.CounterVec
	connected         *prometheus.GaugeVec
	devices           prometheus.Gauge

	thermostatTransitions *prometheus.CounterVec
	thermostatTemperature prometheus.Gauge
}

// NewRegistry creates a new metrics registry including Go runtime and
// process collectors.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Registry{
		reg: reg,
		records: f.NewCounterVec(prometheus.CounterOpts{
			Name: "esera_records_total",
			Help: "Total number of controller records received, by record type",
		}, []string{"type"}),
		parseErrors: f.NewCounter(prometheus.CounterOpts{
			Name: "esera_parse_errors_total",
			Help: "Total number of controller lines that could not be parsed",
		}),
		controllerErrors: f.NewCounter(prometheus.CounterOpts{
			Name: "esera_controller_errors_total",
			Help: "Total number of ERR messages reported by the controller",
		}),
		readingsPublished: f.NewCounter(prometheus.CounterOpts{
			Name: "esera_readings_published_total",
			Help: "Total number of channel readings published to MQTT",
		}),
		publishFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "esera_publish_failures_total",
			Help: "Total number of MQTT publishes that failed",
		}),
		commandsSent: f.NewCounter(prometheus.CounterOpts{
			Name: "esera_commands_sent_total",
			Help: "Total number of commands written to the controller",
		}),
		commandsRejected: f.NewCounterVec(prometheus.CounterOpts{
			Name: "esera_commands_rejected_total",
			Help: "Total number of set messages rejected, by reason",
		}, []string{"reason"}),
		queueDrops: f.NewCounterVec(prometheus.CounterOpts{
			Name: "esera_queue_drops_total",
			Help: "Total number of items dropped because a queue was full, by queue",
		}, []string{"queue"}),
		reconnects: f.NewCounterVec(prometheus.CounterOpts{
			Name: "esera_reconnects_total",
			Help: "Total number of successful reconnects, by link",
		}, []string{"link"}),
		connected: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "esera_link_connected",
			Help: "Whether a link is currently connected (1) or not (0)",
		}, []string{"link"}),
		devices: f.NewGauge(prometheus.GaugeOpts{
			Name: "esera_devices",
			Help: "Number of devices in the registry",
		}),
		thermostatTransitions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "esera_thermostat_transitions_total",
			Help: "Total number of thermostat state transitions, by new action",
		}, []string{"action"}),
		thermostatTemperature: f.NewGauge(prometheus.GaugeOpts{
			Name: "esera_thermostat_temperature_celsius",
			Help: "Last accepted thermostat sensor reading",
		}),
	}
}

// Gatherer returns the underlying registry for exposition.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.reg
}

// IncRecords increments the record counter for a record type.
func (r *Registry) IncRecords(recordType string) {
	r.records.WithLabelValues(recordType).Inc()
}

// IncParseErrors increments the parse errors counter.
func (r *Registry) IncParseErrors() {
	r.parseErrors.Inc()
}

// IncControllerErrors increments the controller ERR counter.
func (r *Registry) IncControllerErrors() {
	r.controllerErrors.Inc()
}

// IncReadingsPublished increments the published readings counter.
func (r *Registry) IncReadingsPublished() {
	r.readingsPublished.Inc()
}

// IncPublishFailures increments the publish failure counter.
func (r *Registry) IncPublishFailures() {
	r.publishFailures.Inc()
}

// IncCommandsSent increments the commands sent counter.
func (r *Registry) IncCommandsSent() {
	r.commandsSent.Inc()
}

// IncCommandsRejected increments the rejected commands counter.
func (r *Registry) IncCommandsRejected(reason string) {
	r.commandsRejected.WithLabelValues(reason).Inc()
}

// IncQueueDrops increments the drop counter of a queue.
func (r *Registry) IncQueueDrops(queue string) {
	r.queueDrops.WithLabelValues(queue).Inc()
}

// IncReconnects increments the reconnect counter of a link.
func (r *Registry) IncReconnects(link string) {
	r.reconnects.WithLabelValues(link).Inc()
}

// SetConnected records the connection state of a link.
func (r *Registry) SetConnected(link string, up bool) {
	v := 0.0
	if up {
		v = 1
	}
	r.connected.WithLabelValues(link).Set(v)
}

// SetDevices sets the registry size gauge.
func (r *Registry) SetDevices(n int) {
	r.devices.Set(float64(n))
}

// IncThermostatTransitions increments the transition counter for the new action.
func (r *Registry) IncThermostatTransitions(action string) {
	r.thermostatTransitions.WithLabelValues(action).Inc()
}

// SetThermostatTemperature sets the last accepted sensor reading.
func (r *Registry) SetThermostatTemperature(celsius float64) {
	r.thermostatTemperature.Set(celsius)
}
