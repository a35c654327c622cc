package config

import (
	"fmt"
	"math"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the ESERA bridge and the
// virtual thermostat. All configuration is loaded from YAML and can be
// overridden by environment variables.
type Config struct {
	MQTT       MQTTConfig        `yaml:"mqtt"`
	Controller ControllerConfig  `yaml:"controller"`
	Bridge     BridgeConfig      `yaml:"bridge"`
	Devices    []DeviceConfig    `yaml:"devices"`
	Articles   map[string]string `yaml:"articles"`
	Climate    ClimateConfig     `yaml:"climate"`
	Discovery  DiscoveryConfig   `yaml:"discovery"`
	Logging    LoggingConfig     `yaml:"logging"`
	Metrics    MetricsConfig     `yaml:"metrics"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// String implements fmt.Stringer without revealing the password.
func (a MQTTAuthConfig) String() string {
	return fmt.Sprintf("{username: %q, password: %s}", a.Username, redact(a.Password))
}

// MarshalJSON implements json.Marshaler without revealing the password.
func (a MQTTAuthConfig) MarshalJSON() ([]byte, error) {
	type plain MQTTAuthConfig
	return json.Marshal(plain{Username: a.Username, Password: redact(a.Password)})
}

func redact(secret string) string {
	if secret == "" {
		return ""
	}
	return "[REDACTED]"
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"` // seconds
	MaxDelay     int `yaml:"max_delay"`     // seconds

	// ConnectRetry keeps retrying the initial connection in the background
	// instead of failing startup when the broker is unreachable.
	ConnectRetry bool `yaml:"connect_retry"`
}

// ControllerConfig contains the ESERA controller link settings.
type ControllerConfig struct {
	// Address is tcp://host:port, host[:port] (port 5000 by default) or
	// serial:///dev/ttyUSB0.
	Address  string `yaml:"address"`
	BaudRate int    `yaml:"baud_rate"`

	ConnectTimeout time.Duration `yaml:"connect_timeout"`

	// IdleTimeout closes a TCP link that has not delivered a line for this
	// long. 0 disables idle detection.
	IdleTimeout time.Duration `yaml:"idle_timeout"`

	Reconnect ControllerReconnectConfig `yaml:"reconnect"`

	// DataInterval is the controller's periodic status interval (DATATIME).
	DataInterval time.Duration `yaml:"data_interval"`

	CommandQueueSize int `yaml:"command_queue_size"`
}

// ControllerReconnectConfig contains the controller link backoff settings.
type ControllerReconnectConfig struct {
	InitialDelay time.Duration `yaml:"initial_delay"`
	MaxDelay     time.Duration `yaml:"max_delay"`
}

// BridgeConfig contains settings of the bridge orchestrator.
type BridgeConfig struct {
	// Contno is the controller number used as topic prefix.
	Contno           int           `yaml:"contno"`
	HealthInterval   time.Duration `yaml:"health_interval"`
	PublishQueueSize int           `yaml:"publish_queue_size"`
	SetQueueSize     int           `yaml:"set_queue_size"`
}

// DeviceConfig pre-registers a device before the controller lists it.
type DeviceConfig struct {
	ID   string `yaml:"id"`
	Kind string `yaml:"kind"`
	Name string `yaml:"name"`
}

// ClimateConfig contains the virtual thermostat settings.
type ClimateConfig struct {
	Name          string `yaml:"name"`
	SensorTopic   string `yaml:"sensor_topic"`
	ActuatorTopic string `yaml:"actuator_topic"`

	// BaseTopic defaults to homeassistant/climate/virt/<name>.
	BaseTopic string `yaml:"base_topic"`

	Setpoint   *float64 `yaml:"setpoint"`
	Hysteresis float64  `yaml:"hysteresis"`
	Offset     float64  `yaml:"offset"`

	MinValid float64 `yaml:"min_valid"`
	MaxValid float64 `yaml:"max_valid"`

	PayloadOn  string `yaml:"payload_on"`
	PayloadOff string `yaml:"payload_off"`
}

// DiscoveryConfig controls Home Assistant MQTT discovery announcements.
type DiscoveryConfig struct {
	Enabled bool `yaml:"enabled"`

	// Prefix is the discovery topic root, "homeassistant" by default.
	Prefix string `yaml:"prefix"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// MetricsConfig contains the HTTP observability endpoint settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: ESERA_SECTION_KEY
// For example: ESERA_MQTT_HOST, ESERA_CONTROLLER_ADDRESS
//
// Only the sections shared by both processes are validated here; the
// bridge calls ValidateBridge and the thermostat calls Climate.Validate.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, fmt.Errorf("applying environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host: "localhost",
				Port: 1883,
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
				ConnectRetry: true,
			},
		},
		Controller: ControllerConfig{
			BaudRate:       19200,
			ConnectTimeout: 10 * time.Second,
			IdleTimeout:    5 * time.Minute,
			Reconnect: ControllerReconnectConfig{
				InitialDelay: time.Second,
				MaxDelay:     60 * time.Second,
			},
			DataInterval:     30 * time.Second,
			CommandQueueSize: 64,
		},
		Bridge: BridgeConfig{
			Contno:           1,
			HealthInterval:   30 * time.Second,
			PublishQueueSize: 256,
			SetQueueSize:     64,
		},
		Climate: ClimateConfig{
			Name:       "thermostat",
			Hysteresis: 1,
			MinValid:   -40,
			MaxValid:   100,
			PayloadOn:  "1",
			PayloadOff: "0",
		},
		Discovery: DiscoveryConfig{
			Enabled: true,
			Prefix:  "homeassistant",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Listen:  ":9120",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: ESERA_SECTION_KEY
func applyEnvOverrides(cfg *Config) error {
	// MQTT
	if v := os.Getenv("ESERA_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("ESERA_MQTT_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("ESERA_MQTT_PORT: %w", err)
		}
		cfg.MQTT.Broker.Port = port
	}
	if v := os.Getenv("ESERA_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("ESERA_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// Controller
	if v := os.Getenv("ESERA_CONTROLLER_ADDRESS"); v != "" {
		cfg.Controller.Address = v
	}
	if v := os.Getenv("ESERA_CONTNO"); v != "" {
		contno, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("ESERA_CONTNO: %w", err)
		}
		cfg.Bridge.Contno = contno
	}

	// Discovery
	if v := os.Getenv("ESERA_DISCOVERY_ENABLED"); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("ESERA_DISCOVERY_ENABLED: %w", err)
		}
		cfg.Discovery.Enabled = enabled
	}

	// Logging
	if v := os.Getenv("ESERA_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	return nil
}

// Validate checks the sections shared by the bridge and the thermostat.
func (c *Config) Validate() error {
	var errs []string

	if c.MQTT.Broker.Host == "" {
		errs = append(errs, "mqtt.broker.host is required")
	}
	if c.MQTT.Broker.Port < 1 || c.MQTT.Broker.Port > 65535 {
		errs = append(errs, "mqtt.broker.port must be between 1 and 65535")
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.Reconnect.InitialDelay < 0 || c.MQTT.Reconnect.MaxDelay < c.MQTT.Reconnect.InitialDelay {
		errs = append(errs, "mqtt.reconnect delays must satisfy 0 <= initial_delay <= max_delay")
	}

	if c.Discovery.Enabled {
		if c.Discovery.Prefix == "" {
			errs = append(errs, "discovery.prefix is required when discovery is enabled")
		} else if strings.ContainsAny(c.Discovery.Prefix, "+#") {
			errs = append(errs, "discovery.prefix must not contain wildcards")
		}
	}

	switch strings.ToLower(c.Logging.Format) {
	case "json", "text", "console":
	default:
		errs = append(errs, "logging.format must be json, text, or console")
	}

	if c.Metrics.Enabled && c.Metrics.Listen == "" {
		errs = append(errs, "metrics.listen is required when metrics are enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}
	return nil
}

// ValidateBridge checks the controller, bridge, devices, and articles
// sections used by the bridge process.
func (c *Config) ValidateBridge() error {
	var errs []string

	if c.Controller.Address == "" {
		errs = append(errs, "controller.address is required (set ESERA_CONTROLLER_ADDRESS)")
	} else if err := checkControllerAddress(c.Controller.Address); err != nil {
		errs = append(errs, "controller.address: "+err.Error())
	}
	if c.Controller.BaudRate <= 0 {
		errs = append(errs, "controller.baud_rate must be positive")
	}
	if c.Controller.ConnectTimeout <= 0 {
		errs = append(errs, "controller.connect_timeout must be positive")
	}
	if c.Controller.IdleTimeout < 0 {
		errs = append(errs, "controller.idle_timeout must not be negative")
	}
	r := c.Controller.Reconnect
	if r.InitialDelay <= 0 || r.MaxDelay < r.InitialDelay {
		errs = append(errs, "controller.reconnect delays must satisfy 0 < initial_delay <= max_delay")
	}
	if c.Controller.DataInterval < time.Second {
		errs = append(errs, "controller.data_interval must be at least 1s")
	}
	if c.Controller.CommandQueueSize < 1 {
		errs = append(errs, "controller.command_queue_size must be positive")
	}

	if c.Bridge.Contno < 0 {
		errs = append(errs, "bridge.contno must not be negative")
	}
	if c.Bridge.HealthInterval < 0 {
		errs = append(errs, "bridge.health_interval must not be negative")
	}
	if c.Bridge.PublishQueueSize < 1 || c.Bridge.SetQueueSize < 1 {
		errs = append(errs, "bridge queue sizes must be positive")
	}

	seen := make(map[string]bool, len(c.Devices))
	for i, d := range c.Devices {
		if err := checkTopicLevel(d.ID); err != nil {
			errs = append(errs, fmt.Sprintf("devices[%d].id: %v", i, err))
		}
		if seen[d.ID] {
			errs = append(errs, fmt.Sprintf("devices[%d].id %q is duplicated", i, d.ID))
		}
		seen[d.ID] = true
		if strings.TrimSpace(d.Kind) == "" {
			errs = append(errs, fmt.Sprintf("devices[%d].kind is required", i))
		}
		if d.Name != "" {
			if err := checkTopicLevel(d.Name); err != nil {
				errs = append(errs, fmt.Sprintf("devices[%d].name: %v", i, err))
			}
		}
	}

	for artno, kind := range c.Articles {
		if strings.TrimSpace(artno) == "" || strings.TrimSpace(kind) == "" {
			errs = append(errs, fmt.Sprintf("articles[%s] needs an article number and a kind", artno))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}
	return nil
}

// checkControllerAddress accepts tcp://host:port, serial://path, and bare
// host[:port] addresses.
func checkControllerAddress(addr string) error {
	if !strings.Contains(addr, "://") {
		return nil
	}
	u, err := url.Parse(addr)
	if err != nil {
		return err
	}
	switch u.Scheme {
	case "tcp":
		if u.Hostname() == "" {
			return fmt.Errorf("missing host in %q", addr)
		}
	case "serial":
		if u.Path == "" {
			return fmt.Errorf("missing device path in %q", addr)
		}
	default:
		return fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	return nil
}

// checkTopicLevel rejects values that cannot form a single MQTT topic
// level. Kind names are resolved by the bridge, not here.
func checkTopicLevel(s string) error {
	if s == "" {
		return fmt.Errorf("must not be empty")
	}
	if strings.ContainsAny(s, "/+#\x00") {
		return fmt.Errorf("%q contains reserved characters", s)
	}
	return nil
}

// Validate checks the thermostat settings.
func (c *ClimateConfig) Validate() error {
	var errs []string

	if c.Name == "" {
		errs = append(errs, "climate.name is required")
	} else if err := checkTopicLevel(c.Name); err != nil {
		errs = append(errs, "climate.name: "+err.Error())
	}
	for field, topic := range map[string]string{
		"climate.sensor_topic":   c.SensorTopic,
		"climate.actuator_topic": c.ActuatorTopic,
	} {
		if topic == "" {
			errs = append(errs, field+" is required")
		} else if strings.ContainsAny(topic, "+#") {
			errs = append(errs, field+" must not contain wildcards")
		}
	}
	if strings.ContainsAny(c.BaseTopic, "+#") {
		errs = append(errs, "climate.base_topic must not contain wildcards")
	}
	if c.Setpoint == nil {
		errs = append(errs, "climate.setpoint is required")
	} else if math.IsNaN(*c.Setpoint) || math.IsInf(*c.Setpoint, 0) {
		errs = append(errs, "climate.setpoint must be a finite number")
	}
	if !(c.Hysteresis > 0) || math.IsInf(c.Hysteresis, 0) {
		errs = append(errs, "climate.hysteresis must be positive")
	}
	if !(c.MinValid < c.MaxValid) {
		errs = append(errs, "climate.min_valid must be below climate.max_valid")
	}
	if c.PayloadOn == "" || c.PayloadOff == "" || c.PayloadOn == c.PayloadOff {
		errs = append(errs, "climate.payload_on and climate.payload_off must be distinct and non-empty")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}
	return nil
}

// Base returns the thermostat's own topic prefix.
func (c *ClimateConfig) Base() string {
	if c.BaseTopic != "" {
		return strings.TrimSuffix(c.BaseTopic, "/")
	}
	return "homeassistant/climate/virt/" + c.Name
}

// GetInitialDelay returns the MQTT reconnect initial delay as a Duration.
func (c *MQTTConfig) GetInitialDelay() time.Duration {
	return time.Duration(c.Reconnect.InitialDelay) * time.Second
}

// GetMaxDelay returns the MQTT reconnect maximum delay as a Duration.
func (c *MQTTConfig) GetMaxDelay() time.Duration {
	return time.Duration(c.Reconnect.MaxDelay) * time.Second
}
