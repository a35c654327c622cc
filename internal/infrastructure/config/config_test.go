package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return configPath
}

func TestLoad_ValidConfig(t *testing.T) {
	content := `
mqtt:
  broker:
    host: "broker.local"
    port: 1884
    client_id: "esera-test"
  qos: 0
controller:
  address: "tcp://10.0.0.5:5000"
  idle_timeout: 90s
  reconnect:
    initial_delay: 2s
    max_delay: 30s
bridge:
  contno: 2
devices:
  - id: OWD17
    kind: temperature-humidity-sensor
    name: K9
articles:
  "11999": digital-switch
`
	cfg, err := Load(writeConfig(t, content))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if err := cfg.ValidateBridge(); err != nil {
		t.Fatalf("ValidateBridge() error = %v", err)
	}

	if cfg.MQTT.Broker.Host != "broker.local" || cfg.MQTT.Broker.Port != 1884 {
		t.Errorf("MQTT.Broker = %+v", cfg.MQTT.Broker)
	}
	if cfg.MQTT.QoS != 0 {
		t.Errorf("MQTT.QoS = %d, want 0", cfg.MQTT.QoS)
	}
	if cfg.Controller.Address != "tcp://10.0.0.5:5000" {
		t.Errorf("Controller.Address = %q", cfg.Controller.Address)
	}
	if cfg.Controller.IdleTimeout != 90*time.Second {
		t.Errorf("Controller.IdleTimeout = %v, want 90s", cfg.Controller.IdleTimeout)
	}
	if cfg.Controller.Reconnect.InitialDelay != 2*time.Second || cfg.Controller.Reconnect.MaxDelay != 30*time.Second {
		t.Errorf("Controller.Reconnect = %+v", cfg.Controller.Reconnect)
	}
	// Unset values keep their defaults.
	if cfg.Controller.DataInterval != 30*time.Second {
		t.Errorf("Controller.DataInterval = %v, want default 30s", cfg.Controller.DataInterval)
	}
	if cfg.Bridge.Contno != 2 {
		t.Errorf("Bridge.Contno = %d, want 2", cfg.Bridge.Contno)
	}
	if len(cfg.Devices) != 1 || cfg.Devices[0].Name != "K9" {
		t.Errorf("Devices = %+v", cfg.Devices)
	}
	if cfg.Articles["11999"] != "digital-switch" {
		t.Errorf("Articles = %v", cfg.Articles)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "invalid: [yaml: content"))
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_ValidationFailure(t *testing.T) {
	content := `
mqtt:
  qos: 5
`
	_, err := Load(writeConfig(t, content))
	if err == nil || !strings.Contains(err.Error(), "mqtt.qos") {
		t.Errorf("Load() error = %v, want mqtt.qos validation error", err)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("ESERA_MQTT_HOST", "mqtt.example.com")
	t.Setenv("ESERA_MQTT_PORT", "8883")
	t.Setenv("ESERA_MQTT_USERNAME", "bridge")
	t.Setenv("ESERA_MQTT_PASSWORD", "s3cret")
	t.Setenv("ESERA_CONTROLLER_ADDRESS", "serial:///dev/ttyUSB0")
	t.Setenv("ESERA_CONTNO", "3")
	t.Setenv("ESERA_LOG_LEVEL", "debug")
	t.Setenv("ESERA_DISCOVERY_ENABLED", "false")

	cfg, err := Load(writeConfig(t, "mqtt:\n  broker:\n    host: from-file\n"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.MQTT.Broker.Host != "mqtt.example.com" {
		t.Errorf("MQTT.Broker.Host = %q, want %q", cfg.MQTT.Broker.Host, "mqtt.example.com")
	}
	if cfg.MQTT.Broker.Port != 8883 {
		t.Errorf("MQTT.Broker.Port = %d, want 8883", cfg.MQTT.Broker.Port)
	}
	if cfg.MQTT.Auth.Username != "bridge" || cfg.MQTT.Auth.Password != "s3cret" {
		t.Errorf("MQTT.Auth = %q/%q", cfg.MQTT.Auth.Username, cfg.MQTT.Auth.Password)
	}
	if cfg.Controller.Address != "serial:///dev/ttyUSB0" {
		t.Errorf("Controller.Address = %q", cfg.Controller.Address)
	}
	if cfg.Bridge.Contno != 3 {
		t.Errorf("Bridge.Contno = %d, want 3", cfg.Bridge.Contno)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want debug", cfg.Logging.Level)
	}
	if cfg.Discovery.Enabled {
		t.Error("Discovery.Enabled = true, want false from environment")
	}
}

func TestLoad_InvalidEnvNumber(t *testing.T) {
	t.Setenv("ESERA_CONTNO", "one")
	if _, err := Load(writeConfig(t, "{}\n")); err == nil {
		t.Error("Load() expected error for non-numeric ESERA_CONTNO")
	}
}

func validBridgeConfig() *Config {
	cfg := defaultConfig()
	cfg.Controller.Address = "tcp://10.0.0.5:5000"
	return cfg
}

func TestConfig_ValidateBridge(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"bare host", func(c *Config) { c.Controller.Address = "10.0.0.5" }, ""},
		{"serial", func(c *Config) { c.Controller.Address = "serial:///dev/ttyUSB0" }, ""},
		{"missing address", func(c *Config) { c.Controller.Address = "" }, "controller.address is required"},
		{"bad scheme", func(c *Config) { c.Controller.Address = "udp://x:1" }, "unsupported scheme"},
		{"serial without path", func(c *Config) { c.Controller.Address = "serial://" }, "missing device path"},
		{"backoff inverted", func(c *Config) { c.Controller.Reconnect.MaxDelay = time.Millisecond }, "controller.reconnect"},
		{"short data interval", func(c *Config) { c.Controller.DataInterval = 0 }, "data_interval"},
		{"negative contno", func(c *Config) { c.Bridge.Contno = -1 }, "bridge.contno"},
		{"missing device kind", func(c *Config) {
			c.Devices = []DeviceConfig{{ID: "OWD1"}}
		}, "devices[0].kind is required"},
		{"bad device id", func(c *Config) {
			c.Devices = []DeviceConfig{{ID: "OWD#1", Kind: "digital-switch"}}
		}, "devices[0].id"},
		{"duplicate device", func(c *Config) {
			c.Devices = []DeviceConfig{
				{ID: "OWD1", Kind: "digital-switch"},
				{ID: "OWD1", Kind: "digital-switch"},
			}
		}, "duplicated"},
		{"bad device name", func(c *Config) {
			c.Devices = []DeviceConfig{{ID: "OWD1", Kind: "digital-switch", Name: "a/b"}}
		}, "devices[0].name"},
		{"empty article kind", func(c *Config) { c.Articles = map[string]string{"1": " "} }, "articles[1]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validBridgeConfig()
			tt.modify(cfg)
			err := cfg.ValidateBridge()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("ValidateBridge() unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("ValidateBridge() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_Validate_CollectsAllErrors(t *testing.T) {
	cfg := defaultConfig()
	cfg.MQTT.Broker.Port = 0
	cfg.MQTT.QoS = 3
	cfg.Logging.Format = "xml"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() expected error")
	}
	for _, want := range []string{"mqtt.broker.port", "mqtt.qos", "logging.format"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("Validate() error %q missing %q", err, want)
		}
	}
}

func TestClimateConfig_Validate(t *testing.T) {
	setpoint := 20.0

	valid := func() ClimateConfig {
		c := defaultConfig().Climate
		c.SensorTopic = "ESERA/1/K9/temp"
		c.ActuatorTopic = "ESERA/1/SYS/set/ch1"
		c.Setpoint = &setpoint
		c.Hysteresis = 2
		return c
	}

	tests := []struct {
		name    string
		modify  func(*ClimateConfig)
		wantErr string
	}{
		{"valid", func(*ClimateConfig) {}, ""},
		{"missing setpoint", func(c *ClimateConfig) { c.Setpoint = nil }, "climate.setpoint is required"},
		{"zero hysteresis", func(c *ClimateConfig) { c.Hysteresis = 0 }, "climate.hysteresis"},
		{"wildcard sensor", func(c *ClimateConfig) { c.SensorTopic = "ESERA/1/+/temp" }, "climate.sensor_topic"},
		{"missing actuator", func(c *ClimateConfig) { c.ActuatorTopic = "" }, "climate.actuator_topic is required"},
		{"inverted range", func(c *ClimateConfig) { c.MinValid, c.MaxValid = 50, 10 }, "climate.min_valid"},
		{"equal payloads", func(c *ClimateConfig) { c.PayloadOff = c.PayloadOn }, "payload"},
		{"bad name", func(c *ClimateConfig) { c.Name = "a/b" }, "climate.name"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.modify(&c)
			err := c.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestClimateConfig_Base(t *testing.T) {
	c := ClimateConfig{Name: "office"}
	if got := c.Base(); got != "homeassistant/climate/virt/office" {
		t.Errorf("Base() = %q", got)
	}
	c.BaseTopic = "home/thermostat/"
	if got := c.Base(); got != "home/thermostat" {
		t.Errorf("Base() = %q", got)
	}
}

func TestMQTTAuthConfig_Redaction(t *testing.T) {
	auth := MQTTAuthConfig{Username: "bridge", Password: "s3cret"}

	if s := auth.String(); strings.Contains(s, "s3cret") {
		t.Errorf("String() leaks password: %s", s)
	}

	data, err := json.Marshal(MQTTConfig{Auth: auth})
	if err != nil {
		t.Fatalf("json.Marshal() error = %v", err)
	}
	if strings.Contains(string(data), "s3cret") {
		t.Errorf("MarshalJSON leaks password: %s", data)
	}
	if !strings.Contains(string(data), "bridge") {
		t.Errorf("MarshalJSON dropped username: %s", data)
	}
}

func TestMQTTConfig_Delays(t *testing.T) {
	cfg := defaultConfig()
	if got := cfg.MQTT.GetInitialDelay(); got != time.Second {
		t.Errorf("GetInitialDelay() = %v, want 1s", got)
	}
	if got := cfg.MQTT.GetMaxDelay(); got != time.Minute {
		t.Errorf("GetMaxDelay() = %v, want 1m", got)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if err := cfg.Validate(); err != nil {
		t.Errorf("defaultConfig should validate: %v", err)
	}
	if cfg.MQTT.Broker.Port != 1883 {
		t.Errorf("defaultConfig MQTT.Broker.Port = %d, want 1883", cfg.MQTT.Broker.Port)
	}
	if cfg.Controller.IdleTimeout != 5*time.Minute {
		t.Errorf("defaultConfig Controller.IdleTimeout = %v, want 5m", cfg.Controller.IdleTimeout)
	}
	if cfg.Climate.MinValid != -40 || cfg.Climate.MaxValid != 100 {
		t.Errorf("defaultConfig climate range = %v..%v", cfg.Climate.MinValid, cfg.Climate.MaxValid)
	}
	if !cfg.Discovery.Enabled || cfg.Discovery.Prefix != "homeassistant" {
		t.Errorf("defaultConfig Discovery = %+v", cfg.Discovery)
	}
}

func TestConfig_Validate_Discovery(t *testing.T) {
	tests := []struct {
		name    string
		cfg     DiscoveryConfig
		wantErr string
	}{
		{"enabled", DiscoveryConfig{Enabled: true, Prefix: "ha"}, ""},
		{"disabled without prefix", DiscoveryConfig{}, ""},
		{"missing prefix", DiscoveryConfig{Enabled: true}, "discovery.prefix is required"},
		{"wildcard prefix", DiscoveryConfig{Enabled: true, Prefix: "ha/#"}, "discovery.prefix must not contain wildcards"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			cfg.Discovery = tt.cfg
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}
