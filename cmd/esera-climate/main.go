// esera-climate runs a virtual hysteresis thermostat over MQTT.
//
// It reads temperatures from climate.sensor_topic and switches
// climate.actuator_topic on and off around climate.setpoint. It shares the
// configuration file with esera-bridge but uses only the mqtt, climate,
// logging and metrics sections.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ckauhaus/esera-mqtt/internal/climate"
	"github.com/ckauhaus/esera-mqtt/internal/infrastructure/config"
	"github.com/ckauhaus/esera-mqtt/internal/infrastructure/logging"
	"github.com/ckauhaus/esera-mqtt/internal/infrastructure/metrics"
	"github.com/ckauhaus/esera-mqtt/internal/infrastructure/mqtt"
)

// Version information - set at build time via ldflags
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

const (
	serviceName       = "esera-climate"
	defaultConfigPath = "configs/config.yaml"
	shutdownTimeout   = 5 * time.Second
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
func run(ctx context.Context) error {
	log := logging.Default(serviceName)
	log.Info("starting virtual thermostat",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Climate.Validate(); err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	log = logging.New(cfg.Logging, serviceName, version).With("thermostat", cfg.Climate.Name)

	reg := metrics.NewRegistry()

	if cfg.MQTT.Broker.ClientID == "" {
		cfg.MQTT.Broker.ClientID = fmt.Sprintf("%s.%d", serviceName, os.Getpid())
	}
	mqttClient, err := mqtt.Connect(cfg.MQTT, mqtt.Will{
		Topic:   climate.StatusTopic(cfg.Climate.Base()),
		Online:  "online",
		Offline: "offline",
	})
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	defer func() {
		log.Info("disconnecting from MQTT")
		if closeErr := mqttClient.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()
	mqttClient.SetLogger(log)
	mqttClient.SetOnConnect(func() {
		reg.SetConnected(metrics.LinkMQTT, true)
		log.Info("MQTT connected")
	})
	mqttClient.SetOnDisconnect(func(err error) {
		reg.SetConnected(metrics.LinkMQTT, false)
		reg.IncReconnects(metrics.LinkMQTT)
		log.Warn("MQTT disconnected", "error", err)
	})
	reg.SetConnected(metrics.LinkMQTT, mqttClient.IsConnected())

	service, err := climate.NewService(climate.ServiceOptions{
		Config:  cfg.Climate,
		QoS:     byte(cfg.MQTT.QoS),
		MQTT:    mqttClient,
		Logger:  log,
		Metrics: reg,

		Discovery: cfg.Discovery.Enabled,
		Version:   version,
	})
	if err != nil {
		return fmt.Errorf("creating thermostat: %w", err)
	}
	if err := service.Start(ctx); err != nil {
		service.Stop()
		return fmt.Errorf("starting thermostat: %w", err)
	}
	defer func() {
		log.Info("stopping thermostat")
		service.Stop()
	}()

	if cfg.Metrics.Enabled {
		server := metrics.NewServer(cfg.Metrics.Listen, reg, log)
		server.AddCheck("mqtt", mqttClient.HealthCheck)
		if err := server.Start(); err != nil {
			return fmt.Errorf("starting metrics server: %w", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				log.Error("error stopping metrics server", "error", err)
			}
		}()
		log.Info("metrics server listening", "address", server.Addr())
	}

	log.Info("initialisation complete, waiting for shutdown signal")
	<-ctx.Done()
	log.Info("shutdown signal received, cleaning up")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses ESERA_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("ESERA_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}
