// esera-bridge connects one ESERA controller to an MQTT broker.
//
// Device readings are published retained under ESERA/<contno>/..., and
// messages on ESERA/<contno>/<device>/set/<channel> are forwarded to the
// controller as commands. The session status is ESERA/<contno>/status
// (online, or offline via the last will).
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ckauhaus/esera-mqtt/internal/bridges/esera"
	"github.com/ckauhaus/esera-mqtt/internal/device"
	"github.com/ckauhaus/esera-mqtt/internal/infrastructure/config"
	"github.com/ckauhaus/esera-mqtt/internal/infrastructure/logging"
	"github.com/ckauhaus/esera-mqtt/internal/infrastructure/metrics"
	"github.com/ckauhaus/esera-mqtt/internal/infrastructure/mqtt"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

const (
	serviceName       = "esera-bridge"
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
	log.Info("starting ESERA bridge",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.ValidateBridge(); err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	log = logging.New(cfg.Logging, serviceName, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	reg := metrics.NewRegistry()

	controller, err := esera.NewController(cfg.Controller)
	if err != nil {
		return fmt.Errorf("creating controller link: %w", err)
	}
	controller.SetLogger(log)
	controller.SetMetrics(reg)

	if cfg.MQTT.Broker.ClientID == "" {
		cfg.MQTT.Broker.ClientID = fmt.Sprintf("%s.%d", serviceName, os.Getpid())
	}
	mqttClient, err := mqtt.Connect(cfg.MQTT, mqtt.Will{
		Topic:   device.StatusTopic(cfg.Bridge.Contno),
		Online:  "online",
		Offline: "offline",
	})
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	// Close drops the socket without DISCONNECT, so the broker publishes
	// the offline will.
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
	log.Info("MQTT session started",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	bridge, err := esera.NewBridge(esera.BridgeOptions{
		Config:            cfg,
		MQTTClient:        mqttClient,
		Controller:        controller,
		Logger:            log,
		Metrics:           reg,
		Version:           version,
		ControllerAddress: controller.Address(),
	})
	if err != nil {
		return fmt.Errorf("creating bridge: %w", err)
	}
	if err := bridge.Start(ctx); err != nil {
		return fmt.Errorf("starting bridge: %w", err)
	}
	defer func() {
		log.Info("stopping bridge")
		bridge.Stop()
	}()

	controller.Start(ctx)
	defer func() {
		log.Info("closing controller link")
		if closeErr := controller.Close(); closeErr != nil {
			log.Error("error closing controller link", "error", closeErr)
		}
	}()
	log.Info("controller link started", "address", controller.Address())

	if cfg.Metrics.Enabled {
		server, serr := startMetricsServer(cfg.Metrics.Listen, reg, log, map[string]metrics.Check{
			"mqtt":       mqttClient.HealthCheck,
			"controller": controller.HealthCheck,
		})
		if serr != nil {
			return serr
		}
		defer shutdownMetricsServer(server, log)
	}

	log.Info("initialisation complete, waiting for shutdown signal")
	<-ctx.Done()
	log.Info("shutdown signal received, cleaning up")

	// Deferred calls run in reverse order: metrics server, controller
	// link, bridge, MQTT.
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

func startMetricsServer(addr string, reg *metrics.Registry, log *logging.Logger, checks map[string]metrics.Check) (*metrics.Server, error) {
	server := metrics.NewServer(addr, reg, log)
	for name, check := range checks {
		server.AddCheck(name, check)
	}
	if err := server.Start(); err != nil {
		return nil, fmt.Errorf("starting metrics server: %w", err)
	}
	log.Info("metrics server listening", "address", server.Addr())
	return server, nil
}

func shutdownMetricsServer(server *metrics.Server, log *logging.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Error("error stopping metrics server", "error", err)
	}
}
