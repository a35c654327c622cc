// Package metrics exposes Prometheus counters and the HTTP health endpoints
// shared by the bridge and thermostat processes.
//
// Endpoints:
//   - /metrics: Prometheus exposition of the process Registry
//   - /health: per-component status, 503 when any check fails
//   - /health/live: always 200 while the process runs
//   - /health/ready: 200 once every registered check passes
//
// Usage:
//
//	reg := metrics.NewRegistry()
//	srv := metrics.NewServer(cfg.Metrics.Listen, reg, log)
//	srv.AddCheck("mqtt", mqttClient.HealthCheck)
//	if err := srv.Start(); err != nil {
//	    return err
//	}
//	defer srv.Shutdown(ctx)
package metrics
