package esera

import (
	"context"
	"testing"
	"time"

	"github.com/goccy/go-json"
)

func decodeHealth(t *testing.T, payload []byte) HealthMessage {
	t.Helper()
	var msg HealthMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		t.Fatalf("unmarshal health: %v", err)
	}
	return msg
}

func TestNewHealthReporter_Defaults(t *testing.T) {
	h := NewHealthReporter(HealthReporterConfig{Contno: 3})
	if h.cfg.Interval != defaultHealthInterval {
		t.Errorf("Interval = %v, want %v", h.cfg.Interval, defaultHealthInterval)
	}
	if h.topic != "ESERA/3/health" {
		t.Errorf("topic = %q, want ESERA/3/health", h.topic)
	}
}

func TestHealthReporter_Message(t *testing.T) {
	start := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	h := NewHealthReporter(HealthReporterConfig{
		Contno:     1,
		Version:    "1.2.3",
		Address:    "tcp://10.0.0.5:5000",
		Controller: NewMockConnector(),
	})
	h.startTime = start
	h.now = func() time.Time { return start.Add(90 * time.Second) }
	h.SetDeviceCount(4)

	msg := h.Message(HealthHealthy, "")

	if msg.Contno != 1 || msg.Version != "1.2.3" || msg.Status != HealthHealthy {
		t.Errorf("header = %+v", msg)
	}
	if msg.UptimeSeconds != 90 {
		t.Errorf("UptimeSeconds = %d, want 90", msg.UptimeSeconds)
	}
	if msg.Devices != 4 {
		t.Errorf("Devices = %d, want 4", msg.Devices)
	}
	if msg.Controller.Address != "tcp://10.0.0.5:5000" || !msg.Controller.Connected {
		t.Errorf("Controller = %+v", msg.Controller)
	}
	if msg.Controller.RecordsRx != 42 || msg.Controller.Breaker != "closed" {
		t.Errorf("Controller stats = %+v", msg.Controller)
	}
}

func TestHealthReporter_MessageWithoutController(t *testing.T) {
	h := NewHealthReporter(HealthReporterConfig{Contno: 1, Address: "serial:///dev/ttyUSB0"})

	msg := h.Message(HealthDegraded, "controller disconnected")
	if msg.Controller.State != "disconnected" || msg.Controller.Connected {
		t.Errorf("Controller = %+v", msg.Controller)
	}
	if msg.Controller.Address != "serial:///dev/ttyUSB0" {
		t.Errorf("Address = %q", msg.Controller.Address)
	}
}

func TestHealthReporter_DetermineStatus(t *testing.T) {
	tests := []struct {
		name       string
		connected  bool
		wantStatus HealthStatus
		wantReason string
	}{
		{"controller connected", true, HealthHealthy, ""},
		{"controller disconnected", false, HealthDegraded, "controller disconnected"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			link := NewMockConnector()
			link.SetConnected(tt.connected)
			h := NewHealthReporter(HealthReporterConfig{Controller: link})

			status, reason := h.determineStatus()
			if status != tt.wantStatus || reason != tt.wantReason {
				t.Errorf("determineStatus() = %s, %q; want %s, %q", status, reason, tt.wantStatus, tt.wantReason)
			}
		})
	}
}

func TestHealthReporter_PublishStarting(t *testing.T) {
	pub := NewMockMQTTClient()
	h := NewHealthReporter(HealthReporterConfig{Contno: 2, Publisher: pub})

	if err := h.PublishStarting(); err != nil {
		t.Fatalf("PublishStarting() error = %v", err)
	}

	published := pub.GetPublished()
	if len(published) != 1 {
		t.Fatalf("published %d messages, want 1", len(published))
	}
	p := published[0]
	if p.Topic != "ESERA/2/health" || p.QoS != 1 || !p.Retained {
		t.Errorf("publish = %s qos=%d retained=%v", p.Topic, p.QoS, p.Retained)
	}
	if msg := decodeHealth(t, p.Payload); msg.Status != HealthStarting {
		t.Errorf("Status = %s, want starting", msg.Status)
	}
}

func TestHealthReporter_SkipsWhileDisconnected(t *testing.T) {
	pub := NewMockMQTTClient()
	pub.SetConnected(false)
	h := NewHealthReporter(HealthReporterConfig{Contno: 1, Publisher: pub, Controller: NewMockConnector()})

	if err := h.PublishNow(); err != nil {
		t.Fatalf("PublishNow() error = %v", err)
	}
	if n := len(pub.GetPublished()); n != 0 {
		t.Errorf("published %d messages while disconnected", n)
	}
}

func TestHealthReporter_StartStop(t *testing.T) {
	pub := NewMockMQTTClient()
	link := NewMockConnector()
	link.SetConnected(false)
	h := NewHealthReporter(HealthReporterConfig{
		Contno:     1,
		Interval:   10 * time.Millisecond,
		Publisher:  pub,
		Controller: link,
	})

	h.Start(context.Background())
	waitFor(t, "periodic health", func() bool { return len(pub.GetPublished()) >= 2 })

	h.Stop()
	h.Stop()

	after := len(pub.GetPublished())
	time.Sleep(30 * time.Millisecond)
	if n := len(pub.GetPublished()); n != after {
		t.Errorf("published %d messages after Stop", n-after)
	}

	msg := decodeHealth(t, pub.GetPublished()[0].Payload)
	if msg.Status != HealthDegraded || msg.Reason != "controller disconnected" {
		t.Errorf("health = %s %q, want degraded", msg.Status, msg.Reason)
	}
}

func TestHealthReporter_ContextCancel(t *testing.T) {
	h := NewHealthReporter(HealthReporterConfig{Interval: time.Hour, Publisher: NewMockMQTTClient()})
	ctx, cancel := context.WithCancel(context.Background())
	h.Start(ctx)
	cancel()

	stopped := make(chan struct{})
	go func() {
		h.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("Stop() did not return after context cancel")
	}
}
