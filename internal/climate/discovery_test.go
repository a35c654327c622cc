package climate

import (
	"context"
	"testing"

	"github.com/goccy/go-json"
)

func TestService_AnnouncesOnStart(t *testing.T) {
	client := newMockMQTT()
	s, err := NewService(ServiceOptions{
		Config:    testClimateConfig(),
		QoS:       1,
		MQTT:      client,
		Discovery: true,
		Version:   "1.2.3",
	})
	if err != nil {
		t.Fatalf("NewService() error = %v", err)
	}
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer s.Stop()

	got := client.on("homeassistant/climate/virt/living/config")
	if len(got) != 1 {
		t.Fatalf("config published %d times, want 1", len(got))
	}
	if !got[0].retained {
		t.Error("discovery config not retained")
	}

	var cfg discoveryConfig
	if err := json.Unmarshal([]byte(got[0].payload), &cfg); err != nil {
		t.Fatalf("payload: %v", err)
	}
	base := "homeassistant/climate/virt/living"
	if cfg.AvailabilityTopic != base+"/status" {
		t.Errorf("availability_topic = %q", cfg.AvailabilityTopic)
	}
	if cfg.ActionTopic != base+"/action" || cfg.CurrentTemperatureTopic != base+"/current_temperature" {
		t.Errorf("state topics = %q, %q", cfg.ActionTopic, cfg.CurrentTemperatureTopic)
	}
	if cfg.Initial != 20 || cfg.UniqueID != "esera_climate_living" {
		t.Errorf("initial = %v, unique_id = %q", cfg.Initial, cfg.UniqueID)
	}
	if len(cfg.Modes) != 1 || cfg.Modes[0] != "heat" {
		t.Errorf("modes = %v, want [heat]", cfg.Modes)
	}
	if cfg.Device.SWVersion != "1.2.3" || cfg.Device.Identifiers[0] != cfg.UniqueID {
		t.Errorf("device = %+v", cfg.Device)
	}
}

func TestService_NoAnnouncementWithoutDiscovery(t *testing.T) {
	s, client, _ := newTestService(t)
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer s.Stop()

	if got := client.on(ConfigTopic(s.Base())); len(got) != 0 {
		t.Errorf("config published without discovery: %v", got)
	}
}
