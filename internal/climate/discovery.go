package climate

import (
	"fmt"

	"github.com/goccy/go-json"
)

const suffixConfig = "config"

// discoveryDevice groups the thermostat's entities in Home Assistant.
type discoveryDevice struct {
	Identifiers  []string `json:"identifiers"`
	Name         string   `json:"name"`
	Manufacturer string   `json:"manufacturer"`
	Model        string   `json:"model"`
	SWVersion    string   `json:"sw_version,omitempty"`
}

// discoveryConfig is the retained climate entity announced below the base
// topic. The thermostat only heats and its setpoint is fixed, so no mode
// or temperature command topics are offered.
type discoveryConfig struct {
	Name                    string          `json:"name"`
	UniqueID                string          `json:"unique_id"`
	AvailabilityTopic       string          `json:"availability_topic"`
	ActionTopic             string          `json:"action_topic"`
	CurrentTemperatureTopic string          `json:"current_temperature_topic"`
	Modes                   []string        `json:"modes"`
	Initial                 float64         `json:"initial"`
	TempStep                float64         `json:"temp_step"`
	QoS                     byte            `json:"qos"`
	Device                  discoveryDevice `json:"device"`
}

// ConfigTopic returns the discovery topic for a climate base topic.
func ConfigTopic(base string) string {
	return base + "/" + suffixConfig
}

func (s *Service) discoveryPayload() ([]byte, error) {
	id := "esera_climate_" + s.cfg.Name
	data, err := json.Marshal(discoveryConfig{
		Name:                    s.cfg.Name,
		UniqueID:                id,
		AvailabilityTopic:       StatusTopic(s.base),
		ActionTopic:             s.base + "/" + suffixAction,
		CurrentTemperatureTopic: s.base + "/" + suffixTemperature,
		Modes:                   []string{"heat"},
		Initial:                 *s.cfg.Setpoint,
		TempStep:                0.1,
		QoS:                     s.qos,
		Device: discoveryDevice{
			Identifiers:  []string{id},
			Name:         s.cfg.Name,
			Manufacturer: "ESERA",
			Model:        "Virtual thermostat",
			SWVersion:    s.version,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("climate discovery: %w", err)
	}
	return data, nil
}

func (s *Service) announce() error {
	data, err := s.discoveryPayload()
	if err != nil {
		return err
	}
	return s.mqtt.Publish(ConfigTopic(s.base), data, s.qos, true)
}
