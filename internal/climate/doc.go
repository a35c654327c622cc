// Package climate implements a virtual thermostat driven entirely over MQTT.
//
// The Thermostat is a two-state hysteresis controller:
//
//	            reading < setpoint - h/2
//	  ┌──────┐ ────────────────────────► ┌────────┐
//	  │ Idle │                           │ Active │
//	  └──────┘ ◄──────────────────────── └────────┘
//	            reading > setpoint + h/2
//
// Inside the band the state holds. The Service subscribes to one sensor
// topic, feeds each numeric reading through the thermostat, and on every
// transition publishes the configured on/off payload to the actuator topic.
// Below the base topic (homeassistant/climate/virt/<name> by default) it
// publishes:
//
//	<base>/status               online/offline (session last will)
//	<base>/current_temperature  retained, after every accepted reading
//	<base>/action               retained, heating or idle
//
// The package does not depend on the ESERA bridge; the sensor and actuator
// may be any MQTT topics.
package climate
