// Package config handles loading and validating the ESERA bridge and
// thermostat configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with environment variables
//   - Validation of required fields
//   - Default value handling
//
// Security Considerations:
//   - The MQTT password should be set via ESERA_MQTT_PASSWORD
//   - MQTTAuthConfig redacts the password when printed or marshalled
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := cfg.ValidateBridge(); err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Controller.Address)
package config
