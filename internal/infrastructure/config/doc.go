// Package config provides configuration loading for Lumen Core.
//
// Configuration is loaded from a YAML file with three layers of precedence:
//
//  1. Hardcoded defaults
//  2. YAML file values
//  3. LUMEN_* environment variables
//
// The defaults are chosen so that a bare config file with only an app name
// yields a working local deployment: discovery runs all three strategies,
// the gateway client uses the bridge vendor's documented write spacing
// (100 ms per device, 1 s per group), and the HTTP API binds to localhost.
//
// # Usage
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	orchestrator := discovery.New(cfg.Discovery, validator)
//
// Secrets (MQTT credentials, InfluxDB token, API auth token) should be
// supplied via environment variables rather than committed YAML.
package config
