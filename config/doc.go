// Package config loads the agent configuration.
//
// Configuration is built in layers, later layers winning:
//
//  1. Defaults (DefaultConfig)
//  2. Files added with AddLayer, JSON or YAML by extension, deep-merged key by key
//  3. Environment variables prefixed CURRENTLOGGER_
//  4. Validate, when enabled
//
// Durations are written as Go duration strings ("1s", "250ms") or integer nanoseconds.
//
// Example file:
//
//	device:
//	  id: esp-lab-1
//	sampling:
//	  interval: 1s
//	  sensor:
//	    type: hwmon
//	    path: /sys/class/hwmon/hwmon2/curr1_input
//	buffer:
//	  capacity: 3600
//	  chunk_size: 256
//	http:
//	  enabled: true
//	  url: https://collector.example.com/api/v1/data
//	  api_token: ${secret}
//
// Usage:
//
//	loader := config.NewLoader()
//	loader.AddLayer("/etc/currentlogger/config.yaml")
//	loader.EnableValidation(true)
//	cfg, err := loader.Load()
package config
