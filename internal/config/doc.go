// Package config handles configuration loading for the aide runtime.
//
// # Overview
//
// Configuration is loaded from YAML files with environment variable expansion.
// The package provides validation and sensible defaults; every section may be
// omitted and the runtime falls back to Default().
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	database:
//	  path: "${AIDE_DB_PATH}"
//
// Syntax: ${VAR_NAME}
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	sessions:
//	  idle_timeout: "30m"
//	  sweep_interval: "1m"
//
// Supported units: ns, us, ms, s, m, h
//
// # Configuration Sections
//
// Logging:
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
//
// Database (optional; omit for in-memory operation):
//
//	database:
//	  path: "/var/lib/aide/runtime.db"
//
// Sessions:
//
//	sessions:
//	  idle_timeout: "30m"
//	  sweep_interval: "1m"
//
// Event bus:
//
//	bus:
//	  history_size: 1000
//
// Conversation policy tables (optional TOML overlay):
//
//	policy:
//	  path: "/etc/aide/policy.toml"
//
// Per-user skill permissions. Grants under "*" apply to every user; the
// default config grants "notes" to everyone so the built-in memory skill
// works out of the box:
//
//	permissions:
//	  "*": ["notes"]
//	  alice: ["calendar"]
//
// # Usage
//
// Load configuration from a path:
//
//	cfg, err := config.Load("/etc/aide/runtime.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
package config
