// Package config handles configuration loading for the parley gateway.
//
// # Overview
//
// Configuration is loaded from YAML files with environment variable expansion.
// The package provides validation and duration parsing; components supply
// their own defaults for anything left unset.
//
// # Configuration File
//
// Default locations (in order):
//
//  1. Path from PARLEY_CONFIG environment variable
//  2. ./config.yaml (current directory)
//  3. ~/.config/parley/gateway.yaml
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	auth:
//	  jwt_secret: "${PARLEY_JWT_SECRET}"
//
// Syntax: ${VAR_NAME}
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	auth:
//	  session_ttl: "24h"
//	presence:
//	  sweep_interval: "30s"
//
// Supported units: ns, us, ms, s, m, h
//
// # Configuration Sections
//
// Server settings:
//
//	server:
//	  http_addr: "0.0.0.0:8080"   # MCP endpoint and API
//
// Database:
//
//	database:
//	  path: "/var/lib/parley/gateway.db"
//
// Authentication:
//
//	auth:
//	  jwt_secret: "${PARLEY_JWT_SECRET}"  # Required
//	  session_ttl: "24h"
//
// Message security:
//
//	security:
//	  envelope_secret: "${PARLEY_ENVELOPE_SECRET}"  # Required
//
// Presence monitoring:
//
//	presence:
//	  sweep_interval: "30s"
//	  response_window: 50
//	  activity_window: 100
//	  error_window: 25
//
// Send deduplication:
//
//	messaging:
//	  dedupe_ttl: "5m"
//	  dedupe_max_entries: 4096
//
// Tool dispatch:
//
//	tools:
//	  call_timeout: "30s"
//
// MCP endpoint:
//
//	mcp:
//	  require_auth: true
//	  default_capabilities: ["comms", "status"]
//
// Logging:
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
//
// # Validation
//
// Load() validates:
//
//   - server.http_addr presence
//   - database.path presence
//   - auth.jwt_secret presence
//   - security.envelope_secret presence
//   - Duration format validity
//
// # Usage
//
// Load configuration:
//
//	cfg, err := config.Load("/etc/parley/gateway.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
package config
