// Package config handles configuration loading for agentadmin.
//
// # Overview
//
// Configuration is loaded from YAML files with environment variable expansion.
// The package provides validation and sensible defaults.
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	auth:
//	  jwt_secret: "${AGENTADMIN_JWT_SECRET}"
//
// Syntax: ${VAR_NAME}
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	auth:
//	  access_ttl: "4h"
//	  refresh_ttl: "168h"
//
// Supported units: ns, us, ms, s, m, h
//
// # Configuration Sections
//
// Server settings:
//
//	server:
//	  http_addr: "0.0.0.0:8080"
//
// Database:
//
//	database:
//	  path: "/var/lib/agentadmin/agentadmin.db"
//
// Authentication:
//
//	auth:
//	  jwt_secret: "${AGENTADMIN_JWT_SECRET}"  # Required
//	  access_ttl: "4h"
//	  refresh_ttl: "168h"
//
// Rate limiting (requests per minute per client IP):
//
//	rate_limit:
//	  login_per_minute: 5
//	  refresh_per_minute: 10
//
// Sensitive-content filter:
//
//	filter:
//	  enabled: true
//	  words: ["blocked-term"]
//	  response_message: "I cannot answer that."
//
// Tailscale:
//
//	tailscale:
//	  enabled: false
//	  hostname: "agentadmin"
//	  auth_key: "${TS_AUTHKEY}"
//	  funnel: false
//
// Seed data:
//
//	seed:
//	  path: "/etc/agentadmin/seed.toml"
//
// Logging:
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
//
// # Usage
//
// Load configuration:
//
//	cfg, err := config.Load("/etc/agentadmin/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
package config
