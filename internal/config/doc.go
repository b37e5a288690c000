// Package config handles configuration loading for coven-connect.
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
//	platforms:
//	  slack:
//	    bot_token: "${SLACK_BOT_TOKEN}"
//
// Syntax: ${VAR_NAME}
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	dedupe:
//	  ttl: "5m"
//
// Supported units: ns, us, ms, s, m, h
//
// # Configuration Sections
//
// Engine bundle:
//
//	engine:
//	  bundle_path: "/etc/coven-connect/bundle.toml"
//
// Platform adapters (each optional, at least one enabled):
//
//	platforms:
//	  slack:
//	    enabled: true
//	    app_token: "${SLACK_APP_TOKEN}"
//	    bot_token: "${SLACK_BOT_TOKEN}"
//	    allowed_channels: ["C0123456"]
//	  teams:
//	    enabled: false
//	    listen_addr: "0.0.0.0:3978"
//	    app_id: "${TEAMS_APP_ID}"
//	    app_secret: "${TEAMS_APP_SECRET}"
//	  matrix:
//	    enabled: false
//	    homeserver: "https://matrix.example.com"
//	    user_id: "@bot:example.com"
//	    access_token: "${MATRIX_TOKEN}"
//
// Progress display:
//
//	display:
//	  mode: "multi"            # single, multi, blocks
//	  max_message_length: 12000
//
// Workspace allow list:
//
//	workspace:
//	  roots: ["~/workspace"]
//
// Database:
//
//	database:
//	  path: "/var/lib/coven-connect/connect.db"
//
// Logging:
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
//	  file: ""        # optional rotating log file
//
// # Usage
//
// Load configuration from a path:
//
//	cfg, err := config.Load("/etc/coven-connect/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
package config
