// ABOUTME: The init subcommand: writes a starter config and bundle manifest.

package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/fatih/color"
)

const starterConfig = `# coven-connect configuration
# Environment variables expand with ${VAR_NAME} syntax.

engine:
  # bundle_path: /path/to/bundle.toml   # default: ~/.config/coven-connect/bundle.toml

platforms:
  slack:
    enabled: false
    app_token: ${SLACK_APP_TOKEN}
    bot_token: ${SLACK_BOT_TOKEN}
    # allowed_channels: [C0123456789]

  teams:
    enabled: false
    listen_addr: ":3978"
    app_id: ${TEAMS_APP_ID}
    app_secret: ${TEAMS_APP_SECRET}
    # tenant_id: your-tenant-id

  matrix:
    enabled: false
    homeserver: https://matrix.example.com
    user_id: "@bot:example.com"
    access_token: ${MATRIX_ACCESS_TOKEN}
    # allowed_rooms: ["!room:example.com"]
    # allowed_users: ["@you:example.com"]

display:
  mode: single          # single, multi, or blocks
  max_message_length: 4000

workspace:
  roots:
    - ~/projects

dedupe:
  ttl: 5m
  max_size: 10000

database:
  path: %s

logging:
  level: info
  format: text
`

const starterBundle = `name = "default"

[engine]
url = "http://localhost:8710"
api_key_env = "ENGINE_API_KEY"
model = "default"
timeout = "10m"

[prompt]
system = "You are a helpful coding assistant working inside the user's project directory."

[tools]
allowed = ["read_file", "write_file", "run_command"]
`

func runInit() error {
	configPath := getConfigPath()
	configDir := filepath.Dir(configPath)

	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	if _, err := os.Stat(configPath); err == nil {
		return fmt.Errorf("config already exists at %s", configPath)
	}

	dbPath := filepath.Join(configDir, "connect.db")
	if err := os.WriteFile(configPath, []byte(fmt.Sprintf(starterConfig, dbPath)), 0o600); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	bundlePath := filepath.Join(configDir, "bundle.toml")
	if _, err := os.Stat(bundlePath); os.IsNotExist(err) {
		if err := os.WriteFile(bundlePath, []byte(starterBundle), 0o600); err != nil {
			return fmt.Errorf("writing bundle: %w", err)
		}
	}

	green := color.New(color.FgGreen)
	green.Printf("  ✓ Wrote %s\n", configPath)
	green.Printf("  ✓ Wrote %s\n", bundlePath)
	fmt.Println()
	fmt.Println("Enable a platform, fill in its tokens, then run: coven-connect serve")
	return nil
}
