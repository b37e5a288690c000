// ABOUTME: Configuration loading and parsing for coven-connect
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete coven-connect configuration
type Config struct {
	Engine    EngineConfig    `yaml:"engine"`
	Platforms PlatformsConfig `yaml:"platforms"`
	Display   DisplayConfig   `yaml:"display"`
	Workspace WorkspaceConfig `yaml:"workspace"`
	Dedupe    DedupeConfig    `yaml:"dedupe"`
	Database  DatabaseConfig  `yaml:"database"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// EngineConfig points at the execution engine bundle
type EngineConfig struct {
	// BundlePath overrides the bundle manifest location; empty falls back
	// to $COVEN_CONNECT_BUNDLE and then the per-user default.
	BundlePath string `yaml:"bundle_path"`
}

// PlatformsConfig holds configuration for all chat platform adapters
type PlatformsConfig struct {
	Slack  SlackConfig  `yaml:"slack"`
	Teams  TeamsConfig  `yaml:"teams"`
	Matrix MatrixConfig `yaml:"matrix"`
}

// SlackConfig holds Slack Socket Mode configuration
type SlackConfig struct {
	Enabled         bool     `yaml:"enabled"`
	AppToken        string   `yaml:"app_token"`
	BotToken        string   `yaml:"bot_token"`
	AllowedChannels []string `yaml:"allowed_channels"`
}

// TeamsConfig holds the Bot Framework webhook configuration
type TeamsConfig struct {
	Enabled    bool   `yaml:"enabled"`
	ListenAddr string `yaml:"listen_addr"`
	AppID      string `yaml:"app_id"`
	AppSecret  string `yaml:"app_secret"`
	TenantID   string `yaml:"tenant_id"`
}

// MatrixConfig holds Matrix homeserver configuration
type MatrixConfig struct {
	Enabled      bool     `yaml:"enabled"`
	Homeserver   string   `yaml:"homeserver"`
	UserID       string   `yaml:"user_id"`
	AccessToken  string   `yaml:"access_token"`
	AllowedUsers []string `yaml:"allowed_users"`
	AllowedRooms []string `yaml:"allowed_rooms"`
}

// DisplayConfig selects the progress rendering mode
type DisplayConfig struct {
	// Mode is one of single, multi, blocks. Empty means single.
	Mode string `yaml:"mode"`

	// MaxMessageLength truncates outbound final responses. Zero disables.
	MaxMessageLength int `yaml:"max_message_length"`
}

// WorkspaceConfig holds the working-directory allow list
type WorkspaceConfig struct {
	// Roots are the directories conversations may bind workdirs under.
	Roots []string `yaml:"roots"`
}

// DedupeConfig bounds the duplicate-event cache
type DedupeConfig struct {
	TTL     time.Duration `yaml:"-"`
	MaxSize int           `yaml:"max_size"`

	// Raw string value for YAML unmarshaling
	TTLRaw string `yaml:"ttl"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	File   string `yaml:"file"`
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

func (c *Config) applyDefaults() {
	if c.Dedupe.TTL == 0 {
		c.Dedupe.TTL = 5 * time.Minute
	}
	if c.Dedupe.MaxSize == 0 {
		c.Dedupe.MaxSize = 10_000
	}
	if c.Display.Mode == "" {
		c.Display.Mode = "single"
	}
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if !c.Platforms.Slack.Enabled && !c.Platforms.Teams.Enabled && !c.Platforms.Matrix.Enabled {
		return fmt.Errorf("at least one platform must be enabled")
	}

	if c.Platforms.Slack.Enabled {
		if c.Platforms.Slack.AppToken == "" {
			return fmt.Errorf("platforms.slack.app_token is required when slack is enabled")
		}
		if c.Platforms.Slack.BotToken == "" {
			return fmt.Errorf("platforms.slack.bot_token is required when slack is enabled")
		}
	}

	if c.Platforms.Teams.Enabled {
		if c.Platforms.Teams.ListenAddr == "" {
			return fmt.Errorf("platforms.teams.listen_addr is required when teams is enabled")
		}
		if c.Platforms.Teams.AppID == "" {
			return fmt.Errorf("platforms.teams.app_id is required when teams is enabled")
		}
	}

	if c.Platforms.Matrix.Enabled {
		if c.Platforms.Matrix.Homeserver == "" {
			return fmt.Errorf("platforms.matrix.homeserver is required when matrix is enabled")
		}
		if c.Platforms.Matrix.UserID == "" {
			return fmt.Errorf("platforms.matrix.user_id is required when matrix is enabled")
		}
		if c.Platforms.Matrix.AccessToken == "" {
			return fmt.Errorf("platforms.matrix.access_token is required when matrix is enabled")
		}
	}

	switch c.Display.Mode {
	case "single", "multi", "blocks":
	default:
		return fmt.Errorf("display.mode must be single, multi, or blocks, got %q", c.Display.Mode)
	}

	if len(c.Workspace.Roots) == 0 {
		return fmt.Errorf("workspace.roots must list at least one directory")
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	if cfg.Dedupe.TTLRaw != "" {
		ttl, err := time.ParseDuration(cfg.Dedupe.TTLRaw)
		if err != nil {
			return fmt.Errorf("parsing dedupe.ttl %q: %w", cfg.Dedupe.TTLRaw, err)
		}
		cfg.Dedupe.TTL = ttl
	}
	return nil
}
