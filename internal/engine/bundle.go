// ABOUTME: Bundle manifest loading: the one-time prepared configuration for sessions.
// ABOUTME: Resolves the manifest path, parses TOML, and validates before any session exists.

package engine

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// bundleEnvVar overrides the default manifest location.
const bundleEnvVar = "COVEN_CONNECT_BUNDLE"

// Bundle is the parsed manifest describing how sessions talk to the
// execution engine: endpoint, model, tool policy, and prompt scaffolding.
// It is loaded and validated exactly once at startup; sessions share the
// resulting value read-only.
type Bundle struct {
	Name        string `toml:"name"`
	Description string `toml:"description"`

	Engine struct {
		URL       string `toml:"url"`
		APIKeyEnv string `toml:"api_key_env"`
		Model     string `toml:"model"`
		// Timeout bounds a single execution end to end.
		Timeout duration `toml:"timeout"`
	} `toml:"engine"`

	Prompt struct {
		System     string `toml:"system"`
		SystemFile string `toml:"system_file"`
	} `toml:"prompt"`

	Tools struct {
		Allowed []string `toml:"allowed"`
	} `toml:"tools"`
}

// duration lets the manifest say "5m" instead of nanoseconds.
type duration struct {
	time.Duration
}

func (d *duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

// ResolveBundlePath picks the manifest location: an explicit config path
// wins, then $COVEN_CONNECT_BUNDLE, then the per-user default.
func ResolveBundlePath(explicit string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	if env := os.Getenv(bundleEnvVar); env != "" {
		return env, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}
	return filepath.Join(home, ".config", "coven-connect", "bundle.toml"), nil
}

// LoadBundle reads and validates the manifest at path.
func LoadBundle(path string) (*Bundle, error) {
	var b Bundle
	if _, err := toml.DecodeFile(path, &b); err != nil {
		return nil, fmt.Errorf("parsing bundle %s: %w", path, err)
	}
	if err := b.validate(path); err != nil {
		return nil, err
	}
	if b.Prompt.SystemFile != "" {
		// Relative prompt files resolve next to the manifest.
		promptPath := b.Prompt.SystemFile
		if !filepath.IsAbs(promptPath) {
			promptPath = filepath.Join(filepath.Dir(path), promptPath)
		}
		data, err := os.ReadFile(promptPath)
		if err != nil {
			return nil, fmt.Errorf("reading system prompt %s: %w", promptPath, err)
		}
		b.Prompt.System = string(data)
	}
	return &b, nil
}

func (b *Bundle) validate(path string) error {
	if b.Name == "" {
		return fmt.Errorf("bundle %s: name is required", path)
	}
	if b.Engine.URL == "" {
		return fmt.Errorf("bundle %s: engine.url is required", path)
	}
	if b.Prompt.System != "" && b.Prompt.SystemFile != "" {
		return fmt.Errorf("bundle %s: prompt.system and prompt.system_file are mutually exclusive", path)
	}
	if b.Engine.Timeout.Duration < 0 {
		return fmt.Errorf("bundle %s: engine.timeout must not be negative", path)
	}
	return nil
}

// APIKey resolves the engine credential from the environment. An unset
// api_key_env means the endpoint is unauthenticated (local engines).
func (b *Bundle) APIKey() string {
	if b.Engine.APIKeyEnv == "" {
		return ""
	}
	return os.Getenv(b.Engine.APIKeyEnv)
}
