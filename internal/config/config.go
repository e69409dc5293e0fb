package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	defaultRelayURL     = "https://relay.durango.dev"
	defaultWebURL       = "https://app.durango.dev"
	defaultAppServerURL = "ws://127.0.0.1:48765"
	defaultCodexBin     = "codex"
)

// Config is the user configuration read once at start. It is never mutated
// after Load returns.
type Config struct {
	MachineID string `yaml:"machine_id"`
	UserID    string `yaml:"user_id"`
	Token     string `yaml:"token"`

	RelayURL string `yaml:"relay_url"`
	WebURL   string `yaml:"web_url"`

	CodexBin          string `yaml:"codex_bin"`
	CodexAppServerURL string `yaml:"codex_app_server_url"`
	CodexVersion      string `yaml:"codex_version"`

	Logging LoggingConfig `yaml:"logging"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// Load reads the config file, overlays environment variables, and validates.
// A .env file in the working directory is applied to the environment first.
func Load() (*Config, error) {
	_ = godotenv.Load()

	path, err := ConfigPath()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		RelayURL:          defaultRelayURL,
		WebURL:            defaultWebURL,
		CodexBin:          defaultCodexBin,
		CodexAppServerURL: defaultAppServerURL,
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	if v := os.Getenv("DURANGO_RELAY_URL"); v != "" {
		cfg.RelayURL = v
	}
	if v := os.Getenv("DURANGO_WEB_URL"); v != "" {
		cfg.WebURL = v
	}
	if v := os.Getenv("DURANGO_CODEX_APP_SERVER_URL"); v != "" {
		cfg.CodexAppServerURL = v
	}
	if v := os.Getenv("DURANGO_CODEX_BIN"); v != "" {
		cfg.CodexBin = v
	}
	if v := os.Getenv("CODEX_VERSION"); v != "" {
		cfg.CodexVersion = v
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that the fields a bridge session requires are present.
func (c *Config) Validate() error {
	if c.MachineID == "" {
		return fmt.Errorf("machine_id is required (run durango login)")
	}
	if c.UserID == "" {
		return fmt.Errorf("user_id is required (run durango login)")
	}
	if c.Token == "" {
		return fmt.Errorf("token is required (run durango login)")
	}
	if c.RelayURL == "" {
		return fmt.Errorf("relay_url is required")
	}
	if c.WebURL == "" {
		return fmt.Errorf("web_url is required")
	}
	return nil
}
