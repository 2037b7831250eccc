package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// AgentConfig configures the on-device agent.
type AgentConfig struct {
	ServerURL       string        `yaml:"server_url"`
	NATSURL         string        `yaml:"nats_url"`
	DataDir         string        `yaml:"data_dir"`
	Interface       string        `yaml:"interface"`
	DebounceDelay   time.Duration `yaml:"debounce_delay"`
	PollInterval    time.Duration `yaml:"poll_interval"`
	RecheckInterval time.Duration `yaml:"recheck_interval"`
	ResolverCommand string        `yaml:"resolver_command"`
	// LocationPermission false makes the resolver report no access point.
	LocationPermission bool   `yaml:"location_permission"`
	MetricsAddr        string `yaml:"metrics_addr"`
	LogLevel           string `yaml:"log_level"`
}

func DefaultAgentConfig() AgentConfig {
	dataDir := ".homepresence"
	if home, err := os.UserHomeDir(); err == nil {
		dataDir = filepath.Join(home, ".homepresence")
	}
	return AgentConfig{
		ServerURL:          "http://localhost:8080",
		DataDir:            dataDir,
		Interface:          "wlan0",
		DebounceDelay:      10 * time.Second,
		PollInterval:       5 * time.Second,
		RecheckInterval:    15 * time.Minute,
		LocationPermission: true,
		LogLevel:           "info",
	}
}

// LoadAgentConfig reads path over the defaults, then applies environment
// overrides. A missing file is not an error.
func LoadAgentConfig(path string) (AgentConfig, error) {
	cfg := DefaultAgentConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return cfg, fmt.Errorf("read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	if v := os.Getenv("AGENT_SERVER_URL"); v != "" {
		cfg.ServerURL = v
	}
	if v := os.Getenv("AGENT_NATS_URL"); v != "" {
		cfg.NATSURL = v
	}
	if v := os.Getenv("AGENT_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c AgentConfig) Validate() error {
	u, err := url.Parse(c.ServerURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("server_url must be an absolute URL, got %q", c.ServerURL)
	}
	if c.DataDir == "" {
		return errors.New("data_dir is required")
	}
	if c.Interface == "" {
		return errors.New("interface is required")
	}
	if c.DebounceDelay <= 0 {
		return errors.New("debounce_delay must be positive")
	}
	if c.PollInterval <= 0 {
		return errors.New("poll_interval must be positive")
	}
	if c.RecheckInterval < c.DebounceDelay {
		return errors.New("recheck_interval must not be shorter than debounce_delay")
	}
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// DatabasePath is the agent's sqlite file.
func (c AgentConfig) DatabasePath() string {
	return filepath.Join(c.DataDir, "agent.db")
}
