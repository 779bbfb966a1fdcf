package core

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/3cpo-dev/ldbench/internal/platform"
)

const DefaultProfile = "bdc"

// Profile holds the credentials for one platform deployment.
type Profile struct {
	APIEndpoint string `yaml:"api_endpoint"`
	AuthToken   string `yaml:"auth_token"`
}

type Config struct {
	DefaultProfile string             `yaml:"default_profile"`
	Profiles       map[string]Profile `yaml:"profiles"`
	Defaults       struct {
		PollIntervalSeconds int     `yaml:"poll_interval_seconds"`
		PollTimeoutSeconds  int     `yaml:"poll_timeout_seconds"`
		Retries             int     `yaml:"retries"`
		TimeoutSeconds      int     `yaml:"timeout_seconds"`
		RequestsPerSecond   float64 `yaml:"requests_per_second"`
	} `yaml:"defaults"`
	Store struct {
		Path string `yaml:"path"`
	} `yaml:"store"`
	Logs struct {
		Dir string `yaml:"dir"`
	} `yaml:"logs"`
	SSH struct {
		KeyPath    string `yaml:"key_path"`
		KnownHosts string `yaml:"known_hosts"`
	} `yaml:"ssh"`
}

// ConfigDir resolves $XDG_CONFIG_HOME/ldbench or ~/.config/ldbench.
func ConfigDir() string {
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, _ := os.UserHomeDir()
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, "ldbench")
}

// LoadConfig reads YAML configuration from a path. If path is empty, it
// resolves ConfigDir()/config.yaml, and a missing default file yields the
// built-in defaults.
func LoadConfig(path string) (Config, error) {
	var cfg Config
	explicit := path != ""
	if !explicit {
		path = filepath.Join(ConfigDir(), "config.yaml")
	}
	f, err := os.Open(path)
	switch {
	case err == nil:
		defer f.Close()
		content, err := io.ReadAll(f)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(content, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
	case errors.Is(err, fs.ErrNotExist) && !explicit:
	default:
		return cfg, fmt.Errorf("open config: %w", err)
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.DefaultProfile == "" {
		c.DefaultProfile = DefaultProfile
	}
	if c.Defaults.PollIntervalSeconds <= 0 {
		c.Defaults.PollIntervalSeconds = int(DefaultPollInterval / time.Second)
	}
	if c.Defaults.Retries <= 0 {
		c.Defaults.Retries = platform.DefaultRetryConfig().MaxRetries
	}
	if c.Defaults.TimeoutSeconds <= 0 {
		c.Defaults.TimeoutSeconds = 30
	}
	if c.Defaults.RequestsPerSecond <= 0 {
		c.Defaults.RequestsPerSecond = 5
	}
	if c.Store.Path == "" {
		c.Store.Path = filepath.Join(ConfigDir(), "ledger.db")
	}
	if c.Logs.Dir == "" {
		c.Logs.Dir = "."
	}
	if c.SSH.KeyPath == "" {
		home, _ := os.UserHomeDir()
		c.SSH.KeyPath = filepath.Join(home, ".ssh", "id_ed25519")
	}
	if c.SSH.KnownHosts == "" {
		home, _ := os.UserHomeDir()
		c.SSH.KnownHosts = filepath.Join(home, ".ssh", "known_hosts")
	}
}

// Wait returns the poll settings from the defaults section.
func (c Config) Wait() WaitOptions {
	return WaitOptions{
		Interval: time.Duration(c.Defaults.PollIntervalSeconds) * time.Second,
		Timeout:  time.Duration(c.Defaults.PollTimeoutSeconds) * time.Second,
	}
}

// ClientOptions builds platform client options for a resolved profile.
func (c Config) ClientOptions(p Profile, logger zerolog.Logger) platform.Options {
	retry := platform.DefaultRetryConfig()
	retry.MaxRetries = c.Defaults.Retries
	return platform.Options{
		Endpoint:          p.APIEndpoint,
		Token:             p.AuthToken,
		Timeout:           time.Duration(c.Defaults.TimeoutSeconds) * time.Second,
		RequestsPerSecond: c.Defaults.RequestsPerSecond,
		Retry:             retry,
		Logger:            logger,
	}
}
