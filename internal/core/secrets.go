package core

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
)

// Keys read from secrets.env and the process environment.
const (
	EnvAuthToken   = "SB_AUTH_TOKEN"
	EnvAPIEndpoint = "SB_API_ENDPOINT"
)

// LoadSecretsEnv reads $XDG_CONFIG_HOME/ldbench/secrets.env (or
// ~/.config/ldbench/secrets.env) and returns key/value pairs. A missing
// file is not an error.
func LoadSecretsEnv(path string) (map[string]string, error) {
	if path == "" {
		path = filepath.Join(ConfigDir(), "secrets.env")
	}
	out, err := godotenv.Read(path)
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read secrets %s: %w", path, err)
	}
	return out, nil
}

// overlay copies non-empty endpoint and token values from a key/value set.
func (p *Profile) overlay(kv func(string) string) {
	if v := kv(EnvAPIEndpoint); v != "" {
		p.APIEndpoint = v
	}
	if v := kv(EnvAuthToken); v != "" {
		p.AuthToken = v
	}
}

func environ(key string) string { return os.Getenv(key) }
