package core

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/ini.v1"
)

// CredentialsPath is the shared credentials file used by the platform's
// official client libraries.
func CredentialsPath() string {
	if p := os.Getenv("SB_CREDENTIALS_FILE"); p != "" {
		return p
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".sevenbridges", "credentials")
}

// LoadCredentials reads one profile section from an INI credentials file.
// A missing file or section yields an empty profile.
func LoadCredentials(path, profile string) (Profile, error) {
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return Profile{}, nil
	}
	f, err := ini.Load(path)
	if err != nil {
		return Profile{}, fmt.Errorf("load credentials %s: %w", path, err)
	}
	sec, err := f.GetSection(profile)
	if err != nil {
		return Profile{}, nil
	}
	return Profile{
		APIEndpoint: sec.Key("api_endpoint").String(),
		AuthToken:   sec.Key("auth_token").String(),
	}, nil
}

// ResolveProfile merges credential sources for a profile name. Later
// sources win field by field: the INI credentials file, the YAML profile,
// secrets.env and finally the process environment.
func ResolveProfile(cfg Config, name, secretsPath string) (Profile, error) {
	if name == "" {
		name = cfg.DefaultProfile
	}
	p, err := LoadCredentials(CredentialsPath(), name)
	if err != nil {
		return Profile{}, err
	}
	if y, ok := cfg.Profiles[name]; ok {
		p.overlay(func(k string) string {
			switch k {
			case EnvAPIEndpoint:
				return y.APIEndpoint
			case EnvAuthToken:
				return y.AuthToken
			}
			return ""
		})
	}
	secrets, err := LoadSecretsEnv(secretsPath)
	if err != nil {
		return Profile{}, err
	}
	p.overlay(func(k string) string { return secrets[k] })
	p.overlay(environ)
	if p.AuthToken == "" {
		return p, fmt.Errorf("no auth token for profile %q: set %s or add it to %s", name, EnvAuthToken, CredentialsPath())
	}
	return p, nil
}
