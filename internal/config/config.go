// Package config loads server settings: defaults, then an optional
// settings.toml, then environment variable overrides.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/pelletier/go-toml/v2"
)

// Settings is the full server configuration. TOML covers the file form,
// env tags the variable overrides; secrets are env-only.
type Settings struct {
	ListenAddr   string `toml:"listen_addr" env:"MCPO_LISTEN_ADDR"`
	DataDir      string `toml:"data_dir" env:"MCPO_DATA_DIR"`
	StoreBackend string `toml:"store_backend" env:"MCPO_STORE_BACKEND"` // "file" or "sqlite"

	JWTSecretKey        string `toml:"-" env:"JWT_SECRET_KEY"`
	APIKeyEncryptionKey string `toml:"-" env:"API_KEY_ENCRYPTION_KEY"`

	AdminUsername string `toml:"admin_username" env:"MCPO_ADMIN_USERNAME"`
	AdminPassword string `toml:"-" env:"MCPO_ADMIN_PASSWORD"`

	HandshakeTimeoutSeconds int `toml:"handshake_timeout_seconds" env:"MCPO_HANDSHAKE_TIMEOUT_SECONDS"`
	CallTimeoutSeconds      int `toml:"call_timeout_seconds" env:"MCPO_CALL_TIMEOUT_SECONDS"`
	ShutdownGraceSeconds    int `toml:"shutdown_grace_seconds" env:"MCPO_SHUTDOWN_GRACE_SECONDS"`
	TokenTTLHours           int `toml:"token_ttl_hours" env:"MCPO_TOKEN_TTL_HOURS"`

	// MaxInflightPerChild caps concurrent tool calls per child process;
	// zero leaves them unbounded.
	MaxInflightPerChild int `toml:"max_inflight_per_child" env:"MCPO_MAX_INFLIGHT_PER_CHILD"`

	// EnvAllowList names the ambient variables children may inherit.
	EnvAllowList []string `toml:"env_allow_list" env:"MCPO_ENV_ALLOW_LIST" envSeparator:","`
}

// DefaultSettings returns the baseline configuration.
func DefaultSettings() Settings {
	return Settings{
		ListenAddr:              ":8000",
		StoreBackend:            "file",
		AdminUsername:           "admin",
		AdminPassword:           "MCPOadmin",
		HandshakeTimeoutSeconds: 30,
		CallTimeoutSeconds:      120,
		ShutdownGraceSeconds:    5,
		TokenTTLHours:           24,
	}
}

// Load builds settings from defaults, the TOML file at path (missing file
// is fine), and finally the environment.
func Load(path string) (Settings, error) {
	s := DefaultSettings()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return s, fmt.Errorf("failed to read settings file: %w", err)
		}
		if err == nil {
			if err := toml.Unmarshal(data, &s); err != nil {
				return s, fmt.Errorf("failed to parse %s: %w", path, err)
			}
		}
	}

	if err := env.Parse(&s); err != nil {
		return s, fmt.Errorf("failed to parse environment: %w", err)
	}

	if s.DataDir == "" {
		configDir, err := os.UserConfigDir()
		if err != nil {
			configDir = "."
		}
		s.DataDir = configDir + "/mcpo-simple-server"
	}
	return s, nil
}

// Validate rejects configurations the server cannot run with.
func (s Settings) Validate() error {
	if s.JWTSecretKey == "" {
		return fmt.Errorf("JWT_SECRET_KEY is required")
	}
	if s.APIKeyEncryptionKey == "" {
		return fmt.Errorf("API_KEY_ENCRYPTION_KEY is required")
	}
	return nil
}

func (s Settings) HandshakeTimeout() time.Duration {
	return time.Duration(s.HandshakeTimeoutSeconds) * time.Second
}

func (s Settings) CallTimeout() time.Duration {
	return time.Duration(s.CallTimeoutSeconds) * time.Second
}

func (s Settings) ShutdownGrace() time.Duration {
	return time.Duration(s.ShutdownGraceSeconds) * time.Second
}

func (s Settings) TokenTTL() time.Duration {
	return time.Duration(s.TokenTTLHours) * time.Hour
}
