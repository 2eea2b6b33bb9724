package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/getsimpletool/mcpo-simple-server/internal/config"
)

func TestLoadDefaults(t *testing.T) {
	s, err := config.Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8000", s.ListenAddr)
	assert.Equal(t, "file", s.StoreBackend)
	assert.Equal(t, 30*time.Second, s.HandshakeTimeout())
	assert.Equal(t, 120*time.Second, s.CallTimeout())
	assert.Equal(t, 5*time.Second, s.ShutdownGrace())
	assert.NotEmpty(t, s.DataDir)
}

func TestLoadTOMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
listen_addr = ":9001"
store_backend = "sqlite"
handshake_timeout_seconds = 5
max_inflight_per_child = 4
env_allow_list = ["PATH", "HOME"]
`), 0644))

	s, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9001", s.ListenAddr)
	assert.Equal(t, "sqlite", s.StoreBackend)
	assert.Equal(t, 5*time.Second, s.HandshakeTimeout())
	assert.Equal(t, 4, s.MaxInflightPerChild)
	assert.Equal(t, []string{"PATH", "HOME"}, s.EnvAllowList)
}

func TestEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.toml")
	require.NoError(t, os.WriteFile(path, []byte("listen_addr = \":9001\"\n"), 0644))

	t.Setenv("MCPO_LISTEN_ADDR", ":9002")
	t.Setenv("JWT_SECRET_KEY", "s3cret")
	t.Setenv("API_KEY_ENCRYPTION_KEY", "enc")

	s, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9002", s.ListenAddr)
	assert.NoError(t, s.Validate())
}

func TestValidateRequiresSecrets(t *testing.T) {
	s := config.DefaultSettings()
	assert.Error(t, s.Validate())

	s.JWTSecretKey = "jwt"
	assert.Error(t, s.Validate())

	s.APIKeyEncryptionKey = "enc"
	assert.NoError(t, s.Validate())
}

func TestLoadMissingFileIsFine(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "absent.toml"))
	assert.NoError(t, err)
}
