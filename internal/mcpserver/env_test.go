package mcpserver

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func envMap(env []string) map[string]string {
	out := make(map[string]string, len(env))
	for _, kv := range env {
		for i := 0; i < len(kv); i++ {
			if kv[i] == '=' {
				out[kv[:i]] = kv[i+1:]
				break
			}
		}
	}
	return out
}

func TestEffectiveEnvPrecedence(t *testing.T) {
	t.Setenv("PATH", "/ambient/bin")
	t.Setenv("HOME", "/home/ambient")

	env := envMap(EffectiveEnv(
		[]string{"PATH", "HOME"},
		map[string]string{"HOME": "/home/user", "USER_ONLY": "u"},
		map[string]string{"HOME": "/home/spec", "SPEC_ONLY": "s"},
	))

	// Spec beats user beats ambient; each layer contributes what the
	// later ones leave alone.
	assert.Equal(t, "/home/spec", env["HOME"])
	assert.Equal(t, "/ambient/bin", env["PATH"])
	assert.Equal(t, "u", env["USER_ONLY"])
	assert.Equal(t, "s", env["SPEC_ONLY"])
}

func TestEffectiveEnvFiltersAmbient(t *testing.T) {
	t.Setenv("SUPERVISOR_SECRET", "do-not-leak")
	t.Setenv("PATH", "/usr/bin")

	env := envMap(EffectiveEnv(nil, nil, nil))
	_, leaked := env["SUPERVISOR_SECRET"]
	assert.False(t, leaked)
	assert.Equal(t, "/usr/bin", env["PATH"])
}

func TestEffectiveEnvUnsetAmbientStaysUnset(t *testing.T) {
	env := envMap(EffectiveEnv([]string{"DEFINITELY_NOT_SET_ANYWHERE"}, nil, nil))
	_, ok := env["DEFINITELY_NOT_SET_ANYWHERE"]
	assert.False(t, ok)
}

func TestEnvNames(t *testing.T) {
	names := envNames([]string{"PATH=/usr/bin", "API_KEY=secret"})
	assert.Equal(t, []string{"PATH", "API_KEY"}, names)
}
