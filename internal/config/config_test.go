package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_EmptyPath(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, BackendOpenAI, cfg.Backend)
}

func TestLoad_OverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
backend = "anthropic"
model = "claude-test"
system_prompt = "Be brief."
timeout = "15s"
exit_keys = ["ctrl+q"]
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, BackendAnthropic, cfg.Backend)
	assert.Equal(t, "claude-test", cfg.ModelName())
	assert.Equal(t, "Be brief.", cfg.SystemPrompt)
	assert.Equal(t, 15*time.Second, cfg.Timeout)
	assert.Equal(t, []string{"ctrl+q"}, cfg.ExitKeys)
	assert.Equal(t, []string{"f8"}, cfg.ActionKeys, "unset keys keep defaults")
}

func TestLoad_RejectsUnknownKeys(t *testing.T) {
	path := writeConfig(t, `bakend = "openai"`)
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bakend")
}

func TestLoad_MalformedFile(t *testing.T) {
	path := writeConfig(t, `backend = `)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestResolveCredential(t *testing.T) {
	t.Run("present", func(t *testing.T) {
		t.Setenv("OPENAI_API_KEY", "sk-test")
		cfg := Default()
		require.NoError(t, cfg.ResolveCredential())
		assert.Equal(t, "sk-test", cfg.APIKey)
	})

	t.Run("missing is fatal", func(t *testing.T) {
		t.Setenv("ANTHROPIC_API_KEY", "")
		cfg := Default()
		cfg.Backend = BackendAnthropic
		err := cfg.ResolveCredential()
		require.ErrorIs(t, err, ErrMissingCredential)
		assert.Contains(t, err.Error(), "ANTHROPIC_API_KEY")
	})

	t.Run("ollama needs none", func(t *testing.T) {
		cfg := Default()
		cfg.Backend = BackendOllama
		require.NoError(t, cfg.ResolveCredential())
		assert.Empty(t, cfg.APIKey)
	})
}

func TestModelName_Defaults(t *testing.T) {
	for _, b := range Backends {
		cfg := Default()
		cfg.Backend = b
		assert.NotEmpty(t, cfg.ModelName(), b)
	}
}

func TestValidate(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	bad := Default()
	bad.Backend = "bard"
	assert.ErrorIs(t, bad.Validate(), ErrUnknownBackend)

	bad = Default()
	bad.Timeout = 0
	assert.Error(t, bad.Validate())

	bad = Default()
	bad.ExitKeys = nil
	assert.Error(t, bad.Validate())

	bad = Default()
	bad.Backend = BackendAnthropic
	bad.MaxTokens = 0
	assert.Error(t, bad.Validate())
}

func TestCredentialEnv(t *testing.T) {
	name, ok := CredentialEnv(BackendGrok)
	assert.True(t, ok)
	assert.Equal(t, "GROK_API_KEY", name)

	_, ok = CredentialEnv(BackendOllama)
	assert.False(t, ok)
}
