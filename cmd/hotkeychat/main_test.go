package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"HotkeyChat/internal/config"
	"HotkeyChat/internal/hotkey"
	"HotkeyChat/internal/ledger"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadConfig_FlagsOverrideFile(t *testing.T) {
	path := writeConfig(t, `
backend = "ollama"
model = "mistral"
timeout = "5s"
`)
	cmd := newRootCmd()
	require.NoError(t, cmd.ParseFlags([]string{"--config", path, "--model", "llama3:8b"}))

	var f flags
	f.configPath = path
	f.model = "llama3:8b"
	cfg, err := loadConfig(cmd, f)
	require.NoError(t, err)

	assert.Equal(t, config.BackendOllama, cfg.Backend, "file value kept when flag unset")
	assert.Equal(t, "llama3:8b", cfg.Model)
	assert.Equal(t, 5*time.Second, cfg.Timeout)
}

func TestLoadConfig_RejectsUnknownBackend(t *testing.T) {
	cmd := newRootCmd()
	require.NoError(t, cmd.ParseFlags([]string{"--backend", "bard"}))

	_, err := loadConfig(cmd, flags{backend: "bard"})
	assert.ErrorIs(t, err, config.ErrUnknownBackend)
}

func TestRootCmd_MissingCredential(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	cmd := newRootCmd()
	cmd.SetArgs([]string{"--config", "", "--backend", "openai", "--log-dir", t.TempDir()})

	err := cmd.Execute()
	assert.ErrorIs(t, err, config.ErrMissingCredential)
}

func TestModelsCmd(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/tags", r.URL.Path)
		w.Write([]byte(`{"models":[{"name":"llama3:latest","size":4700000000,"modified_at":"2024-05-01"}]}`))
	}))
	defer srv.Close()

	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"models", "--config", "", "--base-url", srv.URL})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "llama3:latest")
	assert.Contains(t, out.String(), "4.7 GB")
}

func TestExchangesCmd(t *testing.T) {
	path := filepath.Join(t.TempDir(), "exchanges.db")
	l, err := ledger.Open(path)
	require.NoError(t, err)
	require.NoError(t, l.Record(context.Background(), ledger.Exchange{
		SessionID: "s1", Backend: "ollama", Model: "llama3", Turns: 2,
		StartedAt: time.Now(), Duration: time.Second, Outcome: ledger.OutcomeOK,
	}))
	require.NoError(t, l.Record(context.Background(), ledger.Exchange{
		SessionID: "s1", Backend: "ollama", Model: "llama3", Turns: 3,
		StartedAt: time.Now(), Outcome: ledger.OutcomeError, Error: "timeout",
	}))
	require.NoError(t, l.Close())

	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"exchanges", "s1", "--config", "", "--ledger", path})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "2 exchanges, 1 failed")
	assert.Contains(t, out.String(), "error: timeout")
}

func TestExchangesCmd_MissingLedger(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"exchanges", "s1", "--config", "", "--ledger", filepath.Join(t.TempDir(), "none.db")})

	assert.Error(t, cmd.Execute())
}

func TestDefaultConfigKeymapMatchesListenerDefault(t *testing.T) {
	cfg := config.Default()
	km, err := hotkey.ParseKeymap(cfg.ExitKeys, cfg.ActionKeys)
	require.NoError(t, err)
	assert.Equal(t, hotkey.DefaultKeymap(), km)
}
