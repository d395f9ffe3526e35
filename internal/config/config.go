package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

const (
	BackendOllama    = "ollama"
	BackendAnthropic = "anthropic"
	BackendGrok      = "grok"
	BackendOpenAI    = "openai"
	BackendGemini    = "gemini"
)

// DefaultSystemPrompt seeds every new conversation
const DefaultSystemPrompt = "You are an AI assistant here to answer questions."

var (
	ErrUnknownBackend    = errors.New("unknown backend")
	ErrMissingCredential = errors.New("missing credential")
)

// Backends lists every supported backend name
var Backends = []string{BackendOpenAI, BackendGrok, BackendAnthropic, BackendOllama, BackendGemini}

// credentialEnv maps a backend to the environment variable holding its key.
// Backends absent from the map need no credential.
var credentialEnv = map[string]string{
	BackendOpenAI:    "OPENAI_API_KEY",
	BackendGrok:      "GROK_API_KEY",
	BackendAnthropic: "ANTHROPIC_API_KEY",
	BackendGemini:    "GEMINI_API_KEY",
}

var defaultModels = map[string]string{
	BackendOpenAI:    "gpt-3.5-turbo",
	BackendGrok:      "grok-1",
	BackendAnthropic: "claude-sonnet-4-20250514",
	BackendOllama:    "llama3:latest",
	BackendGemini:    "gemini-2.0-flash",
}

// Config holds application configuration
type Config struct {
	Backend      string        `toml:"backend"`
	Model        string        `toml:"model"`    // empty selects the backend default
	BaseURL      string        `toml:"base_url"` // empty selects the public endpoint
	SystemPrompt string        `toml:"system_prompt"`
	Timeout      time.Duration `toml:"timeout"`
	MaxTokens    int           `toml:"max_tokens"` // Anthropic only

	Debug     bool   `toml:"debug"`
	LogDir    string `toml:"log_dir"`
	Telemetry bool   `toml:"telemetry"`
	Ledger    string `toml:"ledger"` // sqlite path, empty disables

	ExitKeys   []string `toml:"exit_keys"`
	ActionKeys []string `toml:"action_keys"`

	// APIKey is resolved from the environment once at startup, never from the file
	APIKey string `toml:"-"`
}

// Default returns the built-in configuration
func Default() Config {
	return Config{
		Backend:      BackendOpenAI,
		SystemPrompt: DefaultSystemPrompt,
		Timeout:      60 * time.Second,
		MaxTokens:    1024,
		LogDir:       "logs",
		Telemetry:    true,
		Ledger:       filepath.Join("logs", "exchanges.db"),
		ExitKeys:     []string{"ctrl+e", "ctrl+c"},
		ActionKeys:   []string{"f8"},
	}
}

// DefaultPath returns the config file location under the user config dir
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "hotkeychat", "config.toml")
}

// Load reads path over the defaults. A missing file is not an error.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return cfg, fmt.Errorf("failed to decode config %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return cfg, fmt.Errorf("unknown config keys in %s: %s", path, strings.Join(keys, ", "))
	}
	return cfg, nil
}

// CredentialEnv returns the environment variable the backend reads its key from
func CredentialEnv(backend string) (string, bool) {
	name, ok := credentialEnv[backend]
	return name, ok
}

// ResolveCredential loads APIKey from the environment. It fails with
// ErrMissingCredential when the backend requires a key and none is set.
func (c *Config) ResolveCredential() error {
	name, required := credentialEnv[c.Backend]
	if !required {
		return nil
	}
	c.APIKey = os.Getenv(name)
	if c.APIKey == "" {
		return fmt.Errorf("%w: %s not set", ErrMissingCredential, name)
	}
	return nil
}

// ModelName returns the configured model or the backend default
func (c Config) ModelName() string {
	if c.Model != "" {
		return c.Model
	}
	return defaultModels[c.Backend]
}

// Validate checks the backend name and numeric limits
func (c Config) Validate() error {
	if _, ok := defaultModels[c.Backend]; !ok {
		return fmt.Errorf("%w: %s (%s)", ErrUnknownBackend, c.Backend, strings.Join(Backends, "|"))
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %s", c.Timeout)
	}
	if c.Backend == BackendAnthropic && c.MaxTokens <= 0 {
		return fmt.Errorf("max_tokens must be positive, got %d", c.MaxTokens)
	}
	if len(c.ExitKeys) == 0 {
		return fmt.Errorf("at least one exit key is required")
	}
	return nil
}
