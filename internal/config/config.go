// Package config loads daemon settings from YAML with environment overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/vitalis-dev/vitalis-store/internal/snapshot"
	"github.com/vitalis-dev/vitalis-store/internal/vault"
)

// LLM providers.
const (
	ProviderStub   = "stub"
	ProviderGemini = "gemini"
)

// ValidProviders lists the supported LLM providers.
var ValidProviders = []string{ProviderStub, ProviderGemini}

// ValidBackends lists the supported snapshot backends.
var ValidBackends = []string{snapshot.BackendNone, snapshot.BackendJSON, snapshot.BackendSQLite, snapshot.BackendPostgres}

// Config holds all daemon configuration.
type Config struct {
	DataDir string `yaml:"data_dir"`

	Server   ServerConfig   `yaml:"server"`
	Snapshot SnapshotConfig `yaml:"snapshot"`
	Vault    VaultConfig    `yaml:"vault"`
	LLM      LLMConfig      `yaml:"llm"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig configures the TCP and HTTP listeners.
type ServerConfig struct {
	Port            string `yaml:"port"`
	HTTPPort        string `yaml:"http_port"`
	DisableTLS      bool   `yaml:"disable_tls"`
	FileBaseURL     string `yaml:"file_base_url"`
	ShutdownTimeout string `yaml:"shutdown_timeout"`
}

// SnapshotConfig selects the snapshot mirror.
type SnapshotConfig struct {
	Backend string `yaml:"backend"`
	// DSN is the postgres connection string or the sqlite path.
	// Empty means DataDir.
	DSN string `yaml:"dsn,omitempty"`
}

// VaultConfig configures field sealing. Sealing is off without a master key.
type VaultConfig struct {
	MasterKey    string              `yaml:"master_key,omitempty"`
	SealedFields map[string][]string `yaml:"sealed_fields,omitempty"`
}

// LLMConfig configures the LLM invoker.
type LLMConfig struct {
	Provider string `yaml:"provider"`
	APIKey   string `yaml:"api_key,omitempty"`
	Model    string `yaml:"model,omitempty"`
	Timeout  string `yaml:"timeout"`
}

// LoggingConfig configures zap.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		DataDir: "./data",
		Server: ServerConfig{
			Port:            "7001",
			HTTPPort:        "7002",
			FileBaseURL:     "/files",
			ShutdownTimeout: "10s",
		},
		Snapshot: SnapshotConfig{
			Backend: snapshot.BackendJSON,
		},
		Vault: VaultConfig{
			SealedFields: map[string][]string{
				"Patient": {"medical_history"},
			},
		},
		LLM: LLMConfig{
			Provider: ProviderStub,
			Timeout:  "2m",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from path over the defaults. A missing file is
// not an error. Environment overrides apply in both cases.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
		case err != nil:
			return nil, fmt.Errorf("failed to read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config: %w", err)
			}
		}
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("VITALIS_DATA_DIR"); v != "" {
		c.DataDir = v
	}
	if v := os.Getenv("VITALIS_PORT"); v != "" {
		c.Server.Port = v
	}
	if v := os.Getenv("VITALIS_HTTP_PORT"); v != "" {
		c.Server.HTTPPort = v
	}
	if v := os.Getenv("VITALIS_DISABLE_TLS"); v != "" {
		c.Server.DisableTLS = v == "true"
	}
	if v := os.Getenv("VITALIS_SNAPSHOT_BACKEND"); v != "" {
		c.Snapshot.Backend = strings.ToLower(v)
	}
	if v := os.Getenv("VITALIS_SNAPSHOT_DSN"); v != "" {
		c.Snapshot.DSN = v
	}
	if v := os.Getenv("VITALIS_MASTER_KEY"); v != "" {
		c.Vault.MasterKey = v
	}
	if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		c.LLM.APIKey = v
		c.LLM.Provider = ProviderGemini
	}
	// An explicit provider wins over the one implied by the API key.
	if v := os.Getenv("VITALIS_LLM_PROVIDER"); v != "" {
		c.LLM.Provider = strings.ToLower(v)
	}
}

// Save writes the configuration to path.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if !contains(ValidBackends, c.Snapshot.Backend) {
		return fmt.Errorf("invalid snapshot backend: %s (valid: %v)", c.Snapshot.Backend, ValidBackends)
	}
	if c.Snapshot.Backend == snapshot.BackendPostgres && c.Snapshot.DSN == "" {
		return fmt.Errorf("postgres snapshot backend requires a dsn")
	}

	if !contains(ValidProviders, c.LLM.Provider) {
		return fmt.Errorf("invalid llm provider: %s (valid: %v)", c.LLM.Provider, ValidProviders)
	}
	if c.LLM.Provider == ProviderGemini && c.LLM.APIKey == "" {
		return fmt.Errorf("gemini provider requires an api key")
	}

	if c.Vault.MasterKey != "" {
		if _, err := vault.ParseKey(c.Vault.MasterKey); err != nil {
			return fmt.Errorf("invalid master key: %w", err)
		}
	}

	for name, d := range map[string]string{
		"llm.timeout":             c.LLM.Timeout,
		"server.shutdown_timeout": c.Server.ShutdownTimeout,
	} {
		if d == "" {
			continue
		}
		if _, err := time.ParseDuration(d); err != nil {
			return fmt.Errorf("invalid %s: %w", name, err)
		}
	}
	return nil
}

// SnapshotLocation returns the DSN or path handed to snapshot.New.
func (c *Config) SnapshotLocation() string {
	if c.Snapshot.DSN != "" {
		return c.Snapshot.DSN
	}
	return c.DataDir
}

// MasterKey returns the decoded master key, or nil when sealing is off.
func (c *Config) MasterKey() ([]byte, error) {
	if c.Vault.MasterKey == "" {
		return nil, nil
	}
	return vault.ParseKey(c.Vault.MasterKey)
}

// GetLLMTimeout returns the LLM timeout as a Duration.
func (c *Config) GetLLMTimeout() time.Duration {
	return parseDuration(c.LLM.Timeout, 2*time.Minute)
}

// GetShutdownTimeout returns the graceful shutdown timeout as a Duration.
func (c *Config) GetShutdownTimeout() time.Duration {
	return parseDuration(c.Server.ShutdownTimeout, 10*time.Second)
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
