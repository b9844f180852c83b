// config/config.go
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"
)

// Collaborator backends understood by the orchestrator.
const (
	CollaboratorMock   = "mock"
	CollaboratorFile   = "file"
	CollaboratorSQLite = "sqlite"
	CollaboratorHTTP   = "http"
)

// LogConfig holds the configuration for logging.
type LogConfig struct {
	LogLevel   string `yaml:"log_level"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// NormalConfig holds general, non-workflow configuration.
type NormalConfig struct {
	HTTPTimeoutSeconds int    `yaml:"http_timeout_seconds"`
	LogDirectory       string `yaml:"log_directory"`
	StateDirectory     string `yaml:"state_directory"`
}

// MockConfig tunes the in-memory collaborator.
type MockConfig struct {
	LatencyMS int `yaml:"latency_ms"`
}

// Config is the top-level configuration structure.
type Config struct {
	Collaborator               string        `yaml:"collaborator"`
	CollaboratorTimeoutSeconds int           `yaml:"collaborator_timeout_seconds"`
	Mock                       *MockConfig   `yaml:"mock"`
	Normal                     *NormalConfig `yaml:"normal_config"`
	Logs                       *LogConfig    `yaml:"logs"`
}

// NewConfig returns a configuration populated with safe defaults.
func NewConfig() *Config {
	return &Config{
		Collaborator:               CollaboratorMock,
		CollaboratorTimeoutSeconds: 30,
		Mock:                       &MockConfig{LatencyMS: 300},
		Normal: &NormalConfig{
			HTTPTimeoutSeconds: 15,
			LogDirectory:       "logs",
			StateDirectory:     "state",
		},
		Logs: &LogConfig{
			LogLevel:   "info",
			MaxSizeMB:  10,
			MaxBackups: 5,
			MaxAgeDays: 30,
		},
	}
}

// LoadConfig loads configuration from a given path, applies defaults, and validates it.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found at %s", path)
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML on top of the defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := NewConfig()

	var raw struct {
		Collaborator               string        `yaml:"collaborator"`
		CollaboratorTimeoutSeconds int           `yaml:"collaborator_timeout_seconds"`
		Mock                       *MockConfig   `yaml:"mock"`
		Normal                     *NormalConfig `yaml:"normal_config"`
		Logs                       *LogConfig    `yaml:"logs"`
	}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to unmarshal yaml: %w", err)
	}

	if raw.Collaborator != "" {
		cfg.Collaborator = raw.Collaborator
	}
	if raw.CollaboratorTimeoutSeconds != 0 {
		cfg.CollaboratorTimeoutSeconds = raw.CollaboratorTimeoutSeconds
	}
	if raw.Mock != nil {
		cfg.Mock = raw.Mock
	}
	if raw.Normal != nil {
		// Only override the fields that were provided.
		if raw.Normal.HTTPTimeoutSeconds != 0 {
			cfg.Normal.HTTPTimeoutSeconds = raw.Normal.HTTPTimeoutSeconds
		}
		if raw.Normal.LogDirectory != "" {
			cfg.Normal.LogDirectory = raw.Normal.LogDirectory
		}
		if raw.Normal.StateDirectory != "" {
			cfg.Normal.StateDirectory = raw.Normal.StateDirectory
		}
	}
	if raw.Logs != nil {
		cfg.Logs = raw.Logs
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// Validate checks the logical consistency and completeness of the configuration.
func (c *Config) Validate() error {
	switch c.Collaborator {
	case CollaboratorMock, CollaboratorFile, CollaboratorSQLite, CollaboratorHTTP:
	default:
		return fmt.Errorf("config error: collaborator must be one of 'mock', 'file', 'sqlite', 'http', got %q", c.Collaborator)
	}
	if c.CollaboratorTimeoutSeconds <= 0 {
		return fmt.Errorf("config error: 'collaborator_timeout_seconds' must be positive")
	}
	if c.Mock == nil {
		c.Mock = &MockConfig{}
	}
	if c.Mock.LatencyMS < 0 {
		return fmt.Errorf("config error: 'mock.latency_ms' cannot be negative")
	}

	if c.Normal == nil {
		return fmt.Errorf("critical config missing: 'normal_config' block must be provided")
	}
	if c.Normal.HTTPTimeoutSeconds <= 0 {
		return fmt.Errorf("config error: 'normal_config.http_timeout_seconds' must be positive")
	}
	if c.Normal.LogDirectory == "" {
		return fmt.Errorf("critical config missing: 'normal_config.log_directory' must be specified (e.g., 'logs')")
	}
	if c.Normal.StateDirectory == "" {
		return fmt.Errorf("critical config missing: 'normal_config.state_directory' must be specified (e.g., 'state')")
	}

	if c.Logs == nil {
		return fmt.Errorf("critical config missing: 'logs' block must be provided")
	}
	if c.Logs.LogLevel == "" {
		return fmt.Errorf("critical config missing: 'logs.log_level' must be specified (e.g., 'info', 'debug', 'warn', 'error')")
	}
	if c.Logs.MaxSizeMB <= 0 {
		return fmt.Errorf("config error: 'logs.max_size_mb' must be positive")
	}
	if c.Logs.MaxBackups <= 0 {
		return fmt.Errorf("config error: 'logs.max_backups' must be positive")
	}
	if c.Logs.MaxAgeDays <= 0 {
		return fmt.Errorf("config error: 'logs.max_age_days' must be positive")
	}
	return nil
}

// EnvConfig carries endpoints and credentials that never live in config.yaml.
type EnvConfig struct {
	APIBaseURL string
	APIToken   string
	Operator   string
}

// LoadEnvConfig reads the hedging API settings from the environment.
func LoadEnvConfig() *EnvConfig {
	operator := os.Getenv("HEDGING_OPERATOR")
	if operator == "" {
		operator = "operator"
	}
	return &EnvConfig{
		APIBaseURL: os.Getenv("HEDGING_API_BASE_URL"),
		APIToken:   os.Getenv("HEDGING_API_TOKEN"),
		Operator:   operator,
	}
}
