package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ssargent/dsusage/pkg/transport"
)

// Config represents the dsusage configuration
type Config struct {
	DataDir   string    `yaml:"data_dir"`
	Port      int       `yaml:"port"`
	Bind      string    `yaml:"bind"`
	Security  Security  `yaml:"security"`
	Logging   Logging   `yaml:"logging"`
	Cluster   Cluster   `yaml:"cluster"`
	Reporting Reporting `yaml:"reporting"`
	Transport Transport `yaml:"transport"`
}

// Security contains security-related configuration
type Security struct {
	APIKey string `yaml:"api_key"`
}

// Logging contains logging configuration
type Logging struct {
	Level string `yaml:"level"`
}

// Cluster points at the cluster state usage is collected from
type Cluster struct {
	StatePath string `yaml:"state_path"`
	Watch     bool   `yaml:"watch"`
}

// Reporting controls the reporting cycle
type Reporting struct {
	Interval time.Duration `yaml:"interval"`
	Retain   int           `yaml:"retain"` // Snapshots kept in history, 0 keeps all
}

// Transport holds the wire protocol settings of this node
type Transport struct {
	Version string `yaml:"version"`
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	return &Config{
		DataDir: "./data",
		Port:    9300,
		Bind:    "127.0.0.1",
		Security: Security{
			APIKey: "auto",
		},
		Logging: Logging{
			Level: "info",
		},
		Cluster: Cluster{
			StatePath: "./cluster-state.yaml",
			Watch:     true,
		},
		Reporting: Reporting{
			Interval: time.Minute,
			Retain:   1440,
		},
		Transport: Transport{
			Version: transport.Current.String(),
		},
	}
}

// TransportVersion parses the configured transport version
func (c *Config) TransportVersion() (transport.Version, error) {
	return transport.Parse(c.Transport.Version)
}

// Validate checks the configuration for values the service cannot run with
func (c *Config) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}
	if c.DataDir == "" {
		return fmt.Errorf("data_dir is required")
	}
	if c.Reporting.Interval <= 0 {
		return fmt.Errorf("reporting interval must be positive, got %s", c.Reporting.Interval)
	}
	if c.Reporting.Retain < 0 {
		return fmt.Errorf("reporting retain must not be negative, got %d", c.Reporting.Retain)
	}
	if _, err := c.TransportVersion(); err != nil {
		return fmt.Errorf("invalid transport version: %w", err)
	}
	switch c.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %q", c.Logging.Level)
	}
	return nil
}

// LoadConfig loads configuration from the specified path. Keys missing from the
// file keep their default values.
func LoadConfig(configPath string) (*Config, error) {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file does not exist: %s", configPath)
	}

	if !filepath.IsAbs(configPath) {
		absPath, err := filepath.Abs(configPath)
		if err != nil {
			return nil, fmt.Errorf("invalid config path: %w", err)
		}
		configPath = absPath
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// SaveConfig saves the configuration to the specified path with secure permissions
func SaveConfig(config *Config, configPath string) error {
	configDir := filepath.Dir(configPath)
	if err := os.MkdirAll(configDir, 0750); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// The file holds the API key
	if err := os.WriteFile(configPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// GenerateSecureKey generates a cryptographically secure random key
func GenerateSecureKey(length int) (string, error) {
	bytes := make([]byte, length)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("failed to generate secure key: %w", err)
	}
	return hex.EncodeToString(bytes), nil
}

// BootstrapConfig creates and saves a new configuration with a generated API key
func BootstrapConfig(configPath string, dataDir string) (*Config, error) {
	config := DefaultConfig()
	if dataDir != "" {
		config.DataDir = dataDir
	}

	apiKey, err := GenerateSecureKey(32) // 256 bits
	if err != nil {
		return nil, fmt.Errorf("failed to generate API key: %w", err)
	}
	config.Security.APIKey = apiKey

	if err := SaveConfig(config, configPath); err != nil {
		return nil, fmt.Errorf("failed to save bootstrap config: %w", err)
	}

	return config, nil
}

// GetDefaultConfigPath returns the default configuration path for the current platform
func GetDefaultConfigPath() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "./dsusage.yaml"
	}

	// ~/.config/dsusage/config.yaml on Linux and macOS
	configDir := filepath.Join(homeDir, ".config", "dsusage")
	return filepath.Join(configDir, "config.yaml")
}

// ConfigExists checks if a configuration file exists
func ConfigExists(configPath string) bool {
	_, err := os.Stat(configPath)
	return !os.IsNotExist(err)
}
