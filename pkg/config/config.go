/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package config

import (
	"bytes"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/MathisTLD/multiparse/pkg/multipart"
	"gopkg.in/yaml.v3"
)

// Config represents the multiparse configuration
type Config struct {
	Decoder Decoder `yaml:"decoder" toml:"decoder"`
	Server  Server  `yaml:"server" toml:"server"`
	Storage Storage `yaml:"storage" toml:"storage"`
	Logging Logging `yaml:"logging" toml:"logging"`
}

// Decoder contains the multipart decoder settings
type Decoder struct {
	Boundary       string `yaml:"boundary" toml:"boundary"`
	StrictBoundary bool   `yaml:"strict_boundary" toml:"strict_boundary"`
	TruncatedFrame string `yaml:"truncated_frame" toml:"truncated_frame"`
	MaxPartSize    int    `yaml:"max_part_size" toml:"max_part_size"`
	MaxLineSize    int    `yaml:"max_line_size" toml:"max_line_size"`
	ChunkSize      int    `yaml:"chunk_size" toml:"chunk_size"`
}

// Server contains the HTTP API settings
type Server struct {
	Bind   string `yaml:"bind" toml:"bind"`
	Port   int    `yaml:"port" toml:"port"`
	APIKey string `yaml:"api_key" toml:"api_key"`
}

// Storage contains the captured part store settings
type Storage struct {
	DataDir string `yaml:"data_dir" toml:"data_dir"`
}

// Logging contains logging configuration
type Logging struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	return &Config{
		Decoder: Decoder{
			TruncatedFrame: string(multipart.TruncatedDrop),
			MaxPartSize:    8 * 1024 * 1024,
			MaxLineSize:    64 * 1024,
			ChunkSize:      multipart.DefaultChunkSize,
		},
		Server: Server{
			Bind:   "127.0.0.1",
			Port:   9300,
			APIKey: "auto",
		},
		Storage: Storage{
			DataDir: "./data",
		},
		Logging: Logging{
			Level:  "info",
			Format: "console",
		},
	}
}

// Validate checks the values that cannot be fixed up at runtime
func (c *Config) Validate() error {
	if _, err := multipart.ParseTruncatedFramePolicy(c.Decoder.TruncatedFrame); err != nil {
		return fmt.Errorf("decoder: %w", err)
	}
	if c.Decoder.MaxPartSize < 0 {
		return fmt.Errorf("decoder: max_part_size must not be negative")
	}
	if c.Decoder.MaxLineSize < 0 {
		return fmt.Errorf("decoder: max_line_size must not be negative")
	}
	if c.Decoder.ChunkSize < 0 {
		return fmt.Errorf("decoder: chunk_size must not be negative")
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server: invalid port %d", c.Server.Port)
	}
	return nil
}

// DecoderConfig projects the file settings onto a decoder configuration.
// A non-empty boundary overrides the configured one.
func (c *Config) DecoderConfig(boundary string) multipart.DecoderConfig {
	if boundary == "" {
		boundary = c.Decoder.Boundary
	}
	return multipart.DecoderConfig{
		Boundary:       boundary,
		StrictBoundary: c.Decoder.StrictBoundary,
		TruncatedFrame: multipart.TruncatedFramePolicy(c.Decoder.TruncatedFrame),
		MaxPartSize:    c.Decoder.MaxPartSize,
		MaxLineSize:    c.Decoder.MaxLineSize,
		ChunkSize:      c.Decoder.ChunkSize,
	}
}

// LoadConfig loads configuration from the specified path
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

	// Start from the defaults so a partial file only overrides what it names
	config := DefaultConfig()
	if isTOML(configPath) {
		err = toml.Unmarshal(data, config)
	} else {
		err = yaml.Unmarshal(data, config)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file: %w", err)
	}

	return config, nil
}

// SaveConfig saves the configuration to the specified path with secure permissions
func SaveConfig(config *Config, configPath string) error {
	configDir := filepath.Dir(configPath)
	if err := os.MkdirAll(configDir, 0750); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := marshal(config, configPath)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// The file carries the API key
	if err := os.WriteFile(configPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// isTOML reports whether path names a TOML file, everything else is YAML
func isTOML(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".toml")
}

func marshal(config *Config, path string) ([]byte, error) {
	if !isTOML(path) {
		return yaml.Marshal(config)
	}
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(config); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// GenerateSecureKey generates a cryptographically secure random key
func GenerateSecureKey(length int) (string, error) {
	bytes := make([]byte, length)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("failed to generate secure key: %w", err)
	}
	return hex.EncodeToString(bytes), nil
}

// BootstrapConfig writes a default configuration with a generated API key
func BootstrapConfig(configPath string, dataDir string) (*Config, error) {
	config := DefaultConfig()
	if dataDir != "" {
		config.Storage.DataDir = dataDir
	}

	apiKey, err := GenerateSecureKey(32) // 256 bits
	if err != nil {
		return nil, fmt.Errorf("failed to generate api key: %w", err)
	}
	config.Server.APIKey = apiKey

	if err := SaveConfig(config, configPath); err != nil {
		return nil, fmt.Errorf("failed to save bootstrap config: %w", err)
	}

	return config, nil
}

// GetDefaultConfigPath returns the default configuration path for the current platform
func GetDefaultConfigPath() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "./multiparse.yaml"
	}

	// For Linux/macOS, use ~/.config/multiparse/config.yaml
	configDir := filepath.Join(homeDir, ".config", "multiparse")
	return filepath.Join(configDir, "config.yaml")
}

// ConfigExists checks if a configuration file exists
func ConfigExists(configPath string) bool {
	_, err := os.Stat(configPath)
	return !os.IsNotExist(err)
}
