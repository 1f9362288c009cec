package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/MathisTLD/multiparse/pkg/multipart"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	assert.Equal(t, "", config.Decoder.Boundary)
	assert.False(t, config.Decoder.StrictBoundary)
	assert.Equal(t, "drop", config.Decoder.TruncatedFrame)
	assert.Equal(t, 8*1024*1024, config.Decoder.MaxPartSize)
	assert.Equal(t, 64*1024, config.Decoder.MaxLineSize)
	assert.Equal(t, multipart.DefaultChunkSize, config.Decoder.ChunkSize)
	assert.Equal(t, "127.0.0.1", config.Server.Bind)
	assert.Equal(t, 9300, config.Server.Port)
	assert.Equal(t, "auto", config.Server.APIKey)
	assert.Equal(t, "./data", config.Storage.DataDir)
	assert.Equal(t, "info", config.Logging.Level)
	assert.Equal(t, "console", config.Logging.Format)
	assert.NoError(t, config.Validate())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"unknown truncated policy", func(c *Config) { c.Decoder.TruncatedFrame = "keep" }},
		{"negative max part size", func(c *Config) { c.Decoder.MaxPartSize = -1 }},
		{"negative max line size", func(c *Config) { c.Decoder.MaxLineSize = -1 }},
		{"negative chunk size", func(c *Config) { c.Decoder.ChunkSize = -1 }},
		{"port out of range", func(c *Config) { c.Server.Port = 70000 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultConfig()
			tt.mutate(config)
			assert.Error(t, config.Validate())
		})
	}
}

func TestDecoderConfig(t *testing.T) {
	config := DefaultConfig()
	config.Decoder.Boundary = "frame"
	config.Decoder.StrictBoundary = true
	config.Decoder.TruncatedFrame = "error"
	config.Decoder.MaxPartSize = 1024
	config.Decoder.MaxLineSize = 512

	dc := config.DecoderConfig("")
	assert.Equal(t, "frame", dc.Boundary)
	assert.True(t, dc.StrictBoundary)
	assert.Equal(t, multipart.TruncatedError, dc.TruncatedFrame)
	assert.Equal(t, 1024, dc.MaxPartSize)
	assert.Equal(t, 512, dc.MaxLineSize)
	assert.Equal(t, multipart.DefaultChunkSize, dc.ChunkSize)

	assert.Equal(t, "override", config.DecoderConfig("override").Boundary)
}

func TestGenerateSecureKey(t *testing.T) {
	key1, err := GenerateSecureKey(32)
	require.NoError(t, err)
	assert.Len(t, key1, 64) // hex encoded

	key2, err := GenerateSecureKey(32)
	require.NoError(t, err)
	assert.NotEqual(t, key1, key2)
}

func TestLoadConfig(t *testing.T) {
	tempDir, err := os.MkdirTemp("", "multiparse-config-test")
	require.NoError(t, err)
	defer os.RemoveAll(tempDir)

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadConfig(filepath.Join(tempDir, "missing.yaml"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "config file does not exist")
	})

	t.Run("partial file keeps defaults", func(t *testing.T) {
		configPath := filepath.Join(tempDir, "partial.yaml")
		content := "decoder:\n  boundary: frame\n  truncated_frame: error\nserver:\n  port: 9400\n"
		require.NoError(t, os.WriteFile(configPath, []byte(content), 0600))

		config, err := LoadConfig(configPath)
		require.NoError(t, err)
		assert.Equal(t, "frame", config.Decoder.Boundary)
		assert.Equal(t, "error", config.Decoder.TruncatedFrame)
		assert.Equal(t, 9400, config.Server.Port)
		assert.Equal(t, "127.0.0.1", config.Server.Bind)
		assert.Equal(t, multipart.DefaultChunkSize, config.Decoder.ChunkSize)
	})

	t.Run("invalid yaml", func(t *testing.T) {
		configPath := filepath.Join(tempDir, "invalid.yaml")
		require.NoError(t, os.WriteFile(configPath, []byte("decoder: [unclosed"), 0600))

		_, err := LoadConfig(configPath)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to parse config file")
	})

	t.Run("invalid values", func(t *testing.T) {
		configPath := filepath.Join(tempDir, "values.yaml")
		require.NoError(t, os.WriteFile(configPath, []byte("decoder:\n  truncated_frame: keep\n"), 0600))

		_, err := LoadConfig(configPath)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid config file")
	})
}

func TestSaveConfig(t *testing.T) {
	tempDir, err := os.MkdirTemp("", "multiparse-config-test")
	require.NoError(t, err)
	defer os.RemoveAll(tempDir)

	configPath := filepath.Join(tempDir, "nested", "config.yaml")
	config := DefaultConfig()
	config.Decoder.Boundary = "frame"
	config.Server.APIKey = "secret"

	require.NoError(t, SaveConfig(config, configPath))

	info, err := os.Stat(configPath)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	loaded, err := LoadConfig(configPath)
	require.NoError(t, err)
	assert.Equal(t, config, loaded)
}

func TestConfigTOML(t *testing.T) {
	tempDir, err := os.MkdirTemp("", "multiparse-config-test")
	require.NoError(t, err)
	defer os.RemoveAll(tempDir)

	t.Run("partial file keeps defaults", func(t *testing.T) {
		configPath := filepath.Join(tempDir, "partial.toml")
		content := "[decoder]\nboundary = \"frame\"\nstrict_boundary = true\n\n[server]\napi_key = \"\"\n"
		require.NoError(t, os.WriteFile(configPath, []byte(content), 0600))

		config, err := LoadConfig(configPath)
		require.NoError(t, err)
		assert.Equal(t, "frame", config.Decoder.Boundary)
		assert.True(t, config.Decoder.StrictBoundary)
		assert.Empty(t, config.Server.APIKey)
		assert.Equal(t, 9300, config.Server.Port)
	})

	t.Run("round trip", func(t *testing.T) {
		configPath := filepath.Join(tempDir, "config.TOML")
		config := DefaultConfig()
		config.Decoder.MaxPartSize = 1024
		config.Logging.Format = "json"

		require.NoError(t, SaveConfig(config, configPath))
		data, err := os.ReadFile(configPath)
		require.NoError(t, err)
		assert.Contains(t, string(data), "[decoder]")
		assert.Contains(t, string(data), "max_part_size = 1024")

		loaded, err := LoadConfig(configPath)
		require.NoError(t, err)
		assert.Equal(t, config, loaded)
	})

	t.Run("invalid toml", func(t *testing.T) {
		configPath := filepath.Join(tempDir, "invalid.toml")
		require.NoError(t, os.WriteFile(configPath, []byte("[decoder\nboundary ="), 0600))

		_, err := LoadConfig(configPath)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to parse config file")
	})
}

func TestBootstrapConfig(t *testing.T) {
	tempDir, err := os.MkdirTemp("", "multiparse-config-test")
	require.NoError(t, err)
	defer os.RemoveAll(tempDir)

	configPath := filepath.Join(tempDir, "config.yaml")
	config, err := BootstrapConfig(configPath, "/var/lib/multiparse")
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/multiparse", config.Storage.DataDir)
	assert.Len(t, config.Server.APIKey, 64)
	assert.True(t, ConfigExists(configPath))

	loaded, err := LoadConfig(configPath)
	require.NoError(t, err)
	assert.Equal(t, config.Server.APIKey, loaded.Server.APIKey)
}

func TestGetDefaultConfigPath(t *testing.T) {
	path := GetDefaultConfigPath()
	assert.NotEmpty(t, path)
	assert.Contains(t, path, "multiparse")
}

func TestConfigExists(t *testing.T) {
	tempDir, err := os.MkdirTemp("", "multiparse-config-test")
	require.NoError(t, err)
	defer os.RemoveAll(tempDir)

	configPath := filepath.Join(tempDir, "config.yaml")
	assert.False(t, ConfigExists(configPath))

	require.NoError(t, os.WriteFile(configPath, []byte("{}"), 0600))
	assert.True(t, ConfigExists(configPath))
}

func TestConfigYAMLMarshalling(t *testing.T) {
	config := DefaultConfig()

	data, err := yaml.Marshal(config)
	require.NoError(t, err)
	assert.Contains(t, string(data), "truncated_frame: drop")
	assert.Contains(t, string(data), "port: 9300")

	var decoded Config
	require.NoError(t, yaml.Unmarshal(data, &decoded))
	assert.Equal(t, *config, decoded)
}

func TestSaveConfigErrorHandling(t *testing.T) {
	tempDir, err := os.MkdirTemp("", "multiparse-config-test")
	require.NoError(t, err)
	defer os.RemoveAll(tempDir)

	// A regular file where a directory is expected
	blocker := filepath.Join(tempDir, "blocker")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0600))

	err = SaveConfig(DefaultConfig(), filepath.Join(blocker, "config.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to create config directory")
}
