package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("", "")
	require.NoError(t, err)

	assert.Equal(t, "tags.csv", cfg.Tags.File)
	assert.Equal(t, "rfid/reader01", cfg.MQTT.Topic)
	assert.Equal(t, "jsonrpc", cfg.LMS.Transport)
	assert.Equal(t, 9000, cfg.LMS.Port)
	assert.Equal(t, ":18080", cfg.HTTP.Listen)
	assert.Equal(t, 30*time.Second, cfg.Dispatch.Timeout)
}

func TestLoadLayers(t *testing.T) {
	path := writeFile(t, "juke.yaml", `
tags:
  file: /etc/juke/tags.csv
lms:
  server: sahmaxi
  player: office-mini (squeezelite)
  transport: cli
mqtt:
  host: homeassistant
  username: m5go
dispatch:
  timeout: 10s
`)
	envFile := writeFile(t, ".env", "JUKE_MQTT_PASSWORD=from-dotenv\nJUKE_MQTT_USERNAME=dotenv-user\n")

	t.Setenv("JUKE_MQTT_USERNAME", "env-user")
	t.Setenv("JUKE_LOG_LEVEL", "debug")
	// godotenv writes to the process environment; t.Setenv restores it.
	t.Setenv("JUKE_MQTT_PASSWORD", "")
	require.NoError(t, os.Unsetenv("JUKE_MQTT_PASSWORD"))

	cfg, err := Load(path, envFile)
	require.NoError(t, err)

	assert.Equal(t, "/etc/juke/tags.csv", cfg.Tags.File)
	assert.Equal(t, "sahmaxi", cfg.LMS.Server)
	assert.Equal(t, "office-mini (squeezelite)", cfg.LMS.Player)
	assert.Equal(t, 9090, cfg.LMS.Port, "cli transport defaults to port 9090")
	assert.Equal(t, "homeassistant", cfg.MQTT.Host)
	assert.Equal(t, "env-user", cfg.MQTT.Username, "real environment wins over .env")
	assert.Equal(t, "from-dotenv", cfg.MQTT.Password)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 10*time.Second, cfg.Dispatch.Timeout)
	require.NoError(t, cfg.Validate())

	bc := cfg.MQTT.Bus()
	assert.Equal(t, "homeassistant", bc.Broker)
	assert.Equal(t, "rfid/reader01", bc.Topic)
	assert.Equal(t, "sahmaxi:9090", cfg.LMS.Device().Address())
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := writeFile(t, "juke.yaml", "lms:\n  server: x\n  colour: blue\n")
	_, err := Load(path, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "strict config parse error")
}

func TestLoadRejectsMultipleDocuments(t *testing.T) {
	path := writeFile(t, "juke.yaml", "lms:\n  server: x\n---\nlms:\n  server: y\n")
	_, err := Load(path, "")
	require.Error(t, err)
}

func TestLoadMissingFiles(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), "")
	require.Error(t, err)

	_, err = Load("", filepath.Join(t.TempDir(), ".env"))
	require.NoError(t, err, "a missing .env file is not an error")
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		cfg := Default()
		cfg.LMS.Server = "sahmaxi"
		cfg.LMS.Player = "office-mini"
		cfg.applyDefaults()
		return cfg
	}
	require.NoError(t, valid().Validate())

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"no tag file", func(c *Config) { c.Tags.File = "" }, "tags.file is required"},
		{"no player", func(c *Config) { c.LMS.Player = "" }, "player is required"},
		{"bad port", func(c *Config) { c.LMS.Port = 70000 }, "out of range"},
		{"bad transport", func(c *Config) { c.LMS.Transport = "soap" }, "unknown transport"},
		{"no broker", func(c *Config) { c.MQTT.Host = "" }, "mqtt.host is required"},
		{"wildcard topic", func(c *Config) { c.MQTT.Topic = "rfid/#" }, "must not contain wildcards"},
		{"negative timeout", func(c *Config) { c.Dispatch.Timeout = -time.Second }, "dispatch.timeout"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
