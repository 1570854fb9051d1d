package lms

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestDeviceConfigDefaults(t *testing.T) {
	var cfg DeviceConfig
	require.NoError(t, yaml.Unmarshal([]byte("server: lms.local\nplayer: Kitchen\ntransport: cli\n"), &cfg))
	cfg.ApplyDefaults()

	assert.Equal(t, DefaultCLIPort, cfg.Port)
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "lms.local:9090", cfg.Address())

	cfg = DeviceConfig{Server: "lms.local", Player: "Kitchen"}
	cfg.ApplyDefaults()
	assert.Equal(t, TransportJSONRPC, cfg.Transport)
	assert.Equal(t, DefaultHTTPPort, cfg.Port)
}

func TestDeviceConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     DeviceConfig
		wantErr string
	}{
		{"missing server", DeviceConfig{Player: "p", Port: 9090, Transport: TransportCLI}, "server is required"},
		{"missing player", DeviceConfig{Server: "s", Port: 9090, Transport: TransportCLI}, "player is required"},
		{"port zero", DeviceConfig{Server: "s", Player: "p", Transport: TransportCLI}, "out of range"},
		{"port too large", DeviceConfig{Server: "s", Player: "p", Port: 65536, Transport: TransportCLI}, "out of range"},
		{"bad transport", DeviceConfig{Server: "s", Player: "p", Port: 1, Transport: "telnet"}, "unknown transport"},
		{"valid upper bound", DeviceConfig{Server: "s", Player: "p", Port: 65535, Transport: TransportJSONRPC}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestNewTransport(t *testing.T) {
	_, isCLI := NewTransport(DeviceConfig{Server: "s", Port: 9090, Transport: TransportCLI}, Options{}).(*CLI)
	assert.True(t, isCLI)
	_, isRPC := NewTransport(DeviceConfig{Server: "s", Port: 9000, Transport: TransportJSONRPC}, Options{}).(*JSONRPC)
	assert.True(t, isRPC)
}
