package lms

import (
	"errors"
	"fmt"
	"net"
	"strconv"
)

const (
	// DefaultCLIPort is the port of the command-line interface.
	DefaultCLIPort = 9090
	// DefaultHTTPPort is the port of the web interface serving /jsonrpc.js.
	DefaultHTTPPort = 9000
)

// Transport names accepted in DeviceConfig.Transport.
const (
	TransportJSONRPC = "jsonrpc"
	TransportCLI     = "cli"
)

// DeviceConfig locates one player on one server.
type DeviceConfig struct {
	Server    string `yaml:"server"`
	Player    string `yaml:"player"`
	Port      int    `yaml:"port"`
	Transport string `yaml:"transport"`
}

// ApplyDefaults fills the transport and the port for that transport.
func (c *DeviceConfig) ApplyDefaults() {
	if c.Transport == "" {
		c.Transport = TransportJSONRPC
	}
	if c.Port == 0 {
		if c.Transport == TransportCLI {
			c.Port = DefaultCLIPort
		} else {
			c.Port = DefaultHTTPPort
		}
	}
}

// Validate reports the first missing or out of range field.
func (c DeviceConfig) Validate() error {
	if c.Server == "" {
		return errors.New("lms: server is required")
	}
	if c.Player == "" {
		return errors.New("lms: player is required")
	}
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("lms: port %d out of range 1-65535", c.Port)
	}
	switch c.Transport {
	case TransportJSONRPC, TransportCLI:
	default:
		return fmt.Errorf("lms: unknown transport %q (want %s or %s)", c.Transport, TransportJSONRPC, TransportCLI)
	}
	return nil
}

// Address is the host:port of the server.
func (c DeviceConfig) Address() string {
	return net.JoinHostPort(c.Server, strconv.Itoa(c.Port))
}

// NewTransport builds the transport named by the configuration.
func NewTransport(c DeviceConfig, opts Options) Transport {
	if c.Transport == TransportCLI {
		return NewCLI(c, opts)
	}
	return NewJSONRPC(c.Server, c.Port, opts)
}
