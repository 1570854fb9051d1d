// Package config loads the bridge configuration from defaults, a YAML file,
// a .env file and JUKE_* environment variables, in that order.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/dotside-studios/nfc-juke/bus"
	"github.com/dotside-studios/nfc-juke/lms"
	"github.com/dotside-studios/nfc-juke/router"
)

// EnvPrefix prefixes every environment variable.
const EnvPrefix = "JUKE_"

// Config is the complete bridge configuration.
type Config struct {
	Tags     TagsConfig     `yaml:"tags" envPrefix:"TAGS_"`
	LMS      LMSConfig      `yaml:"lms" envPrefix:"LMS_"`
	MQTT     MQTTConfig     `yaml:"mqtt" envPrefix:"MQTT_"`
	HTTP     HTTPConfig     `yaml:"http" envPrefix:"HTTP_"`
	Log      LogConfig      `yaml:"log" envPrefix:"LOG_"`
	Reader   ReaderConfig   `yaml:"reader" envPrefix:"READER_"`
	Dispatch DispatchConfig `yaml:"dispatch" envPrefix:"DISPATCH_"`
}

// DispatchConfig bounds a single dispatch.
type DispatchConfig struct {
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
}

// TagsConfig locates the tag table.
type TagsConfig struct {
	File  string `yaml:"file" env:"FILE"`
	Watch bool   `yaml:"watch" env:"WATCH"`
}

// LMSConfig selects the media server and player.
type LMSConfig struct {
	Server    string        `yaml:"server" env:"SERVER"`
	Player    string        `yaml:"player" env:"PLAYER"`
	Port      int           `yaml:"port" env:"PORT"`
	Transport string        `yaml:"transport" env:"TRANSPORT"`
	Username  string        `yaml:"username" env:"USERNAME"`
	Password  string        `yaml:"password" env:"PASSWORD"`
	Timeout   time.Duration `yaml:"timeout" env:"TIMEOUT"`
}

// Device is the device-level view of the LMS settings.
func (c LMSConfig) Device() lms.DeviceConfig {
	return lms.DeviceConfig{Server: c.Server, Player: c.Player, Port: c.Port, Transport: c.Transport}
}

// Options is the transport view of the LMS settings.
func (c LMSConfig) Options() lms.Options {
	return lms.Options{Timeout: c.Timeout, Username: c.Username, Password: c.Password}
}

// MQTTConfig describes the broker and reader prefix.
type MQTTConfig struct {
	Host     string `yaml:"host" env:"HOST"`
	Username string `yaml:"username" env:"USERNAME"`
	Password string `yaml:"password" env:"PASSWORD"`
	Topic    string `yaml:"topic" env:"TOPIC"`
	ClientID string `yaml:"client_id" env:"CLIENT_ID"`
}

// Bus converts to the bus client configuration.
func (c MQTTConfig) Bus() bus.Config {
	return bus.Config{
		Broker:   c.Host,
		Username: c.Username,
		Password: c.Password,
		Topic:    c.Topic,
		ClientID: c.ClientID,
	}
}

// HTTPConfig configures the status server. An empty Listen disables it.
type HTTPConfig struct {
	Listen string `yaml:"listen" env:"LISTEN"`
	Secret string `yaml:"secret" env:"SECRET"`
	MDNS   bool   `yaml:"mdns" env:"MDNS"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" env:"LEVEL"`
	Pretty bool   `yaml:"pretty" env:"PRETTY"`
}

// ReaderConfig enables the local libnfc reader.
type ReaderConfig struct {
	Enabled bool   `yaml:"enabled" env:"ENABLED"`
	Device  string `yaml:"device" env:"DEVICE"`
}

// Default returns the built-in defaults.
func Default() Config {
	return Config{
		Tags:     TagsConfig{File: "tags.csv", Watch: true},
		LMS:      LMSConfig{Transport: lms.TransportJSONRPC},
		MQTT:     MQTTConfig{Host: "localhost", Topic: "rfid/reader01"},
		HTTP:     HTTPConfig{Listen: ":18080", MDNS: true},
		Log:      LogConfig{Level: "info"},
		Dispatch: DispatchConfig{Timeout: router.DefaultDispatchTimeout},
	}
}

// Load builds the configuration. path names an optional YAML file and
// envFile an optional .env file; missing .env files are ignored.
func Load(path, envFile string) (Config, error) {
	cfg := Default()

	if path != "" {
		if err := readYAML(path, &cfg); err != nil {
			return Config{}, err
		}
	}

	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", envFile, err)
		}
	}

	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	cfg.applyDefaults()
	return cfg, nil
}

func readYAML(path string, cfg *Config) error {
	// #nosec G304 -- the path is chosen by the operator
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("strict config parse error in %s: %w", path, err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return fmt.Errorf("config file %s contains multiple documents or trailing content", path)
	}
	return nil
}

func (c *Config) applyDefaults() {
	dev := c.LMS.Device()
	dev.ApplyDefaults()
	c.LMS.Transport = dev.Transport
	c.LMS.Port = dev.Port
}

// Validate reports every problem found, joined.
func (c Config) Validate() error {
	var errs []error
	if c.Tags.File == "" {
		errs = append(errs, errors.New("tags.file is required"))
	}
	if err := c.LMS.Device().Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.MQTT.Host == "" {
		errs = append(errs, errors.New("mqtt.host is required"))
	}
	switch {
	case c.MQTT.Topic == "":
		errs = append(errs, errors.New("mqtt.topic is required"))
	case bus.HasWildcard(c.MQTT.Topic):
		errs = append(errs, fmt.Errorf("mqtt.topic %q must not contain wildcards", c.MQTT.Topic))
	}
	if c.Dispatch.Timeout < 0 {
		errs = append(errs, errors.New("dispatch.timeout must not be negative"))
	}
	return errors.Join(errs...)
}
