// Package main runs the bridge between RFID tag readers on an MQTT bus and a
// Logitech Media Server player: a tag read on <prefix>/tag looks the tag up
// in the tag table and drives the configured player.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/dotside-studios/nfc-juke/buildinfo"
	"github.com/dotside-studios/nfc-juke/config"
	"github.com/dotside-studios/nfc-juke/logging"
)

// options holds the command-line flags. Only flags that were set override
// the loaded configuration.
type options struct {
	configFile  string
	envFile     string
	tagFile     string
	player      string
	server      string
	port        int
	broker      string
	topic       string
	listen      string
	apiSecret   string
	logLevel    string
	pretty      bool
	localReader bool
	device      string
	version     bool
}

func newFlagSet(opts *options, output io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet(buildinfo.Name, flag.ContinueOnError)
	fs.SetOutput(output)
	fs.StringVar(&opts.configFile, "config", "", "Path to YAML configuration file (optional)")
	fs.StringVar(&opts.envFile, "env-file", ".env", "Path to .env file (ignored if missing)")
	fs.StringVar(&opts.tagFile, "tags", "", "Path to the tag table")
	fs.StringVar(&opts.player, "player", "", "Name of the player to control")
	fs.StringVar(&opts.server, "server", "", "Media server host")
	fs.IntVar(&opts.port, "port", 0, "Media server port (default 9000 for jsonrpc, 9090 for cli)")
	fs.StringVar(&opts.broker, "broker", "", "MQTT broker host or URL")
	fs.StringVar(&opts.topic, "topic", "", "Reader topic prefix, e.g. rfid/reader01")
	fs.StringVar(&opts.listen, "listen", "", "Status server listen address, empty string disables it")
	fs.StringVar(&opts.apiSecret, "api-secret", "", "Secret required for WebSocket connections (optional)")
	fs.StringVar(&opts.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	fs.BoolVar(&opts.pretty, "pretty", false, "Human readable console logs")
	fs.BoolVar(&opts.localReader, "local-reader", false, "Poll a local libnfc reader and publish its tags")
	fs.StringVar(&opts.device, "device", "", "libnfc connection string for the local reader (optional)")
	fs.BoolVar(&opts.version, "version", false, "Print version and exit")
	return fs
}

// apply copies every flag that was set on the command line into cfg.
func (o *options) apply(fs *flag.FlagSet, cfg *config.Config) {
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "tags":
			cfg.Tags.File = o.tagFile
		case "player":
			cfg.LMS.Player = o.player
		case "server":
			cfg.LMS.Server = o.server
		case "port":
			cfg.LMS.Port = o.port
		case "broker":
			cfg.MQTT.Host = o.broker
		case "topic":
			cfg.MQTT.Topic = o.topic
		case "listen":
			cfg.HTTP.Listen = o.listen
		case "api-secret":
			cfg.HTTP.Secret = o.apiSecret
		case "log-level":
			cfg.Log.Level = o.logLevel
		case "pretty":
			cfg.Log.Pretty = o.pretty
		case "local-reader":
			cfg.Reader.Enabled = o.localReader
		case "device":
			cfg.Reader.Device = o.device
		}
	})
}

// loadConfig parses args and layers the flags over the loaded configuration.
func loadConfig(args []string, output io.Writer) (config.Config, *options, error) {
	var opts options
	fs := newFlagSet(&opts, output)
	if err := fs.Parse(args); err != nil {
		return config.Config{}, nil, err
	}
	if opts.version {
		return config.Config{}, &opts, nil
	}

	cfg, err := config.Load(opts.configFile, opts.envFile)
	if err != nil {
		return config.Config{}, nil, err
	}
	opts.apply(fs, &cfg)
	if err := cfg.Validate(); err != nil {
		return config.Config{}, nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, &opts, nil
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cfg, opts, err := loadConfig(args, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		fmt.Fprintln(stderr, err)
		return 1
	}
	if opts.version {
		fmt.Fprintln(stdout, buildinfo.BuildInfo())
		return 0
	}

	logging.Configure(logging.Config{Level: cfg.Log.Level, Pretty: cfg.Log.Pretty, Output: stderr})
	logger := logging.WithComponent("main")
	logger.Info().
		Str("version", buildinfo.Version).
		Str("tags", cfg.Tags.File).
		Str("player", cfg.LMS.Player).
		Str("server", cfg.LMS.Device().Address()).
		Str("broker", cfg.MQTT.Host).
		Str("topic", cfg.MQTT.Topic).
		Msg("starting " + buildinfo.DisplayName)

	if err := NewAgent(cfg).Run(ctx); err != nil {
		logger.Error().Err(err).Msg("startup failed")
		return 1
	}
	return 0
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}
