package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/dotside-studios/nfc-juke/bus"
	"github.com/dotside-studios/nfc-juke/config"
	"github.com/dotside-studios/nfc-juke/dispatch"
	"github.com/dotside-studios/nfc-juke/lms"
	"github.com/dotside-studios/nfc-juke/logging"
	"github.com/dotside-studios/nfc-juke/metrics"
	"github.com/dotside-studios/nfc-juke/reader"
	"github.com/dotside-studios/nfc-juke/router"
	"github.com/dotside-studios/nfc-juke/server"
	"github.com/dotside-studios/nfc-juke/tags"
)

// messageBus is the part of the bus client the agent drives.
type messageBus interface {
	Connect(ctx context.Context) error
	Subscribe(ctx context.Context) error
	Messages() <-chan bus.Message
	Deliver(m bus.Message) error
	Publish(ctx context.Context, sub string, payload []byte) error
	Close()
}

// Agent wires the tag table, player, bus, router and status server together.
type Agent struct {
	cfg    config.Config
	logger zerolog.Logger

	// Hooks replaced in tests.
	newTransport func(lms.DeviceConfig, lms.Options) lms.Transport
	newBus       func(bus.Config) messageBus
	openScanner  func(device string) (reader.Scanner, error)

	registry *tags.Registry
	player   *lms.Player
	bus      messageBus
}

// NewAgent creates an agent for a validated configuration.
func NewAgent(cfg config.Config) *Agent {
	return &Agent{
		cfg:          cfg,
		logger:       logging.WithComponent("agent"),
		newTransport: lms.NewTransport,
		newBus:       func(c bus.Config) messageBus { return bus.New(c) },
		openScanner: func(device string) (reader.Scanner, error) {
			return reader.Open(device)
		},
	}
}

// start runs the startup sequence. Each step is fatal: the tag table must
// load, the player must resolve and the bus subscription must succeed before
// any event is processed.
func (a *Agent) start(ctx context.Context) error {
	registry, err := tags.Load(a.cfg.Tags.File)
	if err != nil {
		return err
	}
	a.registry = registry
	metrics.SetTagsLoaded(registry.Len())
	a.logger.Info().Str("path", a.cfg.Tags.File).Int("tags", registry.Len()).Msg("tag table loaded")

	transport := a.newTransport(a.cfg.LMS.Device(), a.cfg.LMS.Options())
	player, err := lms.NewServer(transport).Player(ctx, a.cfg.LMS.Player)
	if err != nil {
		return fmt.Errorf("resolve player: %w", err)
	}
	a.player = player
	a.logger.Info().Str("player", player.Name()).Str("player_id", player.ID()).Msg("player resolved")

	b := a.newBus(a.cfg.MQTT.Bus())
	if err := b.Connect(ctx); err != nil {
		return err
	}
	if err := b.Subscribe(ctx); err != nil {
		b.Close()
		return err
	}
	a.bus = b
	return nil
}

// Run starts the agent and blocks until ctx is cancelled. Startup errors are
// returned unchanged; after startup only ctx ends the run.
func (a *Agent) Run(ctx context.Context) error {
	if err := a.start(ctx); err != nil {
		return err
	}
	defer a.bus.Close()

	rt := router.New(a.registry, dispatch.New(), a.player, a.cfg.MQTT.Topic)
	if a.cfg.Dispatch.Timeout > 0 {
		rt.SetDispatchTimeout(a.cfg.Dispatch.Timeout)
	}

	watcher := tags.NewWatcher(a.cfg.Tags.File, a.registry)

	g, gctx := errgroup.WithContext(ctx)

	if a.cfg.HTTP.Listen != "" {
		srv := server.New(server.Config{
			Listen:   a.cfg.HTTP.Listen,
			Secret:   a.cfg.HTTP.Secret,
			MDNS:     a.cfg.HTTP.MDNS,
			Topic:    a.cfg.MQTT.Topic,
			Registry: a.registry,
			TagFile:  a.cfg.Tags.File,
			Player:   a.player.Name(),
			Inject:   a.bus.Deliver,
		})
		rt.Observe(srv.Observe)
		g.Go(func() error { return srv.Run(gctx) })
	}

	if a.cfg.Tags.Watch {
		g.Go(func() error {
			if err := watcher.Run(gctx); err != nil {
				a.logger.Error().Err(err).Msg("tag table watcher stopped")
			}
			return nil
		})
	}

	g.Go(func() error {
		a.reloadOnHangup(gctx, watcher)
		return nil
	})

	if a.cfg.Reader.Enabled {
		scanner, err := a.openScanner(a.cfg.Reader.Device)
		if err != nil {
			a.logger.Error().Err(err).Str("device", a.cfg.Reader.Device).Msg("local reader unavailable")
		} else {
			r := reader.New(scanner, a.bus)
			g.Go(func() error { return r.Run(gctx) })
		}
	}

	g.Go(func() error { return rt.Run(gctx, a.bus.Messages()) })

	err := g.Wait()
	a.logger.Info().Msg("agent stopped")
	return err
}

// reloadOnHangup reloads the tag table on SIGHUP until ctx is cancelled.
func (a *Agent) reloadOnHangup(ctx context.Context, watcher *tags.Watcher) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			a.logger.Info().Msg("SIGHUP received, reloading tag table")
			_ = watcher.Reload()
		}
	}
}
