// Package dispatch executes resolved tag actions against a player.
package dispatch

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/dotside-studios/nfc-juke/logging"
	"github.com/dotside-studios/nfc-juke/metrics"
	"github.com/dotside-studios/nfc-juke/tags"
)

const tracerName = "github.com/dotside-studios/nfc-juke/dispatch"

// Dynamic Playlists plugin command that plays random tracks of one year.
const (
	dynamicPlaylistCommand = "dynamicplaylist"
	yearPlaylist           = "dplccustom_play_year"
	yearParameter          = "dynamicplaylist_parameter_1"
)

// Player is the part of the media player handle the dispatcher drives.
type Player interface {
	Name() string
	LoadURL(ctx context.Context, url string) error
	LoadPath(ctx context.Context, path string) error
	Command(ctx context.Context, tokens ...string) error
	Subcommand(ctx context.Context, name string, args ...string) error
	Update(ctx context.Context) error
	Album() string
	Mode() string
}

// Status is the outcome class of a dispatch.
type Status string

const (
	StatusPlayed   Status = "played"
	StatusSkipped  Status = "skipped"
	StatusRejected Status = "rejected"
	StatusFailed   Status = "failed"
)

// Result describes a completed dispatch. Message is the confirmation line
// logged for successful dispatches.
type Result struct {
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
	Album   string `json:"album,omitempty"`
	Mode    string `json:"mode,omitempty"`
}

// AlbumPath maps an album parameter to its library path.
func AlbumPath(album string) string {
	return "/music/" + album + "/"
}

// YearCommand is the subcommand arguments that play random tracks of a year.
func YearCommand(year string) []string {
	return []string{"playlist", "play", yearPlaylist, yearParameter + ":" + year}
}

// Dispatcher executes actions. It holds no per-player state; callers
// serialize dispatches to one player.
type Dispatcher struct {
	tracer trace.Tracer
	logger zerolog.Logger
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithTracerProvider sets the provider used for dispatch spans.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(d *Dispatcher) {
		d.tracer = tp.Tracer(tracerName)
	}
}

// New creates a Dispatcher using the global tracer provider by default.
func New(opts ...Option) *Dispatcher {
	d := &Dispatcher{
		tracer: otel.Tracer(tracerName),
		logger: logging.WithComponent("dispatch"),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch runs action for tag against p. Player backed actions make exactly
// one load or command call followed by exactly one status refresh. A failed
// load skips the refresh.
func (d *Dispatcher) Dispatch(ctx context.Context, p Player, tag string, action tags.Action) (Result, error) {
	kind := string(action.Kind())
	ctx, span := d.tracer.Start(ctx, "dispatch."+kind, trace.WithAttributes(
		attribute.String("tag", tag),
		attribute.String("action.kind", kind),
		attribute.String("player", p.Name()),
	))
	defer span.End()

	start := time.Now()
	res, err := d.dispatch(ctx, p, tag, action)
	metrics.ObserveDispatch(kind, string(res.Status), time.Since(start))

	span.SetAttributes(attribute.String("dispatch.status", string(res.Status)))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}

	logger := logging.WithContext(ctx, d.logger).With().
		Str("tag", tag).
		Str("action", action.String()).
		Str("player", p.Name()).
		Logger()
	switch {
	case err != nil && res.Status == StatusRejected:
		logger.Warn().Err(err).Str("status", string(res.Status)).Msg(err.Error())
	case err != nil:
		logger.Error().Err(err).Str("status", string(res.Status)).Msg("dispatch failed")
	case res.Status == StatusSkipped:
		logger.Info().Str("status", string(res.Status)).Msg("quit tag, nothing to do")
	default:
		logger.Info().
			Str("status", string(res.Status)).
			Str("album", res.Album).
			Str("mode", res.Mode).
			Dur("duration", time.Since(start)).
			Msg(res.Message)
	}
	return res, err
}

func (d *Dispatcher) dispatch(ctx context.Context, p Player, tag string, action tags.Action) (Result, error) {
	switch a := action.(type) {
	case tags.Quit:
		return Result{Status: StatusSkipped}, nil

	case tags.RawCommand:
		if err := p.Command(ctx, a.Tokens...); err != nil {
			return Result{Status: StatusFailed}, NewCommandError("Command", tag, err)
		}
		if err := p.Update(ctx); err != nil {
			return Result{Status: StatusFailed}, NewCommandError("Update", tag, err)
		}
		return played(p, fmt.Sprintf("Send %s to %s", strings.Join(a.Tokens, " "), p.Name())), nil

	case tags.URL:
		if err := p.LoadURL(ctx, a.URL); err != nil {
			return Result{Status: StatusFailed}, NewPlaybackError("LoadURL", tag, string(a.Kind()), err)
		}
		if err := p.Update(ctx); err != nil {
			return Result{Status: StatusFailed}, NewPlaybackError("Update", tag, string(a.Kind()), err)
		}
		return played(p, fmt.Sprintf("Play url %s on player=%s", orDefault(p.Album(), a.URL), p.Name())), nil

	case tags.Album:
		if err := p.LoadPath(ctx, AlbumPath(a.Path)); err != nil {
			return Result{Status: StatusFailed}, NewPlaybackError("LoadPath", tag, string(a.Kind()), err)
		}
		if err := p.Update(ctx); err != nil {
			return Result{Status: StatusFailed}, NewPlaybackError("Update", tag, string(a.Kind()), err)
		}
		return played(p, fmt.Sprintf("Play album %s on player=%s", orDefault(p.Album(), a.Path), p.Name())), nil

	case tags.Year:
		if err := p.Subcommand(ctx, dynamicPlaylistCommand, YearCommand(a.Year)...); err != nil {
			return Result{Status: StatusFailed}, NewPlaybackError("Subcommand", tag, string(a.Kind()), err)
		}
		if err := p.Update(ctx); err != nil {
			return Result{Status: StatusFailed}, NewPlaybackError("Update", tag, string(a.Kind()), err)
		}
		return played(p, fmt.Sprintf("Play year %s on player=%s", a.Year, p.Name())), nil

	case tags.Unknown:
		return Result{Status: StatusRejected}, NewUnknownActionError(tag, a.RawKind)

	default:
		return Result{Status: StatusRejected}, NewUnknownActionError(tag, string(action.Kind()))
	}
}

func played(p Player, msg string) Result {
	return Result{Status: StatusPlayed, Message: msg, Album: p.Album(), Mode: p.Mode()}
}

func orDefault(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
