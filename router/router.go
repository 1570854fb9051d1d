// Package router turns bus messages into dispatches, one at a time.
package router

import (
	"context"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/dotside-studios/nfc-juke/bus"
	"github.com/dotside-studios/nfc-juke/dispatch"
	"github.com/dotside-studios/nfc-juke/logging"
	"github.com/dotside-studios/nfc-juke/metrics"
	"github.com/dotside-studios/nfc-juke/tags"
)

// ButtonTag is the tag id synthesized for button presses.
const ButtonTag = "button1"

// DefaultDispatchTimeout bounds a single dispatch, both player calls included.
const DefaultDispatchTimeout = 30 * time.Second

// Route is how a message was classified.
type Route string

const (
	RouteTag     Route = "tag"
	RouteButton  Route = "button"
	RouteIgnored Route = "ignored"
	RouteInvalid Route = "decode_error"
)

// Outcome is the record of one handled message.
type Outcome struct {
	EventID  string          `json:"event_id"`
	Topic    string          `json:"topic"`
	Route    Route           `json:"route"`
	Tag      string          `json:"tag,omitempty"`
	Action   string          `json:"action,omitempty"`
	Result   dispatch.Result `json:"result"`
	Err      error           `json:"-"`
	Duration time.Duration   `json:"duration"`
	Time     time.Time       `json:"time"`
}

// Observer is notified after every handled message. Observers run on the
// router goroutine and must not block.
type Observer func(Outcome)

// Dispatcher executes one action.
type Dispatcher interface {
	Dispatch(ctx context.Context, p dispatch.Player, tag string, action tags.Action) (dispatch.Result, error)
}

// Router owns the registry and player handle for the event loop.
type Router struct {
	registry   *tags.Registry
	dispatcher Dispatcher
	player     dispatch.Player
	tagTopic   string
	btnTopic   string
	timeout    time.Duration
	logger     zerolog.Logger

	mu        sync.RWMutex
	observers []Observer
}

// New creates a router for messages below prefix.
func New(registry *tags.Registry, dispatcher Dispatcher, player dispatch.Player, prefix string) *Router {
	return &Router{
		registry:   registry,
		dispatcher: dispatcher,
		player:     player,
		tagTopic:   bus.Join(prefix, bus.TagTopic),
		btnTopic:   bus.Join(prefix, bus.ButtonTopic),
		timeout:    DefaultDispatchTimeout,
		logger:     logging.WithComponent("router"),
	}
}

// SetDispatchTimeout overrides DefaultDispatchTimeout.
func (r *Router) SetDispatchTimeout(d time.Duration) {
	if d > 0 {
		r.timeout = d
	}
}

// Observe registers an observer.
func (r *Router) Observe(o Observer) {
	r.mu.Lock()
	r.observers = append(r.observers, o)
	r.mu.Unlock()
}

// Run handles messages in arrival order until ctx is done or msgs is closed.
// A message being dispatched when ctx is cancelled is finished first.
func (r *Router) Run(ctx context.Context, msgs <-chan bus.Message) error {
	r.logger.Info().
		Str("tag_topic", r.tagTopic).
		Str("button_topic", r.btnTopic).
		Msg("router started")
	defer r.logger.Info().Msg("router stopped")

	for {
		// Prefer shutdown over a queued backlog.
		if ctx.Err() != nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return nil
		case m, ok := <-msgs:
			if !ok {
				return nil
			}
			r.OnEvent(ctx, m.Topic, m.Payload)
		}
	}
}

// OnEvent handles one message to completion. The dispatch runs on a context
// detached from ctx's cancellation, bounded by the dispatch timeout.
func (r *Router) OnEvent(ctx context.Context, topic string, payload []byte) Outcome {
	start := time.Now()
	out := Outcome{
		EventID: logging.NewEventID(),
		Topic:   topic,
		Time:    start,
	}
	ctx = logging.ContextWithEventID(ctx, out.EventID)
	logger := logging.WithContext(ctx, r.logger)

	r.handle(ctx, logger, &out, payload)

	out.Duration = time.Since(start)
	metrics.IncEvent(string(out.Route))
	r.notify(out)
	return out
}

func (r *Router) handle(ctx context.Context, logger zerolog.Logger, out *Outcome, payload []byte) {
	switch {
	case bus.Match(r.tagTopic, out.Topic):
		if !utf8.Valid(payload) {
			out.Route = RouteInvalid
			out.Err = dispatch.NewDecodeError(out.Topic)
			out.Result.Status = dispatch.StatusRejected
			logger.Warn().Err(out.Err).Str("topic", out.Topic).Msg("dropping message")
			return
		}
		out.Route = RouteTag
		out.Tag = string(payload)
	case bus.Match(r.btnTopic, out.Topic):
		out.Route = RouteButton
		out.Tag = ButtonTag
	default:
		out.Route = RouteIgnored
		logger.Info().Str("topic", out.Topic).Msg("no route for topic")
		return
	}

	entry, action, ok := r.registry.Lookup(out.Tag)
	if !ok {
		out.Err = dispatch.NewUnknownTagError(out.Tag)
		out.Result.Status = dispatch.StatusRejected
		logger.Warn().Str("tag", out.Tag).Msg(out.Err.Error())
		return
	}
	out.Action = action.String()
	logger.Info().
		Str("tag", out.Tag).
		Str("entry", entry.String()).
		Msg("tag resolved")

	dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
	defer cancel()
	out.Result, out.Err = r.dispatcher.Dispatch(dctx, r.player, out.Tag, action)
}

func (r *Router) notify(out Outcome) {
	r.mu.RLock()
	observers := r.observers
	r.mu.RUnlock()
	for _, o := range observers {
		o(out)
	}
}
