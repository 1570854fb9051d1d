// Package server provides the HTTP and WebSocket status server: health,
// metrics, a live stream of dispatch outcomes, tag injection and tag table
// management.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/grandcat/zeroconf"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/dotside-studios/nfc-juke/buildinfo"
	"github.com/dotside-studios/nfc-juke/bus"
	"github.com/dotside-studios/nfc-juke/logging"
	"github.com/dotside-studios/nfc-juke/protocol"
	"github.com/dotside-studios/nfc-juke/router"
	"github.com/dotside-studios/nfc-juke/tags"
)

// Config holds the server configuration.
type Config struct {
	Listen string // e.g. ":18080"
	Secret string // optional secret for WebSocket connections
	MDNS   bool

	// Topic is the bus prefix injected tags are published under.
	Topic string

	Registry *tags.Registry
	TagFile  string // tag admin changes are written here; empty disables persistence
	Player   string

	// Inject queues a message for the router.
	Inject func(bus.Message) error
}

// Server manages the HTTP and WebSocket server.
type Server struct {
	config   Config
	hub      *Hub
	upgrader websocket.Upgrader
	handlers *HandlerRegistry
	logger   zerolog.Logger

	tableMu sync.Mutex

	mdnsServer *zeroconf.Server
}

// New creates a new server instance.
func New(config Config) *Server {
	logger := logging.WithComponent("server")
	s := &Server{
		config: config,
		hub:    NewHub(logger),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // Allow all origins
			},
		},
		handlers: NewHandlerRegistry(),
		logger:   logger,
	}

	_ = s.handlers.Handle(protocol.WSTypeStatus, s.wsStatus)
	_ = s.handlers.Handle(protocol.WSTypeInject, s.wsInject)
	return s
}

// Handle registers an extra WebSocket request handler.
func (s *Server) Handle(messageType string, handler HandlerFunc) error {
	return s.handlers.Handle(messageType, handler)
}

// Clients returns the number of connected WebSocket clients.
func (s *Server) Clients() int {
	return s.hub.Count()
}

// Observe broadcasts a router outcome to all WebSocket clients. It never
// blocks, so it can be registered as a router observer.
func (s *Server) Observe(out router.Outcome) {
	payload := protocol.OutcomePayload{
		EventID:    out.EventID,
		Topic:      out.Topic,
		Route:      string(out.Route),
		Tag:        out.Tag,
		Action:     out.Action,
		Status:     string(out.Result.Status),
		Message:    out.Result.Message,
		Album:      out.Result.Album,
		Mode:       out.Result.Mode,
		DurationMs: out.Duration.Milliseconds(),
		Time:       out.Time.Format(time.RFC3339),
	}
	if out.Err != nil {
		payload.Error = out.Err.Error()
	}
	s.hub.Broadcast(protocol.WebSocketMessage{
		ID:      out.EventID,
		Type:    protocol.WSTypeOutcome,
		Payload: payload,
	})
}

// Handler builds the HTTP routes.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(enableCORS)

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(buildinfo.DisplayName + " running"))
	})
	r.Get("/ws", s.handleWebSocket)
	r.Handle("/metrics", promhttp.Handler())

	r.Route(apiV1, func(r chi.Router) {
		r.Get("/health", s.handleHealthCheck)
		r.With(httprate.LimitByIP(injectRate, time.Second)).Post("/tag", s.handleTagInput)
		r.Get("/tags", s.handleListTags)
		r.Put("/tags/{id}", s.handlePutTag)
		r.Delete("/tags/{id}", s.handleDeleteTag)
	})
	return r
}

// Run serves until ctx is cancelled. A server that cannot start is logged and
// Run returns nil; the bridge keeps working without it.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Listen)
	if err != nil {
		s.logger.Error().Err(err).Str("listen", s.config.Listen).Msg("status server disabled")
		return nil
	}

	httpServer := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	if s.config.MDNS {
		if err := s.startMDNS(ln.Addr()); err != nil {
			s.logger.Warn().Err(err).Msg("mDNS advertisement unavailable, server will continue normally")
		}
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", ln.Addr().String()).Msg("status server listening")
		errCh <- httpServer.Serve(ln)
	}()

	select {
	case err := <-errCh:
		s.stopMDNS()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error().Err(err).Msg("status server stopped")
		}
		return nil
	case <-ctx.Done():
	}

	s.stopMDNS()
	s.hub.CloseAll()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn().Err(err).Msg("status server shutdown error")
	}
	return nil
}

// startMDNS registers the bridge as an mDNS service for auto-discovery.
func (s *Server) startMDNS(addr net.Addr) error {
	tcp, ok := addr.(*net.TCPAddr)
	if !ok {
		return fmt.Errorf("unsupported listener address %s", addr)
	}

	txtRecords := []string{
		"version=" + buildinfo.Version,
		"protocol=websocket",
		"path=/ws",
		"player=" + s.config.Player,
	}

	server, err := zeroconf.Register(MDNSServiceName, MDNSServiceType, MDNSDomain, tcp.Port, txtRecords, nil)
	if err != nil {
		return fmt.Errorf("failed to register mDNS service: %w", err)
	}

	s.mdnsServer = server
	s.logger.Info().Str("service", MDNSServiceType).Int("port", tcp.Port).Msg("mDNS service registered")
	return nil
}

func (s *Server) stopMDNS() {
	if s.mdnsServer != nil {
		s.mdnsServer.Shutdown()
		s.mdnsServer = nil
		s.logger.Info().Msg("mDNS service stopped")
	}
}

// enableCORS is a middleware that adds CORS headers to responses.
func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", CORSAllowOrigin)
		w.Header().Set("Access-Control-Allow-Methods", CORSAllowMethods)
		w.Header().Set("Access-Control-Allow-Headers", CORSAllowHeaders)

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// handleWebSocket upgrades the connection and serves requests until the
// client goes away.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if s.config.Secret != "" && r.URL.Query().Get("secret") != s.config.Secret {
		s.logger.Warn().Str("remote", r.RemoteAddr).Msg("WebSocket connection rejected: invalid API secret")
		http.Error(w, "Unauthorized: Invalid API secret", http.StatusUnauthorized)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	client := newClient(uuid.NewString(), conn, s.logger)
	s.hub.Register(client)
	defer s.hub.Unregister(client)
	go client.writePump()

	client.logger.Info().Str("remote", r.RemoteAddr).Int("clients", s.hub.Count()).Msg("WebSocket client connected")

	for {
		var req protocol.WebSocketRequest
		if err := conn.ReadJSON(&req); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				client.logger.Debug().Err(err).Msg("WebSocket read error")
			}
			break
		}

		handler, ok := s.handlers.Get(req.Type)
		if !ok {
			client.SendError(req.ID, fmt.Sprintf("unknown message type %s (supported: %s)",
				strconv.Quote(req.Type), strings.Join(s.handlers.MessageTypes(), ", ")))
			continue
		}
		if err := handler(r.Context(), client, req); err != nil {
			client.SendError(req.ID, err.Error())
		}
	}

	client.logger.Info().Msg("WebSocket client disconnected")
}

func (s *Server) wsStatus(ctx context.Context, c *Client, req protocol.WebSocketRequest) error {
	c.Send(protocol.WebSocketResponse{
		ID:      req.ID,
		Type:    protocol.WSTypeStatus,
		Success: true,
		Payload: s.health(),
	})
	return nil
}

func (s *Server) wsInject(ctx context.Context, c *Client, req protocol.WebSocketRequest) error {
	raw, err := json.Marshal(req.Payload)
	if err != nil {
		return err
	}
	var in protocol.TagInputRequest
	if err := json.Unmarshal(raw, &in); err != nil {
		return fmt.Errorf("invalid inject payload: %w", err)
	}
	if in.Source == "" {
		in.Source = "websocket"
	}

	topic, tag, err := s.inject(in)
	if err != nil {
		return err
	}
	c.Send(protocol.WebSocketResponse{
		ID:      req.ID,
		Type:    protocol.WSTypeInject,
		Success: true,
		Payload: protocol.TagInputResponse{Success: true, Message: "tag queued", Tag: tag, Topic: topic},
	})
	return nil
}
