// Package api exposes a read-only operator surface over HTTP and
// WebSocket: process health, session status, current positions (real and
// paper), recent executor acknowledgements, and a live event feed. It never
// accepts trading commands — all trading decisions flow through the
// predictor/executor pipeline, never through this API.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/riverline-quant/predictor-core/internal/events"
	"github.com/riverline-quant/predictor-core/pkg/types"
)

// Config configures the API server's listener and timeouts.
type Config struct {
	Host          string
	Port          int
	WebSocketPath string
	ReadTimeout   time.Duration
	WriteTimeout  time.Duration
}

// DefaultConfig returns sensible defaults for a single-process deployment.
func DefaultConfig() Config {
	return Config{
		Host:          "127.0.0.1",
		Port:          8080,
		WebSocketPath: "/ws",
		ReadTimeout:   10 * time.Second,
		WriteTimeout:  10 * time.Second,
	}
}

// StatusProvider supplies the current state snapshots the Server exposes
// read-only. Implemented by the orchestrator.
type StatusProvider interface {
	Session() types.Session
	Positions() map[string]types.RealPosition
	PaperBalances() map[string]float64
	RecentAcks(limit int) []types.Ack
}

// Server is the HTTP/WebSocket operator surface.
type Server struct {
	mu         sync.RWMutex
	logger     *zap.Logger
	config     Config
	router     *mux.Router
	httpServer *http.Server
	hub        *Hub
	status     StatusProvider
}

// NewServer builds a Server reading state from status and broadcasting
// bus events to connected WebSocket clients. It starts the WebSocket hub's
// broadcast loop, so the handler returned by Router serves WebSocket
// clients even before Start is called.
func NewServer(logger *zap.Logger, config Config, status StatusProvider, bus *events.Bus) *Server {
	s := &Server{
		logger: logger,
		config: config,
		router: mux.NewRouter(),
		hub:    NewHub(logger),
		status: status,
	}
	s.setupRoutes()
	go s.hub.Run()
	if bus != nil {
		s.subscribeToBus(bus)
	}
	return s
}

// Router exposes the underlying router for tests.
func (s *Server) Router() http.Handler {
	return cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"*"},
	}).Handler(s.router)
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	s.router.HandleFunc("/session", s.handleSession).Methods(http.MethodGet)
	s.router.HandleFunc("/positions", s.handlePositions).Methods(http.MethodGet)
	s.router.HandleFunc("/paper/balances", s.handlePaperBalances).Methods(http.MethodGet)
	s.router.HandleFunc("/acks", s.handleRecentAcks).Methods(http.MethodGet)
	s.router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	s.router.HandleFunc(s.config.WebSocketPath, s.hub.ServeWS).Methods(http.MethodGet)
}

// Start runs the HTTP server until Stop is called. The WebSocket hub's
// broadcast loop is already running from NewServer.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.Router(),
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	s.logger.Info("starting api server", zap.String("addr", addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Stop gracefully shuts the HTTP server down.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{"status": "healthy", "time": time.Now().Unix()})
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.status.Session())
}

func (s *Server) handlePositions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.status.Positions())
}

func (s *Server) handlePaperBalances(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.status.PaperBalances())
}

func (s *Server) handleRecentAcks(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		fmt.Sscanf(raw, "%d", &limit)
	}
	writeJSON(w, s.status.RecentAcks(limit))
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// subscribeToBus wires the event bus into the WebSocket hub, broadcasting
// every event to subscribed clients on its matching channel.
func (s *Server) subscribeToBus(bus *events.Bus) {
	bus.SubscribeAll(func(e events.Event) error {
		var channel string
		switch e.GetType() {
		case events.EventTypeSignal:
			channel = "signals"
		case events.EventTypeAck:
			channel = "acks"
		case events.EventTypeRiskAlert:
			channel = "risk"
		case events.EventTypeHeartbeat:
			channel = "heartbeat"
		case events.EventTypeSessionStatus:
			channel = "session"
		case events.EventTypeReconnect:
			channel = "connection"
		default:
			channel = "misc"
		}
		s.hub.PublishToChannel(channel, MessageType(e.GetType()), e)
		return nil
	})
}
