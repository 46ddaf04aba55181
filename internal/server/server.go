// Package server wires the HTTP surface: trader APIs, broker webhooks,
// the client WebSocket stream, and system endpoints.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/teamscryps/backend/internal/config"
	"github.com/teamscryps/backend/internal/database"
	"github.com/teamscryps/backend/internal/modules/accounts"
	"github.com/teamscryps/backend/internal/modules/audit"
	"github.com/teamscryps/backend/internal/modules/fills"
	"github.com/teamscryps/backend/internal/modules/holdings"
	"github.com/teamscryps/backend/internal/modules/orders"
	"github.com/teamscryps/backend/internal/modules/snapshot"
	"github.com/teamscryps/backend/internal/realtime"
	"github.com/teamscryps/backend/internal/webhook"
)

// Config holds server configuration
type Config struct {
	Port     int
	Log      zerolog.Logger
	DB       *database.DB
	Cfg      *config.Config
	Accounts *accounts.Repository
	Holdings *holdings.Repository
	Orders   *orders.Service
	Fills    *fills.Service
	Audit    *audit.Service
	AuditRep *audit.Repository
	Snapshot *snapshot.Service
	Realtime *realtime.Manager
	Verifier *webhook.Verifier
}

// Server represents the HTTP server
type Server struct {
	router  *chi.Mux
	server  *http.Server
	log     zerolog.Logger
	trader  *TraderHandlers
	webhook *WebhookHandlers
	ws      *WSHandlers
	system  *SystemHandlers
}

// New creates a new HTTP server
func New(cfg Config) *Server {
	s := &Server{
		router:  chi.NewRouter(),
		log:     cfg.Log.With().Str("component", "server").Logger(),
		trader:  NewTraderHandlers(cfg.Orders, cfg.Fills, cfg.Accounts, cfg.Holdings, cfg.Cfg.Debug, cfg.Log),
		webhook: NewWebhookHandlers(cfg.Fills, cfg.Verifier, cfg.Log),
		ws:      NewWSHandlers(cfg.Realtime, cfg.Orders, cfg.Log),
		system:  NewSystemHandlers(cfg.DB, cfg.Audit, cfg.AuditRep, cfg.Snapshot, cfg.Log),
	}

	s.setupMiddleware()
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// setupMiddleware configures middleware
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)

	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", ActorHeader, webhook.SignatureHeader, webhook.AlgorithmHeader},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
}

// setupRoutes configures all routes
func (s *Server) setupRoutes() {
	s.router.Get("/health", s.system.HandleHealth)

	// Broker callbacks: signature-verified, no actor identity.
	s.router.Route("/broker", func(r chi.Router) {
		r.Post("/fill", s.webhook.HandleFill)
		r.Post("/cancel", s.webhook.HandleCancel)
	})

	// Client event stream. No request timeout: connections are
	// long-lived.
	s.router.Get("/ws/client/{client_id}", s.ws.HandleClientStream)

	s.router.Route("/api", func(r chi.Router) {
		r.Use(middleware.Timeout(60 * time.Second))

		r.Route("/trader", func(r chi.Router) {
			r.Post("/orders", s.trader.HandlePlaceOrder)
			r.Post("/my-orders", s.trader.HandlePlaceMyOrder)
			r.Get("/orders/{id}", s.trader.HandleGetOrder)
			r.Post("/orders/{id}/cancel", s.trader.HandleCancelOrder)
			r.Get("/clients", s.trader.HandleListClients)
			r.Get("/clients/{id}/holdings", s.trader.HandleClientHoldings)
			r.Get("/clients/{id}/orders", s.trader.HandleClientOrders)
		})

		r.Get("/clients/{id}/portfolio", s.system.HandleClientPortfolio)

		r.Route("/audit", func(r chi.Router) {
			r.Get("/", s.system.HandleAuditList)
			r.Get("/verify", s.system.HandleAuditVerify)
		})

		r.Route("/system", func(r chi.Router) {
			r.Get("/status", s.system.HandleSystemStatus)
			r.Post("/jobs/daily-snapshot", s.system.HandleTriggerDailySnapshot)
		})
	})
}

// Router exposes the handler tree for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.server.Addr).Msg("Starting HTTP server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration_ms", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("HTTP request")
	})
}
