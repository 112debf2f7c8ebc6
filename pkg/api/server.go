// Package api exposes flow management and execution over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/tcmartin/promptflow/pkg/config"
	"github.com/tcmartin/promptflow/pkg/logging"
	"github.com/tcmartin/promptflow/pkg/middleware"
	"github.com/tcmartin/promptflow/pkg/registry"
	"github.com/tcmartin/promptflow/pkg/runtime"
	"github.com/tcmartin/promptflow/pkg/services"
)

// maxBodyBytes bounds request bodies for flow definitions and messages
const maxBodyBytes = 1 << 20

// Server represents the HTTP API server
type Server struct {
	config       *config.Config
	router       *mux.Router
	server       *http.Server
	flowRegistry registry.FlowRegistry
	flowRuntime  runtime.FlowRuntime
	logger       logging.Logger
	wsManager    *WebSocketManager
}

// NewServer creates a new API server
func NewServer(cfg *config.Config, flowRegistry registry.FlowRegistry, flowRuntime runtime.FlowRuntime, logger logging.Logger) *Server {
	if logger == nil {
		logger = logging.NewNopLogger()
	}

	s := &Server{
		config:       cfg,
		router:       mux.NewRouter(),
		flowRegistry: flowRegistry,
		flowRuntime:  flowRuntime,
		logger:       logger,
	}
	s.wsManager = NewWebSocketManager(flowRuntime, logger)

	s.setupRoutes()
	return s
}

// Handler returns the root HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the HTTP server
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	s.server = &http.Server{
		Addr:        addr,
		Handler:     s.router,
		ReadTimeout: 15 * time.Second,
		// no WriteTimeout: an execution takes one model call per step
		IdleTimeout: 60 * time.Second,
	}

	s.logger.Info("Starting HTTP server", logging.F("addr", addr), logging.F("tls", s.config.Server.TLS.Enabled))

	var err error
	if s.config.Server.TLS.Enabled {
		err = s.server.ListenAndServeTLS(
			s.config.Server.TLS.CertFile,
			s.config.Server.TLS.KeyFile,
		)
	} else {
		err = s.server.ListenAndServe()
	}

	// If the server was shut down gracefully, this error is expected
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Stop stops the HTTP server gracefully
func (s *Server) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// setupRoutes configures the API routes
func (s *Server) setupRoutes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.AccessLog(s.logger))
	s.router.Use(middleware.CORS)

	// API router with version prefix
	api := s.router.PathPrefix("/api/v1").Subrouter()

	// Public routes
	api.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet, http.MethodOptions)

	// Authenticated routes, open when no JWT secret is configured
	authenticated := api.PathPrefix("").Subrouter()
	if s.config.Auth.JWTSecret != "" {
		jwtService := services.NewJWTService(s.config.Auth.JWTSecret, s.config.Auth.TokenExpiration)
		authenticated.Use(middleware.NewAuthMiddleware(jwtService, writeError).Authenticate)
	}

	flows := authenticated.PathPrefix("/flows").Subrouter()
	flows.HandleFunc("", s.handleListFlows).Methods(http.MethodGet, http.MethodOptions)
	flows.HandleFunc("", s.handleCreateFlow).Methods(http.MethodPost, http.MethodOptions)
	flows.HandleFunc("/{id}", s.handleGetFlow).Methods(http.MethodGet, http.MethodOptions)
	flows.HandleFunc("/{id}", s.handleUpdateFlow).Methods(http.MethodPut, http.MethodOptions)
	flows.HandleFunc("/{id}", s.handleDeleteFlow).Methods(http.MethodDelete, http.MethodOptions)
	flows.HandleFunc("/{id}/exec", s.handleExecuteFlow).Methods(http.MethodPost, http.MethodOptions)
	flows.HandleFunc("/{id}/exec/ws", s.handleExecuteFlowWebSocket).Methods(http.MethodGet)

	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, kindNotFound, "route not found")
	})
	s.router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "MethodNotAllowed", "method not allowed")
	})
}

// handleHealth handles the health check endpoint
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"app":    s.config.AppName,
		"time":   time.Now().Format(time.RFC3339),
	})
}
