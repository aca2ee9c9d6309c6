package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/parleylabs/parley/agent"
	"github.com/parleylabs/parley/api/handlers"
	"github.com/parleylabs/parley/config"
	"github.com/parleylabs/parley/format"
	"github.com/parleylabs/parley/groupchat"
	"github.com/parleylabs/parley/internal/metrics"
	"github.com/parleylabs/parley/internal/server"
	"github.com/parleylabs/parley/internal/telemetry"
	"github.com/parleylabs/parley/session"
)

// Server wires the whole service: agents, session store, orchestrator,
// handlers and the two HTTP listeners.
type Server struct {
	cfg    *config.Config
	logger *zap.Logger

	httpManager    *server.Manager
	metricsManager *server.Manager

	registry  *agent.Registry
	store     session.Store
	orch      *groupchat.Orchestrator
	formatter *format.Formatter

	healthHandler  *handlers.HealthHandler
	chatHandler    *handlers.ChatHandler
	agentHandler   *handlers.AgentHandler
	sessionHandler *handlers.SessionHandler

	metricsCollector *metrics.Collector
	otelProviders    *telemetry.Providers

	rateLimiterCancel context.CancelFunc
}

// NewServer creates an unstarted server.
func NewServer(cfg *config.Config, logger *zap.Logger, otelProviders *telemetry.Providers) *Server {
	return &Server{
		cfg:           cfg,
		logger:        logger,
		otelProviders: otelProviders,
	}
}

// Start brings up the session store, agents, handlers and both listeners.
func (s *Server) Start() error {
	s.metricsCollector = metrics.NewCollector("parley", s.logger)

	if err := s.initStore(); err != nil {
		return fmt.Errorf("failed to init session store: %w", err)
	}

	s.initAgents()
	s.initHandlers()

	if err := s.startHTTPServer(); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}
	if err := s.startMetricsServer(); err != nil {
		return fmt.Errorf("failed to start metrics server: %w", err)
	}

	s.logger.Info("all servers started",
		zap.Int("http_port", s.cfg.Server.HTTPPort),
		zap.Int("metrics_port", s.cfg.Server.MetricsPort),
		zap.String("session_backend", s.cfg.Session.Backend),
		zap.Int("agents", s.registry.Len()),
	)
	return nil
}

// initStore opens the configured session backend.
func (s *Server) initStore() error {
	switch s.cfg.Session.Backend {
	case "redis":
		store, err := session.NewRedisStore(s.cfg.Redis, s.logger)
		if err != nil {
			return err
		}
		s.store = store
	case "sqlite":
		db, err := session.OpenSQLite(s.cfg.Database.Path)
		if err != nil {
			return err
		}
		store, err := session.NewGormStore(db, s.logger)
		if err != nil {
			return err
		}
		s.store = store
	default:
		s.store = session.NewMemoryStore(s.logger)
	}

	s.logger.Info("session store initialized", zap.String("backend", s.cfg.Session.Backend))
	return nil
}

// initAgents registers the configured agents. Entries with scripted
// responses become scripted agents, the rest HTTP agents.
func (s *Server) initAgents() {
	s.registry = agent.NewRegistry(s.logger)

	for _, ac := range s.cfg.Agents {
		if len(ac.Responses) > 0 {
			agentType := ac.Type
			if agentType == "" {
				agentType = "scripted"
			}
			s.registry.Register(agent.NewScriptedAgent(ac.Name, agentType, ac.Responses...))
			continue
		}
		s.registry.Register(agent.NewHTTPAgent(agent.HTTPAgentConfig{
			Name:         ac.Name,
			Type:         ac.Type,
			BaseURL:      ac.BaseURL,
			APIKey:       ac.APIKey,
			Model:        ac.Model,
			SystemPrompt: ac.SystemPrompt,
			Timeout:      ac.Timeout,
		}, s.logger))
	}
}

func (s *Server) initHandlers() {
	s.orch = groupchat.New(s.registry, s.store, s.cfg.Orchestrator, s.logger).
		WithMetrics(s.metricsCollector)
	s.formatter = format.NewFormatter(s.logger)

	s.healthHandler = handlers.NewHealthHandler(s.logger)
	s.chatHandler = handlers.NewChatHandler(s.registry, s.store, s.orch, s.formatter, s.logger)
	s.agentHandler = handlers.NewAgentHandler(s.registry, s.logger)
	s.sessionHandler = handlers.NewSessionHandler(s.store, s.logger)

	// readiness probes for the external backends
	switch store := s.store.(type) {
	case *session.RedisStore:
		s.healthHandler.RegisterCheck(handlers.NewPingHealthCheck("redis", store.Ping))
	case *session.GormStore:
		s.healthHandler.RegisterCheck(handlers.NewPingHealthCheck("database", store.Ping))
	}
}

func (s *Server) startHTTPServer() error {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.healthHandler.HandleHealth)
	mux.HandleFunc("GET /ready", s.healthHandler.HandleReady)
	mux.HandleFunc("GET /version", s.healthHandler.HandleVersion(Version, BuildTime, GitCommit))

	mux.HandleFunc("POST /api/v1/chat", s.chatHandler.HandleChat)
	mux.HandleFunc("GET /api/v1/agents", s.agentHandler.HandleList)
	mux.HandleFunc("GET /api/v1/sessions/{id}", s.sessionHandler.HandleGet)

	skipAuthPaths := []string{"/health", "/ready", "/version"}
	rateLimiterCtx, cancel := context.WithCancel(context.Background())
	s.rateLimiterCancel = cancel

	middlewares := []Middleware{
		Recovery(s.logger),
		RequestID(),
		SecurityHeaders(),
		RequestLogger(s.logger),
		OTelTracing(),
		MetricsMiddleware(s.metricsCollector),
		CORS(s.cfg.Server.CORSAllowedOrigins),
	}
	if s.cfg.Server.RateLimitRPS > 0 {
		middlewares = append(middlewares,
			RateLimiter(rateLimiterCtx, s.cfg.Server.RateLimitRPS, s.cfg.Server.RateLimitBurst, s.logger))
	}
	middlewares = append(middlewares, APIKeyAuth(s.cfg.Server.APIKeys, skipAuthPaths, s.logger))

	handler := Chain(mux, middlewares...)

	serverConfig := server.Config{
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.HTTPPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		IdleTimeout:     2 * s.cfg.Server.ReadTimeout,
		MaxHeaderBytes:  1 << 20, // 1 MB
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}

	s.httpManager = server.NewManager(handler, serverConfig, s.logger)
	return s.httpManager.Start()
}

func (s *Server) startMetricsServer() error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	serverConfig := server.Config{
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.MetricsPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}

	s.metricsManager = server.NewManager(mux, serverConfig, s.logger)
	return s.metricsManager.Start()
}

// WaitForShutdown blocks until a signal or serve error, then cleans up.
func (s *Server) WaitForShutdown() {
	if s.httpManager != nil {
		s.httpManager.WaitForShutdown()
	}
	s.Shutdown()
}

// Shutdown stops the listeners and closes the backends.
func (s *Server) Shutdown() {
	s.logger.Info("starting graceful shutdown")

	ctx := context.Background()

	if s.rateLimiterCancel != nil {
		s.rateLimiterCancel()
	}
	if s.httpManager != nil {
		if err := s.httpManager.Shutdown(ctx); err != nil {
			s.logger.Error("HTTP server shutdown error", zap.Error(err))
		}
	}
	if s.metricsManager != nil {
		if err := s.metricsManager.Shutdown(ctx); err != nil {
			s.logger.Error("metrics server shutdown error", zap.Error(err))
		}
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			s.logger.Error("session store close error", zap.Error(err))
		}
	}
	if s.otelProviders != nil {
		if err := s.otelProviders.Shutdown(ctx); err != nil {
			s.logger.Error("telemetry shutdown error", zap.Error(err))
		}
	}

	s.logger.Info("graceful shutdown completed")
}
