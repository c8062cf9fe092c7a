// Package api serves the gateway's admin HTTP API: status, manual reflex
// triggers, ad-hoc decisions, SOP ingestion and a live reflex stream.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/CoReason-AI/coreason-signal/internal/logging"
	"github.com/CoReason-AI/coreason-signal/internal/model"
	"github.com/CoReason-AI/coreason-signal/internal/output"
	"github.com/CoReason-AI/coreason-signal/internal/output/broadcast"
	"github.com/CoReason-AI/coreason-signal/internal/pipeline"
)

const shutdownTimeout = 5 * time.Second

// Engine is the part of the reflex engine the API drives.
type Engine interface {
	Decide(ctx context.Context, event model.LogEvent) (*model.AgentReflex, error)
	Trigger(reflex model.AgentReflex) error
	Timeout() time.Duration
	Pending() int
}

// Store is the part of the SOP store the API drives.
type Store interface {
	Add(ctx context.Context, docs []model.SOPDocument) error
	Count() int
}

// Config wires the server to the running gateway. Any dependency may be
// nil; routes that need a missing one answer 503.
type Config struct {
	Addr   string
	Device model.DeviceDefinition
	Engine Engine
	Store  Store
	// Hub feeds GET /stream.
	Hub *broadcast.Hub
	// Dispatch receives reflexes decided through POST /events.
	Dispatch output.Output
	// Stats reports pipeline counters on /status.
	Stats func() pipeline.Stats
}

// Server holds the Gin engine and dependencies for the admin API.
type Server struct {
	cfg     Config
	engine  *gin.Engine
	started time.Time
}

// New creates the admin API server.
func New(cfg Config) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	engine.RedirectTrailingSlash = false
	engine.RedirectFixedPath = false

	s := &Server{
		cfg:     cfg,
		engine:  engine,
		started: time.Now(),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.engine.GET("/healthz", s.handleHealth)
	s.engine.GET("/status", s.handleStatus)
	s.engine.POST("/events", s.handleEvent)
	s.engine.POST("/reflex/trigger", s.handleTrigger)
	s.engine.POST("/sops", s.handleIngest)
	s.engine.GET("/stream", s.handleWebSocket)
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	log := logging.Component("api")
	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", "addr", s.cfg.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	log.Info("shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
