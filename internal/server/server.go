// Package server exposes the orchestrator over HTTP.
package server

import (
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"speechflow/internal/config"
	"speechflow/internal/domain"
	"speechflow/internal/orchestrator"
)

// Server wires the gin engine, the orchestrator and the server config.
type Server struct {
	engine *gin.Engine
	cfg    config.ServerConfig
}

// NewServer builds the HTTP surface. settings provides the default backend
// parameters for requests that do not pick their own.
func NewServer(cfg config.ServerConfig, svc *orchestrator.Service, settings domain.Settings, log zerolog.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(RequestLogger(log))
	engine.Use(MaxBodySize(cfg.MaxUploadBytes))

	api := NewAPI(cfg, svc, settings, log)
	registerRoutes(engine, api)

	return &Server{engine: engine, cfg: cfg}
}

// Run blocks serving HTTP on the configured address.
func (s *Server) Run() error {
	return s.engine.Run(s.cfg.ListenAddr)
}

// Handler exposes the engine for tests.
func (s *Server) Handler() *gin.Engine {
	return s.engine
}
