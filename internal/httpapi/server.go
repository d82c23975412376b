// Package httpapi is the HTTP surface named in spec §6: routing, JSON
// parsing, and SSE framing around the dispatch core. Grounded on the
// teacher's internal/interfaces/http Server/ginLogger structure.
package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/ccrelay/ccrelay/internal/dispatch"
)

// Config is the server's own listen settings; everything else is reached
// through the registered pools/orchestrator.
type Config struct {
	Host    string
	Port    int
	DevMode bool
	APIKey  string
}

// Server wraps the gin engine and its net/http listener.
type Server struct {
	httpServer *http.Server
	logger     *zap.Logger
}

// NewServer builds the route table against one Orchestrator, whose Pools()
// map feeds the pool introspection endpoints, and the per-family model
// lists served by the models endpoint.
func NewServer(cfg Config, orch *dispatch.Orchestrator, models map[dispatch.Family][]string, logger *zap.Logger) *Server {
	if cfg.DevMode {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger(logger))

	h := &handlers{orch: orch, models: models, logger: logger, apiKey: cfg.APIKey}
	h.register(router)

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	return &Server{
		httpServer: &http.Server{Addr: addr, Handler: router},
		logger:     logger.With(zap.String("component", "httpapi")),
	}
}

func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", zap.String("addr", s.httpServer.Addr))
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("HTTP server error", zap.Error(err))
		}
	}()
	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("stopping HTTP server")
	return s.httpServer.Shutdown(ctx)
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}
