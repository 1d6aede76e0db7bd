// Package web serves the operator HTTP API: history browsing, on-demand
// fetches, poller control and metrics.
package web

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"sabot-go/internal/sabot"
)

const (
	defaultReadTimeout  = 30 * time.Second
	defaultWriteTimeout = 10 * time.Minute // fetches run inside the request
	defaultIdleTimeout  = 120 * time.Second
)

// PollerObserver is told about poller state changes made through the API.
type PollerObserver interface {
	PollerState(running bool, interval time.Duration)
}

// Deps are the collaborators the API serves. Runs, Metrics and Observer
// may be nil.
type Deps struct {
	Service  *sabot.Service
	History  *sabot.History
	Poller   *sabot.Poller
	Runs     sabot.RunLog
	Metrics  http.Handler
	Observer PollerObserver
}

// Server is the operator HTTP server.
type Server struct {
	deps   Deps
	router *gin.Engine
	server *http.Server
	logger sabot.Logger
}

// NewServer builds the router. Gin runs in release mode; requests are
// logged through logger.
func NewServer(addr string, deps Deps, logger sabot.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(RecoveryMiddleware(logger))
	router.Use(LoggerMiddleware(logger))

	s := &Server{
		deps:   deps,
		router: router,
		logger: logger,
		server: &http.Server{
			Addr:         addr,
			Handler:      router,
			ReadTimeout:  defaultReadTimeout,
			WriteTimeout: defaultWriteTimeout,
			IdleTimeout:  defaultIdleTimeout,
		},
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.router.GET("/health", s.health)
	if s.deps.Metrics != nil {
		s.router.GET("/metrics", gin.WrapH(s.deps.Metrics))
	}

	v1 := s.router.Group("/api/v1")
	v1.GET("/platforms", s.listPlatforms)

	p := v1.Group("/platforms/:platform")
	p.GET("/accounts", s.listAccounts)
	p.GET("/accounts/:account/posts", s.listPosts)
	p.GET("/accounts/:account/posts/:id/media", s.listMedia)
	p.GET("/accounts/:account/posts/:id/media/:index", s.serveMedia)
	p.DELETE("/accounts/:account/posts/:id", s.deletePost)

	v1.POST("/fetch", s.fetch)
	v1.GET("/runs", s.listRuns)

	v1.GET("/poller", s.pollerStatus)
	v1.POST("/poller", s.startPoller)
	v1.DELETE("/poller", s.stopPoller)
	v1.PUT("/poller/interval", s.setInterval)
	v1.PUT("/poller/targets", s.setTargets)
}

// Handler returns the router for use with httptest.
func (s *Server) Handler() http.Handler { return s.router }

// ListenAndServe serves until Shutdown is called.
func (s *Server) ListenAndServe() error {
	s.logger.Info("HTTP API listening", "addr", s.server.Addr)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serving HTTP API: %w", err)
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"poller": s.deps.Poller != nil && s.deps.Poller.Running(),
	})
}
