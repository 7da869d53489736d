// Package api is the HTTP front door: tool dispatch, operator chat, the
// websocket event stream, health, and Prometheus metrics.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/herd-sh/herd/pkg/adapters"
	"github.com/herd-sh/herd/pkg/config"
	"github.com/herd-sh/herd/pkg/events"
	"github.com/herd-sh/herd/pkg/graph"
	"github.com/herd-sh/herd/pkg/memory"
	"github.com/herd-sh/herd/pkg/metrics"
	"github.com/herd-sh/herd/pkg/tools"
)

// Chat is the slice of the session manager the chat endpoint needs.
type Chat interface {
	HandleMessage(ctx context.Context, threadID, text, user string) (string, error)
}

// Deps carries the runtime surfaces the server exposes. Nil fields report
// "unavailable" in health and 503 on their routes instead of panicking.
type Deps struct {
	Config   *config.Config
	Tools    *tools.Registry
	Adapters *adapters.Registry
	Memory   *memory.Store
	Graph    *graph.Graph
	Events   *events.Manager
	Sessions Chat
}

// Server owns the gin engine and the underlying http.Server.
type Server struct {
	deps     Deps
	engine   *gin.Engine
	http     *http.Server
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// NewServer wires the route table over the given dependencies.
func NewServer(deps Deps) *Server {
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		deps:   deps,
		logger: slog.Default().With("component", "api"),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}

	e := gin.New()
	e.Use(gin.Recovery(), s.observe())

	e.GET("/health", s.health)
	e.GET("/metrics", gin.WrapH(metrics.Handler()))
	e.GET("/ws/events", s.eventStream)

	v1 := e.Group("/api/v1", bearerAuth(deps.Config.API.Token))
	v1.GET("/tools", s.listTools)
	v1.POST("/tools/:name", s.callTool)
	v1.POST("/chat", s.chat)

	s.engine = e
	s.http = &http.Server{
		Addr:              deps.Config.Addr(),
		Handler:           e,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler exposes the route table for tests and embedding.
func (s *Server) Handler() http.Handler { return s.engine }

// Start serves until the listener fails or Shutdown runs.
func (s *Server) Start() error {
	s.logger.Info("API listening", "addr", s.http.Addr)
	err := s.http.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown stops accepting connections and drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

// observe counts and logs every request by matched route.
func (s *Server) observe() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		metrics.APIRequestsTotal.WithLabelValues(route, strconv.Itoa(status)).Inc()
		s.logger.Debug("Request served",
			"method", c.Request.Method,
			"route", route,
			"status", status,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}
}
