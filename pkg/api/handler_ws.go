package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const (
	wsWriteTimeout = 10 * time.Second
	wsPingInterval = 30 * time.Second
)

// eventStream pushes runtime events over a websocket, one JSON text
// message per event. A slow or departed client drops its own subscription
// without backing up the publisher.
func (s *Server) eventStream(c *gin.Context) {
	if s.deps.Events == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"success": false,
			"error":   "event stream is not configured",
		})
		return
	}

	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade already wrote the handshake error to the client.
		s.logger.Warn("Websocket upgrade rejected", "remote", c.Request.RemoteAddr, "error", err)
		return
	}
	defer conn.Close()

	id, ch := s.deps.Events.Subscribe()
	defer s.deps.Events.Unsubscribe(id)
	s.logger.Info("Event stream opened", "subscriber", id, "remote", c.Request.RemoteAddr)

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(wsPingInterval)
	defer ping.Stop()
	for {
		select {
		case <-closed:
			return
		case evt, ok := <-ch:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteJSON(evt); err != nil {
				return
			}
		case <-ping.C:
			conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// checkOrigin admits non-browser clients (no Origin header) always and
// browser clients per the configured allowlist. An empty allowlist admits
// every origin, which suits a localhost deployment.
func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	allowed := s.deps.Config.API.AllowedWSOrigins
	if len(allowed) == 0 {
		return true
	}
	for _, a := range allowed {
		if a == "*" || strings.EqualFold(a, origin) {
			return true
		}
	}
	return false
}
