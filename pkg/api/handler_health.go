package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/herd-sh/herd/pkg/version"
)

// health reports adapter and store readiness. It stays outside the bearer
// check so probes and dashboards can hit it without the API token.
func (s *Server) health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	reg := s.deps.Adapters
	adapterHealth := gin.H{
		"store":   okOr(reg != nil && reg.Store != nil),
		"tickets": okOr(reg != nil && reg.Tickets != nil),
		"notify":  okOr(reg != nil && reg.Notify != nil),
		"repo":    okOr(reg != nil && reg.Repo != nil),
		"agent":   okOr(reg != nil && reg.Agent != nil),
	}

	operational := false
	if reg != nil && reg.Store != nil {
		_, err := reg.Store.StorageInfo(ctx)
		operational = err == nil
	}
	storeHealth := gin.H{
		"operational": okOr(operational),
		"vector":      okOr(s.deps.Memory != nil && s.deps.Memory.Available()),
		"graph":       okOr(s.deps.Graph != nil && s.deps.Graph.Available()),
	}

	status, code := "ok", http.StatusOK
	if !operational {
		status, code = "degraded", http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{
		"status":   status,
		"version":  version.Full(),
		"adapters": adapterHealth,
		"stores":   storeHealth,
	})
}

func okOr(ok bool) string {
	if ok {
		return "ok"
	}
	return "unavailable"
}
