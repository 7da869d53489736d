package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/herd-sh/herd/pkg/tools"
)

// listTools returns the registered tool specs in registration order.
func (s *Server) listTools(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"tools": s.deps.Tools.Specs()})
}

// callTool dispatches one tool call. The request body is the argument
// object; the response wraps the result in a {success, error?, data?}
// envelope. Expected failures ride the envelope with HTTP 200 — only an
// unknown tool or a handler bug changes the status code.
func (s *Server) callTool(c *gin.Context) {
	name := c.Param("name")

	var args map[string]any
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&args); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"success": false,
				"error":   "invalid JSON body: " + err.Error(),
			})
			return
		}
	}

	res, err := s.deps.Tools.Dispatch(c.Request.Context(), name, args)
	switch {
	case errors.Is(err, tools.ErrUnknownTool):
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": err.Error()})
		return
	case err != nil:
		s.logger.Error("Tool dispatch failed", "tool", name, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
		return
	}

	success, _ := res["success"].(bool)
	out := gin.H{"success": success}
	if msg, ok := res["error"].(string); ok && msg != "" {
		out["error"] = msg
	}
	data := make(map[string]any, len(res))
	for k, v := range res {
		if k == "success" || k == "error" {
			continue
		}
		data[k] = v
	}
	if len(data) > 0 {
		out["data"] = data
	}
	c.JSON(http.StatusOK, out)
}
