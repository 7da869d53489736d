package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type chatRequest struct {
	ThreadID string `json:"thread_id"`
	Text     string `json:"text"`
	User     string `json:"user"`
}

// chat relays one operator message into the session manager. A missing
// thread_id starts a fresh thread whose id comes back in the response so
// the client can continue the conversation.
func (s *Server) chat(c *gin.Context) {
	if s.deps.Sessions == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"success": false,
			"error":   "chat is not configured",
		})
		return
	}

	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "invalid JSON body: " + err.Error(),
		})
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "text is required"})
		return
	}
	if req.ThreadID == "" {
		req.ThreadID = uuid.NewString()
	}

	reply, err := s.deps.Sessions.HandleMessage(c.Request.Context(), req.ThreadID, req.Text, req.User)
	if err != nil {
		s.logger.Error("Chat turn failed", "thread", req.ThreadID, "error", err)
		c.JSON(http.StatusBadGateway, gin.H{"success": false, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"thread_id": req.ThreadID, "reply": reply})
}
