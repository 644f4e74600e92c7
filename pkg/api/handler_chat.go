package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/coupgame/coupd/pkg/models"
)

type sendChatRequest struct {
	Content  string          `json:"content"`
	Platform models.Platform `json:"platform"`
}

// sendChatHandler handles POST /game/chat/:id/send.
func (s *Server) sendChatHandler(c *gin.Context) {
	var req sendChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}
	if req.Platform == "" {
		req.Platform = models.PlatformWeb
	}

	msg, err := s.chat.Queue(c.Request.Context(), c.Param("id"), callerName(c), req.Platform, req.Content)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, msg)
}

// chatMessagesHandler handles GET /game/chat/:id/messages. Peeks the queue
// without consuming it.
func (s *Server) chatMessagesHandler(c *gin.Context) {
	limit := 0
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	msgs, err := s.chat.Peek(c.Request.Context(), c.Param("id"), limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs, "count": len(msgs)})
}
