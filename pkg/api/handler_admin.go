package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/coupgame/coupd/pkg/models"
	"github.com/coupgame/coupd/pkg/services"
)

type bindChannelRequest struct {
	ChannelID string `json:"channel_id"`
}

type chatEndpointRequest struct {
	Platform    models.Platform `json:"platform"`
	EndpointURL string          `json:"endpoint_url"`
}

// createSessionHandler handles POST /admin/sessions.
func (s *Server) createSessionHandler(c *gin.Context) {
	var cfg services.SessionConfig
	if err := c.ShouldBindJSON(&cfg); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	sess, err := s.sessions.Create(c.Request.Context(), cfg)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, sess)
}

// updateSessionHandler handles PUT /admin/sessions/:id.
func (s *Server) updateSessionHandler(c *gin.Context) {
	var cfg services.SessionConfig
	if err := c.ShouldBindJSON(&cfg); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	sess, err := s.sessions.UpdateConfig(c.Request.Context(), c.Param("id"), cfg)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sess)
}

// startSessionHandler handles POST /admin/sessions/:id/start.
func (s *Server) startSessionHandler(c *gin.Context) {
	sess, err := s.sessions.Start(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sess)
}

// endSessionHandler handles POST /admin/sessions/:id/end.
func (s *Server) endSessionHandler(c *gin.Context) {
	sess, err := s.sessions.End(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sess)
}

// restartSessionHandler handles POST /admin/sessions/:id/restart.
func (s *Server) restartSessionHandler(c *gin.Context) {
	sess, err := s.sessions.Restart(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sess)
}

// bindDiscordHandler handles POST /admin/sessions/:id/discord-channel.
func (s *Server) bindDiscordHandler(c *gin.Context) {
	var req bindChannelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	sess, err := s.sessions.BindDiscord(c.Request.Context(), c.Param("id"), req.ChannelID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sess)
}

// unbindDiscordHandler handles DELETE /admin/sessions/:id/discord-channel.
func (s *Server) unbindDiscordHandler(c *gin.Context) {
	sess, err := s.sessions.UnbindDiscord(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sess)
}

// bindSlackHandler handles POST /admin/sessions/:id/slack-channel.
func (s *Server) bindSlackHandler(c *gin.Context) {
	var req bindChannelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	sess, err := s.sessions.BindSlack(c.Request.Context(), c.Param("id"), req.ChannelID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sess)
}

// unbindSlackHandler handles DELETE /admin/sessions/:id/slack-channel.
func (s *Server) unbindSlackHandler(c *gin.Context) {
	sess, err := s.sessions.UnbindSlack(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sess)
}

// registerChatEndpointHandler handles POST /admin/sessions/:id/chat-endpoints.
func (s *Server) registerChatEndpointHandler(c *gin.Context) {
	var req chatEndpointRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	ep, err := s.chat.RegisterEndpoint(c.Request.Context(), c.Param("id"), req.Platform, req.EndpointURL)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, ep)
}

// unregisterChatEndpointHandler handles
// DELETE /admin/sessions/:id/chat-endpoints/:platform.
func (s *Server) unregisterChatEndpointHandler(c *gin.Context) {
	err := s.chat.UnregisterEndpoint(c.Request.Context(), c.Param("id"), models.Platform(c.Param("platform")))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "endpoint removed"})
}
