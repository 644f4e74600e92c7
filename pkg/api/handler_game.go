package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/coupgame/coupd/pkg/models"
)

type setActionRequest struct {
	Action                models.ActionKind `json:"action"`
	TargetDisplayName     string            `json:"target_display_name"`
	ClaimedRole           models.Card       `json:"claimed_role"`
	UpgradeEnabled        bool              `json:"upgrade_enabled"`
	AssassinationPriority models.Card       `json:"assassination_priority"`
}

type setReactionRequest struct {
	TargetPlayer  string              `json:"target_player"`
	ReactionType  models.ReactionKind `json:"reaction_type"`
	BlockWithRole models.Card         `json:"block_with_role"`
}

type swapReturnRequest struct {
	Cards []models.Card `json:"cards"`
}

// listSessionsHandler handles GET /game/sessions.
func (s *Server) listSessionsHandler(c *gin.Context) {
	limit := 20
	offset := 0
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 100 {
			limit = n
		}
	}
	if v := c.Query("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}

	sessions, err := s.sessions.List(c.Request.Context(), models.SessionStatus(c.Query("status")), limit, offset)
	if err != nil {
		respondError(c, err)
		return
	}
	if sessions == nil {
		sessions = []*models.Session{}
	}
	c.JSON(http.StatusOK, gin.H{"sessions": sessions, "count": len(sessions)})
}

// getSessionHandler handles GET /game/sessions/:id.
func (s *Server) getSessionHandler(c *gin.Context) {
	sess, err := s.sessions.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sess)
}

// sessionStatusHandler handles GET /game/sessions/:id/status. Available in
// every session status, including terminal ones.
func (s *Server) sessionStatusHandler(c *gin.Context) {
	sess, err := s.sessions.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"session_id":             sess.ID,
		"status":                 sess.Status,
		"current_phase":          sess.CurrentPhase,
		"phase_end_time":         sess.PhaseEndTime,
		"turn_number":            sess.TurnNumber,
		"time_remaining_seconds": sess.TimeRemaining(time.Now().UTC()),
		"winners":                sess.Winners,
	})
}

// sessionTurnsHandler handles GET /game/sessions/:id/turns.
func (s *Server) sessionTurnsHandler(c *gin.Context) {
	turns, err := s.sessions.Turns(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	if turns == nil {
		turns = []*models.TurnResult{}
	}
	c.JSON(http.StatusOK, gin.H{"turns": turns, "count": len(turns)})
}

// discordBindingsHandler handles GET /game/sessions/discord-channels.
// Consumed unauthenticated by gateways at startup.
func (s *Server) discordBindingsHandler(c *gin.Context) {
	bindings, err := s.sessions.DiscordBindings(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"bindings": bindings})
}

// slackBindingsHandler handles GET /game/sessions/slack-channels.
func (s *Server) slackBindingsHandler(c *gin.Context) {
	bindings, err := s.sessions.SlackBindings(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"bindings": bindings})
}

// joinHandler handles POST /game/sessions/:id/join.
func (s *Server) joinHandler(c *gin.Context) {
	player, err := s.players.Join(c.Request.Context(), c.Param("id"), callerID(c), callerName(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, player.PublicView())
}

// leaveHandler handles POST /game/sessions/:id/leave.
func (s *Server) leaveHandler(c *gin.Context) {
	if err := s.players.Leave(c.Request.Context(), c.Param("id"), callerID(c)); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "left session"})
}

// rematchHandler handles POST /game/sessions/:id/request-rematch.
func (s *Server) rematchHandler(c *gin.Context) {
	sess, err := s.sessions.Rematch(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sess)
}

// setActionHandler handles POST /game/actions/:id.
func (s *Server) setActionHandler(c *gin.Context) {
	var req setActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	var upgrade *models.UpgradeFlags
	if req.UpgradeEnabled && req.AssassinationPriority != "" {
		upgrade = &models.UpgradeFlags{AssassinationPriority: req.AssassinationPriority}
	}

	player, err := s.players.SetPendingAction(c.Request.Context(), c.Param("id"), callerID(c),
		req.Action, req.TargetDisplayName, upgrade)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, player.PublicView())
}

// listActionsHandler handles GET /game/actions/:id.
func (s *Server) listActionsHandler(c *gin.Context) {
	actions, err := s.players.VisibleActions(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"actions": actions})
}

// swapReturnHandler handles POST /game/actions/:id/swap-return.
func (s *Server) swapReturnHandler(c *gin.Context) {
	var req swapReturnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	player, err := s.players.SwapReturn(c.Request.Context(), c.Param("id"), callerID(c), req.Cards)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"user_id":    player.UserID,
		"hand_count": player.HandCount(),
	})
}

// setReactionHandler handles POST /game/reactions/:id.
func (s *Server) setReactionHandler(c *gin.Context) {
	var req setReactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	reaction, err := s.players.SetReaction(c.Request.Context(), c.Param("id"), callerID(c),
		req.TargetPlayer, req.ReactionType, req.BlockWithRole)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, reaction)
}

// listReactionsHandler handles GET /game/reactions/:id.
func (s *Server) listReactionsHandler(c *gin.Context) {
	view, err := s.players.VisibleReactions(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// gameStateHandler handles GET /game/state/:id. The caller's own hand is
// included only when the request is authenticated.
func (s *Server) gameStateHandler(c *gin.Context) {
	view, err := s.players.GameState(c.Request.Context(), c.Param("id"), callerID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}
