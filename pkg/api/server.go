// Package api exposes the REST surface: thin gin handlers that validate
// requests, call the services, and shape responses.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/coupgame/coupd/pkg/database"
	"github.com/coupgame/coupd/pkg/services"
)

// Server wires the HTTP routes to the service layer.
type Server struct {
	db       *database.Client
	sessions *services.SessionService
	players  *services.PlayerService
	chat     *services.ChatService
	logger   *slog.Logger
}

// NewServer creates an API server.
func NewServer(db *database.Client, sessions *services.SessionService, players *services.PlayerService, chat *services.ChatService, logger *slog.Logger) *Server {
	return &Server{
		db:       db,
		sessions: sessions,
		players:  players,
		chat:     chat,
		logger:   logger.With("component", "api"),
	}
}

// Router builds the gin engine with every route registered.
func (s *Server) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(s.logger), identity())

	router.GET("/health", s.healthHandler)

	admin := router.Group("/admin", requirePrivilege(PrivilegeStartGame))
	{
		admin.POST("/sessions", s.createSessionHandler)
		admin.PUT("/sessions/:id", s.updateSessionHandler)
		admin.POST("/sessions/:id/start", s.startSessionHandler)
		admin.POST("/sessions/:id/end", s.endSessionHandler)
		admin.POST("/sessions/:id/restart", s.restartSessionHandler)
		admin.POST("/sessions/:id/discord-channel", s.bindDiscordHandler)
		admin.DELETE("/sessions/:id/discord-channel", s.unbindDiscordHandler)
		admin.POST("/sessions/:id/slack-channel", s.bindSlackHandler)
		admin.DELETE("/sessions/:id/slack-channel", s.unbindSlackHandler)
		admin.POST("/sessions/:id/chat-endpoints", s.registerChatEndpointHandler)
		admin.DELETE("/sessions/:id/chat-endpoints/:platform", s.unregisterChatEndpointHandler)
	}

	game := router.Group("/game")
	{
		game.GET("/sessions", s.listSessionsHandler)
		game.GET("/sessions/discord-channels", s.discordBindingsHandler)
		game.GET("/sessions/slack-channels", s.slackBindingsHandler)
		game.GET("/sessions/:id", s.getSessionHandler)
		game.GET("/sessions/:id/status", s.sessionStatusHandler)
		game.GET("/sessions/:id/turns", s.sessionTurnsHandler)
		game.POST("/sessions/:id/join", requireUser(), s.joinHandler)
		game.POST("/sessions/:id/leave", requireUser(), s.leaveHandler)
		game.POST("/sessions/:id/request-rematch", requireUser(), s.rematchHandler)

		game.POST("/actions/:id", requireUser(), s.setActionHandler)
		game.GET("/actions/:id", s.listActionsHandler)
		game.POST("/actions/:id/swap-return", requireUser(), s.swapReturnHandler)

		game.POST("/reactions/:id", requireUser(), s.setReactionHandler)
		game.GET("/reactions/:id", s.listReactionsHandler)

		game.GET("/state/:id", s.gameStateHandler)

		game.POST("/chat/:id/send", requireUser(), s.sendChatHandler)
		game.GET("/chat/:id/messages", s.chatMessagesHandler)
	}

	return router
}

// healthHandler handles GET /health.
func (s *Server) healthHandler(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	dbHealth := database.Health(ctx, s.db.Pool())
	if !dbHealth.Reachable {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":   "unhealthy",
			"database": dbHealth,
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":   "healthy",
		"database": dbHealth,
	})
}
