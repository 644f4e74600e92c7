package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/coupgame/coupd/pkg/models"
	"github.com/coupgame/coupd/pkg/store"
)

// EventPusher forwards a queued chat message to the LLM reasoning server.
// Implementations are best-effort; failures must never surface to the
// queueing caller.
type EventPusher interface {
	PushChatEvent(ctx context.Context, msg *models.ChatMessage)
}

// ChatService implements the per-session chat queue and the gateway
// endpoint registry.
type ChatService struct {
	pool     *pgxpool.Pool
	sessions *store.SessionStore
	chat     *store.ChatStore
	pusher   EventPusher
	logger   *slog.Logger
}

// NewChatService creates a ChatService. pusher may be nil; queueing then
// skips the LLM push.
func NewChatService(pool *pgxpool.Pool, pusher EventPusher, logger *slog.Logger) *ChatService {
	return &ChatService{
		pool:     pool,
		sessions: store.NewSessionStore(),
		chat:     store.NewChatStore(),
		pusher:   pusher,
		logger:   logger.With("component", "chat_service"),
	}
}

// Queue appends a message to the session's broadcast queue, truncating
// oversized content, and fires a best-effort push to the reasoning server
// in the background.
func (s *ChatService) Queue(ctx context.Context, sessionID, sender string, platform models.Platform, content string) (*models.ChatMessage, error) {
	if sender == "" {
		return nil, NewValidationError("sender", "must not be empty")
	}
	if content == "" {
		return nil, NewValidationError("content", "must not be empty")
	}
	if !models.ValidPlatform(platform) {
		return nil, NewValidationError("platform", fmt.Sprintf("unknown platform %q", platform))
	}

	sess, err := s.sessions.Get(ctx, s.pool, sessionID)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, notFoundf("session %s", sessionID)
	}

	msg := &models.ChatMessage{
		SessionID: sessionID,
		Sender:    sender,
		Platform:  platform,
		Content:   models.TruncateContent(content),
		CreatedAt: time.Now().UTC(),
	}
	if err := s.chat.InsertMessage(ctx, s.pool, msg); err != nil {
		return nil, err
	}

	// The push runs detached from the request: its failure or latency must
	// never block the queue append.
	if s.pusher != nil {
		go s.pusher.PushChatEvent(context.WithoutCancel(ctx), msg)
	}
	return msg, nil
}

// Peek returns the queued messages without consuming them.
func (s *ChatService) Peek(ctx context.Context, sessionID string, limit int) ([]*models.ChatMessage, error) {
	sess, err := s.sessions.Get(ctx, s.pool, sessionID)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, notFoundf("session %s", sessionID)
	}
	msgs, err := s.chat.ListMessages(ctx, s.pool, sessionID, limit)
	if err != nil {
		return nil, err
	}
	if msgs == nil {
		msgs = []*models.ChatMessage{}
	}
	return msgs, nil
}

// RegisterEndpoint registers (or re-points) a gateway push destination for
// the session.
func (s *ChatService) RegisterEndpoint(ctx context.Context, sessionID string, platform models.Platform, endpointURL string) (*models.ChatEndpoint, error) {
	if !models.ValidPlatform(platform) {
		return nil, NewValidationError("platform", fmt.Sprintf("unknown platform %q", platform))
	}
	if endpointURL == "" {
		return nil, NewValidationError("endpoint_url", "must not be empty")
	}

	sess, err := s.sessions.Get(ctx, s.pool, sessionID)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, notFoundf("session %s", sessionID)
	}

	ep := &models.ChatEndpoint{
		SessionID:   sessionID,
		Platform:    platform,
		EndpointURL: endpointURL,
		Active:      true,
	}
	if err := s.chat.UpsertEndpoint(ctx, s.pool, ep); err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "Chat endpoint registered",
		"session_id", sessionID, "platform", string(platform), "endpoint_url", endpointURL)
	return ep, nil
}

// UnregisterEndpoint removes a gateway push destination.
func (s *ChatService) UnregisterEndpoint(ctx context.Context, sessionID string, platform models.Platform) error {
	sess, err := s.sessions.Get(ctx, s.pool, sessionID)
	if err != nil {
		return err
	}
	if sess == nil {
		return notFoundf("session %s", sessionID)
	}
	if err := s.chat.DeleteEndpoint(ctx, s.pool, sessionID, platform); err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "Chat endpoint unregistered",
		"session_id", sessionID, "platform", string(platform))
	return nil
}
