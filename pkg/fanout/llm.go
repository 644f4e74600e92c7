package fanout

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/coupgame/coupd/pkg/models"
)

// DefaultLLMTimeout bounds each push to the reasoning server.
const DefaultLLMTimeout = 5 * time.Second

// ChatEventPayload is the body POSTed to the reasoning server for each
// queued chat message.
type ChatEventPayload struct {
	EventType            string `json:"event_type"`
	SourcePlatform       string `json:"source_platform"`
	SenderID             string `json:"sender_id"`
	SenderIsLLM          bool   `json:"sender_is_llm"`
	GameID               string `json:"game_id"`
	BroadcastToAllAgents bool   `json:"broadcast_to_all_agents"`
	Payload              any    `json:"payload"`
}

// LLMPusher forwards chat events to the reasoning server so LLM players
// can observe table talk. Pushes are fire-and-forget: failures are logged
// and dropped. A pusher built with an empty URL disables itself.
type LLMPusher struct {
	reasoningURL string
	client       *http.Client
	logger       *slog.Logger
}

// NewLLMPusher creates an LLMPusher. reasoningURL may be empty to disable
// pushes entirely.
func NewLLMPusher(reasoningURL string, timeout time.Duration, logger *slog.Logger) *LLMPusher {
	if timeout <= 0 {
		timeout = DefaultLLMTimeout
	}
	return &LLMPusher{
		reasoningURL: reasoningURL,
		client:       &http.Client{Timeout: timeout},
		logger:       logger.With("component", "llm_pusher"),
	}
}

// Enabled reports whether a reasoning server is configured.
func (p *LLMPusher) Enabled() bool {
	return p != nil && p.reasoningURL != ""
}

// PushChatEvent sends one chat message to the reasoning server.
func (p *LLMPusher) PushChatEvent(ctx context.Context, msg *models.ChatMessage) {
	if !p.Enabled() {
		return
	}

	event := ChatEventPayload{
		EventType:            "chat_message",
		SourcePlatform:       string(msg.Platform),
		SenderID:             msg.Sender,
		SenderIsLLM:          msg.Platform == models.PlatformLLM,
		GameID:               msg.SessionID,
		BroadcastToAllAgents: true,
		Payload: map[string]any{
			"message_id": msg.ID,
			"content":    msg.Content,
			"timestamp":  msg.CreatedAt.UTC().Format(time.RFC3339),
		},
	}
	p.post(ctx, event)
}

// PushGameEvent sends a turn summary or phase change notice to the
// reasoning server.
func (p *LLMPusher) PushGameEvent(ctx context.Context, sessionID, eventType string, payload any) {
	if !p.Enabled() {
		return
	}
	p.post(ctx, ChatEventPayload{
		EventType:            eventType,
		SourcePlatform:       string(models.PlatformWeb),
		SenderID:             "game-server",
		GameID:               sessionID,
		BroadcastToAllAgents: true,
		Payload:              payload,
	})
}

func (p *LLMPusher) post(ctx context.Context, event ChatEventPayload) {
	body, err := json.Marshal(event)
	if err != nil {
		p.logger.ErrorContext(ctx, "Failed to encode LLM event", "error", err)
		return
	}

	url := p.reasoningURL + "/coup-events/event"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		p.logger.ErrorContext(ctx, "Failed to build LLM push request", "error", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		p.logger.WarnContext(ctx, "LLM push failed",
			"game_id", event.GameID, "event_type", event.EventType, "error", err)
		return
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode >= 300 {
		p.logger.WarnContext(ctx, "LLM push rejected",
			"game_id", event.GameID, "event_type", event.EventType, "status", resp.StatusCode)
	}
}
