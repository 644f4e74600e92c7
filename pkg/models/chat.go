package models

import "time"

// Platform identifies the chat platform a message or endpoint belongs to.
type Platform string

// Chat platforms.
const (
	PlatformDiscord Platform = "discord"
	PlatformSlack   Platform = "slack"
	PlatformWeb     Platform = "web"
	PlatformLLM     Platform = "llm"
)

// ValidPlatform reports whether p is a known platform.
func ValidPlatform(p Platform) bool {
	switch p {
	case PlatformDiscord, PlatformSlack, PlatformWeb, PlatformLLM:
		return true
	}
	return false
}

// MaxChatContentLen is the length cap applied to queued chat content.
const MaxChatContentLen = 2000

// ChatMessage is one queued chat message awaiting broadcast. Ids are
// monotonic; gateways deduplicate re-sent batches on them.
type ChatMessage struct {
	ID        int64     `json:"id"`
	SessionID string    `json:"session_id"`
	Sender    string    `json:"sender"`
	Platform  Platform  `json:"platform"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// ChatEndpoint is a registered gateway push destination for one session
// and platform.
type ChatEndpoint struct {
	SessionID       string     `json:"session_id"`
	Platform        Platform   `json:"platform"`
	EndpointURL     string     `json:"endpoint_url"`
	Active          bool       `json:"is_active"`
	LastBroadcastAt *time.Time `json:"last_broadcast_at,omitempty"`
}

// TruncateContent enforces the chat content cap, replacing the overflow
// with a single ellipsis rune.
func TruncateContent(content string) string {
	runes := []rune(content)
	if len(runes) <= MaxChatContentLen {
		return content
	}
	return string(runes[:MaxChatContentLen-1]) + "…"
}
