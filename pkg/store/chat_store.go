package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/coupgame/coupd/pkg/models"
)

// ChatStore persists the per-session chat queue and the registered gateway
// push endpoints.
type ChatStore struct{}

// NewChatStore creates a ChatStore.
func NewChatStore() *ChatStore {
	return &ChatStore{}
}

// InsertMessage appends a message to the session's queue and fills in its
// monotonic id.
func (s *ChatStore) InsertMessage(ctx context.Context, db DB, msg *models.ChatMessage) error {
	err := db.QueryRow(ctx, `
		INSERT INTO chat_messages (session_id, sender, platform, content, created_at)
		VALUES ($1,$2,$3,$4,$5)
		RETURNING id`,
		msg.SessionID, msg.Sender, msg.Platform, msg.Content, msg.CreatedAt,
	).Scan(&msg.ID)
	if err != nil {
		return fmt.Errorf("inserting chat message for session %s: %w", msg.SessionID, err)
	}
	return nil
}

// ListMessages returns the session's queued messages in id order.
func (s *ChatStore) ListMessages(ctx context.Context, db DB, sessionID string, limit int) ([]*models.ChatMessage, error) {
	if limit <= 0 {
		limit = 500
	}
	rows, err := db.Query(ctx, `
		SELECT id, session_id, sender, platform, content, created_at
		FROM chat_messages WHERE session_id = $1 ORDER BY id LIMIT $2`, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing chat messages for session %s: %w", sessionID, err)
	}
	defer rows.Close()
	return scanMessages(rows)
}

// DeleteMessages removes a broadcast snapshot from the queue by id.
func (s *ChatStore) DeleteMessages(ctx context.Context, db DB, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := db.Exec(ctx, `DELETE FROM chat_messages WHERE id = ANY($1)`, ids)
	if err != nil {
		return fmt.Errorf("deleting %d chat messages: %w", len(ids), err)
	}
	return nil
}

// SessionsWithQueuedMessages lists the distinct session ids with pending
// chat, for the periodic broadcast tick.
func (s *ChatStore) SessionsWithQueuedMessages(ctx context.Context, db DB) ([]string, error) {
	rows, err := db.Query(ctx, `SELECT DISTINCT session_id FROM chat_messages ORDER BY session_id`)
	if err != nil {
		return nil, fmt.Errorf("listing sessions with queued chat: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// UpsertEndpoint registers (or re-points) a gateway push endpoint.
func (s *ChatStore) UpsertEndpoint(ctx context.Context, db DB, ep *models.ChatEndpoint) error {
	_, err := db.Exec(ctx, `
		INSERT INTO chat_endpoints (session_id, platform, endpoint_url, active, last_broadcast_at)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (session_id, platform)
		DO UPDATE SET endpoint_url = EXCLUDED.endpoint_url, active = EXCLUDED.active`,
		ep.SessionID, ep.Platform, ep.EndpointURL, ep.Active, ep.LastBroadcastAt,
	)
	if err != nil {
		return fmt.Errorf("upserting chat endpoint for session %s platform %s: %w",
			ep.SessionID, ep.Platform, err)
	}
	return nil
}

// DeleteEndpoint removes a registered endpoint.
func (s *ChatStore) DeleteEndpoint(ctx context.Context, db DB, sessionID string, platform models.Platform) error {
	_, err := db.Exec(ctx, `DELETE FROM chat_endpoints WHERE session_id = $1 AND platform = $2`,
		sessionID, platform)
	if err != nil {
		return fmt.Errorf("deleting chat endpoint for session %s platform %s: %w", sessionID, platform, err)
	}
	return nil
}

// ListActiveEndpoints returns the session's active push destinations.
func (s *ChatStore) ListActiveEndpoints(ctx context.Context, db DB, sessionID string) ([]*models.ChatEndpoint, error) {
	rows, err := db.Query(ctx, `
		SELECT session_id, platform, endpoint_url, active, last_broadcast_at
		FROM chat_endpoints WHERE session_id = $1 AND active ORDER BY platform`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("listing chat endpoints for session %s: %w", sessionID, err)
	}
	defer rows.Close()

	var out []*models.ChatEndpoint
	for rows.Next() {
		var ep models.ChatEndpoint
		if err := rows.Scan(&ep.SessionID, &ep.Platform, &ep.EndpointURL, &ep.Active, &ep.LastBroadcastAt); err != nil {
			return nil, err
		}
		out = append(out, &ep)
	}
	return out, rows.Err()
}

// MarkBroadcast records a successful delivery time for one endpoint.
func (s *ChatStore) MarkBroadcast(ctx context.Context, db DB, sessionID string, platform models.Platform, at time.Time) error {
	_, err := db.Exec(ctx, `UPDATE chat_endpoints SET last_broadcast_at = $3
		WHERE session_id = $1 AND platform = $2`, sessionID, platform, at)
	if err != nil {
		return fmt.Errorf("marking broadcast for session %s platform %s: %w", sessionID, platform, err)
	}
	return nil
}

func scanMessages(rows pgx.Rows) ([]*models.ChatMessage, error) {
	var out []*models.ChatMessage
	for rows.Next() {
		var msg models.ChatMessage
		if err := rows.Scan(&msg.ID, &msg.SessionID, &msg.Sender, &msg.Platform, &msg.Content, &msg.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &msg)
	}
	return out, rows.Err()
}
