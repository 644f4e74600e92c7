// Package fanout delivers queued chat to registered gateway endpoints and
// pushes chat events to the LLM reasoning server. All delivery is
// best-effort; failures are logged and never block the game cycle.
package fanout

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"github.com/coupgame/coupd/pkg/models"
	"github.com/coupgame/coupd/pkg/store"
)

// Defaults for the broadcast loop.
const (
	DefaultTickInterval    = 5 * time.Minute
	DefaultEndpointTimeout = 10 * time.Second
	snapshotLimit          = 500
)

// BatchMessage is one message inside a gateway push payload.
type BatchMessage struct {
	ID        int64           `json:"id"`
	Sender    string          `json:"sender"`
	Platform  models.Platform `json:"platform"`
	Content   string          `json:"content"`
	Timestamp time.Time       `json:"timestamp"`
}

// BatchPayload is the body POSTed to each registered gateway endpoint.
// Gateways deduplicate on message ids; the same batch may arrive twice.
type BatchPayload struct {
	SessionID     string         `json:"session_id"`
	BroadcastTime string         `json:"broadcast_time"`
	MessageCount  int            `json:"message_count"`
	Messages      []BatchMessage `json:"messages"`
}

// Broadcaster snapshots each session's chat queue and POSTs it to every
// active endpoint in parallel. Delivery is at-least-once per endpoint; the
// queue is cleared after the attempt regardless of outcome, so a batch is
// never re-sent once any broadcast pass has run.
type Broadcaster struct {
	pool            *pgxpool.Pool
	chat            *store.ChatStore
	client          *http.Client
	endpointTimeout time.Duration
	tickInterval    time.Duration
	logger          *slog.Logger

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewBroadcaster creates a Broadcaster. Zero timeouts and intervals fall
// back to the defaults.
func NewBroadcaster(pool *pgxpool.Pool, endpointTimeout, tickInterval time.Duration, logger *slog.Logger) *Broadcaster {
	if endpointTimeout <= 0 {
		endpointTimeout = DefaultEndpointTimeout
	}
	if tickInterval <= 0 {
		tickInterval = DefaultTickInterval
	}
	return &Broadcaster{
		pool:            pool,
		chat:            store.NewChatStore(),
		client:          &http.Client{Timeout: endpointTimeout},
		endpointTimeout: endpointTimeout,
		tickInterval:    tickInterval,
		logger:          logger.With("component", "broadcaster"),
		stopCh:          make(chan struct{}),
	}
}

// Start launches the periodic broadcast tick that drains sessions whose
// queues filled up between broadcast phases.
func (b *Broadcaster) Start(ctx context.Context) {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		ticker := time.NewTicker(b.tickInterval)
		defer ticker.Stop()
		b.logger.InfoContext(ctx, "Broadcast tick started", "interval", b.tickInterval.String())
		for {
			select {
			case <-b.stopCh:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				b.tick(ctx)
			}
		}
	}()
}

// Stop halts the tick loop and waits for an in-flight pass to finish.
func (b *Broadcaster) Stop() {
	b.stopOnce.Do(func() { close(b.stopCh) })
	b.wg.Wait()
}

func (b *Broadcaster) tick(ctx context.Context) {
	sessionIDs, err := b.chat.SessionsWithQueuedMessages(ctx, b.pool)
	if err != nil {
		b.logger.ErrorContext(ctx, "Broadcast tick failed to list queued sessions", "error", err)
		return
	}
	for _, sessionID := range sessionIDs {
		if err := b.Broadcast(ctx, sessionID); err != nil {
			b.logger.ErrorContext(ctx, "Broadcast failed", "session_id", sessionID, "error", err)
		}
	}
}

// Broadcast snapshots the session's queue, pushes the batch to every active
// endpoint in parallel, and clears the snapshotted messages. With zero
// registered endpoints the queue is still cleared; that acknowledged loss
// is logged as a warning.
func (b *Broadcaster) Broadcast(ctx context.Context, sessionID string) error {
	msgs, err := b.chat.ListMessages(ctx, b.pool, sessionID, snapshotLimit)
	if err != nil {
		return err
	}
	if len(msgs) == 0 {
		return nil
	}

	endpoints, err := b.chat.ListActiveEndpoints(ctx, b.pool, sessionID)
	if err != nil {
		return err
	}

	ids := make([]int64, len(msgs))
	for i, m := range msgs {
		ids[i] = m.ID
	}

	if len(endpoints) == 0 {
		b.logger.WarnContext(ctx, "Clearing chat queue with no registered endpoints",
			"session_id", sessionID, "dropped_messages", len(msgs))
		return b.chat.DeleteMessages(ctx, b.pool, ids)
	}

	payload := buildBatch(sessionID, msgs)
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding broadcast payload for session %s: %w", sessionID, err)
	}

	now := time.Now().UTC()
	g, gctx := errgroup.WithContext(ctx)
	for _, ep := range endpoints {
		g.Go(func() error {
			if err := b.push(gctx, ep.EndpointURL, body); err != nil {
				b.logger.WarnContext(gctx, "Endpoint push failed",
					"session_id", sessionID, "platform", string(ep.Platform),
					"endpoint_url", ep.EndpointURL, "error", err)
				return nil
			}
			if err := b.chat.MarkBroadcast(gctx, b.pool, sessionID, ep.Platform, now); err != nil {
				b.logger.ErrorContext(gctx, "Failed to record broadcast time",
					"session_id", sessionID, "platform", string(ep.Platform), "error", err)
			}
			return nil
		})
	}
	_ = g.Wait()

	b.logger.InfoContext(ctx, "Broadcast complete",
		"session_id", sessionID, "messages", len(msgs), "endpoints", len(endpoints))
	return b.chat.DeleteMessages(ctx, b.pool, ids)
}

func (b *Broadcaster) push(ctx context.Context, url string, body []byte) error {
	ctx, cancel := context.WithTimeout(ctx, b.endpointTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building push request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("endpoint returned status %d", resp.StatusCode)
	}
	return nil
}

func buildBatch(sessionID string, msgs []*models.ChatMessage) BatchPayload {
	payload := BatchPayload{
		SessionID:     sessionID,
		BroadcastTime: time.Now().UTC().Format("2006-01-02T15:04:05Z"),
		MessageCount:  len(msgs),
		Messages:      make([]BatchMessage, 0, len(msgs)),
	}
	for _, m := range msgs {
		payload.Messages = append(payload.Messages, BatchMessage{
			ID:        m.ID,
			Sender:    m.Sender,
			Platform:  m.Platform,
			Content:   m.Content,
			Timestamp: m.CreatedAt,
		})
	}
	return payload
}
