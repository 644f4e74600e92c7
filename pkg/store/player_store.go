package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/coupgame/coupd/pkg/models"
)

// PlayerStore persists per-session player game states.
type PlayerStore struct{}

// NewPlayerStore creates a PlayerStore.
func NewPlayerStore() *PlayerStore {
	return &PlayerStore{}
}

const playerColumns = `user_id, session_id, display_name, coins, debt, hand, alive,
	pending_action, pending_target, upgrade_flags, joined_at`

// Create inserts a player state for a newly joined player.
func (s *PlayerStore) Create(ctx context.Context, db DB, p *models.PlayerState) error {
	upgrade, err := marshalUpgrade(p.Upgrade)
	if err != nil {
		return err
	}
	_, err = db.Exec(ctx, `
		INSERT INTO player_states (
			user_id, session_id, display_name, coins, debt, hand, alive,
			pending_action, pending_target, upgrade_flags, joined_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		p.UserID, p.SessionID, p.DisplayName, p.Coins, p.Debt,
		models.CardsToStrings(p.Hand), p.Alive,
		nullIfEmpty(string(p.PendingAction)), nullIfEmpty(p.PendingTarget), upgrade, p.JoinedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting player %s in session %s: %w", p.UserID, p.SessionID, err)
	}
	return nil
}

// Get loads one player's state. Returns nil when absent.
func (s *PlayerStore) Get(ctx context.Context, db DB, sessionID, userID string) (*models.PlayerState, error) {
	row := db.QueryRow(ctx, `SELECT `+playerColumns+` FROM player_states
		WHERE session_id = $1 AND user_id = $2`, sessionID, userID)
	p, err := scanPlayerFrom(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return p, err
}

// GetForUpdate loads one player's state with a row lock. Concurrent
// submissions for the same player serialise here; last write wins.
func (s *PlayerStore) GetForUpdate(ctx context.Context, db DB, sessionID, userID string) (*models.PlayerState, error) {
	row := db.QueryRow(ctx, `SELECT `+playerColumns+` FROM player_states
		WHERE session_id = $1 AND user_id = $2 FOR UPDATE`, sessionID, userID)
	p, err := scanPlayerFrom(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return p, err
}

// ListBySession returns every player in the session in insertion order
// (joined_at, then user_id) — the order the resolver iterates in.
func (s *PlayerStore) ListBySession(ctx context.Context, db DB, sessionID string) ([]*models.PlayerState, error) {
	rows, err := db.Query(ctx, `SELECT `+playerColumns+` FROM player_states
		WHERE session_id = $1 ORDER BY joined_at, user_id`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("listing players for session %s: %w", sessionID, err)
	}
	defer rows.Close()

	var out []*models.PlayerState
	for rows.Next() {
		p, err := scanPlayerFrom(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Update writes every mutable player column.
func (s *PlayerStore) Update(ctx context.Context, db DB, p *models.PlayerState) error {
	upgrade, err := marshalUpgrade(p.Upgrade)
	if err != nil {
		return err
	}
	tag, err := db.Exec(ctx, `
		UPDATE player_states SET
			display_name = $3, coins = $4, debt = $5, hand = $6, alive = $7,
			pending_action = $8, pending_target = $9, upgrade_flags = $10
		WHERE session_id = $1 AND user_id = $2`,
		p.SessionID, p.UserID, p.DisplayName, p.Coins, p.Debt,
		models.CardsToStrings(p.Hand), p.Alive,
		nullIfEmpty(string(p.PendingAction)), nullIfEmpty(p.PendingTarget), upgrade,
	)
	if err != nil {
		return fmt.Errorf("updating player %s in session %s: %w", p.UserID, p.SessionID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("updating player %s in session %s: no row", p.UserID, p.SessionID)
	}
	return nil
}

// Delete removes a player from a session.
func (s *PlayerStore) Delete(ctx context.Context, db DB, sessionID, userID string) error {
	_, err := db.Exec(ctx, `DELETE FROM player_states WHERE session_id = $1 AND user_id = $2`,
		sessionID, userID)
	if err != nil {
		return fmt.Errorf("deleting player %s from session %s: %w", userID, sessionID, err)
	}
	return nil
}

// DeleteBySession removes every player in the session.
func (s *PlayerStore) DeleteBySession(ctx context.Context, db DB, sessionID string) error {
	_, err := db.Exec(ctx, `DELETE FROM player_states WHERE session_id = $1`, sessionID)
	if err != nil {
		return fmt.Errorf("deleting players for session %s: %w", sessionID, err)
	}
	return nil
}

// Count returns the number of players in the session.
func (s *PlayerStore) Count(ctx context.Context, db DB, sessionID string) (int, error) {
	var n int
	err := db.QueryRow(ctx, `SELECT COUNT(*) FROM player_states WHERE session_id = $1`, sessionID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting players for session %s: %w", sessionID, err)
	}
	return n, nil
}

// ClearPendingActions drops every player's pending action, target, and
// upgrade flags for the session. Runs after broadcast, before the next turn.
func (s *PlayerStore) ClearPendingActions(ctx context.Context, db DB, sessionID string) error {
	_, err := db.Exec(ctx, `UPDATE player_states
		SET pending_action = NULL, pending_target = NULL, upgrade_flags = NULL
		WHERE session_id = $1`, sessionID)
	if err != nil {
		return fmt.Errorf("clearing pending actions for session %s: %w", sessionID, err)
	}
	return nil
}

func scanPlayerFrom(row pgx.Row) (*models.PlayerState, error) {
	var (
		p             models.PlayerState
		hand          []string
		pendingAction *string
		pendingTarget *string
		upgradeJSON   []byte
	)
	err := row.Scan(
		&p.UserID, &p.SessionID, &p.DisplayName, &p.Coins, &p.Debt, &hand, &p.Alive,
		&pendingAction, &pendingTarget, &upgradeJSON, &p.JoinedAt,
	)
	if err != nil {
		return nil, err
	}
	p.Hand = models.StringsToCards(hand)
	if pendingAction != nil {
		p.PendingAction = models.ActionKind(*pendingAction)
	}
	if pendingTarget != nil {
		p.PendingTarget = *pendingTarget
	}
	if len(upgradeJSON) > 0 {
		var flags models.UpgradeFlags
		if err := json.Unmarshal(upgradeJSON, &flags); err != nil {
			return nil, fmt.Errorf("decoding upgrade flags for player %s: %w", p.UserID, err)
		}
		p.Upgrade = &flags
	}
	return &p, nil
}

func marshalUpgrade(flags *models.UpgradeFlags) ([]byte, error) {
	if flags == nil {
		return nil, nil
	}
	data, err := json.Marshal(flags)
	if err != nil {
		return nil, fmt.Errorf("encoding upgrade flags: %w", err)
	}
	return data, nil
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
