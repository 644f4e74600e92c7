package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/coupgame/coupd/pkg/models"
)

// SessionStore persists game sessions, including the deck, the revealed
// pile, and the channel bindings the session owns.
type SessionStore struct{}

// NewSessionStore creates a SessionStore.
func NewSessionStore() *SessionStore {
	return &SessionStore{}
}

const sessionColumns = `id, name, status, current_phase, phase_end_time, turn_number, turn_limit,
	max_players, upgrades_enabled,
	action_minutes, lockout1_minutes, reaction_minutes, lockout2_minutes, broadcast_minutes, ending_minutes,
	rematch_count, winners, deck, revealed, turn_summary,
	discord_channel_id, slack_channel_id, created_at`

// Create inserts a new session row.
func (s *SessionStore) Create(ctx context.Context, db DB, sess *models.Session) error {
	_, err := db.Exec(ctx, `
		INSERT INTO game_sessions (
			id, name, status, current_phase, phase_end_time, turn_number, turn_limit,
			max_players, upgrades_enabled,
			action_minutes, lockout1_minutes, reaction_minutes, lockout2_minutes, broadcast_minutes, ending_minutes,
			rematch_count, winners, deck, revealed, turn_summary,
			discord_channel_id, slack_channel_id, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23)`,
		sess.ID, sess.Name, sess.Status, phasePtr(sess.CurrentPhase), sess.PhaseEndTime,
		sess.TurnNumber, sess.TurnLimit, sess.MaxPlayers, sess.UpgradesEnabled,
		sess.Durations.ActionMinutes, sess.Durations.Lockout1Minutes, sess.Durations.ReactionMinutes,
		sess.Durations.Lockout2Minutes, sess.Durations.BroadcastMinutes, sess.Durations.EndingMinutes,
		sess.RematchCount, sess.Winners,
		models.CardsToStrings(sess.Deck), models.CardsToStrings(sess.Revealed), sess.TurnSummary,
		sess.DiscordChannel, sess.SlackChannel, sess.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting session %s: %w", sess.ID, err)
	}
	return nil
}

// Get loads a session by id. Returns nil when the session does not exist.
func (s *SessionStore) Get(ctx context.Context, db DB, sessionID string) (*models.Session, error) {
	row := db.QueryRow(ctx, `SELECT `+sessionColumns+` FROM game_sessions WHERE id = $1`, sessionID)
	return scanSession(row)
}

// GetForUpdate loads a session by id with a row lock, serialising
// concurrent session-altering requests against the phase clock.
func (s *SessionStore) GetForUpdate(ctx context.Context, db DB, sessionID string) (*models.Session, error) {
	row := db.QueryRow(ctx, `SELECT `+sessionColumns+` FROM game_sessions WHERE id = $1 FOR UPDATE`, sessionID)
	return scanSession(row)
}

// ClaimDue locks and returns the most overdue active session whose phase
// deadline has passed, skipping rows already claimed by a concurrent
// worker. Returns nil when nothing is due.
func (s *SessionStore) ClaimDue(ctx context.Context, db DB, now time.Time) (*models.Session, error) {
	row := db.QueryRow(ctx, `
		SELECT `+sessionColumns+`
		FROM game_sessions
		WHERE status = 'active' AND phase_end_time IS NOT NULL AND phase_end_time <= $1
		ORDER BY phase_end_time
		LIMIT 1
		FOR UPDATE SKIP LOCKED`, now)
	return scanSession(row)
}

// List returns sessions filtered by status (optional), newest first.
func (s *SessionStore) List(ctx context.Context, db DB, status models.SessionStatus, limit, offset int) ([]*models.Session, error) {
	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	var (
		rows pgx.Rows
		err  error
	)
	if status != "" {
		rows, err = db.Query(ctx, `SELECT `+sessionColumns+` FROM game_sessions
			WHERE status = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`, status, limit, offset)
	} else {
		rows, err = db.Query(ctx, `SELECT `+sessionColumns+` FROM game_sessions
			ORDER BY created_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	}
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	defer rows.Close()
	return scanSessions(rows)
}

// Update writes every mutable session column.
func (s *SessionStore) Update(ctx context.Context, db DB, sess *models.Session) error {
	tag, err := db.Exec(ctx, `
		UPDATE game_sessions SET
			name = $2, status = $3, current_phase = $4, phase_end_time = $5,
			turn_number = $6, turn_limit = $7, max_players = $8, upgrades_enabled = $9,
			action_minutes = $10, lockout1_minutes = $11, reaction_minutes = $12,
			lockout2_minutes = $13, broadcast_minutes = $14, ending_minutes = $15,
			rematch_count = $16, winners = $17, deck = $18, revealed = $19, turn_summary = $20,
			discord_channel_id = $21, slack_channel_id = $22
		WHERE id = $1`,
		sess.ID, sess.Name, sess.Status, phasePtr(sess.CurrentPhase), sess.PhaseEndTime,
		sess.TurnNumber, sess.TurnLimit, sess.MaxPlayers, sess.UpgradesEnabled,
		sess.Durations.ActionMinutes, sess.Durations.Lockout1Minutes, sess.Durations.ReactionMinutes,
		sess.Durations.Lockout2Minutes, sess.Durations.BroadcastMinutes, sess.Durations.EndingMinutes,
		sess.RematchCount, sess.Winners,
		models.CardsToStrings(sess.Deck), models.CardsToStrings(sess.Revealed), sess.TurnSummary,
		sess.DiscordChannel, sess.SlackChannel,
	)
	if err != nil {
		return fmt.Errorf("updating session %s: %w", sess.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("updating session %s: no row", sess.ID)
	}
	return nil
}

// ListDiscordBindings returns every session with a bound Discord channel.
// Gateways call this at startup to rebuild their routing tables.
func (s *SessionStore) ListDiscordBindings(ctx context.Context, db DB) ([]*models.Session, error) {
	rows, err := db.Query(ctx, `SELECT `+sessionColumns+` FROM game_sessions
		WHERE discord_channel_id IS NOT NULL ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("listing discord bindings: %w", err)
	}
	defer rows.Close()
	return scanSessions(rows)
}

// ListSlackBindings returns every session with a bound Slack channel.
func (s *SessionStore) ListSlackBindings(ctx context.Context, db DB) ([]*models.Session, error) {
	rows, err := db.Query(ctx, `SELECT `+sessionColumns+` FROM game_sessions
		WHERE slack_channel_id IS NOT NULL ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("listing slack bindings: %w", err)
	}
	defer rows.Close()
	return scanSessions(rows)
}

func scanSessions(rows pgx.Rows) ([]*models.Session, error) {
	var out []*models.Session
	for rows.Next() {
		sess, err := scanSessionFrom(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

func scanSession(row pgx.Row) (*models.Session, error) {
	sess, err := scanSessionFrom(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return sess, err
}

func scanSessionFrom(row pgx.Row) (*models.Session, error) {
	var (
		sess     models.Session
		phase    *string
		winners  []string
		deck     []string
		revealed []string
	)
	err := row.Scan(
		&sess.ID, &sess.Name, &sess.Status, &phase, &sess.PhaseEndTime,
		&sess.TurnNumber, &sess.TurnLimit, &sess.MaxPlayers, &sess.UpgradesEnabled,
		&sess.Durations.ActionMinutes, &sess.Durations.Lockout1Minutes, &sess.Durations.ReactionMinutes,
		&sess.Durations.Lockout2Minutes, &sess.Durations.BroadcastMinutes, &sess.Durations.EndingMinutes,
		&sess.RematchCount, &winners, &deck, &revealed, &sess.TurnSummary,
		&sess.DiscordChannel, &sess.SlackChannel, &sess.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if phase != nil {
		p := models.Phase(*phase)
		sess.CurrentPhase = &p
	}
	sess.Winners = winners
	sess.Deck = models.StringsToCards(deck)
	sess.Revealed = models.StringsToCards(revealed)
	return &sess, nil
}

func phasePtr(p *models.Phase) *string {
	if p == nil {
		return nil
	}
	v := string(*p)
	return &v
}
