package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/coupgame/coupd/pkg/models"
)

// ReactionStore persists per-turn reactions. The serial id doubles as the
// resolver's tie-break ordering.
type ReactionStore struct{}

// NewReactionStore creates a ReactionStore.
func NewReactionStore() *ReactionStore {
	return &ReactionStore{}
}

const reactionColumns = `id, session_id, turn_number, reactor_user_id, actor_user_id,
	target_action, kind, block_with_role, locked, resolved, created_at`

// Upsert records a reaction, overwriting any earlier reaction by the same
// reactor for the same (actor, target action) tuple this turn. The replaced
// row keeps its original id slot semantics by being deleted and re-inserted,
// so a changed mind is ordered by its latest submission.
func (s *ReactionStore) Upsert(ctx context.Context, db DB, re *models.Reaction) (*models.Reaction, error) {
	_, err := db.Exec(ctx, `
		DELETE FROM reactions
		WHERE session_id = $1 AND turn_number = $2 AND reactor_user_id = $3
		  AND actor_user_id = $4 AND target_action = $5 AND NOT locked`,
		re.SessionID, re.TurnNumber, re.ReactorUserID, re.ActorUserID, re.TargetAction,
	)
	if err != nil {
		return nil, fmt.Errorf("replacing reaction: %w", err)
	}

	row := db.QueryRow(ctx, `
		INSERT INTO reactions (
			session_id, turn_number, reactor_user_id, actor_user_id,
			target_action, kind, block_with_role, locked, resolved, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,false,false,$8)
		RETURNING `+reactionColumns,
		re.SessionID, re.TurnNumber, re.ReactorUserID, re.ActorUserID,
		re.TargetAction, re.Kind, nullIfEmpty(string(re.BlockWithRole)), re.CreatedAt,
	)
	saved, err := scanReactionFrom(row)
	if err != nil {
		return nil, fmt.Errorf("inserting reaction: %w", err)
	}
	return saved, nil
}

// ListForTurn returns the session's reactions for one turn ordered by
// insertion id.
func (s *ReactionStore) ListForTurn(ctx context.Context, db DB, sessionID string, turnNumber int) ([]*models.Reaction, error) {
	rows, err := db.Query(ctx, `SELECT `+reactionColumns+` FROM reactions
		WHERE session_id = $1 AND turn_number = $2 ORDER BY id`, sessionID, turnNumber)
	if err != nil {
		return nil, fmt.Errorf("listing reactions for session %s turn %d: %w", sessionID, turnNumber, err)
	}
	defer rows.Close()
	return scanReactions(rows)
}

// ListUnresolvedForTurn returns the not-yet-resolved reactions the resolver
// consumes, ordered by insertion id.
func (s *ReactionStore) ListUnresolvedForTurn(ctx context.Context, db DB, sessionID string, turnNumber int) ([]*models.Reaction, error) {
	rows, err := db.Query(ctx, `SELECT `+reactionColumns+` FROM reactions
		WHERE session_id = $1 AND turn_number = $2 AND NOT resolved ORDER BY id`, sessionID, turnNumber)
	if err != nil {
		return nil, fmt.Errorf("listing unresolved reactions for session %s turn %d: %w", sessionID, turnNumber, err)
	}
	defer rows.Close()
	return scanReactions(rows)
}

// LockTurn freezes every reaction of the turn. Fired when the reaction
// phase closes.
func (s *ReactionStore) LockTurn(ctx context.Context, db DB, sessionID string, turnNumber int) error {
	_, err := db.Exec(ctx, `UPDATE reactions SET locked = true
		WHERE session_id = $1 AND turn_number = $2`, sessionID, turnNumber)
	if err != nil {
		return fmt.Errorf("locking reactions for session %s turn %d: %w", sessionID, turnNumber, err)
	}
	return nil
}

// MarkTurnResolved flags every reaction of the turn as consumed by the
// resolver.
func (s *ReactionStore) MarkTurnResolved(ctx context.Context, db DB, sessionID string, turnNumber int) error {
	_, err := db.Exec(ctx, `UPDATE reactions SET resolved = true
		WHERE session_id = $1 AND turn_number = $2`, sessionID, turnNumber)
	if err != nil {
		return fmt.Errorf("resolving reactions for session %s turn %d: %w", sessionID, turnNumber, err)
	}
	return nil
}

// DeleteBySession removes every reaction for the session. Used on restart
// and rematch.
func (s *ReactionStore) DeleteBySession(ctx context.Context, db DB, sessionID string) error {
	_, err := db.Exec(ctx, `DELETE FROM reactions WHERE session_id = $1`, sessionID)
	if err != nil {
		return fmt.Errorf("deleting reactions for session %s: %w", sessionID, err)
	}
	return nil
}

func scanReactions(rows pgx.Rows) ([]*models.Reaction, error) {
	var out []*models.Reaction
	for rows.Next() {
		re, err := scanReactionFrom(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, re)
	}
	return out, rows.Err()
}

func scanReactionFrom(row pgx.Row) (*models.Reaction, error) {
	var (
		re        models.Reaction
		blockRole *string
	)
	err := row.Scan(
		&re.ID, &re.SessionID, &re.TurnNumber, &re.ReactorUserID, &re.ActorUserID,
		&re.TargetAction, &re.Kind, &blockRole, &re.Locked, &re.Resolved, &re.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if blockRole != nil {
		re.BlockWithRole = models.Card(*blockRole)
	}
	return &re, nil
}
