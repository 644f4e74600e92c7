package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/coupgame/coupd/pkg/models"
)

// TurnResultStore persists the durable turn history.
type TurnResultStore struct{}

// NewTurnResultStore creates a TurnResultStore.
func NewTurnResultStore() *TurnResultStore {
	return &TurnResultStore{}
}

// Insert appends one turn result to the session's history.
func (s *TurnResultStore) Insert(ctx context.Context, db DB, result *models.TurnResult) error {
	outcomes, err := json.Marshal(result.Outcomes)
	if err != nil {
		return fmt.Errorf("encoding turn outcomes: %w", err)
	}
	err = db.QueryRow(ctx, `
		INSERT INTO turn_results (session_id, turn_number, outcomes, eliminated, summary, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
		RETURNING id`,
		result.SessionID, result.TurnNumber, outcomes, result.Eliminated, result.Summary, result.CreatedAt,
	).Scan(&result.ID)
	if err != nil {
		return fmt.Errorf("inserting turn result for session %s turn %d: %w",
			result.SessionID, result.TurnNumber, err)
	}
	return nil
}

// ListBySession returns a session's turn history in turn order.
func (s *TurnResultStore) ListBySession(ctx context.Context, db DB, sessionID string) ([]*models.TurnResult, error) {
	rows, err := db.Query(ctx, `
		SELECT id, session_id, turn_number, outcomes, eliminated, summary, created_at
		FROM turn_results WHERE session_id = $1 ORDER BY turn_number, id`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("listing turn results for session %s: %w", sessionID, err)
	}
	defer rows.Close()

	var out []*models.TurnResult
	for rows.Next() {
		var (
			result       models.TurnResult
			outcomesJSON []byte
		)
		if err := rows.Scan(&result.ID, &result.SessionID, &result.TurnNumber,
			&outcomesJSON, &result.Eliminated, &result.Summary, &result.CreatedAt); err != nil {
			return nil, err
		}
		if len(outcomesJSON) > 0 {
			if err := json.Unmarshal(outcomesJSON, &result.Outcomes); err != nil {
				return nil, fmt.Errorf("decoding turn outcomes: %w", err)
			}
		}
		out = append(out, &result)
	}
	return out, rows.Err()
}
