package models

import "time"

// Outcome is the recorded result of a single resolved action. Rule-level
// failures are outcomes, never errors.
type Outcome string

// Action outcomes.
const (
	OutcomeSuccess        Outcome = "success"
	OutcomeChallengedWon  Outcome = "challenged_won"
	OutcomeChallengedLost Outcome = "challenged_lost"
	OutcomeBlocked        Outcome = "blocked"
	OutcomeFailed         Outcome = "failed"
)

// ActionOutcome records how one player's submitted action resolved.
type ActionOutcome struct {
	ActorUserID      string     `json:"actor_user_id"`
	ActorName        string     `json:"actor"`
	Action           ActionKind `json:"action"`
	TargetName       string     `json:"target,omitempty"`
	Outcome          Outcome    `json:"outcome"`
	CardsRevealed    []Card     `json:"cards_revealed,omitempty"`
	CoinsTransferred int        `json:"coins_transferred"`
	Description      string     `json:"description"`
}

// TurnResult is the durable record of one resolved turn.
type TurnResult struct {
	ID         int64           `json:"id"`
	SessionID  string          `json:"session_id"`
	TurnNumber int             `json:"turn_number"`
	Outcomes   []ActionOutcome `json:"outcomes"`
	Eliminated []string        `json:"players_eliminated"`
	Summary    string          `json:"summary"`
	CreatedAt  time.Time       `json:"created_at"`
}
