package models

import "time"

// SessionStatus is the lifecycle state of a game session.
type SessionStatus string

// Session lifecycle states.
const (
	StatusWaiting   SessionStatus = "waiting"
	StatusActive    SessionStatus = "active"
	StatusCompleted SessionStatus = "completed"
	StatusCancelled SessionStatus = "cancelled"
)

// ValidStatus reports whether s is a known session status.
func ValidStatus(s SessionStatus) bool {
	switch s {
	case StatusWaiting, StatusActive, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// Phase is one of the six time-bounded segments of a turn.
type Phase string

// Turn phases, in cycle order. Ending is entered instead of a new action
// phase when the game is over; it never cycles back on its own.
const (
	PhaseAction    Phase = "action"
	PhaseLockout1  Phase = "lockout1"
	PhaseReaction  Phase = "reaction"
	PhaseLockout2  Phase = "lockout2"
	PhaseBroadcast Phase = "broadcast"
	PhaseEnding    Phase = "ending"
)

// NextPhase returns the phase that follows p in the turn cycle.
// The broadcast phase wraps to action; the orchestrator substitutes
// ending when the game is over. Ending has no successor.
func NextPhase(p Phase) Phase {
	switch p {
	case PhaseAction:
		return PhaseLockout1
	case PhaseLockout1:
		return PhaseReaction
	case PhaseReaction:
		return PhaseLockout2
	case PhaseLockout2:
		return PhaseBroadcast
	case PhaseBroadcast:
		return PhaseAction
	default:
		return PhaseEnding
	}
}

// PhaseDurations holds the per-session phase lengths in minutes.
type PhaseDurations struct {
	ActionMinutes    int `json:"action_minutes" yaml:"action_minutes"`
	Lockout1Minutes  int `json:"lockout1_minutes" yaml:"lockout1_minutes"`
	ReactionMinutes  int `json:"reaction_minutes" yaml:"reaction_minutes"`
	Lockout2Minutes  int `json:"lockout2_minutes" yaml:"lockout2_minutes"`
	BroadcastMinutes int `json:"broadcast_minutes" yaml:"broadcast_minutes"`
	EndingMinutes    int `json:"ending_minutes" yaml:"ending_minutes"`
}

// DefaultPhaseDurations are applied when a session config omits durations.
func DefaultPhaseDurations() PhaseDurations {
	return PhaseDurations{
		ActionMinutes:    50,
		Lockout1Minutes:  10,
		ReactionMinutes:  20,
		Lockout2Minutes:  10,
		BroadcastMinutes: 1,
		EndingMinutes:    5,
	}
}

// For returns the duration of phase p.
func (d PhaseDurations) For(p Phase) time.Duration {
	minutes := 0
	switch p {
	case PhaseAction:
		minutes = d.ActionMinutes
	case PhaseLockout1:
		minutes = d.Lockout1Minutes
	case PhaseReaction:
		minutes = d.ReactionMinutes
	case PhaseLockout2:
		minutes = d.Lockout2Minutes
	case PhaseBroadcast:
		minutes = d.BroadcastMinutes
	case PhaseEnding:
		minutes = d.EndingMinutes
	}
	return time.Duration(minutes) * time.Minute
}

// Valid reports whether every phase duration is positive.
func (d PhaseDurations) Valid() bool {
	return d.ActionMinutes > 0 && d.Lockout1Minutes > 0 && d.ReactionMinutes > 0 &&
		d.Lockout2Minutes > 0 && d.BroadcastMinutes > 0 && d.EndingMinutes > 0
}

// MaxRematches is the cap on rematches per session.
const MaxRematches = 3

// Session is the authoritative record of one game session. The session owns
// the deck, the revealed pile, and the chat channel bindings.
type Session struct {
	ID              string         `json:"session_id"`
	Name            string         `json:"name"`
	Status          SessionStatus  `json:"status"`
	CurrentPhase    *Phase         `json:"current_phase,omitempty"`
	PhaseEndTime    *time.Time     `json:"phase_end_time,omitempty"`
	TurnNumber      int            `json:"turn_number"`
	TurnLimit       int            `json:"turn_limit"`
	MaxPlayers      int            `json:"max_players"`
	UpgradesEnabled bool           `json:"upgrades_enabled"`
	Durations       PhaseDurations `json:"durations"`
	RematchCount    int            `json:"rematch_count"`
	Winners         []string       `json:"winners"`
	Deck            []Card         `json:"-"`
	Revealed        []Card         `json:"revealed"`
	TurnSummary     string         `json:"-"`
	DiscordChannel  *string        `json:"discord_channel_id,omitempty"`
	SlackChannel    *string        `json:"slack_channel_id,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
}

// IsGameStarted reports whether the game has begun (status active).
func (s *Session) IsGameStarted() bool {
	return s.Status == StatusActive
}

// Phase returns the current phase, or "" when the session has none.
func (s *Session) Phase() Phase {
	if s.CurrentPhase == nil {
		return ""
	}
	return *s.CurrentPhase
}

// TimeRemaining returns the seconds until the current phase ends, floored
// at zero. Returns 0 when no phase deadline is set.
func (s *Session) TimeRemaining(now time.Time) int {
	if s.PhaseEndTime == nil {
		return 0
	}
	remaining := int(s.PhaseEndTime.Sub(now).Seconds())
	if remaining < 0 {
		return 0
	}
	return remaining
}
