package models

import "time"

// ReactionKind classifies a player's response to another player's action.
type ReactionKind string

// Reaction kinds.
const (
	ReactionChallenge ReactionKind = "challenge"
	ReactionBlock     ReactionKind = "block"
	ReactionPass      ReactionKind = "pass"
)

// ValidReactionKind reports whether k is a known reaction kind.
func ValidReactionKind(k ReactionKind) bool {
	switch k {
	case ReactionChallenge, ReactionBlock, ReactionPass:
		return true
	}
	return false
}

// TargetBlock is the TargetAction value of a counter-challenge: a challenge
// raised against another player's block rather than against a base action.
const TargetBlock = "block"

// Reaction is a player's submitted response for one turn. The insertion id
// is monotonic and is the resolver's tie-break for "earliest reaction".
type Reaction struct {
	ID            int64        `json:"id"`
	SessionID     string       `json:"session_id"`
	TurnNumber    int          `json:"turn_number"`
	ReactorUserID string       `json:"reactor_user_id"`
	ActorUserID   string       `json:"actor_user_id"`
	TargetAction  string       `json:"target_action"`
	Kind          ReactionKind `json:"kind"`
	BlockWithRole Card         `json:"block_with_role,omitempty"`
	Locked        bool         `json:"is_locked"`
	Resolved      bool         `json:"is_resolved"`
	CreatedAt     time.Time    `json:"created_at"`
}
