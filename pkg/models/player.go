package models

import "time"

// PlayerState is the per-session game state of one player. Identity is
// always the stable user id; display names are presentation-only and may
// collide with eliminated players' stored history.
type PlayerState struct {
	UserID      string    `json:"user_id"`
	SessionID   string    `json:"session_id"`
	DisplayName string    `json:"display_name"`
	Coins       int       `json:"coins"`
	Debt        int       `json:"debt"`
	Hand        []Card    `json:"-"`
	Alive       bool      `json:"is_alive"`
	JoinedAt    time.Time `json:"joined_at"`

	// PendingAction is the intent submitted during the action phase, or ""
	// when none. It is frozen during lockout and cleared after broadcast.
	PendingAction ActionKind    `json:"-"`
	PendingTarget string        `json:"-"`
	Upgrade       *UpgradeFlags `json:"-"`
}

// HandCount returns the number of influence cards held.
func (p *PlayerState) HandCount() int {
	return len(p.Hand)
}

// HasCard reports whether the player's hand contains card.
func (p *PlayerState) HasCard(card Card) bool {
	for _, c := range p.Hand {
		if c == card {
			return true
		}
	}
	return false
}

// RemoveCard removes one copy of card from the hand and reports whether
// a copy was present.
func (p *PlayerState) RemoveCard(card Card) bool {
	for i, c := range p.Hand {
		if c == card {
			p.Hand = append(p.Hand[:i], p.Hand[i+1:]...)
			return true
		}
	}
	return false
}

// PublicPlayerView is the player state other players are allowed to see.
// Hand contents are never exposed, only the count.
type PublicPlayerView struct {
	UserID        string     `json:"user_id"`
	DisplayName   string     `json:"display_name"`
	Coins         int        `json:"coins"`
	HandCount     int        `json:"hand_count"`
	Alive         bool       `json:"is_alive"`
	PendingAction ActionKind `json:"pending_action,omitempty"`
	PendingTarget string     `json:"pending_target,omitempty"`
}

// PublicView strips hidden information from a player state. Upgrade details
// stay private; only the action kind and target are visible.
func (p *PlayerState) PublicView() PublicPlayerView {
	return PublicPlayerView{
		UserID:        p.UserID,
		DisplayName:   p.DisplayName,
		Coins:         p.Coins,
		HandCount:     p.HandCount(),
		Alive:         p.Alive,
		PendingAction: p.PendingAction,
		PendingTarget: p.PendingTarget,
	}
}
