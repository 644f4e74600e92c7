package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/coupgame/coupd/pkg/game"
	"github.com/coupgame/coupd/pkg/models"
	"github.com/coupgame/coupd/pkg/store"
)

// PendingActionView is the public shape of one player's submitted action.
// Upgrade details are never exposed.
type PendingActionView struct {
	ActorUserID string            `json:"actor_user_id"`
	ActorName   string            `json:"actor"`
	Action      models.ActionKind `json:"action"`
	Target      string            `json:"target,omitempty"`
}

// ReactionView is the public shape of one submitted reaction. Block claims
// are public; whether the claim is honest is not.
type ReactionView struct {
	ReactorUserID string              `json:"reactor_user_id"`
	ReactorName   string              `json:"reactor"`
	ActorUserID   string              `json:"actor_user_id"`
	TargetAction  string              `json:"target_action"`
	Kind          models.ReactionKind `json:"kind"`
	BlockWithRole models.Card         `json:"block_with_role,omitempty"`
}

// ReactionsView pairs the turn's visible reactions with the actions that
// can still be reacted to.
type ReactionsView struct {
	Reactions        []ReactionView      `json:"reactions"`
	ActionsToReactTo []PendingActionView `json:"actions_requiring_reaction"`
}

// GameStateView is the full public session state plus the caller's own hand.
type GameStateView struct {
	Session              *models.Session           `json:"session"`
	Players              []models.PublicPlayerView `json:"players"`
	YourHand             []models.Card             `json:"your_hand,omitempty"`
	TurnSummary          string                    `json:"turn_summary,omitempty"`
	TimeRemainingSeconds int                       `json:"time_remaining_seconds"`
}

// PlayerService implements joining, leaving, and the action/reaction
// submission buffer.
type PlayerService struct {
	pool      *pgxpool.Pool
	sessions  *store.SessionStore
	players   *store.PlayerStore
	reactions *store.ReactionStore
	rng       game.RNG
	logger    *slog.Logger
}

// NewPlayerService creates a PlayerService.
func NewPlayerService(pool *pgxpool.Pool, rng game.RNG, logger *slog.Logger) *PlayerService {
	return &PlayerService{
		pool:      pool,
		sessions:  store.NewSessionStore(),
		players:   store.NewPlayerStore(),
		reactions: store.NewReactionStore(),
		rng:       rng,
		logger:    logger.With("component", "player_service"),
	}
}

// Join adds a player to a waiting session. Duplicate joins and full
// sessions are rejected.
func (s *PlayerService) Join(ctx context.Context, sessionID, userID, displayName string) (*models.PlayerState, error) {
	if userID == "" {
		return nil, NewValidationError("user_id", "must not be empty")
	}
	if displayName == "" {
		return nil, NewValidationError("display_name", "must not be empty")
	}

	var joined *models.PlayerState
	err := withTx(ctx, s.pool, func(tx pgx.Tx) error {
		sess, err := s.sessions.GetForUpdate(ctx, tx, sessionID)
		if err != nil {
			return err
		}
		if sess == nil {
			return notFoundf("session %s", sessionID)
		}
		if sess.Status != models.StatusWaiting {
			return invalidStatef("cannot join session %s in status %s", sessionID, sess.Status)
		}

		existing, err := s.players.Get(ctx, tx, sessionID, userID)
		if err != nil {
			return err
		}
		if existing != nil {
			return preconditionf("user %s already joined session %s", userID, sessionID)
		}

		count, err := s.players.Count(ctx, tx, sessionID)
		if err != nil {
			return err
		}
		if count >= sess.MaxPlayers {
			return preconditionf("session %s is full (%d players)", sessionID, sess.MaxPlayers)
		}

		joined = &models.PlayerState{
			UserID:      userID,
			SessionID:   sessionID,
			DisplayName: displayName,
			Coins:       StartingCoins,
			Alive:       true,
			JoinedAt:    time.Now().UTC(),
		}
		return s.players.Create(ctx, tx, joined)
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "Player joined",
		"session_id", sessionID, "user_id", userID, "display_name", displayName)
	return joined, nil
}

// Leave removes a player from a waiting session.
func (s *PlayerService) Leave(ctx context.Context, sessionID, userID string) error {
	err := withTx(ctx, s.pool, func(tx pgx.Tx) error {
		sess, err := s.sessions.GetForUpdate(ctx, tx, sessionID)
		if err != nil {
			return err
		}
		if sess == nil {
			return notFoundf("session %s", sessionID)
		}
		if sess.Status != models.StatusWaiting {
			return invalidStatef("cannot leave session %s in status %s", sessionID, sess.Status)
		}

		player, err := s.players.Get(ctx, tx, sessionID, userID)
		if err != nil {
			return err
		}
		if player == nil {
			return notFoundf("user %s in session %s", userID, sessionID)
		}
		return s.players.Delete(ctx, tx, sessionID, userID)
	})
	if err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "Player left", "session_id", sessionID, "user_id", userID)
	return nil
}

// SetPendingAction records the player's intent for the current turn.
// Only allowed during the action phase; resubmission overwrites the
// previous intent (last write wins).
func (s *PlayerService) SetPendingAction(ctx context.Context, sessionID, userID string, action models.ActionKind, target string, upgrade *models.UpgradeFlags) (*models.PlayerState, error) {
	if !models.ValidAction(action) {
		return nil, NewValidationError("action", fmt.Sprintf("unknown action %q", action))
	}
	spec := models.ActionSpecs[action]

	var updated *models.PlayerState
	err := withTx(ctx, s.pool, func(tx pgx.Tx) error {
		sess, err := s.sessions.GetForUpdate(ctx, tx, sessionID)
		if err != nil {
			return err
		}
		if sess == nil {
			return notFoundf("session %s", sessionID)
		}
		if !sess.IsGameStarted() || sess.Phase() != models.PhaseAction {
			return invalidStatef("actions can only be submitted during the action phase, session %s is in %s",
				sessionID, sess.Phase())
		}

		player, err := s.players.GetForUpdate(ctx, tx, sessionID, userID)
		if err != nil {
			return err
		}
		if player == nil {
			return notFoundf("user %s in session %s", userID, sessionID)
		}
		if !player.Alive {
			return preconditionf("user %s is eliminated", userID)
		}
		if player.Coins < spec.Cost {
			return preconditionf("%s costs %d coins, user %s has %d",
				action, spec.Cost, userID, player.Coins)
		}

		if spec.Targeted {
			if target == "" {
				return NewValidationError("target_display_name",
					fmt.Sprintf("%s requires a target", action))
			}
			players, err := s.players.ListBySession(ctx, tx, sessionID)
			if err != nil {
				return err
			}
			targetPlayer := playerByName(players, target)
			if targetPlayer == nil || !targetPlayer.Alive {
				return preconditionf("no alive player named %q in session %s", target, sessionID)
			}
			if targetPlayer.UserID == userID {
				return preconditionf("user %s cannot target themselves", userID)
			}
		} else {
			target = ""
		}

		if upgrade != nil && !sess.UpgradesEnabled {
			return preconditionf("upgrades are not enabled for session %s", sessionID)
		}

		player.PendingAction = action
		player.PendingTarget = target
		player.Upgrade = upgrade
		updated = player
		return s.players.Update(ctx, tx, player)
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "Pending action set",
		"session_id", sessionID, "user_id", userID, "action", string(action), "target", target)
	return updated, nil
}

// SetReaction records the reactor's response to another player's submitted
// action (or to their block, as a counter-challenge). Only allowed during
// the reaction phase; resubmission for the same tuple overwrites the
// previous reaction.
func (s *PlayerService) SetReaction(ctx context.Context, sessionID, reactorID, targetPlayer string, kind models.ReactionKind, blockRole models.Card) (*models.Reaction, error) {
	if !models.ValidReactionKind(kind) {
		return nil, NewValidationError("reaction_type", fmt.Sprintf("unknown reaction %q", kind))
	}

	var saved *models.Reaction
	err := withTx(ctx, s.pool, func(tx pgx.Tx) error {
		sess, err := s.sessions.GetForUpdate(ctx, tx, sessionID)
		if err != nil {
			return err
		}
		if sess == nil {
			return notFoundf("session %s", sessionID)
		}
		if !sess.IsGameStarted() || sess.Phase() != models.PhaseReaction {
			return invalidStatef("reactions can only be submitted during the reaction phase, session %s is in %s",
				sessionID, sess.Phase())
		}

		reactor, err := s.players.Get(ctx, tx, sessionID, reactorID)
		if err != nil {
			return err
		}
		if reactor == nil {
			return notFoundf("user %s in session %s", reactorID, sessionID)
		}
		if !reactor.Alive {
			return preconditionf("user %s is eliminated", reactorID)
		}

		players, err := s.players.ListBySession(ctx, tx, sessionID)
		if err != nil {
			return err
		}
		actor := playerByIDOrName(players, targetPlayer)
		if actor == nil {
			return preconditionf("no player %q in session %s", targetPlayer, sessionID)
		}
		if actor.UserID == reactorID {
			return preconditionf("user %s cannot react to their own action", reactorID)
		}

		targetAction, err := s.admissibleTarget(ctx, tx, sess, actor, kind, blockRole)
		if err != nil {
			return err
		}

		saved, err = s.reactions.Upsert(ctx, tx, &models.Reaction{
			SessionID:     sessionID,
			TurnNumber:    sess.TurnNumber,
			ReactorUserID: reactorID,
			ActorUserID:   actor.UserID,
			TargetAction:  targetAction,
			Kind:          kind,
			BlockWithRole: blockRole,
			CreatedAt:     time.Now().UTC(),
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "Reaction set",
		"session_id", sessionID, "reactor", reactorID, "kind", string(kind),
		"target_action", saved.TargetAction)
	return saved, nil
}

// admissibleTarget validates the reaction against the actor's submissions
// and returns the target action string the resolver keys on.
//
// The reaction body carries no disambiguation field, so a challenge against
// a player holding both a claimed pending action and a block this turn
// always targets the action claim; their block only becomes challengeable
// once they have no claimed action of their own.
func (s *PlayerService) admissibleTarget(ctx context.Context, tx pgx.Tx, sess *models.Session, actor *models.PlayerState, kind models.ReactionKind, blockRole models.Card) (string, error) {
	action := actor.PendingAction
	spec := models.ActionSpecs[action]

	switch kind {
	case models.ReactionChallenge:
		if action != "" && spec.ClaimedRole != "" {
			return string(action), nil
		}
		// No claimed action: a challenge can still target the player's own
		// block this turn (counter-challenge).
		turnReactions, err := s.reactions.ListForTurn(ctx, tx, sess.ID, sess.TurnNumber)
		if err != nil {
			return "", err
		}
		for _, re := range turnReactions {
			if re.ReactorUserID == actor.UserID && re.Kind == models.ReactionBlock {
				return models.TargetBlock, nil
			}
		}
		return "", preconditionf("player %s has no claim to challenge", actor.DisplayName)

	case models.ReactionBlock:
		if action == "" || len(spec.BlockableBy) == 0 {
			return "", preconditionf("player %s has no blockable action", actor.DisplayName)
		}
		if !models.CanBlockWith(action, blockRole) {
			return "", preconditionf("%s cannot be blocked with %s", action, blockRole)
		}
		return string(action), nil

	default: // pass
		if action == "" {
			return "", preconditionf("player %s has no pending action to pass on", actor.DisplayName)
		}
		return string(action), nil
	}
}

// SwapReturn completes a swap_influence exchange: the player returns the
// chosen cards to the deck, bringing the hand back down to two.
func (s *PlayerService) SwapReturn(ctx context.Context, sessionID, userID string, cards []models.Card) (*models.PlayerState, error) {
	if len(cards) == 0 {
		return nil, NewValidationError("cards", "must name the cards to return")
	}
	for _, c := range cards {
		if !models.ValidCard(c) {
			return nil, NewValidationError("cards", fmt.Sprintf("unknown card %q", c))
		}
	}

	var updated *models.PlayerState
	err := withTx(ctx, s.pool, func(tx pgx.Tx) error {
		sess, err := s.sessions.GetForUpdate(ctx, tx, sessionID)
		if err != nil {
			return err
		}
		if sess == nil {
			return notFoundf("session %s", sessionID)
		}
		if !sess.IsGameStarted() {
			return invalidStatef("session %s has no game in progress", sessionID)
		}

		player, err := s.players.GetForUpdate(ctx, tx, sessionID, userID)
		if err != nil {
			return err
		}
		if player == nil {
			return notFoundf("user %s in session %s", userID, sessionID)
		}
		if player.HandCount() <= 2 {
			return preconditionf("user %s has no exchange in progress", userID)
		}
		if len(cards) != player.HandCount()-2 {
			return preconditionf("user %s must return exactly %d cards", userID, player.HandCount()-2)
		}
		for _, c := range cards {
			if !player.RemoveCard(c) {
				return preconditionf("user %s does not hold %s", userID, c)
			}
		}

		deck := game.FromCards(sess.Deck, s.rng)
		deck.Return(cards...)
		sess.Deck = deck.Cards()
		if err := s.sessions.Update(ctx, tx, sess); err != nil {
			return err
		}
		updated = player
		return s.players.Update(ctx, tx, player)
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "Swap exchange completed",
		"session_id", sessionID, "user_id", userID, "returned", len(cards))
	return updated, nil
}

// VisibleActions returns every submitted pending action in its public shape.
func (s *PlayerService) VisibleActions(ctx context.Context, sessionID string) ([]PendingActionView, error) {
	sess, err := s.sessions.Get(ctx, s.pool, sessionID)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, notFoundf("session %s", sessionID)
	}

	players, err := s.players.ListBySession(ctx, s.pool, sessionID)
	if err != nil {
		return nil, err
	}
	return pendingActionViews(players, false), nil
}

// VisibleReactions returns the turn's submitted reactions plus the actions
// that can still be challenged or blocked.
func (s *PlayerService) VisibleReactions(ctx context.Context, sessionID string) (*ReactionsView, error) {
	sess, err := s.sessions.Get(ctx, s.pool, sessionID)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, notFoundf("session %s", sessionID)
	}

	players, err := s.players.ListBySession(ctx, s.pool, sessionID)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]*models.PlayerState, len(players))
	for _, p := range players {
		byID[p.UserID] = p
	}

	view := &ReactionsView{
		Reactions:        []ReactionView{},
		ActionsToReactTo: pendingActionViews(players, true),
	}

	turnReactions, err := s.reactions.ListForTurn(ctx, s.pool, sessionID, sess.TurnNumber)
	if err != nil {
		return nil, err
	}
	for _, re := range turnReactions {
		rv := ReactionView{
			ReactorUserID: re.ReactorUserID,
			ActorUserID:   re.ActorUserID,
			TargetAction:  re.TargetAction,
			Kind:          re.Kind,
			BlockWithRole: re.BlockWithRole,
		}
		if p := byID[re.ReactorUserID]; p != nil {
			rv.ReactorName = p.DisplayName
		}
		view.Reactions = append(view.Reactions, rv)
	}
	return view, nil
}

// GameState returns the public session state, every player's public view,
// and the caller's own hand. Other players' hands are never exposed.
func (s *PlayerService) GameState(ctx context.Context, sessionID, callerID string) (*GameStateView, error) {
	sess, err := s.sessions.Get(ctx, s.pool, sessionID)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, notFoundf("session %s", sessionID)
	}

	players, err := s.players.ListBySession(ctx, s.pool, sessionID)
	if err != nil {
		return nil, err
	}

	view := &GameStateView{
		Session:              sess,
		Players:              make([]models.PublicPlayerView, 0, len(players)),
		TurnSummary:          sess.TurnSummary,
		TimeRemainingSeconds: sess.TimeRemaining(time.Now().UTC()),
	}
	for _, p := range players {
		view.Players = append(view.Players, p.PublicView())
		if p.UserID == callerID {
			view.YourHand = p.Hand
		}
	}
	return view, nil
}

// pendingActionViews lists submitted actions; reactableOnly filters to
// actions that can be challenged or blocked.
func pendingActionViews(players []*models.PlayerState, reactableOnly bool) []PendingActionView {
	out := []PendingActionView{}
	for _, p := range players {
		if p.PendingAction == "" {
			continue
		}
		if reactableOnly {
			spec := models.ActionSpecs[p.PendingAction]
			if spec.ClaimedRole == "" && len(spec.BlockableBy) == 0 {
				continue
			}
		}
		out = append(out, PendingActionView{
			ActorUserID: p.UserID,
			ActorName:   p.DisplayName,
			Action:      p.PendingAction,
			Target:      p.PendingTarget,
		})
	}
	return out
}

// playerByName resolves a display name among the session's players.
func playerByName(players []*models.PlayerState, displayName string) *models.PlayerState {
	for _, p := range players {
		if p.DisplayName == displayName {
			return p
		}
	}
	return nil
}

// playerByIDOrName resolves a player by user id first, then display name.
// Gateways address players by whichever the chat platform surfaced.
func playerByIDOrName(players []*models.PlayerState, key string) *models.PlayerState {
	for _, p := range players {
		if p.UserID == key {
			return p
		}
	}
	return playerByName(players, key)
}
