// Package orchestrator advances sessions through the phase cycle. It is
// the only writer of current_phase, phase_end_time, and turn_number once a
// game is active; every transition happens inside the clock's claiming
// transaction.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/coupgame/coupd/pkg/fanout"
	"github.com/coupgame/coupd/pkg/game"
	"github.com/coupgame/coupd/pkg/models"
	"github.com/coupgame/coupd/pkg/store"
)

// PostCommit is a side effect to run after the claiming transaction
// commits, such as pushing a broadcast over HTTP.
type PostCommit func(ctx context.Context)

// Orchestrator runs the phase-exit hooks and advances the session to its
// next phase.
type Orchestrator struct {
	sessions    *store.SessionStore
	players     *store.PlayerStore
	reactions   *store.ReactionStore
	turns       *store.TurnResultStore
	resolver    *game.Resolver
	broadcaster *fanout.Broadcaster
	llm         *fanout.LLMPusher
	logger      *slog.Logger
}

// New creates an Orchestrator. broadcaster and llm may be nil; the
// corresponding post-commit pushes are then skipped.
func New(resolver *game.Resolver, broadcaster *fanout.Broadcaster, llm *fanout.LLMPusher, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		sessions:    store.NewSessionStore(),
		players:     store.NewPlayerStore(),
		reactions:   store.NewReactionStore(),
		turns:       store.NewTurnResultStore(),
		resolver:    resolver,
		broadcaster: broadcaster,
		llm:         llm,
		logger:      logger.With("component", "orchestrator"),
	}
}

// Transition moves the claimed session out of its expired phase: the exit
// hook of the phase being left runs first, then the next phase and its
// deadline are written. The returned PostCommit, if any, must be invoked
// after the surrounding transaction commits.
func (o *Orchestrator) Transition(ctx context.Context, db store.DB, sess *models.Session, now time.Time) (PostCommit, error) {
	if sess.Status != models.StatusActive {
		return nil, nil
	}
	leaving := sess.Phase()
	log := o.logger.With("session_id", sess.ID, "turn", sess.TurnNumber, "leaving_phase", string(leaving))

	var post PostCommit
	gameOver := false

	switch leaving {
	case models.PhaseAction:
		players, err := o.players.ListBySession(ctx, db, sess.ID)
		if err != nil {
			return nil, err
		}
		pending := 0
		for _, p := range players {
			if p.PendingAction != "" {
				pending++
			}
		}
		log.InfoContext(ctx, "Action phase closed", "pending_actions", pending)

	case models.PhaseLockout1:
		log.InfoContext(ctx, "Reaction phase opening")

	case models.PhaseReaction:
		if err := o.reactions.LockTurn(ctx, db, sess.ID, sess.TurnNumber); err != nil {
			return nil, err
		}
		log.InfoContext(ctx, "Reactions locked")

	case models.PhaseLockout2:
		if err := o.resolveTurn(ctx, db, sess); err != nil {
			return nil, err
		}

	case models.PhaseBroadcast:
		players, err := o.players.ListBySession(ctx, db, sess.ID)
		if err != nil {
			return nil, err
		}
		if err := o.players.ClearPendingActions(ctx, db, sess.ID); err != nil {
			return nil, err
		}
		sess.TurnNumber++
		post = o.broadcastHook(sess.ID, sess.TurnSummary)
		if game.GameOver(sess, players) {
			gameOver = true
			sess.Winners = game.DetermineWinners(players)
			log.InfoContext(ctx, "Game over", "winners", sess.Winners)
		}

	case models.PhaseEnding:
		// The ending window expired with no rematch: finalise.
		sess.Status = models.StatusCompleted
		sess.CurrentPhase = nil
		sess.PhaseEndTime = nil
		if err := o.sessions.Update(ctx, db, sess); err != nil {
			return nil, err
		}
		log.InfoContext(ctx, "Session completed", "winners", sess.Winners)
		return post, nil

	default:
		return nil, fmt.Errorf("session %s is active with no current phase", sess.ID)
	}

	next := models.NextPhase(leaving)
	if gameOver {
		next = models.PhaseEnding
	}
	endTime := now.Add(sess.Durations.For(next))
	sess.CurrentPhase = &next
	sess.PhaseEndTime = &endTime
	if err := o.sessions.Update(ctx, db, sess); err != nil {
		return nil, err
	}

	log.InfoContext(ctx, "Phase advanced",
		"next_phase", string(next), "phase_end_time", endTime.Format(time.RFC3339))
	return post, nil
}

// resolveTurn runs the turn resolver over the frozen submissions and
// persists the staged mutations and the TurnResult.
func (o *Orchestrator) resolveTurn(ctx context.Context, db store.DB, sess *models.Session) error {
	players, err := o.players.ListBySession(ctx, db, sess.ID)
	if err != nil {
		return err
	}
	reactions, err := o.reactions.ListUnresolvedForTurn(ctx, db, sess.ID, sess.TurnNumber)
	if err != nil {
		return err
	}

	result, err := o.resolver.Resolve(sess, players, reactions)
	if err != nil {
		return fmt.Errorf("resolving turn %d of session %s: %w", sess.TurnNumber, sess.ID, err)
	}

	for _, p := range players {
		if err := o.players.Update(ctx, db, p); err != nil {
			return err
		}
	}
	if err := o.reactions.MarkTurnResolved(ctx, db, sess.ID, sess.TurnNumber); err != nil {
		return err
	}

	result.CreatedAt = time.Now().UTC()
	if err := o.turns.Insert(ctx, db, result); err != nil {
		return err
	}
	sess.TurnSummary = result.Summary

	o.logger.InfoContext(ctx, "Turn resolved",
		"session_id", sess.ID, "turn", result.TurnNumber,
		"actions", len(result.Outcomes), "eliminated", len(result.Eliminated))
	return nil
}

// broadcastHook returns the post-commit push for the broadcast phase.
func (o *Orchestrator) broadcastHook(sessionID, summary string) PostCommit {
	return func(ctx context.Context) {
		if o.broadcaster != nil {
			if err := o.broadcaster.Broadcast(ctx, sessionID); err != nil {
				o.logger.ErrorContext(ctx, "Broadcast push failed",
					"session_id", sessionID, "error", err)
			}
		}
		if o.llm.Enabled() && summary != "" {
			o.llm.PushGameEvent(ctx, sessionID, "turn_summary", map[string]any{
				"summary": summary,
			})
		}
	}
}
