package game

import (
	"fmt"
	"sort"
	"strings"

	"github.com/coupgame/coupd/pkg/models"
)

// Resolver turns the frozen actions and reactions of one turn into state
// mutations and a TurnResult. It is pure of wall-clock time and never
// returns errors for game-rule conditions; every anomaly becomes a
// recorded outcome. Errors are reserved for invariant violations.
type Resolver struct {
	rng RNG
}

// NewResolver creates a resolver with the given RNG for deck shuffles.
func NewResolver(rng RNG) *Resolver {
	return &Resolver{rng: rng}
}

// Resolve applies all pending actions for the session's current turn.
// Players are iterated in insertion order (joined_at, then user_id).
// Mutations are staged on the passed-in session and player snapshots;
// the caller persists them in a single transaction.
//
// Ordering per action: cost check, then the earliest challenge, then the
// earliest block (with its own counter-challenge), then effect application.
// An actor who was alive at the start of the turn still resolves even if
// an earlier action this turn eliminated them.
func (r *Resolver) Resolve(sess *models.Session, players []*models.PlayerState, reactions []*models.Reaction) (*models.TurnResult, error) {
	if sess == nil {
		return nil, fmt.Errorf("resolve: session is nil")
	}

	ordered := make([]*models.PlayerState, len(players))
	copy(ordered, players)
	sort.SliceStable(ordered, func(i, j int) bool {
		if !ordered[i].JoinedAt.Equal(ordered[j].JoinedAt) {
			return ordered[i].JoinedAt.Before(ordered[j].JoinedAt)
		}
		return ordered[i].UserID < ordered[j].UserID
	})

	sorted := make([]*models.Reaction, len(reactions))
	copy(sorted, reactions)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	byID := make(map[string]*models.PlayerState, len(ordered))
	aliveAtStart := make(map[string]bool, len(ordered))
	for _, p := range ordered {
		byID[p.UserID] = p
		aliveAtStart[p.UserID] = p.Alive
	}

	deck := FromCards(sess.Deck, r.rng)
	result := &models.TurnResult{
		SessionID:  sess.ID,
		TurnNumber: sess.TurnNumber,
	}

	for _, actor := range ordered {
		if !aliveAtStart[actor.UserID] || actor.PendingAction == "" {
			continue
		}
		outcome := r.resolveAction(sess, deck, actor, ordered, sorted, aliveAtStart, byID)
		result.Outcomes = append(result.Outcomes, outcome)
	}

	// Eliminations are applied once, after every action has resolved.
	// Death is monotonic: a player never returns to alive.
	for _, p := range ordered {
		if aliveAtStart[p.UserID] && p.HandCount() == 0 {
			p.Alive = false
			result.Eliminated = append(result.Eliminated, p.UserID)
		}
	}

	for _, re := range sorted {
		re.Resolved = true
	}

	sess.Deck = deck.Cards()
	result.Summary = r.summarize(result, byID)
	return result, nil
}

// resolveAction runs one actor's pending action through the challenge,
// block, and effect stages.
func (r *Resolver) resolveAction(
	sess *models.Session,
	deck *Deck,
	actor *models.PlayerState,
	players []*models.PlayerState,
	reactions []*models.Reaction,
	aliveAtStart map[string]bool,
	byID map[string]*models.PlayerState,
) models.ActionOutcome {
	action := actor.PendingAction
	spec := models.ActionSpecs[action]
	out := models.ActionOutcome{
		ActorUserID: actor.UserID,
		ActorName:   actor.DisplayName,
		Action:      action,
		TargetName:  actor.PendingTarget,
	}

	if actor.Coins < spec.Cost {
		out.Outcome = models.OutcomeFailed
		out.Description = fmt.Sprintf("%s could not afford %s (%d coins, needs %d)",
			actor.DisplayName, action, actor.Coins, spec.Cost)
		return out
	}

	// Challenges first. Only claimed actions can be challenged; earliest
	// reaction wins, all later ones are moot.
	if spec.ClaimedRole != "" {
		if ch := earliestReaction(reactions, models.ReactionChallenge, actor.UserID, string(action)); ch != nil {
			challenger := byID[ch.ReactorUserID]
			if challenger != nil {
				if actor.HasCard(spec.ClaimedRole) {
					// Honest claim: the challenger loses an influence and the
					// actor trades the revealed card for a fresh draw.
					if lost, ok := loseInfluence(sess, challenger, ""); ok {
						out.CardsRevealed = append(out.CardsRevealed, lost)
					}
					actor.RemoveCard(spec.ClaimedRole)
					deck.Return(spec.ClaimedRole)
					actor.Hand = append(actor.Hand, deck.Draw(1)...)
					out.Outcome = models.OutcomeChallengedWon
				} else {
					// Bluff caught: the actor loses an influence and the
					// action is cancelled. No cost is paid.
					if lost, ok := loseInfluence(sess, actor, ""); ok {
						out.CardsRevealed = append(out.CardsRevealed, lost)
					}
					out.Outcome = models.OutcomeChallengedLost
					out.Description = fmt.Sprintf("%s's %s was challenged by %s and failed; %s lost an influence",
						actor.DisplayName, action, challenger.DisplayName, actor.DisplayName)
					return out
				}
			}
		}
	}

	// Blocks second, only for uncancelled blockable actions.
	if len(spec.BlockableBy) > 0 {
		if bl := earliestAdmissibleBlock(reactions, actor.UserID, action, aliveAtStart); bl != nil {
			blocker := byID[bl.ReactorUserID]
			blocked := true
			if counter := earliestReaction(reactions, models.ReactionChallenge, bl.ReactorUserID, models.TargetBlock); counter != nil && blocker != nil {
				counterer := byID[counter.ReactorUserID]
				if blocker.HasCard(bl.BlockWithRole) {
					// Honest block: the counter-challenger loses an influence
					// and the blocker trades the revealed role for a draw.
					if counterer != nil {
						if lost, ok := loseInfluence(sess, counterer, ""); ok {
							out.CardsRevealed = append(out.CardsRevealed, lost)
						}
					}
					blocker.RemoveCard(bl.BlockWithRole)
					deck.Return(bl.BlockWithRole)
					blocker.Hand = append(blocker.Hand, deck.Draw(1)...)
				} else {
					// Bluffed block: the blocker loses an influence and the
					// action proceeds.
					if lost, ok := loseInfluence(sess, blocker, ""); ok {
						out.CardsRevealed = append(out.CardsRevealed, lost)
					}
					blocked = false
				}
			}
			if blocked {
				// The irrevocable assassination fee is paid even when blocked.
				if action == models.ActionAssassinate {
					actor.Coins -= models.AssassinateCost
					out.CoinsTransferred = -models.AssassinateCost
				}
				out.Outcome = models.OutcomeBlocked
				blockerName := bl.ReactorUserID
				if blocker != nil {
					blockerName = blocker.DisplayName
				}
				out.Description = fmt.Sprintf("%s's %s was blocked by %s",
					actor.DisplayName, action, blockerName)
				return out
			}
		}
	}

	r.applyEffect(sess, deck, actor, &out, aliveAtStart, players)
	return out
}

// applyEffect pays the action's cost and applies its effect. Reaching this
// point means the action was neither cancelled nor unaffordable.
func (r *Resolver) applyEffect(
	sess *models.Session,
	deck *Deck,
	actor *models.PlayerState,
	out *models.ActionOutcome,
	aliveAtStart map[string]bool,
	players []*models.PlayerState,
) {
	if out.Outcome == "" {
		out.Outcome = models.OutcomeSuccess
	}

	switch out.Action {
	case models.ActionIncome:
		actor.Coins++
		out.CoinsTransferred = 1
		out.Description = fmt.Sprintf("%s took income (+1 coin)", actor.DisplayName)

	case models.ActionForeignAid:
		actor.Coins += 2
		out.CoinsTransferred = 2
		out.Description = fmt.Sprintf("%s took foreign aid (+2 coins)", actor.DisplayName)

	case models.ActionTax:
		actor.Coins += 3
		out.CoinsTransferred = 3
		out.Description = fmt.Sprintf("%s collected tax (+3 coins)", actor.DisplayName)

	case models.ActionSteal:
		target := findTarget(players, actor, out.TargetName, aliveAtStart)
		if target == nil {
			out.Outcome = models.OutcomeFailed
			out.Description = fmt.Sprintf("%s's steal failed: no valid target", actor.DisplayName)
			return
		}
		stolen := target.Coins
		if stolen > 2 {
			stolen = 2
		}
		target.Coins -= stolen
		actor.Coins += stolen
		out.CoinsTransferred = stolen
		out.Description = fmt.Sprintf("%s stole %d coins from %s", actor.DisplayName, stolen, target.DisplayName)

	case models.ActionAssassinate:
		target := findTarget(players, actor, out.TargetName, aliveAtStart)
		if target == nil {
			out.Outcome = models.OutcomeFailed
			out.Description = fmt.Sprintf("%s's assassinate failed: no valid target", actor.DisplayName)
			return
		}
		actor.Coins -= models.AssassinateCost
		out.CoinsTransferred = -models.AssassinateCost
		priority := assassinationPriority(sess, actor)
		if lost, ok := loseInfluence(sess, target, priority); ok {
			out.CardsRevealed = append(out.CardsRevealed, lost)
		}
		out.Description = fmt.Sprintf("%s assassinated %s", actor.DisplayName, target.DisplayName)

	case models.ActionCoup:
		target := findTarget(players, actor, out.TargetName, aliveAtStart)
		if target == nil {
			out.Outcome = models.OutcomeFailed
			out.Description = fmt.Sprintf("%s's coup failed: no valid target", actor.DisplayName)
			return
		}
		actor.Coins -= models.CoupCost
		out.CoinsTransferred = -models.CoupCost
		if lost, ok := loseInfluence(sess, target, ""); ok {
			out.CardsRevealed = append(out.CardsRevealed, lost)
		}
		out.Description = fmt.Sprintf("%s launched a coup against %s", actor.DisplayName, target.DisplayName)

	case models.ActionSwap:
		// Both drawn cards join the hand; the 4→2 selection is surfaced to
		// the player out-of-band and resolved via the swap-return endpoint.
		drawn := deck.Draw(2)
		actor.Hand = append(actor.Hand, drawn...)
		out.Description = fmt.Sprintf("%s exchanged influence, drawing %d cards", actor.DisplayName, len(drawn))

	default:
		out.Outcome = models.OutcomeFailed
		out.Description = fmt.Sprintf("%s submitted an unknown action %q", actor.DisplayName, out.Action)
	}

	if out.Outcome == models.OutcomeChallengedWon {
		out.Description += " after winning a challenge"
	}
}

// summarize produces the human-readable turn summary.
func (r *Resolver) summarize(result *models.TurnResult, byID map[string]*models.PlayerState) string {
	if len(result.Outcomes) == 0 && len(result.Eliminated) == 0 {
		return fmt.Sprintf("Turn %d: no actions were taken.", result.TurnNumber)
	}
	parts := make([]string, 0, len(result.Outcomes)+len(result.Eliminated))
	for _, o := range result.Outcomes {
		parts = append(parts, o.Description)
	}
	for _, userID := range result.Eliminated {
		name := userID
		if p := byID[userID]; p != nil {
			name = p.DisplayName
		}
		parts = append(parts, fmt.Sprintf("%s was eliminated", name))
	}
	return fmt.Sprintf("Turn %d: %s.", result.TurnNumber, strings.Join(parts, ". "))
}

// loseInfluence removes one influence from the player and reveals it on the
// session pile. The forced loss is hand index 0 unless priority names a card
// that is present. No-op on an already empty hand.
func loseInfluence(sess *models.Session, player *models.PlayerState, priority models.Card) (models.Card, bool) {
	if player.HandCount() == 0 {
		return "", false
	}
	card := player.Hand[0]
	if priority != "" && player.HasCard(priority) {
		card = priority
	}
	Reveal(sess, player, card)
	return card, true
}

// assassinationPriority returns the upgrade-selected card to remove first,
// or "" when upgrades are disabled or unset.
func assassinationPriority(sess *models.Session, actor *models.PlayerState) models.Card {
	if !sess.UpgradesEnabled || actor.Upgrade == nil {
		return ""
	}
	return actor.Upgrade.AssassinationPriority
}

// findTarget resolves a pending target display name against the players who
// were alive at the start of the turn. Targets eliminated mid-turn remain
// valid; self-targeting never is.
func findTarget(players []*models.PlayerState, actor *models.PlayerState, displayName string, aliveAtStart map[string]bool) *models.PlayerState {
	if displayName == "" {
		return nil
	}
	for _, p := range players {
		if p.UserID == actor.UserID {
			continue
		}
		if p.DisplayName == displayName && aliveAtStart[p.UserID] {
			return p
		}
	}
	return nil
}

// earliestReaction returns the lowest-id unresolved reaction matching kind,
// actor, and target action, or nil.
func earliestReaction(reactions []*models.Reaction, kind models.ReactionKind, actorUserID, targetAction string) *models.Reaction {
	for _, re := range reactions {
		if re.Resolved || re.Kind != kind {
			continue
		}
		if re.ActorUserID == actorUserID && re.TargetAction == targetAction {
			return re
		}
	}
	return nil
}

// earliestAdmissibleBlock returns the lowest-id block against the actor's
// action whose claimed role is actually allowed to block it and whose
// blocker was alive at the start of the turn.
func earliestAdmissibleBlock(reactions []*models.Reaction, actorUserID string, action models.ActionKind, aliveAtStart map[string]bool) *models.Reaction {
	for _, re := range reactions {
		if re.Resolved || re.Kind != models.ReactionBlock {
			continue
		}
		if re.ActorUserID != actorUserID || re.TargetAction != string(action) {
			continue
		}
		if !aliveAtStart[re.ReactorUserID] {
			continue
		}
		if models.CanBlockWith(action, re.BlockWithRole) {
			return re
		}
	}
	return nil
}
