package models

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNextPhaseCycle(t *testing.T) {
	assert.Equal(t, PhaseLockout1, NextPhase(PhaseAction))
	assert.Equal(t, PhaseReaction, NextPhase(PhaseLockout1))
	assert.Equal(t, PhaseLockout2, NextPhase(PhaseReaction))
	assert.Equal(t, PhaseBroadcast, NextPhase(PhaseLockout2))
	assert.Equal(t, PhaseAction, NextPhase(PhaseBroadcast))
	assert.Equal(t, PhaseEnding, NextPhase(PhaseEnding))
}

func TestPhaseDurations(t *testing.T) {
	d := DefaultPhaseDurations()
	assert.True(t, d.Valid())
	assert.Equal(t, 50*time.Minute, d.For(PhaseAction))
	assert.Equal(t, 10*time.Minute, d.For(PhaseLockout1))
	assert.Equal(t, 20*time.Minute, d.For(PhaseReaction))
	assert.Equal(t, 10*time.Minute, d.For(PhaseLockout2))
	assert.Equal(t, 1*time.Minute, d.For(PhaseBroadcast))
	assert.Equal(t, 5*time.Minute, d.For(PhaseEnding))

	d.ReactionMinutes = 0
	assert.False(t, d.Valid())
}

func TestActionSpecs(t *testing.T) {
	assert.Equal(t, 7, ActionSpecs[ActionCoup].Cost)
	assert.Equal(t, 3, ActionSpecs[ActionAssassinate].Cost)
	assert.Equal(t, CardDuke, ActionSpecs[ActionTax].ClaimedRole)
	assert.True(t, ActionSpecs[ActionSteal].Targeted)
	assert.False(t, ActionSpecs[ActionSwap].Targeted)
	assert.False(t, ValidAction("bribe"))

	assert.True(t, CanBlockWith(ActionForeignAid, CardDuke))
	assert.True(t, CanBlockWith(ActionSteal, CardCaptain))
	assert.True(t, CanBlockWith(ActionSteal, CardAmbassador))
	assert.True(t, CanBlockWith(ActionAssassinate, CardContessa))
	assert.False(t, CanBlockWith(ActionTax, CardDuke))
	assert.False(t, CanBlockWith(ActionCoup, CardContessa))
}

func TestTimeRemaining(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	end := now.Add(90 * time.Second)
	sess := &Session{PhaseEndTime: &end}

	assert.Equal(t, 90, sess.TimeRemaining(now))
	assert.Equal(t, 0, sess.TimeRemaining(end.Add(time.Second)))
	assert.Equal(t, 0, (&Session{}).TimeRemaining(now))
}

func TestTruncateContent(t *testing.T) {
	assert.Equal(t, "hello", TruncateContent("hello"))

	long := strings.Repeat("x", MaxChatContentLen+50)
	got := TruncateContent(long)
	runes := []rune(got)
	assert.Len(t, runes, MaxChatContentLen)
	assert.Equal(t, '…', runes[MaxChatContentLen-1])

	// Multi-byte content is cut on rune boundaries.
	wide := strings.Repeat("ß", MaxChatContentLen+1)
	assert.Len(t, []rune(TruncateContent(wide)), MaxChatContentLen)
}

func TestPublicViewHidesHand(t *testing.T) {
	p := &PlayerState{
		UserID:        "u1",
		DisplayName:   "alice",
		Coins:         4,
		Hand:          []Card{CardDuke, CardContessa},
		Alive:         true,
		PendingAction: ActionTax,
		Upgrade:       &UpgradeFlags{AssassinationPriority: CardDuke},
	}
	view := p.PublicView()
	assert.Equal(t, 2, view.HandCount)
	assert.Equal(t, ActionTax, view.PendingAction)
}

func TestRemoveCard(t *testing.T) {
	p := &PlayerState{Hand: []Card{CardDuke, CardDuke, CardContessa}}
	assert.True(t, p.RemoveCard(CardDuke))
	assert.Equal(t, []Card{CardDuke, CardContessa}, p.Hand)
	assert.False(t, p.RemoveCard(CardCaptain))
}
