package game

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coupgame/coupd/pkg/models"
)

func TestNewDeckHoldsFifteenCards(t *testing.T) {
	deck := NewDeck(testRNG())
	require.Equal(t, models.DeckSize, deck.Len())

	counts := map[models.Card]int{}
	for _, c := range deck.Cards() {
		counts[c]++
	}
	for _, kind := range models.AllCards {
		assert.Equal(t, models.CopiesPerCard, counts[kind], "card %s", kind)
	}
}

func TestDeckShuffleIsSeeded(t *testing.T) {
	a := NewDeck(testRNG())
	b := NewDeck(testRNG())
	assert.Equal(t, a.Cards(), b.Cards())
}

func TestDeckDrawUnderfull(t *testing.T) {
	deck := FromCards([]models.Card{models.CardDuke}, testRNG())
	drawn := deck.Draw(2)
	assert.Equal(t, []models.Card{models.CardDuke}, drawn)
	assert.Equal(t, 0, deck.Len())
	assert.Empty(t, deck.Draw(1))
}

func TestDeckReturnReshuffles(t *testing.T) {
	deck := FromCards([]models.Card{models.CardDuke, models.CardCaptain}, testRNG())
	deck.Return(models.CardContessa)
	assert.Equal(t, 3, deck.Len())

	counts := map[models.Card]int{}
	for _, c := range deck.Cards() {
		counts[c]++
	}
	assert.Equal(t, 1, counts[models.CardContessa])
}

func TestDeckDeal(t *testing.T) {
	deck := NewDeck(testRNG())
	players := []*models.PlayerState{
		{UserID: "u1", Alive: true},
		{UserID: "u2", Alive: true},
		{UserID: "u3", Alive: true},
	}
	require.NoError(t, deck.Deal(players))
	for _, p := range players {
		assert.Equal(t, 2, p.HandCount())
	}
	assert.Equal(t, models.DeckSize-6, deck.Len())
}

func TestDeckDealFailsWhenShort(t *testing.T) {
	deck := FromCards([]models.Card{models.CardDuke}, testRNG())
	err := deck.Deal([]*models.PlayerState{{UserID: "u1"}})
	assert.Error(t, err)
}

func TestRevealMovesCardToPile(t *testing.T) {
	sess := &models.Session{ID: "s"}
	p := &models.PlayerState{UserID: "u1", Hand: []models.Card{models.CardDuke, models.CardContessa}}

	require.True(t, Reveal(sess, p, models.CardContessa))
	assert.Equal(t, []models.Card{models.CardDuke}, p.Hand)
	assert.Equal(t, []models.Card{models.CardContessa}, sess.Revealed)

	assert.False(t, Reveal(sess, p, models.CardCaptain))
}

func TestDetermineWinners(t *testing.T) {
	t.Run("single survivor wins", func(t *testing.T) {
		winners := DetermineWinners([]*models.PlayerState{
			{DisplayName: "alice", Alive: true, Coins: 1},
			{DisplayName: "bob", Alive: false, Coins: 9},
		})
		assert.Equal(t, []string{"alice"}, winners)
	})

	t.Run("richest alive players share on turn limit", func(t *testing.T) {
		winners := DetermineWinners([]*models.PlayerState{
			{DisplayName: "alice", Alive: true, Coins: 5},
			{DisplayName: "bob", Alive: true, Coins: 5},
			{DisplayName: "carol", Alive: true, Coins: 2},
		})
		assert.Equal(t, []string{"alice", "bob"}, winners)
	})

	t.Run("no survivors", func(t *testing.T) {
		assert.Nil(t, DetermineWinners([]*models.PlayerState{{DisplayName: "alice"}}))
	})
}

func TestGameOver(t *testing.T) {
	sess := &models.Session{TurnNumber: 2, TurnLimit: 0}
	two := []*models.PlayerState{{Alive: true}, {Alive: true}}
	one := []*models.PlayerState{{Alive: true}, {Alive: false}}

	assert.False(t, GameOver(sess, two))
	assert.True(t, GameOver(sess, one))

	limited := &models.Session{TurnNumber: 4, TurnLimit: 3}
	assert.True(t, GameOver(limited, two))
	limited.TurnNumber = 3
	assert.False(t, GameOver(limited, two))
}
