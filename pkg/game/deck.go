// Package game implements the rules engine: the deck manager and the
// deterministic turn resolver. Everything here is pure over in-memory
// snapshots; callers persist the staged mutations in their own transaction.
package game

import (
	"fmt"

	"github.com/coupgame/coupd/pkg/models"
)

// Deck is a shuffled pool of role cards. The zero value is unusable; build
// one with NewDeck or FromCards. The RNG is injectable so tests can pin a
// seed.
type Deck struct {
	cards []models.Card
	rng   RNG
}

// NewDeck builds the full 15-card pool (three copies of each role) and
// shuffles it.
func NewDeck(rng RNG) *Deck {
	cards := make([]models.Card, 0, models.DeckSize)
	for _, kind := range models.AllCards {
		for i := 0; i < models.CopiesPerCard; i++ {
			cards = append(cards, kind)
		}
	}
	d := &Deck{cards: cards, rng: rng}
	d.Shuffle()
	return d
}

// FromCards wraps an existing ordered card sequence, typically loaded from
// a session row.
func FromCards(cards []models.Card, rng RNG) *Deck {
	copied := make([]models.Card, len(cards))
	copy(copied, cards)
	return &Deck{cards: copied, rng: rng}
}

// Cards returns the deck's ordered contents for persistence.
func (d *Deck) Cards() []models.Card {
	out := make([]models.Card, len(d.cards))
	copy(out, d.cards)
	return out
}

// Len returns the number of cards remaining.
func (d *Deck) Len() int {
	return len(d.cards)
}

// Shuffle reorders the deck uniformly.
func (d *Deck) Shuffle() {
	d.rng.Shuffle(len(d.cards), func(i, j int) {
		d.cards[i], d.cards[j] = d.cards[j], d.cards[i]
	})
}

// Draw removes and returns up to n cards from the top of the deck. An
// underfull deck yields what remains; that is not an error.
func (d *Deck) Draw(n int) []models.Card {
	if n > len(d.cards) {
		n = len(d.cards)
	}
	drawn := make([]models.Card, n)
	copy(drawn, d.cards[:n])
	d.cards = d.cards[n:]
	return drawn
}

// Return puts cards back into the pool and reshuffles.
func (d *Deck) Return(cards ...models.Card) {
	d.cards = append(d.cards, cards...)
	d.Shuffle()
}

// Deal pops two cards per player and assigns them as starting hands.
// Fails if the deck cannot cover every player; that is an invariant
// violation, not a game-rule condition.
func (d *Deck) Deal(players []*models.PlayerState) error {
	if len(d.cards) < 2*len(players) {
		return fmt.Errorf("deck has %d cards, cannot deal 2 to %d players", len(d.cards), len(players))
	}
	for _, p := range players {
		p.Hand = d.Draw(2)
	}
	return nil
}

// Reveal moves card from the player's hand to the session's revealed pile.
// Reports whether the card was present.
func Reveal(sess *models.Session, player *models.PlayerState, card models.Card) bool {
	if !player.RemoveCard(card) {
		return false
	}
	sess.Revealed = append(sess.Revealed, card)
	return true
}
