// Package models contains the shared domain types for the Coup game service.
package models

// Card is one of the five role cards in the deck.
type Card string

// Role cards.
const (
	CardDuke       Card = "duke"
	CardAssassin   Card = "assassin"
	CardCaptain    Card = "captain"
	CardAmbassador Card = "ambassador"
	CardContessa   Card = "contessa"
)

// CopiesPerCard is how many copies of each role the deck holds.
const CopiesPerCard = 3

// DeckSize is the total card count across deck, revealed pile, and hands.
const DeckSize = 15

// AllCards lists every role card kind in a stable order.
var AllCards = []Card{CardDuke, CardAssassin, CardCaptain, CardAmbassador, CardContessa}

// ValidCard reports whether c is a known role card.
func ValidCard(c Card) bool {
	for _, k := range AllCards {
		if k == c {
			return true
		}
	}
	return false
}

// CardsToStrings converts a card slice for text[] column storage.
func CardsToStrings(cards []Card) []string {
	out := make([]string, len(cards))
	for i, c := range cards {
		out[i] = string(c)
	}
	return out
}

// StringsToCards converts a text[] column value back into cards.
func StringsToCards(values []string) []Card {
	out := make([]Card, len(values))
	for i, v := range values {
		out[i] = Card(v)
	}
	return out
}
