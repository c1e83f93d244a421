// Package deck holds the immutable card content and the draw piles built from it.
package deck

import (
	"github.com/cory-johannsen/hetman/internal/game/rng"
)

// Deck is an ordered draw pile. The top of the pile is index 0.
//
// Deck is not safe for concurrent use; a room's decks are guarded by the room lock.
type Deck struct {
	cards []string
}

// New returns a Deck holding a copy of cards in the given order.
func New(cards []string) *Deck {
	return &Deck{cards: append([]string(nil), cards...)}
}

// Shuffled returns a Deck holding a copy of cards in an order drawn from src.
//
// Precondition: src must be non-nil.
func Shuffled(src rng.Source, cards []string) *Deck {
	d := New(cards)
	rng.Shuffle(src, d.cards)
	return d
}

// Len returns the number of cards left in the pile.
func (d *Deck) Len() int {
	return len(d.cards)
}

// Draw removes and returns up to n cards from the top.
//
// Postcondition: len(result) == min(n, previous Len()).
func (d *Deck) Draw(n int) []string {
	if n <= 0 {
		return nil
	}
	if n > len(d.cards) {
		n = len(d.cards)
	}
	drawn := append([]string(nil), d.cards[:n]...)
	d.cards = d.cards[n:]
	return drawn
}

// PutBottom appends cards to the bottom of the pile in order.
func (d *Deck) PutBottom(cards ...string) {
	d.cards = append(d.cards, cards...)
}

// Cards returns a copy of the remaining pile, top first.
func (d *Deck) Cards() []string {
	return append([]string(nil), d.cards...)
}
