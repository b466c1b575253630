package cards

import (
	"crypto/rand"
	"encoding/binary"
	mathrand "math/rand"
	"time"
)

// Deck is a shuffled, mutable sequence of cards drawn from the top. It is
// ephemeral and per-hand: §5 forbids persisting it beyond the hand it was
// dealt for, so Deck carries no persistence methods of its own — the
// engine snapshots only the cards it has dealt, never the remaining shoe.
type Deck struct {
	remaining []Card
}

// NewShuffledDeck builds a full 52-card deck and shuffles it with a
// cryptographically strong seed, per spec §9 ("deterministic shuffle: use a
// cryptographically strong RNG; do not persist the seed").
func NewShuffledDeck() *Deck {
	d := &Deck{remaining: make([]Card, 0, 52)}
	for _, s := range suitsInOrder {
		for _, r := range ranksInOrder {
			d.remaining = append(d.remaining, Card{Rank: r, Suit: s})
		}
	}
	d.shuffle(cryptoSeededRand())
	return d
}

// NewShuffledDeckFromRand shuffles a full deck using the supplied source,
// used by tests that need a reproducible deal.
func NewShuffledDeckFromRand(r *mathrand.Rand) *Deck {
	d := &Deck{remaining: make([]Card, 0, 52)}
	for _, s := range suitsInOrder {
		for _, rk := range ranksInOrder {
			d.remaining = append(d.remaining, Card{Rank: rk, Suit: s})
		}
	}
	d.shuffle(r)
	return d
}

// NewDeckFromCards builds a deck that deals the given cards in order,
// undealt-top-first, with no shuffle applied. Used by tests that need a
// fixed showdown outcome; production code always deals from a shuffled deck.
func NewDeckFromCards(cards []Card) *Deck {
	d := &Deck{remaining: make([]Card, len(cards))}
	copy(d.remaining, cards)
	return d
}

func (d *Deck) shuffle(r *mathrand.Rand) {
	r.Shuffle(len(d.remaining), func(i, j int) {
		d.remaining[i], d.remaining[j] = d.remaining[j], d.remaining[i]
	})
}

func cryptoSeededRand() *mathrand.Rand {
	var seedBytes [8]byte
	if _, err := rand.Read(seedBytes[:]); err != nil {
		// crypto/rand failure is a fatal environment problem; fall back to a
		// time-derived seed rather than dealing with an all-zero shuffle.
		return mathrand.New(mathrand.NewSource(time.Now().UnixNano()))
	}
	seed := int64(binary.LittleEndian.Uint64(seedBytes[:]))
	return mathrand.New(mathrand.NewSource(seed))
}

// Draw removes and returns the top card. ok is false once the deck is empty.
func (d *Deck) Draw() (Card, bool) {
	if len(d.remaining) == 0 {
		return Card{}, false
	}
	c := d.remaining[0]
	d.remaining = d.remaining[1:]
	return c, true
}

// DrawN draws n cards in order, or returns false if the deck is exhausted
// first (leaving the deck state unspecified — callers never retry a failed
// DrawN mid-hand, since 52 cards always covers a full 10-handed deal).
func (d *Deck) DrawN(n int) ([]Card, bool) {
	out := make([]Card, 0, n)
	for i := 0; i < n; i++ {
		c, ok := d.Draw()
		if !ok {
			return nil, false
		}
		out = append(out, c)
	}
	return out, true
}

// Remaining returns the count of undealt cards.
func (d *Deck) Remaining() int {
	return len(d.remaining)
}
