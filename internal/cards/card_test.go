package cards

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseRoundTrip(t *testing.T) {
	for _, s := range []string{"Ah", "Ts", "2c", "Kd", "9h"} {
		c, err := Parse(s)
		assert.NoError(t, err)
		assert.Equal(t, s, c.String())
	}
}

func TestParseRejectsMalformed(t *testing.T) {
	for _, s := range []string{"", "A", "Ahh", "1h", "Az"} {
		_, err := Parse(s)
		assert.Error(t, err)
	}
}

func TestNewShuffledDeckHas52UniqueCards(t *testing.T) {
	d := NewShuffledDeck()
	assert.Equal(t, 52, d.Remaining())

	seen := make(map[Card]bool, 52)
	for d.Remaining() > 0 {
		c, ok := d.Draw()
		assert.True(t, ok)
		assert.False(t, seen[c], "duplicate card dealt: %s", c)
		seen[c] = true
	}
	assert.Equal(t, 52, len(seen))
	_, ok := d.Draw()
	assert.False(t, ok)
}

func TestDrawNStopsAtExhaustion(t *testing.T) {
	d := NewShuffledDeck()
	cards, ok := d.DrawN(52)
	assert.True(t, ok)
	assert.Len(t, cards, 52)

	_, ok = d.DrawN(1)
	assert.False(t, ok)
}
