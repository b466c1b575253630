package evaluator

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/feltframe/holdem-core/internal/cards"
)

func mustHand(t *testing.T, s []string) []cards.Card {
	t.Helper()
	cs, err := cards.ParseAll(s)
	assert.NoError(t, err)
	return cs
}

func TestEvaluateRoyalFlush(t *testing.T) {
	hand := mustHand(t, []string{"As", "Ks", "Qs", "Js", "Ts", "2d", "3c"})
	r, err := Evaluate(hand)
	assert.NoError(t, err)
	assert.Equal(t, RoyalFlush, r.Category)
}

func TestEvaluateWheelStraightRanksLow(t *testing.T) {
	hand := mustHand(t, []string{"Ah", "2d", "3c", "4s", "5h", "9c", "Kd"})
	r, err := Evaluate(hand)
	assert.NoError(t, err)
	assert.Equal(t, Straight, r.Category)
	assert.Equal(t, []int{int(cards.Five)}, r.Tiebreakers)
}

func TestEvaluateFullHouseTiebreakOrder(t *testing.T) {
	hand := mustHand(t, []string{"Kh", "Kd", "Kc", "2s", "2h"})
	r, err := Evaluate(hand)
	assert.NoError(t, err)
	assert.Equal(t, FullHouse, r.Category)
	assert.Equal(t, []int{int(cards.King), int(cards.Two)}, r.Tiebreakers)
}

func TestCompareHigherCategoryWins(t *testing.T) {
	flush := mustHand(t, []string{"2s", "5s", "7s", "9s", "Js"})
	pair := mustHand(t, []string{"Kh", "Kd", "2c", "3s", "4h"})

	fr, err := Evaluate(flush)
	assert.NoError(t, err)
	pr, err := Evaluate(pair)
	assert.NoError(t, err)

	assert.Equal(t, 1, Compare(fr, pr))
	assert.Equal(t, -1, Compare(pr, fr))
	assert.Equal(t, 0, Compare(fr, fr))
}

func TestEvaluateRejectsShortHand(t *testing.T) {
	_, err := Evaluate(mustHand(t, []string{"As", "Ks", "Qs"}))
	assert.Error(t, err)
}
