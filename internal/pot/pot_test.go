package pot

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// rankInt is a trivial Rank implementation for tests: higher int wins.
type rankInt int

func cmpInt(a, b Rank) int {
	ai, bi := a.(rankInt), b.(rankInt)
	if ai > bi {
		return 1
	}
	if ai < bi {
		return -1
	}
	return 0
}

func TestBuildPotsThreeWaySidePot(t *testing.T) {
	// Fixture #2: A all-in 100, B all-in 200, C calls 200.
	contributors := []Contributor{
		{SeatIndex: 0, TotalBet: 100}, // A
		{SeatIndex: 1, TotalBet: 200}, // B
		{SeatIndex: 2, TotalBet: 200}, // C
	}
	pots := BuildPots(contributors)
	assert.Len(t, pots, 2)

	main := pots[0]
	assert.Equal(t, int64(300), main.Amount)
	assert.Equal(t, []int{0, 1, 2}, main.Eligible)

	side := pots[1]
	assert.Equal(t, int64(200), side.Amount)
	assert.Equal(t, []int{1, 2}, side.Eligible)
}

func TestAwardSplitsEquallyAndGivesRemainderClockwise(t *testing.T) {
	p := Pot{Amount: 301, Eligible: []int{0, 1, 2}}
	hands := map[int]Rank{0: rankInt(5), 1: rankInt(5), 2: rankInt(5)}

	// dealer at seat 2: clockwise order from dealer is 0, 1, 2.
	payouts := Award(p, hands, cmpInt, 2, 3)
	assert.Len(t, payouts, 3)

	byShare := map[int]int64{}
	for _, pay := range payouts {
		byShare[pay.SeatIndex] = pay.Amount
	}
	assert.Equal(t, int64(101), byShare[0])
	assert.Equal(t, int64(100), byShare[1])
	assert.Equal(t, int64(100), byShare[2])
}

func TestAwardSkipsNonWinners(t *testing.T) {
	p := Pot{Amount: 100, Eligible: []int{0, 1}}
	hands := map[int]Rank{0: rankInt(9), 1: rankInt(3)}
	payouts := Award(p, hands, cmpInt, 0, 2)
	assert.Equal(t, []Payout{{SeatIndex: 0, Amount: 100}}, payouts)
}

func TestCollapseSingleWinner(t *testing.T) {
	p := Pot{Amount: 50, Eligible: []int{4}}
	seat, ok := CollapseSingleWinner(p)
	assert.True(t, ok)
	assert.Equal(t, 4, seat)

	_, ok = CollapseSingleWinner(Pot{Eligible: []int{1, 2}})
	assert.False(t, ok)
}

func TestBuildPotsIgnoresZeroBets(t *testing.T) {
	contributors := []Contributor{
		{SeatIndex: 0, TotalBet: 0},
		{SeatIndex: 1, TotalBet: 40},
		{SeatIndex: 2, TotalBet: 40},
	}
	pots := BuildPots(contributors)
	assert.Len(t, pots, 1)
	assert.Equal(t, int64(80), pots[0].Amount)
}

func TestBuildPotsExcludesFoldedFromEligibilityButKeepsDeadMoney(t *testing.T) {
	contributors := []Contributor{
		{SeatIndex: 0, TotalBet: 40, Folded: true},
		{SeatIndex: 1, TotalBet: 40},
		{SeatIndex: 2, TotalBet: 40},
	}
	pots := BuildPots(contributors)
	assert.Len(t, pots, 1)
	assert.Equal(t, int64(120), pots[0].Amount)
	assert.Equal(t, []int{1, 2}, pots[0].Eligible)
}
