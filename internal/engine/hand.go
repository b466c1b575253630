package engine

import (
	"github.com/feltframe/holdem-core/internal/cards"
)

// StartHand implements §4.1 startHand: deals a fresh hand into Table t,
// provided the WAITING precondition holds. On INSUFFICIENT_PLAYERS the
// table is deterministically left (or returned) in WAITING rather than
// failing the caller with a crash-shaped error, per §7's user-visible
// failure behavior.
func StartHand(t Table) (Table, []Event, []ScheduledTask, error) {
	return startHand(t, cards.NewShuffledDeck())
}

// StartHandWithDeck is StartHand with the shuffle fixed to the supplied
// deck, mirroring the teacher's NewHandStateWithDeck: used by tests that
// need a reproducible deal to a known showdown outcome.
func StartHandWithDeck(t Table, deck *cards.Deck) (Table, []Event, []ScheduledTask, error) {
	return startHand(t, deck)
}

func startHand(t Table, deck *cards.Deck) (Table, []Event, []ScheduledTask, error) {
	if t.Status != Waiting {
		return t, nil, nil, newErr(InvalidGameState, "table %s is not WAITING", t.ID)
	}

	out := t.Clone()

	eligible := eligibleSeats(out)
	if countWithChips(out, eligible, out.Config.BigBlind) < 2 {
		out.Status = Waiting
		task := armAutoClose(&out)
		return out, nil, []ScheduledTask{task}, newErr(InsufficientPlayers, "table %s needs at least 2 seats with chips >= big blind", t.ID)
	}

	out.HandNumber++
	out.Status = Playing
	out.Stage = StageNone
	out.HandResult = nil
	out.CommunityCards = nil
	out.Pot = 0
	out.deadMoney = nil
	out.clearHoleCards()

	for i := range out.Seats {
		s := &out.Seats[i]
		s.HoleCards = nil
		s.RoundBet = 0
		s.TotalBet = 0
		s.TurnActed = false
		s.IsDealer = false
		s.IsSmallBlind = false
		s.IsBigBlind = false
		s.TimedOut = false
		s.RaiseClosed = false
		if s.Status == WaitingForHand {
			s.Status = Active
		}
	}

	participating := map[int]bool{}
	for _, idx := range eligible {
		participating[idx] = true
	}

	out.DealerSeat = nextParticipant(out, out.DealerSeat, participating)
	out.Seats[out.DealerSeat].IsDealer = true

	headsUp := len(eligible) == 2

	var sbSeat, bbSeat int
	if headsUp {
		sbSeat = out.DealerSeat
		bbSeat = nextParticipant(out, sbSeat, participating)
	} else {
		sbSeat = nextParticipant(out, out.DealerSeat, participating)
		bbSeat = nextParticipant(out, sbSeat, participating)
	}
	out.Seats[sbSeat].IsSmallBlind = true
	out.Seats[bbSeat].IsBigBlind = true

	postBlind(&out.Seats[sbSeat], out.Config.SmallBlind)
	postBlind(&out.Seats[bbSeat], out.Config.BigBlind)
	// Blinds stay in roundBet, like any other bet, until the betting round
	// closes and advanceRound sweeps roundBet into Pot — keeps invariant #1
	// (pot + Σ roundBet == contributed) true at every instant, including
	// immediately after blinds post.

	out.deck = deck
	dealOrder := clockwiseOrder(out, sbSeat, participating)
	for _, seatIdx := range dealOrder {
		hc, ok := deck.DrawN(2)
		if !ok {
			return t, nil, nil, newErr(InvalidGameState, "deck exhausted dealing hand %d", out.HandNumber)
		}
		out.setHoleCards(seatIdx, hc)
	}

	out.CurrentRound = Preflop
	out.CurrentBet = out.Config.BigBlind
	out.MinRaise = out.Config.BigBlind
	out.LastAggressorSeat = bbSeat
	out.ConsecutiveAutoActions = 0

	var firstToAct int
	if headsUp {
		firstToAct = sbSeat
	} else {
		firstToAct = nextParticipant(out, bbSeat, participating)
	}
	out.CurrentTurn = firstToAct
	out.CurrentTurnID = mintToken()

	events := []Event{{Type: EventHandStart, HandNumber: out.HandNumber, Round: Preflop}}
	tasks := []ScheduledTask{turnTimeoutTask(out)}
	return out, events, tasks, nil
}

func eligibleSeats(t Table) []int {
	var out []int
	for _, s := range t.Seats {
		if s.Status == Active || s.Status == WaitingForHand {
			out = append(out, s.Index)
		}
	}
	return out
}

func countWithChips(t Table, seats []int, min int64) int {
	n := 0
	for _, idx := range seats {
		if t.Seats[idx].Chips >= min {
			n++
		}
	}
	return n
}

// nextParticipant returns the next seat index clockwise after `from`
// (exclusive) that is a member of participating, wrapping around MaxSeats.
// from == -1 is treated as "start of table" so the very first dealer
// rotation lands on the lowest participating index.
func nextParticipant(t Table, from int, participating map[int]bool) int {
	n := len(t.Seats)
	start := from
	if start < 0 {
		start = n - 1
	}
	for i := 1; i <= n; i++ {
		idx := (start + i) % n
		if participating[idx] {
			return idx
		}
	}
	return from
}

// clockwiseOrder returns every participating seat starting at `from`
// (inclusive) going clockwise, used to fix hole-card deal order.
func clockwiseOrder(t Table, from int, participating map[int]bool) []int {
	n := len(t.Seats)
	var out []int
	for i := 0; i < n; i++ {
		idx := (from + i) % n
		if participating[idx] {
			out = append(out, idx)
		}
	}
	return out
}

func postBlind(s *Seat, amount int64) {
	posted := amount
	if s.Chips < posted {
		posted = s.Chips
	}
	s.Chips -= posted
	s.RoundBet += posted
	s.TotalBet += posted
	if s.Chips == 0 {
		s.Status = SeatAllIn
	}
}

func turnTimeoutTask(t Table) ScheduledTask {
	return ScheduledTask{
		Kind:    TaskTurnTimeout,
		TableID: t.ID,
		Token:   t.CurrentTurnID,
		Delay:   t.Config.TurnTimeout,
	}
}

// armAutoClose mints a fresh AutoCloseToken on out and returns the paired
// ScheduledTask for the idle-timeout sweeper (§3 "CLOSED after an
// idle-timeout sweeper", §6 handleRoomAutoClose). Called wherever a pipeline
// step settles a table into WAITING with nothing already about to happen
// next (no auto-started hand, no pending reveal window): the armed token is
// superseded (never cancelled) the moment any later activity mints a new
// one, so a stale delivery is just another zombie token to HandleRoomAutoClose.
func armAutoClose(out *Table) ScheduledTask {
	out.AutoCloseToken = mintToken()
	return ScheduledTask{
		Kind:    TaskAutoClose,
		TableID: out.ID,
		Token:   out.AutoCloseToken,
		Delay:   out.Config.IdleTableClose,
	}
}

// ArmAutoClose is armAutoClose's entry point for the server handler, used
// wherever a table settles into WAITING outside the engine's own pipeline
// steps: table creation, and a seat joining or leaving while already
// WAITING.
func ArmAutoClose(t Table) (Table, ScheduledTask) {
	out := t.Clone()
	task := armAutoClose(&out)
	return out, task
}
