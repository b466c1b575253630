package engine

import (
	"github.com/feltframe/holdem-core/internal/cards"
	"github.com/feltframe/holdem-core/internal/evaluator"
	"github.com/feltframe/holdem-core/internal/pot"
)

// advanceRound implements §4.1's internal advanceRound: sweeps the closed
// round's bets into the pot, deals the next street, and either hands off to
// the next better, runs out the board for an effective all-in (§4.1), or
// enters showdown.
func advanceRound(out *Table) ([]Event, []ScheduledTask) {
	sweepRoundBets(out)
	dealNextStreet(out)

	// Effective all-in: at most one player can still voluntarily bet, and
	// the round that just closed proves all pending calls are settled, so
	// it is safe to run the board out immediately instead of waiting for
	// action nobody can take.
	if out.CurrentRound != ShowdownRound && liveBettors(*out) <= 1 {
		for out.CurrentRound != ShowdownRound {
			dealNextStreet(out)
		}
	}

	if out.CurrentRound == ShowdownRound {
		return enterShowdown(out)
	}

	out.CurrentTurn = nextToAct(*out, out.DealerSeat)
	out.CurrentTurnID = mintToken()
	return nil, []ScheduledTask{turnTimeoutTask(*out)}
}

func sweepRoundBets(out *Table) {
	for i := range out.Seats {
		out.Pot += out.Seats[i].RoundBet
		out.Seats[i].RoundBet = 0
		out.Seats[i].TurnActed = false
		out.Seats[i].RaiseClosed = false
	}
	out.CurrentBet = 0
	out.MinRaise = out.Config.BigBlind
	out.LastAggressorSeat = -1
}

func dealNextStreet(out *Table) {
	switch out.CurrentRound {
	case Preflop:
		cs, _ := out.deck.DrawN(3)
		out.CommunityCards = append(out.CommunityCards, cs...)
		out.CurrentRound = Flop
	case Flop:
		cs, _ := out.deck.DrawN(1)
		out.CommunityCards = append(out.CommunityCards, cs...)
		out.CurrentRound = Turn
	case Turn:
		cs, _ := out.deck.DrawN(1)
		out.CommunityCards = append(out.CommunityCards, cs...)
		out.CurrentRound = River
	case River:
		out.CurrentRound = ShowdownRound
	}
}

// enterShowdown marks the hand as awaiting resolution and schedules the
// delayed showdown-resolve task (§4.4/§6 handleShowdownResolve), giving
// clients a beat to see the completed board before payouts are applied.
func enterShowdown(out *Table) ([]Event, []ScheduledTask) {
	out.Stage = StageShowdown
	out.CurrentTurn = -1
	out.CurrentTurnID = ""
	out.ShowdownID = mintToken()
	events := []Event{{Type: EventShowdown, HandNumber: out.HandNumber, Round: ShowdownRound, Detail: "board_complete"}}
	tasks := []ScheduledTask{{Kind: TaskShowdown, TableID: out.ID, Token: out.ShowdownID, Delay: out.Config.ShowdownAdmire}}
	return events, tasks
}

// ResolveShowdown implements the handleShowdownResolve scheduled-task entry
// point (§6): builds side pots, evaluates every eligible hand, applies
// payouts and writes the HandResult. It is token-checked: a stale or
// duplicate delivery is a benign no-op.
func ResolveShowdown(t Table, showdownID string) (Table, []Event, []ScheduledTask, error) {
	if t.Stage != StageShowdown || t.ShowdownID != showdownID {
		return t, nil, nil, nil // zombie delivery, §4.4
	}

	out := t.Clone()

	contributors := make([]pot.Contributor, 0, len(out.Seats))
	for _, s := range out.Seats {
		if s.TotalBet <= 0 {
			continue
		}
		contributors = append(contributors, pot.Contributor{
			SeatIndex: s.Index,
			TotalBet:  s.TotalBet,
			Folded:    s.Status == Folded,
		})
	}
	for _, dm := range out.deadMoney {
		contributors = append(contributors, pot.Contributor{SeatIndex: -1, TotalBet: dm.TotalBet, Folded: true})
	}

	pots := pot.BuildPots(contributors)

	hands := make(map[int]evaluator.Result, len(out.Seats))
	eligibleSeatSet := map[int]bool{}
	for _, p := range pots {
		for _, seatIdx := range p.Eligible {
			eligibleSeatSet[seatIdx] = true
		}
	}
	for seatIdx := range eligibleSeatSet {
		hole := out.HoleCards(seatIdx)
		full := append([]cards.Card(nil), hole...)
		full = append(full, out.CommunityCards...)
		r, err := evaluator.Evaluate(full)
		if err != nil {
			return t, nil, nil, newErr(InvalidGameState, "evaluate seat %d: %v", seatIdx, err)
		}
		hands[seatIdx] = r
	}

	cmp := func(a, b pot.Rank) int { return evaluator.Compare(a.(evaluator.Result), b.(evaluator.Result)) }

	winningsBySeat := map[int]int64{}
	var potRecords []PotRecord
	for _, p := range pots {
		ranks := make(map[int]pot.Rank, len(p.Eligible))
		for _, seatIdx := range p.Eligible {
			if r, ok := hands[seatIdx]; ok {
				ranks[seatIdx] = r
			}
		}

		var payouts []pot.Payout
		if seat, ok := pot.CollapseSingleWinner(p); ok {
			payouts = []pot.Payout{{SeatIndex: seat, Amount: p.Amount}}
		} else {
			payouts = pot.Award(p, ranks, cmp, out.DealerSeat, len(out.Seats))
		}

		record := PotRecord{Amount: p.Amount, Eligible: p.Eligible}
		for _, payout := range payouts {
			winningsBySeat[payout.SeatIndex] += payout.Amount
			r := hands[payout.SeatIndex]
			record.Winners = append(record.Winners, HandWinner{
				SeatIndex:   payout.SeatIndex,
				PlayerID:    seatPlayerID(out, payout.SeatIndex),
				Amount:      payout.Amount,
				HandName:    r.Category.String(),
				Tiebreakers: r.Tiebreakers,
				BestHand:    r.Best,
			})
		}
		potRecords = append(potRecords, record)
	}

	out.Pot = 0
	for seatIdx, amount := range winningsBySeat {
		out.Seats[seatIdx].Chips += amount
	}

	// Reveal hole cards for every eligible seat: showdown is public by
	// definition, unlike a win-by-fold where only the winner may choose.
	for seatIdx := range eligibleSeatSet {
		out.Seats[seatIdx].HoleCards = out.HoleCards(seatIdx)
	}

	hadAllIn := false
	for _, s := range t.Seats {
		if s.Status == SeatAllIn {
			hadAllIn = true
		}
	}
	out.HandResult = &HandResult{
		Pots:       potRecords,
		LargePot:   sumPots(potRecords) >= 50*out.Config.BigBlind,
		StrongHand: bestCategorySeen(potRecords) >= int(evaluator.FullHouse),
		HadAllIn:   hadAllIn,
	}
	out.Stage = StageShowdownComplete
	out.Status = Waiting
	bustOutSeats(&out, nil)

	events := []Event{{Type: EventReveal, HandNumber: out.HandNumber, Round: ShowdownRound, Detail: "showdown_resolved"}}
	tasks := maybeScheduleNextHand(&out)
	return out, events, tasks, nil
}

func sumPots(records []PotRecord) int64 {
	var total int64
	for _, r := range records {
		total += r.Amount
	}
	return total
}

func bestCategorySeen(records []PotRecord) int {
	best := -1
	for _, r := range records {
		for _, w := range r.Winners {
			cat := categoryOfName(w.HandName)
			if cat > best {
				best = cat
			}
		}
	}
	return best
}

func categoryOfName(name string) int {
	for c := evaluator.HighCard; c <= evaluator.RoyalFlush; c++ {
		if c.String() == name {
			return int(c)
		}
	}
	return -1
}

func seatPlayerID(t Table, seatIdx int) string {
	if seatIdx < 0 || seatIdx >= len(t.Seats) {
		return ""
	}
	return t.Seats[seatIdx].PlayerID
}

// resolveLastManStanding implements §4.1's last-man-standing rule: the sole
// remaining contestant is awarded the pot without a showdown. The winner's
// hole cards remain private (not auto-revealed) for the §4.4 reveal window.
func resolveLastManStanding(out *Table) ([]Event, []ScheduledTask) {
	var winnerIdx int = -1
	for _, s := range out.Seats {
		if s.Status == Active || s.Status == SeatAllIn {
			winnerIdx = s.Index
			break
		}
	}

	sweepRoundBets(out)

	amount := out.Pot
	out.Pot = 0
	out.Seats[winnerIdx].Chips += amount

	hadAllIn := false
	for _, s := range out.Seats {
		if s.Status == SeatAllIn {
			hadAllIn = true
		}
	}

	out.HandResult = &HandResult{
		WinByFold:       true,
		LastManStanding: true,
		HadAllIn:        hadAllIn,
		Winner: &HandWinner{
			SeatIndex: winnerIdx,
			PlayerID:  out.Seats[winnerIdx].PlayerID,
			Amount:    amount,
		},
	}
	out.Stage = StageWinByFold
	out.Status = Waiting
	out.CurrentTurn = -1
	out.CurrentTurnID = ""
	out.WinByFoldID = mintToken()
	bustOutSeats(out, map[int]bool{winnerIdx: true})

	events := []Event{{Type: EventWinByFold, HandNumber: out.HandNumber, SeatIndex: winnerIdx, PlayerID: out.Seats[winnerIdx].PlayerID, Amount: amount}}
	tasks := []ScheduledTask{{Kind: TaskWinByFold, TableID: out.ID, Token: out.WinByFoldID, Delay: out.Config.WinByFoldReveal}}
	return events, tasks
}

// ShowCards implements §6 showCards: only legal during the win-by-fold
// window, and only for the hand's winner.
func ShowCards(t Table, playerID string) (Table, []Event, error) {
	if t.Stage != StageWinByFold || t.HandResult == nil || t.HandResult.Winner == nil {
		return t, nil, newErr(InvalidGameState, "no win-by-fold reveal window is open")
	}
	winner := t.HandResult.Winner
	if winner.PlayerID != playerID {
		return t, nil, newErr(NotAuthorized, "only the hand winner may reveal cards")
	}

	out := t.Clone()
	out.Seats[winner.SeatIndex].HoleCards = out.HoleCards(winner.SeatIndex)
	events := []Event{{Type: EventReveal, HandNumber: out.HandNumber, SeatIndex: winner.SeatIndex, PlayerID: playerID, Detail: "voluntary_reveal"}}
	return out, events, nil
}

// HandleWinByFoldTimeout implements the handleWinByFoldTimeout scheduled
// task: once the reveal window elapses, hole cards are mucked (already
// private unless ShowCards was called) and the next hand is scheduled if
// auto-next is on.
func HandleWinByFoldTimeout(t Table, winByFoldID string) (Table, []Event, []ScheduledTask, error) {
	if t.Stage != StageWinByFold || t.WinByFoldID != winByFoldID {
		return t, nil, nil, nil // zombie delivery
	}
	out := t.Clone()
	out.Stage = StageShowdownComplete
	tasks := maybeScheduleNextHand(&out)
	return out, nil, tasks, nil
}

// HandleTurnTimeout implements §4.4's timeout action selection: auto-fold
// if facing a bet, otherwise auto-check.
func HandleTurnTimeout(t Table, turnID string) (Table, []Event, []ScheduledTask, error) {
	if t.Status != Playing || t.CurrentTurnID != turnID || t.CurrentTurn < 0 {
		return t, nil, nil, nil // zombie delivery
	}
	seat := t.Seats[t.CurrentTurn]
	action := Action{Type: Check}
	if t.CurrentBet-seat.RoundBet > 0 {
		action = Action{Type: Fold}
	}

	out, events, tasks, err := ProcessAction(t, seat.PlayerID, action, turnID)
	if err != nil {
		return t, nil, nil, err
	}
	out.Seats[t.CurrentTurn].TimedOut = true
	out.ConsecutiveAutoActions = t.ConsecutiveAutoActions + 1

	timeoutEvent := Event{Type: EventTimeout, HandNumber: t.HandNumber, SeatIndex: t.CurrentTurn, PlayerID: seat.PlayerID, Action: action.Type}
	events = append([]Event{timeoutEvent}, events...)

	// AFK protection: once every still-contesting seat has auto-acted in a
	// row, require a manual start for the next hand rather than auto-pausing.
	if out.ConsecutiveAutoActions >= countInHand(out) {
		out.AutoNextEnabled = false
	}

	return out, events, tasks, nil
}

// maybeScheduleNextHand schedules handleStartNextHand if auto-next is
// enabled; otherwise the table settles into WAITING for a manual startHand,
// so it also arms the idle-timeout sweeper (§3/§6 handleRoomAutoClose) for
// this stretch of inactivity.
func maybeScheduleNextHand(out *Table) []ScheduledTask {
	if !out.AutoNextEnabled {
		return []ScheduledTask{armAutoClose(out)}
	}
	out.NextHandID = mintToken()
	return []ScheduledTask{{Kind: TaskStartNextHand, TableID: out.ID, Token: out.NextHandID, Delay: 0}}
}

// HandleStartNextHand implements the handleStartNextHand scheduled task:
// token-checked auto-start of the next hand.
func HandleStartNextHand(t Table, nextHandID string) (Table, []Event, []ScheduledTask, error) {
	if t.NextHandID != nextHandID {
		return t, nil, nil, nil // zombie delivery
	}
	return StartHand(t)
}

// bustOutSeats implements §4.3's bust-out rule: after payouts, any seat
// left with zero chips is cleared so the player must re-buy, except seats
// named in exempt (a winner mid-reveal-window).
func bustOutSeats(out *Table, exempt map[int]bool) {
	for i := range out.Seats {
		s := &out.Seats[i]
		if !s.occupied() || s.Chips > 0 {
			continue
		}
		if exempt[i] {
			continue
		}
		*s = Seat{Index: i, Status: SeatEmpty}
	}
}
