package engine

// JoinSeat implements §6 joinSeat: seats a player with a chip buy-in.
func JoinSeat(t Table, seatIndex int, playerID, displayName string, buyIn int64) (Table, []Event, error) {
	if seatIndex < 0 || seatIndex >= len(t.Seats) {
		return t, nil, newErr(TableFull, "seat index %d out of range", seatIndex)
	}
	if t.Seats[seatIndex].occupied() {
		return t, nil, newErr(SeatTaken, "seat %d is occupied", seatIndex)
	}
	if buyIn < t.Config.MinBuyIn || buyIn > t.Config.MaxBuyIn {
		return t, nil, newErr(BuyInOutOfRange, "buy-in %d outside [%d, %d]", buyIn, t.Config.MinBuyIn, t.Config.MaxBuyIn)
	}

	out := t.Clone()
	status := WaitingForHand
	if out.Status == Waiting {
		status = Active
	}
	out.Seats[seatIndex] = Seat{
		Index:        seatIndex,
		PlayerID:     playerID,
		DisplayName:  displayName,
		Chips:        buyIn,
		InitialBuyIn: buyIn,
		Status:       status,
	}
	events := []Event{{Type: EventSeatJoin, SeatIndex: seatIndex, PlayerID: playerID, Amount: buyIn}}
	return out, events, nil
}

// LeaveSeat implements §6 leaveSeat: if the player is mid-hand, force-folds
// them and preserves their contributed chips as dead money for pot math
// (§3 glossary "dead money"); otherwise the seat is simply vacated.
func LeaveSeat(t Table, playerID string) (Table, []Event, []ScheduledTask, error) {
	seatIdx, ok := t.SeatByPlayerID(playerID)
	if !ok {
		return t, nil, nil, newErr(NotSeated, "player %s is not seated", playerID)
	}

	out := t.Clone()
	seat := out.Seats[seatIdx]
	midHand := out.Status == Playing && (seat.Status == Active || seat.Status == SeatAllIn)
	wasCurrentTurn := out.CurrentTurn == seatIdx

	if midHand {
		out.Pot += seat.RoundBet
		out.deadMoney = append(out.deadMoney, deadContributor{PlayerID: seat.PlayerID, TotalBet: seat.TotalBet})
	}

	out.Seats[seatIdx] = Seat{Index: seatIdx, Status: SeatEmpty}

	events := []Event{{Type: EventSeatLeave, SeatIndex: seatIdx, PlayerID: playerID}}
	var tasks []ScheduledTask

	if midHand {
		if countInHand(out) == 1 {
			ev, ts := resolveLastManStanding(&out)
			events = append(events, ev...)
			tasks = append(tasks, ts...)
		} else if wasCurrentTurn {
			out.CurrentTurn = nextToAct(out, seatIdx)
			out.CurrentTurnID = mintToken()
			tasks = append(tasks, turnTimeoutTask(out))
		} else if roundClosed(out) {
			ev, ts := advanceRound(&out)
			events = append(events, ev...)
			tasks = append(tasks, ts...)
		}
	}

	return out, events, tasks, nil
}

// TogglePause implements §6 togglePause (host-only). The engine itself
// never reads a clock, so it cannot measure how much of the current turn's
// time has elapsed: the server handler is expected to set PausedRemaining
// on the returned Table (from the scheduler's live timer) before committing
// it, so ResumeGame has a remainder to re-arm from.
func TogglePause(t Table, requesterID string) (Table, error) {
	if requesterID != t.Config.CreatorID {
		return t, newErr(NotAuthorized, "only the host may pause the table")
	}
	out := t.Clone()
	switch out.Status {
	case Playing:
		out.Status = Paused
	case Paused:
		out.Status = Playing
		out.PausedRemaining = 0
	default:
		return t, newErr(InvalidGameState, "table is not in a pausable state")
	}
	return out, nil
}

// ResumeGame implements §6 resumeGame: re-mints currentTurnId and re-arms
// the turn timer with whatever of the turn was left when the table was
// paused (§4.4), falling back to a full turn if nothing was snapshotted
// (e.g. the table was paused between hands, with no turn in flight).
func ResumeGame(t Table, requesterID string) (Table, []ScheduledTask, error) {
	if requesterID != t.Config.CreatorID {
		return t, nil, newErr(NotAuthorized, "only the host may resume the table")
	}
	if t.Status != Paused {
		return t, nil, newErr(InvalidGameState, "table is not paused")
	}
	out := t.Clone()
	out.Status = Playing
	if out.CurrentTurn >= 0 {
		out.CurrentTurnID = mintToken()
		delay := out.PausedRemaining
		if delay <= 0 {
			delay = out.Config.TurnTimeout
		}
		out.PausedRemaining = 0
		task := turnTimeoutTask(out)
		task.Delay = delay
		return out, []ScheduledTask{task}, nil
	}
	out.PausedRemaining = 0
	return out, nil, nil
}

// SetEndAfterHand implements §6 setEndAfterHand (host-only): disables
// auto-next so the table stops after the in-progress or next hand.
func SetEndAfterHand(t Table, requesterID string, endAfterHand bool) (Table, error) {
	if requesterID != t.Config.CreatorID {
		return t, newErr(NotAuthorized, "only the host may change auto-next")
	}
	out := t.Clone()
	out.AutoNextEnabled = !endAfterHand
	return out, nil
}

// DeleteRoom implements §6 deleteRoom (host-only): refuses while a hand is
// in flight.
func DeleteRoom(t Table, requesterID string) error {
	if requesterID != t.Config.CreatorID {
		return newErr(NotAuthorized, "only the host may delete the table")
	}
	if t.Status == Playing || t.Status == Paused {
		return newErr(RoomInPlay, "table %s has a hand in progress", t.ID)
	}
	return nil
}

// HandleRoomAutoClose implements the handleRoomAutoClose scheduled task
// (§6): the idle-timeout sweeper. A table still WAITING when its
// AutoCloseToken fires has seen no activity (no hand started, no seat
// joined or left) since the token was armed, so it moves to CLOSED; any
// other state means something reset the clock first, and this delivery is
// a benign no-op like every other zombie token in §4.4.
func HandleRoomAutoClose(t Table, autoCloseToken string) (Table, []Event, error) {
	if t.Status != Waiting || t.AutoCloseToken != autoCloseToken {
		return t, nil, nil
	}
	out := t.Clone()
	out.Status = Closed
	events := []Event{{Type: EventRoomClosed, Detail: "idle_timeout"}}
	return out, events, nil
}
