// Package engine implements the Hand State Machine (§4.1), the Action
// Validator & Processor (§4.2) and the table/seat arena they operate on.
// Every exported mutation is a pure function over a Table snapshot: it
// returns the next Table, the Events it produced and any tasks that must be
// scheduled strictly after the caller commits the snapshot, per §9's
// "func(table, action) -> (table', events, postCommit[])" design note. No
// engine function reads the wall clock. The only random sources are
// StartHand's deck shuffle, which uses cards.NewShuffledDeck's crypto-seeded
// RNG, and the random UUIDs mintToken draws for zombie-prevention tokens.
package engine

import (
	"time"

	"github.com/feltframe/holdem-core/internal/cards"
)

// SeatStatus is a seat's occupancy/participation state.
type SeatStatus int

const (
	SeatEmpty SeatStatus = iota
	Active
	Folded
	SeatAllIn
	SittingOut
	WaitingForHand
)

// TableStatus is the table's public lifecycle state, §3.
type TableStatus int

const (
	Waiting TableStatus = iota
	Playing
	Paused
	Ended
	Closed
)

// Round is a betting round within a hand.
type Round int

const (
	RoundNone Round = iota
	Preflop
	Flop
	Turn
	River
	ShowdownRound
)

// Stage marks the terminal resolution of the current hand.
type Stage int

const (
	StageNone Stage = iota
	StageShowdown
	StageShowdownComplete
	StageWinByFold
)

// ActionType is a player intent accepted by ProcessAction, §4.2.
type ActionType string

const (
	Fold  ActionType = "FOLD"
	Check ActionType = "CHECK"
	Call  ActionType = "CALL"
	Raise ActionType = "RAISE"
	AllIn ActionType = "ALL_IN"
)

// Action is one player's requested move.
type Action struct {
	Type   ActionType
	Amount int64 // target bet level for RAISE; ignored otherwise
}

// Seat is one occupied or vacant chair at the table, addressed by Index
// (the arena+index model of §9: no seat holds a pointer back to the table
// or to its hand — callers address a seat only via its Table and Index).
type Seat struct {
	Index        int
	PlayerID     string
	DisplayName  string
	Chips        int64
	InitialBuyIn int64
	Status       SeatStatus
	RoundBet     int64
	TotalBet     int64
	TurnActed    bool
	IsDealer     bool
	IsSmallBlind bool
	IsBigBlind   bool
	HoleCards    []cards.Card // public only once legally revealed (showdown/win-by-fold reveal)
	TimedOut     bool
	RaiseClosed  bool // set by a short all-in; barred from raising until a full raise reopens action
}

func (s Seat) occupied() bool { return s.Status != SeatEmpty }

func (s Seat) clone() Seat {
	out := s
	if s.HoleCards != nil {
		out.HoleCards = append([]cards.Card(nil), s.HoleCards...)
	}
	return out
}

// deadContributor is dead money retained for pot math from a seat that left
// mid-hand (and so no longer has a live Seat entry to read TotalBet from).
type deadContributor struct {
	PlayerID string
	TotalBet int64
}

// TableConfig is the table's fixed configuration, set at creation.
// TurnTimeout and the last three fields are populated from the engine's
// environment configuration (§6), carried per-table so every pure engine
// function still takes only a Table argument.
type TableConfig struct {
	SmallBlind      int64
	BigBlind        int64
	MinBuyIn        int64
	MaxBuyIn        int64
	TurnTimeout     time.Duration
	MaxSeats        int
	AutoNext        bool
	CreatorID       string
	ShowdownAdmire  time.Duration // delay between river completing and showdown resolving
	WinByFoldReveal time.Duration // voluntary-reveal window after winning by fold
	IdleTableClose  time.Duration // idle-timeout sweeper: how long a WAITING table may sit before CLOSED
}

// HandWinner is one seat's result at showdown, attached to a HandRecord.
type HandWinner struct {
	SeatIndex   int
	PlayerID    string
	Amount      int64
	HandName    string
	Tiebreakers []int
	BestHand    []cards.Card
}

// PotRecord is one resolved pot (main or side), kept for the HandRecord.
type PotRecord struct {
	Amount   int64
	Eligible []int
	Winners  []HandWinner
}

// HandResult summarizes how the current or most recently resolved hand
// concluded: by showdown (Pots populated) or by fold (single Winner).
type HandResult struct {
	Pots       []PotRecord
	WinByFold  bool
	Winner     *HandWinner
	LargePot   bool
	StrongHand bool
	HadAllIn   bool
	LastManStanding bool
}

// Table is the arena: it owns every Seat, the current hand's public state,
// and (privately) the undealt deck and dealt hole cards. A Table is always
// passed and returned by value from engine functions; callers persist the
// returned value and discard the one they passed in.
type Table struct {
	ID     string
	Config TableConfig

	Status     TableStatus
	HandNumber int64

	Seats      []Seat
	DealerSeat int

	CurrentRound      Round
	CurrentTurn       int // seat index; -1 if none
	CurrentTurnID     string
	CurrentBet        int64
	MinRaise          int64
	LastAggressorSeat int

	Pot            int64
	CommunityCards []cards.Card

	Stage      Stage
	HandResult *HandResult

	NextHandID     string
	WinByFoldID    string
	ShowdownID     string
	AutoCloseToken string

	// PausedRemaining holds the current turn's unused time while the table
	// is Paused (§4.4): set by the server handler at pause time from the
	// scheduler's live timer, consumed by ResumeGame to re-arm the turn
	// timeout with the snapshotted remainder instead of a fresh full turn.
	PausedRemaining time.Duration

	ConsecutiveAutoActions int
	AutoNextEnabled        bool

	deadMoney []deadContributor
	deck      *cards.Deck
	holeCards map[int][]cards.Card // seatIndex -> private hole cards, engine-only
}

// NewTable creates a fresh, empty, WAITING table with MaxSeats vacant seats.
func NewTable(id string, cfg TableConfig) Table {
	seats := make([]Seat, cfg.MaxSeats)
	for i := range seats {
		seats[i] = Seat{Index: i, Status: SeatEmpty}
	}
	return Table{
		ID:              id,
		Config:          cfg,
		Status:          Waiting,
		DealerSeat:      -1,
		CurrentTurn:     -1,
		Seats:           seats,
		AutoNextEnabled: cfg.AutoNext,
		holeCards:       map[int][]cards.Card{},
	}
}

// Clone deep-copies everything an engine function might mutate, so the
// pipeline's pure-function contract holds even though Go passes slices and
// maps by reference.
func (t Table) Clone() Table {
	out := t
	out.Seats = make([]Seat, len(t.Seats))
	for i, s := range t.Seats {
		out.Seats[i] = s.clone()
	}
	out.CommunityCards = append([]cards.Card(nil), t.CommunityCards...)
	out.deadMoney = append([]deadContributor(nil), t.deadMoney...)
	out.holeCards = make(map[int][]cards.Card, len(t.holeCards))
	for seat, hc := range t.holeCards {
		out.holeCards[seat] = append([]cards.Card(nil), hc...)
	}
	if t.HandResult != nil {
		hr := *t.HandResult
		out.HandResult = &hr
	}
	return out
}

// TotalPot is the player-facing pot size: chips already swept from closed
// rounds (Pot) plus every active seat's still-unswept current-round bet.
// The internal Pot field deliberately excludes the latter so the §8
// conservation invariant (chips + pot + Σ roundBet == constant) holds
// without double-counting; TotalPot is the number a client displays.
func (t Table) TotalPot() int64 {
	total := t.Pot
	for _, s := range t.Seats {
		total += s.RoundBet
	}
	return total
}

// HoleCards returns the private hole cards dealt to a seat this hand, or
// nil if none are dealt. This is engine-internal visibility control: the
// store layer is responsible for never returning these to any requester
// other than the owning player or an in-progress showdown reveal.
func (t Table) HoleCards(seatIndex int) []cards.Card {
	return t.holeCards[seatIndex]
}

func (t *Table) setHoleCards(seatIndex int, hc []cards.Card) {
	t.holeCards[seatIndex] = hc
}

func (t *Table) clearHoleCards() {
	t.holeCards = map[int][]cards.Card{}
}

// SeatByPlayerID finds the seat a player occupies, if any.
func (t Table) SeatByPlayerID(playerID string) (int, bool) {
	for _, s := range t.Seats {
		if s.occupied() && s.PlayerID == playerID {
			return s.Index, true
		}
	}
	return 0, false
}

// occupiedSeats returns seat indices in ascending order whose status is not
// SeatEmpty.
func (t Table) occupiedSeats() []int {
	var out []int
	for _, s := range t.Seats {
		if s.occupied() {
			out = append(out, s.Index)
		}
	}
	return out
}

// EventType categorizes an Event, §3.
type EventType string

const (
	EventAction     EventType = "action"
	EventTimeout    EventType = "timeout"
	EventHandStart  EventType = "hand_start"
	EventShowdown   EventType = "showdown"
	EventWinByFold  EventType = "win_by_fold"
	EventSeatJoin   EventType = "seat_join"
	EventSeatLeave  EventType = "seat_leave"
	EventReveal     EventType = "reveal"
	EventRoomClosed EventType = "room_closed"
)

// Event is an append-only audit entry. The engine never stamps a timestamp
// on it (§3: "events live in a subcollection because timestamps cannot be
// embedded inside array elements of the parent document") — the store
// adapter assigns the server timestamp and sequence number on append.
type Event struct {
	Type       EventType
	HandNumber int64
	SeatIndex  int
	PlayerID   string
	Round      Round
	Action     ActionType
	Amount     int64
	Detail     string
}

// TaskKind identifies which of the five zombie-prevention tokens a
// scheduled task carries, §4.4.
type TaskKind string

const (
	TaskTurnTimeout   TaskKind = "turn_timeout"
	TaskShowdown      TaskKind = "showdown_resolve"
	TaskWinByFold     TaskKind = "win_by_fold_timeout"
	TaskStartNextHand TaskKind = "start_next_hand"
	TaskAutoClose     TaskKind = "room_auto_close"
)

// ScheduledTask is a post-commit side effect the handler must enqueue into
// the durable task queue after persisting the Table this pipeline step
// returned. Delay is relative (the engine never reads the clock); the
// scheduler converts it to an absolute deadline at enqueue time.
type ScheduledTask struct {
	Kind    TaskKind
	TableID string
	Token   string
	Delay   time.Duration
}
