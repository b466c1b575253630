package server

import (
	"context"
	"testing"
	"time"

	"github.com/coder/quartz"
	"github.com/decred/slog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feltframe/holdem-core/internal/cards"
	"github.com/feltframe/holdem-core/internal/config"
	"github.com/feltframe/holdem-core/internal/engine"
	"github.com/feltframe/holdem-core/internal/scheduler"
	"github.com/feltframe/holdem-core/internal/store"
)

func newTestHandler(t *testing.T) (*Handler, *quartz.Mock) {
	t.Helper()
	mock := quartz.NewMock(t)
	mem := store.NewMemoryAdapter()
	cfg := config.Engine{
		TurnTimeout:     5 * time.Second,
		ShowdownAdmire:  time.Second,
		WinByFoldReveal: time.Second,
		IdleTableClose:  time.Minute,
	}
	h := New(mem, slog.Disabled, cfg)
	sched := scheduler.New(mock, mem, h.Dispatch, slog.Disabled)
	h.AttachScheduler(sched)
	return h, mock
}

func TestCreateRoomAndJoinSeatsHeadsUp(t *testing.T) {
	ctx := context.Background()
	h, _ := newTestHandler(t)

	tbl, err := h.CreateRoom(ctx, "t1", "host", 10, 20, 100, 5000, 6, true)
	require.NoError(t, err)
	assert.Equal(t, engine.Waiting, tbl.Status)

	_, err = h.JoinSeat(ctx, "t1", 0, "alice", "Alice", 1000)
	require.NoError(t, err)
	tbl, err = h.JoinSeat(ctx, "t1", 1, "bob", "Bob", 1000)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), tbl.Seats[1].Chips)
}

func TestCreateRoomRejectsDuplicateID(t *testing.T) {
	ctx := context.Background()
	h, _ := newTestHandler(t)

	_, err := h.CreateRoom(ctx, "t1", "host", 10, 20, 100, 5000, 6, true)
	require.NoError(t, err)
	_, err = h.CreateRoom(ctx, "t1", "host", 10, 20, 100, 5000, 6, true)
	assert.True(t, engine.HasCode(err, engine.InvalidConfig))
}

func TestStartHandDealsPrivateHoleCardsToStore(t *testing.T) {
	ctx := context.Background()
	h, _ := newTestHandler(t)

	_, err := h.CreateRoom(ctx, "t1", "host", 10, 20, 100, 5000, 6, true)
	require.NoError(t, err)
	_, err = h.JoinSeat(ctx, "t1", 0, "alice", "Alice", 1000)
	require.NoError(t, err)
	_, err = h.JoinSeat(ctx, "t1", 1, "bob", "Bob", 1000)
	require.NoError(t, err)

	tbl, err := h.StartHand(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, engine.Playing, tbl.Status)

	mem := h.store.(*store.MemoryAdapter)
	hc, ok, err := mem.LoadHoleCards(ctx, "t1", tbl.HandNumber, "alice")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Len(t, hc, 2)
}

func TestStartHandWithoutEnoughPlayersStaysWaiting(t *testing.T) {
	ctx := context.Background()
	h, _ := newTestHandler(t)

	_, err := h.CreateRoom(ctx, "t1", "host", 10, 20, 100, 5000, 6, true)
	require.NoError(t, err)
	_, err = h.JoinSeat(ctx, "t1", 0, "alice", "Alice", 1000)
	require.NoError(t, err)

	_, err = h.StartHand(ctx, "t1")
	assert.True(t, engine.HasCode(err, engine.InsufficientPlayers))

	mem := h.store.(*store.MemoryAdapter)
	snap, ok, err := mem.LoadSnapshot(ctx, "t1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, engine.Waiting, snap.Status)
}

func TestTurnTimeoutAutoFoldsAndResolvesHandViaScheduler(t *testing.T) {
	ctx := context.Background()
	h, mock := newTestHandler(t)

	_, err := h.CreateRoom(ctx, "t1", "host", 10, 20, 100, 5000, 6, true)
	require.NoError(t, err)
	_, err = h.JoinSeat(ctx, "t1", 0, "alice", "Alice", 1000)
	require.NoError(t, err)
	_, err = h.JoinSeat(ctx, "t1", 1, "bob", "Bob", 1000)
	require.NoError(t, err)

	tbl, err := h.StartHand(ctx, "t1")
	require.NoError(t, err)
	firstToAct := tbl.CurrentTurn

	mock.Advance(5 * time.Second).MustWait(ctx)

	mem := h.store.(*store.MemoryAdapter)
	snap, ok, err := mem.LoadSnapshot(ctx, "t1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, snap.Seats[firstToAct].TimedOut)
	assert.Equal(t, engine.Folded, snap.Seats[firstToAct].Status)
	assert.Equal(t, engine.StageWinByFold, snap.Stage)
}

func TestLookupUnknownTableReturnsGameNotFound(t *testing.T) {
	ctx := context.Background()
	h, _ := newTestHandler(t)

	_, err := h.JoinSeat(ctx, "ghost", 0, "alice", "Alice", 1000)
	assert.True(t, engine.HasCode(err, engine.GameNotFound))
}

// Fixture #2 through the Handler: a three-way side pot, driven to showdown
// with a rigged deck and resolved via the scheduler, asserting the
// HandRecord it writes exactly once at resolution (§3) reflects the same
// pot structure the engine-level fixture checks directly.
func TestShowdownResolutionPersistsHandRecordThroughTheScheduler(t *testing.T) {
	ctx := context.Background()
	h, mock := newTestHandler(t)

	_, err := h.CreateRoom(ctx, "t1", "host", 10, 20, 10, 5000, 6, false)
	require.NoError(t, err)
	_, err = h.JoinSeat(ctx, "t1", 0, "a", "A", 100)
	require.NoError(t, err)
	_, err = h.JoinSeat(ctx, "t1", 1, "b", "B", 200)
	require.NoError(t, err)
	_, err = h.JoinSeat(ctx, "t1", 2, "c", "C", 300)
	require.NoError(t, err)

	deck := cards.NewDeckFromCards(cards.MustParseAll(
		"4h", "5h", // B
		"6h", "7h", // C
		"2h", "3h", // A
		"Ts", "Js", "Qs", // flop
		"Ks", // turn
		"As", // river
	))
	h.mu.Lock()
	cur := *h.tables["t1"]
	next, events, tasks, err := engine.StartHandWithDeck(cur, deck)
	require.NoError(t, err)
	require.NoError(t, h.commit(ctx, next, events, tasks))
	require.NoError(t, h.saveHoleCards(ctx, next))
	h.mu.Unlock()

	tbl, err := h.PlayerAction(ctx, "t1", "a", engine.Action{Type: engine.Raise, Amount: 100}, next.CurrentTurnID)
	require.NoError(t, err)
	tbl, err = h.PlayerAction(ctx, "t1", "b", engine.Action{Type: engine.Raise, Amount: 200}, tbl.CurrentTurnID)
	require.NoError(t, err)
	tbl, err = h.PlayerAction(ctx, "t1", "c", engine.Action{Type: engine.Call}, tbl.CurrentTurnID)
	require.NoError(t, err)
	assert.Len(t, tbl.CommunityCards, 5, "effective all-in runs the board out immediately")

	mock.Advance(time.Second).MustWait(ctx)

	mem := h.store.(*store.MemoryAdapter)
	snap, ok, err := mem.LoadSnapshot(ctx, "t1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(100), snap.Seats[0].Chips)
	assert.Equal(t, int64(200), snap.Seats[1].Chips)
	assert.Equal(t, int64(300), snap.Seats[2].Chips)

	record, ok, err := mem.LoadHandRecord(ctx, "t1", snap.HandNumber)
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, record.Result.Pots, 2)
	assert.Equal(t, int64(300), record.Result.Pots[0].Amount)
	assert.ElementsMatch(t, []int{0, 1, 2}, record.Result.Pots[0].Eligible)
	assert.Equal(t, int64(200), record.Result.Pots[1].Amount)
	assert.ElementsMatch(t, []int{1, 2}, record.Result.Pots[1].Eligible)

	_, ok, err = mem.LoadHoleCards(ctx, "t1", snap.HandNumber, "a")
	require.NoError(t, err)
	assert.False(t, ok, "private hole cards are deleted once the hand resolves")
}

func TestDeleteRoomRefusesMidHand(t *testing.T) {
	ctx := context.Background()
	h, _ := newTestHandler(t)

	_, err := h.CreateRoom(ctx, "t1", "host", 10, 20, 100, 5000, 6, true)
	require.NoError(t, err)
	_, err = h.JoinSeat(ctx, "t1", 0, "alice", "Alice", 1000)
	require.NoError(t, err)
	_, err = h.JoinSeat(ctx, "t1", 1, "bob", "Bob", 1000)
	require.NoError(t, err)
	_, err = h.StartHand(ctx, "t1")
	require.NoError(t, err)

	err = h.DeleteRoom(ctx, "t1", "host")
	assert.True(t, engine.HasCode(err, engine.RoomInPlay))
}
