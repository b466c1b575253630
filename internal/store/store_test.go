package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/feltframe/holdem-core/internal/cards"
	"github.com/feltframe/holdem-core/internal/engine"
)

var (
	_ Adapter = (*SQLiteAdapter)(nil)
	_ Adapter = (*MemoryAdapter)(nil)
)

func newTestTable(id string) engine.Table {
	return engine.NewTable(id, engine.TableConfig{
		SmallBlind: 10,
		BigBlind:   20,
		MinBuyIn:   100,
		MaxBuyIn:   5000,
		MaxSeats:   6,
		CreatorID:  "host",
	})
}

func TestMemoryAdapterSnapshotRoundTrip(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryAdapter()
	table := newTestTable("t1")
	table.HandNumber = 3

	assert.NoError(t, m.SaveSnapshot(ctx, table))
	loaded, ok, err := m.LoadSnapshot(ctx, "t1")
	assert.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(3), loaded.HandNumber)

	assert.NoError(t, m.DeleteSnapshot(ctx, "t1"))
	_, ok, err = m.LoadSnapshot(ctx, "t1")
	assert.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryAdapterHoleCardsAreIsolatedByHand(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryAdapter()
	hand1 := []cards.Card{cards.MustParse("As"), cards.MustParse("Kd")}

	assert.NoError(t, m.SaveHoleCards(ctx, "t1", 1, "alice", hand1))
	got, ok, err := m.LoadHoleCards(ctx, "t1", 1, "alice")
	assert.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, hand1, got)

	_, ok, err = m.LoadHoleCards(ctx, "t1", 2, "alice")
	assert.NoError(t, err)
	assert.False(t, ok, "hole cards from a prior hand must not leak into the next")

	assert.NoError(t, m.DeleteHoleCards(ctx, "t1", 1))
	_, ok, err = m.LoadHoleCards(ctx, "t1", 1, "alice")
	assert.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryAdapterEventsAreOrderedAndSequenced(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryAdapter()
	assert.NoError(t, m.AppendEvent(ctx, "t1", engine.Event{Type: engine.EventHandStart, HandNumber: 1}))
	assert.NoError(t, m.AppendEvent(ctx, "t1", engine.Event{Type: engine.EventAction, HandNumber: 1}))

	all, err := m.LoadEvents(ctx, "t1", 0)
	assert.NoError(t, err)
	assert.Len(t, all, 2)
	assert.Equal(t, int64(1), all[0].Seq)
	assert.Equal(t, int64(2), all[1].Seq)

	since, err := m.LoadEvents(ctx, "t1", 1)
	assert.NoError(t, err)
	assert.Len(t, since, 1)
	assert.Equal(t, engine.EventAction, since[0].Event.Type)
}

func TestMemoryAdapterHandRecordIsWriteOnce(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryAdapter()
	first := HandRecord{TableID: "t1", HandNumber: 1, Result: engine.HandResult{WinByFold: true}}
	second := HandRecord{TableID: "t1", HandNumber: 1, Result: engine.HandResult{WinByFold: false}}

	assert.NoError(t, m.SaveHandRecord(ctx, "t1", 1, first))
	assert.NoError(t, m.SaveHandRecord(ctx, "t1", 1, second))

	got, ok, err := m.LoadHandRecord(ctx, "t1", 1)
	assert.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, got.Result.WinByFold, "first write wins; a hand record is immutable once written")
}

func TestMemoryAdapterWithTableTxCommitsEverythingTogether(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryAdapter()
	table := newTestTable("t1")
	table.HandNumber = 1
	assert.NoError(t, m.SaveSnapshot(ctx, table))

	record := HandRecord{TableID: "t1", HandNumber: 1, Result: engine.HandResult{WinByFold: true}}
	err := m.WithTableTx(ctx, "t1", func(txn *Txn) error {
		loaded, err := txn.Reads()
		if err != nil {
			return err
		}
		loaded.Status = engine.Waiting
		if err := txn.SaveSnapshot(loaded); err != nil {
			return err
		}
		if err := txn.AppendEvent(engine.Event{Type: engine.EventReveal, HandNumber: 1}); err != nil {
			return err
		}
		return txn.SaveHandRecord(1, record)
	})
	assert.NoError(t, err)

	snap, ok, err := m.LoadSnapshot(ctx, "t1")
	assert.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, engine.Waiting, snap.Status)

	events, err := m.LoadEvents(ctx, "t1", 0)
	assert.NoError(t, err)
	assert.Len(t, events, 1)

	got, ok, err := m.LoadHandRecord(ctx, "t1", 1)
	assert.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, got.Result.WinByFold)
}

func TestMemoryAdapterWithTableTxPropagatesCallbackError(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryAdapter()
	sentinel := assert.AnError
	err := m.WithTableTx(ctx, "t1", func(txn *Txn) error {
		if _, err := txn.Reads(); err != nil {
			return err
		}
		return sentinel
	})
	assert.ErrorIs(t, err, sentinel)
}

func TestTxnWriteBeforeReadsPanics(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryAdapter()
	assert.Panics(t, func() {
		m.WithTableTx(ctx, "t1", func(txn *Txn) error {
			return txn.SaveSnapshot(newTestTable("t1"))
		})
	})
}

func TestMemoryAdapterTaskLifecycle(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryAdapter()
	task := engine.ScheduledTask{Kind: engine.TaskTurnTimeout, TableID: "t1", Token: "tok-1"}
	assert.NoError(t, m.SaveTask(ctx, task))

	pending, err := m.LoadPendingTasks(ctx)
	assert.NoError(t, err)
	assert.Len(t, pending, 1)

	// Deleting with a stale token must not remove the current task.
	assert.NoError(t, m.DeleteTask(ctx, "t1", engine.TaskTurnTimeout, "wrong-token"))
	pending, err = m.LoadPendingTasks(ctx)
	assert.NoError(t, err)
	assert.Len(t, pending, 1)

	assert.NoError(t, m.DeleteTask(ctx, "t1", engine.TaskTurnTimeout, "tok-1"))
	pending, err = m.LoadPendingTasks(ctx)
	assert.NoError(t, err)
	assert.Empty(t, pending)
}
