package store

import (
	"context"
	"sync"

	"github.com/feltframe/holdem-core/internal/cards"
	"github.com/feltframe/holdem-core/internal/engine"
)

// MemoryAdapter is an in-process Adapter for tests and local development: no
// real durability, and snapshots are stored as a full Table Clone (deck and
// private hole cards included); same contract as SQLiteAdapter otherwise.
type MemoryAdapter struct {
	mu        sync.Mutex
	snapshots map[string]engine.Table
	holeCards map[holeCardsKey][]cards.Card
	events    map[string][]StoredEvent
	hands     map[handKey]HandRecord
	tasks     map[taskKey]engine.ScheduledTask
}

type holeCardsKey struct {
	tableID    string
	handNumber int64
	playerID   string
}

type handKey struct {
	tableID    string
	handNumber int64
}

type taskKey struct {
	tableID string
	kind    engine.TaskKind
}

func NewMemoryAdapter() *MemoryAdapter {
	return &MemoryAdapter{
		snapshots: make(map[string]engine.Table),
		holeCards: make(map[holeCardsKey][]cards.Card),
		events:    make(map[string][]StoredEvent),
		hands:     make(map[handKey]HandRecord),
		tasks:     make(map[taskKey]engine.ScheduledTask),
	}
}

func (m *MemoryAdapter) SaveSnapshot(_ context.Context, table engine.Table) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshots[table.ID] = table.Clone()
	return nil
}

func (m *MemoryAdapter) LoadSnapshot(_ context.Context, tableID string) (engine.Table, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.snapshots[tableID]
	if !ok {
		return engine.Table{}, false, nil
	}
	return t.Clone(), true, nil
}

func (m *MemoryAdapter) DeleteSnapshot(_ context.Context, tableID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.snapshots, tableID)
	return nil
}

func (m *MemoryAdapter) AllTableIDs(_ context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.snapshots))
	for id := range m.snapshots {
		ids = append(ids, id)
	}
	return ids, nil
}

func (m *MemoryAdapter) SaveHoleCards(_ context.Context, tableID string, handNumber int64, playerID string, cs []cards.Card) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.holeCards[holeCardsKey{tableID, handNumber, playerID}] = append([]cards.Card(nil), cs...)
	return nil
}

func (m *MemoryAdapter) LoadHoleCards(_ context.Context, tableID string, handNumber int64, playerID string) ([]cards.Card, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cs, ok := m.holeCards[holeCardsKey{tableID, handNumber, playerID}]
	return cs, ok, nil
}

func (m *MemoryAdapter) DeleteHoleCards(_ context.Context, tableID string, handNumber int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k := range m.holeCards {
		if k.tableID == tableID && k.handNumber == handNumber {
			delete(m.holeCards, k)
		}
	}
	return nil
}

func (m *MemoryAdapter) AppendEvent(_ context.Context, tableID string, event engine.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	seq := int64(len(m.events[tableID])) + 1
	m.events[tableID] = append(m.events[tableID], StoredEvent{Seq: seq, Event: event})
	return nil
}

func (m *MemoryAdapter) LoadEvents(_ context.Context, tableID string, sinceSeq int64) ([]StoredEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []StoredEvent
	for _, e := range m.events[tableID] {
		if e.Seq > sinceSeq {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *MemoryAdapter) SaveHandRecord(_ context.Context, tableID string, handNumber int64, record HandRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := handKey{tableID, handNumber}
	if _, exists := m.hands[key]; exists {
		return nil
	}
	m.hands[key] = record
	return nil
}

func (m *MemoryAdapter) LoadHandRecord(_ context.Context, tableID string, handNumber int64) (HandRecord, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.hands[handKey{tableID, handNumber}]
	return r, ok, nil
}

func (m *MemoryAdapter) SaveTask(_ context.Context, task engine.ScheduledTask) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tasks[taskKey{task.TableID, task.Kind}] = task
	return nil
}

func (m *MemoryAdapter) DeleteTask(_ context.Context, tableID string, kind engine.TaskKind, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := taskKey{tableID, kind}
	if t, ok := m.tasks[key]; ok && t.Token == token {
		delete(m.tasks, key)
	}
	return nil
}

func (m *MemoryAdapter) LoadPendingTasks(_ context.Context) ([]engine.ScheduledTask, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]engine.ScheduledTask, 0, len(m.tasks))
	for _, t := range m.tasks {
		out = append(out, t)
	}
	return out, nil
}

// WithTableTx implements the same transaction primitive as SQLiteAdapter
// (§4.5), but a single process-wide mutex already serializes every table
// access, so there is no busy/serialization failure to retry: the mutex
// held for fn's whole duration gives the callback the same "nobody else
// reads or writes this table mid-transaction" guarantee a real SQLite
// transaction provides.
func (m *MemoryAdapter) WithTableTx(_ context.Context, tableID string, fn func(*Txn) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	txn := &Txn{backend: &memTxnBackend{m: m, tableID: tableID}}
	return fn(txn)
}

// memTxnBackend is MemoryAdapter's txnBackend. It must only be reached
// while m.mu is held by WithTableTx, so it accesses the maps directly
// instead of re-locking.
type memTxnBackend struct {
	m       *MemoryAdapter
	tableID string
}

func (b *memTxnBackend) loadSnapshot() (engine.Table, error) {
	t, ok := b.m.snapshots[b.tableID]
	if !ok {
		return engine.Table{}, nil
	}
	return t.Clone(), nil
}

func (b *memTxnBackend) saveSnapshot(table engine.Table) error {
	b.m.snapshots[b.tableID] = table.Clone()
	return nil
}

func (b *memTxnBackend) appendEvent(event engine.Event) error {
	seq := int64(len(b.m.events[b.tableID])) + 1
	b.m.events[b.tableID] = append(b.m.events[b.tableID], StoredEvent{Seq: seq, Event: event})
	return nil
}

func (b *memTxnBackend) saveHandRecord(handNumber int64, record HandRecord) error {
	key := handKey{b.tableID, handNumber}
	if _, exists := b.m.hands[key]; exists {
		return nil
	}
	b.m.hands[key] = record
	return nil
}

func (m *MemoryAdapter) Close() error { return nil }
