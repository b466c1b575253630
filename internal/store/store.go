// Package store implements the Persistence Adapter (§4.5): a per-table
// snapshot store, an append-only event subcollection, private per-player
// hole-card storage, an immutable hand-record log, and the durable task
// table the scheduler reads on recovery.
//
// It is grounded on the teacher's pkg/server/internal/db package: a thin
// database/sql wrapper over github.com/mattn/go-sqlite3, CREATE TABLE IF NOT
// EXISTS at open time, INSERT ... ON CONFLICT for idempotent upserts, and JSON
// columns for anything structured. The table layout is reshaped around a
// single serialized Table snapshot instead of the teacher's separate
// table_states/player_states rows, since engine.Table already aggregates
// every seat.
package store

import (
	"context"
	"encoding/json"

	"github.com/feltframe/holdem-core/internal/cards"
	"github.com/feltframe/holdem-core/internal/engine"
)

// Adapter is the full persistence contract every engine-facing handler is
// built against; SQLiteAdapter and MemoryAdapter both satisfy it.
type Adapter interface {
	// SaveSnapshot persists the table's current public state. Table's deck
	// and private hole cards are unexported fields, so SQLiteAdapter's JSON
	// snapshot never contains them. MemoryAdapter keeps a Clone of the whole
	// Table, so its loaded snapshots still carry both.
	SaveSnapshot(ctx context.Context, table engine.Table) error
	LoadSnapshot(ctx context.Context, tableID string) (engine.Table, bool, error)
	DeleteSnapshot(ctx context.Context, tableID string) error
	AllTableIDs(ctx context.Context) ([]string, error)

	// SaveHoleCards and LoadHoleCards implement the PrivateHoleCards
	// entity: readable only by the owning player or the engine's own
	// showdown-reveal path, never embedded in a Table snapshot.
	SaveHoleCards(ctx context.Context, tableID string, handNumber int64, playerID string, cards []cards.Card) error
	LoadHoleCards(ctx context.Context, tableID string, handNumber int64, playerID string) ([]cards.Card, bool, error)
	DeleteHoleCards(ctx context.Context, tableID string, handNumber int64) error

	// AppendEvent and LoadEvents implement the Event subcollection: the
	// adapter stamps the server timestamp and assigns the monotonic
	// sequence number, since the engine itself never reads the clock.
	AppendEvent(ctx context.Context, tableID string, event engine.Event) error
	LoadEvents(ctx context.Context, tableID string, sinceSeq int64) ([]StoredEvent, error)

	// SaveHandRecord writes the hand's immutable summary exactly once.
	SaveHandRecord(ctx context.Context, tableID string, handNumber int64, record HandRecord) error
	LoadHandRecord(ctx context.Context, tableID string, handNumber int64) (HandRecord, bool, error)

	// Task methods satisfy scheduler.Store directly.
	SaveTask(ctx context.Context, task engine.ScheduledTask) error
	DeleteTask(ctx context.Context, tableID string, kind engine.TaskKind, token string) error
	LoadPendingTasks(ctx context.Context) ([]engine.ScheduledTask, error)

	// WithTableTx implements §4.5's transaction primitive: fn runs against
	// a single serializable-per-table transaction, retried internally on
	// conflict, surfacing ErrTransactionConflict only once retries are
	// exhausted.
	WithTableTx(ctx context.Context, tableID string, fn func(*Txn) error) error

	Close() error
}

// StoredEvent wraps an engine.Event with the sequence number and server
// timestamp the adapter assigned on append, per §3's "events live in a
// subcollection because timestamps cannot be embedded inside array elements
// of the parent document."
type StoredEvent struct {
	Seq       int64
	Timestamp int64 // unix nanoseconds, stamped by the adapter, never by the engine
	Event     engine.Event
}

// HandRecord is the immutable-once-written summary of a resolved hand,
// §3's HandRecord entity.
type HandRecord struct {
	TableID        string
	HandNumber     int64
	CommunityCards []cards.Card
	Result         engine.HandResult
}

func marshalJSON(v interface{}) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
