package store

import (
	"errors"

	"github.com/feltframe/holdem-core/internal/engine"
)

// ErrTransactionConflict is what WithTableTx returns once every retry
// attempt still hit a write conflict (§4.5, surfaced as §7's
// TRANSACTION_CONFLICT). server.Handler never sees the underlying
// driver-specific busy/serialization error, only this sentinel.
var ErrTransactionConflict = errors.New("store: transaction conflict, retries exhausted")

// txnBackend is the storage-specific half of a Txn: SQLiteAdapter backs it
// with a *sql.Tx, MemoryAdapter backs it with its own mutex-guarded maps.
type txnBackend interface {
	loadSnapshot() (engine.Table, error)
	saveSnapshot(engine.Table) error
	appendEvent(engine.Event) error
	saveHandRecord(handNumber int64, record HandRecord) error
}

// Txn is the handle WithTableTx passes to its callback. Its accessors are
// read-then-write ordered: Reads must be called once before any write
// accessor is valid, so a hand-resolution callback cannot silently commit a
// snapshot or event built from state it never actually read inside this
// transaction. The ordering is enforced at the call boundary rather than
// threaded through the type system, since every real caller is a single
// handler method with one obvious read step.
type Txn struct {
	backend txnBackend
	read    bool
}

// Reads loads the table's current snapshot as seen by this transaction.
func (x *Txn) Reads() (engine.Table, error) {
	t, err := x.backend.loadSnapshot()
	if err != nil {
		return engine.Table{}, err
	}
	x.read = true
	return t, nil
}

func (x *Txn) requireRead(accessor string) {
	if !x.read {
		panic("store: Txn." + accessor + " called before Txn.Reads")
	}
}

// SaveSnapshot persists table as this transaction's write of the table
// state it read via Reads.
func (x *Txn) SaveSnapshot(table engine.Table) error {
	x.requireRead("SaveSnapshot")
	return x.backend.saveSnapshot(table)
}

// AppendEvent appends one event to the table's event subcollection.
func (x *Txn) AppendEvent(event engine.Event) error {
	x.requireRead("AppendEvent")
	return x.backend.appendEvent(event)
}

// SaveHandRecord writes the hand's immutable summary as part of this
// transaction, alongside whatever snapshot/event writes accompany it.
func (x *Txn) SaveHandRecord(handNumber int64, record HandRecord) error {
	x.requireRead("SaveHandRecord")
	return x.backend.saveHandRecord(handNumber, record)
}
