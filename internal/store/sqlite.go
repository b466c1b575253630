package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/feltframe/holdem-core/internal/cards"
	"github.com/feltframe/holdem-core/internal/engine"
)

// maxTxnRetries is K in §4.5's "retried up to K=3 times with jittered
// backoff" transaction-conflict rule.
const maxTxnRetries = 3

// SQLiteAdapter is the production Adapter, grounded on the teacher's *db.DB.
type SQLiteAdapter struct {
	db *sql.DB
}

// NewSQLiteAdapter opens (creating if needed) a sqlite database at path and
// ensures every table this package needs exists.
func NewSQLiteAdapter(path string) (*SQLiteAdapter, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	if err := createTables(db); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLiteAdapter{db: db}, nil
}

func createTables(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS tables (
			id TEXT PRIMARY KEY,
			snapshot TEXT NOT NULL,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS hole_cards (
			table_id TEXT NOT NULL,
			hand_number INTEGER NOT NULL,
			player_id TEXT NOT NULL,
			cards TEXT NOT NULL,
			PRIMARY KEY (table_id, hand_number, player_id)
		)`,
		`CREATE TABLE IF NOT EXISTS events (
			table_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			timestamp_ns INTEGER NOT NULL,
			payload TEXT NOT NULL,
			PRIMARY KEY (table_id, seq)
		)`,
		`CREATE TABLE IF NOT EXISTS hands (
			table_id TEXT NOT NULL,
			hand_number INTEGER NOT NULL,
			record TEXT NOT NULL,
			PRIMARY KEY (table_id, hand_number)
		)`,
		`CREATE TABLE IF NOT EXISTS scheduled_tasks (
			table_id TEXT NOT NULL,
			kind TEXT NOT NULL,
			token TEXT NOT NULL,
			delay_ns INTEGER NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (table_id, kind)
		)`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
	}
	return nil
}

func (s *SQLiteAdapter) SaveSnapshot(ctx context.Context, table engine.Table) error {
	blob, err := marshalJSON(table)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO tables (id, snapshot, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET snapshot = excluded.snapshot, updated_at = excluded.updated_at
	`, table.ID, blob, time.Now())
	return err
}

func (s *SQLiteAdapter) LoadSnapshot(ctx context.Context, tableID string) (engine.Table, bool, error) {
	var blob string
	err := s.db.QueryRowContext(ctx, `SELECT snapshot FROM tables WHERE id = ?`, tableID).Scan(&blob)
	if err == sql.ErrNoRows {
		return engine.Table{}, false, nil
	}
	if err != nil {
		return engine.Table{}, false, err
	}
	var table engine.Table
	if err := json.Unmarshal([]byte(blob), &table); err != nil {
		return engine.Table{}, false, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	return table, true, nil
}

func (s *SQLiteAdapter) DeleteSnapshot(ctx context.Context, tableID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM tables WHERE id = ?`, tableID)
	return err
}

func (s *SQLiteAdapter) AllTableIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM tables`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *SQLiteAdapter) SaveHoleCards(ctx context.Context, tableID string, handNumber int64, playerID string, cs []cards.Card) error {
	blob, err := marshalJSON(cs)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO hole_cards (table_id, hand_number, player_id, cards) VALUES (?, ?, ?, ?)
		ON CONFLICT(table_id, hand_number, player_id) DO UPDATE SET cards = excluded.cards
	`, tableID, handNumber, playerID, blob)
	return err
}

func (s *SQLiteAdapter) LoadHoleCards(ctx context.Context, tableID string, handNumber int64, playerID string) ([]cards.Card, bool, error) {
	var blob string
	err := s.db.QueryRowContext(ctx, `
		SELECT cards FROM hole_cards WHERE table_id = ? AND hand_number = ? AND player_id = ?
	`, tableID, handNumber, playerID).Scan(&blob)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var cs []cards.Card
	if err := json.Unmarshal([]byte(blob), &cs); err != nil {
		return nil, false, err
	}
	return cs, true, nil
}

// DeleteHoleCards implements §3's "unconditionally deleted at hand
// resolution" rule for PrivateHoleCards.
func (s *SQLiteAdapter) DeleteHoleCards(ctx context.Context, tableID string, handNumber int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM hole_cards WHERE table_id = ? AND hand_number = ?`, tableID, handNumber)
	return err
}

func (s *SQLiteAdapter) AppendEvent(ctx context.Context, tableID string, event engine.Event) error {
	blob, err := marshalJSON(event)
	if err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var nextSeq int64
	err = tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) + 1 FROM events WHERE table_id = ?`, tableID).Scan(&nextSeq)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO events (table_id, seq, timestamp_ns, payload) VALUES (?, ?, ?, ?)
	`, tableID, nextSeq, time.Now().UnixNano(), blob); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLiteAdapter) LoadEvents(ctx context.Context, tableID string, sinceSeq int64) ([]StoredEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, timestamp_ns, payload FROM events
		WHERE table_id = ? AND seq > ? ORDER BY seq ASC
	`, tableID, sinceSeq)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []StoredEvent
	for rows.Next() {
		var se StoredEvent
		var payload string
		if err := rows.Scan(&se.Seq, &se.Timestamp, &payload); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(payload), &se.Event); err != nil {
			return nil, err
		}
		out = append(out, se)
	}
	return out, rows.Err()
}

func (s *SQLiteAdapter) SaveHandRecord(ctx context.Context, tableID string, handNumber int64, record HandRecord) error {
	blob, err := marshalJSON(record)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO hands (table_id, hand_number, record) VALUES (?, ?, ?)
		ON CONFLICT(table_id, hand_number) DO NOTHING
	`, tableID, handNumber, blob)
	return err
}

func (s *SQLiteAdapter) LoadHandRecord(ctx context.Context, tableID string, handNumber int64) (HandRecord, bool, error) {
	var blob string
	err := s.db.QueryRowContext(ctx, `
		SELECT record FROM hands WHERE table_id = ? AND hand_number = ?
	`, tableID, handNumber).Scan(&blob)
	if err == sql.ErrNoRows {
		return HandRecord{}, false, nil
	}
	if err != nil {
		return HandRecord{}, false, err
	}
	var record HandRecord
	if err := json.Unmarshal([]byte(blob), &record); err != nil {
		return HandRecord{}, false, err
	}
	return record, true, nil
}

func (s *SQLiteAdapter) SaveTask(ctx context.Context, task engine.ScheduledTask) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO scheduled_tasks (table_id, kind, token, delay_ns) VALUES (?, ?, ?, ?)
		ON CONFLICT(table_id, kind) DO UPDATE SET token = excluded.token, delay_ns = excluded.delay_ns, created_at = CURRENT_TIMESTAMP
	`, task.TableID, string(task.Kind), task.Token, int64(task.Delay))
	return err
}

func (s *SQLiteAdapter) DeleteTask(ctx context.Context, tableID string, kind engine.TaskKind, token string) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM scheduled_tasks WHERE table_id = ? AND kind = ? AND token = ?
	`, tableID, string(kind), token)
	return err
}

func (s *SQLiteAdapter) LoadPendingTasks(ctx context.Context) ([]engine.ScheduledTask, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT table_id, kind, token, delay_ns FROM scheduled_tasks`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []engine.ScheduledTask
	for rows.Next() {
		var t engine.ScheduledTask
		var kind string
		var delayNs int64
		if err := rows.Scan(&t.TableID, &kind, &t.Token, &delayNs); err != nil {
			return nil, err
		}
		t.Kind = engine.TaskKind(kind)
		t.Delay = time.Duration(delayNs)
		out = append(out, t)
	}
	return out, rows.Err()
}

// WithTableTx implements §4.5's transaction primitive: runs fn against a
// single SQLite transaction scoped to tableID, serializable per table.
// A SQLITE_BUSY/locked failure from BeginTx, fn, or Commit is retried up to
// maxTxnRetries times with jittered exponential backoff; ErrTransactionConflict
// is only returned once every retry is exhausted, per §7's
// "TRANSACTION_CONFLICT is retried internally by store.Adapter and never
// reaches a caller" unless it genuinely cannot be resolved.
func (s *SQLiteAdapter) WithTableTx(ctx context.Context, tableID string, fn func(*Txn) error) error {
	var lastErr error
	for attempt := 0; attempt <= maxTxnRetries; attempt++ {
		if attempt > 0 {
			if err := sleepBackoff(ctx, attempt); err != nil {
				return err
			}
		}

		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			if isBusyErr(err) {
				lastErr = err
				continue
			}
			return err
		}

		txn := &Txn{backend: &sqlTxnBackend{tx: tx, ctx: ctx, tableID: tableID}}
		if err := fn(txn); err != nil {
			tx.Rollback()
			if isBusyErr(err) {
				lastErr = err
				continue
			}
			return err
		}

		if err := tx.Commit(); err != nil {
			if isBusyErr(err) {
				lastErr = err
				continue
			}
			return err
		}
		return nil
	}
	return fmt.Errorf("%w: %v", ErrTransactionConflict, lastErr)
}

func sleepBackoff(ctx context.Context, attempt int) error {
	base := time.Duration(1<<uint(attempt-1)) * 10 * time.Millisecond
	jitter := time.Duration(rand.Int63n(int64(base) + 1))
	select {
	case <-time.After(base + jitter):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func isBusyErr(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

// sqlTxnBackend is the SQLiteAdapter's txnBackend, scoping every statement
// to one *sql.Tx so the whole callback commits or rolls back atomically.
type sqlTxnBackend struct {
	tx      *sql.Tx
	ctx     context.Context
	tableID string
}

func (b *sqlTxnBackend) loadSnapshot() (engine.Table, error) {
	var blob string
	err := b.tx.QueryRowContext(b.ctx, `SELECT snapshot FROM tables WHERE id = ?`, b.tableID).Scan(&blob)
	if err == sql.ErrNoRows {
		return engine.Table{}, nil
	}
	if err != nil {
		return engine.Table{}, err
	}
	var table engine.Table
	if err := json.Unmarshal([]byte(blob), &table); err != nil {
		return engine.Table{}, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	return table, nil
}

func (b *sqlTxnBackend) saveSnapshot(table engine.Table) error {
	blob, err := marshalJSON(table)
	if err != nil {
		return err
	}
	_, err = b.tx.ExecContext(b.ctx, `
		INSERT INTO tables (id, snapshot, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET snapshot = excluded.snapshot, updated_at = excluded.updated_at
	`, table.ID, blob, time.Now())
	return err
}

func (b *sqlTxnBackend) appendEvent(event engine.Event) error {
	blob, err := marshalJSON(event)
	if err != nil {
		return err
	}
	var nextSeq int64
	err = b.tx.QueryRowContext(b.ctx, `SELECT COALESCE(MAX(seq), 0) + 1 FROM events WHERE table_id = ?`, b.tableID).Scan(&nextSeq)
	if err != nil {
		return err
	}
	_, err = b.tx.ExecContext(b.ctx, `
		INSERT INTO events (table_id, seq, timestamp_ns, payload) VALUES (?, ?, ?, ?)
	`, b.tableID, nextSeq, time.Now().UnixNano(), blob)
	return err
}

func (b *sqlTxnBackend) saveHandRecord(handNumber int64, record HandRecord) error {
	blob, err := marshalJSON(record)
	if err != nil {
		return err
	}
	_, err = b.tx.ExecContext(b.ctx, `
		INSERT INTO hands (table_id, hand_number, record) VALUES (?, ?, ?)
		ON CONFLICT(table_id, hand_number) DO NOTHING
	`, b.tableID, handNumber, blob)
	return err
}

func (s *SQLiteAdapter) Close() error {
	return s.db.Close()
}
