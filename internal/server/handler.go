// Package server composes the evaluator, pot, engine, scheduler and store
// packages behind the transport-agnostic External Interfaces surface (§6).
// It is grounded on the teacher's Server type in pkg/server/server.go: a
// mutex-guarded map of live tables, a sub-logger per concern, and one
// method per lobby/table operation that locks, looks up the table, runs
// the mutation and persists the result before unlocking.
//
// Handler keeps every live Table resident in memory for the duration of a
// hand (mirroring the teacher's map[string]*poker.Table) because the deck
// the engine carries on a Table is never persisted past the hand it was
// dealt for (§5) — the store's snapshots exist for crash recovery and
// audit, not for resuming a hand's undealt shoe after a restart.
package server

import (
	"context"
	"fmt"
	"sync"

	"github.com/decred/slog"

	"github.com/feltframe/holdem-core/internal/config"
	"github.com/feltframe/holdem-core/internal/engine"
	"github.com/feltframe/holdem-core/internal/scheduler"
	"github.com/feltframe/holdem-core/internal/store"
)

// Handler implements §6's external operations plus the scheduled-task
// entry points the scheduler dispatches into.
type Handler struct {
	log   slog.Logger
	store store.Adapter
	sched *scheduler.Scheduler
	cfg   config.Engine

	mu     sync.Mutex
	tables map[string]*engine.Table
}

// New builds a Handler. The caller is expected to construct sched with
// h.Dispatch as its Dispatch func before the first Schedule call, since the
// scheduler and handler are mutually referential (grounded on the
// teacher's NewServer(db, logBackend) composition in pkg/server/server.go).
func New(adapter store.Adapter, log slog.Logger, cfg config.Engine) *Handler {
	return &Handler{
		log:    log,
		store:  adapter,
		cfg:    cfg,
		tables: make(map[string]*engine.Table),
	}
}

// AttachScheduler wires the scheduler this Handler dispatches tasks
// through. Split from New because the scheduler's Dispatch closure needs a
// reference to this Handler.
func (h *Handler) AttachScheduler(s *scheduler.Scheduler) {
	h.sched = s
}

// Recover loads every persisted table snapshot and the scheduler's pending
// tasks on process start, grounded on the teacher's loadAllTables. A table
// recovered mid-hand (Status == Playing or Paused) cannot resume card for
// card — its deck lived only in the crashed process's memory — so it is
// forced back to WAITING, matching the deck-lifetime decision in DESIGN.md.
func (h *Handler) Recover(ctx context.Context) error {
	ids, err := h.store.AllTableIDs(ctx)
	if err != nil {
		return fmt.Errorf("list tables: %w", err)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, id := range ids {
		t, ok, err := h.store.LoadSnapshot(ctx, id)
		if err != nil {
			return fmt.Errorf("load table %s: %w", id, err)
		}
		if !ok {
			continue
		}
		if t.Status == engine.Playing || t.Status == engine.Paused {
			h.log.Warnf("table %s recovered mid-hand; forcing back to WAITING", id)
			t.Status = engine.Waiting
			t.CurrentTurn = -1
			t.CurrentTurnID = ""
		}
		h.tables[id] = &t
	}
	if h.sched != nil {
		if err := h.sched.Recover(ctx); err != nil {
			return fmt.Errorf("recover scheduler: %w", err)
		}
	}
	h.log.Infof("recovered %d table(s)", len(ids))
	return nil
}

func (h *Handler) lookup(tableID string) (*engine.Table, error) {
	t, ok := h.tables[tableID]
	if !ok {
		return nil, &engine.Error{Code: engine.GameNotFound, Message: fmt.Sprintf("table %s not found", tableID)}
	}
	return t, nil
}

// commit persists the pipeline's result and schedules any post-commit
// tasks, replacing the in-memory table only once everything else has
// succeeded. It does not touch private hole cards: StartHand saves newly
// dealt ones via saveHoleCards, and Dispatch deletes them once a hand
// resolves.
func (h *Handler) commit(ctx context.Context, next engine.Table, events []engine.Event, tasks []engine.ScheduledTask) error {
	if err := h.store.SaveSnapshot(ctx, next); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	for _, ev := range events {
		if err := h.store.AppendEvent(ctx, next.ID, ev); err != nil {
			return fmt.Errorf("append event: %w", err)
		}
	}
	if h.sched != nil {
		if err := h.sched.ScheduleAll(ctx, tasks); err != nil {
			return fmt.Errorf("schedule tasks: %w", err)
		}
	}
	h.tables[next.ID] = &next
	return nil
}

// commitHandResolution persists a resolved hand (showdown or win-by-fold)
// through store.Adapter.WithTableTx (§4.5): the snapshot, its events and the
// immutable HandRecord land in one serializable-per-table transaction, so a
// crash or a concurrent write to the same table can never commit the
// snapshot without the HandRecord that explains how it got there, or vice
// versa. Scheduling is deliberately outside the transaction: ScheduleAll
// talks to the scheduler, not the store, and re-arming a task is itself
// idempotent against a stale table.
func (h *Handler) commitHandResolution(ctx context.Context, next engine.Table, events []engine.Event, tasks []engine.ScheduledTask, handNumber int64) error {
	var record *store.HandRecord
	if next.HandResult != nil {
		record = &store.HandRecord{
			TableID:        next.ID,
			HandNumber:     handNumber,
			CommunityCards: next.CommunityCards,
			Result:         *next.HandResult,
		}
	}
	err := h.store.WithTableTx(ctx, next.ID, func(txn *store.Txn) error {
		if _, err := txn.Reads(); err != nil {
			return err
		}
		if err := txn.SaveSnapshot(next); err != nil {
			return err
		}
		for _, ev := range events {
			if err := txn.AppendEvent(ev); err != nil {
				return err
			}
		}
		if record != nil {
			if err := txn.SaveHandRecord(handNumber, *record); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("commit hand resolution: %w", err)
	}
	if h.sched != nil {
		if err := h.sched.ScheduleAll(ctx, tasks); err != nil {
			return fmt.Errorf("schedule tasks: %w", err)
		}
	}
	h.tables[next.ID] = &next
	return nil
}

func (h *Handler) saveHoleCards(ctx context.Context, t engine.Table) error {
	for _, seat := range t.Seats {
		if seat.Status == engine.SeatEmpty {
			continue
		}
		hc := t.HoleCards(seat.Index)
		if len(hc) == 0 {
			continue
		}
		if err := h.store.SaveHoleCards(ctx, t.ID, t.HandNumber, seat.PlayerID, hc); err != nil {
			return fmt.Errorf("save hole cards seat %d: %w", seat.Index, err)
		}
	}
	return nil
}

// CreateRoom implements §6 createRoom: builds a fresh WAITING table seeded
// from the process's environment configuration (§6 "Environment
// configuration"), persists it, and returns its id.
func (h *Handler) CreateRoom(ctx context.Context, tableID, creatorID string, smallBlind, bigBlind, minBuyIn, maxBuyIn int64, maxSeats int, autoNext bool) (engine.Table, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, exists := h.tables[tableID]; exists {
		return engine.Table{}, &engine.Error{Code: engine.InvalidConfig, Message: fmt.Sprintf("table %s already exists", tableID)}
	}

	t := engine.NewTable(tableID, engine.TableConfig{
		SmallBlind:      smallBlind,
		BigBlind:        bigBlind,
		MinBuyIn:        minBuyIn,
		MaxBuyIn:        maxBuyIn,
		MaxSeats:        maxSeats,
		CreatorID:       creatorID,
		AutoNext:        autoNext,
		TurnTimeout:     h.cfg.TurnTimeout,
		ShowdownAdmire:  h.cfg.ShowdownAdmire,
		WinByFoldReveal: h.cfg.WinByFoldReveal,
		IdleTableClose:  h.cfg.IdleTableClose,
	})
	t, task := engine.ArmAutoClose(t)
	if err := h.commit(ctx, t, nil, []engine.ScheduledTask{task}); err != nil {
		return engine.Table{}, err
	}
	return t, nil
}

// JoinSeat implements §6 joinSeat.
func (h *Handler) JoinSeat(ctx context.Context, tableID string, seatIndex int, playerID, displayName string, buyIn int64) (engine.Table, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	cur, err := h.lookup(tableID)
	if err != nil {
		return engine.Table{}, err
	}
	next, events, err := engine.JoinSeat(*cur, seatIndex, playerID, displayName, buyIn)
	if err != nil {
		return engine.Table{}, err
	}
	var tasks []engine.ScheduledTask
	if next.Status == engine.Waiting {
		var task engine.ScheduledTask
		next, task = engine.ArmAutoClose(next)
		tasks = append(tasks, task)
	}
	if err := h.commit(ctx, next, events, tasks); err != nil {
		return engine.Table{}, err
	}
	return next, nil
}

// LeaveSeat implements §6 leaveSeat.
func (h *Handler) LeaveSeat(ctx context.Context, tableID, playerID string) (engine.Table, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	cur, err := h.lookup(tableID)
	if err != nil {
		return engine.Table{}, err
	}
	next, events, tasks, err := engine.LeaveSeat(*cur, playerID)
	if err != nil {
		return engine.Table{}, err
	}
	// A leave that settles the table straight into WAITING is activity that
	// should reset the idle clock. A leave that instead makes this player
	// the last one standing moves the table to WAITING too, but a win-by-fold
	// reveal window is still pending (Stage StageWinByFold) — the idle
	// clock arms once that window closes (see maybeScheduleNextHand),
	// not here.
	if next.Status == engine.Waiting && next.Stage != engine.StageWinByFold {
		var task engine.ScheduledTask
		next, task = engine.ArmAutoClose(next)
		tasks = append(tasks, task)
	}
	if err := h.commit(ctx, next, events, tasks); err != nil {
		return engine.Table{}, err
	}
	return next, nil
}

// StartHand implements §6 startHand.
func (h *Handler) StartHand(ctx context.Context, tableID string) (engine.Table, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	cur, err := h.lookup(tableID)
	if err != nil {
		return engine.Table{}, err
	}
	next, events, tasks, err := engine.StartHand(*cur)
	if err != nil {
		// StartHand deterministically returns a WAITING table even on
		// INSUFFICIENT_PLAYERS, along with the idle-timeout sweeper task
		// that now needs arming; commit both so the table doesn't stay
		// wedged in whatever state it was in before this call.
		if commitErr := h.commit(ctx, next, nil, tasks); commitErr != nil {
			h.log.Warnf("commit after failed StartHand for %s: %v", tableID, commitErr)
		}
		return engine.Table{}, err
	}
	if err := h.commit(ctx, next, events, tasks); err != nil {
		return engine.Table{}, err
	}
	if err := h.saveHoleCards(ctx, next); err != nil {
		return engine.Table{}, err
	}
	return next, nil
}

// PlayerAction implements §6 playerAction (ProcessAction in the engine).
func (h *Handler) PlayerAction(ctx context.Context, tableID, playerID string, action engine.Action, turnID string) (engine.Table, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	cur, err := h.lookup(tableID)
	if err != nil {
		return engine.Table{}, err
	}
	next, events, tasks, err := engine.ProcessAction(*cur, playerID, action, turnID)
	if err != nil {
		return engine.Table{}, err
	}
	if err := h.commit(ctx, next, events, tasks); err != nil {
		return engine.Table{}, err
	}
	return next, nil
}

// ShowCards implements §6 showCards.
func (h *Handler) ShowCards(ctx context.Context, tableID, playerID string) (engine.Table, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	cur, err := h.lookup(tableID)
	if err != nil {
		return engine.Table{}, err
	}
	next, events, err := engine.ShowCards(*cur, playerID)
	if err != nil {
		return engine.Table{}, err
	}
	if err := h.commit(ctx, next, events, nil); err != nil {
		return engine.Table{}, err
	}
	return next, nil
}

// TogglePause implements §6 togglePause.
func (h *Handler) TogglePause(ctx context.Context, tableID, requesterID string) (engine.Table, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	cur, err := h.lookup(tableID)
	if err != nil {
		return engine.Table{}, err
	}
	next, err := engine.TogglePause(*cur, requesterID)
	if err != nil {
		return engine.Table{}, err
	}
	if h.sched != nil && next.Status == engine.Paused && next.CurrentTurnID != "" {
		// Snapshot the turn timer's unused time before cancelling it (§4.4):
		// the engine has no clock of its own to measure this, so the handler
		// reads it off the live scheduler timer and threads it through the
		// committed Table for ResumeGame to re-arm from.
		next.PausedRemaining = h.sched.Remaining(tableID, engine.TaskTurnTimeout)
		h.sched.Cancel(ctx, tableID, engine.TaskTurnTimeout, next.CurrentTurnID)
	}
	if err := h.commit(ctx, next, nil, nil); err != nil {
		return engine.Table{}, err
	}
	return next, nil
}

// ResumeGame implements §6 resumeGame.
func (h *Handler) ResumeGame(ctx context.Context, tableID, requesterID string) (engine.Table, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	cur, err := h.lookup(tableID)
	if err != nil {
		return engine.Table{}, err
	}
	next, tasks, err := engine.ResumeGame(*cur, requesterID)
	if err != nil {
		return engine.Table{}, err
	}
	if err := h.commit(ctx, next, nil, tasks); err != nil {
		return engine.Table{}, err
	}
	return next, nil
}

// SetEndAfterHand implements §6 setEndAfterHand.
func (h *Handler) SetEndAfterHand(ctx context.Context, tableID, requesterID string, endAfterHand bool) (engine.Table, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	cur, err := h.lookup(tableID)
	if err != nil {
		return engine.Table{}, err
	}
	next, err := engine.SetEndAfterHand(*cur, requesterID, endAfterHand)
	if err != nil {
		return engine.Table{}, err
	}
	if err := h.commit(ctx, next, nil, nil); err != nil {
		return engine.Table{}, err
	}
	return next, nil
}

// DeleteRoom implements §6 deleteRoom.
func (h *Handler) DeleteRoom(ctx context.Context, tableID, requesterID string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	cur, err := h.lookup(tableID)
	if err != nil {
		return err
	}
	if err := engine.DeleteRoom(*cur, requesterID); err != nil {
		return err
	}
	if err := h.store.DeleteSnapshot(ctx, tableID); err != nil {
		return fmt.Errorf("delete snapshot: %w", err)
	}
	if err := h.store.DeleteHoleCards(ctx, tableID, cur.HandNumber); err != nil {
		h.log.Warnf("delete hole cards for %s: %v", tableID, err)
	}
	delete(h.tables, tableID)
	return nil
}

// Dispatch is the scheduler.Dispatch func: it routes a fired ScheduledTask
// to the matching engine handle* entry point by Kind, applies the result
// and commits it, exactly like any other pipeline call. Every handle*
// entry point is itself token-checked, so a task fired against a table
// that has since moved on is a benign no-op here too.
func (h *Handler) Dispatch(ctx context.Context, task engine.ScheduledTask) {
	h.mu.Lock()
	defer h.mu.Unlock()

	cur, err := h.lookup(task.TableID)
	if err != nil {
		h.log.Debugf("dispatch %s for unknown table %s", task.Kind, task.TableID)
		return
	}

	var next engine.Table
	var events []engine.Event
	var tasks []engine.ScheduledTask

	switch task.Kind {
	case engine.TaskTurnTimeout:
		next, events, tasks, err = engine.HandleTurnTimeout(*cur, task.Token)
	case engine.TaskShowdown:
		next, events, tasks, err = engine.ResolveShowdown(*cur, task.Token)
	case engine.TaskWinByFold:
		next, events, tasks, err = engine.HandleWinByFoldTimeout(*cur, task.Token)
	case engine.TaskStartNextHand:
		next, events, tasks, err = engine.HandleStartNextHand(*cur, task.Token)
	case engine.TaskAutoClose:
		next, events, err = engine.HandleRoomAutoClose(*cur, task.Token)
	default:
		h.log.Errorf("dispatch: unknown task kind %q", task.Kind)
		return
	}
	if err != nil {
		h.log.Errorf("dispatch %s for table %s: %v", task.Kind, task.TableID, err)
		return
	}

	// A showdown or win-by-fold resolution commits its snapshot, events and
	// HandRecord atomically (§4.5, §3 "HandRecord is written exactly once
	// at the point the hand resolves"); every other task kind keeps the
	// plain commit path.
	if task.Kind == engine.TaskShowdown || task.Kind == engine.TaskWinByFold {
		// A live resolution always moves Stage on to StageShowdownComplete;
		// a stale token leaves the table untouched, and committing it here
		// would delete the hole cards of whatever hand is now in progress.
		if next.Stage == cur.Stage {
			return
		}
		if err := h.commitHandResolution(ctx, next, events, tasks, cur.HandNumber); err != nil {
			h.log.Errorf("commit hand resolution for table %s: %v", task.TableID, err)
			return
		}
		// Both terminal paths end the private-hole-cards lifetime for this
		// hand: showdown has already copied the revealed cards onto each
		// seat's public HoleCards field as part of the snapshot just
		// committed, and a win-by-fold mucks whatever wasn't voluntarily
		// shown. Either way the per-hand private store entry (§3
		// PrivateHoleCards) has nothing left to protect.
		if err := h.store.DeleteHoleCards(ctx, next.ID, cur.HandNumber); err != nil {
			h.log.Warnf("delete hole cards after hand end for %s: %v", task.TableID, err)
		}
		return
	}

	if err := h.commit(ctx, next, events, tasks); err != nil {
		h.log.Errorf("commit after dispatch %s for table %s: %v", task.Kind, task.TableID, err)
		return
	}
}
