// Package scheduler arms and fires the engine's post-commit ScheduledTasks.
//
// The engine never reads a clock: StartHand, ProcessAction and the rest
// return a relative Delay on every ScheduledTask and leave converting that
// into an actual wakeup to this package, following the same
// schedule/cancel-by-handle shape the original game loop used for its
// auto-start timer, generalized from one timer field to many concurrent,
// token-addressed ones so a stale timer can be told apart from the current
// one (§4.4's zombie tokens).
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/coder/quartz"
	"github.com/decred/slog"

	"github.com/feltframe/holdem-core/internal/engine"
)

// Store is the slice of the persistence adapter the scheduler needs: a
// durable record of which tasks are outstanding, so a process restart can
// recover them instead of losing every timer in flight.
type Store interface {
	SaveTask(ctx context.Context, task engine.ScheduledTask) error
	DeleteTask(ctx context.Context, tableID string, kind engine.TaskKind, token string) error
	LoadPendingTasks(ctx context.Context) ([]engine.ScheduledTask, error)
}

// Dispatch delivers a fired task to whatever applies it to the table (the
// server Handler, in production). The scheduler itself has no notion of how
// a task is applied, only of when.
type Dispatch func(ctx context.Context, task engine.ScheduledTask)

// Scheduler arms one quartz timer per outstanding ScheduledTask. Timers are
// addressed by (tableID, kind): arming a new one for the same key cancels
// whatever was previously armed there, which is how turn-timeout timers get
// replaced every time a new turn begins.
type Scheduler struct {
	clock    quartz.Clock
	store    Store
	dispatch Dispatch
	log      slog.Logger

	mu     sync.Mutex
	timers map[timerKey]armedTimer
}

type timerKey struct {
	tableID string
	kind    engine.TaskKind
}

// armedTimer tracks enough about a live timer to answer Remaining: quartz
// exposes no "time left" query of its own, so the scheduler keeps the
// armed-at instant and original delay alongside the handle.
type armedTimer struct {
	timer   *quartz.Timer
	armedAt time.Time
	delay   time.Duration
}

// New builds a Scheduler. Pass quartz.NewReal() in production and
// quartz.NewMock(t) in tests that need to control time deterministically.
func New(clock quartz.Clock, store Store, dispatch Dispatch, log slog.Logger) *Scheduler {
	return &Scheduler{
		clock:    clock,
		store:    store,
		dispatch: dispatch,
		log:      log,
		timers:   make(map[timerKey]armedTimer),
	}
}

// Schedule persists a task and arms its timer, replacing any timer already
// armed for the same (tableID, kind) pair.
func (s *Scheduler) Schedule(ctx context.Context, task engine.ScheduledTask) error {
	if err := s.store.SaveTask(ctx, task); err != nil {
		return err
	}
	s.arm(ctx, task)
	return nil
}

// ScheduleAll is a convenience for arming every task a pipeline step
// returned.
func (s *Scheduler) ScheduleAll(ctx context.Context, tasks []engine.ScheduledTask) error {
	for _, task := range tasks {
		if err := s.Schedule(ctx, task); err != nil {
			return err
		}
	}
	return nil
}

// Cancel stops and forgets any timer armed for (tableID, kind), without
// firing it. Used when a table is paused, deleted, or a hand ends before a
// previously-armed task (e.g. a turn timeout made moot by a fold) would fire.
func (s *Scheduler) Cancel(ctx context.Context, tableID string, kind engine.TaskKind, token string) {
	s.mu.Lock()
	key := timerKey{tableID: tableID, kind: kind}
	if at, ok := s.timers[key]; ok {
		at.timer.Stop()
		delete(s.timers, key)
	}
	s.mu.Unlock()

	if err := s.store.DeleteTask(ctx, tableID, kind, token); err != nil {
		s.log.Warnf("scheduler: delete task %s/%s: %v", tableID, kind, err)
	}
}

// Remaining reports how much delay is left on the timer armed for
// (tableID, kind), or zero if none is armed. Used by the handler at pause
// time (§4.4) to snapshot a turn timer's unused time before cancelling it.
func (s *Scheduler) Remaining(tableID string, kind engine.TaskKind) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	at, ok := s.timers[timerKey{tableID: tableID, kind: kind}]
	if !ok {
		return 0
	}
	left := at.delay - s.clock.Now().Sub(at.armedAt)
	if left < 0 {
		return 0
	}
	return left
}

func (s *Scheduler) arm(ctx context.Context, task engine.ScheduledTask) {
	key := timerKey{tableID: task.TableID, kind: task.Kind}

	s.mu.Lock()
	if prior, ok := s.timers[key]; ok {
		prior.timer.Stop()
	}
	timer := s.clock.AfterFunc(task.Delay, func() { s.fire(ctx, task) })
	s.timers[key] = armedTimer{timer: timer, armedAt: s.clock.Now(), delay: task.Delay}
	s.mu.Unlock()
}

func (s *Scheduler) fire(ctx context.Context, task engine.ScheduledTask) {
	s.mu.Lock()
	key := timerKey{tableID: task.TableID, kind: task.Kind}
	delete(s.timers, key)
	s.mu.Unlock()

	if err := s.store.DeleteTask(ctx, task.TableID, task.Kind, task.Token); err != nil {
		s.log.Warnf("scheduler: delete fired task %s/%s: %v", task.TableID, task.Kind, err)
	}
	s.dispatch(ctx, task)
}

// Recover re-arms every task the store has outstanding from before a process
// restart. Delay is interpreted as "from now", not from when the task was
// originally scheduled: a task already overdue fires on the next tick
// instead of being silently dropped, and the handler's token check still
// makes a truly stale delivery a benign no-op.
func (s *Scheduler) Recover(ctx context.Context) error {
	pending, err := s.store.LoadPendingTasks(ctx)
	if err != nil {
		return err
	}
	for _, task := range pending {
		s.arm(ctx, task)
	}
	s.log.Infof("scheduler: recovered %d pending task(s)", len(pending))
	return nil
}
