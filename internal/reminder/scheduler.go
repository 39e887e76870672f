package reminder

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	logx "skeddy/pkg/logx"
)

// Dispatcher delivers a reminder to its owner.
//
// Dispatch must not block on delivery: it starts the attempt and returns.
// done is called exactly once with the outcome, possibly from another goroutine
// and possibly before Dispatch returns.
type Dispatcher interface {
	Dispatch(ctx context.Context, r Reminder, done func(error))
}

// DispatcherFunc adapts a function to Dispatcher.
type DispatcherFunc func(ctx context.Context, r Reminder, done func(error))

func (f DispatcherFunc) Dispatch(ctx context.Context, r Reminder, done func(error)) { f(ctx, r, done) }

// TickReport summarizes one scheduler pass.
type TickReport struct {
	At         time.Time
	Dispatched int
	Evicted    int
}

// Scheduler is the single periodic authority that fires due reminders and
// reclaims sent ones.
type Scheduler struct {
	store *Store
	disp  Dispatcher
	log   logx.Logger
	obs   Observer
	now   func() time.Time

	mu       sync.Mutex
	interval time.Duration
	c        *cron.Cron
	entry    cron.EntryID
	runCtx   context.Context
	last     TickReport
}

type SchedulerOption func(*Scheduler)

// WithInterval sets the tick cadence. Values <= 0 keep DefaultInterval.
func WithInterval(d time.Duration) SchedulerOption {
	return func(s *Scheduler) {
		if d > 0 {
			s.interval = d
		}
	}
}

func WithObserver(o Observer) SchedulerOption {
	return func(s *Scheduler) {
		if o != nil {
			s.obs = o
		}
	}
}

// WithClock overrides time.Now (tests).
func WithClock(now func() time.Time) SchedulerOption {
	return func(s *Scheduler) {
		if now != nil {
			s.now = now
		}
	}
}

// NewScheduler returns a stopped scheduler firing due reminders through disp.
func NewScheduler(store *Store, disp Dispatcher, log logx.Logger, opts ...SchedulerOption) *Scheduler {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Scheduler{
		store:    store,
		disp:     disp,
		log:      log,
		obs:      nopObserver{},
		now:      time.Now,
		interval: DefaultInterval,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Start begins ticking every interval until Stop. It is idempotent.
// ctx is handed to the dispatcher for every dispatch started by a tick.
func (s *Scheduler) Start(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return
	}

	cl := cronLogger{log: s.log}
	s.runCtx = ctx
	// SkipIfStillRunning keeps ticks from overlapping when a pass is slow.
	s.c = cron.New(
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	s.entry = s.c.Schedule(cron.Every(s.interval), cron.FuncJob(s.runTick))
	s.c.Start()
	s.log.Info("scheduler started", logx.Duration("interval", s.interval))
}

// Stop halts ticking and waits for a running tick to finish (bounded by ctx).
// In-flight dispatches complete on their own.
func (s *Scheduler) Stop(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	c := s.c
	s.c = nil
	s.mu.Unlock()
	if c == nil {
		return
	}
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
	}
	s.log.Info("scheduler stopped")
}

// Interval returns the current tick cadence.
func (s *Scheduler) Interval() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.interval
}

// SetInterval changes the cadence. A running scheduler re-registers its tick.
func (s *Scheduler) SetInterval(d time.Duration) {
	if d <= 0 {
		d = DefaultInterval
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if d == s.interval {
		return
	}
	s.interval = d
	if s.c != nil {
		s.c.Remove(s.entry)
		s.entry = s.c.Schedule(cron.Every(d), cron.FuncJob(s.runTick))
	}
	s.log.Info("scheduler interval changed", logx.Duration("interval", d))
}

// Last returns the report of the most recent tick.
func (s *Scheduler) Last() TickReport {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

func (s *Scheduler) runTick() {
	s.mu.Lock()
	ctx := s.runCtx
	s.mu.Unlock()
	if ctx == nil {
		ctx = context.Background()
	}
	s.Tick(ctx)
}

// Tick runs one pass: dispatch everything due, then evict sent reminders
// whose due time is older than the retention window.
func (s *Scheduler) Tick(ctx context.Context) TickReport {
	now := s.now()
	rep := TickReport{At: now}

	due := s.store.claimDue(now)
	for _, r := range due {
		r := r
		s.log.Debug("dispatching reminder", logx.String("id", r.ID), logx.Int64("owner", r.Owner), logx.Time("due_at", r.DueAt))
		s.disp.Dispatch(ctx, r, func(err error) { s.complete(r, err) })
	}
	rep.Dispatched = len(due)

	rep.Evicted = s.store.evict(now.Add(-Retention))
	if rep.Evicted > 0 {
		s.obs.RemindersEvicted(rep.Evicted)
		s.log.Debug("evicted sent reminders", logx.Int("count", rep.Evicted))
	}
	s.obs.RemindersPending(s.store.Stats().Pending)

	s.mu.Lock()
	s.last = rep
	s.mu.Unlock()
	return rep
}

func (s *Scheduler) complete(r Reminder, err error) {
	s.obs.DispatchFinished(err)
	if err != nil {
		s.store.release(r.Owner, r.ID)
		s.log.Warn("reminder dispatch failed; retrying next tick",
			logx.String("id", r.ID), logx.Int64("owner", r.Owner), logx.Err(err))
		return
	}
	if s.store.markSent(r.Owner, r.ID) {
		s.log.Info("reminder sent", logx.String("id", r.ID), logx.Int64("owner", r.Owner))
	}
}

// cronLogger routes robfig/cron's internal logging into logx.
type cronLogger struct{ log logx.Logger }

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug("cron: "+msg, kvFields(keysAndValues)...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error("cron: "+msg, append(kvFields(keysAndValues), logx.Err(err))...)
}

func kvFields(kv []interface{}) []logx.Field {
	out := make([]logx.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		k, ok := kv[i].(string)
		if !ok {
			continue
		}
		out = append(out, logx.Any(k, kv[i+1]))
	}
	return out
}
