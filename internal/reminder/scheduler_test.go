package reminder

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	logx "skeddy/pkg/logx"
)

type recordingDispatcher struct {
	mu    sync.Mutex
	calls []Reminder
	err   error
	// hold keeps done callbacks instead of calling them.
	hold  bool
	dones []func(error)
}

func (d *recordingDispatcher) Dispatch(_ context.Context, r Reminder, done func(error)) {
	d.mu.Lock()
	d.calls = append(d.calls, r)
	if d.hold {
		d.dones = append(d.dones, done)
		d.mu.Unlock()
		return
	}
	err := d.err
	d.mu.Unlock()
	done(err)
}

func (d *recordingDispatcher) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.calls)
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newTestScheduler(store *Store, d Dispatcher, clock *fakeClock) *Scheduler {
	return NewScheduler(store, d, logx.Nop(), WithClock(clock.Now))
}

func TestTickDispatchesDueOnce(t *testing.T) {
	t.Parallel()
	clock := &fakeClock{t: ref}
	store := NewStore()
	due := store.Add(1, "due", ref)
	store.Add(1, "later", ref.Add(time.Hour))
	d := &recordingDispatcher{}
	s := newTestScheduler(store, d, clock)

	rep := s.Tick(context.Background())
	if rep.Dispatched != 1 || d.count() != 1 || d.calls[0].ID != due.ID {
		t.Fatalf("tick report %+v, calls %+v", rep, d.calls)
	}
	if got := store.ListActive(1); len(got) != 1 || got[0].Message != "later" {
		t.Fatalf("ListActive after send = %+v", got)
	}

	// Sent reminders are never dispatched again.
	for i := 0; i < 3; i++ {
		clock.Advance(time.Minute)
		s.Tick(context.Background())
	}
	if d.count() != 1 {
		t.Fatalf("dispatch count = %d, want 1", d.count())
	}
}

func TestTickRetriesFailedDispatch(t *testing.T) {
	t.Parallel()
	clock := &fakeClock{t: ref}
	store := NewStore()
	r := store.Add(1, "flaky", ref.Add(-time.Minute))
	d := &recordingDispatcher{err: errors.New("telegram down")}
	s := newTestScheduler(store, d, clock)

	s.Tick(context.Background())
	s.Tick(context.Background())
	if d.count() != 2 {
		t.Fatalf("dispatch count = %d, want a retry on every tick", d.count())
	}
	if got := store.ListActive(1); len(got) != 1 || got[0].ID != r.ID {
		t.Fatalf("failed reminder should stay active: %+v", got)
	}

	d.mu.Lock()
	d.err = nil
	d.mu.Unlock()
	s.Tick(context.Background())
	if got := store.ListActive(1); len(got) != 0 {
		t.Fatalf("reminder still active after successful retry: %+v", got)
	}
}

func TestTickSkipsInFlightDispatch(t *testing.T) {
	t.Parallel()
	clock := &fakeClock{t: ref}
	store := NewStore()
	store.Add(1, "slow", ref)
	d := &recordingDispatcher{hold: true}
	s := newTestScheduler(store, d, clock)

	s.Tick(context.Background())
	clock.Advance(time.Minute)
	s.Tick(context.Background())
	if d.count() != 1 {
		t.Fatalf("dispatch count = %d while first attempt in flight", d.count())
	}

	// Completion arrives later, from the transport.
	d.dones[0](nil)
	if got := store.ListActive(1); len(got) != 0 {
		t.Fatalf("reminder not marked sent: %+v", got)
	}
	if st := store.Stats(); st.Sent != 1 || st.InFlight != 0 {
		t.Fatalf("stats = %+v", st)
	}
}

func TestTickEvictsOnlySentReminders(t *testing.T) {
	t.Parallel()
	clock := &fakeClock{t: ref}
	store := NewStore()
	old := ref.Add(-25 * time.Hour)
	sent := store.Add(1, "sent", old)
	store.markSent(1, sent.ID)
	unsent := store.Add(1, "undelivered", old)

	// Delivery keeps failing; the overdue reminder must survive every tick.
	d := &recordingDispatcher{err: errors.New("blocked by user")}
	s := newTestScheduler(store, d, clock)

	rep := s.Tick(context.Background())
	if rep.Evicted != 1 {
		t.Fatalf("evicted = %d, want 1", rep.Evicted)
	}
	if store.findLocked(1, sent.ID) != nil {
		t.Fatal("sent reminder older than retention should be gone")
	}
	if store.findLocked(1, unsent.ID) == nil {
		t.Fatal("undelivered reminder must not be evicted")
	}
}

func TestSentReminderLifecycle(t *testing.T) {
	t.Parallel()
	clock := &fakeClock{t: ref}
	store := NewStore()
	r := store.Add(5, "stand up", ref)
	d := &recordingDispatcher{}
	s := newTestScheduler(store, d, clock)

	s.Tick(context.Background())
	if got := store.ListActive(5); len(got) != 0 {
		t.Fatalf("sent reminder listed as active: %+v", got)
	}
	if store.findLocked(5, r.ID) == nil {
		t.Fatal("sent reminder evicted before retention elapsed")
	}

	clock.Advance(Retention + time.Minute)
	s.Tick(context.Background())
	if store.findLocked(5, r.ID) != nil {
		t.Fatal("sent reminder not evicted after retention")
	}
	if d.count() != 1 {
		t.Fatalf("dispatch count = %d, want 1", d.count())
	}
}

func TestCancelDuringDispatch(t *testing.T) {
	t.Parallel()
	clock := &fakeClock{t: ref}
	store := NewStore()
	r := store.Add(1, "x", ref)
	d := &recordingDispatcher{hold: true}
	s := newTestScheduler(store, d, clock)

	s.Tick(context.Background())
	if !store.Cancel(1, r.ID) {
		t.Fatal("unsent in-flight reminder should be cancellable")
	}
	d.dones[0](nil)
	if st := store.Stats(); st.Sent != 0 || st.Pending != 0 {
		t.Fatalf("cancelled reminder resurrected: %+v", st)
	}
}

func TestSchedulerStartStopAndInterval(t *testing.T) {
	t.Parallel()
	store := NewStore()
	store.Add(1, "now", time.Now().Add(-time.Second))
	fired := make(chan struct{}, 1)
	d := DispatcherFunc(func(_ context.Context, _ Reminder, done func(error)) {
		done(nil)
		select {
		case fired <- struct{}{}:
		default:
		}
	})
	s := NewScheduler(store, d, logx.Nop(), WithInterval(time.Second))
	if s.Interval() != time.Second {
		t.Fatalf("Interval = %v", s.Interval())
	}

	s.Start(context.Background())
	s.Start(context.Background()) // idempotent
	select {
	case <-fired:
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler never ticked")
	}

	s.SetInterval(2 * time.Second)
	if s.Interval() != 2*time.Second {
		t.Fatalf("Interval after SetInterval = %v", s.Interval())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	s.Stop(ctx)
	s.Stop(ctx) // no-op
	if last := s.Last(); last.At.IsZero() {
		t.Fatal("Last() not recorded")
	}
}
