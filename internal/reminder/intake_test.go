package reminder

import (
	"errors"
	"sync"
	"testing"
	"time"

	"skeddy/internal/dateparse"
	logx "skeddy/pkg/logx"
)

type countingObserver struct {
	mu       sync.Mutex
	created  int
	rejected map[string]int
}

func (o *countingObserver) ReminderCreated() {
	o.mu.Lock()
	o.created++
	o.mu.Unlock()
}

func (o *countingObserver) ReminderRejected(reason string) {
	o.mu.Lock()
	if o.rejected == nil {
		o.rejected = map[string]int{}
	}
	o.rejected[reason]++
	o.mu.Unlock()
}

func (o *countingObserver) DispatchFinished(error) {}
func (o *countingObserver) RemindersEvicted(int)   {}
func (o *countingObserver) RemindersPending(int)   {}

func TestIntakeAccepts(t *testing.T) {
	t.Parallel()
	store := NewStore()
	obs := &countingObserver{}
	in := NewIntake(NewExtractor(phraseParser(map[string]time.Time{"in 2 hours": ref.Add(2 * time.Hour)})), store, logx.Nop(), obs)

	r, err := in.Accept(42, "remind me call mom in 2 hours", ref)
	if err != nil {
		t.Fatalf("Accept error: %v", err)
	}
	if r.Owner != 42 || r.Message != "call mom" || !r.DueAt.Equal(ref.Add(2*time.Hour)) || r.Sent {
		t.Fatalf("unexpected reminder: %+v", r)
	}
	if got := store.ListActive(42); len(got) != 1 || got[0].ID != r.ID {
		t.Fatalf("ListActive = %+v", got)
	}
	if obs.created != 1 {
		t.Fatalf("created = %d", obs.created)
	}
}

func TestIntakeRejectsPastBeforeStore(t *testing.T) {
	t.Parallel()
	store := NewStore()
	obs := &countingObserver{}
	in := NewIntake(NewExtractor(phraseParser(map[string]time.Time{"yesterday": ref.Add(-24 * time.Hour)})), store, logx.Nop(), obs)

	_, err := in.Accept(1, "remind me pay bills yesterday", ref)
	if !errors.Is(err, ErrPastInstant) {
		t.Fatalf("err = %v, want ErrPastInstant", err)
	}
	if got := store.ListActive(1); len(got) != 0 {
		t.Fatalf("past reminder reached the store: %+v", got)
	}
	if obs.rejected["past"] != 1 {
		t.Fatalf("rejected = %v", obs.rejected)
	}
}

func TestIntakeAcceptsExactReference(t *testing.T) {
	t.Parallel()
	store := NewStore()
	in := NewIntake(NewExtractor(phraseParser(map[string]time.Time{"now": ref})), store, logx.Nop(), nil)
	if _, err := in.Accept(1, "stretch now", ref); err != nil {
		t.Fatalf("due == reference must be accepted, got %v", err)
	}
}

func TestIntakeNotUnderstood(t *testing.T) {
	t.Parallel()
	store := NewStore()
	obs := &countingObserver{}
	in := NewIntake(NewExtractor(phraseParser(nil)), store, logx.Nop(), obs)

	if _, err := in.Accept(1, "hello there", ref); !errors.Is(err, ErrNotUnderstood) {
		t.Fatalf("err = %v, want ErrNotUnderstood", err)
	}
	if st := store.Stats(); st.Owners != 0 {
		t.Fatalf("store touched: %+v", st)
	}
	if obs.rejected["not_understood"] != 1 {
		t.Fatalf("rejected = %v", obs.rejected)
	}
}

func TestIntakeRecoversPanics(t *testing.T) {
	t.Parallel()
	store := NewStore()
	boom := dateparse.ParserFunc(func(string, time.Time) ([]dateparse.Occurrence, error) {
		panic("grammar bug")
	})
	in := NewIntake(NewExtractor(boom), store, logx.Nop(), nil)

	r, err := in.Accept(1, "call mom in 2 hours", ref)
	if !errors.Is(err, ErrProcessing) {
		t.Fatalf("err = %v, want ErrProcessing", err)
	}
	if r.ID != "" {
		t.Fatalf("partial reminder returned: %+v", r)
	}
	if st := store.Stats(); st.Owners != 0 {
		t.Fatalf("store touched after panic: %+v", st)
	}
}
