package reminder

import (
	"strconv"
	"sync"
	"time"
)

// Store keeps reminders per owner in insertion order.
//
// A single mutex guards all owners; volumes per owner are small.
type Store struct {
	mu     sync.Mutex
	owners map[int64][]*entry
	// lastID backs a process-wide monotonic counter, which also makes ids
	// unique per owner.
	lastID uint64

	now func() time.Time
}

type entry struct {
	r Reminder
	// inflight is set while a dispatch is pending so later ticks skip it.
	inflight bool
}

// Stats is a point-in-time view of the store, for metrics and /health.
type Stats struct {
	Owners   int
	Pending  int
	InFlight int
	Sent     int
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{owners: map[int64][]*entry{}, now: time.Now}
}

// Add stores a new unsent reminder and returns a copy of it.
func (s *Store) Add(owner int64, message string, dueAt time.Time) Reminder {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastID++
	r := Reminder{
		ID:        strconv.FormatUint(s.lastID, 10),
		Owner:     owner,
		Message:   message,
		DueAt:     dueAt,
		CreatedAt: s.now(),
	}
	s.owners[owner] = append(s.owners[owner], &entry{r: r})
	return r
}

// ListActive returns the owner's unsent reminders in creation order.
// The slice is a fresh snapshot on every call.
func (s *Store) ListActive(owner int64) []Reminder {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Reminder
	for _, e := range s.owners[owner] {
		if !e.r.Sent {
			out = append(out, e.r)
		}
	}
	return out
}

// Cancel removes the owner's reminder with the given id if it has not been
// sent yet. It reports whether anything was removed.
func (s *Store) Cancel(owner int64, id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := s.owners[owner]
	for i, e := range list {
		if e.r.ID != id || e.r.Sent {
			continue
		}
		list = append(list[:i], list[i+1:]...)
		if len(list) == 0 {
			delete(s.owners, owner)
		} else {
			s.owners[owner] = list
		}
		return true
	}
	return false
}

// Stats counts reminders by state.
func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Stats{Owners: len(s.owners)}
	for _, list := range s.owners {
		for _, e := range list {
			switch {
			case e.r.Sent:
				st.Sent++
			case e.inflight:
				st.InFlight++
				st.Pending++
			default:
				st.Pending++
			}
		}
	}
	return st
}

// claimDue marks every due reminder that is not already being dispatched as
// in flight and returns copies of them.
func (s *Store) claimDue(now time.Time) []Reminder {
	s.mu.Lock()
	defer s.mu.Unlock()

	var due []Reminder
	for _, list := range s.owners {
		for _, e := range list {
			if e.inflight || !e.r.Due(now) {
				continue
			}
			e.inflight = true
			due = append(due, e.r)
		}
	}
	return due
}

// markSent flips the reminder to sent. It reports false when the reminder is
// gone (cancelled mid-dispatch) or was already sent.
func (s *Store) markSent(owner int64, id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.findLocked(owner, id)
	if e == nil || e.r.Sent {
		return false
	}
	e.r.Sent = true
	e.inflight = false
	return true
}

// release makes a reminder eligible for dispatch again after a failure.
func (s *Store) release(owner int64, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e := s.findLocked(owner, id); e != nil {
		e.inflight = false
	}
}

// evict drops sent reminders due before cutoff and returns how many were
// removed. Unsent reminders are kept regardless of age.
func (s *Store) evict(cutoff time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for owner, list := range s.owners {
		kept := list[:0]
		for _, e := range list {
			if e.r.Sent && e.r.DueAt.Before(cutoff) {
				n++
				continue
			}
			kept = append(kept, e)
		}
		for i := len(kept); i < len(list); i++ {
			list[i] = nil
		}
		if len(kept) == 0 {
			delete(s.owners, owner)
		} else {
			s.owners[owner] = kept
		}
	}
	return n
}

func (s *Store) findLocked(owner int64, id string) *entry {
	for _, e := range s.owners[owner] {
		if e.r.ID == id {
			return e
		}
	}
	return nil
}
