package reminder

import (
	"sync"
	"testing"
	"time"
)

func TestStoreAddAndListActive(t *testing.T) {
	t.Parallel()
	s := NewStore()

	a := s.Add(1, "first", ref.Add(time.Hour))
	b := s.Add(1, "second", ref.Add(30*time.Minute))
	c := s.Add(2, "other owner", ref.Add(time.Hour))

	if a.ID == b.ID {
		t.Fatalf("ids must be unique per owner: %q", a.ID)
	}
	if a.Sent || a.CreatedAt.IsZero() {
		t.Fatalf("unexpected new reminder: %+v", a)
	}

	got := s.ListActive(1)
	if len(got) != 2 || got[0].ID != a.ID || got[1].ID != b.ID {
		t.Fatalf("ListActive(1) = %+v, want [%s %s] in creation order", got, a.ID, b.ID)
	}
	if other := s.ListActive(2); len(other) != 1 || other[0].ID != c.ID {
		t.Fatalf("ListActive(2) = %+v", other)
	}
	if none := s.ListActive(99); len(none) != 0 {
		t.Fatalf("ListActive(unknown) = %+v", none)
	}

	// Snapshots are independent copies.
	got[0].Message = "mutated"
	if again := s.ListActive(1); again[0].Message != "first" {
		t.Fatalf("store mutated through snapshot: %+v", again[0])
	}
}

func TestStoreIDsNeverReused(t *testing.T) {
	t.Parallel()
	s := NewStore()
	a := s.Add(1, "a", ref)
	if !s.Cancel(1, a.ID) {
		t.Fatal("cancel failed")
	}
	b := s.Add(1, "b", ref)
	if a.ID == b.ID {
		t.Fatalf("id %q reused after cancel", a.ID)
	}
}

func TestStoreCancel(t *testing.T) {
	t.Parallel()
	s := NewStore()
	r := s.Add(7, "call mom", ref.Add(time.Hour))

	if s.Cancel(8, r.ID) {
		t.Fatal("cancel by another owner must fail")
	}
	if !s.Cancel(7, r.ID) {
		t.Fatal("first cancel should succeed")
	}
	if s.Cancel(7, r.ID) {
		t.Fatal("second cancel should report false")
	}
	if s.Cancel(7, "nope") {
		t.Fatal("unknown id should report false")
	}
	if got := s.ListActive(7); len(got) != 0 {
		t.Fatalf("ListActive after cancel = %+v", got)
	}
}

func TestStoreCancelSentIsNoop(t *testing.T) {
	t.Parallel()
	s := NewStore()
	r := s.Add(1, "x", ref)
	if !s.markSent(1, r.ID) {
		t.Fatal("markSent failed")
	}
	if s.Cancel(1, r.ID) {
		t.Fatal("cancelling a sent reminder must report false")
	}
	if st := s.Stats(); st.Sent != 1 {
		t.Fatalf("sent reminder removed by cancel: %+v", st)
	}
}

func TestStoreMarkSentOnce(t *testing.T) {
	t.Parallel()
	s := NewStore()
	r := s.Add(1, "x", ref)
	if !s.markSent(1, r.ID) {
		t.Fatal("first markSent should flip the flag")
	}
	if s.markSent(1, r.ID) {
		t.Fatal("second markSent must be a no-op")
	}
	if got := s.ListActive(1); len(got) != 0 {
		t.Fatalf("sent reminder still listed as active: %+v", got)
	}
}

func TestStoreClaimDueSkipsInFlight(t *testing.T) {
	t.Parallel()
	s := NewStore()
	due := s.Add(1, "due", ref.Add(-time.Minute))
	s.Add(1, "later", ref.Add(time.Hour))

	first := s.claimDue(ref)
	if len(first) != 1 || first[0].ID != due.ID {
		t.Fatalf("claimDue = %+v", first)
	}
	if again := s.claimDue(ref); len(again) != 0 {
		t.Fatalf("in-flight reminder claimed twice: %+v", again)
	}
	s.release(1, due.ID)
	if retry := s.claimDue(ref); len(retry) != 1 {
		t.Fatalf("released reminder not claimable: %+v", retry)
	}
}

func TestStoreEvict(t *testing.T) {
	t.Parallel()
	s := NewStore()
	old := ref.Add(-25 * time.Hour)
	sent := s.Add(1, "sent old", old)
	unsent := s.Add(1, "unsent old", old)
	recent := s.Add(1, "sent recent", ref.Add(-time.Hour))
	s.markSent(1, sent.ID)
	s.markSent(1, recent.ID)

	if n := s.evict(ref.Add(-Retention)); n != 1 {
		t.Fatalf("evict = %d, want 1", n)
	}
	if s.findLocked(1, sent.ID) != nil {
		t.Fatal("old sent reminder should be evicted")
	}
	if s.findLocked(1, unsent.ID) == nil {
		t.Fatal("unsent reminder must never be evicted")
	}
	if s.findLocked(1, recent.ID) == nil {
		t.Fatal("recently sent reminder should be retained")
	}
}

func TestStoreEvictDropsEmptyOwners(t *testing.T) {
	t.Parallel()
	s := NewStore()
	r := s.Add(3, "x", ref.Add(-48*time.Hour))
	s.markSent(3, r.ID)
	s.evict(ref.Add(-Retention))
	if st := s.Stats(); st.Owners != 0 {
		t.Fatalf("owners = %d, want 0", st.Owners)
	}
}

func TestStoreConcurrentAccess(t *testing.T) {
	t.Parallel()
	s := NewStore()
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		owner := int64(w % 3)
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				r := s.Add(owner, "x", ref.Add(-time.Second))
				_ = s.ListActive(owner)
				for _, d := range s.claimDue(ref) {
					s.markSent(d.Owner, d.ID)
				}
				s.Cancel(owner, r.ID)
				s.evict(ref.Add(time.Hour))
			}
		}()
	}
	wg.Wait()

	seen := map[string]bool{}
	for _, list := range s.owners {
		for _, e := range list {
			if seen[e.r.ID] {
				t.Fatalf("duplicate id %s", e.r.ID)
			}
			seen[e.r.ID] = true
		}
	}
}
