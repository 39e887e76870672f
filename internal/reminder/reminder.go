package reminder

import (
	"errors"
	"time"
)

// Retention is how long a sent reminder stays in the store after its due time.
const Retention = 24 * time.Hour

// DefaultInterval is the reference cadence of the scheduler loop.
const DefaultInterval = 60 * time.Second

var (
	// ErrNotUnderstood means no date/time expression was found, or nothing was
	// left to remind about once it was removed.
	ErrNotUnderstood = errors.New("reminder not understood")
	// ErrPastInstant means the resolved time precedes the reference instant.
	ErrPastInstant = errors.New("reminder time is in the past")
	// ErrProcessing is reported for unexpected failures during intake.
	ErrProcessing = errors.New("reminder processing failed")
)

// Reminder is a single pending or delivered reminder.
//
// Values handed out by the Store are copies; mutating them has no effect on
// stored state.
type Reminder struct {
	// ID is unique within the owner's set and never reused.
	ID string
	// Owner is the chat the reminder belongs to.
	Owner     int64
	Message   string
	DueAt     time.Time
	CreatedAt time.Time
	Sent      bool
}

// Due reports whether r should be dispatched at now.
func (r Reminder) Due(now time.Time) bool {
	return !r.Sent && !r.DueAt.After(now)
}

// Observer receives lifecycle signals (metrics). All methods must be safe for
// concurrent use.
type Observer interface {
	ReminderCreated()
	ReminderRejected(reason string)
	DispatchFinished(err error)
	RemindersEvicted(n int)
	RemindersPending(n int)
}

type nopObserver struct{}

func (nopObserver) ReminderCreated()        {}
func (nopObserver) ReminderRejected(string) {}
func (nopObserver) DispatchFinished(error)  {}
func (nopObserver) RemindersEvicted(int)    {}
func (nopObserver) RemindersPending(int)    {}
