package reminder

import (
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	logx "skeddy/pkg/logx"
)

// Intake turns free text into a stored reminder.
//
// Every failure is reported as ErrNotUnderstood, ErrPastInstant or
// ErrProcessing; nothing is stored unless the whole pipeline succeeds.
type Intake struct {
	extractor *Extractor
	store     *Store
	log       logx.Logger
	obs       Observer
}

// NewIntake wires extraction to the store. obs may be nil.
func NewIntake(extractor *Extractor, store *Store, log logx.Logger, obs Observer) *Intake {
	if log.IsZero() {
		log = logx.Nop()
	}
	if obs == nil {
		obs = nopObserver{}
	}
	return &Intake{extractor: extractor, store: store, log: log, obs: obs}
}

// Accept extracts a reminder from text relative to ref and stores it for owner.
func (in *Intake) Accept(owner int64, text string, ref time.Time) (r Reminder, err error) {
	defer func() {
		if p := recover(); p != nil {
			in.log.Error("reminder intake panicked",
				logx.Int64("owner", owner), logx.Any("panic", p), logx.String("stack", string(debug.Stack())))
			r, err = Reminder{}, fmt.Errorf("%w: panic: %v", ErrProcessing, p)
		}
		if err != nil {
			in.obs.ReminderRejected(rejectReason(err))
		}
	}()

	ex, err := in.extractor.Extract(text, ref)
	if err != nil {
		return Reminder{}, err
	}
	if ex.DueAt.Before(ref) {
		return Reminder{}, ErrPastInstant
	}

	r = in.store.Add(owner, ex.Message, ex.DueAt)
	in.obs.ReminderCreated()
	in.log.Info("reminder added",
		logx.String("id", r.ID), logx.Int64("owner", owner), logx.Time("due_at", r.DueAt))
	return r, nil
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, ErrNotUnderstood):
		return "not_understood"
	case errors.Is(err, ErrPastInstant):
		return "past"
	default:
		return "error"
	}
}
