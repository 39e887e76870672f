package notifier

import (
	"time"

	"skeddy/internal/reminder"
	kit "skeddy/internal/transport"
)

// Config controls the async notification pipeline.
type Config struct {
	Workers       int
	QueueSize     int
	RatePerSec    int
	RetryMax      int
	RetryBase     time.Duration
	RetryMaxDelay time.Duration
	SendTimeout   time.Duration
}

// Formatter renders a reminder into the text delivered to its owner.
type Formatter func(r reminder.Reminder) (string, *kit.SendOptions)

// PlainFormatter sends the bare message.
func PlainFormatter(r reminder.Reminder) (string, *kit.SendOptions) {
	return r.Message, nil
}
