package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// TokenEnv overrides telegram.token when set.
const TokenEnv = "TELEGRAM_BOT_TOKEN"

// Validate checks values that cannot be caught by strict decoding.
// It does not require a token so offline tools can share the file.
func (c *Config) Validate() error {
	var errs []error
	if _, err := Duration("telegram.poll_timeout", c.Telegram.PollTimeout, 0); err != nil {
		errs = append(errs, err)
	}
	if _, err := Duration("scheduler.interval", c.Scheduler.Interval, 0); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.Location(); err != nil {
		errs = append(errs, err)
	}
	n := c.Notifier
	for _, f := range []struct{ path, raw string }{
		{"notifier.retry_base", n.RetryBase},
		{"notifier.retry_max_delay", n.RetryMaxDelay},
		{"notifier.send_timeout", n.SendTimeout},
	} {
		if _, err := Duration(f.path, f.raw, 0); err != nil {
			errs = append(errs, err)
		}
	}
	if n.Workers < 0 || n.QueueSize < 0 || n.RatePerSec < 0 || n.RetryMax < 0 {
		errs = append(errs, errors.New("notifier: counts must be >= 0"))
	}
	switch strings.ToLower(strings.TrimSpace(c.Logging.Level)) {
	case "", "trace", "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, fmt.Errorf("logging.level: unknown level %q", c.Logging.Level))
	}
	return errors.Join(errs...)
}

// Location resolves scheduler.timezone; empty means the process local zone.
func (c *Config) Location() (*time.Location, error) {
	tz := strings.TrimSpace(c.Scheduler.Timezone)
	if tz == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("scheduler.timezone: %w", err)
	}
	return loc, nil
}

// SchedulerInterval returns the tick cadence, defaulting to def.
func (c *Config) SchedulerInterval(def time.Duration) time.Duration {
	d, err := Duration("scheduler.interval", c.Scheduler.Interval, def)
	if err != nil {
		return def
	}
	return d
}

// Duration parses the duration string found at path. Blank and zero values
// yield def; negative values are an error.
func Duration(path, raw string, def time.Duration) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	switch {
	case err != nil:
		return 0, fmt.Errorf("%s: %w", path, err)
	case d < 0:
		return 0, fmt.Errorf("%s: negative duration %s", path, raw)
	case d == 0:
		return def, nil
	}
	return d, nil
}
