package config

// Config is the on-disk configuration. Files ending in .yaml or .yml are
// read as YAML, anything else as JSON.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
type Config struct {
	Telegram  TelegramConfig  `json:"telegram" yaml:"telegram"`
	Logging   LoggingConfig   `json:"logging" yaml:"logging"`
	Scheduler SchedulerConfig `json:"scheduler" yaml:"scheduler"`
	Notifier  NotifierConfig  `json:"notifier" yaml:"notifier"`
	Metrics   MetricsConfig   `json:"metrics" yaml:"metrics"`
}

type TelegramConfig struct {
	// Token may be left empty and supplied via TELEGRAM_BOT_TOKEN.
	Token string `json:"token" yaml:"token"`
	// PollTimeout is the long-poll timeout (default "10s").
	PollTimeout string `json:"poll_timeout,omitempty" yaml:"poll_timeout,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level" yaml:"level"`
	Console bool        `json:"console" yaml:"console"`
	File    LoggingFile `json:"file" yaml:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Path    string `json:"path" yaml:"path"`
}

// SchedulerConfig controls the reminder tick.
//
// Defaults (when fields are omitted/zero):
//   - interval: "60s"
//   - timezone: the process local zone
type SchedulerConfig struct {
	Interval string `json:"interval,omitempty" yaml:"interval,omitempty"`
	// Timezone is an IANA name used to interpret "tomorrow at 5pm" and to
	// render dates back to users.
	Timezone string `json:"timezone,omitempty" yaml:"timezone,omitempty"`
}

// NotifierConfig controls the async notification pipeline.
//
// Defaults (when fields are omitted/zero):
//   - workers: 2
//   - queue_size: 512
//   - rate_per_sec: 20
//   - retry_max: 0
//   - retry_base: "500ms"
//   - retry_max_delay: "10s"
//   - send_timeout: "10s"
type NotifierConfig struct {
	Workers       int    `json:"workers,omitempty" yaml:"workers,omitempty"`
	QueueSize     int    `json:"queue_size,omitempty" yaml:"queue_size,omitempty"`
	RatePerSec    int    `json:"rate_per_sec,omitempty" yaml:"rate_per_sec,omitempty"`
	RetryMax      int    `json:"retry_max,omitempty" yaml:"retry_max,omitempty"`
	RetryBase     string `json:"retry_base,omitempty" yaml:"retry_base,omitempty"`
	RetryMaxDelay string `json:"retry_max_delay,omitempty" yaml:"retry_max_delay,omitempty"`
	SendTimeout   string `json:"send_timeout,omitempty" yaml:"send_timeout,omitempty"`
}

// MetricsConfig controls the optional Prometheus endpoint.
//
// Prefer binding to localhost (default "127.0.0.1:9464").
type MetricsConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Addr    string `json:"addr,omitempty" yaml:"addr,omitempty"`
	Path    string `json:"path,omitempty" yaml:"path,omitempty"` // default: "/metrics"
}
