package config

// Config is the whole daemon configuration, decoded strictly (unknown fields
// are rejected) from JSON or YAML.
//
// All durations are Go duration strings (e.g. "500ms", "30s", "1m").
type Config struct {
	Logging   LoggingConfig   `json:"logging"`
	Server    ServerConfig    `json:"server"`
	Storage   StorageConfig   `json:"storage"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Notifier  NotifierConfig  `json:"notifier"`

	// Platforms maps a platform tag ("reddit", "linkedin", "threads", "x")
	// to its connected account credentials. Posts targeting a tag with no
	// entry here fail at dispatch.
	Platforms map[string]PlatformConfig `json:"platforms"`
}

type LoggingConfig struct {
	Level   string     `json:"level"`
	Console bool       `json:"console"`
	File    FileConfig `json:"file"`
}

type FileConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path,omitempty"`
}

// ServerConfig controls the REST API listener.
type ServerConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr,omitempty"` // default ":8301"
}

// StorageConfig selects the post store backend.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./postpilot.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path,omitempty"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite only
}

// SchedulerConfig controls the dispatch engine.
type SchedulerConfig struct {
	Enabled bool `json:"enabled"`

	// Interval between scans for due posts. Default "60s".
	Interval string `json:"interval,omitempty"`

	// Cron optionally replaces Interval with a cron expression.
	Cron string `json:"cron,omitempty"`

	// DispatchTimeout bounds one platform publish call. Default "45s".
	DispatchTimeout string `json:"dispatch_timeout,omitempty"`
}

// NotifierConfig controls the async notification pipeline. If the whole
// section is omitted the notifier defaults to enabled with a log sink only.
type NotifierConfig struct {
	Enabled         *bool          `json:"enabled,omitempty"`
	Workers         int            `json:"workers,omitempty"`
	QueueSize       int            `json:"queue_size,omitempty"`
	RatePerSec      int            `json:"rate_per_sec,omitempty"`
	RetryMax        int            `json:"retry_max,omitempty"`
	RetryBase       string         `json:"retry_base,omitempty"`
	RetryMaxDelay   string         `json:"retry_max_delay,omitempty"`
	DedupWindow     string         `json:"dedup_window,omitempty"`
	DedupMaxEntries int            `json:"dedup_max_entries,omitempty"`
	HistorySize     int            `json:"history_size,omitempty"`
	Telegram        TelegramConfig `json:"telegram"`
}

// TelegramConfig configures the optional Telegram push sink.
type TelegramConfig struct {
	Enabled bool   `json:"enabled"`
	Token   string `json:"token,omitempty"`
	ChatID  int64  `json:"chat_id,omitempty"`
}

// PlatformConfig holds one platform account's credentials. Token acquisition
// and refresh happen outside this process (the composer frontend owns the
// OAuth flows).
type PlatformConfig struct {
	AccessToken string `json:"access_token"`
	// Subreddit is the reddit submission target; ignored by other platforms.
	Subreddit string `json:"subreddit,omitempty"`
}
