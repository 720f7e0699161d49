package engine

import (
	"context"
	"time"

	"postpilot/internal/notifier"
)

// Config controls the dispatch loop.
type Config struct {
	// Interval between scans. Default 60s.
	Interval time.Duration

	// CronSpec optionally replaces Interval with a cron expression
	// (5- or 6-field, or a descriptor like "@every 2m").
	CronSpec string

	// DispatchTimeout bounds one platform publish call. Default 45s.
	DispatchTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.Interval <= 0 {
		c.Interval = 60 * time.Second
	}
	if c.DispatchTimeout <= 0 {
		c.DispatchTimeout = 45 * time.Second
	}
	return c
}

// Notifier receives lifecycle notifications. Satisfied by *notifier.Service.
type Notifier interface {
	Notify(ctx context.Context, n notifier.Notification) error
}

// PostEvent is the bus payload for post.published / post.failed.
type PostEvent struct {
	PostID      string            `json:"post_id"`
	Platforms   []string          `json:"platforms"`
	ExternalIDs map[string]string `json:"external_ids,omitempty"`
	Error       string            `json:"error,omitempty"`
}

// ScanEvent is the bus payload for scan.completed.
type ScanEvent struct {
	Due       int           `json:"due"`
	Published int           `json:"published"`
	Failed    int           `json:"failed"`
	Took      time.Duration `json:"took"`
}

// Snapshot is a point-in-time view of the engine for status surfaces.
type Snapshot struct {
	Running        bool       `json:"running"`
	Interval       string     `json:"interval"`
	ScheduledCount int        `json:"scheduled_count"`
	NextScheduled  *time.Time `json:"next_scheduled,omitempty"`
	LastScanAt     *time.Time `json:"last_scan_at,omitempty"`
	LastScanDue    int        `json:"last_scan_due"`
}
