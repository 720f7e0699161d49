package notifier

import (
	"time"

	"postpilot/internal/post"
)

// Kind classifies a lifecycle notification.
type Kind string

const (
	KindPublished Kind = "published"
	KindScheduled Kind = "scheduled"
	KindFailed    Kind = "failed"
)

// Notification is one lifecycle event about a post.
type Notification struct {
	Kind      Kind     `json:"kind"`
	PostID    string   `json:"post_id"`
	Platforms []string `json:"platforms"`
	Excerpt   string   `json:"excerpt"`
	// Detail carries the failure reason for KindFailed, or the scheduled
	// time (RFC3339) for KindScheduled.
	Detail string    `json:"detail,omitempty"`
	At     time.Time `json:"at"`
}

// FromPost builds the common fields of a notification for p.
func FromPost(kind Kind, p *post.Post, detail string) Notification {
	return Notification{
		Kind:      kind,
		PostID:    p.ID,
		Platforms: append([]string(nil), p.Platforms...),
		Excerpt:   p.Excerpt(100),
		Detail:    detail,
	}
}

// Config controls the async notification pipeline.
type Config struct {
	Enabled         bool
	Workers         int
	QueueSize       int
	RatePerSec      int
	RetryMax        int
	RetryBase       time.Duration
	RetryMaxDelay   time.Duration
	DedupWindow     time.Duration
	DedupMaxEntries int
	HistorySize     int
}

// HistoryItem is one delivered (or attempted) notification kept for the
// notification-center surface.
type HistoryItem struct {
	ID   int64        `json:"id"`
	At   time.Time    `json:"at"`
	N    Notification `json:"notification"`
	Read bool         `json:"read"`
	// Error is the final delivery error, empty on success.
	Error string `json:"error,omitempty"`
}
