// Package post defines the post record shared by the store, the dispatch
// engine, and the HTTP API.
package post

import (
	"errors"
	"strings"
	"time"
	"unicode/utf8"
)

// Status is the post lifecycle state.
//
// Transitions:
//
//	draft -> scheduled            (composer)
//	scheduled -> published        (engine, all platform publishes succeeded)
//	scheduled -> failed           (engine, any platform publish failed)
//
// published and failed are terminal for the engine; remediation of a failed
// post (edit, reschedule) happens upstream.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusScheduled Status = "scheduled"
	StatusPublished Status = "published"
	StatusFailed    Status = "failed"
)

func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusScheduled, StatusPublished, StatusFailed:
		return true
	}
	return false
}

// Post is one composed social-media post, targeting one or more platforms.
type Post struct {
	ID        string   `json:"id"`
	Content   string   `json:"content"`
	Platforms []string `json:"platforms"`

	Status       Status     `json:"status"`
	ScheduledFor *time.Time `json:"scheduled_for,omitempty"`
	PublishedAt  *time.Time `json:"published_at,omitempty"`

	Media    []string `json:"media,omitempty"`
	Hashtags []string `json:"hashtags,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

var (
	ErrEmptyID        = errors.New("post id is empty")
	ErrEmptyContent   = errors.New("post content is empty")
	ErrNoPlatforms    = errors.New("post has no target platforms")
	ErrBadStatus      = errors.New("unknown post status")
	ErrNoScheduleTime = errors.New("scheduled post has no scheduled_for time")
)

// Validate checks the structural invariants a post must satisfy before it
// is accepted into the store.
func (p *Post) Validate() error {
	if strings.TrimSpace(p.ID) == "" {
		return ErrEmptyID
	}
	if strings.TrimSpace(p.Content) == "" {
		return ErrEmptyContent
	}
	if len(p.Platforms) == 0 {
		return ErrNoPlatforms
	}
	if !p.Status.Valid() {
		return ErrBadStatus
	}
	if p.Status == StatusScheduled && p.ScheduledFor == nil {
		return ErrNoScheduleTime
	}
	return nil
}

// Due reports whether the post should be dispatched at the given instant:
// it is scheduled and its scheduled time has arrived.
func (p *Post) Due(now time.Time) bool {
	return p.Status == StatusScheduled &&
		p.ScheduledFor != nil &&
		!p.ScheduledFor.After(now)
}

// Excerpt returns the first maxRunes runes of the content, for notifications
// and log lines.
func (p *Post) Excerpt(maxRunes int) string {
	if maxRunes <= 0 || utf8.RuneCountInString(p.Content) <= maxRunes {
		return p.Content
	}
	runes := []rune(p.Content)
	return string(runes[:maxRunes]) + "..."
}

// Clone returns a deep copy. Stores hand out clones so callers can mutate
// freely before writing back.
func (p *Post) Clone() *Post {
	cp := *p
	cp.Platforms = append([]string(nil), p.Platforms...)
	cp.Media = append([]string(nil), p.Media...)
	cp.Hashtags = append([]string(nil), p.Hashtags...)
	if p.ScheduledFor != nil {
		t := *p.ScheduledFor
		cp.ScheduledFor = &t
	}
	if p.PublishedAt != nil {
		t := *p.PublishedAt
		cp.PublishedAt = &t
	}
	return &cp
}
