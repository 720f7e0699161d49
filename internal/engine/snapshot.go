package engine

import (
	"context"
	"sort"

	"postpilot/internal/post"
)

// Snapshot reports the engine state plus schedule-derived stats for status
// surfaces.
func (e *Engine) Snapshot(ctx context.Context) Snapshot {
	e.mu.Lock()
	snap := Snapshot{
		Running:     e.c != nil,
		Interval:    e.cfg.Interval.String(),
		LastScanDue: e.lastScanDue,
	}
	if !e.lastScanAt.IsZero() {
		t := e.lastScanAt
		snap.LastScanAt = &t
	}
	e.mu.Unlock()

	scheduled, err := e.scheduledPosts(ctx)
	if err != nil {
		return snap
	}
	snap.ScheduledCount = len(scheduled)
	if len(scheduled) > 0 {
		snap.NextScheduled = scheduled[0].ScheduledFor
	}
	return snap
}

// NextScheduled returns the scheduled post with the earliest scheduled time,
// or nil if nothing is scheduled.
func (e *Engine) NextScheduled(ctx context.Context) (*post.Post, error) {
	scheduled, err := e.scheduledPosts(ctx)
	if err != nil {
		return nil, err
	}
	if len(scheduled) == 0 {
		return nil, nil
	}
	return scheduled[0], nil
}

// Upcoming returns up to limit scheduled posts ordered by scheduled time.
func (e *Engine) Upcoming(ctx context.Context, limit int) ([]*post.Post, error) {
	if limit <= 0 {
		limit = 5
	}
	scheduled, err := e.scheduledPosts(ctx)
	if err != nil {
		return nil, err
	}
	if len(scheduled) > limit {
		scheduled = scheduled[:limit]
	}
	return scheduled, nil
}

// ScheduledCount returns the number of posts waiting for dispatch.
func (e *Engine) ScheduledCount(ctx context.Context) (int, error) {
	scheduled, err := e.scheduledPosts(ctx)
	if err != nil {
		return 0, err
	}
	return len(scheduled), nil
}

func (e *Engine) scheduledPosts(ctx context.Context) ([]*post.Post, error) {
	posts, err := e.store.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	var scheduled []*post.Post
	for _, p := range posts {
		if p.Status == post.StatusScheduled && p.ScheduledFor != nil {
			scheduled = append(scheduled, p)
		}
	}
	sort.Slice(scheduled, func(i, j int) bool {
		return scheduled[i].ScheduledFor.Before(*scheduled[j].ScheduledFor)
	})
	return scheduled, nil
}
