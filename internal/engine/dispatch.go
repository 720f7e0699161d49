package engine

import (
	"context"
	"time"

	"postpilot/internal/eventbus"
	"postpilot/internal/notifier"
	"postpilot/internal/post"
	"postpilot/pkg/logx"
)

// dispatchOne publishes a due post to every platform it targets and writes
// the terminal outcome back to the store.
//
// The outcome is all-or-nothing: the first platform failure marks the whole
// post failed. Platforms that already accepted the post stay published on
// their side; there is no per-platform status to track a partial result.
// Exactly one attempt is made per platform; retries mean a user reschedule.
func (e *Engine) dispatchOne(ctx context.Context, p *post.Post) bool {
	e.log.Info("dispatching post", logx.String("post_id", p.ID),
		logx.Strs("platforms", p.Platforms), logx.Time("scheduled_for", deref(p.ScheduledFor)))

	externalIDs := make(map[string]string, len(p.Platforms))
	for _, tag := range p.Platforms {
		pub, err := e.pubs.Get(tag)
		if err != nil {
			e.finalizeFailure(ctx, p, err)
			return false
		}

		callCtx, cancel := context.WithTimeout(ctx, e.cfg.DispatchTimeout)
		id, err := pub.Publish(callCtx, p)
		cancel()
		if err != nil {
			e.finalizeFailure(ctx, p, err)
			return false
		}
		externalIDs[tag] = id
		e.log.Debug("platform accepted post", logx.String("post_id", p.ID),
			logx.String("platform", tag), logx.String("external_id", id))
	}

	now := e.now()
	p.Status = post.StatusPublished
	p.PublishedAt = &now
	p.UpdatedAt = now
	if err := e.store.Upsert(ctx, p); err != nil {
		// The platforms accepted the post but we could not record it; the
		// post stays scheduled in the store and will be re-dispatched next
		// tick. Surface loudly.
		e.log.Error("publish write-back failed", logx.String("post_id", p.ID), logx.Err(err))
	}

	e.notify(ctx, notifier.FromPost(notifier.KindPublished, p, ""))
	if e.bus != nil {
		e.bus.Publish(eventbus.Event{
			Type: eventbus.TypePostPublished,
			Data: PostEvent{PostID: p.ID, Platforms: p.Platforms, ExternalIDs: externalIDs},
		})
	}
	e.log.Info("post published", logx.String("post_id", p.ID), logx.Strs("platforms", p.Platforms))
	return true
}

// finalizeFailure marks the post failed, persists it, and emits the failure
// notification carrying the triggering error's message.
func (e *Engine) finalizeFailure(ctx context.Context, p *post.Post, cause error) {
	now := e.now()
	p.Status = post.StatusFailed
	p.UpdatedAt = now
	if err := e.store.Upsert(ctx, p); err != nil {
		e.log.Error("failure write-back failed", logx.String("post_id", p.ID), logx.Err(err))
	}

	e.notify(ctx, notifier.FromPost(notifier.KindFailed, p, cause.Error()))
	if e.bus != nil {
		e.bus.Publish(eventbus.Event{
			Type: eventbus.TypePostFailed,
			Data: PostEvent{PostID: p.ID, Platforms: p.Platforms, Error: cause.Error()},
		})
	}
	e.log.Warn("post failed", logx.String("post_id", p.ID), logx.Err(cause))
}

// notify sends a lifecycle notification, swallowing any error: notification
// is best-effort and never affects post status.
func (e *Engine) notify(ctx context.Context, n notifier.Notification) {
	if e.notif == nil {
		return
	}
	defer func() { _ = recover() }()
	_ = e.notif.Notify(ctx, n)
}

func deref(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}
