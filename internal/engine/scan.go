package engine

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"postpilot/internal/eventbus"
	"postpilot/internal/post"
	"postpilot/pkg/logx"
)

// scanAndDispatch runs one tick: load all posts, pick the due ones, dispatch
// each. A failure dispatching one post never aborts the rest, and no error
// escapes to the trigger.
func (e *Engine) scanAndDispatch(ctx context.Context) {
	if !e.inFlight.CompareAndSwap(false, true) {
		e.log.Warn("scan still running, skipping tick")
		return
	}
	defer e.inFlight.Store(false)

	if ctx == nil {
		ctx = context.Background()
	}
	start := time.Now()
	now := e.now()

	posts, err := e.store.GetAll(ctx)
	if err != nil {
		// Nothing mutated; next tick retries from scratch.
		e.log.Error("post scan failed", logx.Err(err))
		return
	}

	var due []*post.Post
	for _, p := range posts {
		if p.Due(now) {
			due = append(due, p)
		}
	}

	e.mu.Lock()
	e.lastScanAt = now
	e.lastScanDue = len(due)
	e.mu.Unlock()

	if len(due) == 0 {
		return
	}
	e.log.Debug("due posts found", logx.Int("count", len(due)))

	published, failed := 0, 0
	for _, p := range due {
		if e.dispatchIsolated(ctx, p) {
			published++
		} else {
			failed++
		}
	}

	if e.bus != nil {
		e.bus.Publish(eventbus.Event{
			Type: eventbus.TypeScanCompleted,
			Data: ScanEvent{Due: len(due), Published: published, Failed: failed, Took: time.Since(start)},
		})
	}
}

// dispatchIsolated runs one post's dispatch, containing panics so a broken
// publisher cannot take down the scan. A panic counts as that post's publish
// failure. Reports whether the post published.
func (e *Engine) dispatchIsolated(ctx context.Context, p *post.Post) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Error("panic dispatching post", logx.String("post_id", p.ID),
				logx.Any("panic", r), logx.Stack(string(debug.Stack())))
			e.finalizeFailure(ctx, p, fmt.Errorf("dispatch panic: %v", r))
			ok = false
		}
	}()
	return e.dispatchOne(ctx, p)
}
