package notifier

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"postpilot/internal/post"
	"postpilot/pkg/logx"
)

type captureSink struct {
	mu   sync.Mutex
	sent []Notification
	fail int // fail the first N sends
}

func (c *captureSink) Send(ctx context.Context, n Notification) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail > 0 {
		c.fail--
		return errors.New("sink unavailable")
	}
	c.sent = append(c.sent, n)
	return nil
}

func (c *captureSink) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sent)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}

func testNotification(postID string) Notification {
	return Notification{
		Kind:      KindPublished,
		PostID:    postID,
		Platforms: []string{"reddit"},
		Excerpt:   "hello",
		At:        time.Now(),
	}
}

func TestNotifyDeliversToSinks(t *testing.T) {
	t.Parallel()
	sink := &captureSink{}
	s := New(Config{Enabled: true, Workers: 2, RatePerSec: 100}, logx.Nop(), sink)
	s.Start(context.Background())
	defer s.Stop(context.Background())

	for i := 0; i < 5; i++ {
		if err := s.Notify(context.Background(), testNotification("p"+string(rune('0'+i)))); err != nil {
			t.Fatalf("Notify: %v", err)
		}
	}
	waitFor(t, func() bool { return sink.count() == 5 })
}

func TestNotifyDisabledAndStopped(t *testing.T) {
	t.Parallel()
	s := New(Config{Enabled: false}, logx.Nop(), &captureSink{})
	if err := s.Notify(context.Background(), testNotification("p1")); !errors.Is(err, ErrDisabled) {
		t.Fatalf("Notify disabled = %v, want ErrDisabled", err)
	}

	s2 := New(Config{Enabled: true, RatePerSec: 100}, logx.Nop(), &captureSink{})
	if err := s2.Notify(context.Background(), testNotification("p1")); !errors.Is(err, ErrStopped) {
		t.Fatalf("Notify before Start = %v, want ErrStopped", err)
	}
}

func TestStopDrainsQueue(t *testing.T) {
	t.Parallel()
	sink := &captureSink{}
	s := New(Config{Enabled: true, Workers: 1, RatePerSec: 100}, logx.Nop(), sink)
	s.Start(context.Background())

	for i := 0; i < 10; i++ {
		_ = s.Notify(context.Background(), testNotification("p"))
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	s.Stop(ctx)

	if got := sink.count(); got != 10 {
		t.Fatalf("delivered = %d, want 10 (queue drained on stop)", got)
	}
	if err := s.Notify(context.Background(), testNotification("p")); !errors.Is(err, ErrStopped) {
		t.Fatalf("Notify after Stop = %v, want ErrStopped", err)
	}
}

func TestRetryOnSinkFailure(t *testing.T) {
	t.Parallel()
	sink := &captureSink{fail: 2}
	s := New(Config{
		Enabled: true, Workers: 1, RatePerSec: 100,
		RetryMax: 3, RetryBase: time.Millisecond, RetryMaxDelay: 5 * time.Millisecond,
	}, logx.Nop(), sink)
	s.Start(context.Background())
	defer s.Stop(context.Background())

	if err := s.Notify(context.Background(), testNotification("p1")); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	waitFor(t, func() bool { return sink.count() == 1 })
}

func TestDedupWindowSuppressesRepeats(t *testing.T) {
	t.Parallel()
	sink := &captureSink{}
	s := New(Config{Enabled: true, Workers: 1, RatePerSec: 100, DedupWindow: time.Minute}, logx.Nop(), sink)
	s.Start(context.Background())
	defer s.Stop(context.Background())

	n := testNotification("p1")
	for i := 0; i < 3; i++ {
		if err := s.Notify(context.Background(), n); err != nil {
			t.Fatalf("Notify #%d: %v", i+1, err)
		}
	}
	// distinct post id is a different dedup key
	if err := s.Notify(context.Background(), testNotification("p2")); err != nil {
		t.Fatalf("Notify p2: %v", err)
	}
	waitFor(t, func() bool { return sink.count() == 2 })
	time.Sleep(50 * time.Millisecond)
	if got := sink.count(); got != 2 {
		t.Fatalf("delivered = %d, want 2 (duplicates suppressed)", got)
	}
}

func TestHistoryAndUnread(t *testing.T) {
	t.Parallel()
	sink := &captureSink{}
	s := New(Config{Enabled: true, Workers: 1, RatePerSec: 100}, logx.Nop(), sink)
	s.Start(context.Background())
	defer s.Stop(context.Background())

	for _, id := range []string{"a", "b", "c"} {
		_ = s.Notify(context.Background(), testNotification(id))
	}
	waitFor(t, func() bool { return len(s.History()) == 3 })

	if got := s.UnreadCount(); got != 3 {
		t.Fatalf("unread = %d, want 3", got)
	}

	items := s.History()
	s.MarkRead(items[0].ID)
	if got := s.UnreadCount(); got != 2 {
		t.Fatalf("unread after single mark = %d, want 2", got)
	}

	s.MarkRead(0) // zero means mark everything
	if got := s.UnreadCount(); got != 0 {
		t.Fatalf("unread after mark-all = %d, want 0", got)
	}
}

func TestFromPostBuildsExcerpt(t *testing.T) {
	t.Parallel()
	p := &post.Post{
		ID:        "p1",
		Content:   "short body",
		Platforms: []string{"reddit", "x"},
	}
	n := FromPost(KindFailed, p, "rate limited")
	if n.Kind != KindFailed || n.PostID != "p1" || n.Detail != "rate limited" {
		t.Fatalf("FromPost = %+v", n)
	}
	if n.Excerpt != "short body" {
		t.Fatalf("excerpt = %q", n.Excerpt)
	}
	if len(n.Platforms) != 2 {
		t.Fatalf("platforms = %v", n.Platforms)
	}
}
