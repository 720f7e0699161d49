package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"postpilot/internal/post"
	"postpilot/pkg/logx"
)

func testPost(id string, created time.Time) *post.Post {
	at := created.Add(time.Hour)
	return &post.Post{
		ID:           id,
		Content:      "content " + id,
		Platforms:    []string{"reddit"},
		Status:       post.StatusScheduled,
		ScheduledFor: &at,
		CreatedAt:    created,
		UpdatedAt:    created,
	}
}

// runStoreContract exercises the behavior every driver must share.
func runStoreContract(t *testing.T, st Store) {
	t.Helper()
	ctx := context.Background()
	base := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

	if _, err := st.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get(missing) = %v, want ErrNotFound", err)
	}

	p1 := testPost("p1", base)
	p2 := testPost("p2", base.Add(time.Minute))
	for _, p := range []*post.Post{p2, p1} {
		if err := st.Upsert(ctx, p); err != nil {
			t.Fatalf("Upsert(%s): %v", p.ID, err)
		}
	}

	all, err := st.GetAll(ctx)
	if err != nil {
		t.Fatalf("GetAll: %v", err)
	}
	if len(all) != 2 || all[0].ID != "p1" || all[1].ID != "p2" {
		t.Fatalf("GetAll order = %v, want [p1 p2] by creation time", ids(all))
	}

	// update in place
	p1.Status = post.StatusPublished
	now := base.Add(2 * time.Hour)
	p1.PublishedAt = &now
	p1.UpdatedAt = now
	if err := st.Upsert(ctx, p1); err != nil {
		t.Fatalf("Upsert update: %v", err)
	}
	got, err := st.Get(ctx, "p1")
	if err != nil {
		t.Fatalf("Get(p1): %v", err)
	}
	if got.Status != post.StatusPublished || got.PublishedAt == nil || !got.PublishedAt.Equal(now) {
		t.Fatalf("updated post = %+v", got)
	}

	// mutating what Get returned must not affect the stored copy
	got.Content = "mutated"
	again, _ := st.Get(ctx, "p1")
	if again.Content != "content p1" {
		t.Fatal("store handed out a shared pointer")
	}

	if err := st.Delete(ctx, "p2"); err != nil {
		t.Fatalf("Delete(p2): %v", err)
	}
	if err := st.Delete(ctx, "p2"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Delete(p2) again = %v, want ErrNotFound", err)
	}
	all, _ = st.GetAll(ctx)
	if len(all) != 1 {
		t.Fatalf("posts after delete = %d, want 1", len(all))
	}
}

func ids(posts []*post.Post) []string {
	out := make([]string, len(posts))
	for i, p := range posts {
		out[i] = p.ID
	}
	return out
}

func TestMemoryStore(t *testing.T) {
	t.Parallel()
	st, err := Open(Config{Driver: "memory"}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer st.Close()
	runStoreContract(t, st)
}

func TestFileStore(t *testing.T) {
	t.Parallel()
	st, err := Open(Config{Driver: "file", Path: filepath.Join(t.TempDir(), "posts")}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer st.Close()
	runStoreContract(t, st)
}

func TestFileStoreSurvivesReopen(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "posts")
	ctx := context.Background()
	base := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

	st, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := st.Upsert(ctx, testPost("keep", base)); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if err := st.Upsert(ctx, testPost("drop", base.Add(time.Minute))); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if err := st.Delete(ctx, "drop"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := st.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	st2, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer st2.Close()

	all, err := st2.GetAll(ctx)
	if err != nil {
		t.Fatalf("GetAll after reopen: %v", err)
	}
	if len(all) != 1 || all[0].ID != "keep" {
		t.Fatalf("posts after reopen = %v, want [keep]", ids(all))
	}
}

func TestSQLiteStore(t *testing.T) {
	t.Parallel()
	st, err := Open(Config{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "posts.db")}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer st.Close()
	runStoreContract(t, st)
}

func TestSQLiteStoreSurvivesReopen(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "posts.db")
	ctx := context.Background()
	base := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

	st, err := Open(Config{Driver: "sqlite", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	p := testPost("p1", base)
	p.Media = []string{"img-1"}
	p.Hashtags = []string{"go", "release"}
	if err := st.Upsert(ctx, p); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	st.Close()

	st2, err := Open(Config{Driver: "sqlite", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer st2.Close()

	got, err := st2.Get(ctx, "p1")
	if err != nil {
		t.Fatalf("Get after reopen: %v", err)
	}
	if got.Content != "content p1" || len(got.Hashtags) != 2 || len(got.Media) != 1 {
		t.Fatalf("post after reopen = %+v", got)
	}
	if got.ScheduledFor == nil || !got.ScheduledFor.Equal(base.Add(time.Hour)) {
		t.Fatalf("scheduledFor after reopen = %v", got.ScheduledFor)
	}
}

func TestOpenUnknownDriver(t *testing.T) {
	t.Parallel()
	if _, err := Open(Config{Driver: "cassandra"}, logx.Nop()); err == nil {
		t.Fatal("expected error for unknown driver")
	}
}
