package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"postpilot/internal/engine"
	"postpilot/internal/notifier"
	"postpilot/internal/platform"
	"postpilot/internal/post"
	"postpilot/internal/store"
	"postpilot/pkg/logx"
)

func newTestRouter(t *testing.T) (*gin.Engine, store.Store) {
	t.Helper()
	st, err := store.Open(store.Config{Driver: "memory"}, logx.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	pubs := platform.NewRegistry()
	notif := notifier.New(notifier.Config{Enabled: true, RatePerSec: 100}, logx.Nop(),
		notifier.LogSink{Log: logx.Nop()})
	notif.Start(context.Background())
	t.Cleanup(func() { notif.Stop(context.Background()) })

	eng := engine.New(engine.Config{Interval: time.Minute}, st, pubs, notif, nil, logx.Nop())
	t.Cleanup(eng.Stop)

	h := &Handler{Store: st, Engine: eng, Notifier: notif, Pubs: pubs, Log: logx.Nop()}
	return NewRouter(h), st
}

func doJSON(t *testing.T, r *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestHealthz(t *testing.T) {
	t.Parallel()
	r, _ := newTestRouter(t)
	w := doJSON(t, r, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestCreateAndGetPost(t *testing.T) {
	t.Parallel()
	r, _ := newTestRouter(t)

	at := time.Now().Add(time.Hour).UTC().Truncate(time.Second)
	w := doJSON(t, r, http.MethodPost, "/api/v1/posts", map[string]any{
		"content":       "release day",
		"platforms":     []string{"reddit", "x"},
		"status":        "scheduled",
		"scheduled_for": at,
		"hashtags":      []string{"golang"},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var created post.Post
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, post.StatusScheduled, created.Status)
	assert.False(t, created.CreatedAt.IsZero())

	w = doJSON(t, r, http.MethodGet, "/api/v1/posts/"+created.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var got post.Post
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, []string{"golang"}, got.Hashtags)
}

func TestCreatePostValidation(t *testing.T) {
	t.Parallel()
	r, _ := newTestRouter(t)

	// no content
	w := doJSON(t, r, http.MethodPost, "/api/v1/posts", map[string]any{
		"platforms": []string{"reddit"},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// scheduled without a time
	w = doJSON(t, r, http.MethodPost, "/api/v1/posts", map[string]any{
		"content":   "x",
		"platforms": []string{"reddit"},
		"status":    "scheduled",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// cannot create directly as published
	w = doJSON(t, r, http.MethodPost, "/api/v1/posts", map[string]any{
		"content":   "x",
		"platforms": []string{"reddit"},
		"status":    "published",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListPostsStatusFilter(t *testing.T) {
	t.Parallel()
	r, st := newTestRouter(t)
	ctx := context.Background()
	now := time.Now()
	at := now.Add(time.Hour)

	require.NoError(t, st.Upsert(ctx, &post.Post{
		ID: "d1", Content: "draft", Platforms: []string{"x"},
		Status: post.StatusDraft, CreatedAt: now, UpdatedAt: now,
	}))
	require.NoError(t, st.Upsert(ctx, &post.Post{
		ID: "s1", Content: "sched", Platforms: []string{"x"},
		Status: post.StatusScheduled, ScheduledFor: &at,
		CreatedAt: now.Add(time.Second), UpdatedAt: now.Add(time.Second),
	}))

	w := doJSON(t, r, http.MethodGet, "/api/v1/posts?status=draft", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var posts []post.Post
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &posts))
	require.Len(t, posts, 1)
	assert.Equal(t, "d1", posts[0].ID)

	w = doJSON(t, r, http.MethodGet, "/api/v1/posts", nil)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &posts))
	assert.Len(t, posts, 2)
}

func TestUpdatePost(t *testing.T) {
	t.Parallel()
	r, st := newTestRouter(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, st.Upsert(ctx, &post.Post{
		ID: "d1", Content: "draft", Platforms: []string{"x"},
		Status: post.StatusDraft, CreatedAt: now, UpdatedAt: now,
	}))

	at := now.Add(time.Hour).UTC().Truncate(time.Second)
	w := doJSON(t, r, http.MethodPut, "/api/v1/posts/d1", map[string]any{
		"status":        "scheduled",
		"scheduled_for": at,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var updated post.Post
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &updated))
	assert.Equal(t, post.StatusScheduled, updated.Status)
	require.NotNil(t, updated.ScheduledFor)

	// published posts are immutable
	pub := updated.Clone()
	pub.Status = post.StatusPublished
	pub.PublishedAt = &now
	require.NoError(t, st.Upsert(ctx, pub))
	w = doJSON(t, r, http.MethodPut, "/api/v1/posts/d1", map[string]any{"content": "rewrite"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = doJSON(t, r, http.MethodPut, "/api/v1/posts/nope", map[string]any{"content": "x"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDeletePost(t *testing.T) {
	t.Parallel()
	r, st := newTestRouter(t)
	now := time.Now()
	require.NoError(t, st.Upsert(context.Background(), &post.Post{
		ID: "d1", Content: "x", Platforms: []string{"x"},
		Status: post.StatusDraft, CreatedAt: now, UpdatedAt: now,
	}))

	w := doJSON(t, r, http.MethodDelete, "/api/v1/posts/d1", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = doJSON(t, r, http.MethodDelete, "/api/v1/posts/d1", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSchedulerEndpoints(t *testing.T) {
	t.Parallel()
	r, _ := newTestRouter(t)

	w := doJSON(t, r, http.MethodGet, "/api/v1/scheduler", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var snap engine.Snapshot
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &snap))
	assert.False(t, snap.Running)

	w = doJSON(t, r, http.MethodPost, "/api/v1/scheduler/start", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"running": true}`, w.Body.String())

	w = doJSON(t, r, http.MethodPost, "/api/v1/scheduler/stop", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"running": false}`, w.Body.String())

	w = doJSON(t, r, http.MethodGet, "/api/v1/scheduler/upcoming", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "[]", w.Body.String())
}

func TestNotificationEndpoints(t *testing.T) {
	t.Parallel()
	r, _ := newTestRouter(t)

	// A scheduled create emits a notification into the history.
	at := time.Now().Add(time.Hour)
	w := doJSON(t, r, http.MethodPost, "/api/v1/posts", map[string]any{
		"content":       "x",
		"platforms":     []string{"reddit"},
		"status":        "scheduled",
		"scheduled_for": at,
	})
	require.Equal(t, http.StatusCreated, w.Code)

	var resp struct {
		Items  []notifier.HistoryItem `json:"items"`
		Unread int                    `json:"unread"`
	}
	deadline := time.Now().Add(2 * time.Second)
	for {
		w = doJSON(t, r, http.MethodGet, "/api/v1/notifications", nil)
		require.Equal(t, http.StatusOK, w.Code)
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		if len(resp.Items) == 1 || time.Now().After(deadline) {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	require.Len(t, resp.Items, 1)
	assert.Equal(t, 1, resp.Unread)
	assert.Equal(t, notifier.KindScheduled, resp.Items[0].N.Kind)

	w = doJSON(t, r, http.MethodPost, "/api/v1/notifications/read", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = doJSON(t, r, http.MethodGet, "/api/v1/notifications", nil)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 0, resp.Unread)
}

func TestPlatformEndpoints(t *testing.T) {
	t.Parallel()
	r, _ := newTestRouter(t)

	w := doJSON(t, r, http.MethodGet, "/api/v1/platforms", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"platforms": []}`, w.Body.String())

	w = doJSON(t, r, http.MethodPost, "/api/v1/platforms/reddit/validate", map[string]any{"token": "t"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doJSON(t, r, http.MethodPost, "/api/v1/platforms/reddit/validate", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
