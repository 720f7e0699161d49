// Package api exposes the REST surface the composer frontend talks to:
// posts CRUD, scheduler status and control, notification history, and
// platform credential checks.
package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"postpilot/internal/engine"
	"postpilot/internal/notifier"
	"postpilot/internal/platform"
	"postpilot/internal/post"
	"postpilot/internal/store"
	"postpilot/pkg/logx"
)

type Handler struct {
	Store    store.Store
	Engine   *engine.Engine
	Notifier *notifier.Service
	Pubs     *platform.Registry
	Log      logx.Logger
}

// ---- posts ----

func (h *Handler) ListPosts(c *gin.Context) {
	posts, err := h.Store.GetAll(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if status := strings.TrimSpace(c.Query("status")); status != "" {
		filtered := posts[:0]
		for _, p := range posts {
			if string(p.Status) == status {
				filtered = append(filtered, p)
			}
		}
		posts = filtered
	}
	if posts == nil {
		posts = []*post.Post{}
	}
	c.JSON(http.StatusOK, posts)
}

func (h *Handler) GetPost(c *gin.Context) {
	p, err := h.Store.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "post not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, p)
}

type postRequest struct {
	Content      string     `json:"content"`
	Platforms    []string   `json:"platforms"`
	Status       string     `json:"status"`
	ScheduledFor *time.Time `json:"scheduled_for,omitempty"`
	Media        []string   `json:"media,omitempty"`
	Hashtags     []string   `json:"hashtags,omitempty"`
}

func (h *Handler) CreatePost(c *gin.Context) {
	var req postRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Status == "" {
		req.Status = string(post.StatusDraft)
	}

	now := time.Now()
	p := &post.Post{
		ID:           uuid.NewString(),
		Content:      req.Content,
		Platforms:    req.Platforms,
		Status:       post.Status(req.Status),
		ScheduledFor: req.ScheduledFor,
		Media:        req.Media,
		Hashtags:     req.Hashtags,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if p.Status != post.StatusDraft && p.Status != post.StatusScheduled {
		c.JSON(http.StatusBadRequest, gin.H{"error": "new posts must be draft or scheduled"})
		return
	}
	if err := p.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.Store.Upsert(c.Request.Context(), p); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	if p.Status == post.StatusScheduled && h.Notifier != nil {
		_ = h.Notifier.Notify(c.Request.Context(),
			notifier.FromPost(notifier.KindScheduled, p, p.ScheduledFor.Format(time.RFC3339)))
	}
	c.JSON(http.StatusCreated, p)
}

func (h *Handler) UpdatePost(c *gin.Context) {
	ctx := c.Request.Context()
	existing, err := h.Store.Get(ctx, c.Param("id"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "post not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	// Published posts are immutable; failed posts may be edited back into
	// draft/scheduled by the user.
	if existing.Status == post.StatusPublished {
		c.JSON(http.StatusConflict, gin.H{"error": "published posts cannot be edited"})
		return
	}

	var req postRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	wasScheduled := existing.Status == post.StatusScheduled
	if req.Content != "" {
		existing.Content = req.Content
	}
	if req.Platforms != nil {
		existing.Platforms = req.Platforms
	}
	if req.Media != nil {
		existing.Media = req.Media
	}
	if req.Hashtags != nil {
		existing.Hashtags = req.Hashtags
	}
	if req.Status != "" {
		st := post.Status(req.Status)
		if st != post.StatusDraft && st != post.StatusScheduled {
			c.JSON(http.StatusBadRequest, gin.H{"error": "posts can only move to draft or scheduled"})
			return
		}
		existing.Status = st
	}
	if req.ScheduledFor != nil {
		existing.ScheduledFor = req.ScheduledFor
	}
	existing.UpdatedAt = time.Now()

	if err := existing.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.Store.Upsert(ctx, existing); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	if existing.Status == post.StatusScheduled && !wasScheduled && h.Notifier != nil {
		_ = h.Notifier.Notify(ctx,
			notifier.FromPost(notifier.KindScheduled, existing, existing.ScheduledFor.Format(time.RFC3339)))
	}
	c.JSON(http.StatusOK, existing)
}

func (h *Handler) DeletePost(c *gin.Context) {
	err := h.Store.Delete(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "post not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

// ---- scheduler ----

func (h *Handler) SchedulerStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.Engine.Snapshot(c.Request.Context()))
}

func (h *Handler) SchedulerUpcoming(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "5"))
	posts, err := h.Engine.Upcoming(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if posts == nil {
		posts = []*post.Post{}
	}
	c.JSON(http.StatusOK, posts)
}

func (h *Handler) SchedulerStart(c *gin.Context) {
	// Not the request context: the engine keeps running after this request.
	h.Engine.Start(context.Background())
	c.JSON(http.StatusOK, gin.H{"running": h.Engine.Running()})
}

func (h *Handler) SchedulerStop(c *gin.Context) {
	h.Engine.Stop()
	c.JSON(http.StatusOK, gin.H{"running": h.Engine.Running()})
}

// ---- notifications ----

func (h *Handler) ListNotifications(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"items":  h.Notifier.History(),
		"unread": h.Notifier.UnreadCount(),
	})
}

func (h *Handler) MarkNotificationsRead(c *gin.Context) {
	var id int64
	if raw := strings.TrimSpace(c.Query("id")); raw != "" {
		id, _ = strconv.ParseInt(raw, 10, 64)
	}
	h.Notifier.MarkRead(id)
	c.Status(http.StatusNoContent)
}

// ---- platforms ----

func (h *Handler) ValidatePlatform(c *gin.Context) {
	tag := c.Param("tag")
	pub, err := h.Pubs.Get(tag)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	var req struct {
		Token string `json:"token"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Token) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "token is required"})
		return
	}
	ok, err := pub.ValidateCredentials(c.Request.Context(), req.Token)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"platform": tag, "valid": ok})
}

func (h *Handler) ListPlatforms(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"platforms": h.Pubs.Tags()})
}
