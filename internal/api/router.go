package api

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"postpilot/pkg/logx"
)

// Config holds the HTTP listener settings.
type Config struct {
	Enabled bool
	Addr    string
}

// NewRouter builds the gin engine with all routes mounted.
func NewRouter(h *Handler) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := r.Group("/api/v1")
	{
		v1.GET("/posts", h.ListPosts)
		v1.POST("/posts", h.CreatePost)
		v1.GET("/posts/:id", h.GetPost)
		v1.PUT("/posts/:id", h.UpdatePost)
		v1.DELETE("/posts/:id", h.DeletePost)

		v1.GET("/scheduler", h.SchedulerStatus)
		v1.GET("/scheduler/upcoming", h.SchedulerUpcoming)
		v1.POST("/scheduler/start", h.SchedulerStart)
		v1.POST("/scheduler/stop", h.SchedulerStop)

		v1.GET("/notifications", h.ListNotifications)
		v1.POST("/notifications/read", h.MarkNotificationsRead)

		v1.GET("/platforms", h.ListPlatforms)
		v1.POST("/platforms/:tag/validate", h.ValidatePlatform)
	}
	return r
}

// Server wraps the HTTP listener with an idempotent Start/Stop lifecycle.
type Server struct {
	mu  sync.Mutex
	cfg Config
	log logx.Logger
	srv *http.Server
}

func NewServer(cfg Config, h *Handler, log logx.Logger) *Server {
	if cfg.Addr == "" {
		cfg.Addr = ":8301"
	}
	return &Server{
		cfg: cfg,
		log: log,
		srv: &http.Server{
			Addr:              cfg.Addr,
			Handler:           NewRouter(h),
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

// Start begins serving in a background goroutine. Listen errors other
// than a clean shutdown are logged, not returned.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.cfg.Enabled {
		return nil
	}
	s.log.Info("api server starting", logx.String("addr", s.cfg.Addr))
	go func() {
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("api server exited", logx.Err(err))
		}
	}()
	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.cfg.Enabled {
		return nil
	}
	return s.srv.Shutdown(ctx)
}
