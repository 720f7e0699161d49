package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"postpilot/internal/post"
	"postpilot/pkg/logx"
)

var (
	ErrNotFound = errors.New("post not found")
	ErrClosed   = errors.New("store closed")
)

// Config selects and configures a storage backend.
//
// Path is a file path for "file"/"sqlite" and a DSN for "postgres".
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Store is the persistence API consumed by the engine and the HTTP API.
type Store interface {
	GetAll(ctx context.Context) ([]*post.Post, error)
	Get(ctx context.Context, id string) (*post.Post, error)
	Upsert(ctx context.Context, p *post.Post) error
	Delete(ctx context.Context, id string) error
	Close() error
}

// Open initializes the configured store. An empty driver defaults to memory.
func Open(cfg Config, log logx.Logger) (Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	switch driver {
	case "", "memory":
		return NewMemory(), nil
	case "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	case "postgres", "postgresql":
		return openPostgres(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}
