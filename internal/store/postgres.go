package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"postpilot/internal/post"
	"postpilot/pkg/logx"
)

// postgresStore backs the post collection with a shared PostgreSQL database,
// for deployments where several postpilot instances or other tooling need the
// same data. cfg.Path is the DSN.
type postgresStore struct {
	db  *sql.DB
	log logx.Logger
}

const postgresSchema = `
CREATE TABLE IF NOT EXISTS posts (
    id            TEXT PRIMARY KEY,
    content       TEXT NOT NULL,
    platforms     TEXT NOT NULL,
    status        TEXT NOT NULL,
    scheduled_for TEXT,
    published_at  TEXT,
    media         TEXT,
    hashtags      TEXT,
    created_at    TEXT NOT NULL,
    updated_at    TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_posts_status ON posts(status);
CREATE INDEX IF NOT EXISTS idx_posts_scheduled_for ON posts(scheduled_for);
`

func openPostgres(cfg Config, log logx.Logger) (Store, error) {
	dsn := strings.TrimSpace(cfg.Path)
	if dsn == "" {
		return nil, errors.New("storage.path (DSN) is required for postgres driver")
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(8)
	db.SetConnMaxIdleTime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	if _, err := db.ExecContext(ctx, postgresSchema); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &postgresStore{db: db, log: log}, nil
}

func (s *postgresStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *postgresStore) GetAll(ctx context.Context) ([]*post.Post, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+postColumns+` FROM posts ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*post.Post
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *postgresStore) Get(ctx context.Context, id string) (*post.Post, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+postColumns+` FROM posts WHERE id = $1`, id)
	p, err := scanPost(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return p, err
}

func (s *postgresStore) Upsert(ctx context.Context, p *post.Post) error {
	if strings.TrimSpace(p.ID) == "" {
		return post.ErrEmptyID
	}
	cols, err := encodePost(p)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO posts(`+postColumns+`)
		 VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		 ON CONFLICT(id) DO UPDATE SET
		   content=EXCLUDED.content, platforms=EXCLUDED.platforms,
		   status=EXCLUDED.status, scheduled_for=EXCLUDED.scheduled_for,
		   published_at=EXCLUDED.published_at, media=EXCLUDED.media,
		   hashtags=EXCLUDED.hashtags, updated_at=EXCLUDED.updated_at`,
		cols...,
	)
	return err
}

func (s *postgresStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM posts WHERE id = $1`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
