package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"postpilot/internal/post"
	"postpilot/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("storage.path is required for sqlite driver")
	}
	path := cfg.Path
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, log: log}

	// Basic pragmas.
	if cfg.BusyTimeout > 0 {
		ms := cfg.BusyTimeout.Milliseconds()
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", ms))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

const postColumns = `id, content, platforms, status, scheduled_for, published_at, media, hashtags, created_at, updated_at`

func (s *sqliteStore) GetAll(ctx context.Context) ([]*post.Post, error) {
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

func (s *sqliteStore) Get(ctx context.Context, id string) (*post.Post, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+postColumns+` FROM posts WHERE id = ?`, id)
	p, err := scanPost(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return p, err
}

func (s *sqliteStore) Upsert(ctx context.Context, p *post.Post) error {
	if strings.TrimSpace(p.ID) == "" {
		return post.ErrEmptyID
	}
	cols, err := encodePost(p)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO posts(`+postColumns+`) VALUES(?,?,?,?,?,?,?,?,?,?)
		 ON CONFLICT(id) DO UPDATE SET
		   content=excluded.content, platforms=excluded.platforms,
		   status=excluded.status, scheduled_for=excluded.scheduled_for,
		   published_at=excluded.published_at, media=excluded.media,
		   hashtags=excluded.hashtags, updated_at=excluded.updated_at`,
		cols...,
	)
	return err
}

func (s *sqliteStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM posts WHERE id = ?`, id)
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

// ---- row codec shared by the sqlite and postgres drivers ----

type rowScanner interface {
	Scan(dest ...any) error
}

func encodePost(p *post.Post) ([]any, error) {
	platforms, err := json.Marshal(p.Platforms)
	if err != nil {
		return nil, err
	}
	media, err := json.Marshal(p.Media)
	if err != nil {
		return nil, err
	}
	hashtags, err := json.Marshal(p.Hashtags)
	if err != nil {
		return nil, err
	}
	return []any{
		p.ID, p.Content, string(platforms), string(p.Status),
		nullTime(p.ScheduledFor), nullTime(p.PublishedAt),
		string(media), string(hashtags),
		p.CreatedAt.Format(time.RFC3339Nano), p.UpdatedAt.Format(time.RFC3339Nano),
	}, nil
}

func scanPost(row rowScanner) (*post.Post, error) {
	var (
		p                      post.Post
		status                 string
		platforms, media, tags sql.NullString
		schedFor, pubAt        sql.NullString
		created, updated       string
	)
	err := row.Scan(&p.ID, &p.Content, &platforms, &status, &schedFor, &pubAt,
		&media, &tags, &created, &updated)
	if err != nil {
		return nil, err
	}
	p.Status = post.Status(status)
	if platforms.Valid {
		_ = json.Unmarshal([]byte(platforms.String), &p.Platforms)
	}
	if media.Valid {
		_ = json.Unmarshal([]byte(media.String), &p.Media)
	}
	if tags.Valid {
		_ = json.Unmarshal([]byte(tags.String), &p.Hashtags)
	}
	if schedFor.Valid {
		if t, err := time.Parse(time.RFC3339Nano, schedFor.String); err == nil {
			p.ScheduledFor = &t
		}
	}
	if pubAt.Valid {
		if t, err := time.Parse(time.RFC3339Nano, pubAt.String); err == nil {
			p.PublishedAt = &t
		}
	}
	if t, err := time.Parse(time.RFC3339Nano, created); err == nil {
		p.CreatedAt = t
	}
	if t, err := time.Parse(time.RFC3339Nano, updated); err == nil {
		p.UpdatedAt = t
	}
	return &p, nil
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Format(time.RFC3339Nano)
}
