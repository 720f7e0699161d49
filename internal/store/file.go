package store

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"postpilot/internal/post"
	"postpilot/pkg/logx"
)

// fileStore is a dependency-free persistence backend.
//
// Files:
//   - <prefix>.posts.snapshot.json (periodic snapshot, whole collection)
//   - <prefix>.posts.journal.jsonl (append-only journal of upserts/deletes)
//
// The journal is periodically compacted into the snapshot.
type fileStore struct {
	log logx.Logger

	mu sync.Mutex

	snapshotPath string
	journalFile  *os.File
	journalPath  string

	posts  map[string]*post.Post
	writes int
	closed bool
}

const fileCompactEvery = 200

type journalRecord struct {
	Op   string     `json:"op"` // "upsert" | "delete"
	ID   string     `json:"id"`
	Post *post.Post `json:"post,omitempty"`
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}

	dir := filepath.Dir(path)
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	prefix := filepath.Join(dir, base)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	snapPath := prefix + ".posts.snapshot.json"
	journalPath := prefix + ".posts.journal.jsonl"

	posts := map[string]*post.Post{}
	_ = loadSnapshot(snapPath, posts)
	if err := replayJournal(journalPath, posts); err != nil {
		log.Warn("post journal partially replayed", logx.Err(err), logx.String("path", journalPath))
	}

	jf, err := os.OpenFile(journalPath, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0o600)
	if err != nil {
		return nil, err
	}

	return &fileStore{
		log:          log,
		snapshotPath: snapPath,
		journalFile:  jf,
		journalPath:  journalPath,
		posts:        posts,
	}, nil
}

func loadSnapshot(path string, into map[string]*post.Post) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var list []*post.Post
	if err := json.Unmarshal(b, &list); err != nil {
		return err
	}
	for _, p := range list {
		if p != nil && p.ID != "" {
			into[p.ID] = p
		}
	}
	return nil
}

func replayJournal(path string, into map[string]*post.Post) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		var rec journalRecord
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			// Torn tail write; stop replay here.
			return err
		}
		switch rec.Op {
		case "upsert":
			if rec.Post != nil && rec.Post.ID != "" {
				into[rec.Post.ID] = rec.Post
			}
		case "delete":
			delete(into, rec.ID)
		}
	}
	return sc.Err()
}

func (s *fileStore) GetAll(ctx context.Context) ([]*post.Post, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	out := make([]*post.Post, 0, len(s.posts))
	for _, p := range s.posts {
		out = append(out, p.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *fileStore) Get(ctx context.Context, id string) (*post.Post, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	p, ok := s.posts[id]
	if !ok {
		return nil, ErrNotFound
	}
	return p.Clone(), nil
}

func (s *fileStore) Upsert(ctx context.Context, p *post.Post) error {
	_ = ctx
	if strings.TrimSpace(p.ID) == "" {
		return post.ErrEmptyID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	cp := p.Clone()
	if err := s.appendLocked(journalRecord{Op: "upsert", ID: cp.ID, Post: cp}); err != nil {
		return err
	}
	s.posts[cp.ID] = cp
	s.maybeCompactLocked()
	return nil
}

func (s *fileStore) Delete(ctx context.Context, id string) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if _, ok := s.posts[id]; !ok {
		return ErrNotFound
	}
	if err := s.appendLocked(journalRecord{Op: "delete", ID: id}); err != nil {
		return err
	}
	delete(s.posts, id)
	s.maybeCompactLocked()
	return nil
}

func (s *fileStore) appendLocked(rec journalRecord) error {
	if s.journalFile == nil {
		return ErrClosed
	}
	enc := json.NewEncoder(s.journalFile)
	if err := enc.Encode(rec); err != nil {
		return err
	}
	s.writes++
	return nil
}

// maybeCompactLocked rewrites the snapshot and truncates the journal after
// enough writes have accumulated. Compaction failures are logged, not fatal;
// the journal keeps the data safe.
func (s *fileStore) maybeCompactLocked() {
	if s.writes < fileCompactEvery {
		return
	}
	if err := s.compactLocked(); err != nil {
		s.log.Warn("post snapshot compaction failed", logx.Err(err))
		return
	}
	s.writes = 0
}

func (s *fileStore) compactLocked() error {
	list := make([]*post.Post, 0, len(s.posts))
	for _, p := range s.posts {
		list = append(list, p)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })

	b, err := json.Marshal(list)
	if err != nil {
		return err
	}
	tmp := s.snapshotPath + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return err
	}
	if err := os.Rename(tmp, s.snapshotPath); err != nil {
		return err
	}

	// Truncate journal after the snapshot is durable.
	if err := s.journalFile.Truncate(0); err != nil {
		return err
	}
	_, err = s.journalFile.Seek(0, 0)
	return err
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	// Best-effort final snapshot keeps restart cheap.
	_ = s.compactLocked()
	if s.journalFile != nil {
		err := s.journalFile.Close()
		s.journalFile = nil
		return err
	}
	return nil
}
