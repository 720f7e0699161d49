package store

import (
	"context"
	"sort"
	"strings"
	"sync"

	"postpilot/internal/post"
)

// memoryStore keeps everything in a map. It is the default backend and the
// one tests use.
type memoryStore struct {
	mu     sync.RWMutex
	posts  map[string]*post.Post
	closed bool
}

func NewMemory() Store {
	return &memoryStore{posts: map[string]*post.Post{}}
}

func (s *memoryStore) GetAll(ctx context.Context) ([]*post.Post, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	out := make([]*post.Post, 0, len(s.posts))
	for _, p := range s.posts {
		out = append(out, p.Clone())
	}
	// Stable order for callers that render lists.
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *memoryStore) Get(ctx context.Context, id string) (*post.Post, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	p, ok := s.posts[id]
	if !ok {
		return nil, ErrNotFound
	}
	return p.Clone(), nil
}

func (s *memoryStore) Upsert(ctx context.Context, p *post.Post) error {
	_ = ctx
	if strings.TrimSpace(p.ID) == "" {
		return post.ErrEmptyID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.posts[p.ID] = p.Clone()
	return nil
}

func (s *memoryStore) Delete(ctx context.Context, id string) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if _, ok := s.posts[id]; !ok {
		return ErrNotFound
	}
	delete(s.posts, id)
	return nil
}

func (s *memoryStore) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}
