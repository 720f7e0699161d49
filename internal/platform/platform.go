// Package platform contains the publisher adapters that deliver posts to the
// remote social networks.
//
// Each adapter wraps one platform's public REST API behind the Publisher
// interface. Adapters are registered in a Registry keyed by the platform tag
// that posts carry ("reddit", "linkedin", "threads", "x").
package platform

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"postpilot/internal/post"
)

// Tags of the supported platforms.
const (
	TagLinkedIn = "linkedin"
	TagReddit   = "reddit"
	TagThreads  = "threads"
	TagX        = "x"
)

// Publisher delivers one post to one platform.
type Publisher interface {
	// Name returns the platform tag this publisher serves.
	Name() string

	// Publish submits the post and returns the platform-side post ID.
	// Failures are returned as *PublishError where the platform gave a
	// usable reason.
	Publish(ctx context.Context, p *post.Post) (string, error)

	// ValidateCredentials reports whether the given access token is still
	// accepted by the platform. Used by connection management, not by the
	// dispatch path.
	ValidateCredentials(ctx context.Context, token string) (bool, error)
}

// PublishError is a publish failure with a platform-scoped, human-readable
// reason. It unwraps to the transport error, if any.
type PublishError struct {
	Platform string
	Reason   string
	Err      error
}

func (e *PublishError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Platform, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Platform, e.Reason)
}

func (e *PublishError) Unwrap() error { return e.Err }

var ErrUnknownPlatform = errors.New("no publisher registered for platform")

// Registry maps platform tags to publishers. Safe for concurrent use.
type Registry struct {
	mu   sync.RWMutex
	pubs map[string]Publisher
}

func NewRegistry(pubs ...Publisher) *Registry {
	r := &Registry{pubs: map[string]Publisher{}}
	for _, p := range pubs {
		r.Register(p)
	}
	return r
}

func (r *Registry) Register(p Publisher) {
	if p == nil {
		return
	}
	r.mu.Lock()
	r.pubs[strings.ToLower(p.Name())] = p
	r.mu.Unlock()
}

func (r *Registry) Get(tag string) (Publisher, error) {
	r.mu.RLock()
	p, ok := r.pubs[strings.ToLower(strings.TrimSpace(tag))]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownPlatform, tag)
	}
	return p, nil
}

func (r *Registry) Tags() []string {
	r.mu.RLock()
	out := make([]string, 0, len(r.pubs))
	for tag := range r.pubs {
		out = append(out, tag)
	}
	r.mu.RUnlock()
	sort.Strings(out)
	return out
}

// Credentials holds the OAuth access token for one connected platform
// account. Token acquisition and refresh happen outside this process.
type Credentials struct {
	AccessToken string
	// Extra platform-specific settings (e.g. reddit target subreddit).
	Subreddit string
}

const defaultUserAgent = "postpilot/1.0"

// newHTTPClient returns the client shared by adapters. Publish calls also
// carry a per-call context deadline from the engine.
func newHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &http.Client{Timeout: timeout}
}
