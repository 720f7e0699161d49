package platform

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"postpilot/internal/post"
	"postpilot/pkg/logx"
)

const threadsGraphURL = "https://graph.threads.net/v1.0"

// Threads publishes text posts through the two-step Graph flow: create a
// media container, then publish it.
type Threads struct {
	creds   Credentials
	client  *http.Client
	limiter *rate.Limiter
	log     logx.Logger

	baseURL string
}

func NewThreads(creds Credentials, log logx.Logger) *Threads {
	return &Threads{
		creds:   creds,
		client:  newHTTPClient(0),
		limiter: rate.NewLimiter(rate.Every(time.Second), 2),
		log:     log,
		baseURL: threadsGraphURL,
	}
}

func (t *Threads) Name() string { return TagThreads }

func (t *Threads) Publish(ctx context.Context, p *post.Post) (string, error) {
	if err := t.limiter.Wait(ctx); err != nil {
		return "", &PublishError{Platform: TagThreads, Reason: "rate limiter wait aborted", Err: err}
	}

	containerID, err := t.graphPost(ctx, "/me/threads", url.Values{
		"media_type": {"TEXT"},
		"text":       {p.Content},
	})
	if err != nil {
		return "", err
	}

	postID, err := t.graphPost(ctx, "/me/threads_publish", url.Values{
		"creation_id": {containerID},
	})
	if err != nil {
		return "", err
	}
	return postID, nil
}

// graphPost performs one Graph API call and returns the "id" field.
func (t *Threads) graphPost(ctx context.Context, path string, form url.Values) (string, error) {
	form.Set("access_token", t.creds.AccessToken)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		t.baseURL+path, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := t.client.Do(req)
	if err != nil {
		return "", &PublishError{Platform: TagThreads, Reason: "graph request failed", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return "", &PublishError{Platform: TagThreads, Reason: "rate limited"}
	}
	if resp.StatusCode != http.StatusOK {
		return "", &PublishError{Platform: TagThreads, Reason: threadsErrorText(resp)}
	}

	var out struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", &PublishError{Platform: TagThreads, Reason: "unreadable graph response", Err: err}
	}
	if out.ID == "" {
		return "", &PublishError{Platform: TagThreads, Reason: "graph response missing id"}
	}
	return out.ID, nil
}

func threadsErrorText(resp *http.Response) string {
	var e struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&e); err == nil && e.Error.Message != "" {
		return fmt.Sprintf("graph call rejected (%d): %s", resp.StatusCode, e.Error.Message)
	}
	return fmt.Sprintf("graph call returned status %d", resp.StatusCode)
}

func (t *Threads) ValidateCredentials(ctx context.Context, token string) (bool, error) {
	if err := t.limiter.Wait(ctx); err != nil {
		return false, err
	}
	u := t.baseURL + "/me?fields=id,username&access_token=" + url.QueryEscape(token)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return false, err
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK, nil
}
