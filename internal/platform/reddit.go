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

const (
	redditOAuthURL = "https://oauth.reddit.com"
)

// Reddit publishes self (text) posts via POST /api/submit.
//
// Reddit requires a distinctive User-Agent and is aggressive about rate
// limits, hence the shared limiter in front of every call.
type Reddit struct {
	creds   Credentials
	client  *http.Client
	limiter *rate.Limiter
	log     logx.Logger

	baseURL string // overridable in tests
}

func NewReddit(creds Credentials, log logx.Logger) *Reddit {
	return &Reddit{
		creds:  creds,
		client: newHTTPClient(0),
		// Reddit allows 60 requests/minute for OAuth clients.
		limiter: rate.NewLimiter(rate.Every(time.Second), 1),
		log:     log,
		baseURL: redditOAuthURL,
	}
}

func (r *Reddit) Name() string { return TagReddit }

func (r *Reddit) Publish(ctx context.Context, p *post.Post) (string, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return "", &PublishError{Platform: TagReddit, Reason: "rate limiter wait aborted", Err: err}
	}

	sub := strings.TrimSpace(r.creds.Subreddit)
	if sub == "" {
		return "", &PublishError{Platform: TagReddit, Reason: "no target subreddit configured"}
	}

	form := url.Values{
		"sr":       {sub},
		"kind":     {"self"},
		"title":    {p.Excerpt(120)},
		"text":     {p.Content},
		"api_type": {"json"},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		r.baseURL+"/api/submit", strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+r.creds.AccessToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", defaultUserAgent)

	resp, err := r.client.Do(req)
	if err != nil {
		return "", &PublishError{Platform: TagReddit, Reason: "submit request failed", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return "", &PublishError{Platform: TagReddit, Reason: "rate limited"}
	}
	if resp.StatusCode != http.StatusOK {
		return "", &PublishError{Platform: TagReddit, Reason: fmt.Sprintf("submit returned status %d", resp.StatusCode)}
	}

	// Reddit wraps errors inside a 200 response: {"json":{"errors":[[code,msg,field]]}}.
	var body struct {
		JSON struct {
			Errors [][]any `json:"errors"`
			Data   struct {
				Name string `json:"name"`
			} `json:"data"`
		} `json:"json"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", &PublishError{Platform: TagReddit, Reason: "unreadable submit response", Err: err}
	}
	if len(body.JSON.Errors) > 0 {
		return "", &PublishError{Platform: TagReddit, Reason: redditErrorText(body.JSON.Errors[0])}
	}
	if body.JSON.Data.Name == "" {
		return "", &PublishError{Platform: TagReddit, Reason: "submit response missing post id"}
	}
	return body.JSON.Data.Name, nil
}

func redditErrorText(e []any) string {
	// [code, message, field]
	if len(e) >= 2 {
		if msg, ok := e[1].(string); ok {
			return msg
		}
	}
	return "submit rejected"
}

func (r *Reddit) ValidateCredentials(ctx context.Context, token string) (bool, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return false, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.baseURL+"/api/v1/me", nil)
	if err != nil {
		return false, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("User-Agent", defaultUserAgent)

	resp, err := r.client.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK, nil
}
