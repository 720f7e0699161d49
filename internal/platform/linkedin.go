package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"postpilot/internal/post"
	"postpilot/pkg/logx"
)

const linkedinAPIURL = "https://api.linkedin.com/v2"

// LinkedIn publishes member shares via POST /v2/ugcPosts.
//
// The author URN is resolved from the token on first publish and cached.
type LinkedIn struct {
	creds   Credentials
	client  *http.Client
	limiter *rate.Limiter
	log     logx.Logger

	baseURL string

	personID string // cached author id
}

func NewLinkedIn(creds Credentials, log logx.Logger) *LinkedIn {
	return &LinkedIn{
		creds:   creds,
		client:  newHTTPClient(0),
		limiter: rate.NewLimiter(rate.Every(time.Second), 2),
		log:     log,
		baseURL: linkedinAPIURL,
	}
}

func (l *LinkedIn) Name() string { return TagLinkedIn }

func (l *LinkedIn) Publish(ctx context.Context, p *post.Post) (string, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return "", &PublishError{Platform: TagLinkedIn, Reason: "rate limiter wait aborted", Err: err}
	}

	author, err := l.authorURN(ctx)
	if err != nil {
		return "", err
	}

	payload := map[string]any{
		"author":         author,
		"lifecycleState": "PUBLISHED",
		"specificContent": map[string]any{
			"com.linkedin.ugc.ShareContent": map[string]any{
				"shareCommentary":    map[string]any{"text": p.Content},
				"shareMediaCategory": "NONE",
			},
		},
		"visibility": map[string]any{
			"com.linkedin.ugc.MemberNetworkVisibility": "PUBLIC",
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		l.baseURL+"/ugcPosts", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+l.creds.AccessToken)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Restli-Protocol-Version", "2.0.0")

	resp, err := l.client.Do(req)
	if err != nil {
		return "", &PublishError{Platform: TagLinkedIn, Reason: "share request failed", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return "", &PublishError{Platform: TagLinkedIn, Reason: "rate limited"}
	}
	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return "", &PublishError{Platform: TagLinkedIn, Reason: linkedinErrorText(resp)}
	}

	var out struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", &PublishError{Platform: TagLinkedIn, Reason: "unreadable share response", Err: err}
	}
	if out.ID == "" {
		return "", &PublishError{Platform: TagLinkedIn, Reason: "share response missing post id"}
	}
	return out.ID, nil
}

func linkedinErrorText(resp *http.Response) string {
	var e struct {
		Message string `json:"message"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&e); err == nil && e.Message != "" {
		return fmt.Sprintf("share rejected (%d): %s", resp.StatusCode, e.Message)
	}
	return fmt.Sprintf("share returned status %d", resp.StatusCode)
}

// authorURN returns "urn:li:person:<id>", resolving and caching the member id.
func (l *LinkedIn) authorURN(ctx context.Context) (string, error) {
	if l.personID != "" {
		return "urn:li:person:" + l.personID, nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.baseURL+"/me", nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+l.creds.AccessToken)

	resp, err := l.client.Do(req)
	if err != nil {
		return "", &PublishError{Platform: TagLinkedIn, Reason: "profile lookup failed", Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", &PublishError{Platform: TagLinkedIn, Reason: fmt.Sprintf("profile lookup returned status %d", resp.StatusCode)}
	}
	var me struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&me); err != nil || me.ID == "" {
		return "", &PublishError{Platform: TagLinkedIn, Reason: "profile lookup missing member id", Err: err}
	}
	l.personID = me.ID
	return "urn:li:person:" + l.personID, nil
}

func (l *LinkedIn) ValidateCredentials(ctx context.Context, token string) (bool, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return false, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.baseURL+"/me", nil)
	if err != nil {
		return false, err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := l.client.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK, nil
}
