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

const xAPIURL = "https://api.twitter.com/2"

// X publishes tweets via POST /2/tweets.
type X struct {
	creds   Credentials
	client  *http.Client
	limiter *rate.Limiter
	log     logx.Logger

	baseURL string
}

func NewX(creds Credentials, log logx.Logger) *X {
	return &X{
		creds:  creds,
		client: newHTTPClient(0),
		// The v2 create-tweet endpoint allows 200 requests/15min per user.
		limiter: rate.NewLimiter(rate.Every(5*time.Second), 1),
		log:     log,
		baseURL: xAPIURL,
	}
}

func (x *X) Name() string { return TagX }

func (x *X) Publish(ctx context.Context, p *post.Post) (string, error) {
	if err := x.limiter.Wait(ctx); err != nil {
		return "", &PublishError{Platform: TagX, Reason: "rate limiter wait aborted", Err: err}
	}

	body, err := json.Marshal(map[string]string{"text": p.Content})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		x.baseURL+"/tweets", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+x.creds.AccessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := x.client.Do(req)
	if err != nil {
		return "", &PublishError{Platform: TagX, Reason: "tweet request failed", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return "", &PublishError{Platform: TagX, Reason: "rate limited"}
	}
	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return "", &PublishError{Platform: TagX, Reason: xErrorText(resp)}
	}

	var out struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", &PublishError{Platform: TagX, Reason: "unreadable tweet response", Err: err}
	}
	if out.Data.ID == "" {
		return "", &PublishError{Platform: TagX, Reason: "tweet response missing id"}
	}
	return out.Data.ID, nil
}

func xErrorText(resp *http.Response) string {
	var e struct {
		Errors []struct {
			Message string `json:"message"`
		} `json:"errors"`
		Detail string `json:"detail"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&e); err == nil {
		if len(e.Errors) > 0 && e.Errors[0].Message != "" {
			return fmt.Sprintf("tweet rejected (%d): %s", resp.StatusCode, e.Errors[0].Message)
		}
		if e.Detail != "" {
			return fmt.Sprintf("tweet rejected (%d): %s", resp.StatusCode, e.Detail)
		}
	}
	return fmt.Sprintf("tweet returned status %d", resp.StatusCode)
}

func (x *X) ValidateCredentials(ctx context.Context, token string) (bool, error) {
	if err := x.limiter.Wait(ctx); err != nil {
		return false, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, x.baseURL+"/users/me", nil)
	if err != nil {
		return false, err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := x.client.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK, nil
}
