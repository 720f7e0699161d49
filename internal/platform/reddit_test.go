package platform

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"postpilot/internal/post"
	"postpilot/pkg/logx"
)

func testRedditPost() *post.Post {
	return &post.Post{
		ID:        "p1",
		Content:   "a release announcement",
		Platforms: []string{"reddit"},
		Status:    post.StatusScheduled,
	}
}

func TestRedditPublish(t *testing.T) {
	t.Parallel()
	var gotForm map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/submit" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.Header.Get("User-Agent") == "" {
			t.Error("reddit requires a User-Agent")
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer tok" {
			t.Errorf("authorization = %q", auth)
		}
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		gotForm = map[string]string{
			"sr":       r.PostFormValue("sr"),
			"kind":     r.PostFormValue("kind"),
			"api_type": r.PostFormValue("api_type"),
			"text":     r.PostFormValue("text"),
		}
		w.Write([]byte(`{"json":{"errors":[],"data":{"name":"t3_abc123"}}}`))
	}))
	defer srv.Close()

	r := NewReddit(Credentials{AccessToken: "tok", Subreddit: "golang"}, logx.Nop())
	r.baseURL = srv.URL

	id, err := r.Publish(context.Background(), testRedditPost())
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if id != "t3_abc123" {
		t.Fatalf("id = %q, want t3_abc123", id)
	}
	if gotForm["sr"] != "golang" || gotForm["kind"] != "self" || gotForm["api_type"] != "json" {
		t.Fatalf("submitted form = %v", gotForm)
	}
	if gotForm["text"] != "a release announcement" {
		t.Fatalf("text = %q", gotForm["text"])
	}
}

func TestRedditPublishBodyError(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Reddit reports submit errors inside a 200 body.
		w.Write([]byte(`{"json":{"errors":[["SUBREDDIT_NOTALLOWED","not allowed to post there","sr"]]}}`))
	}))
	defer srv.Close()

	r := NewReddit(Credentials{AccessToken: "tok", Subreddit: "golang"}, logx.Nop())
	r.baseURL = srv.URL

	_, err := r.Publish(context.Background(), testRedditPost())
	var perr *PublishError
	if !errors.As(err, &perr) {
		t.Fatalf("err = %v, want PublishError", err)
	}
	if !strings.Contains(perr.Reason, "not allowed to post there") {
		t.Fatalf("reason = %q", perr.Reason)
	}
}

func TestRedditPublishRateLimited(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	r := NewReddit(Credentials{AccessToken: "tok", Subreddit: "golang"}, logx.Nop())
	r.baseURL = srv.URL

	_, err := r.Publish(context.Background(), testRedditPost())
	var perr *PublishError
	if !errors.As(err, &perr) || perr.Reason != "rate limited" {
		t.Fatalf("err = %v, want rate limited", err)
	}
}

func TestRedditValidateCredentials(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/me" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") == "Bearer good" {
			w.Write([]byte(`{"name":"gopher"}`))
			return
		}
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	r := NewReddit(Credentials{}, logx.Nop())
	r.baseURL = srv.URL

	ok, err := r.ValidateCredentials(context.Background(), "good")
	if err != nil || !ok {
		t.Fatalf("ValidateCredentials(good) = %v, %v", ok, err)
	}
	ok, err = r.ValidateCredentials(context.Background(), "bad")
	if err != nil || ok {
		t.Fatalf("ValidateCredentials(bad) = %v, %v", ok, err)
	}
}

func TestXPublish(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/tweets" {
			t.Errorf("path = %s", r.URL.Path)
		}
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"data":{"id":"1890","text":"a release announcement"}}`))
	}))
	defer srv.Close()

	x := NewX(Credentials{AccessToken: "tok"}, logx.Nop())
	x.baseURL = srv.URL

	id, err := x.Publish(context.Background(), testRedditPost())
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if id != "1890" {
		t.Fatalf("id = %q, want 1890", id)
	}
}

func TestXPublishRejected(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"detail":"duplicate content"}`))
	}))
	defer srv.Close()

	x := NewX(Credentials{AccessToken: "tok"}, logx.Nop())
	x.baseURL = srv.URL

	_, err := x.Publish(context.Background(), testRedditPost())
	var perr *PublishError
	if !errors.As(err, &perr) {
		t.Fatalf("err = %v, want PublishError", err)
	}
	if !strings.Contains(perr.Reason, "duplicate content") {
		t.Fatalf("reason = %q", perr.Reason)
	}
}
