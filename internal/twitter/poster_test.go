package twitter

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/xpost-agent/pkg/logger"
	"github.com/xpost-agent/pkg/ratelimit"
	"github.com/xpost-agent/pkg/retry"
)

func newTestPoster(t *testing.T, serverURL string) *Poster {
	t.Helper()
	p := NewPoster("ck", "cs", "at", "as", ratelimit.NewDefaultLimiter(), logger.Default())
	p.base = serverURL
	p.retryPolicy = retry.Policy{
		MaxRetries:     3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     2 * time.Millisecond,
		BackoffFactor:  1.0,
	}
	return p
}

func decodeTweetRequest(r *http.Request) tweetRequest {
	raw, _ := io.ReadAll(r.Body)
	var req tweetRequest
	json.Unmarshal(raw, &req)
	return req
}

func TestPostQuoteFallsBackWhenQuotingRestricted(t *testing.T) {
	var requests []tweetRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req := decodeTweetRequest(r)
		requests = append(requests, req)
		if req.QuoteTweetID != "" {
			w.WriteHeader(http.StatusForbidden)
			io.WriteString(w, `{"errors":[{"message":"Quoting is restricted for this Tweet.","type":"about:blank"}]}`)
			return
		}
		w.WriteHeader(http.StatusCreated)
		body, _ := json.Marshal(map[string]any{"data": map[string]string{"id": "999", "text": req.Text}})
		w.Write(body)
	}))
	defer srv.Close()

	p := newTestPoster(t, srv.URL)
	posted, err := p.PostQuote(context.Background(), "コメント本文", "111", "https://x.com/alice/status/111")
	if err != nil {
		t.Fatalf("PostQuote: %v", err)
	}
	if posted.ID != "999" {
		t.Errorf("posted id = %s", posted.ID)
	}
	if len(requests) != 2 {
		t.Fatalf("requests = %d, want 2", len(requests))
	}
	if requests[1].QuoteTweetID != "" {
		t.Error("fallback request still carries quote_tweet_id")
	}
	if !strings.HasSuffix(requests[1].Text, "https://x.com/alice/status/111") {
		t.Errorf("fallback text missing permalink: %q", requests[1].Text)
	}
}

func TestPostQuotePlainForbiddenIsPermanent(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.WriteHeader(http.StatusForbidden)
		io.WriteString(w, `{"errors":[{"message":"Your account is not permitted to perform this action."}]}`)
	}))
	defer srv.Close()

	p := newTestPoster(t, srv.URL)
	_, err := p.PostQuote(context.Background(), "コメント本文", "111", "https://x.com/alice/status/111")
	if err == nil {
		t.Fatal("permission 403 did not surface")
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != 403 {
		t.Fatalf("error = %v", err)
	}
	if hits != 1 {
		t.Errorf("requests = %d, want 1 (no fallback, no retry)", hits)
	}
}

func TestPostRetriesCloudflareBlock(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		if hits <= 2 {
			w.WriteHeader(http.StatusForbidden)
			io.WriteString(w, "<!DOCTYPE html><html><title>Just a moment...</title></html>")
			return
		}
		w.WriteHeader(http.StatusCreated)
		io.WriteString(w, `{"data":{"id":"42","text":"本文"}}`)
	}))
	defer srv.Close()

	p := newTestPoster(t, srv.URL)
	posted, err := p.PostTweet(context.Background(), "本文")
	if err != nil {
		t.Fatalf("PostTweet: %v", err)
	}
	if posted.ID != "42" {
		t.Errorf("posted id = %s", posted.ID)
	}
	if hits != 3 {
		t.Errorf("requests = %d, want 3", hits)
	}
}

func TestPostCloudflareExhaustsRetries(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.WriteHeader(http.StatusForbidden)
		io.WriteString(w, "Just a moment...")
	}))
	defer srv.Close()

	p := newTestPoster(t, srv.URL)
	_, err := p.PostQuote(context.Background(), "コメント本文", "111", "https://x.com/alice/status/111")
	if err == nil {
		t.Fatal("cloudflare block did not surface")
	}
	if IsQuoteRestricted(err) {
		t.Error("cloudflare 403 treated as quote restriction")
	}
	if hits != 4 {
		t.Errorf("requests = %d, want 4 (initial + 3 retries)", hits)
	}
}

func TestTruncateKeepsRuneBoundaries(t *testing.T) {
	got := truncate("日本語のエラー本文です", 5)
	if got != "日本語のエ" {
		t.Errorf("truncate = %q", got)
	}
	for _, r := range got {
		if r == '�' {
			t.Fatalf("rune split mid-sequence: %q", got)
		}
	}
	if got := truncate("short", 10); got != "short" {
		t.Errorf("truncate short = %q", got)
	}
}

func TestIsQuoteRestricted(t *testing.T) {
	if !IsQuoteRestricted(&APIError{StatusCode: 403, Message: "Quoting is restricted for this Tweet."}) {
		t.Error("quote restriction not detected")
	}
	if IsQuoteRestricted(&APIError{StatusCode: 403, Message: "Forbidden"}) {
		t.Error("plain 403 misdetected")
	}
	if IsQuoteRestricted(&APIError{StatusCode: 403, Message: "blocked by Cloudflare challenge", Cloudflare: true}) {
		t.Error("cloudflare 403 misdetected")
	}
	if IsQuoteRestricted(errors.New("Quoting plain error")) {
		t.Error("non-API error misdetected")
	}
}
