package twitter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/xpost-agent/pkg/logger"
	"github.com/xpost-agent/pkg/ratelimit"
	"github.com/xpost-agent/pkg/retry"
)

const baseURL = "https://api.twitter.com/2"

// Poster publishes tweets in the user context of one account
type Poster struct {
	signer      *oauthSigner
	httpClient  *http.Client
	limiter     *ratelimit.MultiLimiter
	base        string
	retryPolicy retry.Policy
	log         *logger.Logger
}

func NewPoster(apiKey, apiSecret, accessToken, accessSecret string, limiter *ratelimit.MultiLimiter, log *logger.Logger) *Poster {
	return &Poster{
		signer: &oauthSigner{
			consumerKey:    apiKey,
			consumerSecret: apiSecret,
			accessToken:    accessToken,
			accessSecret:   accessSecret,
		},
		httpClient: &http.Client{Timeout: 30 * time.Second},
		base:       baseURL,
		retryPolicy: retry.Policy{
			MaxRetries:     3,
			InitialBackoff: 2 * time.Second,
			MaxBackoff:     20 * time.Second,
			BackoffFactor:  2.0,
			Jitter:         true,
		},
		limiter: limiter,
		log:     log.WithComponent("poster"),
	}
}

type tweetRequest struct {
	Text         string `json:"text"`
	QuoteTweetID string `json:"quote_tweet_id,omitempty"`
}

type tweetResponse struct {
	Data struct {
		ID   string `json:"id"`
		Text string `json:"text"`
	} `json:"data"`
	Errors []struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"errors,omitempty"`
}

// PostedTweet is the confirmed result of a publish call
type PostedTweet struct {
	ID   string
	Text string
}

// PostTweet publishes an original tweet
func (p *Poster) PostTweet(ctx context.Context, text string) (*PostedTweet, error) {
	return p.post(ctx, tweetRequest{Text: text})
}

// PostQuote publishes a quote retweet. A 403 whose detail says quoting is
// restricted gets reposted as a plain tweet with the source permalink
// appended; any other 403 surfaces as a permanent error.
func (p *Poster) PostQuote(ctx context.Context, text, quoteTweetID, quoteURL string) (*PostedTweet, error) {
	posted, err := p.post(ctx, tweetRequest{Text: text, QuoteTweetID: quoteTweetID})
	if err == nil {
		return posted, nil
	}

	if !IsQuoteRestricted(err) || quoteURL == "" {
		return nil, err
	}

	p.log.Warn().
		Str("quote_tweet_id", quoteTweetID).
		Msg("Quoting restricted for this tweet, falling back to URL embed")
	return p.post(ctx, tweetRequest{Text: text + "\n" + quoteURL})
}

// post publishes with bounded retries. Cloudflare challenges get a fresh
// session before the next attempt; 429 and 5xx back off on the same session.
func (p *Poster) post(ctx context.Context, reqBody tweetRequest) (*PostedTweet, error) {
	var posted *PostedTweet
	err := retry.Do(ctx, p.retryPolicy, "post tweet", func() error {
		pt, err := p.postOnce(ctx, reqBody)
		if err != nil {
			var apiErr *APIError
			if errors.As(err, &apiErr) {
				switch {
				case apiErr.Cloudflare:
					p.resetSession()
					return retry.Transient(err)
				case apiErr.StatusCode == 429 || apiErr.StatusCode >= 500:
					return retry.Transient(err)
				}
			}
			return err
		}
		posted = pt
		return nil
	})
	if err != nil {
		return nil, err
	}
	return posted, nil
}

// resetSession drops the pooled connections so the next attempt handshakes
// fresh, which is what gets past the Cloudflare challenge.
func (p *Poster) resetSession() {
	p.httpClient.CloseIdleConnections()
	p.httpClient = &http.Client{Timeout: 30 * time.Second}
}

func (p *Poster) postOnce(ctx context.Context, reqBody tweetRequest) (*PostedTweet, error) {
	if err := p.limiter.Wait(ctx, ratelimit.LimiterPost); err != nil {
		return nil, fmt.Errorf("rate limit: %w", err)
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal tweet request: %w", err)
	}

	apiURL := p.base + "/tweets"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", p.signer.header(http.MethodPost, apiURL, nil))

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("post tweet: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		if IsCloudflareBlock(resp.StatusCode, string(raw)) {
			return nil, &APIError{StatusCode: 403, Message: "blocked by Cloudflare challenge", Cloudflare: true}
		}
		var tr tweetResponse
		if json.Unmarshal(raw, &tr) == nil && len(tr.Errors) > 0 {
			return nil, &APIError{StatusCode: resp.StatusCode, Message: tr.Errors[0].Message}
		}
		return nil, &APIError{StatusCode: resp.StatusCode, Message: truncate(string(raw), 200)}
	}

	var tr tweetResponse
	if err := json.Unmarshal(raw, &tr); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}

	p.log.Info().
		Str("tweet_id", tr.Data.ID).
		Int("text_length", len([]rune(reqBody.Text))).
		Msg("Tweet posted")

	return &PostedTweet{ID: tr.Data.ID, Text: tr.Data.Text}, nil
}

// DeleteTweet removes a tweet by id
func (p *Poster) DeleteTweet(ctx context.Context, tweetID string) error {
	apiURL := p.base + "/tweets/" + tweetID
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, apiURL, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", p.signer.header(http.MethodDelete, apiURL, nil))

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("delete tweet: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Message: truncate(string(raw), 200)}
	}
	return nil
}

// AccountInfo identifies the authenticated account
type AccountInfo struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Username string `json:"username"`
}

// VerifyCredentials confirms the tokens belong to a live account. Run before
// the first post of a session to catch credential mixups.
func (p *Poster) VerifyCredentials(ctx context.Context) (*AccountInfo, error) {
	apiURL := p.base + "/users/me"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", p.signer.header(http.MethodGet, apiURL, nil))

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("verify credentials: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &APIError{StatusCode: resp.StatusCode, Message: truncate(string(raw), 200)}
	}

	var result struct {
		Data AccountInfo `json:"data"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	if result.Data.ID == "" {
		return nil, &APIError{StatusCode: resp.StatusCode, Message: "empty account data"}
	}
	return &result.Data, nil
}

// RecentTweet is one of the account's own recent posts
type RecentTweet struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// RecentTweets fetches the account's latest posts for duplicate checks
func (p *Poster) RecentTweets(ctx context.Context, maxResults int) ([]RecentTweet, error) {
	me, err := p.VerifyCredentials(ctx)
	if err != nil {
		return nil, err
	}

	if maxResults < 5 {
		maxResults = 5
	}
	apiURL := p.base + "/users/" + me.ID + "/tweets"
	params := map[string]string{
		"max_results":  fmt.Sprintf("%d", maxResults),
		"tweet.fields": "created_at",
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL+"?"+encodeParams(params), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", p.signer.header(http.MethodGet, apiURL, params))

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get recent tweets: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &APIError{StatusCode: resp.StatusCode, Message: truncate(string(raw), 200)}
	}

	var result struct {
		Data []struct {
			ID        string `json:"id"`
			Text      string `json:"text"`
			CreatedAt string `json:"created_at"`
		} `json:"data"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}

	tweets := make([]RecentTweet, 0, len(result.Data))
	for _, t := range result.Data {
		created, _ := time.Parse(time.RFC3339, t.CreatedAt)
		tweets = append(tweets, RecentTweet{ID: t.ID, Text: t.Text, CreatedAt: created})
	}
	return tweets, nil
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	runes := []rune(s)
	if len(runes) > n {
		return string(runes[:n])
	}
	return s
}
