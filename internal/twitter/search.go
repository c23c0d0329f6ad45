package twitter

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/xpost-agent/pkg/logger"
	"github.com/xpost-agent/pkg/ratelimit"
)

const (
	tweetFields = "created_at,public_metrics,author_id,lang,text"
	userFields  = "username,name"
)

// SearchClient reads the API with an app bearer token
type SearchClient struct {
	bearerToken string
	httpClient  *http.Client
	limiter     *ratelimit.MultiLimiter
	log         *logger.Logger

	// author_id -> user, filled from response includes
	userCache map[string]apiUser
}

func NewSearchClient(bearerToken string, limiter *ratelimit.MultiLimiter, log *logger.Logger) *SearchClient {
	return &SearchClient{
		bearerToken: bearerToken,
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		limiter:     limiter,
		log:         log.WithComponent("search"),
		userCache:   map[string]apiUser{},
	}
}

type apiUser struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Name     string `json:"name"`
}

type apiTweet struct {
	ID            string `json:"id"`
	Text          string `json:"text"`
	AuthorID      string `json:"author_id"`
	CreatedAt     string `json:"created_at"`
	Lang          string `json:"lang"`
	PublicMetrics struct {
		LikeCount       int `json:"like_count"`
		RetweetCount    int `json:"retweet_count"`
		ReplyCount      int `json:"reply_count"`
		QuoteCount      int `json:"quote_count"`
		ImpressionCount int `json:"impression_count"`
	} `json:"public_metrics"`
}

// Tweet is a fetched tweet with resolved author info
type Tweet struct {
	ID             string
	Text           string
	AuthorUsername string
	AuthorName     string
	Lang           string
	Likes          int
	Retweets       int
	Replies        int
	Quotes         int
	Impressions    int
	CreatedAt      time.Time
}

// SearchRecent runs a 7-day search. tweetType "Latest" sorts by recency,
// anything else by relevancy.
func (c *SearchClient) SearchRecent(ctx context.Context, query string, maxResults int, tweetType string) ([]Tweet, error) {
	sortOrder := "relevancy"
	if tweetType == "" || tweetType == "Latest" {
		sortOrder = "recency"
	}
	perPage := maxResults
	if perPage > 100 {
		perPage = 100
	}
	if perPage < 10 {
		perPage = 10
	}

	params := map[string]string{
		"query":        query,
		"max_results":  fmt.Sprintf("%d", perPage),
		"tweet.fields": tweetFields,
		"user.fields":  userFields,
		"expansions":   "author_id",
		"sort_order":   sortOrder,
	}
	raw, err := c.get(ctx, baseURL+"/tweets/search/recent", params)
	if err != nil {
		return nil, err
	}

	var result struct {
		Data     []apiTweet `json:"data"`
		Includes struct {
			Users []apiUser `json:"users"`
		} `json:"includes"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("parse search response: %w", err)
	}
	c.cacheUsers(result.Includes.Users)

	tweets := make([]Tweet, 0, len(result.Data))
	for _, t := range result.Data {
		tweets = append(tweets, c.toTweet(t, ""))
	}
	if len(tweets) > maxResults {
		tweets = tweets[:maxResults]
	}
	return tweets, nil
}

// GetTweet fetches one tweet by id
func (c *SearchClient) GetTweet(ctx context.Context, tweetID string) (*Tweet, error) {
	params := map[string]string{
		"tweet.fields": tweetFields,
		"user.fields":  userFields,
		"expansions":   "author_id",
	}
	raw, err := c.get(ctx, baseURL+"/tweets/"+tweetID, params)
	if err != nil {
		return nil, err
	}

	var result struct {
		Data     *apiTweet `json:"data"`
		Includes struct {
			Users []apiUser `json:"users"`
		} `json:"includes"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("parse tweet response: %w", err)
	}
	if result.Data == nil {
		return nil, &APIError{StatusCode: 404, Message: "tweet not found: " + tweetID}
	}
	c.cacheUsers(result.Includes.Users)
	tweet := c.toTweet(*result.Data, "")
	return &tweet, nil
}

// UserTweets fetches a user's latest original tweets (no retweets, no replies)
func (c *SearchClient) UserTweets(ctx context.Context, username string, maxResults int) ([]Tweet, error) {
	raw, err := c.get(ctx, baseURL+"/users/by/username/"+username, map[string]string{
		"user.fields": userFields,
	})
	if err != nil {
		return nil, err
	}
	var userResult struct {
		Data *apiUser `json:"data"`
	}
	if err := json.Unmarshal(raw, &userResult); err != nil {
		return nil, fmt.Errorf("parse user response: %w", err)
	}
	if userResult.Data == nil {
		return nil, &APIError{StatusCode: 404, Message: "user not found: @" + username}
	}
	c.userCache[userResult.Data.ID] = *userResult.Data

	perPage := maxResults
	if perPage > 100 {
		perPage = 100
	}
	if perPage < 5 {
		perPage = 5
	}
	raw, err = c.get(ctx, baseURL+"/users/"+userResult.Data.ID+"/tweets", map[string]string{
		"max_results":  fmt.Sprintf("%d", perPage),
		"tweet.fields": tweetFields,
		"exclude":      "retweets,replies",
	})
	if err != nil {
		return nil, err
	}

	var result struct {
		Data []apiTweet `json:"data"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("parse user tweets: %w", err)
	}

	tweets := make([]Tweet, 0, len(result.Data))
	for _, t := range result.Data {
		tweets = append(tweets, c.toTweet(t, username))
	}
	if len(tweets) > maxResults {
		tweets = tweets[:maxResults]
	}
	return tweets, nil
}

// TweetMetrics fetches current engagement numbers for one tweet
func (c *SearchClient) TweetMetrics(ctx context.Context, tweetID string) (*Tweet, error) {
	return c.GetTweet(ctx, tweetID)
}

func (c *SearchClient) get(ctx context.Context, apiURL string, params map[string]string) ([]byte, error) {
	if err := c.limiter.Wait(ctx, ratelimit.LimiterSearch); err != nil {
		return nil, fmt.Errorf("rate limit: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL+"?"+encodeParams(params), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.bearerToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request %s: %w", apiURL, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		return raw, nil
	case resp.StatusCode == 429:
		return nil, &APIError{StatusCode: 429, Message: "rate limited, retry later"}
	case resp.StatusCode == 401:
		return nil, &APIError{StatusCode: 401, Message: "bearer token rejected"}
	case IsCloudflareBlock(resp.StatusCode, string(raw)):
		return nil, &APIError{StatusCode: 403, Message: "blocked by Cloudflare challenge"}
	default:
		return nil, &APIError{StatusCode: resp.StatusCode, Message: truncate(string(raw), 200)}
	}
}

func (c *SearchClient) cacheUsers(users []apiUser) {
	for _, u := range users {
		c.userCache[u.ID] = u
	}
}

func (c *SearchClient) toTweet(t apiTweet, fallbackUsername string) Tweet {
	user := c.userCache[t.AuthorID]
	username := user.Username
	if username == "" {
		username = fallbackUsername
	}
	created, _ := time.Parse(time.RFC3339, t.CreatedAt)
	return Tweet{
		ID:             t.ID,
		Text:           t.Text,
		AuthorUsername: username,
		AuthorName:     user.Name,
		Lang:           t.Lang,
		Likes:          t.PublicMetrics.LikeCount,
		Retweets:       t.PublicMetrics.RetweetCount,
		Replies:        t.PublicMetrics.ReplyCount,
		Quotes:         t.PublicMetrics.QuoteCount,
		Impressions:    t.PublicMetrics.ImpressionCount,
		CreatedAt:      created,
	}
}

// BuildSearchQuery assembles a search expression from accounts and keywords.
// min_faves needs a paid tier, so engagement filtering happens client side.
func BuildSearchQuery(accounts, keywords []string, lang string, excludeReplies, excludeRetweets bool) string {
	var parts []string

	if len(accounts) > 0 {
		froms := make([]string, len(accounts))
		for i, u := range accounts {
			froms[i] = "from:" + u
		}
		parts = append(parts, "("+strings.Join(froms, " OR ")+")")
	}

	if len(keywords) > 0 && len(accounts) == 0 {
		kws := make([]string, len(keywords))
		for i, kw := range keywords {
			if strings.Contains(kw, " ") {
				kws[i] = `"` + kw + `"`
			} else {
				kws[i] = kw
			}
		}
		parts = append(parts, "("+strings.Join(kws, " OR ")+")")
	}

	if lang != "" {
		parts = append(parts, "lang:"+lang)
	}
	if excludeReplies {
		parts = append(parts, "-is:reply")
	}
	if excludeRetweets {
		parts = append(parts, "-is:retweet")
	}
	return strings.Join(parts, " ")
}

func encodeParams(params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, url.QueryEscape(k)+"="+url.QueryEscape(params[k]))
	}
	return strings.Join(pairs, "&")
}
