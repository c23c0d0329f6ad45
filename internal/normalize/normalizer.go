// Package normalize maps heterogeneous candidate inputs (manual tweet URLs,
// search-API payloads in legacy or v2 shape) onto models.CandidateRecord.
package normalize

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/xpost-agent/internal/models"
)

// ErrInvalidSource marks a malformed URL or candidate payload
var ErrInvalidSource = errors.New("invalid candidate source")

// Hosts that serve tweet permalinks
var tweetURLPattern = regexp.MustCompile(
	`^https?://(?:www\.)?(?:x\.com|twitter\.com|mobile\.twitter\.com|vxtwitter\.com|fxtwitter\.com)/([A-Za-z0-9_]+)/status(?:es)?/(\d+)`)

// createdAtLayout is the legacy platform timestamp form ("Thu Feb 20 02:14:30 +0000 2026")
const createdAtLayout = "Mon Jan 2 15:04:05 -0700 2006"

// IsTweetURL reports whether the string looks like a tweet permalink. Used as
// a cheap pre-filter before FromURL.
func IsTweetURL(url string) bool {
	return tweetURLPattern.MatchString(strings.TrimSpace(url))
}

// ParseURL extracts (username, tweet_id) from a tweet permalink, ignoring any
// query parameters.
func ParseURL(url string) (username, tweetID string, err error) {
	m := tweetURLPattern.FindStringSubmatch(strings.TrimSpace(url))
	if m == nil {
		return "", "", fmt.Errorf("%w: not a tweet URL: %s", ErrInvalidSource, url)
	}
	return m[1], m[2], nil
}

// BuildURL returns the canonical permalink for a (username, tweet_id) pair
func BuildURL(username, tweetID string) string {
	return "https://x.com/" + username + "/status/" + tweetID
}

// FromURL builds a candidate record from a manually supplied tweet URL.
// Engagement counters stay zero until a lookup fills them in.
func FromURL(url, memo string) (models.CandidateRecord, error) {
	username, tweetID, err := ParseURL(url)
	if err != nil {
		return models.CandidateRecord{}, err
	}

	return models.CandidateRecord{
		TweetID:        tweetID,
		URL:            BuildURL(username, tweetID),
		AuthorUsername: username,
		Memo:           memo,
		Source:         models.SourceManual,
		Status:         models.CandidateStatusPending,
		CollectedAt:    time.Now(),
	}, nil
}

// FromAPI maps a search-API payload onto a candidate record. Both the legacy
// shape (id_str, full_text, user.screen_name, favorite_count) and the v2
// shape (id, text, public_metrics) are accepted; missing fields stay zero.
func FromAPI(payload map[string]interface{}, source models.CandidateSource) (models.CandidateRecord, error) {
	tweetID := str(payload["id_str"])
	if tweetID == "" {
		tweetID = str(payload["id"])
	}
	if tweetID == "" {
		return models.CandidateRecord{}, fmt.Errorf("%w: payload without tweet id", ErrInvalidSource)
	}

	text := str(payload["full_text"])
	if text == "" {
		text = str(payload["text"])
	}

	var username, name string
	if user, ok := payload["user"].(map[string]interface{}); ok {
		username = str(user["screen_name"])
		if username == "" {
			username = str(user["username"])
		}
		name = str(user["name"])
	}

	record := models.CandidateRecord{
		TweetID:        tweetID,
		AuthorUsername: username,
		AuthorName:     name,
		Text:           text,
		Lang:           str(payload["lang"]),
		Likes:          num(payload["favorite_count"], payload["like_count"]),
		Retweets:       num(payload["retweet_count"]),
		Replies:        num(payload["reply_count"]),
		Quotes:         num(payload["quote_count"]),
		Bookmarks:      num(payload["bookmark_count"]),
		Source:         source,
		Status:         models.CandidateStatusPending,
		CollectedAt:    time.Now(),
	}

	if metrics, ok := payload["public_metrics"].(map[string]interface{}); ok {
		record.Likes = num(metrics["like_count"])
		record.Retweets = num(metrics["retweet_count"])
		record.Replies = num(metrics["reply_count"])
		record.Quotes = num(metrics["quote_count"])
		record.Bookmarks = num(metrics["bookmark_count"], payload["bookmark_count"])
	}

	if username != "" {
		record.URL = BuildURL(username, tweetID)
	}

	return record, nil
}

// ParseCreatedAt parses the platform's legacy timestamp string. Returns the
// zero time when the string does not parse.
func ParseCreatedAt(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	if t, err := time.Parse(createdAtLayout, s); err == nil {
		return t
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t
	}
	return time.Time{}
}

func str(v interface{}) string {
	switch x := v.(type) {
	case string:
		return x
	case float64:
		return fmt.Sprintf("%.0f", x)
	case int64:
		return fmt.Sprintf("%d", x)
	case int:
		return fmt.Sprintf("%d", x)
	}
	return ""
}

func num(vs ...interface{}) int {
	for _, v := range vs {
		switch x := v.(type) {
		case float64:
			return int(x)
		case int:
			return x
		case int64:
			return int(x)
		}
	}
	return 0
}
