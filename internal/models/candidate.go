package models

import (
	"time"
)

// CandidateStatus represents the curation state of a candidate tweet
type CandidateStatus string

const (
	CandidateStatusPending  CandidateStatus = "pending"
	CandidateStatusApproved CandidateStatus = "approved"
	CandidateStatusSkipped  CandidateStatus = "skipped"
	CandidateStatusPosted   CandidateStatus = "posted"
)

// CandidateSource tags how a candidate entered the queue
type CandidateSource string

const (
	SourceManual CandidateSource = "manual"
	SourceAPI    CandidateSource = "api"
	SourceSheet  CandidateSource = "sheet"
	SourceRSS    CandidateSource = "rss"
)

// Skip reasons chosen by the operator (dashboard or sheet)
const (
	SkipReasonTopicMismatch   = "topic_mismatch"
	SkipReasonSourceUntrusted = "source_untrusted"
	SkipReasonTooOld          = "too_old"
	SkipReasonLowQuality      = "low_quality"
	SkipReasonOffBrand        = "off_brand"
	SkipReasonOther           = "other"
)

// GeneratedScore is the compact rubric result stored on a candidate
type GeneratedScore struct {
	Total int    `json:"total"`
	Rank  string `json:"rank"`
}

// CandidateRecord is one row of the curation queue
type CandidateRecord struct {
	TweetID        string          `json:"tweet_id"`
	URL            string          `json:"url"`
	AuthorUsername string          `json:"author_username"`
	AuthorName     string          `json:"author_name"`
	Text           string          `json:"text"`
	Lang           string          `json:"lang,omitempty"`
	Likes          int             `json:"likes"`
	Retweets       int             `json:"retweets"`
	Replies        int             `json:"replies"`
	Quotes         int             `json:"quotes"`
	Bookmarks      int             `json:"bookmarks"`
	Source         CandidateSource `json:"source"`
	Memo           string          `json:"memo,omitempty"`
	CollectedAt    time.Time       `json:"collected_at"`

	Status       CandidateStatus `json:"status"`
	AddedAt      time.Time       `json:"added_at"`
	SkipReason   string          `json:"skip_reason,omitempty"`
	FeedbackNote string          `json:"feedback_note,omitempty"`

	PreferenceMatchScore float64  `json:"preference_match_score"`
	MatchedTopics        []string `json:"matched_topics,omitempty"`
	MatchedKeywords      []string `json:"matched_keywords,omitempty"`

	GeneratedText string          `json:"generated_text,omitempty"`
	TemplateID    string          `json:"template_id,omitempty"`
	Score         *GeneratedScore `json:"score,omitempty"`
	PostedTweetID string          `json:"posted_tweet_id,omitempty"`
	PostedAt      *time.Time      `json:"posted_at,omitempty"`
}

// TweetURL returns the canonical source URL, building one if missing
func (c *CandidateRecord) TweetURL() string {
	if c.URL != "" {
		return c.URL
	}
	return "https://x.com/" + c.AuthorUsername + "/status/" + c.TweetID
}

// HasGeneratedText reports whether a quote comment has been produced
func (c *CandidateRecord) HasGeneratedText() bool {
	return c.GeneratedText != ""
}

// PostedOn reports whether the record was posted on the given local date
func (c *CandidateRecord) PostedOn(day time.Time) bool {
	if c.PostedAt == nil {
		return false
	}
	y1, m1, d1 := c.PostedAt.Local().Date()
	y2, m2, d2 := day.Local().Date()
	return y1 == y2 && m1 == m2 && d1 == d2
}

// QueueStats summarizes the queue by curation state
type QueueStats struct {
	Pending     int `json:"pending"`
	Approved    int `json:"approved"`
	Skipped     int `json:"skipped"`
	Generated   int `json:"generated"`
	Posted      int `json:"posted"`
	PostedToday int `json:"posted_today"`
}
