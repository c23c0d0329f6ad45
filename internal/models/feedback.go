package models

import "time"

// FeedbackDecision is the operator choice recorded for a candidate
type FeedbackDecision string

const (
	DecisionApproved FeedbackDecision = "approved"
	DecisionSkipped  FeedbackDecision = "skipped"
)

// FeedbackEntry is one append-only record of an operator decision
type FeedbackEntry struct {
	TweetID              string           `json:"tweet_id"`
	AuthorUsername       string           `json:"author_username"`
	Decision             FeedbackDecision `json:"decision"`
	SkipReason           string           `json:"skip_reason,omitempty"`
	FeedbackNote         string           `json:"feedback_note,omitempty"`
	PreferenceMatchScore float64          `json:"preference_match_score"`
	MatchedTopics        []string         `json:"matched_topics,omitempty"`
	MatchedKeywords      []string         `json:"matched_keywords,omitempty"`
	Likes                int              `json:"likes"`
	DecidedAt            time.Time        `json:"decided_at"`
}

// DecisionCount tallies approvals and skips for one aggregation key
type DecisionCount struct {
	Approved int `json:"approved"`
	Skipped  int `json:"skipped"`
}

// Total returns the number of decisions for the key
func (d DecisionCount) Total() int {
	return d.Approved + d.Skipped
}

// Rate returns the approval rate, 0 when no decisions exist
func (d DecisionCount) Rate() float64 {
	total := d.Total()
	if total == 0 {
		return 0
	}
	return float64(d.Approved) / float64(total)
}

// FeedbackStats caches aggregated counters over the entry log
type FeedbackStats struct {
	Total     int                      `json:"total"`
	Approved  int                      `json:"approved"`
	Skipped   int                      `json:"skipped"`
	BySource  map[string]DecisionCount `json:"by_source"`
	ByTopic   map[string]DecisionCount `json:"by_topic"`
	ByKeyword map[string]DecisionCount `json:"by_keyword"`
	ByReason  map[string]int           `json:"by_reason"`
}

// ApprovalRate returns the overall approval rate
func (s FeedbackStats) ApprovalRate() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.Approved) / float64(s.Total)
}

// FeedbackLog is the persisted shape of the feedback file
type FeedbackLog struct {
	Entries []FeedbackEntry `json:"entries"`
	Stats   FeedbackStats   `json:"stats"`
}
