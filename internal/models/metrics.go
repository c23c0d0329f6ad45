package models

import "time"

// PostMetrics is one published tweet's engagement snapshot
type PostMetrics struct {
	TweetID     string    `json:"tweet_id"`
	Text        string    `json:"text"`
	CreatedAt   string    `json:"created_at"`
	Likes       int       `json:"likes"`
	Retweets    int       `json:"retweets"`
	Replies     int       `json:"replies"`
	Quotes      int       `json:"quotes"`
	Impressions int       `json:"impressions"`
	CollectedAt time.Time `json:"collected_at"`
}

// Engagement is the weighted signal used to rank posts against each other
func (m PostMetrics) Engagement() int {
	return m.Likes + m.Retweets*3
}

// MetricSummary aggregates a collection window of post metrics
type MetricSummary struct {
	PostCount        int     `json:"post_count"`
	TotalLikes       int     `json:"total_likes"`
	TotalRetweets    int     `json:"total_retweets"`
	TotalReplies     int     `json:"total_replies"`
	TotalImpressions int     `json:"total_impressions"`
	AvgLikes         float64 `json:"avg_likes"`
	AvgRetweets      float64 `json:"avg_retweets"`
	AvgReplies       float64 `json:"avg_replies"`
	EngagementRate   float64 `json:"engagement_rate"`
	BestTweet        string  `json:"best_tweet"`
	BestLikes        int     `json:"best_likes"`
	Followers        int     `json:"followers,omitempty"`
}
