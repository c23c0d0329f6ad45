package storage

import (
	"context"
	"time"
)

// PostedPost is one published post, archived for reporting
type PostedPost struct {
	ID            uint   `gorm:"primarykey"`
	TweetID       string `gorm:"uniqueIndex;size:32"`
	SourceTweetID string `gorm:"index;size:32"`
	AccountHandle string `gorm:"index;size:64"`
	Kind          string `gorm:"size:16"` // quote or original
	TemplateID    string `gorm:"size:32"`
	Text          string
	Score         float64
	PostedAt      time.Time `gorm:"index"`
	CreatedAt     time.Time
}

// MetricSnapshot is one engagement reading for a posted tweet
type MetricSnapshot struct {
	ID          uint   `gorm:"primarykey"`
	TweetID     string `gorm:"index;size:32"`
	Likes       int
	Retweets    int
	Replies     int
	Quotes      int
	Impressions int
	CollectedAt time.Time `gorm:"index"`
	CreatedAt   time.Time
}

// Archive defines the interface for the reporting store
type Archive interface {
	SavePosted(ctx context.Context, post *PostedPost) error
	GetPostedByTweetID(ctx context.Context, tweetID string) (*PostedPost, error)
	ListPosted(ctx context.Context, filter PostedFilter) ([]*PostedPost, error)
	CountPostedSince(ctx context.Context, since time.Time) (int64, error)

	SaveSnapshot(ctx context.Context, snap *MetricSnapshot) error
	LatestSnapshots(ctx context.Context, since time.Time) ([]*MetricSnapshot, error)
	SnapshotsForTweet(ctx context.Context, tweetID string) ([]*MetricSnapshot, error)

	Close() error
	Migrate() error
}

// PostedFilter defines filtering options for archived posts
type PostedFilter struct {
	AccountHandle string
	Kind          string
	Since         *time.Time
	Limit         int
	Offset        int
}

// DefaultPostedFilter returns a filter with sensible defaults
func DefaultPostedFilter() PostedFilter {
	return PostedFilter{Limit: 50}
}
