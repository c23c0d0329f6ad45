package sqlite

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/xpost-agent/internal/storage"
)

// Archive implements storage.Archive using SQLite
type Archive struct {
	db *gorm.DB
}

// New creates a new SQLite archive
func New(dsn string) (*Archive, error) {
	dir := filepath.Dir(dsn)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	return &Archive{db: db}, nil
}

// Migrate runs database migrations
func (a *Archive) Migrate() error {
	return a.db.AutoMigrate(
		&storage.PostedPost{},
		&storage.MetricSnapshot{},
	)
}

// Close closes the database connection
func (a *Archive) Close() error {
	sqlDB, err := a.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Posted operations

func (a *Archive) SavePosted(ctx context.Context, post *storage.PostedPost) error {
	// Upsert on tweet ID so a retried publish never duplicates a row
	var existing storage.PostedPost
	if err := a.db.WithContext(ctx).Where("tweet_id = ?", post.TweetID).First(&existing).Error; err == nil {
		post.ID = existing.ID
	}
	return a.db.WithContext(ctx).Save(post).Error
}

func (a *Archive) GetPostedByTweetID(ctx context.Context, tweetID string) (*storage.PostedPost, error) {
	var post storage.PostedPost
	if err := a.db.WithContext(ctx).Where("tweet_id = ?", tweetID).First(&post).Error; err != nil {
		return nil, err
	}
	return &post, nil
}

func (a *Archive) ListPosted(ctx context.Context, filter storage.PostedFilter) ([]*storage.PostedPost, error) {
	var posts []*storage.PostedPost
	query := a.db.WithContext(ctx).Model(&storage.PostedPost{})

	if filter.AccountHandle != "" {
		query = query.Where("account_handle = ?", filter.AccountHandle)
	}
	if filter.Kind != "" {
		query = query.Where("kind = ?", filter.Kind)
	}
	if filter.Since != nil {
		query = query.Where("posted_at >= ?", *filter.Since)
	}

	query = query.Order("posted_at DESC")
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		query = query.Offset(filter.Offset)
	}

	if err := query.Find(&posts).Error; err != nil {
		return nil, err
	}
	return posts, nil
}

func (a *Archive) CountPostedSince(ctx context.Context, since time.Time) (int64, error) {
	var count int64
	err := a.db.WithContext(ctx).
		Model(&storage.PostedPost{}).
		Where("posted_at >= ?", since).
		Count(&count).Error
	return count, err
}

// Snapshot operations

func (a *Archive) SaveSnapshot(ctx context.Context, snap *storage.MetricSnapshot) error {
	return a.db.WithContext(ctx).Create(snap).Error
}

// LatestSnapshots returns the most recent reading per tweet collected since
// the given time.
func (a *Archive) LatestSnapshots(ctx context.Context, since time.Time) ([]*storage.MetricSnapshot, error) {
	var snaps []*storage.MetricSnapshot
	sub := a.db.Model(&storage.MetricSnapshot{}).
		Select("tweet_id, MAX(collected_at) AS collected_at").
		Where("collected_at >= ?", since).
		Group("tweet_id")

	err := a.db.WithContext(ctx).
		Model(&storage.MetricSnapshot{}).
		Joins("JOIN (?) latest ON metric_snapshots.tweet_id = latest.tweet_id AND metric_snapshots.collected_at = latest.collected_at", sub).
		Order("metric_snapshots.collected_at DESC").
		Find(&snaps).Error
	if err != nil {
		return nil, err
	}
	return snaps, nil
}

func (a *Archive) SnapshotsForTweet(ctx context.Context, tweetID string) ([]*storage.MetricSnapshot, error) {
	var snaps []*storage.MetricSnapshot
	if err := a.db.WithContext(ctx).
		Where("tweet_id = ?", tweetID).
		Order("collected_at ASC").
		Find(&snaps).Error; err != nil {
		return nil, err
	}
	return snaps, nil
}
