// Package metrics collects engagement data for the account's recent posts
// and aggregates it into daily and weekly summaries.
package metrics

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/xpost-agent/internal/models"
	"github.com/xpost-agent/internal/twitter"
	"github.com/xpost-agent/pkg/logger"
)

const maxCollect = 50

// RecentLister returns the account's latest posts
type RecentLister interface {
	RecentTweets(ctx context.Context, maxResults int) ([]twitter.RecentTweet, error)
}

// MetricsFetcher looks up one tweet's public metrics
type MetricsFetcher interface {
	TweetMetrics(ctx context.Context, tweetID string) (*twitter.Tweet, error)
}

// Collector pulls engagement numbers for the account's own posts
type Collector struct {
	lister  RecentLister
	fetcher MetricsFetcher
	log     *logger.Logger
	now     func() time.Time
}

func NewCollector(lister RecentLister, fetcher MetricsFetcher, log *logger.Logger) *Collector {
	return &Collector{
		lister:  lister,
		fetcher: fetcher,
		log:     log.WithComponent("metrics"),
		now:     time.Now,
	}
}

// CollectRecent fetches metrics for roughly the last N days of posts.
// Individual fetch failures are logged and skipped.
func (c *Collector) CollectRecent(ctx context.Context, days int) ([]models.PostMetrics, error) {
	limit := days * 3
	if limit > maxCollect {
		limit = maxCollect
	}
	tweets, err := c.lister.RecentTweets(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent tweets: %w", err)
	}

	var results []models.PostMetrics
	for _, t := range tweets {
		detail, err := c.fetcher.TweetMetrics(ctx, t.ID)
		if err != nil {
			c.log.Warn().Err(err).Str("tweet_id", t.ID).Msg("Metrics fetch failed, skipping tweet")
			continue
		}
		results = append(results, models.PostMetrics{
			TweetID:     t.ID,
			Text:        truncateRunes(t.Text, 100),
			CreatedAt:   t.CreatedAt.Format(time.RFC3339),
			Likes:       detail.Likes,
			Retweets:    detail.Retweets,
			Replies:     detail.Replies,
			Quotes:      detail.Quotes,
			Impressions: detail.Impressions,
			CollectedAt: c.now(),
		})
	}
	return results, nil
}

// Save writes a metrics snapshot to <dir>/metrics_<date>_<account>.json
func (c *Collector) Save(metrics []models.PostMetrics, outputDir, accountID string) (string, error) {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}
	data, err := json.MarshalIndent(metrics, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal metrics: %w", err)
	}
	path := filepath.Join(outputDir, fmt.Sprintf("metrics_%s_%s.json", c.now().Format("2006-01-02"), accountID))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write metrics: %w", err)
	}
	return path, nil
}

// Summarize aggregates a metrics window. An empty window yields a zero summary.
func Summarize(metrics []models.PostMetrics) models.MetricSummary {
	if len(metrics) == 0 {
		return models.MetricSummary{}
	}

	var summary models.MetricSummary
	summary.PostCount = len(metrics)

	best := metrics[0]
	for _, m := range metrics {
		summary.TotalLikes += m.Likes
		summary.TotalRetweets += m.Retweets
		summary.TotalReplies += m.Replies
		summary.TotalImpressions += m.Impressions
		if m.Engagement() > best.Engagement() {
			best = m
		}
	}

	count := float64(summary.PostCount)
	summary.AvgLikes = round1(float64(summary.TotalLikes) / count)
	summary.AvgRetweets = round1(float64(summary.TotalRetweets) / count)
	summary.AvgReplies = round1(float64(summary.TotalReplies) / count)
	if summary.TotalImpressions > 0 {
		rate := float64(summary.TotalLikes+summary.TotalRetweets+summary.TotalReplies) /
			float64(summary.TotalImpressions) * 100
		summary.EngagementRate = math.Round(rate*100) / 100
	}
	summary.BestTweet = truncateRunes(best.Text, 80)
	summary.BestLikes = best.Likes
	return summary
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

func truncateRunes(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}
