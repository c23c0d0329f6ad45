package metrics

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/xpost-agent/internal/models"
	"github.com/xpost-agent/internal/twitter"
	"github.com/xpost-agent/pkg/logger"
)

type fakeLister struct {
	tweets []twitter.RecentTweet
}

func (f *fakeLister) RecentTweets(ctx context.Context, maxResults int) ([]twitter.RecentTweet, error) {
	if maxResults < len(f.tweets) {
		return f.tweets[:maxResults], nil
	}
	return f.tweets, nil
}

type fakeFetcher struct {
	metrics map[string]*twitter.Tweet
}

func (f *fakeFetcher) TweetMetrics(ctx context.Context, tweetID string) (*twitter.Tweet, error) {
	t, ok := f.metrics[tweetID]
	if !ok {
		return nil, errors.New("not found")
	}
	return t, nil
}

func TestCollectRecentSkipsFailedFetches(t *testing.T) {
	lister := &fakeLister{tweets: []twitter.RecentTweet{
		{ID: "1", Text: "first post", CreatedAt: time.Now()},
		{ID: "2", Text: "second post", CreatedAt: time.Now()},
		{ID: "3", Text: "third post", CreatedAt: time.Now()},
	}}
	fetcher := &fakeFetcher{metrics: map[string]*twitter.Tweet{
		"1": {ID: "1", Likes: 10, Retweets: 2, Impressions: 500},
		"3": {ID: "3", Likes: 5, Retweets: 1, Impressions: 200},
	}}

	c := NewCollector(lister, fetcher, logger.Default())
	got, err := c.CollectRecent(context.Background(), 7)
	if err != nil {
		t.Fatalf("CollectRecent: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("collected = %d, want 2", len(got))
	}
	if got[0].TweetID != "1" || got[0].Likes != 10 {
		t.Errorf("unexpected first entry: %+v", got[0])
	}
}

func TestSummarize(t *testing.T) {
	metrics := []models.PostMetrics{
		{TweetID: "1", Text: "平均的な投稿", Likes: 10, Retweets: 2, Replies: 1, Impressions: 1000},
		{TweetID: "2", Text: "バズった投稿", Likes: 40, Retweets: 10, Replies: 5, Impressions: 3000},
		{TweetID: "3", Text: "静かな投稿", Likes: 4, Retweets: 0, Replies: 0, Impressions: 500},
	}

	s := Summarize(metrics)
	if s.PostCount != 3 {
		t.Errorf("PostCount = %d, want 3", s.PostCount)
	}
	if s.TotalLikes != 54 || s.TotalRetweets != 12 || s.TotalReplies != 6 {
		t.Errorf("totals = %d/%d/%d", s.TotalLikes, s.TotalRetweets, s.TotalReplies)
	}
	if s.AvgLikes != 18.0 {
		t.Errorf("AvgLikes = %v, want 18.0", s.AvgLikes)
	}
	// (54+12+6)/4500*100 = 1.6
	if s.EngagementRate != 1.6 {
		t.Errorf("EngagementRate = %v, want 1.6", s.EngagementRate)
	}
	// Tweet 2 wins on likes + 3*retweets
	if s.BestTweet != "バズった投稿" || s.BestLikes != 40 {
		t.Errorf("best = %q (%d likes)", s.BestTweet, s.BestLikes)
	}
}

func TestSummarizeEmpty(t *testing.T) {
	s := Summarize(nil)
	if s.PostCount != 0 || s.EngagementRate != 0 {
		t.Errorf("empty summary = %+v", s)
	}
}

func TestSaveWritesSnapshot(t *testing.T) {
	c := NewCollector(nil, nil, logger.Default())
	c.now = func() time.Time { return time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC) }

	dir := t.TempDir()
	path, err := c.Save([]models.PostMetrics{{TweetID: "1", Likes: 3}}, dir, "acct1")
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	want := filepath.Join(dir, "metrics_2026-03-10_acct1.json")
	if path != want {
		t.Errorf("path = %s, want %s", path, want)
	}
}
