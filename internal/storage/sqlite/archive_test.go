package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/xpost-agent/internal/storage"
)

func newTestArchive(t *testing.T) *Archive {
	t.Helper()
	a, err := New(filepath.Join(t.TempDir(), "archive.db"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := a.Migrate(); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	t.Cleanup(func() { a.Close() })
	return a
}

func TestSavePostedUpsertsOnTweetID(t *testing.T) {
	a := newTestArchive(t)
	ctx := context.Background()

	post := &storage.PostedPost{
		TweetID:       "1001",
		AccountHandle: "@account1",
		Kind:          "quote",
		Text:          "引用コメント",
		Score:         7.5,
		PostedAt:      time.Now(),
	}
	if err := a.SavePosted(ctx, post); err != nil {
		t.Fatalf("SavePosted: %v", err)
	}

	post2 := &storage.PostedPost{
		TweetID:       "1001",
		AccountHandle: "@account1",
		Kind:          "quote",
		Text:          "引用コメント改",
		Score:         8.0,
		PostedAt:      time.Now(),
	}
	if err := a.SavePosted(ctx, post2); err != nil {
		t.Fatalf("SavePosted retry: %v", err)
	}

	got, err := a.GetPostedByTweetID(ctx, "1001")
	if err != nil {
		t.Fatalf("GetPostedByTweetID: %v", err)
	}
	if got.Text != "引用コメント改" || got.Score != 8.0 {
		t.Errorf("got %+v", got)
	}

	count, err := a.CountPostedSince(ctx, time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("CountPostedSince: %v", err)
	}
	if count != 1 {
		t.Errorf("count = %d, want 1", count)
	}
}

func TestListPostedFilters(t *testing.T) {
	a := newTestArchive(t)
	ctx := context.Background()
	now := time.Now()

	for _, p := range []*storage.PostedPost{
		{TweetID: "1", AccountHandle: "@account1", Kind: "quote", PostedAt: now.Add(-48 * time.Hour)},
		{TweetID: "2", AccountHandle: "@account1", Kind: "original", PostedAt: now.Add(-2 * time.Hour)},
		{TweetID: "3", AccountHandle: "@account2", Kind: "original", PostedAt: now.Add(-1 * time.Hour)},
	} {
		if err := a.SavePosted(ctx, p); err != nil {
			t.Fatalf("SavePosted %s: %v", p.TweetID, err)
		}
	}

	since := now.Add(-24 * time.Hour)
	posts, err := a.ListPosted(ctx, storage.PostedFilter{AccountHandle: "@account1", Since: &since, Limit: 10})
	if err != nil {
		t.Fatalf("ListPosted: %v", err)
	}
	if len(posts) != 1 || posts[0].TweetID != "2" {
		t.Errorf("posts = %+v", posts)
	}

	originals, err := a.ListPosted(ctx, storage.PostedFilter{Kind: "original", Limit: 10})
	if err != nil {
		t.Fatalf("ListPosted kind: %v", err)
	}
	if len(originals) != 2 {
		t.Errorf("originals = %d, want 2", len(originals))
	}
	// Newest first
	if originals[0].TweetID != "3" {
		t.Errorf("order = %s first", originals[0].TweetID)
	}
}

func TestLatestSnapshotsPicksNewestPerTweet(t *testing.T) {
	a := newTestArchive(t)
	ctx := context.Background()
	now := time.Now()

	for _, s := range []*storage.MetricSnapshot{
		{TweetID: "1", Likes: 5, CollectedAt: now.Add(-48 * time.Hour)},
		{TweetID: "1", Likes: 20, CollectedAt: now.Add(-1 * time.Hour)},
		{TweetID: "2", Likes: 8, CollectedAt: now.Add(-2 * time.Hour)},
	} {
		if err := a.SaveSnapshot(ctx, s); err != nil {
			t.Fatalf("SaveSnapshot: %v", err)
		}
	}

	snaps, err := a.LatestSnapshots(ctx, now.Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("LatestSnapshots: %v", err)
	}
	if len(snaps) != 2 {
		t.Fatalf("snapshots = %d, want 2", len(snaps))
	}
	byTweet := map[string]int{}
	for _, s := range snaps {
		byTweet[s.TweetID] = s.Likes
	}
	if byTweet["1"] != 20 || byTweet["2"] != 8 {
		t.Errorf("latest = %v", byTweet)
	}

	history, err := a.SnapshotsForTweet(ctx, "1")
	if err != nil {
		t.Fatalf("SnapshotsForTweet: %v", err)
	}
	if len(history) != 2 || history[0].Likes != 5 {
		t.Errorf("history = %+v", history)
	}
}
