package queue

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/xpost-agent/internal/models"
	"github.com/xpost-agent/pkg/logger"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	return NewStore(dir, filepath.Join(dir, "feedback.json"), logger.Default())
}

func candidate(tweetID, author string) models.CandidateRecord {
	return models.CandidateRecord{
		TweetID:        tweetID,
		AuthorUsername: author,
		Text:           "Agents are eating software.",
		Likes:          1200,
		Source:         models.SourceAPI,
	}
}

func mustAdd(t *testing.T, s *Store, rec models.CandidateRecord) {
	t.Helper()
	added, err := s.Add(rec)
	if err != nil {
		t.Fatal(err)
	}
	if !added {
		t.Fatalf("candidate %s not added", rec.TweetID)
	}
}

func TestAddDeduplicates(t *testing.T) {
	s := newTestStore(t)
	mustAdd(t, s, candidate("111", "alice"))

	added, err := s.Add(candidate("111", "alice"))
	if err != nil {
		t.Fatal(err)
	}
	if added {
		t.Error("duplicate pending id should be rejected")
	}

	// ids posted earlier stay blocked too
	if _, err := s.Approve("111"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.SetGenerated("111", "コメント", "tpl", nil); err != nil {
		t.Fatal(err)
	}
	if _, err := s.MarkPosted("111", "900"); err != nil {
		t.Fatal(err)
	}
	added, err = s.Add(candidate("111", "alice"))
	if err != nil {
		t.Fatal(err)
	}
	if added {
		t.Error("processed id should be rejected")
	}
}

func TestAddForcesPendingAndTimestamps(t *testing.T) {
	s := newTestStore(t)
	rec := candidate("111", "alice")
	rec.Status = models.CandidateStatusApproved // callers cannot pre-approve
	mustAdd(t, s, rec)

	got, ok := s.Get("111")
	if !ok {
		t.Fatal("record missing")
	}
	if got.Status != models.CandidateStatusPending {
		t.Errorf("status = %s, want pending", got.Status)
	}
	if got.AddedAt.IsZero() || got.CollectedAt.IsZero() {
		t.Error("timestamps should be backfilled")
	}
}

func TestApproveAndSkipTransitions(t *testing.T) {
	s := newTestStore(t)
	mustAdd(t, s, candidate("111", "alice"))
	mustAdd(t, s, candidate("222", "bob"))

	if ok, _ := s.Approve("111"); !ok {
		t.Fatal("approve failed")
	}
	if ok, _ := s.Skip("222", models.SkipReasonTopicMismatch, "テーマ外"); !ok {
		t.Fatal("skip failed")
	}
	if ok, _ := s.Approve("999"); ok {
		t.Error("unknown id should return false")
	}

	// a skipped record can be re-approved, which clears the reason
	if ok, _ := s.Approve("222"); !ok {
		t.Fatal("re-approve failed")
	}
	got, _ := s.Get("222")
	if got.Status != models.CandidateStatusApproved || got.SkipReason != "" {
		t.Errorf("re-approved record = %+v", got)
	}
}

func TestGeneratedPartition(t *testing.T) {
	s := newTestStore(t)
	mustAdd(t, s, candidate("111", "alice"))
	mustAdd(t, s, candidate("222", "bob"))
	s.Approve("111")
	s.Approve("222")

	if _, err := s.SetGenerated("111", "生成コメント", "contrarian", &models.GeneratedScore{Total: 7, Rank: "A"}); err != nil {
		t.Fatal(err)
	}

	if got := s.Approved(); len(got) != 1 || got[0].TweetID != "222" {
		t.Errorf("Approved() = %+v", got)
	}
	if got := s.Generated(); len(got) != 1 || got[0].TweetID != "111" {
		t.Errorf("Generated() = %+v", got)
	}
	if got := s.Generated()[0]; got.Score == nil || got.Score.Total != 7 {
		t.Errorf("score not persisted: %+v", got.Score)
	}
}

func TestMarkPostedMovesToProcessed(t *testing.T) {
	s := newTestStore(t)
	mustAdd(t, s, candidate("111", "alice"))
	s.Approve("111")
	s.SetGenerated("111", "生成コメント", "tpl", nil)

	ok, err := s.MarkPosted("111", "900")
	if err != nil || !ok {
		t.Fatalf("MarkPosted = %v, %v", ok, err)
	}

	if _, found := s.Get("111"); found {
		t.Error("posted record should leave the pending store")
	}
	processed := s.Processed()
	if len(processed) != 1 || processed[0].PostedTweetID != "900" || processed[0].PostedAt == nil {
		t.Errorf("processed = %+v", processed)
	}
	if !s.TodaySourceUsed("alice") {
		t.Error("alice should count as used today")
	}
	if s.TodaySourceUsed("bob") {
		t.Error("bob was never posted")
	}
	if s.TodayPostedCount() != 1 {
		t.Errorf("TodayPostedCount = %d", s.TodayPostedCount())
	}
}

func TestStats(t *testing.T) {
	s := newTestStore(t)
	mustAdd(t, s, candidate("1", "a"))
	mustAdd(t, s, candidate("2", "b"))
	mustAdd(t, s, candidate("3", "c"))
	s.Approve("2")
	s.Approve("3")
	s.SetGenerated("3", "text", "tpl", nil)
	mustAdd(t, s, candidate("4", "d"))
	s.Skip("4", models.SkipReasonLowQuality, "")

	stats := s.Stats()
	if stats.Pending != 1 || stats.Approved != 2 || stats.Generated != 1 || stats.Skipped != 1 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestFeedbackAggregation(t *testing.T) {
	s := newTestStore(t)
	rec := candidate("111", "alice")
	rec.MatchedKeywords = []string{"agent"}
	mustAdd(t, s, rec)
	mustAdd(t, s, candidate("222", "bob"))

	s.Approve("111")
	s.Skip("222", models.SkipReasonOffBrand, "")

	stats := s.FeedbackStats()
	if stats.Total != 2 || stats.Approved != 1 || stats.Skipped != 1 {
		t.Fatalf("stats = %+v", stats)
	}
	if stats.ByKeyword["agent"].Approved != 1 {
		t.Errorf("keyword counter = %+v", stats.ByKeyword)
	}
	if stats.ByReason[models.SkipReasonOffBrand] != 1 {
		t.Errorf("reason counter = %+v", stats.ByReason)
	}
}

func TestCleanupRemovesOldProcessed(t *testing.T) {
	s := newTestStore(t)
	mustAdd(t, s, candidate("111", "alice"))
	s.Approve("111")
	s.MarkPosted("111", "900")

	// age the record past the retention window on disk
	processed := s.Processed()
	old := time.Now().AddDate(0, 0, -40)
	processed[0].PostedAt = &old
	if err := saveJSON(s.processedPath(), processed); err != nil {
		t.Fatal(err)
	}

	removed, err := s.Cleanup(30)
	if err != nil {
		t.Fatal(err)
	}
	if removed != 1 || len(s.Processed()) != 0 {
		t.Errorf("removed = %d, remaining = %d", removed, len(s.Processed()))
	}
}

func TestLoadFallsBackToBackup(t *testing.T) {
	s := newTestStore(t)
	mustAdd(t, s, candidate("111", "alice"))
	mustAdd(t, s, candidate("222", "bob")) // second save creates the .bak

	// corrupt the live file; the previous generation should still load
	if err := os.WriteFile(s.pendingPath(), []byte("{broken"), 0o644); err != nil {
		t.Fatal(err)
	}
	records := s.AllPending()
	if len(records) != 1 || records[0].TweetID != "111" {
		t.Errorf("backup fallback = %+v", records)
	}
}
