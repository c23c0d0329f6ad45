package publisher

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/xpost-agent/internal/config"
	"github.com/xpost-agent/internal/generate"
	"github.com/xpost-agent/internal/models"
	"github.com/xpost-agent/internal/notify"
	"github.com/xpost-agent/internal/queue"
	"github.com/xpost-agent/internal/safety"
	"github.com/xpost-agent/internal/storage"
	"github.com/xpost-agent/internal/twitter"
	"github.com/xpost-agent/pkg/logger"
)

type fakePoster struct {
	tweets     []string
	quotes     []string
	quoteIDs   []string
	failPost   bool
	failVerify bool
	seq        int
}

func (f *fakePoster) VerifyCredentials(ctx context.Context) (*twitter.AccountInfo, error) {
	if f.failVerify {
		return nil, errors.New("401 unauthorized")
	}
	return &twitter.AccountInfo{Username: "testbot"}, nil
}

func (f *fakePoster) PostTweet(ctx context.Context, text string) (*twitter.PostedTweet, error) {
	if f.failPost {
		return nil, errors.New("503 service unavailable")
	}
	f.seq++
	f.tweets = append(f.tweets, text)
	return &twitter.PostedTweet{ID: fmt.Sprintf("posted_%d", f.seq), Text: text}, nil
}

func (f *fakePoster) PostQuote(ctx context.Context, text, quoteTweetID, quoteURL string) (*twitter.PostedTweet, error) {
	if f.failPost {
		return nil, errors.New("503 service unavailable")
	}
	f.seq++
	f.quotes = append(f.quotes, text)
	f.quoteIDs = append(f.quoteIDs, quoteTweetID)
	return &twitter.PostedTweet{ID: fmt.Sprintf("posted_%d", f.seq), Text: text}, nil
}

type fakeArchive struct {
	saved []*storage.PostedPost
}

func (f *fakeArchive) SavePosted(ctx context.Context, post *storage.PostedPost) error {
	f.saved = append(f.saved, post)
	return nil
}

func (f *fakeArchive) GetPostedByTweetID(ctx context.Context, tweetID string) (*storage.PostedPost, error) {
	return nil, nil
}

func (f *fakeArchive) ListPosted(ctx context.Context, filter storage.PostedFilter) ([]*storage.PostedPost, error) {
	return nil, nil
}

func (f *fakeArchive) CountPostedSince(ctx context.Context, since time.Time) (int64, error) {
	return int64(len(f.saved)), nil
}

func (f *fakeArchive) SaveSnapshot(ctx context.Context, snap *storage.MetricSnapshot) error {
	return nil
}

func (f *fakeArchive) LatestSnapshots(ctx context.Context, since time.Time) ([]*storage.MetricSnapshot, error) {
	return nil, nil
}

func (f *fakeArchive) SnapshotsForTweet(ctx context.Context, tweetID string) ([]*storage.MetricSnapshot, error) {
	return nil, nil
}

func (f *fakeArchive) Migrate() error { return nil }
func (f *fakeArchive) Close() error   { return nil }

const quoteText = "この視点は見落としがちだけど本質的。自分も設計の初期段階でここを曖昧にして後から苦労した経験がある。"

func newTestAgent(t *testing.T, mode string) (*Agent, *fakePoster, *fakeArchive, *queue.Store, string) {
	t.Helper()
	dir := t.TempDir()
	log := logger.Default()

	q := queue.NewStore(dir, filepath.Join(dir, "feedback.jsonl"), log)
	poster := &fakePoster{}
	archive := &fakeArchive{}
	gate := safety.NewGate(safety.DefaultRules(), log)
	notifier := notify.NewNotifier("", nil, log)

	outputDir := filepath.Join(dir, "output")
	agent := NewAgent(q, poster, gate, notifier, archive, mode,
		config.PostingConfig{DailyLimit: 10, AutoPostMinScore: 6, ToleranceMinutes: 30},
		config.AccountConfig{Name: "テストアカウント", Handle: "testbot"},
		outputDir, log)
	return agent, poster, archive, q, outputDir
}

func addGenerated(t *testing.T, q *queue.Store, tweetID, author string, total int) {
	t.Helper()
	if _, err := q.Add(models.CandidateRecord{
		TweetID:        tweetID,
		AuthorUsername: author,
		Text:           "Source tweet about agent design tradeoffs.",
		Likes:          900,
	}); err != nil {
		t.Fatal(err)
	}
	if _, err := q.Approve(tweetID); err != nil {
		t.Fatal(err)
	}
	if _, err := q.SetGenerated(tweetID, quoteText, "empathy_experience", &models.GeneratedScore{Total: total, Rank: "A"}); err != nil {
		t.Fatal(err)
	}
}

func TestPublishQuotesPostsAndMarks(t *testing.T) {
	agent, poster, archive, q, _ := newTestAgent(t, config.ModeFullAuto)
	addGenerated(t, q, "111", "alice", 8)
	addGenerated(t, q, "222", "bob", 7)

	res, err := agent.PublishQuotes(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.Posted != 2 {
		t.Fatalf("posted = %d, want 2", res.Posted)
	}
	if len(poster.quoteIDs) != 2 || poster.quoteIDs[0] != "111" {
		t.Errorf("quote IDs = %v", poster.quoteIDs)
	}
	if len(q.Generated()) != 0 {
		t.Error("generated queue should be drained")
	}
	processed := q.Processed()
	if len(processed) != 2 || processed[0].PostedTweetID == "" {
		t.Errorf("processed = %+v", processed)
	}
	if len(archive.saved) != 2 || archive.saved[0].Kind != "quote" || archive.saved[0].SourceTweetID != "111" {
		t.Errorf("archive = %+v", archive.saved)
	}
}

func TestPublishQuotesSemiAutoScoreGate(t *testing.T) {
	agent, poster, _, q, _ := newTestAgent(t, config.ModeSemiAuto)
	addGenerated(t, q, "111", "alice", 4) // below threshold 6
	addGenerated(t, q, "222", "bob", 9)

	res, err := agent.PublishQuotes(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.Posted != 1 || res.Held != 1 {
		t.Fatalf("posted=%d held=%d, want 1/1", res.Posted, res.Held)
	}
	if poster.quoteIDs[0] != "222" {
		t.Errorf("posted wrong candidate: %v", poster.quoteIDs)
	}
}

func TestPublishQuotesManualModeHoldsAll(t *testing.T) {
	agent, poster, _, q, _ := newTestAgent(t, config.ModeManualApproval)
	addGenerated(t, q, "111", "alice", 10)

	res, err := agent.PublishQuotes(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.Posted != 0 || res.Held != 1 {
		t.Fatalf("posted=%d held=%d, want 0/1", res.Posted, res.Held)
	}
	if len(poster.quotes) != 0 {
		t.Error("manual mode must not post")
	}
}

func TestPublishQuotesDailyLimit(t *testing.T) {
	agent, poster, _, q, _ := newTestAgent(t, config.ModeFullAuto)
	agent.posting.DailyLimit = 1
	addGenerated(t, q, "111", "alice", 8)
	addGenerated(t, q, "222", "bob", 8)

	res, err := agent.PublishQuotes(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.Posted != 1 || len(poster.quotes) != 1 {
		t.Fatalf("posted = %d, want 1", res.Posted)
	}
}

func TestPublishQuotesVerifyFailure(t *testing.T) {
	agent, poster, _, q, _ := newTestAgent(t, config.ModeFullAuto)
	poster.failVerify = true
	addGenerated(t, q, "111", "alice", 8)

	if _, err := agent.PublishQuotes(context.Background()); err == nil {
		t.Fatal("expected verify error")
	}
	if len(q.Generated()) != 1 {
		t.Error("queue must be untouched on verify failure")
	}
}

func TestPublishQuotesPostErrorKeepsCandidate(t *testing.T) {
	agent, poster, _, q, _ := newTestAgent(t, config.ModeFullAuto)
	poster.failPost = true
	addGenerated(t, q, "111", "alice", 8)

	res, err := agent.PublishQuotes(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.Posted != 0 || len(res.Errors) != 1 {
		t.Fatalf("posted=%d errors=%v", res.Posted, res.Errors)
	}
	if len(q.Generated()) != 1 {
		t.Error("failed candidate must stay in the queue")
	}
}

func writeDailyOutput(t *testing.T, outputDir, handle string, day time.Time, entries []generate.DailyEntry) {
	t.Helper()
	results := make([]generate.OriginalResult, 0, len(entries))
	for _, e := range entries {
		results = append(results, generate.OriginalResult{
			Text:  e.Text,
			Slot:  e.Slot,
			Score: e.Score,
		})
	}
	if _, err := generate.SaveDailyOutput(results, outputDir, handle, day); err != nil {
		t.Fatal(err)
	}
}

func TestPublishOriginalsPostsDueSlot(t *testing.T) {
	agent, poster, archive, _, outputDir := newTestAgent(t, config.ModeFullAuto)
	now := time.Date(2026, 8, 26, 12, 10, 0, 0, time.Local)
	agent.now = func() time.Time { return now }

	writeDailyOutput(t, outputDir, "testbot", now, []generate.DailyEntry{
		{Text: okOriginal("朝"), Slot: "morning", Score: models.PostScore{Total: 8}},
		{Text: okOriginal("昼"), Slot: "noon", Score: models.PostScore{Total: 8}},
		{Text: okOriginal("夜"), Slot: "evening", Score: models.PostScore{Total: 8}},
	})

	res, err := agent.PublishOriginals(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	// only the noon slot is within tolerance at 12:10
	if res.Posted != 1 || len(poster.tweets) != 1 {
		t.Fatalf("posted = %d, want 1", res.Posted)
	}
	if len(archive.saved) != 1 || archive.saved[0].Kind != "original" {
		t.Errorf("archive = %+v", archive.saved)
	}

	entries, err := generate.LoadDailyOutput(outputDir, "testbot", now)
	if err != nil {
		t.Fatal(err)
	}
	var noon *generate.DailyEntry
	for i := range entries {
		if entries[i].Slot == "noon" {
			noon = &entries[i]
		}
	}
	if noon == nil || !noon.Posted || noon.PostedTweetID == "" {
		t.Errorf("noon entry not marked posted: %+v", noon)
	}
}

func TestPublishOriginalsSkipsAlreadyPosted(t *testing.T) {
	agent, poster, _, _, outputDir := newTestAgent(t, config.ModeFullAuto)
	now := time.Date(2026, 8, 26, 12, 0, 0, 0, time.Local)
	agent.now = func() time.Time { return now }

	writeDailyOutput(t, outputDir, "testbot", now, []generate.DailyEntry{
		{Text: okOriginal("昼"), Slot: "noon", Score: models.PostScore{Total: 8}},
	})
	if err := generate.MarkOutputPosted(outputDir, "testbot", now, "noon", "prev_id", now.Add(-time.Hour)); err != nil {
		t.Fatal(err)
	}

	res, err := agent.PublishOriginals(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.Posted != 0 || len(poster.tweets) != 0 {
		t.Fatal("already-posted slot must not repost")
	}
}

func TestPublishOriginalsNoOutputFile(t *testing.T) {
	agent, _, _, _, _ := newTestAgent(t, config.ModeFullAuto)
	res, err := agent.PublishOriginals(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.Posted != 0 || res.Checked != 0 {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestSlotDue(t *testing.T) {
	agent, _, _, _, _ := newTestAgent(t, config.ModeFullAuto)
	cases := []struct {
		hour, min int
		slot      string
		want      bool
	}{
		{7, 15, "morning", true},
		{8, 0, "morning", false},
		{12, 29, "noon", true},
		{21, 0, "evening", true},
		{20, 0, "evening", false},
		{12, 0, "unknown", false},
	}
	for _, c := range cases {
		now := time.Date(2026, 8, 26, c.hour, c.min, 0, 0, time.Local)
		agent.now = func() time.Time { return now }
		if got := agent.slotDue(c.slot); got != c.want {
			t.Errorf("slotDue(%s) at %02d:%02d = %v, want %v", c.slot, c.hour, c.min, got, c.want)
		}
	}
}

// okOriginal builds a body inside the original-post length band
func okOriginal(label string) string {
	return label + "の積み重ねがすべて。小さなアウトプットを続けることが一番の近道だと思う。今日も一歩ずつ前に進んでいく。"
}
