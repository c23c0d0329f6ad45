package firebase

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/xpost-agent/internal/models"
	"github.com/xpost-agent/internal/queue"
	"github.com/xpost-agent/internal/selection"
	"github.com/xpost-agent/pkg/logger"
)

type fakeBackend struct {
	decisions   []Decision
	preferences map[string]string
	dashboard   map[string]interface{}
	deleted     map[string][]string
}

func (f *fakeBackend) QueueDecisions(ctx context.Context, uid string) ([]Decision, error) {
	return f.decisions, nil
}

func (f *fakeBackend) MarkDecisionsProcessed(ctx context.Context, uid string, tweetIDs []string) (int, error) {
	if f.deleted == nil {
		f.deleted = map[string][]string{}
	}
	f.deleted[uid] = append(f.deleted[uid], tweetIDs...)
	return len(tweetIDs), nil
}

func (f *fakeBackend) SelectionPreferences(ctx context.Context, uid string) (map[string]string, error) {
	return f.preferences, nil
}

func (f *fakeBackend) UpdateDashboard(ctx context.Context, uid string, data map[string]interface{}) error {
	f.dashboard = data
	return nil
}

func newTestSync(t *testing.T) (*Sync, *fakeBackend, *queue.Store, *selection.PreferenceStore) {
	t.Helper()
	dir := t.TempDir()
	store := queue.NewStore(dir, filepath.Join(dir, "feedback.json"), logger.Default())
	prefs := selection.NewPreferenceStore(filepath.Join(dir, "preferences.json"), logger.Default())
	backend := &fakeBackend{}
	return NewSync(backend, store, prefs, logger.Default()), backend, store, prefs
}

func addCandidate(t *testing.T, store *queue.Store, tweetID string) {
	t.Helper()
	added, err := store.Add(models.CandidateRecord{
		TweetID:        tweetID,
		AuthorUsername: "someone",
		Text:           "candidate " + tweetID,
		Status:         models.CandidateStatusPending,
		AddedAt:        time.Now(),
	})
	if err != nil || !added {
		t.Fatalf("add %s: added=%v err=%v", tweetID, added, err)
	}
}

func TestSyncQueueDecisionsAppliesActions(t *testing.T) {
	sync, backend, store, _ := newTestSync(t)
	addCandidate(t, store, "111")
	addCandidate(t, store, "222")
	backend.decisions = []Decision{
		{TweetID: "111", UID: "user-a", Action: "approve"},
		{TweetID: "222", UID: "user-a", Action: "skip", SkipReason: "off_topic"},
	}

	result, err := sync.SyncQueueDecisions(context.Background(), "user-a")
	if err != nil {
		t.Fatalf("SyncQueueDecisions: %v", err)
	}
	if result.Approved != 1 || result.Skipped != 1 {
		t.Errorf("approved=%d skipped=%d", result.Approved, result.Skipped)
	}
	if result.Processed != 2 {
		t.Errorf("processed = %d, want 2", result.Processed)
	}
	if len(backend.deleted["user-a"]) != 2 {
		t.Errorf("deleted = %v", backend.deleted)
	}

	approved := store.Approved()
	if len(approved) != 1 || approved[0].TweetID != "111" {
		t.Errorf("approved queue = %+v", approved)
	}
	rec, ok := store.Get("222")
	if !ok || rec.Status != models.CandidateStatusSkipped || rec.SkipReason != "off_topic" {
		t.Errorf("skipped record = %+v", rec)
	}
}

func TestSyncQueueDecisionsUnknownAction(t *testing.T) {
	sync, backend, store, _ := newTestSync(t)
	addCandidate(t, store, "111")
	backend.decisions = []Decision{{TweetID: "111", UID: "user-a", Action: "promote"}}

	result, err := sync.SyncQueueDecisions(context.Background(), "user-a")
	if err != nil {
		t.Fatalf("SyncQueueDecisions: %v", err)
	}
	if result.Unknown != 1 {
		t.Errorf("unknown = %d, want 1", result.Unknown)
	}
	// Unknown actions stay in Firestore for a human to look at
	if len(backend.deleted) != 0 {
		t.Errorf("deleted = %v, want none", backend.deleted)
	}
}

func TestSyncQueueDecisionsMissingCandidate(t *testing.T) {
	sync, backend, _, _ := newTestSync(t)
	backend.decisions = []Decision{{TweetID: "999", UID: "user-a", Action: "approve"}}

	result, err := sync.SyncQueueDecisions(context.Background(), "user-a")
	if err != nil {
		t.Fatalf("SyncQueueDecisions: %v", err)
	}
	if result.Approved != 0 || len(result.Errors) != 1 {
		t.Errorf("approved=%d errors=%v", result.Approved, result.Errors)
	}
}

func TestSyncPreferencesOverlaysDocument(t *testing.T) {
	sync, backend, _, prefStore := newTestSync(t)
	backend.preferences = map[string]string{
		"weekly_focus":       "AIエージェント",
		"extra_keywords":     "langgraph, mcp",
		"min_likes_override": "300",
	}

	result, err := sync.SyncPreferences(context.Background(), "user-a")
	if err != nil {
		t.Fatalf("SyncPreferences: %v", err)
	}
	if !result.Found {
		t.Fatal("Found = false, want true")
	}
	if len(result.Updated) == 0 {
		t.Fatalf("no keys updated")
	}

	prefs := prefStore.Load()
	if prefs.WeeklyFocus.Directive != "AIエージェント" {
		t.Errorf("weekly focus = %q", prefs.WeeklyFocus.Directive)
	}
	if prefs.KeywordWeights["langgraph"] != 2.0 || prefs.KeywordWeights["mcp"] != 2.0 {
		t.Errorf("keywords = %v", prefs.KeywordWeights)
	}
	if prefs.ThresholdOverrides.MinLikes != 300 {
		t.Errorf("min likes = %d", prefs.ThresholdOverrides.MinLikes)
	}
	if prefs.UpdatedBy != "firebase_sync" {
		t.Errorf("updated_by = %q", prefs.UpdatedBy)
	}
}

func TestSyncPreferencesNoDocument(t *testing.T) {
	sync, _, _, _ := newTestSync(t)

	result, err := sync.SyncPreferences(context.Background(), "user-a")
	if err != nil {
		t.Fatalf("SyncPreferences: %v", err)
	}
	if result.Found {
		t.Error("Found = true for missing document")
	}
}

func TestPushDashboardFullDocument(t *testing.T) {
	sync, backend, store, _ := newTestSync(t)
	addCandidate(t, store, "111")
	addCandidate(t, store, "222")
	if _, err := store.Approve("222"); err != nil {
		t.Fatal(err)
	}
	addCandidate(t, store, "333")
	if _, err := store.Approve("333"); err != nil {
		t.Fatal(err)
	}
	if _, err := store.SetGenerated("333", "ぶっちゃけ最高。\n使ってみてほしい。", "empathy_hook", nil); err != nil {
		t.Fatal(err)
	}
	if _, err := store.MarkPosted("333", "900"); err != nil {
		t.Fatal(err)
	}

	metricsDir := t.TempDir()
	snapshot := `[{"tweet_id":"900","text":"ぶっちゃけ最高。","likes":12,"retweets":3}]`
	if err := os.WriteFile(filepath.Join(metricsDir, "metrics_2026-08-25_acct.json"), []byte(snapshot), 0o644); err != nil {
		t.Fatal(err)
	}
	sync.SetMetricsDir(metricsDir)

	if err := sync.PushDashboard(context.Background(), "user-a"); err != nil {
		t.Fatalf("PushDashboard: %v", err)
	}
	doc := backend.dashboard
	if doc == nil {
		t.Fatal("dashboard not pushed")
	}
	if _, ok := doc["updated_at"].(time.Time); !ok {
		t.Errorf("updated_at = %T", doc["updated_at"])
	}

	stats, ok := doc["stats"].(map[string]interface{})
	if !ok {
		t.Fatalf("stats = %T", doc["stats"])
	}
	if stats["pending"] != float64(1) || stats["approved"] != float64(1) || stats["posted"] != float64(1) {
		t.Errorf("stats = %v", stats)
	}

	queueItems, ok := doc["queue"].([]interface{})
	if !ok || len(queueItems) != 2 {
		t.Fatalf("queue = %v", doc["queue"])
	}
	first, ok := queueItems[0].(map[string]interface{})
	if !ok || first["status"] == nil {
		t.Errorf("queue item lost curation state: %v", queueItems[0])
	}

	recent, ok := doc["recent_posted"].([]interface{})
	if !ok || len(recent) != 1 {
		t.Fatalf("recent_posted = %v", doc["recent_posted"])
	}
	if rec := recent[0].(map[string]interface{}); rec["tweet_id"] != "333" || rec["posted_tweet_id"] != "900" {
		t.Errorf("recent_posted[0] = %v", recent[0])
	}

	metricEntries, ok := doc["metrics"].([]interface{})
	if !ok || len(metricEntries) != 1 {
		t.Fatalf("metrics = %v", doc["metrics"])
	}

	prefs, ok := doc["preferences"].(map[string]interface{})
	if !ok {
		t.Fatalf("preferences = %T", doc["preferences"])
	}
	if _, ok := prefs["keyword_weights"]; !ok {
		t.Errorf("preferences missing keyword_weights: %v", prefs)
	}

	if _, ok := doc["pdca_insights"]; !ok {
		t.Error("pdca_insights missing")
	}
}

func TestRecentPostedCapsAndOrders(t *testing.T) {
	now := time.Now()
	var records []models.CandidateRecord
	for i := 0; i < 5; i++ {
		at := now.Add(time.Duration(-i) * time.Hour)
		records = append(records, models.CandidateRecord{
			TweetID:  string(rune('a' + i)),
			PostedAt: &at,
		})
	}
	// oldest first on input so the sort has to work
	for i, j := 0, len(records)-1; i < j; i, j = i+1, j-1 {
		records[i], records[j] = records[j], records[i]
	}

	got := recentPosted(records, 3)
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	if got[0].TweetID != "a" || got[1].TweetID != "b" || got[2].TweetID != "c" {
		t.Errorf("order = %s %s %s", got[0].TweetID, got[1].TweetID, got[2].TweetID)
	}
}

func TestRecentMetricsKeepsNewestFiles(t *testing.T) {
	sync, _, _, _ := newTestSync(t)
	dir := t.TempDir()
	for i := 10; i <= 18; i++ {
		name := fmt.Sprintf("metrics_2026-08-%d_acct.json", i)
		body := fmt.Sprintf(`[{"tweet_id":"%d"}]`, i)
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	sync.SetMetricsDir(dir)

	got := sync.recentMetrics(7)
	if len(got) != 7 {
		t.Fatalf("entries = %d, want 7", len(got))
	}
	// the two oldest files fall off
	for _, m := range got {
		if m.TweetID == "10" || m.TweetID == "11" {
			t.Errorf("stale snapshot included: %s", m.TweetID)
		}
	}
}
