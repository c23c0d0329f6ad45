package pdca

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/xpost-agent/internal/models"
	"github.com/xpost-agent/internal/selection"
	"github.com/xpost-agent/pkg/logger"
)

func newTestUpdater(t *testing.T) (*Updater, *selection.PreferenceStore) {
	t.Helper()
	store := selection.NewPreferenceStore(filepath.Join(t.TempDir(), "preferences.json"), logger.Default())
	return NewUpdater(store, logger.Default()), store
}

func statsWith(total int) models.FeedbackStats {
	return models.FeedbackStats{
		Total:     total,
		Approved:  total / 2,
		Skipped:   total - total/2,
		BySource:  map[string]models.DecisionCount{},
		ByTopic:   map[string]models.DecisionCount{},
		ByKeyword: map[string]models.DecisionCount{},
		ByReason:  map[string]int{},
	}
}

func TestAnalyzeClassifiesByApprovalRate(t *testing.T) {
	u, _ := newTestUpdater(t)

	stats := statsWith(40)
	stats.BySource["goodsource"] = models.DecisionCount{Approved: 9, Skipped: 1}
	stats.BySource["badsource"] = models.DecisionCount{Approved: 2, Skipped: 8}
	stats.BySource["middling"] = models.DecisionCount{Approved: 5, Skipped: 5}
	stats.BySource["toofew"] = models.DecisionCount{Approved: 5, Skipped: 0}

	a := u.Analyze(stats)
	if len(a.AccountPromote) != 1 || a.AccountPromote[0].Name != "goodsource" {
		t.Errorf("promote = %+v", a.AccountPromote)
	}
	if len(a.AccountDemote) != 1 || a.AccountDemote[0].Name != "badsource" {
		t.Errorf("demote = %+v", a.AccountDemote)
	}
}

func TestAnalyzeRanksSkipReasons(t *testing.T) {
	u, _ := newTestUpdater(t)
	stats := statsWith(30)
	stats.ByReason = map[string]int{
		"topic_mismatch": 8, "too_old": 3, "low_quality": 5,
		"off_brand": 1, "other": 2, "source_untrusted": 4,
	}

	a := u.Analyze(stats)
	if len(a.TopSkipReasons) != 5 {
		t.Fatalf("reasons = %d, want 5", len(a.TopSkipReasons))
	}
	if a.TopSkipReasons[0].Reason != "topic_mismatch" || a.TopSkipReasons[0].Count != 8 {
		t.Errorf("top reason = %+v", a.TopSkipReasons[0])
	}
}

func TestAutoUpdateSkipsOnInsufficientData(t *testing.T) {
	u, _ := newTestUpdater(t)
	result, err := u.AutoUpdate(statsWith(5), false)
	if err != nil {
		t.Fatalf("AutoUpdate: %v", err)
	}
	if len(result.Changes) != 0 {
		t.Errorf("changes = %v, want none", result.Changes)
	}
	if !strings.Contains(result.Summary, "データ不足") {
		t.Errorf("summary = %q", result.Summary)
	}
}

func TestAutoUpdateAdjustsKeywordWeights(t *testing.T) {
	u, store := newTestUpdater(t)

	stats := statsWith(30)
	stats.ByKeyword["claude"] = models.DecisionCount{Approved: 9, Skipped: 1}
	stats.ByKeyword["nft"] = models.DecisionCount{Approved: 1, Skipped: 9}

	result, err := u.AutoUpdate(stats, false)
	if err != nil {
		t.Fatalf("AutoUpdate: %v", err)
	}
	if len(result.Changes) != 2 {
		t.Fatalf("changes = %v", result.Changes)
	}

	prefs := store.Load()
	if got := prefs.KeywordWeights["claude"]; got != 1.2 {
		t.Errorf("claude weight = %v, want 1.2", got)
	}
	if got := prefs.KeywordWeights["nft"]; got != 0.7 {
		t.Errorf("nft weight = %v, want 0.7", got)
	}
	if prefs.UpdatedBy != "auto_pdca" {
		t.Errorf("updated_by = %q", prefs.UpdatedBy)
	}
	if prefs.Version != 2 {
		t.Errorf("version = %d, want 2", prefs.Version)
	}
}

func TestAutoUpdateClampsKeywordWeights(t *testing.T) {
	u, store := newTestUpdater(t)

	prefs := store.Load()
	prefs.KeywordWeights["claude"] = 2.9
	prefs.KeywordWeights["nft"] = 0.2
	if err := store.Save(prefs); err != nil {
		t.Fatal(err)
	}

	stats := statsWith(30)
	stats.ByKeyword["claude"] = models.DecisionCount{Approved: 10}
	stats.ByKeyword["nft"] = models.DecisionCount{Approved: 1, Skipped: 9}

	if _, err := u.AutoUpdate(stats, false); err != nil {
		t.Fatalf("AutoUpdate: %v", err)
	}
	after := store.Load()
	if got := after.KeywordWeights["claude"]; got != 3.0 {
		t.Errorf("claude weight = %v, want 3.0", got)
	}
	if got := after.KeywordWeights["nft"]; got != 0.0 {
		t.Errorf("nft weight = %v, want 0.0", got)
	}
}

func TestAutoUpdateSwapsTopicBuckets(t *testing.T) {
	u, store := newTestUpdater(t)

	prefs := store.Load()
	prefs.TopicPreferences.Preferred = []string{"web3"}
	prefs.TopicPreferences.Avoid = []string{"ai_agents"}
	if err := store.Save(prefs); err != nil {
		t.Fatal(err)
	}

	stats := statsWith(30)
	stats.ByTopic["ai_agents"] = models.DecisionCount{Approved: 9, Skipped: 1}
	stats.ByTopic["web3"] = models.DecisionCount{Approved: 2, Skipped: 8}

	if _, err := u.AutoUpdate(stats, false); err != nil {
		t.Fatalf("AutoUpdate: %v", err)
	}
	after := store.Load()
	if len(after.TopicPreferences.Preferred) != 1 || after.TopicPreferences.Preferred[0] != "ai_agents" {
		t.Errorf("preferred = %v", after.TopicPreferences.Preferred)
	}
	if len(after.TopicPreferences.Avoid) != 1 || after.TopicPreferences.Avoid[0] != "web3" {
		t.Errorf("avoid = %v", after.TopicPreferences.Avoid)
	}
}

func TestAutoUpdateDryRunDoesNotSave(t *testing.T) {
	u, store := newTestUpdater(t)

	stats := statsWith(30)
	stats.ByKeyword["claude"] = models.DecisionCount{Approved: 10}

	result, err := u.AutoUpdate(stats, true)
	if err != nil {
		t.Fatalf("AutoUpdate: %v", err)
	}
	if len(result.Changes) == 0 {
		t.Fatal("expected changes in dry run")
	}
	if got := store.Load().KeywordWeights["claude"]; got != 0 {
		t.Errorf("dry run persisted weight %v", got)
	}
}

func TestReportMentionsTopAccounts(t *testing.T) {
	u, _ := newTestUpdater(t)

	stats := statsWith(30)
	stats.Approved = 20
	stats.Skipped = 10
	stats.BySource["goodsource"] = models.DecisionCount{Approved: 9, Skipped: 1}
	stats.ByReason["topic_mismatch"] = 4

	report := u.Report(stats)
	for _, want := range []string{"選定PDCA分析", "判断数: 30件", "@goodsource", "トピック不一致: 4件"} {
		if !strings.Contains(report, want) {
			t.Errorf("report missing %q:\n%s", want, report)
		}
	}
}

func TestReportEmptyFeedback(t *testing.T) {
	u, _ := newTestUpdater(t)
	report := u.Report(models.FeedbackStats{})
	if !strings.Contains(report, "フィードバックデータなし") {
		t.Errorf("report = %q", report)
	}
}
