package pdca

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/xpost-agent/internal/models"
	"github.com/xpost-agent/pkg/logger"
)

func TestDetectPatterns(t *testing.T) {
	texts := []string{
		"ぶっちゃけこのツールで月3万円浮いた",
		"正直、2時間の作業が10分になった",
		"マジで30分で終わるようになった",
	}
	patterns := DetectPatterns(texts)

	joined := strings.Join(patterns, " ")
	if !strings.Contains(joined, "フック:自己開示系フック") {
		t.Errorf("patterns = %v, want self-disclosure hook", patterns)
	}
	if !strings.Contains(joined, "具体的数字あり") {
		t.Errorf("patterns = %v, want concrete numbers", patterns)
	}
	if !strings.Contains(joined, "短文") {
		t.Errorf("patterns = %v, want short-form", patterns)
	}
}

func TestDetectPatternsEmpty(t *testing.T) {
	if got := DetectPatterns(nil); len(got) != 0 {
		t.Errorf("patterns = %v, want none", got)
	}
}

func TestUpdateFromMetricsAppendsLogEntry(t *testing.T) {
	path := filepath.Join(t.TempDir(), "master.md")
	initial := "# マスターデータ\n\n本文\n\n## 更新ログ\n\n| 日付 | 更新内容 |\n|---|---|\n"
	if err := os.WriteFile(path, []byte(initial), 0o644); err != nil {
		t.Fatal(err)
	}

	m := NewMasterUpdater(path, logger.Default())
	m.now = func() time.Time { return time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC) }

	metrics := []models.PostMetrics{
		{Text: "ぶっちゃけ最高だった", Likes: 50, Retweets: 10},
		{Text: "正直ここまでとは", Likes: 30, Retweets: 5},
		{Text: "マジで変わった", Likes: 20, Retweets: 2},
		{Text: "ふつうの報告です", Likes: 1},
	}
	summary, err := m.UpdateFromMetrics(metrics)
	if err != nil {
		t.Fatalf("UpdateFromMetrics: %v", err)
	}
	if !strings.Contains(summary, "マスターデータ更新完了") {
		t.Errorf("summary = %q", summary)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(content), "| 2026/03/10 | 週次分析:") {
		t.Errorf("log entry missing:\n%s", content)
	}
}

func TestUpdateFromMetricsCreatesLogSection(t *testing.T) {
	path := filepath.Join(t.TempDir(), "master.md")
	if err := os.WriteFile(path, []byte("# マスターデータ\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	m := NewMasterUpdater(path, logger.Default())
	if _, err := m.UpdateFromMetrics([]models.PostMetrics{{Text: "短い", Likes: 1}}); err != nil {
		t.Fatalf("UpdateFromMetrics: %v", err)
	}

	content, _ := os.ReadFile(path)
	if !strings.Contains(string(content), "## 更新ログ") {
		t.Errorf("log section not created:\n%s", content)
	}
}

func TestUpdateFromMetricsNoData(t *testing.T) {
	m := NewMasterUpdater("unused.md", logger.Default())
	summary, err := m.UpdateFromMetrics(nil)
	if err != nil {
		t.Fatalf("UpdateFromMetrics: %v", err)
	}
	if !strings.Contains(summary, "更新スキップ") {
		t.Errorf("summary = %q", summary)
	}
}

func TestWeeklyReportContents(t *testing.T) {
	u, _ := newTestUpdater(t)
	r := NewWeeklyReporter("テストアカウント", u, logger.Default())
	r.now = func() time.Time { return time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC) }

	posts := []models.PostMetrics{
		{Text: "良い投稿", Likes: 12, Retweets: 3, Replies: 2, Impressions: 800},
		{Text: "普通の投稿", Likes: 6, Retweets: 1, Replies: 1, Impressions: 400},
	}
	report := r.Generate(posts, models.FeedbackStats{})

	for _, want := range []string{
		"週次レポート — テストアカウント",
		"期間: 03/03 〜 03/10",
		"投稿数: 2本",
		"ベスト投稿",
		"良い投稿",
	} {
		if !strings.Contains(report, want) {
			t.Errorf("report missing %q", want)
		}
	}
}

func TestWeeklyReportFlagsWeakEngagement(t *testing.T) {
	u, _ := newTestUpdater(t)
	r := NewWeeklyReporter("acct", u, logger.Default())

	posts := []models.PostMetrics{
		{Text: "伸びない投稿", Likes: 1, Impressions: 1000},
	}
	report := r.Generate(posts, models.FeedbackStats{})
	if !strings.Contains(report, "平均いいねが少ない") {
		t.Errorf("weak likes not flagged:\n%s", report)
	}
}

func TestWeeklyReportSave(t *testing.T) {
	u, _ := newTestUpdater(t)
	r := NewWeeklyReporter("acct", u, logger.Default())
	r.now = func() time.Time { return time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC) }

	dir := t.TempDir()
	path, err := r.Save("report body", dir, "acct1")
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	want := filepath.Join(dir, "weekly_report_2026-03-10_acct1.md")
	if path != want {
		t.Errorf("path = %s, want %s", path, want)
	}
}
