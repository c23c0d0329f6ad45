package pdca

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/xpost-agent/internal/metrics"
	"github.com/xpost-agent/internal/models"
	"github.com/xpost-agent/pkg/logger"
)

// WeeklyReporter renders the weekly KPI review
type WeeklyReporter struct {
	accountName string
	updater     *Updater
	log         *logger.Logger
	now         func() time.Time
}

func NewWeeklyReporter(accountName string, updater *Updater, log *logger.Logger) *WeeklyReporter {
	return &WeeklyReporter{
		accountName: accountName,
		updater:     updater,
		log:         log.WithComponent("pdca"),
		now:         time.Now,
	}
}

// Generate builds the weekly report text from the week's metrics and the
// feedback log.
func (r *WeeklyReporter) Generate(posts []models.PostMetrics, feedback models.FeedbackStats) string {
	summary := metrics.Summarize(posts)

	now := r.now()
	weekStart := now.AddDate(0, 0, -7).Format("01/02")
	weekEnd := now.Format("01/02")

	var b strings.Builder
	fmt.Fprintf(&b, "📈 **週次レポート — %s**\n📅 期間: %s 〜 %s\n\n", r.accountName, weekStart, weekEnd)

	b.WriteString("━━━━━━━━━━━━━━━━━━\n**📊 KPI サマリー**\n━━━━━━━━━━━━━━━━━━\n")
	fmt.Fprintf(&b, "投稿数: %d本\n", summary.PostCount)
	fmt.Fprintf(&b, "平均いいね: %v\n", summary.AvgLikes)
	fmt.Fprintf(&b, "平均RT: %v\n", summary.AvgRetweets)
	fmt.Fprintf(&b, "平均リプライ: %v\n", summary.AvgReplies)
	fmt.Fprintf(&b, "エンゲージメント率: %v%%\n", summary.EngagementRate)
	fmt.Fprintf(&b, "総インプレッション: %d\n\n", summary.TotalImpressions)

	b.WriteString("━━━━━━━━━━━━━━━━━━\n**🏆 ベスト投稿**\n━━━━━━━━━━━━━━━━━━\n")
	best := summary.BestTweet
	if best == "" {
		best = "—"
	}
	fmt.Fprintf(&b, "%s\n👍 %dいいね\n\n", best, summary.BestLikes)

	b.WriteString("━━━━━━━━━━━━━━━━━━\n**💡 改善ポイント（自動分析）**\n━━━━━━━━━━━━━━━━━━\n")
	flagged := false
	if summary.AvgLikes < 5 {
		b.WriteString("- ⚠️ 平均いいねが少ない → フックを強化、数字を入れる\n")
		flagged = true
	}
	if summary.EngagementRate < 1.0 {
		b.WriteString("- ⚠️ エンゲージメント率低い → CTA（問いかけ）を強化\n")
		flagged = true
	}
	if summary.AvgRetweets < 1 {
		b.WriteString("- ⚠️ RTが少ない → 共感性のある「反常識」系を増やす\n")
		flagged = true
	}
	if summary.AvgReplies < 1 {
		b.WriteString("- ⚠️ リプライが少ない → 「〜してる人いる？」系のCTA追加\n")
		flagged = true
	}
	if !flagged {
		b.WriteString("- ✅ 順調！現在の方針を継続\n")
	}

	if r.updater != nil {
		b.WriteString("\n" + r.updater.Report(feedback) + "\n")
	}
	return b.String()
}

// Save writes the report to <dir>/weekly_report_<date>_<account>.md
func (r *WeeklyReporter) Save(report, outputDir, accountID string) (string, error) {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}
	path := filepath.Join(outputDir, fmt.Sprintf("weekly_report_%s_%s.md", r.now().Format("2006-01-02"), accountID))
	if err := os.WriteFile(path, []byte(report), 0o644); err != nil {
		return "", fmt.Errorf("write weekly report: %w", err)
	}
	return path, nil
}
