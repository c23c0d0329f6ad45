// Package notify delivers pipeline events to Discord via webhook embeds:
// daily drafts for approval, curation results, posting confirmations,
// safety alerts, metrics digests and error reports.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/xpost-agent/internal/models"
	"github.com/xpost-agent/pkg/logger"
	"github.com/xpost-agent/pkg/ratelimit"
)

// Embed colors
const (
	ColorSuccess = 0x00D26A
	ColorWarning = 0xFFAA00
	ColorDanger  = 0xFF4444
	ColorInfo    = 0x4DB8FF
	ColorPurple  = 0x9B59B6
)

// Discord caps embeds per message at 10; we keep headroom for header/footer
const maxResultEmbeds = 10

// Embed is one Discord embed object
type Embed struct {
	Title       string       `json:"title,omitempty"`
	Description string       `json:"description,omitempty"`
	Color       int          `json:"color,omitempty"`
	Fields      []EmbedField `json:"fields,omitempty"`
	Timestamp   string       `json:"timestamp,omitempty"`
}

// EmbedField is a name/value pair inside an embed
type EmbedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline,omitempty"`
}

// Notifier posts webhook messages. A Notifier with an empty URL is valid
// and silently drops everything, so callers never need a nil check.
type Notifier struct {
	webhookURL string
	httpClient *http.Client
	limiter    *ratelimit.MultiLimiter
	log        *logger.Logger
	now        func() time.Time
}

func NewNotifier(webhookURL string, limiter *ratelimit.MultiLimiter, log *logger.Logger) *Notifier {
	return &Notifier{
		webhookURL: webhookURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		limiter:    limiter,
		log:        log.WithComponent("notify"),
		now:        time.Now,
	}
}

// Enabled reports whether a webhook URL is configured
func (n *Notifier) Enabled() bool {
	return n.webhookURL != ""
}

// Send delivers a raw message. content and embeds may not both be empty.
func (n *Notifier) Send(ctx context.Context, content string, embeds []Embed) error {
	if !n.Enabled() {
		n.log.Debug().Msg("Discord webhook not configured, skipping notification")
		return nil
	}

	payload := map[string]interface{}{}
	if content != "" {
		payload["content"] = content
	}
	if len(embeds) > 0 {
		payload["embeds"] = embeds
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	if err := n.limiter.Wait(ctx, ratelimit.LimiterDiscord); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("discord webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("discord webhook: status %d", resp.StatusCode)
	}
	return nil
}

// DraftPost is one generated post in a daily approval digest
type DraftPost struct {
	Text   string
	Type   string
	Time   string
	Score  *models.PostScore
	Safety *models.SafetyResult
}

// NotifyDailyPosts sends the day's drafts for human approval
func (n *Notifier) NotifyDailyPosts(ctx context.Context, accountName, accountHandle string, posts []DraftPost, date string) error {
	if date == "" {
		date = n.now().Format("2006/01/02")
	}

	embeds := []Embed{{
		Title:       fmt.Sprintf("🤖 %s — 本日の投稿案 (%s)", accountName, date),
		Description: fmt.Sprintf("**%s** の投稿案 %d本", accountHandle, len(posts)),
		Color:       ColorInfo,
	}}

	for i, post := range posts {
		var b strings.Builder
		fmt.Fprintf(&b, "```\n%s\n```", post.Text)
		if post.Score != nil {
			b.WriteString(scoreBlock(*post.Score))
		}
		if post.Safety != nil {
			b.WriteString(safetyBlock(*post.Safety))
		}

		embeds = append(embeds, Embed{
			Title:       fmt.Sprintf("📝 投稿 %d/%d (%s 予定) [%s]", i+1, len(posts), post.Time, post.Type),
			Description: b.String(),
			Color:       colorForScore(post.Score),
		})
	}

	embeds = append(embeds, Embed{
		Description: "✅ 承認  |  ✏️ 修正依頼  |  ❌ スキップ",
		Color:       ColorPurple,
	})
	return n.Send(ctx, "", embeds)
}

// CurateResult is one generated quote comment in a curation digest
type CurateResult struct {
	Text           string
	TemplateID     string
	AuthorUsername string
	OriginalText   string
	Score          *models.PostScore
}

// NotifyCurateResults sends generated quote comments plus the day's slot plan
func (n *Notifier) NotifyCurateResults(ctx context.Context, accountName string, results []CurateResult, plan *models.DailyPlan) error {
	embeds := []Embed{{
		Title:       fmt.Sprintf("🔄 引用RT生成結果 — %s", accountName),
		Description: fmt.Sprintf("**%d件** の引用RTコメントを生成しました", len(results)),
		Color:       ColorInfo,
	}}

	shown := results
	if len(shown) > maxResultEmbeds {
		shown = shown[:maxResultEmbeds]
	}
	for i, r := range shown {
		scoreText := ""
		color := ColorInfo
		if r.Score != nil {
			scoreText = fmt.Sprintf("\n📊 スコア: %d/8 [%s]", r.Score.Total, r.Score.Rank)
			if r.Score.Total >= 6 {
				color = ColorSuccess
			}
		}
		embeds = append(embeds, Embed{
			Title: fmt.Sprintf("🔄 引用RT %d/%d — @%s [%s]", i+1, len(results), r.AuthorUsername, r.TemplateID),
			Description: fmt.Sprintf("**元ツイート:**\n> %s...\n\n**生成コメント:**\n```\n%s\n```%s",
				truncateRunes(r.OriginalText, 100), truncateRunes(r.Text, 300), scoreText),
			Color: color,
		})
	}

	if plan != nil && len(plan.Slots) > 0 {
		var lines []string
		for _, slot := range plan.Slots {
			icon := "✍️"
			if slot.Type == models.PostTypeQuoteRT {
				icon = "🔄"
			}
			lines = append(lines, fmt.Sprintf("%s %s %s", slot.TimeString(), icon, slot.Type))
		}
		embeds = append(embeds, Embed{
			Title: "📋 本日の投稿スケジュール",
			Description: fmt.Sprintf("```\n%s\n```\n合計: %d件 (引用RT: %d / オリジナル: %d)",
				strings.Join(lines, "\n"), len(plan.Slots),
				plan.CountByType(models.PostTypeQuoteRT), plan.CountByType(models.PostTypeOriginal)),
			Color: ColorPurple,
		})
	}

	embeds = append(embeds, Embed{
		Description: "✅ 承認して投稿  |  ✏️ 修正依頼  |  ❌ スキップ\n\n`xpost curate-post` で投稿実行",
		Color:       ColorPurple,
	})
	return n.Send(ctx, "", embeds)
}

// NotifyPostCompleted confirms a published tweet
func (n *Notifier) NotifyPostCompleted(ctx context.Context, accountName, tweetText, tweetID string) error {
	embed := Embed{
		Title:       fmt.Sprintf("✅ 投稿完了 — %s", accountName),
		Description: fmt.Sprintf("```\n%s\n```", truncateRunes(tweetText, 200)),
		Fields: []EmbedField{
			{Name: "Tweet ID", Value: tweetID, Inline: true},
			{Name: "URL", Value: fmt.Sprintf("https://x.com/i/status/%s", tweetID), Inline: true},
		},
		Color:     ColorSuccess,
		Timestamp: n.now().UTC().Format(time.RFC3339),
	}
	return n.Send(ctx, "", []Embed{embed})
}

// NotifySafetyAlert reports a blocked post
func (n *Notifier) NotifySafetyAlert(ctx context.Context, accountName, tweetText string, violations []string) error {
	var lines []string
	for _, v := range violations {
		lines = append(lines, "⛔ "+v)
	}
	embed := Embed{
		Title:       fmt.Sprintf("🚨 安全チェック不合格 — %s", accountName),
		Description: fmt.Sprintf("```\n%s\n```", truncateRunes(tweetText, 200)),
		Fields:      []EmbedField{{Name: "違反内容", Value: strings.Join(lines, "\n")}},
		Color:       ColorDanger,
		Timestamp:   n.now().UTC().Format(time.RFC3339),
	}
	return n.Send(ctx, "", []Embed{embed})
}

// NotifyMetrics sends the daily engagement digest
func (n *Notifier) NotifyMetrics(ctx context.Context, accountName string, summary models.MetricSummary) error {
	embed := Embed{
		Title: fmt.Sprintf("📊 日次メトリクス — %s", accountName),
		Fields: []EmbedField{
			{Name: "フォロワー", Value: fmt.Sprintf("%d", summary.Followers), Inline: true},
			{Name: "平均いいね", Value: fmt.Sprintf("%.1f", summary.AvgLikes), Inline: true},
			{Name: "平均RT", Value: fmt.Sprintf("%.1f", summary.AvgRetweets), Inline: true},
			{Name: "エンゲージメント率", Value: fmt.Sprintf("%.1f%%", summary.EngagementRate), Inline: true},
		},
		Color:     ColorInfo,
		Timestamp: n.now().UTC().Format(time.RFC3339),
	}
	return n.Send(ctx, "", []Embed{embed})
}

// NotifyWeeklyReport sends the weekly review text
func (n *Notifier) NotifyWeeklyReport(ctx context.Context, accountName, reportText string) error {
	embed := Embed{
		Title:       fmt.Sprintf("📈 週次レポート — %s", accountName),
		Description: truncateRunes(reportText, 4000),
		Color:       ColorPurple,
		Timestamp:   n.now().UTC().Format(time.RFC3339),
	}
	return n.Send(ctx, "", []Embed{embed})
}

// NotifyError reports a pipeline failure
func (n *Notifier) NotifyError(ctx context.Context, title, errorMessage string) error {
	embed := Embed{
		Title:       fmt.Sprintf("⚠️ エラー: %s", title),
		Description: fmt.Sprintf("```\n%s\n```", truncateRunes(errorMessage, 1000)),
		Color:       ColorDanger,
		Timestamp:   n.now().UTC().Format(time.RFC3339),
	}
	return n.Send(ctx, "", []Embed{embed})
}

func scoreBlock(s models.PostScore) string {
	rankEmoji := map[string]string{"S": "🏆", "A": "🥇", "B": "🥈", "C": "🥉"}[s.Rank]
	return fmt.Sprintf(
		"\n\n📊 **スコア: %d/8** %s [%s]\n├ フック力: %d/2\n├ 具体性: %d/2\n├ 人間味: %d/2\n├ 構成: %d/1\n└ CTA: %d/1",
		s.Total, rankEmoji, s.Rank, s.Hook, s.Specificity, s.Humanity, s.Structure, s.CTA)
}

func safetyBlock(s models.SafetyResult) string {
	if s.IsSafe {
		return "\n🛡️ 安全チェック: ✅ PASS"
	}
	var lines []string
	for _, v := range s.Violations {
		lines = append(lines, "  ⛔ "+v)
	}
	return "\n🛡️ 安全チェック: ❌ FAIL\n" + strings.Join(lines, "\n")
}

func colorForScore(s *models.PostScore) int {
	switch {
	case s == nil:
		return ColorDanger
	case s.Total >= 8:
		return ColorSuccess
	case s.Total >= 6:
		return ColorInfo
	case s.Total >= 4:
		return ColorWarning
	default:
		return ColorDanger
	}
}

func truncateRunes(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}
