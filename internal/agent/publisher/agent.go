// Package publisher executes the posting side of the pipeline: generated
// quote RTs from the queue and the day's original posts at their slots.
package publisher

import (
	"context"
	"fmt"
	"strings"
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

// Original-post slots and their base times
var slotTimes = map[string]struct{ hour, minute int }{
	"morning": {7, 0},
	"noon":    {12, 0},
	"evening": {21, 0},
}

// Poster is the posting API slice the publisher needs
type Poster interface {
	VerifyCredentials(ctx context.Context) (*twitter.AccountInfo, error)
	PostTweet(ctx context.Context, text string) (*twitter.PostedTweet, error)
	PostQuote(ctx context.Context, text, quoteTweetID, quoteURL string) (*twitter.PostedTweet, error)
}

// Result summarizes one publishing run
type Result struct {
	Checked  int
	Posted   int
	Held     int // waiting on approval or score threshold
	Unsafe   int
	Errors   []string
	TweetIDs []string
}

// Agent posts queued quote RTs and scheduled originals
type Agent struct {
	queue     *queue.Store
	poster    Poster
	gate      *safety.Gate
	notifier  *notify.Notifier
	archive   storage.Archive
	mode      string
	posting   config.PostingConfig
	account   config.AccountConfig
	outputDir string
	log       *logger.Logger
	now       func() time.Time
}

func NewAgent(q *queue.Store, poster Poster, gate *safety.Gate, notifier *notify.Notifier, archive storage.Archive, mode string, posting config.PostingConfig, account config.AccountConfig, outputDir string, log *logger.Logger) *Agent {
	return &Agent{
		queue:     q,
		poster:    poster,
		gate:      gate,
		notifier:  notifier,
		archive:   archive,
		mode:      mode,
		posting:   posting,
		account:   account,
		outputDir: outputDir,
		log:       log.WithComponent("publisher").WithAccount(account.Handle),
		now:       time.Now,
	}
}

// PublishQuotes posts generated quote RTs from the queue, newest scores
// first is not needed, queue order is kept. Daily limit and mode gates
// apply per item.
func (a *Agent) PublishQuotes(ctx context.Context) (*Result, error) {
	result := &Result{}

	if err := a.verify(ctx); err != nil {
		return nil, err
	}

	generated := a.queue.Generated()
	result.Checked = len(generated)
	if len(generated) == 0 {
		a.log.Info().Msg("No generated quotes waiting")
		return result, nil
	}

	remaining := a.posting.DailyLimit - a.queue.TodayPostedCount()
	if remaining <= 0 {
		a.log.Warn().Int("daily_limit", a.posting.DailyLimit).Msg("Daily posting limit reached")
		return result, nil
	}

	for _, item := range generated {
		if result.Posted >= remaining {
			break
		}

		sameSource := 0
		if a.queue.TodaySourceUsed(item.AuthorUsername) {
			sameSource = 1
		}
		check := a.gate.Check(item.GeneratedText, nil, -1, true, &safety.QuoteContext{
			SourceUsername:       item.AuthorUsername,
			TodaySameSourceCount: sameSource,
		})
		if !check.IsSafe {
			result.Unsafe++
			a.log.Warn().Str("tweet_id", item.TweetID).Strs("violations", check.Violations).Msg("Quote failed final safety check")
			a.notifier.NotifySafetyAlert(ctx, a.account.Name, item.GeneratedText, check.Violations)
			continue
		}

		if held, reason := a.heldByMode(item.Score); held {
			result.Held++
			a.log.Info().Str("tweet_id", item.TweetID).Str("reason", reason).Msg("Quote held for approval")
			continue
		}

		posted, err := a.poster.PostQuote(ctx, item.GeneratedText, item.TweetID, item.TweetURL())
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", item.TweetID, err))
			a.log.Error().Err(err).Str("tweet_id", item.TweetID).Msg("Quote post failed")
			a.notifier.NotifyError(ctx, "引用RT投稿エラー", err.Error())
			continue
		}

		if _, err := a.queue.MarkPosted(item.TweetID, posted.ID); err != nil {
			a.log.Warn().Err(err).Str("tweet_id", item.TweetID).Msg("Posted-state update failed")
		}
		a.archivePosted(ctx, posted.ID, item.TweetID, "quote", item.TemplateID, item.GeneratedText, scoreOf(item.Score))
		a.notifier.NotifyPostCompleted(ctx, a.account.Name, item.GeneratedText, posted.ID)

		result.Posted++
		result.TweetIDs = append(result.TweetIDs, posted.ID)
		a.log.Info().Str("posted_id", posted.ID).Str("source_id", item.TweetID).Msg("Quote posted")
	}

	return result, nil
}

// PublishOriginals posts the day's generated originals whose slot time is
// within tolerance of now.
func (a *Agent) PublishOriginals(ctx context.Context) (*Result, error) {
	result := &Result{}

	if err := a.verify(ctx); err != nil {
		return nil, err
	}

	today := a.now()
	entries, err := generate.LoadDailyOutput(a.outputDir, a.account.Handle, today)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		a.log.Info().Msg("No daily output for today")
		return result, nil
	}

	for _, entry := range entries {
		if entry.Posted {
			continue
		}
		result.Checked++

		if !a.slotDue(entry.Slot) {
			continue
		}

		check := a.gate.Check(entry.Text, nil, -1, false, nil)
		if !check.IsSafe {
			result.Unsafe++
			a.notifier.NotifySafetyAlert(ctx, a.account.Name, entry.Text, check.Violations)
			continue
		}

		if held, reason := a.heldByMode(&models.GeneratedScore{Total: entry.Score.Total}); held {
			result.Held++
			a.log.Info().Str("slot", entry.Slot).Str("reason", reason).Msg("Original held for approval")
			continue
		}

		posted, err := a.poster.PostTweet(ctx, entry.Text)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", entry.Slot, err))
			a.notifier.NotifyError(ctx, "投稿エラー", err.Error())
			continue
		}

		if err := generate.MarkOutputPosted(a.outputDir, a.account.Handle, today, entry.Slot, posted.ID, a.now()); err != nil {
			a.log.Warn().Err(err).Str("slot", entry.Slot).Msg("Output posted-state update failed")
		}
		a.archivePosted(ctx, posted.ID, "", "original", entry.Slot, entry.Text, entry.Score.Total)
		a.notifier.NotifyPostCompleted(ctx, a.account.Name, entry.Text, posted.ID)

		result.Posted++
		result.TweetIDs = append(result.TweetIDs, posted.ID)
		a.log.Info().Str("posted_id", posted.ID).Str("slot", entry.Slot).Msg("Original posted")
	}

	return result, nil
}

func (a *Agent) verify(ctx context.Context) error {
	info, err := a.poster.VerifyCredentials(ctx)
	if err != nil {
		a.notifier.NotifyError(ctx, "アカウント確認失敗", err.Error())
		return fmt.Errorf("verify credentials: %w", err)
	}
	a.log.Debug().Str("username", info.Username).Msg("Account verified")
	return nil
}

// heldByMode applies the operating-mode gate. manual_approval never
// auto-posts; semi_auto requires the score threshold; full_auto passes.
func (a *Agent) heldByMode(score *models.GeneratedScore) (bool, string) {
	switch a.mode {
	case config.ModeManualApproval:
		return true, "manual approval mode"
	case config.ModeSemiAuto:
		total := 0
		if score != nil {
			total = score.Total
		}
		if total < a.posting.AutoPostMinScore {
			return true, fmt.Sprintf("score %d below threshold %d", total, a.posting.AutoPostMinScore)
		}
	}
	return false, ""
}

// slotDue reports whether the slot's base time is within tolerance of now
func (a *Agent) slotDue(slot string) bool {
	base, ok := slotTimes[slot]
	if !ok {
		return false
	}
	now := a.now()
	diff := now.Hour()*60 + now.Minute() - (base.hour*60 + base.minute)
	if diff < 0 {
		diff = -diff
	}
	tolerance := a.posting.ToleranceMinutes
	if tolerance == 0 {
		tolerance = 30
	}
	return diff <= tolerance
}

func (a *Agent) archivePosted(ctx context.Context, tweetID, sourceID, kind, templateID, text string, score int) {
	if a.archive == nil {
		return
	}
	err := a.archive.SavePosted(ctx, &storage.PostedPost{
		TweetID:       tweetID,
		SourceTweetID: sourceID,
		AccountHandle: a.account.Handle,
		Kind:          kind,
		TemplateID:    templateID,
		Text:          text,
		Score:         float64(score),
		PostedAt:      a.now(),
	})
	if err != nil {
		a.log.Warn().Err(err).Str("tweet_id", tweetID).Msg("Archive write failed")
	}
}

func scoreOf(s *models.GeneratedScore) int {
	if s == nil {
		return 0
	}
	return s.Total
}

// FormatResult renders the run summary for the CLI
func FormatResult(r *Result) string {
	lines := []string{
		fmt.Sprintf("📊 投稿結果: %d件投稿 / %d件チェック", r.Posted, r.Checked),
	}
	if r.Held > 0 {
		lines = append(lines, fmt.Sprintf("  🔒 承認待ち: %d件", r.Held))
	}
	if r.Unsafe > 0 {
		lines = append(lines, fmt.Sprintf("  ⛔ 安全チェック不合格: %d件", r.Unsafe))
	}
	for _, e := range r.Errors {
		lines = append(lines, "  ❌ "+e)
	}
	return strings.Join(lines, "\n")
}

var _ Poster = (*twitter.Poster)(nil)
