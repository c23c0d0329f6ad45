// Package curator turns approved queue candidates into quote comments and
// lays out the daily posting plan.
package curator

import (
	"context"
	"fmt"
	"strings"

	"github.com/xpost-agent/internal/generate"
	"github.com/xpost-agent/internal/models"
	"github.com/xpost-agent/internal/notify"
	"github.com/xpost-agent/internal/planner"
	"github.com/xpost-agent/internal/queue"
	"github.com/xpost-agent/internal/twitter"
	"github.com/xpost-agent/pkg/logger"
)

// RecentLister supplies the account's recent posts for the duplicate check
type RecentLister interface {
	RecentTweets(ctx context.Context, maxResults int) ([]twitter.RecentTweet, error)
}

// Options tunes one curation run
type Options struct {
	DryRun    bool
	StartDate string // account warm-up start, YYYY-MM-DD
}

// Result summarizes one curation run
type Result struct {
	Approved  int
	Generated int
	Failed    int
	Plan      models.DailyPlan
	Items     []notify.CurateResult
}

// Agent generates quote comments for every approved candidate
type Agent struct {
	queue     *queue.Store
	generator *generate.Generator
	planner   *planner.Planner
	notifier  *notify.Notifier
	recent    RecentLister
	account   string
	log       *logger.Logger
}

func NewAgent(q *queue.Store, gen *generate.Generator, pl *planner.Planner, notifier *notify.Notifier, recent RecentLister, accountName string, log *logger.Logger) *Agent {
	return &Agent{
		queue:     q,
		generator: gen,
		planner:   pl,
		notifier:  notifier,
		recent:    recent,
		account:   accountName,
		log:       log.WithComponent("curator"),
	}
}

// Curate writes a quote comment for each approved candidate, stores it on
// the queue record, plans the day and notifies the operator channel.
func (a *Agent) Curate(ctx context.Context, opts Options) (*Result, error) {
	approved := a.queue.Approved()
	result := &Result{Approved: len(approved)}
	if len(approved) == 0 {
		a.log.Info().Msg("Nothing approved, curation skipped")
		result.Plan = a.planner.PlanDaily(0, opts.StartDate)
		return result, nil
	}

	pastPosts := a.fetchPastPosts(ctx, opts.DryRun)

	for _, item := range approved {
		if item.Text == "" {
			a.log.Warn().Str("tweet_id", item.TweetID).Msg("Candidate has no text, skipping")
			result.Failed++
			continue
		}
		if item.HasGeneratedText() {
			continue
		}

		quote, err := a.generator.GenerateQuote(ctx, item, pastPosts, "")
		if err != nil || quote.Text == "" {
			a.log.Warn().Err(err).Str("tweet_id", item.TweetID).Msg("Quote generation failed")
			result.Failed++
			continue
		}

		if !opts.DryRun {
			score := &models.GeneratedScore{Total: quote.Score.Total, Rank: quote.Score.Rank}
			if _, err := a.queue.SetGenerated(item.TweetID, quote.Text, quote.TemplateID, score); err != nil {
				a.log.Warn().Err(err).Str("tweet_id", item.TweetID).Msg("Failed to store generated text")
				result.Failed++
				continue
			}
		}

		pastPosts = append(pastPosts, quote.Text)
		result.Generated++
		postScore := quote.Score
		result.Items = append(result.Items, notify.CurateResult{
			Text:           quote.Text,
			TemplateID:     quote.TemplateID,
			AuthorUsername: item.AuthorUsername,
			OriginalText:   item.Text,
			Score:          &postScore,
		})
	}

	result.Plan = a.planner.PlanDaily(result.Generated, opts.StartDate)

	if !opts.DryRun && result.Generated > 0 {
		if err := a.notifier.NotifyCurateResults(ctx, a.account, result.Items, &result.Plan); err != nil {
			a.log.Warn().Err(err).Msg("Curate notification failed")
		}
	}

	a.log.Info().
		Int("approved", result.Approved).
		Int("generated", result.Generated).
		Int("failed", result.Failed).
		Msg("Curation finished")
	return result, nil
}

// fetchPastPosts pulls the account's recent posts for the similarity check.
// Failures degrade to an empty corpus.
func (a *Agent) fetchPastPosts(ctx context.Context, dryRun bool) []string {
	if dryRun || a.recent == nil {
		return nil
	}
	recent, err := a.recent.RecentTweets(ctx, 10)
	if err != nil {
		a.log.Warn().Err(err).Msg("Recent tweets unavailable, duplicate check degraded")
		return nil
	}
	posts := make([]string, 0, len(recent))
	for _, t := range recent {
		posts = append(posts, t.Text)
	}
	return posts
}

// FormatResult renders the run summary for the CLI
func FormatResult(r *Result) string {
	lines := []string{
		fmt.Sprintf("📝 生成結果: %d/%d件", r.Generated, r.Approved),
	}
	if r.Failed > 0 {
		lines = append(lines, fmt.Sprintf("  ❌ 失敗: %d件", r.Failed))
	}
	lines = append(lines, "", planner.FormatPlan(r.Plan))
	return strings.Join(lines, "\n")
}

var _ RecentLister = (*twitter.Poster)(nil)
