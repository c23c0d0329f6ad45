// Package collector finds buzzing tweets from the watched accounts and feeds
// them into the curation queue.
package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/xpost-agent/internal/config"
	"github.com/xpost-agent/internal/models"
	"github.com/xpost-agent/internal/queue"
	"github.com/xpost-agent/internal/selection"
	"github.com/xpost-agent/internal/source"
	"github.com/xpost-agent/internal/twitter"
	"github.com/xpost-agent/pkg/logger"
)

// Too many OR-joined from: clauses get rejected by the search API
const maxAccountsPerQuery = 8

// Searcher is the search API slice the collector needs
type Searcher interface {
	SearchRecent(ctx context.Context, query string, maxResults int, tweetType string) ([]twitter.Tweet, error)
}

// TargetAccount is one watched account from the target file
type TargetAccount struct {
	Username string `json:"username"`
	Priority string `json:"priority"` // high, medium, low
	Note     string `json:"note,omitempty"`
}

// TargetList is the target-accounts file layout
type TargetList struct {
	Accounts []TargetAccount `json:"accounts"`
	Keywords []string        `json:"keywords"`
}

// Options tunes one collection run. Zero values fall back to config.
type Options struct {
	MinLikes    int
	Lang        string
	MaxAgeHours int
	MaxTweets   int
	AutoApprove bool
	DryRun      bool
}

// Result summarizes one collection run
type Result struct {
	Fetched    int
	Filtered   int
	Blocked    int
	Added      int
	SkippedDup int
	Candidates []models.CandidateRecord
}

// Agent runs the collection pipeline: search, filter, score, enqueue
type Agent struct {
	search  Searcher
	queue   *queue.Store
	prefs   *selection.PreferenceStore
	sources *source.Manager
	cfg     config.CollectConfig
	log     *logger.Logger
	now     func() time.Time
}

func NewAgent(search Searcher, q *queue.Store, prefs *selection.PreferenceStore, sources *source.Manager, cfg config.CollectConfig, log *logger.Logger) *Agent {
	return &Agent{
		search:  search,
		queue:   q,
		prefs:   prefs,
		sources: sources,
		cfg:     cfg,
		log:     log.WithComponent("collector"),
		now:     time.Now,
	}
}

// Collect searches the watched accounts, filters and scores the hits, and
// adds survivors to the queue.
func (a *Agent) Collect(ctx context.Context, opts Options) (*Result, error) {
	if opts.MinLikes == 0 {
		opts.MinLikes = a.cfg.MinLikes
	}
	if opts.Lang == "" {
		opts.Lang = a.cfg.Lang
	}
	if opts.MaxAgeHours == 0 {
		opts.MaxAgeHours = a.cfg.MaxAgeHours
	}
	if opts.MaxTweets == 0 {
		opts.MaxTweets = a.cfg.MaxTweets
	}

	targets, err := a.loadTargets()
	if err != nil {
		return nil, err
	}

	a.log.Info().
		Int("min_likes", opts.MinLikes).
		Str("lang", opts.Lang).
		Int("max_age_hours", opts.MaxAgeHours).
		Msg("Collection started")

	tweets := a.fetchTweets(ctx, targets, opts)
	result := &Result{Fetched: len(tweets)}

	candidates := a.filterTweets(tweets, opts)
	result.Filtered = len(candidates)

	candidates = append(candidates, a.fetchExtraSources(ctx)...)

	// Preference scoring, blocked-author exclusion, blended re-sort
	scorer := selection.NewScorer(a.prefs.Load())
	scored := candidates[:0]
	for _, c := range candidates {
		sr := scorer.Score(c.Text, c.AuthorUsername)
		if sr.IsBlocked {
			result.Blocked++
			continue
		}
		c.PreferenceMatchScore = sr.PreferenceScore
		c.MatchedTopics = sr.MatchedTopics
		c.MatchedKeywords = sr.MatchedKeywords
		scored = append(scored, c)
	}
	sort.SliceStable(scored, func(i, j int) bool {
		return selection.BlendedRank(scored[i].Likes, scored[i].Retweets, scored[i].PreferenceMatchScore) >
			selection.BlendedRank(scored[j].Likes, scored[j].Retweets, scored[j].PreferenceMatchScore)
	})

	if opts.DryRun {
		result.Added = len(scored)
		result.Candidates = scored
		return result, nil
	}

	for _, c := range scored {
		added, err := a.queue.Add(c)
		if err != nil {
			a.log.Warn().Err(err).Str("tweet_id", c.TweetID).Msg("Queue add failed")
			continue
		}
		if !added {
			result.SkippedDup++
			continue
		}
		result.Added++
		result.Candidates = append(result.Candidates, c)
		if opts.AutoApprove {
			if _, err := a.queue.Approve(c.TweetID); err != nil {
				a.log.Warn().Err(err).Str("tweet_id", c.TweetID).Msg("Auto approve failed")
			}
		}
	}

	a.log.Info().
		Int("fetched", result.Fetched).
		Int("added", result.Added).
		Int("skipped_dup", result.SkippedDup).
		Msg("Collection finished")
	return result, nil
}

// loadTargets reads the watched-accounts file. A missing file leaves only
// the extra sources active.
func (a *Agent) loadTargets() (*TargetList, error) {
	data, err := os.ReadFile(a.cfg.TargetAccountsFile)
	if err != nil {
		if os.IsNotExist(err) {
			a.log.Warn().Str("path", a.cfg.TargetAccountsFile).Msg("No target accounts file, API search skipped")
			return &TargetList{}, nil
		}
		return nil, fmt.Errorf("read target accounts %s: %w", a.cfg.TargetAccountsFile, err)
	}
	var targets TargetList
	if err := json.Unmarshal(data, &targets); err != nil {
		return nil, fmt.Errorf("parse target accounts: %w", err)
	}
	return &targets, nil
}

// fetchTweets chunks the watched accounts into queries, high priority first,
// then falls back to keyword search when accounts under-deliver.
func (a *Agent) fetchTweets(ctx context.Context, targets *TargetList, opts Options) []twitter.Tweet {
	priorityOrder := map[string]int{"high": 0, "medium": 1, "low": 2}
	accounts := make([]TargetAccount, len(targets.Accounts))
	copy(accounts, targets.Accounts)
	sort.SliceStable(accounts, func(i, j int) bool {
		pi, ok := priorityOrder[accounts[i].Priority]
		if !ok {
			pi = 1
		}
		pj, ok := priorityOrder[accounts[j].Priority]
		if !ok {
			pj = 1
		}
		return pi < pj
	})

	var all []twitter.Tweet
	for start := 0; start < len(accounts); start += maxAccountsPerQuery {
		end := start + maxAccountsPerQuery
		if end > len(accounts) {
			end = len(accounts)
		}
		chunk := make([]string, 0, end-start)
		for _, acct := range accounts[start:end] {
			chunk = append(chunk, acct.Username)
		}

		query := twitter.BuildSearchQuery(chunk, nil, opts.Lang, true, true)
		tweets, err := a.search.SearchRecent(ctx, query, opts.MaxTweets, "Top")
		if err != nil {
			a.log.Warn().Err(err).Str("query", truncate(query, 80)).Msg("Account search failed")
			continue
		}
		all = append(all, tweets...)
	}

	// Keyword fallback when the account search under-delivers
	if len(all) < opts.MaxTweets/2 && len(targets.Keywords) > 0 {
		keywords := targets.Keywords
		if len(keywords) > 5 {
			keywords = keywords[:5]
		}
		query := twitter.BuildSearchQuery(nil, keywords, opts.Lang, true, true)
		tweets, err := a.search.SearchRecent(ctx, query, opts.MaxTweets/2, "Top")
		if err != nil {
			a.log.Warn().Err(err).Str("query", truncate(query, 80)).Msg("Keyword search failed")
		} else {
			all = append(all, tweets...)
		}
	}

	// Same tweet can arrive through several queries
	seen := make(map[string]bool)
	unique := all[:0]
	for _, t := range all {
		if t.ID == "" || seen[t.ID] {
			continue
		}
		seen[t.ID] = true
		unique = append(unique, t)
	}
	return unique
}

// filterTweets applies the post-fetch filters and maps survivors onto
// candidate records, likes descending.
func (a *Agent) filterTweets(tweets []twitter.Tweet, opts Options) []models.CandidateRecord {
	now := a.now()
	cutoff := now.Add(-time.Duration(opts.MaxAgeHours) * time.Hour)

	sort.SliceStable(tweets, func(i, j int) bool {
		return tweets[i].Likes > tweets[j].Likes
	})

	batchSources := make(map[string]bool)
	var out []models.CandidateRecord
	for _, t := range tweets {
		if t.Likes < opts.MinLikes {
			continue
		}
		if t.Lang != "" && t.Lang != opts.Lang && t.Lang != "und" {
			continue
		}
		if !t.CreatedAt.IsZero() && t.CreatedAt.Before(cutoff) {
			continue
		}
		// One candidate per author per day
		if batchSources[t.AuthorUsername] || a.queue.TodaySourceUsed(t.AuthorUsername) {
			continue
		}
		batchSources[t.AuthorUsername] = true

		out = append(out, models.CandidateRecord{
			TweetID:        t.ID,
			URL:            "https://x.com/" + t.AuthorUsername + "/status/" + t.ID,
			AuthorUsername: t.AuthorUsername,
			AuthorName:     t.AuthorName,
			Text:           t.Text,
			Lang:           t.Lang,
			Likes:          t.Likes,
			Retweets:       t.Retweets,
			Replies:        t.Replies,
			Quotes:         t.Quotes,
			Source:         models.SourceAPI,
			Status:         models.CandidateStatusPending,
			CollectedAt:    now,
		})
	}
	return out
}

// fetchExtraSources pulls RSS and watchlist candidates. They carry no
// engagement counters, so the likes and age filters do not apply.
func (a *Agent) fetchExtraSources(ctx context.Context) []models.CandidateRecord {
	if a.sources == nil {
		return nil
	}
	candidates, errs := a.sources.FetchAll(ctx)
	for _, err := range errs {
		a.log.Warn().Err(err).Msg("Extra source failed")
	}
	return candidates
}

// FormatResult renders the run summary for the CLI
func FormatResult(r *Result) string {
	lines := []string{
		"📊 収集結果:",
		fmt.Sprintf("  API取得:    %d件", r.Fetched),
		fmt.Sprintf("  フィルタ後: %d件", r.Filtered),
		fmt.Sprintf("  キュー追加: %d件", r.Added),
		fmt.Sprintf("  重複スキップ: %d件", r.SkippedDup),
	}
	if r.Blocked > 0 {
		lines = append(lines, fmt.Sprintf("  ブロック除外: %d件", r.Blocked))
	}
	if len(r.Candidates) > 0 {
		lines = append(lines, "", "  📝 追加されたツイート:")
		for i, c := range r.Candidates {
			if i >= 10 {
				break
			}
			lines = append(lines, fmt.Sprintf("    @%s (%d❤) %s", c.AuthorUsername, c.Likes, truncate(c.Text, 50)))
		}
	}
	return strings.Join(lines, "\n")
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
