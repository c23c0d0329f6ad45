package generate

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/xpost-agent/internal/ai"
	"github.com/xpost-agent/internal/analyze"
	"github.com/xpost-agent/internal/models"
	"github.com/xpost-agent/internal/safety"
	"github.com/xpost-agent/pkg/logger"
)

const (
	quoteMinScore    = 5
	originalMinScore = 6
	maxRetries       = 2
	maxQuoteRunes    = 120
)

var (
	codeFenceOpen  = regexp.MustCompile("^```.*?\n")
	codeFenceClose = regexp.MustCompile("\n```$")
	weekdaysJA     = []string{"日", "月", "火", "水", "木", "金", "土"}
)

// LLM is the completion surface the generator needs; *ai.Client satisfies it
type LLM interface {
	Complete(ctx context.Context, systemPrompt, userMessage string) (string, error)
}

// Generator produces quote comments and original posts
type Generator struct {
	llm       LLM
	scorer    *analyze.Scorer
	gate      *safety.Gate
	registry  *TemplateRegistry
	persona   *models.PersonaProfile
	overrides models.PromptOverrides
	log       *logger.Logger
}

func New(llm LLM, gate *safety.Gate, log *logger.Logger) *Generator {
	return &Generator{
		llm:      llm,
		scorer:   analyze.NewScorer(),
		gate:     gate,
		registry: NewTemplateRegistry(),
		log:      log.WithComponent("generate"),
	}
}

// SetPersona attaches an analyzed style profile to all future prompts
func (g *Generator) SetPersona(p *models.PersonaProfile) {
	g.persona = p
}

// SetOverrides applies control-plane prompt overrides
func (g *Generator) SetOverrides(o models.PromptOverrides) {
	g.overrides = o
}

// QuoteResult is one generated quote comment with its quality verdict
type QuoteResult struct {
	Text       string
	TemplateID string
	Score      models.PostScore
	Safety     models.SafetyResult
}

// GenerateQuote writes a quote comment for one candidate. Low scores and
// safety violations trigger up to two rewrites with an explicit hint.
func (g *Generator) GenerateQuote(ctx context.Context, candidate models.CandidateRecord, pastPosts []string, preferredTemplate string) (*QuoteResult, error) {
	template := g.registry.Pick(preferredTemplate, g.overrides.EnabledTemplates)

	text, err := g.quoteOnce(ctx, candidate, template, "", pastPosts)
	if err != nil {
		return nil, err
	}

	score := g.scorer.Score(text)
	check := g.gate.Check(text, pastPosts, -1, true, nil)

	for retry := 0; retry < maxRetries; retry++ {
		if score.Total >= quoteMinScore && check.IsSafe {
			break
		}
		hint := ai.RetryHint(score, check, quoteMinScore)
		g.log.Debug().
			Str("template", template.ID).
			Int("score", score.Total).
			Str("hint", hint).
			Msg("Regenerating quote comment")

		retryText, err := g.quoteOnce(ctx, candidate, template, hint, pastPosts)
		if err != nil {
			break
		}
		text = retryText
		score = g.scorer.Score(text)
		check = g.gate.Check(text, pastPosts, -1, true, nil)
	}

	g.registry.MarkUsed(template.ID)

	return &QuoteResult{
		Text:       text,
		TemplateID: template.ID,
		Score:      score,
		Safety:     check,
	}, nil
}

// GenerateQuoteBatch writes quote comments for up to maxCount candidates.
// Each generated text joins the duplicate-check corpus for the next.
func (g *Generator) GenerateQuoteBatch(ctx context.Context, candidates []models.CandidateRecord, maxCount int, pastPosts []string) ([]QuoteResult, error) {
	corpus := make([]string, len(pastPosts))
	copy(corpus, pastPosts)

	var results []QuoteResult
	for i, candidate := range candidates {
		if i >= maxCount {
			break
		}
		result, err := g.GenerateQuote(ctx, candidate, corpus, "")
		if err != nil {
			g.log.Warn().Err(err).Str("tweet_id", candidate.TweetID).Msg("Quote generation failed, skipping candidate")
			continue
		}
		if result.Text == "" {
			continue
		}
		corpus = append(corpus, result.Text)
		results = append(results, *result)
	}
	return results, nil
}

func (g *Generator) quoteOnce(ctx context.Context, candidate models.CandidateRecord, template Template, retryHint string, pastPosts []string) (string, error) {
	system := ai.QuoteSystemPrompt + ai.PersonaSection(g.persona) + ai.OverridesSection(g.overrides)
	user := ai.BuildQuotePrompt(
		template.ID, template.Name, template.Description, retryHint,
		candidate.AuthorUsername, candidate.AuthorName, candidate.Text,
		candidate.Likes, candidate.Retweets) + ai.VariationSection(pastPosts)

	raw, err := g.llm.Complete(ctx, system, user)
	if err != nil {
		return "", fmt.Errorf("quote generation: %w", err)
	}
	return truncateQuote(CleanOutput(raw)), nil
}

// OriginalResult is one generated original post for a plan slot
type OriginalResult struct {
	Text     string
	PostType string
	Slot     string
	Score    models.PostScore
	Safety   models.SafetyResult
}

// Post-type rotation by weekday and slot
var weeklySchedule = map[time.Weekday]map[string]string{
	time.Monday:    {"morning": "問題提起", "noon": "How to", "evening": "ストーリー"},
	time.Tuesday:   {"morning": "反常識", "noon": "リスト", "evening": "気づき"},
	time.Wednesday: {"morning": "問題提起", "noon": "How to（保存狙い）", "evening": "失敗談"},
	time.Thursday:  {"morning": "権威引用", "noon": "リスト（保存狙い）", "evening": "振り返り"},
	time.Friday:    {"morning": "反常識", "noon": "How to", "evening": "今週のまとめ"},
	time.Saturday:  {"morning": "ストーリー", "noon": "ツール紹介", "evening": "自由枠"},
	time.Sunday:    {"morning": "モチベーション", "noon": "来週の予告", "evening": "コミュニティ系"},
}

// GenerateOriginals writes the day's original posts (morning/noon/evening)
// from the master data document.
func (g *Generator) GenerateOriginals(ctx context.Context, targetDate time.Time, masterData string, pastPosts []string) ([]OriginalResult, error) {
	schedule := weeklySchedule[targetDate.Weekday()]

	corpus := make([]string, len(pastPosts))
	copy(corpus, pastPosts)

	var results []OriginalResult
	for _, slot := range []string{"morning", "noon", "evening"} {
		postType := schedule[slot]

		text, err := g.originalOnce(ctx, targetDate, postType, slot, masterData, "", corpus)
		if err != nil {
			g.log.Warn().Err(err).Str("slot", slot).Msg("Original generation failed, skipping slot")
			continue
		}

		score := g.scorer.Score(text)
		check := g.gate.Check(text, corpus, -1, false, nil)

		for retry := 0; retry < maxRetries; retry++ {
			if score.Total >= originalMinScore && check.IsSafe {
				break
			}
			hint := ai.RetryHint(score, check, originalMinScore)
			retryText, err := g.originalOnce(ctx, targetDate, postType, slot, masterData, hint, corpus)
			if err != nil {
				break
			}
			text = retryText
			score = g.scorer.Score(text)
			check = g.gate.Check(text, corpus, -1, false, nil)
		}

		corpus = append(corpus, text)
		results = append(results, OriginalResult{
			Text:     text,
			PostType: postType,
			Slot:     slot,
			Score:    score,
			Safety:   check,
		})
	}
	return results, nil
}

func (g *Generator) originalOnce(ctx context.Context, targetDate time.Time, postType, slot, masterData, retryHint string, pastPosts []string) (string, error) {
	system := ai.OriginalSystemPrompt + ai.PersonaSection(g.persona) + ai.OverridesSection(g.overrides)
	user := ai.BuildOriginalPrompt(
		targetDate.Format("2006-01-02"),
		weekdaysJA[targetDate.Weekday()],
		postType, slot, retryHint, masterData) + ai.VariationSection(pastPosts)

	raw, err := g.llm.Complete(ctx, system, user)
	if err != nil {
		return "", fmt.Errorf("original generation: %w", err)
	}
	return CleanOutput(raw), nil
}

// CleanOutput strips code fences and stray wrapping quotes the model
// sometimes adds around the tweet body.
func CleanOutput(raw string) string {
	text := strings.TrimSpace(raw)
	text = codeFenceOpen.ReplaceAllString(text, "")
	text = codeFenceClose.ReplaceAllString(text, "")
	text = strings.Trim(text, "\"'`")
	return strings.TrimSpace(text)
}

// truncateQuote hard-caps a quote comment, ellipsis included in the cap
func truncateQuote(text string) string {
	runes := []rune(text)
	if len(runes) <= maxQuoteRunes {
		return text
	}
	return string(runes[:maxQuoteRunes-1]) + "…"
}
