package safety

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/xpost-agent/internal/models"
	"github.com/xpost-agent/pkg/logger"
)

const (
	quoteMinLength = 30
	quoteMaxLength = 250

	maxSameSourcePerDay  = 1
	maxConsecutiveQuotes = 2
)

var (
	hashtagPattern = regexp.MustCompile(`#\S+`)
	linkPattern    = regexp.MustCompile(`https?://\S+`)

	// Patterns that indicate a bare translation instead of original commentary
	translationPatterns = []string{"翻訳しました", "translation:", "translated"}
)

// QuoteContext carries the per-day state the quote-specific checks need
type QuoteContext struct {
	SourceUsername        string
	TodaySameSourceCount  int
	ConsecutiveQuoteCount int
}

// Gate runs every pre-publish check against the loaded rule set
type Gate struct {
	rules   *Rules
	ngWords []string
	log     *logger.Logger
}

func NewGate(rules *Rules, log *logger.Logger) *Gate {
	var ng []string
	for _, words := range rules.NGWords {
		ng = append(ng, words...)
	}
	return &Gate{rules: rules, ngWords: ng, log: log.WithComponent("safety")}
}

// Check runs all safety checks. pastPosts feeds duplicate detection;
// lastPostMinutesAgo of -1 skips the interval check; quoteCtx may be nil
// for original posts.
func (g *Gate) Check(text string, pastPosts []string, lastPostMinutesAgo int, isQuoteRT bool, quoteCtx *QuoteContext) models.SafetyResult {
	var violations, warnings []string

	if found := g.findNGWords(text); len(found) > 0 {
		violations = append(violations, fmt.Sprintf("NGワード検出: %s", strings.Join(found, ", ")))
	}

	// Newlines don't count toward length
	textLen := len([]rune(strings.ReplaceAll(text, "\n", "")))
	minLen, maxLen := g.rules.ContentRules.MinLength, g.rules.ContentRules.MaxLength
	if isQuoteRT {
		minLen, maxLen = quoteMinLength, quoteMaxLength
	}
	if textLen < minLen {
		violations = append(violations, fmt.Sprintf("文字数不足: %d字 (最低%d字)", textLen, minLen))
	}
	if textLen > maxLen {
		violations = append(violations, fmt.Sprintf("文字数超過: %d字 (最大%d字)", textLen, maxLen))
	}

	if hashtags := hashtagPattern.FindAllString(text, -1); len(hashtags) > g.rules.ContentRules.MaxHashtags {
		violations = append(violations, fmt.Sprintf("ハッシュタグ過多: %d個 (最大%d個)", len(hashtags), g.rules.ContentRules.MaxHashtags))
	}

	links := linkPattern.FindAllString(text, -1)
	if isQuoteRT {
		// The API attaches the quoted URL itself
		if len(links) > 0 {
			warnings = append(warnings, "引用RTコメントにURL不要（APIが自動付与）")
		}
	} else if len(links) > g.rules.ContentRules.MaxLinks {
		violations = append(violations, fmt.Sprintf("リンク過多: %d個 (最大%d個)", len(links), g.rules.ContentRules.MaxLinks))
	}

	if count := countEmoji(text); count > g.rules.ContentRules.MaxEmoji {
		warnings = append(warnings, fmt.Sprintf("絵文字%d個 (推奨%d個以下)", count, g.rules.ContentRules.MaxEmoji))
	}

	threshold := g.rules.QualityRules.DuplicateThreshold
	for _, past := range pastPosts {
		if sim := Similarity(text, past); sim >= threshold {
			violations = append(violations, fmt.Sprintf("過去投稿と類似度%.0f%% (閾値%.0f%%)", sim*100, threshold*100))
			break
		}
	}

	if lastPostMinutesAgo >= 0 {
		minInterval := g.rules.PostingRules.PostingIntervalMinMinutes
		if lastPostMinutesAgo < minInterval {
			violations = append(violations, fmt.Sprintf("投稿間隔不足: %d分 (最低%d分)", lastPostMinutesAgo, minInterval))
		}
	}

	if isQuoteRT && quoteCtx != nil {
		qv, qw := g.checkQuote(text, quoteCtx)
		violations = append(violations, qv...)
		warnings = append(warnings, qw...)
	}

	result := models.SafetyResult{
		IsSafe:     len(violations) == 0,
		Violations: violations,
		Warnings:   warnings,
	}
	if !result.IsSafe {
		g.log.Warn().Strs("violations", violations).Msg("Safety check failed")
	}
	return result
}

func (g *Gate) checkQuote(text string, ctx *QuoteContext) (violations, warnings []string) {
	if ctx.TodaySameSourceCount >= maxSameSourcePerDay {
		violations = append(violations, fmt.Sprintf(
			"同一ソース引用が1日%d件を超過 (@%s)", maxSameSourcePerDay, ctx.SourceUsername))
	}
	if ctx.ConsecutiveQuoteCount >= maxConsecutiveQuotes {
		warnings = append(warnings, fmt.Sprintf(
			"引用RTが%d件連続。オリジナル投稿を挟むことを推奨", maxConsecutiveQuotes))
	}
	textLower := strings.ToLower(text)
	for _, pattern := range translationPatterns {
		if strings.Contains(textLower, pattern) {
			violations = append(violations, fmt.Sprintf(
				"禁止パターン検出: '%s' — 独自コメントを追加してください", pattern))
			break
		}
	}
	return violations, warnings
}

func (g *Gate) findNGWords(text string) []string {
	textLower := strings.ToLower(text)
	var found []string
	for _, word := range g.ngWords {
		if strings.Contains(textLower, strings.ToLower(word)) {
			found = append(found, word)
		}
	}
	return found
}

// Similarity returns 2*LCS/(len(a)+len(b)) over runes, in [0,1]
func Similarity(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 && len(rb) == 0 {
		return 1.0
	}
	if len(ra) == 0 || len(rb) == 0 {
		return 0.0
	}
	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for i := 1; i <= len(ra); i++ {
		for j := 1; j <= len(rb); j++ {
			if ra[i-1] == rb[j-1] {
				curr[j] = prev[j-1] + 1
			} else if prev[j] >= curr[j-1] {
				curr[j] = prev[j]
			} else {
				curr[j] = curr[j-1]
			}
		}
		prev, curr = curr, prev
	}
	lcs := prev[len(rb)]
	return 2.0 * float64(lcs) / float64(len(ra)+len(rb))
}

var emojiRanges = [][2]rune{
	{0x1F600, 0x1F64F}, // emoticons
	{0x1F300, 0x1F5FF}, // symbols and pictographs
	{0x1F680, 0x1F6FF}, // transport and map
	{0x1F1E0, 0x1F1FF}, // flags
	{0x2702, 0x27B0},   // dingbats
	{0x1F900, 0x1F9FF}, // supplemental symbols
	{0x1FA00, 0x1FA6F}, // chess
	{0x1FA70, 0x1FAFF}, // extended-A
	{0x2600, 0x26FF},   // misc symbols
	{0xFE00, 0xFE0F},   // variation selectors
	{0x200D, 0x200D},   // zero width joiner
}

func countEmoji(text string) int {
	count := 0
	for _, r := range text {
		for _, rng := range emojiRanges {
			if r >= rng[0] && r <= rng[1] {
				count++
				break
			}
		}
	}
	return count
}
