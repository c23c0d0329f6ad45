// Package analyze rates generated text against an 8-point quality rubric and
// builds writing-style profiles from an account's recent tweets.
package analyze

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/xpost-agent/internal/models"
)

// Hook patterns, applied to the first line
var strongHooks = []*regexp.Regexp{
	regexp.MustCompile(`^(ぶっちゃけ|正直|マジで|結論|断言)`),
	regexp.MustCompile(`^「.+」`),
	regexp.MustCompile(`^\d+[時間分万円%]`),
	regexp.MustCompile(`^(やばい|えぐい|これ)`),
	regexp.MustCompile(`^(知らない|まだ.+してる)`),
}

var mediumHooks = []*regexp.Regexp{
	regexp.MustCompile(`^(最近|今月|この前)`),
	regexp.MustCompile(`^AI[でがは]`),
	regexp.MustCompile(`^.{1,10}[。、]$`),
}

var (
	numberPattern     = regexp.MustCompile(`\d+[時間分万円%倍個件本日週月]`)
	comparisonPattern = regexp.MustCompile(`[→⇒]|から|が.+に`)
	toolPattern       = regexp.MustCompile(`(?i)(Claude|ChatGPT|GAS|Gemini|note|スプシ|スプレッドシート|Python|GitHub)`)
	urlPattern        = regexp.MustCompile(`https?://`)
	hashtagPattern    = regexp.MustCompile(`#\S+`)
)

var casualMarkers = []string{
	"ぶっちゃけ", "マジで", "ガチ", "なんだよね", "してた",
	"だよな", "じゃん", "えぐい", "やばい", "なんだけど",
	"正直", "結論から", "これは",
}

// Phrases that read like LLM boilerplate
var aiMarkers = []string{
	"素晴らしい", "革新的", "画期的", "いかがでしたか",
	"活用してみてください", "重要です", "解説します",
	"しましょう", "おすすめです",
}

var ctaPatterns = []*regexp.Regexp{
	regexp.MustCompile(`ブクマ`),
	regexp.MustCompile(`保存`),
	regexp.MustCompile(`プロフ`),
	regexp.MustCompile(`リンク`),
	regexp.MustCompile(`べき[。．]?$`),
	regexp.MustCompile(`一択[。．]?$`),
	regexp.MustCompile(`間違いない[。．]?$`),
	regexp.MustCompile(`ガチ[。．]?$`),
	regexp.MustCompile(`マジ[。．]?$`),
	regexp.MustCompile(`[。．]$`),
}

// Scorer rates post text on hook, specificity, humanity, structure and CTA,
// with penalties for URLs, hashtag excess and over-length.
type Scorer struct{}

func NewScorer() *Scorer {
	return &Scorer{}
}

// Score runs the full rubric over one post text
func (s *Scorer) Score(text string) models.PostScore {
	details := map[string]string{}
	lines := strings.Split(strings.TrimSpace(text), "\n")
	firstLine := ""
	if len(lines) > 0 {
		firstLine = lines[0]
	}

	hook := 0
	switch {
	case matchAny(strongHooks, firstLine):
		hook = 2
		details["hook"] = "強フック検出"
	case matchAny(mediumHooks, firstLine):
		hook = 1
		details["hook"] = "中フック検出"
	default:
		details["hook"] = "フック弱い"
	}

	specificity := 0
	numbers := numberPattern.FindAllString(text, -1)
	hasComparison := comparisonPattern.MatchString(text)
	tools := toolPattern.FindAllString(text, -1)
	switch {
	case len(numbers) >= 2 || (len(numbers) > 0 && hasComparison):
		specificity = 2
		details["specificity"] = fmt.Sprintf("数字%d個, 比較表現あり", len(numbers))
	case len(numbers) > 0 || len(tools) > 0:
		specificity = 1
		details["specificity"] = fmt.Sprintf("数字%d個 / ツール名%d個", len(numbers), len(tools))
	default:
		details["specificity"] = "具体性不足"
	}

	humanity := 0
	casualCount := countContains(text, casualMarkers)
	aiCount := countContains(text, aiMarkers)
	switch {
	case casualCount >= 2 && aiCount == 0:
		humanity = 2
		details["humanity"] = fmt.Sprintf("カジュアル表現%d個, AI感ゼロ", casualCount)
	case casualCount >= 1 && aiCount <= 1:
		humanity = 1
		details["humanity"] = fmt.Sprintf("カジュアル%d個, AI感%d個", casualCount, aiCount)
	default:
		details["humanity"] = fmt.Sprintf("人間味不足 (カジュアル%d, AI感%d)", casualCount, aiCount)
	}

	structure := 0
	textLen := len([]rune(strings.ReplaceAll(text, "\n", "")))
	lineCount := 0
	for _, line := range lines {
		if strings.TrimSpace(line) != "" {
			lineCount++
		}
	}
	if textLen >= 40 && textLen <= 280 && lineCount >= 3 {
		structure = 1
		details["structure"] = fmt.Sprintf("%d字, %d行 — OK", textLen, lineCount)
	} else {
		details["structure"] = fmt.Sprintf("%d字, %d行 — 要改善", textLen, lineCount)
	}

	cta := 0
	lastLines := text
	if len(lines) >= 2 {
		lastLines = strings.Join(lines[len(lines)-2:], "\n")
	}
	if matchAny(ctaPatterns, lastLines) {
		cta = 1
		details["cta"] = "CTA検出"
	} else {
		details["cta"] = "CTAなし"
	}

	penalty := 0
	var penalties []string
	if urlPattern.MatchString(text) {
		penalty--
		penalties = append(penalties, "URL含有")
	}
	if hashtags := hashtagPattern.FindAllString(text, -1); len(hashtags) > 3 {
		penalty--
		penalties = append(penalties, fmt.Sprintf("ハッシュタグ%d個", len(hashtags)))
	}
	if textLen > 280 {
		penalty--
		penalties = append(penalties, fmt.Sprintf("文字数超過(%d字)", textLen))
	}
	if len(penalties) > 0 {
		details["penalty"] = strings.Join(penalties, ", ")
	} else {
		details["penalty"] = "なし"
	}

	total := hook + specificity + humanity + structure + cta + penalty
	if total < 0 {
		total = 0
	}

	return models.PostScore{
		Total:       total,
		Hook:        hook,
		Specificity: specificity,
		Humanity:    humanity,
		Structure:   structure,
		CTA:         cta,
		Penalty:     penalty,
		Rank:        rankFor(total),
		Details:     details,
	}
}

func rankFor(total int) string {
	switch {
	case total >= 8:
		return "S"
	case total >= 6:
		return "A"
	case total >= 4:
		return "B"
	default:
		return "C"
	}
}

// FormatScore renders a score for Discord and CLI output
func FormatScore(s models.PostScore) string {
	return fmt.Sprintf(
		"📊 スコア: %d/8 [%s]\n"+
			"├ フック力: %d/2 (%s)\n"+
			"├ 具体性: %d/2 (%s)\n"+
			"├ 人間味: %d/2 (%s)\n"+
			"├ 構成: %d/1 (%s)\n"+
			"├ CTA: %d/1 (%s)\n"+
			"└ ペナルティ: %d (%s)",
		s.Total, s.Rank,
		s.Hook, s.Details["hook"],
		s.Specificity, s.Details["specificity"],
		s.Humanity, s.Details["humanity"],
		s.Structure, s.Details["structure"],
		s.CTA, s.Details["cta"],
		s.Penalty, s.Details["penalty"],
	)
}

func matchAny(patterns []*regexp.Regexp, s string) bool {
	for _, p := range patterns {
		if p.MatchString(s) {
			return true
		}
	}
	return false
}

func countContains(text string, markers []string) int {
	n := 0
	for _, m := range markers {
		if strings.Contains(text, m) {
			n++
		}
	}
	return n
}
