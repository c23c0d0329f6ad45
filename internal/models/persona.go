package models

import (
	"fmt"
	"strings"
)

// PersonaProfile is the style profile derived from a target account's posts
type PersonaProfile struct {
	Username           string   `json:"username"`
	TweetCountAnalyzed int      `json:"tweet_count_analyzed"`
	FirstPerson        string   `json:"first_person"`
	SentenceEndings    []string `json:"sentence_endings"`
	Catchphrases       []string `json:"catchphrases"`
	EmotionWords       []string `json:"emotion_words"`
	AvgTweetLength     float64  `json:"avg_tweet_length"`
	AvgLineCount       float64  `json:"avg_line_count"`
	KanjiRatio         float64  `json:"kanji_ratio"`
	UsesEmoji          bool     `json:"uses_emoji"`
	EmojiFrequency     float64  `json:"emoji_frequency"`
	TopEmojis          []string `json:"top_emojis"`
	PunctuationStyle   string   `json:"punctuation_style"`
	FormalityLevel     string   `json:"formality_level"`
	Tone               string   `json:"tone,omitempty"`
	Topics             []string `json:"topics,omitempty"`
	ContentTypes       []string `json:"content_types,omitempty"`
	PromptSummary      string   `json:"prompt_summary,omitempty"`
	SampleTweets       []string `json:"sample_tweets"`
	AnalyzedAt         string   `json:"analyzed_at"`
}

// PromptInjection renders the profile as the Markdown block appended to
// generation prompts. Output is deterministic for a given profile.
func (p *PersonaProfile) PromptInjection() string {
	var b strings.Builder

	fmt.Fprintf(&b, "## 文体プロファイル（@%s）\n\n", p.Username)
	fmt.Fprintf(&b, "分析ツイート数: %d件\n\n", p.TweetCountAnalyzed)

	if p.FirstPerson != "" {
		fmt.Fprintf(&b, "- 一人称: %s\n", p.FirstPerson)
	}
	if len(p.SentenceEndings) > 0 {
		fmt.Fprintf(&b, "- 文末パターン: %s\n", strings.Join(p.SentenceEndings, "、"))
	}
	if len(p.Catchphrases) > 0 {
		fmt.Fprintf(&b, "- 口癖: %s\n", strings.Join(p.Catchphrases, "、"))
	}
	if len(p.EmotionWords) > 0 {
		fmt.Fprintf(&b, "- 感情表現: %s\n", strings.Join(p.EmotionWords, "、"))
	}
	fmt.Fprintf(&b, "- 平均文字数: %.0f文字 / 平均行数: %.1f行\n", p.AvgTweetLength, p.AvgLineCount)
	if p.UsesEmoji {
		fmt.Fprintf(&b, "- 絵文字: 使用する（よく使う: %s）\n", strings.Join(p.TopEmojis, " "))
	} else {
		b.WriteString("- 絵文字: 基本使わない\n")
	}
	if p.PunctuationStyle != "" {
		fmt.Fprintf(&b, "- 句読点スタイル: %s\n", p.PunctuationStyle)
	}
	if p.FormalityLevel != "" {
		fmt.Fprintf(&b, "- 敬語レベル: %s\n", p.FormalityLevel)
	}
	if p.Tone != "" {
		fmt.Fprintf(&b, "- トーン: %s\n", p.Tone)
	}
	if len(p.Topics) > 0 {
		fmt.Fprintf(&b, "- よく扱うトピック: %s\n", strings.Join(p.Topics, "、"))
	}
	if p.PromptSummary != "" {
		fmt.Fprintf(&b, "\n%s\n", p.PromptSummary)
	}

	if len(p.SampleTweets) > 0 {
		b.WriteString("\n### 実際の投稿例\n\n")
		for _, s := range p.SampleTweets {
			fmt.Fprintf(&b, "---\n%s\n", s)
		}
	}

	b.WriteString("\nこの文体を忠実に再現して書くこと。\n")
	return b.String()
}
