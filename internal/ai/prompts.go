package ai

import (
	"fmt"
	"strings"

	"github.com/xpost-agent/internal/models"
)

// Quote comment generation prompts
const (
	QuoteSystemPrompt = `あなたは日本語のXアカウント運用を手伝うゴーストライターだ。
海外でバズっているAI関連ツイートを引用RTし、独自の視点を乗せた日本語コメントを書く。

守るべきルール:
- 翻訳だけの投稿は禁止。必ず自分の意見・体験・解釈を加える
- タメ口ベースのカジュアルな文体。「です・ます」調は使わない
- 改行を使って読みやすくする
- ハッシュタグは使わない
- URLは書かない（引用元はAPIが自動付与する）
- 絵文字は最大1個まで
- 「素晴らしい」「革新的」「いかがでしたか」等のAI感のある表現は禁止`

	QuoteUserPromptFormat = `━━━━━━━━━━━━━━━━━━
■ 今回の条件
━━━━━━━━━━━━━━━━━━
- テンプレート: %s — %s
- テンプレートID: %s
%s
━━━━━━━━━━━━━━━━━━
■ 元ツイート情報
━━━━━━━━━━━━━━━━━━
- 著者: @%s (%s)
- いいね: %d件 / RT: %d件
- テキスト（英語原文）:
%s

━━━━━━━━━━━━━━━━━━
■ 出力
━━━━━━━━━━━━━━━━━━
ツイート本文だけを出力しろ。余計な説明は一切不要。120字以内。`
)

// Original post generation prompts
const (
	OriginalSystemPrompt = `あなたは日本語のXアカウント運用を手伝うゴーストライターだ。
アカウントの人格・文体を完全に再現し、フォロワーの心に刺さるオリジナル投稿を書く。

守るべきルール:
- 1行目で読者の手を止めるフックを作る（数字・感情・断定）
- 具体的な数字・ツール名を入れる
- タメ口ベースのカジュアルな文体
- 改行で視覚的なリズムを作る（3行以上）
- 文末はCTAか言い切りで締める
- ハッシュタグ・URLは使わない
- 「素晴らしい」「革新的」「いかがでしたか」等のAI感のある表現は禁止`

	OriginalUserPromptFormat = `━━━━━━━━━━━━━━━━━━
■ 今回の条件
━━━━━━━━━━━━━━━━━━
- 日付: %s (%s曜日)
- 投稿タイプ: %s
- 時間帯: %s
%s
━━━━━━━━━━━━━━━━━━
■ アカウント情報（人格・文体・ターゲット）
━━━━━━━━━━━━━━━━━━
%s

━━━━━━━━━━━━━━━━━━
■ 出力
━━━━━━━━━━━━━━━━━━
ツイート本文だけを出力しろ。余計な説明は一切不要。`
)

// BuildQuotePrompt assembles the user message for one quote comment
func BuildQuotePrompt(templateID, templateName, templateDesc, retryHint, authorUsername, authorName, originalText string, likes, retweets int) string {
	hint := ""
	if retryHint != "" {
		hint = "- リトライ指示: " + retryHint + "\n"
	}
	return fmt.Sprintf(QuoteUserPromptFormat,
		templateName, templateDesc, templateID, hint,
		authorUsername, authorName, likes, retweets, originalText)
}

// BuildOriginalPrompt assembles the user message for one original post
func BuildOriginalPrompt(dateISO, weekdayJA, postType, slotName, retryHint, masterData string) string {
	hint := ""
	if retryHint != "" {
		hint = "- リトライ指示: " + retryHint + "\n"
	}
	if len([]rune(masterData)) > 3000 {
		masterData = string([]rune(masterData)[:3000])
	}
	return fmt.Sprintf(OriginalUserPromptFormat,
		dateISO, weekdayJA, postType, slotName, hint, masterData)
}

// PersonaSection renders the optional style-profile block appended to the
// system prompt when a persona has been analyzed.
func PersonaSection(profile *models.PersonaProfile) string {
	if profile == nil {
		return ""
	}
	return "\n\n" + profile.PromptInjection()
}

// OverridesSection renders the control-plane prompt overrides
func OverridesSection(o models.PromptOverrides) string {
	var lines []string
	if o.PersonaName != "" {
		lines = append(lines, "- 名前: "+o.PersonaName)
	}
	if o.FirstPerson != "" {
		lines = append(lines, "- 一人称: "+o.FirstPerson)
	}
	if o.Position != "" {
		lines = append(lines, "- ポジション: "+o.Position)
	}
	if o.Differentiator != "" {
		lines = append(lines, "- 差別化ポイント: "+o.Differentiator)
	}
	if o.Tone != "" {
		lines = append(lines, "- トーン: "+o.Tone)
	}
	if len(o.StylePatterns) > 0 {
		lines = append(lines, "- 文体パターン: "+strings.Join(o.StylePatterns, "、"))
	}
	if len(o.NGWords) > 0 {
		lines = append(lines, "- 使用禁止ワード: "+strings.Join(o.NGWords, "、"))
	}
	if o.CustomDirective != "" {
		lines = append(lines, "- 追加指示: "+o.CustomDirective)
	}
	if len(lines) == 0 {
		return ""
	}
	return "\n\n━━━━━━━━━━━━━━━━━━\n■ 運用者からの上書き指示\n━━━━━━━━━━━━━━━━━━\n" + strings.Join(lines, "\n")
}

// VariationSection lists the openings of the most recent posts so the next
// one starts differently. At most five are included.
func VariationSection(pastPosts []string) string {
	if len(pastPosts) == 0 {
		return ""
	}
	start := len(pastPosts) - 5
	if start < 0 {
		start = 0
	}
	var lines []string
	for _, p := range pastPosts[start:] {
		opening := strings.SplitN(strings.TrimSpace(p), "\n", 2)[0]
		if r := []rune(opening); len(r) > 20 {
			opening = string(r[:20]) + "…"
		}
		if opening != "" {
			lines = append(lines, "- "+opening)
		}
	}
	if len(lines) == 0 {
		return ""
	}
	return "\n\n━━━━━━━━━━━━━━━━━━\n■ 直近投稿の書き出し\n━━━━━━━━━━━━━━━━━━\n以下と同じ書き出しパターンは避けろ:\n" + strings.Join(lines, "\n")
}

// RetryHint summarizes what the next attempt must fix
func RetryHint(score models.PostScore, safety models.SafetyResult, minScore int) string {
	var hints []string
	if score.Total < minScore {
		if score.Hook < 2 {
			hints = append(hints, "フックをもっと強くしろ（数字・感情・断定を使え）")
		}
		if score.Specificity < 2 {
			hints = append(hints, "具体的な数字やツール名を入れろ")
		}
		if score.Humanity < 2 {
			hints = append(hints, "もっとカジュアルに。「マジで」「ぶっちゃけ」等を使え")
		}
	}
	if !safety.IsSafe {
		hints = append(hints, "以下を修正: "+strings.Join(safety.Violations, ", "))
	}
	return strings.Join(hints, "; ")
}
