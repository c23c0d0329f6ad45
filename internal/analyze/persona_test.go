package analyze

import (
	"context"
	"strings"
	"testing"

	"github.com/xpost-agent/pkg/logger"
)

type fakeLLM struct {
	response string
	err      error
}

func (f *fakeLLM) Complete(_ context.Context, _ string) (string, error) {
	return f.response, f.err
}

func casualTweets() []string {
	return []string{
		"ぶっちゃけ自動化は最強だと思う。\n僕は毎朝30分浮いてる。\nマジでやらない理由がない。",
		"僕がGASで作った集計スクリプト、\n3時間かかってた作業が5分になった。\nやばいよなこれ。",
		"正直、僕はもうスプシなしでは仕事できない。\nマジで依存してる。",
		"新しいツール試してみた。\n僕的には結構アリ。\nしばらく使ってみる。",
		"今日の学び。\n完璧を目指すより、まず出すこと。\n僕はこれで失敗してきた。",
	}
}

func TestAnalyzeStatisticalProfile(t *testing.T) {
	a := NewPersonaAnalyzer(nil, logger.Default())
	profile := a.Analyze(context.Background(), casualTweets(), "testuser")

	if profile.Username != "testuser" {
		t.Errorf("username = %q", profile.Username)
	}
	if profile.TweetCountAnalyzed != 5 {
		t.Errorf("count = %d", profile.TweetCountAnalyzed)
	}
	if profile.FirstPerson != "僕" {
		t.Errorf("first person = %q, want 僕", profile.FirstPerson)
	}
	if profile.AvgTweetLength <= 0 || profile.AvgLineCount < 2 {
		t.Errorf("structure: len=%.1f lines=%.1f", profile.AvgTweetLength, profile.AvgLineCount)
	}
	if profile.KanjiRatio <= 0 || profile.KanjiRatio >= 1 {
		t.Errorf("kanji ratio = %.2f", profile.KanjiRatio)
	}
	if profile.UsesEmoji {
		t.Error("no emoji in corpus but UsesEmoji set")
	}
	if profile.FormalityLevel == "" {
		t.Error("formality level empty")
	}

	found := false
	for _, w := range profile.EmotionWords {
		if w == "マジで" {
			found = true
		}
	}
	if !found {
		t.Errorf("emotion words missing マジで: %v", profile.EmotionWords)
	}
}

func TestAnalyzeEmptyInput(t *testing.T) {
	a := NewPersonaAnalyzer(nil, logger.Default())
	profile := a.Analyze(context.Background(), nil, "empty")
	if profile.TweetCountAnalyzed != 0 {
		t.Errorf("count = %d", profile.TweetCountAnalyzed)
	}
	if profile.FirstPerson != "" {
		t.Errorf("first person = %q", profile.FirstPerson)
	}
}

func TestAnalyzeWithLLMPass(t *testing.T) {
	llm := &fakeLLM{response: `Here you go:
{
  "tone": "カジュアルだが実務的",
  "topics": ["業務自動化", "AIツール"],
  "content_types": {"意見・主張": 0.4, "実体験報告": 0.6},
  "prompt_summary": "一人称は僕。タメ口で断定的に書く。"
}`}
	a := NewPersonaAnalyzer(llm, logger.Default())
	profile := a.Analyze(context.Background(), casualTweets(), "testuser")

	if profile.Tone != "カジュアルだが実務的" {
		t.Errorf("tone = %q", profile.Tone)
	}
	if len(profile.Topics) != 2 {
		t.Errorf("topics = %v", profile.Topics)
	}
	if profile.PromptSummary == "" {
		t.Error("prompt summary empty")
	}
}

func TestAnalyzeLLMFailureKeepsStats(t *testing.T) {
	llm := &fakeLLM{response: "no json here at all"}
	a := NewPersonaAnalyzer(llm, logger.Default())
	profile := a.Analyze(context.Background(), casualTweets(), "testuser")
	if profile.FirstPerson != "僕" {
		t.Error("statistical fields should survive LLM failure")
	}
	if profile.Tone != "" {
		t.Errorf("tone = %q", profile.Tone)
	}
}

func TestPromptInjectionRendering(t *testing.T) {
	a := NewPersonaAnalyzer(nil, logger.Default())
	profile := a.Analyze(context.Background(), casualTweets(), "testuser")
	out := profile.PromptInjection()
	for _, want := range []string{"@testuser", "一人称: 僕", "この文体を忠実に再現して書くこと。"} {
		if !strings.Contains(out, want) {
			t.Errorf("injection missing %q:\n%s", want, out)
		}
	}
}
