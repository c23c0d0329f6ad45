package safety

import (
	"strings"
	"testing"

	"github.com/xpost-agent/pkg/logger"
)

func newGate(t *testing.T) *Gate {
	t.Helper()
	rules := DefaultRules()
	rules.NGWords = map[string][]string{
		"political": {"選挙", "政権"},
		"sensitive": {"scam"},
	}
	return NewGate(rules, logger.Default())
}

// 50 chars of plain prose, inside the default length band
const okText = "エンジニアの学習は毎日の積み重ねがすべて。小さなアウトプットを続けることが一番の近道だと思う。"

func TestCheckPasses(t *testing.T) {
	g := newGate(t)
	res := g.Check(okText, nil, -1, false, nil)
	if !res.IsSafe {
		t.Fatalf("expected safe, violations: %v", res.Violations)
	}
}

func TestCheckNGWord(t *testing.T) {
	g := newGate(t)
	res := g.Check(okText+" 政権の話", nil, -1, false, nil)
	if res.IsSafe {
		t.Fatal("expected NG word violation")
	}
}

func TestCheckLengthBands(t *testing.T) {
	g := newGate(t)

	if res := g.Check("短すぎる", nil, -1, false, nil); res.IsSafe {
		t.Error("short original should fail")
	}
	if res := g.Check(strings.Repeat("あ", 300), nil, -1, false, nil); res.IsSafe {
		t.Error("long original should fail")
	}
	// newlines don't count toward length
	if res := g.Check(okText+"\n\n\n", nil, -1, false, nil); !res.IsSafe {
		t.Errorf("newlines counted toward length: %v", res.Violations)
	}
	// quote band is 30..250
	quote := strings.Repeat("あ", 35)
	if res := g.Check(quote, nil, -1, true, nil); !res.IsSafe {
		t.Errorf("35-char quote should pass: %v", res.Violations)
	}
	if res := g.Check(strings.Repeat("あ", 260), nil, -1, true, nil); res.IsSafe {
		t.Error("260-char quote should fail")
	}
}

func TestCheckHashtagsAndLinks(t *testing.T) {
	g := newGate(t)

	res := g.Check(okText+" #a #b #c #d", nil, -1, false, nil)
	if res.IsSafe {
		t.Error("4 hashtags should fail")
	}

	res = g.Check(okText+" https://a.example https://b.example", nil, -1, false, nil)
	if res.IsSafe {
		t.Error("2 links in original should fail")
	}

	// URL in a quote comment is a warning, not a violation
	quote := strings.Repeat("あ", 40) + " https://a.example"
	res = g.Check(quote, nil, -1, true, nil)
	if !res.IsSafe {
		t.Errorf("quote with URL should still be safe: %v", res.Violations)
	}
	if len(res.Warnings) == 0 {
		t.Error("expected URL warning on quote")
	}
}

func TestCheckDuplicate(t *testing.T) {
	g := newGate(t)
	res := g.Check(okText, []string{okText}, -1, false, nil)
	if res.IsSafe {
		t.Error("identical past post should fail")
	}
	res = g.Check(okText, []string{"全く違う内容のツイートで、共通点はほとんどありません。話題も文体も別物です。"}, -1, false, nil)
	if !res.IsSafe {
		t.Errorf("unrelated past post flagged: %v", res.Violations)
	}
}

func TestCheckInterval(t *testing.T) {
	g := newGate(t)
	if res := g.Check(okText, nil, 30, false, nil); res.IsSafe {
		t.Error("30 minutes since last post should fail")
	}
	if res := g.Check(okText, nil, 90, false, nil); !res.IsSafe {
		t.Errorf("90 minutes should pass: %v", res.Violations)
	}
}

func TestCheckQuoteContext(t *testing.T) {
	g := newGate(t)
	quote := strings.Repeat("あ", 40)

	res := g.Check(quote, nil, -1, true, &QuoteContext{
		SourceUsername:       "naval",
		TodaySameSourceCount: 1,
	})
	if res.IsSafe {
		t.Error("second quote of same source today should fail")
	}

	res = g.Check(quote, nil, -1, true, &QuoteContext{ConsecutiveQuoteCount: 2})
	if !res.IsSafe {
		t.Errorf("consecutive quotes is a warning only: %v", res.Violations)
	}
	if len(res.Warnings) == 0 {
		t.Error("expected consecutive-quote warning")
	}

	res = g.Check(quote+" Translation: something", nil, -1, true, &QuoteContext{})
	if res.IsSafe {
		t.Error("translation pattern should fail")
	}
}

func TestSimilarity(t *testing.T) {
	if got := Similarity("abc", "abc"); got != 1.0 {
		t.Errorf("identical = %v", got)
	}
	if got := Similarity("abc", "xyz"); got != 0.0 {
		t.Errorf("disjoint = %v", got)
	}
	if got := Similarity("", ""); got != 1.0 {
		t.Errorf("empty = %v", got)
	}
	mid := Similarity("今日はいい天気ですね", "今日は悪い天気ですね")
	if mid <= 0.5 || mid >= 1.0 {
		t.Errorf("partial overlap = %v", mid)
	}
}

func TestLoadRulesMissingFile(t *testing.T) {
	rules, err := LoadRules("/nonexistent/safety_rules.json")
	if err != nil {
		t.Fatal(err)
	}
	if rules.ContentRules.MaxLength != 280 {
		t.Errorf("default max length = %d", rules.ContentRules.MaxLength)
	}
}
