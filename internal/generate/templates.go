// Package generate turns approved candidates into publishable Japanese text:
// quote comments over five rotating templates and scheduled original posts,
// each scored and safety-checked with bounded retries.
package generate

import (
	"math/rand"
	"sync"
	"time"
)

// Template is one quote-comment pattern
type Template struct {
	ID           string
	Name         string
	Description  string
	MaxDailyUses int
}

// The five rotation templates. Daily caps keep any single pattern from
// dominating the feed.
var quoteTemplates = []Template{
	{"translate_comment", "翻訳+コメント型", "要点を日本語にしつつ自分の見解を乗せる", 2},
	{"summary_points", "要点まとめ型", "箇条書きでポイントを整理して締めの一言", 2},
	{"question_prompt", "問題提起型", "読者への問いかけで議論を誘発する", 2},
	{"practice_report", "実践レポート型", "自分で試した結果を報告する", 2},
	{"breaking_news", "速報型", "鮮度を強調して今知るべき理由を語る", 2},
}

// Consecutive picks avoid this many of the most recently used templates
const recentTemplateWindow = 2

// TemplateRegistry tracks per-day template usage and picks the next template
type TemplateRegistry struct {
	mu        sync.Mutex
	usage     map[string]int
	usageDate string
	recent    []string
	rng       *rand.Rand
	now       func() time.Time
}

func NewTemplateRegistry() *TemplateRegistry {
	return &TemplateRegistry{
		usage: map[string]int{},
		rng:   rand.New(rand.NewSource(time.Now().UnixNano())),
		now:   time.Now,
	}
}

// Templates returns the full rotation set
func Templates() []Template {
	out := make([]Template, len(quoteTemplates))
	copy(out, quoteTemplates)
	return out
}

// TemplateByID looks up a template; ok is false for unknown ids
func TemplateByID(id string) (Template, bool) {
	for _, t := range quoteTemplates {
		if t.ID == id {
			return t, true
		}
	}
	return Template{}, false
}

// Pick selects a template, respecting daily caps, the control-plane enabled
// set, and the recently-used window. preferred wins when it is enabled and
// still under its cap. Usage resets when the date changes.
func (r *TemplateRegistry) Pick(preferred string, enabled []string) Template {
	r.mu.Lock()
	defer r.mu.Unlock()

	today := r.now().Format("2006-01-02")
	if r.usageDate != today {
		r.usage = map[string]int{}
		r.usageDate = today
	}

	pool := quoteTemplates
	if len(enabled) > 0 {
		var filtered []Template
		for _, t := range quoteTemplates {
			if containsID(enabled, t.ID) {
				filtered = append(filtered, t)
			}
		}
		// An enabled list naming only unknown ids is ignored
		if len(filtered) > 0 {
			pool = filtered
		}
	}

	if t, ok := TemplateByID(preferred); ok && containsTemplate(pool, t.ID) && r.usage[t.ID] < t.MaxDailyUses {
		return t
	}

	var available []Template
	for _, t := range pool {
		if r.usage[t.ID] < t.MaxDailyUses && !containsID(r.recent, t.ID) {
			available = append(available, t)
		}
	}
	// Relax the recency window first, then the daily caps, rather than stalling
	if len(available) == 0 {
		for _, t := range pool {
			if r.usage[t.ID] < t.MaxDailyUses {
				available = append(available, t)
			}
		}
	}
	if len(available) == 0 {
		available = pool
	}
	return available[r.rng.Intn(len(available))]
}

// MarkUsed records one use of a template and pushes it onto the recency window
func (r *TemplateRegistry) MarkUsed(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.usage[id]++
	r.recent = append(r.recent, id)
	if len(r.recent) > recentTemplateWindow {
		r.recent = r.recent[len(r.recent)-recentTemplateWindow:]
	}
}

func containsID(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

func containsTemplate(pool []Template, id string) bool {
	for _, t := range pool {
		if t.ID == id {
			return true
		}
	}
	return false
}
