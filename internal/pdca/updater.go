// Package pdca closes the weekly feedback loop: it analyzes operator
// decisions, auto-adjusts selection preferences, mines posted metrics for
// winning patterns and renders the weekly report.
package pdca

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/xpost-agent/internal/models"
	"github.com/xpost-agent/internal/selection"
	"github.com/xpost-agent/pkg/logger"
)

// Adjustment thresholds
const (
	MinDecisionsForAdjust = 10
	PromoteThreshold      = 0.80
	DemoteThreshold       = 0.30
	MaxWeightChange       = 0.5

	keywordBoostStep  = 0.2
	keywordReduceStep = 0.3
	maxKeywordWeight  = 3.0
)

// Recommendation is one promote/demote candidate with its approval stats
type Recommendation struct {
	Name  string  `json:"name"`
	Rate  float64 `json:"rate"`
	Count int     `json:"count"`
}

// SkipReason is one aggregated skip reason
type SkipReason struct {
	Reason string `json:"reason"`
	Count  int    `json:"count"`
}

// Analysis is the digest of the feedback log driving auto adjustment
type Analysis struct {
	TotalDecisions int              `json:"total_decisions"`
	ApprovalRate   float64          `json:"approval_rate"`
	AccountPromote []Recommendation `json:"account_promote"`
	AccountDemote  []Recommendation `json:"account_demote"`
	KeywordBoost   []Recommendation `json:"keyword_boost"`
	KeywordReduce  []Recommendation `json:"keyword_reduce"`
	TopicBoost     []Recommendation `json:"topic_boost"`
	TopicReduce    []Recommendation `json:"topic_reduce"`
	TopSkipReasons []SkipReason     `json:"top_skip_reasons"`
}

// UpdateResult summarizes one auto-adjustment run
type UpdateResult struct {
	Changes []string `json:"changes"`
	Summary string   `json:"summary"`
}

// Updater turns feedback stats into preference adjustments
type Updater struct {
	prefs *selection.PreferenceStore
	log   *logger.Logger
	now   func() time.Time
}

func NewUpdater(prefs *selection.PreferenceStore, log *logger.Logger) *Updater {
	return &Updater{
		prefs: prefs,
		log:   log.WithComponent("pdca"),
		now:   time.Now,
	}
}

// Analyze classifies every aggregation key of the feedback stats into
// promote/demote buckets. Keys with too few decisions are ignored.
func (u *Updater) Analyze(stats models.FeedbackStats) Analysis {
	a := Analysis{
		TotalDecisions: stats.Total,
		ApprovalRate:   round3(stats.ApprovalRate()),
	}
	if stats.Total == 0 {
		return a
	}

	a.AccountPromote, a.AccountDemote = classify(stats.BySource)
	a.KeywordBoost, a.KeywordReduce = classify(stats.ByKeyword)
	a.TopicBoost, a.TopicReduce = classify(stats.ByTopic)

	for reason, count := range stats.ByReason {
		a.TopSkipReasons = append(a.TopSkipReasons, SkipReason{Reason: reason, Count: count})
	}
	sort.Slice(a.TopSkipReasons, func(i, j int) bool {
		if a.TopSkipReasons[i].Count != a.TopSkipReasons[j].Count {
			return a.TopSkipReasons[i].Count > a.TopSkipReasons[j].Count
		}
		return a.TopSkipReasons[i].Reason < a.TopSkipReasons[j].Reason
	})
	if len(a.TopSkipReasons) > 5 {
		a.TopSkipReasons = a.TopSkipReasons[:5]
	}
	return a
}

// AutoUpdate applies the analysis to the preference document. With dryRun
// the changes are reported but nothing is saved.
func (u *Updater) AutoUpdate(stats models.FeedbackStats, dryRun bool) (*UpdateResult, error) {
	analysis := u.Analyze(stats)

	if analysis.TotalDecisions < MinDecisionsForAdjust {
		return &UpdateResult{
			Summary: fmt.Sprintf("データ不足（%d/%d件）。調整スキップ。", analysis.TotalDecisions, MinDecisionsForAdjust),
		}, nil
	}

	prefs := u.prefs.Load()
	var changes []string

	// Keyword weights
	for _, rec := range analysis.KeywordBoost {
		current := weightOf(prefs.KeywordWeights, rec.Name)
		next := math.Min(math.Min(current+keywordBoostStep, current+MaxWeightChange), maxKeywordWeight)
		next = round1(next)
		if next != current {
			prefs.KeywordWeights[rec.Name] = next
			changes = append(changes, fmt.Sprintf("キーワード '%s' weight: %v → %v (承認率%.0f%%)", rec.Name, current, next, rec.Rate*100))
		}
	}
	for _, rec := range analysis.KeywordReduce {
		current := weightOf(prefs.KeywordWeights, rec.Name)
		next := math.Max(math.Max(current-keywordReduceStep, current-MaxWeightChange), 0.0)
		next = round1(next)
		if next != current {
			prefs.KeywordWeights[rec.Name] = next
			changes = append(changes, fmt.Sprintf("キーワード '%s' weight: %v → %v (承認率%.0f%%)", rec.Name, current, next, rec.Rate*100))
		}
	}

	// Boosted accounts
	boosted := toSet(prefs.AccountOverrides.Boosted)
	for _, rec := range analysis.AccountPromote {
		if !boosted[rec.Name] {
			boosted[rec.Name] = true
			changes = append(changes, fmt.Sprintf("アカウント @%s → 優先追加 (承認率%.0f%%)", rec.Name, rec.Rate*100))
		}
	}
	for _, rec := range analysis.AccountDemote {
		if boosted[rec.Name] {
			delete(boosted, rec.Name)
			changes = append(changes, fmt.Sprintf("アカウント @%s → 優先解除 (承認率%.0f%%)", rec.Name, rec.Rate*100))
		}
	}
	prefs.AccountOverrides.Boosted = toSorted(boosted)

	// Topic preferred/avoid swaps
	preferred := toSet(prefs.TopicPreferences.Preferred)
	avoid := toSet(prefs.TopicPreferences.Avoid)
	for _, rec := range analysis.TopicBoost {
		switch {
		case avoid[rec.Name]:
			delete(avoid, rec.Name)
			preferred[rec.Name] = true
			changes = append(changes, fmt.Sprintf("トピック '%s' → 回避→優先に変更 (承認率%.0f%%)", rec.Name, rec.Rate*100))
		case !preferred[rec.Name]:
			preferred[rec.Name] = true
			changes = append(changes, fmt.Sprintf("トピック '%s' → 優先追加 (承認率%.0f%%)", rec.Name, rec.Rate*100))
		}
	}
	for _, rec := range analysis.TopicReduce {
		switch {
		case preferred[rec.Name]:
			delete(preferred, rec.Name)
			avoid[rec.Name] = true
			changes = append(changes, fmt.Sprintf("トピック '%s' → 優先→回避に変更 (承認率%.0f%%)", rec.Name, rec.Rate*100))
		case !avoid[rec.Name]:
			avoid[rec.Name] = true
			changes = append(changes, fmt.Sprintf("トピック '%s' → 回避追加 (承認率%.0f%%)", rec.Name, rec.Rate*100))
		}
	}
	prefs.TopicPreferences.Preferred = toSorted(preferred)
	prefs.TopicPreferences.Avoid = toSorted(avoid)

	prefs.UpdatedBy = "auto_pdca"
	prefs.Version++

	if !dryRun && len(changes) > 0 {
		if err := u.prefs.Save(prefs); err != nil {
			return nil, fmt.Errorf("save preferences: %w", err)
		}
	}

	summary := "調整なし（条件を満たす項目なし）"
	if len(changes) > 0 {
		summary = fmt.Sprintf("調整%d件", len(changes))
	}
	return &UpdateResult{Changes: changes, Summary: summary}, nil
}

// Report renders the selection-PDCA section of the weekly report
func (u *Updater) Report(stats models.FeedbackStats) string {
	analysis := u.Analyze(stats)
	if analysis.TotalDecisions == 0 {
		return "📊 **選定PDCA**: フィードバックデータなし"
	}

	report := fmt.Sprintf("🎯 **選定PDCA分析**\n━━━━━━━━━━━━━━━━━━\n判断数: %d件\n承認率: %.1f%%\n",
		analysis.TotalDecisions, analysis.ApprovalRate*100)

	if len(analysis.AccountPromote) > 0 {
		report += "\n✅ **高承認率アカウント:**\n"
		for _, rec := range top(analysis.AccountPromote, 3) {
			report += fmt.Sprintf("  @%s: %.0f%% (%d件)\n", rec.Name, rec.Rate*100, rec.Count)
		}
	}
	if len(analysis.AccountDemote) > 0 {
		report += "\n⚠️ **低承認率アカウント:**\n"
		for _, rec := range top(analysis.AccountDemote, 3) {
			report += fmt.Sprintf("  @%s: %.0f%% (%d件)\n", rec.Name, rec.Rate*100, rec.Count)
		}
	}
	if len(analysis.TopSkipReasons) > 0 {
		report += "\n📋 **スキップ理由TOP:**\n"
		labels := map[string]string{
			"topic_mismatch":   "トピック不一致",
			"source_untrusted": "ソース不適切",
			"too_old":          "古すぎる",
			"low_quality":      "品質不足",
			"off_brand":        "ブランド不適合",
			"other":            "その他",
		}
		n := len(analysis.TopSkipReasons)
		if n > 3 {
			n = 3
		}
		for _, sr := range analysis.TopSkipReasons[:n] {
			label := sr.Reason
			if l, ok := labels[sr.Reason]; ok {
				label = l
			}
			report += fmt.Sprintf("  %s: %d件\n", label, sr.Count)
		}
	}
	return report
}

func classify(counts map[string]models.DecisionCount) (promote, demote []Recommendation) {
	for name, c := range counts {
		if c.Total() < MinDecisionsForAdjust {
			continue
		}
		rec := Recommendation{Name: name, Rate: round3(c.Rate()), Count: c.Total()}
		switch {
		case rec.Rate >= PromoteThreshold:
			promote = append(promote, rec)
		case rec.Rate <= DemoteThreshold:
			demote = append(demote, rec)
		}
	}
	sort.Slice(promote, func(i, j int) bool {
		if promote[i].Rate != promote[j].Rate {
			return promote[i].Rate > promote[j].Rate
		}
		return promote[i].Name < promote[j].Name
	})
	sort.Slice(demote, func(i, j int) bool {
		if demote[i].Rate != demote[j].Rate {
			return demote[i].Rate < demote[j].Rate
		}
		return demote[i].Name < demote[j].Name
	})
	return promote, demote
}

func top(recs []Recommendation, n int) []Recommendation {
	if len(recs) > n {
		return recs[:n]
	}
	return recs
}

func weightOf(weights map[string]float64, keyword string) float64 {
	if w, ok := weights[keyword]; ok {
		return w
	}
	return 1.0
}

func toSet(items []string) map[string]bool {
	set := make(map[string]bool, len(items))
	for _, item := range items {
		set[item] = true
	}
	return set
}

func toSorted(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for item := range set {
		out = append(out, item)
	}
	sort.Strings(out)
	return out
}

func round1(v float64) float64 { return math.Round(v*10) / 10 }
func round3(v float64) float64 { return math.Round(v*1000) / 1000 }
