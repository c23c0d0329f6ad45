package selection

import (
	"math"
	"strings"
	"unicode/utf8"

	"github.com/xpost-agent/internal/models"
)

const (
	baseScore       = 1.0
	keywordScoreCap = 2.0
	preferredBonus  = 1.0
	avoidPenalty    = 1.5
	boostMultiplier = 1.5
	focusBonus      = 0.5
)

// ScoreResult is the outcome of matching one candidate against preferences
type ScoreResult struct {
	PreferenceScore float64  `json:"preference_score"`
	MatchedTopics   []string `json:"matched_topics"`
	MatchedKeywords []string `json:"matched_keywords"`
	IsBlocked       bool     `json:"is_blocked"`
	IsFocusMatch    bool     `json:"is_focus_match"`
}

// Scorer applies keyword and topic-cluster matching to candidate text.
// It holds no state beyond the preference document, so one instance can
// score a whole collection batch.
type Scorer struct {
	prefs *models.Preferences
}

func NewScorer(prefs *models.Preferences) *Scorer {
	return &Scorer{prefs: prefs}
}

// Score rates a tweet against the preference document. Blocked authors short
// out at zero. Otherwise the score starts at 1.0, adds capped keyword
// weights, topic preference bonuses and avoid penalties, a 1.5x boost for
// boosted authors, and weekly focus bonuses, clamped at zero.
func (s *Scorer) Score(text, authorUsername string) ScoreResult {
	textLower := strings.ToLower(text)

	if s.prefs.IsBlocked(authorUsername) {
		return ScoreResult{IsBlocked: true, MatchedTopics: []string{}, MatchedKeywords: []string{}}
	}

	score := baseScore

	matchedKeywords := []string{}
	keywordScore := 0.0
	for keyword, weight := range s.prefs.KeywordWeights {
		if strings.Contains(textLower, strings.ToLower(keyword)) {
			matchedKeywords = append(matchedKeywords, keyword)
			keywordScore += weight
		}
	}
	if keywordScore > 0 {
		score += math.Min(keywordScore, keywordScoreCap)
	}

	matchedTopics := s.classifyTopics(textLower)
	for _, topic := range matchedTopics {
		if containsFold(s.prefs.TopicPreferences.Preferred, topic) {
			score += preferredBonus
		} else if containsFold(s.prefs.TopicPreferences.Avoid, topic) {
			score -= avoidPenalty
		}
	}

	if s.prefs.IsBoosted(authorUsername) {
		score *= boostMultiplier
	}

	isFocusMatch := false
	for _, fk := range s.prefs.WeeklyFocus.FocusKeywords {
		if strings.Contains(textLower, strings.ToLower(fk)) {
			isFocusMatch = true
			score += focusBonus
			break
		}
	}
	if containsFold(s.prefs.WeeklyFocus.FocusAccounts, authorUsername) {
		isFocusMatch = true
		score += focusBonus
	}

	if score < 0 {
		score = 0
	}

	return ScoreResult{
		PreferenceScore: math.Round(score*100) / 100,
		MatchedTopics:   matchedTopics,
		MatchedKeywords: matchedKeywords,
		IsFocusMatch:    isFocusMatch,
	}
}

// classifyTopics assigns topic clusters where at least two cluster keywords
// match, or a single sufficiently distinctive one (5+ chars) does.
func (s *Scorer) classifyTopics(textLower string) []string {
	matched := []string{}
	for topic, keywords := range s.prefs.TopicClusters {
		count := 0
		longHit := false
		for _, kw := range keywords {
			if strings.Contains(textLower, strings.ToLower(kw)) {
				count++
				if utf8.RuneCountInString(kw) >= 5 {
					longHit = true
				}
			}
		}
		if count >= 2 || (count == 1 && longHit) {
			matched = append(matched, topic)
		}
	}
	return matched
}

// BlendedRank combines raw engagement with the preference score so curation
// can sort candidates. A zero preference score still ranks by engagement at
// a tenth of its weight rather than disappearing.
func BlendedRank(likes, retweets int, preferenceScore float64) float64 {
	return float64(likes+3*retweets) * math.Max(preferenceScore, 0.1)
}

func containsFold(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}
