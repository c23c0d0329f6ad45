package selection

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/xpost-agent/internal/models"
)

const newKeywordWeight = 2.0

// ApplyRemoteOverrides maps the flat key/value document the control plane
// exposes (dashboard or preference sheet) onto the local preference
// structure. Empty values leave the local setting untouched. Returns the
// keys that changed.
func ApplyRemoteOverrides(prefs *models.Preferences, raw map[string]string) []string {
	var updated []string

	if v := raw["weekly_focus"]; v != "" {
		prefs.WeeklyFocus.Directive = v
		updated = append(updated, "weekly_focus")
	}
	if v := raw["focus_keywords"]; v != "" {
		prefs.WeeklyFocus.FocusKeywords = splitCSV(v)
		updated = append(updated, "focus_keywords")
	}
	if v := raw["focus_accounts"]; v != "" {
		prefs.WeeklyFocus.FocusAccounts = splitCSV(v)
		updated = append(updated, "focus_accounts")
	}

	if v := raw["preferred_topics"]; v != "" {
		prefs.TopicPreferences.Preferred = splitCSV(v)
		updated = append(updated, "preferred_topics")
	}
	if v := raw["avoid_topics"]; v != "" {
		prefs.TopicPreferences.Avoid = splitCSV(v)
		updated = append(updated, "avoid_topics")
	}

	if v := raw["boosted_accounts"]; v != "" {
		prefs.AccountOverrides.Boosted = splitCSV(v)
		updated = append(updated, "boosted_accounts")
	}
	if v := raw["blocked_accounts"]; v != "" {
		prefs.AccountOverrides.Blocked = splitCSV(v)
		updated = append(updated, "blocked_accounts")
	}

	if v := raw["min_likes_override"]; v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			prefs.ThresholdOverrides.MinLikes = n
			updated = append(updated, "min_likes_override")
		}
	}
	if v := raw["max_age_hours_override"]; v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			prefs.ThresholdOverrides.MaxAgeHours = n
			updated = append(updated, "max_age_hours_override")
		}
	}
	if v := raw["max_tweets_override"]; v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			prefs.ThresholdOverrides.MaxTweets = n
			updated = append(updated, "max_tweets_override")
		}
	}

	// New keywords enter at an elevated weight; existing weights are
	// owned by the PDCA loop and never overwritten here.
	if v := raw["extra_keywords"]; v != "" {
		if prefs.KeywordWeights == nil {
			prefs.KeywordWeights = map[string]float64{}
		}
		for _, keyword := range splitCSV(v) {
			if _, exists := prefs.KeywordWeights[keyword]; !exists {
				prefs.KeywordWeights[keyword] = newKeywordWeight
				updated = append(updated, fmt.Sprintf("keyword:%s", keyword))
			}
		}
	}

	for _, field := range []struct {
		key   string
		apply func(string)
	}{
		{"prompt_persona_name", func(v string) { prefs.PromptOverrides.PersonaName = v }},
		{"prompt_first_person", func(v string) { prefs.PromptOverrides.FirstPerson = v }},
		{"prompt_position", func(v string) { prefs.PromptOverrides.Position = v }},
		{"prompt_differentiator", func(v string) { prefs.PromptOverrides.Differentiator = v }},
		{"prompt_tone", func(v string) { prefs.PromptOverrides.Tone = v }},
		{"prompt_style_patterns", func(v string) { prefs.PromptOverrides.StylePatterns = splitCSV(v) }},
		{"prompt_ng_words", func(v string) { prefs.PromptOverrides.NGWords = splitCSV(v) }},
		{"prompt_custom_directive", func(v string) { prefs.PromptOverrides.CustomDirective = v }},
		{"prompt_enabled_templates", func(v string) { prefs.PromptOverrides.EnabledTemplates = splitCSV(v) }},
	} {
		if v := raw[field.key]; v != "" {
			field.apply(v)
			updated = append(updated, field.key)
		}
	}

	return updated
}

func splitCSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
