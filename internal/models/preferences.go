package models

import "strings"

// WeeklyFocus is the operator's short-term steering directive
type WeeklyFocus struct {
	Directive     string   `json:"directive"`
	FocusKeywords []string `json:"focus_keywords"`
	FocusAccounts []string `json:"focus_accounts"`
}

// TopicPreferences lists preferred and avoided topic clusters
type TopicPreferences struct {
	Preferred []string `json:"preferred"`
	Avoid     []string `json:"avoid"`
}

// AccountOverrides boosts or blocks specific source accounts
type AccountOverrides struct {
	Boosted []string `json:"boosted"`
	Blocked []string `json:"blocked"`
}

// ThresholdOverrides tunes collection thresholds from the control plane
type ThresholdOverrides struct {
	MinLikes    int `json:"min_likes,omitempty"`
	MaxAgeHours int `json:"max_age_hours,omitempty"`
	MaxTweets   int `json:"max_tweets,omitempty"`
}

// PromptOverrides rewrites persona segments of the generation prompt
type PromptOverrides struct {
	PersonaName      string   `json:"persona_name,omitempty"`
	FirstPerson      string   `json:"first_person,omitempty"`
	Position         string   `json:"position,omitempty"`
	Differentiator   string   `json:"differentiator,omitempty"`
	Tone             string   `json:"tone,omitempty"`
	StylePatterns    []string `json:"style_patterns,omitempty"`
	NGWords          []string `json:"ng_words,omitempty"`
	CustomDirective  string   `json:"custom_directive,omitempty"`
	EnabledTemplates []string `json:"enabled_templates,omitempty"`
}

// Preferences is the versioned selection-policy document
type Preferences struct {
	WeeklyFocus        WeeklyFocus         `json:"weekly_focus"`
	TopicPreferences   TopicPreferences    `json:"topic_preferences"`
	AccountOverrides   AccountOverrides    `json:"account_overrides"`
	KeywordWeights     map[string]float64  `json:"keyword_weights"`
	TopicClusters      map[string][]string `json:"topic_clusters"`
	ThresholdOverrides ThresholdOverrides  `json:"threshold_overrides"`
	PromptOverrides    PromptOverrides     `json:"prompt_overrides"`
	Version            int                 `json:"version"`
	UpdatedAt          string              `json:"updated_at"`
	UpdatedBy          string              `json:"updated_by"`
}

// DefaultPreferences returns an empty but usable preferences document
func DefaultPreferences() *Preferences {
	return &Preferences{
		KeywordWeights: map[string]float64{},
		TopicClusters:  map[string][]string{},
		Version:        1,
	}
}

// IsBlocked reports whether the account is on the blocked list
func (p *Preferences) IsBlocked(username string) bool {
	for _, b := range p.AccountOverrides.Blocked {
		if strings.EqualFold(b, username) {
			return true
		}
	}
	return false
}

// IsBoosted reports whether the account is on the boosted list
func (p *Preferences) IsBoosted(username string) bool {
	for _, b := range p.AccountOverrides.Boosted {
		if strings.EqualFold(b, username) {
			return true
		}
	}
	return false
}
