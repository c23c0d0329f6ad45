// Package safety validates generated text before it goes out: banned words,
// length bands, hashtag and link counts, near-duplicate detection, posting
// interval, and quote-specific constraints.
package safety

import (
	"encoding/json"
	"fmt"
	"os"
)

// ContentRules bound the shape of a single post
type ContentRules struct {
	MinLength   int `json:"min_length"`
	MaxLength   int `json:"max_length"`
	MaxHashtags int `json:"max_hashtags"`
	MaxLinks    int `json:"max_links"`
	MaxEmoji    int `json:"max_emoji"`
}

// QualityRules hold thresholds for duplicate detection
type QualityRules struct {
	DuplicateThreshold float64 `json:"duplicate_threshold"`
}

// PostingRules pace the publishing cadence
type PostingRules struct {
	PostingIntervalMinMinutes int `json:"posting_interval_min_minutes"`
}

// Rules is the full safety-rule document, loaded from safety_rules.json.
// NG words are grouped by category; the gate flattens them.
type Rules struct {
	NGWords      map[string][]string `json:"ng_words"`
	ContentRules ContentRules        `json:"content_rules"`
	QualityRules QualityRules        `json:"quality_rules"`
	PostingRules PostingRules        `json:"posting_rules"`
}

// DefaultRules returns the built-in rule set used when no file is configured
func DefaultRules() *Rules {
	return &Rules{
		NGWords: map[string][]string{},
		ContentRules: ContentRules{
			MinLength:   40,
			MaxLength:   280,
			MaxHashtags: 3,
			MaxLinks:    1,
			MaxEmoji:    3,
		},
		QualityRules: QualityRules{DuplicateThreshold: 0.8},
		PostingRules: PostingRules{PostingIntervalMinMinutes: 60},
	}
}

// LoadRules reads a rule file, filling any zero thresholds from defaults.
// A missing file yields the defaults without error.
func LoadRules(path string) (*Rules, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultRules(), nil
		}
		return nil, fmt.Errorf("read safety rules: %w", err)
	}

	rules := DefaultRules()
	if err := json.Unmarshal(data, rules); err != nil {
		return nil, fmt.Errorf("parse safety rules %s: %w", path, err)
	}

	defaults := DefaultRules()
	if rules.ContentRules.MinLength == 0 {
		rules.ContentRules.MinLength = defaults.ContentRules.MinLength
	}
	if rules.ContentRules.MaxLength == 0 {
		rules.ContentRules.MaxLength = defaults.ContentRules.MaxLength
	}
	if rules.ContentRules.MaxHashtags == 0 {
		rules.ContentRules.MaxHashtags = defaults.ContentRules.MaxHashtags
	}
	if rules.ContentRules.MaxLinks == 0 {
		rules.ContentRules.MaxLinks = defaults.ContentRules.MaxLinks
	}
	if rules.ContentRules.MaxEmoji == 0 {
		rules.ContentRules.MaxEmoji = defaults.ContentRules.MaxEmoji
	}
	if rules.QualityRules.DuplicateThreshold == 0 {
		rules.QualityRules.DuplicateThreshold = defaults.QualityRules.DuplicateThreshold
	}
	if rules.PostingRules.PostingIntervalMinMinutes == 0 {
		rules.PostingRules.PostingIntervalMinMinutes = defaults.PostingRules.PostingIntervalMinMinutes
	}
	return rules, nil
}
