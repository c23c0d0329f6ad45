package models

// PostScore is the rubric result for a generated post text
type PostScore struct {
	Total       int               `json:"total"`
	Hook        int               `json:"hook"`
	Specificity int               `json:"specificity"`
	Humanity    int               `json:"humanity"`
	Structure   int               `json:"structure"`
	CTA         int               `json:"cta"`
	Penalty     int               `json:"penalty"`
	Rank        string            `json:"rank"`
	Details     map[string]string `json:"details,omitempty"`
}

// Compact returns the small shape stored on a candidate record
func (s PostScore) Compact() *GeneratedScore {
	return &GeneratedScore{Total: s.Total, Rank: s.Rank}
}

// SafetyResult is the outcome of the pre-publication safety gate
type SafetyResult struct {
	IsSafe     bool     `json:"is_safe"`
	Violations []string `json:"violations"`
	Warnings   []string `json:"warnings"`
}
