package models

import "fmt"

// PostType distinguishes original posts from quote retweets
type PostType string

const (
	PostTypeOriginal PostType = "original"
	PostTypeQuoteRT  PostType = "quote_rt"
)

// PlanSlot is one scheduled publishing slot of a daily plan
type PlanSlot struct {
	SlotID    string   `json:"slot_id"`
	Hour      int      `json:"hour"`
	Minute    int      `json:"minute"`
	Type      PostType `json:"type"`
	TimeLabel string   `json:"time_label"`
}

// MinuteOfDay returns the scheduled time as minutes since midnight
func (s PlanSlot) MinuteOfDay() int {
	return s.Hour*60 + s.Minute
}

// TimeString returns the scheduled time as "HH:MM"
func (s PlanSlot) TimeString() string {
	return fmt.Sprintf("%02d:%02d", s.Hour, s.Minute)
}

// DailyPlan is the ordered slot sequence for one day
type DailyPlan struct {
	Slots []PlanSlot `json:"slots"`
}

// CountByType returns how many slots carry the given type
func (p DailyPlan) CountByType(t PostType) int {
	n := 0
	for _, s := range p.Slots {
		if s.Type == t {
			n++
		}
	}
	return n
}
