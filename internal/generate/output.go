package generate

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/xpost-agent/internal/models"
)

// DailyEntry is one generated original in the day's output file. Posting
// state lives in the same file so a rerun never double-posts a slot.
type DailyEntry struct {
	Text          string              `json:"text"`
	Type          string              `json:"type"`
	Slot          string              `json:"slot"`
	Date          string              `json:"date"`
	Account       string              `json:"account_id"`
	Score         models.PostScore    `json:"score"`
	Safety        models.SafetyResult `json:"safety"`
	Posted        bool                `json:"posted,omitempty"`
	PostedTweetID string              `json:"posted_tweet_id,omitempty"`
	PostedAt      string              `json:"posted_at,omitempty"`
}

// SaveDailyOutput archives the day's generated originals under
// <dir>/<date>_<account>.json for review and the weekly report.
func SaveDailyOutput(results []OriginalResult, outputDir, accountID string, date time.Time) (string, error) {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}

	entries := make([]DailyEntry, 0, len(results))
	day := date.Format("2006-01-02")
	for _, r := range results {
		entries = append(entries, DailyEntry{
			Text:    r.Text,
			Type:    r.PostType,
			Slot:    r.Slot,
			Date:    day,
			Account: accountID,
			Score:   r.Score,
			Safety:  r.Safety,
		})
	}

	path := DailyOutputPath(outputDir, accountID, date)
	if err := writeEntries(path, entries); err != nil {
		return "", err
	}
	return path, nil
}

// DailyOutputPath returns the output file location for a date and account
func DailyOutputPath(outputDir, accountID string, date time.Time) string {
	return filepath.Join(outputDir, fmt.Sprintf("%s_%s.json", date.Format("2006-01-02"), accountID))
}

// LoadDailyOutput reads the day's output file. A missing file yields an
// empty slice, not an error.
func LoadDailyOutput(outputDir, accountID string, date time.Time) ([]DailyEntry, error) {
	data, err := os.ReadFile(DailyOutputPath(outputDir, accountID, date))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read daily output: %w", err)
	}
	var entries []DailyEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parse daily output: %w", err)
	}
	return entries, nil
}

// MarkOutputPosted records a slot's posted state back into the output file
func MarkOutputPosted(outputDir, accountID string, date time.Time, slot, tweetID string, at time.Time) error {
	path := DailyOutputPath(outputDir, accountID, date)
	entries, err := LoadDailyOutput(outputDir, accountID, date)
	if err != nil {
		return err
	}
	for i := range entries {
		if entries[i].Slot == slot {
			entries[i].Posted = true
			entries[i].PostedTweetID = tweetID
			entries[i].PostedAt = at.Format(time.RFC3339)
			break
		}
	}
	return writeEntries(path, entries)
}

func writeEntries(path string, entries []DailyEntry) error {
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal daily output: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write daily output: %w", err)
	}
	return nil
}
