package queue

import (
	"os"
	"time"

	"github.com/xpost-agent/internal/models"
)

// appendFeedback records one curation decision and refreshes the aggregated
// counters in the same write. Caller holds s.mu.
func (s *Store) appendFeedback(record models.CandidateRecord, decision models.FeedbackDecision, reason, note string) error {
	log := s.loadFeedback()

	log.Entries = append(log.Entries, models.FeedbackEntry{
		TweetID:              record.TweetID,
		AuthorUsername:       record.AuthorUsername,
		Decision:             decision,
		SkipReason:           reason,
		FeedbackNote:         note,
		PreferenceMatchScore: record.PreferenceMatchScore,
		MatchedTopics:        record.MatchedTopics,
		MatchedKeywords:      record.MatchedKeywords,
		Likes:                record.Likes,
		DecidedAt:            time.Now(),
	})
	log.Stats = aggregate(log.Entries)

	return saveJSON(s.feedbackPath, log)
}

func (s *Store) loadFeedback() models.FeedbackLog {
	var log models.FeedbackLog
	if err := loadJSON(s.feedbackPath, &log); err != nil {
		if !os.IsNotExist(err) {
			s.log.Warn().Err(err).Msg("feedback log unreadable, reinitializing empty")
		}
		return models.FeedbackLog{}
	}
	return log
}

// Feedback returns the decision log with its cached aggregation
func (s *Store) Feedback() models.FeedbackLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadFeedback()
}

// FeedbackStats returns the aggregated decision counters
func (s *Store) FeedbackStats() models.FeedbackStats {
	return s.Feedback().Stats
}

func aggregate(entries []models.FeedbackEntry) models.FeedbackStats {
	stats := models.FeedbackStats{
		BySource:  map[string]models.DecisionCount{},
		ByTopic:   map[string]models.DecisionCount{},
		ByKeyword: map[string]models.DecisionCount{},
		ByReason:  map[string]int{},
	}

	bump := func(m map[string]models.DecisionCount, key string, approved bool) {
		c := m[key]
		if approved {
			c.Approved++
		} else {
			c.Skipped++
		}
		m[key] = c
	}

	for _, e := range entries {
		approved := e.Decision == models.DecisionApproved
		stats.Total++
		if approved {
			stats.Approved++
		} else {
			stats.Skipped++
			if e.SkipReason != "" {
				stats.ByReason[e.SkipReason]++
			}
		}
		if e.AuthorUsername != "" {
			bump(stats.BySource, e.AuthorUsername, approved)
		}
		for _, t := range e.MatchedTopics {
			bump(stats.ByTopic, t, approved)
		}
		for _, k := range e.MatchedKeywords {
			bump(stats.ByKeyword, k, approved)
		}
	}
	return stats
}
