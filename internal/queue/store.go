// Package queue owns the candidate queue state machine and its two JSON
// stores: pending (records still in curation) and processed (terminal posted
// records, retained for deduplication and metrics). No other package reads or
// writes these files.
package queue

import (
	"os"
	"sync"
	"time"

	"github.com/xpost-agent/internal/models"
	"github.com/xpost-agent/pkg/logger"
)

const (
	pendingFile   = "pending_tweets.json"
	processedFile = "processed_tweets.json"
)

// Store is the persistent candidate queue
type Store struct {
	dir          string
	feedbackPath string
	log          *logger.Logger
	mu           sync.Mutex
}

// NewStore creates a queue store rooted at dir, with the feedback log at
// feedbackPath.
func NewStore(dir, feedbackPath string, log *logger.Logger) *Store {
	return &Store{
		dir:          dir,
		feedbackPath: feedbackPath,
		log:          log.WithComponent("queue"),
	}
}

func (s *Store) pendingPath() string   { return s.dir + "/" + pendingFile }
func (s *Store) processedPath() string { return s.dir + "/" + processedFile }

func (s *Store) load(path string) []models.CandidateRecord {
	var records []models.CandidateRecord
	if err := loadJSON(path, &records); err != nil {
		if !os.IsNotExist(err) {
			s.log.Warn().Err(err).Str("file", path).Msg("queue file unreadable, reinitializing empty")
		}
		return []models.CandidateRecord{}
	}
	if records == nil {
		records = []models.CandidateRecord{}
	}
	return records
}

// Add inserts a candidate. Returns false when the tweet_id is already present
// in pending or processed.
func (s *Store) Add(record models.CandidateRecord) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pending := s.load(s.pendingPath())
	processed := s.load(s.processedPath())

	for _, r := range pending {
		if r.TweetID == record.TweetID {
			return false, nil
		}
	}
	for _, r := range processed {
		if r.TweetID == record.TweetID {
			return false, nil
		}
	}

	record.Status = models.CandidateStatusPending
	if record.AddedAt.IsZero() {
		record.AddedAt = time.Now()
	}
	if record.CollectedAt.IsZero() {
		record.CollectedAt = record.AddedAt
	}

	pending = append(pending, record)
	if err := saveJSON(s.pendingPath(), pending); err != nil {
		return false, err
	}
	return true, nil
}

// Approve marks a candidate approved. Approving an already approved record is
// a no-op; skipped records may be re-approved. Returns false when the id is
// unknown.
func (s *Store) Approve(tweetID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pending := s.load(s.pendingPath())
	for i := range pending {
		if pending[i].TweetID != tweetID {
			continue
		}
		if pending[i].Status == models.CandidateStatusApproved {
			return true, nil
		}
		pending[i].Status = models.CandidateStatusApproved
		pending[i].SkipReason = ""
		if err := saveJSON(s.pendingPath(), pending); err != nil {
			return false, err
		}
		if err := s.appendFeedback(pending[i], models.DecisionApproved, "", ""); err != nil {
			s.log.Warn().Err(err).Str("tweet_id", tweetID).Msg("feedback append failed")
		}
		return true, nil
	}
	return false, nil
}

// Skip marks a candidate skipped with a reason and optional note. Skipping an
// already skipped record is a no-op. Returns false when the id is unknown.
func (s *Store) Skip(tweetID, reason, note string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pending := s.load(s.pendingPath())
	for i := range pending {
		if pending[i].TweetID != tweetID {
			continue
		}
		if pending[i].Status == models.CandidateStatusSkipped {
			return true, nil
		}
		pending[i].Status = models.CandidateStatusSkipped
		pending[i].SkipReason = reason
		pending[i].FeedbackNote = note
		if err := saveJSON(s.pendingPath(), pending); err != nil {
			return false, err
		}
		if err := s.appendFeedback(pending[i], models.DecisionSkipped, reason, note); err != nil {
			s.log.Warn().Err(err).Str("tweet_id", tweetID).Msg("feedback append failed")
		}
		return true, nil
	}
	return false, nil
}

// SetGenerated stores the generated comment on an approved candidate
func (s *Store) SetGenerated(tweetID, text, templateID string, score *models.GeneratedScore) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pending := s.load(s.pendingPath())
	for i := range pending {
		if pending[i].TweetID != tweetID {
			continue
		}
		pending[i].GeneratedText = text
		pending[i].TemplateID = templateID
		pending[i].Score = score
		if err := saveJSON(s.pendingPath(), pending); err != nil {
			return false, err
		}
		return true, nil
	}
	return false, nil
}

// MarkPosted moves a candidate from pending to processed with the published
// tweet id.
func (s *Store) MarkPosted(tweetID, postedTweetID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pending := s.load(s.pendingPath())
	for i := range pending {
		if pending[i].TweetID != tweetID {
			continue
		}
		record := pending[i]
		now := time.Now()
		record.Status = models.CandidateStatusPosted
		record.PostedTweetID = postedTweetID
		record.PostedAt = &now

		pending = append(pending[:i], pending[i+1:]...)
		processed := s.load(s.processedPath())
		processed = append(processed, record)

		if err := saveJSON(s.processedPath(), processed); err != nil {
			return false, err
		}
		if err := saveJSON(s.pendingPath(), pending); err != nil {
			return false, err
		}
		return true, nil
	}
	return false, nil
}

// Get returns a single record from the pending store
func (s *Store) Get(tweetID string) (models.CandidateRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range s.load(s.pendingPath()) {
		if r.TweetID == tweetID {
			return r, true
		}
	}
	return models.CandidateRecord{}, false
}

// AllPending returns every record in the pending store regardless of status
func (s *Store) AllPending() []models.CandidateRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load(s.pendingPath())
}

// Pending returns records awaiting a curation decision
func (s *Store) Pending() []models.CandidateRecord {
	return s.byStatus(models.CandidateStatusPending)
}

// Approved returns approved records without generated text yet
func (s *Store) Approved() []models.CandidateRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []models.CandidateRecord
	for _, r := range s.load(s.pendingPath()) {
		if r.Status == models.CandidateStatusApproved && !r.HasGeneratedText() {
			out = append(out, r)
		}
	}
	return out
}

// Generated returns approved records that carry a generated comment
func (s *Store) Generated() []models.CandidateRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []models.CandidateRecord
	for _, r := range s.load(s.pendingPath()) {
		if r.Status == models.CandidateStatusApproved && r.HasGeneratedText() {
			out = append(out, r)
		}
	}
	return out
}

// Processed returns the terminal posted archive
func (s *Store) Processed() []models.CandidateRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load(s.processedPath())
}

func (s *Store) byStatus(status models.CandidateStatus) []models.CandidateRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []models.CandidateRecord
	for _, r := range s.load(s.pendingPath()) {
		if r.Status == status {
			out = append(out, r)
		}
	}
	return out
}

// Stats returns counters by curation state
func (s *Store) Stats() models.QueueStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	var stats models.QueueStats
	for _, r := range s.load(s.pendingPath()) {
		switch r.Status {
		case models.CandidateStatusPending:
			stats.Pending++
		case models.CandidateStatusApproved:
			stats.Approved++
			if r.HasGeneratedText() {
				stats.Generated++
			}
		case models.CandidateStatusSkipped:
			stats.Skipped++
		}
	}

	today := time.Now()
	for _, r := range s.load(s.processedPath()) {
		stats.Posted++
		if r.PostedOn(today) {
			stats.PostedToday++
		}
	}
	return stats
}

// TodayPostedCount returns how many records were posted today
func (s *Store) TodayPostedCount() int {
	return s.Stats().PostedToday
}

// TodaySourceUsed reports whether an author already had a quote posted today
func (s *Store) TodaySourceUsed(authorUsername string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	today := time.Now()
	for _, r := range s.load(s.processedPath()) {
		if r.AuthorUsername == authorUsername && r.PostedOn(today) {
			return true
		}
	}
	return false
}

// Cleanup removes processed records older than the given number of days.
// Returns the number removed.
func (s *Store) Cleanup(days int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().AddDate(0, 0, -days)
	processed := s.load(s.processedPath())

	kept := processed[:0]
	removed := 0
	for _, r := range processed {
		if r.PostedAt != nil && r.PostedAt.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, r)
	}

	if removed == 0 {
		return 0, nil
	}
	if err := saveJSON(s.processedPath(), kept); err != nil {
		return 0, err
	}
	return removed, nil
}
