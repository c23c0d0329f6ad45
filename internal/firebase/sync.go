package firebase

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/xpost-agent/internal/models"
	"github.com/xpost-agent/internal/pdca"
	"github.com/xpost-agent/internal/queue"
	"github.com/xpost-agent/internal/selection"
	"github.com/xpost-agent/pkg/logger"
)

// Backend is the slice of the Firestore client the sync layer needs
type Backend interface {
	QueueDecisions(ctx context.Context, uid string) ([]Decision, error)
	MarkDecisionsProcessed(ctx context.Context, uid string, tweetIDs []string) (int, error)
	SelectionPreferences(ctx context.Context, uid string) (map[string]string, error)
	UpdateDashboard(ctx context.Context, uid string, data map[string]interface{}) error
}

// DecisionResult summarizes one queue-decision pull
type DecisionResult struct {
	Approved  int
	Skipped   int
	Unknown   int
	Errors    []string
	Processed int
}

// PrefsResult summarizes one preference pull
type PrefsResult struct {
	Updated []string
	Found   bool
}

// Sync applies dashboard state to the local queue and preferences
type Sync struct {
	backend    Backend
	queue      *queue.Store
	prefs      *selection.PreferenceStore
	metricsDir string
	log        *logger.Logger
}

func NewSync(backend Backend, q *queue.Store, prefs *selection.PreferenceStore, log *logger.Logger) *Sync {
	return &Sync{
		backend: backend,
		queue:   q,
		prefs:   prefs,
		log:     log.WithComponent("firebase_sync"),
	}
}

// SyncQueueDecisions pulls approve/skip actions from the dashboard, applies
// them to the local queue and deletes the processed decision documents.
func (s *Sync) SyncQueueDecisions(ctx context.Context, uid string) (*DecisionResult, error) {
	decisions, err := s.backend.QueueDecisions(ctx, uid)
	if err != nil {
		return nil, fmt.Errorf("pull queue decisions: %w", err)
	}

	result := &DecisionResult{}
	processed := map[string][]string{}
	for _, d := range decisions {
		switch d.Action {
		case "approve":
			if ok, err := s.queue.Approve(d.TweetID); err != nil || !ok {
				result.Errors = append(result.Errors, fmt.Sprintf("承認失敗 %s: %v", d.TweetID, err))
				continue
			}
			result.Approved++
		case "skip":
			if ok, err := s.queue.Skip(d.TweetID, d.SkipReason, ""); err != nil || !ok {
				result.Errors = append(result.Errors, fmt.Sprintf("スキップ失敗 %s: %v", d.TweetID, err))
				continue
			}
			result.Skipped++
		default:
			s.log.Warn().Str("tweet_id", d.TweetID).Str("action", d.Action).Msg("Unknown decision action")
			result.Unknown++
			continue
		}
		processed[d.UID] = append(processed[d.UID], d.TweetID)
	}

	for userID, ids := range processed {
		n, err := s.backend.MarkDecisionsProcessed(ctx, userID, ids)
		if err != nil {
			s.log.Warn().Err(err).Str("uid", userID).Msg("Failed to clear processed decisions")
			continue
		}
		result.Processed += n
	}

	s.log.Info().
		Int("approved", result.Approved).
		Int("skipped", result.Skipped).
		Int("processed", result.Processed).
		Msg("Queue decisions synced")
	return result, nil
}

// SyncPreferences overlays the user's dashboard preference document onto the
// local preference store.
func (s *Sync) SyncPreferences(ctx context.Context, uid string) (*PrefsResult, error) {
	raw, err := s.backend.SelectionPreferences(ctx, uid)
	if err != nil {
		return nil, fmt.Errorf("pull preferences: %w", err)
	}
	if raw == nil {
		return &PrefsResult{}, nil
	}

	prefs := s.prefs.Load()
	updated := selection.ApplyRemoteOverrides(prefs, raw)
	if len(updated) > 0 {
		prefs.UpdatedBy = "firebase_sync"
		prefs.Version++
	}
	if err := s.prefs.Save(prefs); err != nil {
		return nil, fmt.Errorf("save preferences: %w", err)
	}

	s.log.Info().Int("updated", len(updated)).Msg("Preferences synced from dashboard")
	return &PrefsResult{Updated: updated, Found: true}, nil
}

const (
	dashboardRecentPosted = 30
	dashboardMetricsFiles = 7
)

// SetMetricsDir points the dashboard push at the local metrics snapshots.
// Without it the metrics section stays empty.
func (s *Sync) SetMetricsDir(dir string) {
	s.metricsDir = dir
}

// PushDashboard publishes the full local state snapshot to the user's
// dashboard document: counters, the live queue with curation state, the
// latest posted records, recent metrics and PDCA insights.
func (s *Sync) PushDashboard(ctx context.Context, uid string) error {
	posted := recentPosted(s.queue.Processed(), dashboardRecentPosted)

	var texts []string
	for _, r := range posted {
		if r.GeneratedText != "" {
			texts = append(texts, r.GeneratedText)
		}
	}

	data := map[string]interface{}{
		"updated_at":    time.Now(),
		"stats":         toDoc(s.queue.Stats()),
		"queue":         toDoc(s.queue.AllPending()),
		"recent_posted": toDoc(posted),
		"metrics":       toDoc(s.recentMetrics(dashboardMetricsFiles)),
		"pdca_insights": pdca.DetectPatterns(texts),
		"preferences":   toDoc(s.prefs.Load()),
	}
	if err := s.backend.UpdateDashboard(ctx, uid, data); err != nil {
		return err
	}
	s.log.Info().
		Str("uid", uid).
		Int("queue", len(s.queue.AllPending())).
		Int("recent_posted", len(posted)).
		Msg("Dashboard pushed")
	return nil
}

// recentPosted returns the newest records by posted time, capped at limit
func recentPosted(records []models.CandidateRecord, limit int) []models.CandidateRecord {
	sort.Slice(records, func(i, j int) bool {
		ti, tj := records[i].PostedAt, records[j].PostedAt
		switch {
		case ti == nil:
			return false
		case tj == nil:
			return true
		default:
			return ti.After(*tj)
		}
	})
	if len(records) > limit {
		records = records[:limit]
	}
	return records
}

// recentMetrics loads the newest snapshot files from the metrics directory.
// Filenames carry the date, so the lexical order is the chronological one.
func (s *Sync) recentMetrics(maxFiles int) []models.PostMetrics {
	if s.metricsDir == "" {
		return nil
	}
	paths, err := filepath.Glob(filepath.Join(s.metricsDir, "metrics_*.json"))
	if err != nil || len(paths) == 0 {
		return nil
	}
	sort.Sort(sort.Reverse(sort.StringSlice(paths)))
	if len(paths) > maxFiles {
		paths = paths[:maxFiles]
	}

	var out []models.PostMetrics
	for _, path := range paths {
		raw, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		var batch []models.PostMetrics
		if err := json.Unmarshal(raw, &batch); err != nil {
			s.log.Warn().Err(err).Str("path", path).Msg("Skipping unreadable metrics snapshot")
			continue
		}
		out = append(out, batch...)
	}
	return out
}

// toDoc converts a struct into the plain maps and slices Firestore stores,
// keeping the json field names the dashboard UI reads.
func toDoc(v interface{}) interface{} {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	var out interface{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil
	}
	return out
}

// FullSync runs decisions, preferences and dashboard in order
func (s *Sync) FullSync(ctx context.Context, uid string) (*DecisionResult, *PrefsResult, error) {
	decisions, err := s.SyncQueueDecisions(ctx, uid)
	if err != nil {
		return nil, nil, err
	}
	prefs, err := s.SyncPreferences(ctx, uid)
	if err != nil {
		return decisions, nil, err
	}
	if uid != "" {
		if err := s.PushDashboard(ctx, uid); err != nil {
			s.log.Warn().Err(err).Msg("Dashboard push failed")
		}
	}
	return decisions, prefs, nil
}
