package sheets

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/xpost-agent/internal/models"
	"github.com/xpost-agent/internal/queue"
	"github.com/xpost-agent/internal/selection"
	"github.com/xpost-agent/pkg/logger"
)

// SheetAPI is the worksheet surface the sync layer needs from Client
type SheetAPI interface {
	WriteQueueItems(ctx context.Context, items []models.CandidateRecord) error
	ReadQueueDecisions(ctx context.Context) ([]QueueDecision, error)
	UpdateDashboard(ctx context.Context, d Dashboard) error
	AppendCollectionLog(ctx context.Context, fetched, filtered, added, skippedDup int, errMsg string) error
	Settings(ctx context.Context) (map[string]string, error)
	Preferences(ctx context.Context) (map[string]string, error)
}

// Settings are the typed operator knobs read from the settings sheet
type Settings struct {
	MinLikes         int
	MaxTweets        int
	MaxAgeHours      int
	DailyPostLimit   int
	AutoPostMinScore int
	AutoApprove      bool
	Mode             string
}

// FromSheetResult reports the decisions applied by SyncFromSheet
type FromSheetResult struct {
	Approved  int
	Skipped   int
	Unchanged int
	Errors    []string
}

// ToSheetResult reports a full queue export
type ToSheetResult struct {
	Synced   int
	Statuses map[string]int
}

// PrefSyncResult reports a preference pull
type PrefSyncResult struct {
	UpdatedKeys []string
	Unchanged   int
}

// QueueSync is the two-way bridge between the local queue and the sheet
type QueueSync struct {
	api   SheetAPI
	queue *queue.Store
	prefs *selection.PreferenceStore
	log   *logger.Logger
	now   func() time.Time
}

func NewQueueSync(api SheetAPI, store *queue.Store, prefs *selection.PreferenceStore, log *logger.Logger) *QueueSync {
	return &QueueSync{
		api:   api,
		queue: store,
		prefs: prefs,
		log:   log.WithComponent("sheets"),
		now:   time.Now,
	}
}

// SyncToSheet exports every active queue item to the queue sheet
func (s *QueueSync) SyncToSheet(ctx context.Context) (*ToSheetResult, error) {
	items := s.queue.AllPending()

	statuses := map[string]int{}
	for _, item := range items {
		statuses[string(item.Status)]++
	}

	if err := s.api.WriteQueueItems(ctx, items); err != nil {
		return nil, err
	}
	return &ToSheetResult{Synced: len(items), Statuses: statuses}, nil
}

// SyncFromSheet pulls the operator's status edits back into the queue.
// Only pending→approved and *→skipped transitions are honored.
func (s *QueueSync) SyncFromSheet(ctx context.Context) (*FromSheetResult, error) {
	decisions, err := s.api.ReadQueueDecisions(ctx)
	if err != nil {
		return nil, err
	}

	byID := map[string]models.CandidateRecord{}
	for _, item := range s.queue.AllPending() {
		byID[item.TweetID] = item
	}

	result := &FromSheetResult{}
	for _, decision := range decisions {
		current, ok := byID[decision.TweetID]
		if !ok {
			continue
		}
		if current.Status == decision.Status {
			result.Unchanged++
			continue
		}

		switch {
		case current.Status == models.CandidateStatusPending && decision.Status == models.CandidateStatusApproved:
			if ok, err := s.queue.Approve(decision.TweetID); err != nil || !ok {
				result.Errors = append(result.Errors, "承認失敗: "+decision.TweetID)
			} else {
				result.Approved++
			}
		case decision.Status == models.CandidateStatusSkipped:
			if ok, err := s.queue.Skip(decision.TweetID, decision.SkipReason, ""); err != nil || !ok {
				result.Errors = append(result.Errors, "スキップ失敗: "+decision.TweetID)
			} else {
				result.Skipped++
			}
		default:
			result.Unchanged++
		}
	}
	return result, nil
}

// CollectionResult carries the numbers a collect run reports
type CollectionResult struct {
	Fetched    int
	Filtered   int
	Added      int
	SkippedDup int
}

// SyncDashboard rewrites the dashboard block from queue stats
func (s *QueueSync) SyncDashboard(ctx context.Context, collection *CollectionResult) (*Dashboard, error) {
	stats := s.queue.Stats()

	d := Dashboard{
		LastCollection: "—",
		Pending:        stats.Pending,
		Approved:       stats.Approved,
		PostedToday:    stats.PostedToday,
		APIStatus:      "OK",
	}
	if collection != nil {
		d.LastCollection = s.now().Format("2006/01/02 15:04")
		d.CollectedToday = collection.Added
	}

	if err := s.api.UpdateDashboard(ctx, d); err != nil {
		return nil, err
	}
	return &d, nil
}

// SyncCollectionLog appends one collect run to the log sheet
func (s *QueueSync) SyncCollectionLog(ctx context.Context, result CollectionResult) error {
	return s.api.AppendCollectionLog(ctx, result.Fetched, result.Filtered, result.Added, result.SkippedDup, "")
}

// FullSync runs from-sheet, to-sheet and the dashboard refresh in order
func (s *QueueSync) FullSync(ctx context.Context) (*FromSheetResult, *ToSheetResult, *Dashboard, error) {
	from, err := s.SyncFromSheet(ctx)
	if err != nil {
		return nil, nil, nil, err
	}
	to, err := s.SyncToSheet(ctx)
	if err != nil {
		return from, nil, nil, err
	}
	dashboard, err := s.SyncDashboard(ctx, nil)
	if err != nil {
		return from, to, nil, err
	}
	return from, to, dashboard, nil
}

// ReadSettings pulls and type-converts the settings sheet. Rows that fail
// to parse are dropped.
func (s *QueueSync) ReadSettings(ctx context.Context) (*Settings, error) {
	raw, err := s.api.Settings(ctx)
	if err != nil {
		return nil, err
	}

	settings := &Settings{}
	intFields := map[string]*int{
		"min_likes":           &settings.MinLikes,
		"max_tweets":          &settings.MaxTweets,
		"max_age_hours":       &settings.MaxAgeHours,
		"daily_post_limit":    &settings.DailyPostLimit,
		"auto_post_min_score": &settings.AutoPostMinScore,
	}
	for key, dst := range intFields {
		if v, ok := raw[key]; ok {
			if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
				*dst = n
			}
		}
	}
	if v, ok := raw["auto_approve"]; ok {
		settings.AutoApprove = isTruthy(v)
	}
	if v, ok := raw["mode"]; ok {
		settings.Mode = v
	}
	return settings, nil
}

// SyncPreferences overlays the preference sheet onto the local document
func (s *QueueSync) SyncPreferences(ctx context.Context) (*PrefSyncResult, error) {
	raw, err := s.api.Preferences(ctx)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return &PrefSyncResult{}, nil
	}

	prefs := s.prefs.Load()
	updated := selection.ApplyRemoteOverrides(prefs, raw)
	if len(updated) > 0 {
		prefs.UpdatedBy = "sheets_sync"
	}
	if err := s.prefs.Save(prefs); err != nil {
		return nil, err
	}

	return &PrefSyncResult{
		UpdatedKeys: updated,
		Unchanged:   len(raw) - len(updated),
	}, nil
}

func isTruthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "true", "1", "yes":
		return true
	}
	return false
}
