package sheets

import (
	"context"
	"fmt"
	"strings"

	"github.com/xpost-agent/internal/normalize"
	"github.com/xpost-agent/internal/queue"
	"github.com/xpost-agent/pkg/logger"
)

// IntakeAPI is the URL intake surface the importer needs from Client
type IntakeAPI interface {
	PendingURLs(ctx context.Context) ([]PendingURL, error)
	MarkURLsBatch(ctx context.Context, updates []URLUpdate) error
}

// ImportResult reports one intake run
type ImportResult struct {
	Total      int
	Added      int
	SkippedDup int
	Invalid    int
	Errors     []string
}

// URLImporter moves manually collected URLs from the intake sheet into
// the curation queue and writes the per-row outcome back.
type URLImporter struct {
	api   IntakeAPI
	queue *queue.Store
	log   *logger.Logger
}

func NewURLImporter(api IntakeAPI, store *queue.Store, log *logger.Logger) *URLImporter {
	return &URLImporter{
		api:   api,
		queue: store,
		log:   log.WithComponent("sheets"),
	}
}

// Import processes every unhandled intake row. With autoApprove the added
// candidates are approved immediately.
func (im *URLImporter) Import(ctx context.Context, autoApprove bool) (*ImportResult, error) {
	pending, err := im.api.PendingURLs(ctx)
	if err != nil {
		return nil, err
	}

	result := &ImportResult{Total: len(pending)}
	if len(pending) == 0 {
		im.log.Info().Msg("No unprocessed URLs on the intake sheet")
		return result, nil
	}

	var updates []URLUpdate
	for _, row := range pending {
		if !normalize.IsTweetURL(row.URL) {
			im.log.Warn().Int("row", row.Row).Str("url", row.URL).Msg("Invalid tweet URL")
			result.Invalid++
			updates = append(updates, URLUpdate{Row: row.Row, Status: URLStatusError})
			continue
		}

		candidate, err := normalize.FromURL(row.URL, row.Memo)
		if err != nil {
			result.Errors = append(result.Errors, err.Error())
			updates = append(updates, URLUpdate{Row: row.Row, Status: URLStatusError})
			continue
		}

		added, err := im.queue.Add(candidate)
		if err != nil {
			result.Errors = append(result.Errors, err.Error())
			updates = append(updates, URLUpdate{Row: row.Row, Status: URLStatusError})
			continue
		}
		if !added {
			result.SkippedDup++
			updates = append(updates, URLUpdate{Row: row.Row, Status: URLStatusDuplicate, TweetID: candidate.TweetID})
			continue
		}

		result.Added++
		updates = append(updates, URLUpdate{Row: row.Row, Status: URLStatusDone, TweetID: candidate.TweetID})
		im.log.Info().
			Str("author", candidate.AuthorUsername).
			Str("tweet_id", candidate.TweetID).
			Msg("Imported candidate from sheet")

		if autoApprove {
			if _, err := im.queue.Approve(candidate.TweetID); err != nil {
				result.Errors = append(result.Errors, err.Error())
			}
		}
	}

	if len(updates) > 0 {
		if err := im.api.MarkURLsBatch(ctx, updates); err != nil {
			im.log.Warn().Err(err).Msg("Intake status write-back failed")
			result.Errors = append(result.Errors, err.Error())
		}
	}
	return result, nil
}

// FormatResult renders an import run for CLI output
func FormatResult(result *ImportResult) string {
	lines := []string{
		"📊 URL一括インポート結果:",
		fmt.Sprintf("  スプシ未処理: %d件", result.Total),
		fmt.Sprintf("  キュー追加:   %d件", result.Added),
		fmt.Sprintf("  重複スキップ: %d件", result.SkippedDup),
		fmt.Sprintf("  無効URL:     %d件", result.Invalid),
	}
	if len(result.Errors) > 0 {
		lines = append(lines, fmt.Sprintf("  エラー:      %d件", len(result.Errors)))
	}
	return strings.Join(lines, "\n")
}
