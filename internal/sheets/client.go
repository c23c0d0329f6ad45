// Package sheets integrates the publishing pipeline with the operator's
// Google Spreadsheet: URL intake, queue review, settings, preferences,
// posting history, metrics and the dashboard tab.
package sheets

import (
	"context"
	"encoding/base64"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"github.com/xpost-agent/internal/models"
	"github.com/xpost-agent/pkg/logger"
	"github.com/xpost-agent/pkg/ratelimit"
)

// Worksheet titles
const (
	SheetCollect     = "URL収集"
	SheetQueue       = "キュー管理"
	SheetPosted      = "投稿履歴"
	SheetMetrics     = "メトリクス"
	SheetDashboard   = "ダッシュボード"
	SheetSettings    = "設定"
	SheetPreferences = "選定プリファレンス"
	SheetCollectLog  = "収集ログ"
)

// URL intake row statuses written back to the collect sheet
const (
	URLStatusDone      = "済"
	URLStatusError     = "エラー"
	URLStatusDuplicate = "重複"
)

var queueHeader = []string{"Tweet ID", "投稿者", "本文", "いいね", "RT", "スコア", "ステータス", "スキップ理由", "追加日時"}

// Config holds spreadsheet access configuration
type Config struct {
	SpreadsheetID     string `mapstructure:"spreadsheet_id"`
	CredentialsBase64 string `mapstructure:"credentials_base64"`
	CredentialsFile   string `mapstructure:"credentials_file"`
}

// Client wraps the Sheets API for the pipeline's worksheets
type Client struct {
	service       *sheets.Service
	spreadsheetID string
	limiter       *ratelimit.MultiLimiter
	log           *logger.Logger
	now           func() time.Time
}

// NewClient builds a service-account Sheets client. Base64 credentials take
// precedence so CI can inject them through a single env var.
func NewClient(ctx context.Context, cfg Config, limiter *ratelimit.MultiLimiter, log *logger.Logger) (*Client, error) {
	if cfg.SpreadsheetID == "" {
		return nil, fmt.Errorf("spreadsheet_id is not configured")
	}

	var srv *sheets.Service
	var err error
	switch {
	case cfg.CredentialsBase64 != "":
		raw, decErr := decodeCredentials(cfg.CredentialsBase64)
		if decErr != nil {
			return nil, decErr
		}
		srv, err = sheets.NewService(ctx, option.WithCredentialsJSON(raw))
	case cfg.CredentialsFile != "":
		srv, err = sheets.NewService(ctx, option.WithCredentialsFile(cfg.CredentialsFile))
	default:
		return nil, fmt.Errorf("no Google credentials provided: set credentials_base64 or credentials_file")
	}
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}

	return &Client{
		service:       srv,
		spreadsheetID: cfg.SpreadsheetID,
		limiter:       limiter,
		log:           log.WithComponent("sheets"),
		now:           time.Now,
	}, nil
}

// decodeCredentials tolerates whitespace and missing base64 padding, which
// show up when secrets are pasted into CI settings.
func decodeCredentials(b64 string) ([]byte, error) {
	cleaned := regexp.MustCompile(`\s+`).ReplaceAllString(b64, "")
	cleaned = strings.TrimRight(cleaned, "=")
	if pad := len(cleaned) % 4; pad != 0 {
		cleaned += strings.Repeat("=", 4-pad)
	}
	raw, err := base64.StdEncoding.DecodeString(cleaned)
	if err != nil {
		return nil, fmt.Errorf("decode credentials: %w", err)
	}
	return raw, nil
}

// PendingURL is one unprocessed row of the URL intake sheet
type PendingURL struct {
	Row  int
	URL  string
	Memo string
}

// URLUpdate is one status write-back for the URL intake sheet
type URLUpdate struct {
	Row     int
	Status  string
	TweetID string
}

// PendingURLs reads the intake sheet rows with an empty status column.
// The sheet is created when missing and an empty result returned.
func (c *Client) PendingURLs(ctx context.Context) ([]PendingURL, error) {
	rows, err := c.readAll(ctx, SheetCollect)
	if err != nil {
		if created, cErr := c.ensureSheet(ctx, SheetCollect, []string{"URL", "メモ", "ステータス", "処理日時", "ツイートID"}); cErr == nil && created {
			return nil, nil
		}
		return nil, err
	}

	var pending []PendingURL
	for i, row := range rows {
		if i == 0 {
			continue
		}
		url := cell(row, 0)
		if url == "" {
			continue
		}
		if cell(row, 2) != "" {
			continue
		}
		pending = append(pending, PendingURL{Row: i + 1, URL: url, Memo: cell(row, 1)})
	}
	return pending, nil
}

// MarkURLsBatch writes intake statuses for several rows in one API call
func (c *Client) MarkURLsBatch(ctx context.Context, updates []URLUpdate) error {
	if len(updates) == 0 {
		return nil
	}
	now := c.now().Format("2006/01/02 15:04")

	var data []*sheets.ValueRange
	for _, u := range updates {
		data = append(data, &sheets.ValueRange{
			Range:  fmt.Sprintf("%s!C%d:E%d", SheetCollect, u.Row, u.Row),
			Values: [][]interface{}{{u.Status, now, u.TweetID}},
		})
	}

	if err := c.limiter.Wait(ctx, ratelimit.LimiterSheets); err != nil {
		return err
	}
	_, err := c.service.Spreadsheets.Values.BatchUpdate(c.spreadsheetID, &sheets.BatchUpdateValuesRequest{
		ValueInputOption: "RAW",
		Data:             data,
	}).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("batch update intake statuses: %w", err)
	}
	return nil
}

// WriteQueueItems replaces the queue sheet body with the current queue
func (c *Client) WriteQueueItems(ctx context.Context, items []models.CandidateRecord) error {
	if _, err := c.ensureSheet(ctx, SheetQueue, queueHeader); err != nil {
		return err
	}

	values := [][]interface{}{toRow(queueHeader)}
	for _, item := range items {
		values = append(values, []interface{}{
			item.TweetID,
			"@" + item.AuthorUsername,
			truncateRunes(item.Text, 100),
			item.Likes,
			item.Retweets,
			fmt.Sprintf("%.2f", item.PreferenceMatchScore),
			string(item.Status),
			item.SkipReason,
			item.AddedAt.Format("2006/01/02 15:04"),
		})
	}

	if err := c.limiter.Wait(ctx, ratelimit.LimiterSheets); err != nil {
		return err
	}
	if _, err := c.service.Spreadsheets.Values.Clear(c.spreadsheetID, SheetQueue+"!A2:I", &sheets.ClearValuesRequest{}).Context(ctx).Do(); err != nil {
		return fmt.Errorf("clear queue sheet: %w", err)
	}
	_, err := c.service.Spreadsheets.Values.Update(c.spreadsheetID, SheetQueue+"!A1", &sheets.ValueRange{Values: values}).
		ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("write queue sheet: %w", err)
	}
	return nil
}

// QueueDecision is one operator edit read back from the queue sheet
type QueueDecision struct {
	TweetID    string
	Status     models.CandidateStatus
	SkipReason string
}

// ReadQueueDecisions reads the status column the operator may have edited
func (c *Client) ReadQueueDecisions(ctx context.Context) ([]QueueDecision, error) {
	rows, err := c.readAll(ctx, SheetQueue)
	if err != nil {
		return nil, err
	}

	var decisions []QueueDecision
	for i, row := range rows {
		if i == 0 {
			continue
		}
		tweetID := cell(row, 0)
		status := cell(row, 6)
		if tweetID == "" || status == "" {
			continue
		}
		decisions = append(decisions, QueueDecision{
			TweetID:    tweetID,
			Status:     models.CandidateStatus(status),
			SkipReason: cell(row, 7),
		})
	}
	return decisions, nil
}

// PostedRecord is one row appended to the posting history sheet
type PostedRecord struct {
	PostedAt  string
	Type      string
	Text      string
	TweetID   string
	Score     int
	SourceURL string
}

// AppendPosted appends a publishing record to the history sheet
func (c *Client) AppendPosted(ctx context.Context, record PostedRecord) error {
	if _, err := c.ensureSheet(ctx, SheetPosted, []string{"投稿日時", "種別", "投稿文", "Tweet ID", "スコア", "元URL"}); err != nil {
		return err
	}
	return c.appendRow(ctx, SheetPosted, []interface{}{
		record.PostedAt,
		record.Type,
		truncateRunes(record.Text, 200),
		record.TweetID,
		record.Score,
		record.SourceURL,
	})
}

// AppendMetrics appends a daily metrics row
func (c *Client) AppendMetrics(ctx context.Context, date string, summary models.MetricSummary) error {
	if _, err := c.ensureSheet(ctx, SheetMetrics, []string{"日付", "フォロワー", "平均いいね", "平均RT", "エンゲージメント率", "投稿数"}); err != nil {
		return err
	}
	return c.appendRow(ctx, SheetMetrics, []interface{}{
		date,
		summary.Followers,
		summary.AvgLikes,
		summary.AvgRetweets,
		summary.EngagementRate,
		summary.PostCount,
	})
}

// AppendCollectionLog appends one row to the collection log
func (c *Client) AppendCollectionLog(ctx context.Context, fetched, filtered, added, skippedDup int, errMsg string) error {
	if _, err := c.ensureSheet(ctx, SheetCollectLog, []string{"日時", "取得", "通過", "追加", "重複", "エラー"}); err != nil {
		return err
	}
	return c.appendRow(ctx, SheetCollectLog, []interface{}{
		c.now().Format("2006/01/02 15:04"),
		fetched, filtered, added, skippedDup, errMsg,
	})
}

// Dashboard is the operator-facing status block
type Dashboard struct {
	LastCollection string
	CollectedToday int
	Pending        int
	Approved       int
	PostedToday    int
	APIStatus      string
}

// UpdateDashboard rewrites the dashboard key/value block
func (c *Client) UpdateDashboard(ctx context.Context, d Dashboard) error {
	if _, err := c.ensureSheet(ctx, SheetDashboard, []string{"項目", "値"}); err != nil {
		return err
	}
	values := [][]interface{}{
		{"項目", "値"},
		{"最終収集", d.LastCollection},
		{"本日収集", d.CollectedToday},
		{"承認待ち", d.Pending},
		{"承認済み", d.Approved},
		{"本日投稿", d.PostedToday},
		{"APIステータス", d.APIStatus},
	}
	if err := c.limiter.Wait(ctx, ratelimit.LimiterSheets); err != nil {
		return err
	}
	_, err := c.service.Spreadsheets.Values.Update(c.spreadsheetID, SheetDashboard+"!A1", &sheets.ValueRange{Values: values}).
		ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("update dashboard: %w", err)
	}
	return nil
}

// Settings reads the settings sheet as raw key/value pairs
func (c *Client) Settings(ctx context.Context) (map[string]string, error) {
	return c.readKeyValues(ctx, SheetSettings)
}

// Preferences reads the preference sheet as raw key/value pairs
func (c *Client) Preferences(ctx context.Context) (map[string]string, error) {
	return c.readKeyValues(ctx, SheetPreferences)
}

// Setup creates every worksheet the pipeline uses. Safe to rerun.
func (c *Client) Setup(ctx context.Context) ([]string, error) {
	specs := []struct {
		title  string
		header []string
	}{
		{SheetCollect, []string{"URL", "メモ", "ステータス", "処理日時", "ツイートID"}},
		{SheetQueue, queueHeader},
		{SheetPosted, []string{"投稿日時", "種別", "投稿文", "Tweet ID", "スコア", "元URL"}},
		{SheetMetrics, []string{"日付", "フォロワー", "平均いいね", "平均RT", "エンゲージメント率", "投稿数"}},
		{SheetDashboard, []string{"項目", "値"}},
		{SheetSettings, []string{"キー", "値"}},
		{SheetPreferences, []string{"キー", "値"}},
		{SheetCollectLog, []string{"日時", "取得", "通過", "追加", "重複", "エラー"}},
	}

	var created []string
	for _, spec := range specs {
		wasCreated, err := c.ensureSheet(ctx, spec.title, spec.header)
		if err != nil {
			return created, err
		}
		if wasCreated {
			created = append(created, spec.title)
		}
	}
	return created, nil
}

func (c *Client) readKeyValues(ctx context.Context, sheet string) (map[string]string, error) {
	rows, err := c.readAll(ctx, sheet)
	if err != nil {
		return nil, err
	}
	out := map[string]string{}
	for i, row := range rows {
		if i == 0 {
			continue
		}
		key := cell(row, 0)
		if key == "" {
			continue
		}
		out[key] = cell(row, 1)
	}
	return out, nil
}

func (c *Client) readAll(ctx context.Context, sheet string) ([][]interface{}, error) {
	if err := c.limiter.Wait(ctx, ratelimit.LimiterSheets); err != nil {
		return nil, err
	}
	resp, err := c.service.Spreadsheets.Values.Get(c.spreadsheetID, sheet).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read sheet %s: %w", sheet, err)
	}
	return resp.Values, nil
}

func (c *Client) appendRow(ctx context.Context, sheet string, row []interface{}) error {
	if err := c.limiter.Wait(ctx, ratelimit.LimiterSheets); err != nil {
		return err
	}
	_, err := c.service.Spreadsheets.Values.Append(c.spreadsheetID, sheet+"!A1", &sheets.ValueRange{Values: [][]interface{}{row}}).
		ValueInputOption("RAW").InsertDataOption("INSERT_ROWS").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("append to %s: %w", sheet, err)
	}
	return nil
}

// ensureSheet creates a missing worksheet with its header row. Returns true
// when the sheet was created.
func (c *Client) ensureSheet(ctx context.Context, title string, header []string) (bool, error) {
	if err := c.limiter.Wait(ctx, ratelimit.LimiterSheets); err != nil {
		return false, err
	}
	spreadsheet, err := c.service.Spreadsheets.Get(c.spreadsheetID).Context(ctx).Do()
	if err != nil {
		return false, fmt.Errorf("get spreadsheet: %w", err)
	}
	for _, sheet := range spreadsheet.Sheets {
		if sheet.Properties.Title == title {
			return false, nil
		}
	}

	c.log.Info().Str("sheet", title).Msg("Creating worksheet")
	req := &sheets.BatchUpdateSpreadsheetRequest{
		Requests: []*sheets.Request{{
			AddSheet: &sheets.AddSheetRequest{
				Properties: &sheets.SheetProperties{Title: title},
			},
		}},
	}
	if _, err := c.service.Spreadsheets.BatchUpdate(c.spreadsheetID, req).Context(ctx).Do(); err != nil {
		return false, fmt.Errorf("create sheet %s: %w", title, err)
	}

	_, err = c.service.Spreadsheets.Values.Update(c.spreadsheetID, title+"!A1", &sheets.ValueRange{Values: [][]interface{}{toRow(header)}}).
		ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return true, fmt.Errorf("write header for %s: %w", title, err)
	}
	return true, nil
}

func toRow(cols []string) []interface{} {
	row := make([]interface{}, len(cols))
	for i, col := range cols {
		row[i] = col
	}
	return row
}

func cell(row []interface{}, i int) string {
	if i >= len(row) {
		return ""
	}
	switch v := row[i].(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

func truncateRunes(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}
