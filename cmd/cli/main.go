package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/xpost-agent/internal/agent/collector"
	"github.com/xpost-agent/internal/agent/curator"
	"github.com/xpost-agent/internal/agent/publisher"
	"github.com/xpost-agent/internal/ai"
	"github.com/xpost-agent/internal/analyze"
	"github.com/xpost-agent/internal/config"
	"github.com/xpost-agent/internal/firebase"
	"github.com/xpost-agent/internal/generate"
	"github.com/xpost-agent/internal/metrics"
	"github.com/xpost-agent/internal/models"
	"github.com/xpost-agent/internal/normalize"
	"github.com/xpost-agent/internal/notify"
	"github.com/xpost-agent/internal/pdca"
	"github.com/xpost-agent/internal/planner"
	"github.com/xpost-agent/internal/queue"
	"github.com/xpost-agent/internal/safety"
	"github.com/xpost-agent/internal/selection"
	"github.com/xpost-agent/internal/sheets"
	"github.com/xpost-agent/internal/source"
	"github.com/xpost-agent/internal/source/rss"
	"github.com/xpost-agent/internal/source/watchlist"
	"github.com/xpost-agent/internal/storage"
	"github.com/xpost-agent/internal/storage/sqlite"
	"github.com/xpost-agent/internal/twitter"
	"github.com/xpost-agent/pkg/logger"
	"github.com/xpost-agent/pkg/ratelimit"
)

var (
	cfgFile   string
	accountID int
	cfg       *config.Config
	log       *logger.Logger
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "xpost-agent",
		Short: "Autonomous X posting agent",
		Long: `An autonomous agent that collects buzzing AI tweets, generates
Japanese quote comments and original posts with Claude, and publishes
them to X on a daily plan.`,
		PersistentPreRunE: initializeApp,
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./configs/config.yaml)")
	rootCmd.PersistentFlags().IntVar(&accountID, "account", 1, "account ID from the configuration")

	rootCmd.AddCommand(collectCmd())
	rootCmd.AddCommand(addTweetCmd())
	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(curateCmd())
	rootCmd.AddCommand(curatePostCmd())
	rootCmd.AddCommand(generateCmd())
	rootCmd.AddCommand(postCmd())
	rootCmd.AddCommand(metricsCmd())
	rootCmd.AddCommand(importURLsCmd())
	rootCmd.AddCommand(setupSheetsCmd())
	rootCmd.AddCommand(syncQueueCmd())
	rootCmd.AddCommand(syncSettingsCmd())
	rootCmd.AddCommand(exportDashboardCmd())
	rootCmd.AddCommand(preferencesCmd())
	rootCmd.AddCommand(selectionPDCACmd())
	rootCmd.AddCommand(syncFromFirebaseCmd())
	rootCmd.AddCommand(processOperationsCmd())
	rootCmd.AddCommand(analyzePersonaCmd())
	rootCmd.AddCommand(weeklyPDCACmd())
	rootCmd.AddCommand(notifyTestCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func initializeApp(cmd *cobra.Command, args []string) error {
	var err error

	cfg, err = config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log = logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})

	return nil
}

// ============ SHARED WIRING ============

func account() (config.AccountConfig, error) {
	return cfg.Account(accountID)
}

func newQueueStore() *queue.Store {
	return queue.NewStore(cfg.QueueDir(), cfg.FeedbackFile(), log)
}

func newPrefStore() *selection.PreferenceStore {
	return selection.NewPreferenceStore(cfg.PreferencesFile(), log)
}

func newGate() (*safety.Gate, error) {
	rules, err := safety.LoadRules(cfg.Safety.RulesFile)
	if err != nil {
		return nil, err
	}
	return safety.NewGate(rules, log), nil
}

func newNotifier(acct config.AccountConfig, limiter *ratelimit.MultiLimiter) *notify.Notifier {
	return notify.NewNotifier(cfg.WebhookFor(acct), limiter, log)
}

func newPoster(acct config.AccountConfig, limiter *ratelimit.MultiLimiter) (*twitter.Poster, error) {
	if err := cfg.ValidatePosting(acct); err != nil {
		return nil, err
	}
	return twitter.NewPoster(cfg.Twitter.APIKey, cfg.Twitter.APISecret,
		acct.AccessToken(), acct.AccessSecret(), limiter, log), nil
}

func newSearchClient(limiter *ratelimit.MultiLimiter) (*twitter.SearchClient, error) {
	if err := cfg.ValidateSearch(); err != nil {
		return nil, err
	}
	return twitter.NewSearchClient(cfg.Twitter.BearerToken, limiter, log), nil
}

func newGenerator(acct config.AccountConfig, limiter *ratelimit.MultiLimiter) (*generate.Generator, error) {
	if err := cfg.ValidateLLM(); err != nil {
		return nil, err
	}
	gate, err := newGate()
	if err != nil {
		return nil, err
	}
	gen := generate.New(ai.NewClient(cfg.Anthropic, limiter, log), gate, log)

	if profile := loadPersona(acct.Handle); profile != nil {
		gen.SetPersona(profile)
	}
	gen.SetOverrides(newPrefStore().Load().PromptOverrides)
	return gen, nil
}

func newPlanner() *planner.Planner {
	return planner.New(planner.MixConfig{
		DailyTotalMin:        cfg.Posting.DailyMin,
		DailyTotalMax:        cfg.Posting.DailyMax,
		QuoteRatioMax:        cfg.Posting.QuoteRTRatioMax,
		MaxConsecutiveQuotes: cfg.Posting.MaxConsecutiveQuotes,
	}, log)
}

func newArchive() (*sqlite.Archive, error) {
	archive, err := sqlite.New(cfg.Database.DSN)
	if err != nil {
		return nil, err
	}
	if err := archive.Migrate(); err != nil {
		return nil, err
	}
	return archive, nil
}

func newSheetsClient(ctx context.Context, limiter *ratelimit.MultiLimiter) (*sheets.Client, error) {
	if err := cfg.ValidateSheets(); err != nil {
		return nil, err
	}
	return sheets.NewClient(ctx, sheets.Config{
		SpreadsheetID:     cfg.Sheets.SpreadsheetID,
		CredentialsBase64: cfg.Sheets.CredentialsBase64,
		CredentialsFile:   cfg.Sheets.CredentialsFile,
	}, limiter, log)
}

func newFirebaseClient(ctx context.Context, limiter *ratelimit.MultiLimiter) (*firebase.Client, error) {
	if err := cfg.ValidateFirebase(); err != nil {
		return nil, err
	}
	return firebase.NewClient(ctx, firebase.Config{
		ProjectID:         cfg.Firebase.ProjectID,
		CredentialsBase64: cfg.Firebase.CredentialsBase64,
		CredentialsFile:   cfg.Firebase.CredentialsFile,
	}, limiter, log)
}

func personaPath(handle string) string {
	return filepath.Join(cfg.PersonaDir(), strings.TrimPrefix(handle, "@")+".json")
}

func loadPersona(handle string) *models.PersonaProfile {
	data, err := os.ReadFile(personaPath(handle))
	if err != nil {
		return nil
	}
	var profile models.PersonaProfile
	if err := json.Unmarshal(data, &profile); err != nil {
		log.Warn().Err(err).Msg("Persona profile did not parse, ignoring")
		return nil
	}
	return &profile
}

func loadMasterData() string {
	data, err := os.ReadFile(cfg.MasterDataFile())
	if err != nil {
		log.Warn().Str("path", cfg.MasterDataFile()).Msg("Master data file missing, generating without it")
		return ""
	}
	return string(data)
}

func fetchPastPosts(ctx context.Context, poster *twitter.Poster) []string {
	recent, err := poster.RecentTweets(ctx, 20)
	if err != nil {
		log.Warn().Err(err).Msg("Could not fetch recent posts for duplicate check")
		return nil
	}
	texts := make([]string, 0, len(recent))
	for _, t := range recent {
		texts = append(texts, t.Text)
	}
	return texts
}

// ============ COLLECT ============

func collectCmd() *cobra.Command {
	var opts collector.Options

	cmd := &cobra.Command{
		Use:   "collect",
		Short: "Collect quote candidates from target accounts and sources",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			limiter := ratelimit.NewDefaultLimiter()

			search, err := newSearchClient(limiter)
			if err != nil {
				return err
			}

			manager := source.NewManager()
			for _, src := range rss.NewMultiple(cfg.Collect.RSSFeeds, log) {
				manager.Register(src)
			}
			if cfg.Collect.WatchlistFile != "" {
				manager.Register(watchlist.New(cfg.Collect.WatchlistFile, log))
			}

			agent := collector.NewAgent(search, newQueueStore(), newPrefStore(), manager, cfg.Collect, log)
			result, err := agent.Collect(ctx, opts)
			if err != nil {
				return err
			}
			fmt.Println(collector.FormatResult(result))
			return nil
		},
	}

	cmd.Flags().IntVar(&opts.MinLikes, "min-likes", 0, "minimum like count (0 uses the configured value)")
	cmd.Flags().IntVar(&opts.MaxTweets, "max-tweets", 0, "maximum candidates to keep")
	cmd.Flags().BoolVar(&opts.AutoApprove, "auto-approve", false, "approve added candidates immediately")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "show candidates without touching the queue")
	return cmd
}

func addTweetCmd() *cobra.Command {
	var url, memo string
	var approve bool

	cmd := &cobra.Command{
		Use:   "add-tweet",
		Short: "Add a single tweet URL to the queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			record, err := normalize.FromURL(url, memo)
			if err != nil {
				return err
			}
			record.Source = models.SourceManual

			store := newQueueStore()
			added, err := store.Add(record)
			if err != nil {
				return err
			}
			if !added {
				fmt.Printf("既にキューにあります: %s\n", record.TweetID)
				return nil
			}
			if approve {
				if _, err := store.Approve(record.TweetID); err != nil {
					return err
				}
			}
			fmt.Printf("追加しました: @%s / %s\n", record.AuthorUsername, record.TweetID)
			return nil
		},
	}

	cmd.Flags().StringVar(&url, "url", "", "tweet URL (required)")
	cmd.Flags().StringVar(&memo, "memo", "", "note stored with the candidate")
	cmd.Flags().BoolVar(&approve, "approve", false, "approve immediately")
	cmd.MarkFlagRequired("url")
	return cmd
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show queue statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			stats := newQueueStore().Stats()
			fmt.Println("📊 キュー状況")
			fmt.Printf("  未処理:     %d\n", stats.Pending)
			fmt.Printf("  承認済み:   %d\n", stats.Approved)
			fmt.Printf("  生成済み:   %d\n", stats.Generated)
			fmt.Printf("  スキップ:   %d\n", stats.Skipped)
			fmt.Printf("  投稿済み:   %d (今日: %d)\n", stats.Posted, stats.PostedToday)
			return nil
		},
	}
}

// ============ CURATE / GENERATE ============

func curateCmd() *cobra.Command {
	var opts curator.Options

	cmd := &cobra.Command{
		Use:   "curate",
		Short: "Generate quote comments for approved candidates",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			limiter := ratelimit.NewDefaultLimiter()

			acct, err := account()
			if err != nil {
				return err
			}
			gen, err := newGenerator(acct, limiter)
			if err != nil {
				return err
			}
			poster, err := newPoster(acct, limiter)
			if err != nil {
				return err
			}
			if opts.StartDate == "" {
				opts.StartDate = acct.StartDate
			}

			agent := curator.NewAgent(newQueueStore(), gen, newPlanner(),
				newNotifier(acct, limiter), poster, acct.Name, log)
			result, err := agent.Curate(ctx, opts)
			if err != nil {
				return err
			}
			fmt.Println(curator.FormatResult(result))
			return nil
		},
	}

	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "generate without saving or notifying")
	cmd.Flags().StringVar(&opts.StartDate, "start-date", "", "account start date YYYY-MM-DD (drives warm-up)")
	return cmd
}

func generateCmd() *cobra.Command {
	var dateStr string

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate the day's original posts",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			limiter := ratelimit.NewDefaultLimiter()

			acct, err := account()
			if err != nil {
				return err
			}
			gen, err := newGenerator(acct, limiter)
			if err != nil {
				return err
			}

			targetDate := time.Now()
			if dateStr != "" {
				targetDate, err = time.ParseInLocation("2006-01-02", dateStr, time.Local)
				if err != nil {
					return fmt.Errorf("invalid --date: %w", err)
				}
			}

			var pastPosts []string
			if poster, err := newPoster(acct, limiter); err == nil {
				pastPosts = fetchPastPosts(ctx, poster)
			}

			results, err := gen.GenerateOriginals(ctx, targetDate, loadMasterData(), pastPosts)
			if err != nil {
				return err
			}
			path, err := generate.SaveDailyOutput(results, cfg.OutputDir(), strings.TrimPrefix(acct.Handle, "@"), targetDate)
			if err != nil {
				return err
			}
			fmt.Printf("📝 %d件生成 → %s\n", len(results), path)

			drafts := make([]notify.DraftPost, 0, len(results))
			for _, r := range results {
				score := r.Score
				safetyRes := r.Safety
				drafts = append(drafts, notify.DraftPost{
					Text:   r.Text,
					Type:   r.PostType,
					Time:   r.Slot,
					Score:  &score,
					Safety: &safetyRes,
				})
			}
			notifier := newNotifier(acct, limiter)
			if err := notifier.NotifyDailyPosts(ctx, acct.Name, acct.Handle, drafts, targetDate.Format("2006-01-02")); err != nil {
				log.Warn().Err(err).Msg("Draft notification failed")
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&dateStr, "date", "", "target date YYYY-MM-DD (default today)")
	return cmd
}

// ============ POST ============

func newPublisher(acct config.AccountConfig, limiter *ratelimit.MultiLimiter) (*publisher.Agent, error) {
	poster, err := newPoster(acct, limiter)
	if err != nil {
		return nil, err
	}
	gate, err := newGate()
	if err != nil {
		return nil, err
	}
	archive, err := newArchive()
	if err != nil {
		return nil, err
	}
	return publisher.NewAgent(newQueueStore(), poster, gate, newNotifier(acct, limiter),
		archive, cfg.Mode, cfg.Posting, acct, cfg.OutputDir(), log), nil
}

func postCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "post",
		Short: "Post due original slots from today's output",
		RunE: func(cmd *cobra.Command, args []string) error {
			acct, err := account()
			if err != nil {
				return err
			}
			limiter := ratelimit.NewDefaultLimiter()
			pub, err := newPublisher(acct, limiter)
			if err != nil {
				return err
			}
			result, err := pub.PublishOriginals(context.Background())
			if err != nil {
				return err
			}
			fmt.Println(publisher.FormatResult(result))
			return nil
		},
	}
}

func curatePostCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "curate-post",
		Short: "Post generated quote RTs from the queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			acct, err := account()
			if err != nil {
				return err
			}
			limiter := ratelimit.NewDefaultLimiter()
			pub, err := newPublisher(acct, limiter)
			if err != nil {
				return err
			}
			result, err := pub.PublishQuotes(context.Background())
			if err != nil {
				return err
			}
			fmt.Println(publisher.FormatResult(result))
			return nil
		},
	}
}

// ============ METRICS ============

func metricsCmd() *cobra.Command {
	var days int
	var sendNotify bool

	cmd := &cobra.Command{
		Use:   "metrics",
		Short: "Collect engagement metrics for recent posts",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			limiter := ratelimit.NewDefaultLimiter()

			acct, err := account()
			if err != nil {
				return err
			}
			poster, err := newPoster(acct, limiter)
			if err != nil {
				return err
			}
			search, err := newSearchClient(limiter)
			if err != nil {
				return err
			}

			coll := metrics.NewCollector(poster, search, log)
			collected, err := coll.CollectRecent(ctx, days)
			if err != nil {
				return err
			}
			handle := strings.TrimPrefix(acct.Handle, "@")
			path, err := coll.Save(collected, cfg.OutputDir(), handle)
			if err != nil {
				return err
			}

			if archive, err := newArchive(); err == nil {
				for _, m := range collected {
					snap := &storage.MetricSnapshot{
						TweetID:     m.TweetID,
						Likes:       m.Likes,
						Retweets:    m.Retweets,
						Replies:     m.Replies,
						Quotes:      m.Quotes,
						Impressions: m.Impressions,
						CollectedAt: time.Now(),
					}
					if err := archive.SaveSnapshot(ctx, snap); err != nil {
						log.Warn().Err(err).Str("tweet_id", m.TweetID).Msg("Snapshot save failed")
					}
				}
				archive.Close()
			}

			summary := metrics.Summarize(collected)
			fmt.Printf("📈 %d件収集 → %s\n", len(collected), path)
			fmt.Printf("  合計: %d❤ %dRT / 平均 %.1f❤\n",
				summary.TotalLikes, summary.TotalRetweets, summary.AvgLikes)

			if sendNotify {
				notifier := newNotifier(acct, limiter)
				if err := notifier.NotifyMetrics(ctx, acct.Name, summary); err != nil {
					log.Warn().Err(err).Msg("Metrics notification failed")
				}
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&days, "days", 7, "how many days of posts to cover")
	cmd.Flags().BoolVar(&sendNotify, "notify", false, "send the summary to Discord")
	return cmd
}

// ============ SHEETS CONTROL PLANE ============

func importURLsCmd() *cobra.Command {
	var autoApprove bool

	cmd := &cobra.Command{
		Use:   "import-urls",
		Short: "Import tweet URLs from the intake sheet into the queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			limiter := ratelimit.NewDefaultLimiter()

			client, err := newSheetsClient(ctx, limiter)
			if err != nil {
				return err
			}
			importer := sheets.NewURLImporter(client, newQueueStore(), log)
			result, err := importer.Import(ctx, autoApprove)
			if err != nil {
				return err
			}
			fmt.Println(sheets.FormatResult(result))
			return nil
		},
	}

	cmd.Flags().BoolVar(&autoApprove, "auto-approve", false, "approve imported candidates immediately")
	return cmd
}

func setupSheetsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "setup-sheets",
		Short: "Create the worksheet layout in the control spreadsheet",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			client, err := newSheetsClient(ctx, ratelimit.NewDefaultLimiter())
			if err != nil {
				return err
			}
			created, err := client.Setup(ctx)
			if err != nil {
				return err
			}
			if len(created) == 0 {
				fmt.Println("全シート作成済み")
				return nil
			}
			fmt.Printf("作成したシート: %s\n", strings.Join(created, ", "))
			return nil
		},
	}
}

func syncQueueCmd() *cobra.Command {
	var direction string

	cmd := &cobra.Command{
		Use:   "sync-queue",
		Short: "Sync the queue with the control spreadsheet",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			limiter := ratelimit.NewDefaultLimiter()

			client, err := newSheetsClient(ctx, limiter)
			if err != nil {
				return err
			}
			sync := sheets.NewQueueSync(client, newQueueStore(), newPrefStore(), log)

			switch direction {
			case "to", "to_sheet":
				result, err := sync.SyncToSheet(ctx)
				if err != nil {
					return err
				}
				fmt.Printf("⬆️ %d件をシートへ反映\n", result.Synced)
			case "from", "from_sheet":
				result, err := sync.SyncFromSheet(ctx)
				if err != nil {
					return err
				}
				fmt.Printf("⬇️ 承認 %d / スキップ %d / 変更なし %d\n",
					result.Approved, result.Skipped, result.Unchanged)
				for _, e := range result.Errors {
					fmt.Printf("  ❌ %s\n", e)
				}
			case "full":
				from, to, _, err := sync.FullSync(ctx)
				if err != nil {
					return err
				}
				fmt.Printf("🔄 承認 %d / スキップ %d / シート反映 %d件\n",
					from.Approved, from.Skipped, to.Synced)
			default:
				return fmt.Errorf("unknown direction %q (to_sheet, from_sheet, full)", direction)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&direction, "direction", "full", "sync direction: to, from, full")
	return cmd
}

func syncSettingsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync-settings",
		Short: "Show the operator settings from the spreadsheet",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			client, err := newSheetsClient(ctx, ratelimit.NewDefaultLimiter())
			if err != nil {
				return err
			}
			sync := sheets.NewQueueSync(client, newQueueStore(), newPrefStore(), log)
			settings, err := sync.ReadSettings(ctx)
			if err != nil {
				return err
			}
			fmt.Println("⚙️ シート設定")
			fmt.Printf("  min_likes:           %d\n", settings.MinLikes)
			fmt.Printf("  max_tweets:          %d\n", settings.MaxTweets)
			fmt.Printf("  max_age_hours:       %d\n", settings.MaxAgeHours)
			fmt.Printf("  daily_post_limit:    %d\n", settings.DailyPostLimit)
			fmt.Printf("  auto_post_min_score: %d\n", settings.AutoPostMinScore)
			fmt.Printf("  auto_approve:        %v\n", settings.AutoApprove)
			fmt.Printf("  mode:                %s\n", settings.Mode)
			return nil
		},
	}
}

func exportDashboardCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export-dashboard",
		Short: "Rewrite the spreadsheet dashboard from queue stats",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			client, err := newSheetsClient(ctx, ratelimit.NewDefaultLimiter())
			if err != nil {
				return err
			}
			sync := sheets.NewQueueSync(client, newQueueStore(), newPrefStore(), log)
			dash, err := sync.SyncDashboard(ctx, nil)
			if err != nil {
				return err
			}
			fmt.Printf("📊 ダッシュボード更新: 未処理 %d / 承認 %d / 今日投稿 %d\n",
				dash.Pending, dash.Approved, dash.PostedToday)
			return nil
		},
	}
}

// ============ PREFERENCES / PDCA ============

func preferencesCmd() *cobra.Command {
	var syncRemote bool

	cmd := &cobra.Command{
		Use:   "preferences",
		Short: "Show selection preferences, optionally pulling sheet overrides",
		RunE: func(cmd *cobra.Command, args []string) error {
			store := newPrefStore()

			if syncRemote {
				ctx := context.Background()
				client, err := newSheetsClient(ctx, ratelimit.NewDefaultLimiter())
				if err != nil {
					return err
				}
				sync := sheets.NewQueueSync(client, newQueueStore(), store, log)
				result, err := sync.SyncPreferences(ctx)
				if err != nil {
					return err
				}
				if len(result.UpdatedKeys) > 0 {
					fmt.Printf("更新: %s\n", strings.Join(result.UpdatedKeys, ", "))
				} else {
					fmt.Println("変更なし")
				}
			}

			prefs := store.Load()
			data, err := json.MarshalIndent(prefs, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(data))
			return nil
		},
	}

	cmd.Flags().BoolVar(&syncRemote, "sync", false, "pull overrides from the spreadsheet first")
	return cmd
}

func selectionPDCACmd() *cobra.Command {
	var autoAdjust, dryRun bool

	cmd := &cobra.Command{
		Use:   "selection-pdca",
		Short: "Analyze approval feedback and tune selection preferences",
		RunE: func(cmd *cobra.Command, args []string) error {
			store := newQueueStore()
			updater := pdca.NewUpdater(newPrefStore(), log)
			stats := store.FeedbackStats()

			fmt.Println(updater.Report(stats))

			if autoAdjust {
				result, err := updater.AutoUpdate(stats, dryRun)
				if err != nil {
					return err
				}
				fmt.Println(result.Summary)
				for _, c := range result.Changes {
					fmt.Printf("  - %s\n", c)
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&autoAdjust, "auto-adjust", false, "apply the recommended adjustments")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "show adjustments without saving")
	return cmd
}

func weeklyPDCACmd() *cobra.Command {
	return &cobra.Command{
		Use:   "weekly-pdca",
		Short: "Run the weekly report and master data update",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			limiter := ratelimit.NewDefaultLimiter()

			acct, err := account()
			if err != nil {
				return err
			}
			poster, err := newPoster(acct, limiter)
			if err != nil {
				return err
			}
			search, err := newSearchClient(limiter)
			if err != nil {
				return err
			}

			coll := metrics.NewCollector(poster, search, log)
			collected, err := coll.CollectRecent(ctx, 7)
			if err != nil {
				return err
			}

			store := newQueueStore()
			updater := pdca.NewUpdater(newPrefStore(), log)
			reporter := pdca.NewWeeklyReporter(acct.Name, updater, log)
			report := reporter.Generate(collected, store.FeedbackStats())

			handle := strings.TrimPrefix(acct.Handle, "@")
			path, err := reporter.Save(report, cfg.OutputDir(), handle)
			if err != nil {
				return err
			}
			fmt.Printf("📋 週次レポート → %s\n", path)

			master := pdca.NewMasterUpdater(cfg.MasterDataFile(), log)
			summary, err := master.UpdateFromMetrics(collected)
			if err != nil {
				log.Warn().Err(err).Msg("Master data update failed")
			} else {
				fmt.Println(summary)
			}

			notifier := newNotifier(acct, limiter)
			if err := notifier.NotifyWeeklyReport(ctx, acct.Name, report); err != nil {
				log.Warn().Err(err).Msg("Weekly report notification failed")
			}
			return nil
		},
	}
}

// ============ FIREBASE CONTROL PLANE ============

func syncFromFirebaseCmd() *cobra.Command {
	var uid string
	var queueOnly, prefsOnly, quiet bool

	cmd := &cobra.Command{
		Use:   "sync-from-firebase",
		Short: "Apply queue decisions and preference overrides from Firestore",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			client, err := newFirebaseClient(ctx, ratelimit.NewDefaultLimiter())
			if err != nil {
				return err
			}
			defer client.Close()

			if uid == "" {
				uid = cfg.Firebase.UID
			}
			sync := firebase.NewSync(client, newQueueStore(), newPrefStore(), log)
			sync.SetMetricsDir(cfg.OutputDir())

			if !prefsOnly {
				result, err := sync.SyncQueueDecisions(ctx, uid)
				if err != nil {
					return err
				}
				if !quiet {
					fmt.Printf("⬇️ 承認 %d / スキップ %d / 不明 %d / 処理済み %d\n",
						result.Approved, result.Skipped, result.Unknown, result.Processed)
					for _, e := range result.Errors {
						fmt.Printf("  ❌ %s\n", e)
					}
				}
			}
			if !queueOnly {
				result, err := sync.SyncPreferences(ctx, uid)
				if err != nil {
					return err
				}
				if !quiet {
					if result.Found {
						fmt.Printf("⚙️ 設定更新: %s\n", strings.Join(result.Updated, ", "))
					} else {
						fmt.Println("⚙️ リモート設定なし")
					}
				}
			}
			if uid != "" {
				if err := sync.PushDashboard(ctx, uid); err != nil {
					log.Warn().Err(err).Msg("Dashboard push failed")
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&uid, "uid", "", "user ID (default from FIREBASE_UID)")
	cmd.Flags().BoolVar(&queueOnly, "queue-only", false, "sync queue decisions only")
	cmd.Flags().BoolVar(&prefsOnly, "prefs-only", false, "sync preferences only")
	cmd.Flags().BoolVar(&quiet, "quiet", false, "suppress per-item output")
	return cmd
}

func processOperationsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "process-operations",
		Short: "Execute pending operation requests from Firestore",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			client, err := newFirebaseClient(ctx, ratelimit.NewDefaultLimiter())
			if err != nil {
				return err
			}
			defer client.Close()

			binPath, err := os.Executable()
			if err != nil {
				return fmt.Errorf("resolve executable: %w", err)
			}
			processor := firebase.NewProcessor(client, binPath, log)
			results, err := processor.Process(ctx, cfg.Firebase.UID)
			if err != nil {
				return err
			}
			if len(results) == 0 {
				fmt.Println("保留中のリクエストなし")
				return nil
			}
			for _, r := range results {
				fmt.Printf("  %s %s → %s\n", r.ID, r.Command, r.Status)
			}
			return nil
		},
	}
}

// ============ PERSONA ============

// styleLLM adapts the Anthropic client to the persona analyzer's
// single-prompt interface.
type styleLLM struct {
	client *ai.Client
}

func (s styleLLM) Complete(ctx context.Context, prompt string) (string, error) {
	return s.client.CompleteWithJSON(ctx, "あなたは日本語SNSアカウントの文体分析の専門家です。", prompt)
}

func analyzePersonaCmd() *cobra.Command {
	var username, file string
	var count int

	cmd := &cobra.Command{
		Use:   "analyze-persona",
		Short: "Build a style profile from an account's tweets",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			limiter := ratelimit.NewDefaultLimiter()

			var tweets []string
			switch {
			case file != "":
				data, err := os.ReadFile(file)
				if err != nil {
					return err
				}
				for _, line := range strings.Split(string(data), "\n") {
					if line = strings.TrimSpace(line); line != "" {
						tweets = append(tweets, line)
					}
				}
			case username != "":
				search, err := newSearchClient(limiter)
				if err != nil {
					return err
				}
				fetched, err := search.UserTweets(ctx, username, count)
				if err != nil {
					return err
				}
				for _, t := range fetched {
					tweets = append(tweets, t.Text)
				}
			default:
				return fmt.Errorf("--username or --file is required")
			}

			if len(tweets) == 0 {
				return fmt.Errorf("no tweets to analyze")
			}

			var llm analyze.StyleLLM
			if cfg.Anthropic.APIKey != "" {
				llm = styleLLM{client: ai.NewClient(cfg.Anthropic, limiter, log)}
			}
			analyzer := analyze.NewPersonaAnalyzer(llm, log)
			profile := analyzer.Analyze(ctx, tweets, username)

			if err := os.MkdirAll(cfg.PersonaDir(), 0o755); err != nil {
				return err
			}
			data, err := json.MarshalIndent(profile, "", "  ")
			if err != nil {
				return err
			}
			path := personaPath(username)
			if err := os.WriteFile(path, data, 0o644); err != nil {
				return err
			}
			promptPath := strings.TrimSuffix(path, ".json") + "_prompt.md"
			if err := os.WriteFile(promptPath, []byte(profile.PromptInjection()), 0o644); err != nil {
				return err
			}
			fmt.Printf("👤 %d件分析 → %s\n", len(tweets), path)
			fmt.Println(profile.PromptInjection())
			return nil
		},
	}

	cmd.Flags().StringVar(&username, "username", "", "X username to analyze")
	cmd.Flags().StringVar(&file, "file", "", "text file with one tweet per line")
	cmd.Flags().IntVar(&count, "count", 50, "tweets to fetch when using --username")
	return cmd
}

// ============ NOTIFY ============

func notifyTestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "notify-test",
		Short: "Send a test message to the Discord webhook",
		RunE: func(cmd *cobra.Command, args []string) error {
			acct, err := account()
			if err != nil {
				return err
			}
			notifier := newNotifier(acct, ratelimit.NewDefaultLimiter())
			if !notifier.Enabled() {
				return fmt.Errorf("no Discord webhook configured for %s", acct.EnvPrefix)
			}
			if err := notifier.Send(context.Background(), "✅ xpost-agent notification test", nil); err != nil {
				return err
			}
			fmt.Println("送信しました")
			return nil
		},
	}
}
