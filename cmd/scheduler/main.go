package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/xpost-agent/internal/agent/collector"
	"github.com/xpost-agent/internal/agent/curator"
	"github.com/xpost-agent/internal/agent/publisher"
	"github.com/xpost-agent/internal/ai"
	"github.com/xpost-agent/internal/config"
	"github.com/xpost-agent/internal/firebase"
	"github.com/xpost-agent/internal/generate"
	"github.com/xpost-agent/internal/metrics"
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
	"github.com/xpost-agent/internal/storage/sqlite"
	"github.com/xpost-agent/internal/twitter"
	"github.com/xpost-agent/pkg/logger"
	"github.com/xpost-agent/pkg/ratelimit"
)

var (
	cfgFile string
	cfg     *config.Config
	log     *logger.Logger
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "xpost-scheduler",
		Short: "Background scheduler for the X posting agent",
		Long: `Runs the collect, curate, post and sync jobs on cron schedules.
This daemon should be run as a service for autonomous operation.`,
		RunE: runScheduler,
	}

	rootCmd.Flags().StringVar(&cfgFile, "config", "", "config file path")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// deps is the shared wiring for every scheduled job
type deps struct {
	acct     config.AccountConfig
	limiter  *ratelimit.MultiLimiter
	store    *queue.Store
	prefs    *selection.PreferenceStore
	gate     *safety.Gate
	notifier *notify.Notifier
	poster   *twitter.Poster
	search   *twitter.SearchClient
	gen      *generate.Generator
	plan     *planner.Planner
}

func runScheduler(cmd *cobra.Command, args []string) error {
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

	log.Info().Msg("Starting xpost-agent scheduler")

	accounts := cfg.ActiveAccounts()
	if len(accounts) == 0 {
		return fmt.Errorf("no active accounts configured")
	}
	acct := accounts[0]

	if err := cfg.ValidatePosting(acct); err != nil {
		return err
	}
	if err := cfg.ValidateSearch(); err != nil {
		return err
	}
	if err := cfg.ValidateLLM(); err != nil {
		return err
	}

	rules, err := safety.LoadRules(cfg.Safety.RulesFile)
	if err != nil {
		return err
	}

	limiter := ratelimit.NewDefaultLimiter()
	d := &deps{
		acct:     acct,
		limiter:  limiter,
		store:    queue.NewStore(cfg.QueueDir(), cfg.FeedbackFile(), log),
		prefs:    selection.NewPreferenceStore(cfg.PreferencesFile(), log),
		gate:     safety.NewGate(rules, log),
		notifier: notify.NewNotifier(cfg.WebhookFor(acct), limiter, log),
		poster: twitter.NewPoster(cfg.Twitter.APIKey, cfg.Twitter.APISecret,
			acct.AccessToken(), acct.AccessSecret(), limiter, log),
		search: twitter.NewSearchClient(cfg.Twitter.BearerToken, limiter, log),
		plan: planner.New(planner.MixConfig{
			DailyTotalMin:        cfg.Posting.DailyMin,
			DailyTotalMax:        cfg.Posting.DailyMax,
			QuoteRatioMax:        cfg.Posting.QuoteRTRatioMax,
			MaxConsecutiveQuotes: cfg.Posting.MaxConsecutiveQuotes,
		}, log),
	}
	d.gen = generate.New(ai.NewClient(cfg.Anthropic, limiter, log), d.gate, log)
	d.gen.SetOverrides(d.prefs.Load().PromptOverrides)

	go startHealthServer()

	c := cron.New(cron.WithLogger(cronLogger{log}))

	jobs := []struct {
		name string
		spec string
		run  func()
	}{
		{"collect", cfg.Scheduler.CollectCron, func() { runCollect(d) }},
		{"curate", cfg.Scheduler.CurateCron, func() { runCurate(d) }},
		{"post", cfg.Scheduler.PostCron, func() { runPost(d) }},
		{"sync", cfg.Scheduler.SyncCron, func() { runSync(d) }},
		{"weekly-pdca", cfg.Scheduler.WeeklyPDCACron, func() { runWeeklyPDCA(d) }},
	}
	for _, job := range jobs {
		if _, err := c.AddFunc(job.spec, job.run); err != nil {
			return fmt.Errorf("failed to schedule %s job: %w", job.name, err)
		}
		log.Info().Str("job", job.name).Str("cron", job.spec).Msg("Job scheduled")
	}

	c.Start()
	log.Info().Msg("Scheduler started")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Info().Msg("Shutting down scheduler")
	c.Stop()

	return nil
}

func runCollect(d *deps) {
	ctx := context.Background()
	log.Info().Msg("Running scheduled collect")

	manager := source.NewManager()
	for _, src := range rss.NewMultiple(cfg.Collect.RSSFeeds, log) {
		manager.Register(src)
	}
	if cfg.Collect.WatchlistFile != "" {
		manager.Register(watchlist.New(cfg.Collect.WatchlistFile, log))
	}

	agent := collector.NewAgent(d.search, d.store, d.prefs, manager, cfg.Collect, log)
	result, err := agent.Collect(ctx, collector.Options{})
	if err != nil {
		log.Error().Err(err).Msg("Scheduled collect failed")
		d.notifier.NotifyError(ctx, "収集エラー", err.Error())
		return
	}

	log.Info().
		Int("fetched", result.Fetched).
		Int("added", result.Added).
		Msg("Scheduled collect completed")
}

func runCurate(d *deps) {
	ctx := context.Background()
	log.Info().Msg("Running scheduled curate")

	agent := curator.NewAgent(d.store, d.gen, d.plan, d.notifier, d.poster, d.acct.Name, log)
	result, err := agent.Curate(ctx, curator.Options{StartDate: d.acct.StartDate})
	if err != nil {
		log.Error().Err(err).Msg("Scheduled curate failed")
		d.notifier.NotifyError(ctx, "生成エラー", err.Error())
		return
	}

	log.Info().
		Int("generated", result.Generated).
		Int("failed", result.Failed).
		Msg("Scheduled curate completed")
}

func runPost(d *deps) {
	ctx := context.Background()

	archive, err := sqlite.New(cfg.Database.DSN)
	if err != nil {
		log.Error().Err(err).Msg("Archive open failed")
		return
	}
	defer archive.Close()
	if err := archive.Migrate(); err != nil {
		log.Error().Err(err).Msg("Archive migration failed")
		return
	}

	agent := publisher.NewAgent(d.store, d.poster, d.gate, d.notifier, archive,
		cfg.Mode, cfg.Posting, d.acct, cfg.OutputDir(), log)

	if result, err := agent.PublishOriginals(ctx); err != nil {
		log.Error().Err(err).Msg("Scheduled original post failed")
	} else if result.Posted > 0 {
		log.Info().Int("posted", result.Posted).Msg("Originals posted")
	}

	if result, err := agent.PublishQuotes(ctx); err != nil {
		log.Error().Err(err).Msg("Scheduled quote post failed")
	} else if result.Posted > 0 {
		log.Info().Int("posted", result.Posted).Msg("Quotes posted")
	}
}

// runSync pulls operator decisions from whichever control plane is
// configured. Firestore wins when both are set.
func runSync(d *deps) {
	ctx := context.Background()

	if cfg.Firebase.ProjectID != "" {
		client, err := firebase.NewClient(ctx, firebase.Config{
			ProjectID:         cfg.Firebase.ProjectID,
			CredentialsBase64: cfg.Firebase.CredentialsBase64,
			CredentialsFile:   cfg.Firebase.CredentialsFile,
		}, d.limiter, log)
		if err != nil {
			log.Error().Err(err).Msg("Firestore connect failed")
			return
		}
		defer client.Close()

		sync := firebase.NewSync(client, d.store, d.prefs, log)
		sync.SetMetricsDir(cfg.OutputDir())
		if _, _, err := sync.FullSync(ctx, cfg.Firebase.UID); err != nil {
			log.Error().Err(err).Msg("Firestore sync failed")
		}
		return
	}

	if cfg.Sheets.SpreadsheetID == "" {
		return
	}
	client, err := sheets.NewClient(ctx, sheets.Config{
		SpreadsheetID:     cfg.Sheets.SpreadsheetID,
		CredentialsBase64: cfg.Sheets.CredentialsBase64,
		CredentialsFile:   cfg.Sheets.CredentialsFile,
	}, d.limiter, log)
	if err != nil {
		log.Error().Err(err).Msg("Sheets connect failed")
		return
	}
	if _, _, _, err := sheets.NewQueueSync(client, d.store, d.prefs, log).FullSync(ctx); err != nil {
		log.Error().Err(err).Msg("Sheet sync failed")
	}
}

func runWeeklyPDCA(d *deps) {
	ctx := context.Background()
	log.Info().Msg("Running weekly PDCA")

	coll := metrics.NewCollector(d.poster, d.search, log)
	collected, err := coll.CollectRecent(ctx, 7)
	if err != nil {
		log.Error().Err(err).Msg("Weekly metrics collection failed")
		return
	}

	updater := pdca.NewUpdater(d.prefs, log)
	reporter := pdca.NewWeeklyReporter(d.acct.Name, updater, log)
	report := reporter.Generate(collected, d.store.FeedbackStats())

	handle := strings.TrimPrefix(d.acct.Handle, "@")
	if _, err := reporter.Save(report, cfg.OutputDir(), handle); err != nil {
		log.Warn().Err(err).Msg("Weekly report save failed")
	}

	master := pdca.NewMasterUpdater(cfg.MasterDataFile(), log)
	if _, err := master.UpdateFromMetrics(collected); err != nil {
		log.Warn().Err(err).Msg("Master data update failed")
	}

	if _, err := updater.AutoUpdate(d.store.FeedbackStats(), false); err != nil {
		log.Warn().Err(err).Msg("Preference auto-adjust failed")
	}

	if err := d.notifier.NotifyWeeklyReport(ctx, d.acct.Name, report); err != nil {
		log.Warn().Err(err).Msg("Weekly report notification failed")
	}
}

// cronLogger adapts our logger for cron
type cronLogger struct {
	log *logger.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Info().Msgf(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error().Err(err).Msgf(msg, keysAndValues...)
}

// startHealthServer starts a simple HTTP server for health checks
func startHealthServer() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "10000"
	}

	http.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	http.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("xpost-agent scheduler"))
	})

	log.Info().Str("port", port).Msg("Health check server starting")
	if err := http.ListenAndServe(":"+port, nil); err != nil {
		log.Error().Err(err).Msg("Health server failed")
	}
}
