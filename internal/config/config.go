package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Operating modes for the publishing pipeline
const (
	ModeManualApproval = "manual_approval"
	ModeSemiAuto       = "semi_auto"
	ModeFullAuto       = "full_auto"
)

// Config represents the application configuration
type Config struct {
	DataDir   string          `mapstructure:"data_dir"`
	Mode      string          `mapstructure:"mode"`
	Accounts  []AccountConfig `mapstructure:"accounts"`
	Anthropic AnthropicConfig `mapstructure:"anthropic"`
	Twitter   TwitterConfig   `mapstructure:"twitter"`
	Discord   DiscordConfig   `mapstructure:"discord"`
	Sheets    SheetsConfig    `mapstructure:"sheets"`
	Firebase  FirebaseConfig  `mapstructure:"firebase"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Posting   PostingConfig   `mapstructure:"posting"`
	Safety    SafetyConfig    `mapstructure:"safety"`
	Collect   CollectConfig   `mapstructure:"collect"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// AccountConfig describes one managed posting account
type AccountConfig struct {
	ID        int    `mapstructure:"id"`
	Name      string `mapstructure:"name"`
	Handle    string `mapstructure:"handle"`
	Theme     string `mapstructure:"theme"`
	EnvPrefix string `mapstructure:"env_prefix"`
	StartDate string `mapstructure:"start_date"` // YYYY-MM-DD, drives the warm-up ramp
	Active    bool   `mapstructure:"active"`
}

// AnthropicConfig holds Claude API settings
type AnthropicConfig struct {
	APIKey      string  `mapstructure:"api_key"`
	Model       string  `mapstructure:"model"`
	MaxTokens   int     `mapstructure:"max_tokens"`
	Temperature float64 `mapstructure:"temperature"`
}

// TwitterConfig holds X API settings shared across accounts
type TwitterConfig struct {
	APIKey      string `mapstructure:"api_key"`
	APISecret   string `mapstructure:"api_secret"`
	BearerToken string `mapstructure:"bearer_token"`
}

// DiscordConfig holds webhook URLs for the notification sink
type DiscordConfig struct {
	WebhookGeneral string `mapstructure:"webhook_general"`
	WebhookMetrics string `mapstructure:"webhook_metrics"`
	WebhookSafety  string `mapstructure:"webhook_safety"`
}

// SheetsConfig holds operator spreadsheet settings
type SheetsConfig struct {
	SpreadsheetID     string `mapstructure:"spreadsheet_id"`
	CredentialsBase64 string `mapstructure:"credentials_base64"`
	CredentialsFile   string `mapstructure:"credentials_file"`
}

// FirebaseConfig holds remote control-plane store settings
type FirebaseConfig struct {
	ProjectID         string `mapstructure:"project_id"`
	CredentialsBase64 string `mapstructure:"credentials_base64"`
	CredentialsFile   string `mapstructure:"credentials_file"`
	UID               string `mapstructure:"uid"`
}

// DatabaseConfig holds the local history archive settings
type DatabaseConfig struct {
	Driver string `mapstructure:"driver"` // sqlite
	DSN    string `mapstructure:"dsn"`
}

// PostingConfig holds daily plan and anti-abuse settings
type PostingConfig struct {
	DailyMin             int     `mapstructure:"daily_min"`
	DailyMax             int     `mapstructure:"daily_max"`
	DailyLimit           int     `mapstructure:"daily_limit"`
	QuoteRTRatioMax      float64 `mapstructure:"quote_rt_ratio_max"`
	MinIntervalMinutes   int     `mapstructure:"min_interval_minutes"`
	MaxConsecutiveQuotes int     `mapstructure:"max_consecutive_quotes"`
	ToleranceMinutes     int     `mapstructure:"tolerance_minutes"`
	AutoPostMinScore     int     `mapstructure:"auto_post_min_score"`
}

// SafetyConfig points at the NG-word rule file
type SafetyConfig struct {
	RulesFile string `mapstructure:"rules_file"`
}

// CollectConfig holds candidate collection settings
type CollectConfig struct {
	TargetAccountsFile string    `mapstructure:"target_accounts_file"`
	MinLikes           int       `mapstructure:"min_likes"`
	MaxTweets          int       `mapstructure:"max_tweets"`
	MaxAgeHours        int       `mapstructure:"max_age_hours"`
	Lang               string    `mapstructure:"lang"`
	RSSFeeds           []RSSFeed `mapstructure:"rss_feeds"`
	WatchlistFile      string    `mapstructure:"watchlist_file"`
}

// RSSFeed represents a single RSS candidate feed
type RSSFeed struct {
	Name string `mapstructure:"name"`
	URL  string `mapstructure:"url"`
}

// SchedulerConfig holds cron expressions for the daemon
type SchedulerConfig struct {
	CollectCron    string `mapstructure:"collect_cron"`
	CurateCron     string `mapstructure:"curate_cron"`
	PostCron       string `mapstructure:"post_cron"`
	SyncCron       string `mapstructure:"sync_cron"`
	WeeklyPDCACron string `mapstructure:"weekly_pdca_cron"`
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json or console
	Output string `mapstructure:"output"` // stdout or file path
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	// Load .env file if present (ignore errors if not found)
	_ = godotenv.Load()
	_ = godotenv.Load(".env.local")

	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")

		home, err := os.UserHomeDir()
		if err == nil {
			v.AddConfigPath(filepath.Join(home, ".xpost-agent"))
		}
	}

	v.SetEnvPrefix("XPOST")
	v.AutomaticEnv()

	// Explicit bindings for nested keys (Viper doesn't auto-bind underscored nested keys)
	v.BindEnv("mode", "MODE")
	v.BindEnv("anthropic.api_key", "ANTHROPIC_API_KEY")
	v.BindEnv("twitter.api_key", "X_API_KEY")
	v.BindEnv("twitter.api_secret", "X_API_SECRET")
	v.BindEnv("twitter.bearer_token", "TWITTER_BEARER_TOKEN")
	v.BindEnv("discord.webhook_general", "DISCORD_WEBHOOK_GENERAL")
	v.BindEnv("discord.webhook_metrics", "DISCORD_WEBHOOK_METRICS")
	v.BindEnv("discord.webhook_safety", "DISCORD_WEBHOOK_SAFETY")
	v.BindEnv("sheets.spreadsheet_id", "SPREADSHEET_ID")
	v.BindEnv("sheets.credentials_base64", "GOOGLE_CREDENTIALS_BASE64")
	v.BindEnv("sheets.credentials_file", "GOOGLE_CREDENTIALS_FILE")
	v.BindEnv("firebase.project_id", "FIREBASE_PROJECT_ID")
	v.BindEnv("firebase.credentials_base64", "FIREBASE_CREDENTIALS_BASE64")
	v.BindEnv("firebase.credentials_file", "FIREBASE_CREDENTIALS_PATH")
	v.BindEnv("firebase.uid", "FIREBASE_UID")
	v.BindEnv("posting.auto_post_min_score", "AUTO_POST_MIN_SCORE")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if len(config.Accounts) == 0 {
		config.Accounts = []AccountConfig{{
			ID:        1,
			Name:      "Account 1",
			Handle:    "@account1",
			EnvPrefix: "X_ACCOUNT_1",
			Active:    true,
		}}
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	v.SetDefault("data_dir", "./data")
	v.SetDefault("mode", ModeSemiAuto)

	// Anthropic defaults
	v.SetDefault("anthropic.model", "claude-sonnet-4-20250514")
	v.SetDefault("anthropic.max_tokens", 1024)
	v.SetDefault("anthropic.temperature", 0.7)

	// Database defaults
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "./data/history.db")

	// Posting defaults
	v.SetDefault("posting.daily_min", 5)
	v.SetDefault("posting.daily_max", 10)
	v.SetDefault("posting.daily_limit", 10)
	v.SetDefault("posting.quote_rt_ratio_max", 0.7)
	v.SetDefault("posting.min_interval_minutes", 60)
	v.SetDefault("posting.max_consecutive_quotes", 2)
	v.SetDefault("posting.tolerance_minutes", 30)
	v.SetDefault("posting.auto_post_min_score", 6)

	// Safety defaults
	v.SetDefault("safety.rules_file", "./config/safety_rules.json")

	// Collection defaults
	v.SetDefault("collect.target_accounts_file", "./config/target_accounts.json")
	v.SetDefault("collect.min_likes", 500)
	v.SetDefault("collect.max_tweets", 50)
	v.SetDefault("collect.max_age_hours", 48)
	v.SetDefault("collect.lang", "en")
	v.SetDefault("collect.watchlist_file", "./config/watchlist.txt")

	// Scheduler defaults
	v.SetDefault("scheduler.collect_cron", "0 */4 * * *")  // every 4 hours
	v.SetDefault("scheduler.curate_cron", "30 6 * * *")    // 6:30am daily
	v.SetDefault("scheduler.post_cron", "*/30 * * * *")    // slot check every 30 min
	v.SetDefault("scheduler.sync_cron", "*/15 * * * *")    // control-plane pull
	v.SetDefault("scheduler.weekly_pdca_cron", "0 9 * * 1") // Monday 9am

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.output", "stdout")
}

// Account returns the account with the given ID
func (c *Config) Account(id int) (AccountConfig, error) {
	for _, a := range c.Accounts {
		if a.ID == id {
			return a, nil
		}
	}
	return AccountConfig{}, fmt.Errorf("account %d not found in configuration", id)
}

// ActiveAccounts returns all accounts marked active
func (c *Config) ActiveAccounts() []AccountConfig {
	var active []AccountConfig
	for _, a := range c.Accounts {
		if a.Active {
			active = append(active, a)
		}
	}
	return active
}

// AccessToken returns the per-account OAuth1 access token from the environment
func (a AccountConfig) AccessToken() string {
	return os.Getenv(a.EnvPrefix + "_ACCESS_TOKEN")
}

// AccessSecret returns the per-account OAuth1 access secret from the environment
func (a AccountConfig) AccessSecret() string {
	return os.Getenv(a.EnvPrefix + "_ACCESS_SECRET")
}

// Webhook returns the per-account Discord webhook, or empty when unset
func (a AccountConfig) Webhook() string {
	return os.Getenv("DISCORD_WEBHOOK_" + a.EnvPrefix)
}

// WebhookFor returns the account webhook with fallback to the general one
func (c *Config) WebhookFor(a AccountConfig) string {
	if url := a.Webhook(); url != "" {
		return url
	}
	return c.Discord.WebhookGeneral
}

// MasterDataFile returns the account master data document path
func (c *Config) MasterDataFile() string {
	return filepath.Join(filepath.Dir(c.DataDir), "config", "master_data.md")
}

// PreferencesFile returns the selection-preferences document path
func (c *Config) PreferencesFile() string {
	return filepath.Join(filepath.Dir(c.DataDir), "config", "selection_preferences.json")
}

// QueueDir returns the queue store directory
func (c *Config) QueueDir() string {
	return filepath.Join(c.DataDir, "queue")
}

// FeedbackFile returns the feedback log path
func (c *Config) FeedbackFile() string {
	return filepath.Join(c.DataDir, "feedback", "selection_feedback.json")
}

// PersonaDir returns the persona profile directory
func (c *Config) PersonaDir() string {
	return filepath.Join(c.DataDir, "persona")
}

// OutputDir returns the generation output directory
func (c *Config) OutputDir() string {
	return filepath.Join(c.DataDir, "output")
}

// ValidateLLM checks that the LLM backend is usable
func (c *Config) ValidateLLM() error {
	if c.Anthropic.APIKey == "" {
		return fmt.Errorf("ANTHROPIC_API_KEY is required")
	}
	return nil
}

// ValidatePosting checks that the posting backend is usable for an account
func (c *Config) ValidatePosting(a AccountConfig) error {
	if c.Twitter.APIKey == "" || c.Twitter.APISecret == "" {
		return fmt.Errorf("X_API_KEY and X_API_SECRET are required")
	}
	if a.AccessToken() == "" || a.AccessSecret() == "" {
		return fmt.Errorf("%s_ACCESS_TOKEN and %s_ACCESS_SECRET are required", a.EnvPrefix, a.EnvPrefix)
	}
	return nil
}

// ValidateSearch checks that the search backend is usable
func (c *Config) ValidateSearch() error {
	if c.Twitter.BearerToken == "" {
		return fmt.Errorf("TWITTER_BEARER_TOKEN is required")
	}
	return nil
}

// ValidateSheets checks that the spreadsheet control plane is usable
func (c *Config) ValidateSheets() error {
	if c.Sheets.SpreadsheetID == "" {
		return fmt.Errorf("SPREADSHEET_ID is required")
	}
	if c.Sheets.CredentialsBase64 == "" && c.Sheets.CredentialsFile == "" {
		return fmt.Errorf("GOOGLE_CREDENTIALS_BASE64 or GOOGLE_CREDENTIALS_FILE is required")
	}
	return nil
}

// ValidateFirebase checks that the remote store is usable
func (c *Config) ValidateFirebase() error {
	if c.Firebase.ProjectID == "" {
		return fmt.Errorf("FIREBASE_PROJECT_ID is required")
	}
	return nil
}
