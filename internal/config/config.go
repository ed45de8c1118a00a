package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"gopkg.in/yaml.v3"

	"NoteSalesTracker/internal/domain"
)

const (
	defaultTimezone      = "Asia/Tokyo"
	configPathEnv        = "NOTE_TRACKER_CONFIG"
	logLevelEnv          = "LOG_LEVEL"
	storageDriverEnv     = "STORAGE_DRIVER"
	storageDSNEnv        = "STORAGE_DSN"
	sourceWorkbookEnv    = "SOURCE_WORKBOOK_ID"
	targetWorkbookEnv    = "TARGET_WORKBOOK_ID"
	trackingWorkbookEnv  = "TRACKING_WORKBOOK_ID"
	trackingDaysEnv      = "TRACKING_DAYS"
	httpAddrEnv          = "HTTP_ADDR"
	telegramTokenEnv     = "TELEGRAM_BOT_TOKEN"
	telegramChatIDEnv    = "TELEGRAM_CHAT_ID"
	slackWebhookURLEnv   = "SLACK_WEBHOOK_URL"
	defaultSourceTable   = "Articles"
	defaultTrackingTable = "Tracking"
)

// Config holds high-level settings required across the application.
type Config struct {
	Logging        LoggingConfig      `yaml:"logging"`
	Storage        StorageConfig      `yaml:"storage"`
	Source         TableConfig        `yaml:"source"`
	Target         TargetConfig       `yaml:"target"`
	Tracking       TrackingConfig     `yaml:"tracking"`
	Categories     []CategoryConfig   `yaml:"categories"`
	Fallback       string             `yaml:"fallbackCategory"`
	AuthorRules    []AuthorRuleConfig `yaml:"authorRules"`
	ExcludeAuthors []string           `yaml:"excludeAuthors"`
	Scheduler      SchedulerConfig    `yaml:"scheduler"`
	HTTP           HTTPConfig         `yaml:"http"`
	Notifications  NotificationConfig `yaml:"notifications"`
	Poller         PollerConfig       `yaml:"poller"`
}

// LoggingConfig selects the slog level and output format (text or json).
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// StorageConfig selects the TableStore backend.
type StorageConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// TableConfig points at one table of a workbook.
type TableConfig struct {
	WorkbookID string `yaml:"workbookId"`
	Table      string `yaml:"table"`
}

// TargetConfig describes the classified output workbook.
type TargetConfig struct {
	WorkbookID       string `yaml:"workbookId"`
	Title            string `yaml:"title"`
	NewArrivalsTable string `yaml:"newArrivalsTable"`
}

// TrackingConfig describes the tracking table and window length.
type TrackingConfig struct {
	WorkbookID string `yaml:"workbookId"`
	Table      string `yaml:"table"`
	Days       int    `yaml:"days"`
}

// CategoryConfig is one entry of the ordered keyword table.
type CategoryConfig struct {
	Name     string   `yaml:"name"`
	Keywords []string `yaml:"keywords"`
}

// AuthorRuleConfig forces a category for matching authors.
type AuthorRuleConfig struct {
	Category string   `yaml:"category"`
	Authors  []string `yaml:"authors"`
}

// SchedulerConfig defines when recurring jobs run.
type SchedulerConfig struct {
	ReconcileCron string         `yaml:"reconcileCron"`
	ExpireCron    string         `yaml:"expireCron"`
	PollCron      string         `yaml:"pollCron"`
	Timezone      string         `yaml:"timezone"`
	location      *time.Location `yaml:"-"`
}

// Location resolves the scheduler timezone string to a time.Location.
func (s SchedulerConfig) Location() *time.Location {
	if s.location != nil {
		return s.location
	}
	loc, err := time.LoadLocation(defaultTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// HTTPConfig configures the event receiver.
type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

// NotificationConfig encapsulates outbound channels.
type NotificationConfig struct {
	Telegram TelegramConfig `yaml:"telegram"`
	Slack    SlackConfig    `yaml:"slack"`
}

// TelegramConfig wires all data required to send messages.
type TelegramConfig struct {
	BotToken string `yaml:"botToken"`
	ChatID   string `yaml:"chatId"`
}

// SlackConfig holds an incoming webhook.
type SlackConfig struct {
	WebhookURL string `yaml:"webhookUrl"`
}

// PollerConfig tunes the purchase balloon checker.
type PollerConfig struct {
	Selector  string        `yaml:"selector"`
	Timeout   time.Duration `yaml:"timeout"`
	MinDelay  time.Duration `yaml:"minDelay"`
	MaxDelay  time.Duration `yaml:"maxDelay"`
	UserAgent string        `yaml:"userAgent"`
}

// Load reads YAML configuration (if present) and applies environment overrides.
func Load() Config {
	return LoadFile(os.Getenv(configPathEnv))
}

// LoadFile is Load with an explicit path; an empty path means defaults only.
func LoadFile(path string) Config {
	cfg := defaultConfig()

	if path != "" {
		if raw, err := os.ReadFile(path); err != nil {
			log.Printf("config: cannot read %s: %v (falling back to defaults)", path, err)
		} else {
			var fileCfg Config
			if err := yaml.Unmarshal(raw, &fileCfg); err != nil {
				log.Printf("config: cannot parse %s: %v (falling back to defaults)", path, err)
			} else {
				cfg = mergeConfig(cfg, fileCfg)
			}
		}
	}

	cfg.applyEnvOverrides()
	cfg.bindTimezone()

	return cfg
}

// RuleTable builds the classifier configuration.
func (c Config) RuleTable() domain.RuleTable {
	table := domain.RuleTable{Fallback: c.Fallback}
	for _, cat := range c.Categories {
		table.Categories = append(table.Categories, domain.CategoryRule{Name: cat.Name, Keywords: cat.Keywords})
	}
	for _, rule := range c.AuthorRules {
		table.AuthorRules = append(table.AuthorRules, domain.AuthorRule{Category: rule.Category, Authors: rule.Authors})
	}
	return table
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(logLevelEnv); v != "" {
		c.Logging.Level = v
	}

	if v := os.Getenv(storageDriverEnv); v != "" {
		c.Storage.Driver = v
	}
	if v := os.Getenv(storageDSNEnv); v != "" {
		c.Storage.DSN = v
	}

	if v := os.Getenv(sourceWorkbookEnv); v != "" {
		c.Source.WorkbookID = v
	}
	if v := os.Getenv(targetWorkbookEnv); v != "" {
		c.Target.WorkbookID = v
	}
	if v := os.Getenv(trackingWorkbookEnv); v != "" {
		c.Tracking.WorkbookID = v
	}
	if v := os.Getenv(trackingDaysEnv); v != "" {
		if days, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && days > 0 {
			c.Tracking.Days = days
		} else {
			log.Printf("config: ignoring %s=%q", trackingDaysEnv, v)
		}
	}

	if v := os.Getenv(httpAddrEnv); v != "" {
		c.HTTP.Addr = v
	}

	if v := os.Getenv(telegramTokenEnv); v != "" {
		c.Notifications.Telegram.BotToken = v
	}
	if v := os.Getenv(telegramChatIDEnv); v != "" {
		c.Notifications.Telegram.ChatID = v
	}
	if v := os.Getenv(slackWebhookURLEnv); v != "" {
		c.Notifications.Slack.WebhookURL = v
	}
}

func (c *Config) bindTimezone() {
	tz := c.Scheduler.Timezone
	if tz == "" {
		tz = defaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		log.Printf("config: unknown timezone %s, reverting to %s", tz, defaultTimezone)
		loc, err = time.LoadLocation(defaultTimezone)
		if err != nil {
			loc = time.UTC
		}
	}
	c.Scheduler.location = loc
}

func mergeConfig(base, override Config) Config {
	if override.Logging.Level != "" {
		base.Logging.Level = override.Logging.Level
	}
	if override.Logging.Format != "" {
		base.Logging.Format = override.Logging.Format
	}

	if override.Storage.Driver != "" {
		base.Storage.Driver = override.Storage.Driver
	}
	if override.Storage.DSN != "" {
		base.Storage.DSN = override.Storage.DSN
	}

	if override.Source.WorkbookID != "" {
		base.Source.WorkbookID = override.Source.WorkbookID
	}
	if override.Source.Table != "" {
		base.Source.Table = override.Source.Table
	}

	if override.Target.WorkbookID != "" {
		base.Target.WorkbookID = override.Target.WorkbookID
	}
	if override.Target.Title != "" {
		base.Target.Title = override.Target.Title
	}
	if override.Target.NewArrivalsTable != "" {
		base.Target.NewArrivalsTable = override.Target.NewArrivalsTable
	}

	if override.Tracking.WorkbookID != "" {
		base.Tracking.WorkbookID = override.Tracking.WorkbookID
	}
	if override.Tracking.Table != "" {
		base.Tracking.Table = override.Tracking.Table
	}
	if override.Tracking.Days > 0 {
		base.Tracking.Days = override.Tracking.Days
	}

	if len(override.Categories) > 0 {
		base.Categories = override.Categories
	}
	if override.Fallback != "" {
		base.Fallback = override.Fallback
	}
	if override.AuthorRules != nil {
		base.AuthorRules = override.AuthorRules
	}
	if override.ExcludeAuthors != nil {
		base.ExcludeAuthors = override.ExcludeAuthors
	}

	if override.Scheduler.ReconcileCron != "" {
		base.Scheduler.ReconcileCron = override.Scheduler.ReconcileCron
	}
	if override.Scheduler.ExpireCron != "" {
		base.Scheduler.ExpireCron = override.Scheduler.ExpireCron
	}
	if override.Scheduler.PollCron != "" {
		base.Scheduler.PollCron = override.Scheduler.PollCron
	}
	if override.Scheduler.Timezone != "" {
		base.Scheduler.Timezone = override.Scheduler.Timezone
	}

	if override.HTTP.Addr != "" {
		base.HTTP.Addr = override.HTTP.Addr
	}

	if override.Notifications.Telegram.BotToken != "" {
		base.Notifications.Telegram.BotToken = override.Notifications.Telegram.BotToken
	}
	if override.Notifications.Telegram.ChatID != "" {
		base.Notifications.Telegram.ChatID = override.Notifications.Telegram.ChatID
	}
	if override.Notifications.Slack.WebhookURL != "" {
		base.Notifications.Slack.WebhookURL = override.Notifications.Slack.WebhookURL
	}

	if override.Poller.Selector != "" {
		base.Poller.Selector = override.Poller.Selector
	}
	if override.Poller.Timeout > 0 {
		base.Poller.Timeout = override.Poller.Timeout
	}
	if override.Poller.MinDelay > 0 {
		base.Poller.MinDelay = override.Poller.MinDelay
	}
	if override.Poller.MaxDelay > 0 {
		base.Poller.MaxDelay = override.Poller.MaxDelay
	}
	if override.Poller.UserAgent != "" {
		base.Poller.UserAgent = override.Poller.UserAgent
	}

	return base
}

func defaultConfig() Config {
	return Config{
		Logging: LoggingConfig{Level: "info", Format: "text"},
		Storage: StorageConfig{Driver: "sqlite", DSN: "file:notesales.db"},
		Source:  TableConfig{WorkbookID: "receiver", Table: defaultSourceTable},
		Target: TargetConfig{
			WorkbookID:       "target",
			Title:            "Note Sales Analysis",
			NewArrivalsTable: "New Arrivals",
		},
		Tracking: TrackingConfig{
			WorkbookID: "receiver",
			Table:      defaultTrackingTable,
			Days:       domain.DefaultTrackingDays,
		},
		Categories: []CategoryConfig{
			{Name: "Romance & Dating Apps", Keywords: []string{"恋愛", "マッチングアプリ", "ペアーズ", "Tinder", "モテ", "デート", "マッチング"}},
			{Name: "Side-Income", Keywords: []string{"副業", "稼ぐ", "収益化", "せどり", "転売", "アフィリエイト", "ビジネス", "収入"}},
			{Name: "Fortune & Spiritual", Keywords: []string{"占い", "タロット", "星座", "スピリチュアル", "運勢", "風水"}},
			{Name: "Investing & Finance", Keywords: []string{"投資", "株", "FX", "仮想通貨", "NISA", "資産運用", "投機", "トレード"}},
			{Name: "Business & Marketing", Keywords: []string{"マーケティング", "集客", "セールス", "起業", "コンサル", "BtoB"}},
			{Name: "Social Media", Keywords: []string{"X運用", "Instagram", "TikTok", "フォロワー", "バズ", "SNS", "ツイート"}},
			{Name: "Psychology & Self-Analysis", Keywords: []string{"MBTI", "HSP", "心理学", "性格診断", "メンタル", "自己分析"}},
			{Name: "Beauty & Health", Keywords: []string{"美容", "ダイエット", "スキンケア", "健康", "筋トレ", "メイク"}},
			{Name: "Career & Job Change", Keywords: []string{"転職", "キャリア", "就活", "面接", "履歴書", "職務経歴書"}},
		},
		Fallback:       domain.DefaultFallbackCategory,
		ExcludeAuthors: []string{"ネッシーの競艇予想", "競艇予想熊先生"},
		Scheduler: SchedulerConfig{
			ReconcileCron: "0 0 * * * *",
			ExpireCron:    "0 30 0 * * *",
			PollCron:      "0 0 */6 * * *",
			Timezone:      defaultTimezone,
		},
		HTTP: HTTPConfig{Addr: ":8080"},
		Poller: PollerConfig{
			Selector:  ".m-purchasedWithinLast24HoursBalloon",
			Timeout:   30 * time.Second,
			MinDelay:  2 * time.Second,
			MaxDelay:  4 * time.Second,
			UserAgent: "Mozilla/5.0 (compatible; NoteSalesTracker/1.0)",
		},
	}
}
