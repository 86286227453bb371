package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

const (
	defaultTimezone = "Africa/Nairobi"
	defaultDataDir  = "data"
)

// Config holds high-level settings required across the application.
type Config struct {
	Storage       StorageConfig      `yaml:"storage"`
	Scheduler     SchedulerConfig    `yaml:"scheduler"`
	Notifications NotificationConfig `yaml:"notifications"`
	Harvest       HarvestConfig      `yaml:"harvest"`
	Ledger        LedgerConfig       `yaml:"ledger"`
	Logging       LoggingConfig      `yaml:"logging"`
}

// StorageConfig locates the shared data directory. Every persisted file
// lives at a fixed path below it.
type StorageConfig struct {
	DataDir string `yaml:"dataDir"`
}

func (s StorageConfig) SubscriptionsDir() string { return filepath.Join(s.DataDir, "configs") }
func (s StorageConfig) StatusDir() string { return filepath.Join(s.DataDir, "status") }
func (s StorageConfig) SeenDir() string { return filepath.Join(s.DataDir, "seen") }
func (s StorageConfig) CacheFile() string { return filepath.Join(s.DataDir, "cache", "tender_data.json") }
func (s StorageConfig) OptionsFile() string { return filepath.Join(s.DataDir, "app_config.json") }
func (s StorageConfig) LockFile() string { return filepath.Join(s.DataDir, "dispatcher.lock") }
func (s StorageConfig) HarvestLockFile() string { return filepath.Join(s.DataDir, "cache", "harvester.lock") }
func (s StorageConfig) HistoryFile() string { return filepath.Join(s.DataDir, "execution_history.jsonl") }
func (s StorageConfig) LedgerFile() string { return filepath.Join(s.DataDir, "email_tracking.json") }

// SchedulerConfig defines the wall clock ticks are evaluated in.
type SchedulerConfig struct {
	Timezone            string         `yaml:"timezone"`
	CleanupEveryMinutes int            `yaml:"cleanupEveryMinutes"`
	location            *time.Location `yaml:"-"`
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

// NotificationConfig encapsulates outbound channels.
type NotificationConfig struct {
	Email    EmailConfig    `yaml:"email"`
	Telegram TelegramConfig `yaml:"telegram"`
}

// EmailConfig wires the Resend sink.
type EmailConfig struct {
	Endpoint      string        `yaml:"endpoint"`
	APIKey        string        `yaml:"apiKey"`
	From          string        `yaml:"from"`
	SubjectPrefix string        `yaml:"subjectPrefix"`
	Timeout       time.Duration `yaml:"timeout"`
}

// TelegramConfig wires all data required to send operator summaries.
type TelegramConfig struct {
	APIBase  string `yaml:"apiBase"`
	BotToken string `yaml:"botToken"`
	ChatID   string `yaml:"chatId"`
}

// HarvestConfig controls the upstream fetch.
type HarvestConfig struct {
	Sources          []SourceConfig `yaml:"sources"`
	MaxPages         int            `yaml:"maxPages"`
	FrequencyMinutes int            `yaml:"frequencyMinutes"`
	RequestTimeout   time.Duration  `yaml:"requestTimeout"`
	StaleAfter       time.Duration  `yaml:"staleAfter"`
}

// SourceConfig describes a single upstream with its scanner strategy.
type SourceConfig struct {
	Name     string            `yaml:"name"`
	Scanner  string            `yaml:"scanner"`
	URL      string            `yaml:"url"`
	PageSize int               `yaml:"pageSize"`
	Options  map[string]string `yaml:"options"`
}

// LedgerConfig selects the delivery ledger backend: "file" or "sqlite".
type LedgerConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// LoggingConfig selects slog level and handler format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type envOverrides struct {
	ConfigPath     string `env:"TENDERWATCH_CONFIG"`
	DataDir        string `env:"TENDERWATCH_DATA_DIR"`
	Timezone       string `env:"TENDERWATCH_TIMEZONE"`
	ResendAPIKey   string `env:"RESEND_API_KEY"`
	EmailFrom      string `env:"EMAIL_FROM"`
	SubjectPrefix  string `env:"EMAIL_SUBJECT_PREFIX"`
	TelegramToken  string `env:"TELEGRAM_BOT_TOKEN"`
	TelegramChatID string `env:"TELEGRAM_CHAT_ID"`
	MaxPages       int    `env:"PPIP_MAX_PAGES"`
	LogLevel       string `env:"LOG_LEVEL"`
	LedgerDriver   string `env:"LEDGER_DRIVER"`
	LedgerDSN      string `env:"LEDGER_DSN"`
}

// Load reads YAML configuration (if present) and applies environment overrides.
func Load() Config {
	return load(nil)
}

// load reads overrides from environ, or from the process environment when nil.
func load(environ map[string]string) Config {
	cfg := defaultConfig()

	var overrides envOverrides
	if err := env.ParseWithOptions(&overrides, env.Options{Environment: environ}); err != nil {
		slog.Warn("config: cannot parse environment, ignoring overrides", "error", err)
		overrides = envOverrides{}
	}

	if path := overrides.ConfigPath; path != "" {
		if raw, err := os.ReadFile(path); err != nil {
			slog.Warn("config: cannot read file, falling back to defaults", "path", path, "error", err)
		} else {
			var fileCfg Config
			if err := yaml.Unmarshal(raw, &fileCfg); err != nil {
				slog.Warn("config: cannot parse file, falling back to defaults", "path", path, "error", err)
			} else {
				cfg = mergeConfig(cfg, fileCfg)
			}
		}
	}

	cfg.applyEnvOverrides(overrides)
	cfg.bindTimezone()

	if cfg.Ledger.Driver == "sqlite" && cfg.Ledger.DSN == "" {
		cfg.Ledger.DSN = filepath.Join(cfg.Storage.DataDir, "ledger.db")
	}

	return cfg
}

func (c *Config) applyEnvOverrides(o envOverrides) {
	if o.DataDir != "" {
		c.Storage.DataDir = o.DataDir
	}
	if o.Timezone != "" {
		c.Scheduler.Timezone = o.Timezone
	}
	if o.ResendAPIKey != "" {
		c.Notifications.Email.APIKey = o.ResendAPIKey
	}
	if o.EmailFrom != "" {
		c.Notifications.Email.From = o.EmailFrom
	}
	if o.SubjectPrefix != "" {
		c.Notifications.Email.SubjectPrefix = o.SubjectPrefix
	}
	if o.TelegramToken != "" {
		c.Notifications.Telegram.BotToken = o.TelegramToken
	}
	if o.TelegramChatID != "" {
		c.Notifications.Telegram.ChatID = o.TelegramChatID
	}
	if o.MaxPages > 0 {
		c.Harvest.MaxPages = o.MaxPages
	}
	if o.LogLevel != "" {
		c.Logging.Level = o.LogLevel
	}
	if o.LedgerDriver != "" {
		c.Ledger.Driver = o.LedgerDriver
	}
	if o.LedgerDSN != "" {
		c.Ledger.DSN = o.LedgerDSN
	}
}

func (c *Config) bindTimezone() {
	tz := c.Scheduler.Timezone
	if tz == "" {
		tz = defaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		slog.Warn("config: unknown timezone, reverting to default", "timezone", tz, "default", defaultTimezone)
		tz = defaultTimezone
		if loc, err = time.LoadLocation(tz); err != nil {
			loc = time.UTC
		}
	}
	c.Scheduler.Timezone = tz
	c.Scheduler.location = loc
}

func mergeConfig(base, override Config) Config {
	if override.Storage.DataDir != "" {
		base.Storage.DataDir = override.Storage.DataDir
	}

	if override.Scheduler.Timezone != "" {
		base.Scheduler.Timezone = override.Scheduler.Timezone
	}
	if override.Scheduler.CleanupEveryMinutes > 0 {
		base.Scheduler.CleanupEveryMinutes = override.Scheduler.CleanupEveryMinutes
	}

	email := override.Notifications.Email
	if email.Endpoint != "" {
		base.Notifications.Email.Endpoint = email.Endpoint
	}
	if email.APIKey != "" {
		base.Notifications.Email.APIKey = email.APIKey
	}
	if email.From != "" {
		base.Notifications.Email.From = email.From
	}
	if email.SubjectPrefix != "" {
		base.Notifications.Email.SubjectPrefix = email.SubjectPrefix
	}
	if email.Timeout > 0 {
		base.Notifications.Email.Timeout = email.Timeout
	}

	tg := override.Notifications.Telegram
	if tg.APIBase != "" {
		base.Notifications.Telegram.APIBase = tg.APIBase
	}
	if tg.BotToken != "" {
		base.Notifications.Telegram.BotToken = tg.BotToken
	}
	if tg.ChatID != "" {
		base.Notifications.Telegram.ChatID = tg.ChatID
	}

	h := override.Harvest
	if len(h.Sources) > 0 {
		base.Harvest.Sources = h.Sources
	}
	if h.MaxPages > 0 {
		base.Harvest.MaxPages = h.MaxPages
	}
	if h.FrequencyMinutes > 0 {
		base.Harvest.FrequencyMinutes = h.FrequencyMinutes
	}
	if h.RequestTimeout > 0 {
		base.Harvest.RequestTimeout = h.RequestTimeout
	}
	if h.StaleAfter > 0 {
		base.Harvest.StaleAfter = h.StaleAfter
	}

	if override.Ledger.Driver != "" {
		base.Ledger.Driver = override.Ledger.Driver
	}
	if override.Ledger.DSN != "" {
		base.Ledger.DSN = override.Ledger.DSN
	}

	if override.Logging.Level != "" {
		base.Logging.Level = override.Logging.Level
	}
	if override.Logging.Format != "" {
		base.Logging.Format = override.Logging.Format
	}

	return base
}

func defaultConfig() Config {
	return Config{
		Storage:   StorageConfig{DataDir: defaultDataDir},
		Scheduler: SchedulerConfig{Timezone: defaultTimezone, CleanupEveryMinutes: 10},
		Notifications: NotificationConfig{
			Email: EmailConfig{
				Endpoint:      "https://api.resend.com/emails",
				From:          "noreply@yourdomain.com",
				SubjectPrefix: "[TenderWatch]",
				Timeout:       30 * time.Second,
			},
		},
		Harvest: HarvestConfig{
			Sources: []SourceConfig{
				{Name: "ppip", Scanner: "ppip", URL: "https://tenders.go.ke/api/active-tenders", PageSize: 200},
			},
			MaxPages:         3,
			FrequencyMinutes: 10,
			RequestTimeout:   45 * time.Second,
			StaleAfter:       30 * time.Minute,
		},
		Ledger:  LedgerConfig{Driver: "file"},
		Logging: LoggingConfig{Level: "info", Format: "text"},
	}
}
