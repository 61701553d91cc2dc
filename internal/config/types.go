package config

type Config struct {
	Logging  LoggingConfig   `json:"logging"`
	Telegram TelegramConfig  `json:"telegram"`
	Storage  *StorageConfig  `json:"storage,omitempty"`
	Paths    PathsConfig     `json:"paths"`
	Campaign CampaignConfig  `json:"campaign"`
	Proxy    ProxyConfig     `json:"proxy"`
	Gateway  GatewayConfig   `json:"gateway"`
	Report   *ReportConfig   `json:"report,omitempty"`
	Notifier *NotifierConfig `json:"notifier,omitempty"`

	// Timezone is used for stats buckets, CSV export and the daily digest.
	// Default: America/Argentina/Cordoba.
	Timezone string `json:"timezone,omitempty"`
}

type LoggingConfig struct {
	Level   string       `json:"level"`
	Console bool         `json:"console"`
	File    LoggingFile  `json:"file"`
	Alert   LoggingAlert `json:"alert"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// LoggingAlert forwards WARN+ log lines to the Telegram notifier.
type LoggingAlert struct {
	Enabled    bool   `json:"enabled"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

type TelegramConfig struct {
	Token string `json:"token"`
	// ChatID receives alerts and digests.
	ChatID int64 `json:"chat_id"`
	// PollTimeout is a Go duration string (e.g. "10s", "2m").
	PollTimeout string `json:"poll_timeout"`
}

// StorageConfig selects the send-log driver.
//
// Example:
//
//	"storage": { "driver": "file", "path": "./storage/sent_log.jsonl" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

type PathsConfig struct {
	Accounts       string `json:"accounts,omitempty"`        // default: ./data/accounts.json
	Sessions       string `json:"sessions,omitempty"`        // default: ./storage/sessions
	LegacySessions string `json:"legacy_sessions,omitempty"` // default: ./.sessions
	Leads          string `json:"leads,omitempty"`           // default: ./text/leads
}

// CampaignConfig holds the operator-facing limits and scheduler tuning.
//
// Durations are Go duration strings.
type CampaignConfig struct {
	MaxPerAccount  int `json:"max_per_account,omitempty"` // default 50
	MaxConcurrency int `json:"max_concurrency,omitempty"` // default 4
	DelayFloor     int `json:"delay_floor,omitempty"`     // seconds, default 10

	Tick           string `json:"tick,omitempty"`            // default 50ms
	AcquireTimeout string `json:"acquire_timeout,omitempty"` // default 100ms
	RenderEvery    string `json:"render_every,omitempty"`    // default 500ms

	Retry RetryConfig `json:"retry"`
}

type RetryConfig struct {
	Attempts int    `json:"attempts,omitempty"` // default 3
	Step     string `json:"step,omitempty"`     // default 5s
	Cap      string `json:"cap,omitempty"`      // default 30s
}

// ProxyConfig holds the probe settings and the fallback proxy used by
// accounts without their own.
type ProxyConfig struct {
	CheckURL     string `json:"check_url,omitempty"`     // default https://api.ipify.org
	ProbeTimeout string `json:"probe_timeout,omitempty"` // default 10s

	DefaultURL    string `json:"default_url,omitempty"`
	DefaultUser   string `json:"default_user,omitempty"`
	DefaultPass   string `json:"default_pass,omitempty"`
	StickyMinutes int    `json:"sticky_minutes,omitempty"` // default 10
}

// GatewayConfig points the transport at the HTTP relay that speaks to the
// messaging platform.
type GatewayConfig struct {
	BaseURL string `json:"base_url"`
	Timeout string `json:"timeout,omitempty"` // default 30s
}

// ReportConfig schedules the daily digest in serve mode.
type ReportConfig struct {
	Enabled bool   `json:"enabled"`
	Spec    string `json:"spec,omitempty"` // cron spec, default "0 21 * * *"
}

// NotifierConfig controls the async Telegram pipeline.
type NotifierConfig struct {
	Enabled       bool   `json:"enabled"`
	QueueSize     int    `json:"queue_size"`
	RatePerSec    int    `json:"rate_per_sec"`
	RetryMax      int    `json:"retry_max"`
	RetryBase     string `json:"retry_base"`
	RetryMaxDelay string `json:"retry_max_delay"`
}
