package config

import (
	"fmt"
	"strings"
	"time"
)

const (
	DefaultAccountsPath        = "./data/accounts.json"
	DefaultSessionsDir         = "./storage/sessions"
	DefaultLegacySessionsDir   = "./.sessions"
	DefaultLeadsDir            = "./text/leads"
	DefaultLedgerPath          = "./storage/sent_log.jsonl"
	DefaultTimezone            = "America/Argentina/Cordoba"
	DefaultProxyCheckURL       = "https://api.ipify.org"
	DefaultDigestSpec          = "0 21 * * *"
	DefaultMaxPerAccount       = 50
	DefaultMaxConcurrency      = 4
	DefaultDelayFloor          = 10
	DefaultRetryAttempts       = 3
	defaultTick                = 50 * time.Millisecond
	defaultAcquireTimeout      = 100 * time.Millisecond
	defaultRenderEvery         = 500 * time.Millisecond
	defaultRetryStep           = 5 * time.Second
	defaultRetryCap            = 30 * time.Second
	defaultProbeTimeout        = 10 * time.Second
	defaultGatewayTimeout      = 30 * time.Second
	defaultTelegramPollTimeout = 10 * time.Second
)

// Campaign holds the resolved campaign tuning.
type Campaign struct {
	MaxPerAccount  int
	MaxConcurrency int
	DelayFloor     int

	Tick           time.Duration
	AcquireTimeout time.Duration
	RenderEvery    time.Duration

	RetryAttempts int
	RetryStep     time.Duration
	RetryCap      time.Duration
}

// ResolveCampaign applies defaults and parses duration fields.
func (c *Config) ResolveCampaign() (Campaign, error) {
	cc := c.Campaign
	out := Campaign{
		MaxPerAccount:  cc.MaxPerAccount,
		MaxConcurrency: cc.MaxConcurrency,
		DelayFloor:     cc.DelayFloor,
		RetryAttempts:  cc.Retry.Attempts,
	}
	if out.MaxPerAccount <= 0 {
		out.MaxPerAccount = DefaultMaxPerAccount
	}
	if out.MaxConcurrency <= 0 {
		out.MaxConcurrency = DefaultMaxConcurrency
	}
	if out.DelayFloor <= 0 {
		out.DelayFloor = DefaultDelayFloor
	}
	if out.RetryAttempts <= 0 {
		out.RetryAttempts = DefaultRetryAttempts
	}
	var err error
	if out.Tick, err = ParseDurationOrDefault("campaign.tick", cc.Tick, defaultTick); err != nil {
		return Campaign{}, err
	}
	if out.AcquireTimeout, err = ParseDurationOrDefault("campaign.acquire_timeout", cc.AcquireTimeout, defaultAcquireTimeout); err != nil {
		return Campaign{}, err
	}
	if out.RenderEvery, err = ParseDurationOrDefault("campaign.render_every", cc.RenderEvery, defaultRenderEvery); err != nil {
		return Campaign{}, err
	}
	if out.RetryStep, err = ParseDurationOrDefault("campaign.retry.step", cc.Retry.Step, defaultRetryStep); err != nil {
		return Campaign{}, err
	}
	if out.RetryCap, err = ParseDurationOrDefault("campaign.retry.cap", cc.Retry.Cap, defaultRetryCap); err != nil {
		return Campaign{}, err
	}
	if out.RetryCap < out.RetryStep {
		out.RetryCap = out.RetryStep
	}
	return out, nil
}

func (c *Config) AccountsPath() string {
	return orDefault(c.Paths.Accounts, DefaultAccountsPath)
}

func (c *Config) SessionsDir() string {
	return orDefault(c.Paths.Sessions, DefaultSessionsDir)
}

func (c *Config) LegacySessionsDir() string {
	return orDefault(c.Paths.LegacySessions, DefaultLegacySessionsDir)
}

func (c *Config) LeadsDir() string {
	return orDefault(c.Paths.Leads, DefaultLeadsDir)
}

func (c *Config) Location() (*time.Location, error) {
	name := orDefault(c.Timezone, DefaultTimezone)
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("timezone: %w", err)
	}
	return loc, nil
}

func (c *Config) ProxyProbe() (checkURL string, timeout time.Duration, err error) {
	timeout, err = ParseDurationOrDefault("proxy.probe_timeout", c.Proxy.ProbeTimeout, defaultProbeTimeout)
	return orDefault(c.Proxy.CheckURL, DefaultProxyCheckURL), timeout, err
}

func (c *Config) GatewayTimeout() (time.Duration, error) {
	return ParseDurationOrDefault("gateway.timeout", c.Gateway.Timeout, defaultGatewayTimeout)
}

func (c *Config) TelegramPollTimeout() (time.Duration, error) {
	return ParseDurationOrDefault("telegram.poll_timeout", c.Telegram.PollTimeout, defaultTelegramPollTimeout)
}

// Validate checks fields that would otherwise fail late at runtime.
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("config is nil")
	}
	if _, err := c.ResolveCampaign(); err != nil {
		return err
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	if _, _, err := c.ProxyProbe(); err != nil {
		return err
	}
	if _, err := c.GatewayTimeout(); err != nil {
		return err
	}
	if _, err := c.TelegramPollTimeout(); err != nil {
		return err
	}
	if c.Storage != nil {
		if _, err := ParseDurationField("storage.busy_timeout", c.Storage.BusyTimeout); err != nil {
			return err
		}
	}
	if c.Notifier != nil {
		if _, err := ParseDurationField("notifier.retry_base", c.Notifier.RetryBase); err != nil {
			return err
		}
		if _, err := ParseDurationField("notifier.retry_max_delay", c.Notifier.RetryMaxDelay); err != nil {
			return err
		}
	}
	return nil
}

func orDefault(v, def string) string {
	if s := strings.TrimSpace(v); s != "" {
		return s
	}
	return def
}
