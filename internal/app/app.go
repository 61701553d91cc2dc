// Package app wires configuration, logging, the send log and the campaign
// collaborators for the dmrotor commands.
package app

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"dmrotor/internal/accounts"
	"dmrotor/internal/campaign"
	"dmrotor/internal/config"
	"dmrotor/internal/eventbus"
	"dmrotor/internal/gate"
	"dmrotor/internal/leads"
	"dmrotor/internal/notify"
	"dmrotor/internal/proxy"
	"dmrotor/internal/runtime/supervisor"
	"dmrotor/internal/session"
	"dmrotor/internal/storage"
	"dmrotor/internal/transport"
	"dmrotor/internal/transport/gateway"
	logx "dmrotor/pkg/logx"
)

// Transport is what the campaign and the gate need from the network layer.
type Transport interface {
	transport.Dialer
	transport.Authenticator
}

type Options struct {
	ConfigPath string
	// LogLevel overrides logging.level when set.
	LogLevel string
	// Transport replaces the gateway client.
	Transport Transport
	// SkipDotEnv disables loading .env files. Lookup replaces os.LookupEnv.
	SkipDotEnv bool
	Lookup     func(string) (string, bool)
}

type App struct {
	opts Options

	cfgm *config.ConfigManager
	cfg  *config.Config
	env  config.EnvDefaults
	camp config.Campaign
	loc  *time.Location

	logs *logx.Service
	root logx.Logger
	log  logx.Logger
	bus  eventbus.Bus
	sup  *supervisor.Supervisor

	store    storage.Store
	accounts *accounts.Registry
	sessions *session.Store
	proxies  *proxy.Manager
	leads    *leads.Store
	notif    *notify.Service
	tg       *notify.Telegram

	trOnce sync.Once
	tr     Transport
	trErr  error
}

func New(ctx context.Context, opts Options) (*App, error) {
	if !opts.SkipDotEnv {
		if err := config.LoadDotEnv(); err != nil {
			return nil, err
		}
	}
	cfgm := config.NewConfigManager(opts.ConfigPath)
	cfg, err := cfgm.LoadOrDefault()
	if err != nil {
		return nil, err
	}
	env, err := config.ApplyEnv(cfg, opts.Lookup)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfgm.Commit(cfg)

	camp, err := cfg.ResolveCampaign()
	if err != nil {
		return nil, err
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	sc, err := mapStorageConfig(cfg)
	if err != nil {
		return nil, err
	}
	ncfg, err := mapNotifierConfig(cfg)
	if err != nil {
		return nil, err
	}

	lc := mapLogConfig(cfg)
	if opts.LogLevel != "" {
		lc.Level = opts.LogLevel
	}
	logs, root := logx.New(lc, nil)
	log := root.With(logx.String("comp", "app"))

	a := &App{
		opts: opts,
		cfgm: cfgm,
		cfg:  cfg,
		env:  env,
		camp: camp,
		loc:  loc,
		logs: logs,
		root: root,
		log:  log,
		bus:  eventbus.New(),
	}
	// Background relays end in Close, after the last campaign event.
	a.sup = supervisor.New(context.WithoutCancel(ctx), supervisor.WithLogger(log), supervisor.WithCancelOnError(false))

	a.store, err = storage.Open(sc, root)
	if err != nil {
		_ = logs.Close()
		return nil, err
	}
	a.accounts, err = accounts.Open(cfg.AccountsPath())
	if err != nil {
		_ = a.store.Close()
		_ = logs.Close()
		return nil, err
	}
	checkURL, probeTimeout, _ := cfg.ProxyProbe()
	a.proxies = proxy.NewManager(proxy.Options{
		CheckURL:     checkURL,
		ProbeTimeout: probeTimeout,
		Default: proxy.Config{
			URL:           cfg.Proxy.DefaultURL,
			User:          cfg.Proxy.DefaultUser,
			Password:      cfg.Proxy.DefaultPass,
			StickyMinutes: cfg.Proxy.StickyMinutes,
		},
		Log: root,
	})
	a.sessions = session.New(cfg.SessionsDir(), cfg.LegacySessionsDir())
	a.leads = leads.New(cfg.LeadsDir())

	// A nil interface keeps the notifier disabled; a typed nil would not.
	var sender notify.Sender
	if ncfg.Enabled && strings.TrimSpace(cfg.Telegram.Token) != "" {
		poll, _ := cfg.TelegramPollTimeout()
		tg, err := notify.NewTelegram(notify.TelegramOptions{
			Token:       cfg.Telegram.Token,
			PollTimeout: poll,
			ChatID:      cfg.Telegram.ChatID,
			Log:         root,
		})
		if err != nil {
			log.Warn("telegram unavailable; notifications disabled", logx.Err(err))
		} else {
			a.tg = tg
			sender = tg
		}
	}
	a.notif = notify.New(ncfg, sender, cfg.Telegram.ChatID, root, a.bus)
	if a.notif.Enabled() {
		a.notif.Start(a.sup.Context())
		logs.SetAlertSender(a.notif)
		a.sup.Go("notify.forward", func(c context.Context) error {
			return a.notif.Forward(c, a.bus)
		})
	}
	return a, nil
}

func (a *App) Config() *config.Config          { return a.cfg }
func (a *App) Campaign() config.Campaign       { return a.camp }
func (a *App) EnvDefaults() config.EnvDefaults { return a.env }
func (a *App) Location() *time.Location        { return a.loc }
func (a *App) Logger() logx.Logger             { return a.root }
func (a *App) Bus() eventbus.Bus               { return a.bus }
func (a *App) Store() storage.Store            { return a.store }
func (a *App) Accounts() *accounts.Registry    { return a.accounts }
func (a *App) Sessions() *session.Store        { return a.sessions }
func (a *App) Proxies() *proxy.Manager         { return a.proxies }
func (a *App) Leads() *leads.Store             { return a.leads }

// Transport returns the network client, building the gateway on first use so
// commands that never touch the network work without gateway settings.
func (a *App) Transport() (Transport, error) {
	a.trOnce.Do(func() {
		if a.opts.Transport != nil {
			a.tr = a.opts.Transport
			return
		}
		timeout, err := a.cfg.GatewayTimeout()
		if err != nil {
			a.trErr = err
			return
		}
		a.tr, a.trErr = gateway.New(gateway.Options{
			BaseURL:  a.cfg.Gateway.BaseURL,
			Timeout:  timeout,
			Sessions: a.sessions,
			Proxies:  a.proxies,
			Log:      a.root,
		})
	})
	return a.tr, a.trErr
}

func (a *App) Gate(p gate.Prompter) (*gate.Gate, error) {
	tr, err := a.Transport()
	if err != nil {
		return nil, err
	}
	return gate.New(gate.Options{
		Dialer:   tr,
		Auth:     tr,
		Sessions: a.sessions,
		Accounts: a.accounts,
		Prompter: p,
		Log:      a.root,
	})
}

// Scheduler builds a campaign scheduler from the resolved campaign tuning.
func (a *App) Scheduler(op campaign.Operator, r campaign.Renderer) (*campaign.Scheduler, error) {
	tr, err := a.Transport()
	if err != nil {
		return nil, err
	}
	return campaign.New(campaign.Options{
		Dialer:         tr,
		Ledger:         a.store,
		Operator:       op,
		Renderer:       r,
		Accounts:       a.accounts,
		Bus:            a.bus,
		Log:            a.root,
		Tick:           a.camp.Tick,
		AcquireTimeout: a.camp.AcquireTimeout,
		RenderEvery:    a.camp.RenderEvery,
		Retry: campaign.Retry{
			Attempts: a.camp.RetryAttempts,
			Step:     a.camp.RetryStep,
			Cap:      a.camp.RetryCap,
		},
	})
}

// Close flushes the notifier and releases the send log and log sinks.
func (a *App) Close(ctx context.Context) error {
	a.notif.Stop(ctx)
	a.sup.Cancel()
	if err := a.sup.Wait(ctx); err != nil && !errors.Is(err, context.Canceled) {
		a.log.Warn("background tasks ended with error", logx.Err(err))
	}
	err := a.store.Close()
	_ = a.logs.Close()
	return err
}
