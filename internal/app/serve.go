package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"dmrotor/internal/config"
	"dmrotor/internal/report"
	"dmrotor/internal/runtime/supervisor"
	logx "dmrotor/pkg/logx"
	"dmrotor/pkg/systemd"
)

// Serve runs the long-lived mode until ctx ends: the digest cron, Telegram
// commands, config hot reload and systemd notifications.
func (a *App) Serve(ctx context.Context) error {
	rep, err := report.New(mapReportConfig(a.cfg), a.store, a.bus, a.loc, a.root)
	if err != nil {
		return err
	}
	sup := supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))

	a.cfgm.SetLogger(a.root.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		// Reloaded files get the same environment overlay as at startup.
		if _, err := config.ApplyEnv(cfg, a.opts.Lookup); err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		if _, err := mapStorageConfig(cfg); err != nil {
			return err
		}
		if _, err := mapNotifierConfig(cfg); err != nil {
			return err
		}
		if err := report.ValidateSpec(mapReportConfig(cfg).Spec); err != nil {
			return fmt.Errorf("report.spec: %w", err)
		}
		return nil
	})

	if a.tg != nil {
		a.tg.Handle("/stats", func(c context.Context, args string) (string, error) {
			days, err := report.ParseWindow(args)
			if err != nil {
				return "", err
			}
			d, err := report.Build(c, a.store, time.Now(), days, a.loc)
			if err != nil {
				return "", err
			}
			return d.String(), nil
		})
		a.tg.Handle("/status", func(c context.Context, _ string) (string, error) {
			return a.status(c, rep)
		})
		a.tg.Start(sup.Context())
	}
	if err := rep.Start(sup.Context()); err != nil {
		return err
	}

	if a.bus != nil {
		events, unsub := a.bus.Subscribe(128)
		sup.Go0("eventbus.log", func(c context.Context) {
			defer unsub()
			for {
				select {
				case <-c.Done():
					return
				case e, ok := <-events:
					if !ok {
						return
					}
					a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
				}
			}
		})
	}

	sub := a.cfgm.Subscribe(8)
	sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		last := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return
			case next, ok := <-sub:
				if !ok {
					return
				}
				// Coalesce bursts: keep only the latest config.
			drain:
				for {
					select {
					case newer := <-sub:
						if newer != nil {
							next = newer
						}
					default:
						break drain
					}
				}
				a.applyConfig(c, last, next, rep)
				last = next
			}
		}
	})
	sup.Go("config.watch", a.cfgm.Watch)
	sup.Go0("systemd.watchdog", func(c context.Context) {
		if err := systemd.Watchdog(c); err != nil {
			a.log.Warn("systemd watchdog stopped", logx.Err(err))
		}
	})

	if ok, err := systemd.Ready(); err != nil {
		a.log.Warn("sd_notify ready failed", logx.Err(err))
	} else if ok {
		a.log.Debug("sd_notify ready sent")
	}
	a.log.Info("serving", logx.Bool("telegram", a.tg != nil), logx.Bool("digest", rep.Enabled()), logx.Time("next_digest", rep.Next()))

	<-sup.Context().Done()
	_, _ = systemd.Stopping()
	a.log.Info("stopping")

	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	sup.Cancel()
	a.step(stopCtx, "report", 2*time.Second, func(c context.Context) error { rep.Stop(c); return nil })
	if a.tg != nil {
		a.step(stopCtx, "telegram", 2*time.Second, a.tg.Stop)
	}
	a.step(stopCtx, "supervisor", 2*time.Second, sup.Wait)

	if err := sup.Err(); err != nil {
		return err
	}
	return nil
}

func (a *App) applyConfig(c context.Context, last, next *config.Config, rep *report.Service) {
	sections, attrs := config.SummarizeConfigChange(last, next)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	_, _ = systemd.Reloading()
	defer func() { _, _ = systemd.Ready() }()

	for _, s := range sections {
		switch s {
		case "logging":
			lc := mapLogConfig(next)
			if a.opts.LogLevel != "" {
				lc.Level = a.opts.LogLevel
			}
			a.logs.Apply(lc)
		case "report":
			if err := rep.Apply(c, mapReportConfig(next)); err != nil {
				a.log.Warn("invalid report config; keeping previous", logx.Err(err))
			}
		case "telegram", "network", "paths":
			a.log.Warn("config section changed; restart required", logx.String("section", s))
		}
	}
	if ncfg, err := mapNotifierConfig(next); err != nil {
		a.log.Warn("invalid notifier config; keeping previous", logx.Err(err))
	} else {
		a.notif.Apply(ncfg)
	}

	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
}

func (a *App) status(ctx context.Context, rep *report.Service) (string, error) {
	totals, err := a.store.LifetimeTotals(ctx)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Cuentas: %d\n", len(a.accounts.All()))
	fmt.Fprintf(&b, "Mensajes enviados: %d\nMensajes con error: %d", totals.OK, totals.Fail)
	if next := rep.Next(); !next.IsZero() {
		fmt.Fprintf(&b, "\nPróximo resumen: %s", next.In(a.loc).Format("2006-01-02 15:04"))
	}
	return b.String(), nil
}

// step runs one shutdown action with an upper bound so a stuck component
// cannot stall the rest.
func (a *App) step(ctx context.Context, name string, limit time.Duration, fn func(context.Context) error) {
	start := time.Now()
	stepCtx, cancel := context.WithTimeout(ctx, limit)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("panic in stop step %s: %v", name, r)
			}
		}()
		done <- fn(stepCtx)
	}()

	select {
	case err := <-done:
		if err != nil {
			a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
		}
		a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
	case <-stepCtx.Done():
		a.log.Warn("stop step deadline reached (continuing)", logx.String("name", name), logx.Duration("elapsed", time.Since(start)))
	}
}
