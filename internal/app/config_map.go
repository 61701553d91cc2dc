package app

import (
	"fmt"
	"strings"
	"time"

	"dmrotor/internal/campaign"
	"dmrotor/internal/config"
	"dmrotor/internal/notify"
	"dmrotor/internal/report"
	"dmrotor/internal/storage"
	logx "dmrotor/pkg/logx"
)

// mapStorageConfig resolves the ledger driver. A missing section selects the
// JSON Lines log at the default path.
func mapStorageConfig(cfg *config.Config) (storage.Config, error) {
	if cfg == nil || cfg.Storage == nil {
		return storage.Config{Driver: "file", Path: config.DefaultLedgerPath}, nil
	}
	sc := cfg.Storage
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	path := strings.TrimSpace(sc.Path)

	switch driver {
	case "", "file", "jsonl":
		if path == "" {
			path = config.DefaultLedgerPath
		}
		return storage.Config{Driver: "file", Path: path}, nil
	case "sqlite", "sqlite3":
		if path == "" {
			return storage.Config{}, fmt.Errorf("storage.path is required when storage.driver=sqlite")
		}
		busy, err := config.ParseDurationOrDefault("storage.busy_timeout", sc.BusyTimeout, time.Second)
		if err != nil {
			return storage.Config{}, err
		}
		return storage.Config{Driver: "sqlite", Path: path, BusyTimeout: busy}, nil
	case "memory", "mem":
		return storage.Config{Driver: "memory"}, nil
	default:
		return storage.Config{}, fmt.Errorf("unknown storage.driver: %s", sc.Driver)
	}
}

func mapLogConfig(cfg *config.Config) logx.Config {
	lc := cfg.Logging
	return logx.Config{
		Level:   lc.Level,
		Console: lc.Console,
		File: logx.FileConfig{
			Enabled: lc.File.Enabled,
			Path:    lc.File.Path,
		},
		Alert: logx.AlertConfig{
			Enabled:    lc.Alert.Enabled,
			MinLevel:   lc.Alert.MinLevel,
			RatePerSec: lc.Alert.RatePerSec,
		},
	}
}

func mapNotifierConfig(cfg *config.Config) (notify.Config, error) {
	if cfg == nil || cfg.Notifier == nil {
		return notify.Config{Enabled: false, DedupWindow: time.Minute}, nil
	}
	nc := cfg.Notifier
	if nc.QueueSize < 0 || nc.RatePerSec < 0 || nc.RetryMax < 0 {
		return notify.Config{}, fmt.Errorf("notifier: queue_size, rate_per_sec and retry_max must be >= 0")
	}
	base, err := config.ParseDurationOrDefault("notifier.retry_base", nc.RetryBase, 500*time.Millisecond)
	if err != nil {
		return notify.Config{}, err
	}
	maxDelay, err := config.ParseDurationOrDefault("notifier.retry_max_delay", nc.RetryMaxDelay, 10*time.Second)
	if err != nil {
		return notify.Config{}, err
	}
	return notify.Config{
		Enabled:       nc.Enabled,
		QueueSize:     nc.QueueSize,
		RatePerSec:    nc.RatePerSec,
		RetryMax:      nc.RetryMax,
		RetryBase:     base,
		RetryMaxDelay: maxDelay,
		DedupWindow:   time.Minute,
	}, nil
}

func mapReportConfig(cfg *config.Config) report.Config {
	if cfg == nil || cfg.Report == nil {
		return report.Config{Spec: config.DefaultDigestSpec, Days: 1}
	}
	spec := strings.TrimSpace(cfg.Report.Spec)
	if spec == "" {
		spec = config.DefaultDigestSpec
	}
	return report.Config{Enabled: cfg.Report.Enabled, Spec: spec, Days: 1}
}

func campaignLimits(c config.Campaign) campaign.Limits {
	return campaign.Limits{
		MaxPerAccount:  c.MaxPerAccount,
		MaxConcurrency: c.MaxConcurrency,
		DelayFloor:     c.DelayFloor,
	}
}
