package config

import (
	"strings"

	logx "dmrotor/pkg/logx"
)

// SummarizeConfigChange returns the changed section names plus safe attrs for
// logging. Secrets (tokens) are never included.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}
	changed := make([]string, 0, 6)
	attrs := make([]logx.Field, 0, 12)

	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file", newCfg.Logging.File.Enabled),
			logx.Bool("logging.alert", newCfg.Logging.Alert.Enabled),
		)
	}
	if oldCfg.Telegram.ChatID != newCfg.Telegram.ChatID ||
		strings.TrimSpace(oldCfg.Telegram.PollTimeout) != strings.TrimSpace(newCfg.Telegram.PollTimeout) ||
		(oldCfg.Telegram.Token != "") != (newCfg.Telegram.Token != "") {
		changed = append(changed, "telegram")
		attrs = append(attrs, logx.Bool("telegram.token_set", newCfg.Telegram.Token != ""))
	}
	if oldCfg.Campaign != newCfg.Campaign {
		changed = append(changed, "campaign")
		attrs = append(attrs,
			logx.Int("campaign.max_per_account", newCfg.Campaign.MaxPerAccount),
			logx.Int("campaign.max_concurrency", newCfg.Campaign.MaxConcurrency),
		)
	}
	if !sameReport(oldCfg.Report, newCfg.Report) {
		changed = append(changed, "report")
	}
	if oldCfg.Proxy != newCfg.Proxy || oldCfg.Gateway != newCfg.Gateway {
		changed = append(changed, "network")
	}
	if oldCfg.Paths != newCfg.Paths || strings.TrimSpace(oldCfg.Timezone) != strings.TrimSpace(newCfg.Timezone) {
		changed = append(changed, "paths")
	}
	return changed, attrs
}

func sameReport(a, b *ReportConfig) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
