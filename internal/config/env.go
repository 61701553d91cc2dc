package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Environment keys overlaid on top of the file config.
const (
	EnvMaxPerAccount  = "MAX_PER_ACCOUNT"
	EnvMaxConcurrency = "MAX_CONCURRENCY"
	EnvDelayMin       = "DELAY_MIN"
	EnvDelayMax       = "DELAY_MAX"
	EnvTelegramToken  = "TELEGRAM_TOKEN"
)

// LoadDotEnv loads .env and .env.local into the process environment.
// Missing files are ignored; variables already set are not overridden.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env", ".env.local"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

// EnvDefaults carries the operator defaults read from the environment.
// Zero means "not set".
type EnvDefaults struct {
	DelayMin int
	DelayMax int
}

// ApplyEnv overlays environment values on cfg and returns the prompt defaults.
func ApplyEnv(cfg *Config, lookup func(string) (string, bool)) (EnvDefaults, error) {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	var out EnvDefaults
	if cfg == nil {
		return out, nil
	}
	if v, ok, err := envInt(lookup, EnvMaxPerAccount); err != nil {
		return out, err
	} else if ok {
		cfg.Campaign.MaxPerAccount = v
	}
	if v, ok, err := envInt(lookup, EnvMaxConcurrency); err != nil {
		return out, err
	} else if ok {
		cfg.Campaign.MaxConcurrency = v
	}
	if v, ok, err := envInt(lookup, EnvDelayMin); err != nil {
		return out, err
	} else if ok {
		out.DelayMin = v
	}
	if v, ok, err := envInt(lookup, EnvDelayMax); err != nil {
		return out, err
	} else if ok {
		out.DelayMax = v
	}
	if v, ok := lookup(EnvTelegramToken); ok && strings.TrimSpace(v) != "" {
		cfg.Telegram.Token = strings.TrimSpace(v)
	}
	return out, nil
}

func envInt(lookup func(string) (string, bool), key string) (int, bool, error) {
	raw, ok := lookup(key)
	raw = strings.TrimSpace(raw)
	if !ok || raw == "" {
		return 0, false, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false, fmt.Errorf("%s: invalid integer %q", key, raw)
	}
	if n < 0 {
		return 0, false, fmt.Errorf("%s: must be >= 0", key)
	}
	return n, true, nil
}
