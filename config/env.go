package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "SCRAPER_"

// EnvString returns the value of key, or fallback when unset or empty.
func EnvString(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

// EnvInt returns key parsed as an int, or fallback when unset or invalid.
func EnvInt(key string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

// EnvBool returns key parsed as a bool, or fallback when unset or invalid.
func EnvBool(key string, fallback bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

// EnvDuration returns key parsed as a duration, or fallback when unset or invalid.
func EnvDuration(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

// ApplyEnv overlays SCRAPER_* environment variables onto cfg.
func ApplyEnv(cfg *Config) {
	cfg.BaseURL = EnvString(EnvPrefix+"BASE_URL", cfg.BaseURL)
	cfg.Province = EnvString(EnvPrefix+"PROVINCE", cfg.Province)
	cfg.City = EnvString(EnvPrefix+"CITY", cfg.City)
	cfg.StartPage = EnvInt(EnvPrefix+"START_PAGE", cfg.StartPage)
	cfg.MaxPages = EnvInt(EnvPrefix+"MAX_PAGES", cfg.MaxPages)
	cfg.Cutoff = EnvString(EnvPrefix+"CUTOFF", cfg.Cutoff)
	cfg.Resume = EnvBool(EnvPrefix+"RESUME", cfg.Resume)
	cfg.OutputDir = EnvString(EnvPrefix+"OUTPUT_DIR", cfg.OutputDir)
	cfg.OutputFile = EnvString(EnvPrefix+"OUTPUT_FILE", cfg.OutputFile)
	cfg.CheckpointFile = EnvString(EnvPrefix+"CHECKPOINT_FILE", cfg.CheckpointFile)
	cfg.Headless = EnvBool(EnvPrefix+"HEADLESS", cfg.Headless)
	cfg.DebugAddress = EnvString(EnvPrefix+"DEBUG_ADDRESS", cfg.DebugAddress)
	cfg.UserAgent = EnvString(EnvPrefix+"USER_AGENT", cfg.UserAgent)
	cfg.ElementTimeout = EnvDuration(EnvPrefix+"ELEMENT_TIMEOUT", cfg.ElementTimeout)
	cfg.PageLoadTimeout = EnvDuration(EnvPrefix+"PAGE_LOAD_TIMEOUT", cfg.PageLoadTimeout)
	cfg.LoginTimeout = EnvDuration(EnvPrefix+"LOGIN_TIMEOUT", cfg.LoginTimeout)
	cfg.BidHistoryMaxPages = EnvInt(EnvPrefix+"BID_HISTORY_MAX_PAGES", cfg.BidHistoryMaxPages)
	cfg.MetricsAddr = EnvString(EnvPrefix+"METRICS_ADDR", cfg.MetricsAddr)
	cfg.Verbose = EnvBool(EnvPrefix+"VERBOSE", cfg.Verbose)

	lj := &cfg.Lianjia
	lj.BaseURL = EnvString(EnvPrefix+"LIANJIA_BASE_URL", lj.BaseURL)
	lj.MaxPages = EnvInt(EnvPrefix+"LIANJIA_MAX_PAGES", lj.MaxPages)
	lj.MinDate = EnvString(EnvPrefix+"LIANJIA_MIN_DATE", lj.MinDate)
	lj.Parallelism = EnvInt(EnvPrefix+"LIANJIA_PARALLELISM", lj.Parallelism)
	lj.OutputDir = EnvString(EnvPrefix+"OUTPUT_DIR", lj.OutputDir)
}
