package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// CutoffLayouts are the accepted cutoff timestamp formats.
var CutoffLayouts = []string{
	"2006-01-02 15:04:05",
	"2006年01月02日 15:04:05",
}

// Config holds auction crawler configuration.
type Config struct {
	BaseURL   string
	Province  string
	City      string
	StartPage int
	MaxPages  int
	// Cutoff stops the crawl after the first record whose end time predates it.
	Cutoff string
	Resume bool

	OutputDir       string
	OutputFile      string // xlsx, csv or jsonl, chosen by extension
	OutputSheet     string
	ErrorFileStem   string
	ArtifactsDir    string
	CheckpointFile  string
	LegacyErrorFile string
	LegacyKeyColumn string

	Headless        bool
	DebugAddress    string
	Stealth         bool
	UserAgent       string
	ElementTimeout  time.Duration
	PageLoadTimeout time.Duration
	LoginTimeout    time.Duration
	DownloadTimeout time.Duration

	ItemDelayMin  time.Duration
	ItemDelayMax  time.Duration
	BatchSize     int
	BatchPauseMin time.Duration
	BatchPauseMax time.Duration
	PageSettleMin time.Duration
	PageSettleMax time.Duration
	RetryDelayMin time.Duration
	RetryDelayMax time.Duration

	MaxPaginationFailures int
	LocationRetries       int
	PopupRetries          int
	BidHistoryMaxPages    int

	MetricsAddr string
	Verbose     bool

	Lianjia LianjiaConfig
}

// LianjiaConfig holds closed-deal crawler configuration.
type LianjiaConfig struct {
	BaseURL   string
	Districts []string
	MaxPages  int
	MinDate   string

	Parallelism  int
	Delay        time.Duration
	RandomDelay  time.Duration
	Timeout      time.Duration
	MaxRetries   int
	RetryBackoff time.Duration
	// RetryBackoffMax caps the exponential retry backoff.
	RetryBackoffMax time.Duration
	UserAgent       string
	OutputDir       string
	OutputPrefix    string
	OutputFormats   []string // any of xlsx, csv, jsonl
	BufferSize      int
	FlushSize       int
	DedupeMaxSize   int
}

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

// DefaultConfig returns conservative defaults for the auction site.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:   "https://pmsearch.jd.com/?publishSource=7&childrenCateId=12728",
		Province:  "gd",
		City:      "sz",
		StartPage: 1,
		MaxPages:  9999,

		OutputDir:       "output",
		OutputFile:      "京东法拍房_数据.xlsx",
		OutputSheet:     "Sheet1",
		ErrorFileStem:   "京东法拍房_数据_错误保存",
		ArtifactsDir:    "京东法拍",
		CheckpointFile:  "checkpoint.json",
		LegacyErrorFile: "京东法拍房_数据_错误保存.xlsx",
		LegacyKeyColumn: "资产名称",

		Headless:        false,
		Stealth:         true,
		UserAgent:       defaultUserAgent,
		ElementTimeout:  10 * time.Second,
		PageLoadTimeout: 30 * time.Second,
		LoginTimeout:    5 * time.Minute,
		DownloadTimeout: 60 * time.Second,

		ItemDelayMin:  1 * time.Second,
		ItemDelayMax:  3 * time.Second,
		BatchSize:     5,
		BatchPauseMin: 5 * time.Second,
		BatchPauseMax: 10 * time.Second,
		PageSettleMin: 3 * time.Second,
		PageSettleMax: 6 * time.Second,
		RetryDelayMin: 2 * time.Second,
		RetryDelayMax: 4 * time.Second,

		MaxPaginationFailures: 3,
		LocationRetries:       3,
		PopupRetries:          3,
		BidHistoryMaxPages:    200,

		Lianjia: DefaultLianjiaConfig(),
	}
}

// DefaultLianjiaConfig returns defaults for the closed-deal crawler.
func DefaultLianjiaConfig() LianjiaConfig {
	return LianjiaConfig{
		BaseURL:         "https://sz.lianjia.com/chengjiao",
		MaxPages:        100,
		MinDate:         "2017-01-01",
		Parallelism:     2,
		Delay:           1 * time.Second,
		RandomDelay:     2 * time.Second,
		Timeout:         15 * time.Second,
		MaxRetries:      2,
		RetryBackoff:    500 * time.Millisecond,
		RetryBackoffMax: 5 * time.Second,
		UserAgent:       defaultUserAgent,
		OutputDir:       "output",
		OutputPrefix:    "链家二手房",
		OutputFormats:   []string{"xlsx"},
		BufferSize:      256,
		FlushSize:       50,
		DedupeMaxSize:   100_000,
	}
}

// Validate ensures all configuration values are coherent. It runs before any
// browser interaction.
func (c *Config) Validate() error {
	if err := validateURL(c.BaseURL); err != nil {
		return err
	}
	if _, ok := Provinces[c.Province]; !ok {
		return fmt.Errorf("unsupported province %q (supported: %s)", c.Province, strings.Join(ProvinceCodes(), ", "))
	}
	if c.City != "" {
		if _, ok := Cities[c.City]; !ok {
			return fmt.Errorf("unsupported city %q", c.City)
		}
		if !CityInProvince(c.Province, c.City) {
			return fmt.Errorf("province %s does not offer city %s (available: %s)",
				c.Province, c.City, strings.Join(ProvinceCities[c.Province], ", "))
		}
	}
	if c.StartPage <= 0 {
		return fmt.Errorf("start page must be positive")
	}
	if c.MaxPages <= 0 {
		return fmt.Errorf("max pages must be positive")
	}
	if c.StartPage > c.MaxPages {
		return fmt.Errorf("start page (%d) cannot exceed max pages (%d)", c.StartPage, c.MaxPages)
	}
	if _, _, err := c.CutoffTime(); err != nil {
		return err
	}
	if c.OutputFile == "" {
		return fmt.Errorf("output file cannot be empty")
	}
	if _, err := FormatOf(c.OutputFile); err != nil {
		return err
	}
	if c.ErrorFileStem == "" {
		return fmt.Errorf("error file stem cannot be empty")
	}
	if c.CheckpointFile == "" {
		return fmt.Errorf("checkpoint file cannot be empty")
	}
	if c.UserAgent == "" {
		return fmt.Errorf("user agent cannot be empty")
	}
	for name, d := range map[string]time.Duration{
		"element timeout":   c.ElementTimeout,
		"page load timeout": c.PageLoadTimeout,
		"login timeout":     c.LoginTimeout,
		"download timeout":  c.DownloadTimeout,
	} {
		if d <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}
	if err := validateRange("item delay", c.ItemDelayMin, c.ItemDelayMax); err != nil {
		return err
	}
	if err := validateRange("batch pause", c.BatchPauseMin, c.BatchPauseMax); err != nil {
		return err
	}
	if err := validateRange("page settle", c.PageSettleMin, c.PageSettleMax); err != nil {
		return err
	}
	if err := validateRange("retry delay", c.RetryDelayMin, c.RetryDelayMax); err != nil {
		return err
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch size must be positive")
	}
	if c.MaxPaginationFailures <= 0 {
		return fmt.Errorf("max pagination failures must be positive")
	}
	if c.LocationRetries <= 0 {
		return fmt.Errorf("location retries must be positive")
	}
	if c.PopupRetries <= 0 {
		return fmt.Errorf("popup retries must be positive")
	}
	if c.BidHistoryMaxPages <= 0 {
		return fmt.Errorf("bid history max pages must be positive")
	}
	return nil
}

// CutoffTime parses Cutoff. ok is false when no cutoff is configured.
func (c *Config) CutoffTime() (t time.Time, ok bool, err error) {
	raw := strings.TrimSpace(c.Cutoff)
	if raw == "" {
		return time.Time{}, false, nil
	}
	for _, layout := range CutoffLayouts {
		if t, err := time.ParseInLocation(layout, raw, time.UTC); err == nil {
			return t, true, nil
		}
	}
	return time.Time{}, false, fmt.Errorf("invalid cutoff %q: want e.g. '2024-01-01 12:00:00' or '2024年01月01日 12:00:00'", c.Cutoff)
}

// OutputPath joins the output directory and file.
func (c *Config) OutputPath() string {
	return filepath.Join(c.OutputDir, c.OutputFile)
}

// ErrorOutputPath names the safety-net destination for a run started at ts.
func (c *Config) ErrorOutputPath(ts time.Time) string {
	ext := filepath.Ext(c.OutputFile)
	if ext == "" {
		ext = ".xlsx"
	}
	return filepath.Join(c.OutputDir, fmt.Sprintf("%s_%s%s", c.ErrorFileStem, ts.Format("20060102_150405"), ext))
}

// ArtifactsPath is the folder under which per-record side artifacts live.
func (c *Config) ArtifactsPath() string {
	return filepath.Join(c.OutputDir, c.ArtifactsDir)
}

// CheckpointPath joins the output directory and checkpoint file.
func (c *Config) CheckpointPath() string {
	return filepath.Join(c.OutputDir, c.CheckpointFile)
}

// LegacyErrorPath joins the output directory and legacy error file.
func (c *Config) LegacyErrorPath() string {
	return filepath.Join(c.OutputDir, c.LegacyErrorFile)
}

// ResumeSourcePath picks the workbook a marker-based resume reads: the most
// recently modified of the legacy error file and the timestamped xlsx error
// saves under ErrorFileStem. It returns LegacyErrorPath when none exists.
func (c *Config) ResumeSourcePath() string {
	best := c.LegacyErrorPath()
	var bestMod time.Time
	if info, err := os.Stat(best); err == nil {
		bestMod = info.ModTime()
	}
	matches, _ := filepath.Glob(filepath.Join(c.OutputDir, c.ErrorFileStem+"_*.xlsx"))
	for _, m := range matches {
		info, err := os.Stat(m)
		if err != nil || info.IsDir() {
			continue
		}
		if info.ModTime().After(bestMod) {
			best, bestMod = m, info.ModTime()
		}
	}
	return best
}

// Validate ensures the closed-deal crawler configuration is coherent.
func (c *LianjiaConfig) Validate() error {
	if err := validateURL(c.BaseURL); err != nil {
		return err
	}
	for _, d := range c.Districts {
		if _, ok := DistrictAreas(d); !ok {
			return fmt.Errorf("unknown district %q", d)
		}
	}
	if c.MaxPages <= 0 {
		return fmt.Errorf("max pages must be positive")
	}
	if _, err := c.MinDateTime(); err != nil {
		return err
	}
	if c.Parallelism <= 0 {
		return fmt.Errorf("parallelism must be positive")
	}
	if c.Delay < 0 {
		return fmt.Errorf("delay cannot be negative")
	}
	if c.RandomDelay < 0 {
		return fmt.Errorf("random delay cannot be negative")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max retries cannot be negative")
	}
	if c.RetryBackoff < 0 {
		return fmt.Errorf("retry backoff cannot be negative")
	}
	if c.RetryBackoffMax < 0 {
		return fmt.Errorf("retry backoff max cannot be negative")
	}
	if c.UserAgent == "" {
		return fmt.Errorf("user agent cannot be empty")
	}
	if c.OutputPrefix == "" {
		return fmt.Errorf("output prefix cannot be empty")
	}
	if len(c.OutputFormats) == 0 {
		return fmt.Errorf("at least one output format is required")
	}
	for _, f := range c.OutputFormats {
		if _, err := FormatOf("x." + f); err != nil {
			return err
		}
	}
	if c.BufferSize <= 0 {
		return fmt.Errorf("buffer size must be positive")
	}
	if c.FlushSize <= 0 {
		return fmt.Errorf("flush size must be positive")
	}
	if c.DedupeMaxSize <= 0 {
		return fmt.Errorf("dedupe max size must be positive")
	}
	return nil
}

// MinDateTime parses MinDate.
func (c *LianjiaConfig) MinDateTime() (time.Time, error) {
	t, err := time.ParseInLocation("2006-01-02", strings.TrimSpace(c.MinDate), time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid min date %q: want YYYY-MM-DD", c.MinDate)
	}
	return t, nil
}

// OutputPaths names the output files of one district, one per format.
func (c *LianjiaConfig) OutputPaths(district string) []string {
	out := make([]string, len(c.OutputFormats))
	for i, f := range c.OutputFormats {
		out[i] = filepath.Join(c.OutputDir, fmt.Sprintf("%s_%s.%s", c.OutputPrefix, district, f))
	}
	return out
}

// SelectedDistricts returns the configured districts, or all of them.
func (c *LianjiaConfig) SelectedDistricts() []string {
	if len(c.Districts) > 0 {
		return c.Districts
	}
	return DistrictNames()
}

// FormatOf maps a file name to its output format by extension.
func FormatOf(name string) (string, error) {
	switch ext := strings.ToLower(filepath.Ext(name)); ext {
	case ".xlsx":
		return "xlsx", nil
	case ".csv":
		return "csv", nil
	case ".jsonl", ".json":
		return "jsonl", nil
	default:
		return "", fmt.Errorf("output format must be xlsx, csv, or jsonl (got %q)", ext)
	}
}

func validateURL(raw string) error {
	if raw == "" {
		return fmt.Errorf("base URL cannot be empty")
	}
	parsedURL, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid base URL: %w", err)
	}
	if parsedURL.Host == "" {
		return fmt.Errorf("base URL must include a host")
	}
	return nil
}

func validateRange(name string, lo, hi time.Duration) error {
	if lo < 0 || hi < 0 {
		return fmt.Errorf("%s cannot be negative", name)
	}
	if lo > hi {
		return fmt.Errorf("%s min (%s) cannot exceed max (%s)", name, lo, hi)
	}
	return nil
}
