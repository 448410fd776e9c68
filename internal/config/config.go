package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/mescon/Scanarr/internal/domain"
)

// Version is set at build time via -ldflags.
var Version = "dev"

// ScheduleEntry defines one recurring scan.
type ScheduleEntry struct {
	Directory string `toml:"directory"`
	Cron      string `toml:"cron"`
	Mode      string `toml:"mode"`
}

// Config holds all engine configuration. Values come from an optional TOML
// file, overridden by SCANARR_* environment variables, with sensible
// defaults for everything.
type Config struct {
	// DataDir is the root for persistent state: probe cache, checkpoints,
	// logs, the result database and the instance lock.
	DataDir string `toml:"data_dir"`

	// LogLevel controls verbosity: "debug", "info", "warn", "error".
	LogLevel string `toml:"log_level"`

	// Mode is the default scan mode: "quick", "deep" or "hybrid".
	Mode domain.ScanMode `toml:"mode"`

	// Recursive walks the whole directory tree when true; flat otherwise.
	Recursive bool `toml:"recursive"`

	// Workers bounds the scan worker pool.
	Workers int `toml:"workers"`

	// Resume loads an existing checkpoint for the directory when true.
	Resume bool `toml:"resume"`

	// Extensions is the file extension allow-list (with leading dot).
	// Empty means the built-in media extension set.
	Extensions []string `toml:"extensions"`

	// ContentFilter enumerates by probe result instead of extension when true.
	ContentFilter bool `toml:"content_filter"`

	// ProbeTimeout bounds one metadata probe.
	ProbeTimeout time.Duration `toml:"probe_timeout"`

	// QuickTimeout bounds one quick (partial) decode check.
	QuickTimeout time.Duration `toml:"quick_timeout"`

	// DeepTimeout bounds one deep (full) decode check.
	DeepTimeout time.Duration `toml:"deep_timeout"`

	// CacheTTL is the probe cache entry lifetime.
	CacheTTL time.Duration `toml:"cache_ttl"`

	// FFprobePath and FFmpegPath override PATH lookup for the external tools.
	FFprobePath string `toml:"ffprobe_path"`
	FFmpegPath  string `toml:"ffmpeg_path"`

	// Result sink toggles. ResultDir defaults under DataDir.
	ResultDir   string `toml:"result_dir"`
	EnableLog   bool   `toml:"enable_log_sink"`
	EnableCSV   bool   `toml:"enable_csv_sink"`
	EnableJSONL bool   `toml:"enable_jsonl_sink"`
	EnableStore bool   `toml:"enable_store"`

	// DatabasePath is the SQLite result store (default <DataDir>/scanarr.db).
	DatabasePath string `toml:"database_path"`

	// MetricsAddr exposes Prometheus metrics when non-empty (e.g. ":9777").
	MetricsAddr string `toml:"metrics_addr"`

	// NotifyURLs are shoutrrr destination URLs for scan notifications.
	NotifyURLs []string `toml:"notify_urls"`

	// NotifyOnCorrupt sends a push per corrupt verdict (throttled) when true.
	NotifyOnCorrupt bool `toml:"notify_on_corrupt"`

	// Schedules are cron-driven recurring scans.
	Schedules []ScheduleEntry `toml:"schedules"`

	// LogDir is derived from DataDir unless set explicitly.
	LogDir string `toml:"log_dir"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		DataDir:      defaultDataDir(),
		LogLevel:     "info",
		Mode:         domain.ModeHybrid,
		Recursive:    true,
		Workers:      4,
		Resume:       true,
		ProbeTimeout: 30 * time.Second,
		QuickTimeout: 30 * time.Second,
		DeepTimeout:  20 * time.Minute,
		CacheTTL:     7 * 24 * time.Hour,
		FFprobePath:  "ffprobe",
		FFmpegPath:   "ffmpeg",
		EnableLog:    true,
		EnableCSV:    false,
		EnableJSONL:  true,
		EnableStore:  true,
	}
}

// Load reads the TOML file at path (missing file is not an error), applies
// SCANARR_* environment overrides, then fills derived paths.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		} else if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.finalize(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.DataDir = getEnvOrDefault("SCANARR_DATA_DIR", c.DataDir)
	c.LogLevel = strings.ToLower(getEnvOrDefault("SCANARR_LOG_LEVEL", c.LogLevel))
	c.Mode = domain.ScanMode(getEnvOrDefault("SCANARR_MODE", string(c.Mode)))
	c.Recursive = getEnvBoolOrDefault("SCANARR_RECURSIVE", c.Recursive)
	c.Workers = getEnvIntOrDefault("SCANARR_WORKERS", c.Workers)
	c.Resume = getEnvBoolOrDefault("SCANARR_RESUME", c.Resume)
	c.ProbeTimeout = getEnvDurationOrDefault("SCANARR_PROBE_TIMEOUT", c.ProbeTimeout)
	c.QuickTimeout = getEnvDurationOrDefault("SCANARR_QUICK_TIMEOUT", c.QuickTimeout)
	c.DeepTimeout = getEnvDurationOrDefault("SCANARR_DEEP_TIMEOUT", c.DeepTimeout)
	c.CacheTTL = getEnvDurationOrDefault("SCANARR_CACHE_TTL", c.CacheTTL)
	c.FFprobePath = getEnvOrDefault("SCANARR_FFPROBE_PATH", c.FFprobePath)
	c.FFmpegPath = getEnvOrDefault("SCANARR_FFMPEG_PATH", c.FFmpegPath)
	c.DatabasePath = getEnvOrDefault("SCANARR_DATABASE_PATH", c.DatabasePath)
	c.MetricsAddr = getEnvOrDefault("SCANARR_METRICS_ADDR", c.MetricsAddr)
	if urls := os.Getenv("SCANARR_NOTIFY_URLS"); urls != "" {
		c.NotifyURLs = strings.Split(urls, ",")
	}
}

func (c *Config) finalize() error {
	if abs, err := filepath.Abs(c.DataDir); err == nil {
		c.DataDir = abs
	}
	if err := os.MkdirAll(c.DataDir, 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	if c.LogDir == "" {
		c.LogDir = filepath.Join(c.DataDir, "logs")
	}
	if c.ResultDir == "" {
		c.ResultDir = filepath.Join(c.DataDir, "results")
	}
	if c.DatabasePath == "" {
		c.DatabasePath = filepath.Join(c.DataDir, "scanarr.db")
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		c.LogLevel = "info"
	}

	switch c.Mode {
	case domain.ModeQuick, domain.ModeDeep, domain.ModeHybrid:
	default:
		return fmt.Errorf("invalid scan mode %q (want quick, deep or hybrid)", c.Mode)
	}

	if c.Workers < 1 {
		c.Workers = 1
	}
	return nil
}

// defaultDataDir prefers /config when present (Docker), else ./config.
func defaultDataDir() string {
	if info, err := os.Stat("/config"); err == nil && info.IsDir() {
		return "/config"
	}
	if cwd, err := os.Getwd(); err == nil {
		return filepath.Join(cwd, "config")
	}
	return "./config"
}

// NewTestConfig returns a minimal Config rooted in a throwaway directory,
// suitable for unit tests.
func NewTestConfig(dir string) *Config {
	return &Config{
		DataDir:      dir,
		LogLevel:     "debug",
		Mode:         domain.ModeHybrid,
		Recursive:    true,
		Workers:      2,
		Resume:       true,
		ProbeTimeout: 5 * time.Second,
		QuickTimeout: 5 * time.Second,
		DeepTimeout:  30 * time.Second,
		CacheTTL:     time.Hour,
		FFprobePath:  "ffprobe",
		FFmpegPath:   "ffmpeg",
		ResultDir:    filepath.Join(dir, "results"),
		LogDir:       filepath.Join(dir, "logs"),
		DatabasePath: filepath.Join(dir, "scanarr.db"),
		EnableLog:    true,
		EnableJSONL:  true,
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

// getEnvDurationOrDefault accepts Go duration strings like "30s", "20m".
func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// getEnvBoolOrDefault accepts "true", "1", "yes" (case-insensitive) as true
// and "false", "0", "no" as false.
func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		switch strings.ToLower(value) {
		case "true", "1", "yes":
			return true
		case "false", "0", "no":
			return false
		}
	}
	return defaultValue
}
