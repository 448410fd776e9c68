package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/gofrs/flock"

	"github.com/mescon/Scanarr/internal/checkpoint"
	"github.com/mescon/Scanarr/internal/config"
	"github.com/mescon/Scanarr/internal/db"
	"github.com/mescon/Scanarr/internal/domain"
	"github.com/mescon/Scanarr/internal/logger"
	"github.com/mescon/Scanarr/internal/metrics"
	"github.com/mescon/Scanarr/internal/notifier"
	"github.com/mescon/Scanarr/internal/probecache"
	"github.com/mescon/Scanarr/internal/scan"
	"github.com/mescon/Scanarr/internal/scheduler"
	"github.com/mescon/Scanarr/internal/sink"
	"github.com/mescon/Scanarr/internal/tool"
)

func main() {
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.BoolVar(showVersion, "v", false, "Print version and exit (shorthand)")

	// Flags override config-file values and SCANARR_* environment variables.
	flagConfig := flag.String("config", "", "Path to TOML config file (env: SCANARR_CONFIG)")
	flagDir := flag.String("dir", "", "Directory to scan once and exit; omit to run configured schedules")
	flagMode := flag.String("mode", "", "Scan mode: quick, deep, hybrid (env: SCANARR_MODE, default: hybrid)")
	flagWorkers := flag.Int("workers", 0, "Parallel scan workers (env: SCANARR_WORKERS)")
	flagRecursive := flag.Bool("recursive", true, "Recurse into subdirectories")
	flagResume := flag.Bool("resume", true, "Resume from an existing checkpoint")
	flagContentFilter := flag.Bool("content-filter", false, "Ignore extensions, probe every file (env: SCANARR_CONTENT_FILTER)")
	flag.Parse()

	if *showVersion {
		fmt.Printf("Scanarr %s\n", config.Version)
		os.Exit(0)
	}

	configPath := *flagConfig
	if configPath == "" {
		configPath = os.Getenv("SCANARR_CONFIG")
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	passed := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) { passed[f.Name] = true })
	applyFlagOverrides(cfg, flagOverrides{
		mode:          *flagMode,
		workers:       *flagWorkers,
		recursive:     *flagRecursive,
		resume:        *flagResume,
		contentFilter: *flagContentFilter,
	}, passed)

	logger.Init(cfg.LogDir)
	logger.SetLevel(cfg.LogLevel)

	logger.Infof("========================================")
	logger.Infof("Starting Scanarr %s", config.Version)
	logger.Infof("========================================")
	logger.Infof("Configuration:")
	logger.Infof("  Mode: %s", cfg.Mode)
	logger.Infof("  Workers: %d", cfg.Workers)
	logger.Infof("  Data Directory: %s", cfg.DataDir)
	logger.Infof("  Probe Cache TTL: %s", cfg.CacheTTL)
	logger.Infof("  Content Filter: %v", cfg.ContentFilter)

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		logger.Errorf("Failed to create data directory: %v", err)
		os.Exit(1)
	}

	// One engine instance per data dir; a second instance would corrupt the
	// checkpoint and cache files.
	lock := flock.New(filepath.Join(cfg.DataDir, "scanarr.lock"))
	locked, err := lock.TryLock()
	if err != nil {
		logger.Errorf("Failed to acquire instance lock: %v", err)
		os.Exit(1)
	}
	if !locked {
		logger.Errorf("Another Scanarr instance is already using %s", cfg.DataDir)
		os.Exit(1)
	}
	defer lock.Unlock()

	checker := tool.NewCheckerWithPaths(cfg.FFprobePath, cfg.FFmpegPath)
	if err := checker.Verify(); err != nil {
		logger.Errorf("External tool check failed: %v", err)
		os.Exit(1)
	}

	cache, err := probecache.Open(cfg.DataDir, cfg.CacheTTL, nil)
	if err != nil {
		logger.Errorf("Failed to open probe cache: %v", err)
		os.Exit(1)
	}

	checkpoints, err := checkpoint.NewStore(cfg.DataDir)
	if err != nil {
		logger.Errorf("Failed to prepare checkpoint store: %v", err)
		os.Exit(1)
	}

	var conn *sql.DB
	var store *sink.Store
	if cfg.EnableStore {
		conn, err = db.Open(cfg.DatabasePath)
		if err != nil {
			logger.Errorf("Failed to open result database: %v", err)
			os.Exit(1)
		}
		defer db.GracefulClose(conn)
		store, err = sink.NewStore(conn)
		if err != nil {
			logger.Errorf("Failed to initialize result store: %v", err)
			os.Exit(1)
		}
		logger.Infof("Result store: %s", cfg.DatabasePath)
	}

	notify := notifier.New(cfg.NotifyURLs, cfg.NotifyOnCorrupt, nil)
	if notify.Enabled() {
		logger.Infof("Notifications: %d service(s) configured", len(cfg.NotifyURLs))
	}

	var collector *metrics.Collector
	if cfg.MetricsAddr != "" {
		collector = metrics.NewCollector()
		srv := metrics.NewServer(cfg.MetricsAddr, collector)
		srv.Start()
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Stop(ctx); err != nil {
				logger.Warnf("Metrics server shutdown error: %v", err)
			}
		}()
	}

	adapter := tool.NewFFAdapterWithPaths(cfg.FFprobePath, cfg.FFmpegPath)

	runScan := func(ctx context.Context, directory string, mode domain.ScanMode) error {
		if mode == "" {
			mode = cfg.Mode
		}
		appender, err := buildAppenders(cfg, directory)
		if err != nil {
			return fmt.Errorf("cannot open result sinks: %w", err)
		}

		scanner := scan.New(scan.Deps{
			Adapter:     adapter,
			Cache:       cache,
			Checkpoints: checkpoints,
			Appender:    appender,
			Store:       store,
			Metrics:     metricsOrNil(collector),
		})

		summary, err := scanner.Run(ctx, scan.Options{
			Directory:     directory,
			Mode:          mode,
			Recursive:     cfg.Recursive,
			Workers:       cfg.Workers,
			Resume:        cfg.Resume,
			Extensions:    cfg.Extensions,
			ContentFilter: cfg.ContentFilter,
			ProbeTimeout:  cfg.ProbeTimeout,
			QuickTimeout:  cfg.QuickTimeout,
			DeepTimeout:   cfg.DeepTimeout,
			MinFileAge:    2 * time.Minute,
			ToolPath:      cfg.FFmpegPath,
			OnVerdict:     notify.VerdictHook(),
			Progress:      logProgress,
		})
		if summary != nil {
			notify.ScanFinished(summary)
			logger.Infof("Scan finished: %d/%d processed, %d corrupt, %d healthy, %d rejected in %s",
				summary.Processed, summary.TotalFiles, summary.Corrupt,
				summary.Healthy, summary.Rejected, summary.Duration.Round(time.Second))
		}
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *flagDir != "" {
		if err := runScan(ctx, *flagDir, cfg.Mode); err != nil {
			logger.Errorf("Scan failed: %v", err)
			cache.Flush()
			os.Exit(1)
		}
		cache.Flush()
		return
	}

	if len(cfg.Schedules) == 0 {
		logger.Errorf("Nothing to do: pass -dir for a one-shot scan or configure schedules")
		os.Exit(1)
	}

	sched, err := scheduler.New(cfg.Schedules, runScan)
	if err != nil {
		logger.Errorf("Invalid schedule configuration: %v", err)
		os.Exit(1)
	}
	sched.Start()

	<-ctx.Done()
	logger.Infof("Received shutdown signal, stopping scheduler...")
	sched.Stop()
	cache.Flush()
	logger.Infof("Scanarr shutdown complete")
}

// flagOverrides carries the command-line values that may override config.
type flagOverrides struct {
	mode          string
	workers       int
	recursive     bool
	resume        bool
	contentFilter bool
}

// applyFlagOverrides applies only flags the user explicitly passed, so a
// config-file `recursive = false` survives the flag's default value.
func applyFlagOverrides(cfg *config.Config, o flagOverrides, passed map[string]bool) {
	if passed["mode"] && o.mode != "" {
		cfg.Mode = domain.ScanMode(o.mode)
	}
	if passed["workers"] && o.workers > 0 {
		cfg.Workers = o.workers
	}
	if passed["recursive"] {
		cfg.Recursive = o.recursive
	}
	if passed["resume"] {
		cfg.Resume = o.resume
	}
	if passed["content-filter"] {
		cfg.ContentFilter = o.contentFilter
	}
}

// buildAppenders assembles the enabled append-only sinks for one scan run.
// File names carry the scan directory's base name and a timestamp so
// successive runs never clobber each other.
func buildAppenders(cfg *config.Config, directory string) (sink.Appender, error) {
	var appenders []sink.Appender
	stamp := time.Now().UTC().Format("20060102-150405")
	base := strings.ReplaceAll(filepath.Base(directory), " ", "_")

	if err := os.MkdirAll(cfg.ResultDir, 0o755); err != nil {
		return nil, err
	}
	if cfg.EnableLog {
		a, err := sink.NewLineLog(filepath.Join(cfg.ResultDir, fmt.Sprintf("%s-%s.log", base, stamp)))
		if err != nil {
			return nil, err
		}
		appenders = append(appenders, a)
	}
	if cfg.EnableCSV {
		a, err := sink.NewCSVSink(filepath.Join(cfg.ResultDir, fmt.Sprintf("%s-%s.csv", base, stamp)))
		if err != nil {
			return nil, err
		}
		appenders = append(appenders, a)
	}
	if cfg.EnableJSONL {
		a, err := sink.NewJSONL(filepath.Join(cfg.ResultDir, fmt.Sprintf("%s-%s.jsonl", base, stamp)))
		if err != nil {
			return nil, err
		}
		appenders = append(appenders, a)
	}
	if len(appenders) == 0 {
		return nil, nil
	}
	return sink.NewMulti(appenders...), nil
}

// metricsOrNil keeps the engine's nil check working: a nil *Collector in a
// non-nil interface would panic on use.
func metricsOrNil(c *metrics.Collector) scan.Collector {
	if c == nil {
		return nil
	}
	return c
}

func logProgress(p domain.ScanProgress) {
	switch p.Phase {
	case domain.PhaseScanning:
		if p.Processed%100 == 0 || p.Processed == p.Total {
			logger.Infof("Progress: %d/%d files (%d corrupt, %d rejected)",
				p.Processed, p.Total, p.Corrupt, p.Rejected)
		}
	case domain.PhaseFinalizing:
		logger.Debugf("Finalizing scan of %s", p.Directory)
	}
}
