// Package scan is the engine orchestrator: it enumerates a media tree,
// probes and decode-checks files over a bounded worker pool, classifies the
// diagnostics, and checkpoints progress so interrupted scans resume.
package scan

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mescon/Scanarr/internal/checkpoint"
	"github.com/mescon/Scanarr/internal/classify"
	"github.com/mescon/Scanarr/internal/clock"
	"github.com/mescon/Scanarr/internal/domain"
	"github.com/mescon/Scanarr/internal/logger"
	"github.com/mescon/Scanarr/internal/probecache"
	"github.com/mescon/Scanarr/internal/sink"
	"github.com/mescon/Scanarr/internal/tool"
)

// Collector receives engine metrics. The metrics package implements it;
// a nil collector disables instrumentation.
type Collector interface {
	ScanStarted(mode string)
	FileProcessed(status, depth string)
	ScanCompleted(outcome string, duration time.Duration, corrupt int)
}

// Options configure one scan run. Collaborators (CLI, scheduler, API) fill
// this in; the engine itself reads no ambient configuration.
type Options struct {
	Directory     string
	Mode          domain.ScanMode
	Recursive     bool
	Workers       int
	Resume        bool
	Extensions    []string
	ContentFilter bool
	ProbeTimeout  time.Duration
	QuickTimeout  time.Duration
	DeepTimeout   time.Duration

	// MinFileAge skips files modified more recently than this (likely still
	// being written). Zero disables the check.
	MinFileAge time.Duration

	// ToolPath is recorded in checkpoint metadata for operator forensics.
	ToolPath string

	// Progress is invoked after enumeration and after every processed file.
	Progress func(domain.ScanProgress)

	// OnVerdict is invoked for every final verdict (notifications hook).
	OnVerdict func(*domain.Verdict)
}

// Deps are the engine's collaborators. Adapter and Checkpoints are
// required; everything else degrades gracefully when nil.
type Deps struct {
	Adapter     tool.Adapter
	Rules       *classify.Rules
	Cache       *probecache.Cache
	Checkpoints *checkpoint.Store
	Appender    sink.Appender
	Store       *sink.Store
	Metrics     Collector
	Clock       clock.Clock
}

// Scanner runs scans. Safe for sequential reuse; one Run at a time per
// directory (the checkpoint file is per directory).
type Scanner struct {
	adapter     tool.Adapter
	rules       *classify.Rules
	cache       *probecache.Cache
	checkpoints *checkpoint.Store
	appender    sink.Appender
	store       *sink.Store
	metrics     Collector
	clk         clock.Clock
}

// New builds a Scanner, defaulting the rule set and clock.
func New(deps Deps) *Scanner {
	rules := deps.Rules
	if rules == nil {
		rules = classify.DefaultRules()
	}
	clk := deps.Clock
	if clk == nil {
		clk = clock.NewRealClock()
	}
	return &Scanner{
		adapter:     deps.Adapter,
		rules:       rules,
		cache:       deps.Cache,
		checkpoints: deps.Checkpoints,
		appender:    deps.Appender,
		store:       deps.Store,
		metrics:     deps.Metrics,
		clk:         clk,
	}
}

// outcome is one worker's result for one file: a verdict or a rejection.
type outcome struct {
	file      domain.MediaFile
	verdict   *domain.Verdict
	rejection *domain.Rejection
}

// Run executes one scan. Cancelling ctx stops dispatch and in-flight tools,
// preserves the checkpoint, and returns the summary marked incomplete.
// Only enumeration and checkpoint persistence failures are fatal.
func (s *Scanner) Run(ctx context.Context, opts Options) (*domain.ScanSummary, error) {
	dir, err := resolveDirectory(opts.Directory)
	if err != nil {
		return nil, err
	}

	workers := opts.Workers
	if workers < 1 {
		workers = 1
	}

	scanID := uuid.New().String()
	startedAt := s.clk.Now()

	emit := func(p domain.ScanProgress) {
		if opts.Progress != nil {
			p.ScanID = scanID
			p.Directory = dir
			opts.Progress(p)
		}
	}

	emit(domain.ScanProgress{Phase: domain.PhaseEnumerating})
	files, err := s.enumerate(ctx, dir, opts)
	if err != nil {
		return nil, fmt.Errorf("enumeration failed: %w", err)
	}
	logger.Infof("Scan %s: %d files enumerated under %s", scanID, len(files), dir)

	cp, resumed, err := s.prepareCheckpoint(dir, files, scanID, startedAt, opts)
	if err != nil {
		return nil, err
	}

	summary := &domain.ScanSummary{
		ID:         scanID,
		Directory:  dir,
		Mode:       opts.Mode,
		TotalFiles: len(files),
		StartedAt:  startedAt,
		Resumed:    resumed,
	}

	if s.store != nil {
		if resumed {
			if prev, err := s.store.LatestIncompleteSummary(dir); err == nil && prev != nil {
				logger.Infof("Scan %s resumes after incomplete scan %s (%d/%d processed)",
					scanID, prev.ID, prev.Processed, prev.TotalFiles)
			}
		}
		if err := s.store.CreateSummary(summary); err != nil {
			logger.Warnf("Result store unavailable, continuing without it: %v", err)
		}
	}

	var pending []domain.MediaFile
	for _, f := range files {
		if !cp.IsProcessed(f.Path) {
			pending = append(pending, f)
		}
	}
	if resumed {
		logger.Infof("Scan %s: resuming, %d of %d files already processed",
			scanID, cp.ProcessedCount(), len(files))
	}

	if s.metrics != nil {
		s.metrics.ScanStarted(string(opts.Mode))
	}

	workerCtx, cancelWorkers := context.WithCancel(ctx)
	defer cancelWorkers()

	jobs := make(chan domain.MediaFile)
	results := make(chan outcome)
	var wg sync.WaitGroup

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for f := range jobs {
				out := s.processFile(workerCtx, f, opts)
				if out == nil {
					continue // cancelled mid-file; stays unprocessed
				}
				select {
				case results <- *out:
				case <-workerCtx.Done():
					return
				}
			}
		}()
	}

	go func() {
		defer close(jobs)
		for _, f := range pending {
			select {
			case jobs <- f:
			case <-workerCtx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	// Coordinator: the single writer for the checkpoint, counters, sinks
	// and the progress callback. Completion order across files is whatever
	// the workers produce; everything stateful is serialized here.
	var corrupt, healthy, rejected int
	index := cp.ProcessedCount()
	var checkpointErr error

	for out := range results {
		if checkpointErr != nil {
			continue // draining after fatal persistence failure
		}

		index++
		switch {
		case out.verdict != nil:
			if out.verdict.IsCorrupt {
				corrupt++
			} else {
				healthy++
			}
			s.recordVerdict(scanID, out, index)
			if s.metrics != nil {
				s.metrics.FileProcessed(out.verdict.Status(), string(out.verdict.Depth))
			}
			if opts.OnVerdict != nil {
				opts.OnVerdict(out.verdict)
			}
		case out.rejection != nil:
			rejected++
			s.recordRejection(scanID, out, index)
			if s.metrics != nil {
				s.metrics.FileProcessed(domain.StatusRejected, "")
			}
		}

		cp.MarkProcessed(out.file.Path)
		if err := s.checkpoints.Save(cp); err != nil {
			// A checkpoint that cannot be written compromises resume;
			// surface it and stop scheduling more work.
			logger.Errorf("Checkpoint save failed, aborting scan: %v", err)
			checkpointErr = err
			cancelWorkers()
			continue
		}

		emit(domain.ScanProgress{
			CurrentFile: out.file.Path,
			Processed:   cp.ProcessedCount(),
			Total:       len(files),
			Corrupt:     corrupt,
			Rejected:    rejected,
			Phase:       domain.PhaseScanning,
		})
	}

	emit(domain.ScanProgress{
		Processed: cp.ProcessedCount(),
		Total:     len(files),
		Corrupt:   corrupt,
		Rejected:  rejected,
		Phase:     domain.PhaseFinalizing,
	})

	summary.Processed = cp.ProcessedCount()
	summary.Corrupt = corrupt
	summary.Healthy = healthy
	summary.Rejected = rejected
	summary.CompletedAt = s.clk.Now()
	summary.Duration = summary.CompletedAt.Sub(summary.StartedAt)
	summary.Complete = ctx.Err() == nil && checkpointErr == nil &&
		summary.Processed == summary.TotalFiles

	if s.cache != nil {
		s.cache.Flush()
	}

	if s.store != nil {
		if err := s.store.FinalizeSummary(summary); err != nil {
			logger.Warnf("Failed to finalize scan summary: %v", err)
		}
	}
	if s.appender != nil {
		if err := s.appender.Close(); err != nil {
			logger.Warnf("Failed to close result sinks: %v", err)
		}
	}

	if summary.Complete {
		if err := s.checkpoints.Delete(dir); err != nil {
			logger.Warnf("Failed to delete checkpoint after completion: %v", err)
		}
	} else {
		logger.Infof("Scan %s incomplete (%d/%d), checkpoint preserved",
			scanID, summary.Processed, summary.TotalFiles)
	}

	if s.metrics != nil {
		outcomeLabel := "completed"
		if !summary.Complete {
			outcomeLabel = "interrupted"
		}
		s.metrics.ScanCompleted(outcomeLabel, summary.Duration, corrupt)
	}

	if checkpointErr != nil {
		return summary, fmt.Errorf("checkpoint persistence failed: %w", checkpointErr)
	}
	return summary, nil
}

// prepareCheckpoint builds the run's checkpoint, folding in a previous
// checkpoint's processed set when resuming. The previous processed set is
// used purely as a skip-list keyed by path: files that vanished from disk
// are dropped, new files are scheduled normally.
func (s *Scanner) prepareCheckpoint(dir string, files []domain.MediaFile, scanID string, startedAt time.Time, opts Options) (*checkpoint.Checkpoint, bool, error) {
	meta := checkpoint.Metadata{
		ScanID:    scanID,
		StartedAt: startedAt,
		ToolPath:  opts.ToolPath,
		Mode:      string(opts.Mode),
	}
	cp := checkpoint.New(dir, files, meta)

	resumed := false
	if opts.Resume {
		prev, err := s.checkpoints.Load(dir)
		if err != nil {
			return nil, false, fmt.Errorf("cannot resume: %w", err)
		}
		if prev != nil {
			for _, p := range prev.Processed {
				cp.MarkProcessed(p)
			}
			cp.Metadata.Resumed = true
			resumed = true
		}
	}

	if err := s.checkpoints.Save(cp); err != nil {
		return nil, false, fmt.Errorf("cannot write checkpoint: %w", err)
	}
	return cp, resumed, nil
}

func (s *Scanner) recordVerdict(summaryID string, out outcome, index int) {
	if s.appender != nil {
		if err := s.appender.Append(sink.FromVerdict(out.verdict, index)); err != nil {
			logger.Warnf("Result sink append failed for %s: %v", out.file.Path, err)
		}
	}
	if s.store != nil {
		if err := s.store.RecordVerdict(summaryID, out.verdict, out.file.Size); err != nil {
			logger.Warnf("Result store write failed for %s: %v", out.file.Path, err)
		}
	}
}

func (s *Scanner) recordRejection(summaryID string, out outcome, index int) {
	if s.appender != nil {
		if err := s.appender.Append(sink.FromRejection(out.rejection, index)); err != nil {
			logger.Warnf("Result sink append failed for %s: %v", out.file.Path, err)
		}
	}
	if s.store != nil {
		if err := s.store.RecordRejection(summaryID, out.rejection, out.file.Size); err != nil {
			logger.Warnf("Result store write failed for %s: %v", out.file.Path, err)
		}
	}
}
