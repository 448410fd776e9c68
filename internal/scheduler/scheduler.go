// Package scheduler runs recurring scans from configured cron entries.
package scheduler

import (
	"context"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"

	"github.com/mescon/Scanarr/internal/config"
	"github.com/mescon/Scanarr/internal/domain"
	"github.com/mescon/Scanarr/internal/logger"
)

// RunFunc executes one scheduled scan. The scheduler serializes calls, so
// overlapping triggers never race on the same checkpoint.
type RunFunc func(ctx context.Context, directory string, mode domain.ScanMode) error

// Scheduler drives config-defined schedules through robfig/cron.
type Scheduler struct {
	cron *cron.Cron
	run  RunFunc

	mu      sync.Mutex
	running bool
	ctx     context.Context
	cancel  context.CancelFunc
}

// New validates every entry up front so a typo in one cron expression is a
// startup error, not a silently dead schedule.
func New(entries []config.ScheduleEntry, run RunFunc) (*Scheduler, error) {
	s := &Scheduler{cron: cron.New(), run: run}
	s.ctx, s.cancel = context.WithCancel(context.Background())

	for i, e := range entries {
		if _, err := cron.ParseStandard(e.Cron); err != nil {
			return nil, fmt.Errorf("schedule %d: invalid cron expression %q: %w", i, e.Cron, err)
		}
		if e.Directory == "" {
			return nil, fmt.Errorf("schedule %d: directory is required", i)
		}
		entry := e
		mode := domain.ScanMode(entry.Mode)
		if _, err := s.cron.AddFunc(entry.Cron, func() { s.trigger(entry.Directory, mode) }); err != nil {
			return nil, fmt.Errorf("schedule %d: %w", i, err)
		}
	}
	return s, nil
}

// Start begins firing schedules. No-op when none are configured.
func (s *Scheduler) Start() {
	if len(s.cron.Entries()) == 0 {
		return
	}
	logger.Infof("Scheduler started with %d scan schedules", len(s.cron.Entries()))
	s.cron.Start()
}

// Stop halts future triggers and cancels an in-flight scheduled scan.
func (s *Scheduler) Stop() {
	s.cron.Stop()
	s.cancel()
}

func (s *Scheduler) trigger(directory string, mode domain.ScanMode) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		logger.Warnf("Skipping scheduled scan of %s: previous scan still running", directory)
		return
	}
	s.running = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	logger.Infof("Executing scheduled %s scan of %s", mode, directory)
	if err := s.run(s.ctx, directory, mode); err != nil {
		logger.Errorf("Scheduled scan of %s failed: %v", directory, err)
	}
}
