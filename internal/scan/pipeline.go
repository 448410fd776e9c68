package scan

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/mescon/Scanarr/internal/classify"
	"github.com/mescon/Scanarr/internal/domain"
	"github.com/mescon/Scanarr/internal/logger"
)

// sizeSettleDelay is how long a file's size must hold steady before a
// recently-modified file is considered safe to open.
const sizeSettleDelay = 500 * time.Millisecond

// resolveDirectory validates the scan root before any work starts.
func resolveDirectory(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("scan directory is required")
	}
	dir, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("invalid scan directory %q: %w", path, err)
	}
	info, err := os.Stat(dir)
	if err != nil {
		return "", fmt.Errorf("scan directory inaccessible: %w", err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("scan path is not a directory: %s", dir)
	}
	if _, err := os.ReadDir(dir); err != nil {
		return "", fmt.Errorf("scan directory unreadable: %w", err)
	}
	return dir, nil
}

// enumerate lists candidate files in deterministic (path-sorted) order.
// With ContentFilter set, extension filtering is skipped and every regular
// file is scheduled; the probe stage rejects non-media content.
// Unreadable subdirectories are logged and skipped, not fatal.
func (s *Scanner) enumerate(ctx context.Context, dir string, opts Options) ([]domain.MediaFile, error) {
	allowed := extensionSet(opts.Extensions)
	var files []domain.MediaFile

	consider := func(path string, info fs.FileInfo) {
		if isHiddenOrTempFile(path) {
			return
		}
		if !opts.ContentFilter && !hasAllowedExtension(path, allowed) {
			return
		}
		files = append(files, domain.NewMediaFile(path, info.Size(), info.ModTime()))
	}

	if opts.Recursive {
		err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if err != nil {
				logger.Warnf("Skipping unreadable path %s: %v", path, err)
				if d != nil && d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
			if d.IsDir() || !d.Type().IsRegular() {
				return nil
			}
			info, err := d.Info()
			if err != nil {
				logger.Warnf("Skipping unstatable file %s: %v", path, err)
				return nil
			}
			consider(path, info)
			return nil
		})
		if err != nil {
			return nil, err
		}
	} else {
		entries, err := os.ReadDir(dir)
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if e.IsDir() || !e.Type().IsRegular() {
				continue
			}
			info, err := e.Info()
			if err != nil {
				logger.Warnf("Skipping unstatable file %s: %v", e.Name(), err)
				continue
			}
			consider(filepath.Join(dir, e.Name()), info)
		}
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, nil
}

// processFile takes one file from discovery to a terminal verdict or
// rejection. A nil return means the run was cancelled mid-file; the file
// stays unprocessed in the checkpoint and is retried on resume.
func (s *Scanner) processFile(ctx context.Context, f domain.MediaFile, opts Options) *outcome {
	if ctx.Err() != nil {
		return nil
	}

	if reason := s.unstableFileReason(f, opts); reason != "" {
		logger.Debugf("Skipping %s: %s", f.Path, reason)
		return s.reject(f, reason)
	}

	probe := s.probe(ctx, f, opts)
	if probe == nil {
		return nil
	}
	if !probe.Success {
		return s.reject(f, fmt.Sprintf("probe failed: %s", probe.Message))
	}
	if !probe.HasDecodableStream() {
		return s.reject(f, "no decodable audio or video stream")
	}

	depth := domain.DepthQuick
	timeout := opts.QuickTimeout
	if opts.Mode == domain.ModeDeep {
		depth = domain.DepthDeep
		timeout = opts.DeepTimeout
	}

	report := s.adapter.DecodeCheck(ctx, f.Path, depth, timeout)
	if ctx.Err() != nil {
		return nil
	}
	v := classify.Classify(report.Diagnostic, report.ExitCode, depth, s.rules)
	v.Path = f.Path
	v.Elapsed = report.Elapsed
	v.DepthsRun = []domain.Depth{depth}

	if opts.Mode == domain.ModeHybrid && v.NeedsDeeperCheck {
		logger.Debugf("Escalating %s to deep check (quick confidence %.2f)", f.Path, v.Confidence)
		deepReport := s.adapter.DecodeCheck(ctx, f.Path, domain.DepthDeep, opts.DeepTimeout)
		if ctx.Err() != nil {
			return nil
		}
		dv := classify.Classify(deepReport.Diagnostic, deepReport.ExitCode, domain.DepthDeep, s.rules)
		dv.Path = f.Path
		dv.Elapsed = report.Elapsed + deepReport.Elapsed
		dv.DepthsRun = []domain.Depth{domain.DepthQuick, domain.DepthDeep}
		v = dv
	}

	v.Timestamp = s.clk.Now()
	return &outcome{file: f, verdict: &v}
}

// probe returns metadata for f, consulting the cache first. Only successful
// probes are cached; failures are re-attempted on the next scan. A nil
// return means the run was cancelled.
func (s *Scanner) probe(ctx context.Context, f domain.MediaFile, opts Options) *domain.ProbeResult {
	if s.cache != nil {
		if cached := s.cache.Get(f); cached != nil {
			return cached
		}
	}
	probe := s.adapter.Probe(ctx, f.Path, opts.ProbeTimeout)
	if ctx.Err() != nil {
		return nil
	}
	if probe.Success && s.cache != nil {
		s.cache.Put(probe)
	}
	return probe
}

// unstableFileReason returns a non-empty reason when f looks like it is
// still being written (fresh mtime, or size still changing). Disabled when
// MinFileAge is zero.
func (s *Scanner) unstableFileReason(f domain.MediaFile, opts Options) string {
	if opts.MinFileAge <= 0 {
		return ""
	}
	if age := s.clk.Now().Sub(f.ModTime); age < opts.MinFileAge {
		return fmt.Sprintf("modified %s ago, likely still being written", age.Round(time.Second))
	}
	info, err := os.Stat(f.Path)
	if err != nil {
		return fmt.Sprintf("file vanished before scan: %v", err)
	}
	if info.Size() != f.Size {
		return "file size changed since enumeration, likely still being written"
	}
	time.Sleep(sizeSettleDelay)
	again, err := os.Stat(f.Path)
	if err != nil {
		return fmt.Sprintf("file vanished before scan: %v", err)
	}
	if again.Size() != info.Size() {
		return "file is growing, likely still being written"
	}
	return ""
}

func (s *Scanner) reject(f domain.MediaFile, reason string) *outcome {
	return &outcome{
		file: f,
		rejection: &domain.Rejection{
			Path:      f.Path,
			Reason:    reason,
			Timestamp: s.clk.Now(),
		},
	}
}
