// Package tool invokes the external probe and decode-validate commands.
// It owns process lifetime: every spawned tool is guaranteed to be reaped,
// and a timeout is reported as evidence rather than swallowed.
package tool

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/mescon/Scanarr/internal/domain"
)

// DecodeReport is the raw outcome of one decode-validate run. The classifier
// interprets it; the adapter never judges corruption itself.
type DecodeReport struct {
	ExitCode   int           `json:"exit_code"`
	Diagnostic string        `json:"diagnostic"`
	Elapsed    time.Duration `json:"elapsed"`
	TimedOut   bool          `json:"timed_out"`
}

// Adapter abstracts the external media tools so the orchestrator and tests
// can run without ffmpeg installed.
type Adapter interface {
	// Probe runs the metadata probe. A failed probe is reported through the
	// result's Success/Message fields, never as a raw exec error.
	Probe(ctx context.Context, path string, timeout time.Duration) *domain.ProbeResult

	// DecodeCheck runs the decode-validate command at the given depth and
	// captures exit code, combined diagnostic text and elapsed time.
	DecodeCheck(ctx context.Context, path string, depth domain.Depth, timeout time.Duration) DecodeReport
}

// ValidatePath ensures a file path is safe to hand to a subprocess. Commands
// are spawned directly (no shell), so the concerns are null bytes, newlines
// and relative paths.
func ValidatePath(path string) error {
	if !filepath.IsAbs(path) {
		return fmt.Errorf("path must be absolute: %s", path)
	}
	if strings.Contains(path, "\x00") {
		return fmt.Errorf("path contains null byte: %s", path)
	}
	if strings.Contains(path, "\n") || strings.Contains(path, "\r") {
		return fmt.Errorf("path contains newline: %s", path)
	}
	return nil
}
