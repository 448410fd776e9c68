package domain

import (
	"path/filepath"
	"time"
)

// ScanMode selects how far the engine is willing to decode a file.
type ScanMode string

const (
	// ModeQuick runs only the fast partial-decode pass.
	ModeQuick ScanMode = "quick"
	// ModeDeep runs the full decode pass for every eligible file.
	ModeDeep ScanMode = "deep"
	// ModeHybrid runs the quick pass and escalates ambiguous results to deep.
	ModeHybrid ScanMode = "hybrid"
)

// Depth is the decode depth of an individual check.
type Depth string

const (
	DepthQuick Depth = "quick"
	DepthDeep  Depth = "deep"
)

// MediaFile identifies one enumerated file. Identity is the resolved path.
type MediaFile struct {
	Path    string    `json:"path"`
	Name    string    `json:"name"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"mod_time"`
}

// NewMediaFile builds a MediaFile from a path and stat data.
func NewMediaFile(path string, size int64, modTime time.Time) MediaFile {
	return MediaFile{
		Path:    path,
		Name:    filepath.Base(path),
		Size:    size,
		ModTime: modTime,
	}
}

// Stream describes one stream reported by the metadata probe.
type Stream struct {
	Index    int     `json:"index"`
	Type     string  `json:"type"` // "video", "audio", "subtitle", ...
	Codec    string  `json:"codec"`
	Width    int     `json:"width,omitempty"`
	Height   int     `json:"height,omitempty"`
	Duration float64 `json:"duration,omitempty"`
}

// FormatInfo describes the container reported by the metadata probe.
type FormatInfo struct {
	Name     string  `json:"name"`
	Duration float64 `json:"duration"`
	Size     int64   `json:"size"`
	BitRate  int64   `json:"bit_rate"`
}

// ProbeResult is the outcome of one metadata probe. A failed probe carries a
// message instead of stream data and marks the file ineligible for decode
// checks.
type ProbeResult struct {
	Path     string     `json:"path"`
	Success  bool       `json:"success"`
	Message  string     `json:"message,omitempty"`
	Streams  []Stream   `json:"streams,omitempty"`
	Format   FormatInfo `json:"format"`
	ProbedAt time.Time  `json:"probed_at"`
}

// HasDecodableStream reports whether the probe found at least one video or
// audio stream, which is the eligibility requirement for decode checks.
func (p *ProbeResult) HasDecodableStream() bool {
	if p == nil || !p.Success {
		return false
	}
	for _, s := range p.Streams {
		if s.Type == "video" || s.Type == "audio" {
			return true
		}
	}
	return false
}

// Verdict status labels used in result sinks.
const (
	StatusHealthy    = "healthy"
	StatusCorrupt    = "corrupt"
	StatusSuspicious = "suspicious"
	StatusRejected   = "rejected"
)

// Verdict is the classifier's structured conclusion about one file.
type Verdict struct {
	Path             string        `json:"path"`
	IsCorrupt        bool          `json:"is_corrupt"`
	Confidence       float64       `json:"confidence"`
	NeedsDeeperCheck bool          `json:"needs_deeper_check"`
	Issues           []string      `json:"issues,omitempty"`
	Message          string        `json:"message,omitempty"`
	Depth            Depth         `json:"depth"`
	DepthsRun        []Depth       `json:"depths_run,omitempty"`
	Elapsed          time.Duration `json:"elapsed"`
	Timestamp        time.Time     `json:"timestamp"`
}

// Status maps the verdict onto a coarse sink label.
func (v *Verdict) Status() string {
	switch {
	case v.IsCorrupt:
		return StatusCorrupt
	case v.NeedsDeeperCheck:
		return StatusSuspicious
	default:
		return StatusHealthy
	}
}

// Rejection records a file that was enumerated but never decode-checked.
type Rejection struct {
	Path      string    `json:"path"`
	Reason    string    `json:"reason"`
	Timestamp time.Time `json:"timestamp"`
}

// FileState tracks one file through the scan pipeline.
type FileState int

const (
	StateDiscovered FileState = iota
	StateProbed
	StateEligible
	StateRejected
	StateQuickScanned
	StateNeedsDeep
	StateDeepScanned
	StateHealthyFinal
	StateCorruptFinal
)

// String returns the state name for logs and progress events.
func (s FileState) String() string {
	switch s {
	case StateDiscovered:
		return "discovered"
	case StateProbed:
		return "probed"
	case StateEligible:
		return "eligible"
	case StateRejected:
		return "rejected"
	case StateQuickScanned:
		return "quick_scanned"
	case StateNeedsDeep:
		return "needs_deep"
	case StateDeepScanned:
		return "deep_scanned"
	case StateHealthyFinal:
		return "healthy"
	case StateCorruptFinal:
		return "corrupt"
	default:
		return "unknown"
	}
}

// Terminal reports whether a file in this state is done being processed.
func (s FileState) Terminal() bool {
	switch s {
	case StateRejected, StateHealthyFinal, StateCorruptFinal:
		return true
	}
	return false
}

// ScanPhase labels the coarse stage reported through the progress callback.
type ScanPhase string

const (
	PhaseEnumerating ScanPhase = "enumerating"
	PhaseScanning    ScanPhase = "scanning"
	PhaseFinalizing  ScanPhase = "finalizing"
)

// ScanProgress is the ephemeral per-file progress snapshot delivered through
// the orchestrator's callback. It is never persisted.
type ScanProgress struct {
	ScanID      string    `json:"scan_id"`
	Directory   string    `json:"directory"`
	CurrentFile string    `json:"current_file"`
	Processed   int       `json:"processed"`
	Total       int       `json:"total"`
	Corrupt     int       `json:"corrupt"`
	Rejected    int       `json:"rejected"`
	Phase       ScanPhase `json:"phase"`
}

// ScanSummary is the durable roll-up for one scan run.
type ScanSummary struct {
	ID          string        `json:"id"`
	Directory   string        `json:"directory"`
	Mode        ScanMode      `json:"mode"`
	TotalFiles  int           `json:"total_files"`
	Processed   int           `json:"processed"`
	Corrupt     int           `json:"corrupt"`
	Healthy     int           `json:"healthy"`
	Rejected    int           `json:"rejected"`
	StartedAt   time.Time     `json:"started_at"`
	CompletedAt time.Time     `json:"completed_at"`
	Duration    time.Duration `json:"duration"`
	Complete    bool          `json:"complete"`
	Resumed     bool          `json:"resumed"`
}

// SuccessRate is the fraction of processed files that came back healthy.
// Rejected files count against the rate; an empty scan reports 1.0.
func (s *ScanSummary) SuccessRate() float64 {
	if s.Processed == 0 {
		return 1.0
	}
	return float64(s.Healthy) / float64(s.Processed)
}
