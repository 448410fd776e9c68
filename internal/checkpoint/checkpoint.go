// Package checkpoint persists scan progress so an interrupted multi-hour
// scan resumes without reprocessing files it already finished.
package checkpoint

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/mescon/Scanarr/internal/domain"
)

// Metadata records the circumstances of the checkpointed run.
type Metadata struct {
	ScanID    string    `json:"scan_id"`
	StartedAt time.Time `json:"started_at"`
	Platform  string    `json:"platform"`
	ToolPath  string    `json:"tool_path"`
	Mode      string    `json:"mode"`
	Resumed   bool      `json:"resumed"`
}

// fileEntry is the persisted shape of one enumerated file.
type fileEntry struct {
	Name string `json:"name"`
	Path string `json:"path"`
}

// Checkpoint is the durable record of one directory scan: the full
// enumerated set plus the subset already processed. The processed set is
// always a subset of the enumerated set and only ever grows within a run.
type Checkpoint struct {
	Directory   string    `json:"directory"`
	Metadata    Metadata  `json:"scan_metadata"`
	TotalFiles  int       `json:"total_files"`
	Files       []fileEntry `json:"files"`
	Processed   []string  `json:"processed"`
	LastUpdated time.Time `json:"last_updated"`

	processedSet map[string]bool
	fileSet      map[string]bool
}

// New builds a fresh checkpoint for a directory and its enumerated files.
func New(directory string, files []domain.MediaFile, meta Metadata) *Checkpoint {
	if meta.Platform == "" {
		meta.Platform = runtime.GOOS
	}
	cp := &Checkpoint{
		Directory:    directory,
		Metadata:     meta,
		TotalFiles:   len(files),
		Processed:    []string{},
		processedSet: make(map[string]bool),
		fileSet:      make(map[string]bool, len(files)),
	}
	for _, f := range files {
		cp.Files = append(cp.Files, fileEntry{Name: f.Name, Path: f.Path})
		cp.fileSet[f.Path] = true
	}
	return cp
}

// MarkProcessed adds path to the processed set. Paths outside the
// enumerated set or already processed are ignored, so the subset and
// no-rescheduling invariants hold no matter how callers misbehave.
func (cp *Checkpoint) MarkProcessed(path string) {
	if cp.processedSet[path] || !cp.fileSet[path] {
		return
	}
	cp.processedSet[path] = true
	cp.Processed = append(cp.Processed, path)
}

// IsProcessed reports whether path was already completed this run (or a
// previous run, after a resume).
func (cp *Checkpoint) IsProcessed(path string) bool {
	return cp.processedSet[path]
}

// ProcessedCount returns the size of the processed set.
func (cp *Checkpoint) ProcessedCount() int {
	return len(cp.processedSet)
}

// Store reads and writes checkpoint files under a directory, one file per
// scanned directory. All writes are atomic replaces.
type Store struct {
	dir string
}

// NewStore creates the checkpoint directory under dataDir if needed.
func NewStore(dataDir string) (*Store, error) {
	dir := filepath.Join(dataDir, "checkpoints")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create checkpoint directory: %w", err)
	}
	return &Store{dir: dir}, nil
}

// fileFor derives a stable checkpoint filename from the scanned directory.
func (s *Store) fileFor(directory string) string {
	sum := sha1.Sum([]byte(directory))
	return filepath.Join(s.dir, "scan_"+hex.EncodeToString(sum[:8])+".json")
}

// Exists reports whether a checkpoint is on disk for the directory.
func (s *Store) Exists(directory string) bool {
	_, err := os.Stat(s.fileFor(directory))
	return err == nil
}

// Load reads the checkpoint for directory. A missing checkpoint returns
// (nil, nil); a present-but-unreadable one is an error, because silently
// restarting would reprocess hours of work.
func (s *Store) Load(directory string) (*Checkpoint, error) {
	data, err := os.ReadFile(s.fileFor(directory))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read checkpoint: %w", err)
	}

	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("failed to parse checkpoint: %w", err)
	}

	cp.processedSet = make(map[string]bool, len(cp.Processed))
	for _, p := range cp.Processed {
		cp.processedSet[p] = true
	}
	cp.fileSet = make(map[string]bool, len(cp.Files))
	for _, f := range cp.Files {
		cp.fileSet[f.Path] = true
	}
	return &cp, nil
}

// Save writes the checkpoint atomically: temp file in the same directory,
// then rename over the target.
func (s *Store) Save(cp *Checkpoint) error {
	cp.LastUpdated = time.Now().UTC()

	data, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("failed to marshal checkpoint: %w", err)
	}

	target := s.fileFor(cp.Directory)
	tmp := target + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write checkpoint: %w", err)
	}
	if err := os.Rename(tmp, target); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to replace checkpoint: %w", err)
	}
	return nil
}

// Delete removes the checkpoint for directory. Called on full completion.
func (s *Store) Delete(directory string) error {
	err := os.Remove(s.fileFor(directory))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete checkpoint: %w", err)
	}
	return nil
}
