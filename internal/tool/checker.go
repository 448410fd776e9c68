package tool

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"github.com/mescon/Scanarr/internal/logger"
)

// Status reports the availability of one external tool.
type Status struct {
	Name        string `json:"name"`
	Available   bool   `json:"available"`
	Path        string `json:"path,omitempty"`
	Version     string `json:"version,omitempty"`
	Required    bool   `json:"required"`
	Description string `json:"description"`
}

// Checker verifies the external tools before a scan starts. A missing
// required tool fails the whole run up front.
type Checker struct {
	mu          sync.RWMutex
	tools       map[string]*Status
	ffprobePath string
	ffmpegPath  string
}

// NewChecker creates a checker using PATH lookup for both binaries.
func NewChecker() *Checker {
	return NewCheckerWithPaths("ffprobe", "ffmpeg")
}

// NewCheckerWithPaths creates a checker with explicit binary locations.
// Bare names use PATH lookup, absolute paths are checked directly.
func NewCheckerWithPaths(ffprobePath, ffmpegPath string) *Checker {
	return &Checker{
		tools:       make(map[string]*Status),
		ffprobePath: ffprobePath,
		ffmpegPath:  ffmpegPath,
	}
}

func resolveBinaryPath(binaryPath string) (string, error) {
	if filepath.IsAbs(binaryPath) {
		if _, err := os.Stat(binaryPath); err != nil {
			return "", err
		}
		return binaryPath, nil
	}
	return exec.LookPath(binaryPath)
}

// CheckAll probes both tools and caches the results.
func (c *Checker) CheckAll() map[string]*Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.tools["ffprobe"] = c.check("ffprobe", c.ffprobePath, "Metadata probe (streams, container, duration)")
	c.tools["ffmpeg"] = c.check("ffmpeg", c.ffmpegPath, "Decode validation (quick and deep passes)")
	return c.tools
}

// Verify runs CheckAll and returns an error naming any missing required tool.
// Call before per-file work starts.
func (c *Checker) Verify() error {
	c.CheckAll()

	c.mu.RLock()
	defer c.mu.RUnlock()
	var missing []string
	for name, t := range c.tools {
		if t.Required && !t.Available {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("required tools unavailable: %s", strings.Join(missing, ", "))
	}

	for _, t := range c.tools {
		logger.Infof("Tool %s %s at %s", t.Name, t.Version, t.Path)
	}
	return nil
}

// ToolStatus returns a copy of the cached statuses.
func (c *Checker) ToolStatus() map[string]*Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]*Status, len(c.tools))
	for k, v := range c.tools {
		cp := *v
		out[k] = &cp
	}
	return out
}

var versionRe = regexp.MustCompile(`version\s+(\S+)`)

func (c *Checker) check(name, binaryPath, description string) *Status {
	status := &Status{
		Name:        name,
		Required:    true,
		Description: description,
	}

	path, err := resolveBinaryPath(binaryPath)
	if err != nil {
		logger.Debugf("%s not found at %s: %v", name, binaryPath, err)
		return status
	}
	status.Available = true
	status.Path = path

	// First line looks like "ffprobe version 6.1.1 Copyright ...".
	cmd := exec.Command(path, "-version")
	var out bytes.Buffer
	cmd.Stdout = &out
	if cmd.Run() == nil {
		firstLine := strings.Split(out.String(), "\n")[0]
		if m := versionRe.FindStringSubmatch(firstLine); len(m) > 1 {
			status.Version = m[1]
		}
	}
	return status
}
