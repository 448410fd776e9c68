// Package probecache persists metadata probe results so repeated scans of
// large trees skip the expensive ffprobe call for unchanged files.
package probecache

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/mescon/Scanarr/internal/clock"
	"github.com/mescon/Scanarr/internal/domain"
	"github.com/mescon/Scanarr/internal/logger"
)

// cacheFileName is the on-disk cache file under the data directory.
const cacheFileName = "probe_cache.json"

// Cache is a mutex-protected map from resolved path to the last probe,
// backed by a JSON file written atomically. Disk persistence is best-effort:
// a failed write is logged and tolerated, never fatal.
type Cache struct {
	mu      sync.Mutex
	entries map[string]*domain.ProbeResult
	path    string
	ttl     time.Duration
	clk     clock.Clock
	dirty   bool
}

// Open loads (or creates) the cache file under dataDir. Entries older than
// ttl are considered expired on read.
func Open(dataDir string, ttl time.Duration, clk clock.Clock) (*Cache, error) {
	if clk == nil {
		clk = clock.NewRealClock()
	}
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	c := &Cache{
		entries: make(map[string]*domain.ProbeResult),
		path:    filepath.Join(dataDir, cacheFileName),
		ttl:     ttl,
		clk:     clk,
	}

	data, err := os.ReadFile(c.path)
	if err != nil {
		if os.IsNotExist(err) {
			return c, nil
		}
		return nil, fmt.Errorf("failed to read probe cache: %w", err)
	}
	if err := json.Unmarshal(data, &c.entries); err != nil {
		// A corrupt cache file only costs re-probing; start fresh.
		logger.Warnf("Probe cache unreadable, starting empty: %v", err)
		c.entries = make(map[string]*domain.ProbeResult)
	}
	return c, nil
}

// Get returns the cached probe for file, or nil if there is none, it has
// aged past the TTL, or the file has been modified since it was probed.
// Stale entries are evicted on the way out.
func (c *Cache) Get(file domain.MediaFile) *domain.ProbeResult {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[file.Path]
	if !ok {
		return nil
	}

	now := c.clk.Now()
	if c.ttl > 0 && now.Sub(entry.ProbedAt) > c.ttl {
		delete(c.entries, file.Path)
		c.dirty = true
		return nil
	}
	// A probe taken before the file's current mtime describes an older
	// version of the file and must never be served.
	if file.ModTime.After(entry.ProbedAt) {
		delete(c.entries, file.Path)
		c.dirty = true
		return nil
	}
	return entry
}

// Put upserts a probe result keyed by its resolved path.
func (c *Cache) Put(result *domain.ProbeResult) {
	if result == nil || result.Path == "" {
		return
	}
	c.mu.Lock()
	c.entries[result.Path] = result
	c.dirty = true
	c.mu.Unlock()
}

// Invalidate drops the entry for path if present.
func (c *Cache) Invalidate(path string) {
	c.mu.Lock()
	if _, ok := c.entries[path]; ok {
		delete(c.entries, path)
		c.dirty = true
	}
	c.mu.Unlock()
}

// ClearExpired drops every TTL-expired entry and returns how many went.
func (c *Cache) ClearExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.ttl <= 0 {
		return 0
	}
	now := c.clk.Now()
	removed := 0
	for path, entry := range c.entries {
		if now.Sub(entry.ProbedAt) > c.ttl {
			delete(c.entries, path)
			removed++
		}
	}
	if removed > 0 {
		c.dirty = true
	}
	return removed
}

// ClearAll empties the cache.
func (c *Cache) ClearAll() {
	c.mu.Lock()
	if len(c.entries) > 0 {
		c.entries = make(map[string]*domain.ProbeResult)
		c.dirty = true
	}
	c.mu.Unlock()
}

// Len returns the number of live entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Flush writes the cache to disk if it changed since the last flush. The
// write goes to a temp file first and is renamed into place so a crash
// mid-write never corrupts the cache.
func (c *Cache) Flush() {
	c.mu.Lock()
	if !c.dirty {
		c.mu.Unlock()
		return
	}
	data, err := json.MarshalIndent(c.entries, "", "  ")
	c.dirty = false
	c.mu.Unlock()

	if err != nil {
		logger.Debugf("Probe cache marshal failed: %v", err)
		return
	}

	tmp := c.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		logger.Debugf("Probe cache write failed: %v", err)
		return
	}
	if err := os.Rename(tmp, c.path); err != nil {
		logger.Debugf("Probe cache rename failed: %v", err)
		_ = os.Remove(tmp)
	}
}
