package probecache

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mescon/Scanarr/internal/domain"
	"github.com/mescon/Scanarr/internal/testutil"
)

func probeAt(path string, at time.Time) *domain.ProbeResult {
	return &domain.ProbeResult{
		Path:     path,
		Success:  true,
		Streams:  []domain.Stream{{Index: 0, Type: "video", Codec: "h264"}},
		ProbedAt: at,
	}
}

func fileAt(path string, modTime time.Time) domain.MediaFile {
	return domain.NewMediaFile(path, 1024, modTime)
}

func TestCache_PutGet(t *testing.T) {
	clk := testutil.NewMockClockAt(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	c, err := Open(t.TempDir(), time.Hour, clk)
	require.NoError(t, err)

	modTime := clk.Now().Add(-time.Hour)
	c.Put(probeAt("/media/a.mkv", clk.Now()))

	got := c.Get(fileAt("/media/a.mkv", modTime))
	require.NotNil(t, got)
	assert.Equal(t, "/media/a.mkv", got.Path)
	assert.Nil(t, c.Get(fileAt("/media/missing.mkv", modTime)))
}

func TestCache_TTLExpiry(t *testing.T) {
	clk := testutil.NewMockClockAt(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	c, err := Open(t.TempDir(), time.Hour, clk)
	require.NoError(t, err)

	modTime := clk.Now().Add(-24 * time.Hour)
	c.Put(probeAt("/media/a.mkv", clk.Now()))

	clk.Advance(59 * time.Minute)
	assert.NotNil(t, c.Get(fileAt("/media/a.mkv", modTime)), "within TTL")

	clk.Advance(2 * time.Minute)
	assert.Nil(t, c.Get(fileAt("/media/a.mkv", modTime)), "past TTL")
	assert.Equal(t, 0, c.Len(), "expired entry must be evicted")
}

func TestCache_ModifiedFileInvalidates(t *testing.T) {
	clk := testutil.NewMockClockAt(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	c, err := Open(t.TempDir(), time.Hour, clk)
	require.NoError(t, err)

	probedAt := clk.Now()
	c.Put(probeAt("/media/a.mkv", probedAt))

	// File rewritten after the probe: the cached entry describes stale
	// bytes and must not be served.
	rewritten := fileAt("/media/a.mkv", probedAt.Add(time.Minute))
	assert.Nil(t, c.Get(rewritten))
	assert.Equal(t, 0, c.Len())
}

func TestCache_FlushAndReload(t *testing.T) {
	dir := t.TempDir()
	clk := testutil.NewMockClockAt(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))

	c, err := Open(dir, time.Hour, clk)
	require.NoError(t, err)
	c.Put(probeAt("/media/a.mkv", clk.Now()))
	c.Put(probeAt("/media/b.mkv", clk.Now()))
	c.Flush()

	// No stray temp file after a successful flush.
	_, err = os.Stat(filepath.Join(dir, "probe_cache.json.tmp"))
	assert.True(t, os.IsNotExist(err))

	reloaded, err := Open(dir, time.Hour, clk)
	require.NoError(t, err)
	assert.Equal(t, 2, reloaded.Len())
	got := reloaded.Get(fileAt("/media/a.mkv", clk.Now().Add(-time.Hour)))
	require.NotNil(t, got)
	assert.True(t, got.Success)
	require.Len(t, got.Streams, 1)
	assert.Equal(t, "video", got.Streams[0].Type)
}

func TestCache_FlushSkipsWhenClean(t *testing.T) {
	dir := t.TempDir()
	clk := testutil.NewMockClock()
	c, err := Open(dir, time.Hour, clk)
	require.NoError(t, err)

	c.Flush()
	_, err = os.Stat(filepath.Join(dir, "probe_cache.json"))
	assert.True(t, os.IsNotExist(err), "nothing dirty, nothing written")
}

func TestCache_CorruptFileStartsEmpty(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "probe_cache.json"), []byte("{not json"), 0644))

	c, err := Open(dir, time.Hour, testutil.NewMockClock())
	require.NoError(t, err, "a corrupt cache only costs re-probing")
	assert.Equal(t, 0, c.Len())
}

func TestCache_FlushWritesValidJSON(t *testing.T) {
	dir := t.TempDir()
	clk := testutil.NewMockClockAt(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	c, err := Open(dir, time.Hour, clk)
	require.NoError(t, err)
	c.Put(probeAt("/media/a.mkv", clk.Now()))
	c.Flush()

	data, err := os.ReadFile(filepath.Join(dir, "probe_cache.json"))
	require.NoError(t, err)
	var entries map[string]*domain.ProbeResult
	require.NoError(t, json.Unmarshal(data, &entries))
	assert.Contains(t, entries, "/media/a.mkv")
}

func TestCache_ClearExpired(t *testing.T) {
	clk := testutil.NewMockClockAt(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	c, err := Open(t.TempDir(), time.Hour, clk)
	require.NoError(t, err)

	c.Put(probeAt("/media/old.mkv", clk.Now().Add(-2*time.Hour)))
	c.Put(probeAt("/media/fresh.mkv", clk.Now()))

	assert.Equal(t, 1, c.ClearExpired())
	assert.Equal(t, 1, c.Len())
}

func TestCache_InvalidateAndClearAll(t *testing.T) {
	clk := testutil.NewMockClock()
	c, err := Open(t.TempDir(), 0, clk)
	require.NoError(t, err)

	c.Put(probeAt("/media/a.mkv", clk.Now()))
	c.Put(probeAt("/media/b.mkv", clk.Now()))

	c.Invalidate("/media/a.mkv")
	assert.Equal(t, 1, c.Len())
	c.Invalidate("/media/a.mkv") // already gone, no-op

	c.ClearAll()
	assert.Equal(t, 0, c.Len())
}
