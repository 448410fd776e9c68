package checkpoint

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mescon/Scanarr/internal/domain"
)

func mediaFiles(paths ...string) []domain.MediaFile {
	files := make([]domain.MediaFile, 0, len(paths))
	for _, p := range paths {
		files = append(files, domain.NewMediaFile(p, 1024, time.Now()))
	}
	return files
}

func TestCheckpoint_MarkProcessed(t *testing.T) {
	cp := New("/media/tv", mediaFiles("/media/tv/a.mkv", "/media/tv/b.mkv"), Metadata{ScanID: "s1"})

	assert.Equal(t, 0, cp.ProcessedCount())
	assert.False(t, cp.IsProcessed("/media/tv/a.mkv"))

	cp.MarkProcessed("/media/tv/a.mkv")
	assert.True(t, cp.IsProcessed("/media/tv/a.mkv"))
	assert.Equal(t, 1, cp.ProcessedCount())

	// Duplicates and paths outside the enumerated set are ignored; the
	// processed set stays a subset of the file set.
	cp.MarkProcessed("/media/tv/a.mkv")
	cp.MarkProcessed("/media/tv/not-enumerated.mkv")
	assert.Equal(t, 1, cp.ProcessedCount())
	assert.Equal(t, []string{"/media/tv/a.mkv"}, cp.Processed)
}

func TestCheckpoint_ProcessedSubsetInvariant(t *testing.T) {
	files := mediaFiles("/m/a.mkv", "/m/b.mkv", "/m/c.mkv")
	cp := New("/m", files, Metadata{})

	for _, p := range []string{"/m/c.mkv", "/m/a.mkv", "/m/zzz.mkv", "/m/b.mkv", "/m/c.mkv"} {
		cp.MarkProcessed(p)
	}

	require.Equal(t, 3, cp.ProcessedCount())
	for _, p := range cp.Processed {
		assert.True(t, cp.fileSet[p], "processed path %s must be enumerated", p)
	}
}

func TestStore_SaveLoadRoundtrip(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	files := mediaFiles("/media/movies/a.mkv", "/media/movies/b.mp4")
	cp := New("/media/movies", files, Metadata{
		ScanID:   "scan-1",
		ToolPath: "/usr/bin/ffmpeg",
		Mode:     "hybrid",
	})
	cp.MarkProcessed("/media/movies/a.mkv")

	require.NoError(t, store.Save(cp))
	assert.True(t, store.Exists("/media/movies"))
	assert.False(t, cp.LastUpdated.IsZero())

	loaded, err := store.Load("/media/movies")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, "/media/movies", loaded.Directory)
	assert.Equal(t, "scan-1", loaded.Metadata.ScanID)
	assert.Equal(t, "hybrid", loaded.Metadata.Mode)
	assert.Equal(t, 2, loaded.TotalFiles)
	assert.True(t, loaded.IsProcessed("/media/movies/a.mkv"))
	assert.False(t, loaded.IsProcessed("/media/movies/b.mp4"))

	// The rebuilt indexes keep enforcing the subset invariant.
	loaded.MarkProcessed("/media/movies/stranger.mkv")
	assert.Equal(t, 1, loaded.ProcessedCount())
	loaded.MarkProcessed("/media/movies/b.mp4")
	assert.Equal(t, 2, loaded.ProcessedCount())
}

func TestStore_LoadMissingIsNil(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	cp, err := store.Load("/never/scanned")
	require.NoError(t, err)
	assert.Nil(t, cp)
}

func TestStore_LoadCorruptIsError(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(store.fileFor("/media/tv"), []byte("{broken"), 0644))

	_, err = store.Load("/media/tv")
	assert.Error(t, err, "an unreadable checkpoint must not silently restart the scan")
}

func TestStore_Delete(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	cp := New("/media/tv", mediaFiles("/media/tv/a.mkv"), Metadata{})
	require.NoError(t, store.Save(cp))
	require.True(t, store.Exists("/media/tv"))

	require.NoError(t, store.Delete("/media/tv"))
	assert.False(t, store.Exists("/media/tv"))

	// Deleting again is fine.
	assert.NoError(t, store.Delete("/media/tv"))
}

func TestStore_DistinctDirectoriesDistinctFiles(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	a := New("/media/tv", mediaFiles("/media/tv/a.mkv"), Metadata{ScanID: "a"})
	b := New("/media/movies", mediaFiles("/media/movies/b.mkv"), Metadata{ScanID: "b"})
	require.NoError(t, store.Save(a))
	require.NoError(t, store.Save(b))

	gotA, err := store.Load("/media/tv")
	require.NoError(t, err)
	gotB, err := store.Load("/media/movies")
	require.NoError(t, err)
	assert.Equal(t, "a", gotA.Metadata.ScanID)
	assert.Equal(t, "b", gotB.Metadata.ScanID)
}

func TestStore_SaveLeavesNoTempFile(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir)
	require.NoError(t, err)

	cp := New("/media/tv", mediaFiles("/media/tv/a.mkv"), Metadata{})
	require.NoError(t, store.Save(cp))

	entries, err := os.ReadDir(store.dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.NotContains(t, entries[0].Name(), ".tmp")
}
