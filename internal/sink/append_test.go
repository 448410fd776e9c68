package sink

import (
	"bufio"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mescon/Scanarr/internal/domain"
)

func sampleVerdict(path string, corrupt bool) *domain.Verdict {
	return &domain.Verdict{
		Path:       path,
		IsCorrupt:  corrupt,
		Confidence: 0.9,
		Message:    "corruption signatures matched: truncated stream",
		Depth:      domain.DepthDeep,
		Elapsed:    1500 * time.Millisecond,
		Timestamp:  time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC),
	}
}

func TestFromVerdict(t *testing.T) {
	rec := FromVerdict(sampleVerdict("/media/tv/ep1.mkv", true), 7)
	assert.Equal(t, "ep1.mkv", rec.Filename)
	assert.Equal(t, "/media/tv/ep1.mkv", rec.Path)
	assert.Equal(t, 7, rec.Index)
	assert.True(t, rec.IsCorrupt)
	assert.Equal(t, domain.StatusCorrupt, rec.Status)
	assert.Equal(t, 1.5, rec.ProcessingTimeSeconds)
}

func TestFromRejection(t *testing.T) {
	rec := FromRejection(&domain.Rejection{
		Path:      "/media/tv/readme.txt",
		Reason:    "no decodable audio or video stream",
		Timestamp: time.Now(),
	}, 3)
	assert.Equal(t, domain.StatusRejected, rec.Status)
	assert.False(t, rec.IsCorrupt)
	assert.Equal(t, "no decodable audio or video stream", rec.Diagnostic)
}

func TestLineLog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scan.log")
	l, err := NewLineLog(path)
	require.NoError(t, err)

	require.NoError(t, l.Append(FromVerdict(sampleVerdict("/media/a.mkv", true), 1)))
	require.NoError(t, l.Append(FromVerdict(sampleVerdict("/media/b.mkv", false), 2)))
	require.NoError(t, l.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "/media/a.mkv")
	assert.Contains(t, lines[0], domain.StatusCorrupt)
	assert.Contains(t, lines[0], "truncated stream")
}

func TestCSVSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scan.csv")
	s, err := NewCSVSink(path)
	require.NoError(t, err)

	require.NoError(t, s.Append(FromVerdict(sampleVerdict("/media/a.mkv", true), 1)))

	// Records survive without Close: the sink flushes per record.
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "/media/a.mkv,true")

	require.NoError(t, s.Append(FromVerdict(sampleVerdict("/media/b.mkv", false), 2)))
	require.NoError(t, s.Close())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	scanner := bufio.NewScanner(f)
	var lines []string
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	require.Len(t, lines, 3)
	assert.Equal(t, "path,is_corrupt", lines[0])
	assert.Equal(t, "/media/a.mkv,true", lines[1])
	assert.Equal(t, "/media/b.mkv,false", lines[2])
}

func TestCSVSink_AppendSkipsSecondHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scan.csv")

	s, err := NewCSVSink(path)
	require.NoError(t, err)
	require.NoError(t, s.Append(FromVerdict(sampleVerdict("/media/a.mkv", true), 1)))
	require.NoError(t, s.Close())

	// Re-opening an existing file must not write the header again.
	s, err = NewCSVSink(path)
	require.NoError(t, err)
	require.NoError(t, s.Append(FromVerdict(sampleVerdict("/media/b.mkv", false), 2)))
	require.NoError(t, s.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(string(data), "path,is_corrupt"))
}

func TestJSONL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scan.jsonl")
	j, err := NewJSONL(path)
	require.NoError(t, err)

	require.NoError(t, j.Append(FromVerdict(sampleVerdict("/media/a.mkv", true), 1)))
	require.NoError(t, j.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var rec Record
	require.NoError(t, json.Unmarshal(data, &rec))
	assert.Equal(t, "/media/a.mkv", rec.Path)
	assert.True(t, rec.IsCorrupt)
	assert.Equal(t, 1, rec.Index)
}

type failingAppender struct{ closed bool }

func (f *failingAppender) Append(Record) error { return errors.New("disk full") }
func (f *failingAppender) Close() error        { f.closed = true; return nil }

func TestMulti_DegradesGracefully(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scan.jsonl")
	j, err := NewJSONL(path)
	require.NoError(t, err)
	broken := &failingAppender{}

	m := NewMulti(broken, j, nil)
	assert.NoError(t, m.Append(FromVerdict(sampleVerdict("/media/a.mkv", false), 1)),
		"one failing sink must not abort the scan")
	require.NoError(t, m.Close())
	assert.True(t, broken.closed)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "/media/a.mkv")
}
