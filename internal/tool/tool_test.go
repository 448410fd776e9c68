package tool

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mescon/Scanarr/internal/domain"
)

// writeScript drops an executable shell script standing in for a binary.
func writeScript(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755))
	return path
}

func TestValidatePath(t *testing.T) {
	tests := []struct {
		name    string
		path    string
		wantErr bool
	}{
		{"absolute path", "/media/tv/show.mkv", false},
		{"spaces are fine", "/media/My Shows/ep 1.mkv", false},
		{"relative path", "media/show.mkv", true},
		{"null byte", "/media/a\x00b.mkv", true},
		{"newline", "/media/a\nb.mkv", true},
		{"carriage return", "/media/a\rb.mkv", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePath(tt.path)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestFFAdapter_ProbeParsesStreams(t *testing.T) {
	dir := t.TempDir()
	ffprobe := writeScript(t, dir, "ffprobe", `cat <<'EOF'
{
  "streams": [
    {"index": 0, "codec_type": "video", "codec_name": "h264", "width": 1920, "height": 1080, "duration": "1424.5"},
    {"index": 1, "codec_type": "audio", "codec_name": "aac"}
  ],
  "format": {"format_name": "matroska", "duration": "1424.5", "size": "734003200", "bit_rate": "4123000"}
}
EOF`)

	a := NewFFAdapterWithPaths(ffprobe, "ffmpeg")
	res := a.Probe(context.Background(), "/media/show.mkv", 5*time.Second)
	require.True(t, res.Success, "message: %s", res.Message)
	require.Len(t, res.Streams, 2)
	assert.Equal(t, "video", res.Streams[0].Type)
	assert.Equal(t, "h264", res.Streams[0].Codec)
	assert.Equal(t, 1920, res.Streams[0].Width)
	assert.Equal(t, 1424.5, res.Streams[0].Duration)
	assert.Equal(t, "matroska", res.Format.Name)
	assert.Equal(t, int64(734003200), res.Format.Size)
	assert.True(t, res.HasDecodableStream())
	assert.False(t, res.ProbedAt.IsZero())
}

func TestFFAdapter_ProbeFailures(t *testing.T) {
	dir := t.TempDir()

	t.Run("invalid path", func(t *testing.T) {
		a := NewFFAdapterWithPaths("ffprobe", "ffmpeg")
		res := a.Probe(context.Background(), "relative.mkv", time.Second)
		assert.False(t, res.Success)
		assert.Contains(t, res.Message, "invalid media path")
	})

	t.Run("nonzero exit carries stderr", func(t *testing.T) {
		ffprobe := writeScript(t, dir, "ffprobe-fail", `echo "Invalid data found when processing input" >&2; exit 1`)
		a := NewFFAdapterWithPaths(ffprobe, "ffmpeg")
		res := a.Probe(context.Background(), "/media/bad.mkv", time.Second)
		assert.False(t, res.Success)
		assert.Contains(t, res.Message, "Invalid data found")
	})

	t.Run("missing binary", func(t *testing.T) {
		a := NewFFAdapterWithPaths(filepath.Join(dir, "no-such-ffprobe"), "ffmpeg")
		res := a.Probe(context.Background(), "/media/a.mkv", time.Second)
		assert.False(t, res.Success)
		assert.Contains(t, res.Message, "failed to start")
	})

	t.Run("no streams", func(t *testing.T) {
		ffprobe := writeScript(t, dir, "ffprobe-empty", `echo '{"streams": [], "format": {}}'`)
		a := NewFFAdapterWithPaths(ffprobe, "ffmpeg")
		res := a.Probe(context.Background(), "/media/empty.mkv", time.Second)
		assert.False(t, res.Success)
		assert.Contains(t, res.Message, "no streams")
	})
}

func TestFFAdapter_DecodeCheck(t *testing.T) {
	dir := t.TempDir()

	t.Run("clean decode", func(t *testing.T) {
		ffmpeg := writeScript(t, dir, "ffmpeg-ok", `exit 0`)
		a := NewFFAdapterWithPaths("ffprobe", ffmpeg)
		rep := a.DecodeCheck(context.Background(), "/media/a.mkv", domain.DepthQuick, 5*time.Second)
		assert.Equal(t, 0, rep.ExitCode)
		assert.Empty(t, rep.Diagnostic)
		assert.False(t, rep.TimedOut)
	})

	t.Run("decode failure captures stderr and exit code", func(t *testing.T) {
		ffmpeg := writeScript(t, dir, "ffmpeg-bad", `echo "moov atom not found" >&2; exit 1`)
		a := NewFFAdapterWithPaths("ffprobe", ffmpeg)
		rep := a.DecodeCheck(context.Background(), "/media/bad.mp4", domain.DepthDeep, 5*time.Second)
		assert.Equal(t, 1, rep.ExitCode)
		assert.Contains(t, rep.Diagnostic, "moov atom not found")
	})

	t.Run("timeout is reported as evidence", func(t *testing.T) {
		ffmpeg := writeScript(t, dir, "ffmpeg-slow", `sleep 5`)
		a := NewFFAdapterWithPaths("ffprobe", ffmpeg)
		start := time.Now()
		rep := a.DecodeCheck(context.Background(), "/media/slow.mkv", domain.DepthQuick, 200*time.Millisecond)
		assert.Less(t, time.Since(start), 3*time.Second, "the child must be killed at the deadline")
		assert.True(t, rep.TimedOut)
		assert.Equal(t, -1, rep.ExitCode)
		assert.Contains(t, rep.Diagnostic, "timed out")
	})

	t.Run("quick pass limits the decode span", func(t *testing.T) {
		ffmpeg := writeScript(t, dir, "ffmpeg-args", `echo "$@" >&2; exit 0`)
		a := NewFFAdapterWithPaths("ffprobe", ffmpeg)

		quick := a.DecodeCheck(context.Background(), "/media/a.mkv", domain.DepthQuick, time.Second)
		assert.Contains(t, quick.Diagnostic, "-t "+quickDecodeSpan)

		deep := a.DecodeCheck(context.Background(), "/media/a.mkv", domain.DepthDeep, time.Second)
		assert.NotContains(t, deep.Diagnostic, "-t "+quickDecodeSpan)
	})
}

func TestChecker_Verify(t *testing.T) {
	dir := t.TempDir()
	ffprobe := writeScript(t, dir, "ffprobe", `echo "ffprobe version 6.1.1 Copyright (c) 2007-2023"`)
	ffmpeg := writeScript(t, dir, "ffmpeg", `echo "ffmpeg version 6.1.1 Copyright (c) 2000-2023"`)

	c := NewCheckerWithPaths(ffprobe, ffmpeg)
	require.NoError(t, c.Verify())

	status := c.ToolStatus()
	require.Contains(t, status, "ffprobe")
	assert.True(t, status["ffprobe"].Available)
	assert.Equal(t, "6.1.1", status["ffprobe"].Version)
	assert.Equal(t, ffprobe, status["ffprobe"].Path)
}

func TestChecker_MissingToolFailsVerify(t *testing.T) {
	dir := t.TempDir()
	ffprobe := writeScript(t, dir, "ffprobe", `echo "ffprobe version 6.1.1"`)

	c := NewCheckerWithPaths(ffprobe, filepath.Join(dir, "no-such-ffmpeg"))
	err := c.Verify()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ffmpeg")
}
