package logger

import (
	"bytes"
	"log"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func captureOutput(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	log.SetOutput(&buf)
	t.Cleanup(func() { log.SetOutput(os.Stdout) })
	return &buf
}

func TestSetLevel_FiltersBelowMinimum(t *testing.T) {
	buf := captureOutput(t)

	SetLevel("info")
	Debugf("hidden %d", 1)
	Infof("shown %d", 2)
	Warnf("warned")
	Errorf("errored")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "[INFO] shown 2")
	assert.Contains(t, out, "[WARN] warned")
	assert.Contains(t, out, "[ERROR] errored")
}

func TestSetLevel_DebugEnablesEverything(t *testing.T) {
	buf := captureOutput(t)

	SetLevel("debug")
	defer SetLevel("info")
	Debugf("now visible")
	assert.Contains(t, buf.String(), "[DEBUG] now visible")
}

func TestSetLevel_UnknownFallsBackToInfo(t *testing.T) {
	buf := captureOutput(t)

	SetLevel("chatty")
	Debugf("still filtered")
	Infof("still shown")
	assert.NotContains(t, buf.String(), "still filtered")
	assert.Contains(t, buf.String(), "still shown")
}

func TestInit_WritesRotatedFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")
	Init(dir)
	t.Cleanup(func() { log.SetOutput(os.Stdout) })

	SetLevel("info")
	Infof("to file")

	data, err := os.ReadFile(filepath.Join(dir, "scanarr.log"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "to file")
}
