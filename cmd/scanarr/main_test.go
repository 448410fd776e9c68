package main

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mescon/Scanarr/internal/config"
	"github.com/mescon/Scanarr/internal/domain"
)

func TestApplyFlagOverrides_OnlyPassedFlagsApply(t *testing.T) {
	cfg := config.NewTestConfig(t.TempDir())
	cfg.Mode = domain.ModeDeep
	cfg.Recursive = false
	cfg.Resume = false
	cfg.Workers = 8

	// Flag defaults with nothing passed must not clobber config values.
	applyFlagOverrides(cfg, flagOverrides{
		recursive: true,
		resume:    true,
		workers:   0,
	}, map[string]bool{})

	assert.Equal(t, domain.ModeDeep, cfg.Mode)
	assert.False(t, cfg.Recursive)
	assert.False(t, cfg.Resume)
	assert.Equal(t, 8, cfg.Workers)
}

func TestApplyFlagOverrides_PassedFlagsWin(t *testing.T) {
	cfg := config.NewTestConfig(t.TempDir())
	cfg.Mode = domain.ModeHybrid
	cfg.Recursive = true
	cfg.Resume = true

	applyFlagOverrides(cfg, flagOverrides{
		mode:          "quick",
		workers:       16,
		recursive:     false,
		resume:        false,
		contentFilter: true,
	}, map[string]bool{
		"mode":           true,
		"workers":        true,
		"recursive":      true,
		"resume":         true,
		"content-filter": true,
	})

	assert.Equal(t, domain.ModeQuick, cfg.Mode)
	assert.Equal(t, 16, cfg.Workers)
	assert.False(t, cfg.Recursive)
	assert.False(t, cfg.Resume)
	assert.True(t, cfg.ContentFilter)
}
