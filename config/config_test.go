package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, 30, cfg.ObserveWaitCeilingSeconds)
	assert.Equal(t, 10, cfg.RetentionMinutes)
	assert.Equal(t, 50, cfg.PollAttempts)
	assert.Equal(t, 1000, cfg.PreviewMaxChars)

	assert.Equal(t, 30*time.Second, cfg.ObserveWaitCeiling())
	assert.Equal(t, 200*time.Millisecond, cfg.ObservePollInterval())
	assert.Equal(t, 10*time.Minute, cfg.Retention())
	assert.Equal(t, 200*time.Millisecond, cfg.PollDelay())
}

func TestLoad_MergesOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("retention_minutes: 30\npoll_attempts: 5\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	// overridden
	assert.Equal(t, 30, cfg.RetentionMinutes)
	assert.Equal(t, 5, cfg.PollAttempts)
	// untouched keep their defaults
	assert.Equal(t, 30, cfg.ObserveWaitCeilingSeconds)
	assert.Equal(t, 100, cfg.TaskSummaryChars)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("retention_minutes: [oops"), 0o600))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestMerge_IgnoresZeroAndNegative(t *testing.T) {
	cfg := Default()
	cfg.merge(Config{RetentionMinutes: -5, PreviewMaxChars: 0, PollDelayMS: 50})

	assert.Equal(t, 10, cfg.RetentionMinutes)
	assert.Equal(t, 1000, cfg.PreviewMaxChars)
	assert.Equal(t, 50, cfg.PollDelayMS)
}
