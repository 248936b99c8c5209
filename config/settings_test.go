package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultValid(t *testing.T) {
	t.Parallel()

	require.NoError(t, Default().Validate())
	assert.NotEmpty(t, Default().ResolvedCacheDir())
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*Settings)
	}{
		{"target above threshold", func(s *Settings) { s.TrimTarget = s.TrimThreshold + 1 }},
		{"threshold above max", func(s *Settings) { s.TrimThreshold = s.MaxEntries + 1 }},
		{"zero parallelism", func(s *Settings) { s.DiskParallelism = 0 }},
		{"negative width", func(s *Settings) { s.TargetWidth = -1 }},
		{"short stale window", func(s *Settings) { s.StaleAfter = time.Second }},
		{"negative disk cap", func(s *Settings) { s.DiskMaxBytes = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s := Default()
			tt.mutate(&s)
			assert.Error(t, s.Validate())
		})
	}
}

func TestLoadFile(t *testing.T) {
	t.Parallel()

	file := filepath.Join(t.TempDir(), "thumbcache.yaml")
	require.NoError(t, os.WriteFile(file, []byte(`
cache_dir: /tmp/thumbs
max_entries: 200
trim_threshold: 150
trim_target: 100
disk_parallelism: 2
target_width: 128
target_height: 128
stale_after: 48h
persist_timeout: 250ms
`), 0o600))

	s, err := Load(file)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/thumbs", s.CacheDir)
	assert.Equal(t, 200, s.MaxEntries)
	assert.Equal(t, 150, s.TrimThreshold)
	assert.Equal(t, 100, s.TrimTarget)
	assert.Equal(t, 2, s.DiskParallelism)
	assert.Equal(t, 128, s.TargetWidth)
	assert.Equal(t, 48*time.Hour, s.StaleAfter)
	assert.Equal(t, 250*time.Millisecond, s.PersistTimeout)
	assert.Equal(t, Default().DecodeParallelism, s.DecodeParallelism)
}

func TestLoadInvalidFile(t *testing.T) {
	t.Parallel()

	file := filepath.Join(t.TempDir(), "thumbcache.yaml")
	require.NoError(t, os.WriteFile(file, []byte("trim_target: 5000\n"), 0o600))

	_, err := Load(file)
	require.Error(t, err)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("THUMBCACHE_TARGET_WIDTH", "64")

	s, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 64, s.TargetWidth)
}

func TestWatchDeliversReload(t *testing.T) {
	t.Parallel()

	file := filepath.Join(t.TempDir(), "thumbcache.yaml")
	require.NoError(t, os.WriteFile(file, []byte("disk_parallelism: 2\n"), 0o600))

	l := NewLoader(file, nil)
	s, err := l.Load()
	require.NoError(t, err)
	require.Equal(t, 2, s.DiskParallelism)

	changes := make(chan Settings, 4)
	require.NoError(t, l.Watch(func(s Settings) { changes <- s }))

	require.NoError(t, os.WriteFile(file, []byte("disk_parallelism: 6\n"), 0o600))

	deadline := time.After(5 * time.Second)
	for {
		select {
		case s := <-changes:
			if s.DiskParallelism == 6 {
				return
			}
		case <-deadline:
			t.Fatal("no reload delivered")
		}
	}
}

func TestWatchRequiresFile(t *testing.T) {
	t.Parallel()

	require.Error(t, NewLoader("", nil).Watch(func(Settings) {}))
}
