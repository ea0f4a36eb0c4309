package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	t.Parallel()
	require.NoError(t, Default().Validate())
}

func TestEmptyPathGivesDefaults(t *testing.T) {
	t.Parallel()
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestTemplateMatchesDefaults(t *testing.T) {
	t.Parallel()
	cfg, err := Load(writeFile(t, "pytutor.toml", Template))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadTOMLOverridesSomeKeys(t *testing.T) {
	t.Parallel()

	path := writeFile(t, "pytutor.toml", "max_steps = 50\n[server]\ntimeout = \"2s\"\n")
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 50, cfg.MaxSteps)
	assert.Equal(t, 2*time.Second, cfg.Server.Timeout)
	assert.True(t, cfg.StableIDs, "keys not in the file keep their defaults")
	assert.Equal(t, Default().Server.Addr, cfg.Server.Addr)
}

func TestLoadYAML(t *testing.T) {
	t.Parallel()

	path := writeFile(t, "pytutor.yaml", "stable_ids: false\nlog_level: debug\nserver:\n  query_log: q.db\n")
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.False(t, cfg.StableIDs)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "q.db", cfg.Server.QueryLog)
	assert.Equal(t, 200, cfg.MaxSteps)
}

func TestLoadErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		file    string
		content string
		want    string
	}{
		{"unknown toml key", "pytutor.toml", "max_stepz = 3\n", "unknown key"},
		{"unknown yaml key", "pytutor.yml", "bogus: 1\n", "bogus"},
		{"bad steps", "pytutor.toml", "max_steps = 0\n", "max_steps must be positive"},
		{"bad level", "pytutor.toml", "log_level = \"loud\"\n", "log_level"},
		{"bad body", "pytutor.yaml", "server:\n  max_body_bytes: -1\n", "max_body_bytes"},
		{"bad format", "pytutor.json", "{}", "unsupported config format"},
		{"bad toml", "pytutor.toml", "max_steps = \n", "pytutor.toml"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := Load(writeFile(t, tt.file, tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()
	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestFind(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	assert.Empty(t, Find(dir))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "pytutor.yml"), nil, 0o644))
	assert.Equal(t, filepath.Join(dir, "pytutor.yml"), Find(dir))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "pytutor.toml"), nil, 0o644))
	assert.Equal(t, filepath.Join(dir, "pytutor.toml"), Find(dir))
}
