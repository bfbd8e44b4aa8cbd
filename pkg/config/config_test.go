package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoaderDefaults(t *testing.T) {
	cfg, loader := Loader(t.TempDir())
	require.NoError(t, loader.Load())

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "4g", cfg.Tmpfs.Size)
	assert.Equal(t, "Flammable-Bunny/Lingle", cfg.Update.Repo)
	assert.Equal(t, 30*time.Minute, cfg.HTTP.Timeout)
	assert.Equal(t, 6, cfg.ADW.Keep)
	assert.NoError(t, cfg.Validate())
	assert.Equal(t, zerolog.InfoLevel, cfg.LogLevel())
}

func TestLoaderReadsTOML(t *testing.T) {
	dir := t.TempDir()
	err := os.WriteFile(filepath.Join(dir, "config.toml"), []byte("[tmpfs]\nsize = \"8g\"\n\n[log]\nlevel = \"debug\"\n"), 0600)
	require.NoError(t, err)

	cfg, loader := Loader(dir)
	require.NoError(t, loader.Load())

	assert.Equal(t, "8g", cfg.Tmpfs.Size)
	assert.Equal(t, zerolog.DebugLevel, cfg.LogLevel())
}

func TestLoaderReadsEnv(t *testing.T) {
	dir := t.TempDir()
	err := os.WriteFile(filepath.Join(dir, "config.toml"), []byte("[tmpfs]\nsize = \"8g\"\n"), 0600)
	require.NoError(t, err)
	t.Setenv("LINGLE_TMPFS_SIZE", "2g")
	t.Setenv("LINGLE_LOG_LEVEL", "warn")

	cfg, loader := Loader(dir)
	require.NoError(t, loader.Load(), "command line arguments of the test binary are left to cobra")

	assert.Equal(t, "2g", cfg.Tmpfs.Size)
	assert.Equal(t, zerolog.WarnLevel, cfg.LogLevel())
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := &Config{}
		cfg.Log.Level = "info"
		cfg.Tmpfs.Size = "4g"
		cfg.Tmpfs.Mode = "0700"
		cfg.Update.Repo = "Flammable-Bunny/Lingle"
		cfg.ADW.Keep = 6
		return cfg
	}

	require.NoError(t, valid().Validate())

	tt := []struct {
		name   string
		modify func(*Config)
	}{
		{"log level", func(c *Config) { c.Log.Level = "loud" }},
		{"tmpfs size", func(c *Config) { c.Tmpfs.Size = "4 gigs" }},
		{"tmpfs mode", func(c *Config) { c.Tmpfs.Mode = "999" }},
		{"repo", func(c *Config) { c.Update.Repo = "lingle" }},
		{"keep", func(c *Config) { c.ADW.Keep = 0 }},
	}

	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			cfg := valid()
			tc.modify(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
