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

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_OverridesOnTopOfDefaults(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.toml")
	data := "mount_root = \"/media\"\npoll_interval = \"250ms\"\nlog_level = \"debug\"\n"
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/media", cfg.MountRoot)
	assert.Equal(t, 250*time.Millisecond, cfg.Interval())
	assert.Equal(t, zerolog.DebugLevel, cfg.Level())
	assert.Equal(t, "org.blockd.Block", cfg.BusName)
}

func TestLoad_RejectsInvalidValues(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		data string
	}{
		{"bad_toml", "mount_root = \n"},
		{"bad_interval", "poll_interval = \"soon\"\n"},
		{"zero_interval", "poll_interval = \"0s\"\n"},
		{"relative_object_path", "object_path = \"org/blockd\"\n"},
		{"single_element_bus_name", "bus_name = \"blockd\"\n"},
		{"bus_name_leading_digit", "bus_name = \"org.1blockd\"\n"},
		{"unknown_level", "log_level = \"loud\"\n"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			path := filepath.Join(t.TempDir(), "config.toml")
			require.NoError(t, os.WriteFile(path, []byte(tt.data), 0o600))

			_, err := Load(path)
			assert.Error(t, err)
		})
	}
}

func TestSave_RoundTrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "etc", "blockd", "config.toml")
	cfg := Default()
	cfg.BusName = "org.example.Disks"
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestSave_RefusesInvalidConfig(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.toml")
	cfg := Default()
	cfg.PidFile = ""

	require.Error(t, cfg.Save(path))
	assert.NoFileExists(t, path)
}

func TestConfig_LevelFallback(t *testing.T) {
	t.Parallel()

	cfg := Default()
	cfg.LogLevel = ""
	assert.Equal(t, zerolog.InfoLevel, cfg.Level())
}
