package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnv_Defaults(t *testing.T) {
	for _, k := range []string{MongoURI, StoreBackend, HTTPAddr, EventsEnabled, TrendRangeDays, ClockInterval, CommentRetryAttempts} {
		t.Setenv(k, "")
	}

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, BackendMongo, cfg.StoreBackend)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.False(t, cfg.EventsEnabled)
	assert.Equal(t, 7, cfg.TrendRangeDays)
	assert.Equal(t, time.Minute, cfg.ClockInterval)
	assert.Equal(t, 3, cfg.CommentRetryAttempts)
}

func TestFromEnv_Overrides(t *testing.T) {
	t.Setenv(StoreBackend, "memory")
	t.Setenv(EventsEnabled, "true")
	t.Setenv(TrendRangeDays, "30")
	t.Setenv(CommentRetryBackoff, "2s")

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, BackendMemory, cfg.StoreBackend)
	assert.True(t, cfg.EventsEnabled)
	assert.Equal(t, 30, cfg.TrendRangeDays)
	assert.Equal(t, 2*time.Second, cfg.CommentRetryBackoff)
}

func TestFromEnv_Invalid(t *testing.T) {
	cases := map[string]string{
		StoreBackend:         "firestore",
		TrendRangeDays:       "14",
		CommentRetryAttempts: "0",
		ClockInterval:        "sebentar",
		EventsEnabled:        "mungkin",
	}
	for key, val := range cases {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, val)
			_, err := FromEnv()
			assert.ErrorContains(t, err, key)
		})
	}
}

func TestLoad_DotEnvDoesNotOverrideEnvironment(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("HTTP_ADDR=:9999\nMONGO_DB_NAME=from_file\n"), 0o600))

	t.Setenv(HTTPAddr, ":7000")
	t.Setenv(MongoDBName, "")
	require.NoError(t, os.Unsetenv(MongoDBName))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":7000", cfg.HTTPAddr)
	assert.Equal(t, "from_file", cfg.MongoDBName)

	_, err = Load(filepath.Join(dir, "missing.env"))
	assert.NoError(t, err)
}
