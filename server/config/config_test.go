package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/cyclopcam/dbh"
	"github.com/cyclopcam/imclass/pkg/pwdhash"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := DefaultConfig("/data")
	require.NoError(t, cfg.Validate())
	require.Equal(t, 3, cfg.Model.TopK)
	require.Equal(t, 10, cfg.Model.MovingAvg)
	require.Equal(t, "/data/models", cfg.Model.Dir)
	require.Equal(t, dbh.DriverSqlite, cfg.History.DB.Driver)
	require.Equal(t, "/data/history.sqlite", cfg.History.DB.Database)
	require.Nil(t, cfg.Snapshots.Storage)
	require.Equal(t, int64(10), int64(cfg.MinSnapshotInterval().Seconds()))
}

func TestParseConfig(t *testing.T) {
	cfg, err := ParseConfig([]byte(`{
		"dataDir": "/srv/imclass",
		"http": ":9000",
		"model": {"name": "resnet18", "topK": 5},
		"source": {"directory": "/srv/frames", "fps": 2, "rotation": 90},
		"history": {"every": 10},
		"snapshots": {"storage": {"filesystem": {"root": "/srv/snaps"}}, "threshold": 0.5}
	}`))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())
	require.Equal(t, ":9000", cfg.HTTP)
	require.Equal(t, "resnet18", cfg.Model.Name)
	require.Equal(t, 5, cfg.Model.TopK)
	// Unspecified fields keep their defaults, derived from dataDir
	require.Equal(t, 10, cfg.Model.MovingAvg)
	require.Equal(t, "/srv/imclass/models", cfg.Model.Dir)
	require.Equal(t, "/srv/imclass/history.sqlite", cfg.History.DB.Database)
	require.Equal(t, 10, cfg.History.Every)
	require.Equal(t, 100000, cfg.History.MaxRecords)
	require.Equal(t, 90, cfg.Source.Rotation)
	require.Equal(t, "/srv/snaps", cfg.Snapshots.Storage.Filesystem.Root)
	require.Equal(t, float32(0.5), cfg.Snapshots.Threshold)
	require.Equal(t, 85, cfg.Snapshots.Quality)

	_, err = ParseConfig([]byte(`{"model": `))
	require.Error(t, err)
}

func TestHistoryDBConfig(t *testing.T) {
	cfg, err := ParseConfig([]byte(`{"history": {"db": {"driver": "postgres", "host": "localhost", "database": "imclass", "username": "imclass"}}}`))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())
	require.Equal(t, dbh.DriverPostgres, cfg.History.DB.Driver)
	require.Equal(t, "localhost", cfg.History.DB.Host)
	require.Equal(t, "imclass", cfg.History.DB.Username)
}

func TestValidate(t *testing.T) {
	bad := []func(c *Config){
		func(c *Config) { c.Model.Name = "" },
		func(c *Config) { c.Model.TopK = 0 },
		func(c *Config) { c.Model.MovingAvg = 0 },
		func(c *Config) { c.Model.QueueSize = 0 },
		func(c *Config) { c.Model.ClassifyRate = 0 },
		func(c *Config) { c.Source.Directory = "/x"; c.Source.FPS = 0 },
		func(c *Config) { c.Source.Directory = "/x"; c.Source.Rotation = 45 },
		func(c *Config) { c.HTTP = "" },
		func(c *Config) { c.AdminPasswordHash = "hunter2" },
		func(c *Config) { c.History.DB.Driver = "mysql" },
		func(c *Config) { c.History.Every = 0 },
		func(c *Config) { c.History.MaxRecords = 0 },
		func(c *Config) { c.Snapshots.Storage = &StorageConfig{} },
		func(c *Config) {
			c.Snapshots.Storage = &StorageConfig{Filesystem: &StorageConfigFS{Root: "/a"}, GCS: &StorageConfigGCS{Bucket: "b"}}
		},
		func(c *Config) { c.Snapshots.Storage = &StorageConfig{GCS: &StorageConfigGCS{}} },
		func(c *Config) {
			c.Snapshots.Storage = &StorageConfig{Filesystem: &StorageConfigFS{Root: "/a"}}
			c.Snapshots.Threshold = 1.5
		},
		func(c *Config) {
			c.Snapshots.Storage = &StorageConfig{Filesystem: &StorageConfigFS{Root: "/a"}}
			c.Snapshots.Quality = 0
		},
	}
	for i, modify := range bad {
		cfg := DefaultConfig("/data")
		modify(cfg)
		require.Error(t, cfg.Validate(), "case %v", i)
	}

	// History settings are irrelevant when history is disabled
	cfg := DefaultConfig("/data")
	cfg.History.Enabled = false
	cfg.History.Every = 0
	require.NoError(t, cfg.Validate())

	cfg = DefaultConfig("/data")
	cfg.AdminPasswordHash = pwdhash.HashPasswordBase64("secret")
	require.NoError(t, cfg.Validate())
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	fn := filepath.Join(dir, "imclass.json")
	require.NoError(t, os.WriteFile(fn, []byte(`{"dataDir": "`+dir+`", "model": {"name": "squeezenet"}}`), 0644))
	cfg, err := LoadConfig(fn)
	require.NoError(t, err)
	require.Equal(t, "squeezenet", cfg.Model.Name)
	require.Equal(t, filepath.Join(dir, "models"), cfg.Model.Dir)

	_, err = LoadConfig(filepath.Join(dir, "missing.json"))
	require.Error(t, err)
}
