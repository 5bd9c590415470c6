package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/emotrack/backend/internal/config"
	"github.com/zhouzirui/emotrack/backend/internal/model/tracking"
	"github.com/zhouzirui/emotrack/backend/internal/storage/remote"
)

func TestOpenEveryDriver(t *testing.T) {
	dir := t.TempDir()
	cases := map[config.StorageDriver]string{
		config.DriverMemory: "",
		config.DriverFile:   filepath.Join(dir, "files"),
		config.DriverKV:     filepath.Join(dir, "kv", "kv.db"),
		config.DriverSQLite: filepath.Join(dir, "db", "sessions.db"),
	}

	for driver, path := range cases {
		t.Run(string(driver), func(t *testing.T) {
			ctx := context.Background()
			store, closeFn, err := Open(config.StorageConfig{Driver: driver, Path: path, Key: "k"}, config.SyncConfig{})
			require.NoError(t, err)
			defer closeFn()

			start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
			s := tracking.Session{ID: "a", StartTime: start}
			s.Finalize(start.Add(time.Minute))
			require.NoError(t, store.Upsert(ctx, s))

			got, ok, err := store.FindByID(ctx, "a")
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, "a", got.ID)
		})
	}
}

func TestOpenWrapsMirror(t *testing.T) {
	store, closeFn, err := Open(
		config.StorageConfig{Driver: config.DriverMemory},
		config.SyncConfig{URL: "http://127.0.0.1:1/api", Timeout: time.Second},
	)
	require.NoError(t, err)
	defer closeFn()

	_, ok := store.(*remote.Mirror)
	assert.True(t, ok)
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, _, err := Open(config.StorageConfig{Driver: "mongo"}, config.SyncConfig{})
	assert.Error(t, err)
}
