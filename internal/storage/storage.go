// Package storage builds the configured session store.
package storage

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/zhouzirui/emotrack/backend/internal/config"
	"github.com/zhouzirui/emotrack/backend/internal/model/tracking"
	"github.com/zhouzirui/emotrack/backend/internal/storage/local"
	"github.com/zhouzirui/emotrack/backend/internal/storage/remote"
	"github.com/zhouzirui/emotrack/backend/internal/storage/sqlite"
)

// Open returns the store selected by cfg, wrapped in a remote mirror when
// syncCfg is enabled. The returned func releases underlying resources.
func Open(cfg config.StorageConfig, syncCfg config.SyncConfig) (tracking.Store, func() error, error) {
	store, closeFn, err := openLocal(cfg)
	if err != nil {
		return nil, nil, err
	}

	if !syncCfg.Enabled() {
		return store, closeFn, nil
	}
	client, err := remote.NewClient(syncCfg.URL, syncCfg.Timeout)
	if err != nil {
		_ = closeFn()
		return nil, nil, err
	}
	log.Printf("[storage] mirroring sessions to %s", syncCfg.URL)
	return remote.NewMirror(store, client), closeFn, nil
}

func openLocal(cfg config.StorageConfig) (tracking.Store, func() error, error) {
	noop := func() error { return nil }

	switch cfg.Driver {
	case config.DriverMemory:
		log.Println("[storage] using in-memory store, sessions are lost on exit")
		return tracking.NewMemoryStore(), noop, nil
	case config.DriverFile:
		blob, err := local.NewFileBlob(cfg.Path)
		if err != nil {
			return nil, nil, err
		}
		log.Printf("[storage] using file store at %s (key=%s)", cfg.Path, cfg.Key)
		return local.NewStore(blob, cfg.Key), noop, nil
	case config.DriverKV:
		if err := ensureDir(cfg.Path); err != nil {
			return nil, nil, err
		}
		blob, err := local.OpenKVBlob(cfg.Path)
		if err != nil {
			return nil, nil, err
		}
		log.Printf("[storage] using sqlite key/value store at %s (key=%s)", cfg.Path, cfg.Key)
		return local.NewStore(blob, cfg.Key), blob.Close, nil
	case config.DriverSQLite, "":
		if err := ensureDir(cfg.Path); err != nil {
			return nil, nil, err
		}
		repo, err := sqlite.Open(cfg.Path)
		if err != nil {
			return nil, nil, err
		}
		log.Printf("[storage] using sqlite document store at %s", cfg.Path)
		return repo, repo.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}

func ensureDir(dbPath string) error {
	if dbPath == ":memory:" {
		return nil
	}
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create storage directory: %w", err)
	}
	return nil
}
