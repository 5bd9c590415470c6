package local

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	_ "modernc.org/sqlite"
)

// Blob is a flat key/value space holding one serialized value per key.
type Blob interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Put(ctx context.Context, key string, value []byte) error
	Remove(ctx context.Context, key string) error
}

// MemoryBlob keeps values in a map. Useful for tests and ephemeral runs.
type MemoryBlob struct {
	mu     sync.RWMutex
	values map[string][]byte
}

func NewMemoryBlob() *MemoryBlob {
	return &MemoryBlob{values: make(map[string][]byte)}
}

func (b *MemoryBlob) Get(_ context.Context, key string) ([]byte, bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	v, ok := b.values[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

func (b *MemoryBlob) Put(_ context.Context, key string, value []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.values[key] = append([]byte(nil), value...)
	return nil
}

func (b *MemoryBlob) Remove(_ context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.values, key)
	return nil
}

// FileBlob stores each key as <dir>/<key>.json. Writes go through a temp
// file in the same directory and a rename, so a reader sees either the old
// value or the new one.
type FileBlob struct {
	dir string
}

func NewFileBlob(dir string) (*FileBlob, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("file blob directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create blob directory: %w", err)
	}
	return &FileBlob{dir: dir}, nil
}

func (b *FileBlob) path(key string) string {
	return filepath.Join(b.dir, filepath.Base(key)+".json")
}

func (b *FileBlob) Get(_ context.Context, key string) ([]byte, bool, error) {
	data, err := os.ReadFile(b.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read blob %s: %w", key, err)
	}
	return data, true, nil
}

func (b *FileBlob) Put(_ context.Context, key string, value []byte) error {
	tmp, err := os.CreateTemp(b.dir, ".tmp_"+filepath.Base(key)+"_*.json")
	if err != nil {
		return fmt.Errorf("create temp blob: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		_ = os.Remove(tmpName)
	}()

	if _, err := tmp.Write(value); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp blob: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync temp blob: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp blob: %w", err)
	}
	if err := os.Rename(tmpName, b.path(key)); err != nil {
		return fmt.Errorf("replace blob %s: %w", key, err)
	}
	return nil
}

func (b *FileBlob) Remove(_ context.Context, key string) error {
	err := os.Remove(b.path(key))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove blob %s: %w", key, err)
	}
	return nil
}

// KVBlob keeps values in a SQLite key/value table.
type KVBlob struct {
	db *sql.DB
}

// OpenKVBlob opens (or creates) the database at dsn and ensures the kv table.
func OpenKVBlob(dsn string) (*KVBlob, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// Every connection to :memory: is its own database.
	if dsn == ":memory:" || strings.Contains(dsn, "mode=memory") {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	}

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS kv (
		key TEXT PRIMARY KEY,
		value TEXT
	)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create kv table: %w", err)
	}
	return &KVBlob{db: db}, nil
}

func (b *KVBlob) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var value sql.NullString
	err := b.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("query kv %s: %w", key, err)
	}
	if !value.Valid {
		return nil, false, nil
	}
	return []byte(value.String), true, nil
}

func (b *KVBlob) Put(ctx context.Context, key string, value []byte) error {
	_, err := b.db.ExecContext(ctx,
		`INSERT INTO kv (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, string(value))
	if err != nil {
		return fmt.Errorf("put kv %s: %w", key, err)
	}
	return nil
}

func (b *KVBlob) Remove(ctx context.Context, key string) error {
	if _, err := b.db.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key); err != nil {
		return fmt.Errorf("remove kv %s: %w", key, err)
	}
	return nil
}

// Close releases the database.
func (b *KVBlob) Close() error {
	return b.db.Close()
}
