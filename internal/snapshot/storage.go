package snapshot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// ErrNotFound is returned by Storage.Get for a missing key.
var ErrNotFound = errors.New("snapshot key not found")

// Storage is a string-keyed byte store. Implementations may fail in any
// way; BestEffort is what the rest of the code talks to.
type Storage interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// BestEffort wraps a Storage and swallows every error after logging it.
// A nil inner storage behaves as permanently empty.
type BestEffort struct {
	inner Storage
	log   *slog.Logger
}

func NewBestEffort(inner Storage, logger *slog.Logger) *BestEffort {
	if logger == nil {
		logger = slog.Default()
	}
	return &BestEffort{inner: inner, log: logger}
}

// Get returns the value and true, or nil and false on a miss or failure.
func (b *BestEffort) Get(ctx context.Context, key string) ([]byte, bool) {
	if b == nil || b.inner == nil {
		return nil, false
	}
	v, err := b.inner.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			b.log.WarnContext(ctx, "Snapshot read failed", "key", key, "error", err)
		}
		return nil, false
	}
	return v, true
}

// Set stores value and reports whether it was written.
func (b *BestEffort) Set(ctx context.Context, key string, value []byte) bool {
	if b == nil || b.inner == nil {
		return false
	}
	if err := b.inner.Set(ctx, key, value); err != nil {
		b.log.WarnContext(ctx, "Snapshot write failed", "key", key, "bytes", len(value), "error", err)
		return false
	}
	return true
}

// Clear removes key.
func (b *BestEffort) Clear(ctx context.Context, key string) {
	if b == nil || b.inner == nil {
		return
	}
	if err := b.inner.Delete(ctx, key); err != nil && !errors.Is(err, ErrNotFound) {
		b.log.WarnContext(ctx, "Snapshot clear failed", "key", key, "error", err)
	}
}

// Memory is an in-process Storage.
type Memory struct {
	mu   sync.RWMutex
	data map[string][]byte
}

func NewMemory() *Memory {
	return &Memory{data: make(map[string][]byte)}
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

func (m *Memory) Set(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = append([]byte(nil), value...)
	return nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

// File stores each key as <dir>/<key>.json, replacing it atomically.
type File struct {
	dir string
}

func NewFile(dir string) (*File, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create snapshot dir: %w", err)
	}
	return &File{dir: dir}, nil
}

func (f *File) path(key string) string {
	safe := strings.NewReplacer("/", "_", "\\", "_", ":", "_").Replace(key)
	return filepath.Join(f.dir, safe+".json")
}

func (f *File) Get(_ context.Context, key string) ([]byte, error) {
	b, err := os.ReadFile(f.path(key))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	return b, err
}

func (f *File) Set(_ context.Context, key string, value []byte) error {
	tmp, err := os.CreateTemp(f.dir, ".snapshot-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(value); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), f.path(key))
}

func (f *File) Delete(_ context.Context, key string) error {
	err := os.Remove(f.path(key))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}
