package snapshot

import (
	"context"
	"log/slog"
	"time"

	"kakeibo/internal/core"
)

// DefaultKey is the storage key of the ledger snapshot.
const DefaultKey = "kakeibo:ledger"

// Cache reads and writes the ledger snapshot through a BestEffort storage.
type Cache struct {
	store *BestEffort
	key   string
	now   func() time.Time
	log   *slog.Logger
}

// CacheOption configures a Cache.
type CacheOption func(*Cache)

func WithKey(key string) CacheOption {
	return func(c *Cache) { c.key = key }
}

// WithClock overrides the clock used to stamp savedAt.
func WithClock(now func() time.Time) CacheOption {
	return func(c *Cache) { c.now = now }
}

func NewCache(storage Storage, logger *slog.Logger, opts ...CacheOption) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Cache{
		store: NewBestEffort(storage, logger),
		key:   DefaultKey,
		now:   time.Now,
		log:   logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Load returns the stored snapshot, or false when there is none or it
// cannot be decoded. A corrupt snapshot is cleared.
func (c *Cache) Load(ctx context.Context) (Snapshot, bool) {
	if c == nil {
		return Snapshot{}, false
	}
	raw, ok := c.store.Get(ctx, c.key)
	if !ok {
		return Snapshot{}, false
	}
	snap, err := Decode(raw)
	if err != nil {
		c.log.WarnContext(ctx, "Discarding unusable snapshot", "key", c.key, "error", err)
		c.store.Clear(ctx, c.key)
		return Snapshot{}, false
	}
	return snap, true
}

// Save writes l stamped with the current time.
func (c *Cache) Save(ctx context.Context, l core.Ledger) bool {
	if c == nil {
		return false
	}
	data, err := Encode(l, c.now())
	if err != nil {
		c.log.WarnContext(ctx, "Snapshot encode failed", "error", err)
		return false
	}
	return c.store.Set(ctx, c.key, data)
}

func (c *Cache) Clear(ctx context.Context) {
	if c == nil {
		return
	}
	c.store.Clear(ctx, c.key)
}
