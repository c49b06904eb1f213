package ledger

import (
	"log/slog"
	"time"

	"kakeibo/internal/events"
	"kakeibo/internal/snapshot"
)

// DefaultMaxAge is how long a durable snapshot counts as fresh.
const DefaultMaxAge = 5 * time.Minute

// Option configures a Store.
type Option func(*Store)

// WithSnapshots enables the durable snapshot. Without it every Load goes to
// the backend.
func WithSnapshots(c *snapshot.Cache) Option {
	return func(s *Store) { s.snapshots = c }
}

// WithPublisher sets where change events go.
func WithPublisher(p events.Publisher) Option {
	return func(s *Store) { s.bus = p }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithDefaultMaxAge replaces DefaultMaxAge for loads that do not pass
// their own.
func WithDefaultMaxAge(d time.Duration) Option {
	return func(s *Store) { s.maxAge = d }
}

type loadConfig struct {
	force      bool
	maxAge     time.Duration
	revalidate bool
}

// LoadOption adjusts a single Load call.
type LoadOption func(*loadConfig)

// Force skips the snapshot and always fetches.
func Force() LoadOption {
	return func(c *loadConfig) { c.force = true }
}

// MaxAge sets the snapshot TTL for this load.
func MaxAge(d time.Duration) LoadOption {
	return func(c *loadConfig) { c.maxAge = d }
}

// NoRevalidate serves a stale snapshot without fetching.
func NoRevalidate() LoadOption {
	return func(c *loadConfig) { c.revalidate = false }
}
