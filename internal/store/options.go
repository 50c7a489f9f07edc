package store

import (
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/parstore/parstore/internal/clock"
)

const defaultSaveCoalesceInterval = time.Second

// Options configures a Store at construction time. Zero value is not
// meant to be used directly; Open/OpenInMemory apply defaults then
// Option overrides (spec §A.2 — RootOptions/RunOptions pattern).
type Options struct {
	deviceIdentifier     string
	inMemoryCacheEnabled bool
	saveCoalesceInterval time.Duration
	logger               *slog.Logger
	clock                clock.Source
	syncStrategy         SyncStrategy
}

func defaultOptions() Options {
	return Options{
		deviceIdentifier:     NewDeviceIdentifier(),
		inMemoryCacheEnabled: true,
		saveCoalesceInterval: defaultSaveCoalesceInterval,
		logger:               slog.Default(),
		clock:                clock.New(),
		syncStrategy:         defaultSyncStrategy{},
	}
}

// Option mutates Options at construction time.
type Option func(*Options)

// WithDeviceIdentifier sets the local device identifier. If not
// supplied, a random one is generated with NewDeviceIdentifier.
func WithDeviceIdentifier(id string) Option {
	return func(o *Options) { o.deviceIdentifier = id }
}

// WithInMemoryCache enables or disables the in-memory projection cache.
// When disabled, propertyListValueForKey forwards to
// fetchPropertyListValueForKey instead of reading the cached projection
// (spec §4.7, §9 Open Question (c): reads fail with NotLoaded until
// Load completes, in either mode).
func WithInMemoryCache(enabled bool) Option {
	return func(o *Options) { o.inMemoryCacheEnabled = enabled }
}

// WithSaveCoalesceInterval overrides the ~1s default delay before a
// pending write is flushed to disk (spec §4.6 save_tick).
func WithSaveCoalesceInterval(d time.Duration) Option {
	return func(o *Options) { o.saveCoalesceInterval = d }
}

// WithLogger overrides the default *slog.Logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Options) { o.logger = l }
}

// WithClock overrides the default process clock, for deterministic tests.
func WithClock(c clock.Source) Option {
	return func(o *Options) { o.clock = c }
}

// WithSyncStrategy overrides the default projection-update-only sync
// strategy (spec §9, C.3).
func WithSyncStrategy(s SyncStrategy) Option {
	return func(o *Options) { o.syncStrategy = s }
}

// NewDeviceIdentifier returns a random opaque device identifier, used
// when an embedding application does not supply its own (spec SPEC_FULL
// §B: github.com/google/uuid).
func NewDeviceIdentifier() string {
	return uuid.NewString()
}
