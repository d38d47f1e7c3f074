package engine

import (
	"log/slog"
	"time"

	"github.com/satishbabariya/exprsql/query/cache"
	"github.com/satishbabariya/exprsql/query/dialect"
	"github.com/satishbabariya/exprsql/query/mapper"
	"github.com/satishbabariya/exprsql/query/schema"
	"github.com/satishbabariya/exprsql/telemetry"
)

// Config contains all engine configuration options.
type Config struct {
	// Dialect selects the formatter when the engine has no executor, e.g.
	// to explain statements offline. With an executor its dialect wins.
	Dialect dialect.ID

	// TTL is how long a fetched result stays cached.
	// Default: 5 minutes
	TTL time.Duration

	// PlanCacheSize bounds the compiled plan cache.
	// Default: 1024
	PlanCacheSize int

	// ResultCacheSize bounds the result-value cache.
	// Default: 1024
	ResultCacheSize int

	// IncludeValues mixes literal values into plan fingerprints.
	// Default: false
	IncludeValues bool

	// CollisionCheck verifies plan cache hits against a structural digest.
	// Default: false
	CollisionCheck bool

	// StrictKeys makes Refresh and Clear of an unknown key fail with
	// ErrCacheKeyNotFound instead of returning silently.
	// Default: false
	StrictKeys bool

	// BufferSize is the chunk size for large column reads.
	// Default: 8192
	BufferSize int

	// Store and Codec move cached values out of process memory. Call
	// descriptors stay in memory either way.
	Store cache.Store
	Codec cache.Codec

	Schemas     schema.Resolver
	Logger      *slog.Logger
	Telemetry   *telemetry.Collector
	Middlewares []Middleware

	// Clock replaces time.Now for result expiry.
	Clock cache.Clock
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		TTL:             5 * time.Minute,
		PlanCacheSize:   1024,
		ResultCacheSize: 1024,
		BufferSize:      mapper.DefaultBufferSize,
		Codec:           cache.Msgpack(),
		Clock:           time.Now,
	}
}

// Option is a function that configures the engine.
type Option func(*Config)

// WithDialect sets the dialect used without an executor.
func WithDialect(id dialect.ID) Option {
	return func(c *Config) {
		c.Dialect = id
	}
}

// WithTTL sets the result TTL.
func WithTTL(d time.Duration) Option {
	return func(c *Config) {
		c.TTL = d
	}
}

// WithPlanCacheSize bounds the plan cache.
func WithPlanCacheSize(n int) Option {
	return func(c *Config) {
		c.PlanCacheSize = n
	}
}

// WithResultCacheSize bounds the result cache.
func WithResultCacheSize(n int) Option {
	return func(c *Config) {
		c.ResultCacheSize = n
	}
}

// WithIncludeValues mixes literal values into plan fingerprints.
func WithIncludeValues(include bool) Option {
	return func(c *Config) {
		c.IncludeValues = include
	}
}

// WithCollisionCheck verifies plan cache hits.
func WithCollisionCheck(verify bool) Option {
	return func(c *Config) {
		c.CollisionCheck = verify
	}
}

// WithStrictKeys makes unknown keys an error for Refresh and Clear.
func WithStrictKeys(strict bool) Option {
	return func(c *Config) {
		c.StrictKeys = strict
	}
}

// WithBufferSize sets the large column chunk size.
func WithBufferSize(n int) Option {
	return func(c *Config) {
		c.BufferSize = n
	}
}

// WithStore keeps cached values in store, encoded with codec.
func WithStore(store cache.Store, codec cache.Codec) Option {
	return func(c *Config) {
		c.Store = store
		c.Codec = codec
	}
}

// WithSchemas sets the schema resolver.
func WithSchemas(r schema.Resolver) Option {
	return func(c *Config) {
		c.Schemas = r
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Config) {
		c.Logger = l
	}
}

// WithTelemetry records engine activity in collector.
func WithTelemetry(collector *telemetry.Collector) Option {
	return func(c *Config) {
		c.Telemetry = collector
	}
}

// WithMiddleware appends middleware around executor calls.
func WithMiddleware(m ...Middleware) Option {
	return func(c *Config) {
		c.Middlewares = append(c.Middlewares, m...)
	}
}

// WithClock replaces time.Now for result expiry.
func WithClock(now cache.Clock) Option {
	return func(c *Config) {
		c.Clock = now
	}
}
