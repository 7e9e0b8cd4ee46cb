package repository

import (
	"time"

	"github.com/okian/promptelo/pkg/logger"
)

// Option applies a configuration option to the MemoryStore.
type Option func(*MemoryStore)

// WithMetricsUpdateInterval sets the interval for background metrics updates.
func WithMetricsUpdateInterval(interval time.Duration) Option {
	return func(s *MemoryStore) {
		if interval > 0 {
			s.metricsUpdateInterval = interval
		}
	}
}

// WithCapacity bounds how many results are retained; the oldest are evicted first.
// Zero keeps everything.
func WithCapacity(n int) Option {
	return func(s *MemoryStore) {
		if n >= 0 {
			s.capacity = n
		}
	}
}

// PostgresOption configures a PostgresStore.
type PostgresOption func(*PostgresStore)

// WithPostgresLogger sets the logger.
func WithPostgresLogger(l logger.Logger) PostgresOption {
	return func(s *PostgresStore) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithoutMigrate skips applying the embedded schema on open.
func WithoutMigrate() PostgresOption {
	return func(s *PostgresStore) { s.migrate = false }
}
