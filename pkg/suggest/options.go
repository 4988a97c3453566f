package suggest

import (
	"time"

	"github.com/charmbracelet/log"
)

const (
	// MinUpdateRate and MaxUpdateRate bound the background update interval.
	MinUpdateRate = 5 * time.Second
	MaxUpdateRate = time.Hour

	// DefaultUpdateRate is used when no rate is configured.
	DefaultUpdateRate = 60 * time.Second

	// defaultUpdatePoolSize bounds concurrent background updates.
	defaultUpdatePoolSize = 4
)

// Option configures a Manager.
type Option func(*Manager)

// WithBaseDir sets the root path under which the per-index snapshot folders
// are created. A temporary directory is used when unset.
func WithBaseDir(dir string) Option {
	return func(m *Manager) { m.baseDir = dir }
}

// WithUpdateRate sets the background update interval. Values outside the
// [MinUpdateRate, MaxUpdateRate] range are clamped, not rejected.
func WithUpdateRate(rate time.Duration) Option {
	return func(m *Manager) {
		if rate < MinUpdateRate {
			rate = MinUpdateRate
		} else if rate > MaxUpdateRate {
			rate = MaxUpdateRate
		}
		m.updateRate = rate
	}
}

// WithDataProvider registers a suggestion data source. Repeatable; several
// providers serving the same index lead to a multi-source suggester.
func WithDataProvider(p DataProvider) Option {
	return func(m *Manager) { m.dataProviders = append(m.dataProviders, p) }
}

// WithArchiveProvider registers a persistence layer for built indexes.
// Repeatable; the first provider that has data for an index is used.
func WithArchiveProvider(p ArchiveProvider) Option {
	return func(m *Manager) { m.archiveProviders = append(m.archiveProviders, p) }
}

// WithDefaultLimiter sets the limiter a multi-source suggester uses to cut
// the combined result. Plain truncation when unset.
func WithDefaultLimiter(l Limiter) Option {
	return func(m *Manager) { m.defaultLimiter = l }
}

// WithGroupLimiter wraps every suggester so that the given limiter
// distributes the result space among suggestion groups.
func WithGroupLimiter(l Limiter) Option {
	return func(m *Manager) { m.groupLimiter = l }
}

// WithPrefetchFactor sets how many times more results are fetched before
// group limiting is applied.
func WithPrefetchFactor(factor int) Option {
	return func(m *Manager) {
		if factor > 0 {
			m.prefetchFactor = factor
		}
	}
}

// WithDataMerger merges the data of all sources into one index instead of
// setting up one suggester per source.
func WithDataMerger() Option {
	return func(m *Manager) { m.useDataMerger = true }
}

// WithPreloadIndexes names indexes that are initialized synchronously when
// the manager is created.
func WithPreloadIndexes(indexNames ...string) Option {
	return func(m *Manager) { m.preload = append(m.preload, indexNames...) }
}

// WithIdleTimeout evicts and releases suggesters that have not been asked
// for suggestions within the given duration. Zero disables eviction.
func WithIdleTimeout(d time.Duration) Option {
	return func(m *Manager) { m.idleTimeout = d }
}

// WithUpdatePoolSize bounds the number of concurrently running background
// updates.
func WithUpdatePoolSize(size int) Option {
	return func(m *Manager) {
		if size > 0 {
			m.poolSize = size
		}
	}
}

// WithLogger sets the logger used by the manager and everything it creates.
func WithLogger(logger *log.Logger) Option {
	return func(m *Manager) { m.log = logger }
}
