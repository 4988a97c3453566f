package suggest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/jellydator/ttlcache/v3"
)

// noopRetryDelay is how long a noop suggester is kept before the index is
// probed again for data.
const noopRetryDelay = 10 * time.Minute

// Manager creates and owns the suggesters of all indexes. Every suggester
// it hands out is coupled to a background task that keeps its data fresh,
// so the manager must be closed when the suggesters are no longer in use.
type Manager struct {
	log     *log.Logger
	baseDir string

	updateRate       time.Duration
	dataProviders    []DataProvider
	archiveProviders []ArchiveProvider
	defaultLimiter   Limiter
	groupLimiter     Limiter
	prefetchFactor   int
	useDataMerger    bool
	idleTimeout      time.Duration
	preload          []string
	poolSize         int

	sched    *scheduler
	registry *ttlcache.Cache[string, Suggester]

	// mu serializes suggester creation and destruction.
	mu sync.Mutex

	// tasksMu guards tasks; never taken together with mu from the eviction
	// callback.
	tasksMu sync.Mutex
	tasks   map[string][]string

	closed atomic.Bool
}

// NewManager builds a manager. At least one data provider or archive
// provider is required; indexes named in WithPreloadIndexes are initialized
// before NewManager returns.
func NewManager(opts ...Option) (*Manager, error) {
	m := &Manager{
		log:            log.Default(),
		updateRate:     DefaultUpdateRate,
		prefetchFactor: defaultPrefetchFactor,
		poolSize:       defaultUpdatePoolSize,
		tasks:          make(map[string][]string),
	}
	for _, opt := range opts {
		opt(m)
	}

	if len(m.dataProviders) == 0 && len(m.archiveProviders) == 0 {
		return nil, errors.New("no provider available, pass a data provider or an archive provider")
	}
	if m.baseDir == "" {
		dir, err := os.MkdirTemp("", "smartsuggest-")
		if err != nil {
			return nil, fmt.Errorf("creating index folder: %w", err)
		}
		m.baseDir = dir
	}

	sched, err := newScheduler(m.poolSize, m.log)
	if err != nil {
		return nil, err
	}
	m.sched = sched

	cacheOpts := []ttlcache.Option[string, Suggester]{}
	if m.idleTimeout > 0 {
		cacheOpts = append(cacheOpts, ttlcache.WithTTL[string, Suggester](m.idleTimeout))
	}
	m.registry = ttlcache.New(cacheOpts...)
	m.registry.OnEviction(func(_ context.Context, reason ttlcache.EvictionReason, item *ttlcache.Item[string, Suggester]) {
		// the callback runs on the cache's own goroutine; manual deletes
		// are torn down synchronously by the caller instead
		if reason == ttlcache.EvictionReasonExpired {
			m.releaseSuggester(item.Key(), item.Value(), reason)
		}
	})
	if m.idleTimeout > 0 {
		go m.registry.Start()
	}

	if len(m.preload) > 0 {
		var wg sync.WaitGroup
		for _, indexName := range m.preload {
			wg.Add(1)
			go func(name string) {
				defer wg.Done()
				if _, err := m.GetSuggester(name, true); err != nil {
					m.log.Error("preloading index failed", "index", name, "err", err)
				}
			}(indexName)
		}
		wg.Wait()
	}
	return m, nil
}

// GetSuggester returns the suggester serving the given index, creating it
// on first use. With synchronous set, the first data load happens before
// the call returns; otherwise the suggester starts empty and fills up in
// the background.
func (m *Manager) GetSuggester(indexName string, synchronous bool) (Suggester, error) {
	if m.closed.Load() {
		return nil, ErrManagerClosed
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if item := m.registry.Get(indexName); item != nil {
		if m.anyTaskActive(indexName) {
			return item.Value(), nil
		}
		// all update tasks gave up; drop the stale suggester and retry
		m.registry.Delete(indexName)
		m.releaseSuggester(indexName, item.Value(), ttlcache.EvictionReasonDeleted)
	}

	sug, taskNames, err := m.initializeSuggesters(indexName, synchronous)
	if err != nil {
		return nil, err
	}
	m.tasksMu.Lock()
	m.tasks[indexName] = taskNames
	m.tasksMu.Unlock()
	m.registry.Set(indexName, sug, ttlcache.DefaultTTL)
	return sug, nil
}

// DestroySuggester releases the suggester of the given index and cancels
// its update tasks. A later GetSuggester starts from scratch.
func (m *Manager) DestroySuggester(indexName string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.destroyLocked(indexName)
}

// destroyLocked removes one registry entry and tears it down before
// returning, so callers never observe a destroyed suggester still serving.
func (m *Manager) destroyLocked(indexName string) {
	item := m.registry.Get(indexName, ttlcache.WithDisableTouchOnHit[string, Suggester]())
	if item == nil {
		return
	}
	m.registry.Delete(indexName)
	m.releaseSuggester(indexName, item.Value(), ttlcache.EvictionReasonDeleted)
}

// Close cancels all update tasks and releases every suggester. The manager
// is unusable afterwards.
func (m *Manager) Close() error {
	if m.closed.Swap(true) {
		return nil
	}
	m.mu.Lock()
	for _, indexName := range m.registry.Keys() {
		m.destroyLocked(indexName)
	}
	m.mu.Unlock()
	if m.idleTimeout > 0 {
		// the expiry loop only runs when a TTL is configured
		m.registry.Stop()
	}
	m.sched.close()
	return nil
}

// releaseSuggester tears down one suggester: cancel its update tasks, then
// close it. Shared by explicit destroys and idle expiry.
func (m *Manager) releaseSuggester(indexName string, sug Suggester, reason ttlcache.EvictionReason) {
	m.tasksMu.Lock()
	taskNames := m.tasks[indexName]
	delete(m.tasks, indexName)
	m.tasksMu.Unlock()
	for _, name := range taskNames {
		m.sched.cancel(name)
	}
	if err := sug.Close(); err != nil {
		m.log.Warn("failed to close suggester", "index", indexName, "err", err)
	}
	if reason == ttlcache.EvictionReasonExpired {
		m.log.Info("released idle suggester", "index", indexName)
	} else {
		m.log.Info("destroyed suggester", "index", indexName)
	}
}

func (m *Manager) anyTaskActive(indexName string) bool {
	m.tasksMu.Lock()
	taskNames := m.tasks[indexName]
	m.tasksMu.Unlock()
	for _, name := range taskNames {
		if m.sched.active(name) {
			return true
		}
	}
	return false
}

// initializeSuggesters assembles the suggester stack of one index from the
// providers that have data for it.
func (m *Manager) initializeSuggesters(indexName string, synchronous bool) (Suggester, []string, error) {
	m.log.Info("initializing suggest index", "index", indexName, "synchronous", synchronous)

	var sources []DataProvider
	for _, p := range m.dataProviders {
		if p.HasData(indexName) {
			sources = append(sources, p)
		} else {
			m.log.Info("data provider has no data for index, skipping",
				"provider", p.Name(), "index", indexName)
		}
	}

	// with several archive providers, prefer the first one that has data
	var archive ArchiveProvider
	for _, ap := range m.archiveProviders {
		if ap.HasData(indexName) {
			archive = ap
			break
		}
	}
	if archive == nil && len(m.archiveProviders) > 0 {
		archive = m.archiveProviders[0]
	}

	if len(sources) == 0 && archive == nil {
		return m.noopSuggester(indexName)
	}

	var (
		sug       Suggester
		taskNames []string
		err       error
	)
	switch {
	case len(sources) == 0:
		if compound, ok := archive.(CompoundArchiveProvider); ok && len(compound.IndexSuffixes(indexName)) > 1 {
			sug, taskNames, err = m.multiSourceSuggester(indexName, nil, archive, synchronous)
		} else {
			sug, taskNames, err = m.buildSuggester(indexName, "", nil, archive, synchronous)
		}
	case len(sources) == 1:
		sug, taskNames, err = m.buildSuggester(indexName, "", sources[0], archive, synchronous)
	default:
		sug, taskNames, err = m.multiSourceSuggester(indexName, sources, archive, synchronous)
	}
	if err != nil {
		return nil, nil, err
	}

	if m.groupLimiter != nil {
		sug = NewGroupingSuggester(sug, m.groupLimiter, m.prefetchFactor)
	}
	return sug, taskNames, nil
}

// noopSuggester serves empty results for an index no provider knows. It is
// kept for a grace period, then invalidated so a later request probes the
// providers again.
func (m *Manager) noopSuggester(indexName string) (Suggester, []string, error) {
	m.log.Warn("no provider has data for index, serving empty results", "index", indexName)
	taskName := indexName + "/noop"
	m.sched.schedule(taskName, noopRetryDelay, noopRetryDelay, func() Outcome {
		m.log.Info("invalidating empty suggester", "index", indexName)
		return OutcomeStop
	})
	return &NoopSuggester{Alive: true}, []string{taskName}, nil
}

// multiSourceSuggester serves an index fed by several sources, either as
// one merged index or as a compound of per-source suggesters.
func (m *Manager) multiSourceSuggester(indexName string, sources []DataProvider, archive ArchiveProvider, synchronous bool) (Suggester, []string, error) {
	compound, isCompound := archive.(CompoundArchiveProvider)

	// a plain archive provider can only hold one archive per index, which
	// forces the merged layout
	canUseCompound := archive == nil || isCompound
	if m.useDataMerger || !canUseCompound {
		if !m.useDataMerger {
			m.log.Warn("merging data sources because the archive provider only holds a single archive per index",
				"index", indexName)
		} else {
			m.log.Info("merging data sources", "index", indexName, "sources", len(sources))
		}
		merged := NewMergingDataProvider(sources, m.log)
		return m.buildSuggester(indexName, MergedType, merged, archive, synchronous)
	}

	var (
		suggesters []Suggester
		taskNames  []string
	)
	if len(sources) == 0 {
		// restore-only mode: one suggester per archived source
		for _, suffix := range compound.IndexSuffixes(indexName) {
			sug, names, err := m.buildSuggester(indexName, suffix, nil, ScopedArchiveProvider(compound, suffix), synchronous)
			if err != nil {
				return nil, nil, err
			}
			suggesters = append(suggesters, sug)
			taskNames = append(taskNames, names...)
		}
	} else {
		for _, source := range sources {
			var scoped ArchiveProvider
			if isCompound {
				scoped = ScopedArchiveProvider(compound, source.Name())
			}
			sug, names, err := m.buildSuggester(indexName, source.Name(), source, scoped, synchronous)
			if err != nil {
				return nil, nil, err
			}
			suggesters = append(suggesters, sug)
			taskNames = append(taskNames, names...)
		}
	}
	return NewCompoundSuggester(suggesters, m.defaultLimiter), taskNames, nil
}

// buildSuggester wires proxy, factory and updater for one (index, source)
// pair and schedules the recurring update.
func (m *Manager) buildSuggester(indexName, sourceName string, source DataProvider, archive ArchiveProvider, synchronous bool) (Suggester, []string, error) {
	proxy := NewProxy(indexName, m.log)

	dir, err := os.MkdirTemp(m.baseDir, indexName+"_")
	if err != nil {
		return nil, nil, fmt.Errorf("creating index folder for %s: %w", indexName, err)
	}
	factory, err := NewTrieFactory(dir)
	if err != nil {
		return nil, nil, err
	}

	updater, err := NewUpdater(indexName, source, archive, factory, proxy, m.log)
	if err != nil {
		return nil, nil, err
	}

	taskName := indexName
	if sourceName != "" {
		taskName = indexName + "/" + sourceName
	}
	var initialDelay time.Duration
	if synchronous {
		updater.Run()
		initialDelay = m.updateRate
	}
	m.sched.schedule(taskName, initialDelay, m.updateRate, updater.Run)

	m.log.Info("suggester initialized", "index", indexName, "task", taskName)
	return proxy, []string{taskName}, nil
}
