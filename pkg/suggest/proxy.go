package suggest

import (
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	lru "github.com/hashicorp/golang-lru/v2"
)

const (
	// cacheLetterLength is the longest term length served from the
	// short-prefix cache. One- to three-letter prefixes hit a large part
	// of the traffic and are the most expensive trie scans.
	cacheLetterLength = 3

	// maxCachedResults is how many suggestions a cache entry holds.
	maxCachedResults = 10

	cacheMaxSize = 10_000
)

// suggesterBox wraps the delegate for atomic publication; atomic.Pointer
// needs one stable concrete type.
type suggesterBox struct{ s Suggester }

// Proxy is a Suggester that forwards to an internally swappable delegate.
// Callers keep one stable handle per index while background updates replace
// the engine behind it. Readers never observe a half-swapped state: the
// delegate is published with a single atomic store, after the short-prefix
// cache has already been re-primed against the new engine.
type Proxy struct {
	indexName string
	delegate  atomic.Pointer[suggesterBox]
	closed    atomic.Bool

	// updates are serialized; reads are lock-free.
	updateMu sync.Mutex

	shortPrefixCache *lru.Cache[string, []Suggestion]
	log              *log.Logger
}

// NewProxy returns a proxy for the given index, initially serving empty
// results via a no-op engine so callers never see an uninitialized state.
func NewProxy(indexName string, logger *log.Logger) *Proxy {
	cache, _ := lru.New[string, []Suggestion](cacheMaxSize)
	p := &Proxy{
		indexName:        indexName,
		shortPrefixCache: cache,
		log:              logger,
	}
	p.delegate.Store(&suggesterBox{s: NoopSuggester{}})
	return p
}

// Delegate returns the currently installed engine.
func (p *Proxy) Delegate() Suggester {
	return p.delegate.Load().s
}

// UpdateDelegate re-primes the short-prefix cache against the new engine,
// atomically publishes it and releases the previous engine in the
// background. Returns ErrClosed once the proxy was closed, so a build that
// finishes after a destroy discards its result instead of resurrecting the
// suggester.
func (p *Proxy) UpdateDelegate(next Suggester) error {
	if p.closed.Load() {
		return ErrClosed
	}
	p.updateMu.Lock()
	defer p.updateMu.Unlock()
	if p.closed.Load() {
		return ErrClosed
	}

	start := time.Now()
	keys := p.shortPrefixCache.Keys()
	for _, term := range keys {
		p.shortPrefixCache.Add(term, next.Suggest(term, maxCachedResults, nil))
	}
	if len(keys) > 0 {
		p.log.Debug("re-primed short-prefix cache",
			"index", p.indexName, "entries", len(keys), "took", time.Since(start))
	}

	old := p.delegate.Swap(&suggesterBox{s: next})
	p.log.Info("updated suggester",
		"index", p.indexName, "records", next.RecordCount(), "previousRecords", old.s.RecordCount())

	// old engine may still serve in-flight reads; release it off the swap path
	go func(s Suggester) {
		if err := s.Close(); err != nil {
			p.log.Warn("failed to release replaced suggester", "index", p.indexName, "err", err)
		}
	}(old.s)
	return nil
}

// Suggest serves short prefixes from the bounded cache and everything else
// straight from the live engine. A closed proxy returns empty results so
// callers never have to special-case shutdown races.
func (p *Proxy) Suggest(term string, maxResults int, tags []string) []Suggestion {
	if p.closed.Load() {
		return nil
	}
	norm := strings.ToLower(strings.TrimSpace(term))
	if norm == "" {
		return nil
	}
	if maxResults <= 0 {
		maxResults = DefaultMaxResults
	}

	if len(norm) <= cacheLetterLength && len(tags) == 0 && maxResults <= maxCachedResults {
		if cached, ok := p.shortPrefixCache.Get(norm); ok {
			return cloneSuggestions(cached, maxResults)
		}
		box := p.delegate.Load()
		results := box.s.Suggest(norm, maxCachedResults, nil)
		// fill the cache only when no swap raced the lookup; a result
		// computed against a replaced engine must not overwrite the
		// re-primed entries
		if p.updateMu.TryLock() {
			if p.delegate.Load() == box {
				p.shortPrefixCache.Add(norm, results)
			}
			p.updateMu.Unlock()
		}
		return cloneSuggestions(results, maxResults)
	}
	return p.Delegate().Suggest(norm, maxResults, tags)
}

// cloneSuggestions copies cached entries so callers can't mutate the cache.
func cloneSuggestions(cached []Suggestion, maxResults int) []Suggestion {
	if len(cached) > maxResults {
		cached = cached[:maxResults]
	}
	cloned := make([]Suggestion, len(cached))
	for i, s := range cached {
		cloned[i] = s
		if s.Payload != nil {
			payload := make(map[string]string, len(s.Payload))
			for k, v := range s.Payload {
				payload[k] = v
			}
			cloned[i].Payload = payload
		}
	}
	return cloned
}

func (p *Proxy) RecordCount() int { return p.Delegate().RecordCount() }

func (p *Proxy) Ready() bool { return !p.closed.Load() && p.Delegate().Ready() }

// Close marks the proxy closed and releases the current engine. Subsequent
// UpdateDelegate calls fail with ErrClosed; Suggest returns empty results.
func (p *Proxy) Close() error {
	if p.closed.Swap(true) {
		return nil
	}
	p.updateMu.Lock()
	defer p.updateMu.Unlock()
	p.shortPrefixCache.Purge()
	return p.Delegate().Close()
}
