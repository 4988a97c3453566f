package suggest

// CompoundSuggester fans a query out to the suggesters of several data
// sources and merges the result lists at query time. Per-source tagging and
// filtering semantics stay exactly as they are for a single source.
type CompoundSuggester struct {
	suggesters []Suggester
	limiter    Limiter
}

// NewCompoundSuggester combines the given suggesters. The limiter balances
// the concatenated results; if nil, a plain cut-off is applied.
func NewCompoundSuggester(suggesters []Suggester, limiter Limiter) *CompoundSuggester {
	if limiter == nil {
		limiter = CutOffLimiter{}
	}
	return &CompoundSuggester{suggesters: suggesters, limiter: limiter}
}

func (c *CompoundSuggester) Suggest(term string, maxResults int, tags []string) []Suggestion {
	if len(c.suggesters) == 0 {
		return nil
	}
	if len(c.suggesters) == 1 {
		return c.suggesters[0].Suggest(term, maxResults, tags)
	}
	var combined []Suggestion
	for _, s := range c.suggesters {
		combined = append(combined, s.Suggest(term, maxResults, tags)...)
	}
	return c.limiter.Limit(combined, maxResults)
}

func (c *CompoundSuggester) RecordCount() int {
	count := 0
	for _, s := range c.suggesters {
		count += s.RecordCount()
	}
	return count
}

func (c *CompoundSuggester) Ready() bool {
	for _, s := range c.suggesters {
		if !s.Ready() {
			return false
		}
	}
	return true
}

func (c *CompoundSuggester) Close() error {
	var firstErr error
	for _, s := range c.suggesters {
		if err := s.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// defaultPrefetchFactor leaves the fetch size untouched unless configured.
const defaultPrefetchFactor = 1

// GroupingSuggester applies a group-aware limiter on top of a single
// suggester. It over-fetches by prefetchFactor so the limiter has enough
// candidates per group to fill its quotas.
type GroupingSuggester struct {
	inner          Suggester
	limiter        Limiter
	prefetchFactor int
}

func NewGroupingSuggester(inner Suggester, limiter Limiter, prefetchFactor int) *GroupingSuggester {
	if prefetchFactor < 1 {
		prefetchFactor = 1
	}
	return &GroupingSuggester{inner: inner, limiter: limiter, prefetchFactor: prefetchFactor}
}

func (g *GroupingSuggester) Suggest(term string, maxResults int, tags []string) []Suggestion {
	results := g.inner.Suggest(term, maxResults*g.prefetchFactor, tags)
	return g.limiter.Limit(results, maxResults)
}

func (g *GroupingSuggester) RecordCount() int { return g.inner.RecordCount() }
func (g *GroupingSuggester) Ready() bool      { return g.inner.Ready() }
func (g *GroupingSuggester) Close() error     { return g.inner.Close() }

// CutOffLimiter simply truncates the ranked list; the default when no
// group policy is configured.
type CutOffLimiter struct{}

func (CutOffLimiter) Limit(suggestions []Suggestion, maxTotal int) []Suggestion {
	if len(suggestions) > maxTotal {
		return suggestions[:maxTotal]
	}
	return suggestions
}
