package limiter

import (
	"math"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/CommerceExperts/smartsuggest/pkg/suggest"
)

// ShareKeyEnvPrefix names the environment variables that may configure the
// share of an unconfigured group, e.g. SUGGEST_GROUP_SHARE_BRAND=0.2.
const ShareKeyEnvPrefix = "SUGGEST_GROUP_SHARE_"

// ConfigurableShareLimiter distributes the limited space among suggestion
// groups according to configured shares, e.g. keyword=0.5, brand=0.3,
// category=0.2. Shares that do not sum up to 1 are normalized. The order of
// the returned groups follows the configuration order; groups encountered at
// runtime without a configured share are appended.
//
// Unconfigured groups get the remaining share split evenly when the
// configured shares sum up to less than 1, otherwise the smallest configured
// share. When rounding leaves space, it is filled from the groups' leftover
// suggestions in priority order.
type ConfigurableShareLimiter struct {
	groupKey           string
	deduplicationOrder []string
	dedup              bool

	mu sync.Mutex
	// origShares holds only explicitly configured shares (constructor or
	// environment), normalizedShares additionally the derived ones.
	origShares       []GroupShare
	normalizedOrder  []string
	normalizedShares map[string]float64
}

var _ suggest.Limiter = (*ConfigurableShareLimiter)(nil)

// NewConfigurableShareLimiter builds a share limiter. A non-nil
// deduplicationOrder (even an empty one) enables label deduplication, with
// the named groups keeping their suggestions first.
func NewConfigurableShareLimiter(groupKey string, shares []GroupShare, deduplicationOrder []string) *ConfigurableShareLimiter {
	l := &ConfigurableShareLimiter{
		groupKey:           groupKey,
		deduplicationOrder: deduplicationOrder,
		dedup:              deduplicationOrder != nil,
		normalizedShares:   make(map[string]float64),
	}
	for _, s := range shares {
		l.origShares = append(l.origShares, s)
		l.normalizedOrder = append(l.normalizedOrder, s.Group)
		l.normalizedShares[s.Group] = s.Value
	}
	normalizeShares(l.normalizedShares)
	return l
}

func (l *ConfigurableShareLimiter) Limit(suggestions []suggest.Suggestion, limit int) []suggest.Suggestion {
	if len(suggestions) <= limit {
		return suggestions
	}

	groups := groupSuggestions(suggestions, l.groupKey)
	if l.dedup {
		deduplicate(groups, l.deduplicationOrder)
	}
	if len(groups.order) == 1 {
		return suggestions[:limit]
	}

	l.mu.Lock()
	for _, name := range groups.order {
		if _, ok := l.normalizedShares[name]; !ok {
			l.updateShareConfiguration(groups.order)
			break
		}
	}
	resultShares := make(map[string]float64, len(groups.order))
	for _, name := range groups.order {
		resultShares[name] = l.normalizedShares[name]
	}
	shareOrder := make([]string, len(l.normalizedOrder))
	copy(shareOrder, l.normalizedOrder)
	l.mu.Unlock()
	normalizeShares(resultShares)

	limited := make([]suggest.Suggestion, 0, limit)
	var remaining []suggest.Suggestion
	insertIndexes := make(map[string]int, len(groups.order))

	for _, name := range shareOrder {
		list, ok := groups.byName[name]
		if !ok {
			continue
		}
		groupLimit := min(int(math.Round(resultShares[name]*float64(limit))), len(list))
		limited = append(limited, list[:groupLimit]...)
		if groupLimit < len(list) {
			remaining = append(remaining, list[groupLimit:]...)
			insertIndexes[name] = groupLimit
		}
	}

	// rounding can leave the list longer or shorter than the limit; truncate
	// the least important groups or fill from the leftovers in priority order
	if len(limited) > limit {
		return limited[:limit]
	}
	for len(limited) < limit && len(remaining) > 0 {
		next := remaining[0]
		remaining = remaining[1:]
		at := insertIndexes[next.GroupKey(l.groupKey)]
		limited = append(limited[:at], append([]suggest.Suggestion{next}, limited[at:]...)...)
		insertIndexes[next.GroupKey(l.groupKey)] = at + 1
	}
	return limited
}

// updateShareConfiguration extends the normalized configuration with shares
// for groups seen the first time, either from environment variables or
// derived from the configured shares. Caller holds the lock.
func (l *ConfigurableShareLimiter) updateShareConfiguration(names []string) {
	var unknown []string
	for _, name := range names {
		if l.hasOrigShare(name) {
			continue
		}
		share := envShare(name)
		if share > 0 {
			l.origShares = append(l.origShares, GroupShare{Group: name, Value: share})
		} else {
			unknown = append(unknown, name)
		}
	}

	next := make(map[string]float64, len(l.origShares)+len(unknown))
	nextOrder := make([]string, 0, len(l.origShares)+len(unknown))
	for _, s := range l.origShares {
		next[s.Group] = s.Value
		nextOrder = append(nextOrder, s.Group)
	}

	if len(unknown) > 0 {
		minShare, sum := 1.0, 0.0
		for _, s := range l.origShares {
			sum += s.Value
			if s.Value < minShare {
				minShare = s.Value
			}
		}
		sharePerKey := minShare
		if sum < 1 {
			sharePerKey = (1.0 - sum) / float64(len(unknown))
		}
		// not added to origShares: a later configured group changes what
		// the unknown ones should get
		for _, name := range unknown {
			next[name] = sharePerKey
			nextOrder = append(nextOrder, name)
		}
	}

	normalizeShares(next)
	for _, name := range nextOrder {
		if _, known := l.normalizedShares[name]; !known {
			l.normalizedOrder = append(l.normalizedOrder, name)
		}
		l.normalizedShares[name] = next[name]
	}
}

func (l *ConfigurableShareLimiter) hasOrigShare(name string) bool {
	for _, s := range l.origShares {
		if s.Group == name {
			return true
		}
	}
	return false
}

func envShare(group string) float64 {
	raw, ok := os.LookupEnv(ShareKeyEnvPrefix + strings.ToUpper(group))
	if !ok {
		return 0
	}
	share, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0
	}
	return share
}

func normalizeShares(shares map[string]float64) {
	if len(shares) == 0 {
		return
	}
	var sum float64
	for _, v := range shares {
		sum += v
	}
	if sum <= 0 {
		if sum < 0 {
			log.Warn("share configuration has invalid values, distributing evenly")
		}
		sum = float64(len(shares))
	}
	if sum != 1.0 {
		factor := 1.0 / sum
		for k, v := range shares {
			shares[k] = v * factor
		}
	}
}
