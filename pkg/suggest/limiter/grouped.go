package limiter

import "github.com/CommerceExperts/smartsuggest/pkg/suggest"

// GroupedCutOffLimiter groups the result by the configured payload entry and
// caps each group at its configured size. Configured groups come first, in
// configuration order. Groups without a configuration are appended only while
// there is space left, each capped at DefaultLimit.
//
// A result shorter than the limit stays short; this limiter never invents
// suggestions to fill the gap.
type GroupedCutOffLimiter struct {
	// GroupKey is the payload entry holding the group name.
	GroupKey string

	// DefaultLimit caps groups that have no entry in Limits.
	DefaultLimit int

	// Limits caps the configured groups, most important first.
	Limits []GroupLimit

	// DeduplicationOrder, when non-empty, enables label deduplication with
	// the named groups keeping their suggestions first.
	DeduplicationOrder []string
}

var _ suggest.Limiter = (*GroupedCutOffLimiter)(nil)

func (l *GroupedCutOffLimiter) Limit(suggestions []suggest.Suggestion, limit int) []suggest.Suggestion {
	groups := groupSuggestions(suggestions, l.GroupKey)
	if len(l.DeduplicationOrder) > 0 {
		deduplicate(groups, l.DeduplicationOrder)
	}

	final := make([]suggest.Suggestion, 0, min(limit, len(suggestions)))
	for _, conf := range l.Limits {
		list := groups.remove(conf.Group)
		if list == nil {
			continue
		}
		final = append(final, list[:min(len(list), conf.Limit)]...)
	}

	for _, name := range groups.order {
		if len(final) >= limit {
			break
		}
		list := groups.byName[name]
		groupLimit := min(limit-len(final), len(list))
		groupLimit = min(l.DefaultLimit, groupLimit)
		final = append(final, list[:groupLimit]...)
	}

	if len(final) > limit {
		final = final[:limit]
	}
	return final
}
