// Package limiter provides group-aware result limiting for suggestion lists.
// All limiters here group suggestions by a payload entry and distribute the
// limited space among those groups; suggestions without a group entry fall
// into the "other" group.
package limiter

import (
	"strings"

	"github.com/CommerceExperts/smartsuggest/pkg/suggest"
)

// GroupShare binds a group name to its configured value. Order matters for
// all limiter configurations: earlier groups are more important.
type GroupShare struct {
	Group string
	Value float64
}

// GroupLimit binds a group name to a hard result cap.
type GroupLimit struct {
	Group string
	Limit int
}

// grouped holds suggestions partitioned by group key, remembering the order
// in which groups first appeared.
type grouped struct {
	order  []string
	byName map[string][]suggest.Suggestion
}

func groupSuggestions(suggestions []suggest.Suggestion, groupKey string) *grouped {
	g := &grouped{byName: make(map[string][]suggest.Suggestion)}
	for _, s := range suggestions {
		name := s.GroupKey(groupKey)
		if _, seen := g.byName[name]; !seen {
			g.order = append(g.order, name)
		}
		g.byName[name] = append(g.byName[name], s)
	}
	return g
}

func (g *grouped) remove(name string) []suggest.Suggestion {
	list, ok := g.byName[name]
	if !ok {
		return nil
	}
	delete(g.byName, name)
	for i, n := range g.order {
		if n == name {
			g.order = append(g.order[:i], g.order[i+1:]...)
			break
		}
	}
	return list
}

// deduplicate removes suggestions whose trimmed, lowercased label was already
// seen in an earlier group. Groups named in preferredOrder are processed
// first, everything else in appearance order.
func deduplicate(g *grouped, preferredOrder []string) {
	seen := make(map[string]struct{})
	done := make(map[string]struct{}, len(preferredOrder))
	for _, name := range preferredOrder {
		if _, ok := g.byName[name]; !ok {
			continue
		}
		g.byName[name] = removeSeen(seen, g.byName[name])
		done[name] = struct{}{}
	}
	for _, name := range g.order {
		if _, ok := done[name]; ok {
			continue
		}
		g.byName[name] = removeSeen(seen, g.byName[name])
	}
}

func removeSeen(seen map[string]struct{}, list []suggest.Suggestion) []suggest.Suggestion {
	kept := list[:0]
	for _, s := range list {
		key := strings.ToLower(strings.TrimSpace(s.Label))
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		kept = append(kept, s)
	}
	return kept
}
