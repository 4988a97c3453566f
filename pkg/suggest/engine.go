package suggest

import (
	"sort"
	"strings"
	"sync/atomic"

	"github.com/tchap/go-patricia/v2/patricia"
)

// Payload keys attached to suggestions by the engine.
const (
	// PayloadMatchGroupKey tells which match tier produced a suggestion.
	PayloadMatchGroupKey = "meta.matchGroupName"

	MatchGroupBest      = "best matches"
	MatchGroupFuzzy     = "fuzzy matches"
	MatchGroupSharpened = "sharpened matches"
	MatchGroupRelaxed   = "relaxed matches"
)

// maxSharpenedQueries caps how many curated overrides lead a result list.
const maxSharpenedQueries = 12

// TrieSuggester is the in-process engine: a patricia trie over the normalized
// search-text variants of all records of exactly one dataset. It is read-only
// after Commit, which makes concurrent reads safe without locking.
type TrieSuggester struct {
	trie      *patricia.Trie
	records   []Record
	data      *Dataset
	sharpened map[string][]string
	relaxed   map[string][]string
	stopwords map[string]struct{}

	// variantWeights feeds the fuzzy fallback dictionary; per variant the
	// highest weight of the records behind it.
	variantWeights map[string]int64
	fuzzy          *fuzzyMatcher

	ready  bool
	closed atomic.Bool
}

// NewTrieSuggester prepares an empty engine for the given dataset. Call
// Index with the dataset's records and then Commit before serving queries;
// the Factory does this for every build.
func NewTrieSuggester(data *Dataset) *TrieSuggester {
	stopwords := make(map[string]struct{}, len(data.Stopwords))
	for _, w := range data.Stopwords {
		stopwords[strings.ToLower(w)] = struct{}{}
	}
	return &TrieSuggester{
		trie:           patricia.NewTrie(),
		data:           data,
		sharpened:      data.SharpenedQueries,
		relaxed:        data.RelaxedQueries,
		stopwords:      stopwords,
		variantWeights: make(map[string]int64),
	}
}

// Index inserts the given records. Not safe to call after Commit.
func (t *TrieSuggester) Index(records []Record) {
	for _, rec := range records {
		idx := len(t.records)
		t.records = append(t.records, rec)
		for _, variant := range t.variants(rec.SearchText()) {
			t.insert(variant, idx, rec.Weight)
		}
	}
}

// Commit finalizes the build: the fuzzy dictionary is derived from the
// indexed variants and the engine becomes ready. No inserts afterwards.
func (t *TrieSuggester) Commit() {
	t.fuzzy = newFuzzyMatcher(t.variantWeights)
	t.ready = true
}

// variants returns the normalized prefix-match entry points of a search
// text: the full text plus every word-start suffix, so "blue shoes" is
// found by "blu" as well as "sho". Stopwords are dropped entirely.
func (t *TrieSuggester) variants(text string) []string {
	tokens := strings.Fields(strings.ToLower(text))
	kept := tokens[:0]
	for _, tok := range tokens {
		if _, stop := t.stopwords[tok]; !stop {
			kept = append(kept, tok)
		}
	}
	if len(kept) == 0 {
		return nil
	}
	variants := make([]string, 0, len(kept))
	for i := range kept {
		variants = append(variants, strings.Join(kept[i:], " "))
	}
	return variants
}

func (t *TrieSuggester) insert(variant string, recordIdx int, weight int64) {
	prefix := patricia.Prefix(variant)
	if item := t.trie.Get(prefix); item != nil {
		t.trie.Set(prefix, append(item.([]int), recordIdx))
	} else {
		t.trie.Insert(prefix, []int{recordIdx})
	}
	if w, ok := t.variantWeights[variant]; !ok || weight > w {
		t.variantWeights[variant] = weight
	}
}

// Suggest implements the Suggester contract. Results are tiered: sharpened
// overrides first, then exact prefix matches ranked by weight, then - only
// without a tag filter and without exact matches - fuzzy fallback matches,
// then relaxed overrides to fill up a short list.
func (t *TrieSuggester) Suggest(term string, maxResults int, tags []string) []Suggestion {
	if t.closed.Load() || !t.ready {
		return nil
	}
	if maxResults <= 0 {
		maxResults = DefaultMaxResults
	}
	norm := strings.ToLower(strings.TrimSpace(term))
	if norm == "" {
		return nil
	}

	seen := make(map[string]struct{})
	out := make([]Suggestion, 0, maxResults)

	for _, label := range t.sharpenedFor(norm) {
		if !addUnique(&out, seen, Suggestion{
			Label:    label,
			Promoted: true,
			Payload:  map[string]string{PayloadMatchGroupKey: MatchGroupSharpened},
		}, maxResults) {
			break
		}
	}

	exact := t.collect(norm, tags, MatchGroupBest)
	rankSuggestions(exact)
	for _, s := range exact {
		if !addUnique(&out, seen, s, maxResults) {
			break
		}
	}

	// Fuzzy fallback only kicks in when the exact lookup found nothing at
	// all. Tag filters disable it: a correction could bypass the filter's
	// intent on sparse groups.
	if len(exact) == 0 && len(tags) == 0 && len(out) < maxResults {
		if corrected, ok := t.fuzzy.correct(norm); ok {
			fuzzy := t.collect(corrected, nil, MatchGroupFuzzy)
			rankSuggestions(fuzzy)
			for _, s := range fuzzy {
				if !addUnique(&out, seen, s, maxResults) {
					break
				}
			}
		}
	}

	if len(out) < maxResults && t.relaxed != nil {
		for _, label := range t.relaxed[norm] {
			if !addUnique(&out, seen, Suggestion{
				Label:   label,
				Payload: map[string]string{PayloadMatchGroupKey: MatchGroupRelaxed},
			}, maxResults) {
				break
			}
		}
	}

	return out
}

func (t *TrieSuggester) sharpenedFor(norm string) []string {
	if t.sharpened == nil {
		return nil
	}
	labels := t.sharpened[norm]
	if len(labels) > maxSharpenedQueries {
		labels = labels[:maxSharpenedQueries]
	}
	return labels
}

// collect gathers one suggestion per distinct record under the given prefix.
// The returned label is always the record's primary text, even when the
// match happened on a secondary-text variant.
func (t *TrieSuggester) collect(prefix string, tags []string, matchGroup string) []Suggestion {
	var results []Suggestion
	seenRecords := make(map[int]struct{})

	_ = t.trie.VisitSubtree(patricia.Prefix(prefix), func(_ patricia.Prefix, item patricia.Item) error {
		for _, idx := range item.([]int) {
			if _, dup := seenRecords[idx]; dup {
				continue
			}
			seenRecords[idx] = struct{}{}
			rec := &t.records[idx]
			if !matchesTags(rec.Tags, tags) {
				continue
			}
			results = append(results, recordSuggestion(rec, matchGroup))
		}
		return nil
	})
	return results
}

func recordSuggestion(rec *Record, matchGroup string) Suggestion {
	payload := make(map[string]string, len(rec.Payload)+1)
	for k, v := range rec.Payload {
		payload[k] = v
	}
	payload[PayloadMatchGroupKey] = matchGroup
	return Suggestion{
		Label:   rec.PrimaryText,
		Weight:  rec.Weight,
		Tags:    rec.Tags,
		Payload: payload,
	}
}

// matchesTags is the hard tag filter: with a non-empty filter the record
// must carry at least one of the requested tags.
func matchesTags(recordTags, filter []string) bool {
	if len(filter) == 0 {
		return true
	}
	for _, want := range filter {
		for _, have := range recordTags {
			if have == want {
				return true
			}
		}
	}
	return false
}

// rankSuggestions orders by weight descending, promoted entries winning
// ties, with the label's lexical order as the final tie break.
func rankSuggestions(s []Suggestion) {
	sort.SliceStable(s, func(i, j int) bool {
		if s[i].Weight != s[j].Weight {
			return s[i].Weight > s[j].Weight
		}
		if s[i].Promoted != s[j].Promoted {
			return s[i].Promoted
		}
		return s[i].Label < s[j].Label
	})
}

func addUnique(out *[]Suggestion, seen map[string]struct{}, s Suggestion, maxResults int) bool {
	if len(*out) >= maxResults {
		return false
	}
	key := strings.ToLower(strings.TrimSpace(s.Label))
	if _, dup := seen[key]; dup {
		return true
	}
	seen[key] = struct{}{}
	*out = append(*out, s)
	return len(*out) < maxResults
}

// Dataset returns the dataset this engine was built from. The factory uses
// it to package archives.
func (t *TrieSuggester) Dataset() *Dataset { return t.data }

func (t *TrieSuggester) RecordCount() int { return len(t.records) }

func (t *TrieSuggester) Ready() bool { return t.ready && !t.closed.Load() }

// ModTime reports the mod-time of the underlying dataset in epoch millis.
func (t *TrieSuggester) ModTime() int64 { return t.data.ModTime }

func (t *TrieSuggester) Close() error {
	t.closed.Store(true)
	return nil
}
