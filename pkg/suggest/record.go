// Package suggest is the core of the suggestion serving layer: the data model,
// the trie-backed suggester engine, the hot-swap proxy and the per-index
// manager with its background update scheduling.
package suggest

// Record is one indexable unit of suggestion source data.
type Record struct {
	// PrimaryText is the label shown to the user when this record matches.
	PrimaryText string `msgpack:"primary" json:"primary"`

	// SecondaryText is matched against instead of PrimaryText when set.
	// Useful when the searchable variants differ from the display label.
	SecondaryText string `msgpack:"secondary,omitempty" json:"secondary,omitempty"`

	// Weight ranks this record against others. Higher is better.
	Weight int64 `msgpack:"weight" json:"weight"`

	// Tags are group/context labels used for filtering and group limits.
	Tags []string `msgpack:"tags,omitempty" json:"tags,omitempty"`

	// Payload is carried through into the resulting suggestions untouched.
	Payload map[string]string `msgpack:"payload,omitempty" json:"payload,omitempty"`
}

// SearchText returns the text this record is matched against.
func (r *Record) SearchText() string {
	if r.SecondaryText != "" {
		return r.SecondaryText
	}
	return r.PrimaryText
}

// Dataset is one versioned, complete snapshot of records for a single index.
// A dataset is immutable once produced; one dataset leads to one engine build.
type Dataset struct {
	// Type labels the data source this dataset came from, e.g. "queries"
	// or "brands". The merging provider sets it to "merged".
	Type string `msgpack:"type" json:"type"`

	// ModTime is the creation time of this data in epoch milliseconds.
	// If set, it must equal the value the provider reports via LastModTime,
	// otherwise the update is rejected.
	ModTime int64 `msgpack:"mod_time" json:"mod_time"`

	Records []Record `msgpack:"records" json:"records"`

	// SharpenedQueries promote curated suggestions for an exact input term,
	// ahead of all regular matches.
	SharpenedQueries map[string][]string `msgpack:"sharpened,omitempty" json:"sharpened,omitempty"`

	// RelaxedQueries are offered when the full input yields too few results.
	RelaxedQueries map[string][]string `msgpack:"relaxed,omitempty" json:"relaxed,omitempty"`

	// Stopwords are dropped from the search text at index and query time.
	Stopwords []string `msgpack:"stopwords,omitempty" json:"stopwords,omitempty"`
}

// Suggestion is one ranked output unit of a query. Never persisted.
type Suggestion struct {
	Label    string            `json:"label"`
	Weight   int64             `json:"weight"`
	Promoted bool              `json:"promoted,omitempty"`
	Tags     []string          `json:"tags,omitempty"`
	Payload  map[string]string `json:"payload,omitempty"`
}

// GroupKey returns the value of the given payload key, or "other" if the
// suggestion carries no payload or no such entry. Limiters group by this.
func (s *Suggestion) GroupKey(key string) string {
	if s.Payload != nil {
		if g, ok := s.Payload[key]; ok {
			return g
		}
	}
	return GroupOther
}

// GroupOther is the group assigned to suggestions without a group entry.
const GroupOther = "other"

// Archive is the durable, serialized form of a dataset plus its modification
// time. The blob lives at File until it is loaded or stored.
type Archive struct {
	File    string
	ModTime int64

	// Temp marks File as a process-local download that the consumer removes
	// after loading it.
	Temp bool
}
