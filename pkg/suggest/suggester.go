package suggest

// Suggester answers prefix queries for one index. Implementations must be
// safe for concurrent readers; Suggest never blocks on I/O.
type Suggester interface {
	// Suggest returns at most maxResults ranked suggestions for term.
	// tags, if non-empty, act as a hard filter: only records carrying at
	// least one of the given tags are matched. "No data yet" and "closed"
	// both yield an empty result, never an error.
	Suggest(term string, maxResults int, tags []string) []Suggestion

	// RecordCount reports how many records the suggester was built from.
	RecordCount() int

	// Ready reports whether the suggester has been built from real data.
	Ready() bool

	// Close releases the suggester's resources. Safe to call twice.
	Close() error
}

// DefaultMaxResults is used when a caller passes a non-positive limit.
const DefaultMaxResults = 10

// DataProvider supplies versioned datasets for indexes. Implementations must
// be safe to call concurrently for different index names and should treat
// "no data" and "error" as distinguishable outcomes.
type DataProvider interface {
	// Name identifies this provider, used for compound archive keying
	// and logging.
	Name() string

	// HasData is a quick availability check for the given index.
	HasData(indexName string) bool

	// LastModTime returns the epoch-millisecond timestamp of the newest
	// data for the index, or a negative value if none is available.
	LastModTime(indexName string) (int64, error)

	// LoadData loads the full dataset for the index.
	LoadData(indexName string) (*Dataset, error)
}

// ArchiveProvider persists built snapshots so a restart does not need a full
// cold rebuild from the primary source.
type ArchiveProvider interface {
	HasData(indexName string) bool
	LastModTime(indexName string) (int64, error)
	Load(indexName string) (*Archive, error)
	Store(indexName string, archive *Archive) error
}

// Factory builds engine instances from datasets and converts between engines
// and durable archives.
type Factory interface {
	// Build indexes the dataset into a fresh engine.
	Build(data *Dataset) (Suggester, error)

	// CreateArchive packages the state of an engine previously built by
	// this factory into a durable snapshot.
	CreateArchive(s Suggester) (*Archive, error)

	// Recover rebuilds an engine from a stored snapshot.
	Recover(archive *Archive) (Suggester, error)
}

// Limiter truncates a ranked result list to maxTotal entries, applying
// group-aware quota rules. It runs after ranking, before results are
// returned to the caller.
type Limiter interface {
	Limit(suggestions []Suggestion, maxTotal int) []Suggestion
}

// NoopSuggester serves empty results. It is installed in a proxy before the
// first build finishes and returned for indexes no provider has data for.
type NoopSuggester struct {
	// Alive marks the permanently-empty variant handed out for absent
	// indexes; it claims readiness so callers don't keep waiting on it.
	Alive bool
}

func (n NoopSuggester) Suggest(string, int, []string) []Suggestion { return nil }
func (n NoopSuggester) RecordCount() int                           { return 0 }
func (n NoopSuggester) Ready() bool                                { return n.Alive }
func (n NoopSuggester) Close() error                               { return nil }
