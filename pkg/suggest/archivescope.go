package suggest

// CompoundArchiveProvider is an ArchiveProvider that can hold one archive
// per data source under the same index name, keyed as "index/suffix". The
// manager uses it to restore a multi-source index from archives alone.
type CompoundArchiveProvider interface {
	ArchiveProvider

	// IndexSuffixes lists the source suffixes archived for the index.
	IndexSuffixes(indexName string) []string
}

// ScopedArchiveProvider narrows a compound provider to a single source
// suffix, rewriting every index name to the combined "index/suffix" key.
func ScopedArchiveProvider(parent ArchiveProvider, suffix string) ArchiveProvider {
	return &scopedArchiveProvider{parent: parent, suffix: suffix}
}

type scopedArchiveProvider struct {
	parent ArchiveProvider
	suffix string
}

func (s *scopedArchiveProvider) key(indexName string) string {
	return indexName + "/" + s.suffix
}

func (s *scopedArchiveProvider) HasData(indexName string) bool {
	return s.parent.HasData(s.key(indexName))
}

func (s *scopedArchiveProvider) LastModTime(indexName string) (int64, error) {
	return s.parent.LastModTime(s.key(indexName))
}

func (s *scopedArchiveProvider) Load(indexName string) (*Archive, error) {
	return s.parent.Load(s.key(indexName))
}

func (s *scopedArchiveProvider) Store(indexName string, archive *Archive) error {
	return s.parent.Store(s.key(indexName), archive)
}
