package suggest

import (
	"fmt"

	"github.com/charmbracelet/log"
)

// MergedType labels datasets produced by the merging provider.
const MergedType = "merged"

// MergingDataProvider combines the data of several providers into one
// dataset. So the sources stay distinguishable for filtering and group
// limits, each record is tagged with the type label of its source dataset.
type MergingDataProvider struct {
	providers []DataProvider
	log       *log.Logger
}

var _ DataProvider = (*MergingDataProvider)(nil)

func NewMergingDataProvider(providers []DataProvider, logger *log.Logger) *MergingDataProvider {
	return &MergingDataProvider{providers: providers, log: logger}
}

func (m *MergingDataProvider) Name() string { return MergedType }

func (m *MergingDataProvider) HasData(indexName string) bool {
	for _, p := range m.providers {
		if p.HasData(indexName) {
			return true
		}
	}
	return false
}

// LastModTime reports the newest mod-time among the providers that have
// data, so a change in any source triggers a rebuild of the merged index.
func (m *MergingDataProvider) LastModTime(indexName string) (int64, error) {
	newest := int64(-1)
	for _, p := range m.providers {
		if !p.HasData(indexName) {
			continue
		}
		mod, err := p.LastModTime(indexName)
		if err != nil {
			m.log.Error("failed to retrieve mod-time", "provider", p.Name(), "index", indexName, "err", err)
			continue
		}
		if mod > newest {
			newest = mod
		}
	}
	return newest, nil
}

// LoadData concatenates the records of all providers that have data. No
// shortcut is taken for a single source, callers rely on the type tags
// being present for filtering.
func (m *MergingDataProvider) LoadData(indexName string) (*Dataset, error) {
	merged := &Dataset{Type: MergedType, ModTime: -1}
	stopwords := make(map[string]struct{})

	for _, p := range m.providers {
		if !p.HasData(indexName) {
			continue
		}
		data, err := p.LoadData(indexName)
		if err != nil {
			return nil, fmt.Errorf("merging provider %s: %w", p.Name(), err)
		}
		if data == nil {
			continue
		}

		if data.ModTime > merged.ModTime {
			merged.ModTime = data.ModTime
		}
		for _, w := range data.Stopwords {
			stopwords[w] = struct{}{}
		}
		for k, v := range data.SharpenedQueries {
			if merged.SharpenedQueries == nil {
				merged.SharpenedQueries = make(map[string][]string)
			}
			merged.SharpenedQueries[k] = append(merged.SharpenedQueries[k], v...)
		}
		for k, v := range data.RelaxedQueries {
			if merged.RelaxedQueries == nil {
				merged.RelaxedQueries = make(map[string][]string)
			}
			merged.RelaxedQueries[k] = append(merged.RelaxedQueries[k], v...)
		}
		for _, rec := range data.Records {
			merged.Records = append(merged.Records, withTypeTag(rec, data.Type))
		}
	}

	for w := range stopwords {
		merged.Stopwords = append(merged.Stopwords, w)
	}
	return merged, nil
}

func withTypeTag(rec Record, dataType string) Record {
	for _, t := range rec.Tags {
		if t == dataType {
			return rec
		}
	}
	tags := make([]string, 0, len(rec.Tags)+1)
	tags = append(tags, rec.Tags...)
	rec.Tags = append(tags, dataType)
	return rec
}
