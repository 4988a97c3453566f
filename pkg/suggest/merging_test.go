package suggest

import (
	"sort"
	"testing"
)

func TestMergingDataProviderHasData(t *testing.T) {
	merged := NewMergingDataProvider([]DataProvider{
		&fakeDataProvider{name: "queries", available: false},
		&fakeDataProvider{name: "brands", available: true},
	}, testLogger())

	if !merged.HasData("idx") {
		t.Error("HasData false although one source has data")
	}

	empty := NewMergingDataProvider([]DataProvider{
		&fakeDataProvider{name: "queries", available: false},
	}, testLogger())
	if empty.HasData("idx") {
		t.Error("HasData true although no source has data")
	}
}

func TestMergingDataProviderModTimeIsNewest(t *testing.T) {
	merged := NewMergingDataProvider([]DataProvider{
		&fakeDataProvider{name: "queries", available: true, modTime: 100},
		&fakeDataProvider{name: "brands", available: true, modTime: 300},
		&fakeDataProvider{name: "categories", available: false, modTime: 900},
	}, testLogger())

	mod, err := merged.LastModTime("idx")
	if err != nil {
		t.Fatalf("LastModTime: %v", err)
	}
	if mod != 300 {
		t.Errorf("LastModTime: got %d, want newest available 300", mod)
	}
}

func TestMergingDataProviderTagsRecordsWithSourceType(t *testing.T) {
	merged := NewMergingDataProvider([]DataProvider{
		&fakeDataProvider{name: "queries", available: true, modTime: 100, data: &Dataset{
			Type:    "queries",
			ModTime: 100,
			Records: []Record{{PrimaryText: "shoes", Weight: 10}},
			Stopwords: []string{"the"},
		}},
		&fakeDataProvider{name: "brands", available: true, modTime: 200, data: &Dataset{
			Type:    "brands",
			ModTime: 200,
			Records: []Record{{PrimaryText: "adidas", Weight: 20, Tags: []string{"popular"}}},
			Stopwords: []string{"a"},
		}},
	}, testLogger())

	data, err := merged.LoadData("idx")
	if err != nil {
		t.Fatalf("LoadData: %v", err)
	}
	if data.Type != MergedType {
		t.Errorf("type: got %q, want %q", data.Type, MergedType)
	}
	if data.ModTime != 200 {
		t.Errorf("mod-time: got %d, want 200", data.ModTime)
	}
	if len(data.Records) != 2 {
		t.Fatalf("records: got %d, want 2", len(data.Records))
	}

	byLabel := map[string][]string{}
	for _, r := range data.Records {
		byLabel[r.PrimaryText] = r.Tags
	}
	if got := byLabel["shoes"]; len(got) != 1 || got[0] != "queries" {
		t.Errorf("shoes tags: got %v, want the source type attached", got)
	}
	brandTags := byLabel["adidas"]
	sort.Strings(brandTags)
	if len(brandTags) != 2 || brandTags[0] != "brands" || brandTags[1] != "popular" {
		t.Errorf("adidas tags: got %v, want existing tags kept plus source type", brandTags)
	}

	stopwords := append([]string(nil), data.Stopwords...)
	sort.Strings(stopwords)
	if len(stopwords) != 2 || stopwords[0] != "a" || stopwords[1] != "the" {
		t.Errorf("stopwords: got %v, want union of all sources", stopwords)
	}
}

func TestMergingDataProviderSkipsEmptySources(t *testing.T) {
	merged := NewMergingDataProvider([]DataProvider{
		&fakeDataProvider{name: "queries", available: false, data: &Dataset{
			Records: []Record{{PrimaryText: "must not appear"}},
		}},
		&fakeDataProvider{name: "brands", available: true, modTime: 5, data: &Dataset{
			Type:    "brands",
			ModTime: 5,
			Records: []Record{{PrimaryText: "adidas"}},
		}},
	}, testLogger())

	data, err := merged.LoadData("idx")
	if err != nil {
		t.Fatalf("LoadData: %v", err)
	}
	if len(data.Records) != 1 || data.Records[0].PrimaryText != "adidas" {
		t.Errorf("records: got %v", data.Records)
	}
}
