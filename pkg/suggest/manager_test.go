package suggest

import (
	"testing"
	"time"
)

func newTestManager(t *testing.T, opts ...Option) *Manager {
	t.Helper()
	opts = append([]Option{
		WithBaseDir(t.TempDir()),
		WithLogger(testLogger()),
	}, opts...)
	m, err := NewManager(opts...)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func TestManagerRequiresProvider(t *testing.T) {
	if _, err := NewManager(WithLogger(testLogger())); err == nil {
		t.Error("NewManager without providers did not fail")
	}
}

func TestManagerEndToEnd(t *testing.T) {
	source := &fakeDataProvider{
		name:      "queries",
		available: true,
		modTime:   100,
		data: &Dataset{
			Type:    "queries",
			ModTime: 100,
			Records: []Record{
				{PrimaryText: "label a", SecondaryText: "search a", Weight: 200},
				{PrimaryText: "label b", SecondaryText: "search b", Weight: 190},
			},
			SharpenedQueries: map[string][]string{"sea": {"see more"}},
		},
	}
	m := newTestManager(t, WithDataProvider(source))

	sug, err := m.GetSuggester("testindex", true)
	if err != nil {
		t.Fatalf("GetSuggester: %v", err)
	}
	expectLabels(t, sug.Suggest("sea", 10, nil), "see more", "label a", "label b")
	expectLabels(t, sug.Suggest("search b", 10, nil), "label b")
}

func TestManagerReturnsSameSuggester(t *testing.T) {
	source := &fakeDataProvider{name: "queries", available: true, modTime: 1, data: testDataset(1, "x")}
	m := newTestManager(t, WithDataProvider(source))

	first, err := m.GetSuggester("idx", false)
	if err != nil {
		t.Fatalf("GetSuggester: %v", err)
	}
	second, err := m.GetSuggester("idx", false)
	if err != nil {
		t.Fatalf("GetSuggester: %v", err)
	}
	if first != second {
		t.Error("repeated GetSuggester created a second instance")
	}
}

func TestManagerServesEmptyForUnknownIndex(t *testing.T) {
	source := &fakeDataProvider{name: "queries", available: false}
	m := newTestManager(t, WithDataProvider(source))

	sug, err := m.GetSuggester("unknown", true)
	if err != nil {
		t.Fatalf("GetSuggester: %v", err)
	}
	if got := sug.Suggest("anything", 10, nil); len(got) != 0 {
		t.Errorf("unknown index served %d results", len(got))
	}
	if !sug.Ready() {
		t.Error("empty suggester must still report ready")
	}
}

func TestManagerMultiSourceCompound(t *testing.T) {
	queries := &fakeDataProvider{name: "queries", available: true, modTime: 1, data: &Dataset{
		Type: "queries", ModTime: 1,
		Records: []Record{{PrimaryText: "shoes", Weight: 100, Payload: map[string]string{"type": "keyword"}}},
	}}
	brands := &fakeDataProvider{name: "brands", available: true, modTime: 1, data: &Dataset{
		Type: "brands", ModTime: 1,
		Records: []Record{{PrimaryText: "shoecompany", Weight: 90, Payload: map[string]string{"type": "brand"}}},
	}}
	m := newTestManager(t, WithDataProvider(queries), WithDataProvider(brands))

	sug, err := m.GetSuggester("idx", true)
	if err != nil {
		t.Fatalf("GetSuggester: %v", err)
	}
	got := sug.Suggest("sho", 10, nil)
	if len(got) != 2 {
		t.Fatalf("compound suggester: got %v, want results from both sources", suggestionLabels(got))
	}
	if sug.RecordCount() != 2 {
		t.Errorf("compound record count: got %d", sug.RecordCount())
	}
}

func TestManagerMergedMultiSource(t *testing.T) {
	queries := &fakeDataProvider{name: "queries", available: true, modTime: 1, data: &Dataset{
		Type: "queries", ModTime: 1,
		Records: []Record{{PrimaryText: "shoes", Weight: 100}},
	}}
	brands := &fakeDataProvider{name: "brands", available: true, modTime: 1, data: &Dataset{
		Type: "brands", ModTime: 1,
		Records: []Record{{PrimaryText: "shoecompany", Weight: 90}},
	}}
	m := newTestManager(t, WithDataProvider(queries), WithDataProvider(brands), WithDataMerger())

	sug, err := m.GetSuggester("idx", true)
	if err != nil {
		t.Fatalf("GetSuggester: %v", err)
	}
	// merged index tags records with their source type
	expectLabels(t, sug.Suggest("sho", 10, []string{"brands"}), "shoecompany")
}

func TestManagerGroupLimiter(t *testing.T) {
	source := &fakeDataProvider{name: "queries", available: true, modTime: 1, data: &Dataset{
		Type: "queries", ModTime: 1,
		Records: []Record{
			{PrimaryText: "shoes a", Weight: 100, Payload: map[string]string{"type": "keyword"}},
			{PrimaryText: "shoes b", Weight: 90, Payload: map[string]string{"type": "keyword"}},
			{PrimaryText: "shoecompany", Weight: 80, Payload: map[string]string{"type": "brand"}},
		},
	}}
	m := newTestManager(t,
		WithDataProvider(source),
		WithGroupLimiter(keepOnlyGroup{key: "type", group: "brand"}),
	)

	sug, err := m.GetSuggester("idx", true)
	if err != nil {
		t.Fatalf("GetSuggester: %v", err)
	}
	expectLabels(t, sug.Suggest("sho", 10, nil), "shoecompany")
}

// keepOnlyGroup drops everything outside one group; enough to prove the
// limiter is in the serving path.
type keepOnlyGroup struct{ key, group string }

func (k keepOnlyGroup) Limit(suggestions []Suggestion, maxTotal int) []Suggestion {
	var kept []Suggestion
	for _, s := range suggestions {
		if s.GroupKey(k.key) == k.group && len(kept) < maxTotal {
			kept = append(kept, s)
		}
	}
	return kept
}

func TestManagerDestroySuggester(t *testing.T) {
	source := &fakeDataProvider{name: "queries", available: true, modTime: 1, data: testDataset(1, "x")}
	m := newTestManager(t, WithDataProvider(source))

	first, err := m.GetSuggester("idx", true)
	if err != nil {
		t.Fatalf("GetSuggester: %v", err)
	}
	m.DestroySuggester("idx")

	if got := first.Suggest("x", 10, nil); len(got) != 0 {
		t.Errorf("destroyed suggester still serves %v", suggestionLabels(got))
	}

	second, err := m.GetSuggester("idx", true)
	if err != nil {
		t.Fatalf("GetSuggester after destroy: %v", err)
	}
	if first == second {
		t.Error("destroyed suggester instance was handed out again")
	}
	expectLabels(t, second.Suggest("x", 10, nil), "x")
}

func TestManagerPreload(t *testing.T) {
	source := &fakeDataProvider{name: "queries", available: true, modTime: 1, data: testDataset(1, "preloaded")}
	m := newTestManager(t, WithDataProvider(source), WithPreloadIndexes("idx"))

	// the preloaded index must serve data without a synchronous get
	sug, err := m.GetSuggester("idx", false)
	if err != nil {
		t.Fatalf("GetSuggester: %v", err)
	}
	expectLabels(t, sug.Suggest("pre", 10, nil), "preloaded")
}

func TestManagerClose(t *testing.T) {
	source := &fakeDataProvider{name: "queries", available: true, modTime: 1, data: testDataset(1, "x")}
	m := newTestManager(t, WithDataProvider(source))

	sug, err := m.GetSuggester("idx", true)
	if err != nil {
		t.Fatalf("GetSuggester: %v", err)
	}
	if err := m.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if got := sug.Suggest("x", 10, nil); len(got) != 0 {
		t.Errorf("suggester of closed manager served %v", suggestionLabels(got))
	}
	if _, err := m.GetSuggester("idx", false); err == nil {
		t.Error("GetSuggester after Close did not fail")
	}
}

func TestManagerCloseReturnsWithoutIdleTimeout(t *testing.T) {
	source := &fakeDataProvider{name: "queries", available: true, modTime: 1, data: testDataset(1, "x")}
	m := newTestManager(t, WithDataProvider(source))
	if _, err := m.GetSuggester("idx", true); err != nil {
		t.Fatalf("GetSuggester: %v", err)
	}

	// no idle timeout means the registry's expiry loop never runs; Close
	// must not wait on it
	done := make(chan struct{})
	go func() {
		_ = m.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("Close did not return on a manager without idle timeout")
	}
}

func TestManagerIdleEviction(t *testing.T) {
	source := &fakeDataProvider{name: "queries", available: true, modTime: 1, data: testDataset(1, "x")}
	m := newTestManager(t, WithDataProvider(source), WithIdleTimeout(50*time.Millisecond))

	first, err := m.GetSuggester("idx", true)
	if err != nil {
		t.Fatalf("GetSuggester: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for first.Ready() {
		if time.Now().After(deadline) {
			t.Fatal("idle suggester was not released")
		}
		time.Sleep(10 * time.Millisecond)
	}
}
