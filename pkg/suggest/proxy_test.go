package suggest

import (
	"errors"
	"strconv"
	"sync"
	"testing"

	"github.com/charmbracelet/log"
)

func testLogger() *log.Logger {
	logger := log.Default()
	logger.SetLevel(log.ErrorLevel)
	return logger
}

// fakeSuggester returns a fixed result list for every term.
type fakeSuggester struct {
	results []Suggestion
	ready   bool
	closed  bool
}

func (f *fakeSuggester) Suggest(term string, maxResults int, tags []string) []Suggestion {
	if len(f.results) > maxResults {
		return f.results[:maxResults]
	}
	return f.results
}
func (f *fakeSuggester) RecordCount() int { return len(f.results) }
func (f *fakeSuggester) Ready() bool      { return f.ready }
func (f *fakeSuggester) Close() error     { f.closed = true; return nil }

func TestProxyServesEmptyBeforeFirstUpdate(t *testing.T) {
	p := NewProxy("test", testLogger())
	if got := p.Suggest("anything", 10, nil); len(got) != 0 {
		t.Errorf("fresh proxy served %d results", len(got))
	}
	if p.RecordCount() != 0 {
		t.Errorf("fresh proxy reports %d records", p.RecordCount())
	}
}

func TestProxySwapsDelegate(t *testing.T) {
	p := NewProxy("test", testLogger())
	first := &fakeSuggester{results: []Suggestion{{Label: "old"}}, ready: true}
	if err := p.UpdateDelegate(first); err != nil {
		t.Fatalf("UpdateDelegate: %v", err)
	}
	expectLabels(t, p.Suggest("protein", 10, nil), "old")

	second := &fakeSuggester{results: []Suggestion{{Label: "new"}}, ready: true}
	if err := p.UpdateDelegate(second); err != nil {
		t.Fatalf("UpdateDelegate: %v", err)
	}
	expectLabels(t, p.Suggest("protein", 10, nil), "new")
}

func TestProxyShortPrefixCacheReprimedOnUpdate(t *testing.T) {
	p := NewProxy("test", testLogger())
	if err := p.UpdateDelegate(&fakeSuggester{results: []Suggestion{{Label: "old"}}, ready: true}); err != nil {
		t.Fatalf("UpdateDelegate: %v", err)
	}

	// populate the cache with a short term
	expectLabels(t, p.Suggest("ol", 10, nil), "old")

	if err := p.UpdateDelegate(&fakeSuggester{results: []Suggestion{{Label: "new"}}, ready: true}); err != nil {
		t.Fatalf("UpdateDelegate: %v", err)
	}
	// the cached entry must already serve the new data
	expectLabels(t, p.Suggest("ol", 10, nil), "new")
}

func TestProxyCachedResultsAreIsolated(t *testing.T) {
	p := NewProxy("test", testLogger())
	err := p.UpdateDelegate(&fakeSuggester{
		results: []Suggestion{{Label: "x", Payload: map[string]string{"k": "v"}}},
		ready:   true,
	})
	if err != nil {
		t.Fatalf("UpdateDelegate: %v", err)
	}

	got := p.Suggest("x", 10, nil)
	got[0].Payload["k"] = "mutated"

	again := p.Suggest("x", 10, nil)
	if again[0].Payload["k"] != "v" {
		t.Error("cache entry was mutated through a returned suggestion")
	}
}

func TestProxyNormalizesTerm(t *testing.T) {
	p := NewProxy("test", testLogger())
	data := &Dataset{Records: []Record{{PrimaryText: "shoes", Weight: 1}}}
	engine := NewTrieSuggester(data)
	engine.Index(data.Records)
	engine.Commit()
	if err := p.UpdateDelegate(engine); err != nil {
		t.Fatalf("UpdateDelegate: %v", err)
	}

	expectLabels(t, p.Suggest("  SHOES ", 10, nil), "shoes")
}

func TestProxySkipsCacheFillDuringSwap(t *testing.T) {
	p := NewProxy("test", testLogger())
	if err := p.UpdateDelegate(&fakeSuggester{results: []Suggestion{{Label: "old"}}, ready: true}); err != nil {
		t.Fatalf("UpdateDelegate: %v", err)
	}

	// holding the update lock stands in for a swap in progress; the read
	// must still be answered but may not populate the cache
	p.updateMu.Lock()
	expectLabels(t, p.Suggest("ol", 10, nil), "old")
	p.updateMu.Unlock()
	if p.shortPrefixCache.Contains("ol") {
		t.Error("cache was filled while an update held the lock")
	}

	// without a concurrent swap the fill goes through
	expectLabels(t, p.Suggest("ol", 10, nil), "old")
	if !p.shortPrefixCache.Contains("ol") {
		t.Error("cache not filled on an uncontended read")
	}
}

func TestProxyConcurrentReadsObserveOneVersion(t *testing.T) {
	p := NewProxy("test", testLogger())

	version := func(n int) *TrieSuggester {
		marker := strconv.Itoa(n)
		return buildEngine(t, &Dataset{Records: []Record{
			{PrimaryText: "alpha one", Weight: 100, Payload: map[string]string{"version": marker}},
			{PrimaryText: "alpha two", Weight: 90, Payload: map[string]string{"version": marker}},
			{PrimaryText: "alpha three", Weight: 80, Payload: map[string]string{"version": marker}},
		}})
	}
	if err := p.UpdateDelegate(version(0)); err != nil {
		t.Fatalf("UpdateDelegate: %v", err)
	}

	stop := make(chan struct{})
	var wg sync.WaitGroup
	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				// "al" exercises the cache path, "alpha" the engine path
				for _, term := range []string{"al", "alpha"} {
					results := p.Suggest(term, 10, nil)
					if len(results) == 0 {
						continue
					}
					want := results[0].Payload["version"]
					for _, s := range results {
						if s.Payload["version"] != want {
							t.Errorf("mixed versions in one read: %q and %q", want, s.Payload["version"])
							return
						}
					}
				}
			}
		}()
	}

	for n := 1; n <= 50; n++ {
		if err := p.UpdateDelegate(version(n)); err != nil {
			t.Fatalf("UpdateDelegate %d: %v", n, err)
		}
	}
	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	close(stop)
	wg.Wait()
}

func TestProxyClose(t *testing.T) {
	p := NewProxy("test", testLogger())
	installed := &fakeSuggester{results: []Suggestion{{Label: "x"}}, ready: true}
	if err := p.UpdateDelegate(installed); err != nil {
		t.Fatalf("UpdateDelegate: %v", err)
	}

	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !installed.closed {
		t.Error("delegate not closed with the proxy")
	}
	if got := p.Suggest("x", 10, nil); got != nil {
		t.Errorf("closed proxy served %v", suggestionLabels(got))
	}
	if p.Ready() {
		t.Error("closed proxy still ready")
	}

	next := &fakeSuggester{ready: true}
	if err := p.UpdateDelegate(next); !errors.Is(err, ErrClosed) {
		t.Errorf("UpdateDelegate after close: got %v, want ErrClosed", err)
	}
	// closing twice is fine
	if err := p.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}
