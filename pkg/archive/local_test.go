package archive

import (
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/CommerceExperts/smartsuggest/pkg/suggest"
)

func writeBlob(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "snapshot.gz")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write blob: %v", err)
	}
	return path
}

func TestLocalProviderRoundTrip(t *testing.T) {
	p, err := NewLocalProvider(filepath.Join(t.TempDir(), "archives"))
	if err != nil {
		t.Fatalf("NewLocalProvider: %v", err)
	}

	if p.HasData("myshop") {
		t.Error("HasData true for empty provider")
	}
	if mod, err := p.LastModTime("myshop"); err != nil || mod != -1 {
		t.Errorf("LastModTime on empty provider: got %d, %v", mod, err)
	}

	blob := writeBlob(t, "snapshot-bytes")
	if err := p.Store("myshop", &suggest.Archive{File: blob, ModTime: 42}); err != nil {
		t.Fatalf("Store: %v", err)
	}

	if !p.HasData("myshop") {
		t.Error("HasData false after store")
	}
	mod, err := p.LastModTime("myshop")
	if err != nil || mod != 42 {
		t.Errorf("LastModTime: got %d, %v", mod, err)
	}

	loaded, err := p.Load("myshop")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.ModTime != 42 {
		t.Errorf("loaded mod-time: got %d", loaded.ModTime)
	}
	if loaded.Temp {
		t.Error("local archives must not be marked temporary")
	}
	raw, err := os.ReadFile(loaded.File)
	if err != nil || string(raw) != "snapshot-bytes" {
		t.Errorf("loaded blob: got %q, %v", raw, err)
	}
}

func TestLocalProviderOverwrite(t *testing.T) {
	p, err := NewLocalProvider(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalProvider: %v", err)
	}

	if err := p.Store("idx", &suggest.Archive{File: writeBlob(t, "v1"), ModTime: 1}); err != nil {
		t.Fatalf("Store v1: %v", err)
	}
	if err := p.Store("idx", &suggest.Archive{File: writeBlob(t, "v2"), ModTime: 2}); err != nil {
		t.Fatalf("Store v2: %v", err)
	}

	loaded, err := p.Load("idx")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	raw, _ := os.ReadFile(loaded.File)
	if string(raw) != "v2" || loaded.ModTime != 2 {
		t.Errorf("got blob %q mod-time %d, want the overwritten archive", raw, loaded.ModTime)
	}
}

func TestLocalProviderCompoundKeys(t *testing.T) {
	p, err := NewLocalProvider(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalProvider: %v", err)
	}

	queries := suggest.ScopedArchiveProvider(p, "queries")
	brands := suggest.ScopedArchiveProvider(p, "brands")

	if err := queries.Store("myshop", &suggest.Archive{File: writeBlob(t, "q"), ModTime: 1}); err != nil {
		t.Fatalf("Store queries: %v", err)
	}
	if err := brands.Store("myshop", &suggest.Archive{File: writeBlob(t, "b"), ModTime: 2}); err != nil {
		t.Fatalf("Store brands: %v", err)
	}

	// the scoped views stay isolated
	if !queries.HasData("myshop") || !brands.HasData("myshop") {
		t.Error("scoped providers lost their archives")
	}
	if p.HasData("myshop") {
		t.Error("unscoped key must not see compound archives")
	}
	loaded, err := brands.Load("myshop")
	if err != nil {
		t.Fatalf("Load brands: %v", err)
	}
	raw, _ := os.ReadFile(loaded.File)
	if string(raw) != "b" {
		t.Errorf("brands blob: got %q", raw)
	}

	suffixes := p.IndexSuffixes("myshop")
	sort.Strings(suffixes)
	if len(suffixes) != 2 || suffixes[0] != "brands" || suffixes[1] != "queries" {
		t.Errorf("IndexSuffixes: got %v", suffixes)
	}
	if got := p.IndexSuffixes("othershop"); len(got) != 0 {
		t.Errorf("IndexSuffixes for unknown index: got %v", got)
	}
}

func TestNewLocalProviderCreatesDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "a", "b", "c")
	if _, err := NewLocalProvider(dir); err != nil {
		t.Fatalf("NewLocalProvider: %v", err)
	}
	if _, err := os.Stat(dir); err != nil {
		t.Errorf("archive directory not created: %v", err)
	}
}
