package datasource

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	"github.com/CommerceExperts/smartsuggest/pkg/suggest"
)

func testLogger() *log.Logger {
	logger := log.Default()
	logger.SetLevel(log.ErrorLevel)
	return logger
}

func writeDataset(t *testing.T, dir, indexName string, data *suggest.Dataset) {
	t.Helper()
	raw, err := json.Marshal(data)
	if err != nil {
		t.Fatalf("marshal dataset: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, indexName+".json"), raw, 0o644); err != nil {
		t.Fatalf("write dataset: %v", err)
	}
}

func newTestFileProvider(t *testing.T, dir string) *FileProvider {
	t.Helper()
	p, err := NewFileProvider(dir, testLogger())
	if err != nil {
		t.Fatalf("NewFileProvider: %v", err)
	}
	t.Cleanup(func() { _ = p.Close() })
	return p
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for " + what)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestFileProviderInitialScan(t *testing.T) {
	dir := t.TempDir()
	writeDataset(t, dir, "myshop", &suggest.Dataset{
		Type:    "queries",
		ModTime: 1234,
		Records: []suggest.Record{{PrimaryText: "shoes", Weight: 10}},
	})

	p := newTestFileProvider(t, dir)

	if !p.HasData("myshop") {
		t.Error("HasData false for existing dataset file")
	}
	if p.HasData("othershop") {
		t.Error("HasData true for missing dataset file")
	}
	if mod, err := p.LastModTime("othershop"); err != nil || mod != -1 {
		t.Errorf("LastModTime for missing index: got %d, %v", mod, err)
	}

	data, err := p.LoadData("myshop")
	if err != nil {
		t.Fatalf("LoadData: %v", err)
	}
	if data.ModTime != 1234 {
		t.Errorf("dataset mod-time: got %d, want the value from the file", data.ModTime)
	}
	if len(data.Records) != 1 || data.Records[0].PrimaryText != "shoes" {
		t.Errorf("records: got %+v", data.Records)
	}
}

func TestFileProviderFallsBackToFileModTime(t *testing.T) {
	dir := t.TempDir()
	writeDataset(t, dir, "myshop", &suggest.Dataset{
		Type:    "queries",
		Records: []suggest.Record{{PrimaryText: "shoes", Weight: 10}},
	})

	p := newTestFileProvider(t, dir)

	data, err := p.LoadData("myshop")
	if err != nil {
		t.Fatalf("LoadData: %v", err)
	}
	fileMod, err := p.LastModTime("myshop")
	if err != nil {
		t.Fatalf("LastModTime: %v", err)
	}
	if data.ModTime != fileMod {
		t.Errorf("dataset without mod-time: got %d, want file mod-time %d", data.ModTime, fileMod)
	}
}

func TestFileProviderPicksUpNewFiles(t *testing.T) {
	dir := t.TempDir()
	p := newTestFileProvider(t, dir)

	if p.HasData("late") {
		t.Fatal("HasData true before the file exists")
	}
	writeDataset(t, dir, "late", &suggest.Dataset{
		Type:    "queries",
		ModTime: 1,
		Records: []suggest.Record{{PrimaryText: "socks", Weight: 1}},
	})

	waitFor(t, "new dataset file to be noticed", func() bool { return p.HasData("late") })
}

func TestFileProviderForgetsRemovedFiles(t *testing.T) {
	dir := t.TempDir()
	writeDataset(t, dir, "gone", &suggest.Dataset{Type: "queries", ModTime: 1})
	p := newTestFileProvider(t, dir)

	if !p.HasData("gone") {
		t.Fatal("HasData false for existing file")
	}
	if err := os.Remove(filepath.Join(dir, "gone.json")); err != nil {
		t.Fatalf("remove: %v", err)
	}
	waitFor(t, "removed dataset file to be forgotten", func() bool { return !p.HasData("gone") })
}

func TestFileProviderMissingDir(t *testing.T) {
	if _, err := NewFileProvider(filepath.Join(t.TempDir(), "nope"), testLogger()); err == nil {
		t.Error("NewFileProvider accepted a missing directory")
	}
}
