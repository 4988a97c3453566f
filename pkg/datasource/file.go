// Package datasource holds data providers that feed suggestion datasets
// into the suggest manager from external systems.
package datasource

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"

	"github.com/CommerceExperts/smartsuggest/pkg/suggest"
)

const datasetExt = ".json"

// FileProvider serves datasets from a flat directory with one JSON file per
// index, named "<indexName>.json". The directory is watched, so mod-times
// are answered from memory without hitting the filesystem on every poll.
type FileProvider struct {
	dir     string
	watcher *fsnotify.Watcher
	log     *log.Logger

	mu       sync.RWMutex
	modTimes map[string]int64

	closeOnce sync.Once
	done      chan struct{}
}

var _ suggest.DataProvider = (*FileProvider)(nil)

// NewFileProvider scans the directory once and starts watching it for
// changes. Fails when the directory does not exist.
func NewFileProvider(dir string, logger *log.Logger) (*FileProvider, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating file watcher: %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("watching dataset directory %s: %w", dir, err)
	}

	p := &FileProvider{
		dir:      dir,
		watcher:  watcher,
		log:      logger,
		modTimes: make(map[string]int64),
		done:     make(chan struct{}),
	}
	if err := p.scan(); err != nil {
		watcher.Close()
		return nil, err
	}
	go p.watch()
	return p, nil
}

func (p *FileProvider) Name() string { return "file" }

func (p *FileProvider) HasData(indexName string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.modTimes[indexName]
	return ok
}

func (p *FileProvider) LastModTime(indexName string) (int64, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if mod, ok := p.modTimes[indexName]; ok {
		return mod, nil
	}
	return -1, nil
}

func (p *FileProvider) LoadData(indexName string) (*suggest.Dataset, error) {
	path := p.path(indexName)
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading dataset %s: %w", path, err)
	}
	var data suggest.Dataset
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("decoding dataset %s: %w", path, err)
	}
	if data.ModTime == 0 {
		if mod, err := p.LastModTime(indexName); err == nil && mod > 0 {
			data.ModTime = mod
		}
	}
	return &data, nil
}

// Close stops the directory watcher.
func (p *FileProvider) Close() error {
	var err error
	p.closeOnce.Do(func() {
		close(p.done)
		err = p.watcher.Close()
	})
	return err
}

func (p *FileProvider) path(indexName string) string {
	return filepath.Join(p.dir, indexName+datasetExt)
}

func (p *FileProvider) scan() error {
	entries, err := os.ReadDir(p.dir)
	if err != nil {
		return fmt.Errorf("reading dataset directory %s: %w", p.dir, err)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), datasetExt) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		indexName := strings.TrimSuffix(entry.Name(), datasetExt)
		p.modTimes[indexName] = info.ModTime().UnixMilli()
	}
	return nil
}

func (p *FileProvider) watch() {
	for {
		select {
		case <-p.done:
			return
		case event, ok := <-p.watcher.Events:
			if !ok {
				return
			}
			if !strings.HasSuffix(event.Name, datasetExt) {
				continue
			}
			indexName := strings.TrimSuffix(filepath.Base(event.Name), datasetExt)
			switch {
			case event.Op&(fsnotify.Create|fsnotify.Write) != 0:
				info, err := os.Stat(event.Name)
				if err != nil {
					continue
				}
				p.mu.Lock()
				p.modTimes[indexName] = info.ModTime().UnixMilli()
				p.mu.Unlock()
				p.log.Debug("dataset file changed", "index", indexName)
			case event.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
				p.mu.Lock()
				delete(p.modTimes, indexName)
				p.mu.Unlock()
				p.log.Debug("dataset file removed", "index", indexName)
			}
		case err, ok := <-p.watcher.Errors:
			if !ok {
				return
			}
			p.log.Warn("dataset directory watch error", "dir", p.dir, "err", err)
		}
	}
}
