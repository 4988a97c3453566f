// Package archive holds persistence providers for built suggest indexes.
// An archive is the serialized snapshot of one index plus its data
// mod-time; providers store and restore these blobs so a restarted service
// comes back without rebuilding from the sources.
package archive

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/CommerceExperts/smartsuggest/pkg/suggest"
)

const (
	blobFileName    = "snapshot.gz"
	modTimeFileName = "modtime"
)

// LocalProvider persists archives on the local filesystem, one directory
// per archive key. Compound keys of the form "index/suffix" map to nested
// directories, which makes it a CompoundArchiveProvider.
type LocalProvider struct {
	baseDir string
}

var _ suggest.CompoundArchiveProvider = (*LocalProvider)(nil)

// NewLocalProvider fails fast when the directory cannot be created or is
// not writable, so a misconfigured path surfaces at startup.
func NewLocalProvider(baseDir string) (*LocalProvider, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating archive directory %s: %w", baseDir, err)
	}
	probe, err := os.CreateTemp(baseDir, ".write-probe-*")
	if err != nil {
		return nil, fmt.Errorf("archive directory %s is not writable: %w", baseDir, err)
	}
	probe.Close()
	os.Remove(probe.Name())
	return &LocalProvider{baseDir: baseDir}, nil
}

func (p *LocalProvider) dir(key string) string {
	return filepath.Join(p.baseDir, filepath.FromSlash(key))
}

func (p *LocalProvider) HasData(key string) bool {
	_, err := os.Stat(filepath.Join(p.dir(key), blobFileName))
	return err == nil
}

func (p *LocalProvider) LastModTime(key string) (int64, error) {
	raw, err := os.ReadFile(filepath.Join(p.dir(key), modTimeFileName))
	if os.IsNotExist(err) {
		return -1, nil
	}
	if err != nil {
		return -1, err
	}
	mod, err := strconv.ParseInt(strings.TrimSpace(string(raw)), 10, 64)
	if err != nil {
		return -1, fmt.Errorf("corrupt mod-time marker for archive %s: %w", key, err)
	}
	return mod, nil
}

func (p *LocalProvider) Load(key string) (*suggest.Archive, error) {
	blob := filepath.Join(p.dir(key), blobFileName)
	if _, err := os.Stat(blob); err != nil {
		return nil, fmt.Errorf("no archive stored for %s: %w", key, err)
	}
	mod, err := p.LastModTime(key)
	if err != nil {
		return nil, err
	}
	return &suggest.Archive{File: blob, ModTime: mod}, nil
}

// Store copies the blob into place and writes the mod-time marker last, so
// a crash mid-write leaves the previous marker and the archive is retried.
func (p *LocalProvider) Store(key string, archive *suggest.Archive) error {
	dir := p.dir(key)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating archive directory for %s: %w", key, err)
	}

	dst, err := os.Create(filepath.Join(dir, blobFileName))
	if err != nil {
		return fmt.Errorf("creating archive blob for %s: %w", key, err)
	}
	if err := suggest.CopyBlob(dst, archive.File); err != nil {
		dst.Close()
		return fmt.Errorf("writing archive blob for %s: %w", key, err)
	}
	if err := dst.Close(); err != nil {
		return err
	}

	marker := []byte(strconv.FormatInt(archive.ModTime, 10))
	if err := os.WriteFile(filepath.Join(dir, modTimeFileName), marker, 0o644); err != nil {
		return fmt.Errorf("writing mod-time marker for %s: %w", key, err)
	}
	return nil
}

// IndexSuffixes lists the source suffixes archived under an index name.
func (p *LocalProvider) IndexSuffixes(indexName string) []string {
	entries, err := os.ReadDir(p.dir(indexName))
	if err != nil {
		return nil
	}
	var suffixes []string
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if _, err := os.Stat(filepath.Join(p.dir(indexName), entry.Name(), blobFileName)); err == nil {
			suffixes = append(suffixes, entry.Name())
		}
	}
	return suffixes
}
