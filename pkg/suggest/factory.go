package suggest

import (
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/charmbracelet/log"
	"github.com/vmihailenco/msgpack/v5"
)

// TrieFactory builds TrieSuggester engines and packages their datasets as
// gzip-compressed msgpack snapshot blobs below its base directory.
type TrieFactory struct {
	baseDir string
}

// NewTrieFactory prepares a factory writing snapshot blobs to baseDir. The
// directory is created eagerly so a non-writable location fails the setup,
// not the first background build.
func NewTrieFactory(baseDir string) (*TrieFactory, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("suggest index directory %s not usable: %w", baseDir, err)
	}
	return &TrieFactory{baseDir: baseDir}, nil
}

// Build indexes the complete dataset into a fresh engine.
func (f *TrieFactory) Build(data *Dataset) (Suggester, error) {
	engine := NewTrieSuggester(data)
	engine.Index(data.Records)
	engine.Commit()
	log.Debugf("built suggester with %d records (type=%s, modTime=%d)",
		engine.RecordCount(), data.Type, data.ModTime)
	return engine, nil
}

// CreateArchive packages the dataset of an engine built by this factory.
// The blob is written next to the live index data, named by its mod-time.
func (f *TrieFactory) CreateArchive(s Suggester) (*Archive, error) {
	engine, ok := s.(*TrieSuggester)
	if !ok {
		return nil, fmt.Errorf("cannot archive suggester of type %T", s)
	}
	file := filepath.Join(f.baseDir, strconv.FormatInt(engine.ModTime(), 10)+".snapshot.gz")
	if err := WriteSnapshot(engine.Dataset(), file); err != nil {
		return nil, err
	}
	return &Archive{File: file, ModTime: engine.ModTime()}, nil
}

// Recover rebuilds an engine from a stored snapshot blob.
func (f *TrieFactory) Recover(archive *Archive) (Suggester, error) {
	data, err := ReadSnapshot(archive.File)
	if err != nil {
		return nil, err
	}
	if data.ModTime == 0 {
		data.ModTime = archive.ModTime
	}
	return f.Build(data)
}

// WriteSnapshot serializes a dataset as a gzip-compressed msgpack blob.
func WriteSnapshot(data *Dataset, file string) error {
	out, err := os.Create(file)
	if err != nil {
		return fmt.Errorf("failed to create snapshot file: %w", err)
	}
	defer out.Close()

	zw := gzip.NewWriter(out)
	if err := msgpack.NewEncoder(zw).Encode(data); err != nil {
		zw.Close()
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("failed to finish snapshot: %w", err)
	}
	return out.Sync()
}

// ReadSnapshot deserializes a snapshot blob written by WriteSnapshot.
func ReadSnapshot(file string) (*Dataset, error) {
	in, err := os.Open(file)
	if err != nil {
		return nil, fmt.Errorf("failed to open snapshot file: %w", err)
	}
	defer in.Close()

	zr, err := gzip.NewReader(in)
	if err != nil {
		return nil, fmt.Errorf("%s is not a snapshot blob: %w", file, err)
	}
	defer zr.Close()

	var data Dataset
	if err := msgpack.NewDecoder(zr).Decode(&data); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot %s: %w", file, err)
	}
	return &data, nil
}

// CopyBlob copies an opaque snapshot blob, used by archive providers moving
// blobs between their storage and process-local temporary files.
func CopyBlob(dst io.Writer, srcFile string) error {
	in, err := os.Open(srcFile)
	if err != nil {
		return err
	}
	defer in.Close()
	_, err = io.Copy(dst, in)
	return err
}
