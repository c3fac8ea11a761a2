// Package store persists fetched seed data for the downstream consumer.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/varserve/seed-fetcher/internal/seed"
)

const (
	// SeedFileName is the name of the raw seed blob inside the data
	// directory.
	SeedFileName = "seed.bin"

	// MetadataFileName is the name of the seed metadata document.
	MetadataFileName = "seed.json"
)

// Metadata describes an installed seed. The signature, country, and date
// fields are opaque pass-throughs from the seed server.
type Metadata struct {
	Signature    string    `json:"signature"`
	Country      string    `json:"country"`
	Date         string    `json:"date"`
	IsCompressed bool      `json:"is_compressed"`
	Size         int       `json:"size"`
	StoredAt     time.Time `json:"stored_at"`
}

// FileStore implements seed.Sink on the local filesystem.
type FileStore struct {
	dataDir string
}

// NewFileStore creates a file-backed seed store rooted at the given data
// directory.
func NewFileStore(dataDir string) *FileStore {
	return &FileStore{
		dataDir: dataDir,
	}
}

// Install atomically writes the seed blob and its metadata document. The
// seed blob is written first so a metadata document never references a
// missing blob.
func (s *FileStore) Install(_ context.Context, resp *seed.Response) error {
	if err := os.MkdirAll(s.dataDir, 0750); err != nil {
		return fmt.Errorf("failed to create seed data directory: %w", err)
	}

	seedPath := filepath.Join(s.dataDir, SeedFileName)
	if err := writeAtomic(seedPath, resp.RawBytes); err != nil {
		return fmt.Errorf("failed to write seed blob: %w", err)
	}

	meta := Metadata{
		Signature:    resp.Signature,
		Country:      resp.Country,
		Date:         resp.Date,
		IsCompressed: resp.IsCompressed,
		Size:         len(resp.RawBytes),
		StoredAt:     time.Now().UTC(),
	}
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal seed metadata: %w", err)
	}

	metaPath := filepath.Join(s.dataDir, MetadataFileName)
	if err := writeAtomic(metaPath, data); err != nil {
		return fmt.Errorf("failed to write seed metadata: %w", err)
	}

	return nil
}

// Metadata returns the stored seed metadata, or nil when no seed has been
// installed yet.
func (s *FileStore) Metadata(_ context.Context) (*Metadata, error) {
	metaPath := filepath.Join(s.dataDir, MetadataFileName)

	// #nosec G304 -- path is constructed from the configured data directory
	data, err := os.ReadFile(metaPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read seed metadata: %w", err)
	}

	var meta Metadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("failed to parse seed metadata: %w", err)
	}

	return &meta, nil
}

// Ready reports whether the data directory is usable.
func (s *FileStore) Ready(_ context.Context) error {
	if err := os.MkdirAll(s.dataDir, 0750); err != nil {
		return fmt.Errorf("seed data directory unavailable: %w", err)
	}
	return nil
}

// writeAtomic writes data via a temporary file and rename.
func writeAtomic(path string, data []byte) error {
	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0600); err != nil {
		return err
	}
	if err := os.Rename(tempPath, path); err != nil {
		_ = os.Remove(tempPath)
		return err
	}
	return nil
}
