// Package state persists the install-scoped fetch-attempt flag.
package state

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

const (
	// AttemptFileName is the name of the attempt-state file inside the data
	// directory.
	AttemptFileName = "attempt.json"
)

// NativePrefQuery reports whether the externally-owned native flag is set.
// The flag is maintained by a separate subsystem; this package only ever
// reads it.
type NativePrefQuery func() bool

// AttemptState answers whether a fetch attempt was already recorded and
// records new attempts.
type AttemptState interface {
	// HasAttempted returns true when either the locally persisted flag or
	// the externally-owned native flag is set.
	HasAttempted(ctx context.Context) bool

	// MarkAttempted durably sets the local flag. Best-effort: callers treat
	// a returned error as non-fatal.
	MarkAttempted(ctx context.Context) error
}

// Record is the on-disk shape of the local attempt state.
type Record struct {
	// Attempted is the local fetch-attempt flag. Once true it is never reset
	// to false by normal operation.
	Attempted bool `json:"attempted"`

	// InstallID is a stable identifier generated once per install.
	InstallID string `json:"install_id,omitempty"`

	// AttemptTime is when the attempt was recorded.
	AttemptTime *time.Time `json:"attempt_time,omitempty"`
}

// Store is the file-backed AttemptState implementation.
type Store struct {
	path       string
	nativePref NativePrefQuery
}

// Option configures a Store.
type Option func(*Store)

// WithNativePref supplies the read-only accessor for the externally-owned
// native flag.
func WithNativePref(query NativePrefQuery) Option {
	return func(s *Store) {
		s.nativePref = query
	}
}

// NewStore creates a Store rooted at the given data directory.
func NewStore(dataDir string, opts ...Option) *Store {
	s := &Store{
		path: filepath.Join(dataDir, AttemptFileName),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// FileNativePref returns a NativePrefQuery that reports the presence of a
// marker file maintained by the native seed consumer.
func FileNativePref(path string) NativePrefQuery {
	return func() bool {
		_, err := os.Stat(path)
		return err == nil
	}
}

// load reads the persisted record. A missing or unreadable file counts as a
// fresh install with the flag unset.
func (s *Store) load() Record {
	// #nosec G304 -- path is constructed from the configured data directory
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			slog.Warn("Failed to read attempt state, treating as fresh install",
				"path", s.path,
				"error", err)
		}
		return Record{}
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		slog.Warn("Failed to parse attempt state, treating as fresh install",
			"path", s.path,
			"error", err)
		return Record{}
	}
	return rec
}

// HasAttempted returns true when either the local flag or the external
// native flag is set.
func (s *Store) HasAttempted(_ context.Context) bool {
	if s.load().Attempted {
		return true
	}
	return s.nativePref != nil && s.nativePref()
}

// MarkAttempted durably sets the local flag, preserving the install ID if
// one exists and generating one otherwise.
func (s *Store) MarkAttempted(_ context.Context) error {
	rec := s.load()
	rec.Attempted = true
	now := time.Now().UTC()
	rec.AttemptTime = &now
	if rec.InstallID == "" {
		rec.InstallID = uuid.NewString()
	}
	return s.save(rec)
}

// InstallID returns the stable install identifier, generating and persisting
// one on first use.
func (s *Store) InstallID(_ context.Context) string {
	rec := s.load()
	if rec.InstallID == "" {
		rec.InstallID = uuid.NewString()
		if err := s.save(rec); err != nil {
			slog.Warn("Failed to persist install ID", "error", err)
		}
	}
	return rec.InstallID
}

// Snapshot returns a copy of the persisted record for status reporting.
func (s *Store) Snapshot(_ context.Context) Record {
	return s.load()
}

// Reset clears the local flag. Intended for tests and explicit operator use;
// normal operation never transitions the flag back to false.
func (s *Store) Reset(_ context.Context) error {
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove attempt state: %w", err)
	}
	return nil
}

// save writes the record atomically: temporary file then rename.
func (s *Store) save(rec Record) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0750); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal attempt state: %w", err)
	}

	tempPath := s.path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write temporary attempt state: %w", err)
	}
	if err := os.Rename(tempPath, s.path); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("failed to rename attempt state: %w", err)
	}

	return nil
}
