// Package service exposes the seed fetch subsystem to the API layer.
package service

import (
	"context"
	"fmt"
	"time"

	"github.com/varserve/seed-fetcher/internal/seed"
	"github.com/varserve/seed-fetcher/internal/state"
	"github.com/varserve/seed-fetcher/internal/store"
)

//go:generate mockgen -destination=mocks/mock_service.go -package=mocks -source=service.go SeedService

// Status reports the current state of the install's seed fetch.
type Status struct {
	// Attempted reflects the effective attempt flag: local OR native.
	Attempted bool `json:"attempted"`

	// InstallID is the stable identifier for this install.
	InstallID string `json:"install_id"`

	// AttemptTime is when the attempt was recorded, if one was.
	AttemptTime *time.Time `json:"attempt_time,omitempty"`

	// Seed describes the installed seed, when one exists.
	Seed *store.Metadata `json:"seed,omitempty"`
}

// FetchResult reports what a triggered fetch did.
type FetchResult struct {
	// Performed is false when the call short-circuited on a recorded
	// attempt.
	Performed bool `json:"performed"`

	// ResultCode is the stable outcome code for performed fetches.
	ResultCode int `json:"result_code,omitempty"`
}

// SeedService is the interface consumed by the HTTP API.
type SeedService interface {
	// Status returns the attempt state and installed-seed metadata.
	Status(ctx context.Context) (*Status, error)

	// Fetch triggers the at-most-once seed fetch. Calls after the first
	// recorded attempt are no-ops reported via FetchResult.Performed.
	Fetch(ctx context.Context, restrictMode string) (*FetchResult, error)

	// CheckReadiness returns nil when the service can serve requests.
	CheckReadiness(ctx context.Context) error
}

// seedService is the default SeedService implementation.
type seedService struct {
	fetcher   *seed.Fetcher
	state     *state.Store
	seedStore *store.FileStore
}

// New creates a SeedService wrapping the fetch coordinator, attempt state,
// and seed store.
func New(fetcher *seed.Fetcher, attemptState *state.Store, seedStore *store.FileStore) SeedService {
	return &seedService{
		fetcher:   fetcher,
		state:     attemptState,
		seedStore: seedStore,
	}
}

func (s *seedService) Status(ctx context.Context) (*Status, error) {
	meta, err := s.seedStore.Metadata(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed metadata: %w", err)
	}

	rec := s.state.Snapshot(ctx)
	return &Status{
		Attempted:   s.state.HasAttempted(ctx),
		InstallID:   s.state.InstallID(ctx),
		AttemptTime: rec.AttemptTime,
		Seed:        meta,
	}, nil
}

func (s *seedService) Fetch(ctx context.Context, restrictMode string) (*FetchResult, error) {
	summary := s.fetcher.FetchSeedOnce(ctx, restrictMode)

	result := &FetchResult{Performed: summary.Performed}
	if summary.Performed {
		result.ResultCode = summary.ResultCode
	}
	return result, nil
}

func (s *seedService) CheckReadiness(ctx context.Context) error {
	return s.seedStore.Ready(ctx)
}
