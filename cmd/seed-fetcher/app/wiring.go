package app

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	"github.com/varserve/seed-fetcher/internal/config"
	"github.com/varserve/seed-fetcher/internal/seed"
	"github.com/varserve/seed-fetcher/internal/service"
	"github.com/varserve/seed-fetcher/internal/state"
	"github.com/varserve/seed-fetcher/internal/store"
	"github.com/varserve/seed-fetcher/internal/telemetry"
)

const lockFileName = "seed-fetcher.lock"

// components bundles the wired seed fetch subsystem.
type components struct {
	attemptState *state.Store
	seedStore    *store.FileStore
	fetcher      *seed.Fetcher
	svc          service.SeedService
}

// buildComponents wires the fetch coordinator and its collaborators from
// configuration. metrics may be nil for commands without an exporter.
func buildComponents(cfg *config.Config, metrics *telemetry.FetchMetrics) *components {
	stateOpts := []state.Option{}
	if cfg.Storage.NativeSeedMarker != "" {
		stateOpts = append(stateOpts, state.WithNativePref(state.FileNativePref(cfg.Storage.NativeSeedMarker)))
	}
	attemptState := state.NewStore(cfg.Storage.DataDir, stateOpts...)

	seedStore := store.NewFileStore(cfg.Storage.DataDir)

	client := seed.NewHTTPClient(cfg.Seed.Endpoint, cfg.Seed.OSName,
		seed.WithTimeouts(cfg.Seed.GetConnectTimeout(), cfg.Seed.GetReadTimeout()),
		seed.WithMaxSeedSize(cfg.Seed.MaxSeedSize),
	)

	fetcher := seed.NewFetcher(client, attemptState, seedStore,
		seed.WithMetrics(metrics),
	)

	return &components{
		attemptState: attemptState,
		seedStore:    seedStore,
		fetcher:      fetcher,
		svc:          service.New(fetcher, attemptState, seedStore),
	}
}

// acquireInstanceLock takes an exclusive file lock on the data directory so
// two instances never share the attempt flag. The caller unlocks it on exit.
func acquireInstanceLock(dataDir string) (*flock.Flock, error) {
	if err := os.MkdirAll(dataDir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	lock := flock.New(filepath.Join(dataDir, lockFileName))
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire data directory lock: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("another instance holds the data directory lock at %s", lock.Path())
	}

	return lock, nil
}

// loadConfigOptional loads the config file at path, or defaults when path is
// empty.
func loadConfigOptional(path string) (*config.Config, error) {
	if path == "" {
		return config.LoadConfig()
	}
	return config.LoadConfig(config.WithConfigPath(path))
}
