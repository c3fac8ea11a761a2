package config

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, DefaultEndpoint, cfg.Seed.Endpoint)
	assert.Equal(t, runtime.GOOS, cfg.Seed.OSName)
	assert.Empty(t, cfg.Seed.RestrictMode)
	assert.Equal(t, DefaultConnectTimeout, cfg.Seed.GetConnectTimeout())
	assert.Equal(t, DefaultReadTimeout, cfg.Seed.GetReadTimeout())
	assert.Equal(t, int64(DefaultMaxSeedSize), cfg.Seed.MaxSeedSize)
	assert.Equal(t, DefaultDataDir, cfg.Storage.DataDir)
	assert.Equal(t, DefaultAddress, cfg.Server.Address)
	assert.False(t, cfg.Telemetry.Enabled)
}

func TestLoadConfigFromFile(t *testing.T) {
	t.Parallel()

	path := writeConfigFile(t, `
seed:
  endpoint: "https://seeds.example.org/firstrun"
  osName: "android"
  restrictMode: "mobile"
  connectTimeout: "500ms"
  readTimeout: "2s"
  maxSeedSize: 1048576
storage:
  dataDir: "/var/lib/seed-fetcher"
  nativeSeedMarker: "/var/lib/native/seed-fetched"
server:
  address: ":9090"
telemetry:
  enabled: true
`)

	cfg, err := LoadConfig(WithConfigPath(path))
	require.NoError(t, err)

	assert.Equal(t, "https://seeds.example.org/firstrun", cfg.Seed.Endpoint)
	assert.Equal(t, "android", cfg.Seed.OSName)
	assert.Equal(t, "mobile", cfg.Seed.RestrictMode)
	assert.Equal(t, 500*time.Millisecond, cfg.Seed.GetConnectTimeout())
	assert.Equal(t, 2*time.Second, cfg.Seed.GetReadTimeout())
	assert.Equal(t, int64(1048576), cfg.Seed.MaxSeedSize)
	assert.Equal(t, "/var/lib/seed-fetcher", cfg.Storage.DataDir)
	assert.Equal(t, "/var/lib/native/seed-fetched", cfg.Storage.NativeSeedMarker)
	assert.Equal(t, ":9090", cfg.Server.Address)
	assert.True(t, cfg.Telemetry.Enabled)
}

func TestLoadConfigPartialFileKeepsDefaults(t *testing.T) {
	t.Parallel()

	path := writeConfigFile(t, `
seed:
  endpoint: "http://localhost:8081/seed"
`)

	cfg, err := LoadConfig(WithConfigPath(path))
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:8081/seed", cfg.Seed.Endpoint)
	assert.Equal(t, DefaultConnectTimeout, cfg.Seed.GetConnectTimeout())
	assert.Equal(t, DefaultDataDir, cfg.Storage.DataDir)
	assert.Equal(t, DefaultAddress, cfg.Server.Address)
}

func TestLoadConfigInvalid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		content string
	}{
		{
			name: "malformed yaml",
			content: `
seed:
  endpoint: [not a string
`,
		},
		{
			name: "non-http endpoint scheme",
			content: `
seed:
  endpoint: "ftp://seeds.example.org"
`,
		},
		{
			name: "bad connect timeout",
			content: `
seed:
  connectTimeout: "fast"
`,
		},
		{
			name: "bad read timeout",
			content: `
seed:
  readTimeout: "-"
`,
		},
		{
			name: "negative max seed size",
			content: `
seed:
  maxSeedSize: -1
`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			path := writeConfigFile(t, tt.content)
			_, err := LoadConfig(WithConfigPath(path))
			assert.Error(t, err)
		})
	}
}

func TestWithConfigPathValidation(t *testing.T) {
	t.Parallel()

	t.Run("empty path rejected", func(t *testing.T) {
		t.Parallel()

		_, err := LoadConfig(WithConfigPath(""))
		assert.Error(t, err)
	})

	t.Run("missing file rejected", func(t *testing.T) {
		t.Parallel()

		_, err := LoadConfig(WithConfigPath(filepath.Join(t.TempDir(), "absent.yaml")))
		assert.Error(t, err)
	})

	t.Run("symlink resolved", func(t *testing.T) {
		t.Parallel()

		target := writeConfigFile(t, `
server:
  address: ":7070"
`)
		link := filepath.Join(t.TempDir(), "config-link.yaml")
		require.NoError(t, os.Symlink(target, link))

		cfg, err := LoadConfig(WithConfigPath(link))
		require.NoError(t, err)
		assert.Equal(t, ":7070", cfg.Server.Address)
	})
}

func TestSeedConfigTimeoutFallbacks(t *testing.T) {
	t.Parallel()

	// Unparseable values fall back to the defaults rather than zero.
	sc := SeedConfig{ConnectTimeout: "bogus", ReadTimeout: "bogus"}
	assert.Equal(t, DefaultConnectTimeout, sc.GetConnectTimeout())
	assert.Equal(t, DefaultReadTimeout, sc.GetReadTimeout())
}
