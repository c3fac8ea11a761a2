package seed_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/varserve/seed-fetcher/internal/seed"
	"github.com/varserve/seed-fetcher/internal/state"
	"github.com/varserve/seed-fetcher/internal/telemetry"
)

// countingClient returns a fixed outcome and counts fetches.
type countingClient struct {
	mu      sync.Mutex
	calls   int
	outcome seed.Outcome
}

func (c *countingClient) Fetch(_ context.Context, _ seed.Request) seed.Outcome {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	return c.outcome
}

func (c *countingClient) fetchCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

// recordingSink captures installed seeds.
type recordingSink struct {
	mu        sync.Mutex
	installed []*seed.Response
	err       error
}

func (s *recordingSink) Install(_ context.Context, resp *seed.Response) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.installed = append(s.installed, resp)
	return s.err
}

func (s *recordingSink) installs() []*seed.Response {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.installed
}

// failingState always reports un-attempted and fails to persist the flag.
type failingState struct {
	mu    sync.Mutex
	marks int
}

func (f *failingState) HasAttempted(_ context.Context) bool {
	return false
}

func (f *failingState) MarkAttempted(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.marks++
	return errors.New("storage unavailable")
}

func successOutcome(body string) seed.Outcome {
	return seed.Outcome{
		Kind:   seed.OutcomeSuccess,
		Status: 200,
		Response: &seed.Response{
			RawBytes:     []byte(body),
			Signature:    "abc",
			IsCompressed: true,
		},
	}
}

// resultSampleCount sums the outcome-counter data points collected from the
// manual reader.
func resultSampleCount(t *testing.T, reader *sdkmetric.ManualReader) int64 {
	t.Helper()

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	var total int64
	for _, scope := range rm.ScopeMetrics {
		for _, m := range scope.Metrics {
			if m.Name != "seedfetch_firstrun_result_total" {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok, "expected int64 sum data")
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
		}
	}
	return total
}

func newTestMetrics(t *testing.T) (*telemetry.FetchMetrics, *sdkmetric.ManualReader) {
	t.Helper()

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	metrics, err := telemetry.NewFetchMetrics(mp)
	require.NoError(t, err)
	return metrics, reader
}

func TestFetchSeedOnceSuccess(t *testing.T) {
	t.Parallel()

	client := &countingClient{outcome: successOutcome("SEED")}
	sink := &recordingSink{}
	attemptState := state.NewStore(t.TempDir())
	metrics, reader := newTestMetrics(t)

	fetcher := seed.NewFetcher(client, attemptState, sink, seed.WithMetrics(metrics))
	summary := fetcher.FetchSeedOnce(context.Background(), "")

	assert.True(t, summary.Performed)
	assert.Equal(t, 200, summary.ResultCode)
	assert.Equal(t, 1, client.fetchCount())

	installs := sink.installs()
	require.Len(t, installs, 1)
	assert.Equal(t, []byte("SEED"), installs[0].RawBytes)
	assert.Equal(t, "abc", installs[0].Signature)
	assert.Equal(t, "", installs[0].Country)
	assert.Equal(t, "", installs[0].Date)
	assert.True(t, installs[0].IsCompressed)

	assert.True(t, attemptState.HasAttempted(context.Background()))
	assert.EqualValues(t, 1, resultSampleCount(t, reader))
}

func TestFetchSeedOnceAtMostOnceUnderConcurrency(t *testing.T) {
	t.Parallel()

	client := &countingClient{outcome: successOutcome("SEED")}
	sink := &recordingSink{}
	attemptState := state.NewStore(t.TempDir())
	metrics, reader := newTestMetrics(t)

	fetcher := seed.NewFetcher(client, attemptState, sink, seed.WithMetrics(metrics))

	const callers = 8
	summaries := make([]seed.Summary, callers)

	var wg sync.WaitGroup
	for i := range callers {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			summaries[idx] = fetcher.FetchSeedOnce(context.Background(), "")
		}(i)
	}
	wg.Wait()

	// Exactly one caller performed network I/O; the rest short-circuited.
	assert.Equal(t, 1, client.fetchCount())
	assert.Len(t, sink.installs(), 1)

	performed := 0
	for _, s := range summaries {
		if s.Performed {
			performed++
		}
	}
	assert.Equal(t, 1, performed)

	// Exactly one outcome sample was emitted.
	assert.EqualValues(t, 1, resultSampleCount(t, reader))
}

func TestFetchSeedOnceIdempotentAfterAttempt(t *testing.T) {
	t.Parallel()

	client := &countingClient{outcome: successOutcome("SEED")}
	sink := &recordingSink{}
	attemptState := state.NewStore(t.TempDir())
	metrics, reader := newTestMetrics(t)

	fetcher := seed.NewFetcher(client, attemptState, sink, seed.WithMetrics(metrics))

	first := fetcher.FetchSeedOnce(context.Background(), "")
	assert.True(t, first.Performed)

	for range 3 {
		summary := fetcher.FetchSeedOnce(context.Background(), "")
		assert.False(t, summary.Performed)
	}

	assert.Equal(t, 1, client.fetchCount())
	assert.EqualValues(t, 1, resultSampleCount(t, reader))
}

func TestFetchSeedOnceSkipsWhenNativePrefSet(t *testing.T) {
	t.Parallel()

	client := &countingClient{outcome: successOutcome("SEED")}
	sink := &recordingSink{}
	attemptState := state.NewStore(t.TempDir(),
		state.WithNativePref(func() bool { return true }))
	metrics, reader := newTestMetrics(t)

	fetcher := seed.NewFetcher(client, attemptState, sink, seed.WithMetrics(metrics))
	summary := fetcher.FetchSeedOnce(context.Background(), "")

	assert.False(t, summary.Performed)
	assert.Zero(t, client.fetchCount())
	assert.Empty(t, sink.installs())
	assert.Zero(t, resultSampleCount(t, reader))
}

func TestFetchSeedOnceMarksAttemptOnFailure(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		outcome      seed.Outcome
		expectedCode int
	}{
		{
			name:         "http error",
			outcome:      seed.Outcome{Kind: seed.OutcomeHTTPError, Status: 404},
			expectedCode: 404,
		},
		{
			name:         "timeout",
			outcome:      seed.Outcome{Kind: seed.OutcomeTimeout, Err: errors.New("deadline")},
			expectedCode: seed.ResultTimeout,
		},
		{
			name:         "unknown host",
			outcome:      seed.Outcome{Kind: seed.OutcomeUnknownHost, Err: errors.New("no such host")},
			expectedCode: seed.ResultUnknownHost,
		},
		{
			name:         "io error",
			outcome:      seed.Outcome{Kind: seed.OutcomeIOError, Err: errors.New("refused")},
			expectedCode: seed.ResultIOError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			client := &countingClient{outcome: tt.outcome}
			sink := &recordingSink{}
			attemptState := state.NewStore(t.TempDir())

			fetcher := seed.NewFetcher(client, attemptState, sink)

			summary := fetcher.FetchSeedOnce(context.Background(), "")
			assert.True(t, summary.Performed)
			assert.Equal(t, tt.expectedCode, summary.ResultCode)
			assert.Empty(t, sink.installs())

			// Failures count as attempted; the next call must not retry.
			assert.True(t, attemptState.HasAttempted(context.Background()))
			second := fetcher.FetchSeedOnce(context.Background(), "")
			assert.False(t, second.Performed)
			assert.Equal(t, 1, client.fetchCount())
		})
	}
}

func TestFetchSeedOnceFlagWriteFailureIsNonFatal(t *testing.T) {
	t.Parallel()

	client := &countingClient{outcome: successOutcome("SEED")}
	sink := &recordingSink{}
	attemptState := &failingState{}

	fetcher := seed.NewFetcher(client, attemptState, sink)
	summary := fetcher.FetchSeedOnce(context.Background(), "")

	// The fetch still completes and the seed is still delivered.
	assert.True(t, summary.Performed)
	assert.Equal(t, 200, summary.ResultCode)
	assert.Len(t, sink.installs(), 1)
	assert.Equal(t, 1, attemptState.marks)
}

func TestFetchSeedOnceSinkFailureStillMarksAttempt(t *testing.T) {
	t.Parallel()

	client := &countingClient{outcome: successOutcome("SEED")}
	sink := &recordingSink{err: errors.New("disk full")}
	attemptState := state.NewStore(t.TempDir())

	fetcher := seed.NewFetcher(client, attemptState, sink)
	summary := fetcher.FetchSeedOnce(context.Background(), "")

	assert.True(t, summary.Performed)
	assert.Equal(t, 200, summary.ResultCode)
	assert.True(t, attemptState.HasAttempted(context.Background()))
}

func TestFetchSeedOnceWithoutMetricsDoesNotPanic(t *testing.T) {
	t.Parallel()

	client := &countingClient{outcome: successOutcome("SEED")}
	fetcher := seed.NewFetcher(client, state.NewStore(t.TempDir()), &recordingSink{})

	summary := fetcher.FetchSeedOnce(context.Background(), "")
	assert.True(t, summary.Performed)
}
