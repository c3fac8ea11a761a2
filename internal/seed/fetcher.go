package seed

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/varserve/seed-fetcher/internal/state"
	"github.com/varserve/seed-fetcher/internal/telemetry"
)

// Sink receives a successfully fetched seed and installs it for the
// downstream consumer. The seed is owned by the sink after Install returns;
// the fetcher does not retain it.
type Sink interface {
	Install(ctx context.Context, resp *Response) error
}

// Summary reports what a FetchSeedOnce call did.
type Summary struct {
	// Performed is false when the call was short-circuited by a previously
	// recorded attempt. Short-circuited calls emit no telemetry and make no
	// network requests.
	Performed bool

	// ResultCode is the stable outcome code for calls that performed a
	// fetch.
	ResultCode int
}

// Fetcher serializes fetch attempts and guarantees at most one network fetch
// per install lifetime. All collaborators are injected; there is no global
// instance.
type Fetcher struct {
	mu      sync.Mutex
	client  Client
	state   state.AttemptState
	sink    Sink
	metrics *telemetry.FetchMetrics
}

// FetcherOption configures a Fetcher.
type FetcherOption func(*Fetcher)

// WithMetrics sets the fetch metrics. A nil value leaves telemetry as a
// no-op.
func WithMetrics(metrics *telemetry.FetchMetrics) FetcherOption {
	return func(f *Fetcher) {
		f.metrics = metrics
	}
}

// NewFetcher creates a Fetcher with injected dependencies.
func NewFetcher(client Client, attemptState state.AttemptState, sink Sink, opts ...FetcherOption) *Fetcher {
	f := &Fetcher{
		client: client,
		state:  attemptState,
		sink:   sink,
	}

	for _, opt := range opts {
		opt(f)
	}

	return f
}

// FetchSeedOnce performs at most one seed fetch for the lifetime of the
// install. It blocks for up to the configured connect and read timeouts, so
// it must be invoked off any latency-sensitive goroutine. The mutex is held
// for the full duration, network I/O included: a second concurrent caller
// blocks behind the first and then short-circuits on the recorded attempt.
func (f *Fetcher) FetchSeedOnce(ctx context.Context, restrictMode string) Summary {
	f.mu.Lock()
	defer f.mu.Unlock()

	// A failed attempt probably indicates a network problem that a second
	// attempt is unlikely to resolve, so any recorded attempt (local or
	// native) short-circuits with no network activity and no telemetry.
	if f.state.HasAttempted(ctx) {
		return Summary{Performed: false}
	}

	summary := f.download(ctx, restrictMode)

	// Success and every failure class count as attempted; there is no retry
	// until the next install or an explicit reset. The write is best-effort.
	if err := f.state.MarkAttempted(ctx); err != nil {
		slog.Error("Failed to persist fetch-attempt flag", "error", err)
	}

	return summary
}

// download performs the single bounded fetch and emits exactly one outcome
// sample, plus the connect-time and fetch-time samples on success.
func (f *Fetcher) download(ctx context.Context, restrictMode string) Summary {
	start := time.Now()
	outcome := f.client.Fetch(ctx, Request{RestrictMode: restrictMode})

	code := outcome.ResultCode()
	f.metrics.RecordFetchResult(ctx, code)

	switch outcome.Kind {
	case OutcomeSuccess:
		f.metrics.RecordConnectTime(ctx, outcome.ConnectTime)
		if err := f.sink.Install(ctx, outcome.Response); err != nil {
			slog.Error("Failed to install fetched seed", "error", err)
		}
		elapsed := time.Since(start)
		f.metrics.RecordFetchTime(ctx, elapsed)
		slog.Info("Fetched first-run seed",
			"elapsed_ms", elapsed.Milliseconds(),
			"bytes", len(outcome.Response.RawBytes),
			"compressed", outcome.Response.IsCompressed)
	case OutcomeHTTPError:
		slog.Warn("Seed server returned non-OK status", "status", outcome.Status)
	case OutcomeTimeout:
		slog.Warn("Timed out fetching first-run seed", "error", outcome.Err)
	case OutcomeUnknownHost:
		slog.Warn("Could not resolve seed server host", "error", outcome.Err)
	default:
		slog.Warn("I/O error fetching first-run seed", "error", outcome.Err)
	}

	return Summary{Performed: true, ResultCode: code}
}
