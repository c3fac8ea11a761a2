package seed_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/varserve/seed-fetcher/internal/seed"
)

func TestOutcomeResultCode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		outcome  seed.Outcome
		expected int
	}{
		{
			name:     "success passes 200 through",
			outcome:  seed.Outcome{Kind: seed.OutcomeSuccess, Status: 200},
			expected: 200,
		},
		{
			name:     "http error passes status through",
			outcome:  seed.Outcome{Kind: seed.OutcomeHTTPError, Status: 404},
			expected: 404,
		},
		{
			name:     "http 500 passes through",
			outcome:  seed.Outcome{Kind: seed.OutcomeHTTPError, Status: 500},
			expected: 500,
		},
		{
			name:     "timeout maps to -2",
			outcome:  seed.Outcome{Kind: seed.OutcomeTimeout, Err: errors.New("deadline exceeded")},
			expected: -2,
		},
		{
			name:     "unknown host maps to -3",
			outcome:  seed.Outcome{Kind: seed.OutcomeUnknownHost, Err: errors.New("no such host")},
			expected: -3,
		},
		{
			name:     "io error maps to -1",
			outcome:  seed.Outcome{Kind: seed.OutcomeIOError, Err: errors.New("connection reset")},
			expected: -1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.expected, tt.outcome.ResultCode())
		})
	}
}

func TestResultCodeConstantsAreStable(t *testing.T) {
	t.Parallel()

	// These values feed historical dashboards and must never change.
	assert.Equal(t, -1, seed.ResultIOError)
	assert.Equal(t, -2, seed.ResultTimeout)
	assert.Equal(t, -3, seed.ResultUnknownHost)
}
