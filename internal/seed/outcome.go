package seed

import "time"

// Result codes recorded to the outcome metric alongside plain HTTP status
// codes. They are negative so they can never collide with a real status.
// These values feed historical dashboards and must not be renumbered or
// reused.
const (
	// ResultIOError covers any transport failure that is neither a timeout
	// nor a DNS resolution failure.
	ResultIOError = -1

	// ResultTimeout indicates the connect or read deadline was exceeded.
	ResultTimeout = -2

	// ResultUnknownHost indicates the seed server host could not be resolved.
	ResultUnknownHost = -3
)

// OutcomeKind identifies which variant of Outcome a fetch produced.
type OutcomeKind int

const (
	// OutcomeSuccess is an HTTP 200 response carrying a seed payload.
	OutcomeSuccess OutcomeKind = iota

	// OutcomeHTTPError is any non-200 response from a reachable server.
	OutcomeHTTPError

	// OutcomeTimeout is a connect or read deadline overrun.
	OutcomeTimeout

	// OutcomeUnknownHost is a DNS resolution failure.
	OutcomeUnknownHost

	// OutcomeIOError is any other transport failure.
	OutcomeIOError
)

// Response is the payload of a successful fetch. The string fields are taken
// from response headers and default to the empty string when a header is
// absent. A Response is only ever constructed for an HTTP 200 status.
type Response struct {
	// RawBytes is the seed blob exactly as received. Its internal format is
	// opaque to this package.
	RawBytes []byte

	// Signature is the X-Seed-Signature response header.
	Signature string

	// Country is the X-Country response header.
	Country string

	// Date is the Date response header.
	Date string

	// IsCompressed reports whether the server actually applied the requested
	// gzip instance manipulation, determined from the inbound IM header
	// rather than assumed from the request.
	IsCompressed bool
}

// Outcome is the closed result type of a single fetch attempt. Exactly one
// variant is produced per call; Response is non-nil only for OutcomeSuccess.
type Outcome struct {
	Kind OutcomeKind

	// Status is the HTTP status code, set for OutcomeSuccess and
	// OutcomeHTTPError.
	Status int

	// Response carries the seed payload for OutcomeSuccess.
	Response *Response

	// ConnectTime is the elapsed time from just before connection setup
	// until response headers were received. Set only for OutcomeSuccess.
	ConnectTime time.Duration

	// Err is the underlying transport error for the failure variants.
	Err error
}

// ResultCode maps the outcome to its stable telemetry code: HTTP statuses
// pass through unchanged (200 for success) and the non-HTTP failure classes
// map to the negative Result* constants. The mapping is total over the
// closed set of variants and has no side effects.
func (o Outcome) ResultCode() int {
	switch o.Kind {
	case OutcomeSuccess, OutcomeHTTPError:
		return o.Status
	case OutcomeTimeout:
		return ResultTimeout
	case OutcomeUnknownHost:
		return ResultUnknownHost
	default:
		return ResultIOError
	}
}
