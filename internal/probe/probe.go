// Package probe executes HTTP checks against monitored targets.
package probe

import (
	"context"

	"apiwatch/internal/domain"
)

// Failure reasons carried on Outcome and persisted with check results.
// Validation reasons are prefixes: the recorded string appends the
// observed detail, e.g. "unexpected_status: expected 200, got 502" or
// "missing_json_keys: version".
const (
	ReasonOK          = "ok"
	ReasonTimeout     = "timeout"
	ReasonConnection  = "connection_error"
	ReasonBadStatus   = "unexpected_status"
	ReasonBadJSON     = "invalid_json"
	ReasonMissingKeys = "missing_json_keys"
	ReasonBadRequest  = "bad_request"
)

// Outcome is the result of one probe. LatencyMS is the wall time of the
// request, measured even when it failed; it is -1 only when no request
// was sent at all. StatusCode is 0 when no HTTP response arrived. Latency
// statistics are computed over successful checks only.
type Outcome struct {
	OK         bool
	LatencyMS  int64
	StatusCode int
	Reason     string
	// Transient marks failures worth retrying (timeouts, connection
	// resets). Validation failures are deterministic and are not.
	Transient bool
}

// Checker probes one target. Implementations must honor ctx cancellation.
type Checker interface {
	Check(ctx context.Context, t *domain.Target) Outcome
}
