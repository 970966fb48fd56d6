package probe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"apiwatch/internal/domain"
)

const maxBodyBytes = 1 << 20 // cap reads when validating JSON bodies

// TargetChecker issues one HTTP request per check, shaped by the target's
// method, headers, body, timeout and expectations.
type TargetChecker struct {
	Client *http.Client
}

func NewTargetChecker() *TargetChecker {
	// Per-target timeouts come from the request context, not the client.
	return &TargetChecker{Client: &http.Client{}}
}

func (c *TargetChecker) Check(ctx context.Context, t *domain.Target) Outcome {
	timeout := time.Duration(t.TimeoutSec) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	method := t.Method
	if method == "" {
		method = http.MethodGet
	}
	var body io.Reader
	if t.RequestBody != "" {
		body = strings.NewReader(t.RequestBody)
	}
	req, err := http.NewRequestWithContext(ctx, method, t.URL, body)
	if err != nil {
		return Outcome{OK: false, LatencyMS: -1, Reason: ReasonBadRequest}
	}
	for k, v := range t.Headers {
		req.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := c.Client.Do(req)
	if err != nil {
		// Wall time is still measured: a timeout after 10s and a reset
		// after 50ms are different events in the history.
		elapsed := time.Since(start).Milliseconds()
		reason := ReasonConnection
		var ne net.Error
		if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &ne) && ne.Timeout()) {
			reason = ReasonTimeout
		}
		return Outcome{OK: false, LatencyMS: elapsed, Reason: reason, Transient: true}
	}
	defer resp.Body.Close()

	latency := time.Since(start).Milliseconds()
	out := Outcome{LatencyMS: latency, StatusCode: resp.StatusCode}

	expected := t.ExpectedStatus
	if expected == 0 {
		expected = http.StatusOK
	}
	if resp.StatusCode != expected {
		out.Reason = fmt.Sprintf("%s: expected %d, got %d", ReasonBadStatus, expected, resp.StatusCode)
		return out
	}

	if keys := splitKeys(t.JSONKeys); len(keys) > 0 {
		raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
		if err != nil {
			out.Reason = ReasonConnection
			out.Transient = true
			return out
		}
		var doc map[string]json.RawMessage
		if err := json.Unmarshal(raw, &doc); err != nil {
			out.Reason = ReasonBadJSON
			return out
		}
		var missing []string
		for _, k := range keys {
			if _, ok := doc[k]; !ok {
				missing = append(missing, k)
			}
		}
		if len(missing) > 0 {
			out.Reason = ReasonMissingKeys + ": " + strings.Join(missing, ", ")
			return out
		}
	}

	out.OK = true
	out.Reason = ReasonOK
	return out
}

// splitKeys parses the comma-separated list of required top-level keys.
func splitKeys(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, k := range strings.Split(s, ",") {
		if k = strings.TrimSpace(k); k != "" {
			out = append(out, k)
		}
	}
	return out
}
