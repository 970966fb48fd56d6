package domain

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

var allowedMethods = map[string]bool{
	"GET": true, "POST": true, "PUT": true, "DELETE": true, "PATCH": true, "HEAD": true,
}

// TargetPatch is the explicit set of fields an admin may change on a target.
// Nil means "leave unchanged". Unknown fields are rejected at the decode
// boundary (DisallowUnknownFields); values are validated here before they
// reach the registry, never inside a running check.
type TargetPatch struct {
	Name           *string            `json:"name,omitempty"`
	URL            *string            `json:"url,omitempty"`
	Method         *string            `json:"method,omitempty"`
	Headers        *map[string]string `json:"headers,omitempty"`
	RequestBody    *string            `json:"request_body,omitempty"`
	ExpectedStatus *int               `json:"expected_status,omitempty"`
	TimeoutSec     *int               `json:"timeout_sec,omitempty"`
	IntervalSec    *int               `json:"interval_sec,omitempty"`
	JSONKeys       *string            `json:"json_keys,omitempty"`
	Sensitivity    *float64           `json:"sensitivity,omitempty"`
	AnomalyM       *int               `json:"anomaly_m,omitempty"`
	AnomalyN       *int               `json:"anomaly_n,omitempty"`
	AnomalyAlerts  *bool              `json:"anomaly_alerts,omitempty"`
}

// Validate checks the patch against current, i.e. the values the target
// would have after applying it. m/n are checked as a pair so a patch that
// changes only one of them cannot break n >= m >= 1.
func (p *TargetPatch) Validate(current *Target) error {
	if p.URL != nil {
		u, err := url.Parse(*p.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("invalid url %q", *p.URL)
		}
	}
	if p.Method != nil {
		m := strings.ToUpper(*p.Method)
		if !allowedMethods[m] {
			return fmt.Errorf("unsupported method %q", *p.Method)
		}
		*p.Method = m
	}
	if p.ExpectedStatus != nil && (*p.ExpectedStatus < 100 || *p.ExpectedStatus > 599) {
		return fmt.Errorf("expected_status out of range: %d", *p.ExpectedStatus)
	}
	if p.TimeoutSec != nil && *p.TimeoutSec < 1 {
		return errors.New("timeout_sec must be >= 1")
	}
	if p.IntervalSec != nil && *p.IntervalSec < 1 {
		return errors.New("interval_sec must be >= 1")
	}
	if p.Sensitivity != nil && *p.Sensitivity <= 0 {
		return errors.New("sensitivity must be > 0")
	}

	m, n := 0, 0
	if current != nil {
		m, n = current.AnomalyM, current.AnomalyN
	}
	if p.AnomalyM != nil {
		m = *p.AnomalyM
	}
	if p.AnomalyN != nil {
		n = *p.AnomalyN
	}
	if p.AnomalyM != nil || p.AnomalyN != nil {
		if m < 1 || n < m {
			return fmt.Errorf("anomaly window must satisfy n >= m >= 1, got m=%d n=%d", m, n)
		}
	}
	return nil
}

// Apply writes the patch onto t. Call Validate first.
func (p *TargetPatch) Apply(t *Target) {
	if p.Name != nil {
		t.Name = *p.Name
	}
	if p.URL != nil {
		t.URL = *p.URL
	}
	if p.Method != nil {
		t.Method = *p.Method
	}
	if p.Headers != nil {
		t.Headers = *p.Headers
	}
	if p.RequestBody != nil {
		t.RequestBody = *p.RequestBody
	}
	if p.ExpectedStatus != nil {
		t.ExpectedStatus = *p.ExpectedStatus
	}
	if p.TimeoutSec != nil {
		t.TimeoutSec = *p.TimeoutSec
	}
	if p.IntervalSec != nil {
		t.IntervalSec = *p.IntervalSec
	}
	if p.JSONKeys != nil {
		t.JSONKeys = *p.JSONKeys
	}
	if p.Sensitivity != nil {
		t.Sensitivity = *p.Sensitivity
	}
	if p.AnomalyM != nil {
		t.AnomalyM = *p.AnomalyM
	}
	if p.AnomalyN != nil {
		t.AnomalyN = *p.AnomalyN
	}
	if p.AnomalyAlerts != nil {
		t.AnomalyAlerts = *p.AnomalyAlerts
	}
}

// StatusUpdate is the single logical write performed after every probe:
// bookkeeping columns, hysteresis counters and the up/down flag together.
type StatusUpdate struct {
	LastChecked          time.Time
	LastStatusCode       *int
	LastResponseTime     int64
	LastError            *string
	ConsecutiveFailures  int
	ConsecutiveSuccesses int
	IsUp                 bool
	IncidentStartTime    *time.Time
}

// ValidateNew checks a freshly created target before it is scheduled.
func ValidateNew(t *Target) error {
	if t.URL == "" {
		return errors.New("url is required")
	}
	p := TargetPatch{
		URL:            &t.URL,
		Method:         &t.Method,
		ExpectedStatus: &t.ExpectedStatus,
		TimeoutSec:     &t.TimeoutSec,
		IntervalSec:    &t.IntervalSec,
	}
	if t.Sensitivity != 0 {
		p.Sensitivity = &t.Sensitivity
	}
	if t.AnomalyM != 0 || t.AnomalyN != 0 {
		p.AnomalyM = &t.AnomalyM
		p.AnomalyN = &t.AnomalyN
	}
	return p.Validate(nil)
}
