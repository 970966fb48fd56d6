package report

import (
	"strings"
	"testing"
	"time"

	"apiwatch/internal/domain"
)

func TestFormatDuration(t *testing.T) {
	cases := []struct {
		d    time.Duration
		want string
	}{
		{45 * time.Second, "45s"},
		{5*time.Minute + 30*time.Second, "5m 30s"},
		{2*time.Hour + 15*time.Minute, "2h 15m"},
		{50 * time.Hour, "2d 2h"},
		{-time.Minute, "0s"},
	}
	for _, tc := range cases {
		if got := FormatDuration(tc.d); got != tc.want {
			t.Errorf("FormatDuration(%v) = %q, want %q", tc.d, got, tc.want)
		}
	}
}

func TestPeriodWindow(t *testing.T) {
	if d, _ := PeriodWindow("hour"); d != time.Hour {
		t.Errorf("hour window = %v", d)
	}
	if d, label := PeriodWindow("bogus"); d != 24*time.Hour || label != "last 24 hours" {
		t.Errorf("unknown period must fall back to a day, got %v %q", d, label)
	}
}

func TestDownAndRecovered(t *testing.T) {
	tg := &domain.Target{Name: "payments", URL: "https://pay.example.com"}

	down := Down(tg, "timeout", 3)
	for _, want := range []string{"payments", "DOWN", "timeout", "3"} {
		if !strings.Contains(down, want) {
			t.Errorf("down message missing %q: %s", want, down)
		}
	}

	rec := Recovered(tg, 90*time.Second, 4)
	if !strings.Contains(rec, "1m 30s") || !strings.Contains(rec, "back UP") {
		t.Errorf("recovered message malformed: %s", rec)
	}
}

func TestStatusLine_NameFallsBackToURL(t *testing.T) {
	tg := &domain.Target{URL: "https://x.example.com", IsActive: true, IsUp: true}
	if !strings.Contains(StatusLine(tg), "x.example.com") {
		t.Errorf("unnamed target should show URL: %s", StatusLine(tg))
	}

	tg.IsActive = false
	if !strings.Contains(StatusLine(tg), "PAUSED") {
		t.Errorf("paused target not flagged: %s", StatusLine(tg))
	}
}

func TestDigest(t *testing.T) {
	date := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	entries := []DigestEntry{{
		Target: &domain.Target{Name: "api", URL: "https://a", IsActive: true, IsUp: true},
		Stats:  &domain.PeriodStats{UptimePercent: 99.5, TotalChecks: 1440, AvgLatencyMS: 120, IncidentCount: 1, TotalDowntime: 7 * time.Minute},
	}}
	got := Digest(date, entries)
	for _, want := range []string{"Daily digest", "api", "99.50%", "1440", "1 incident"} {
		if !strings.Contains(got, want) {
			t.Errorf("digest missing %q:\n%s", want, got)
		}
	}

	if empty := Digest(date, nil); !strings.Contains(empty, "No targets") {
		t.Errorf("empty digest malformed: %s", empty)
	}
}
