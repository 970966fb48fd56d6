// Package report renders notification and digest texts. Formatting lives
// here so the monitor and scheduler send identical messages regardless of
// channel.
package report

import (
	"fmt"
	"strings"
	"time"

	"apiwatch/internal/domain"
)

// FormatDuration renders a duration in the largest two useful units.
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
	default:
		days := int(d.Hours()) / 24
		return fmt.Sprintf("%dd %dh", days, int(d.Hours())%24)
	}
}

// PeriodWindow maps a reporting period name to its lookback. Unknown
// periods fall back to a day.
func PeriodWindow(period string) (time.Duration, string) {
	switch period {
	case "hour":
		return time.Hour, "last hour"
	case "week":
		return 7 * 24 * time.Hour, "last 7 days"
	case "month":
		return 30 * 24 * time.Hour, "last 30 days"
	default:
		return 24 * time.Hour, "last 24 hours"
	}
}

func Down(t *domain.Target, reason string, failures int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🔴 <b>%s is DOWN</b>\n", name(t))
	fmt.Fprintf(&b, "URL: %s\n", t.URL)
	fmt.Fprintf(&b, "Reason: %s\n", reason)
	fmt.Fprintf(&b, "Failed checks: %d", failures)
	return b.String()
}

func Recovered(t *domain.Target, downFor time.Duration, failures int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🟢 <b>%s is back UP</b>\n", name(t))
	fmt.Fprintf(&b, "URL: %s\n", t.URL)
	fmt.Fprintf(&b, "Downtime: %s\n", FormatDuration(downFor))
	fmt.Fprintf(&b, "Failed checks during outage: %d", failures)
	return b.String()
}

func Anomaly(t *domain.Target, e *domain.AnomalyEvent, thresholdMS float64) string {
	var b strings.Builder
	fmt.Fprintf(&b, "⚠️ <b>Slow responses on %s</b>\n", name(t))
	fmt.Fprintf(&b, "Latency: %d ms (threshold %.0f ms)\n", e.LatencyMS, thresholdMS)
	fmt.Fprintf(&b, "Above threshold by: %.0f ms", e.Deviation)
	return b.String()
}

func Reminder(t *domain.Target, downFor time.Duration) string {
	return fmt.Sprintf("🔴 <b>%s is still DOWN</b>\nDown for: %s",
		name(t), FormatDuration(downFor))
}

// StatusLine is one row of the fleet status overview.
func StatusLine(t *domain.Target) string {
	icon := "🟢"
	state := "UP"
	switch {
	case !t.IsActive:
		icon, state = "⏸", "PAUSED"
	case !t.IsUp:
		icon, state = "🔴", "DOWN"
	}
	line := fmt.Sprintf("%s <b>%s</b> — %s", icon, name(t), state)
	if t.LastResponseTime != nil && *t.LastResponseTime >= 0 {
		line += fmt.Sprintf(" (%d ms)", *t.LastResponseTime)
	}
	if !t.IsUp && t.IncidentStartTime != nil {
		line += fmt.Sprintf(", down %s", FormatDuration(time.Since(*t.IncidentStartTime)))
	}
	return line
}

func Stats(t *domain.Target, s *domain.PeriodStats) string {
	var b strings.Builder
	fmt.Fprintf(&b, "📊 <b>%s</b> — %s\n", name(t), s.Period)
	fmt.Fprintf(&b, "Checks: %d\n", s.TotalChecks)
	fmt.Fprintf(&b, "Uptime: %.2f%%\n", s.UptimePercent)
	fmt.Fprintf(&b, "Avg latency: %.0f ms\n", s.AvgLatencyMS)
	fmt.Fprintf(&b, "Incidents: %d", s.IncidentCount)
	if s.IncidentCount > 0 {
		fmt.Fprintf(&b, " (total downtime %s, avg %s)",
			FormatDuration(s.TotalDowntime), FormatDuration(s.AvgDowntime))
	}
	if s.AnomalyCount > 0 {
		fmt.Fprintf(&b, "\nLatency anomalies: %d", s.AnomalyCount)
	}
	return b.String()
}

// DigestEntry is one target's day in the daily summary.
type DigestEntry struct {
	Target *domain.Target
	Stats  *domain.PeriodStats
}

func Digest(date time.Time, entries []DigestEntry) string {
	var b strings.Builder
	fmt.Fprintf(&b, "📋 <b>Daily digest — %s</b>\n", date.Format("Mon, 02 Jan 2006"))
	if len(entries) == 0 {
		b.WriteString("No targets monitored.")
		return b.String()
	}
	for _, e := range entries {
		fmt.Fprintf(&b, "\n%s\n", StatusLine(e.Target))
		fmt.Fprintf(&b, "  Uptime %.2f%%, %d checks, avg %.0f ms",
			e.Stats.UptimePercent, e.Stats.TotalChecks, e.Stats.AvgLatencyMS)
		if e.Stats.IncidentCount > 0 {
			fmt.Fprintf(&b, ", %d incident(s), down %s",
				e.Stats.IncidentCount, FormatDuration(e.Stats.TotalDowntime))
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func name(t *domain.Target) string {
	if t.Name != "" {
		return t.Name
	}
	return t.URL
}
