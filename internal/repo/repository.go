// Package repo defines the persistence ports of the monitoring core.
// Adapters live in subpackages (memory, sqlite, postgres); the core only
// ever sees these interfaces.
package repo

import (
	"context"
	"errors"
	"time"

	"apiwatch/internal/domain"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// TargetStore owns the registry of monitored targets. UpdateStatus is the
// single logical write performed after each probe; Patch applies validated
// admin edits.
type TargetStore interface {
	Create(ctx context.Context, t *domain.Target) error
	Get(ctx context.Context, id domain.TargetID) (*domain.Target, error)
	List(ctx context.Context) ([]*domain.Target, error)
	ListActive(ctx context.Context) ([]*domain.Target, error)
	Patch(ctx context.Context, id domain.TargetID, p *domain.TargetPatch) (*domain.Target, error)
	UpdateStatus(ctx context.Context, id domain.TargetID, u *domain.StatusUpdate) error
	SetActive(ctx context.Context, id domain.TargetID, active bool) (*domain.Target, error)
	SetMute(ctx context.Context, id domain.TargetID, muted bool, until *time.Time) error
	// Delete cascades to history, incidents, baselines and anomaly events.
	Delete(ctx context.Context, id domain.TargetID) error
}

// HistoryStore is the append-only check log.
type HistoryStore interface {
	Append(ctx context.Context, r *domain.CheckResult) error
	// RecentLatencies returns up to limit latencies of successful checks
	// with positive latency, oldest first.
	RecentLatencies(ctx context.Context, id domain.TargetID, limit int) ([]int64, error)
	// HistoryStats aggregates check counts and mean latency since the
	// given time.
	HistoryStats(ctx context.Context, id domain.TargetID, since time.Time) (total, ok int, avgLatencyMS float64, err error)
	// PurgeBefore deletes history rows older than cutoff, returning the
	// number removed.
	PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// IncidentStore tracks DOWN spans. CloseIncident is an idempotent no-op
// when the matching incident is already closed or absent, since a
// pause/resume race can legitimately produce that.
type IncidentStore interface {
	OpenIncident(ctx context.Context, id domain.TargetID, start time.Time) error
	CloseIncident(ctx context.Context, id domain.TargetID, start, end time.Time) error
	IncidentsSince(ctx context.Context, id domain.TargetID, since time.Time) ([]domain.Incident, error)
}

// BaselineStore appends statistical snapshots. Latest returns (nil, nil)
// when no baseline has been computed yet.
type BaselineStore interface {
	AppendBaseline(ctx context.Context, b *domain.Baseline) error
	Latest(ctx context.Context, id domain.TargetID) (*domain.Baseline, error)
}

// AnomalyStore is the append-only anomaly log; LastEventTime feeds the
// cooldown check and returns (nil, nil) when the target has no events.
type AnomalyStore interface {
	AppendAnomaly(ctx context.Context, e *domain.AnomalyEvent) error
	LastEventTime(ctx context.Context, id domain.TargetID) (*time.Time, error)
	CountSince(ctx context.Context, id domain.TargetID, since time.Time) (int, error)
	PurgeAnomaliesBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// SubscriberStore resolves notification recipients. Recipients unions the
// target's own subscribers with global ones; the caller adds the fallback
// admin recipient.
type SubscriberStore interface {
	Subscribe(ctx context.Context, s *domain.Subscriber) error
	Unsubscribe(ctx context.Context, chatID string, id *domain.TargetID) error
	Recipients(ctx context.Context, id domain.TargetID) ([]domain.Subscriber, error)
}

// ReminderStore keeps the per-target timestamp of the last downtime
// reminder. LastReminder returns (nil, nil) when none was sent yet.
type ReminderStore interface {
	LastReminder(ctx context.Context, id domain.TargetID) (*time.Time, error)
	SetLastReminder(ctx context.Context, id domain.TargetID, ts time.Time) error
}

// Store aggregates every port; adapters implement all of them over one
// database handle.
type Store interface {
	TargetStore
	HistoryStore
	IncidentStore
	BaselineStore
	AnomalyStore
	SubscriberStore
	ReminderStore
}
