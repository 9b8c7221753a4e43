// Package audit records access decisions. Entries are append-only and are
// written off the request path so a slow or failing store never changes the
// outcome of a check.
package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/frahmantamala/hospitality-access/internal/core/events"
	"github.com/google/uuid"
)

type Decision string

const (
	DecisionAllow Decision = "allow"
	DecisionDeny  Decision = "deny"
)

type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

type Entry struct {
	ID         string    `json:"id" db:"id"`
	OccurredAt time.Time `json:"occurred_at" db:"occurred_at"`
	UserID     *int64    `json:"user_id,omitempty" db:"user_id"`
	Role       string    `json:"role" db:"role"`
	Module     string    `json:"module" db:"module"`
	Action     string    `json:"action" db:"action"`
	Decision   Decision  `json:"decision" db:"decision"`
	Reason     string    `json:"reason" db:"reason"`
	RiskLevel  RiskLevel `json:"risk_level" db:"risk_level"`
	RequestID  string    `json:"request_id,omitempty" db:"request_id"`
	RemoteAddr string    `json:"remote_addr,omitempty" db:"remote_addr"`
}

// Sink accepts audit entries. Record never blocks on storage and never fails
// the caller.
type Sink interface {
	Record(ctx context.Context, e Entry)
}

func stamp(e *Entry) {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now().UTC()
	}
}

// EntryEvent carries an entry across the event bus.
type EntryEvent struct {
	events.BaseEvent
	Entry Entry `json:"entry"`
}

func NewEntryEvent(e Entry) *EntryEvent {
	return &EntryEvent{
		BaseEvent: events.BaseEvent{
			ID:        e.ID,
			Type:      events.EventTypeAccessAudit,
			Timestamp: e.OccurredAt,
			Data: map[string]interface{}{
				"module":   e.Module,
				"action":   e.Action,
				"decision": string(e.Decision),
			},
		},
		Entry: e,
	}
}

// BusSink hands entries to the event bus; a Recorder subscribed to the bus
// persists them.
type BusSink struct {
	publisher events.Publisher
	logger    *slog.Logger
}

func NewBusSink(publisher events.Publisher, logger *slog.Logger) *BusSink {
	return &BusSink{publisher: publisher, logger: logger}
}

func (s *BusSink) Record(ctx context.Context, e Entry) {
	stamp(&e)
	if err := s.publisher.Publish(ctx, NewEntryEvent(e)); err != nil {
		s.logger.WarnContext(ctx, "failed to publish audit entry", "module", e.Module, "action", e.Action, "error", err)
	}
}

// LogSink writes entries to the structured log only.
type LogSink struct {
	logger *slog.Logger
}

func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Record(ctx context.Context, e Entry) {
	stamp(&e)
	level := slog.LevelInfo
	if e.RiskLevel == RiskHigh || e.RiskLevel == RiskCritical {
		level = slog.LevelWarn
	}
	s.logger.Log(ctx, level, "access audit",
		"audit_id", e.ID,
		"user_id", e.UserID,
		"role", e.Role,
		"module", e.Module,
		"action", e.Action,
		"decision", e.Decision,
		"reason", e.Reason,
		"risk_level", e.RiskLevel,
	)
}

type NopSink struct{}

func (NopSink) Record(context.Context, Entry) {}

// Tee records every entry in each sink in order.
type Tee []Sink

func (t Tee) Record(ctx context.Context, e Entry) {
	stamp(&e)
	for _, s := range t {
		s.Record(ctx, e)
	}
}
