package analytics

import (
	"context"
	"time"
)

// SessionRecord is one finished session as stored for reporting
type SessionRecord struct {
	EventID         string    `ch:"event_id"`
	SessionID       string    `ch:"session_id"`
	UserID          string    `ch:"user_id"`
	AgentID         string    `ch:"agent_id"`
	ClientType      string    `ch:"client_type"`
	Status          string    `ch:"status"`
	Reason          string    `ch:"reason"` // client, reaper, reconciler, admin, provider_error
	StartTime       time.Time `ch:"start_time"`
	EndTime         time.Time `ch:"end_time"`
	DurationSeconds uint32    `ch:"duration_seconds"`
	UsageDate       string    `ch:"usage_date"`
	CreatedAt       time.Time `ch:"created_at"`
}

// AgentUsage aggregates finished sessions per agent persona
type AgentUsage struct {
	AgentID      string  `ch:"agent_id" json:"agent_id"`
	Sessions     uint64  `ch:"sessions" json:"sessions"`
	TotalSeconds uint64  `ch:"total_seconds" json:"total_seconds"`
	AvgSeconds   float64 `ch:"avg_seconds" json:"avg_seconds"`
}

// Repository stores session analytics.
// Implementation is in internal/repository/clickhouse/session_analytics_repository.go
type Repository interface {
	// Store buffers a record; it is written with the next batch
	Store(ctx context.Context, r *SessionRecord) error

	// AgentUsage returns per-agent totals for sessions ended in [from, to)
	AgentUsage(ctx context.Context, from, to time.Time) ([]AgentUsage, error)
}
