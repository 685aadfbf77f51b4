package domain

import (
	"context"
	"time"
)

// DispatchRecord is one journal row describing a completed dispatch.
type DispatchRecord struct {
	ID         string // ULID, assigned by the journal if empty
	RequestID  string
	Prompt     string
	Intent     string
	AgentName  string
	AgentKind  AgentKind
	Confidence float64
	IsFallback bool
	Status     ResultStatus
	Message    string
	Duration   time.Duration
	CreatedAt  time.Time
}

// DispatchJournal persists dispatch outcomes for later inspection.
// Writes are best-effort from the orchestrator's point of view.
type DispatchJournal interface {
	Record(ctx context.Context, rec DispatchRecord) error
	Recent(ctx context.Context, limit int) ([]DispatchRecord, error)
	// PruneBefore deletes records created before cutoff and reports how many
	// rows were removed.
	PruneBefore(ctx context.Context, cutoff time.Time) (int64, error)
	Close() error
}
