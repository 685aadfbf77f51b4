package domain

import "time"

// Priority orders requests for callers that queue them. The dispatch engine
// itself treats priority as metadata; it never reorders concurrent callers.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
	PriorityUrgent
)

func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityHigh:
		return "high"
	case PriorityUrgent:
		return "urgent"
	default:
		return "normal"
	}
}

// Request is one unit of work handed to the orchestrator. It is owned by the
// caller until dispatched, then logically owned by the pipeline until a
// Result comes back. Fields must not be mutated after dispatch.
type Request struct {
	ID             string            // ULID, stamped by the orchestrator if empty
	Prompt         string            // natural-language instruction
	FilePath       string            // optional path the prompt refers to
	Content        string            // optional code/file content
	Context        map[string]string // arbitrary caller-supplied key/value context
	PreferredAgent string            // optional agent name hint
	Priority       Priority
	Timeout        time.Duration // optional per-request deadline
	CreatedAt      time.Time
}
