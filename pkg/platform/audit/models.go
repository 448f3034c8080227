package audit

import (
	"context"
	"time"
)

// Event is emitted from domain logic to capture key actions on revocation lists.
// Keep it transport-agnostic so stores and sinks can fan out.
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	Action    string    `json:"action"`
	ListID    string    `json:"list_id"`
	// SetCount and ClearCount are the distinct indices touched by a batch, after
	// conflict resolution.
	SetCount   int    `json:"set_count,omitempty"`
	ClearCount int    `json:"clear_count,omitempty"`
	RequestID  string `json:"request_id,omitempty"`
	// ActorID is the authenticated caller, when the transport authenticated one.
	ActorID string `json:"actor_id,omitempty"`
}

type AuditEvent string

const (
	EventListRegistered  AuditEvent = "revocation_list_registered"
	EventListBitsUpdated AuditEvent = "revocation_list_bits_updated"
	EventListReplaced    AuditEvent = "revocation_list_replaced"
)

// Store persists or forwards audit events.
type Store interface {
	Append(ctx context.Context, event Event) error
}
