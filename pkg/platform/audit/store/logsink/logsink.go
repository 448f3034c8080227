// Package logsink writes audit events to a structured logger. It is the fallback
// sink when no event stream is configured.
package logsink

import (
	"context"
	"log/slog"

	audit "rlregistry/pkg/platform/audit"
)

type Sink struct {
	logger *slog.Logger
}

func New(logger *slog.Logger) *Sink {
	return &Sink{logger: logger}
}

func (s *Sink) Append(ctx context.Context, event audit.Event) error {
	s.logger.InfoContext(ctx, event.Action,
		"log_type", "audit",
		"list_id", event.ListID,
		"set_count", event.SetCount,
		"clear_count", event.ClearCount,
		"request_id", event.RequestID,
		"actor_id", event.ActorID,
		"timestamp", event.Timestamp,
	)
	return nil
}
