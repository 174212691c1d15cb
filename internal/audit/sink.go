// Package audit records notable state transitions. Recording is best effort:
// a failed write is logged and never surfaces to the caller.
package audit

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/tradedocs/internal/common"
	"github.com/joseph-ayodele/tradedocs/internal/entity"
)

type Entry struct {
	Actor   *uuid.UUID
	Action  string
	Details map[string]any
}

type appender interface {
	Append(ctx context.Context, e *entity.AuditLogEntry) (*entity.AuditLogEntry, error)
}

type Sink struct {
	repo   appender
	logger *slog.Logger
}

func NewSink(repo appender, logger *slog.Logger) *Sink {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sink{repo: repo, logger: logger}
}

// Record appends e. When e.Actor is nil the actor is taken from ctx.
func (s *Sink) Record(ctx context.Context, e Entry) {
	if s == nil || s.repo == nil {
		return
	}
	actor := e.Actor
	if actor == nil {
		actor = common.ActorIDFromContext(ctx)
	}
	if _, err := s.repo.Append(ctx, &entity.AuditLogEntry{ActorID: actor, Action: e.Action, Details: e.Details}); err != nil {
		s.logger.Warn("audit.record.failed",
			"action", e.Action,
			"trace_id", common.TraceIDFromContext(ctx),
			"error", err)
	}
}
