package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"

	"github.com/joseph-ayodele/tradedocs/internal/entity"
)

type AuditLogRepository interface {
	Append(ctx context.Context, e *entity.AuditLogEntry) (*entity.AuditLogEntry, error)
	ListByAction(ctx context.Context, action string) ([]*entity.AuditLogEntry, error)
}

var auditColumns = []string{"id", "actor_id", "action", "details", "created_at"}

type auditLogRepo struct {
	db     *Client
	logger *slog.Logger
}

func NewAuditLogRepository(c *Client, logger *slog.Logger) AuditLogRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &auditLogRepo{db: c, logger: logger}
}

func (r *auditLogRepo) Append(ctx context.Context, e *entity.AuditLogEntry) (*entity.AuditLogEntry, error) {
	out := *e
	if out.ID == uuid.Nil {
		out.ID = uuid.New()
	}
	if out.CreatedAt.IsZero() {
		out.CreatedAt = time.Now().UTC()
	}
	var details, actor any
	if out.Details != nil {
		s, err := toJSON(out.Details)
		if err != nil {
			return nil, err
		}
		details = s
	}
	if out.ActorID != nil {
		actor = *out.ActorID
	}
	q, args := r.db.builder().Insert("audit_logs").
		Columns(auditColumns...).
		Values(out.ID, actor, out.Action, details, out.CreatedAt).
		Query()
	if _, err := r.db.exec(ctx, q, args); err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *auditLogRepo) ListByAction(ctx context.Context, action string) ([]*entity.AuditLogEntry, error) {
	q, args := r.db.builder().Select(auditColumns...).
		From(entsql.Table("audit_logs")).
		Where(entsql.EQ("action", action)).
		OrderBy("created_at", "id").
		Query()
	var out []*entity.AuditLogEntry
	err := r.db.query(ctx, q, args, func(rs rowScanner) error {
		var (
			e       entity.AuditLogEntry
			actor   uuid.NullUUID
			details []byte
		)
		if err := rs.Scan(&e.ID, &actor, &e.Action, &details, &e.CreatedAt); err != nil {
			return fmt.Errorf("scan audit log: %w", err)
		}
		if actor.Valid {
			id := actor.UUID
			e.ActorID = &id
		}
		if len(details) > 0 {
			if err := json.Unmarshal(details, &e.Details); err != nil {
				return fmt.Errorf("decode audit details %s: %w", e.ID, err)
			}
		}
		out = append(out, &e)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
