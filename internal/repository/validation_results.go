package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"

	"github.com/joseph-ayodele/tradedocs/constants"
	"github.com/joseph-ayodele/tradedocs/internal/entity"
)

type ValidationResultRepository interface {
	Create(ctx context.Context, res *entity.ValidationResult) (*entity.ValidationResult, error)
	// ListByDocument returns the history of a document, newest first.
	ListByDocument(ctx context.Context, documentID uuid.UUID) ([]*entity.ValidationResult, error)
}

var validationColumns = []string{"id", "document_id", "result", "run_by", "trigger_kind", "run_at"}

type validationResultRepo struct {
	db     *Client
	logger *slog.Logger
}

func NewValidationResultRepository(c *Client, logger *slog.Logger) ValidationResultRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &validationResultRepo{db: c, logger: logger}
}

func (r *validationResultRepo) Create(ctx context.Context, res *entity.ValidationResult) (*entity.ValidationResult, error) {
	out := *res
	if out.ID == uuid.Nil {
		out.ID = uuid.New()
	}
	if out.RunAt.IsZero() {
		out.RunAt = time.Now().UTC()
	}
	payload, err := toJSON(out.Report)
	if err != nil {
		return nil, err
	}
	var runBy any
	if out.RunBy != nil {
		runBy = *out.RunBy
	}
	q, args := r.db.builder().Insert("validation_results").
		Columns(validationColumns...).
		Values(out.ID, out.DocumentID, payload, runBy, string(out.Trigger), out.RunAt).
		Query()
	if _, err := r.db.exec(ctx, q, args); err != nil {
		r.logger.Error("failed to store validation result", "document_id", out.DocumentID, "error", err)
		return nil, err
	}
	return &out, nil
}

func (r *validationResultRepo) ListByDocument(ctx context.Context, documentID uuid.UUID) ([]*entity.ValidationResult, error) {
	q, args := r.db.builder().Select(validationColumns...).
		From(entsql.Table("validation_results")).
		Where(entsql.EQ("document_id", documentID)).
		OrderBy(entsql.Desc("run_at"), entsql.Desc("id")).
		Query()
	var out []*entity.ValidationResult
	err := r.db.query(ctx, q, args, func(rs rowScanner) error {
		var (
			v       entity.ValidationResult
			payload []byte
			runBy   uuid.NullUUID
			trigger string
		)
		if err := rs.Scan(&v.ID, &v.DocumentID, &payload, &runBy, &trigger, &v.RunAt); err != nil {
			return fmt.Errorf("scan validation result: %w", err)
		}
		if err := json.Unmarshal(payload, &v.Report); err != nil {
			return fmt.Errorf("decode validation result %s: %w", v.ID, err)
		}
		if runBy.Valid {
			id := runBy.UUID
			v.RunBy = &id
		}
		v.Trigger = constants.ValidationTrigger(trigger)
		out = append(out, &v)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
