package repository

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"

	"github.com/joseph-ayodele/tradedocs/internal/entity"
)

type CommentRepository interface {
	Create(ctx context.Context, c *entity.Comment) (*entity.Comment, error)
	// ListByDocument returns the document's comments, newest first.
	ListByDocument(ctx context.Context, documentID uuid.UUID) ([]*entity.Comment, error)
}

type commentRepo struct {
	db     *Client
	logger *slog.Logger
}

func NewCommentRepository(c *Client, logger *slog.Logger) CommentRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &commentRepo{db: c, logger: logger}
}

func (r *commentRepo) Create(ctx context.Context, c *entity.Comment) (*entity.Comment, error) {
	out := *c
	if out.ID == uuid.Nil {
		out.ID = uuid.New()
	}
	out.CreatedAt = time.Now().UTC()
	q, args := r.db.builder().Insert("comments").
		Columns("id", "document_id", "user_id", "text", "created_at").
		Values(out.ID, out.DocumentID, out.UserID, out.Text, out.CreatedAt).
		Query()
	if _, err := r.db.exec(ctx, q, args); err != nil {
		r.logger.Error("failed to store comment", "document_id", out.DocumentID, "error", err)
		return nil, err
	}
	return &out, nil
}

func (r *commentRepo) ListByDocument(ctx context.Context, documentID uuid.UUID) ([]*entity.Comment, error) {
	q, args := r.db.builder().Select("id", "document_id", "user_id", "text", "created_at").
		From(entsql.Table("comments")).
		Where(entsql.EQ("document_id", documentID)).
		OrderBy(entsql.Desc("created_at"), entsql.Desc("id")).
		Query()
	var out []*entity.Comment
	err := r.db.query(ctx, q, args, func(rs rowScanner) error {
		var c entity.Comment
		if err := rs.Scan(&c.ID, &c.DocumentID, &c.UserID, &c.Text, &c.CreatedAt); err != nil {
			return fmt.Errorf("scan comment: %w", err)
		}
		out = append(out, &c)
		return nil
	})
	if err != nil {
		r.logger.Error("failed to list comments", "document_id", documentID, "error", err)
		return nil, err
	}
	return out, nil
}
