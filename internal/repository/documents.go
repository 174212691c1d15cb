package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"

	"github.com/joseph-ayodele/tradedocs/constants"
	"github.com/joseph-ayodele/tradedocs/internal/entity"
)

type DocumentRepository interface {
	Create(ctx context.Context, doc *entity.Document) (*entity.Document, error)
	GetByID(ctx context.Context, id uuid.UUID) (*entity.Document, error)
	// ListByOwnerAndType returns the owner's documents of one type, oldest
	// first, leaving out excludeID.
	ListByOwnerAndType(ctx context.Context, ownerID uuid.UUID, docType constants.DocType, excludeID uuid.UUID) ([]*entity.Document, error)
	// ListByOwner returns documents newest first. A nil owner lists every
	// owner; an empty status lists every status.
	ListByOwner(ctx context.Context, ownerID *uuid.UUID, status constants.DocumentStatus) ([]*entity.Document, error)
	UpdateMetadata(ctx context.Context, id uuid.UUID, m entity.Metadata) error
	// MergeMetadata re-reads the stored metadata inside a transaction (row
	// locked on Postgres), hands it to merge and writes the result when merge
	// reports a change. It returns the metadata as stored afterwards.
	MergeMetadata(ctx context.Context, id uuid.UUID, merge func(current entity.Metadata) (entity.Metadata, bool)) (entity.Metadata, error)
	UpdateLastValidation(ctx context.Context, id uuid.UUID, report *entity.ValidationReport) error
	UpdateStatus(ctx context.Context, id uuid.UUID, status constants.DocumentStatus) error
	// CountByStatus counts documents per status, optionally for one owner.
	CountByStatus(ctx context.Context, ownerID *uuid.UUID) (map[constants.DocumentStatus]int, error)
}

var documentColumns = []string{"id", "doc_type", "owner_id", "status", "metadata", "last_validation", "created_at", "updated_at"}

type documentRepo struct {
	db     *Client
	logger *slog.Logger
}

func NewDocumentRepository(c *Client, logger *slog.Logger) DocumentRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &documentRepo{db: c, logger: logger}
}

func (r *documentRepo) Create(ctx context.Context, doc *entity.Document) (*entity.Document, error) {
	out := *doc
	if out.ID == uuid.Nil {
		out.ID = uuid.New()
	}
	if out.Status == "" {
		out.Status = constants.DocumentStatusUploaded
	}
	now := time.Now().UTC()
	out.CreatedAt, out.UpdatedAt = now, now

	meta, err := toJSON(out.Metadata)
	if err != nil {
		return nil, err
	}
	var last any
	if out.LastValidation != nil {
		if last, err = toJSON(out.LastValidation); err != nil {
			return nil, err
		}
	}
	q, args := r.db.builder().Insert("documents").
		Columns(documentColumns...).
		Values(out.ID, string(out.DocType), out.OwnerID, string(out.Status), meta, last, out.CreatedAt, out.UpdatedAt).
		Query()
	if _, err := r.db.exec(ctx, q, args); err != nil {
		r.logger.Error("failed to create document", "owner_id", out.OwnerID, "doc_type", out.DocType, "error", err)
		return nil, err
	}
	return &out, nil
}

func (r *documentRepo) GetByID(ctx context.Context, id uuid.UUID) (*entity.Document, error) {
	return getDocument(ctx, r.db, id, false)
}

func getDocument(ctx context.Context, c *Client, id uuid.UUID, forUpdate bool) (*entity.Document, error) {
	sel := c.builder().Select(documentColumns...).
		From(entsql.Table("documents")).
		Where(entsql.EQ("id", id))
	// sqlite has no row locks; its single connection serializes writers
	if forUpdate && c.dialect == dialect.Postgres {
		sel.ForUpdate()
	}
	q, args := sel.Query()
	var doc *entity.Document
	err := c.query(ctx, q, args, func(rs rowScanner) error {
		d, err := scanDocument(rs)
		doc = d
		return err
	})
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, notFound("document", id)
	}
	return doc, nil
}

func (r *documentRepo) ListByOwnerAndType(ctx context.Context, ownerID uuid.UUID, docType constants.DocType, excludeID uuid.UUID) ([]*entity.Document, error) {
	q, args := r.db.builder().Select(documentColumns...).
		From(entsql.Table("documents")).
		Where(entsql.And(
			entsql.EQ("owner_id", ownerID),
			entsql.EQ("doc_type", string(docType)),
			entsql.NEQ("id", excludeID),
		)).
		OrderBy("created_at", "id").
		Query()
	var docs []*entity.Document
	err := r.db.query(ctx, q, args, func(rs rowScanner) error {
		d, err := scanDocument(rs)
		if err != nil {
			return err
		}
		docs = append(docs, d)
		return nil
	})
	if err != nil {
		r.logger.Error("failed to list documents", "owner_id", ownerID, "doc_type", docType, "error", err)
		return nil, err
	}
	return docs, nil
}

func (r *documentRepo) ListByOwner(ctx context.Context, ownerID *uuid.UUID, status constants.DocumentStatus) ([]*entity.Document, error) {
	sel := r.db.builder().Select(documentColumns...).
		From(entsql.Table("documents")).
		OrderBy(entsql.Desc("created_at"), entsql.Desc("id"))
	var preds []*entsql.Predicate
	if ownerID != nil {
		preds = append(preds, entsql.EQ("owner_id", *ownerID))
	}
	if status != "" {
		preds = append(preds, entsql.EQ("status", string(status)))
	}
	if len(preds) > 0 {
		sel.Where(entsql.And(preds...))
	}
	q, args := sel.Query()
	var docs []*entity.Document
	err := r.db.query(ctx, q, args, func(rs rowScanner) error {
		d, err := scanDocument(rs)
		if err != nil {
			return err
		}
		docs = append(docs, d)
		return nil
	})
	if err != nil {
		r.logger.Error("failed to list documents", "owner_id", ownerID, "status", status, "error", err)
		return nil, err
	}
	return docs, nil
}

func (r *documentRepo) UpdateMetadata(ctx context.Context, id uuid.UUID, m entity.Metadata) error {
	meta, err := toJSON(m)
	if err != nil {
		return err
	}
	return r.update(ctx, id, "metadata", meta)
}

func (r *documentRepo) MergeMetadata(ctx context.Context, id uuid.UUID, merge func(current entity.Metadata) (entity.Metadata, bool)) (entity.Metadata, error) {
	var out entity.Metadata
	err := r.db.InTx(ctx, func(tx *Client) error {
		doc, err := getDocument(ctx, tx, id, true)
		if err != nil {
			return err
		}
		out = doc.Metadata
		next, changed := merge(doc.Metadata)
		if !changed {
			return nil
		}
		meta, err := toJSON(next)
		if err != nil {
			return err
		}
		if err := updateDocument(ctx, tx, id, "metadata", meta); err != nil {
			return err
		}
		out = next
		return nil
	})
	if err != nil {
		r.logger.Error("failed to merge document metadata", "document_id", id, "error", err)
		return entity.Metadata{}, err
	}
	return out, nil
}

func (r *documentRepo) UpdateLastValidation(ctx context.Context, id uuid.UUID, report *entity.ValidationReport) error {
	var v any
	if report != nil {
		s, err := toJSON(report)
		if err != nil {
			return err
		}
		v = s
	}
	return r.update(ctx, id, "last_validation", v)
}

func (r *documentRepo) UpdateStatus(ctx context.Context, id uuid.UUID, status constants.DocumentStatus) error {
	return r.update(ctx, id, "status", string(status))
}

func (r *documentRepo) update(ctx context.Context, id uuid.UUID, column string, value any) error {
	if err := updateDocument(ctx, r.db, id, column, value); err != nil {
		r.logger.Error("failed to update document", "document_id", id, "column", column, "error", err)
		return err
	}
	return nil
}

func updateDocument(ctx context.Context, c *Client, id uuid.UUID, column string, value any) error {
	u := c.builder().Update("documents")
	if value == nil {
		u.SetNull(column)
	} else {
		u.Set(column, value)
	}
	q, args := u.Set("updated_at", time.Now().UTC()).
		Where(entsql.EQ("id", id)).
		Query()
	n, err := c.exec(ctx, q, args)
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound("document", id)
	}
	return nil
}

func (r *documentRepo) CountByStatus(ctx context.Context, ownerID *uuid.UUID) (map[constants.DocumentStatus]int, error) {
	sel := r.db.builder().Select("status", entsql.Count("*")).
		From(entsql.Table("documents")).
		GroupBy("status")
	if ownerID != nil {
		sel.Where(entsql.EQ("owner_id", *ownerID))
	}
	q, args := sel.Query()
	out := make(map[constants.DocumentStatus]int, len(constants.AllDocumentStatuses))
	for _, s := range constants.AllDocumentStatuses {
		out[s] = 0
	}
	err := r.db.query(ctx, q, args, func(rs rowScanner) error {
		var (
			status string
			n      int
		)
		if err := rs.Scan(&status, &n); err != nil {
			return err
		}
		out[constants.DocumentStatus(status)] = n
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func scanDocument(rs rowScanner) (*entity.Document, error) {
	var (
		d               entity.Document
		docType, status string
		meta, last      []byte
	)
	if err := rs.Scan(&d.ID, &docType, &d.OwnerID, &status, &meta, &last, &d.CreatedAt, &d.UpdatedAt); err != nil {
		return nil, fmt.Errorf("scan document: %w", err)
	}
	d.DocType = constants.DocType(docType)
	d.Status = constants.DocumentStatus(status)
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &d.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata of %s: %w", d.ID, err)
		}
	}
	if len(last) > 0 {
		var report entity.ValidationReport
		if err := json.Unmarshal(last, &report); err != nil {
			return nil, fmt.Errorf("decode last_validation of %s: %w", d.ID, err)
		}
		d.LastValidation = &report
	}
	return &d, nil
}
