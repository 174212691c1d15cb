package repository

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"

	"github.com/joseph-ayodele/tradedocs/constants"
	"github.com/joseph-ayodele/tradedocs/internal/entity"
)

// MaxExtractedTextRunes caps the text persisted per file.
const MaxExtractedTextRunes = 100_000

type DocumentFileRepository interface {
	Create(ctx context.Context, f *entity.DocumentFile) (*entity.DocumentFile, error)
	GetByID(ctx context.Context, id uuid.UUID) (*entity.DocumentFile, error)
	// GetWithDocument loads the file together with its parent document.
	GetWithDocument(ctx context.Context, id uuid.UUID) (*entity.DocumentFile, *entity.Document, error)
	ListByDocument(ctx context.Context, documentID uuid.UUID) ([]*entity.DocumentFile, error)
	MarkRunning(ctx context.Context, id uuid.UUID) error
	// FinishSuccess stores the extracted text and clears any previous error.
	FinishSuccess(ctx context.Context, id uuid.UUID, text string) error
	FinishFailure(ctx context.Context, id uuid.UUID, msg string) error
}

var fileColumns = []string{"id", "document_id", "field_name", "file_ref", "extraction_status", "extracted_text", "error_message", "uploaded_at", "updated_at"}

type documentFileRepo struct {
	db     *Client
	logger *slog.Logger
}

func NewDocumentFileRepository(c *Client, logger *slog.Logger) DocumentFileRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &documentFileRepo{db: c, logger: logger}
}

func (r *documentFileRepo) Create(ctx context.Context, f *entity.DocumentFile) (*entity.DocumentFile, error) {
	out := *f
	if out.ID == uuid.Nil {
		out.ID = uuid.New()
	}
	if out.Status == "" {
		out.Status = constants.ExtractionPending
	}
	now := time.Now().UTC()
	out.UploadedAt, out.UpdatedAt = now, now

	q, args := r.db.builder().Insert("document_files").
		Columns(fileColumns...).
		Values(out.ID, out.DocumentID, out.FieldName, out.FileRef, string(out.Status),
			nullString(out.ExtractedText), nullString(out.ErrorMessage), out.UploadedAt, out.UpdatedAt).
		Query()
	if _, err := r.db.exec(ctx, q, args); err != nil {
		r.logger.Error("failed to create document file", "document_id", out.DocumentID, "field", out.FieldName, "error", err)
		return nil, err
	}
	return &out, nil
}

func (r *documentFileRepo) GetByID(ctx context.Context, id uuid.UUID) (*entity.DocumentFile, error) {
	q, args := r.db.builder().Select(fileColumns...).
		From(entsql.Table("document_files")).
		Where(entsql.EQ("id", id)).
		Query()
	var file *entity.DocumentFile
	err := r.db.query(ctx, q, args, func(rs rowScanner) error {
		f, err := scanFile(rs)
		file = f
		return err
	})
	if err != nil {
		return nil, err
	}
	if file == nil {
		return nil, notFound("document file", id)
	}
	return file, nil
}

func (r *documentFileRepo) GetWithDocument(ctx context.Context, id uuid.UUID) (*entity.DocumentFile, *entity.Document, error) {
	f, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	doc, err := getDocument(ctx, r.db, f.DocumentID, false)
	if err != nil {
		return f, nil, err
	}
	return f, doc, nil
}

func (r *documentFileRepo) ListByDocument(ctx context.Context, documentID uuid.UUID) ([]*entity.DocumentFile, error) {
	q, args := r.db.builder().Select(fileColumns...).
		From(entsql.Table("document_files")).
		Where(entsql.EQ("document_id", documentID)).
		OrderBy("uploaded_at", "field_name").
		Query()
	var files []*entity.DocumentFile
	err := r.db.query(ctx, q, args, func(rs rowScanner) error {
		f, err := scanFile(rs)
		if err != nil {
			return err
		}
		files = append(files, f)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}

func (r *documentFileRepo) MarkRunning(ctx context.Context, id uuid.UUID) error {
	return r.update(ctx, id, map[string]any{
		"extraction_status": string(constants.ExtractionRunning),
	})
}

func (r *documentFileRepo) FinishSuccess(ctx context.Context, id uuid.UUID, text string) error {
	return r.update(ctx, id, map[string]any{
		"extraction_status": string(constants.ExtractionDone),
		"extracted_text":    truncateRunes(text, MaxExtractedTextRunes),
		"error_message":     nil,
	})
}

func (r *documentFileRepo) FinishFailure(ctx context.Context, id uuid.UUID, msg string) error {
	return r.update(ctx, id, map[string]any{
		"extraction_status": string(constants.ExtractionFailed),
		"error_message":     msg,
	})
}

func (r *documentFileRepo) update(ctx context.Context, id uuid.UUID, set map[string]any) error {
	u := r.db.builder().Update("document_files").Set("updated_at", time.Now().UTC())
	for _, col := range fileColumns {
		if v, ok := set[col]; ok {
			if v == nil {
				u.SetNull(col)
			} else {
				u.Set(col, v)
			}
		}
	}
	q, args := u.Where(entsql.EQ("id", id)).Query()
	n, err := r.db.exec(ctx, q, args)
	if err != nil {
		r.logger.Error("failed to update document file", "file_id", id, "error", err)
		return err
	}
	if n == 0 {
		return notFound("document file", id)
	}
	return nil
}

func scanFile(rs rowScanner) (*entity.DocumentFile, error) {
	var (
		f         entity.DocumentFile
		status    string
		text, msg sql.NullString
	)
	if err := rs.Scan(&f.ID, &f.DocumentID, &f.FieldName, &f.FileRef, &status, &text, &msg, &f.UploadedAt, &f.UpdatedAt); err != nil {
		return nil, fmt.Errorf("scan document file: %w", err)
	}
	f.Status = constants.ExtractionStatus(status)
	f.ExtractedText = stringPtr(text)
	f.ErrorMessage = stringPtr(msg)
	return &f, nil
}

func truncateRunes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
