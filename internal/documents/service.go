// Package documents holds the document workflows around the extraction
// pipeline: upload, review decisions, manual validation and statistics.
package documents

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/joseph-ayodele/tradedocs/constants"
	"github.com/joseph-ayodele/tradedocs/internal/async"
	"github.com/joseph-ayodele/tradedocs/internal/audit"
	"github.com/joseph-ayodele/tradedocs/internal/common"
	"github.com/joseph-ayodele/tradedocs/internal/entity"
	"github.com/joseph-ayodele/tradedocs/internal/metadata"
	"github.com/joseph-ayodele/tradedocs/internal/repository"
)

const (
	ActionApprove = "approve"
	ActionReject  = "reject"
)

type Validator interface {
	Validate(ctx context.Context, documentID uuid.UUID, trigger constants.ValidationTrigger) (*entity.ValidationReport, error)
}

// MissingFilesError lists the required fields an upload did not provide.
type MissingFilesError struct {
	Fields []string
}

func (e *MissingFilesError) Error() string {
	return "missing required files: " + strings.Join(e.Fields, ", ")
}

func (e *MissingFilesError) Unwrap() error { return common.ErrInvalidInput }

// Service handles document business logic.
type Service struct {
	store     *repository.Store
	validator Validator
	queue     async.Queue
	rates     RateProvider
	audit     *audit.Sink
	logger    *slog.Logger
}

// NewService creates a document service. rates may be nil, in which case
// delivery orders are stored without duty estimates.
func NewService(store *repository.Store, v Validator, q async.Queue, rates RateProvider, sink *audit.Sink, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, validator: v, queue: q, rates: rates, audit: sink, logger: logger}
}

// UploadRequest carries one document and its files, keyed by required field.
type UploadRequest struct {
	OwnerID  uuid.UUID
	DocType  string
	Metadata []byte // JSON object, optional
	Files    map[string]string
}

type UploadResult struct {
	Document *entity.Document
	Files    []*entity.DocumentFile
	Warnings []string
}

// Upload validates the request, stores the document with one file row per
// required field and queues an extraction job for every file.
func (s *Service) Upload(ctx context.Context, req UploadRequest) (*UploadResult, error) {
	dt, ok := constants.ParseDocType(req.DocType)
	v := common.NewValidator().
		Check(req.OwnerID != uuid.Nil, "owner_id", req.OwnerID, "is required").
		Check(ok, "doc_type", req.DocType, "must be one of invoice, packing_list, bol_awb, delivery_order")
	if err := v.Error(); err != nil {
		s.logger.Error("invalid upload request", "error", err)
		return nil, err
	}

	required := constants.RequiredFiles(dt)
	var missing []string
	for _, field := range required {
		if strings.TrimSpace(req.Files[field]) == "" {
			missing = append(missing, field)
		}
	}
	if len(missing) > 0 {
		s.logger.Warn("upload rejected, missing files", "owner_id", req.OwnerID, "doc_type", dt, "missing", missing)
		return nil, &MissingFilesError{Fields: missing}
	}
	v = common.NewValidator()
	for _, field := range required {
		ext := filepath.Ext(req.Files[field])
		_, allowed := constants.AllowedExtensions[constants.NormalizeExt(ext)]
		v.Check(allowed, field, req.Files[field], "unsupported file type")
	}
	if err := v.Error(); err != nil {
		return nil, err
	}

	md, err := metadata.DecodeMetadata(req.Metadata)
	if err != nil {
		return nil, common.NewAppError("INVALID_METADATA", err.Error(), common.ErrInvalidInput)
	}

	doc := &entity.Document{
		ID:       uuid.New(),
		DocType:  dt,
		OwnerID:  req.OwnerID,
		Status:   constants.DocumentStatusPending,
		Metadata: md,
	}
	var warnings []string
	if dt == constants.DocTypeDeliveryOrder {
		if w := s.applyDuties(ctx, doc); w != "" {
			warnings = append(warnings, w)
		}
	}

	var files []*entity.DocumentFile
	err = s.store.InTx(ctx, func(tx *repository.Store) error {
		created, err := tx.Documents.Create(ctx, doc)
		if err != nil {
			return err
		}
		doc = created
		for _, field := range required {
			f, err := tx.Files.Create(ctx, &entity.DocumentFile{DocumentID: doc.ID, FieldName: field, FileRef: req.Files[field]})
			if err != nil {
				return fmt.Errorf("create file %s: %w", field, err)
			}
			files = append(files, f)
		}
		return nil
	})
	if err != nil {
		s.logger.Error("failed to store upload", "owner_id", req.OwnerID, "doc_type", dt, "error", err)
		return nil, err
	}

	s.audit.Record(ctx, audit.Entry{
		Actor:   &doc.OwnerID,
		Action:  constants.AuditUploadedDocument,
		Details: map[string]any{"doc_id": doc.ID.String(), "doc_type": string(dt)},
	})

	for _, f := range files {
		job := async.Job{FileID: f.ID, TraceID: common.TraceIDFromContext(ctx)}
		if err := s.queue.Enqueue(ctx, job); err != nil {
			s.logger.Error("failed to queue file", "file_id", f.ID, "error", err)
			warnings = append(warnings, fmt.Sprintf("extraction of %s not queued: %v", f.FieldName, err))
		}
	}

	s.logger.Info("document uploaded successfully", "document_id", doc.ID, "doc_type", dt, "files", len(files))
	return &UploadResult{Document: doc, Files: files, Warnings: warnings}, nil
}

// applyDuties fills the AED value and duty fields of a delivery order. A
// failure is audited and returned as a warning; the upload goes on.
func (s *Service) applyDuties(ctx context.Context, doc *entity.Document) string {
	currency := doc.Metadata.Trimmed("currency")
	value := doc.Metadata.Trimmed("value")
	if s.rates == nil || currency == "" || value == "" {
		return ""
	}
	d, err := func() (Duties, error) {
		rate, err := s.rates.RateToAED(ctx, currency)
		if err != nil {
			return Duties{}, err
		}
		return ComputeDuties(value, rate, doc.Metadata.Trimmed("hs_code"))
	}()
	if err != nil {
		s.logger.Warn("currency conversion failed", "document_id", doc.ID, "currency", currency, "error", err)
		s.audit.Record(ctx, audit.Entry{
			Actor:   &doc.OwnerID,
			Action:  constants.AuditCurrencyConversionFailed,
			Details: map[string]any{"doc_id": doc.ID.String(), "error": err.Error()},
		})
		return "currency conversion failed: " + err.Error()
	}
	d.Apply(&doc.Metadata)
	return ""
}

// Decide approves or rejects a document. A non-empty comment is stored with
// the decision.
func (s *Service) Decide(ctx context.Context, docID, actor uuid.UUID, action, comment string) (*entity.Document, error) {
	var (
		status constants.DocumentStatus
		tag    string
	)
	switch strings.ToLower(strings.TrimSpace(action)) {
	case ActionApprove:
		status, tag = constants.DocumentStatusApproved, constants.AuditApproveDocument
	case ActionReject:
		status, tag = constants.DocumentStatusRejected, constants.AuditRejectDocument
	default:
		return nil, common.NewAppError("INVALID_ACTION", fmt.Sprintf("action must be %q or %q, got %q", ActionApprove, ActionReject, action), common.ErrInvalidInput)
	}

	err := s.store.InTx(ctx, func(tx *repository.Store) error {
		if err := tx.Documents.UpdateStatus(ctx, docID, status); err != nil {
			return err
		}
		if strings.TrimSpace(comment) == "" {
			return nil
		}
		_, err := tx.Comments.Create(ctx, &entity.Comment{DocumentID: docID, UserID: actor, Text: strings.TrimSpace(comment)})
		return err
	})
	if err != nil {
		s.logger.Error("failed to record decision", "document_id", docID, "action", action, "error", err)
		return nil, err
	}

	s.audit.Record(ctx, audit.Entry{Actor: &actor, Action: tag, Details: map[string]any{"doc_id": docID.String()}})
	s.logger.Info("document decided", "document_id", docID, "status", status)
	return s.store.Documents.GetByID(ctx, docID)
}

// RunValidation validates a document on behalf of actor.
func (s *Service) RunValidation(ctx context.Context, docID, actor uuid.UUID) (*entity.ValidationReport, error) {
	ctx = common.WithActorID(ctx, actor)
	report, err := s.validator.Validate(ctx, docID, constants.TriggerManual)
	if err != nil && report == nil {
		return nil, err
	}
	return report, err
}

type Stats struct {
	Total    int                              `json:"total"`
	ByStatus map[constants.DocumentStatus]int `json:"by_status"`
}

// Stats counts documents per status, for one owner when owner is set.
func (s *Service) Stats(ctx context.Context, owner *uuid.UUID) (*Stats, error) {
	counts, err := s.store.Documents.CountByStatus(ctx, owner)
	if err != nil {
		return nil, err
	}
	out := &Stats{ByStatus: counts}
	for _, n := range counts {
		out.Total += n
	}
	return out, nil
}

// SortedStatuses returns the statuses of st in lifecycle order.
func (st *Stats) SortedStatuses() []constants.DocumentStatus {
	keys := make([]constants.DocumentStatus, 0, len(st.ByStatus))
	for k := range st.ByStatus {
		keys = append(keys, k)
	}
	order := map[constants.DocumentStatus]int{}
	for i, s := range constants.AllDocumentStatuses {
		order[s] = i
	}
	sort.Slice(keys, func(i, j int) bool { return order[keys[i]] < order[keys[j]] })
	return keys
}

// List returns documents newest first, for one owner when owner is set and
// one status when status is not empty.
func (s *Service) List(ctx context.Context, owner *uuid.UUID, status string) ([]*entity.Document, error) {
	st := constants.DocumentStatus(strings.ToLower(strings.TrimSpace(status)))
	if st != "" && !slices.Contains(constants.AllDocumentStatuses, st) {
		return nil, common.NewAppError("INVALID_STATUS", fmt.Sprintf("unknown status %q", status), common.ErrInvalidInput)
	}
	return s.store.Documents.ListByOwner(ctx, owner, st)
}

// Detail is a document with its files and review comments.
type Detail struct {
	Document *entity.Document       `json:"document"`
	Files    []*entity.DocumentFile `json:"files"`
	Comments []*entity.Comment      `json:"comments"`
}

func (s *Service) Detail(ctx context.Context, docID uuid.UUID) (*Detail, error) {
	doc, err := s.store.Documents.GetByID(ctx, docID)
	if err != nil {
		return nil, err
	}
	files, err := s.store.Files.ListByDocument(ctx, docID)
	if err != nil {
		return nil, err
	}
	comments, err := s.store.Comments.ListByDocument(ctx, docID)
	if err != nil {
		return nil, err
	}
	return &Detail{Document: doc, Files: files, Comments: comments}, nil
}

// Comments lists a document's comments, newest first.
func (s *Service) Comments(ctx context.Context, docID uuid.UUID) ([]*entity.Comment, error) {
	if _, err := s.store.Documents.GetByID(ctx, docID); err != nil {
		return nil, err
	}
	return s.store.Comments.ListByDocument(ctx, docID)
}

// Conversion is an amount expressed in AED.
type Conversion struct {
	From      string          `json:"from"`
	Amount    decimal.Decimal `json:"amount"`
	To        string          `json:"to"`
	Rate      decimal.Decimal `json:"rate"`
	Converted string          `json:"converted"`
}

// Convert turns amount of currency into AED, rounded half to even at two
// decimals.
func (s *Service) Convert(ctx context.Context, currency, amount string) (*Conversion, error) {
	cur := strings.ToUpper(strings.TrimSpace(currency))
	v := common.NewValidator().Check(cur != "", "from", currency, "is required")
	amt, err := decimal.NewFromString(strings.TrimSpace(amount))
	v.Check(err == nil, "amount", amount, "must be a decimal number")
	if err := v.Error(); err != nil {
		return nil, err
	}
	if s.rates == nil {
		return nil, fmt.Errorf("%s: %w", cur, ErrRateUnavailable)
	}
	rate, err := s.rates.RateToAED(ctx, cur)
	if err != nil {
		s.logger.Warn("currency conversion failed", "currency", cur, "error", err)
		return nil, err
	}
	return &Conversion{
		From:      cur,
		Amount:    amt,
		To:        "AED",
		Rate:      rate,
		Converted: amt.Mul(rate).RoundBank(2).StringFixed(2),
	}, nil
}

// IsMissingFiles reports whether err is an upload rejected for missing files.
func IsMissingFiles(err error) ([]string, bool) {
	var mf *MissingFilesError
	if errors.As(err, &mf) {
		return mf.Fields, true
	}
	return nil, false
}
