// Package validation decides whether a document and its related documents
// are complete and consistent enough to be approved.
package validation

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/tradedocs/constants"
	"github.com/joseph-ayodele/tradedocs/internal/audit"
	"github.com/joseph-ayodele/tradedocs/internal/common"
	"github.com/joseph-ayodele/tradedocs/internal/entity"
	"github.com/joseph-ayodele/tradedocs/internal/matcher"
)

const (
	ReasonMetadataMissing = "metadata_missing"

	MessageNoMetadata = "Document has no metadata."
	MessageReady      = "All related documents found and consistent. Ready for approval."
	MessageIncomplete = "Validation incomplete, see warnings."
)

type DocumentStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*entity.Document, error)
	UpdateLastValidation(ctx context.Context, id uuid.UUID, report *entity.ValidationReport) error
}

type FileLister interface {
	ListByDocument(ctx context.Context, documentID uuid.UUID) ([]*entity.DocumentFile, error)
}

type HistoryWriter interface {
	Create(ctx context.Context, res *entity.ValidationResult) (*entity.ValidationResult, error)
}

type Matcher interface {
	Match(ctx context.Context, doc *entity.Document) (*matcher.Report, error)
}

type Engine struct {
	docs    DocumentStore
	files   FileLister
	history HistoryWriter
	matcher Matcher
	audit   *audit.Sink
	logger  *slog.Logger
}

func NewEngine(docs DocumentStore, files FileLister, history HistoryWriter, m Matcher, sink *audit.Sink, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{docs: docs, files: files, history: history, matcher: m, audit: sink, logger: logger}
}

// Validate runs the checks for one document, appends the run to its history
// and caches it as the document's last validation. Manual runs are credited
// to the actor carried by ctx.
//
// A failed file listing, history append or matcher lookup only adds a
// warning; a report missing the file listing is never ready. A failed cache
// write returns the report together with an ErrDatabase error.
func (e *Engine) Validate(ctx context.Context, documentID uuid.UUID, trigger constants.ValidationTrigger) (*entity.ValidationReport, error) {
	start := time.Now()
	doc, err := e.docs.GetByID(ctx, documentID)
	if err != nil {
		return nil, err
	}

	report := &entity.ValidationReport{
		MissingFiles: []string{},
		MissingTypes: []constants.DocType{},
	}
	files, err := e.files.ListByDocument(ctx, doc.ID)
	filesListed := err == nil
	if filesListed {
		report.MissingFiles = MissingFiles(doc.DocType, files)
	} else {
		e.logger.Warn("validation.files.failed", "document_id", doc.ID, "error", err)
		report.Warnings = append(report.Warnings, fmt.Sprintf("file listing failed: %v", err))
	}

	if doc.Metadata.IsEmpty() {
		report.Reason = ReasonMetadataMissing
		report.Message = MessageNoMetadata
	} else {
		mr, err := e.matcher.Match(ctx, doc)
		if err != nil {
			report.Warnings = append(report.Warnings, fmt.Sprintf("matching failed: %v", err))
			report.MissingTypes = otherTypes(doc.DocType)
		} else {
			report.MatchKeys = mr.MatchKeys
			report.FoundTypes = mr.Found
			report.MissingTypes = mr.Missing
			report.Warnings = append(report.Warnings, mr.Warnings...)
		}
		report.ReadyForApproval = filesListed && len(report.MissingFiles) == 0 && len(report.MissingTypes) == 0
		report.Message = Message(report)
	}

	var runBy *uuid.UUID
	if trigger == constants.TriggerManual {
		runBy = common.ActorIDFromContext(ctx)
	}
	if _, err := e.history.Create(ctx, &entity.ValidationResult{
		DocumentID: doc.ID,
		Report:     *report,
		RunBy:      runBy,
		Trigger:    trigger,
	}); err != nil {
		e.logger.Warn("validation.history.failed", "document_id", doc.ID, "error", err)
		report.Warnings = append(report.Warnings, fmt.Sprintf("validation history not saved: %v", err))
	}

	var cacheErr error
	if err := e.docs.UpdateLastValidation(ctx, doc.ID, report); err != nil {
		e.logger.Error("validation.cache.failed", "document_id", doc.ID, "error", err)
		cacheErr = common.NewAppError("VALIDATION_CACHE", "could not store last validation", fmt.Errorf("%w: %v", common.ErrDatabase, err))
	}

	action := constants.AuditRunValidationAuto
	if trigger == constants.TriggerManual {
		action = constants.AuditRunValidation
	}
	e.audit.Record(ctx, audit.Entry{
		Actor:  runBy,
		Action: action,
		Details: map[string]any{
			"doc_id":             doc.ID.String(),
			"ready_for_approval": report.ReadyForApproval,
		},
	})

	e.logger.Info("validation.done",
		"document_id", doc.ID,
		"trigger", trigger,
		"ready", report.ReadyForApproval,
		"missing_files", len(report.MissingFiles),
		"missing_types", len(report.MissingTypes),
		"warnings", len(report.Warnings),
		"duration_ms", time.Since(start).Milliseconds())
	return report, cacheErr
}

// MissingFiles lists the required fields of t that have no file, in table
// order. Files count regardless of extraction status.
func MissingFiles(t constants.DocType, files []*entity.DocumentFile) []string {
	have := make(map[string]bool, len(files))
	for _, f := range files {
		have[f.FieldName] = true
	}
	missing := []string{}
	for _, field := range constants.RequiredFiles(t) {
		if !have[field] {
			missing = append(missing, field)
		}
	}
	return missing
}

// Message renders the human summary of a report.
func Message(r *entity.ValidationReport) string {
	if r.Reason == ReasonMetadataMissing {
		return MessageNoMetadata
	}
	if r.ReadyForApproval {
		return MessageReady
	}
	var parts []string
	if len(r.MissingFiles) > 0 {
		parts = append(parts, "Missing files for this document: "+strings.Join(r.MissingFiles, ", "))
	}
	if len(r.MissingTypes) > 0 {
		names := make([]string, len(r.MissingTypes))
		for i, t := range r.MissingTypes {
			names[i] = string(t)
		}
		parts = append(parts, "Missing or unmatched document types: "+strings.Join(names, ", "))
	}
	if len(parts) == 0 {
		return MessageIncomplete
	}
	return strings.Join(parts, " | ")
}

func otherTypes(self constants.DocType) []constants.DocType {
	out := make([]constants.DocType, 0, len(constants.AllDocTypes)-1)
	for _, t := range constants.AllDocTypes {
		if t != self {
			out = append(out, t)
		}
	}
	return out
}
