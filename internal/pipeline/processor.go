package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/tradedocs/constants"
	"github.com/joseph-ayodele/tradedocs/internal/audit"
	"github.com/joseph-ayodele/tradedocs/internal/common"
	"github.com/joseph-ayodele/tradedocs/internal/entity"
	"github.com/joseph-ayodele/tradedocs/internal/metadata"
)

type Status string

const (
	StatusDone     Status = "done"
	StatusFailed   Status = "failed"
	StatusNotFound Status = "not_found"
)

// Result is the outcome of one run. Error is set only for failed runs.
type Result struct {
	Status         Status                   `json:"status"`
	DocumentFileID uuid.UUID                `json:"document_file_id"`
	DocumentID     uuid.UUID                `json:"document_id,omitempty"`
	Parsed         metadata.Fields          `json:"parsed,omitempty"`
	ChangedKeys    []string                 `json:"changed_keys,omitempty"`
	Validation     *entity.ValidationReport `json:"validation,omitempty"`
	Error          string                   `json:"error,omitempty"`
}

type Validator interface {
	Validate(ctx context.Context, documentID uuid.UUID, trigger constants.ValidationTrigger) (*entity.ValidationReport, error)
}

// Processor coordinates text extraction, field parsing and validation for one
// uploaded file.
type Processor struct {
	Logger    *slog.Logger
	Files     FileStore
	Extract   *ExtractStage
	Parse     *ParseStage
	Validator Validator
	Audit     *audit.Sink
}

func NewProcessor(logger *slog.Logger, files FileStore, ex *ExtractStage, parse *ParseStage, v Validator, sink *audit.Sink) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{Logger: logger, Files: files, Extract: ex, Parse: parse, Validator: v, Audit: sink}
}

// Run processes fileID end to end. It never returns an error and never
// panics: failures are recorded on the file, audited and reported in the
// Result. Running the same file again is safe.
func (p *Processor) Run(ctx context.Context, fileID uuid.UUID) (res Result) {
	start := time.Now()
	res = Result{DocumentFileID: fileID}

	file, doc, err := p.Files.GetWithDocument(ctx, fileID)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			p.Logger.Warn("processor.file.not_found", "file_id", fileID)
			res.Status = StatusNotFound
			return res
		}
		p.Logger.Error("processor.load.failed", "file_id", fileID, "error", err)
		res.Status = StatusFailed
		res.Error = err.Error()
		return res
	}
	res.DocumentID = doc.ID

	defer func() {
		if r := recover(); r != nil {
			res = p.fail(ctx, res, fmt.Errorf("panic: %v", r), debug.Stack())
		}
	}()

	// 1) text → document_files.extracted_text
	ocrRes, err := p.Extract.Run(ctx, file)
	if err != nil {
		return p.fail(ctx, res, err, debug.Stack())
	}
	p.Logger.Info("processor.extract.ok",
		"file_id", fileID,
		"method", ocrRes.Method,
		"pages", ocrRes.Pages,
		"chars", len(ocrRes.Text),
	)

	// 2) fields → blank metadata only
	parsed, changed, err := p.Parse.Run(ctx, doc, ocrRes.Text)
	if err != nil {
		return p.fail(ctx, res, err, debug.Stack())
	}
	res.Parsed = parsed
	res.ChangedKeys = changed

	// 3) cross-document validation
	report, err := p.Validator.Validate(ctx, doc.ID, constants.TriggerAuto)
	res.Validation = report
	if err != nil {
		return p.fail(ctx, res, fmt.Errorf("validate: %w", err), debug.Stack())
	}

	res.Status = StatusDone
	p.Logger.Info("processor.ok",
		"file_id", fileID,
		"document_id", doc.ID,
		"changed", len(changed),
		"ready", report.ReadyForApproval,
		"duration_ms", time.Since(start).Milliseconds())
	return res
}

// Done reports whether fileID already finished extraction successfully.
func (p *Processor) Done(ctx context.Context, fileID uuid.UUID) (bool, error) {
	file, _, err := p.Files.GetWithDocument(ctx, fileID)
	if err != nil {
		return false, err
	}
	return file.Status == constants.ExtractionDone, nil
}

func (p *Processor) fail(ctx context.Context, res Result, cause error, stack []byte) Result {
	res.Status = StatusFailed
	res.Error = cause.Error()
	p.Logger.Error("processor.failed", "file_id", res.DocumentFileID, "document_id", res.DocumentID, "error", cause)

	// bookkeeping must land even when ctx timed out
	bctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := p.Files.FinishFailure(bctx, res.DocumentFileID, cause.Error()); err != nil {
		p.Logger.Error("processor.mark_failed.failed", "file_id", res.DocumentFileID, "error", err)
	}
	p.Audit.Record(bctx, audit.Entry{
		Action: constants.AuditExtractionFailed,
		Details: map[string]any{
			"doc_id":  res.DocumentID.String(),
			"file_id": res.DocumentFileID.String(),
			"error":   cause.Error(),
			"trace":   string(stack),
		},
	})
	return res
}
