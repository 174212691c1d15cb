package export

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/tradedocs/internal/entity"
	"github.com/joseph-ayodele/tradedocs/internal/repository"
)

const (
	validationsSheet = "Validations"
	metadataSheet    = "Metadata"
)

// Service produces XLSX bytes for a document's validation history.
type Service struct {
	docsRepo        repository.DocumentRepository
	validationsRepo repository.ValidationResultRepository
	logger          *slog.Logger
}

func NewService(docs repository.DocumentRepository, validations repository.ValidationResultRepository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{docsRepo: docs, validationsRepo: validations, logger: logger}
}

// ExportValidationsXLSX returns a workbook with one row per validation run of
// docID, newest first, plus a sheet with the document's current metadata.
func (s *Service) ExportValidationsXLSX(ctx context.Context, docID uuid.UUID) ([]byte, error) {
	start := time.Now()

	doc, err := s.docsRepo.GetByID(ctx, docID)
	if err != nil {
		return nil, err
	}
	runs, err := s.validationsRepo.ListByDocument(ctx, docID)
	if err != nil {
		return nil, fmt.Errorf("query validations: %w", err)
	}

	f := excelize.NewFile()
	defer func() { _ = f.Close() }()
	// rename the default sheet rather than leaving an empty one behind
	if err := f.SetSheetName(f.GetSheetName(0), validationsSheet); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(metadataSheet); err != nil {
		return nil, err
	}
	activeIndex, _ := f.GetSheetIndex(validationsSheet)
	f.SetActiveSheet(activeIndex)

	headers := []string{
		"Run At",
		"Trigger",
		"Run By",
		"Ready For Approval",
		"Missing Files",
		"Missing Types",
		"Message",
		"Warnings",
	}
	writeRow(f, validationsSheet, 1, toAny(headers)...)

	for i, r := range runs {
		runBy := "system"
		if r.RunBy != nil {
			runBy = r.RunBy.String()
		}
		writeRow(f, validationsSheet, i+2,
			r.RunAt.UTC().Format(time.RFC3339),
			string(r.Trigger),
			runBy,
			r.Report.ReadyForApproval,
			strings.Join(r.Report.MissingFiles, ", "),
			joinTypes(r.Report),
			truncate(r.Report.Message, 500),
			strings.Join(r.Report.Warnings, "; "),
		)
	}

	_ = f.SetColWidth(validationsSheet, "A", "A", 22) // run at
	_ = f.SetColWidth(validationsSheet, "B", "B", 10) // trigger
	_ = f.SetColWidth(validationsSheet, "C", "C", 38) // run by
	_ = f.SetColWidth(validationsSheet, "D", "D", 18)
	_ = f.SetColWidth(validationsSheet, "E", "F", 36)
	_ = f.SetColWidth(validationsSheet, "G", "H", 60)

	writeRow(f, metadataSheet, 1, "Field", "Value")
	row := 2
	for _, key := range entity.MetadataKeys() {
		v, ok := doc.Metadata.Get(key)
		if !ok {
			continue
		}
		writeRow(f, metadataSheet, row, key, v)
		row++
	}
	_ = f.SetColWidth(metadataSheet, "A", "A", 22)
	_ = f.SetColWidth(metadataSheet, "B", "B", 48)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}

	s.logger.Info("export.xlsx.ok",
		"document_id", docID.String(),
		"rows", len(runs),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}

func writeRow(f *excelize.File, sheet string, row int, values ...any) {
	for i, v := range values {
		cell, _ := excelize.CoordinatesToCellName(i+1, row)
		_ = f.SetCellValue(sheet, cell, v)
	}
}

func toAny(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}

func joinTypes(r entity.ValidationReport) string {
	names := make([]string, len(r.MissingTypes))
	for i, t := range r.MissingTypes {
		names[i] = string(t)
	}
	return strings.Join(names, ", ")
}

func truncate(s string, n int) string {
	r := []rune(s)
	if n <= 0 || len(r) <= n {
		return s
	}
	if n <= 1 {
		return string(r[:n])
	}
	return string(r[:n-1]) + "…"
}
