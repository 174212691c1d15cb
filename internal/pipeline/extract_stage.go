package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/tradedocs/constants"
	"github.com/joseph-ayodele/tradedocs/internal/entity"
	"github.com/joseph-ayodele/tradedocs/internal/extract"
)

type FileStore interface {
	GetWithDocument(ctx context.Context, id uuid.UUID) (*entity.DocumentFile, *entity.Document, error)
	MarkRunning(ctx context.Context, id uuid.UUID) error
	FinishSuccess(ctx context.Context, id uuid.UUID, text string) error
	FinishFailure(ctx context.Context, id uuid.UUID, msg string) error
}

type ExtractStage struct {
	Files         FileStore
	Resolver      extract.FileResolver
	TextExtractor extract.TextExtractor
	Logger        *slog.Logger
}

func NewExtractStage(files FileStore, resolver extract.FileResolver, tx extract.TextExtractor, logger *slog.Logger) *ExtractStage {
	if logger == nil {
		logger = slog.Default()
	}
	return &ExtractStage{Files: files, Resolver: resolver, TextExtractor: tx, Logger: logger}
}

// Run marks the file running, extracts its text and stores it. An empty
// extraction is still a success; only resolution and storage errors fail.
func (s *ExtractStage) Run(ctx context.Context, file *entity.DocumentFile) (extract.TextExtractionResult, error) {
	if err := s.Files.MarkRunning(ctx, file.ID); err != nil {
		return extract.TextExtractionResult{}, fmt.Errorf("mark running: %w", err)
	}

	format := constants.MapExtToFormat(filepath.Ext(file.FileRef))
	if format == "" {
		return extract.TextExtractionResult{}, fmt.Errorf("unsupported format: %q", filepath.Ext(file.FileRef))
	}

	path, cleanup, err := s.Resolver.Resolve(ctx, file.FileRef)
	if err != nil {
		return extract.TextExtractionResult{}, fmt.Errorf("resolve %s: %w", file.FileRef, err)
	}
	defer cleanup()

	res := s.TextExtractor.Extract(ctx, path)
	if len(res.Warnings) > 0 {
		s.Logger.Warn("processor.extract.degraded",
			"file_id", file.ID,
			"format", format,
			"warnings", len(res.Warnings))
	}

	if err := s.Files.FinishSuccess(ctx, file.ID, res.Text); err != nil {
		return res, fmt.Errorf("store text: %w", err)
	}
	return res, nil
}
