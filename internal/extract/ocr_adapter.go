package extract

import (
	"context"
	"log/slog"

	"github.com/joseph-ayodele/tradedocs/internal/ocr"
)

type OCRAdapter struct {
	extractor *ocr.Extractor
	logger    *slog.Logger
}

func NewOCRAdapter(e *ocr.Extractor, l *slog.Logger) *OCRAdapter {
	if l == nil {
		l = slog.Default()
	}
	return &OCRAdapter{extractor: e, logger: l}
}

func (a *OCRAdapter) Extract(ctx context.Context, path string) TextExtractionResult {
	r := a.extractor.Extract(ctx, path)
	for _, w := range r.Warnings {
		a.logger.Debug("extraction warning", "path", path, "warning", w)
	}
	return TextExtractionResult{
		Text:       r.Text,
		Pages:      r.Pages,
		SourceType: r.SourceType,
		Method:     r.Method,
		Duration:   r.Duration,
		Warnings:   r.Warnings,
	}
}
