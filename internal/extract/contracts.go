package extract

import (
	"context"
	"time"
)

// TextExtractor is Stage 1: file -> text. Failures degrade to empty text
// and are listed in Warnings rather than returned.
type TextExtractor interface {
	Extract(ctx context.Context, path string) TextExtractionResult
}

type TextExtractionResult struct {
	Text       string
	Pages      int
	SourceType string // "PDF" | "IMAGE"
	Method     string // "pdf-text" | "pdf-ocr" | "image-ocr"
	Duration   time.Duration
	Warnings   []string
}

// FieldParser is Stage 2: text -> candidate metadata fields.
type FieldParser interface {
	ParseFields(text string) map[string]string
}

// FileResolver maps a stored file reference to a readable local path.
// cleanup must be called once the path is no longer needed.
type FileResolver interface {
	Resolve(ctx context.Context, ref string) (path string, cleanup func(), err error)
}
