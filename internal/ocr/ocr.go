package ocr

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/joseph-ayodele/tradedocs/constants"
)

const (
	MethodPDFText  = "pdf-text"
	MethodPDFOCR   = "pdf-ocr"
	MethodImageOCR = "image-ocr"
)

type Config struct {
	Pdftotext string // binary name or absolute path; if empty -> "pdftotext"
	Pdftoppm  string // binary name or absolute path; if empty -> "pdftoppm"
	Tesseract string // binary name or absolute path; if empty -> "tesseract"

	TesseractLang string // default "eng"
	TessdataDir   string
	DPI           int // rasterization DPI for scanned PDFs, default 200
	MaxPages      int // 0 = no limit

	// MinTextChars is the trimmed length below which the embedded text
	// layer is considered missing and recognition runs. Default 30.
	MinTextChars int
	// Parallelism bounds concurrent tesseract runs per document. Default 2.
	Parallelism int
}

type ExtractionResult struct {
	Text       string
	Pages      int
	SourceType string // constants.PDF | constants.IMAGE
	Method     string // MethodPDFText | MethodPDFOCR | MethodImageOCR, "" when nothing was found
	Duration   time.Duration
	Warnings   []string
}

// Extractor turns a local file into best-effort plain text. It never fails:
// every stage degrades to empty text and records a warning instead.
type Extractor struct {
	cfg       Config
	runner    Runner
	textLayer func(path string) (string, int, error)
	logger    *slog.Logger
}

type Option func(*Extractor)

// WithRunner replaces the command runner used for poppler and tesseract.
func WithRunner(r Runner) Option {
	return func(e *Extractor) {
		if r != nil {
			e.runner = r
		}
	}
}

func NewExtractor(cfg Config, logger *slog.Logger, opts ...Option) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Pdftotext == "" {
		cfg.Pdftotext = "pdftotext"
	}
	if cfg.Pdftoppm == "" {
		cfg.Pdftoppm = "pdftoppm"
	}
	if cfg.Tesseract == "" {
		cfg.Tesseract = "tesseract"
	}
	if cfg.TesseractLang == "" {
		cfg.TesseractLang = "eng"
	}
	if cfg.DPI <= 0 {
		cfg.DPI = 200
	}
	if cfg.MinTextChars <= 0 {
		cfg.MinTextChars = 30
	}
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = 2
	}
	e := &Extractor{cfg: cfg, runner: execRunner{logger: logger}, textLayer: readTextLayer, logger: logger}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Extract reads the embedded text layer first and falls back to page
// recognition when it is shorter than MinTextChars. The longer candidate wins.
func (e *Extractor) Extract(ctx context.Context, path string) ExtractionResult {
	start := time.Now()
	ext := constants.NormalizeExt(filepath.Ext(path))
	e.logger.Debug("starting text extraction", "path", path, "ext", ext)

	var res ExtractionResult
	if constants.MapExtToFormat(ext) == constants.IMAGE {
		res = e.extractImage(ctx, path)
	} else {
		res = e.extractPDF(ctx, path)
	}
	res.Duration = time.Since(start)

	e.logger.Info("text extraction finished",
		"path", path,
		"method", res.Method,
		"pages", res.Pages,
		"chars", runeLen(res.Text),
		"warnings", len(res.Warnings),
		"duration_ms", res.Duration.Milliseconds(),
	)
	return res
}

func (e *Extractor) extractPDF(ctx context.Context, path string) ExtractionResult {
	res := ExtractionResult{SourceType: constants.PDF}

	direct, pages, warns := e.directText(ctx, path)
	res.Warnings = append(res.Warnings, warns...)
	if direct != "" {
		res.Text, res.Pages, res.Method = direct, pages, MethodPDFText
	}
	if runeLen(direct) >= e.cfg.MinTextChars {
		return res
	}

	e.logger.Debug("text layer too short, running recognition", "path", path, "chars", runeLen(direct))
	recognized, ocrPages, method, warns := e.recognize(ctx, path)
	res.Warnings = append(res.Warnings, warns...)
	if runeLen(recognized) > runeLen(direct) {
		res.Text, res.Pages, res.Method = recognized, ocrPages, method
		if method == MethodImageOCR {
			res.SourceType = constants.IMAGE
		}
	}
	return res
}

func (e *Extractor) extractImage(ctx context.Context, path string) ExtractionResult {
	res := ExtractionResult{SourceType: constants.IMAGE}
	txt, err := e.tesseractOCR(ctx, path)
	if err != nil {
		res.Warnings = append(res.Warnings, err.Error())
		return res
	}
	if txt = strings.TrimSpace(txt); txt != "" {
		res.Text, res.Pages, res.Method = txt, 1, MethodImageOCR
	}
	return res
}

// recognize renders the pages and OCRs them, or OCRs the whole file as one
// image when rendering yields nothing.
func (e *Extractor) recognize(ctx context.Context, path string) (string, int, string, []string) {
	text, pages, warns, err := e.pdfToOCR(ctx, path)
	if err == nil {
		return text, pages, MethodPDFOCR, warns
	}
	warns = append(warns, err.Error())

	e.logger.Debug("page rendering failed, recognising file as image", "path", path, "error", err)
	img := e.extractImage(ctx, path)
	return img.Text, img.Pages, MethodImageOCR, append(warns, img.Warnings...)
}

func runeLen(s string) int {
	return utf8.RuneCountInString(strings.TrimSpace(s))
}
