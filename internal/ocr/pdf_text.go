package ocr

import (
	"context"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// directText returns the trimmed embedded text. The pure-Go reader is tried
// first; pdftotext covers files it cannot open.
func (e *Extractor) directText(ctx context.Context, path string) (string, int, []string) {
	text, pages, err := e.textLayer(path)
	if err == nil {
		return strings.TrimSpace(text), pages, nil
	}
	warns := []string{fmt.Sprintf("text layer: %v", err)}

	text, pages, w, err := e.pdfToText(ctx, path)
	warns = append(warns, w...)
	if err != nil {
		warns = append(warns, fmt.Sprintf("pdftotext: %v", err))
		return "", 0, warns
	}
	return strings.TrimSpace(text), pages, warns
}

// readTextLayer joins the plain text of every page with newlines.
func readTextLayer(path string) (text string, pages int, err error) {
	defer func() {
		if r := recover(); r != nil {
			text, pages, err = "", 0, fmt.Errorf("malformed pdf: %v", r)
		}
	}()

	f, r, err := pdf.Open(path)
	if err != nil {
		return "", 0, fmt.Errorf("open pdf: %w", err)
	}
	defer f.Close()

	total := r.NumPage()
	parts := make([]string, 0, total)
	for i := 1; i <= total; i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		txt, err := page.GetPlainText(nil)
		if err != nil || txt == "" {
			continue
		}
		parts = append(parts, txt)
	}
	return strings.Join(parts, "\n"), total, nil
}

func (e *Extractor) pdfToText(ctx context.Context, path string) (text string, pages int, warnings []string, err error) {
	// pdftotext -layout -enc UTF-8 -eol unix <path> -
	out, errb, err := e.runner.Run(ctx, e.cfg.Pdftotext, "-layout", "-enc", "UTF-8", "-eol", "unix", path, "-")
	if err != nil {
		return "", 0, nonEmpty(string(errb)), err
	}
	text = string(out)
	// form feed separates pages
	pages = 1 + strings.Count(strings.TrimRight(text, "\f"), "\f")
	text = strings.ReplaceAll(text, "\f", "\n")
	return text, pages, nil, nil
}
