package ocr

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"golang.org/x/sync/errgroup"
)

var errNoPages = errors.New("no pages rendered")

func (e *Extractor) pdfToOCR(ctx context.Context, path string) (text string, pages int, warnings []string, err error) {
	tmpDir, err := os.MkdirTemp("", "td-pp-*")
	if err != nil {
		return "", 0, nil, err
	}
	defer func(dir string) {
		if err := os.RemoveAll(dir); err != nil {
			e.logger.Warn("failed to remove temp dir", "dir", dir, "error", err)
		}
	}(tmpDir)

	prefix := filepath.Join(tmpDir, "page")
	// pdftoppm -r 200 -png [-l N] <in.pdf> <tmp/page>
	args := []string{"-r", strconv.Itoa(e.cfg.DPI), "-png"}
	if last := e.lastPage(path); last > 0 {
		args = append(args, "-l", strconv.Itoa(last))
	}
	args = append(args, path, prefix)
	_, errb, err := e.runner.Run(ctx, e.cfg.Pdftoppm, args...)
	if err != nil {
		return "", 0, nonEmpty(string(errb)), fmt.Errorf("pdftoppm: %w", err)
	}

	// prefix-1.png, prefix-2.png, ... (zero padded for larger documents)
	matches, _ := filepath.Glob(prefix + "-*.png")
	sort.Strings(matches)
	if e.cfg.MaxPages > 0 && len(matches) > e.cfg.MaxPages {
		matches = matches[:e.cfg.MaxPages]
	}
	if len(matches) == 0 {
		return "", 0, []string{"pdftoppm produced no images"}, errNoPages
	}

	texts := make([]string, len(matches))
	var (
		mu    sync.Mutex
		warns []string
		ok    int
	)
	var g errgroup.Group
	g.SetLimit(e.cfg.Parallelism)
	for i, img := range matches {
		g.Go(func() error {
			txt, err := e.tesseractOCR(ctx, img)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				warns = append(warns, fmt.Sprintf("page %d: %v", i+1, err))
				return nil
			}
			ok++
			texts[i] = strings.TrimSpace(txt)
			return nil
		})
	}
	_ = g.Wait()
	if ok == 0 {
		return "", len(matches), warns, fmt.Errorf("recognition failed on all %d pages", len(matches))
	}

	parts := texts[:0]
	for _, t := range texts {
		if t != "" {
			parts = append(parts, t)
		}
	}
	return strings.TrimSpace(strings.Join(parts, "\n")), len(matches), warns, nil
}

// lastPage caps rendering when MaxPages is set. A page count failure is not
// fatal: pdftoppm gets to decide whether the file renders.
func (e *Extractor) lastPage(path string) int {
	if e.cfg.MaxPages <= 0 {
		return 0
	}
	n, err := api.PageCountFile(path)
	if err != nil {
		e.logger.Debug("page count unavailable", "path", path, "error", err)
		return e.cfg.MaxPages
	}
	if n < e.cfg.MaxPages {
		return n
	}
	return e.cfg.MaxPages
}

func (e *Extractor) tesseractOCR(ctx context.Context, path string) (string, error) {
	// tesseract <file> stdout -l <lang>
	args := []string{path, "stdout", "-l", e.cfg.TesseractLang}
	if e.cfg.TessdataDir != "" {
		args = append(args, "--tessdata-dir", e.cfg.TessdataDir)
	}
	out, errb, err := e.runner.Run(ctx, e.cfg.Tesseract, args...)
	if err != nil {
		var te *ToolError
		if msg := strings.TrimSpace(string(errb)); msg != "" && !errors.As(err, &te) {
			return "", fmt.Errorf("tesseract: %w: %s", err, truncate(msg, 200))
		}
		return "", fmt.Errorf("tesseract: %w", err)
	}
	return string(out), nil
}

func nonEmpty(s string) []string {
	if s = strings.TrimSpace(s); s == "" {
		return nil
	}
	return []string{s}
}
