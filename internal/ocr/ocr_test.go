package ocr

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRunner struct {
	mu     sync.Mutex
	calls  [][]string
	handle func(name string, args []string) ([]byte, []byte, error)
}

func (f *fakeRunner) Run(_ context.Context, name string, args ...string) ([]byte, []byte, error) {
	f.mu.Lock()
	f.calls = append(f.calls, append([]string{name}, args...))
	f.mu.Unlock()
	return f.handle(name, args)
}

func (f *fakeRunner) called(name string) [][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out [][]string
	for _, c := range f.calls {
		if c[0] == name {
			out = append(out, c[1:])
		}
	}
	return out
}

// renderPages writes n empty page images next to the pdftoppm prefix argument.
func renderPages(t *testing.T, args []string, n int) {
	t.Helper()
	prefix := args[len(args)-1]
	for i := 1; i <= n; i++ {
		name := prefix + "-" + string(rune('0'+i)) + ".png"
		require.NoError(t, os.WriteFile(name, []byte("png"), 0o600))
	}
}

func newTestExtractor(t *testing.T, cfg Config, r *fakeRunner, layer string, layerErr error) *Extractor {
	t.Helper()
	e := NewExtractor(cfg, nil, WithRunner(r))
	e.textLayer = func(string) (string, int, error) {
		if layerErr != nil {
			return "", 0, layerErr
		}
		return layer, 1, nil
	}
	return e
}

func TestExtractUsesTextLayerWhenLongEnough(t *testing.T) {
	r := &fakeRunner{handle: func(string, []string) ([]byte, []byte, error) {
		t.Fatal("no external command expected")
		return nil, nil, nil
	}}
	e := newTestExtractor(t, Config{}, r, "  Commercial invoice HS: 8501 Value 1,250.00 USD \n", nil)

	res := e.Extract(context.Background(), "/docs/invoice.pdf")

	assert.Equal(t, "Commercial invoice HS: 8501 Value 1,250.00 USD", res.Text)
	assert.Equal(t, MethodPDFText, res.Method)
	assert.Empty(t, res.Warnings)
}

func TestExtractFallsBackToPageRecognition(t *testing.T) {
	var renderDir string
	r := &fakeRunner{}
	r.handle = func(name string, args []string) ([]byte, []byte, error) {
		switch name {
		case "pdftoppm":
			renderDir = filepath.Dir(args[len(args)-1])
			renderPages(t, args, 2)
			return nil, nil, nil
		case "tesseract":
			return []byte("recognised text of " + filepath.Base(args[0]) + "\n"), nil, nil
		}
		return nil, nil, errors.New("unexpected " + name)
	}
	e := newTestExtractor(t, Config{}, r, "scan", nil)

	res := e.Extract(context.Background(), "/docs/scan.pdf")

	assert.Equal(t, "recognised text of page-1.png\nrecognised text of page-2.png", res.Text)
	assert.Equal(t, MethodPDFOCR, res.Method)
	assert.Equal(t, 2, res.Pages)

	pp := r.called("pdftoppm")
	require.Len(t, pp, 1)
	assert.Equal(t, []string{"-r", "200", "-png"}, pp[0][:3])

	_, err := os.Stat(renderDir)
	assert.True(t, os.IsNotExist(err), "render dir must be removed")
}

func TestExtractKeepsLongerDirectText(t *testing.T) {
	r := &fakeRunner{}
	r.handle = func(name string, args []string) ([]byte, []byte, error) {
		if name == "pdftoppm" {
			renderPages(t, args, 1)
			return nil, nil, nil
		}
		return []byte("x"), nil, nil
	}
	e := newTestExtractor(t, Config{}, r, "short direct", nil)

	res := e.Extract(context.Background(), "/docs/a.pdf")

	assert.Equal(t, "short direct", res.Text)
	assert.Equal(t, MethodPDFText, res.Method)
	assert.Len(t, r.called("tesseract"), 1, "recognition still ran")
}

func TestExtractWholeFileWhenRenderingFails(t *testing.T) {
	r := &fakeRunner{}
	r.handle = func(name string, args []string) ([]byte, []byte, error) {
		switch name {
		case "pdftoppm":
			return nil, []byte("Syntax Error: Couldn't find trailer dictionary"), errors.New("exit status 1")
		case "tesseract":
			return []byte("BILL OF LADING  Shipper: Gulf Traders  AWB 12345678901"), nil, nil
		}
		return nil, nil, nil
	}
	e := newTestExtractor(t, Config{}, r, "", nil)

	res := e.Extract(context.Background(), "/docs/photo.pdf")

	assert.Equal(t, MethodImageOCR, res.Method)
	assert.Contains(t, res.Text, "Shipper: Gulf Traders")
	tess := r.called("tesseract")
	require.Len(t, tess, 1)
	assert.Equal(t, "/docs/photo.pdf", tess[0][0])
	assert.NotEmpty(t, res.Warnings)
}

func TestExtractDegradesToEmpty(t *testing.T) {
	r := &fakeRunner{handle: func(string, []string) ([]byte, []byte, error) {
		return nil, nil, errors.New("boom")
	}}
	e := newTestExtractor(t, Config{}, r, "", errors.New("open pdf: not a pdf"))

	res := e.Extract(context.Background(), "/docs/broken.pdf")

	assert.Empty(t, res.Text)
	assert.Empty(t, res.Method)
	assert.NotEmpty(t, res.Warnings)
	assert.Len(t, r.called("pdftotext"), 1)
}

func TestExtractUsesPdftotextWhenReaderFails(t *testing.T) {
	r := &fakeRunner{}
	r.handle = func(name string, args []string) ([]byte, []byte, error) {
		if name == "pdftotext" {
			return []byte("DELIVERY ORDER\fContainer MSCU1234567 consignee: Emirates Steel\f"), nil, nil
		}
		t.Fatalf("unexpected command %s", name)
		return nil, nil, nil
	}
	e := newTestExtractor(t, Config{}, r, "", errors.New("open pdf: malformed"))

	res := e.Extract(context.Background(), "/docs/do.pdf")

	assert.Equal(t, MethodPDFText, res.Method)
	assert.Equal(t, 2, res.Pages)
	assert.Equal(t, "DELIVERY ORDER\nContainer MSCU1234567 consignee: Emirates Steel", res.Text)
}

func TestExtractImageGoesStraightToRecognition(t *testing.T) {
	r := &fakeRunner{handle: func(name string, args []string) ([]byte, []byte, error) {
		return []byte(" packing list \n"), nil, nil
	}}
	e := newTestExtractor(t, Config{TessdataDir: "/usr/share/tessdata"}, r, "", nil)
	e.textLayer = func(string) (string, int, error) {
		t.Fatal("text layer must not be read for images")
		return "", 0, nil
	}

	res := e.Extract(context.Background(), "/docs/scan.PNG")

	assert.Equal(t, "packing list", res.Text)
	assert.Equal(t, MethodImageOCR, res.Method)
	tess := r.called("tesseract")
	require.Len(t, tess, 1)
	assert.Equal(t, []string{"/docs/scan.PNG", "stdout", "-l", "eng", "--tessdata-dir", "/usr/share/tessdata"}, tess[0])
}

func TestExtractSkipsFailedPages(t *testing.T) {
	r := &fakeRunner{}
	r.handle = func(name string, args []string) ([]byte, []byte, error) {
		if name == "pdftoppm" {
			renderPages(t, args, 3)
			return nil, nil, nil
		}
		if strings.HasSuffix(args[0], "page-2.png") {
			return nil, []byte("Error in pixReadStream"), errors.New("exit status 1")
		}
		return []byte("page " + filepath.Base(args[0])), nil, nil
	}
	e := newTestExtractor(t, Config{Parallelism: 3}, r, "", nil)

	res := e.Extract(context.Background(), "/docs/multi.pdf")

	assert.Equal(t, "page page-1.png\npage page-3.png", res.Text)
	assert.Equal(t, MethodPDFOCR, res.Method)
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "page 2")
}

func TestExtractCapsRenderedPages(t *testing.T) {
	pdfPath := filepath.Join(t.TempDir(), "long.pdf")
	require.NoError(t, os.WriteFile(pdfPath, []byte("not really a pdf"), 0o600))

	r := &fakeRunner{}
	r.handle = func(name string, args []string) ([]byte, []byte, error) {
		if name == "pdftoppm" {
			renderPages(t, args, 3)
			return nil, nil, nil
		}
		return []byte("text of " + filepath.Base(args[0])), nil, nil
	}
	e := newTestExtractor(t, Config{MaxPages: 1}, r, "", nil)

	res := e.Extract(context.Background(), pdfPath)

	assert.Equal(t, "text of page-1.png", res.Text)
	pp := r.called("pdftoppm")
	require.Len(t, pp, 1)
	assert.Contains(t, strings.Join(pp[0], " "), "-l 1")
}
