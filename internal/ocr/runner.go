package ocr

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// ErrToolMissing means a poppler or tesseract binary is not on PATH.
var ErrToolMissing = errors.New("ocr tool not installed")

// Runner lets us stub external commands in tests.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (stdout, stderr []byte, err error)
}

// ToolError is a failed poppler or tesseract invocation. ExitCode is -1 when
// the process never exited on its own (missing binary, canceled context).
type ToolError struct {
	Tool     string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *ToolError) Error() string {
	msg := fmt.Sprintf("%s exited %d", e.Tool, e.ExitCode)
	if e.ExitCode < 0 {
		msg = fmt.Sprintf("%s: %v", e.Tool, e.Err)
	}
	if e.Stderr != "" {
		msg += ": " + e.Stderr
	}
	return msg
}

func (e *ToolError) Unwrap() error { return e.Err }

type execRunner struct {
	logger *slog.Logger
}

func (r execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	tool := filepath.Base(name)
	if _, err := exec.LookPath(name); err != nil {
		r.logger.Error("ocr.exec.missing", "tool", tool, "path", name, "error", err)
		return nil, nil, &ToolError{Tool: tool, ExitCode: -1, Err: fmt.Errorf("%w: %v", ErrToolMissing, err)}
	}

	start := time.Now()
	cmd := exec.CommandContext(ctx, name, args...)
	var out, errb bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &errb
	err := cmd.Run()
	elapsed := time.Since(start).Milliseconds()

	if err == nil {
		r.logger.Debug("ocr.exec.ok",
			"tool", tool,
			"args", len(args),
			"duration_ms", elapsed,
			"stdout_bytes", out.Len())
		return out.Bytes(), errb.Bytes(), nil
	}

	te := &ToolError{Tool: tool, ExitCode: -1, Stderr: truncate(strings.TrimSpace(errb.String()), 200), Err: err}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && ctx.Err() == nil {
		te.ExitCode = exitErr.ExitCode()
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		te.Err = ctxErr
	}
	r.logger.Error("ocr.exec.failed",
		"tool", tool,
		"args", strings.Join(args, " "),
		"exit_code", te.ExitCode,
		"duration_ms", elapsed,
		"stderr", truncate(errb.String(), 8<<10))
	return out.Bytes(), errb.Bytes(), te
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "...(truncated)"
}
