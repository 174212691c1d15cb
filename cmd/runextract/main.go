package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/tradedocs/internal/app"
	"github.com/joseph-ayodele/tradedocs/internal/common"
	"github.com/joseph-ayodele/tradedocs/internal/pipeline"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if len(os.Args) != 2 {
		logger.Error("usage", "cmd", "runextract <document-file-id>")
		os.Exit(2)
	}
	fileID, err := uuid.Parse(os.Args[1])
	if err != nil {
		logger.Error("invalid file id (must be UUID)", "arg", os.Args[1], "error", err)
		os.Exit(2)
	}

	cfg, err := common.LoadConfig()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if cfg.Database.DSN == "" {
		logger.Error("DB_URL required")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Queue.ProcessTimeout)
	defer cancel()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("open app", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	start := time.Now()
	ctx = common.WithTraceID(ctx, uuid.NewString())
	res := a.Processor.Run(ctx, fileID)
	dur := time.Since(start)

	if res.Status != pipeline.StatusDone {
		logger.Error("extraction failed",
			"file_id", fileID, "status", res.Status, "error", res.Error, "duration_ms", dur.Milliseconds())
		os.Exit(1)
	}

	attrs := []any{
		"file_id", fileID,
		"document_id", res.DocumentID,
		"parsed", len(res.Parsed),
		"changed", res.ChangedKeys,
		"duration_ms", dur.Milliseconds(),
	}
	if res.Validation != nil {
		attrs = append(attrs,
			"ready_for_approval", res.Validation.ReadyForApproval,
			"message", res.Validation.Message,
		)
	}
	logger.Info("extraction OK", attrs...)
}
