// Package app wires the stores, the extraction pipeline and the task queue
// from a loaded configuration. The binaries under cmd/ share it.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joseph-ayodele/tradedocs/internal/async"
	"github.com/joseph-ayodele/tradedocs/internal/audit"
	"github.com/joseph-ayodele/tradedocs/internal/common"
	"github.com/joseph-ayodele/tradedocs/internal/documents"
	"github.com/joseph-ayodele/tradedocs/internal/export"
	"github.com/joseph-ayodele/tradedocs/internal/extract"
	"github.com/joseph-ayodele/tradedocs/internal/matcher"
	"github.com/joseph-ayodele/tradedocs/internal/ocr"
	"github.com/joseph-ayodele/tradedocs/internal/pipeline"
	"github.com/joseph-ayodele/tradedocs/internal/repository"
	"github.com/joseph-ayodele/tradedocs/internal/storage"
	"github.com/joseph-ayodele/tradedocs/internal/validation"
)

type App struct {
	Config    *common.Config
	Logger    *slog.Logger
	Client    *repository.Client
	Store     *repository.Store
	Audit     *audit.Sink
	Validator *validation.Engine
	Processor *pipeline.Processor
}

// NewLogger builds the process logger from LOG_FORMAT and LOG_LEVEL.
func NewLogger(cfg common.LogConfig, w io.Writer) *slog.Logger {
	if w == nil {
		w = os.Stdout
	}
	opts := &slog.HandlerOptions{Level: ParseLevel(cfg.Level)}
	if strings.EqualFold(cfg.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// OpenDatabase connects with the configured driver, pings, and applies
// migrations when AutoMigrate is set.
func OpenDatabase(ctx context.Context, cfg common.DatabaseConfig, logger *slog.Logger) (*repository.Client, error) {
	var (
		c   *repository.Client
		err error
	)
	switch cfg.Driver {
	case "sqlite":
		c, err = repository.OpenSQLite(ctx, cfg.DSN, logger)
	default:
		c, err = repository.Open(ctx, repository.Config{
			DSN:              cfg.DSN,
			MaxConns:         cfg.MaxConns,
			MinConns:         cfg.MinConns,
			MaxConnLifetime:  cfg.MaxConnLifetime,
			MaxConnIdleTime:  cfg.MaxConnIdleTime,
			DialTimeout:      cfg.DialTimeout,
			StatementTimeout: cfg.StatementTimeout,
		}, logger)
	}
	if err != nil {
		return nil, common.NewAppError("DB_OPEN", "failed to open database", err)
	}
	if err := repository.HealthCheck(ctx, c, 5*time.Second, logger); err != nil {
		repository.Close(c, logger)
		return nil, common.NewAppError("DB_PING", "database is not reachable", err)
	}
	if cfg.AutoMigrate {
		if err := repository.Migrate(c, logger); err != nil {
			repository.Close(c, logger)
			return nil, common.NewAppError("DB_MIGRATE", "failed to apply migrations", err)
		}
	}
	return c, nil
}

// New opens the database and builds the extraction pipeline.
func New(ctx context.Context, cfg *common.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	c, err := OpenDatabase(ctx, cfg.Database, logger)
	if err != nil {
		return nil, err
	}
	store := repository.NewStore(c, logger)
	sink := audit.NewSink(store.AuditLogs, logger)

	resolver, err := storage.NewResolver(storage.Config{
		Endpoint:  cfg.Storage.Endpoint,
		AccessKey: cfg.Storage.AccessKey,
		SecretKey: cfg.Storage.SecretKey,
		Region:    cfg.Storage.Region,
		UseSSL:    cfg.Storage.UseSSL,
		TempDir:   cfg.Storage.TempDir,
	}, logger)
	if err != nil {
		repository.Close(c, logger)
		return nil, err
	}

	extractor := ocr.NewExtractor(ocr.Config{
		TesseractLang: cfg.OCR.TesseractLang,
		TessdataDir:   cfg.OCR.TessdataDir,
		DPI:           cfg.OCR.DPI,
		MaxPages:      cfg.OCR.MaxPages,
		MinTextChars:  cfg.OCR.MinTextChars,
		Parallelism:   cfg.OCR.Parallelism,
	}, logger)
	ocrAdapter := extract.NewOCRAdapter(extractor, logger)

	engine := validation.NewEngine(store.Documents, store.Files, store.Validations,
		matcher.New(store.Documents, logger), sink, logger)

	extractStage := pipeline.NewExtractStage(store.Files, resolver, ocrAdapter, logger)
	parseStage := pipeline.NewParseStage(store.Documents, extract.NewRulesParser(nil), sink, logger)
	processor := pipeline.NewProcessor(logger, store.Files, extractStage, parseStage, engine, sink)

	return &App{
		Config:    cfg,
		Logger:    logger,
		Client:    c,
		Store:     store,
		Audit:     sink,
		Validator: engine,
		Processor: processor,
	}, nil
}

// NewQueue builds the configured dispatcher and starts its workers. Jobs run
// until ctx is canceled or the queue is shut down.
func (a *App) NewQueue(ctx context.Context) (async.Queue, error) {
	qc := a.Config.Queue
	switch qc.Backend {
	case "redis":
		q, err := async.NewRedisQueue(async.RedisQueueConfig{
			Addr:       qc.RedisAddr,
			Password:   qc.RedisPassword,
			Stream:     qc.Stream,
			Group:      qc.Group,
			MaxRetries: qc.MaxRetries,
			Timeout:    qc.ProcessTimeout,
		}, a.Logger)
		if err != nil {
			return nil, err
		}
		if err := q.Ping(ctx); err != nil {
			q.Shutdown(context.Background())
			return nil, fmt.Errorf("redis ping: %w", err)
		}
		q.Start(ctx, qc.Workers, a.Processor)
		return q, nil
	default:
		return async.NewProcessorQueue(a.Processor, a.Logger,
			async.WithWorkers(qc.Workers),
			async.WithQueueSize(qc.Size),
			async.WithProcessTimeout(qc.ProcessTimeout),
		), nil
	}
}

// ErrQueueNotShared is returned for a consumer queue on a backend other
// processes cannot submit to.
var ErrQueueNotShared = errors.New("queue backend is not shared across processes")

// NewConsumerQueue is NewQueue for a long-running consumer. The in-memory
// backend only runs jobs enqueued by its own process, and nothing submits to
// the daemon in-process, so it requires QUEUE_BACKEND=redis.
func (a *App) NewConsumerQueue(ctx context.Context) (async.Queue, error) {
	if a.Config.Queue.Backend != "redis" {
		return nil, common.NewAppError("QUEUE_BACKEND",
			fmt.Sprintf("backend %q cannot receive jobs from uploads; set QUEUE_BACKEND=redis", a.Config.Queue.Backend),
			ErrQueueNotShared)
	}
	return a.NewQueue(ctx)
}

// Documents builds the document service on top of q. Rates come from the
// currency_rates table, then from CURRENCY_RATES.
func (a *App) Documents(q async.Queue) (*documents.Service, error) {
	static, err := documents.ParseStaticRates(a.Config.Rates.Static)
	if err != nil {
		return nil, common.NewAppError("CONFIG_ERROR", "invalid CURRENCY_RATES", err)
	}
	rates := documents.NewCachedRates(a.Store.CurrencyRate, static, a.Logger)
	return documents.NewService(a.Store, a.Validator, q, rates, a.Audit, a.Logger), nil
}

func (a *App) Export() *export.Service {
	return export.NewService(a.Store.Documents, a.Store.Validations, a.Logger)
}

func (a *App) Close() {
	repository.Close(a.Client, a.Logger)
}
