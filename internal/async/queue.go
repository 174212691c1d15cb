package async

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/tradedocs/internal/common"
	"github.com/joseph-ayodele/tradedocs/internal/pipeline"
)

// Job asks for one extraction run of a document file.
type Job struct {
	FileID      uuid.UUID
	Force       bool // run even if the file already finished extraction
	SubmittedAt time.Time
	TraceID     string
}

type Queue interface {
	Enqueue(ctx context.Context, job Job) error
	Shutdown(ctx context.Context)
}

// ErrQueueClosed is returned by Enqueue after Shutdown.
var ErrQueueClosed = errors.New("queue is shutting down")

// Runner is what the workers call for each job.
type Runner interface {
	Run(ctx context.Context, fileID uuid.UUID) pipeline.Result
	Done(ctx context.Context, fileID uuid.UUID) (bool, error)
}

// stamp fills in the submission time and trace id of a new job.
func stamp(job Job) Job {
	if job.SubmittedAt.IsZero() {
		job.SubmittedAt = time.Now().UTC()
	}
	if job.TraceID == "" {
		job.TraceID = uuid.NewString()
	}
	return job
}

// process runs one job through r. Without Force, a file whose extraction
// already finished is skipped and reported as done, which makes redelivery
// harmless.
func process(ctx context.Context, r Runner, logger *slog.Logger, job Job) pipeline.Result {
	ctx = common.WithTraceID(ctx, job.TraceID)
	if !job.Force {
		done, err := r.Done(ctx, job.FileID)
		if err == nil && done {
			logger.Info("queue.job.skipped", "file_id", job.FileID, "trace_id", job.TraceID)
			return pipeline.Result{Status: pipeline.StatusDone, DocumentFileID: job.FileID}
		}
	}
	res := r.Run(ctx, job.FileID)
	logger.Info("queue.job.finished",
		"file_id", job.FileID,
		"document_id", res.DocumentID,
		"status", res.Status,
		"changed", len(res.ChangedKeys),
		"trace_id", job.TraceID,
		"queued_ms", time.Since(job.SubmittedAt).Milliseconds(),
		"error", res.Error)
	return res
}
