package async

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/joseph-ayodele/tradedocs/internal/pipeline"
)

const (
	StatusQueued     = "queued"
	StatusProcessing = "processing"
	StatusDone       = "done"
	StatusFailed     = "failed"
)

// JobStatus is the per-job record kept in a Redis hash next to the stream.
type JobStatus struct {
	ID           string    `json:"id"`
	FileID       uuid.UUID `json:"file_id"`
	Status       string    `json:"status"`
	ErrorMessage string    `json:"error_message,omitempty"`
	Attempts     int       `json:"attempts"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type RedisQueueConfig struct {
	Addr       string
	Password   string
	Stream     string
	Group      string
	Consumer   string
	JobTTL     time.Duration
	MaxRetries int
	Block      time.Duration
	ClaimIdle  time.Duration
	RetryDelay time.Duration
	Timeout    time.Duration
	MaxLen     int64
	ReadCount  int64
	ClaimCount int64
}

// RedisQueue delivers jobs through a Redis stream consumer group. Delivery
// is at least once: a message is acknowledged only after its run finished,
// and messages left pending by a dead consumer are reclaimed after
// ClaimIdle.
type RedisQueue struct {
	client       *redis.Client
	logger       *slog.Logger
	stream       string
	group        string
	consumerBase string
	jobTTL       time.Duration
	maxRetries   int
	block        time.Duration
	claimIdle    time.Duration
	retryDelay   time.Duration
	timeout      time.Duration
	maxLen       int64
	readCount    int64
	claimCount   int64

	groupOnce sync.Once
	wg        sync.WaitGroup
	mu        sync.Mutex
	cancel    context.CancelFunc
	closed    bool
}

func NewRedisQueue(cfg RedisQueueConfig, logger *slog.Logger) (*RedisQueue, error) {
	if logger == nil {
		logger = slog.Default()
	}
	addr := strings.TrimSpace(cfg.Addr)
	if addr == "" {
		return nil, errors.New("redis addr required")
	}
	stream := strings.TrimSpace(cfg.Stream)
	if stream == "" {
		return nil, errors.New("queue stream required")
	}
	group := strings.TrimSpace(cfg.Group)
	if group == "" {
		group = "extractors"
	}
	consumer := strings.TrimSpace(cfg.Consumer)
	if consumer == "" {
		consumer = uuid.NewString()
	}
	q := &RedisQueue{
		client:       redis.NewClient(&redis.Options{Addr: addr, Password: cfg.Password}),
		logger:       logger,
		stream:       stream,
		group:        group,
		consumerBase: consumer,
		jobTTL:       orDuration(cfg.JobTTL, 24*time.Hour),
		maxRetries:   cfg.MaxRetries,
		block:        orDuration(cfg.Block, 5*time.Second),
		claimIdle:    orDuration(cfg.ClaimIdle, 5*time.Minute),
		retryDelay:   orDuration(cfg.RetryDelay, 2*time.Second),
		timeout:      orDuration(cfg.Timeout, 3*time.Minute),
		maxLen:       cfg.MaxLen,
		readCount:    cfg.ReadCount,
		claimCount:   cfg.ClaimCount,
	}
	if q.maxRetries <= 0 {
		q.maxRetries = 3
	}
	if q.maxLen <= 0 {
		q.maxLen = 10000
	}
	if q.readCount <= 0 {
		q.readCount = 10
	}
	if q.claimCount <= 0 {
		q.claimCount = 10
	}
	return q, nil
}

func orDuration(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}

// Ping checks the connection to Redis.
func (q *RedisQueue) Ping(ctx context.Context) error {
	return q.client.Ping(ctx).Err()
}

func (q *RedisQueue) Enqueue(ctx context.Context, job Job) error {
	if job.FileID == uuid.Nil {
		return errors.New("file id required")
	}
	job = stamp(job)
	q.mu.Lock()
	closed := q.closed
	q.mu.Unlock()
	if closed {
		return ErrQueueClosed
	}

	st := JobStatus{
		ID:        uuid.NewString(),
		FileID:    job.FileID,
		Status:    StatusQueued,
		CreatedAt: job.SubmittedAt,
		UpdatedAt: job.SubmittedAt,
	}
	if err := q.writeStatus(ctx, st); err != nil {
		return fmt.Errorf("write job status: %w", err)
	}
	if err := q.client.XAdd(ctx, &redis.XAddArgs{
		Stream: q.stream,
		MaxLen: q.maxLen,
		Approx: true,
		Values: encodeJob(st.ID, job),
	}).Err(); err != nil {
		return fmt.Errorf("xadd: %w", err)
	}
	q.logger.Info("queued file for processing", "file_id", job.FileID, "job_id", st.ID, "trace_id", job.TraceID)
	return nil
}

func (q *RedisQueue) GetJob(ctx context.Context, jobID string) (JobStatus, bool, error) {
	jobID = strings.TrimSpace(jobID)
	if jobID == "" {
		return JobStatus{}, false, nil
	}
	data, err := q.client.HGetAll(ctx, q.jobKey(jobID)).Result()
	if err != nil {
		return JobStatus{}, false, err
	}
	if len(data) == 0 {
		return JobStatus{}, false, nil
	}
	return decodeJobStatus(jobID, data), true, nil
}

// Start launches concurrency consumers that run jobs through r until
// Shutdown is called or ctx is done.
func (q *RedisQueue) Start(ctx context.Context, concurrency int, r Runner) {
	if concurrency <= 0 {
		concurrency = 1
	}
	ctx, cancel := context.WithCancel(ctx)
	q.mu.Lock()
	q.cancel = cancel
	q.mu.Unlock()

	q.ensureGroup(ctx)
	for i := 0; i < concurrency; i++ {
		consumer := fmt.Sprintf("%s-%d", q.consumerBase, i)
		q.wg.Add(1)
		go func() {
			defer q.wg.Done()
			q.consumeLoop(ctx, consumer, r)
		}()
	}
}

func (q *RedisQueue) Shutdown(ctx context.Context) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	if q.cancel != nil {
		q.cancel()
	}
	q.mu.Unlock()

	done := make(chan struct{})
	go func() { defer close(done); q.wg.Wait() }()
	select {
	case <-ctx.Done():
		q.logger.Warn("shutdown interrupted by context")
	case <-done:
		q.logger.Info("consumers stopped, shutdown complete")
	}
	if err := q.client.Close(); err != nil {
		q.logger.Warn("closing redis client", "error", err)
	}
}

func (q *RedisQueue) ensureGroup(ctx context.Context) {
	q.groupOnce.Do(func() {
		err := q.client.XGroupCreateMkStream(ctx, q.stream, q.group, "0").Err()
		if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
			q.logger.Warn("create consumer group", "stream", q.stream, "group", q.group, "error", err)
		}
	})
}

func (q *RedisQueue) consumeLoop(ctx context.Context, consumer string, r Runner) {
	for {
		if ctx.Err() != nil {
			return
		}

		if msgs, err := q.claimPending(ctx, consumer); err == nil {
			for _, msg := range msgs {
				q.handleMessage(ctx, msg, r)
			}
		}

		streams, err := q.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    q.group,
			Consumer: consumer,
			Streams:  []string{q.stream, ">"},
			Count:    q.readCount,
			Block:    q.block,
		}).Result()
		if err != nil {
			if !errors.Is(err, redis.Nil) && ctx.Err() == nil {
				q.logger.Warn("xreadgroup", "consumer", consumer, "error", err)
				time.Sleep(time.Second)
			}
			continue
		}
		for _, stream := range streams {
			for _, msg := range stream.Messages {
				q.handleMessage(ctx, msg, r)
			}
		}
	}
}

func (q *RedisQueue) claimPending(ctx context.Context, consumer string) ([]redis.XMessage, error) {
	res, _, err := q.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   q.stream,
		Group:    q.group,
		Consumer: consumer,
		MinIdle:  q.claimIdle,
		Start:    "0-0",
		Count:    q.claimCount,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return res, nil
}

// handleMessage runs one delivery. Done and not-found runs are acknowledged;
// failed runs are re-added to the stream until MaxRetries attempts were made.
func (q *RedisQueue) handleMessage(ctx context.Context, msg redis.XMessage, r Runner) {
	jobID, job, ok := decodeJob(msg.Values)
	if !ok {
		q.logger.Warn("dropping malformed message", "msg_id", msg.ID)
		q.ackAndDel(ctx, msg.ID)
		return
	}
	st, err := q.markProcessing(ctx, jobID, job.FileID)
	if err != nil {
		q.logger.Warn("job status unavailable", "job_id", jobID, "error", err)
		return
	}

	runCtx, cancel := context.WithTimeout(ctx, q.timeout)
	res := process(runCtx, r, q.logger, job)
	cancel()

	switch res.Status {
	case pipeline.StatusDone:
		_ = q.mark(ctx, jobID, StatusDone, "")
		q.ackAndDel(ctx, msg.ID)
		return
	case pipeline.StatusNotFound:
		_ = q.mark(ctx, jobID, StatusFailed, "document file not found")
		q.ackAndDel(ctx, msg.ID)
		return
	}

	if st.Attempts >= q.maxRetries {
		q.logger.Error("job failed permanently", "job_id", jobID, "file_id", job.FileID, "attempts", st.Attempts, "error", res.Error)
		_ = q.mark(ctx, jobID, StatusFailed, res.Error)
		q.ackAndDel(ctx, msg.ID)
		return
	}
	_ = q.mark(ctx, jobID, StatusQueued, res.Error)
	if q.retryDelay > 0 {
		select {
		case <-ctx.Done():
			return
		case <-time.After(q.retryDelay):
		}
	}
	if err := q.requeueAndAck(ctx, msg.ID, jobID, job); err != nil {
		q.logger.Warn("requeue failed; message stays pending", "job_id", jobID, "error", err)
	}
}

func (q *RedisQueue) ackAndDel(ctx context.Context, msgID string) {
	_, _ = q.client.XAck(ctx, q.stream, q.group, msgID).Result()
	_, _ = q.client.XDel(ctx, q.stream, msgID).Result()
}

func (q *RedisQueue) requeueAndAck(ctx context.Context, msgID, jobID string, job Job) error {
	pipe := q.client.TxPipeline()
	pipe.XAdd(ctx, &redis.XAddArgs{
		Stream: q.stream,
		MaxLen: q.maxLen,
		Approx: true,
		Values: encodeJob(jobID, job),
	})
	pipe.XAck(ctx, q.stream, q.group, msgID)
	pipe.XDel(ctx, q.stream, msgID)
	_, err := pipe.Exec(ctx)
	return err
}

func (q *RedisQueue) markProcessing(ctx context.Context, jobID string, fileID uuid.UUID) (JobStatus, error) {
	st, _, err := q.GetJob(ctx, jobID)
	if err != nil {
		return JobStatus{}, err
	}
	st.ID = jobID
	st.FileID = fileID
	st.Attempts++
	st.Status = StatusProcessing
	st.UpdatedAt = time.Now().UTC()
	if st.CreatedAt.IsZero() {
		st.CreatedAt = st.UpdatedAt
	}
	if err := q.writeStatus(ctx, st); err != nil {
		return JobStatus{}, err
	}
	return st, nil
}

func (q *RedisQueue) mark(ctx context.Context, jobID, status, errMsg string) error {
	st, _, err := q.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	st.ID = jobID
	st.Status = status
	st.ErrorMessage = errMsg
	st.UpdatedAt = time.Now().UTC()
	return q.writeStatus(ctx, st)
}

func (q *RedisQueue) writeStatus(ctx context.Context, st JobStatus) error {
	key := q.jobKey(st.ID)
	payload := map[string]any{
		"id":        st.ID,
		"fileId":    st.FileID.String(),
		"status":    st.Status,
		"error":     st.ErrorMessage,
		"attempts":  strconv.Itoa(st.Attempts),
		"createdAt": st.CreatedAt.Format(time.RFC3339Nano),
		"updatedAt": st.UpdatedAt.Format(time.RFC3339Nano),
	}
	if err := q.client.HSet(ctx, key, payload).Err(); err != nil {
		return err
	}
	_ = q.client.Expire(ctx, key, q.jobTTL).Err()
	return nil
}

func (q *RedisQueue) jobKey(jobID string) string {
	return fmt.Sprintf("job:%s:%s", q.stream, jobID)
}

func encodeJob(jobID string, job Job) map[string]any {
	return map[string]any{
		"job_id":       jobID,
		"file_id":      job.FileID.String(),
		"force":        strconv.FormatBool(job.Force),
		"trace_id":     job.TraceID,
		"submitted_at": job.SubmittedAt.Format(time.RFC3339Nano),
	}
}

func decodeJob(values map[string]any) (string, Job, bool) {
	str := func(k string) string { s, _ := values[k].(string); return s }
	jobID := str("job_id")
	fileID, err := uuid.Parse(str("file_id"))
	if jobID == "" || err != nil {
		return "", Job{}, false
	}
	job := Job{FileID: fileID, TraceID: str("trace_id")}
	job.Force, _ = strconv.ParseBool(str("force"))
	if t, err := time.Parse(time.RFC3339Nano, str("submitted_at")); err == nil {
		job.SubmittedAt = t
	}
	return jobID, job, true
}

func decodeJobStatus(jobID string, data map[string]string) JobStatus {
	st := JobStatus{ID: jobID, Status: data["status"], ErrorMessage: data["error"]}
	if v, err := uuid.Parse(data["fileId"]); err == nil {
		st.FileID = v
	}
	if n, err := strconv.Atoi(data["attempts"]); err == nil {
		st.Attempts = n
	}
	if t, err := time.Parse(time.RFC3339Nano, data["createdAt"]); err == nil {
		st.CreatedAt = t
	}
	if t, err := time.Parse(time.RFC3339Nano, data["updatedAt"]); err == nil {
		st.UpdatedAt = t
	}
	return st
}
