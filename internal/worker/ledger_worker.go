package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"staybook/internal/domain"
	"staybook/internal/metrics"
	"staybook/internal/models"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	defaultDeadLetterKey = "staybook:outbox:deadletter"
	defaultPollInterval  = 2 * time.Second
	defaultBatchSize     = 20
)

// LedgerWorker drains the outbox and mirrors every booking change into the
// external ledger. Delivery is at-least-once; the ledger upsert is keyed by
// booking id so replays are harmless.
type LedgerWorker struct {
	outbox        domain.OutboxStore
	ledger        domain.LedgerWriter
	redis         *redis.Client
	retryPolicy   RetryPolicy
	deadLetterKey string
	pollInterval  time.Duration
	batchSize     int
	now           func() time.Time
	logger        zerolog.Logger
}

// NewLedgerWorker builds a worker with sane defaults. redisClient is optional
// and only receives dead letters.
func NewLedgerWorker(outbox domain.OutboxStore, ledger domain.LedgerWriter, redisClient *redis.Client, retry RetryPolicy, pollInterval time.Duration, logger *zerolog.Logger) *LedgerWorker {
	if retry.MaxRetries == 0 {
		retry.MaxRetries = 5
	}
	if retry.InitialDelay == 0 {
		retry.InitialDelay = 2 * time.Second
	}
	if retry.MaxDelay == 0 {
		retry.MaxDelay = time.Minute
	}
	if retry.BackoffFactor == 0 {
		retry.BackoffFactor = 2
	}
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}
	l := zerolog.Nop()
	if logger != nil {
		l = logger.With().Str("component", "ledger_worker").Logger()
	}

	return &LedgerWorker{
		outbox:        outbox,
		ledger:        ledger,
		redis:         redisClient,
		retryPolicy:   retry,
		deadLetterKey: defaultDeadLetterKey,
		pollInterval:  pollInterval,
		batchSize:     defaultBatchSize,
		now:           time.Now,
		logger:        l,
	}
}

// Start polls the outbox until ctx is done.
func (w *LedgerWorker) Start(ctx context.Context) {
	w.logger.Info().Dur("poll_interval", w.pollInterval).Msg("ledger worker started")
	defer w.logger.Info().Msg("ledger worker stopped")

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		n, err := w.RunOnce(ctx)
		if err != nil {
			w.logger.Error().Err(err).Msg("fetch pending outbox tasks")
		}
		// A full batch means there is probably more waiting.
		if err == nil && n == w.batchSize {
			continue
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// RunOnce processes one batch of due tasks and reports how many it picked up.
func (w *LedgerWorker) RunOnce(ctx context.Context) (int, error) {
	tasks, err := w.outbox.GetPendingOutboxTasks(ctx, w.batchSize)
	if err != nil {
		return 0, err
	}
	for i := range tasks {
		if ctx.Err() != nil {
			return i, ctx.Err()
		}
		w.processTask(ctx, &tasks[i])
	}
	return len(tasks), nil
}

func (w *LedgerWorker) processTask(ctx context.Context, task *models.OutboxTask) {
	booking, err := decodeBooking(task)
	if err != nil {
		w.failTask(ctx, task, fmt.Errorf("decode payload: %w", err))
		return
	}

	if err := w.ledger.UpsertBooking(ctx, booking); err != nil {
		w.retryOrFail(ctx, task, err)
		return
	}

	if err := w.outbox.UpdateOutboxTaskStatus(ctx, task.ID, models.OutboxCompleted, "", nil); err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("mark completed")
		return
	}
	metrics.IncOutbox(models.OutboxCompleted)
}

func decodeBooking(task *models.OutboxTask) (*models.Booking, error) {
	if task.TaskType != models.OutboxUpsertBooking {
		return nil, fmt.Errorf("unknown task type: %s", task.TaskType)
	}
	var b models.Booking
	if err := json.Unmarshal([]byte(task.Payload), &b); err != nil {
		return nil, err
	}
	if b.ID == 0 {
		return nil, errors.New("booking payload missing id")
	}
	return &b, nil
}

func (w *LedgerWorker) retryOrFail(ctx context.Context, task *models.OutboxTask, cause error) {
	attempt := task.RetryCount + 1
	if attempt >= w.retryPolicy.MaxRetries {
		w.failTask(ctx, task, cause)
		return
	}

	nextTime := w.now().Add(w.retryPolicy.NextDelay(attempt))
	if err := w.outbox.UpdateOutboxTaskStatus(ctx, task.ID, models.OutboxRetry, cause.Error(), &nextTime); err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("mark retry")
		return
	}
	metrics.IncOutbox(models.OutboxRetry)
	w.logger.Warn().Err(cause).
		Int64("task_id", task.ID).
		Int("attempt", attempt).
		Time("next_retry_at", nextTime).
		Msg("ledger write failed, will retry")
}

func (w *LedgerWorker) failTask(ctx context.Context, task *models.OutboxTask, cause error) {
	if err := w.outbox.UpdateOutboxTaskStatus(ctx, task.ID, models.OutboxFailed, cause.Error(), nil); err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("mark failed")
	}
	metrics.IncOutbox(models.OutboxFailed)
	w.logger.Error().Err(cause).Int64("task_id", task.ID).Int64("booking_id", task.BookingID).Msg("outbox task failed")
	w.pushDeadLetter(ctx, task, cause)
}

func (w *LedgerWorker) pushDeadLetter(ctx context.Context, task *models.OutboxTask, cause error) {
	if w.redis == nil {
		return
	}
	failed := *task
	msg := cause.Error()
	failed.LastError = &msg
	failed.Status = models.OutboxFailed
	data, err := json.Marshal(failed)
	if err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("encode deadletter")
		return
	}
	if err := w.redis.LPush(ctx, w.deadLetterKey, data).Err(); err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("deadletter push")
	}
}
