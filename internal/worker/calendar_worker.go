package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gigflow/internal/domain"
	"gigflow/internal/metrics"
	"gigflow/internal/models"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// calendarTaskPayload is persisted in CalendarTask.Payload as JSON.
type calendarTaskPayload struct {
	GigID       int64  `json:"gig_id"`
	MusicianID  int64  `json:"musician_id,omitempty"`
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	City        string `json:"city,omitempty"`
	Location    string `json:"location,omitempty"`
	Date        string `json:"date,omitempty"`
	StartTime   string `json:"start_time,omitempty"`
	EndTime     string `json:"end_time,omitempty"`
}

func (p calendarTaskPayload) gig() *models.Gig {
	return &models.Gig{
		ID:          p.GigID,
		Title:       p.Title,
		Description: p.Description,
		City:        p.City,
		Location:    p.Location,
		EventDate:   p.Date,
		StartTime:   p.StartTime,
		EndTime:     p.EndTime,
	}
}

func (p calendarTaskPayload) hasSlot() bool {
	return p.Date != "" && p.StartTime != "" && p.EndTime != ""
}

func (p calendarTaskPayload) sameSlot(b *models.CalendarBlock) bool {
	return b.Date == p.Date && b.StartTime == p.StartTime && b.EndTime == p.EndTime
}

// CalendarWorker consumes calendar_queue tasks: it keeps the calendar_blocks
// table in step with hires and mirrors blocks into the optional sink.
type CalendarWorker struct {
	store         domain.CalendarStore
	sink          domain.CalendarSink
	redis         *redis.Client
	retryPolicy   RetryPolicy
	queue         chan models.CalendarTask
	redisQueueKey string
	deadLetterKey string
	pollInterval  time.Duration
	batchSize     int
	logger        *zerolog.Logger
}

// NewCalendarWorker builds a worker. sink and redisClient may be nil.
func NewCalendarWorker(
	store domain.CalendarStore,
	sink domain.CalendarSink,
	redisClient *redis.Client,
	retry RetryPolicy,
	queueSize int,
	pollInterval time.Duration,
	logger *zerolog.Logger,
) *CalendarWorker {
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
	if queueSize <= 0 {
		queueSize = models.WorkerQueueSize
	}
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	return &CalendarWorker{
		store:         store,
		sink:          sink,
		redis:         redisClient,
		retryPolicy:   retry,
		queue:         make(chan models.CalendarTask, queueSize),
		redisQueueKey: "calendar:queue",
		deadLetterKey: "calendar:deadletter",
		pollInterval:  pollInterval,
		batchSize:     20,
		logger:        logger,
	}
}

// EnqueueTask persists a task for gig and schedules it via redis or the
// in-memory queue. For release tasks a zero musicianID releases every block
// of the gig.
func (w *CalendarWorker) EnqueueTask(ctx context.Context, taskType string, gig *models.Gig, musicianID int64) error {
	switch taskType {
	case models.CalendarTaskBlock:
		if musicianID == 0 {
			return errors.New("musician id is required")
		}
	case models.CalendarTaskRelease:
	case "":
		return errors.New("task type is required")
	default:
		return fmt.Errorf("unknown task type: %s", taskType)
	}
	if gig == nil || gig.ID == 0 {
		return errors.New("gig id is required")
	}

	payload := calendarTaskPayload{
		GigID:       gig.ID,
		MusicianID:  musicianID,
		Title:       gig.Title,
		Description: gig.Description,
		City:        gig.City,
		Location:    gig.Location,
		Date:        gig.EventDate,
		StartTime:   gig.StartTime,
		EndTime:     gig.EndTime,
	}
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}

	task := models.CalendarTask{
		TaskType:   taskType,
		GigID:      gig.ID,
		MusicianID: musicianID,
		Payload:    string(payloadBytes),
		Status:     models.TaskStatusPending,
	}
	if err := w.store.CreateCalendarTask(ctx, &task); err != nil {
		return fmt.Errorf("persist calendar task: %w", err)
	}

	if w.redis != nil {
		if err := w.pushRedis(ctx, task); err != nil {
			w.logger.Warn().Err(err).Int64("task_id", task.ID).Msg("redis push failed, fallback to memory queue")
		} else {
			return nil
		}
	}

	select {
	case w.queue <- task:
	default:
		w.logger.Warn().Int64("task_id", task.ID).Msg("in-memory queue full, task left to polling")
	}
	return nil
}

// Start runs the main loop until ctx is done.
func (w *CalendarWorker) Start(ctx context.Context) {
	w.logger.Info().Msg("calendar worker started")
	defer w.logger.Info().Msg("calendar worker stopped")

	if n, err := w.store.RequeueProcessingCalendarTasks(ctx); err != nil {
		w.logger.Error().Err(err).Msg("requeue interrupted tasks")
	} else if n > 0 {
		w.logger.Info().Int64("count", n).Msg("requeued interrupted calendar tasks")
	}
	if n, err := w.FailedTasks(ctx); err != nil {
		w.logger.Error().Err(err).Msg("count failed calendar tasks")
	} else if n > 0 {
		w.logger.Warn().Int("count", n).Msg("calendar tasks left in failed state")
	}

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if t, ok := w.tryLocalQueue(); ok {
			w.processTask(ctx, &t)
			continue
		}

		if t, ok := w.tryRedis(ctx); ok {
			w.processTask(ctx, &t)
			continue
		}

		tasks, err := w.store.GetPendingCalendarTasks(ctx, w.batchSize)
		if err != nil {
			if ctx.Err() == nil {
				w.logger.Error().Err(err).Msg("fetch pending calendar tasks")
			}
			w.sleep(ctx)
			continue
		}
		if len(tasks) == 0 {
			w.sleep(ctx)
			continue
		}

		for i := range tasks {
			w.processTask(ctx, &tasks[i])
		}
	}
}

// sleep waits for the poll interval, a locally queued task or shutdown.
func (w *CalendarWorker) sleep(ctx context.Context) {
	timer := time.NewTimer(w.pollInterval)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	case t := <-w.queue:
		w.processTask(ctx, &t)
	}
}

func (w *CalendarWorker) tryLocalQueue() (models.CalendarTask, bool) {
	select {
	case t := <-w.queue:
		return t, true
	default:
		return models.CalendarTask{}, false
	}
}

func (w *CalendarWorker) tryRedis(ctx context.Context) (models.CalendarTask, bool) {
	if w.redis == nil {
		return models.CalendarTask{}, false
	}
	res, err := w.redis.BRPop(ctx, time.Second, w.redisQueueKey).Result()
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) || errors.Is(err, redis.Nil) {
			return models.CalendarTask{}, false
		}
		w.logger.Error().Err(err).Msg("redis BRPOP error")
		return models.CalendarTask{}, false
	}
	if len(res) != 2 {
		return models.CalendarTask{}, false
	}
	var task models.CalendarTask
	if err := json.Unmarshal([]byte(res[1]), &task); err != nil {
		w.logger.Error().Err(err).Msg("decode redis task")
		return models.CalendarTask{}, false
	}
	return task, true
}

func (w *CalendarWorker) processTask(ctx context.Context, task *models.CalendarTask) {
	claimed, err := w.store.ClaimCalendarTask(ctx, task.ID)
	if err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("claim calendar task")
		return
	}
	if !claimed {
		return
	}

	payload, err := w.decodePayload(task.Payload)
	if err != nil {
		w.failTask(ctx, task, fmt.Errorf("decode payload: %w", err))
		return
	}

	if err := w.handleCalendarTask(ctx, task.TaskType, payload); err != nil {
		w.retryOrFail(ctx, task, err)
		return
	}

	if err := w.store.UpdateCalendarTaskStatus(ctx, task.ID, models.TaskStatusCompleted, "", nil); err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("mark completed")
	}
	metrics.IncCalendarTask(task.TaskType, models.TaskStatusCompleted)
}

func (w *CalendarWorker) handleCalendarTask(ctx context.Context, taskType string, payload calendarTaskPayload) error {
	switch taskType {
	case models.CalendarTaskBlock:
		if payload.GigID == 0 || payload.MusicianID == 0 {
			return errors.New("gig or musician id missing")
		}
		return w.block(ctx, payload)
	case models.CalendarTaskRelease:
		if payload.GigID == 0 {
			return errors.New("gig id missing")
		}
		return w.release(ctx, payload)
	default:
		return fmt.Errorf("unknown task type: %s", taskType)
	}
}

// block records the hired musician's slot and mirrors it to the sink once.
// A stored block on another slot is moved rather than kept.
func (w *CalendarWorker) block(ctx context.Context, payload calendarTaskPayload) error {
	b := models.CalendarBlock{
		MusicianID: payload.MusicianID,
		GigID:      payload.GigID,
		Date:       payload.Date,
		StartTime:  payload.StartTime,
		EndTime:    payload.EndTime,
		Source:     models.CalendarSourceGig,
	}
	if _, err := w.store.CreateCalendarBlock(ctx, &b); err != nil {
		return err
	}

	blocks, err := w.store.ListBlocksByGig(ctx, payload.GigID)
	if err != nil {
		return err
	}
	for i := range blocks {
		stored := &blocks[i]
		if stored.MusicianID != payload.MusicianID {
			continue
		}
		if !payload.sameSlot(stored) {
			if w.sink != nil && stored.ExternalID != "" {
				if err := w.sink.DeleteBlock(ctx, stored.ExternalID); err != nil {
					return err
				}
			}
			if err := w.store.MoveCalendarBlock(ctx, stored.ID, payload.Date, payload.StartTime, payload.EndTime); err != nil {
				return err
			}
			stored.Date, stored.StartTime, stored.EndTime = payload.Date, payload.StartTime, payload.EndTime
			stored.ExternalID = ""
		}
		if w.sink == nil || stored.ExternalID != "" {
			continue
		}
		externalID, err := w.sink.InsertBlock(ctx, payload.gig(), stored)
		if err != nil {
			return err
		}
		if err := w.store.SetCalendarBlockExternalID(ctx, stored.ID, externalID); err != nil {
			return err
		}
	}
	return nil
}

// release drops the gig's blocks, or only the musician's when one is named.
// When the payload carries a full slot, blocks already moved elsewhere stay.
func (w *CalendarWorker) release(ctx context.Context, payload calendarTaskPayload) error {
	blocks, err := w.store.ListBlocksByGig(ctx, payload.GigID)
	if err != nil {
		return err
	}
	for _, b := range blocks {
		if payload.MusicianID != 0 && b.MusicianID != payload.MusicianID {
			continue
		}
		if payload.hasSlot() && !payload.sameSlot(&b) {
			continue
		}
		if w.sink != nil && b.ExternalID != "" {
			if err := w.sink.DeleteBlock(ctx, b.ExternalID); err != nil {
				return err
			}
		}
		if err := w.store.DeleteCalendarBlock(ctx, b.ID); err != nil {
			return err
		}
	}
	return nil
}

func (w *CalendarWorker) retryOrFail(ctx context.Context, task *models.CalendarTask, cause error) {
	attempt := task.RetryCount + 1
	if attempt >= w.retryPolicy.MaxRetries {
		w.failTask(ctx, task, cause)
		return
	}

	nextTime := time.Now().Add(w.retryPolicy.NextDelay(attempt))
	if err := w.store.UpdateCalendarTaskStatus(ctx, task.ID, models.TaskStatusRetry, cause.Error(), &nextTime); err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("mark retry")
	}
	w.logger.Warn().Err(cause).Int64("task_id", task.ID).Int("attempt", attempt).Time("next_retry_at", nextTime).Msg("calendar task will be retried")
	metrics.IncCalendarTask(task.TaskType, models.TaskStatusRetry)
}

func (w *CalendarWorker) failTask(ctx context.Context, task *models.CalendarTask, cause error) {
	if err := w.store.UpdateCalendarTaskStatus(ctx, task.ID, models.TaskStatusFailed, cause.Error(), nil); err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("mark failed")
	}
	w.logger.Error().Err(cause).Int64("task_id", task.ID).Msg("calendar task failed")
	metrics.IncCalendarTask(task.TaskType, models.TaskStatusFailed)
	w.pushDeadLetter(ctx, task)
	if _, err := w.FailedTasks(ctx); err != nil {
		w.logger.Error().Err(err).Msg("count failed calendar tasks")
	}
}

// FailedTasks counts the tasks that ran out of retries and publishes the
// number on the calendar_failed_tasks gauge.
func (w *CalendarWorker) FailedTasks(ctx context.Context) (int, error) {
	tasks, err := w.store.GetFailedCalendarTasks(ctx)
	if err != nil {
		return 0, err
	}
	metrics.SetCalendarFailed(len(tasks))
	return len(tasks), nil
}

func (w *CalendarWorker) decodePayload(raw string) (calendarTaskPayload, error) {
	var payload calendarTaskPayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return payload, err
	}
	return payload, nil
}

func (w *CalendarWorker) pushRedis(ctx context.Context, task models.CalendarTask) error {
	if w.redis == nil {
		return errors.New("redis client is nil")
	}
	data, err := json.Marshal(task)
	if err != nil {
		return err
	}
	return w.redis.LPush(ctx, w.redisQueueKey, data).Err()
}

func (w *CalendarWorker) pushDeadLetter(ctx context.Context, task *models.CalendarTask) {
	if w.redis == nil {
		return
	}
	data, err := json.Marshal(task)
	if err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("encode deadletter")
		return
	}
	if err := w.redis.LPush(ctx, w.deadLetterKey, data).Err(); err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("deadletter push")
	}
}
