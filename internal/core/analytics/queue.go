package analytics

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"recipeengine/internal/logger"
	"recipeengine/internal/platform/redis"
	"recipeengine/internal/platform/tasks"

	"github.com/hibiken/asynq"
)

// sinkKey is the redis list the worker appends processed events to.
const sinkKey = "analytics:events"

// sinkTTL keeps the sink bounded; long-term analytics storage is someone
// else's problem.
const sinkTTL = 7 * 24 * time.Hour

// QueueRecorder enqueues events onto the analytics queue fire-and-forget.
// Enqueue failures are logged and dropped.
type QueueRecorder struct {
	tasks *tasks.Client
	log   *logger.Logger
}

func NewQueueRecorder(tc *tasks.Client) *QueueRecorder {
	return &QueueRecorder{tasks: tc, log: logger.New("Analytics")}
}

func (r *QueueRecorder) Record(_ context.Context, event Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		r.log.LogErrorf("failed to marshal event for %s: %v", event.RequestID, err)
		return
	}
	task := asynq.NewTask(tasks.TaskTypeAnalytics, payload)
	if err := r.tasks.Enqueue(task, tasks.QueueAnalytics, 2); err != nil {
		r.log.LogWarnf("dropping analytics event for %s: %v", event.RequestID, err)
	}
}

var _ Recorder = (*QueueRecorder)(nil)

// SinkHandler drains the analytics queue into a redis list.
type SinkHandler struct {
	rds *redis.Service
	log *logger.Logger
}

func NewSinkHandler(rds *redis.Service) *SinkHandler {
	return &SinkHandler{rds: rds, log: logger.New("AnalyticsSink")}
}

func (h *SinkHandler) HandleTask(ctx context.Context, t *asynq.Task) error {
	var event Event
	if err := json.Unmarshal(t.Payload(), &event); err != nil {
		return fmt.Errorf("bad analytics payload: %w", err)
	}

	client := h.rds.Client()
	if err := client.RPush(ctx, sinkKey, t.Payload()).Err(); err != nil {
		return fmt.Errorf("append analytics event: %w", err)
	}
	_ = client.Expire(ctx, sinkKey, sinkTTL).Err()

	h.log.LogDebugf("recorded %s event for request %s", event.Type, event.RequestID)
	return nil
}
