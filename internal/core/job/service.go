package job

import (
	"context"
	"encoding/json"
	"fmt"

	"recipeengine/internal/core/extract"
	rds "recipeengine/internal/platform/redis"

	redisv8 "github.com/go-redis/redis/v8"
)

// tracePrefix marks progress events on the job's pub/sub channel so
// listeners can tell them apart from plain status pings.
const tracePrefix = "trace:"

type JobService struct{ redis *rds.Service }

func NewJobService(redis *rds.Service) *JobService { return &JobService{redis: redis} }

func (s *JobService) GetJobStatus(ctx context.Context, jobID string) (*Job, error) {
	var j Job
	if err := s.redis.CacheGet(ctx, key(jobID), &j); err != nil {
		return nil, fmt.Errorf("job not found: %s", jobID)
	}
	return &j, nil
}

func (s *JobService) store(ctx context.Context, jobID string, status Status, url string, result *Result) error {
	var j Job
	_ = s.redis.CacheGet(ctx, key(jobID), &j)
	j.JobID = jobID
	j.Status = status
	if url != "" {
		j.URL = url
	}
	if result != nil {
		j.Result = result
	}
	if err := s.redis.CacheSet(ctx, key(jobID), j, ttl(status)); err != nil {
		return err
	}
	// Status ping for SSE listeners.
	_ = s.redis.Client().Publish(ctx, key(jobID), string(status)).Err()
	return nil
}

func (s *JobService) InitPending(ctx context.Context, jobID, url string) error {
	return s.store(ctx, jobID, StatusPending, url, nil)
}

func (s *JobService) SetProcessing(ctx context.Context, jobID string) error {
	return s.store(ctx, jobID, StatusProcessing, "", nil)
}

func (s *JobService) Complete(ctx context.Context, jobID string, status Status, result *Result) error {
	return s.store(ctx, jobID, status, "", result)
}

// PublishProgress forwards one progress event to the job's channel so the
// API side can stream it over SSE.
func (s *JobService) PublishProgress(ctx context.Context, jobID string, event extract.Event) error {
	b, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal progress event: %w", err)
	}
	return s.redis.Client().Publish(ctx, key(jobID), tracePrefix+string(b)).Err()
}

// Subscribe returns the job's pub/sub subscription. Callers own closing it.
func (s *JobService) Subscribe(ctx context.Context, jobID string) *redisv8.PubSub {
	return s.redis.Client().Subscribe(ctx, key(jobID))
}

// DecodeProgress extracts the progress event from a channel message.
// Returns ok=false for plain status pings.
func DecodeProgress(payload string) (extract.Event, bool) {
	if len(payload) <= len(tracePrefix) || payload[:len(tracePrefix)] != tracePrefix {
		return extract.Event{}, false
	}
	var ev extract.Event
	if err := json.Unmarshal([]byte(payload[len(tracePrefix):]), &ev); err != nil {
		return extract.Event{}, false
	}
	return ev, true
}

func key(id string) string { return "job:" + id }

// Completed jobs linger for an hour so clients can fetch results; pending
// state expires quickly if the worker dies.
func ttl(s Status) int {
	if s == StatusCompleted || s == StatusFailed {
		return 3600
	}
	return 600
}
