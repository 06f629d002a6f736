package job

import (
	"context"
	"encoding/json"
	"fmt"

	"recipeengine/internal/core/extract"
	"recipeengine/internal/logger"

	"github.com/hibiken/asynq"
)

// Processor runs queued extractions on the worker side, persisting state
// transitions and republishing every progress event for SSE forwarding.
type Processor struct {
	extractor *extract.Service
	jobs      *JobService
	log       *logger.Logger
}

func NewProcessor(extractor *extract.Service, jobs *JobService) *Processor {
	return &Processor{extractor: extractor, jobs: jobs, log: logger.New("JobProcessor")}
}

func (p *Processor) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload TaskPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("bad extraction payload: %w", err)
	}

	req := payload.Request
	req.Images = payload.Images

	if err := p.jobs.SetProcessing(ctx, payload.JobID); err != nil {
		p.log.LogWarnf("job %s: failed to mark processing: %v", payload.JobID, err)
	}

	stream := p.extractor.StartExtraction(ctx, req)
	for ev := range stream.Events() {
		if err := p.jobs.PublishProgress(ctx, payload.JobID, ev); err != nil {
			p.log.LogDebugf("job %s: progress publish failed: %v", payload.JobID, err)
		}

		switch ev.Type {
		case extract.EventSuccess:
			result := &Result{
				Recipe:       ev.Recipe,
				StrategyUsed: ev.StrategyUsed,
				Attempts:     ev.Attempts,
			}
			if err := p.jobs.Complete(ctx, payload.JobID, StatusCompleted, result); err != nil {
				return fmt.Errorf("job %s: persist result: %w", payload.JobID, err)
			}
		case extract.EventError:
			result := &Result{
				Attempts:  ev.Attempts,
				Error:     ev.Error,
				ErrorCode: ev.ErrorCode,
			}
			if err := p.jobs.Complete(ctx, payload.JobID, StatusFailed, result); err != nil {
				return fmt.Errorf("job %s: persist failure: %w", payload.JobID, err)
			}
		}
	}

	// The extraction already did its own retrying; a terminal failure is a
	// final answer, not a task to requeue.
	return nil
}
