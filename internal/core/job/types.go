package job

import (
	"recipeengine/internal/core/extract"
	"recipeengine/internal/core/recipe"
)

// Job is the stored state of one background extraction.
type Job struct {
	JobID  string  `json:"job_id"`
	Status Status  `json:"status"`
	URL    string  `json:"url,omitempty"`
	Result *Result `json:"result,omitempty"`
}

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Result is the terminal outcome persisted with the job.
type Result struct {
	Recipe       *recipe.Recipe    `json:"recipe,omitempty"`
	StrategyUsed string            `json:"strategy_used,omitempty"`
	Attempts     []extract.Attempt `json:"attempts,omitempty"`
	Error        string            `json:"error,omitempty"`
	ErrorCode    string            `json:"error_code,omitempty"`
}

// TaskPayload is what travels through the extraction queue.
type TaskPayload struct {
	JobID   string          `json:"job_id"`
	Request extract.Request `json:"request"`
	// Images ride separately because extract.Request does not serialize
	// its byte slices.
	Images [][]byte `json:"images,omitempty"`
}
