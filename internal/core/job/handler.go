package job

import (
	"bufio"
	"encoding/base64"
	"encoding/json"

	"recipeengine/internal/core/extract"
	"recipeengine/internal/core/strategy"
	"recipeengine/internal/logger"
	"recipeengine/internal/platform/tasks"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/valyala/fasthttp"
)

// Handler exposes the asynchronous extraction surface: enqueue a job, poll
// its status, or stream its progress over SSE.
type Handler struct {
	jobs  *JobService
	tasks *tasks.Client
	log   *logger.Logger
}

func NewHandler(jobs *JobService, tc *tasks.Client) *Handler {
	return &Handler{jobs: jobs, tasks: tc, log: logger.New("JobHandler")}
}

type createBody struct {
	URL           string   `json:"url"`
	HTML          string   `json:"html"`
	Images        []string `json:"images"`
	ImageMime     string   `json:"image_mime"`
	ForceStrategy string   `json:"force_strategy"`
	Providers     []string `json:"providers"`
}

// HandleCreate handles POST /v1/extractions: validates the input, stores a
// pending job and enqueues the extraction task.
func (h *Handler) HandleCreate(c *fiber.Ctx) error {
	var body createBody
	if err := c.BodyParser(&body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "Invalid request body",
		})
	}

	req := extract.Request{
		Identity:           callerIdentity(c),
		ForceStrategy:      body.ForceStrategy,
		PreferredProviders: body.Providers,
	}
	var images [][]byte
	switch {
	case body.URL != "":
		req.Kind = strategy.InputURL
		req.URL = body.URL
	case body.HTML != "":
		req.Kind = strategy.InputRawHTML
		req.HTML = body.HTML
	case len(body.Images) > 0:
		req.Kind = strategy.InputImage
		req.ImageMime = body.ImageMime
		for _, enc := range body.Images {
			raw, err := base64.StdEncoding.DecodeString(enc)
			if err != nil {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
					"success": false,
					"error":   "images must be base64 encoded",
				})
			}
			images = append(images, raw)
		}
	default:
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "one of url, html or images is required",
		})
	}

	jobID := uuid.New().String()
	req.ID = jobID

	if err := h.jobs.InitPending(c.Context(), jobID, req.URL); err != nil {
		h.log.LogErrorf("failed to init job %s: %v", jobID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"error":   "failed to create job",
		})
	}

	payload, err := json.Marshal(TaskPayload{JobID: jobID, Request: req, Images: images})
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"error":   "failed to encode job",
		})
	}
	task := asynq.NewTask(tasks.TaskTypeExtract, payload)
	if err := h.tasks.Enqueue(task, tasks.QueueExtract, 0); err != nil {
		h.log.LogErrorf("failed to enqueue job %s: %v", jobID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"error":   "failed to enqueue job",
		})
	}

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"success":    true,
		"job_id":     jobID,
		"status_url": "/v1/extractions/" + jobID,
		"stream_url": "/v1/extractions/" + jobID + "/stream",
	})
}

// HandleGet handles GET /v1/extractions/:jobId.
func (h *Handler) HandleGet(c *fiber.Ctx) error {
	id := c.Params("jobId")
	j, err := h.jobs.GetJobStatus(c.Context(), id)
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"success": false,
			"error":   "not_found",
		})
	}
	return c.JSON(fiber.Map{
		"success": true,
		"job":     j,
	})
}

// HandleStream handles GET /v1/extractions/:jobId/stream: forwards the
// job's redis channel as SSE until a terminal event arrives.
func (h *Handler) HandleStream(c *fiber.Ctx) error {
	id := c.Params("jobId")
	j, err := h.jobs.GetJobStatus(c.Context(), id)
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"success": false,
			"error":   "not_found",
		})
	}

	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")
	c.Set("X-Accel-Buffering", "no")

	c.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		writeEvent := func(v interface{}) bool {
			b, err := json.Marshal(v)
			if err != nil {
				return true
			}
			if _, err := w.WriteString("data: " + string(b) + "\n\n"); err != nil {
				return false
			}
			return w.Flush() == nil
		}

		// Current status first so late subscribers see where the job is.
		if !writeEvent(fiber.Map{"type": "status", "status": j.Status}) {
			return
		}

		// Terminal jobs replay the stored result and close.
		if j.Status == StatusCompleted || j.Status == StatusFailed {
			writeEvent(fiber.Map{"type": "result", "job": j})
			return
		}

		sub := h.jobs.Subscribe(c.Context(), id)
		defer sub.Close()

		for msg := range sub.Channel() {
			ev, ok := DecodeProgress(msg.Payload)
			if !ok {
				if !writeEvent(fiber.Map{"type": "status", "status": msg.Payload}) {
					return
				}
				continue
			}
			if !writeEvent(ev) {
				return
			}
			if ev.Terminal() {
				return
			}
		}
	}))
	return nil
}

func callerIdentity(c *fiber.Ctx) string {
	if id := c.Get("X-User-ID"); id != "" {
		return id
	}
	if id := c.Get("X-Session-ID"); id != "" {
		return "anon:" + id
	}
	return "ip:" + c.IP()
}
