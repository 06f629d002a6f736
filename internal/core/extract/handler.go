package extract

import (
	"bufio"
	"context"
	"encoding/base64"
	"encoding/json"
	"strings"

	"recipeengine/internal/core/fault"
	"recipeengine/internal/core/ratelimit"
	"recipeengine/internal/core/strategy"
	"recipeengine/internal/logger"
	"recipeengine/internal/utils/parser"

	"github.com/gofiber/fiber/v2"
	"github.com/valyala/fasthttp"
)

// Handler exposes the synchronous extraction surfaces: POST /v1/extract
// returns the terminal result as JSON, GET /v1/extract streams live SSE.
type Handler struct {
	service *Service
	limiter ratelimit.Limiter
	log     *logger.Logger
}

func NewHandler(service *Service, limiter ratelimit.Limiter) *Handler {
	return &Handler{service: service, limiter: limiter, log: logger.New("ExtractHandler")}
}

type extractBody struct {
	URL  string `json:"url"`
	HTML string `json:"html"`
	// Images are base64-encoded, already normalized by the caller.
	Images        []string `json:"images"`
	ImageMime     string   `json:"image_mime"`
	ForceStrategy string   `json:"force_strategy"`
	Providers     []string `json:"providers"`
}

// identity resolves the caller identity: authenticated user id when the
// gateway supplies one, otherwise the anonymous session header, otherwise
// the client address.
func identity(c *fiber.Ctx) string {
	if id := c.Get("X-User-ID"); id != "" {
		return id
	}
	if id := c.Get("X-Session-ID"); id != "" {
		return "anon:" + id
	}
	return "ip:" + c.IP()
}

func (h *Handler) buildRequest(c *fiber.Ctx, body extractBody) (Request, error) {
	req := Request{
		Identity:           identity(c),
		ForceStrategy:      body.ForceStrategy,
		PreferredProviders: body.Providers,
	}

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
				return Request{}, fiber.NewError(fiber.StatusBadRequest, "images must be base64 encoded")
			}
			req.Images = append(req.Images, raw)
		}
	default:
		return Request{}, fiber.NewError(fiber.StatusBadRequest, "one of url, html or images is required")
	}
	return req, nil
}

// HandleExtract handles POST /v1/extract: runs the extraction inline and
// returns the terminal event as JSON.
func (h *Handler) HandleExtract(c *fiber.Ctx) error {
	var body extractBody
	if err := c.BodyParser(&body); err != nil {
		h.log.LogWarnf("extract request parse error: %v", err)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "Invalid request body",
		})
	}

	req, err := h.buildRequest(c, body)
	if err != nil {
		return err
	}

	stream := h.start(c.UserContext(), req)

	var terminal *Event
	for ev := range stream.Events() {
		if ev.Terminal() {
			e := ev
			terminal = &e
		}
	}
	if terminal == nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"error":   "extraction produced no result",
		})
	}

	if terminal.Type == EventError {
		status := fiber.StatusUnprocessableEntity
		if terminal.ErrorCode == string(fault.CodeRateLimited) {
			status = fiber.StatusTooManyRequests
		}
		return c.Status(status).JSON(fiber.Map{
			"success":    false,
			"error":      terminal.Error,
			"error_code": terminal.ErrorCode,
			"attempts":   terminal.Attempts,
		})
	}

	return c.JSON(fiber.Map{
		"success":       true,
		"recipe":        terminal.Recipe,
		"strategy_used": terminal.StrategyUsed,
		"attempts":      terminal.Attempts,
	})
}

type streamQuery struct {
	URL           string `form:"url"`
	ForceStrategy string `form:"force_strategy"`
	Providers     string `form:"providers"`
	Sample        bool   `form:"sample"`
}

// HandleExtractStream handles GET /v1/extract: live SSE from the in-process
// progress stream. Client disconnect cancels all in-flight work.
func (h *Handler) HandleExtractStream(c *fiber.Ctx) error {
	var q streamQuery
	if err := parser.ParseQuery(c, &q); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "Invalid query parameters",
		})
	}
	if q.URL == "" && !q.Sample && !SampleMode {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "url query parameter is required",
		})
	}

	req := Request{
		Kind:          strategy.InputURL,
		URL:           q.URL,
		Identity:      identity(c),
		ForceStrategy: q.ForceStrategy,
	}
	if q.Providers != "" {
		req.PreferredProviders = strings.Split(q.Providers, ",")
	}
	useSample := q.Sample || SampleMode

	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")
	c.Set("X-Accel-Buffering", "no")

	c.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		var stream *Stream
		if useSample {
			stream = RunSample(ctx, req)
		} else {
			stream = h.service.StartExtraction(ctx, req)
		}

		for ev := range stream.Events() {
			payload, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			if _, err := w.WriteString("data: " + string(payload) + "\n\n"); err != nil {
				return
			}
			// Flush failure means the client went away; cancel the run.
			if err := w.Flush(); err != nil {
				return
			}
		}
	}))
	return nil
}

func (h *Handler) start(ctx context.Context, req Request) *Stream {
	if SampleMode {
		return RunSample(ctx, req)
	}
	return h.service.StartExtraction(ctx, req)
}

// HandleQuota handles GET /v1/quota: remaining daily requests for the
// caller identity without reserving one.
func (h *Handler) HandleQuota(c *fiber.Ctx) error {
	res, err := h.limiter.Status(c.UserContext(), identity(c))
	if err != nil {
		h.log.LogErrorf("quota lookup failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"error":   "quota lookup failed",
		})
	}
	return c.JSON(fiber.Map{
		"success":   true,
		"allowed":   res.Allowed,
		"remaining": res.Remaining,
		"reset_at":  res.ResetAt,
	})
}
