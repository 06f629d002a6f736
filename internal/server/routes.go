package server

import (
	"recipeengine/internal/core/extract"
	"recipeengine/internal/core/job"
	"recipeengine/internal/core/ratelimit"
	"recipeengine/internal/health"
	"recipeengine/internal/platform/redis"
	tasks "recipeengine/internal/platform/tasks"

	"github.com/gofiber/fiber/v2"
)

type Dependencies struct {
	Extract *extract.Service
	Job     *job.JobService
	Limiter ratelimit.Limiter
	Tasks   *tasks.Client
	Redis   *redis.Service
}

func RegisterRoutes(app *fiber.App, d Dependencies) *health.HealthHandler {
	healthHandler := health.NewHealthHandler()
	healthHandler.RegisterCheck("redis", d.Redis.HealthCheck)
	app.Get("/v1/health", health.HealthLimiter(), healthHandler.HandleHealth)

	api := app.Group("/v1")

	extractHandler := extract.NewHandler(d.Extract, d.Limiter)
	api.Post("/extract", extractHandler.HandleExtract)
	api.Get("/extract", extractHandler.HandleExtractStream)
	api.Get("/quota", extractHandler.HandleQuota)

	jobHandler := job.NewHandler(d.Job, d.Tasks)
	api.Post("/extractions", jobHandler.HandleCreate)
	api.Get("/extractions/:jobId", jobHandler.HandleGet)
	api.Get("/extractions/:jobId/stream", jobHandler.HandleStream)

	return healthHandler
}
