package main

import (
	"bytes"
	"encoding/json"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/hibiken/asynq"

	"recipeengine/internal/config"
	"recipeengine/internal/core/analytics"
	"recipeengine/internal/core/extract"
	"recipeengine/internal/core/fetch"
	"recipeengine/internal/core/job"
	"recipeengine/internal/core/provider"
	"recipeengine/internal/core/ratelimit"
	"recipeengine/internal/core/reduce"
	"recipeengine/internal/core/retry"
	"recipeengine/internal/core/strategy"
	"recipeengine/internal/logger"
	"recipeengine/internal/platform/llm"
	rds "recipeengine/internal/platform/redis"
	tasks "recipeengine/internal/platform/tasks"
	"recipeengine/internal/server"
	"recipeengine/internal/worker"
	"recipeengine/prompts"
)

func main() {
	cfg := config.Load()
	log.Printf("[recipeengine] starting at %s (env=%s)\n", cfg.HTTPAddr, cfg.AppEnv)

	if os.Getenv("SAMPLE_MODE") == "true" {
		extract.SampleMode = true
		log.Println("[recipeengine] sample mode enabled: extraction endpoints serve canned responses")
	}

	logr := logger.New("main")

	// Redis client
	redisSvc, err := rds.New(rds.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	if err != nil {
		log.Fatal(err)
	}
	defer redisSvc.Close()

	// Asynq client and server
	taskClient := tasks.New(redisSvc)
	asynqServer := asynq.NewServer(redisSvc.AsynqRedisOpt(), asynq.Config{
		Concurrency: 10,
		Queues: map[string]int{
			tasks.QueueExtract:   3,
			tasks.QueueAnalytics: 1,
		},
	})

	// Provider adapters
	recipePrompts := prompts.NewRecipePrompts()
	llmSvc, err := llm.NewService(llm.Config{
		APIKey: cfg.GeminiAPIKey,
		Model:  cfg.GeminiModel,
	})
	if err != nil {
		log.Fatalf("failed to initialize LLM service: %v", err)
	}
	registry := provider.NewRegistry(
		provider.NewGeminiAdapter(llmSvc, recipePrompts),
		provider.NewAnthropicAdapter(cfg.AnthropicAPIKey, cfg.AnthropicModel, recipePrompts),
	)

	selector, err := strategy.NewSelector(registry, cfg.FastProvider, cfg.CapableProvider)
	if err != nil {
		log.Fatalf("failed to build strategy selector: %v", err)
	}

	// Extraction engine
	limiter := ratelimit.NewRedisLimiter(redisSvc, cfg.DailyQuota)
	recorder := analytics.NewQueueRecorder(taskClient)
	extractSvc := extract.NewService(selector,
		fetch.New(cfg.FetchTimeout),
		reduce.New(),
		limiter,
		recorder,
		extract.Config{
			TextRetry: retry.Config{
				MaxAttempts: cfg.TextMaxAttempts,
				BaseDelay:   cfg.RetryBaseDelay,
				MaxDelay:    cfg.RetryMaxDelay,
			},
			ImageRetry: retry.Config{
				MaxAttempts: cfg.ImageMaxAttempts,
				BaseDelay:   cfg.RetryBaseDelay,
				MaxDelay:    cfg.RetryMaxDelay,
			},
			OverallTimeout: cfg.OverallTimeout,
		})

	jobSvc := job.NewJobService(redisSvc)
	processor := job.NewProcessor(extractSvc, jobSvc)
	sink := analytics.NewSinkHandler(redisSvc)

	// Worker mux
	mux := worker.NewMux()
	mux.HandleFunc(tasks.TaskTypeExtract, processor.ProcessTask)
	mux.HandleFunc(tasks.TaskTypeAnalytics, sink.HandleTask)

	go func() {
		if err := asynqServer.Start(mux.Mux()); err != nil {
			log.Printf("[worker] stopped: %v\n", err)
		}
	}()

	// HTTP server
	app := fiber.New(fiber.Config{
		AppName:   "Recipe Extraction Engine",
		BodyLimit: 25 * 1024 * 1024,
		JSONEncoder: func(v interface{}) ([]byte, error) {
			var buf bytes.Buffer
			encoder := json.NewEncoder(&buf)
			encoder.SetEscapeHTML(false)
			if err := encoder.Encode(v); err != nil {
				return nil, err
			}
			return buf.Bytes(), nil
		},
	})

	deps := server.Dependencies{
		Extract: extractSvc,
		Job:     jobSvc,
		Limiter: limiter,
		Tasks:   taskClient,
		Redis:   redisSvc,
	}
	healthHandler := server.RegisterRoutes(app, deps)

	// Mark application as ready after services settle
	go func() {
		time.Sleep(5 * time.Second)
		healthHandler.SetReady()
	}()

	// Graceful shutdown
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-shutdown
		logr.LogInfo("Shutting down...")
		asynqServer.Shutdown()
		_ = taskClient.Close()
		_ = app.ShutdownWithTimeout(5 * time.Second)
	}()

	if err := app.Listen(cfg.HTTPAddr); err != nil {
		log.Fatalf("server listen: %v", err)
	}
}
