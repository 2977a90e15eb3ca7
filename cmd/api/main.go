package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"alfredoptarigan/report-console/internal/config"
	"alfredoptarigan/report-console/internal/handlers"
	"alfredoptarigan/report-console/internal/logging"
	"alfredoptarigan/report-console/internal/repositories"
	"alfredoptarigan/report-console/internal/services"
	"alfredoptarigan/report-console/internal/state"
)

func main() {
	// Load configuration
	cfg := config.Load()

	zapLogger, err := logging.New(cfg.IsDevelopment())
	if err != nil {
		log.Fatalf("❌ %v", err)
	}
	defer zapLogger.Sync()
	zapLogger.Info("✅ Config loaded successfully", zap.String("backend", cfg.Backend.URL))

	// Metrics registry
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := services.MustNewMetrics(registry)

	// Initialize repositories
	sessionRepo, err := repositories.NewSessionRepository(cfg.Session.CacheSize, zapLogger)
	if err != nil {
		zapLogger.Fatal("❌ Failed to initialize session store", zap.Error(err))
	}
	zapLogger.Info("✅ Repositories initialized successfully")

	// Initialize services
	storageService := services.NewStorageService(cfg.Storage.UploadPath, cfg.Storage.MaxFileSize)
	if err := storageService.EnsureUploadDir(); err != nil {
		zapLogger.Fatal("❌ Failed to create upload directory", zap.Error(err))
	}

	backend := services.NewBackendClient(services.BackendOptions{
		BaseURL:         cfg.Backend.URL,
		Timeout:         cfg.Backend.Timeout,
		MaxResponseSize: cfg.Backend.MaxResponseSize,
	}, zapLogger)
	validator := services.NewArtifactValidator(services.ValidatorOptions{
		ProbeTimeout: cfg.Validation.AudioProbeTimeout,
		MaxSize:      cfg.Validation.AudioMaxSize,
		MaxDuration:  cfg.Validation.AudioMaxDuration,
		FFProbePath:  cfg.Validation.FFProbePath,
	}, zapLogger)
	renderer := services.NewResultRenderer()
	zapLogger.Info("✅ Services initialized successfully")

	newOrchestrator := func(app *state.App) services.Orchestrator {
		// Exports are streamed per request, so there is no default downloader
		return services.NewOrchestrator(app, backend, validator, renderer, nil, metrics, zapLogger)
	}

	// Initialize worker
	worker := services.NewWorker(
		cfg.Worker.Concurrency,
		cfg.Worker.QueueSize,
		cfg.Worker.PipelineTimeout,
		zapLogger,
	)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	worker.Start(ctx)

	// Initialize Handlers
	routes := handlers.Routes{
		Sessions:  handlers.NewSessionHandler(sessionRepo, newOrchestrator, zapLogger),
		Uploads:   handlers.NewUploadHandler(sessionRepo, storageService, zapLogger),
		Pipelines: handlers.NewPipelineHandler(sessionRepo, worker, zapLogger),
		Config:    handlers.NewConfigHandler(sessionRepo),
	}
	zapLogger.Info("✅ Handlers initialized")

	// Create Fiber app
	app := fiber.New(fiber.Config{
		AppName:      "Report Console API",
		ReadTimeout:  30 * time.Second,
		WriteTimeout: cfg.Backend.Timeout + 30*time.Second,
		BodyLimit:    int(cfg.Storage.MaxFileSize) + 1<<20,
		ErrorHandler: customErrorHandler,
	})

	// Middleware
	app.Use(recover.New())
	app.Use(logger.New(logger.Config{
		Format:     "[${time}] ${status} - ${latency} ${method} ${path}\n",
		TimeFormat: "2006-01-02 15:04:05",
	}))

	app.Use(cors.New(cors.Config{
		AllowOrigins:  "*",
		AllowMethods:  "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders:  "Origin, Content-Type, Accept, Authorization",
		ExposeHeaders: "Content-Disposition",
	}))

	// Routes
	routes.Register(app.Group("/api/console"))
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	// Root route
	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"message": "Report Console API",
			"version": "1.0.0",
			"endpoints": []string{
				"POST /api/console/sessions",
				"GET /api/console/sessions/:id",
				"POST /api/console/sessions/:id/slots/:slot",
				"POST /api/console/sessions/:id/parse/:kind",
				"POST /api/console/sessions/:id/pipelines/:name",
				"POST /api/console/sessions/:id/exports/:kind",
				"POST /api/console/sessions/:id/scoring-suggestion/submit",
				"POST /api/console/sessions/:id/scoring-suggestion/evidence",
				"POST /api/console/sessions/:id/config/validate",
				"POST /api/console/sessions/:id/config/save",
			},
		})
	})

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		zapLogger.Info("🛑 Shutting down server...")
		if err := app.Shutdown(); err != nil {
			zapLogger.Error("❌ Server forced to shutdown", zap.Error(err))
		}
		worker.Stop()
		cancel()
	}()

	// Start server
	addr := fmt.Sprintf(":%s", cfg.Server.Port)
	zapLogger.Info("🚀 Server starting", zap.String("addr", addr))

	if err := app.Listen(addr); err != nil {
		zapLogger.Fatal("❌ Failed to start server", zap.Error(err))
	}
}

func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
	}

	return c.Status(code).JSON(fiber.Map{
		"error": err.Error(),
		"code":  code,
	})
}
