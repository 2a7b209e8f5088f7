package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"

	"alfredoptarigan/talent-match/internal/config"
	"alfredoptarigan/talent-match/internal/handlers"
	"alfredoptarigan/talent-match/internal/repositories"
	"alfredoptarigan/talent-match/internal/services"
)

func main() {
	cfg := config.Load()

	log := initLogger(cfg.Server.Env)
	defer log.Sync()

	db, err := config.InitDatabase(cfg)
	if err != nil {
		log.Fatal("failed to initialize database", zap.Error(err))
	}

	candidateRepo := repositories.NewCandidateRepository(db)
	ingestRepo := repositories.NewIngestionRepository(db)
	auditRepo := repositories.NewAuditRepository(db)

	storageService := services.NewStorageService(cfg.Storage.UploadPath)
	if err := storageService.EnsureUploadDir(); err != nil {
		log.Fatal("failed to create upload directory", zap.Error(err))
	}
	pdfParser := services.NewPDFParserService()

	geminiService, err := services.NewGeminiService(cfg.Gemini.APIKey, cfg.Worker.RetryInitialDelay, log)
	if err != nil {
		log.Fatal("failed to initialize Gemini", zap.Error(err))
	}

	vectorIndex, err := services.NewQdrantIndex(
		cfg.Qdrant.URL,
		cfg.Qdrant.APIKey,
		cfg.Qdrant.Collection,
		log,
	)
	if err != nil {
		log.Fatal("failed to initialize Qdrant", zap.Error(err))
	}
	if err := vectorIndex.InitCollection(); err != nil {
		log.Fatal("failed to initialize Qdrant collection", zap.Error(err))
	}

	extractor := services.NewExtractor(geminiService, cfg.Worker.RetryMaxAttempts, log)

	dedupEngine := services.NewDedupEngine(candidateRepo, auditRepo, vectorIndex, services.DedupOptions{
		MergeThreshold:     cfg.Dedup.MergeThreshold,
		NearMissMargin:     cfg.Dedup.NearMissMargin,
		EmbeddingThreshold: cfg.Dedup.EmbeddingThreshold,
		MaxUpdateRetries:   cfg.Dedup.MaxUpdateRetries,
	}, log)

	recallEngine := services.NewRecallEngine(candidateRepo, vectorIndex, log)
	ranker := services.NewFusionRanker()
	matcher := services.NewMatcherService(extractor, recallEngine, ranker, cfg.Matching, log)

	ingestionService := services.NewIngestionService(
		ingestRepo,
		candidateRepo,
		extractor,
		geminiService,
		dedupEngine,
		vectorIndex,
		storageService,
		pdfParser,
		log,
	)

	worker := services.NewWorker(
		ingestRepo,
		ingestionService,
		cfg.Worker.Concurrency,
		cfg.Worker.RetryMaxAttempts,
		cfg.Worker.PollInterval,
		log,
	)
	worker.Start(context.Background())

	validate := validator.New()
	matchHandler := handlers.NewMatchHandler(matcher, validate)
	ingestHandler := handlers.NewIngestHandler(ingestionService, worker, validate, cfg.Storage.MaxFileSize)
	candidateHandler := handlers.NewCandidateHandler(candidateRepo, auditRepo, vectorIndex, log)

	app := fiber.New(fiber.Config{
		AppName:      "Talent Match API",
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		BodyLimit:    int(cfg.Storage.MaxFileSize),
		ErrorHandler: customErrorHandler,
	})

	app.Use(recover.New())
	app.Use(logger.New(logger.Config{
		Format:     "[${time}] ${status} - ${latency} ${method} ${path}\n",
		TimeFormat: "2006-01-02 15:04:05",
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
	}))

	api := app.Group("/api/v1")

	api.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "healthy",
			"time":   time.Now(),
		})
	})

	api.Post("/match", matchHandler.HandleMatch)
	api.Get("/search", matchHandler.HandleSearch)

	api.Post("/ingest", ingestHandler.HandleIngest)
	api.Post("/ingest/upload", ingestHandler.HandleUpload)
	api.Get("/ingest/:id", ingestHandler.HandleGetJob)

	api.Get("/candidates", candidateHandler.HandleList)
	api.Get("/candidates/:id", candidateHandler.HandleGet)
	api.Delete("/candidates/:id", candidateHandler.HandleDelete)
	api.Get("/stats", candidateHandler.HandleStats)

	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"message": "Talent Match API",
			"version": "1.0.0",
			"endpoints": []string{
				"POST /api/v1/match",
				"GET /api/v1/search",
				"POST /api/v1/ingest",
				"POST /api/v1/ingest/upload",
				"GET /api/v1/ingest/:id",
				"GET /api/v1/candidates",
				"GET /api/v1/candidates/:id",
				"DELETE /api/v1/candidates/:id",
				"GET /api/v1/stats",
			},
		})
	})

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		log.Info("shutting down server")
		worker.Stop()
		if err := app.Shutdown(); err != nil {
			log.Error("server forced to shutdown", zap.Error(err))
		}
	}()

	addr := fmt.Sprintf(":%s", cfg.Server.Port)
	log.Info("server starting", zap.String("addr", addr))

	if err := app.Listen(addr); err != nil {
		log.Fatal("failed to start server", zap.Error(err))
	}
}

func initLogger(env string) *zap.Logger {
	var (
		log *zap.Logger
		err error
	)
	if env == "production" {
		log, err = zap.NewProduction()
	} else {
		log, err = zap.NewDevelopment()
	}
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	return log
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
