package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/localbook/backend/internal/acquire"
	"github.com/localbook/backend/internal/api/handlers"
	"github.com/localbook/backend/internal/broadcast"
	redisCache "github.com/localbook/backend/internal/cache/redis"
	"github.com/localbook/backend/internal/chunk"
	"github.com/localbook/backend/internal/extract"
	"github.com/localbook/backend/internal/ingest"
	"github.com/localbook/backend/internal/llm"
	"github.com/localbook/backend/internal/metrics"
	"github.com/localbook/backend/internal/query"
	"github.com/localbook/backend/internal/scheduler"
	"github.com/localbook/backend/internal/storage/sqlite"
	"github.com/localbook/backend/internal/summary"
	"github.com/localbook/backend/internal/vector/milvus"
	"github.com/localbook/backend/pkg/config"
	appLogger "github.com/localbook/backend/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	err = appLogger.Init(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.OutputPath)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer appLogger.Sync()

	appLogger.Info("Starting Localbook API Server")
	metrics.Init()

	sqliteClient, err := sqlite.NewClient(cfg.SQLite.Path)
	if err != nil {
		appLogger.Fatal("Failed to create SQLite client", zap.Error(err))
	}
	defer sqliteClient.Close()

	if err := sqliteClient.InitSchema(); err != nil {
		appLogger.Fatal("Failed to initialize schema", zap.Error(err))
	}

	milvusClient, err := milvus.NewClient(
		cfg.Milvus.Endpoint,
		cfg.Milvus.CollectionName,
		cfg.Milvus.VectorDim,
	)
	if err != nil {
		appLogger.Fatal("Failed to create Milvus client", zap.Error(err))
	}
	defer milvusClient.Close()

	if err := milvusClient.EnsureCollection(context.Background()); err != nil {
		appLogger.Fatal("Failed to ensure collection", zap.Error(err))
	}

	var cacheClient *redisCache.Client
	if cfg.Redis.Enabled {
		cacheClient, err = redisCache.NewClient(cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			appLogger.Warn("Redis unavailable, running without cache", zap.Error(err))
			cacheClient = nil
		} else {
			defer cacheClient.Close()
		}
	}

	llmClient := llm.NewClient(llm.Config{
		BaseURL:        cfg.LLM.BaseURL,
		APIKey:         cfg.LLM.APIKey,
		Model:          cfg.LLM.Model,
		EmbeddingModel: cfg.LLM.EmbeddingModel,
		Temperature:    cfg.LLM.Temperature,
		MaxTokens:      cfg.LLM.MaxTokens,
		Timeout:        time.Duration(cfg.LLM.TimeoutSec) * time.Second,
	})

	splitter, err := chunk.NewSplitter(cfg.Ingest.ChunkSize, cfg.Ingest.ChunkOverlap)
	if err != nil {
		appLogger.Fatal("Invalid chunking configuration", zap.Error(err))
	}

	extractors := extract.NewRegistry(extract.Config{
		TranscriberURL: cfg.Extract.TranscriberURL,
		OCRURL:         cfg.Extract.OCRURL,
		Timeout:        time.Duration(cfg.Extract.TimeoutSec) * time.Second,
	})

	downloader := acquire.NewDownloader(time.Duration(cfg.Ingest.DownloadTimeoutSec) * time.Second)
	broadcaster := broadcast.New()
	sched := scheduler.New(cfg.Scheduler.MaxConcurrentJobs)

	pipeline := ingest.NewPipeline(
		sqliteClient,
		downloader,
		extractors,
		extract.DetectKind,
		llmClient,
		milvusClient,
		splitter,
		broadcaster,
		cacheClient,
		ingest.Config{
			UploadsDir:   cfg.Ingest.UploadsDir(),
			ProcessedDir: cfg.Ingest.ProcessedDir(),
		},
	)

	queryEngine := query.NewEngine(
		sqliteClient,
		llmClient,
		milvusClient,
		llmClient,
		cacheClient,
		query.Config{
			TopK:     cfg.Ingest.TopK,
			CacheTTL: time.Duration(cfg.Redis.TTLSec) * time.Second,
		},
	)

	ttsClient := summary.NewTTSClient(cfg.Extract.TTSURL, time.Duration(cfg.Extract.TimeoutSec)*time.Second)
	generator := summary.NewGenerator(sqliteClient, llmClient, ttsClient, broadcaster, summary.Config{
		ExportsDir: cfg.Ingest.ExportsDir(),
	})

	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    cfg.Server.BodyLimit,
	})

	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET, POST, PUT, DELETE, OPTIONS",
	}))

	sourceHandler := handlers.NewSourceHandler(sqliteClient, pipeline, sched, cfg.Ingest.UploadsDir())
	chatHandler := handlers.NewChatHandler(queryEngine, sqliteClient)
	summaryHandler := handlers.NewSummaryHandler(generator, sched)
	statusHandler := handlers.NewStatusSocketHandler(sqliteClient, broadcaster)

	downloadHandler, err := handlers.NewDownloadHandler(cfg.Ingest.ExportsDir())
	if err != nil {
		appLogger.Fatal("Failed to resolve exports directory", zap.Error(err))
	}

	api := app.Group("/api/v1")

	api.Post("/sources/upload", sourceHandler.UploadSource)
	api.Post("/sources/ingest", sourceHandler.IngestURL)
	api.Get("/sources", sourceHandler.ListSources)
	api.Get("/sources/:id", sourceHandler.GetSource)

	api.Post("/chat", chatHandler.AskQuestion)
	api.Post("/conversations", chatHandler.CreateConversation)
	api.Get("/conversations/:id", chatHandler.GetConversation)

	api.Post("/summaries", summaryHandler.RequestSummary)
	api.Get("/exports/:filename", downloadHandler.DownloadExport)

	api.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "healthy",
			"time":   time.Now().Unix(),
		})
	})

	app.Get("/metrics", metrics.MetricsHandler())

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/status/:id", websocket.New(statusHandler.HandleConnection))

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	appLogger.Info("Server starting", zap.String("address", addr))

	go func() {
		if err := app.Listen(addr); err != nil {
			appLogger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	appLogger.Info("Server shutting down gracefully...")
	app.Shutdown()
	sched.Shutdown()
	appLogger.Info("Server stopped")
}
