package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/joho/godotenv"

	"careerpilot/internal/config"
	"careerpilot/internal/database"
	"careerpilot/internal/handlers"
	"careerpilot/internal/jobs"
	"careerpilot/internal/logging"
	"careerpilot/internal/services"
	"careerpilot/internal/tools"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	logging.Init()
	cfg := config.Load()

	// Stores
	mongoDB, err := database.NewMongoDB(cfg.MongoURI)
	if err != nil {
		log.Fatalf("❌ MongoDB connection failed: %v", err)
	}
	initCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := mongoDB.Initialize(initCtx); err != nil {
		cancel()
		log.Fatalf("❌ MongoDB initialization failed: %v", err)
	}
	cancel()

	db, err := database.New(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("❌ Job database connection failed: %v", err)
	}
	if err := db.Initialize(); err != nil {
		log.Fatalf("❌ Job database initialization failed: %v", err)
	}

	// Optional Redis publisher; the engine runs without it
	pubsub, err := services.NewPubSubService(cfg.RedisURL)
	if err != nil {
		log.Printf("⚠️ Redis unavailable, operational events disabled: %v", err)
	}
	var events services.EventPublisher
	if pubsub != nil {
		events = pubsub
	}

	// Services
	provider := services.NewProviderService(cfg)
	threadMemory := services.NewThreadMemoryService(mongoDB)
	profileMemory := services.NewProfileMemoryService(mongoDB)
	checkpoints := services.NewCheckpointService(mongoDB)
	documents := services.NewDocumentService(mongoDB)
	jobStore := services.NewJobService(db)
	contextBuilder := services.NewContextBuilder(profileMemory)

	// Tools
	registry := tools.NewRegistry()
	for _, tool := range []*tools.Tool{
		tools.NewSearchJobsTool(jobStore, profileMemory, events),
		tools.NewAnalyzeDocumentTool(provider, documents, profileMemory, events),
		tools.NewInterviewQuestionsTool(provider, profileMemory, events),
	} {
		if err := registry.Register(tool); err != nil {
			log.Fatalf("❌ Tool registration failed: %v", err)
		}
	}

	orchestrator := services.NewOrchestrator(
		provider, threadMemory, checkpoints, contextBuilder, registry, events,
		cfg.MaxHops, cfg.ToolTimeout,
	)

	// Retention cleanup on a schedule, off the request path
	cleanup := jobs.NewCleanupJob(mongoDB, events)
	scheduler, err := jobs.NewScheduler(cleanup, cfg.CleanupCron)
	if err != nil {
		log.Fatalf("❌ Scheduler setup failed: %v", err)
	}
	scheduler.Start()

	// HTTP surface
	app := fiber.New(fiber.Config{
		AppName:      "careerpilot",
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
	})

	app.Use(recover.New())
	app.Use(logger.New())

	prometheus := fiberprometheus.New("careerpilot")
	prometheus.RegisterAt(app, "/metrics")
	app.Use(prometheus.Middleware)

	assistantHandler := handlers.NewAssistantHandler(orchestrator, threadMemory, contextBuilder, cleanup)
	healthHandler := handlers.NewHealthHandler(mongoDB, db)

	app.Get("/health", healthHandler.Health)
	api := app.Group("/api/assistant")
	api.Post("/chat", assistantHandler.Chat)
	api.Get("/context/:userID", assistantHandler.UserContext)
	api.Post("/cleanup", assistantHandler.RunCleanup)

	// Graceful shutdown
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit

		log.Println("🛑 Shutting down...")
		if err := scheduler.Stop(); err != nil {
			log.Printf("⚠️ Scheduler shutdown: %v", err)
		}
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.Printf("⚠️ HTTP shutdown: %v", err)
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := mongoDB.Close(ctx); err != nil {
			log.Printf("⚠️ MongoDB close: %v", err)
		}
		if err := db.Close(); err != nil {
			log.Printf("⚠️ Database close: %v", err)
		}
		if err := pubsub.Close(); err != nil {
			log.Printf("⚠️ Redis close: %v", err)
		}
	}()

	log.Printf("🚀 careerpilot listening on :%s", cfg.Port)
	if err := app.Listen(":" + cfg.Port); err != nil {
		log.Fatalf("❌ Server failed: %v", err)
	}
}
