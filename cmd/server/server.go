package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	gormlogger "gorm.io/gorm/logger"

	"health-companion/services/chat-gateway/internal/config"
	"health-companion/services/chat-gateway/internal/domain/chat"
	"health-companion/services/chat-gateway/internal/domain/thread"
	"health-companion/services/chat-gateway/internal/infrastructure/auth"
	"health-companion/services/chat-gateway/internal/infrastructure/database"
	"health-companion/services/chat-gateway/internal/infrastructure/dify"
	"health-companion/services/chat-gateway/internal/infrastructure/logger"
	"health-companion/services/chat-gateway/internal/infrastructure/observability"
	threadrepo "health-companion/services/chat-gateway/internal/infrastructure/repository/thread"
	"health-companion/services/chat-gateway/internal/interfaces/httpserver"
	"health-companion/services/chat-gateway/internal/webhook"
	"health-companion/services/chat-gateway/internal/worker"
)

// @title Chat Gateway
// @version 1.0
// @description Relays streaming chat turns to the upstream AI backend and maintains per-user thread records.
// @BasePath /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
type Application struct {
	httpServer *httpserver.HTTPServer
	tasks      *worker.Runner
	log        zerolog.Logger
}

func NewApplication(httpServer *httpserver.HTTPServer, tasks *worker.Runner, log zerolog.Logger) *Application {
	return &Application{
		httpServer: httpServer,
		tasks:      tasks,
		log:        log,
	}
}

func (a *Application) Start(ctx context.Context) error {
	defer a.tasks.Drain()
	return a.httpServer.Run(ctx)
}

func main() {
	loadEnvFiles()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	log := logger.New(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := observability.Setup(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("initialize observability")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("shutdown telemetry")
		}
	}()

	db, err := database.Connect(database.Config{
		DSN:             cfg.DatabaseURL,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		MaxOpenConns:    cfg.DBMaxOpenConns,
		ConnMaxLifetime: cfg.DBConnLifetime,
		LogLevel:        gormlogger.Warn,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("connect database")
	}

	if err := database.AutoMigrate(ctx, db, log); err != nil {
		log.Fatal().Err(err).Msg("migrate database")
	}

	authValidator, err := auth.NewValidator(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("initialize auth validator")
	}

	threadRepository := threadrepo.NewPostgresRepository(db)
	notifier := webhook.NewHTTPService(cfg.ThreadWebhookURL, log)
	threadService := thread.NewService(threadRepository, notifier, log)

	tasks := worker.NewRunner(cfg.PersistTimeout, log)

	difyClient := dify.NewClient(dify.Config{
		BaseURL:       cfg.DifyAPIURL,
		APIKey:        cfg.DifyAPIKey,
		Timeout:       cfg.DifyTimeout,
		StreamTimeout: cfg.StreamTimeout,
	})
	chatService := chat.NewService(difyClient, threadService, tasks, log)

	httpServer := httpserver.New(cfg, log, chatService, threadService, authValidator)
	app := NewApplication(httpServer, tasks, log)

	if err := app.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("application stopped with error")
	}

	log.Info().Msg("application exited cleanly")
}

func loadEnvFiles() {
	paths := []string{".env", "../.env"}
	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Overload(path); err != nil {
				fmt.Fprintf(os.Stderr, "warning: failed to load %s: %v\n", path, err)
			}
		}
	}
}
