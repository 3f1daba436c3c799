//go:build wireinject

package main

import (
	"context"

	"github.com/google/wire"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"health-companion/services/chat-gateway/internal/config"
	"health-companion/services/chat-gateway/internal/domain/chat"
	"health-companion/services/chat-gateway/internal/domain/thread"
	"health-companion/services/chat-gateway/internal/infrastructure/auth"
	"health-companion/services/chat-gateway/internal/infrastructure/database"
	"health-companion/services/chat-gateway/internal/infrastructure/dify"
	"health-companion/services/chat-gateway/internal/infrastructure/logger"
	threadrepo "health-companion/services/chat-gateway/internal/infrastructure/repository/thread"
	"health-companion/services/chat-gateway/internal/interfaces/httpserver"
	"health-companion/services/chat-gateway/internal/webhook"
	"health-companion/services/chat-gateway/internal/worker"
)

var gatewaySet = wire.NewSet(
	threadrepo.NewPostgresRepository,
	wire.Bind(new(thread.Repository), new(*threadrepo.PostgresRepository)),
	newWebhookService,
	wire.Bind(new(thread.Notifier), new(*webhook.HTTPService)),
	thread.NewService,
	newDifyClient,
	wire.Bind(new(chat.Upstream), new(*dify.Client)),
	newTaskRunner,
	chat.NewService,
)

// BuildApplication demonstrates how to assemble the chat gateway with Wire.
func BuildApplication(ctx context.Context) (*Application, error) {
	wire.Build(
		config.Load,
		logger.New,
		newDatabaseConfig,
		newGormDB,
		newAuthValidator,
		gatewaySet,
		httpserver.New,
		NewApplication,
	)
	return nil, nil
}

func newDatabaseConfig(cfg *config.Config) database.Config {
	return database.Config{
		DSN:             cfg.DatabaseURL,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		MaxOpenConns:    cfg.DBMaxOpenConns,
		ConnMaxLifetime: cfg.DBConnLifetime,
		LogLevel:        gormlogger.Warn,
	}
}

func newGormDB(ctx context.Context, cfg database.Config, log zerolog.Logger) (*gorm.DB, error) {
	db, err := database.Connect(cfg)
	if err != nil {
		return nil, err
	}
	if err := database.AutoMigrate(ctx, db, log); err != nil {
		return nil, err
	}
	return db, nil
}

func newAuthValidator(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*auth.Validator, error) {
	return auth.NewValidator(ctx, cfg, log)
}

func newDifyClient(cfg *config.Config) *dify.Client {
	return dify.NewClient(dify.Config{
		BaseURL:       cfg.DifyAPIURL,
		APIKey:        cfg.DifyAPIKey,
		Timeout:       cfg.DifyTimeout,
		StreamTimeout: cfg.StreamTimeout,
	})
}

func newTaskRunner(cfg *config.Config, log zerolog.Logger) *worker.Runner {
	return worker.NewRunner(cfg.PersistTimeout, log)
}

func newWebhookService(cfg *config.Config, log zerolog.Logger) *webhook.HTTPService {
	return webhook.NewHTTPService(cfg.ThreadWebhookURL, log)
}
