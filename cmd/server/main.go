package main

import (
	"context"
	"log"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	apiHandler "github.com/fastygo/tasks/api/handler"
	"github.com/fastygo/tasks/internal/config"
	"github.com/fastygo/tasks/internal/infrastructure/monitor"
	pgInfra "github.com/fastygo/tasks/internal/infrastructure/postgres"
	"github.com/fastygo/tasks/internal/infrastructure/storage"
	"github.com/fastygo/tasks/internal/router"
	"github.com/fastygo/tasks/internal/services/lifecycle"
	"github.com/fastygo/tasks/pkg/httpcontext"
	"github.com/fastygo/tasks/pkg/logger"
	taskUC "github.com/fastygo/tasks/usecase/task"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	zapLogger, err := logger.New(logger.Config{
		Level:    cfg.Logger.Level,
		Encoding: cfg.Logger.Encoding,
	})
	if err != nil {
		log.Fatalf("logger error: %v", err)
	}
	defer zapLogger.Sync()

	zapLogger = zapLogger.With(zap.String("app", cfg.AppName), zap.String("env", cfg.Environment))
	if cfg.TestMode {
		zapLogger.Info("test mode enabled", zap.String("database_url", cfg.Database.URL))
	}

	manager := lifecycle.New(cfg.Context.ShutdownTimeout, zapLogger)
	appCtx, cancel := manager.SignalContext(context.Background())
	defer cancel()

	if err := pgInfra.RunMigrations(cfg, zapLogger); err != nil {
		zapLogger.Fatal("migrations failed", zap.Error(err))
	}

	store, err := storage.Open(appCtx, cfg, zapLogger)
	if err != nil {
		zapLogger.Fatal("task store unavailable", zap.Error(err))
	}
	manager.Register("storage", func(ctx context.Context) error {
		return store.Close()
	})

	mon := monitor.New(store.Database, store.Cache, cfg.Monitor.Interval, zapLogger)
	if err := mon.Start(appCtx); err != nil {
		zapLogger.Fatal("monitor failed to start", zap.Error(err))
	}
	manager.Register("monitor", func(ctx context.Context) error {
		mon.Stop(ctx)
		return nil
	})

	taskUseCase := taskUC.New(store.Tasks, zapLogger)
	ctxAdapter := httpcontext.NewAdapter(cfg.Context.RequestTimeout)

	handlers := router.Handlers{
		Task:   apiHandler.NewTaskHandler(taskUseCase, ctxAdapter, zapLogger, apiHandler.Options{StrictNotFound: cfg.API.StrictNotFound}),
		Health: apiHandler.NewHealthHandler(mon, ctxAdapter, zapLogger),
	}
	if cfg.JWT.Secret != "" {
		zapLogger.Info("bearer authentication enabled for /api routes")
	}

	server := &fasthttp.Server{
		Handler:      router.New(handlers, router.Options{AuthSecret: cfg.JWT.Secret}, zapLogger),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
		Name:         cfg.AppName,
	}

	go func() {
		zapLogger.Info("server started",
			zap.String("address", cfg.Address()),
			zap.String("store", store.Driver),
			zap.Bool("cache", store.Cache != nil))
		if err := server.ListenAndServe(cfg.Address()); err != nil {
			zapLogger.Error("server stopped", zap.Error(err))
			cancel()
		}
	}()

	manager.Register("http_server", func(ctx context.Context) error {
		return server.ShutdownWithContext(ctx)
	})

	<-appCtx.Done()

	if err := manager.Shutdown(context.Background()); err != nil {
		zapLogger.Error("graceful shutdown error", zap.Error(err))
	}
}
