// Montage Server — API и orchestrator в одном процессе.
//
// Сервер:
//   - Обслуживает HTTP API (каталог, pipelines, проекты)
//   - Выполняет шаги проектов строго по возрастанию позиции
//   - Останавливается на чекпоинтах и ждёт одобрения оператора
//   - Публикует события жизненного цикла в RabbitMQ
//   - Выгружает крупные результаты шагов в object storage
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shaiso/Montage/internal/api"
	"github.com/shaiso/Montage/internal/artifact"
	"github.com/shaiso/Montage/internal/mq"
	"github.com/shaiso/Montage/internal/orchestrator"
	"github.com/shaiso/Montage/internal/repo"
	"github.com/shaiso/Montage/internal/telemetry"
	"github.com/shaiso/Montage/internal/wiring"
)

var startTime = time.Now()

func main() {
	// Инициализируем structured logging
	logger := telemetry.SetupLogger()
	logger.Info("starting montage-server")

	// graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// DB pool
	pool, err := repo.NewPool(ctx)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	logger.Info("database connected")

	// Создаём репозитории
	catalogRepo := repo.NewCatalogRepo(pool)
	pipelineRepo := repo.NewPipelineRepo(pool)
	connRepo := repo.NewConnectionRepo(pool)
	projectRepo := repo.NewProjectRepo(pool)
	stepRunRepo := repo.NewStepRunRepo(pool)
	logRepo := repo.NewLogRepo(pool)

	// RabbitMQ — опциональная интеграция: без брокера события
	// остаются только в журнале проектов.
	var publisher *mq.Publisher
	mqConn, err := mq.NewConnection(mq.DefaultURL(), logger)
	if err != nil {
		logger.Warn("RabbitMQ not available, lifecycle events disabled", "error", err)
	} else {
		defer mqConn.Close()
		logger.Info("RabbitMQ connected")

		if err := mq.SetupTopology(ctx, mqConn); err != nil {
			logger.Warn("failed to setup topology", "error", err)
		}

		publisher = mq.NewPublisher(mqConn, logger)
	}

	// Object storage — тоже опциональная: без S3 крупные результаты
	// хранятся inline в БД.
	store, err := artifact.NewStoreFromEnv(ctx)
	if err != nil {
		logger.Warn("object storage not available, results stay inline", "error", err)
		store = nil
	}

	// Создаём orchestrator
	orchCfg := orchestrator.Config{
		Projects:    projectRepo,
		StepRuns:    stepRunRepo,
		Pipelines:   pipelineRepo,
		Connections: connRepo,
		Logs:        logRepo,
		Logger:      logger,
	}
	// nil-значения конкретных типов не заворачиваем в интерфейсы.
	if publisher != nil {
		orchCfg.Publisher = publisher
	}
	if store != nil {
		orchCfg.Artifacts = store
	}
	if v := os.Getenv("MAX_CONCURRENT_PROJECTS"); v != "" {
		fmt.Sscanf(v, "%d", &orchCfg.MaxConcurrent)
	}

	orch := orchestrator.New(orchCfg)
	if err := orch.Start(ctx); err != nil {
		logger.Error("failed to start orchestrator", "error", err)
		os.Exit(1)
	}

	// API handler
	handler := api.NewHandler(api.Config{
		CatalogRepo:  catalogRepo,
		PipelineRepo: pipelineRepo,
		ConnRepo:     connRepo,
		ProjectRepo:  projectRepo,
		StepRunRepo:  stepRunRepo,
		LogRepo:      logRepo,
		Orchestrator: orch,
		Wiring:       wiring.NewEngine(connRepo, logger),
		Logger:       logger,
	})

	mux := http.NewServeMux()

	// Health и metrics
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "ok %s", time.Since(startTime))
	})
	mux.Handle("/metrics", promhttp.Handler())

	// Регистрируем API маршруты
	handler.RegisterRoutes(mux)

	addr := ":8080"
	if v := os.Getenv("API_PORT"); v != "" {
		addr = ":" + v
	}

	server := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	go func() {
		logger.Info("listening", "addr", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			cancel()
		}
	}()

	// Ожидаем сигнал завершения
	<-ctx.Done()
	logger.Info("shutting down")

	// Graceful shutdown с таймаутом 10 секунд
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}

	// Останавливаем orchestrator после API: операторские запросы
	// перестали приходить, активные проекты можно останавливать.
	orch.Stop()

	logger.Info("montage-server stopped")
}
