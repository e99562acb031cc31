package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/umtp/assist-gateway/internal/config"
	"github.com/umtp/assist-gateway/internal/database"
	"github.com/umtp/assist-gateway/internal/eventlog"
	"github.com/umtp/assist-gateway/internal/handler"
	"github.com/umtp/assist-gateway/internal/logger"
	"github.com/umtp/assist-gateway/internal/metrics"
	"github.com/umtp/assist-gateway/internal/middleware"
	"github.com/umtp/assist-gateway/internal/quizapi"
	"github.com/umtp/assist-gateway/internal/router"
	"github.com/umtp/assist-gateway/internal/service"
	"github.com/umtp/assist-gateway/internal/storage"
	"github.com/umtp/assist-gateway/internal/tracing"
	"github.com/umtp/assist-gateway/internal/validator"
	"github.com/umtp/assist-gateway/internal/worker"
)

func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	log.Info().
		Str("port", cfg.ServerPort).
		Str("mode", cfg.GinMode).
		Str("env", cfg.AppEnv).
		Str("backend", cfg.BackendURL).
		Msg("Starting UMTP assist gateway")

	// ─── Initialize Validator & Metrics ────────────────────────────────
	validator.Setup()
	metrics.Init()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ─── Tracing ───────────────────────────────────────────────────────
	shutdownTracing := tracing.Init(ctx, cfg, log)

	// ─── Connect to Redis (optional) ───────────────────────────────────
	rdb, err := database.NewRedisClient(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	if rdb != nil {
		defer rdb.Close()
	}

	// ─── Initialize Stores ─────────────────────────────────────────────
	var stores service.Stores
	var questionCache storage.KV
	// In-memory stores have nothing expiring keys for them; the sweep worker does.
	var memorySweepers []worker.Sweeper
	if rdb != nil {
		stores = service.Stores{
			Durable: storage.NewRedis(rdb, cfg.DeviceTTL),
			Session: storage.NewRedis(rdb, cfg.SessionTTL),
		}
		questionCache = storage.NewRedis(rdb, cfg.QuestionCacheTTL)
	} else {
		durable := storage.NewMemory(cfg.DeviceTTL)
		session := storage.NewMemory(cfg.SessionTTL)
		cache := storage.NewMemory(cfg.QuestionCacheTTL)
		stores = service.Stores{Durable: durable, Session: session}
		questionCache = cache
		memorySweepers = []worker.Sweeper{
			worker.SweeperFunc(durable.Sweep),
			worker.SweeperFunc(session.Sweep),
			worker.SweeperFunc(cache.Sweep),
		}
	}

	// ─── Backend Client & Event Log ────────────────────────────────────
	httpClient := quizapi.NewHTTPClient()
	backend := quizapi.New(cfg.BackendURL, httpClient)
	eventLogger := eventlog.NewLogger(cfg.BackendURL, httpClient, cfg.LogTimeout, log)
	logWorker := worker.NewLogWorker(eventLogger, cfg.LogQueueSize, cfg.LogWorkers, log)

	// ─── Initialize Services ──────────────────────────────────────────
	questionService := service.NewQuestionService(backend, questionCache, log)
	hintService := service.NewHintService(questionService, backend, logWorker, stores, service.HintOptions{
		Precheck: cfg.HintPrecheck,
		IdleTTL:  cfg.WorkflowIdleTTL,
	}, log)

	hintLimiter := middleware.NewRateLimiter(ctx, cfg.HintRatePerMinute)

	// ─── Initialize Handlers ──────────────────────────────────────────
	handlers := &router.Handlers{
		Question: handler.NewQuestionHandler(questionService, hintService),
		Hint:     handler.NewHintHandler(hintService),
		WS:       handler.NewWSHandler(hintService, hintLimiter, log, cfg.AllowedOrigins),
		System:   handler.NewSystemHandler(rdb, logWorker, log),
	}

	// ─── Start Background Workers ─────────────────────────────────────
	workerCtx, workerCancel := context.WithCancel(context.Background())
	var workers sync.WaitGroup

	sweepWorker := worker.NewSweepWorker(time.Minute, log, append([]worker.Sweeper{hintService}, memorySweepers...)...)

	workers.Add(2)
	go func() {
		defer workers.Done()
		logWorker.Start(workerCtx)
	}()
	go func() {
		defer workers.Done()
		sweepWorker.Start(workerCtx)
	}()

	// ─── Setup Router ──────────────────────────────────────────────────
	r := router.SetupRouter(handlers, hintLimiter, cfg, log)

	// ─── Create HTTP Server ────────────────────────────────────────────
	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// ─── Start Server in Goroutine ─────────────────────────────────────
	go func() {
		log.Info().Str("addr", ":"+cfg.ServerPort).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server error")
		}
	}()

	// ─── Graceful Shutdown ─────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	log.Info().Str("signal", sig.String()).Msg("Shutting down gracefully...")

	// 1. Stop accepting new HTTP requests (5s timeout).
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	// 2. Stop background workers; the log worker drains its queue.
	workerCancel()
	workers.Wait()

	// 3. Flush pending spans.
	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("Tracing shutdown error")
	}

	log.Info().Msg("Shutdown complete")
}

// init sets zerolog global defaults before main runs.
func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}
