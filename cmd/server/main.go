package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"codequest/internal/api"
	"codequest/internal/app/service"
	"codequest/internal/app/worker"
	"codequest/internal/common/security"
	"codequest/internal/domain/repository"
	"codequest/internal/executor"
	"codequest/internal/platform/config"
	"codequest/internal/platform/database"
	"codequest/internal/platform/logger"
	"codequest/internal/platform/queue"
	"codequest/internal/runner"
)

func main() {
	config.Load()

	log := logger.New()
	defer log.Sync()

	security.InitJWT()

	database.Connect()
	defer database.Close()
	log.Info("database connected")

	queue.ConnectRedis()
	defer queue.CloseRedis()
	log.Info("redis connected")

	// Repositories
	userRepo := repository.NewPgUserRepository(database.DB)
	challengeRepo := repository.NewPgChallengeRepository(database.DB)
	submissionRepo := repository.NewPgSubmissionRepository(database.DB)
	progressRepo := repository.NewPgProgressRepository(database.DB)

	// Sandboxed executor and its bounded pool
	catalog, err := executor.LoadCatalog(config.AppConfig.LanguageCatalog)
	if err != nil {
		log.Fatal("failed to load language catalog", zap.Error(err))
	}
	exec := executor.New(catalog, config.AppConfig.ExecScratchDir, config.AppConfig.CompileTimeMs, log)
	pool := executor.NewPool(exec, config.AppConfig.ExecParallelism, config.AppConfig.ExecQueueDepth, log)
	pool.Start()
	defer pool.Shutdown()

	// Grading pipeline: runner on top of the pool, verdict reduction inside
	caseRunner := runner.New(pool)
	grading := service.NewGradingService(caseRunner, config.AppConfig.OutputLimitBytes)

	// Services
	authService := service.NewAuthService(userRepo, log)
	challengeService := service.NewChallengeService(challengeRepo, grading, database.DB, log)
	testGenService := service.NewTestGenService(
		config.AppConfig.TestGenEndpoint,
		time.Duration(config.AppConfig.TestGenTimeoutSec)*time.Second,
		log,
	)
	sessionService := service.NewSessionService(
		challengeRepo, submissionRepo, progressRepo,
		grading, testGenService, pool,
		database.DB, queue.RDB,
		service.SessionConfig{
			QueueName:       config.AppConfig.EvalQueueName,
			LockKeyPrefix:   config.AppConfig.EvalLockKeyPrefix,
			LockTTLSeconds:  config.AppConfig.EvalLockTTLSeconds,
			EvalWaitSeconds: config.AppConfig.EvalWaitSeconds,
		},
		log,
	)

	// Evaluation worker runs in-process so results reach waiting callers
	evalWorker := worker.NewEvalWorker(queue.RDB, config.AppConfig.EvalQueueName, sessionService, log)
	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()
	go evalWorker.Start(workerCtx)

	router := api.NewRouter(authService, challengeService, sessionService)

	server := &http.Server{
		Addr:         ":" + config.AppConfig.APIPort,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 3 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	go func() {
		log.Info("server starting", zap.String("port", config.AppConfig.APIPort))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("server failed", zap.Error(err))
		}
	}()

	<-stop

	log.Info("shutting down")
	workerCancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatal("server shutdown failed", zap.Error(err))
	}
	log.Info("stopped gracefully")
}
