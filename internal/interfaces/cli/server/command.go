package server

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"confgive/internal/application/giving"
	"confgive/internal/infrastructure/config"
	"confgive/internal/infrastructure/database"
	"confgive/internal/infrastructure/email"
	"confgive/internal/infrastructure/gateway"
	"confgive/internal/infrastructure/metrics"
	"confgive/internal/infrastructure/migration"
	"confgive/internal/infrastructure/queue"
	"confgive/internal/infrastructure/repository"
	"confgive/internal/interfaces/http/handlers"
	"confgive/internal/interfaces/http/middleware"
	"confgive/internal/interfaces/http/routes"
	"confgive/internal/shared/biztime"
	"confgive/internal/shared/goroutine"
	"confgive/internal/shared/logger"
)

var (
	env         string
	autoMigrate bool
)

func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "server",
		Short: "Start the HTTP server with embedded settlement workers",
		RunE:  run,
	}

	cmd.Flags().StringVarP(&env, "env", "e", "development", "Environment (development, test, production)")
	cmd.Flags().BoolVar(&autoMigrate, "auto-migrate", false, "Run database migrations on startup")

	return cmd
}

func run(cmd *cobra.Command, args []string) error {
	if envVar := os.Getenv("ENV"); envVar != "" {
		env = envVar
	}

	cfg, err := config.Load(env)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := logger.Init(&cfg.Logger); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	log := logger.NewLogger()
	log.Infow("starting confgive server", "environment", env)

	if err := biztime.Init(cfg.Business.Timezone); err != nil {
		return err
	}

	if err := database.Init(&cfg.Database); err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer database.Close()

	if autoMigrate {
		if err := migration.Run(database.Get()); err != nil {
			return err
		}
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.GetAddr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()

	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		return fmt.Errorf("failed to connect to redis: %w", err)
	}
	log.Infow("redis connection established", "address", cfg.Redis.GetAddr())

	m := metrics.NewPipelineMetrics()

	opts := queue.Options{
		MaxAttempts: cfg.Queue.MaxAttempts,
		BackoffBase: time.Duration(cfg.Queue.BackoffMS) * time.Millisecond,
		Timeout:     time.Duration(cfg.Queue.TimeoutMS) * time.Millisecond,
	}
	jobQueue := queue.NewRedisQueue(redisClient, opts)

	givingRepo := repository.NewGivingRepository(database.Get())
	settler := giving.NewSettler(givingRepo, log)

	pool := queue.NewPool(jobQueue, settler.Process, cfg.Queue.Workers, opts.Timeout, m, log)
	pool.Start(context.Background())
	observeDeadLetters(pool, log)

	sender, err := email.NewSender(cfg.Email, log)
	if err != nil {
		return fmt.Errorf("failed to initialize email sender: %w", err)
	}

	tasks := goroutine.NewRunner(log, 8)

	chargeService := giving.NewService(
		gateway.NewClient(cfg.Gateway, log),
		jobQueue,
		sender,
		tasks,
		m,
		cfg.Gateway.Currency,
		cfg.Gateway.Env(),
		log,
	)

	gin.SetMode(mapEnvToGinMode(cfg.Server.Mode))
	gin.DefaultWriter = io.Discard

	engine := gin.New()
	engine.Use(
		middleware.Recovery(),
		middleware.Logger(log),
		middleware.CORS(cfg.Server.AllowedOrigins),
	)

	routes.SetupGivingRoutes(engine, &routes.GivingRouteConfig{
		GivingHandler: handlers.NewGivingHandler(chargeService, givingRepo, cfg.Admin.GoogleSecret, log),
	})

	srv := &http.Server{
		Addr:         cfg.Server.GetAddr(),
		Handler:      engine,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Infow("server starting", "address", cfg.Server.GetAddr())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("failed to start server", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Errorw("server forced to shutdown", "error", err)
	}

	// Let in-flight settlement attempts and pending emails finish before
	// the process exits.
	pool.Stop()
	tasks.Close()

	log.Info("server exited gracefully")
	return nil
}

// observeDeadLetters surfaces terminally failed jobs to the operator. A dead
// letter means money was charged but the record was never persisted; it must
// be reconciled by hand from the queue's dead list.
func observeDeadLetters(pool *queue.Pool, log logger.Interface) {
	goroutine.SafeGo(log, "dead-letter-observer", func() {
		for fj := range pool.Failed() {
			log.Errorw("settlement job dead-lettered, manual reconciliation required",
				"job_id", fj.ID,
				"attempts", fj.Attempts,
				"reason", fj.Reason)
		}
	})
}

func mapEnvToGinMode(env string) string {
	switch env {
	case "production":
		return gin.ReleaseMode
	case "test":
		return gin.TestMode
	default:
		return gin.DebugMode
	}
}
