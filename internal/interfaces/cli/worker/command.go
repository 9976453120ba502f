package worker

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"confgive/internal/application/giving"
	"confgive/internal/infrastructure/config"
	"confgive/internal/infrastructure/database"
	"confgive/internal/infrastructure/metrics"
	"confgive/internal/infrastructure/queue"
	"confgive/internal/infrastructure/repository"
	"confgive/internal/shared/goroutine"
	"confgive/internal/shared/logger"
)

var env string

// NewCommand builds the standalone settlement worker process. Any number of
// worker processes may run beside the server; they all compete for jobs on
// the same Redis-backed queue.
func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Start a standalone settlement worker pool",
		RunE:  run,
	}

	cmd.Flags().StringVarP(&env, "env", "e", "development", "Environment (development, test, production)")

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
	log.Infow("starting settlement worker", "environment", env, "workers", cfg.Queue.Workers)

	if err := database.Init(&cfg.Database); err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer database.Close()

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

	opts := queue.Options{
		MaxAttempts: cfg.Queue.MaxAttempts,
		BackoffBase: time.Duration(cfg.Queue.BackoffMS) * time.Millisecond,
		Timeout:     time.Duration(cfg.Queue.TimeoutMS) * time.Millisecond,
	}
	jobQueue := queue.NewRedisQueue(redisClient, opts)

	settler := giving.NewSettler(repository.NewGivingRepository(database.Get()), log)

	pool := queue.NewPool(jobQueue, settler.Process, cfg.Queue.Workers, opts.Timeout, metrics.NewPipelineMetrics(), log)
	pool.Start(context.Background())

	goroutine.SafeGo(log, "dead-letter-observer", func() {
		for fj := range pool.Failed() {
			log.Errorw("settlement job dead-lettered, manual reconciliation required",
				"job_id", fj.ID,
				"attempts", fj.Attempts,
				"reason", fj.Reason)
		}
	})

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	log.Infow("received signal, shutting down", "signal", sig)
	pool.Stop()
	log.Info("settlement worker stopped")

	return nil
}
