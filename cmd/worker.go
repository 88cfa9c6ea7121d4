package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"seatalloc/internal/config"
	"seatalloc/internal/engine"
	"seatalloc/internal/infrastructure/database"
	"seatalloc/internal/infrastructure/dispatch"
	"seatalloc/internal/infrastructure/policy"
	"seatalloc/internal/infrastructure/repository"
	interfaces "seatalloc/internal/interfaces/infrastructure"
	"seatalloc/pkg/logger"

	"github.com/spf13/cobra"
)

var workerCount int

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Start the allocation worker daemon",
	Long: `Start the allocation worker daemon that processes refill and
mirror-sync tasks. Workers pull tasks from the configured dispatch backend
(in-process channels or Redis) and run allocation passes against the
database.`,
	Run: func(cmd *cobra.Command, args []string) {
		startWorkerDaemon()
	},
}

func init() {
	rootCmd.AddCommand(workerCmd)
	workerCmd.Flags().IntVarP(&workerCount, "workers", "w", 0, "Number of workers per task kind (0 = from config)")
}

func startWorkerDaemon() {
	cfg := config.Get()

	workers := cfg.Dispatch.Workers
	if workerCount > 0 {
		workers = workerCount
	}

	db := connectDatabase()

	if err := database.HealthCheck(db); err != nil {
		logger.Error("Database health check failed: %v", err)
		os.Exit(1)
	}

	store := repository.NewGormStore(db)

	var dispatcher interfaces.DispatchService
	switch cfg.Dispatch.Backend {
	case "redis":
		dispatcher = dispatch.NewRedisDispatcher(&cfg.Cache, workers)
		logger.Info("Using Redis dispatch backend at %s:%d", cfg.Cache.Host, cfg.Cache.Port)
	default:
		dispatcher = dispatch.NewMemoryDispatcher(cfg.Dispatch.BufferSize, workers)
		logger.Info("Using in-memory dispatch backend")
	}

	alloc := engine.NewEngine(
		store,
		policy.NewTermWindowOracle(store),
		policy.NewTermBudgetPolicy(store),
		dispatcher,
		nil,
	)

	dispatcher.SetAllocator(alloc)
	dispatcher.StartWorkers()

	logger.Info("Allocation worker daemon started with %d workers per task kind", workers)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down allocation worker daemon...")
	dispatcher.StopWorkers()
	logger.Info("Allocation worker daemon exited")
}
