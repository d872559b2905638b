package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"k8s.io/apimachinery/pkg/util/wait"

	"github.com/frahmantamala/payment-gateway/internal"
	"github.com/frahmantamala/payment-gateway/internal/core/events"
	"github.com/frahmantamala/payment-gateway/internal/idempotency"
	"github.com/frahmantamala/payment-gateway/internal/queue"
	"github.com/frahmantamala/payment-gateway/pkg/logger"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Start queue workers",
	Long:  `Start the payment, refund and webhook queue workers. Use a subcommand to run a single queue.`,
	Run: func(cmd *cobra.Command, args []string) {
		runWorkers(queue.Names...)
	},
}

var paymentWorkerCmd = &cobra.Command{
	Use:   "payment",
	Short: "Start the payment queue worker",
	Run: func(cmd *cobra.Command, args []string) {
		runWorkers(queue.Payment)
	},
}

var refundWorkerCmd = &cobra.Command{
	Use:   "refund",
	Short: "Start the refund queue worker",
	Run: func(cmd *cobra.Command, args []string) {
		runWorkers(queue.Refund)
	},
}

var webhookWorkerCmd = &cobra.Command{
	Use:   "webhook",
	Short: "Start the webhook delivery worker",
	Run: func(cmd *cobra.Command, args []string) {
		runWorkers(queue.Webhook)
	},
}

var (
	concurrencyOverride int
	purgeInterval       time.Duration
)

func runWorkers(queues ...string) {
	if err := startWorkers(queues); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}

func startWorkers(queues []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	lg := logger.LoggerWrapper()

	if concurrencyOverride > 0 {
		cfg.Queue.Concurrency.Payment = concurrencyOverride
		cfg.Queue.Concurrency.Refund = concurrencyOverride
		cfg.Queue.Concurrency.Webhook = concurrencyOverride
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	infra, err := initInfra(ctx, cfg, lg)
	if err != nil {
		return err
	}
	defer infra.Close()

	services := newServices(cfg, infra.Gorm, infra.Queue, lg)
	consumer, err := newWorkerConsumer(cfg, infra, services, queues, lg)
	if err != nil {
		return err
	}

	go purgeIdempotencyKeys(ctx, services.Idempotency, purgeInterval, lg)

	lg.Info("workers running, press Ctrl+C to stop", "queues", queues)
	if err := consumer.Run(ctx); err != nil {
		lg.Warn("worker shutdown incomplete", "error", err)
		return nil
	}
	lg.Info("worker shutdown complete")
	return nil
}

// newWorkerConsumer builds a consumer over infra's backend with handlers for queues.
func newWorkerConsumer(cfg *internal.Config, infra *Infra, services *Services, queues []string, lg *slog.Logger) (*queue.Consumer, error) {
	bus := events.NewEventBus(lg)
	subscribeJobLogging(bus, lg)

	consumer := queue.NewConsumer(infra.Backend, consumerOptions(cfg.Queue), bus, lg)
	if err := services.registerWorkers(consumer, cfg, infra.Queue, queues, lg); err != nil {
		return nil, err
	}
	return consumer, nil
}

// purgeIdempotencyKeys deletes expired idempotency records until ctx is done.
func purgeIdempotencyKeys(ctx context.Context, svc *idempotency.Service, every time.Duration, lg *slog.Logger) {
	if every <= 0 {
		return
	}
	wait.UntilWithContext(ctx, func(ctx context.Context) {
		n, err := svc.PurgeExpired(ctx)
		if err != nil {
			lg.Warn("idempotency purge failed", "error", err)
			return
		}
		if n > 0 {
			lg.Info("purged expired idempotency keys", "count", n)
		}
	}, every)
}

func init() {
	workerCmd.PersistentFlags().IntVar(&concurrencyOverride, "concurrency", 0, "Workers per queue (overrides config)")
	workerCmd.PersistentFlags().DurationVar(&purgeInterval, "purge-interval", time.Hour, "How often expired idempotency keys are deleted, 0 disables")

	workerCmd.AddCommand(paymentWorkerCmd)
	workerCmd.AddCommand(refundWorkerCmd)
	workerCmd.AddCommand(webhookWorkerCmd)

	rootCmd.AddCommand(workerCmd)
}
