package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/frahmantamala/payment-gateway/internal/queue"
)

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Inspect and operate the job queues",
}

var queueStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print per-queue job counts",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withQueueClient(func(ctx context.Context, client *queue.Client) error {
			stats, err := client.Stats(ctx, queue.Names...)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "QUEUE\tWAITING\tACTIVE\tDELAYED\tCOMPLETED\tDEAD")
			for _, name := range queue.Names {
				s := stats[name]
				fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%d\t%d\n", name, s.Waiting, s.Active, s.Delayed, s.Completed, s.Dead)
			}
			return w.Flush()
		})
	},
}

var queueRetryDeadCmd = &cobra.Command{
	Use:       "retry-dead <queue>",
	Short:     "Move dead jobs back to waiting with their attempts reset",
	Args:      cobra.ExactArgs(1),
	ValidArgs: queue.Names,
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]
		if !isQueueName(name) {
			return fmt.Errorf("unknown queue %q", name)
		}
		return withQueueClient(func(ctx context.Context, client *queue.Client) error {
			n, err := client.RetryDead(ctx, name)
			if err != nil {
				return err
			}
			fmt.Printf("requeued %d dead %s jobs\n", n, name)
			return nil
		})
	},
}

func withQueueClient(fn func(ctx context.Context, client *queue.Client) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if cfg.Queue.Driver == "memory" {
		return fmt.Errorf("queue commands need a shared backend, driver is %q", cfg.Queue.Driver)
	}

	ctx := context.Background()
	backend, err := newBackend(ctx, cfg)
	if err != nil {
		return err
	}
	defer backend.Close()

	return fn(ctx, queue.NewClient(backend, cfg.Queue.MaxAttempts))
}

func isQueueName(name string) bool {
	for _, n := range queue.Names {
		if n == name {
			return true
		}
	}
	return false
}

func init() {
	queueCmd.AddCommand(queueStatsCmd)
	queueCmd.AddCommand(queueRetryDeadCmd)
	rootCmd.AddCommand(queueCmd)
}
