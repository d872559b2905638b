package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi"
	"github.com/spf13/cobra"

	"github.com/frahmantamala/payment-gateway/api"
	"github.com/frahmantamala/payment-gateway/internal"
	"github.com/frahmantamala/payment-gateway/internal/queue"
	"github.com/frahmantamala/payment-gateway/internal/transport"
	"github.com/frahmantamala/payment-gateway/internal/transport/middleware"
	"github.com/frahmantamala/payment-gateway/internal/transport/rest"
	"github.com/frahmantamala/payment-gateway/pkg/logger"
)

var httpServerCmd = &cobra.Command{
	Use:   "server",
	Short: "Start HTTP server",
	Long:  `Start the HTTP server to handle API requests`,
	Run: func(cmd *cobra.Command, args []string) {
		if err := startHTTPServer(); err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			os.Exit(1)
		}
	},
}

func startHTTPServer() error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	lg := logger.LoggerWrapper()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	infra, err := initInfra(ctx, cfg, lg)
	if err != nil {
		return err
	}
	defer infra.Close()

	services := newServices(cfg, infra.Gorm, infra.Queue, lg)
	if cfg.Seed.TestMerchant {
		if _, err := services.Auth.SeedTestMerchant(ctx); err != nil {
			lg.Error("failed to seed test merchant", "error", err)
		}
	}

	router, err := newRouter(cfg.Server.AllowedOrigins, cfg.Server.ValidateRequests, services, infra, lg)
	if err != nil {
		return err
	}

	workerCtx, stopWorkers := context.WithCancel(ctx)
	defer stopWorkers()
	workersDone, err := startInProcessWorkers(workerCtx, cfg, infra, services, lg)
	if err != nil {
		return err
	}

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	server := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}

	serverErrChan := make(chan error, 1)
	go func() {
		lg.Info("starting http server", "address", addr, "queue_driver", cfg.Queue.Driver)
		serverErrChan <- server.ListenAndServe()
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		lg.Info("received signal, shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("server shutdown error", "error", err)
		}
	case err := <-serverErrChan:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr = fmt.Errorf("server failed: %w", err)
		}
	}

	stopWorkers()
	if workersDone != nil {
		if err := <-workersDone; err != nil {
			lg.Warn("in-process worker shutdown incomplete", "error", err)
		}
	}
	if serveErr != nil {
		return serveErr
	}

	lg.Info("server stopped")
	return nil
}

// startInProcessWorkers runs every queue inside the server when the queue
// lives in process memory, since a separate worker process cannot reach it.
// The returned channel yields Run's result once ctx is done. It is nil for a
// shared driver.
func startInProcessWorkers(ctx context.Context, cfg *internal.Config, infra *Infra, services *Services, lg *slog.Logger) (<-chan error, error) {
	if cfg.Queue.Driver != "memory" {
		return nil, nil
	}
	consumer, err := newWorkerConsumer(cfg, infra, services, queue.Names, lg)
	if err != nil {
		return nil, err
	}
	done := make(chan error, 1)
	go func() { done <- consumer.Run(ctx) }()
	lg.Info("memory queue driver, running workers in process", "queues", queue.Names)
	return done, nil
}

func newRouter(allowedOrigins string, validate bool, services *Services, infra *Infra, lg *slog.Logger) (*chi.Mux, error) {
	opts := rest.Options{AllowedOrigins: allowedOrigins, Spec: api.Spec}
	if validate {
		validator, err := middleware.NewOpenAPIValidator(api.Spec, lg)
		if err != nil {
			return nil, fmt.Errorf("failed to load openapi document: %w", err)
		}
		opts.Validator = validator
	}

	router := chi.NewRouter()
	handlers := services.handlers(
		transport.NewBaseHandler(lg),
		rest.NewHealthHandler(infra.DB.DB, infra.Backend),
		rest.NewJobsHandler(infra.Queue, lg),
	)
	rest.RegisterAllRoutes(router, handlers, opts, lg)
	return router, nil
}

func init() {
	rootCmd.AddCommand(httpServerCmd)
}
