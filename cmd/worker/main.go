package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lexigraph/case-assistant/internal/bootstrap"
	"github.com/lexigraph/case-assistant/internal/config"
	"github.com/lexigraph/case-assistant/internal/observability/logging"
	"github.com/lexigraph/case-assistant/internal/observability/metrics"
)

const serviceName = "worker"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	slog.SetDefault(logging.NewJSONLogger(serviceName, cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg)
	if err != nil {
		log.Fatalf("bootstrap error: %v", err)
	}
	defer app.Close()

	workerMetrics := metrics.NewWorkerMetrics(serviceName)
	app.Coordinator.WithObserver(metrics.NewBatchObserver(workerMetrics, serviceName))

	metricsServer := startMetricsServer(cfg.WorkerMetricsPort, workerMetrics)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	processTimeout := time.Duration(cfg.ProcessTimeoutSeconds) * time.Second
	if processTimeout <= 0 {
		processTimeout = 5 * time.Minute
	}

	slog.Info("worker subscribed", "subject", cfg.NATSSubject, "group", cfg.NATSQueueGroup)
	err = app.Queue.SubscribeDocumentIngested(ctx, func(handlerCtx context.Context, documentID string) error {
		started := time.Now()
		workerMetrics.StartDocument()

		if doc, lookupErr := app.Repo.GetByID(handlerCtx, documentID); lookupErr == nil {
			workerMetrics.ObserveQueueLag(serviceName, started.Sub(doc.CreatedAt))
		}

		processCtx, cancel := context.WithTimeout(handlerCtx, processTimeout)
		defer cancel()

		processErr := app.ProcessUC.ProcessByID(processCtx, documentID)
		workerMetrics.FinishDocument(serviceName, time.Since(started), processErr)
		return processErr
	})
	if err != nil {
		log.Fatalf("worker subscribe error: %v", err)
	}
}

func startMetricsServer(port string, workerMetrics *metrics.WorkerMetrics) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", workerMetrics.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	server := &http.Server{
		Addr:         ":" + port,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	go func() {
		slog.Info("worker metrics listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("worker metrics server error", "error", err)
		}
	}()
	return server
}
