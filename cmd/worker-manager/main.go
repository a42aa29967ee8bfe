// cmd/worker-manager/main.go
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"

	"meddir-workers/internal/catalog"
	"meddir-workers/internal/catalog/store"
	"meddir-workers/internal/common/camunda"
	"meddir-workers/internal/common/config"
	"meddir-workers/internal/common/logger"
	"meddir-workers/internal/common/observability"

	cp "meddir-workers/internal/workers/catalog/compare-places"
	gpd "meddir-workers/internal/workers/catalog/get-place-detail"
	sp "meddir-workers/internal/workers/catalog/search-places"
)

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func main() {
	bootLog := logger.New("info", "console")

	cfg, err := config.Load()
	if err != nil {
		bootLog.Fatal("config load failed", zap.Error(err))
	}

	zapLog := logger.NewWithOutput(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output)
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting worker manager...",
		zap.String("app", cfg.App.Name),
		zap.String("environment", cfg.App.Environment),
		zap.String("backend", cfg.Catalog.Backend),
	)

	jaegerOpt, err := observability.WithJaeger(cfg.Tracing.JaegerEndpoint)
	if err != nil {
		zapLog.Fatal("jaeger exporter failed", zap.Error(err))
	}
	obs := observability.New(cfg.App.Name, jaegerOpt,
		observability.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.Tracing.SampleRatio))))
	defer obs.Shutdown()

	ctx := context.Background()

	// --- Zeebe ---
	zeebe, err := camunda.NewClientWithConfig(&camunda.ClientConfig{
		GatewayAddress:         cfg.Camunda.BrokerAddress,
		UsePlaintextConnection: true,
		ConnectionTimeout:      10 * time.Second,
		RequestTimeout:         config.GetDuration(cfg.Camunda.RequestTimeout),
		RetryConfig: &camunda.RetryConfig{
			MaxRetries: 10,
			BaseDelay:  2 * time.Second,
			MaxDelay:   30 * time.Second,
		},
	})
	if err != nil {
		zapLog.Fatal("zeebe client failed after retries", zap.Error(err))
	}
	zapLog.Info("Zeebe client connected successfully")

	// --- Catalog store ---
	var backend *store.Backend
	err = retryWithBackoff(func() error {
		var err error
		backend, err = store.OpenBackend(ctx, cfg, log)
		return err
	}, 15, 2*time.Second, zapLog, "catalog store connection")
	if err != nil {
		zapLog.Fatal("catalog store failed after retries", zap.Error(err))
	}
	defer backend.Close()

	service := catalog.NewService(backend.Store, log,
		catalog.WithCatalogs(
			catalog.Places.WithLimits(cfg.Catalog.PlacesDefaultLimit, cfg.Catalog.MaxLimit),
			catalog.Programs.WithLimits(cfg.Catalog.ProgramsDefaultLimit, cfg.Catalog.MaxLimit),
		),
		catalog.WithTracer(obs.Tracer()),
	)

	// --- Workers ---
	client := zeebe.GetClient()
	timeout := func(taskType string) time.Duration {
		return config.GetDuration(config.GetWorkerConfig(cfg, taskType).Timeout)
	}

	compareConfig := cp.LoadConfig()
	compareConfig.Timeout = timeout(cp.TaskType)

	workers := []*camunda.CamundaWorker{
		camunda.NewWorker(client, sp.TaskType, config.GetWorkerConfig(cfg, sp.TaskType),
			sp.NewHandler(&sp.Config{Timeout: timeout(sp.TaskType)}, service, log), obs, zapLog),
		camunda.NewWorker(client, gpd.TaskType, config.GetWorkerConfig(cfg, gpd.TaskType),
			gpd.NewHandler(&gpd.Config{Timeout: timeout(gpd.TaskType)}, service, log), obs, zapLog),
		camunda.NewWorker(client, cp.TaskType, config.GetWorkerConfig(cfg, cp.TaskType),
			cp.NewHandler(compareConfig, service, log), obs, zapLog),
	}
	zapLog.Info("All workers registered successfully")

	// --- Health & Metrics Server ---
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		writeStatus(w, http.StatusOK, map[string]interface{}{
			"status": "healthy",
			"time":   time.Now().Format(time.RFC3339),
		})
	})
	mux.Handle("/ready", readyHandler(map[string]func(context.Context) error{
		"zeebe": zeebe.HealthCheck,
	}, backend.Ready))
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{Addr: cfg.Metrics.Addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		zapLog.Info("Health/Metrics server listening", zap.String("addr", cfg.Metrics.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zapLog.Error("Health/Metrics server failed", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	zapLog.Info("Shutdown signal received, stopping workers...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	for _, w := range workers {
		w.Stop()
	}

	if err := server.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("Error stopping Health/Metrics server", zap.Error(err))
	}

	if err := zeebe.Close(); err != nil {
		zapLog.Error("Error closing Zeebe client", zap.Error(err))
	}

	zapLog.Info("Worker manager stopped gracefully")
}

// readyHandler reports 503 when any required dependency fails its check. A
// failing cache only degrades the report since reads fall through to the
// store.
func readyHandler(required map[string]func(context.Context) error, backend func(context.Context) map[string]error) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		results := backend(ctx)
		for name, check := range required {
			results[name] = check(ctx)
		}

		checks := make(map[string]string, len(results))
		status, code := "ready", http.StatusOK
		for name, err := range results {
			if err == nil {
				checks[name] = "ok"
				continue
			}
			checks[name] = err.Error()
			if name == "redis" {
				if status == "ready" {
					status = "degraded"
				}
				continue
			}
			status, code = "not_ready", http.StatusServiceUnavailable
		}

		writeStatus(w, code, map[string]interface{}{
			"status": status,
			"checks": checks,
			"time":   time.Now().Format(time.RFC3339),
		})
	})
}

func writeStatus(w http.ResponseWriter, code int, body map[string]interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(body)
}
