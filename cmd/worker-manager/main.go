// cmd/worker-manager/main.go
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"booking-workers/internal/booking/coordinator"
	"booking-workers/internal/booking/store"
	"booking-workers/internal/bus"
	"booking-workers/internal/common/aws"
	"booking-workers/internal/common/config"
	"booking-workers/internal/common/database"
	"booking-workers/internal/common/logger"
	"booking-workers/internal/common/observability"

	outboxrelay "booking-workers/internal/workers/outbox-relay"
	sessioncloser "booking-workers/internal/workers/session-closer"
	smsnotifier "booking-workers/internal/workers/sms-notifier"
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
			delay *= 2 // Exponential backoff
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func main() {
	zapLog := logger.New("info", "console")
	defer zapLog.Sync()

	// Wrap zap logger with our logger interface
	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting worker manager...")

	cfg, err := config.Load()
	if err != nil {
		zapLog.Fatal("config load failed", zap.Error(err))
	}

	obs := observability.New("worker-manager")
	defer obs.Shutdown()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Init PostgreSQL with retry ---
	var pg *database.PostgresClient
	err = retryWithBackoff(func() error {
		var err error
		pg, err = database.NewPostgres(cfg.Database.Postgres)
		if err != nil {
			return err
		}
		return pg.Ping(ctx)
	}, 15, 2*time.Second, zapLog, "PostgreSQL connection")

	if err != nil {
		zapLog.Fatal("postgres failed after retries", zap.Error(err))
	}
	defer pg.Close()
	zapLog.Info("PostgreSQL connected successfully")

	if err := store.EnsureSchema(ctx, pg.DB); err != nil {
		zapLog.Fatal("schema migration failed", zap.Error(err))
	}

	// --- Init Redis with retry ---
	var redis *database.RedisClient
	err = retryWithBackoff(func() error {
		var err error
		redis, err = database.NewRedis(cfg.Database.Redis)
		if err != nil {
			return err
		}
		return redis.Ping(ctx)
	}, 10, 2*time.Second, zapLog, "Redis connection")

	if err != nil {
		zapLog.Fatal("redis failed after retries", zap.Error(err))
	}
	defer redis.Close()
	zapLog.Info("Redis connected successfully")

	// --- Init Elasticsearch with retry (optional backend) ---
	var esClient *database.ElasticsearchClient
	if cfg.Database.Elasticsearch.Enabled {
		err = retryWithBackoff(func() error {
			var err error
			esClient, err = database.NewElasticsearch(cfg.Database.Elasticsearch)
			if err != nil {
				return err
			}
			return esClient.Ping()
		}, 15, 2*time.Second, zapLog, "Elasticsearch connection")

		if err != nil {
			zapLog.Fatal("elasticsearch failed after retries", zap.Error(err))
		}
		zapLog.Info("Elasticsearch connected successfully")
	}

	// --- Core wiring ---
	bookingStore := store.NewPostgres(pg.DB)
	coord := coordinator.New(bookingStore, log)

	hostname, _ := os.Hostname()
	eventBus, err := bus.NewRedisBus(ctx, redis.Client, bus.RedisBusOptions{
		Stream:       cfg.Bus.Stream,
		Group:        cfg.Bus.ConsumerGroup,
		Consumer:     fmt.Sprintf("%s-%d", hostname, os.Getpid()),
		Block:        time.Duration(cfg.Bus.BlockMillis) * time.Millisecond,
		ClaimMinIdle: time.Duration(cfg.Bus.ClaimMinIdle) * time.Millisecond,
	}, log)
	if err != nil {
		zapLog.Fatal("event bus init failed", zap.Error(err))
	}

	var wg sync.WaitGroup
	runWorker := func(name string, run func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := run(ctx); err != nil && err != context.Canceled {
				zapLog.Error("worker exited", zap.String("worker", name), zap.Error(err))
			}
		}()
	}

	// --- Outbox Relay ---
	if config.IsWorkerEnabled(cfg, outboxrelay.WorkerName) {
		handler := outboxrelay.NewHandler(
			outboxrelay.LoadConfig(config.GetWorkerConfig(cfg, outboxrelay.WorkerName)),
			bookingStore, eventBus, log,
		)
		runWorker(outboxrelay.WorkerName, handler.Run)
	}

	// --- SMS Notifier ---
	if config.IsWorkerEnabled(cfg, smsnotifier.WorkerName) {
		nCfg := smsnotifier.LoadConfig(config.GetWorkerConfig(cfg, smsnotifier.WorkerName), cfg.SMS)

		var gateway smsnotifier.Gateway
		if cfg.SMS.Enabled {
			var snsClient *aws.SNSClient
			err = retryWithBackoff(func() error {
				var err error
				snsClient, err = aws.NewSNSClient(ctx, cfg.SMS.AWSRegion)
				return err
			}, 5, 2*time.Second, zapLog, "SNS client initialization")
			if err != nil {
				zapLog.Fatal("sns client failed after retries", zap.Error(err))
			}
			gateway = smsnotifier.NewSNSGateway(snsClient, cfg.SMS.SenderID)
		}

		var alerter smsnotifier.AbandonAlerter
		if esClient != nil || cfg.SMS.EmailAlerts {
			var sesClient *aws.SESClient
			if cfg.SMS.EmailAlerts {
				sesClient, err = aws.NewSESClient(ctx, cfg.SMS.AWSRegion)
				if err != nil {
					zapLog.Fatal("ses client failed", zap.Error(err))
				}
			}
			alerter = smsnotifier.NewOperatorAlerter(esClient, sesClient, nCfg, log)
		}

		guard := smsnotifier.NewRedisGuard(redis.Client, 24*time.Hour)
		handler := smsnotifier.NewHandler(nCfg, bookingStore, eventBus, gateway, guard, alerter, obs, log)
		runWorker(smsnotifier.WorkerName, handler.Run)
	}

	// --- Session Closer ---
	if config.IsWorkerEnabled(cfg, sessioncloser.WorkerName) {
		handler := sessioncloser.NewHandler(
			sessioncloser.LoadConfig(config.GetWorkerConfig(cfg, sessioncloser.WorkerName)),
			coord, log,
		)
		runWorker(sessioncloser.WorkerName, handler.Run)
	}

	zapLog.Info("All workers registered successfully")

	// --- Health & Metrics Server ---
	go func() {
		http.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			json.NewEncoder(w).Encode(map[string]string{
				"status": "healthy",
				"time":   time.Now().Format(time.RFC3339),
			})
		})
		http.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			json.NewEncoder(w).Encode(map[string]string{
				"status": "ready",
				"time":   time.Now().Format(time.RFC3339),
			})
		})
		http.Handle("/metrics", promhttp.Handler())
		zapLog.Info("Health/Metrics server listening", zap.String("address", cfg.Metrics.Address))
		if err := http.ListenAndServe(cfg.Metrics.Address, nil); err != nil {
			zapLog.Error("Health/Metrics server failed", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	<-ctx.Done()
	zapLog.Info("Shutdown signal received, stopping workers...")

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(30 * time.Second):
		zapLog.Warn("workers did not stop within shutdown timeout")
	}

	if err := eventBus.Close(); err != nil {
		zapLog.Error("Error closing event bus", zap.Error(err))
	}

	zapLog.Info("Worker manager stopped gracefully")
}
