package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"leadership-portal/internal/config"
	"leadership-portal/internal/messaging"
	"leadership-portal/internal/observability"
	"leadership-portal/internal/repository/postgres"
)

// The audit worker drains the audit queue into PostgreSQL. Run it when the
// portal servers start with AUDIT_CONSUMER=false; several workers may share
// the queue.
func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	observability.InitLogger(cfg.LogLevel, cfg.LogFormat)

	if cfg.RabbitMQURL == "" {
		slog.Error("RABBITMQ_URL is required for the audit worker")
		os.Exit(1)
	}

	slog.Info("starting audit worker")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dbCtx, dbCancel := context.WithTimeout(ctx, 10*time.Second)
	db, err := config.NewPostgresConnection(dbCtx, cfg.DatabaseURL)
	dbCancel()
	if err != nil {
		slog.Error("failed to connect to database", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer db.Close()

	rmqCtx, rmqCancel := context.WithTimeout(ctx, 60*time.Second)
	rmq, err := messaging.NewRabbitMQWithRetry(rmqCtx, cfg.RabbitMQURL)
	rmqCancel()
	if err != nil {
		slog.Error("failed to connect to rabbitmq", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer rmq.Close()

	slog.Info("connected to rabbitmq")

	consumer := messaging.NewAuditConsumer(rmq, postgres.NewAuditRepository(db))
	if err := consumer.Start(ctx); err != nil {
		slog.Error("failed to start consuming", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("audit worker is ready to persist events")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigChan:
	case amqpErr := <-rmq.NotifyClose():
		slog.Error("rabbitmq connection lost", slog.Any("error", amqpErr))
	}

	slog.Info("shutting down audit worker")
	cancel()
	time.Sleep(1 * time.Second)
	slog.Info("audit worker stopped")
}
