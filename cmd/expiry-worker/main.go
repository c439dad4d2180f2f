package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gatepass/gatepass/internal/adapters/postgres"
	"github.com/gatepass/gatepass/internal/config"
	"github.com/gatepass/gatepass/internal/observability"
	"github.com/jackc/pgx/v5/pgxpool"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	shutdownOtel, err := observability.SetupOTel(context.Background(), cfg)
	if err != nil {
		log.Fatalf("failed to setup otel: %v", err)
	}
	defer shutdownOtel()

	logger := observability.NewLogger()

	pool, err := pgxpool.New(context.Background(), cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("failed to connect to postgres: %v", err)
	}
	defer pool.Close()
	repo := postgres.NewRepository(pool)

	worker := NewExpiryWorker(repo, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go worker.Run(ctx, time.Minute)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logger.Info("Shutdown expiry worker")
}

// ExpiryWorker sweeps pending reservations whose TTL has elapsed. Confirmed
// reservations are never touched, and a payment that completes after a sweep
// still settles (the pipeline confirms expired rows).
type ExpiryWorker struct {
	repo   *postgres.Repository
	logger observability.Logger
}

func NewExpiryWorker(repo *postgres.Repository, logger observability.Logger) *ExpiryWorker {
	return &ExpiryWorker{repo: repo, logger: logger}
}

func (w *ExpiryWorker) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			expired, err := w.repo.ExpireReservations(ctx, now)
			if err != nil {
				w.logger.Error("failed to expire reservations", err)
				continue
			}
			if expired > 0 {
				w.logger.WithField("count", expired).Info("expired stale reservations")
			}
		}
	}
}
