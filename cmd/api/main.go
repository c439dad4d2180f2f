package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	mongoadapter "github.com/gatepass/gatepass/internal/adapters/mongo"
	"github.com/gatepass/gatepass/internal/adapters/postgres"
	"github.com/gatepass/gatepass/internal/adapters/rabbit"
	redisadapter "github.com/gatepass/gatepass/internal/adapters/redis"
	"github.com/gatepass/gatepass/internal/config"
	"github.com/gatepass/gatepass/internal/gateway"
	httphandler "github.com/gatepass/gatepass/internal/http"
	"github.com/gatepass/gatepass/internal/notify"
	"github.com/gatepass/gatepass/internal/observability"
	"github.com/gatepass/gatepass/internal/rateLimit"
	"github.com/gatepass/gatepass/internal/settlement"
	"github.com/jackc/pgx/v5/pgxpool"
	amqp "github.com/rabbitmq/amqp091-go"
	redisclient "github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	shutdown, err := observability.SetupOTel(context.Background(), cfg)
	if err != nil {
		log.Fatalf("failed to setup otel: %v", err)
	}
	defer shutdown()

	logger := observability.NewLogger()
	observability.InitMetrics()

	gw, err := gateway.NewClient(cfg.GatewaySecretKey, cfg.GatewayBaseURL)
	if err != nil {
		log.Fatalf("gateway client: %v", err)
	}

	pool, err := pgxpool.New(context.Background(), cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("failed to connect to postgres: %v", err)
	}
	defer pool.Close()
	repo := postgres.NewRepository(pool)

	mongoClient, err := mongo.Connect(context.Background(), options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		log.Fatalf("failed to connect to mongo: %v", err)
	}
	defer mongoClient.Disconnect(context.Background())
	audit := mongoadapter.NewAuditTrail(mongoClient.Database("gatepass"), logger)

	redisClient := redisclient.NewClient(&redisclient.Options{Addr: cfg.RedisAddr})
	redisCache := redisadapter.NewCache(redisClient)
	verifyCache := redisadapter.NewVerifyCache(redisClient, time.Hour)
	rl := rateLimit.NewRateLimiter(redisCache)

	rabbitConn, err := amqp.Dial(cfg.RabbitURL)
	if err != nil {
		log.Fatalf("failed to connect to rabbitmq: %v", err)
	}
	defer rabbitConn.Close()
	rabbitPub, err := rabbit.NewPublisher(rabbitConn)
	if err != nil {
		log.Fatalf("failed to create publisher: %v", err)
	}

	orch := settlement.NewOrchestrator(repo, gw, cfg.GlobalRates(),
		notify.NewQueueSink(rabbitPub), notify.NewAttributionSink(rabbitPub),
		audit, redisCache, logger)

	handlers := httphandler.NewHandlers(cfg, repo, orch, gw, verifyCache, logger)
	r := httphandler.SetupRouter(handlers, logger, rl)

	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %s\n", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutdown Server ...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server Shutdown:", err)
	}
	logger.Info("Server exiting")
}
