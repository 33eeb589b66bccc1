package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/richardliu001/wallet-ledger/internal/config"
	"github.com/richardliu001/wallet-ledger/internal/logger"
	"github.com/richardliu001/wallet-ledger/internal/repo"
	"github.com/richardliu001/wallet-ledger/internal/service"
	httptransport "github.com/richardliu001/wallet-ledger/internal/transport/http"
	"github.com/richardliu001/wallet-ledger/internal/transport/queue"

	"github.com/go-redis/redis/v8"
	"github.com/segmentio/kafka-go"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	// 1. load config
	cfg, err := config.Load("internal/config/config.yaml")
	if err != nil {
		panic(fmt.Errorf("load config: %w", err))
	}

	// 2. init logger
	log, err := logger.NewLogger(cfg.Log.Level)
	if err != nil {
		panic(fmt.Errorf("init logger: %w", err))
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 3. postgres
	gdb, err := gorm.Open(postgres.Open(cfg.Postgres.DSN), &gorm.Config{PrepareStmt: true})
	if err != nil {
		log.Fatalf("open postgres: %v", err)
	}

	// 4. redis
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatalf("redis ping: %v", err)
	}

	// 5. kafka writer
	kw := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Kafka.Brokers...),
		Topic:        cfg.Kafka.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
	}
	pub := queue.NewKafkaPublisher(kw)
	defer pub.Close()

	// 6. repo & services
	repository := repo.NewRepository(gdb, rdb, log)
	if err := repository.Migrate(ctx); err != nil {
		log.Fatalf("auto-migrate: %v", err)
	}
	retry := service.RetryPolicy{
		MaxAttempts: cfg.Transfer.MaxAttempts,
		BaseDelay:   cfg.Transfer.BaseDelay,
		MaxDelay:    cfg.Transfer.MaxDelay,
	}
	initiator := service.NewTransferInitiator(repository, pub, cfg.Transfer.PublishTimeout, log)
	wallets := service.NewWalletService(repository, retry, log)

	// 7. gin router
	router := httptransport.NewRouter(initiator, wallets, cfg.RateLimit, log)
	srv := &http.Server{Addr: fmt.Sprintf(":%d", cfg.Server.Port), Handler: router}

	// 8. serve until signalled
	log.Infof("wallet-server listening on %s", srv.Addr)
	if err := httptransport.Serve(ctx, srv); err != nil {
		log.Fatalf("server: %v", err)
	}
	log.Info("wallet-server stopped")
}
