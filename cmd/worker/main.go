package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/richardliu001/wallet-ledger/internal/config"
	"github.com/richardliu001/wallet-ledger/internal/logger"
	"github.com/richardliu001/wallet-ledger/internal/notify"
	"github.com/richardliu001/wallet-ledger/internal/repo"
	"github.com/richardliu001/wallet-ledger/internal/service"
	httptransport "github.com/richardliu001/wallet-ledger/internal/transport/http"
	"github.com/richardliu001/wallet-ledger/internal/transport/queue"

	"github.com/go-redis/redis/v8"
	"github.com/segmentio/kafka-go"
	"golang.org/x/sync/errgroup"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	cfg, err := config.Load("internal/config/config.yaml")
	if err != nil {
		panic(fmt.Errorf("load config: %w", err))
	}

	log, err := logger.NewLogger(cfg.Log.Level)
	if err != nil {
		panic(fmt.Errorf("init logger: %w", err))
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	gdb, err := gorm.Open(postgres.Open(cfg.Postgres.DSN), &gorm.Config{PrepareStmt: true})
	if err != nil {
		log.Fatalf("open postgres: %v", err)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	repository := repo.NewRepository(gdb, rdb, log)
	exec := service.NewTransferExecutor(repository, service.RetryPolicy{
		MaxAttempts: cfg.Transfer.MaxAttempts,
		BaseDelay:   cfg.Transfer.BaseDelay,
		MaxDelay:    cfg.Transfer.MaxDelay,
	}, log)

	hooks := notify.Multi{notify.LogHook{Log: log}}
	if cfg.Notify.WebhookURL != "" {
		hooks = append(hooks, notify.NewWebhookHook(cfg.Notify.WebhookURL, cfg.Notify.Secret, cfg.Notify.Timeout))
	}
	handler := service.NewSettlementHandler(exec, hooks, log)

	// one reader per consumer; the group spreads partitions between them
	g, gctx := errgroup.WithContext(ctx)
	metricsSrv := &http.Server{Addr: fmt.Sprintf(":%d", cfg.Metrics.Port), Handler: httptransport.NewMetricsRouter()}
	g.Go(func() error { return httptransport.Serve(gctx, metricsSrv) })
	for i := 0; i < cfg.Worker.Concurrency; i++ {
		sub := queue.NewKafkaSubscriber(kafka.NewReader(kafka.ReaderConfig{
			Brokers: cfg.Kafka.Brokers,
			Topic:   cfg.Kafka.Topic,
			GroupID: cfg.Kafka.GroupID,
		}), log)
		g.Go(func() error { return sub.Subscribe(gctx, handler.Handle) })
	}

	log.Infof("wallet-worker started consumers=%d topic=%s group=%s",
		cfg.Worker.Concurrency, cfg.Kafka.Topic, cfg.Kafka.GroupID)
	if err := g.Wait(); err != nil {
		log.Fatalf("consume: %v", err)
	}
	log.Info("wallet-worker stopped")
}
